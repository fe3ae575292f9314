package merge

import "github.com/rxlens/rxlens-api/internal/model"

// MergeRecords folds a candidate record extracted from one image into
// the accumulated record and returns the new accumulated record.
// Neither input is mutated. Each scalar field is reconciled
// independently and the medicine lists are merged by identity.
//
// The operation is order-dependent by contract: merging image3 after
// image2 after image1 prefers the most recently merged real value on
// conflicts, so the order images are submitted in is meaningful.
func MergeRecords(incoming, existing model.PrescriptionRecord) model.PrescriptionRecord {
	return model.PrescriptionRecord{
		PharmacyOrDoctorName: ReconcileField(incoming.PharmacyOrDoctorName, existing.PharmacyOrDoctorName),
		TitleOrDoctorDetails: ReconcileField(incoming.TitleOrDoctorDetails, existing.TitleOrDoctorDetails),
		ContactDetails:       ReconcileField(incoming.ContactDetails, existing.ContactDetails),
		Date:                 ReconcileField(incoming.Date, existing.Date),
		Address:              ReconcileField(incoming.Address, existing.Address),
		RxNumber:             ReconcileField(incoming.RxNumber, existing.RxNumber),
		StoreNumber:          ReconcileField(incoming.StoreNumber, existing.StoreNumber),
		Medicines:            MergeMedicines(incoming.Medicines, existing.Medicines),
	}
}
