package model

import (
	"encoding/json"
)

// Sentinel is the literal used for any field whose value is unknown.
// It is part of the wire format: fields are never null or absent,
// they carry either real text or this sentinel.
const Sentinel = "none"

// MedicineEntry is one medicine extracted from a prescription image.
// Identity for merge purposes is the name only (case-folded, trimmed);
// the remaining fields are free text.
type MedicineEntry struct {
	Name        string `json:"medicine_name"`
	Description string `json:"description"`
	Quantity    string `json:"qty"`
	SideEffects string `json:"side_effects"`
}

// PrescriptionRecord is the accumulated view of one prescription
// across any number of processed images.
type PrescriptionRecord struct {
	PharmacyOrDoctorName string          `json:"pharmacy_or_doctor_name"`
	TitleOrDoctorDetails string          `json:"title_or_doctor_details"`
	ContactDetails       string          `json:"contact_details"`
	Date                 string          `json:"date"`
	Address              string          `json:"address"`
	RxNumber             string          `json:"rx_number"`
	StoreNumber          string          `json:"store_number"`
	Medicines            []MedicineEntry `json:"medicines_names"`
}

// NewMedicineEntry returns the all-sentinel placeholder entry.
func NewMedicineEntry() MedicineEntry {
	return MedicineEntry{
		Name:        Sentinel,
		Description: Sentinel,
		Quantity:    Sentinel,
		SideEffects: Sentinel,
	}
}

// NewPrescriptionRecord returns the canonical empty record: every
// scalar is the sentinel and the medicine list holds the single
// placeholder entry, never nothing.
func NewPrescriptionRecord() PrescriptionRecord {
	return PrescriptionRecord{
		PharmacyOrDoctorName: Sentinel,
		TitleOrDoctorDetails: Sentinel,
		ContactDetails:       Sentinel,
		Date:                 Sentinel,
		Address:              Sentinel,
		RxNumber:             Sentinel,
		StoreNumber:          Sentinel,
		Medicines:            []MedicineEntry{NewMedicineEntry()},
	}
}

// Normalize fills any empty field with the sentinel and guarantees a
// non-empty medicine list. Applied after every decode so that records
// read from storage or from model output always satisfy the record
// invariants, whatever fields the source document omitted.
func (r *PrescriptionRecord) Normalize() {
	for _, f := range []*string{
		&r.PharmacyOrDoctorName,
		&r.TitleOrDoctorDetails,
		&r.ContactDetails,
		&r.Date,
		&r.Address,
		&r.RxNumber,
		&r.StoreNumber,
	} {
		if *f == "" {
			*f = Sentinel
		}
	}

	for i := range r.Medicines {
		r.Medicines[i].normalize()
	}
	if len(r.Medicines) == 0 {
		r.Medicines = []MedicineEntry{NewMedicineEntry()}
	}
}

func (m *MedicineEntry) normalize() {
	for _, f := range []*string{&m.Name, &m.Description, &m.Quantity, &m.SideEffects} {
		if *f == "" {
			*f = Sentinel
		}
	}
}

// IsPlaceholder reports whether the entry carries no real data.
func (m MedicineEntry) IsPlaceholder() bool {
	return m.Name == Sentinel &&
		m.Description == Sentinel &&
		m.Quantity == Sentinel &&
		m.SideEffects == Sentinel
}

// HasData reports whether any field of the record holds a real value.
// Used to decide whether the extraction prompt should embed the
// accumulated record as context.
func (r PrescriptionRecord) HasData() bool {
	for _, v := range []string{
		r.PharmacyOrDoctorName,
		r.TitleOrDoctorDetails,
		r.ContactDetails,
		r.Date,
		r.Address,
		r.RxNumber,
		r.StoreNumber,
	} {
		if v != Sentinel && v != "" {
			return true
		}
	}
	for _, m := range r.Medicines {
		if !m.IsPlaceholder() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; the medicine slice is never shared.
func (r PrescriptionRecord) Clone() PrescriptionRecord {
	out := r
	out.Medicines = make([]MedicineEntry, len(r.Medicines))
	copy(out.Medicines, r.Medicines)
	return out
}

// DecodePrescriptionRecord parses a stored or extracted JSON document
// into a record, defaulting anything absent to the sentinel shape.
func DecodePrescriptionRecord(data []byte) (PrescriptionRecord, error) {
	var r PrescriptionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return PrescriptionRecord{}, err
	}
	r.Normalize()
	return r, nil
}
