package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rxlens/rxlens-api/internal/model"
)

func TestReconcileField(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		existing string
		want     string
	}{
		{"incoming wins over sentinel", "CVS", "none", "CVS"},
		{"incoming wins on conflict", "Walgreens", "CVS", "Walgreens"},
		{"existing preserved when incoming sentinel", "none", "CVS", "CVS"},
		{"both sentinel", "none", "none", "none"},
		{"empty incoming treated as sentinel", "", "CVS", "CVS"},
		{"empty both", "", "", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReconcileField(tt.incoming, tt.existing))
		})
	}
}

func TestMergeRecords_EmptyIncomingIsNoOp(t *testing.T) {
	existing := model.NewPrescriptionRecord()
	existing.PharmacyOrDoctorName = "CVS"
	existing.Date = "2024-03-01"
	existing.Medicines = []model.MedicineEntry{
		med("Amoxicillin", "twice daily", "30 tabs", "drowsiness"),
	}

	merged := MergeRecords(model.NewPrescriptionRecord(), existing)

	assert.Equal(t, existing, merged)
}

func TestMergeRecords_EmptyExistingTakesIncoming(t *testing.T) {
	incoming := model.NewPrescriptionRecord()
	incoming.PharmacyOrDoctorName = "CVS"
	incoming.Medicines = []model.MedicineEntry{
		med("Amoxicillin", "twice daily", "30 tabs", "none"),
	}

	merged := MergeRecords(incoming, model.NewPrescriptionRecord())

	assert.Equal(t, incoming, merged)
}

func TestMergeRecords_FieldPrecedence(t *testing.T) {
	existing := model.NewPrescriptionRecord()
	existing.PharmacyOrDoctorName = "CVS"
	existing.RxNumber = "RX-1001"
	existing.Medicines = []model.MedicineEntry{
		med("Amoxicillin", "none", "30 tabs", "none"),
	}

	incoming := model.NewPrescriptionRecord()
	incoming.RxNumber = "RX-2002"
	incoming.Address = "12 Main St"
	incoming.Medicines = []model.MedicineEntry{
		med("AMOXICILLIN", "none", "none", "drowsiness"),
	}

	merged := MergeRecords(incoming, existing)

	assert.Equal(t, "CVS", merged.PharmacyOrDoctorName, "existing kept when incoming sentinel")
	assert.Equal(t, "RX-2002", merged.RxNumber, "incoming overwrites on conflict")
	assert.Equal(t, "12 Main St", merged.Address)
	assert.Len(t, merged.Medicines, 1)
	assert.Equal(t, "30 tabs", merged.Medicines[0].Quantity)
	assert.Equal(t, "drowsiness", merged.Medicines[0].SideEffects)
}

func TestMergeRecords_DoesNotMutateInputs(t *testing.T) {
	existing := model.NewPrescriptionRecord()
	existing.PharmacyOrDoctorName = "CVS"
	existing.Medicines = []model.MedicineEntry{med("Amoxicillin", "old", "none", "none")}
	existingCopy := existing.Clone()

	incoming := model.NewPrescriptionRecord()
	incoming.PharmacyOrDoctorName = "Walgreens"
	incoming.Medicines = []model.MedicineEntry{med("amoxicillin", "new", "none", "none")}
	incomingCopy := incoming.Clone()

	_ = MergeRecords(incoming, existing)

	assert.Equal(t, existingCopy, existing)
	assert.Equal(t, incomingCopy, incoming)
}

func TestMergeRecords_SequentialMergesAreOrderDependent(t *testing.T) {
	acc := model.NewPrescriptionRecord()

	for i, date := range []string{"2024-01-01", "2024-02-02", "2024-03-03"} {
		step := model.NewPrescriptionRecord()
		step.Date = date
		acc = MergeRecords(step, acc)
		assert.Equal(t, date, acc.Date, "merge %d", i+1)
	}

	assert.Equal(t, "2024-03-03", acc.Date, "last merged value wins")
}

func TestMergeRecords_AccumulatesAcrossImages(t *testing.T) {
	// Front of the bottle: pharmacy identity plus one medicine.
	front := model.NewPrescriptionRecord()
	front.PharmacyOrDoctorName = "CVS"
	front.Medicines = []model.MedicineEntry{med("Amoxicillin", "none", "30 tabs", "none")}

	// Back of the bottle: no pharmacy, more detail on the same
	// medicine plus a second one.
	back := model.NewPrescriptionRecord()
	back.Medicines = []model.MedicineEntry{
		med("AMOXICILLIN", "twice daily", "none", "drowsiness"),
		med("Metformin", "with meals", "60 tabs", "none"),
	}

	acc := MergeRecords(front, model.NewPrescriptionRecord())
	acc = MergeRecords(back, acc)

	assert.Equal(t, "CVS", acc.PharmacyOrDoctorName)
	assert.Len(t, acc.Medicines, 2)
	assert.Equal(t, "30 tabs", acc.Medicines[0].Quantity)
	assert.Equal(t, "twice daily", acc.Medicines[0].Description)
	assert.Equal(t, "Metformin", acc.Medicines[1].Name)
}
