package merge

import "github.com/rxlens/rxlens-api/internal/model"

// MergeMedicines merges a freshly extracted medicine list into the
// accumulated one. Matching is by normalized name. Matched entries are
// updated field by field (incoming wins where it carries real data),
// unmatched incoming entries are appended after all existing ones in
// their incoming order, and existing entries keep their relative
// order. The result never contains two entries with equal normalized
// names and is never empty: with no real data it holds the single
// all-sentinel placeholder.
func MergeMedicines(incoming, existing []model.MedicineEntry) []model.MedicineEntry {
	result := make([]model.MedicineEntry, 0, len(existing)+len(incoming))

	// Placeholder entries are dropped; they never survive once real
	// data exists.
	for _, med := range existing {
		if med.Name != model.Sentinel {
			result = append(result, med)
		}
	}

	for _, med := range incoming {
		key := NormalizeName(med.Name)
		if key == "" || key == model.Sentinel {
			// An entry without a real medicine name is not mergeable.
			continue
		}

		idx := findByName(result, key)
		if idx < 0 {
			result = append(result, med)
			continue
		}
		result[idx] = updateEntry(result[idx], med)
	}

	if len(result) == 0 {
		return []model.MedicineEntry{model.NewMedicineEntry()}
	}
	return result
}

// findByName returns the position of the first entry whose normalized
// name equals key, or -1. First match only: duplicate names in the
// existing list violate the output invariant but are tolerated here.
func findByName(entries []model.MedicineEntry, key string) int {
	for i, med := range entries {
		if NormalizeName(med.Name) == key {
			return i
		}
	}
	return -1
}

// updateEntry overlays incoming onto existing per field. Sentinel and
// empty incoming fields leave the existing value untouched; the name
// is included so fresher casing wins.
func updateEntry(existing, incoming model.MedicineEntry) model.MedicineEntry {
	out := existing
	if hasValue(incoming.Name) {
		out.Name = incoming.Name
	}
	if hasValue(incoming.Description) {
		out.Description = incoming.Description
	}
	if hasValue(incoming.Quantity) {
		out.Quantity = incoming.Quantity
	}
	if hasValue(incoming.SideEffects) {
		out.SideEffects = incoming.SideEffects
	}
	return out
}

func hasValue(v string) bool {
	return v != model.Sentinel && v != ""
}
