// Package merge implements the incremental merge engine: the pure
// logic that folds a freshly extracted prescription record into the
// accumulated record for a session. All functions are total, free of
// side effects, and never mutate their inputs.
package merge

import "strings"

// NormalizeName produces the identity key used to match medicine
// entries: lower-cased, leading/trailing whitespace removed. Matching
// only; never used for display.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
