package merge

import "github.com/rxlens/rxlens-api/internal/model"

// ReconcileField resolves one scalar field between a freshly extracted
// value and the accumulated one. The newest evidence wins: a real
// incoming value overwrites whatever was there, even on conflict. The
// sentinel never displaces real data.
func ReconcileField(incoming, existing string) string {
	if incoming != model.Sentinel && incoming != "" {
		return incoming
	}
	if existing != model.Sentinel && existing != "" {
		return existing
	}
	return model.Sentinel
}
