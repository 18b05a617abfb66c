package recon

import (
	"sort"

	"github.com/santirms/zupply-app-sub000/internal/models"
)

// MergeHistory combines stored history with newly normalized events:
// drop incoming events whose dedupe key is already present, append the rest,
// stable-sort by OccurredAt. Idempotent — replaying the same remote data
// produces identical output.
func MergeHistory(existing, incoming []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]models.Event, 0, len(existing)+len(incoming))

	for _, e := range existing {
		k := e.DedupeKey()
		if _, ok := seen[k]; ok {
			// Старые дубли не выбрасываем: история settled, трогать нельзя.
			out = append(out, e)
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}

	for _, e := range incoming {
		k := e.DedupeKey()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}
