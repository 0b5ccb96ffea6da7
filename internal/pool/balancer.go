package pool

import "github.com/skalene/canopy/pkg/models"

// PickLeastLoaded returns the candidate with the lowest load according
// to the externally maintained counters, ties broken by first-seen
// order. Offline workers are skipped. It is a pure function: the
// counters are never mutated here. ok is false when no candidate is
// available.
func PickLeastLoaded(candidates []models.Worker, loads map[string]int) (models.Worker, bool) {
	var best models.Worker
	bestLoad := -1
	for _, w := range candidates {
		if w.Status == models.WorkerStatusOffline {
			continue
		}
		load := loads[w.ID]
		if bestLoad < 0 || load < bestLoad {
			best = w
			bestLoad = load
		}
	}
	if bestLoad < 0 {
		return models.Worker{}, false
	}
	return best, true
}
