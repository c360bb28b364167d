package resolver

import (
	"time"

	"bookflow/internal/models"
)

// Closest returns the index of the bookable unit whose start time is nearest
// to target, measured in absolute minutes. The scan is a single left-to-right
// pass over the units in the order the resolver produced them; on a tie the
// earlier unit wins. Full units are skipped. Returns -1 when nothing is
// bookable.
func Closest(units []models.CapacityUnit, target time.Time) int {
	best := -1
	var bestDist time.Duration

	for i, u := range units {
		if u.IsFull() {
			continue
		}
		dist := u.StartTime.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best == -1 || dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}
