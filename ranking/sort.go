package ranking

import (
	"fmt"
	"sort"
)

// BalancedScore trades safety against time. The time term goes negative past
// one hour, which pushes very long routes down.
func BalancedScore(overall int, travelTimeSeconds float64) float64 {
	return float64(overall)*0.6 + (1-travelTimeSeconds/3600)*40
}

// SortRoutes orders routes in place. The sort is stable, so ties keep the
// provider's order.
func SortRoutes(routes []RankedRoute, pref Preference) error {
	var less func(i, j int) bool
	switch pref {
	case PreferSafest:
		less = func(i, j int) bool {
			return routes[i].Assessment.OverallScore > routes[j].Assessment.OverallScore
		}
	case PreferFastest:
		less = func(i, j int) bool {
			return routes[i].Route.TravelTimeSeconds < routes[j].Route.TravelTimeSeconds
		}
	case PreferBalanced:
		less = func(i, j int) bool {
			return routes[i].BalancedScore > routes[j].BalancedScore
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPreference, pref)
	}

	sort.SliceStable(routes, less)
	for i := range routes {
		routes[i].Rank = i + 1
	}
	return nil
}
