// Package fine prices overtime and tardiness against tiered minute
// schedules.
package fine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Schedule maps a minute threshold to the penalty charged for elapsed
// times up to and including it.
type Schedule map[int]decimal.Decimal

// Amount returns the penalty for elapsedMinutes: the amount of the
// smallest threshold >= elapsedMinutes, saturating at the largest
// threshold when every tier is exceeded. An empty schedule costs
// nothing.
func Amount(s Schedule, elapsedMinutes float64) decimal.Decimal {
	if len(s) == 0 {
		return decimal.Zero
	}

	thresholds := make([]int, 0, len(s))
	for t := range s {
		thresholds = append(thresholds, t)
	}
	sort.Ints(thresholds)

	for _, t := range thresholds {
		if elapsedMinutes <= float64(t) {
			return s[t]
		}
	}
	return s[thresholds[len(thresholds)-1]]
}
