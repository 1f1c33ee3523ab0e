package fine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sched(pairs map[int]int64) Schedule {
	s := make(Schedule, len(pairs))
	for t, a := range pairs {
		s[t] = decimal.NewFromInt(a)
	}
	return s
}

func TestAmount(t *testing.T) {
	s := sched(map[int]int64{10: 100, 30: 300})

	testCases := []struct {
		elapsed  float64
		expected int64
	}{
		{5, 100},
		{10, 100},
		{25, 300},
		{30, 300},
		// Past every tier: saturate at the largest threshold.
		{60, 300},
	}

	for _, tc := range testCases {
		got := Amount(s, tc.elapsed)
		assert.True(t, decimal.NewFromInt(tc.expected).Equal(got),
			"fine(%v) = %s", tc.elapsed, got)
	}
}

func TestAmount_EmptySchedule(t *testing.T) {
	assert.True(t, Amount(nil, 45).IsZero())
	assert.True(t, Amount(Schedule{}, 45).IsZero())
}

func TestAmount_Monotonic(t *testing.T) {
	s := sched(map[int]int64{5: 50, 15: 150, 60: 600})

	prev := decimal.Zero
	for elapsed := 0.0; elapsed <= 120; elapsed += 2.5 {
		cur := Amount(s, elapsed)
		assert.True(t, cur.GreaterThanOrEqual(prev),
			"fine must not decrease: fine(%v)=%s < %s", elapsed, cur, prev)
		prev = cur
	}
}
