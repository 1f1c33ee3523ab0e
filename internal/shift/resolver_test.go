package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dual bool) Config {
	return Config{
		DualMode:       dual,
		DayStart:       9 * 60,
		DayEnd:         21 * 60,
		GraceBefore:    120,
		GraceAfter:     360,
		EndGraceBefore: 120,
		EndGraceAfter:  360,
		ResetHour:      4,
	}
}

func ts(day, hour, min int) time.Time {
	return time.Date(2026, 8, day, hour, min, 0, 0, time.UTC)
}

func date(day int) time.Time {
	return time.Date(2026, 8, day, 0, 0, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(570), tod)

	_, err = ParseTimeOfDay("9h30")
	assert.Error(t, err)
}

func TestResolve_SingleShift(t *testing.T) {
	cfg := testConfig(false)

	testCases := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{"after reset boundary, record date is today", ts(10, 10, 0), date(10)},
		{"before reset boundary, record date is yesterday", ts(10, 2, 30), date(9)},
		{"exactly at reset boundary, record date is today", ts(10, 4, 0), date(10)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(cfg, tc.now, PurposeClockIn, nil)
			require.NoError(t, err)
			assert.Equal(t, LabelDay, res.Label)
			assert.Equal(t, DetailDay, res.Detail)
			assert.True(t, tc.expected.Equal(res.RecordDate))
		})
	}
}

func TestResolve_SingleShiftIgnoresWindows(t *testing.T) {
	// 03:00 is far outside any clock-in window, but single-shift groups
	// never reject.
	cfg := testConfig(false)
	res, err := Resolve(cfg, ts(10, 3, 0), PurposeClockIn, nil)
	require.NoError(t, err)
	assert.Equal(t, LabelDay, res.Label)
}

func TestResolve_DualClockIn(t *testing.T) {
	cfg := testConfig(true)

	testCases := []struct {
		name         string
		now          time.Time
		expectErr    bool
		expectDetail Detail
		expectDate   time.Time
	}{
		// Scenario A: 08:10 is inside the day start window (07:00-15:00).
		{"early day clock-in", ts(10, 8, 10), false, DetailDay, date(10)},
		{"late day clock-in inside grace", ts(10, 14, 30), false, DetailDay, date(10)},
		{"night shift clock-in at boundary", ts(10, 21, 0), false, DetailNightTonight, date(10)},
		{"night shift clock-in shortly before", ts(10, 19, 30), false, DetailNightTonight, date(10)},
		// 00:30 on the 11th falls in the tail of the start window of
		// the night shift that opened on the 10th (19:00 - 03:00).
		{"very late night clock-in past midnight", ts(11, 0, 30), false, DetailNightYesterday, date(10)},
		{"dead zone is rejected", ts(10, 16, 0), true, "", time.Time{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(cfg, tc.now, PurposeClockIn, nil)
			if tc.expectErr {
				assert.ErrorIs(t, err, ErrNoShiftWindow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectDetail, res.Detail)
			assert.True(t, tc.expectDate.Equal(res.RecordDate), "record date %v", res.RecordDate)
		})
	}
}

func TestResolve_DualClockOut(t *testing.T) {
	cfg := testConfig(true)

	testCases := []struct {
		name         string
		now          time.Time
		expectDetail Detail
		expectDate   time.Time
	}{
		{"day clock-out", ts(10, 21, 30), DetailDay, date(10)},
		// Morning clock-out belongs to the night shift that opened
		// yesterday evening: attributed to yesterday.
		{"morning night clock-out", ts(10, 9, 30), DetailNightYesterday, date(9)},
		{"early morning night clock-out", ts(10, 7, 30), DetailNightYesterday, date(9)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(cfg, tc.now, PurposeClockOut, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expectDetail, res.Detail)
			assert.True(t, tc.expectDate.Equal(res.RecordDate), "record date %v", res.RecordDate)
		})
	}
}

func TestResolve_DualClockAnchorFallback(t *testing.T) {
	cfg := testConfig(true)
	anchor := &Anchor{Label: LabelNight, RecordDate: date(9), OpenedAt: ts(9, 20, 55)}

	// 16:00 matches no end window, but the open night anchor decides.
	res, err := Resolve(cfg, ts(10, 16, 0), PurposeClockOut, anchor)
	require.NoError(t, err)
	assert.Equal(t, LabelNight, res.Label)
	assert.True(t, res.FromAnchor)
	assert.True(t, date(9).Equal(res.RecordDate))
	// The night that opened on the 9th ends at the day-start boundary
	// of the 10th.
	assert.True(t, ts(10, 9, 0).Equal(res.Boundary))
}

func TestResolve_DualClockNoAnchorRejected(t *testing.T) {
	cfg := testConfig(true)
	_, err := Resolve(cfg, ts(10, 16, 0), PurposeClockOut, nil)
	assert.ErrorIs(t, err, ErrNoShiftWindow)
}

func TestResolve_DualActivity(t *testing.T) {
	cfg := testConfig(true)

	testCases := []struct {
		name         string
		now          time.Time
		anchor       *Anchor
		expectDetail Detail
		expectDate   time.Time
	}{
		// Scenario B: 22:30 with day_end 21:00 and no anchor.
		{"evening without anchor", ts(10, 22, 30), nil, DetailNightTonight, date(10)},
		{"inside day window without anchor", ts(10, 12, 0), nil, DetailDay, date(10)},
		{"early morning without anchor", ts(10, 5, 0), nil, DetailNightYesterday, date(9)},
		{
			"anchored night activity follows the anchor",
			ts(10, 5, 0),
			&Anchor{Label: LabelNight, RecordDate: date(9)},
			DetailNightTonight, // still inside the span that opened on the 9th
			date(9),
		},
		{
			"anchored day activity follows the anchor",
			ts(10, 12, 0),
			&Anchor{Label: LabelDay, RecordDate: date(10)},
			DetailDay,
			date(10),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Resolve(cfg, tc.now, PurposeActivity, tc.anchor)
			require.NoError(t, err)
			assert.Equal(t, tc.expectDetail, res.Detail)
			assert.True(t, tc.expectDate.Equal(res.RecordDate), "record date %v", res.RecordDate)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	cfg := testConfig(true)
	now := ts(10, 8, 10)

	first, err1 := Resolve(cfg, now, PurposeClockIn, nil)
	second, err2 := Resolve(cfg, now, PurposeClockIn, nil)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
}

func TestResolve_BoundaryForDeviation(t *testing.T) {
	cfg := testConfig(true)

	res, err := Resolve(cfg, ts(10, 9, 25), PurposeClockIn, nil)
	require.NoError(t, err)
	require.True(t, ts(10, 9, 0).Equal(res.Boundary))
	assert.Equal(t, 25, int(ts(10, 9, 25).Sub(res.Boundary).Minutes()))
}
