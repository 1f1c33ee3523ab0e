package shift

import (
	"errors"
	"fmt"
	"time"

	"attendance-backend/internal/model"
)

// Label is the coarse shift name an employee is working.
type Label string

const (
	LabelDay   Label = "day"
	LabelNight Label = "night"
)

// Detail disambiguates which concrete shift instance an event belongs
// to. A night shift spans midnight, so the same wall-clock morning can
// belong to the shift that opened yesterday evening (night_yesterday)
// while the evening belongs to tonight's (night_tonight).
type Detail string

const (
	DetailDay            Detail = "day"
	DetailNightYesterday Detail = "night_yesterday"
	DetailNightTonight   Detail = "night_tonight"
)

// Label returns the coarse label for a detail.
func (d Detail) Label() Label {
	if d == DetailDay {
		return LabelDay
	}
	return LabelNight
}

// Purpose says what the caller is about to do with the resolution.
// Clock events are window-checked; activities are not.
type Purpose string

const (
	PurposeClockIn  Purpose = "clock_in"
	PurposeClockOut Purpose = "clock_out"
	PurposeActivity Purpose = "activity"
)

// ErrNoShiftWindow is returned when a clock event in a dual-mode group
// falls outside every candidate window and no anchor disambiguates it.
var ErrNoShiftWindow = errors.New("no matching shift window")

// TimeOfDay is minutes from midnight.
type TimeOfDay int

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// Config is the parsed, validated shift configuration of a group.
// Built once at the boundary via ConfigFromGroup; the resolver never
// touches raw strings.
type Config struct {
	DualMode bool

	DayStart TimeOfDay
	DayEnd   TimeOfDay

	// Grace minutes around the shift-start boundary.
	GraceBefore int
	GraceAfter  int
	// Grace minutes around the shift-end boundary.
	EndGraceBefore int
	EndGraceAfter  int

	ResetHour   int
	ResetMinute int

	SoftResetHour   int
	SoftResetMinute int
}

// SoftResetEnabled reports whether the group has a secondary reset
// time. The zero time-of-day disables it.
func (c Config) SoftResetEnabled() bool {
	return c.SoftResetHour > 0 || c.SoftResetMinute > 0
}

// ConfigFromGroup parses a stored group row into a Config.
func ConfigFromGroup(g *model.Group) (Config, error) {
	dayStart, err := ParseTimeOfDay(g.DayStart)
	if err != nil {
		return Config{}, fmt.Errorf("day_start: %w", err)
	}
	dayEnd, err := ParseTimeOfDay(g.DayEnd)
	if err != nil {
		return Config{}, fmt.Errorf("day_end: %w", err)
	}
	return Config{
		DualMode:        g.DualMode,
		DayStart:        dayStart,
		DayEnd:          dayEnd,
		GraceBefore:     g.GraceBefore,
		GraceAfter:      g.GraceAfter,
		EndGraceBefore:  g.EndGraceBefore,
		EndGraceAfter:   g.EndGraceAfter,
		ResetHour:       g.ResetHour,
		ResetMinute:     g.ResetMinute,
		SoftResetHour:   g.SoftResetHour,
		SoftResetMinute: g.SoftResetMinute,
	}, nil
}

// Anchor is an already-open shift passed into the resolver: the label
// it was opened under and the record date it was opened against.
type Anchor struct {
	Label      Label
	RecordDate time.Time
	OpenedAt   time.Time
}

// Resolution is the outcome of a successful resolve: which shift the
// event belongs to and the business date it is attributed to.
// Boundary is the scheduled shift boundary the event is measured
// against (start boundary for clock-in, end boundary for clock-out);
// it is zero for activity resolutions.
type Resolution struct {
	Label      Label
	Detail     Detail
	RecordDate time.Time
	Boundary   time.Time
	FromAnchor bool
}

// window is a closed time interval.
type window struct {
	start, end time.Time
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.start) && !t.After(w.end)
}

// candidate is one shift instance a clock event could belong to.
type candidate struct {
	detail      Detail
	recordDate  time.Time
	startBound  time.Time
	endBound    time.Time
	startWindow window
	endWindow   window
}

// DateOf truncates an instant to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// at anchors a time-of-day onto a calendar date.
func at(date time.Time, tod TimeOfDay) time.Time {
	return DateOf(date).Add(time.Duration(tod) * time.Minute)
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

// Resolve decides which shift and business date an event at "now"
// belongs to. It is a pure function: identical inputs always produce
// identical output, and it performs no I/O.
func Resolve(cfg Config, now time.Time, purpose Purpose, anchor *Anchor) (Resolution, error) {
	if !cfg.DualMode {
		return resolveSingle(cfg, now, purpose), nil
	}
	if purpose == PurposeActivity {
		return resolveActivity(cfg, now, anchor), nil
	}
	return resolveClock(cfg, now, purpose, anchor)
}

// resolveSingle handles single-shift groups: always the day shift, and
// the record date flips at the group's daily reset boundary rather
// than at midnight. Windows are not checked.
func resolveSingle(cfg Config, now time.Time, purpose Purpose) Resolution {
	recordDate := DateOf(now)
	resetToday := DateOf(now).Add(time.Duration(cfg.ResetHour)*time.Hour + time.Duration(cfg.ResetMinute)*time.Minute)
	if now.Before(resetToday) {
		recordDate = recordDate.AddDate(0, 0, -1)
	}

	res := Resolution{Label: LabelDay, Detail: DetailDay, RecordDate: recordDate}
	switch purpose {
	case PurposeClockIn:
		res.Boundary = at(recordDate, cfg.DayStart)
	case PurposeClockOut:
		res.Boundary = at(recordDate, cfg.DayEnd)
	}
	return res
}

// resolveActivity handles dual-mode activity events. Activities have no
// fixed time, so no window is checked: an anchored employee's activity
// belongs to whatever shift they are clocked into, otherwise the shift
// is derived from "now" against the day window.
func resolveActivity(cfg Config, now time.Time, anchor *Anchor) Resolution {
	if anchor != nil {
		return resolveFromAnchor(cfg, now, PurposeActivity, anchor)
	}

	today := DateOf(now)
	dayStart := at(today, cfg.DayStart)
	dayEnd := at(today, cfg.DayEnd)

	switch {
	case !now.Before(dayStart) && now.Before(dayEnd):
		return Resolution{Label: LabelDay, Detail: DetailDay, RecordDate: today}
	case !now.Before(dayEnd):
		return Resolution{Label: LabelNight, Detail: DetailNightTonight, RecordDate: today}
	default:
		return Resolution{Label: LabelNight, Detail: DetailNightYesterday, RecordDate: today.AddDate(0, 0, -1)}
	}
}

// resolveClock handles dual-mode clock events: three candidate shift
// instances are windowed and the one containing "now" wins. With no
// match the anchor, if any, decides; otherwise the event is rejected.
func resolveClock(cfg Config, now time.Time, purpose Purpose, anchor *Anchor) (Resolution, error) {
	for _, c := range clockCandidates(cfg, DateOf(now)) {
		w, bound := c.startWindow, c.startBound
		if purpose == PurposeClockOut {
			w, bound = c.endWindow, c.endBound
		}
		if w.contains(now) {
			return Resolution{
				Label:      c.detail.Label(),
				Detail:     c.detail,
				RecordDate: c.recordDate,
				Boundary:   bound,
			}, nil
		}
	}

	if anchor != nil {
		return resolveFromAnchor(cfg, now, purpose, anchor), nil
	}
	return Resolution{}, ErrNoShiftWindow
}

// clockCandidates builds the three dual-mode shift instances around a
// base date: today's day shift, the night shift that opened yesterday
// evening (clocked out this morning), and tonight's night shift.
// Start-side windows use the shift-start grace, end-side windows the
// shift-end grace.
func clockCandidates(cfg Config, base time.Time) []candidate {
	dayStart := at(base, cfg.DayStart)
	dayEnd := at(base, cfg.DayEnd)

	day := candidate{
		detail:     DetailDay,
		recordDate: base,
		startBound: dayStart,
		endBound:   dayEnd,
		startWindow: window{
			start: dayStart.Add(-minutes(cfg.GraceBefore)),
			end:   dayStart.Add(minutes(cfg.GraceAfter)),
		},
		endWindow: window{
			start: dayEnd.Add(-minutes(cfg.EndGraceBefore)),
			end:   dayEnd.Add(minutes(cfg.EndGraceAfter)),
		},
	}

	nightYesterdayStart := dayEnd.AddDate(0, 0, -1)
	nightYesterday := candidate{
		detail:     DetailNightYesterday,
		recordDate: base.AddDate(0, 0, -1),
		startBound: nightYesterdayStart,
		endBound:   dayStart,
		startWindow: window{
			start: nightYesterdayStart.Add(-minutes(cfg.GraceBefore)),
			end:   nightYesterdayStart.Add(minutes(cfg.GraceAfter)),
		},
		endWindow: window{
			start: dayStart.Add(-minutes(cfg.EndGraceBefore)),
			end:   dayStart.Add(minutes(cfg.EndGraceAfter)),
		},
	}

	nightTonightEnd := dayStart.AddDate(0, 0, 1)
	nightTonight := candidate{
		detail:     DetailNightTonight,
		recordDate: base,
		startBound: dayEnd,
		endBound:   nightTonightEnd,
		startWindow: window{
			start: dayEnd.Add(-minutes(cfg.GraceBefore)),
			end:   dayEnd.Add(minutes(cfg.GraceAfter)),
		},
		endWindow: window{
			start: nightTonightEnd.Add(-minutes(cfg.EndGraceBefore)),
			end:   nightTonightEnd.Add(minutes(cfg.EndGraceAfter)),
		},
	}

	return []candidate{day, nightYesterday, nightTonight}
}

// resolveFromAnchor resolves directly from an open shift: the anchor's
// label and record date are authoritative, only the detail of a night
// anchor depends on where "now" falls relative to its opening boundary.
func resolveFromAnchor(cfg Config, now time.Time, purpose Purpose, anchor *Anchor) Resolution {
	recordDate := DateOf(anchor.RecordDate)

	res := Resolution{
		Label:      anchor.Label,
		RecordDate: recordDate,
		FromAnchor: true,
	}

	if anchor.Label == LabelDay {
		res.Detail = DetailDay
		switch purpose {
		case PurposeClockIn:
			res.Boundary = at(recordDate, cfg.DayStart)
		case PurposeClockOut:
			res.Boundary = at(recordDate, cfg.DayEnd)
		}
		return res
	}

	nightStart := at(recordDate, cfg.DayEnd)
	if !now.Before(nightStart) && now.Before(nightStart.AddDate(0, 0, 1)) {
		res.Detail = DetailNightTonight
	} else {
		res.Detail = DetailNightYesterday
	}
	switch purpose {
	case PurposeClockIn:
		res.Boundary = nightStart
	case PurposeClockOut:
		res.Boundary = at(recordDate.AddDate(0, 0, 1), cfg.DayStart)
	}
	return res
}
