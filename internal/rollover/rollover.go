// Package rollover drives the daily resets. A single loop ticks every
// 30 seconds, finds groups whose reset time matches the current minute
// and runs their reset under an idempotency flag, so restarts and
// repeated ticks inside the same minute cannot double-run a group.
// Group failures are isolated: one group's reset failing never blocks
// another's.
package rollover

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"attendance-backend/internal/cache"
	"attendance-backend/internal/export"
	"attendance-backend/internal/logging"
	"attendance-backend/internal/model"
	"attendance-backend/internal/notify"
	"attendance-backend/internal/service"
	"attendance-backend/internal/shift"
	"attendance-backend/internal/store"
)

const (
	defaultTick          = 30 * time.Second
	defaultMaxConcurrent = 10
	// flagTTL keeps the per-day idempotency flag alive until shortly
	// before the next day's reset.
	flagTTL = 23 * time.Hour

	sweepInterval = time.Hour
)

// Kind distinguishes the two reset flavors.
type Kind string

const (
	KindHard Kind = "hard"
	KindSoft Kind = "soft"
)

// Summary reports what one reset did.
type Summary struct {
	GroupID          int64
	Kind             Kind
	TargetDate       time.Time
	ClosedActivities int
	SyntheticOuts    int
	ResetRows        int64
	DroppedAnchors   int64
}

// Orchestrator owns the reset loop.
type Orchestrator struct {
	svc      *service.Service
	store    store.Store
	cache    cache.Cache
	exporter export.Exporter
	notifier notify.Notifier
	log      *slog.Logger

	tick          time.Duration
	maxConcurrent int
	clock         func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

// New creates the orchestrator. exporter may be nil to disable export.
func New(svc *service.Service, st store.Store, c cache.Cache, exporter export.Exporter, notifier notify.Notifier, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		svc:           svc,
		store:         st,
		cache:         c,
		exporter:      exporter,
		notifier:      notifier,
		log:           log,
		tick:          defaultTick,
		maxConcurrent: defaultMaxConcurrent,
		clock:         time.Now,
	}
}

// SetTick overrides the driver cadence, for tests.
func (o *Orchestrator) SetTick(d time.Duration) { o.tick = d }

// SetMaxConcurrent overrides the per-tick group concurrency bound.
func (o *Orchestrator) SetMaxConcurrent(n int) {
	if n > 0 {
		o.maxConcurrent = n
	}
}

// SetClock overrides the time source, for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) { o.clock = clock }

// Run blocks until ctx is cancelled, ticking the reset check.
func (o *Orchestrator) Run(ctx context.Context) {
	o.log.Info("rollover driver started", slog.Duration("tick", o.tick))
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("rollover driver stopped")
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick runs one pass: every group whose hard or soft reset time matches
// the current minute is reset, at most maxConcurrent groups at a time.
func (o *Orchestrator) Tick(ctx context.Context) {
	now := o.clock()

	ids, err := o.store.ListGroupIDs(ctx)
	if err != nil {
		o.log.Error("rollover tick: listing groups failed", logging.Err(err))
		return
	}

	sem := make(chan struct{}, o.maxConcurrent)
	var wg sync.WaitGroup
	for _, groupID := range ids {
		g, err := o.store.GetGroup(ctx, groupID)
		if err != nil || g == nil {
			o.log.Error("rollover tick: loading group failed", logging.Err(err), slog.Int64("group", groupID))
			continue
		}

		var kind Kind
		switch {
		case now.Hour() == g.ResetHour && now.Minute() == g.ResetMinute:
			kind = KindHard
		case (g.SoftResetHour > 0 || g.SoftResetMinute > 0) &&
			now.Hour() == g.SoftResetHour && now.Minute() == g.SoftResetMinute:
			kind = KindSoft
		default:
			continue
		}

		ok, err := o.claim(ctx, kind, groupID, now)
		if err != nil {
			// Unreadable flag: skip rather than risk a double reset.
			o.log.Error("rollover tick: idempotency flag unreadable, skipping group",
				logging.Err(err), slog.Int64("group", groupID), slog.String("kind", string(kind)))
			continue
		}
		if !ok {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(g *model.Group, kind Kind) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runGroup(ctx, g, kind, now)
		}(g, kind)
	}
	wg.Wait()

	o.maybeSweep(ctx, now)
}

// claim marks kind+group+date+hour as done. Returns false when the
// flag already exists.
func (o *Orchestrator) claim(ctx context.Context, kind Kind, groupID int64, now time.Time) (bool, error) {
	key := fmt.Sprintf("rollover:%s:%d:%s:%02d", kind, groupID, now.Format("2006-01-02"), now.Hour())
	_, found, err := o.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}
	if err := o.cache.Set(ctx, key, "done", flagTTL); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) runGroup(ctx context.Context, g *model.Group, kind Kind, now time.Time) {
	var (
		sum *Summary
		err error
	)
	if kind == KindHard {
		sum, err = o.RunHardReset(ctx, g.ID, now)
	} else {
		sum, err = o.RunSoftReset(ctx, g.ID, now)
	}
	if err != nil {
		o.log.Error("reset failed", logging.Err(err),
			slog.Int64("group", g.ID), slog.String("kind", string(kind)))
		return
	}
	o.announce(ctx, sum)
}

// RunHardReset closes the prior business date for one group: export,
// force-finalize open activities onto the closed date, complete missing
// clock-outs (dual mode), zero the running totals, drop finished
// anchors and cancel the group's timers. Append-only history and
// monthly aggregates are untouched.
func (o *Orchestrator) RunHardReset(ctx context.Context, groupID int64, now time.Time) (*Summary, error) {
	const op = "rollover.RunHardReset"

	g, err := o.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if g == nil {
		return nil, fmt.Errorf("%s: group %d: %w", op, groupID, service.ErrUnknownGroup)
	}
	cfg, err := shift.ConfigFromGroup(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	target := shift.DateOf(now).AddDate(0, 0, -1)
	sum := &Summary{GroupID: groupID, Kind: KindHard, TargetDate: target}

	if o.exporter != nil {
		if err := o.exporter.Export(ctx, groupID, target); err != nil {
			o.log.Error("export failed, continuing reset", logging.Err(err),
				slog.Int64("group", groupID), slog.String("date", target.Format("2006-01-02")))
		}
	}

	sum.ClosedActivities = o.finalizeOpen(ctx, groupID, now, &target)

	if g.DualMode {
		n, err := o.completeMissingClockOuts(ctx, g, cfg, target)
		if err != nil {
			o.log.Error("completing missing clock-outs failed", logging.Err(err), slog.Int64("group", groupID))
		}
		sum.SyntheticOuts = n
	}

	rows, err := o.store.ResetDailyTotals(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.ResetRows = rows

	// Drop anchors of closed dates, but a night shift opened within the
	// staleness horizon is still live and must survive the reset.
	dropped, err := o.store.DeleteAnchorsBefore(ctx, groupID, shift.DateOf(now), now.Add(-service.AnchorMaxAge))
	if err != nil {
		o.log.Error("dropping finished anchors failed", logging.Err(err), slog.Int64("group", groupID))
	}
	sum.DroppedAnchors = dropped

	o.svc.Timers().StopGroup(groupID, false)

	o.log.Info("hard reset complete",
		slog.Int64("group", groupID),
		slog.String("date", target.Format("2006-01-02")),
		slog.Int("closed_activities", sum.ClosedActivities),
		slog.Int("synthetic_outs", sum.SyntheticOuts),
		slog.Int64("reset_rows", rows))
	return sum, nil
}

// RunSoftReset zeroes the display counters mid-day without exporting or
// touching anchors. An in-progress activity is finalized through the
// normal path first so no session is left open without a timer.
func (o *Orchestrator) RunSoftReset(ctx context.Context, groupID int64, now time.Time) (*Summary, error) {
	const op = "rollover.RunSoftReset"

	sum := &Summary{GroupID: groupID, Kind: KindSoft, TargetDate: shift.DateOf(now)}
	sum.ClosedActivities = o.finalizeOpen(ctx, groupID, now, nil)

	rows, err := o.store.ResetDailyTotals(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum.ResetRows = rows

	o.svc.Timers().StopGroup(groupID, false)

	o.log.Info("soft reset complete", slog.Int64("group", groupID), slog.Int64("reset_rows", rows))
	return sum, nil
}

// finalizeOpen force-finalizes every open activity of a group, one
// employee lock at a time. attributeDate pins the business date for
// hard resets; nil lets each finalize resolve its own date.
func (o *Orchestrator) finalizeOpen(ctx context.Context, groupID int64, now time.Time, attributeDate *time.Time) int {
	open, err := o.store.ListOpenActivities(ctx, groupID)
	if err != nil {
		o.log.Error("listing open activities failed", logging.Err(err), slog.Int64("group", groupID))
		return 0
	}

	closed := 0
	for _, rec := range open {
		res, ok, err := o.svc.ForceFinalize(ctx, groupID, rec.EmployeeID, now, attributeDate)
		if err != nil {
			o.log.Error("finalizing open activity failed", logging.Err(err),
				slog.Int64("group", groupID), slog.Int64("employee", rec.EmployeeID))
			continue
		}
		if ok {
			closed++
			o.log.Info("activity closed by reset",
				slog.Int64("group", groupID), slog.Int64("employee", rec.EmployeeID),
				slog.String("activity", res.Activity))
		}
	}
	return closed
}

// completeMissingClockOuts synthesizes a clock-out at the shift-end
// boundary for every employee who clocked in on the closed date but
// never clocked out, then closes their anchor.
func (o *Orchestrator) completeMissingClockOuts(ctx context.Context, g *model.Group, cfg shift.Config, target time.Time) (int, error) {
	missing, err := o.store.ListMissingClockOuts(ctx, g.ID, target)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, in := range missing {
		boundary := shift.DateOf(target).Add(time.Duration(cfg.DayEnd) * time.Minute)
		detail := string(shift.DetailDay)
		if in.Shift == string(shift.LabelNight) {
			boundary = shift.DateOf(target).AddDate(0, 0, 1).Add(time.Duration(cfg.DayStart) * time.Minute)
			detail = string(shift.DetailNightTonight)
		}

		err := o.store.RecordAttendanceEvent(ctx, store.EventParams{
			GroupID:     g.ID,
			EmployeeID:  in.EmployeeID,
			RecordDate:  target,
			EventType:   model.EventClockOut,
			Shift:       in.Shift,
			ShiftDetail: detail,
			ClockTime:   boundary,
			Status:      "auto",
			Fine:        decimal.Zero,
		})
		if err != nil {
			o.log.Error("synthesizing clock-out failed", logging.Err(err),
				slog.Int64("group", g.ID), slog.Int64("employee", in.EmployeeID))
			continue
		}
		if err := o.store.CloseAnchor(ctx, g.ID, in.EmployeeID, in.Shift); err != nil {
			o.log.Error("closing anchor failed", logging.Err(err),
				slog.Int64("group", g.ID), slog.Int64("employee", in.EmployeeID))
		}
		done++
	}
	return done, nil
}

// maybeSweep deletes anchors that outlived the staleness horizon across
// all groups, at most once per sweep interval.
func (o *Orchestrator) maybeSweep(ctx context.Context, now time.Time) {
	o.mu.Lock()
	due := now.Sub(o.lastSweep) >= sweepInterval
	if due {
		o.lastSweep = now
	}
	o.mu.Unlock()
	if !due {
		return
	}

	n, err := o.store.SweepStaleAnchors(ctx, now.Add(-service.AnchorMaxAge))
	if err != nil {
		o.log.Error("stale anchor sweep failed", logging.Err(err))
		return
	}
	if n > 0 {
		o.log.Info("stale anchors swept", slog.Int64("count", n))
	}
}

func (o *Orchestrator) announce(ctx context.Context, sum *Summary) {
	var text string
	if sum.Kind == KindHard {
		text = fmt.Sprintf("Daily reset for %s done: %d activities closed, %d clock-outs completed, %d records reset.",
			sum.TargetDate.Format("2006-01-02"), sum.ClosedActivities, sum.SyntheticOuts, sum.ResetRows)
	} else {
		text = fmt.Sprintf("Midday reset done: %d activities closed, %d records reset.",
			sum.ClosedActivities, sum.ResetRows)
	}
	if err := o.notifier.Notify(ctx, sum.GroupID, text); err != nil {
		o.log.Warn("reset notification failed", logging.Err(err), slog.Int64("group", sum.GroupID))
	}
}
