package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"attendance-backend/internal/fine"
	"attendance-backend/internal/logging"
	"attendance-backend/internal/shift"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

// StartResult reports a successfully started activity.
type StartResult struct {
	Activity      string
	Shift         shift.Label
	Detail        shift.Detail
	RecordDate    time.Time
	LimitMinutes  int
	TimesUsed     int
	MaxPerDay     int
	OverDailyMax  bool
}

// EndResult reports a finalized activity.
type EndResult struct {
	Activity        string
	Shift           shift.Label
	RecordDate      time.Time
	ElapsedSeconds  int64
	IsOvertime      bool
	OvertimeSeconds int64
	Fine            decimal.Decimal
}

// StartActivity opens an away activity for an employee and arms its
// escalation timer. A second start while one is open is rejected, not
// queued.
func (s *Service) StartActivity(ctx context.Context, groupID, employeeID int64, nickname, activity string) (*StartResult, error) {
	const op = "service.StartActivity"

	unlock := s.locks.Acquire(groupID, employeeID)
	defer unlock()

	_, cfg, err := s.groupConfig(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	acfg, err := s.store.GetActivityConfig(ctx, activity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if acfg == nil {
		return nil, fmt.Errorf("%s: %q: %w", op, activity, ErrUnknownActivity)
	}

	rec, err := s.store.EnsureDailyRecord(ctx, groupID, employeeID, nickname)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rec.CurrentActivity != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, *rec.CurrentActivity, ErrActivityInProgress)
	}

	now := s.clock()
	anchor, err := s.validAnchor(ctx, groupID, employeeID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := shift.Resolve(cfg, now, shift.PurposeActivity, anchor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	used, err := s.store.CountActivity(ctx, groupID, employeeID, res.RecordDate, activity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.SetOpenActivity(ctx, groupID, employeeID, activity, string(res.Label), now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.timers.Start(groupID, employeeID, activity, acfg.LimitMinutes, string(res.Label), now)

	return &StartResult{
		Activity:     activity,
		Shift:        res.Label,
		Detail:       res.Detail,
		RecordDate:   res.RecordDate,
		LimitMinutes: acfg.LimitMinutes,
		TimesUsed:    used,
		MaxPerDay:    acfg.MaxPerDay,
		OverDailyMax: acfg.MaxPerDay > 0 && used >= acfg.MaxPerDay,
	}, nil
}

// EndActivity finalizes the employee's open activity.
func (s *Service) EndActivity(ctx context.Context, groupID, employeeID int64) (*EndResult, error) {
	const op = "service.EndActivity"

	unlock := s.locks.Acquire(groupID, employeeID)
	defer unlock()

	res, err := s.endOpenActivityLocked(ctx, groupID, employeeID, s.clock(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ForceFinalize completes an employee's open activity outside the
// normal end flow (timer cap, rollover, recovery). It acquires the
// employee lock itself and reports ok=false when there was nothing to
// finalize, which makes racing finalizations collapse to one.
func (s *Service) ForceFinalize(ctx context.Context, groupID, employeeID int64, now time.Time, attributeDate *time.Time) (*EndResult, bool, error) {
	unlock := s.locks.Acquire(groupID, employeeID)
	defer unlock()

	res, err := s.endOpenActivityLocked(ctx, groupID, employeeID, now, attributeDate)
	if errors.Is(err, ErrNoOpenActivity) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// endOpenActivityLocked is the single finalize path shared by manual
// ends, clock-out auto-ends, forced terminations and rollover. Caller
// holds the employee lock. attributeDate, when set, pins the business
// date (rollover attributes to the finished date).
func (s *Service) endOpenActivityLocked(ctx context.Context, groupID, employeeID int64, now time.Time, attributeDate *time.Time) (*EndResult, error) {
	rec, err := s.store.GetDailyRecord(ctx, groupID, employeeID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.CurrentActivity == nil || rec.ActivityStart == nil {
		return nil, ErrNoOpenActivity
	}

	activity := *rec.CurrentActivity
	elapsed := now.Sub(*rec.ActivityStart)
	if elapsed < 0 {
		elapsed = 0
	}
	elapsedSec := int64(elapsed.Seconds())

	limitMinutes := 0
	if acfg, err := s.store.GetActivityConfig(ctx, activity); err != nil {
		return nil, err
	} else if acfg != nil {
		limitMinutes = acfg.LimitMinutes
	}

	overtimeSec := elapsedSec - int64(limitMinutes)*60
	if overtimeSec < 0 {
		overtimeSec = 0
	}
	isOvertime := overtimeSec > 0

	amount := decimal.Zero
	if isOvertime {
		schedule, err := s.store.FineSchedule(ctx, activity)
		if err != nil {
			return nil, err
		}
		amount = fine.Amount(schedule, float64(overtimeSec)/60)
	}

	recordDate := shift.DateOf(now)
	label := shift.Label(rec.ActivityShift)
	if attributeDate != nil {
		recordDate = shift.DateOf(*attributeDate)
	} else {
		_, cfg, err := s.groupConfig(ctx, groupID)
		if err != nil {
			return nil, err
		}
		anchor, err := s.validAnchor(ctx, groupID, employeeID, now)
		if err != nil {
			return nil, err
		}
		res, err := shift.Resolve(cfg, now, shift.PurposeActivity, anchor)
		if err != nil {
			return nil, err
		}
		recordDate = res.RecordDate
		if label == "" {
			label = res.Label
		}
	}
	if label == "" {
		label = shift.LabelDay
	}

	err = s.store.FinalizeActivity(ctx, store.FinalizeParams{
		GroupID:         groupID,
		EmployeeID:      employeeID,
		Activity:        activity,
		Shift:           string(label),
		RecordDate:      recordDate,
		ElapsedSeconds:  elapsedSec,
		IsOvertime:      isOvertime,
		OvertimeSeconds: overtimeSec,
		Fine:            amount,
	})
	if err != nil {
		return nil, err
	}

	// The row is closed; the loop only needs cancelling.
	s.timers.Stop(groupID, employeeID, true)

	return &EndResult{
		Activity:        activity,
		Shift:           label,
		RecordDate:      recordDate,
		ElapsedSeconds:  elapsedSec,
		IsOvertime:      isOvertime,
		OvertimeSeconds: overtimeSec,
		Fine:            amount,
	}, nil
}

// handleEscalation is the timer callback: staged reminders for warning
// and timeout, finalization plus a notice for the forced cap.
func (s *Service) handleEscalation(ctx context.Context, ev timer.Event) error {
	switch ev.Kind {
	case timer.KindWarning:
		s.notifyGroup(ctx, ev.GroupID, fmt.Sprintf(
			"Employee %d: %s has 1 minute left.", ev.EmployeeID, ev.Activity))
	case timer.KindTimeout:
		if ev.OvertimeMinutes == 0 {
			s.notifyGroup(ctx, ev.GroupID, fmt.Sprintf(
				"Employee %d: %s has reached its limit.", ev.EmployeeID, ev.Activity))
		} else {
			s.notifyGroup(ctx, ev.GroupID, fmt.Sprintf(
				"Employee %d: %s is %d minutes over the limit.", ev.EmployeeID, ev.Activity, ev.OvertimeMinutes))
		}
	case timer.KindForce:
		res, ok, err := s.ForceFinalize(ctx, ev.GroupID, ev.EmployeeID, s.clock(), nil)
		if err != nil {
			return err
		}
		if !ok {
			// Already finalized by a racing end; nothing to announce.
			return nil
		}
		s.notifyGroup(ctx, ev.GroupID, fmt.Sprintf(
			"Employee %d: %s force-ended after %d minutes overtime, fine %s.",
			ev.EmployeeID, res.Activity, res.OvertimeSeconds/60, res.Fine))
	}
	return nil
}

// RecoverSessions re-arms timers for activities that were open when the
// process stopped. Sessions already past the forced-termination cap are
// finalized immediately so no overtime or fine is lost.
func (s *Service) RecoverSessions(ctx context.Context) error {
	const op = "service.RecoverSessions"

	groups, err := s.store.ListGroupIDs(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, groupID := range groups {
		open, err := s.store.ListOpenActivities(ctx, groupID)
		if err != nil {
			s.log.Error("recovery: listing open activities failed", logging.Err(err), slog.Int64("group", groupID))
			continue
		}
		for _, rec := range open {
			if rec.CurrentActivity == nil || rec.ActivityStart == nil {
				continue
			}
			now := s.clock()

			limitMinutes := 0
			if acfg, err := s.store.GetActivityConfig(ctx, *rec.CurrentActivity); err == nil && acfg != nil {
				limitMinutes = acfg.LimitMinutes
			}
			overtime := now.Sub(*rec.ActivityStart) - time.Duration(limitMinutes)*time.Minute

			if overtime >= timer.ForceOvertimeMinutes*time.Minute {
				if res, ok, err := s.ForceFinalize(ctx, groupID, rec.EmployeeID, now, nil); err != nil {
					s.log.Error("recovery: finalize failed", logging.Err(err),
						slog.Int64("group", groupID), slog.Int64("employee", rec.EmployeeID))
				} else if ok {
					s.notifyGroup(ctx, groupID, fmt.Sprintf(
						"Employee %d: %s force-ended after restart (%d minutes overtime, fine %s).",
						rec.EmployeeID, res.Activity, res.OvertimeSeconds/60, res.Fine))
				}
				continue
			}

			s.timers.Start(groupID, rec.EmployeeID, *rec.CurrentActivity, limitMinutes,
				rec.ActivityShift, *rec.ActivityStart)
		}
	}
	return nil
}
