package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"attendance-backend/internal/fine"
	"attendance-backend/internal/model"
	"attendance-backend/internal/shift"
	"attendance-backend/internal/store"
)

// Clock-event statuses.
const (
	StatusOnTime = "ontime"
	StatusLate   = "late"
	StatusEarly  = "early"
)

// ClockResult reports a recorded clock-in or clock-out.
type ClockResult struct {
	EventType        string
	Shift            shift.Label
	Detail           shift.Detail
	RecordDate       time.Time
	DeviationMinutes int
	Status           string
	Fine             decimal.Decimal

	// AutoFinalized is set when a clock-out closed an activity that was
	// still open.
	AutoFinalized *EndResult
}

// ClockIn records an arrival. In dual-shift groups it also opens the
// shift anchor that later ambiguous times resolve against.
func (s *Service) ClockIn(ctx context.Context, groupID, employeeID int64, nickname string) (*ClockResult, error) {
	const op = "service.ClockIn"

	unlock := s.locks.Acquire(groupID, employeeID)
	defer unlock()

	g, cfg, err := s.groupConfig(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.store.EnsureDailyRecord(ctx, groupID, employeeID, nickname); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock()
	anchor, err := s.validAnchor(ctx, groupID, employeeID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := shift.Resolve(cfg, now, shift.PurposeClockIn, anchor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Positive deviation means arriving after the shift start.
	deviation := int(now.Sub(res.Boundary) / time.Minute)
	status := StatusOnTime
	amount := decimal.Zero
	if deviation > 0 {
		status = StatusLate
		schedule, err := s.store.FineSchedule(ctx, model.EventClockIn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		amount = fine.Amount(schedule, now.Sub(res.Boundary).Minutes())
	}

	err = s.store.RecordAttendanceEvent(ctx, store.EventParams{
		GroupID:          groupID,
		EmployeeID:       employeeID,
		RecordDate:       res.RecordDate,
		EventType:        model.EventClockIn,
		Shift:            string(res.Label),
		ShiftDetail:      string(res.Detail),
		ClockTime:        now,
		DeviationMinutes: deviation,
		Status:           status,
		Fine:             amount,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if g.DualMode {
		if err := s.store.OpenAnchor(ctx, groupID, employeeID, string(res.Label), res.RecordDate, now); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &ClockResult{
		EventType:        model.EventClockIn,
		Shift:            res.Label,
		Detail:           res.Detail,
		RecordDate:       res.RecordDate,
		DeviationMinutes: deviation,
		Status:           status,
		Fine:             amount,
	}, nil
}

// ClockOut records a departure. An activity still open at clock-out is
// finalized first so its time lands on the same business date, and in
// dual-shift groups the matching anchor is closed.
func (s *Service) ClockOut(ctx context.Context, groupID, employeeID int64) (*ClockResult, error) {
	const op = "service.ClockOut"

	unlock := s.locks.Acquire(groupID, employeeID)
	defer unlock()

	g, cfg, err := s.groupConfig(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock()

	finalized, err := s.endOpenActivityLocked(ctx, groupID, employeeID, now, nil)
	if err != nil && !errors.Is(err, ErrNoOpenActivity) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	anchor, err := s.validAnchor(ctx, groupID, employeeID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res, err := shift.Resolve(cfg, now, shift.PurposeClockOut, anchor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Positive deviation means leaving before the shift end.
	deviation := int(res.Boundary.Sub(now) / time.Minute)
	status := StatusOnTime
	amount := decimal.Zero
	if deviation > 0 {
		status = StatusEarly
		schedule, err := s.store.FineSchedule(ctx, model.EventClockOut)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		amount = fine.Amount(schedule, res.Boundary.Sub(now).Minutes())
	}

	err = s.store.RecordAttendanceEvent(ctx, store.EventParams{
		GroupID:          groupID,
		EmployeeID:       employeeID,
		RecordDate:       res.RecordDate,
		EventType:        model.EventClockOut,
		Shift:            string(res.Label),
		ShiftDetail:      string(res.Detail),
		ClockTime:        now,
		DeviationMinutes: deviation,
		Status:           status,
		Fine:             amount,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if g.DualMode {
		if err := s.store.CloseAnchor(ctx, groupID, employeeID, string(res.Label)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &ClockResult{
		EventType:        model.EventClockOut,
		Shift:            res.Label,
		Detail:           res.Detail,
		RecordDate:       res.RecordDate,
		DeviationMinutes: deviation,
		Status:           status,
		Fine:             amount,
		AutoFinalized:    finalized,
	}, nil
}
