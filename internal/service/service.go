// Package service implements the attendance engine's operations:
// activity start/end, clock-in/out, forced termination and session
// recovery. Every mutation for one employee runs under that employee's
// lock; the control flow is always lock, resolve, business checks,
// persist, then (re)arm a timer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attendance-backend/internal/lock"
	"attendance-backend/internal/logging"
	"attendance-backend/internal/model"
	"attendance-backend/internal/notify"
	"attendance-backend/internal/shift"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

var (
	ErrUnknownGroup       = errors.New("unknown group")
	ErrUnknownActivity    = errors.New("unknown activity")
	ErrActivityInProgress = errors.New("activity already in progress")
	ErrNoOpenActivity     = errors.New("no open activity")
)

// AnchorMaxAge is how long an anchor stays valid without a matching
// clock-out. Older anchors are ignored by routine flows and swept by
// the rollover loop.
const AnchorMaxAge = 16 * time.Hour

// Service wires the resolver, stores, timers and notifier together.
type Service struct {
	store    store.Store
	locks    *lock.EmployeeLocks
	timers   *timer.Manager
	notifier notify.Notifier
	log      *slog.Logger
	clock    func() time.Time
}

// New constructs the service and installs itself as the timer
// escalation handler.
func New(st store.Store, timers *timer.Manager, notifier notify.Notifier, log *slog.Logger) *Service {
	s := &Service{
		store:    st,
		locks:    lock.NewEmployeeLocks(24 * time.Hour),
		timers:   timers,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
	timers.SetCallback(s.handleEscalation)
	timers.ClearMessage = func(groupID, employeeID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.ClearCheckinMessage(ctx, groupID, employeeID); err != nil {
			log.Warn("failed to clear checkin message", logging.Err(err),
				slog.Int64("group", groupID), slog.Int64("employee", employeeID))
		}
	}
	return s
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Timers exposes the session manager for status endpoints.
func (s *Service) Timers() *timer.Manager { return s.timers }

// Locks exposes the per-employee lock registry for callers that need
// to wrap their own multi-step sequences (rollover).
func (s *Service) Locks() *lock.EmployeeLocks { return s.locks }

// Store exposes the persistence layer.
func (s *Service) Store() store.Store { return s.store }

// groupConfig loads and parses one group's shift configuration.
func (s *Service) groupConfig(ctx context.Context, groupID int64) (*model.Group, shift.Config, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, shift.Config{}, err
	}
	if g == nil {
		return nil, shift.Config{}, fmt.Errorf("group %d: %w", groupID, ErrUnknownGroup)
	}
	cfg, err := shift.ConfigFromGroup(g)
	if err != nil {
		return nil, shift.Config{}, fmt.Errorf("group %d: %w", groupID, err)
	}
	return g, cfg, nil
}

// validAnchor returns the employee's most recent anchor if it is still
// fresh; stale anchors are treated as absent.
func (s *Service) validAnchor(ctx context.Context, groupID, employeeID int64, now time.Time) (*shift.Anchor, error) {
	a, err := s.store.CurrentAnchor(ctx, groupID, employeeID)
	if err != nil {
		return nil, err
	}
	if a == nil || now.Sub(a.OpenedAt) > AnchorMaxAge {
		return nil, nil
	}
	return &shift.Anchor{
		Label:      shift.Label(a.Shift),
		RecordDate: a.RecordDate,
		OpenedAt:   a.OpenedAt,
	}, nil
}

func (s *Service) notifyGroup(ctx context.Context, groupID int64, text string) {
	if err := s.notifier.Notify(ctx, groupID, text); err != nil {
		s.log.Warn("notification failed", logging.Err(err), slog.Int64("group", groupID))
	}
}
