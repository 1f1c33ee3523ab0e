// Package timer runs one escalation loop per open activity session.
// Each loop polls elapsed time against the activity's minute limit and
// fires staged notifications, each at most once, until the session is
// stopped or forcibly terminated at the overtime cap.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attendance-backend/internal/logging"
)

// Escalation kinds delivered to the callback.
type Kind string

const (
	KindWarning Kind = "warning"
	KindTimeout Kind = "timeout"
	KindForce   Kind = "force"
)

// Event is one escalation firing.
type Event struct {
	GroupID         int64
	EmployeeID      int64
	Activity        string
	Shift           string
	Kind            Kind
	OvertimeMinutes int
}

// Callback handles an escalation. A KindForce event must finalize the
// session (the loop has already stopped by the time it is invoked).
type Callback func(ctx context.Context, ev Event) error

const (
	defaultPoll       = 10 * time.Second
	defaultErrBackoff = 30 * time.Second
	// Forced termination fires once overtime reaches this many minutes.
	ForceOvertimeMinutes = 120
)

type session struct {
	groupID    int64
	employeeID int64
	activity   string
	shift      string
	limit      time.Duration
	startedAt  time.Time

	cancel context.CancelFunc
	fired  map[string]bool
	forced bool
}

func (s *session) key() string {
	return sessionKey(s.groupID, s.employeeID)
}

func sessionKey(groupID, employeeID int64) string {
	return fmt.Sprintf("%d-%d", groupID, employeeID)
}

// Info is a read-only snapshot of one session.
type Info struct {
	GroupID          int64     `json:"group_id"`
	EmployeeID       int64     `json:"employee_id"`
	Activity         string    `json:"activity"`
	Shift            string    `json:"shift"`
	StartedAt        time.Time `json:"started_at"`
	ElapsedSeconds   int64     `json:"elapsed_seconds"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// Manager owns every running session loop, keyed by group+employee.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	cb  Callback
	log *slog.Logger

	poll       time.Duration
	errBackoff time.Duration
	clock      func() time.Time

	// ClearMessage, when set, is invoked on a stop that does not
	// preserve the attached reference message.
	ClearMessage func(groupID, employeeID int64)
}

// NewManager creates a session manager. The escalation callback is set
// separately because it closes over the service that owns the manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*session),
		log:        log,
		poll:       defaultPoll,
		errBackoff: defaultErrBackoff,
		clock:      time.Now,
	}
}

// SetCallback installs the escalation handler. Must be called before
// the first Start.
func (m *Manager) SetCallback(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

// SetPollInterval overrides the poll cadence, for tests.
func (m *Manager) SetPollInterval(poll, errBackoff time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poll = poll
	m.errBackoff = errBackoff
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Start begins a session loop, cancelling any prior session for the
// same employee. startedAt may lie in the past when re-arming a
// persisted session after a restart.
func (m *Manager) Start(groupID, employeeID int64, activity string, limitMinutes int, shiftLabel string, startedAt time.Time) bool {
	m.mu.Lock()
	if m.cb == nil {
		m.mu.Unlock()
		m.log.Error("timer callback not set, refusing to start session")
		return false
	}

	key := sessionKey(groupID, employeeID)
	if old, ok := m.sessions[key]; ok {
		old.cancel()
		delete(m.sessions, key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		groupID:    groupID,
		employeeID: employeeID,
		activity:   activity,
		shift:      shiftLabel,
		limit:      time.Duration(limitMinutes) * time.Minute,
		startedAt:  startedAt,
		cancel:     cancel,
		fired:      make(map[string]bool),
	}
	m.sessions[key] = s
	m.mu.Unlock()

	go m.run(ctx, s)
	m.log.Info("session timer started",
		slog.Int64("group", groupID), slog.Int64("employee", employeeID),
		slog.String("activity", activity), slog.String("shift", shiftLabel))
	return true
}

// Stop cancels an employee's session loop without finalizing it. When
// preserveMessage is false the attached reference message is cleared.
func (m *Manager) Stop(groupID, employeeID int64, preserveMessage bool) {
	m.mu.Lock()
	key := sessionKey(groupID, employeeID)
	s, ok := m.sessions[key]
	if ok {
		s.cancel()
		delete(m.sessions, key)
	}
	clear := m.ClearMessage
	m.mu.Unlock()

	if ok && !preserveMessage && clear != nil {
		clear(groupID, employeeID)
	}
}

// StopGroup cancels every session loop of one group.
func (m *Manager) StopGroup(groupID int64, preserveMessage bool) {
	for _, s := range m.snapshotSessions() {
		if s.groupID == groupID {
			m.Stop(s.groupID, s.employeeID, preserveMessage)
		}
	}
}

// StopAll cancels every session loop.
func (m *Manager) StopAll(preserveMessage bool) {
	for _, s := range m.snapshotSessions() {
		m.Stop(s.groupID, s.employeeID, preserveMessage)
	}
}

// Count reports the number of running sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CountGroup reports the number of running sessions in one group.
func (m *Manager) CountGroup(groupID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.groupID == groupID {
			n++
		}
	}
	return n
}

// Snapshot lists every running session.
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		elapsed := now.Sub(s.startedAt)
		remaining := s.limit - elapsed
		if remaining < 0 {
			remaining = 0
		}
		infos = append(infos, Info{
			GroupID:          s.groupID,
			EmployeeID:       s.employeeID,
			Activity:         s.activity,
			Shift:            s.shift,
			StartedAt:        s.startedAt,
			ElapsedSeconds:   int64(elapsed.Seconds()),
			RemainingSeconds: int64(remaining.Seconds()),
		})
	}
	return infos
}

func (m *Manager) snapshotSessions() []*session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// run is the escalation loop. Thresholds are evaluated on entry and
// then every poll interval; errors from the callback back the loop off
// without killing it, and cancellation is the only path that exits
// without finalizing.
func (m *Manager) run(ctx context.Context, s *session) {
	for {
		if done := m.evaluate(ctx, s); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.poll):
		}
	}
}

// evaluate runs one pass over the thresholds. Returns true when the
// loop should exit (forced termination handed off to the callback).
func (m *Manager) evaluate(ctx context.Context, s *session) bool {
	now := m.clock()
	elapsed := now.Sub(s.startedAt)
	remaining := s.limit - elapsed

	if remaining > 0 && remaining <= time.Minute {
		m.fire(ctx, s, "warn", Event{Kind: KindWarning, OvertimeMinutes: 1})
		return false
	}

	if remaining > 0 {
		return false
	}

	overtime := int((-remaining) / time.Minute)
	switch {
	case overtime == 0:
		m.fire(ctx, s, "t0", Event{Kind: KindTimeout, OvertimeMinutes: 0})
	case overtime == 5:
		m.fire(ctx, s, "t5", Event{Kind: KindTimeout, OvertimeMinutes: 5})
	case overtime >= 10 && overtime%10 == 0:
		m.fire(ctx, s, fmt.Sprintf("t%d", overtime), Event{Kind: KindTimeout, OvertimeMinutes: overtime})
	}

	if overtime >= ForceOvertimeMinutes && !s.forced {
		s.forced = true
		// Remove the session before finalizing so a racing Stop is a
		// no-op; the callback's own persistence check makes the
		// finalization itself at most once.
		m.mu.Lock()
		if cur, ok := m.sessions[s.key()]; ok && cur == s {
			delete(m.sessions, s.key())
		}
		m.mu.Unlock()

		ev := Event{
			GroupID: s.groupID, EmployeeID: s.employeeID,
			Activity: s.activity, Shift: s.shift,
			Kind: KindForce, OvertimeMinutes: overtime,
		}
		if err := m.cb(ctx, ev); err != nil {
			m.log.Error("forced termination failed", logging.Err(err),
				slog.Int64("group", s.groupID), slog.Int64("employee", s.employeeID))
		}
		return true
	}
	return false
}

// fire delivers one escalation at most once per threshold key.
func (m *Manager) fire(ctx context.Context, s *session, thresholdKey string, ev Event) {
	if s.fired[thresholdKey] {
		return
	}
	s.fired[thresholdKey] = true

	ev.GroupID = s.groupID
	ev.EmployeeID = s.employeeID
	ev.Activity = s.activity
	ev.Shift = s.shift

	if err := m.cb(ctx, ev); err != nil {
		m.log.Error("escalation callback failed", logging.Err(err),
			slog.Int64("group", s.groupID), slog.Int64("employee", s.employeeID),
			slog.String("kind", string(ev.Kind)))
		select {
		case <-ctx.Done():
		case <-time.After(m.errBackoff):
		}
	}
}
