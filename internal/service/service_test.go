package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"attendance-backend/internal/fine"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

type empKey struct {
	group, employee int64
}

type anchorKey struct {
	group, employee int64
	shift           string
}

// memStore is an in-memory Store for exercising the service paths
// without a database.
type memStore struct {
	mu sync.Mutex

	groups     map[int64]*model.Group
	records    map[empKey]*model.DailyRecord
	anchors    map[anchorKey]*model.ShiftAnchor
	activities map[string]model.ActivityConfig
	schedules  map[string]fine.Schedule
	counts     map[string]int

	finalized []store.FinalizeParams
	events    []store.EventParams
	cleared   []empKey
}

func newMemStore() *memStore {
	return &memStore{
		groups:     make(map[int64]*model.Group),
		records:    make(map[empKey]*model.DailyRecord),
		anchors:    make(map[anchorKey]*model.ShiftAnchor),
		activities: make(map[string]model.ActivityConfig),
		schedules:  make(map[string]fine.Schedule),
		counts:     make(map[string]int),
	}
}

func (m *memStore) DB() *gorm.DB { return nil }

func (m *memStore) GetGroup(_ context.Context, id int64) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[id], nil
}

func (m *memStore) ListGroupIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memStore) SaveGroup(_ context.Context, g *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *memStore) OpenAnchor(_ context.Context, groupID, employeeID int64, shiftLabel string, recordDate, openedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchors[anchorKey{groupID, employeeID, shiftLabel}] = &model.ShiftAnchor{
		GroupID: groupID, EmployeeID: employeeID, Shift: shiftLabel,
		RecordDate: recordDate, OpenedAt: openedAt,
	}
	return nil
}

func (m *memStore) CloseAnchor(_ context.Context, groupID, employeeID int64, shiftLabel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.anchors, anchorKey{groupID, employeeID, shiftLabel})
	return nil
}

func (m *memStore) GetAnchor(_ context.Context, groupID, employeeID int64, shiftLabel string) (*model.ShiftAnchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anchors[anchorKey{groupID, employeeID, shiftLabel}], nil
}

func (m *memStore) CurrentAnchor(_ context.Context, groupID, employeeID int64) (*model.ShiftAnchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.ShiftAnchor
	for k, a := range m.anchors {
		if k.group != groupID || k.employee != employeeID {
			continue
		}
		if latest == nil || a.OpenedAt.After(latest.OpenedAt) {
			latest = a
		}
	}
	return latest, nil
}

func (m *memStore) CountOpenAnchors(context.Context, int64, string) (int64, error) { return 0, nil }

func (m *memStore) DeleteAnchorsBefore(context.Context, int64, time.Time, time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) SweepStaleAnchors(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memStore) EnsureDailyRecord(_ context.Context, groupID, employeeID int64, nickname string) (*model.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := empKey{groupID, employeeID}
	if rec, ok := m.records[k]; ok {
		return rec, nil
	}
	rec := &model.DailyRecord{GroupID: groupID, EmployeeID: employeeID, Nickname: nickname}
	m.records[k] = rec
	return rec, nil
}

func (m *memStore) GetDailyRecord(_ context.Context, groupID, employeeID int64) (*model.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[empKey{groupID, employeeID}], nil
}

func (m *memStore) SetOpenActivity(_ context.Context, groupID, employeeID int64, activity, shiftLabel string, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[empKey{groupID, employeeID}]
	if !ok {
		rec = &model.DailyRecord{GroupID: groupID, EmployeeID: employeeID}
		m.records[empKey{groupID, employeeID}] = rec
	}
	rec.CurrentActivity = &activity
	rec.ActivityStart = &start
	rec.ActivityShift = shiftLabel
	return nil
}

func (m *memStore) SetCheckinMessage(context.Context, int64, int64, int64) error { return nil }

func (m *memStore) ClearCheckinMessage(_ context.Context, groupID, employeeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, empKey{groupID, employeeID})
	return nil
}

func (m *memStore) ListOpenActivities(_ context.Context, groupID int64) ([]model.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DailyRecord
	for k, rec := range m.records {
		if k.group == groupID && rec.CurrentActivity != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) CountActivity(_ context.Context, _, _ int64, _ time.Time, activity string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[activity], nil
}

func (m *memStore) FinalizeActivity(_ context.Context, p store.FinalizeParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, p)
	if rec, ok := m.records[empKey{p.GroupID, p.EmployeeID}]; ok {
		rec.CurrentActivity = nil
		rec.ActivityStart = nil
		rec.CheckinMessageID = nil
	}
	return nil
}

func (m *memStore) ResetDailyTotals(context.Context, int64) (int64, error) { return 0, nil }

func (m *memStore) RecordAttendanceEvent(_ context.Context, p store.EventParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, p)
	return nil
}

func (m *memStore) GetAttendanceEvent(context.Context, int64, int64, time.Time, string, string) (*model.AttendanceEvent, error) {
	return nil, nil
}

func (m *memStore) ListAttendanceEvents(context.Context, int64, time.Time) ([]model.AttendanceEvent, error) {
	return nil, nil
}

func (m *memStore) ListMissingClockOuts(context.Context, int64, time.Time) ([]model.AttendanceEvent, error) {
	return nil, nil
}

func (m *memStore) FineSchedule(_ context.Context, scope string) (fine.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedules[scope], nil
}

func (m *memStore) UpsertFineRule(context.Context, string, int, decimal.Decimal) error { return nil }

func (m *memStore) GetActivityConfig(_ context.Context, name string) (*model.ActivityConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.activities[name]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (m *memStore) ListActivityConfigs(context.Context) ([]model.ActivityConfig, error) {
	return nil, nil
}

func (m *memStore) UpsertActivityConfig(context.Context, *model.ActivityConfig) error { return nil }

func (m *memStore) ListActivityLogs(context.Context, int64, time.Time) ([]model.ActivityLog, error) {
	return nil, nil
}

func (m *memStore) ListMonthlyStats(context.Context, int64, time.Time) ([]model.MonthlyStat, error) {
	return nil, nil
}

type noteRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *noteRecorder) Notify(_ context.Context, _ int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func newTestService(t *testing.T, now time.Time) (*Service, *memStore, *noteRecorder) {
	t.Helper()
	st := newMemStore()
	timers := timer.NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	notes := &noteRecorder{}
	svc := New(st, timers, notes, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(func() time.Time { return now })
	timers.SetClock(func() time.Time { return now })
	t.Cleanup(func() { timers.StopAll(true) })

	st.groups[1] = &model.Group{
		ID: 1, DayStart: "09:00", DayEnd: "21:00",
		GraceBefore: 120, GraceAfter: 360, EndGraceBefore: 120, EndGraceAfter: 360,
		ResetHour: 4,
	}
	st.activities["break"] = model.ActivityConfig{Name: "break", LimitMinutes: 30, MaxPerDay: 3}
	st.schedules["break"] = fine.Schedule{
		10: decimal.NewFromInt(100),
		30: decimal.NewFromInt(300),
	}
	return svc, st, notes
}

func dualGroup() *model.Group {
	return &model.Group{
		ID: 2, DualMode: true, DayStart: "09:00", DayEnd: "21:00",
		GraceBefore: 120, GraceAfter: 360, EndGraceBefore: 120, EndGraceAfter: 360,
		ResetHour: 4,
	}
}

func TestStartActivityOpensSessionAndTimer(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)

	res, err := svc.StartActivity(context.Background(), 1, 100, "alice", "break")
	require.NoError(t, err)

	assert.Equal(t, "break", res.Activity)
	assert.Equal(t, 30, res.LimitMinutes)
	assert.False(t, res.OverDailyMax)
	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), res.RecordDate)

	rec := st.records[empKey{1, 100}]
	require.NotNil(t, rec.CurrentActivity)
	assert.Equal(t, "break", *rec.CurrentActivity)
	assert.Equal(t, 1, svc.Timers().Count())
}

func TestStartActivityRejectsSecondStart(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	_, err := svc.StartActivity(context.Background(), 1, 100, "alice", "break")
	require.NoError(t, err)

	_, err = svc.StartActivity(context.Background(), 1, 100, "alice", "break")
	assert.ErrorIs(t, err, ErrActivityInProgress)
}

func TestStartActivityUnknownActivity(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	_, err := svc.StartActivity(context.Background(), 1, 100, "alice", "nap")
	assert.ErrorIs(t, err, ErrUnknownActivity)
}

func TestStartActivityFlagsDailyMax(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.counts["break"] = 3

	res, err := svc.StartActivity(context.Background(), 1, 100, "alice", "break")
	require.NoError(t, err)
	assert.True(t, res.OverDailyMax)
	assert.Equal(t, 3, res.TimesUsed)
}

func TestEndActivityOvertimeAndFine(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 45, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)

	start := now.Add(-45 * time.Minute)
	activity := "break"
	st.records[empKey{1, 100}] = &model.DailyRecord{
		GroupID: 1, EmployeeID: 100,
		CurrentActivity: &activity, ActivityStart: &start, ActivityShift: "day",
	}

	res, err := svc.EndActivity(context.Background(), 1, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(45*60), res.ElapsedSeconds)
	assert.True(t, res.IsOvertime)
	assert.Equal(t, int64(15*60), res.OvertimeSeconds)
	assert.True(t, res.Fine.Equal(decimal.NewFromInt(300)), "15 minutes over lands in the 30-minute tier")

	require.Len(t, st.finalized, 1)
	p := st.finalized[0]
	assert.Equal(t, "break", p.Activity)
	assert.Equal(t, "day", p.Shift)
	assert.True(t, p.IsOvertime)
}

func TestEndActivityWithoutOpenOne(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	_, err := svc.EndActivity(context.Background(), 1, 100)
	assert.ErrorIs(t, err, ErrNoOpenActivity)
}

func TestForceFinalizeNothingOpen(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)

	res, ok, err := svc.ForceFinalize(context.Background(), 1, 100, now, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, res)
	assert.Empty(t, st.finalized)
}

func TestClockInLateFinesAndAnchors(t *testing.T) {
	now := time.Date(2026, 8, 10, 10, 15, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.groups[2] = dualGroup()
	st.schedules[model.EventClockIn] = fine.Schedule{
		30: decimal.NewFromInt(50),
		90: decimal.NewFromInt(150),
	}

	res, err := svc.ClockIn(context.Background(), 2, 100, "alice")
	require.NoError(t, err)

	assert.Equal(t, StatusLate, res.Status)
	assert.Equal(t, 75, res.DeviationMinutes)
	assert.True(t, res.Fine.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), res.RecordDate)

	a := st.anchors[anchorKey{2, 100, "day"}]
	require.NotNil(t, a, "dual-mode clock-in must open an anchor")
	assert.Equal(t, res.RecordDate, a.RecordDate)

	require.Len(t, st.events, 1)
	assert.Equal(t, model.EventClockIn, st.events[0].EventType)
	assert.Equal(t, 75, st.events[0].DeviationMinutes)
}

func TestClockInOnTimeHasNoFine(t *testing.T) {
	now := time.Date(2026, 8, 10, 8, 40, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.groups[2] = dualGroup()

	res, err := svc.ClockIn(context.Background(), 2, 100, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusOnTime, res.Status)
	assert.Equal(t, -20, res.DeviationMinutes)
	assert.True(t, res.Fine.IsZero())
}

func TestClockInOutsideEveryWindow(t *testing.T) {
	now := time.Date(2026, 8, 10, 4, 30, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.groups[2] = dualGroup()

	_, err := svc.ClockIn(context.Background(), 2, 100, "alice")
	assert.Error(t, err)
}

func TestClockOutAutoFinalizesOpenActivity(t *testing.T) {
	now := time.Date(2026, 8, 10, 21, 5, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)

	start := now.Add(-40 * time.Minute)
	activity := "break"
	st.records[empKey{1, 100}] = &model.DailyRecord{
		GroupID: 1, EmployeeID: 100,
		CurrentActivity: &activity, ActivityStart: &start, ActivityShift: "day",
	}

	res, err := svc.ClockOut(context.Background(), 1, 100)
	require.NoError(t, err)

	require.NotNil(t, res.AutoFinalized)
	assert.Equal(t, "break", res.AutoFinalized.Activity)
	assert.Len(t, st.finalized, 1)

	assert.Equal(t, StatusOnTime, res.Status)
	require.Len(t, st.events, 1)
	assert.Equal(t, model.EventClockOut, st.events[0].EventType)
}

func TestClockOutEarlyFines(t *testing.T) {
	now := time.Date(2026, 8, 10, 20, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)
	st.groups[2] = dualGroup()
	st.schedules[model.EventClockOut] = fine.Schedule{60: decimal.NewFromInt(80)}

	res, err := svc.ClockOut(context.Background(), 2, 100)
	require.NoError(t, err)
	assert.Equal(t, StatusEarly, res.Status)
	assert.Equal(t, 60, res.DeviationMinutes)
	assert.True(t, res.Fine.Equal(decimal.NewFromInt(80)))
}

func TestForcedEscalationFinalizesOnce(t *testing.T) {
	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)
	svc, st, notes := newTestService(t, now)

	start := now.Add(-(150 * time.Minute))
	activity := "break"
	st.records[empKey{1, 100}] = &model.DailyRecord{
		GroupID: 1, EmployeeID: 100,
		CurrentActivity: &activity, ActivityStart: &start, ActivityShift: "day",
	}

	err := svc.handleEscalation(context.Background(), timer.Event{
		GroupID: 1, EmployeeID: 100, Activity: "break", Shift: "day",
		Kind: timer.KindForce, OvertimeMinutes: 120,
	})
	require.NoError(t, err)
	require.Len(t, st.finalized, 1)
	assert.Equal(t, int64(120*60), st.finalized[0].OvertimeSeconds)
	assert.NotEmpty(t, notes.texts)

	// A second delivery finds nothing open and does not finalize again.
	err = svc.handleEscalation(context.Background(), timer.Event{
		GroupID: 1, EmployeeID: 100, Activity: "break", Shift: "day",
		Kind: timer.KindForce, OvertimeMinutes: 120,
	})
	require.NoError(t, err)
	assert.Len(t, st.finalized, 1)
}

func TestRecoverSessionsReArmsAndFinalizes(t *testing.T) {
	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)
	svc, st, _ := newTestService(t, now)

	breakName := "break"
	freshStart := now.Add(-10 * time.Minute)
	st.records[empKey{1, 100}] = &model.DailyRecord{
		GroupID: 1, EmployeeID: 100,
		CurrentActivity: &breakName, ActivityStart: &freshStart, ActivityShift: "day",
	}
	capStart := now.Add(-200 * time.Minute)
	st.records[empKey{1, 200}] = &model.DailyRecord{
		GroupID: 1, EmployeeID: 200,
		CurrentActivity: &breakName, ActivityStart: &capStart, ActivityShift: "day",
	}

	require.NoError(t, svc.RecoverSessions(context.Background()))

	assert.Equal(t, 1, svc.Timers().Count(), "only the fresh session is re-armed")
	require.Len(t, st.finalized, 1)
	assert.Equal(t, int64(200), st.finalized[0].EmployeeID)
}
