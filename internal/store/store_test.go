package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGetGroup(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "groups"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dual_mode", "day_start", "day_end"}).
			AddRow(42, true, "09:00", "21:00"))

	g, err := s.GetGroup(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.True(t, g.DualMode)
	assert.Equal(t, "09:00", g.DayStart)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGroupNotFoundIsNil(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "groups"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	g, err := s.GetGroup(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, g, "an unknown group is nil, not an error")
}

func TestGetDailyRecordNotFoundIsNil(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "daily_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "employee_id"}))

	rec, err := s.GetDailyRecord(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCurrentAnchorPicksMostRecent(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	opened := time.Date(2026, 8, 10, 21, 5, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "shift_anchors"`)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "employee_id", "shift", "record_date", "opened_at"}).
			AddRow(1, 100, "night", time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC), opened))

	a, err := s.CurrentAnchor(context.Background(), 1, 100)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "night", a.Shift)
	assert.Equal(t, opened, a.OpenedAt)
}

func TestCountActivitySums(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(activity_count), 0) FROM "activity_logs"`)).
		WithArgs(int64(1), int64(100), date, "break").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))

	n, err := s.CountActivity(context.Background(), 1, 100, date, "break")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFineScheduleBuildsTiers(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "fine_rules"`)).
		WithArgs("break").
		WillReturnRows(sqlmock.NewRows([]string{"scope", "threshold_minutes", "amount"}).
			AddRow("break", 10, "100").
			AddRow("break", 30, "300"))

	schedule, err := s.FineSchedule(context.Background(), "break")
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.True(t, schedule[10].Equal(decimal.NewFromInt(100)))
	assert.True(t, schedule[30].Equal(decimal.NewFromInt(300)))
}

func TestListMissingClockOuts(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	date := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "attendance_events"`)).
		WithArgs(int64(1), date, model.EventClockIn, model.EventClockOut).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "employee_id", "record_date", "event_type", "shift"}).
			AddRow(1, 200, date, model.EventClockIn, "night"))

	missing, err := s.ListMissingClockOuts(context.Background(), 1, date)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, int64(200), missing[0].EmployeeID)
	assert.Equal(t, "night", missing[0].Shift)
}

func TestResetDailyTotals(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "daily_records"`)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := s.ResetDailyTotals(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseAnchorDeletes(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "shift_anchors"`)).
		WithArgs(int64(1), int64(100), "day").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CloseAnchor(context.Background(), 1, 100, "day"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAnchorsBeforeKeepsRecentlyOpened(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	before := time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC)
	openedBefore := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "shift_anchors"`)).
		WithArgs(int64(1), before, openedBefore).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.DeleteAnchorsBefore(context.Background(), 1, before, openedBefore)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetActivityConfigNotFoundIsNil(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "activity_configs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	cfg, err := s.GetActivityConfig(context.Background(), "nap")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
