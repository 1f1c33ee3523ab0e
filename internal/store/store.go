// Package store persists the attendance entities behind a single
// interface. All multi-row mutations run inside one transaction and
// use upsert semantics, so the bounded retries applied on top of them
// are safe to repeat.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"attendance-backend/internal/fine"
	"attendance-backend/internal/model"
)

// FinalizeParams describes one completed (or force-completed) activity.
type FinalizeParams struct {
	GroupID         int64
	EmployeeID      int64
	Activity        string
	Shift           string
	RecordDate      time.Time
	ElapsedSeconds  int64
	IsOvertime      bool
	OvertimeSeconds int64
	Fine            decimal.Decimal
}

// EventParams describes one clock-in or clock-out to persist.
type EventParams struct {
	GroupID          int64
	EmployeeID       int64
	RecordDate       time.Time
	EventType        string
	Shift            string
	ShiftDetail      string
	ClockTime        time.Time
	DeviationMinutes int
	Status           string
	Fine             decimal.Decimal
}

// Store defines all database operations of the attendance engine.
type Store interface {
	DB() *gorm.DB

	// Groups
	GetGroup(ctx context.Context, id int64) (*model.Group, error)
	ListGroupIDs(ctx context.Context) ([]int64, error)
	SaveGroup(ctx context.Context, g *model.Group) error

	// Shift anchors
	OpenAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string, recordDate, openedAt time.Time) error
	CloseAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string) error
	GetAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string) (*model.ShiftAnchor, error)
	CurrentAnchor(ctx context.Context, groupID, employeeID int64) (*model.ShiftAnchor, error)
	CountOpenAnchors(ctx context.Context, groupID int64, shiftLabel string) (int64, error)
	DeleteAnchorsBefore(ctx context.Context, groupID int64, before, openedBefore time.Time) (int64, error)
	SweepStaleAnchors(ctx context.Context, openedBefore time.Time) (int64, error)

	// Daily records and open activities
	EnsureDailyRecord(ctx context.Context, groupID, employeeID int64, nickname string) (*model.DailyRecord, error)
	GetDailyRecord(ctx context.Context, groupID, employeeID int64) (*model.DailyRecord, error)
	SetOpenActivity(ctx context.Context, groupID, employeeID int64, activity, shiftLabel string, start time.Time) error
	SetCheckinMessage(ctx context.Context, groupID, employeeID, messageID int64) error
	ClearCheckinMessage(ctx context.Context, groupID, employeeID int64) error
	ListOpenActivities(ctx context.Context, groupID int64) ([]model.DailyRecord, error)
	CountActivity(ctx context.Context, groupID, employeeID int64, recordDate time.Time, activity string) (int, error)
	FinalizeActivity(ctx context.Context, p FinalizeParams) error
	ResetDailyTotals(ctx context.Context, groupID int64) (int64, error)

	// Attendance events
	RecordAttendanceEvent(ctx context.Context, p EventParams) error
	GetAttendanceEvent(ctx context.Context, groupID, employeeID int64, recordDate time.Time, eventType, shiftLabel string) (*model.AttendanceEvent, error)
	ListAttendanceEvents(ctx context.Context, groupID int64, recordDate time.Time) ([]model.AttendanceEvent, error)
	ListMissingClockOuts(ctx context.Context, groupID int64, recordDate time.Time) ([]model.AttendanceEvent, error)

	// Fine schedules and activity configuration
	FineSchedule(ctx context.Context, scope string) (fine.Schedule, error)
	UpsertFineRule(ctx context.Context, scope string, thresholdMinutes int, amount decimal.Decimal) error
	GetActivityConfig(ctx context.Context, name string) (*model.ActivityConfig, error)
	ListActivityConfigs(ctx context.Context) ([]model.ActivityConfig, error)
	UpsertActivityConfig(ctx context.Context, cfg *model.ActivityConfig) error

	// Historical reads (export, reports)
	ListActivityLogs(ctx context.Context, groupID int64, recordDate time.Time) ([]model.ActivityLog, error)
	ListMonthlyStats(ctx context.Context, groupID int64, monthStart time.Time) ([]model.MonthlyStat, error)
}

// gormStore implements Store using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the raw handle for read-only API queries.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

const (
	retryAttempts = 3
	retryBackoff  = 100 * time.Millisecond
)

// withRetry repeats a write a bounded number of times with backoff.
// Every write in this package is an upsert, so repeating after a
// half-failed attempt cannot double-apply.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff << attempt):
		}
	}
	return err
}
