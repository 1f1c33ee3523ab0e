package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Attendance event types.
const (
	EventClockIn  = "clock_in"
	EventClockOut = "clock_out"
)

// AttendanceEvent is one persisted clock-in or clock-out. Corrections
// are new writes against the same key (upsert), never in-place edits of
// history elsewhere.
type AttendanceEvent struct {
	GroupID    int64     `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID int64     `gorm:"primaryKey;autoIncrement:false"`
	RecordDate time.Time `gorm:"primaryKey;type:date"`
	EventType  string    `gorm:"primaryKey;size:12"`
	Shift      string    `gorm:"primaryKey;size:8"`

	ShiftDetail string          `gorm:"size:16"`
	ClockTime   time.Time       `gorm:"not null"`
	// DeviationMinutes is positive when late (clock-in) or early
	// (clock-out) relative to the shift boundary.
	DeviationMinutes int             `gorm:"not null;default:0"`
	Status           string          `gorm:"size:8;not null;default:'ontime'"`
	Fine             decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt        time.Time       `gorm:"not null"`
}
