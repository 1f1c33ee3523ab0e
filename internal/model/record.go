package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyRecord is the hot per-employee row: the currently open activity
// plus the running totals shown in daily views. Running totals are
// zeroed by both reset flavors; historical rows live in ActivityLog and
// MonthlyStat and survive resets.
type DailyRecord struct {
	GroupID    int64  `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID int64  `gorm:"primaryKey;autoIncrement:false"`
	Nickname   string `gorm:"size:128"`

	CurrentActivity   *string    `gorm:"size:64"`
	ActivityStart     *time.Time
	ActivityShift     string `gorm:"size:8"`
	CheckinMessageID  *int64

	AccumulatedSeconds int64           `gorm:"not null;default:0"`
	ActivityCount      int             `gorm:"not null;default:0"`
	TotalFines         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	OvertimeCount      int             `gorm:"not null;default:0"`
	OvertimeSeconds    int64           `gorm:"not null;default:0"`

	LastUpdated time.Time `gorm:"type:date"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// ActivityLog is the append-only per-activity aggregate, keyed by
// business date. Rows accumulate via additive upserts and are never
// deleted by resets.
type ActivityLog struct {
	GroupID            int64     `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID         int64     `gorm:"primaryKey;autoIncrement:false"`
	RecordDate         time.Time `gorm:"primaryKey;type:date"`
	Activity           string    `gorm:"primaryKey;size:64"`
	Shift              string    `gorm:"primaryKey;size:8"`
	ActivityCount      int       `gorm:"not null;default:0"`
	AccumulatedSeconds int64     `gorm:"not null;default:0"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// MonthlyStat mirrors ActivityLog at month granularity. MonthStart is
// always the first day of the month. Untouched by both reset flavors.
type MonthlyStat struct {
	GroupID            int64           `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID         int64           `gorm:"primaryKey;autoIncrement:false"`
	MonthStart         time.Time       `gorm:"primaryKey;type:date"`
	Activity           string          `gorm:"primaryKey;size:64"`
	Shift              string          `gorm:"primaryKey;size:8"`
	ActivityCount      int             `gorm:"not null;default:0"`
	AccumulatedSeconds int64           `gorm:"not null;default:0"`
	Fines              decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	UpdatedAt          time.Time       `gorm:"not null"`
}
