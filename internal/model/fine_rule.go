package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FineRule is one tier of a fine schedule: within Scope, an elapsed
// time up to ThresholdMinutes costs Amount. Scope is either an
// activity name or a clock event type (EventClockIn / EventClockOut).
type FineRule struct {
	Scope            string          `gorm:"primaryKey;size:64"`
	ThresholdMinutes int             `gorm:"primaryKey;autoIncrement:false"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// ActivityConfig defines an away-activity type: its minute limit before
// overtime starts and how many times per day it may be taken.
type ActivityConfig struct {
	Name         string    `gorm:"primaryKey;size:64"`
	LimitMinutes int       `gorm:"not null;default:30"`
	MaxPerDay    int       `gorm:"not null;default:3"`
	UpdatedAt    time.Time `gorm:"not null"`
}
