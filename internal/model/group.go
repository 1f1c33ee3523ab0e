package model

import "time"

// Group holds the per-chat-group attendance configuration. Rows are
// mutated only by admin actions and are read on every inbound event.
type Group struct {
	ID        int64     `gorm:"primaryKey"`
	Title     string    `gorm:"size:256"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Shift window configuration. DayStart/DayEnd are "HH:MM" local
	// times-of-day; grace values are minutes around the boundary.
	DualMode        bool   `gorm:"not null;default:false"`
	DayStart        string `gorm:"size:5;not null;default:'09:00'"`
	DayEnd          string `gorm:"size:5;not null;default:'21:00'"`
	GraceBefore     int    `gorm:"not null;default:120"`
	GraceAfter      int    `gorm:"not null;default:360"`
	EndGraceBefore  int    `gorm:"not null;default:120"`
	EndGraceAfter   int    `gorm:"not null;default:360"`

	// Daily rollover times. A zero soft-reset time disables the soft
	// reset for the group.
	ResetHour       int `gorm:"not null;default:0"`
	ResetMinute     int `gorm:"not null;default:0"`
	SoftResetHour   int `gorm:"not null;default:0"`
	SoftResetMinute int `gorm:"not null;default:0"`
}
