package model

import "time"

// ShiftAnchor marks a shift as currently open for an employee. At most
// one anchor exists per (group, employee, shift); dual-mode groups may
// hold one "day" and one "night" anchor at the same time.
type ShiftAnchor struct {
	GroupID    int64     `gorm:"primaryKey;autoIncrement:false"`
	EmployeeID int64     `gorm:"primaryKey;autoIncrement:false"`
	Shift      string    `gorm:"primaryKey;size:8"`
	RecordDate time.Time `gorm:"type:date;not null"`
	OpenedAt   time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}
