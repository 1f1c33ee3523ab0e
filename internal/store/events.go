package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/model"
)

// RecordAttendanceEvent persists one clock event transactionally. A
// tardiness fine feeds the hot row and the monthly aggregate; a
// clock-out with a matching clock-in additionally accrues the derived
// work-hours and work-days aggregates.
func (s *gormStore) RecordAttendanceEvent(ctx context.Context, p EventParams) error {
	monthStart := time.Date(p.RecordDate.Year(), p.RecordDate.Month(), 1, 0, 0, 0, 0, p.RecordDate.Location())

	return withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			event := model.AttendanceEvent{
				GroupID:          p.GroupID,
				EmployeeID:       p.EmployeeID,
				RecordDate:       p.RecordDate,
				EventType:        p.EventType,
				Shift:            p.Shift,
				ShiftDetail:      p.ShiftDetail,
				ClockTime:        p.ClockTime,
				DeviationMinutes: p.DeviationMinutes,
				Status:           p.Status,
				Fine:             p.Fine,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "group_id"}, {Name: "employee_id"}, {Name: "record_date"},
					{Name: "event_type"}, {Name: "shift"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"shift_detail", "clock_time", "deviation_minutes", "status", "fine",
				}),
			}).Create(&event).Error; err != nil {
				return fmt.Errorf("failed to upsert attendance event: %w", err)
			}

			if p.Fine.IsPositive() {
				if err := tx.Model(&model.DailyRecord{}).
					Where("group_id = ? AND employee_id = ?", p.GroupID, p.EmployeeID).
					Update("total_fines", gorm.Expr("total_fines + ?", p.Fine)).Error; err != nil {
					return fmt.Errorf("failed to add clock fine: %w", err)
				}
				if err := upsertMonthly(tx, p.GroupID, p.EmployeeID, monthStart,
					p.EventType+"_fines", p.Shift, 0, 0, p.Fine); err != nil {
					return err
				}
			}

			if p.EventType == model.EventClockOut {
				if err := s.accrueWorkHours(tx, p); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// accrueWorkHours derives the worked span from the matching clock-in of
// the same record date and shift. A shift spanning midnight yields an
// end time before its start; a day is added in that case.
func (s *gormStore) accrueWorkHours(tx *gorm.DB, p EventParams) error {
	var in model.AttendanceEvent
	err := tx.
		Where("group_id = ? AND employee_id = ? AND record_date = ? AND event_type = ? AND shift = ?",
			p.GroupID, p.EmployeeID, p.RecordDate, model.EventClockIn, p.Shift).
		First(&in).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch matching clock-in: %w", err)
	}

	end := p.ClockTime
	if end.Before(in.ClockTime) {
		end = end.AddDate(0, 0, 1)
	}
	workSeconds := int64(end.Sub(in.ClockTime).Seconds())
	if workSeconds <= 0 {
		return nil
	}

	monthStart := time.Date(p.RecordDate.Year(), p.RecordDate.Month(), 1, 0, 0, 0, 0, p.RecordDate.Location())
	if err := upsertMonthly(tx, p.GroupID, p.EmployeeID, monthStart, "work_hours", p.Shift, 0, workSeconds, decimalZero()); err != nil {
		return err
	}
	return upsertMonthly(tx, p.GroupID, p.EmployeeID, monthStart, "work_days", p.Shift, 1, 0, decimalZero())
}

// GetAttendanceEvent fetches one clock event, or nil.
func (s *gormStore) GetAttendanceEvent(ctx context.Context, groupID, employeeID int64, recordDate time.Time, eventType, shiftLabel string) (*model.AttendanceEvent, error) {
	var e model.AttendanceEvent
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND employee_id = ? AND record_date = ? AND event_type = ? AND shift = ?",
			groupID, employeeID, recordDate, eventType, shiftLabel).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendance event: %w", err)
	}
	return &e, nil
}

// ListAttendanceEvents returns every clock event of a group for one
// record date.
func (s *gormStore) ListAttendanceEvents(ctx context.Context, groupID int64, recordDate time.Time) ([]model.AttendanceEvent, error) {
	var events []model.AttendanceEvent
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND record_date = ?", groupID, recordDate).
		Order("employee_id, event_type").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance events: %w", err)
	}
	return events, nil
}

// ListMissingClockOuts returns clock-ins on a record date that have no
// matching clock-out, used by the dual-mode rollover to synthesize the
// missing events.
func (s *gormStore) ListMissingClockOuts(ctx context.Context, groupID int64, recordDate time.Time) ([]model.AttendanceEvent, error) {
	var ins []model.AttendanceEvent
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND record_date = ? AND event_type = ?", groupID, recordDate, model.EventClockIn).
		Where(`NOT EXISTS (
			SELECT 1 FROM attendance_events o
			WHERE o.group_id = attendance_events.group_id
			  AND o.employee_id = attendance_events.employee_id
			  AND o.record_date = attendance_events.record_date
			  AND o.shift = attendance_events.shift
			  AND o.event_type = ?
		)`, model.EventClockOut).
		Find(&ins).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list missing clock-outs: %w", err)
	}
	return ins, nil
}
