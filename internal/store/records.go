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

// EnsureDailyRecord fetches the employee's hot row, creating it on
// first contact.
func (s *gormStore) EnsureDailyRecord(ctx context.Context, groupID, employeeID int64, nickname string) (*model.DailyRecord, error) {
	rec := model.DailyRecord{GroupID: groupID, EmployeeID: employeeID, Nickname: nickname}
	err := withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "employee_id"}},
			DoNothing: true,
		}).Create(&rec).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure daily record for employee %d: %w", employeeID, err)
	}
	return s.GetDailyRecord(ctx, groupID, employeeID)
}

// GetDailyRecord fetches the employee's hot row, or nil when unknown.
func (s *gormStore) GetDailyRecord(ctx context.Context, groupID, employeeID int64) (*model.DailyRecord, error) {
	var rec model.DailyRecord
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND employee_id = ?", groupID, employeeID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily record: %w", err)
	}
	return &rec, nil
}

// SetOpenActivity marks an activity as in progress on the hot row.
func (s *gormStore) SetOpenActivity(ctx context.Context, groupID, employeeID int64, activity, shiftLabel string, start time.Time) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Model(&model.DailyRecord{}).
			Where("group_id = ? AND employee_id = ?", groupID, employeeID).
			Updates(map[string]interface{}{
				"current_activity": activity,
				"activity_start":   start,
				"activity_shift":   shiftLabel,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to set open activity: %w", err)
		}
		return nil
	})
}

// SetCheckinMessage attaches the reference message id used for later
// edits of the activity card.
func (s *gormStore) SetCheckinMessage(ctx context.Context, groupID, employeeID, messageID int64) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Model(&model.DailyRecord{}).
			Where("group_id = ? AND employee_id = ?", groupID, employeeID).
			Update("checkin_message_id", messageID).Error
		if err != nil {
			return fmt.Errorf("failed to set checkin message: %w", err)
		}
		return nil
	})
}

// ClearCheckinMessage drops the attached reference message id.
func (s *gormStore) ClearCheckinMessage(ctx context.Context, groupID, employeeID int64) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Model(&model.DailyRecord{}).
			Where("group_id = ? AND employee_id = ?", groupID, employeeID).
			Update("checkin_message_id", nil).Error
		if err != nil {
			return fmt.Errorf("failed to clear checkin message: %w", err)
		}
		return nil
	})
}

// ListOpenActivities returns every hot row in a group with an activity
// in progress.
func (s *gormStore) ListOpenActivities(ctx context.Context, groupID int64) ([]model.DailyRecord, error) {
	var recs []model.DailyRecord
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND current_activity IS NOT NULL", groupID).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open activities: %w", err)
	}
	return recs, nil
}

// CountActivity returns how many times an employee has taken an
// activity on a business date, across shifts.
func (s *gormStore) CountActivity(ctx context.Context, groupID, employeeID int64, recordDate time.Time, activity string) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.ActivityLog{}).
		Where("group_id = ? AND employee_id = ? AND record_date = ? AND activity = ?",
			groupID, employeeID, recordDate, activity).
		Select("COALESCE(SUM(activity_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count activity %q: %w", activity, err)
	}
	return int(total), nil
}

// FinalizeActivity completes one activity as a single transaction:
// the append-only per-activity row and the monthly aggregate take
// additive upserts, and the hot row's running totals advance while its
// open-activity pointer clears.
func (s *gormStore) FinalizeActivity(ctx context.Context, p FinalizeParams) error {
	monthStart := time.Date(p.RecordDate.Year(), p.RecordDate.Month(), 1, 0, 0, 0, 0, p.RecordDate.Location())

	return withRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			logRow := model.ActivityLog{
				GroupID:            p.GroupID,
				EmployeeID:         p.EmployeeID,
				RecordDate:         p.RecordDate,
				Activity:           p.Activity,
				Shift:              p.Shift,
				ActivityCount:      1,
				AccumulatedSeconds: p.ElapsedSeconds,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "group_id"}, {Name: "employee_id"}, {Name: "record_date"},
					{Name: "activity"}, {Name: "shift"},
				},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"activity_count":      gorm.Expr("activity_logs.activity_count + 1"),
					"accumulated_seconds": gorm.Expr("activity_logs.accumulated_seconds + ?", p.ElapsedSeconds),
					"updated_at":          time.Now(),
				}),
			}).Create(&logRow).Error; err != nil {
				return fmt.Errorf("failed to upsert activity log: %w", err)
			}

			monthRow := model.MonthlyStat{
				GroupID:            p.GroupID,
				EmployeeID:         p.EmployeeID,
				MonthStart:         monthStart,
				Activity:           p.Activity,
				Shift:              p.Shift,
				ActivityCount:      1,
				AccumulatedSeconds: p.ElapsedSeconds,
				Fines:              p.Fine,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "group_id"}, {Name: "employee_id"}, {Name: "month_start"},
					{Name: "activity"}, {Name: "shift"},
				},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"activity_count":      gorm.Expr("monthly_stats.activity_count + 1"),
					"accumulated_seconds": gorm.Expr("monthly_stats.accumulated_seconds + ?", p.ElapsedSeconds),
					"fines":               gorm.Expr("monthly_stats.fines + ?", p.Fine),
					"updated_at":          time.Now(),
				}),
			}).Create(&monthRow).Error; err != nil {
				return fmt.Errorf("failed to upsert monthly stat: %w", err)
			}

			updates := map[string]interface{}{
				"accumulated_seconds": gorm.Expr("accumulated_seconds + ?", p.ElapsedSeconds),
				"activity_count":      gorm.Expr("activity_count + 1"),
				"total_fines":         gorm.Expr("total_fines + ?", p.Fine),
				"current_activity":    nil,
				"activity_start":      nil,
				"checkin_message_id":  nil,
				"last_updated":        p.RecordDate,
			}
			if p.IsOvertime {
				updates["overtime_count"] = gorm.Expr("overtime_count + 1")
				updates["overtime_seconds"] = gorm.Expr("overtime_seconds + ?", p.OvertimeSeconds)
			}
			if err := tx.Model(&model.DailyRecord{}).
				Where("group_id = ? AND employee_id = ?", p.GroupID, p.EmployeeID).
				Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update daily record: %w", err)
			}
			return nil
		})
	})
}

// ResetDailyTotals zeroes every running total in a group and clears any
// open-activity pointer. Append-only rows and monthly aggregates are
// not touched.
func (s *gormStore) ResetDailyTotals(ctx context.Context, groupID int64) (int64, error) {
	var affected int64
	err := withRetry(ctx, func() error {
		res := s.db.WithContext(ctx).Model(&model.DailyRecord{}).
			Where("group_id = ?", groupID).
			Updates(map[string]interface{}{
				"accumulated_seconds": 0,
				"activity_count":      0,
				"total_fines":         0,
				"overtime_count":      0,
				"overtime_seconds":    0,
				"current_activity":    nil,
				"activity_start":      nil,
				"checkin_message_id":  nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reset daily totals: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	return affected, err
}
