package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/fine"
	"attendance-backend/internal/model"
)

func decimalZero() decimal.Decimal { return decimal.Zero }

// upsertMonthly adds counts/seconds/fines onto one monthly aggregate
// row. Shared by activity finalization and clock-event accrual.
func upsertMonthly(tx *gorm.DB, groupID, employeeID int64, monthStart time.Time, activity, shiftLabel string, count int, seconds int64, fines decimal.Decimal) error {
	row := model.MonthlyStat{
		GroupID:            groupID,
		EmployeeID:         employeeID,
		MonthStart:         monthStart,
		Activity:           activity,
		Shift:              shiftLabel,
		ActivityCount:      count,
		AccumulatedSeconds: seconds,
		Fines:              fines,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "group_id"}, {Name: "employee_id"}, {Name: "month_start"},
			{Name: "activity"}, {Name: "shift"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"activity_count":      gorm.Expr("monthly_stats.activity_count + ?", count),
			"accumulated_seconds": gorm.Expr("monthly_stats.accumulated_seconds + ?", seconds),
			"fines":               gorm.Expr("monthly_stats.fines + ?", fines),
			"updated_at":          time.Now(),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert monthly stat %q: %w", activity, err)
	}
	return nil
}

// FineSchedule loads the tiered schedule for a scope (an activity name
// or a clock event type).
func (s *gormStore) FineSchedule(ctx context.Context, scope string) (fine.Schedule, error) {
	var rules []model.FineRule
	err := s.db.WithContext(ctx).Where("scope = ?", scope).Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load fine schedule %q: %w", scope, err)
	}
	schedule := make(fine.Schedule, len(rules))
	for _, r := range rules {
		schedule[r.ThresholdMinutes] = r.Amount
	}
	return schedule, nil
}

// UpsertFineRule creates or replaces one tier of a fine schedule.
func (s *gormStore) UpsertFineRule(ctx context.Context, scope string, thresholdMinutes int, amount decimal.Decimal) error {
	rule := model.FineRule{Scope: scope, ThresholdMinutes: thresholdMinutes, Amount: amount}
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "threshold_minutes"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).Create(&rule).Error
		if err != nil {
			return fmt.Errorf("failed to upsert fine rule %s/%d: %w", scope, thresholdMinutes, err)
		}
		return nil
	})
}

// GetActivityConfig fetches one activity definition, or nil.
func (s *gormStore) GetActivityConfig(ctx context.Context, name string) (*model.ActivityConfig, error) {
	var cfg model.ActivityConfig
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activity config %q: %w", name, err)
	}
	return &cfg, nil
}

// ListActivityConfigs returns every configured activity type.
func (s *gormStore) ListActivityConfigs(ctx context.Context) ([]model.ActivityConfig, error) {
	var cfgs []model.ActivityConfig
	if err := s.db.WithContext(ctx).Order("name").Find(&cfgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list activity configs: %w", err)
	}
	return cfgs, nil
}

// UpsertActivityConfig creates or replaces one activity definition.
func (s *gormStore) UpsertActivityConfig(ctx context.Context, cfg *model.ActivityConfig) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"limit_minutes", "max_per_day", "updated_at"}),
		}).Create(cfg).Error
		if err != nil {
			return fmt.Errorf("failed to upsert activity config %q: %w", cfg.Name, err)
		}
		return nil
	})
}

// ListActivityLogs returns a group's per-activity rows for one record
// date, for export and reports.
func (s *gormStore) ListActivityLogs(ctx context.Context, groupID int64, recordDate time.Time) ([]model.ActivityLog, error) {
	var logs []model.ActivityLog
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND record_date = ?", groupID, recordDate).
		Order("employee_id, activity").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	return logs, nil
}

// ListMonthlyStats returns a group's monthly aggregates for one month.
func (s *gormStore) ListMonthlyStats(ctx context.Context, groupID int64, monthStart time.Time) ([]model.MonthlyStat, error) {
	var stats []model.MonthlyStat
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND month_start = ?", groupID, monthStart).
		Order("employee_id, activity").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list monthly stats: %w", err)
	}
	return stats, nil
}
