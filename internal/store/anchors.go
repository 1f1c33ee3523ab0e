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

// OpenAnchor records that a shift is now open for an employee. The
// write replaces any prior anchor for the same label, keeping the
// at-most-one-per-label invariant.
func (s *gormStore) OpenAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string, recordDate, openedAt time.Time) error {
	anchor := model.ShiftAnchor{
		GroupID:    groupID,
		EmployeeID: employeeID,
		Shift:      shiftLabel,
		RecordDate: recordDate,
		OpenedAt:   openedAt,
	}
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "group_id"}, {Name: "employee_id"}, {Name: "shift"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"record_date", "opened_at", "updated_at"}),
		}).Create(&anchor).Error
		if err != nil {
			return fmt.Errorf("failed to open anchor for employee %d: %w", employeeID, err)
		}
		return nil
	})
}

// CloseAnchor removes the anchor for a shift label.
func (s *gormStore) CloseAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).
			Where("group_id = ? AND employee_id = ? AND shift = ?", groupID, employeeID, shiftLabel).
			Delete(&model.ShiftAnchor{}).Error
		if err != nil {
			return fmt.Errorf("failed to close anchor for employee %d: %w", employeeID, err)
		}
		return nil
	})
}

// GetAnchor fetches the anchor for one shift label, or nil.
func (s *gormStore) GetAnchor(ctx context.Context, groupID, employeeID int64, shiftLabel string) (*model.ShiftAnchor, error) {
	var a model.ShiftAnchor
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND employee_id = ? AND shift = ?", groupID, employeeID, shiftLabel).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch anchor: %w", err)
	}
	return &a, nil
}

// CurrentAnchor returns the most recently opened anchor for an
// employee regardless of label, or nil when none is open.
func (s *gormStore) CurrentAnchor(ctx context.Context, groupID, employeeID int64) (*model.ShiftAnchor, error) {
	var a model.ShiftAnchor
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND employee_id = ?", groupID, employeeID).
		Order("opened_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current anchor: %w", err)
	}
	return &a, nil
}

// CountOpenAnchors counts open anchors for a group and label.
func (s *gormStore) CountOpenAnchors(ctx context.Context, groupID int64, shiftLabel string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.ShiftAnchor{}).
		Where("group_id = ? AND shift = ?", groupID, shiftLabel).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count anchors: %w", err)
	}
	return n, nil
}

// DeleteAnchorsBefore discards a group's anchors whose record date
// precedes the new business date, except recently opened ones: an
// anchor opened after openedBefore belongs to a shift still
// legitimately in progress across the rollover boundary and must not
// be severed.
func (s *gormStore) DeleteAnchorsBefore(ctx context.Context, groupID int64, before, openedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND record_date < ? AND opened_at < ?", groupID, before, openedBefore).
		Delete(&model.ShiftAnchor{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete stale anchors: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SweepStaleAnchors drops anchors, across all groups, that have been
// open with no matching clock-out for too long.
func (s *gormStore) SweepStaleAnchors(ctx context.Context, openedBefore time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("opened_at < ?", openedBefore).
		Delete(&model.ShiftAnchor{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep stale anchors: %w", res.Error)
	}
	return res.RowsAffected, nil
}
