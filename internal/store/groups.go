package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/model"
)

// GetGroup fetches a group's configuration, or nil when unknown.
func (s *gormStore) GetGroup(ctx context.Context, id int64) (*model.Group, error) {
	var g model.Group
	err := s.db.WithContext(ctx).First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group %d: %w", id, err)
	}
	return &g, nil
}

// ListGroupIDs returns the ids of every known group.
func (s *gormStore) ListGroupIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&model.Group{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return ids, nil
}

// SaveGroup upserts a group's configuration.
func (s *gormStore) SaveGroup(ctx context.Context, g *model.Group) error {
	return withRetry(ctx, func() error {
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(g).Error
		if err != nil {
			return fmt.Errorf("failed to save group %d: %w", g.ID, err)
		}
		return nil
	})
}
