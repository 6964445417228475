package repository

import (
	"context"
	"errors"

	"transaction_system/internal/domain"
	"transaction_system/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimitRepository persists per-minute request counters. Increments are a
// single atomic upsert so concurrent callers on the same window never
// under-count.
type RateLimitRepository struct {
	db *gorm.DB
}

// NewRateLimitRepository builds a repository over the given DB handle
func NewRateLimitRepository(db *gorm.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Increment bumps the counter for the window, creating the row on first use.
// Runs as INSERT ... ON DUPLICATE KEY UPDATE request_count = request_count+1.
func (r *RateLimitRepository) Increment(ctx context.Context, resourceType, resourceID, windowStart string) error {
	w := domain.RateLimitWindow{
		ID:                 utils.NewID(),
		ResourceType:       resourceType,
		ResourceIdentifier: resourceID,
		WindowStart:        windowStart,
		RequestCount:       1,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "resource_type"},
			{Name: "resource_identifier"},
			{Name: "window_start"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"request_count": gorm.Expr("request_count + 1"),
		}),
	}).Create(&w).Error
}

// Count returns the request count for the window; zero when no row exists
func (r *RateLimitRepository) Count(ctx context.Context, resourceType, resourceID, windowStart string) (int, error) {
	var w domain.RateLimitWindow
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_identifier = ? AND window_start = ?", resourceType, resourceID, windowStart).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return w.RequestCount, nil
}

// Reset removes the counter row for the window (administrative and test use)
func (r *RateLimitRepository) Reset(ctx context.Context, resourceType, resourceID, windowStart string) error {
	return r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_identifier = ? AND window_start = ?", resourceType, resourceID, windowStart).
		Delete(&domain.RateLimitWindow{}).Error
}
