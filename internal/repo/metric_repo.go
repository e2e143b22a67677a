// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides append-only helpers for metric snapshots.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// AppendMetric inserts a new snapshot for m.PostID. ID and CapturedAt are
// filled in when empty. Snapshots are never updated in place.
func AppendMetric(ctx context.Context, db *gorm.DB, m *domain.Metric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CapturedAt.IsZero() {
		m.CapturedAt = time.Now().UTC()
	} else {
		m.CapturedAt = m.CapturedAt.UTC()
	}
	if m.Source == "" {
		m.Source = domain.SourceReal
	}
	return db.WithContext(ctx).Create(m).Error
}

// ListMetrics returns every snapshot for postID, newest first.
func ListMetrics(ctx context.Context, db *gorm.DB, postID string) ([]domain.Metric, error) {
	var out []domain.Metric
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("captured_at desc").
		Find(&out).Error
	return out, err
}

// LatestMetric returns the most recent snapshot for postID or ErrNotFound.
func LatestMetric(ctx context.Context, db *gorm.DB, postID string) (*domain.Metric, error) {
	var m domain.Metric
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("captured_at desc").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestMetrics returns the newest snapshot per post for the given ids,
// keyed by post id. Posts without snapshots are absent from the map.
func LatestMetrics(ctx context.Context, db *gorm.DB, postIDs []string) (map[string]domain.Metric, error) {
	out := make(map[string]domain.Metric, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	var rows []domain.Metric
	err := db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Order("captured_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if _, seen := out[m.PostID]; !seen {
			out[m.PostID] = m
		}
	}
	return out, nil
}
