// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback
// model.
//
// The repository stays thin: who may read or delete feedback is decided in
// the services package.
//
// Error semantics:
//   - DeleteFeedback returns gorm.ErrRecordNotFound (ErrNotFound) when no row
//     matched.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// CreateFeedback inserts a feedback row authored by userID.
func CreateFeedback(ctx context.Context, db *gorm.DB, userID string, kind domain.FeedbackType, text string) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		return nil, err
	}
	return fb, nil
}

// ListFeedback returns feedback newest first. limit <= 0 returns everything.
func ListFeedback(ctx context.Context, db *gorm.DB, limit int) ([]domain.Feedback, error) {
	q := db.WithContext(ctx).Order("created_at desc").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Feedback
	err := q.Find(&out).Error
	return out, err
}

// DeleteFeedback removes one feedback row.
func DeleteFeedback(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Feedback{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
