// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for owner accounts and their
// platform credentials.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// GetAccount returns the account with id or ErrNotFound.
func GetAccount(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	var a domain.Account
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertAccount stores credentials for id, creating the account on first use.
func UpsertAccount(ctx context.Context, db *gorm.DB, id, handle, accessToken, clientID string) (*domain.Account, error) {
	now := time.Now().UTC()
	a := &domain.Account{
		ID:          id,
		Handle:      handle,
		AccessToken: accessToken,
		ClientID:    clientID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "access_token", "client_id", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return nil, err
	}
	return GetAccount(ctx, db, id)
}

// ClearCredentials wipes the stored token and client id for id. Posts owned by
// the account fall back to simulation afterwards.
func ClearCredentials(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": "",
			"client_id":    "",
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
