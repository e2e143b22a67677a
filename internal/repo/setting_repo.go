// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides keyed JSON settings used for process
// flags and run diagnostics.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// GetSetting loads key and decodes its JSON value into dst.
// It returns ErrNotFound when the key has never been written.
func GetSetting(ctx context.Context, db *gorm.DB, key string, dst any) (*domain.Setting, error) {
	var s domain.Setting
	if err := db.WithContext(ctx).Where("key = ?", key).First(&s).Error; err != nil {
		return nil, err
	}
	if dst != nil {
		if err := json.Unmarshal([]byte(s.ValueJSON), dst); err != nil {
			return &s, err
		}
	}
	return &s, nil
}

// UpsertSetting encodes value as JSON and writes it under key, replacing any
// previous value.
func UpsertSetting(ctx context.Context, db *gorm.DB, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	row := domain.Setting{Key: key, ValueJSON: string(b), UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value_json", "updated_at"}),
	}).Create(&row).Error
}
