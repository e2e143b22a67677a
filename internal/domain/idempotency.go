package domain

import "time"

// Idempotency records the outcome of a publish or retry request keyed by
// (user_id, post_id, key). A repeated request with the same key replays the
// stored outcome instead of re-entering the publish pipeline.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_post_key,priority:1"`
	PostID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_post_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_post_key,priority:3"`
	ExternalID string    `gorm:"type:TEXT NOT NULL"`
	Simulated  bool      `gorm:"type:BOOLEAN NOT NULL;default:false"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
