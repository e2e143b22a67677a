// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Post model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Every status transition is a single conditional UPDATE. A post is claimed
// (ClaimPost) before any external call and the terminal write (MarkPublished,
// MarkFailed) only applies while the caller still holds that claim, so two
// overlapping scheduler runs can never both publish the same post.
//
// Error semantics:
//   - When a post is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - When a conditional update matches no row, ErrNotClaimable or
//     ErrClaimLost is returned.
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

var (
	// ErrNotClaimable means the post is not in an eligible status or another
	// writer holds a live claim on it.
	ErrNotClaimable = errors.New("post not claimable")

	// ErrClaimLost means the claim token no longer matches, so the terminal
	// write was not applied.
	ErrClaimLost = errors.New("post claim lost")
)

// NewPostInput carries the fields accepted when creating a post.
type NewPostInput struct {
	UserID      string
	Text        string
	ThreadJSON  *string
	Tags        string
	Status      domain.Status
	ScheduledAt *time.Time
	CommunityID *string
}

// CreatePost inserts a new Post with a random UUID.
func CreatePost(ctx context.Context, db *gorm.DB, in NewPostInput) (*domain.Post, error) {
	now := time.Now().UTC()
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		in.ScheduledAt = &at
	}
	p := &domain.Post{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Text:        in.Text,
		ThreadJSON:  in.ThreadJSON,
		Tags:        in.Tags,
		Status:      in.Status,
		ScheduledAt: in.ScheduledAt,
		CommunityID: in.CommunityID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Status == "" {
		p.Status = domain.StatusDraft
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPost fetches a post by id regardless of owner.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUserPost fetches a post by id and owner, preloading its snapshots
// newest first.
func GetUserPost(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Post, error) {
	var p domain.Post
	err := db.WithContext(ctx).
		Preload("Metrics", func(tx *gorm.DB) *gorm.DB { return tx.Order("captured_at desc") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PostFilter narrows ListUserPosts. Zero values match everything.
type PostFilter struct {
	Status domain.Status
	Query  string   // substring of text or tags
	Tags   []string // every tag must appear in the tags column
	Limit  int
}

// ListUserPosts returns the owner's posts ordered by schedule time, then most
// recently updated. Each post carries at most its latest snapshot.
func ListUserPosts(ctx context.Context, db *gorm.DB, userID string, f PostFilter) ([]domain.Post, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		q = q.Where("(text LIKE ? OR tags LIKE ?)", like, like)
	}
	for _, t := range f.Tags {
		if t = strings.TrimSpace(t); t != "" {
			q = q.Where("tags LIKE ?", "%"+t+"%")
		}
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []domain.Post
	err := q.Order("scheduled_at asc").Order("updated_at desc").Find(&out).Error
	if err != nil || len(out) == 0 {
		return out, err
	}

	ids := make([]string, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	latest, err := LatestMetrics(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if m, ok := latest[out[i].ID]; ok {
			out[i].Metrics = []domain.Metric{m}
		}
	}
	return out, nil
}

// editableClaim matches posts with no live claim, using the same takeover rule
// as ClaimPost.
const editableClaim = "(claim_token IS NULL OR claimed_at IS NULL OR (status <> ? AND claimed_at < ?))"

// UpdatePost applies fields to the owner's post and returns the stored row.
// The write is refused with ErrNotClaimable while the post is PUBLISHED or
// claimed by a live publish attempt; a stale claim is released.
func UpdatePost(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any, leaseCutoff, at time.Time) (*domain.Post, error) {
	set := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		set[k] = v
	}
	set["claim_token"] = nil
	set["claimed_at"] = nil
	set["updated_at"] = at.UTC()

	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND user_id = ? AND status <> ?", id, userID, domain.StatusPublished).
		Where(editableClaim, domain.StatusScheduled, leaseCutoff.UTC()).
		Updates(set)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetUserPost(ctx, db, id, userID); err != nil {
			return nil, err
		}
		return nil, ErrNotClaimable
	}
	return GetUserPost(ctx, db, id, userID)
}

// DeletePost removes the owner's post and its snapshots in one transaction.
// A post claimed by a live publish attempt is refused with ErrNotClaimable.
func DeletePost(ctx context.Context, db *gorm.DB, id, userID string, leaseCutoff time.Time) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).
			Where(editableClaim, domain.StatusScheduled, leaseCutoff.UTC()).
			Delete(&domain.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if _, err := GetUserPost(ctx, tx, id, userID); err != nil {
				return err
			}
			return ErrNotClaimable
		}
		return tx.Where("post_id = ?", id).Delete(&domain.Metric{}).Error
	})
}

// FindDuePosts returns SCHEDULED posts whose scheduled_at is at or before now,
// oldest first. There is no lower bound: a slot missed while the process was
// down is still due.
func FindDuePosts(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.StatusScheduled, now.UTC()).
		Order("scheduled_at asc").
		Find(&out).Error
	return out, err
}

// ClaimPost takes the publish lease on post id when its status is one of
// from and no live claim exists. A claim older than leaseCutoff may be taken
// over, except on a SCHEDULED post: its outcome is unknown, so it has to go
// through FailAbandonedClaim and a manual retry instead.
func ClaimPost(ctx context.Context, db *gorm.DB, id string, from []domain.Status, token string, now, leaseCutoff time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND status IN ?", id, from).
		Where(editableClaim, domain.StatusScheduled, leaseCutoff.UTC()).
		Updates(map[string]any{
			"claim_token": token,
			"claimed_at":  now.UTC(),
			"updated_at":  now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

// MarkPublished moves a claimed post to PUBLISHED and records its external
// id and publish time, releasing the claim.
func MarkPublished(ctx context.Context, db *gorm.DB, id, token, externalID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND claim_token = ? AND status <> ?", id, token, domain.StatusPublished).
		Updates(map[string]any{
			"status":       domain.StatusPublished,
			"x_tweet_id":   externalID,
			"published_at": at.UTC(),
			"claim_token":  nil,
			"claimed_at":   nil,
			"updated_at":   at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkFailed moves a claimed post to FAILED and releases the claim.
// scheduled_at is left untouched so a retry can target the same slot.
func MarkFailed(ctx context.Context, db *gorm.DB, id, token string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND claim_token = ? AND status <> ?", id, token, domain.StatusPublished).
		Updates(map[string]any{
			"status":      domain.StatusFailed,
			"claim_token": nil,
			"claimed_at":  nil,
			"updated_at":  at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

// FailAbandonedClaim moves a SCHEDULED post whose claim is older than
// leaseCutoff to FAILED. The claim token is kept, so a late MarkPublished from
// the original holder still lands; a later retry may take the claim over.
func FailAbandonedClaim(ctx context.Context, db *gorm.DB, id string, leaseCutoff, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND status = ? AND claim_token IS NOT NULL AND claimed_at < ?", id, domain.StatusScheduled, leaseCutoff.UTC()).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

// FailUnclaimed moves post id from status from to FAILED without a claim.
// It is used for data-integrity failures detected before any external call.
func FailUnclaimed(ctx context.Context, db *gorm.DB, id string, from domain.Status, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Post{}).
		Where("id = ? AND status = ? AND claim_token IS NULL", id, from).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"updated_at": at.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

// ListRecentPublished returns PUBLISHED posts with a real (non-simulated)
// external id published at or after since, most recent first.
func ListRecentPublished(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Where("status = ? AND x_tweet_id IS NOT NULL AND x_tweet_id <> '' AND substr(x_tweet_id, 1, ?) <> ?",
			domain.StatusPublished, len(domain.SimulatedIDPrefix), domain.SimulatedIDPrefix).
		Where("published_at >= ?", since.UTC()).
		Order("published_at desc").
		Find(&out).Error
	return out, err
}
