// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries: list metadata for
// conditional responses (ETag) and engagement analytics over the latest
// snapshot of each published post.
package repo

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
)

// PostsStats returns aggregate metadata for a user's posts: the total number
// of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the user has no posts, the returned count is 0 and maxUpdatedAt is nil.
func PostsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Post{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// SnapshotCount returns how many snapshots exist across the user's posts. It
// changes whenever a refresh appends, which PostsStats alone does not see.
func SnapshotCount(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Metric{}).
		Joins("JOIN posts ON posts.id = metrics.post_id").
		Where("posts.user_id = ?", userID).
		Count(&n).Error
	return n, err
}

// PostEngagement pairs a published post with its latest snapshot.
type PostEngagement struct {
	Post       domain.Post   `json:"post"`
	Latest     domain.Metric `json:"latest"`
	Engagement int64         `json:"engagement"`
}

// HourSlot is the average engagement of posts published in one UTC hour.
type HourSlot struct {
	Hour          int     `json:"hour"`
	Posts         int     `json:"posts"`
	AvgEngagement float64 `json:"avg_engagement"`
}

// publishedWithLatest loads the user's PUBLISHED posts that have at least one
// snapshot, each paired with its newest snapshot.
func publishedWithLatest(ctx context.Context, db *gorm.DB, userID string) ([]PostEngagement, error) {
	var posts []domain.Post
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND published_at IS NOT NULL", userID, domain.StatusPublished).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	latest, err := LatestMetrics(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PostEngagement, 0, len(latest))
	for _, p := range posts {
		m, ok := latest[p.ID]
		if !ok {
			continue
		}
		out = append(out, PostEngagement{Post: p, Latest: m, Engagement: m.Engagement()})
	}
	return out, nil
}

// TopPosts ranks the user's published posts by the engagement of their latest
// snapshot, highest first. Ties keep the most recently published first.
func TopPosts(ctx context.Context, db *gorm.DB, userID string, limit int) ([]PostEngagement, error) {
	rows, err := publishedWithLatest(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Engagement != rows[j].Engagement {
			return rows[i].Engagement > rows[j].Engagement
		}
		return rows[i].Post.PublishedAt.After(*rows[j].Post.PublishedAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// HourlyEngagement groups the user's published posts by UTC publish hour and
// averages the engagement of their latest snapshots. Hours without posts are
// omitted; slots are ordered by hour.
func HourlyEngagement(ctx context.Context, db *gorm.DB, userID string) ([]HourSlot, error) {
	rows, err := publishedWithLatest(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	var (
		sums   [24]int64
		counts [24]int
	)
	for _, r := range rows {
		h := r.Post.PublishedAt.UTC().Hour()
		sums[h] += r.Engagement
		counts[h]++
	}
	out := make([]HourSlot, 0, 24)
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		out = append(out, HourSlot{
			Hour:          h,
			Posts:         counts[h],
			AvgEngagement: float64(sums[h]) / float64(counts[h]),
		})
	}
	return out, nil
}
