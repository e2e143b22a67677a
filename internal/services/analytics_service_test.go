package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

func TestAnalytics_TopPostsAndTimeSlots(t *testing.T) {
	db := newServiceDB(t)
	svc := &AnalyticsService{DB: db}
	ctx := context.Background()

	low := seedPublished(t, db, "u1", "2001", time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	high := seedPublished(t, db, "u1", "2002", time.Date(2025, 5, 2, 18, 0, 0, 0, time.UTC))
	seedPublished(t, db, "u2", "2003", time.Date(2025, 5, 2, 18, 0, 0, 0, time.UTC))

	for _, m := range []domain.Metric{
		{PostID: low.ID, Impressions: 10, CapturedAt: testNow.Add(-time.Hour)},
		{PostID: high.ID, Impressions: 10, CapturedAt: testNow.Add(-2 * time.Hour)},
		{PostID: high.ID, Impressions: 50, Likes: 5, CapturedAt: testNow.Add(-time.Hour)},
	} {
		if err := repo.AppendMetric(ctx, db, &m); err != nil {
			t.Fatalf("AppendMetric: %v", err)
		}
	}

	top, err := svc.TopPosts(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("TopPosts: %v", err)
	}
	if len(top) != 2 || top[0].Post.ID != high.ID || top[0].Engagement != 60 {
		t.Fatalf("top = %+v", top)
	}

	slots, err := svc.TimeSlots(ctx, "u1")
	if err != nil {
		t.Fatalf("TimeSlots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("slots = %+v; want hours 9 and 18", slots)
	}

	none, err := svc.TopPosts(ctx, "nobody", 100)
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("empty = %#v, %v", none, err)
	}
}
