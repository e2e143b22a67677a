package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// AnalyticsService ranks published posts by the engagement of their latest
// snapshot.
type AnalyticsService struct {
	DB *gorm.DB
}

// TopPosts returns up to limit posts, best first. limit is clamped to 1..50.
func (s *AnalyticsService) TopPosts(ctx context.Context, userID string, limit int) ([]repo.PostEngagement, error) {
	switch {
	case limit <= 0:
		limit = 10
	case limit > 50:
		limit = 50
	}
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "TopPosts")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))

	out, err := repo.TopPosts(ctx, s.DB, userID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out == nil {
		out = []repo.PostEngagement{}
	}
	return out, nil
}

// TimeSlots averages engagement per UTC publish hour.
func (s *AnalyticsService) TimeSlots(ctx context.Context, userID string) ([]repo.HourSlot, error) {
	ctx, span := otel.Tracer("services/AnalyticsService").Start(ctx, "TimeSlots")
	defer span.End()

	out, err := repo.HourlyEngagement(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out == nil {
		out = []repo.HourSlot{}
	}
	return out, nil
}
