// Package services – MetricsService
//
// MetricsService refreshes engagement counts for recently published posts.
// Each refresh appends a new snapshot; history is never rewritten. Outbound
// reads are gated by a shared sliding-window budget, and once the budget runs
// out the rest of the run is skipped rather than failed.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/observability"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// Refresh item statuses.
const (
	RefreshRefreshed = "refreshed"
	RefreshFailed    = "failed"
	RefreshSkipped   = "skipped"
)

// RefreshItem is the outcome for one candidate post.
type RefreshItem struct {
	PostID string `json:"post_id"`
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// RefreshResult summarizes one refresh run.
type RefreshResult struct {
	Refreshed   int              `json:"refreshed"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	RateLimited bool             `json:"rate_limited"`
	RateLimit   ratelimit.Status `json:"rate_limit"`
	Results     []RefreshItem    `json:"results"`
}

// MetricsService refreshes snapshots under a request budget.
type MetricsService struct {
	DB      *gorm.DB
	Client  Publisher
	Limiter Limiter
	// Lookback bounds candidates to posts published this recently.
	Lookback time.Duration
	Now      func() time.Time
}

func (s *MetricsService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Refresh re-reads metrics for posts with a real external id, most recently
// published first. A store error while loading candidates is returned; per
// item errors are recorded and the run continues.
func (s *MetricsService) Refresh(ctx context.Context) (RefreshResult, error) {
	tr := otel.Tracer("services/MetricsService")
	ctx, span := tr.Start(ctx, "Refresh")
	defer span.End()

	logger := loggerFrom(ctx)
	res := RefreshResult{Results: []RefreshItem{}}

	lookback := s.Lookback
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	posts, err := repo.ListRecentPublished(ctx, s.DB, s.now().Add(-lookback))
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	logger.Info().Int("candidates", len(posts)).Int("budget", s.Limiter.RequestsRemaining()).Msg("metrics refresh")

	for i := range posts {
		if ctx.Err() != nil {
			break
		}
		item := s.refreshOne(ctx, &posts[i], &res)
		res.Results = append(res.Results, item)
		observability.MetricsRefreshItems.WithLabelValues(item.Status).Inc()
	}

	res.RateLimit = s.Limiter.Status()
	observability.RateLimitRemaining.Set(float64(res.RateLimit.Remaining))
	span.SetAttributes(
		attribute.Int("refreshed", res.Refreshed),
		attribute.Int("failed", res.Failed),
		attribute.Int("skipped", res.Skipped),
		attribute.Bool("rate_limited", res.RateLimited),
	)
	logger.Info().
		Int("refreshed", res.Refreshed).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Bool("rate_limited", res.RateLimited).
		Int("remaining", res.RateLimit.Remaining).
		Msg("metrics refresh complete")
	return res, ctx.Err()
}

func (s *MetricsService) refreshOne(ctx context.Context, post *domain.Post, res *RefreshResult) RefreshItem {
	item := RefreshItem{PostID: post.ID}

	// Once the budget is gone, the rest of the run is skipped even if the
	// window frees up mid-run.
	if res.RateLimited || !s.Limiter.CanMakeRequest() {
		res.RateLimited = true
		res.Skipped++
		item.Status = RefreshSkipped
		item.Error = "Rate limit reached"
		return item
	}

	m, err := s.Client.FetchMetrics(ctx, post.UserID, post.ExternalID())
	if m.Issued {
		s.Limiter.RecordRequest()
	}
	if err != nil {
		res.Failed++
		item.Status = RefreshFailed
		item.Error = err.Error()
		loggerFrom(ctx).Warn().Err(err).Str("post_id", post.ID).Str("tweet_id", post.ExternalID()).Msg("metrics refresh failed")
		return item
	}

	snap := m.Snapshot(post.ID, s.now())
	if err := repo.AppendMetric(ctx, s.DB, &snap); err != nil {
		res.Failed++
		item.Status = RefreshFailed
		item.Error = err.Error()
		return item
	}

	res.Refreshed++
	item.Status = RefreshRefreshed
	item.Source = string(m.Source)
	if m.Source == domain.SourceUnavailable {
		item.Error = m.Error
		loggerFrom(ctx).Warn().Str("post_id", post.ID).Str("reason", m.Error).Msg("metrics unavailable")
	}
	return item
}

// RateLimitStatus exposes the shared budget.
func (s *MetricsService) RateLimitStatus() ratelimit.Status {
	st := s.Limiter.Status()
	observability.RateLimitRemaining.Set(float64(st.Remaining))
	return st
}
