// Package services – PublishService
//
// PublishService moves one post from SCHEDULED, DRAFT, or FAILED to PUBLISHED
// or FAILED. The scheduler, the retry endpoint, and publish-now all enter
// through Publish; the Trigger decides which starting statuses are eligible.
//
// A post is claimed with a conditional UPDATE before the platform is called,
// and the terminal write only applies while the claim is still held. The
// terminal write ignores caller cancellation so a post never stays claimed
// because a request went away mid-flight.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// Publisher is the platform client contract used by the pipeline and the
// metrics refresher.
type Publisher interface {
	IsConfigured(ctx context.Context, ownerID string) (bool, error)
	Publish(ctx context.Context, req publisher.PublishRequest) (publisher.PublishResult, error)
	FetchMetrics(ctx context.Context, ownerID, externalID string) (publisher.Metrics, error)
}

// Limiter is the metrics-read budget.
type Limiter interface {
	CanMakeRequest() bool
	RecordRequest()
	RequestsRemaining() int
	Status() ratelimit.Status
}

// Trigger names who asked for a publish attempt.
type Trigger string

const (
	TriggerScheduler Trigger = "scheduler"
	TriggerRetry     Trigger = "retry"
	TriggerManual    Trigger = "manual"
)

// Eligible returns the statuses a post may start from for t.
func (t Trigger) Eligible() []domain.Status {
	switch t {
	case TriggerScheduler:
		return []domain.Status{domain.StatusScheduled}
	case TriggerRetry:
		return []domain.Status{domain.StatusFailed, domain.StatusDraft}
	case TriggerManual:
		return []domain.Status{domain.StatusScheduled, domain.StatusDraft, domain.StatusFailed}
	}
	return nil
}

func (t Trigger) allows(s domain.Status) bool {
	for _, e := range t.Eligible() {
		if e == s {
			return true
		}
	}
	return false
}

// PublishResult is the outcome of a successful publish.
type PublishResult struct {
	PostID     string         `json:"post_id"`
	ExternalID string         `json:"tweet_id"`
	Simulated  bool           `json:"simulated"`
	Delivery   string         `json:"delivery"`
	Snapshot   *domain.Metric `json:"snapshot,omitempty"`
	// Warning reports a failed best-effort step after publishing. It never
	// affects the post's status.
	Warning string `json:"warning,omitempty"`
}

// User-facing messages for platform failures.
const (
	msgDestinationPermission = "Failed to publish to community. Check your permissions."
	msgGenericPublish        = "Failed to publish to X"
)

// PublishError is a platform failure that moved the post to FAILED.
type PublishError struct {
	Category publisher.Category
	Message  string
	Err      error
}

func (e *PublishError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }

func newPublishError(err error) *PublishError {
	cat := publisher.Classify(err)
	msg := msgGenericPublish
	if cat == publisher.CategoryDestinationPermission {
		msg = msgDestinationPermission
	}
	return &PublishError{Category: cat, Message: msg, Err: err}
}

// PublishService drives posts through the publish state machine.
type PublishService struct {
	DB       *gorm.DB
	Client   Publisher
	Settings *SettingsService
	// Limiter, when set, also gates the metric capture after a publish.
	Limiter Limiter

	// ClaimLease is how long a claim blocks other writers before it is
	// considered abandoned.
	ClaimLease time.Duration
	Now        func() time.Time
}

func (s *PublishService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *PublishService) lease() time.Duration {
	if s.ClaimLease > 0 {
		return s.ClaimLease
	}
	return 5 * time.Minute
}

// publishBudget is the deadline for one platform call: the lease minus a
// tenth, leaving room for the terminal write.
func (s *PublishService) publishBudget() time.Duration {
	l := s.lease()
	return l - l/10
}

// Publish attempts one delivery of post for trigger.
//
// Errors:
//   - ErrAlreadyPublished: post is PUBLISHED; nothing changed.
//   - ErrNotEligible: status is not a starting point for trigger.
//   - ErrMissingOwner: post had no owner and is now FAILED.
//   - ErrInFlight: another run holds the claim.
//   - ErrClaimAbandoned: a SCHEDULED post's claim outlived its lease; the
//     post is now FAILED.
//   - *PublishError: the platform rejected the post; it is now FAILED.
//   - any other error: store failure; the post is unchanged or, after a
//     successful external call, its terminal state could not be recorded.
func (s *PublishService) Publish(ctx context.Context, post *domain.Post, trigger Trigger) (PublishResult, error) {
	tr := otel.Tracer("services/PublishService")
	ctx, span := tr.Start(ctx, "Publish",
		trace.WithAttributes(
			attribute.String("post.id", post.ID),
			attribute.String("user.id", post.UserID),
			attribute.String("trigger", string(trigger)),
		),
	)
	defer span.End()

	logger := loggerFrom(ctx).With().Str("post_id", post.ID).Str("user_id", post.UserID).Str("trigger", string(trigger)).Logger()
	res := PublishResult{PostID: post.ID}

	if post.Status == domain.StatusPublished {
		return res, ErrAlreadyPublished
	}
	if !trigger.allows(post.Status) {
		return res, ErrNotEligible
	}

	// Terminal writes must land even if the caller is gone.
	termCtx := context.WithoutCancel(ctx)

	if !post.HasOwner() {
		if err := repo.FailUnclaimed(termCtx, s.DB, post.ID, post.Status, s.now()); err != nil && !errors.Is(err, repo.ErrNotClaimable) {
			logger.Error().Err(err).Msg("could not fail ownerless post")
			return res, fmt.Errorf("fail ownerless post: %w", err)
		}
		post.Status = domain.StatusFailed
		logger.Error().Msg("post has no owner; marked failed")
		span.SetStatus(codes.Error, ErrMissingOwner.Error())
		return res, ErrMissingOwner
	}

	sim, err := s.Settings.SimulationMode(ctx)
	if err != nil {
		logger.Warn().Err(err).Bool("simulated", sim).Msg("simulation flag unavailable; forcing simulation")
	}
	hasCreds, err := s.Client.IsConfigured(ctx, post.UserID)
	if err != nil {
		return res, fmt.Errorf("check credentials: %w", err)
	}
	delivery := ResolveDelivery(sim, hasCreds)
	res.Delivery = delivery.String()
	span.SetAttributes(attribute.String("delivery", res.Delivery))

	now := s.now()
	token := uuid.NewString()
	if err := repo.ClaimPost(ctx, s.DB, post.ID, trigger.Eligible(), token, now, now.Add(-s.lease())); err != nil {
		if !errors.Is(err, repo.ErrNotClaimable) {
			return res, fmt.Errorf("claim post: %w", err)
		}
		if cur, gerr := repo.GetPost(ctx, s.DB, post.ID); gerr == nil {
			switch {
			case cur.Status == domain.StatusPublished:
				return res, ErrAlreadyPublished
			case !trigger.allows(cur.Status):
				return res, ErrNotEligible
			}
		}
		ferr := repo.FailAbandonedClaim(termCtx, s.DB, post.ID, now.Add(-s.lease()), now)
		switch {
		case ferr == nil:
			post.Status = domain.StatusFailed
			logger.Error().Msg("claim outlived its lease; marked failed")
			span.SetStatus(codes.Error, ErrClaimAbandoned.Error())
			return res, ErrClaimAbandoned
		case !errors.Is(ferr, repo.ErrNotClaimable):
			logger.Error().Err(ferr).Msg("could not fail abandoned claim")
		}
		return res, ErrInFlight
	}

	// The platform call must end before the lease does, or a later run could
	// treat the claim as abandoned while it is still live.
	callCtx, cancel := context.WithTimeout(ctx, s.publishBudget())
	out, err := s.Client.Publish(callCtx, publisher.PublishRequest{
		OwnerID:         post.UserID,
		Segments:        post.Segments(),
		Destination:     post.Destination(),
		ForceSimulation: delivery.Simulated(),
		ItemID:          post.ID,
	})
	cancel()
	if err != nil {
		perr := newPublishError(err)
		if merr := repo.MarkFailed(termCtx, s.DB, post.ID, token, s.now()); merr != nil {
			logger.Error().Err(merr).Msg("could not record failed publish")
		} else {
			post.Status = domain.StatusFailed
		}
		logger.Error().Err(err).Str("category", string(perr.Category)).Msg("publish failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, perr.Message)
		return res, perr
	}

	publishedAt := s.now()
	if err := repo.MarkPublished(termCtx, s.DB, post.ID, token, out.ID, publishedAt); err != nil {
		logger.Error().Err(err).Str("tweet_id", out.ID).Msg("published but could not record it")
		span.RecordError(err)
		return res, fmt.Errorf("record publish: %w", err)
	}
	post.Status = domain.StatusPublished
	post.XTweetID = &out.ID
	post.PublishedAt = &publishedAt

	res.ExternalID = out.ID
	res.Simulated = out.Simulated
	logger.Info().Str("tweet_id", out.ID).Bool("simulated", out.Simulated).Msg("post published")

	res.Snapshot, res.Warning = s.captureSnapshot(termCtx, post, out.ID)
	if res.Warning != "" {
		logger.Warn().Str("tweet_id", out.ID).Str("warning", res.Warning).Msg("metric capture after publish")
	}
	return res, nil
}

// captureSnapshot reads and stores the first metrics for a fresh post. It
// never fails the publish; problems come back as a warning.
func (s *PublishService) captureSnapshot(ctx context.Context, post *domain.Post, externalID string) (*domain.Metric, string) {
	isReal := !domain.IsSimulatedID(externalID)
	if isReal && s.Limiter != nil && !s.Limiter.CanMakeRequest() {
		return nil, "metrics rate limit reached; snapshot deferred to the next refresh"
	}
	m, err := s.Client.FetchMetrics(ctx, post.UserID, externalID)
	if m.Issued && s.Limiter != nil {
		s.Limiter.RecordRequest()
	}
	if err != nil {
		return nil, "metrics fetch failed: " + err.Error()
	}
	snap := m.Snapshot(post.ID, s.now())
	if err := repo.AppendMetric(ctx, s.DB, &snap); err != nil {
		return nil, "metrics store failed: " + err.Error()
	}
	return &snap, m.Error
}

// PublishNow publishes the user's post immediately from SCHEDULED, DRAFT, or
// FAILED.
func (s *PublishService) PublishNow(ctx context.Context, userID, postID string) (PublishResult, error) {
	post, err := repo.GetUserPost(ctx, s.DB, postID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return PublishResult{}, ErrPostNotFound
		}
		return PublishResult{}, err
	}
	return s.Publish(ctx, post, TriggerManual)
}

// Retry republishes a FAILED or DRAFT post owned by userID.
func (s *PublishService) Retry(ctx context.Context, userID, postID string) (PublishResult, error) {
	post, err := repo.GetPost(ctx, s.DB, postID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return PublishResult{}, ErrPostNotFound
		}
		return PublishResult{}, err
	}
	if post.UserID != userID {
		return PublishResult{}, ErrNotOwner
	}
	return s.Publish(ctx, post, TriggerRetry)
}

// loggerFrom returns the request-scoped logger when one is attached to ctx,
// else the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
