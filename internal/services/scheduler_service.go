// Package services – SchedulerService
//
// SchedulerService publishes every SCHEDULED post whose slot has passed. Items
// are processed one at a time; a failing item never stops the rest. Each run
// records a "last run" diagnostic and, when anything failed, a separate
// "last error" diagnostic that later clean runs leave in place.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/observability"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// Item result tags.
const (
	ResultPublished = "published"
	ResultFailed    = "failed"
	// ResultSkipped means another run owns the item right now.
	ResultSkipped = "skipped"
)

// ItemResult is the outcome for one due post.
type ItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunResult summarizes one scheduler run.
type RunResult struct {
	StartedAt      time.Time    `json:"started_at"`
	Processed      int          `json:"processed"`
	Published      int          `json:"published"`
	Failed         int          `json:"failed"`
	Skipped        int          `json:"skipped"`
	SimulationMode bool         `json:"simulation_mode"`
	Results        []ItemResult `json:"results"`
}

// LastRun is stored under domain.SettingSchedulerLastRun.
type LastRun struct {
	Timestamp      time.Time `json:"timestamp"`
	Processed      int       `json:"processed"`
	SimulationMode bool      `json:"simulationMode"`
}

// LastError is stored under domain.SettingSchedulerLastErr.
type LastError struct {
	Timestamp      time.Time    `json:"timestamp"`
	Failures       []ItemResult `json:"failures"`
	SimulationMode bool         `json:"simulationMode"`
}

// SchedulerStatus is the pair of persisted diagnostics. Either may be nil.
type SchedulerStatus struct {
	Run   *LastRun   `json:"run"`
	Error *LastError `json:"error"`
}

// SchedulerService runs the due-post scan.
type SchedulerService struct {
	DB       *gorm.DB
	Pipeline *PublishService
	Settings *SettingsService
	Now      func() time.Time
}

func (s *SchedulerService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Run publishes all due posts. It returns an error wrapping ErrRunAborted
// only when due posts cannot be loaded. If ctx is cancelled between items the
// run stops, diagnostics are still written, and ctx.Err() is returned with
// the partial result.
func (s *SchedulerService) Run(ctx context.Context) (RunResult, error) {
	tr := otel.Tracer("services/SchedulerService")
	ctx, span := tr.Start(ctx, "Run")
	defer span.End()

	logger := loggerFrom(ctx)
	now := s.now()
	res := RunResult{StartedAt: now, Results: []ItemResult{}}

	due, err := repo.FindDuePosts(ctx, s.DB, now)
	if err != nil {
		observability.SchedulerRuns.WithLabelValues("aborted").Inc()
		logger.Error().Err(err).Msg("scheduler: load due posts")
		span.RecordError(err)
		return res, fmt.Errorf("%w: load due posts: %w", ErrRunAborted, err)
	}

	res.SimulationMode, err = s.Settings.SimulationMode(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("scheduler: simulation flag unavailable; forcing simulation")
	}
	logger.Info().Int("due", len(due)).Bool("simulation_mode", res.SimulationMode).Msg("scheduler run")

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		item := s.publishOne(ctx, &due[i])
		res.Results = append(res.Results, item)
		switch item.Status {
		case ResultPublished:
			res.Published++
		case ResultFailed:
			res.Failed++
		case ResultSkipped:
			res.Skipped++
		}
		observability.SchedulerItems.WithLabelValues(item.Status).Inc()
	}
	res.Processed = len(res.Results)
	span.SetAttributes(
		attribute.Int("processed", res.Processed),
		attribute.Int("failed", res.Failed),
	)

	s.persistDiagnostics(context.WithoutCancel(ctx), res)
	observability.SchedulerRuns.WithLabelValues("ok").Inc()
	logger.Info().
		Int("processed", res.Processed).
		Int("published", res.Published).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("scheduler run complete")

	return res, ctx.Err()
}

func (s *SchedulerService) publishOne(ctx context.Context, post *domain.Post) ItemResult {
	_, err := s.Pipeline.Publish(ctx, post, TriggerScheduler)
	switch {
	case err == nil:
		return ItemResult{ID: post.ID, Status: ResultPublished}
	case errors.Is(err, ErrInFlight), errors.Is(err, ErrAlreadyPublished), errors.Is(err, ErrNotEligible):
		return ItemResult{ID: post.ID, Status: ResultSkipped, Error: err.Error()}
	default:
		return ItemResult{ID: post.ID, Status: ResultFailed, Error: err.Error()}
	}
}

// persistDiagnostics writes LAST_RUN and, when anything failed, LAST_ERROR.
// Failures here are logged and never returned.
func (s *SchedulerService) persistDiagnostics(ctx context.Context, res RunResult) {
	logger := loggerFrom(ctx)

	run := LastRun{Timestamp: res.StartedAt, Processed: res.Processed, SimulationMode: res.SimulationMode}
	if err := repo.UpsertSetting(ctx, s.DB, domain.SettingSchedulerLastRun, run); err != nil {
		logger.Warn().Err(err).Msg("scheduler: persist last run")
	}

	if res.Failed == 0 {
		return
	}
	failures := make([]ItemResult, 0, res.Failed)
	for _, r := range res.Results {
		if r.Status == ResultFailed {
			failures = append(failures, r)
		}
	}
	last := LastError{Timestamp: res.StartedAt, Failures: failures, SimulationMode: res.SimulationMode}
	if err := repo.UpsertSetting(ctx, s.DB, domain.SettingSchedulerLastErr, last); err != nil {
		logger.Warn().Err(err).Msg("scheduler: persist last error")
	}
}

// Status returns the persisted diagnostics.
func (s *SchedulerService) Status(ctx context.Context) (SchedulerStatus, error) {
	var out SchedulerStatus

	var run LastRun
	if _, err := repo.GetSetting(ctx, s.DB, domain.SettingSchedulerLastRun, &run); err == nil {
		out.Run = &run
	} else if !errors.Is(err, repo.ErrNotFound) {
		return out, err
	}

	var last LastError
	if _, err := repo.GetSetting(ctx, s.DB, domain.SettingSchedulerLastErr, &last); err == nil {
		out.Error = &last
	} else if !errors.Is(err, repo.ErrNotFound) {
		return out, err
	}
	return out, nil
}
