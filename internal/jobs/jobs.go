// Package jobs runs the in-process periodic triggers: the due-post scan, the
// metrics refresh, and housekeeping. Invocations of the same job may overlap;
// the publish claim keeps overlapping scans from double-publishing.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one periodic task.
type Job struct {
	Name string
	// Spec is a cron expression or descriptor such as "@every 1m".
	Spec string
	// Timeout bounds a single invocation; zero means no bound.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Runner owns the cron instance and the context handed to every job.
type Runner struct {
	log    zerolog.Logger
	parser cron.Parser
	c      *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	names  map[string]cron.EntryID
}

// New builds a Runner in UTC. Job panics are recovered and logged.
func New(logger zerolog.Logger) *Runner {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "jobs").Logger()
	adapter := cronLogger{l}
	return &Runner{
		log:    l,
		parser: parser,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter)),
		),
		ctx:    ctx,
		cancel: cancel,
		names:  map[string]cron.EntryID{},
	}
}

// Add registers j. Names must be unique.
func (r *Runner) Add(j Job) error {
	name := strings.TrimSpace(j.Name)
	if name == "" || j.Run == nil {
		return errors.New("jobs: name and run func are required")
	}
	if _, err := r.parser.Parse(j.Spec); err != nil {
		return fmt.Errorf("jobs: %s: invalid spec %q: %w", name, j.Spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("jobs: %s already registered", name)
	}
	id, err := r.c.AddFunc(j.Spec, func() { r.invoke(name, j) })
	if err != nil {
		return err
	}
	r.names[name] = id
	r.log.Info().Str("job", name).Str("spec", j.Spec).Msg("job registered")
	return nil
}

func (r *Runner) invoke(name string, j Job) {
	ctx := r.ctx
	if ctx.Err() != nil {
		return
	}
	var cancel context.CancelFunc = func() {}
	if j.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
	}
	defer cancel()

	l := r.log.With().Str("job", name).Logger()
	ctx = l.WithContext(ctx)
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		l.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	l.Debug().Dur("took", time.Since(start)).Msg("job done")
}

// Next returns the next scheduled time of the named job.
func (r *Runner) Next(name string) (time.Time, bool) {
	r.mu.Lock()
	id, ok := r.names[name]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return r.c.Entry(id).Next, true
}

// Start begins scheduling in the background.
func (r *Runner) Start() { r.c.Start() }

// Stop cancels running jobs and waits for them to return, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	select {
	case <-r.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg("cron: " + msg)
}
