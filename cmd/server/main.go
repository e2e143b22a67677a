// Command server runs the post scheduler: the HTTP API plus the in-process
// cron triggers for publishing due posts and refreshing metrics.
//
//	@title						Post Scheduler API
//	@version					1.0
//	@description				Schedules, publishes, and measures posts on X.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	CronBearer
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/config"
	httpapi "github.com/tbourn/go-post-scheduler/internal/http"
	"github.com/tbourn/go-post-scheduler/internal/jobs"
	"github.com/tbourn/go-post-scheduler/internal/observability"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const shutdownGrace = 15 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("bye")
}

func run(ctx context.Context, cfg config.Config, ver string) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	client := publisher.New(cfg.Publisher, publisher.DBCredentials{DB: db})
	svc := httpapi.NewServices(db, client, cfg)

	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, svc, cfg)

	runner := jobs.New(log.Logger)
	if err := registerJobs(runner, db, svc, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("base_path", cfg.APIBasePath).
			Bool("simulation_default", cfg.Scheduler.SimulationMode).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runner.Start()
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info().Msg("shutting down")

		var errs []error
		if err := srv.Shutdown(sctx); err != nil {
			errs = append(errs, err)
		}
		if err := runner.Stop(sctx); err != nil {
			errs = append(errs, err)
		}
		if err := shutdownOTel(sctx); err != nil {
			errs = append(errs, err)
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// registerJobs wires the cron triggers. Each invocation is bounded so a stuck
// platform call cannot pile up runs forever.
func registerJobs(r *jobs.Runner, db *gorm.DB, svc httpapi.Services, cfg config.Config) error {
	if cfg.Scheduler.Enabled {
		err := r.Add(jobs.Job{
			Name:    "scheduler",
			Spec:    cfg.Scheduler.Spec,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				res, err := svc.Scheduler.Run(ctx)
				if err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().
					Int("processed", res.Processed).
					Int("published", res.Published).
					Int("failed", res.Failed).
					Int("skipped", res.Skipped).
					Msg("scheduler run")
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		err := r.Add(jobs.Job{
			Name:    "metrics",
			Spec:    cfg.Metrics.Spec,
			Timeout: 10 * time.Minute,
			Run: func(ctx context.Context) error {
				res, err := svc.Metrics.Refresh(ctx)
				if err != nil {
					return err
				}
				zerolog.Ctx(ctx).Info().
					Int("refreshed", res.Refreshed).
					Int("failed", res.Failed).
					Int("skipped", res.Skipped).
					Bool("rate_limited", res.RateLimited).
					Msg("metrics refresh")
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	return r.Add(jobs.Job{
		Name:    "idempotency-purge",
		Spec:    "@hourly",
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
			if err != nil {
				return err
			}
			if n > 0 {
				zerolog.Ctx(ctx).Info().Int64("purged", n).Msg("expired idempotency keys removed")
			}
			return nil
		},
	})
}
