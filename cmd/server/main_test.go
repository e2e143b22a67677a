package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-post-scheduler/internal/config"
	httpapi "github.com/tbourn/go-post-scheduler/internal/http"
	"github.com/tbourn/go-post-scheduler/internal/jobs"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DB_PATH", "file:main_"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("X_API_BASE_URL", "http://127.0.0.1:1")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestRegisterJobs(t *testing.T) {
	cfg := testConfig(t)
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc := httpapi.NewServices(db, publisher.New(cfg.Publisher, publisher.DBCredentials{DB: db}), cfg)

	cases := []struct {
		name               string
		scheduler, metrics bool
		want               []string
		absent             []string
	}{
		{"all", true, true, []string{"scheduler", "metrics", "idempotency-purge"}, nil},
		{"purge only", false, false, []string{"idempotency-purge"}, []string{"scheduler", "metrics"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := cfg
			c.Scheduler.Enabled, c.Metrics.Enabled = tc.scheduler, tc.metrics
			r := jobs.New(zerolog.Nop())
			if err := registerJobs(r, db, svc, c); err != nil {
				t.Fatalf("register: %v", err)
			}
			r.Start()
			t.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = r.Stop(ctx)
			})
			for _, name := range tc.want {
				if _, ok := r.Next(name); !ok {
					t.Fatalf("job %q not registered", name)
				}
			}
			for _, name := range tc.absent {
				if _, ok := r.Next(name); ok {
					t.Fatalf("job %q registered while disabled", name)
				}
			}
		})
	}
}

func TestRegisterJobs_BadSpec(t *testing.T) {
	cfg := testConfig(t)
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	svc := httpapi.NewServices(db, publisher.New(cfg.Publisher, publisher.DBCredentials{DB: db}), cfg)

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Spec = "every now and then"
	if err := registerJobs(jobs.New(zerolog.Nop()), db, svc, cfg); err == nil {
		t.Fatal("expected invalid spec error")
	}
}
