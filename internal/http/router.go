// Package httpapi wires the HTTP transport (Gin) to the application services,
// middleware, and route handlers.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID, Identity
//  3. RedactingLogger
//  4. Recovery
//  5. Body size limit, gzip
//  6. Metrics
//  7. Idempotency validator (before the limiter so replays bypass it)
//  8. Rate limiter
//  9. CORS and security headers
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/docs"
	"github.com/tbourn/go-post-scheduler/internal/config"
	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/http/handlers"
	"github.com/tbourn/go-post-scheduler/internal/http/middleware"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

// postRepoShim adapts the repo free functions to services.PostRepo.
type postRepoShim struct{}

func (postRepoShim) CreatePost(ctx context.Context, db *gorm.DB, in repo.NewPostInput) (*domain.Post, error) {
	return repo.CreatePost(ctx, db, in)
}

func (postRepoShim) GetUserPost(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Post, error) {
	return repo.GetUserPost(ctx, db, id, userID)
}

func (postRepoShim) ListUserPosts(ctx context.Context, db *gorm.DB, userID string, f repo.PostFilter) ([]domain.Post, error) {
	return repo.ListUserPosts(ctx, db, userID, f)
}

func (postRepoShim) UpdatePost(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any, leaseCutoff, at time.Time) (*domain.Post, error) {
	return repo.UpdatePost(ctx, db, id, userID, fields, leaseCutoff, at)
}

func (postRepoShim) DeletePost(ctx context.Context, db *gorm.DB, id, userID string, leaseCutoff time.Time) error {
	return repo.DeletePost(ctx, db, id, userID, leaseCutoff)
}

// Services is the application graph shared by the HTTP layer and the cron
// jobs. Both triggers must use the same instances so the metrics budget is
// one budget.
type Services struct {
	Posts     *services.PostService
	Publish   *services.PublishService
	Scheduler *services.SchedulerService
	Metrics   *services.MetricsService
	Settings  *services.SettingsService
	Accounts  *services.AccountService
	Analytics *services.AnalyticsService
	Feedback  *services.FeedbackService
	Limiter   *ratelimit.Limiter
}

// NewServices builds the service graph over db and the platform client.
func NewServices(db *gorm.DB, client services.Publisher, cfg config.Config) Services {
	lim := ratelimit.New(cfg.Metrics.Window, cfg.Metrics.MaxRequests)
	settings := &services.SettingsService{DB: db, DefaultSimulation: cfg.Scheduler.SimulationMode}
	pipeline := &services.PublishService{
		DB:         db,
		Client:     client,
		Settings:   settings,
		Limiter:    lim,
		ClaimLease: cfg.Scheduler.ClaimLease,
	}
	posts := services.NewPostService(db, postRepoShim{})
	posts.ClaimLease = cfg.Scheduler.ClaimLease
	return Services{
		Posts:     posts,
		Publish:   pipeline,
		Scheduler: &services.SchedulerService{DB: db, Pipeline: pipeline, Settings: settings},
		Metrics: &services.MetricsService{
			DB:       db,
			Client:   client,
			Limiter:  lim,
			Lookback: cfg.Metrics.Lookback,
		},
		Settings:  settings,
		Accounts:  &services.AccountService{DB: db},
		Analytics: &services.AnalyticsService{DB: db},
		Feedback:  &services.FeedbackService{DB: db, Admins: cfg.AdminIDs},
		Limiter:   lim,
	}
}

// RegisterRoutes attaches middleware, operational endpoints (/health,
// /metrics, /swagger), and the versioned API to r.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		ExposeHeaders: middleware.DefaultExposeHeaders,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Deps{
		Posts:          svc.Posts,
		Publish:        svc.Publish,
		Scheduler:      svc.Scheduler,
		Metrics:        svc.Metrics,
		Settings:       svc.Settings,
		Accounts:       svc.Accounts,
		Analytics:      svc.Analytics,
		Feedback:       svc.Feedback,
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/posts", h.CreatePost)
		api.GET("/posts", h.ListPosts)
		api.GET("/posts/:id", h.GetPost)
		api.PATCH("/posts/:id", h.UpdatePost)
		api.DELETE("/posts/:id", h.DeletePost)
		api.POST("/posts/:id/publish", h.PublishPost)
		api.POST("/posts/:id/retry", h.RetryPost)

		cron := api.Group("/cron", middleware.CronAuth(cfg.CronSecret))
		for _, m := range []string{http.MethodGet, http.MethodPost} {
			cron.Handle(m, "/scheduler", h.RunScheduler)
			cron.Handle(m, "/metrics", h.RefreshMetrics)
		}

		api.GET("/scheduler/status", h.SchedulerStatus)
		api.GET("/metrics/ratelimit", h.RateLimitStatus)

		api.GET("/settings/simulation-mode", h.GetSimulationMode)
		api.PUT("/settings/simulation-mode", h.SetSimulationMode)

		api.PUT("/account/x-credentials", h.SaveCredentials)
		api.DELETE("/account/x-credentials", h.ClearCredentials)

		api.GET("/analytics/top-posts", h.TopPosts)
		api.GET("/analytics/time-slots", h.TimeSlots)

		api.POST("/feedback", h.LeaveFeedback)
		api.GET("/feedback", h.ListFeedback)
		api.DELETE("/feedback/:id", h.DeleteFeedback)
	}
}

// idempotencyLookup reports whether a stored publish outcome matches the key.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, postID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, userID, postID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// corsMiddleware allows every origin when none is configured, otherwise only
// the listed ones. Credentials are never allowed: identity travels in
// X-User-ID, not cookies.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: middleware.DefaultExposeHeaders,
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
