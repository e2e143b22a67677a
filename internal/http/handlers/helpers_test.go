package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func asUser(id string) map[string]string { return map[string]string{"X-User-ID": id} }

// routes mounts every handler the way the router does, minus middleware.
func routes(h *Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/posts", h.CreatePost)
	r.GET("/posts", h.ListPosts)
	r.GET("/posts/:id", h.GetPost)
	r.PATCH("/posts/:id", h.UpdatePost)
	r.DELETE("/posts/:id", h.DeletePost)
	r.POST("/posts/:id/publish", h.PublishPost)
	r.POST("/posts/:id/retry", h.RetryPost)
	r.POST("/cron/scheduler", h.RunScheduler)
	r.POST("/cron/metrics", h.RefreshMetrics)
	r.GET("/scheduler/status", h.SchedulerStatus)
	r.GET("/metrics/ratelimit", h.RateLimitStatus)
	r.GET("/settings/simulation-mode", h.GetSimulationMode)
	r.PUT("/settings/simulation-mode", h.SetSimulationMode)
	r.PUT("/account/x-credentials", h.SaveCredentials)
	r.DELETE("/account/x-credentials", h.ClearCredentials)
	r.GET("/analytics/top-posts", h.TopPosts)
	r.GET("/analytics/time-slots", h.TimeSlots)
	r.POST("/feedback", h.LeaveFeedback)
	r.GET("/feedback", h.ListFeedback)
	r.DELETE("/feedback/:id", h.DeleteFeedback)
	return r
}

// --- fakes ---

type fakePosts struct {
	created  services.CreatePostInput
	createBy string
	err      error
	post     *domain.Post
	filter   repo.PostFilter
	updated  services.UpdatePostInput
	deleted  string
}

func (f *fakePosts) Create(_ context.Context, userID string, in services.CreatePostInput) (*domain.Post, error) {
	f.createBy, f.created = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Post{ID: uuid.NewString(), UserID: userID, Text: in.Text, Status: in.Status}, nil
}

func (f *fakePosts) Get(_ context.Context, _, _ string) (*domain.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.post, nil
}

func (f *fakePosts) List(_ context.Context, _ string, fl repo.PostFilter) ([]domain.Post, error) {
	f.filter = fl
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Post{}, nil
}

func (f *fakePosts) Update(_ context.Context, _, postID string, in services.UpdatePostInput) (*domain.Post, error) {
	f.updated = in
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Post{ID: postID}, nil
}

func (f *fakePosts) Delete(_ context.Context, _, postID string) error {
	f.deleted = postID
	return f.err
}

type fakeScheduler struct {
	res    services.RunResult
	err    error
	status services.SchedulerStatus
}

func (f *fakeScheduler) Run(context.Context) (services.RunResult, error) { return f.res, f.err }
func (f *fakeScheduler) Status(context.Context) (services.SchedulerStatus, error) {
	return f.status, f.err
}

type fakeRefresher struct {
	res services.RefreshResult
	err error
	st  ratelimit.Status
}

func (f *fakeRefresher) Refresh(context.Context) (services.RefreshResult, error) { return f.res, f.err }
func (f *fakeRefresher) RateLimitStatus() ratelimit.Status                      { return f.st }

type fakeSettings struct{ on bool }

func (f *fakeSettings) SimulationMode(context.Context) (bool, error) { return f.on, nil }
func (f *fakeSettings) SetSimulationMode(_ context.Context, on bool) error {
	f.on = on
	return nil
}

type fakeAnalytics struct{ limit int }

func (f *fakeAnalytics) TopPosts(_ context.Context, _ string, limit int) ([]repo.PostEngagement, error) {
	f.limit = limit
	return []repo.PostEngagement{}, nil
}

func (f *fakeAnalytics) TimeSlots(context.Context, string) ([]repo.HourSlot, error) {
	return []repo.HourSlot{{Hour: 9, Posts: 2, AvgEngagement: 40}}, nil
}

// stubPublisher simulates every delivery and counts calls.
type stubPublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubPublisher) IsConfigured(context.Context, string) (bool, error) { return false, nil }

func (s *stubPublisher) Publish(_ context.Context, req publisher.PublishRequest) (publisher.PublishResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return publisher.PublishResult{}, s.err
	}
	id := publisher.SimulatedID(time.Now(), req.ItemID)
	return publisher.PublishResult{ID: id, SegmentIDs: []string{id}, Simulated: true}, nil
}

func (s *stubPublisher) FetchMetrics(context.Context, string, string) (publisher.Metrics, error) {
	return publisher.Metrics{Impressions: 10, Source: domain.SourceSimulated}, nil
}

func (s *stubPublisher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// realStack wires the store-backed services used by ETag and idempotency.
func realStack(t *testing.T, pub services.Publisher) (*Handlers, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	settings := &services.SettingsService{DB: db}
	h := New(Deps{
		Posts:     services.NewPostService(db, sqlPosts{}),
		Publish:   &services.PublishService{DB: db, Client: pub, Settings: settings},
		Settings:  settings,
		Accounts:  &services.AccountService{DB: db},
		Analytics: &services.AnalyticsService{DB: db},
		Feedback:  &services.FeedbackService{DB: db, Admins: []string{"admin"}},
		Scheduler: &fakeScheduler{},
		Metrics:   &fakeRefresher{},
		DB:        db,
	})
	return h, db
}

type sqlPosts struct{}

func (sqlPosts) CreatePost(ctx context.Context, db *gorm.DB, in repo.NewPostInput) (*domain.Post, error) {
	return repo.CreatePost(ctx, db, in)
}

func (sqlPosts) GetUserPost(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Post, error) {
	return repo.GetUserPost(ctx, db, id, userID)
}

func (sqlPosts) ListUserPosts(ctx context.Context, db *gorm.DB, userID string, f repo.PostFilter) ([]domain.Post, error) {
	return repo.ListUserPosts(ctx, db, userID, f)
}

func (sqlPosts) UpdatePost(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any, leaseCutoff, at time.Time) (*domain.Post, error) {
	return repo.UpdatePost(ctx, db, id, userID, fields, leaseCutoff, at)
}

func (sqlPosts) DeletePost(ctx context.Context, db *gorm.DB, id, userID string, leaseCutoff time.Time) error {
	return repo.DeletePost(ctx, db, id, userID, leaseCutoff)
}

func seedDraft(t *testing.T, db *gorm.DB, userID, text string) *domain.Post {
	t.Helper()
	p, err := repo.CreatePost(context.Background(), db, repo.NewPostInput{UserID: userID, Text: text, Status: domain.StatusDraft})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}
