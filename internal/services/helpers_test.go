package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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

// fakePublisher stands in for the platform client.
type fakePublisher struct {
	mu sync.Mutex

	configured map[string]bool
	configErr  error

	// failItems makes Publish fail for the given post ids.
	failItems map[string]error
	onPublish func(req publisher.PublishRequest)

	metrics    *publisher.Metrics
	metricsErr error

	publishes []publisher.PublishRequest
	fetches   []string
}

func (f *fakePublisher) IsConfigured(_ context.Context, ownerID string) (bool, error) {
	if f.configErr != nil {
		return false, f.configErr
	}
	return f.configured[ownerID], nil
}

func (f *fakePublisher) Publish(_ context.Context, req publisher.PublishRequest) (publisher.PublishResult, error) {
	f.mu.Lock()
	f.publishes = append(f.publishes, req)
	n := len(f.publishes)
	f.mu.Unlock()

	if f.onPublish != nil {
		f.onPublish(req)
	}
	if err := f.failItems[req.ItemID]; err != nil {
		return publisher.PublishResult{}, err
	}
	if req.ForceSimulation {
		id := publisher.SimulatedID(testNow, req.ItemID)
		return publisher.PublishResult{ID: id, SegmentIDs: []string{id}, Simulated: true}, nil
	}
	ids := make([]string, len(req.Segments))
	for i := range req.Segments {
		ids[i] = strconv.Itoa(9000 + n*10 + i)
	}
	return publisher.PublishResult{ID: ids[0], SegmentIDs: ids}, nil
}

func (f *fakePublisher) FetchMetrics(_ context.Context, _ string, externalID string) (publisher.Metrics, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, externalID)
	f.mu.Unlock()

	if domain.IsSimulatedID(externalID) {
		return publisher.Metrics{Impressions: 60, Likes: 1, Source: domain.SourceSimulated}, nil
	}
	if f.metricsErr != nil {
		return publisher.Metrics{Issued: true}, f.metricsErr
	}
	if f.metrics != nil {
		return *f.metrics, nil
	}
	return publisher.Metrics{Impressions: 100, Likes: 3, Replies: 1, Source: domain.SourceReal, Issued: true}, nil
}

func (f *fakePublisher) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.publishes)
}

func (f *fakePublisher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func newTestLimiter(maxRequests int) *ratelimit.Limiter {
	return ratelimit.New(15*time.Minute, maxRequests, ratelimit.WithClock(fixedNow))
}

func newPipeline(db *gorm.DB, pub Publisher, lim Limiter) *PublishService {
	return &PublishService{
		DB:         db,
		Client:     pub,
		Settings:   &SettingsService{DB: db},
		Limiter:    lim,
		ClaimLease: 5 * time.Minute,
		Now:        fixedNow,
	}
}

func seedPost(t *testing.T, db *gorm.DB, userID string, status domain.Status, at *time.Time, thread ...string) *domain.Post {
	t.Helper()
	var tj *string
	if len(thread) > 0 {
		var err error
		if tj, err = domain.EncodeThread(thread); err != nil {
			t.Fatalf("encode thread: %v", err)
		}
	}
	p, err := repo.CreatePost(context.Background(), db, repo.NewPostInput{
		UserID:      userID,
		Text:        "hello world",
		ThreadJSON:  tj,
		Status:      status,
		ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return p
}

// seedPublished stores a PUBLISHED post with externalID.
func seedPublished(t *testing.T, db *gorm.DB, userID, externalID string, at time.Time) *domain.Post {
	t.Helper()
	p := seedPost(t, db, userID, domain.StatusDraft, nil)
	err := db.Model(&domain.Post{}).Where("id = ?", p.ID).Updates(map[string]any{
		"status":       domain.StatusPublished,
		"x_tweet_id":   externalID,
		"published_at": at.UTC(),
	}).Error
	if err != nil {
		t.Fatalf("mark published: %v", err)
	}
	return mustGetPost(t, db, p.ID)
}

func mustGetPost(t *testing.T, db *gorm.DB, id string) *domain.Post {
	t.Helper()
	p, err := repo.GetPost(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetPost(%s): %v", id, err)
	}
	return p
}

func ago(d time.Duration) *time.Time {
	at := testNow.Add(-d)
	return &at
}
