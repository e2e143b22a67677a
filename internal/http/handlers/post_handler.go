// Post HTTP handlers.
//
// This file exposes REST endpoints for post resources:
//   - POST /posts        (create a DRAFT or SCHEDULED post)
//   - GET  /posts        (list own posts with latest snapshot, ETag support)
//   - GET  /posts/{id}   (one post with full snapshot history)
//   - PATCH  /posts/{id} (partial edit of an unpublished post)
//   - DELETE /posts/{id} (remove a post and its snapshots)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/http/middleware"
	"github.com/tbourn/go-post-scheduler/internal/ratelimit"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/services"
	"github.com/tbourn/go-post-scheduler/internal/utils"
)

//
// Service contracts (context-aware)
//

// PostService defines post CRUD consumed by HTTP handlers.
type PostService interface {
	Create(ctx context.Context, userID string, in services.CreatePostInput) (*domain.Post, error)
	Get(ctx context.Context, userID, postID string) (*domain.Post, error)
	List(ctx context.Context, userID string, f repo.PostFilter) ([]domain.Post, error)
	Update(ctx context.Context, userID, postID string, in services.UpdatePostInput) (*domain.Post, error)
	Delete(ctx context.Context, userID, postID string) error
}

// PublishService runs the publish pipeline for a single post on request.
type PublishService interface {
	// PublishNow publishes from SCHEDULED, DRAFT, or FAILED.
	PublishNow(ctx context.Context, userID, postID string) (services.PublishResult, error)
	// Retry publishes from FAILED or DRAFT.
	Retry(ctx context.Context, userID, postID string) (services.PublishResult, error)
}

// SchedulerService triggers and reports on due-post scans.
type SchedulerService interface {
	Run(ctx context.Context) (services.RunResult, error)
	Status(ctx context.Context) (services.SchedulerStatus, error)
}

// MetricsService triggers metric refreshes and exposes the request budget.
type MetricsService interface {
	Refresh(ctx context.Context) (services.RefreshResult, error)
	RateLimitStatus() ratelimit.Status
}

// SettingsService reads and writes the simulation flag.
type SettingsService interface {
	SimulationMode(ctx context.Context) (bool, error)
	SetSimulationMode(ctx context.Context, on bool) error
}

// AccountService stores platform credentials.
type AccountService interface {
	SaveCredentials(ctx context.Context, userID, handle, accessToken, clientID string) (*domain.Account, error)
	ClearCredentials(ctx context.Context, userID string) error
}

// AnalyticsService ranks published posts.
type AnalyticsService interface {
	TopPosts(ctx context.Context, userID string, limit int) ([]repo.PostEngagement, error)
	TimeSlots(ctx context.Context, userID string) ([]repo.HourSlot, error)
}

// FeedbackService accepts feedback and serves it to admins.
type FeedbackService interface {
	Leave(ctx context.Context, userID string, kind domain.FeedbackType, text string) (*domain.Feedback, error)
	List(ctx context.Context, userID string, limit int) ([]domain.Feedback, error)
	Delete(ctx context.Context, userID, id string) error
}

//
// Handler wiring
//

// Deps lists the services behind the HTTP API.
type Deps struct {
	Posts     PostService
	Publish   PublishService
	Scheduler SchedulerService
	Metrics   MetricsService
	Settings  SettingsService
	Accounts  AccountService
	Analytics AnalyticsService
	Feedback  FeedbackService

	// DB backs the idempotency replay store and the list ETag. Both are
	// skipped when it is nil.
	DB *gorm.DB
	// IdempotencyTTL is how long a publish outcome is replayable by key.
	IdempotencyTTL time.Duration
}

// Handlers groups HTTP endpoints. It depends on abstract service interfaces
// to keep transport concerns separate from business logic.
type Handlers struct {
	posts     PostService
	publish   PublishService
	scheduler SchedulerService
	metrics   MetricsService
	settings  SettingsService
	accounts  AccountService
	analytics AnalyticsService
	feedback  FeedbackService
	db        *gorm.DB
	idemTTL   time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	RegisterValidators()
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		posts:     d.Posts,
		publish:   d.Publish,
		scheduler: d.Scheduler,
		metrics:   d.Metrics,
		settings:  d.Settings,
		accounts:  d.Accounts,
		analytics: d.Analytics,
		feedback:  d.Feedback,
		db:        d.DB,
		idemTTL:   ttl,
	}
}

// userID is the caller as resolved by middleware.UserID.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// DTOs
//

// CreatePostRequest is the JSON payload for creating a post.
type CreatePostRequest struct {
	// Text is the primary body (1–10000 chars). Without a thread it is
	// published as one segment and must fit in 280 characters.
	Text string `json:"text" binding:"required,max=10000" example:"Shipping v2 today"`
	// Thread optionally replaces Text with ordered segments (each ≤ 280 chars).
	Thread []string `json:"thread" binding:"omitempty,max=25,segments" example:"part one,part two"`
	// Tags are free-form labels used for filtering.
	Tags []string `json:"tags" binding:"omitempty,max=20,dive,max=50" example:"launch"`
	// Status is DRAFT or SCHEDULED; defaults to SCHEDULED when scheduled_at is set.
	Status string `json:"status" binding:"omitempty,oneof=DRAFT SCHEDULED" example:"SCHEDULED"`
	// ScheduledAt is an RFC3339 timestamp.
	ScheduledAt string `json:"scheduled_at" binding:"omitempty,datetime=2006-01-02T15:04:05Z07:00" example:"2025-07-01T09:30:00Z"`
	// CommunityID optionally targets a community.
	CommunityID string `json:"community_id" binding:"omitempty,max=64" example:"1493446837214187523"`
}

// UpdatePostRequest is the JSON payload for a partial edit. Absent fields are
// left unchanged.
type UpdatePostRequest struct {
	Text *string `json:"text" binding:"omitempty,min=1,max=10000" example:"Shipping v2 tomorrow"`
	// Thread replaces the segments; an empty array clears the thread.
	Thread []string `json:"thread" binding:"omitempty,max=25,segments" example:"part one,part two"`
	Tags   []string `json:"tags" binding:"omitempty,max=20,dive,max=50" example:"launch"`
	Status *string  `json:"status" binding:"omitempty,oneof=DRAFT SCHEDULED" example:"SCHEDULED"`
	// ScheduledAt is an RFC3339 timestamp; null removes the slot.
	ScheduledAt json.RawMessage `json:"scheduled_at" swaggertype:"string" example:"2025-07-01T09:30:00Z"`
	// CommunityID targets a community; "" removes it.
	CommunityID *string `json:"community_id" binding:"omitempty,max=64" example:"1493446837214187523"`
}

// DeletePostResponse confirms a deletion.
type DeletePostResponse struct {
	Success bool `json:"success" example:"true"`
}

// ListPostsResponse wraps a list of posts.
type ListPostsResponse struct {
	Posts []domain.Post `json:"posts"`
}

//
// Handlers
//

// CreatePost godoc
// @ID          createPost
// @Summary     Create a post
// @Description Creates a DRAFT or SCHEDULED post for the current user.
// @Tags        Posts
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreatePostRequest  true  "Create post payload"
//
// @Success     201  {object}  domain.Post
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	in := services.CreatePostInput{
		Text:        req.Text,
		Thread:      req.Thread,
		Tags:        req.Tags,
		Status:      domain.Status(req.Status),
		CommunityID: req.CommunityID,
	}
	if req.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scheduled_at must be RFC3339")
			return
		}
		in.ScheduledAt = &at
	}

	p, err := h.posts.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListPosts godoc
// @ID          listPosts
// @Summary     List posts
// @Description Returns the user's posts ordered by schedule time, each with its latest snapshot. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Posts
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       status         query   string  false "Filter by status"  Enums(DRAFT,SCHEDULED,PUBLISHED,FAILED)
// @Param       q              query   string  false "Substring of text or tags"
// @Param       tags           query   string  false "Comma separated tags; all must match"
// @Param       limit          query   int     false "Max items"  minimum(1) maximum(200) default(100)
//
// @Success     200  {object} handlers.ListPostsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		if etag, err := postsETag(ctx, h.db, uid, c.Request.URL.RawQuery); err == nil {
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	f := repo.PostFilter{
		Status: domain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Query:  c.Query("q"),
		Tags:   utils.SplitList(c.Query("tags")),
		Limit:  utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 100), 1, 200),
	}
	items, err := h.posts.List(ctx, uid, f)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListPostsResponse{Posts: items})
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a post
// @Description Returns one post owned by the current user with its full snapshot history, newest first.
// @Tags        Posts
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Post ID (UUID)"         format(uuid)
//
// @Success     200  {object} domain.Post
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id} [get]
func (h *Handlers) GetPost(c *gin.Context) {
	postID, okID := postIDParam(c)
	if !okID {
		return
	}
	p, err := h.posts.Get(c.Request.Context(), userID(c), postID)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePost godoc
// @ID          updatePost
// @Summary     Edit a post
// @Description Applies a partial edit to a post that is not PUBLISHED and not being published right now.
// @Tags        Posts
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Post ID (UUID)"         format(uuid)
// @Param       body       body    handlers.UpdatePostRequest  true  "Fields to change"
//
// @Success     200  {object} domain.Post
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     409  {object} handlers.ErrorResponse "Already published or in flight"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id} [patch]
func (h *Handlers) UpdatePost(c *gin.Context) {
	postID, okID := postIDParam(c)
	if !okID {
		return
	}
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	in := services.UpdatePostInput{Text: req.Text, CommunityID: req.CommunityID}
	if req.Thread != nil {
		in.Thread = &req.Thread
	}
	if req.Tags != nil {
		in.Tags = &req.Tags
	}
	if req.Status != nil {
		st := domain.Status(*req.Status)
		in.Status = &st
	}
	if raw := bytes.TrimSpace(req.ScheduledAt); len(raw) > 0 {
		if bytes.Equal(raw, []byte("null")) {
			in.ClearSchedule = true
		} else {
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scheduled_at must be an RFC3339 timestamp or null")
				return
			}
			at, err := time.Parse(time.RFC3339, v)
			if err != nil {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scheduled_at must be an RFC3339 timestamp or null")
				return
			}
			in.ScheduledAt = &at
		}
	}

	p, err := h.posts.Update(c.Request.Context(), userID(c), postID, in)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete a post
// @Description Removes a post owned by the current user together with its snapshot history. A post being published right now is refused.
// @Tags        Posts
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Post ID (UUID)"         format(uuid)
//
// @Success     200  {object} handlers.DeletePostResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     409  {object} handlers.ErrorResponse "In flight"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	postID, okID := postIDParam(c)
	if !okID {
		return
	}
	if err := h.posts.Delete(c.Request.Context(), userID(c), postID); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	ok(c, http.StatusOK, DeletePostResponse{Success: true})
}

// postIDParam validates the :id path parameter and writes a 400 if needed.
func postIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "post id must be a UUID")
		return "", false
	}
	return id, true
}

// postsETag derives a weak ETag from row count, last update, snapshot count,
// and the query string, so any of them changing busts the cache.
func postsETag(ctx context.Context, db *gorm.DB, uid, rawQuery string) (string, error) {
	count, maxTS, err := repo.PostsStats(ctx, db, uid)
	if err != nil {
		return "", err
	}
	snaps, err := repo.SnapshotCount(ctx, db, uid)
	if err != nil {
		return "", err
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	hq := fnv.New32a()
	_, _ = hq.Write([]byte(rawQuery))
	return fmt.Sprintf(`W/"posts:%s:%d:%d:%d:%x"`, uid, count, ts, snaps, hq.Sum32()), nil
}
