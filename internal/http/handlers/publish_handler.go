// Publish HTTP handlers.
//
//   - POST /posts/{id}/publish   (publish now from SCHEDULED, DRAFT, or FAILED)
//   - POST /posts/{id}/retry     (republish from FAILED or DRAFT)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, post, key), the handler returns that recorded
// outcome without re-entering the pipeline and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-post-scheduler/internal/http/middleware"
	"github.com/tbourn/go-post-scheduler/internal/repo"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

type publishFunc func(ctx context.Context, userID, postID string) (services.PublishResult, error)

// PublishPost godoc
// @ID          publishPost
// @Summary     Publish a post now
// @Description Publishes a SCHEDULED, DRAFT, or FAILED post immediately. Delivery is simulated when simulation mode is on or the user has no credentials.
// @Tags        Publishing
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Replay key"             example(7b0c5d0e-publish-1)
// @Param       id               path    string  true  "Post ID (UUID)"         format(uuid)
//
// @Success     200  {object} services.PublishResult
// @Header      200  {string} Idempotency-Replayed "true when served from a previous request"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     409  {object} handlers.ErrorResponse "Already published, not eligible, or in flight"
// @Failure     422  {object} handlers.ErrorResponse "Post has no owner"
// @Failure     502  {object} handlers.ErrorResponse "Platform rejected the post"
// @Router      /posts/{id}/publish [post]
func (h *Handlers) PublishPost(c *gin.Context) {
	h.runPublish(c, h.publish.PublishNow)
}

// RetryPost godoc
// @ID          retryPost
// @Summary     Retry a failed post
// @Description Republishes a FAILED or DRAFT post owned by the current user.
// @Tags        Publishing
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Replay key"             example(7b0c5d0e-retry-1)
// @Param       id               path    string  true  "Post ID (UUID)"         format(uuid)
//
// @Success     200  {object} services.PublishResult
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not your post"
// @Failure     404  {object} handlers.ErrorResponse "Post not found"
// @Failure     409  {object} handlers.ErrorResponse "Already published, not eligible, or in flight"
// @Failure     502  {object} handlers.ErrorResponse "Platform rejected the post"
// @Router      /posts/{id}/retry [post]
func (h *Handlers) RetryPost(c *gin.Context) {
	h.runPublish(c, h.publish.Retry)
}

func (h *Handlers) runPublish(c *gin.Context, run publishFunc) {
	postID, okID := postIDParam(c)
	if !okID {
		return
	}
	ctx := c.Request.Context()
	uid := userID(c)
	key := idempotencyKey(c)
	db := h.db

	// Idempotency (replay path).
	if key != "" && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, uid, postID, key, time.Now().UTC()); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, services.PublishResult{
				PostID:     rec.PostID,
				ExternalID: rec.ExternalID,
				Simulated:  rec.Simulated,
			})
			return
		}
	}

	res, err := run(ctx, uid, postID)
	if err != nil {
		failService(c, err, ErrCodePublishFailed)
		return
	}

	// Idempotency (store path) – best effort.
	if key != "" && db != nil {
		_, err := repo.CreateIdempotency(context.WithoutCancel(ctx), db, repo.IdempotencyInput{
			UserID:     uid,
			PostID:     postID,
			Key:        key,
			ExternalID: res.ExternalID,
			Simulated:  res.Simulated,
			Status:     http.StatusOK,
		}, h.idemTTL)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("post_id", postID).Msg("store idempotency record")
		}
	}
	ok(c, http.StatusOK, res)
}

// idempotencyKey prefers the key validated by middleware and falls back to
// the raw header.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}
