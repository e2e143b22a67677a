// Feedback HTTP handlers.
//
//   - POST   /feedback       (any user leaves feedback)
//   - GET    /feedback       (admins list feedback, newest first)
//   - DELETE /feedback/{id}  (admins remove one entry)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/utils"
)

// FeedbackRequest is the JSON payload for leaving feedback.
type FeedbackRequest struct {
	// Text is the note itself (1–5000 chars).
	Text string `json:"text" binding:"required,max=5000" example:"The calendar view would help"`
	// Type defaults to suggestion.
	Type string `json:"type" binding:"omitempty,oneof=bug feature suggestion other" example:"feature"`
}

// FeedbackCreatedResponse acknowledges stored feedback.
type FeedbackCreatedResponse struct {
	ID      string `json:"id" example:"2b0f3f8e-8d7a-4b8e-9b7e-3f1f0b1a2c3d"`
	Success bool   `json:"success" example:"true"`
}

// FeedbackListResponse wraps the feedback list.
type FeedbackListResponse struct {
	Feedback []domain.Feedback `json:"feedback"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Leave feedback
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.FeedbackRequest  true  "Feedback payload"
//
// @Success     201  {object} handlers.FeedbackCreatedResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}
	fb, err := h.feedback.Leave(c.Request.Context(), userID(c), domain.FeedbackType(req.Type), req.Text)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, FeedbackCreatedResponse{ID: fb.ID, Success: true})
}

// ListFeedback godoc
// @ID          listFeedback
// @Summary     List feedback
// @Description Admin only. Newest first.
// @Tags        Feedback
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(admin1)
// @Param       limit      query   int     false "Max items"  minimum(1) maximum(500) default(100)
//
// @Success     200  {object} handlers.FeedbackListResponse
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /feedback [get]
func (h *Handlers) ListFeedback(c *gin.Context) {
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 100), 1, 500)
	items, err := h.feedback.List(c.Request.Context(), userID(c), limit)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, FeedbackListResponse{Feedback: items})
}

// DeleteFeedback godoc
// @ID          deleteFeedback
// @Summary     Delete feedback
// @Description Admin only.
// @Tags        Feedback
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(admin1)
// @Param       id         path    string  true  "Feedback ID (UUID)"     format(uuid)
//
// @Success     204  "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     404  {object} handlers.ErrorResponse "Feedback not found"
// @Router      /feedback/{id} [delete]
func (h *Handlers) DeleteFeedback(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "feedback id must be a UUID")
		return
	}
	if err := h.feedback.Delete(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err, ErrCodeDeleteFailed)
		return
	}
	noContent(c)
}
