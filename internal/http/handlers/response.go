// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the response utilities shared by every endpoint: the
// error envelope, success writers, and the mapping from service errors to
// HTTP status and stable codes.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error formatting and logs 5xx with request context.
//   - `failService()` is the single place where service sentinels and
//     publish failures become statuses, so every endpoint agrees on them.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "already_published",
//	  "message": "post is already published"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "post_id": "abc123", "tweet_id": "1790000000000000000", "simulated": false }
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-post-scheduler/internal/http/middleware"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
	"github.com/tbourn/go-post-scheduler/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"post not found"`
}

// fail aborts the request with a structured error. Server errors (>=500) are
// logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failService maps err to a response. fallback is the code used for
// unexpected (500) errors.
func failService(c *gin.Context, err error, fallback string) {
	var perr *services.PublishError
	switch {
	case errors.Is(err, services.ErrPostNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "post not found")
	case errors.Is(err, services.ErrAccountNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "account not found")
	case errors.Is(err, services.ErrNotOwner):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "you do not own this post")
	case errors.Is(err, services.ErrAlreadyPublished):
		fail(c, http.StatusConflict, ErrCodeAlreadyPublished, err.Error())
	case errors.Is(err, services.ErrNotEligible):
		fail(c, http.StatusConflict, ErrCodeNotEligible, err.Error())
	case errors.Is(err, services.ErrInFlight):
		fail(c, http.StatusConflict, ErrCodeInFlight, err.Error())
	case errors.Is(err, services.ErrClaimAbandoned):
		fail(c, http.StatusConflict, ErrCodeClaimAbandoned, err.Error())
	case errors.Is(err, services.ErrFeedbackNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "feedback not found")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrMissingOwner):
		fail(c, http.StatusUnprocessableEntity, ErrCodeMissingOwner, err.Error())
	case errors.Is(err, services.ErrInvalidPost), errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidFeedback):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &perr):
		code := ErrCodePublishFailed
		if perr.Category == publisher.CategoryDestinationPermission {
			code = ErrCodeDestinationPermission
		}
		middleware.LoggerFrom(c).Warn().Err(perr.Err).Str("code", code).Msg("publish rejected")
		c.AbortWithStatusJSON(http.StatusBadGateway, ErrorResponse{
			RequestID: c.Writer.Header().Get("X-Request-ID"),
			Code:      code,
			Message:   perr.Message,
		})
	default:
		fail(c, http.StatusInternalServerError, fallback, err.Error())
	}
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
