// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of ErrorResponse. Generic codes mirror HTTP status semantics; domain codes
// carry publish-pipeline outcomes that a status alone cannot express, so
// clients can branch on them (for example, to show the community permission
// message instead of a generic failure).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_published",
//	  "message": "post is already published"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed          = "create_failed"
	ErrCodeListFailed            = "list_failed"
	ErrCodeUpdateFailed          = "update_failed"
	ErrCodeDeleteFailed          = "delete_failed"
	ErrCodeMethodNotAllowed      = "method_not_allowed"
	ErrCodeAlreadyPublished      = "already_published"
	ErrCodeNotEligible           = "not_eligible"
	ErrCodeInFlight              = "publish_in_flight"
	ErrCodeClaimAbandoned        = "claim_abandoned"
	ErrCodeMissingOwner          = "missing_owner"
	ErrCodePublishFailed         = "publish_failed"
	ErrCodeDestinationPermission = "destination_permission"
	ErrCodeRunFailed             = "run_failed"
	ErrCodeRefreshFailed         = "refresh_failed"
)
