// Package services holds the scheduler's business logic: the publish pipeline,
// the scheduler run, the metrics refresher, and the thin post, settings,
// account, and analytics services behind the HTTP API.
//
// Service methods return the sentinels below (or a *PublishError); mapping
// them to HTTP statuses is the handlers' job.
package services

import "errors"

// Post and pipeline errors.
var (
	// ErrPostNotFound indicates that the post does not exist or is not
	// visible to the current user.
	ErrPostNotFound = errors.New("post not found")

	// ErrNotOwner is returned when a user acts on another user's post.
	ErrNotOwner = errors.New("not your post")

	// ErrAlreadyPublished is returned for any publish attempt on a PUBLISHED
	// post. Nothing is sent and nothing is mutated.
	ErrAlreadyPublished = errors.New("post is already published")

	// ErrNotEligible is returned when the post's status is not a valid
	// starting point for the requested trigger.
	ErrNotEligible = errors.New("post status not eligible for this action")

	// ErrInFlight means another run currently holds the publish claim.
	ErrInFlight = errors.New("post is being published by another run")

	// ErrClaimAbandoned means a SCHEDULED post was still claimed after its
	// lease expired. Whether the earlier attempt reached the platform is
	// unknown, so the post is moved to FAILED and left for a manual retry.
	ErrClaimAbandoned = errors.New("previous publish attempt did not finish; post marked failed")

	// ErrMissingOwner marks a post with no owning account. Such posts are
	// moved to FAILED without any external call and are never retried
	// automatically.
	ErrMissingOwner = errors.New("post has no owner")

	// ErrRunAborted is returned when the scheduler cannot load due posts.
	ErrRunAborted = errors.New("scheduler run aborted")

	// ErrInvalidPost is returned when create input fails validation.
	ErrInvalidPost = errors.New("invalid post")
)
