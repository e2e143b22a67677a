package publisher

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredentials is returned when a real call is attempted for an owner
// without a usable access token.
var ErrNoCredentials = errors.New("no X API credentials configured")

// ErrEmptyPayload is returned when a publish request has no segments.
var ErrEmptyPayload = errors.New("nothing to publish")

// Category groups publish failures for user-facing messages.
type Category string

const (
	// CategoryGeneric covers transport, server, and unclassified API errors.
	CategoryGeneric Category = "generic"
	// CategoryDestinationPermission means the platform refused the chosen
	// destination, typically a community the owner cannot post to.
	CategoryDestinationPermission Category = "destination_permission"
)

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
}

// Category classifies the error. The platform reports community permission
// problems only in the free-text detail.
func (e *APIError) Category() Category {
	if strings.Contains(strings.ToLower(e.Detail), "community") {
		return CategoryDestinationPermission
	}
	return CategoryGeneric
}

// Classify returns the category of any error returned by Publish.
func Classify(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category()
	}
	return CategoryGeneric
}
