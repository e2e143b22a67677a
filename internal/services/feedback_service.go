// Package services – FeedbackService
//
// FeedbackService lets any user leave a typed note about the product and lets
// admins read and delete them. Admins are a fixed set of user ids from
// configuration.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// MaxFeedbackRunes caps the text of one feedback entry.
const MaxFeedbackRunes = 5000

var (
	// ErrInvalidFeedback is returned when the type or text is rejected.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrFeedbackNotFound is returned when deleting an unknown entry.
	ErrFeedbackNotFound = errors.New("feedback not found")
	// ErrForbidden is returned when a non-admin reads or deletes feedback.
	ErrForbidden = errors.New("admin access required")
)

// FeedbackService implements leaving, listing, and deleting feedback.
type FeedbackService struct {
	DB *gorm.DB
	// Admins may list and delete feedback.
	Admins []string
}

// IsAdmin reports whether userID is in the configured admin set.
func (s *FeedbackService) IsAdmin(userID string) bool {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	for _, a := range s.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

// Leave stores feedback from userID. An empty kind defaults to suggestion.
func (s *FeedbackService) Leave(ctx context.Context, userID string, kind domain.FeedbackType, text string) (*domain.Feedback, error) {
	tr := otel.Tracer("services/FeedbackService")
	ctx, span := tr.Start(ctx, "Leave", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("feedback.type", string(kind)),
	))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingOwner
	}
	if kind == "" {
		kind = domain.FeedbackSuggestion
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: type must be bug, feature, suggestion, or other", ErrInvalidFeedback)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidFeedback)
	}
	if utf8.RuneCountInString(text) > MaxFeedbackRunes {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidFeedback, MaxFeedbackRunes)
	}
	return repo.CreateFeedback(ctx, s.DB, userID, kind, text)
}

// List returns every entry, newest first, for an admin caller.
func (s *FeedbackService) List(ctx context.Context, userID string, limit int) ([]domain.Feedback, error) {
	if !s.IsAdmin(userID) {
		return nil, ErrForbidden
	}
	items, err := repo.ListFeedback(ctx, s.DB, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Feedback{}
	}
	return items, nil
}

// Delete removes one entry for an admin caller.
func (s *FeedbackService) Delete(ctx context.Context, userID, id string) error {
	if !s.IsAdmin(userID) {
		return ErrForbidden
	}
	if err := repo.DeleteFeedback(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFeedbackNotFound
		}
		return err
	}
	return nil
}
