// Package services – PostService
//
// PostService creates, edits, and reads posts on behalf of their owner.
// Creation and edits validate text and thread segments against the platform's
// limits and only admit DRAFT or SCHEDULED; every other status is reached
// through the publish pipeline. Edits and deletes are conditional writes that
// refuse PUBLISHED posts and posts a publish attempt is holding.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// MaxTextRunes caps the primary text of a post.
const MaxTextRunes = 10000

// PostRepo is the persistence contract PostService needs.
type PostRepo interface {
	CreatePost(ctx context.Context, db *gorm.DB, in repo.NewPostInput) (*domain.Post, error)
	GetUserPost(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Post, error)
	ListUserPosts(ctx context.Context, db *gorm.DB, userID string, f repo.PostFilter) ([]domain.Post, error)
	UpdatePost(ctx context.Context, db *gorm.DB, id, userID string, fields map[string]any, leaseCutoff, at time.Time) (*domain.Post, error)
	DeletePost(ctx context.Context, db *gorm.DB, id, userID string, leaseCutoff time.Time) error
}

// CreatePostInput is the validated shape accepted by Create.
type CreatePostInput struct {
	Text        string
	Thread      []string
	Tags        []string
	Status      domain.Status
	ScheduledAt *time.Time
	CommunityID string
}

// UpdatePostInput carries a partial edit. Nil fields are left unchanged.
type UpdatePostInput struct {
	Text   *string
	Thread *[]string // an empty slice clears the thread
	Tags   *[]string
	Status *domain.Status
	// ScheduledAt sets a new slot; ClearSchedule removes it.
	ScheduledAt   *time.Time
	ClearSchedule bool
	CommunityID   *string // "" clears the destination
}

// PostService handles post CRUD.
type PostService struct {
	DB   *gorm.DB
	Repo PostRepo

	// ClaimLease must match the publish pipeline's lease so an edit never
	// lands under a live claim.
	ClaimLease time.Duration
	Now        func() time.Time
}

// NewPostService wires a PostService.
func NewPostService(db *gorm.DB, r PostRepo) *PostService {
	return &PostService{DB: db, Repo: r}
}

func (s *PostService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *PostService) leaseCutoff() time.Time {
	l := s.ClaimLease
	if l <= 0 {
		l = 5 * time.Minute
	}
	return s.now().Add(-l)
}

// Create validates in and stores a new post owned by userID.
func (s *PostService) Create(ctx context.Context, userID string, in CreatePostInput) (*domain.Post, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Create", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingOwner
	}
	text, err := validText(in.Text)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = domain.StatusDraft
		if in.ScheduledAt != nil {
			status = domain.StatusScheduled
		}
	}
	if err := validSchedule(status, in.ScheduledAt); err != nil {
		return nil, err
	}

	thread, err := validThread(text, in.Thread)
	if err != nil {
		return nil, err
	}

	var community *string
	if c := strings.TrimSpace(in.CommunityID); c != "" {
		community = &c
	}
	return s.Repo.CreatePost(ctx, s.DB, repo.NewPostInput{
		UserID:      userID,
		Text:        text,
		ThreadJSON:  thread,
		Tags:        joinTags(in.Tags),
		Status:      status,
		ScheduledAt: in.ScheduledAt,
		CommunityID: community,
	})
}

// Update applies in to the user's post. The merged result is validated as a
// whole.
//
// Errors: ErrPostNotFound, ErrInvalidPost, ErrAlreadyPublished, ErrInFlight.
func (s *PostService) Update(ctx context.Context, userID, postID string, in UpdatePostInput) (*domain.Post, error) {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Update", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("post.id", postID),
	))
	defer span.End()

	cur, err := s.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if cur.Status == domain.StatusPublished {
		return nil, ErrAlreadyPublished
	}

	fields := map[string]any{}

	text := cur.Text
	if in.Text != nil {
		if text, err = validText(*in.Text); err != nil {
			return nil, err
		}
		fields["text"] = text
	}

	thread := cur.ThreadJSON
	if in.Thread != nil {
		if thread, err = domain.EncodeThread(*in.Thread); err != nil {
			return nil, err
		}
		fields["thread_json"] = thread
	}
	segs := (&domain.Post{Text: text, ThreadJSON: thread}).Segments()
	if err := validSegments(segs); err != nil {
		return nil, err
	}

	at := cur.ScheduledAt
	switch {
	case in.ClearSchedule:
		at = nil
		fields["scheduled_at"] = nil
	case in.ScheduledAt != nil:
		v := in.ScheduledAt.UTC()
		at = &v
		fields["scheduled_at"] = v
	}

	status := cur.Status
	if in.Status != nil {
		status = *in.Status
		fields["status"] = status
	}
	if in.Status != nil || status == domain.StatusScheduled {
		if err := validSchedule(status, at); err != nil {
			return nil, err
		}
	}

	if in.Tags != nil {
		fields["tags"] = joinTags(*in.Tags)
	}
	if in.CommunityID != nil {
		if c := strings.TrimSpace(*in.CommunityID); c != "" {
			fields["community_id"] = c
		} else {
			fields["community_id"] = nil
		}
	}

	p, err := s.Repo.UpdatePost(ctx, s.DB, postID, userID, fields, s.leaseCutoff(), s.now())
	if err != nil {
		return nil, s.writeError(ctx, userID, postID, err)
	}
	return p, nil
}

// Delete removes the user's post and its snapshot history.
//
// Errors: ErrPostNotFound, ErrInFlight.
func (s *PostService) Delete(ctx context.Context, userID, postID string) error {
	tr := otel.Tracer("services/PostService")
	ctx, span := tr.Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("post.id", postID),
	))
	defer span.End()

	if err := s.Repo.DeletePost(ctx, s.DB, postID, userID, s.leaseCutoff()); err != nil {
		return s.writeError(ctx, userID, postID, err)
	}
	return nil
}

// writeError maps a refused conditional write to a service error.
func (s *PostService) writeError(ctx context.Context, userID, postID string, err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrPostNotFound
	case errors.Is(err, repo.ErrNotClaimable):
		if cur, gerr := s.Repo.GetUserPost(ctx, s.DB, postID, userID); gerr == nil && cur.Status == domain.StatusPublished {
			return ErrAlreadyPublished
		}
		return ErrInFlight
	}
	return err
}

func validText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", fmt.Errorf("%w: text is required", ErrInvalidPost)
	}
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return "", fmt.Errorf("%w: text exceeds %d characters", ErrInvalidPost, MaxTextRunes)
	}
	return text, nil
}

func validSchedule(status domain.Status, at *time.Time) error {
	switch status {
	case domain.StatusDraft:
	case domain.StatusScheduled:
		if at == nil {
			return fmt.Errorf("%w: scheduled posts need scheduledAt", ErrInvalidPost)
		}
	default:
		return fmt.Errorf("%w: status must be DRAFT or SCHEDULED", ErrInvalidPost)
	}
	return nil
}

// validThread encodes segments and checks the publishable result.
func validThread(text string, segments []string) (*string, error) {
	thread, err := domain.EncodeThread(segments)
	if err != nil {
		return nil, err
	}
	if err := validSegments((&domain.Post{Text: text, ThreadJSON: thread}).Segments()); err != nil {
		return nil, err
	}
	return thread, nil
}

func validSegments(segs []string) error {
	if len(segs) > domain.MaxThreadSegments {
		return fmt.Errorf("%w: thread exceeds %d segments", ErrInvalidPost, domain.MaxThreadSegments)
	}
	for i, seg := range segs {
		if utf8.RuneCountInString(seg) > domain.MaxSegmentRunes {
			return fmt.Errorf("%w: segment %d exceeds %d characters", ErrInvalidPost, i+1, domain.MaxSegmentRunes)
		}
	}
	return nil
}

