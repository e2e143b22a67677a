// Package domain defines the persistence models for scheduled posts, metric
// snapshots, owner accounts, and process settings. These types are mapped with
// GORM and form the core data layer of the scheduler.
package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Post.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Statuses lists every valid Status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusScheduled, StatusPublished, StatusFailed}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// SimulatedIDPrefix marks external ids fabricated in simulation mode. Real
// platform ids are numeric and never carry it.
const SimulatedIDPrefix = "mock_"

// IsSimulatedID reports whether id was produced by simulation.
func IsSimulatedID(id string) bool { return strings.HasPrefix(id, SimulatedIDPrefix) }

// Post is one piece of content destined for the external platform.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: owning account; required for credential lookup. Posts without
//     an owner are invalid and fail closed.
//   - Text: primary body, used as the single segment when no thread is set.
//   - ThreadJSON: optional JSON array of segments, in publish order.
//   - Status: lifecycle state (see Status).
//   - ScheduledAt: when the post becomes due; nil keeps it out of the scan.
//   - CommunityID: optional destination forwarded to the platform unchanged.
//   - XTweetID: external id, set once publishing succeeds.
//   - PublishedAt: set exactly once on the first successful publish.
//   - ClaimToken / ClaimedAt: short-lived publish lease; see repo.ClaimPost.
type Post struct {
	ID          string     `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID      string     `json:"user_id"                gorm:"type:varchar(64);not null;default:'';index:idx_user_posts"`
	Text        string     `json:"text"                   gorm:"type:text;not null"`
	ThreadJSON  *string    `json:"thread_json,omitempty"  gorm:"column:thread_json;type:text"`
	Tags        string     `json:"tags"                   gorm:"type:varchar(255);not null;default:''"`
	Status      Status     `json:"status"                 gorm:"type:varchar(16);not null;default:'DRAFT';index:idx_status_due,priority:1;check:status IN ('DRAFT','SCHEDULED','PUBLISHED','FAILED')"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" gorm:"index:idx_status_due,priority:2"`
	CommunityID *string    `json:"community_id,omitempty" gorm:"type:varchar(64)"`
	XTweetID    *string    `json:"x_tweet_id,omitempty"   gorm:"column:x_tweet_id;type:varchar(128);index"`
	PublishedAt *time.Time `json:"published_at,omitempty" gorm:"index"`
	ClaimToken  *string    `json:"-"                      gorm:"type:char(36)"`
	ClaimedAt   *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Metrics holds snapshots when explicitly preloaded, newest first.
	Metrics []Metric `json:"metrics,omitempty" gorm:"foreignKey:PostID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// HasOwner reports whether the post references an owning account.
func (p *Post) HasOwner() bool { return strings.TrimSpace(p.UserID) != "" }

// Destination returns the community id, or "" when none is set.
func (p *Post) Destination() string {
	if p.CommunityID == nil {
		return ""
	}
	return strings.TrimSpace(*p.CommunityID)
}

// ExternalID returns the platform id, or "" before publishing.
func (p *Post) ExternalID() string {
	if p.XTweetID == nil {
		return ""
	}
	return *p.XTweetID
}

// MetricSource classifies where a snapshot's numbers came from.
type MetricSource string

const (
	SourceReal        MetricSource = "real"
	SourceSimulated   MetricSource = "simulated"
	SourceUnavailable MetricSource = "unavailable"
)

// Metric is an immutable engagement snapshot for one Post. Snapshots are only
// ever appended; the most recent one by CapturedAt is the current value.
type Metric struct {
	ID          string       `json:"id"          gorm:"type:char(36);primaryKey"`
	PostID      string       `json:"post_id"     gorm:"type:char(36);not null;index:idx_post_captured,priority:1"`
	Impressions int64        `json:"impressions" gorm:"not null;default:0;check:impressions >= 0"`
	Likes       int64        `json:"likes"       gorm:"not null;default:0;check:likes >= 0"`
	Replies     int64        `json:"replies"     gorm:"not null;default:0;check:replies >= 0"`
	Reposts     int64        `json:"reposts"     gorm:"not null;default:0;check:reposts >= 0"`
	Bookmarks   int64        `json:"bookmarks"   gorm:"not null;default:0;check:bookmarks >= 0"`
	Source      MetricSource `json:"source"      gorm:"type:varchar(16);not null;default:'real'"`
	CapturedAt  time.Time    `json:"captured_at" gorm:"not null;index:idx_post_captured,priority:2"`
}

// TableName returns the database table name for Metric.
func (Metric) TableName() string { return "metrics" }

// Engagement is the weighted score used to rank posts.
func (m Metric) Engagement() int64 {
	return m.Impressions + m.Likes*2 + m.Replies*3 + m.Reposts*2 + m.Bookmarks
}

// Account is a post owner and the platform credentials used to publish on
// their behalf.
type Account struct {
	ID          string    `json:"id"           gorm:"type:varchar(64);primaryKey"`
	Handle      string    `json:"handle"       gorm:"type:varchar(64);not null;default:''"`
	AccessToken string    `json:"-"            gorm:"type:text;not null;default:''"`
	ClientID    string    `json:"-"            gorm:"type:varchar(128);not null;default:''"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "accounts" }

// HasCredentials reports whether the account can publish for real. A client
// id alone is not enough to call the posting endpoint.
func (a *Account) HasCredentials() bool {
	return a != nil && strings.TrimSpace(a.AccessToken) != ""
}

// FeedbackType classifies a feedback entry.
type FeedbackType string

const (
	FeedbackBug        FeedbackType = "bug"
	FeedbackFeature    FeedbackType = "feature"
	FeedbackSuggestion FeedbackType = "suggestion"
	FeedbackOther      FeedbackType = "other"
)

// Valid reports whether t is a known feedback type.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackBug, FeedbackFeature, FeedbackSuggestion, FeedbackOther:
		return true
	}
	return false
}

// Feedback is a free-text note a user leaves about the product. Only admins
// can read or delete it.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: author; kept as plain text so feedback outlives the account.
//   - Type: bug, feature, suggestion, or other.
//   - Text: the note itself (1–5000 chars).
type Feedback struct {
	ID        string       `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string       `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	Type      FeedbackType `json:"type"       gorm:"type:varchar(16);not null;default:'suggestion';check:type IN ('bug','feature','suggestion','other')"`
	Text      string       `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"index"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// Setting is a keyed JSON document. It stores process-wide state such as the
// simulation flag and scheduler diagnostics.
type Setting struct {
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	ValueJSON string    `gorm:"column:value_json;type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return "settings" }

// Setting keys.
const (
	SettingSimulationMode   = "SIMULATION_MODE"
	SettingSchedulerLastRun = "SCHEDULER_LAST_RUN"
	SettingSchedulerLastErr = "SCHEDULER_LAST_ERROR"
)
