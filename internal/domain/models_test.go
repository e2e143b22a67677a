package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		Post{}.TableName():        "posts",
		Metric{}.TableName():      "metrics",
		Account{}.TableName():     "accounts",
		Setting{}.TableName():     "settings",
		Idempotency{}.TableName(): "idempotency",
		Feedback{}.TableName():    "feedback",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	for _, s := range []Status{"", "published", "QUEUED"} {
		if s.Valid() {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestIsSimulatedID(t *testing.T) {
	if !IsSimulatedID("mock_1700000000000_abc") {
		t.Fatalf("mock id not recognized")
	}
	if IsSimulatedID("1790000000000000000") || IsSimulatedID("") {
		t.Fatalf("real or empty id misclassified as simulated")
	}
}

func TestPostAccessors(t *testing.T) {
	p := &Post{}
	if p.HasOwner() || p.Destination() != "" || p.ExternalID() != "" {
		t.Fatalf("zero post accessors unexpected: %+v", p)
	}
	c, x := " 123 ", "42"
	p = &Post{UserID: "u1", CommunityID: &c, XTweetID: &x}
	if !p.HasOwner() || p.Destination() != "123" || p.ExternalID() != "42" {
		t.Fatalf("accessors unexpected: owner=%v dest=%q ext=%q", p.HasOwner(), p.Destination(), p.ExternalID())
	}
	if (&Post{UserID: "   "}).HasOwner() {
		t.Fatalf("blank owner must not count as owner")
	}
}

func TestAccount_HasCredentials(t *testing.T) {
	var nilAcc *Account
	if nilAcc.HasCredentials() {
		t.Fatalf("nil account has no credentials")
	}
	if (&Account{ClientID: "cid"}).HasCredentials() {
		t.Fatalf("client id alone must not be usable")
	}
	if !(&Account{AccessToken: "tok"}).HasCredentials() {
		t.Fatalf("access token should be usable")
	}
}

func TestMetric_Engagement(t *testing.T) {
	m := Metric{Impressions: 100, Likes: 5, Replies: 2, Reposts: 3, Bookmarks: 4}
	if got := m.Engagement(); got != 100+10+6+6+4 {
		t.Fatalf("Engagement() = %d", got)
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Post{}, &Metric{}, &Account{}, &Setting{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Post{}, &Metric{}, &Account{}, &Setting{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Post{}, "idx_status_due") {
		t.Fatalf("expected index idx_status_due on posts")
	}
	if !m.HasIndex(&Metric{}, "idx_post_captured") {
		t.Fatalf("expected index idx_post_captured on metrics")
	}

	now := time.Now().UTC()
	p := &Post{ID: "p1", UserID: "u1", Text: "hello", Status: StatusScheduled, ScheduledAt: &now}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("insert post: %v", err)
	}
	if err := db.Create(&Post{ID: "p2", UserID: "u1", Text: "x", Status: "BOGUS"}).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown status")
	}

	for i := 0; i < 2; i++ {
		mt := &Metric{ID: fmt.Sprintf("m%d", i), PostID: "p1", Impressions: int64(i), Source: SourceReal, CapturedAt: now.Add(time.Duration(i) * time.Minute)}
		if err := db.Create(mt).Error; err != nil {
			t.Fatalf("insert metric: %v", err)
		}
	}
	if err := db.Create(&Metric{ID: "neg", PostID: "p1", Likes: -1, CapturedAt: now}).Error; err == nil {
		t.Fatalf("expected CHECK violation for negative likes")
	}

	// CASCADE: deleting the post removes its snapshots
	if err := db.Delete(&Post{}, "id = ?", "p1").Error; err != nil {
		t.Fatalf("delete post: %v", err)
	}
	var cnt int64
	if err := db.Model(&Metric{}).Where("post_id = ?", "p1").Count(&cnt).Error; err != nil {
		t.Fatalf("count metrics: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected metrics to cascade-delete with post, got %d", cnt)
	}
}

func TestFeedbackType_Valid(t *testing.T) {
	for _, ft := range []FeedbackType{FeedbackBug, FeedbackFeature, FeedbackSuggestion, FeedbackOther} {
		if !ft.Valid() {
			t.Fatalf("%q should be valid", ft)
		}
	}
	for _, ft := range []FeedbackType{"", "praise", "BUG"} {
		if ft.Valid() {
			t.Fatalf("%q should be invalid", ft)
		}
	}
}
