package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-post-scheduler/internal/domain"
	"github.com/tbourn/go-post-scheduler/internal/publisher"
)

func newScheduler(pipeline *PublishService) *SchedulerService {
	return &SchedulerService{DB: pipeline.DB, Pipeline: pipeline, Settings: pipeline.Settings, Now: pipeline.Now}
}

func TestSchedulerRun_IsolatesFailures(t *testing.T) {
	db := newServiceDB(t)
	pub := &fakePublisher{configured: map[string]bool{"u1": true}}
	sched := newScheduler(newPipeline(db, pub, newTestLimiter(20)))

	ok1 := seedPost(t, db, "u1", domain.StatusScheduled, ago(3*time.Minute))
	bad := seedPost(t, db, "u1", domain.StatusScheduled, ago(2*time.Minute))
	orphan := seedPost(t, db, "", domain.StatusScheduled, ago(time.Minute))
	ok2 := seedPost(t, db, "u1", domain.StatusScheduled, ago(30*time.Second))
	pub.failItems = map[string]error{bad.ID: &publisher.APIError{Op: "post", StatusCode: 500, Detail: "boom"}}

	res, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 4 || res.Published != 2 || res.Failed != 2 || res.Skipped != 0 {
		t.Fatalf("res = %+v", res)
	}
	// oldest first
	if res.Results[0].ID != ok1.ID || res.Results[3].ID != ok2.ID {
		t.Fatalf("order = %+v", res.Results)
	}

	want := map[string]domain.Status{
		ok1.ID:    domain.StatusPublished,
		bad.ID:    domain.StatusFailed,
		orphan.ID: domain.StatusFailed,
		ok2.ID:    domain.StatusPublished,
	}
	for id, st := range want {
		if got := mustGetPost(t, db, id).Status; got != st {
			t.Fatalf("%s status = %s; want %s", id, got, st)
		}
	}

	st, err := sched.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Run == nil || st.Run.Processed != 4 {
		t.Fatalf("last run = %+v", st.Run)
	}
	if st.Error == nil || len(st.Error.Failures) != 2 {
		t.Fatalf("last error = %+v", st.Error)
	}
}

func TestSchedulerRun_IgnoresDraftsAndFutureSlots(t *testing.T) {
	db := newServiceDB(t)
	pub := &fakePublisher{}
	sched := newScheduler(newPipeline(db, pub, nil))

	draft := seedPost(t, db, "u1", domain.StatusDraft, ago(time.Hour))
	future := seedPost(t, db, "u1", domain.StatusScheduled, ago(-time.Hour))
	unscheduled := seedPost(t, db, "u1", domain.StatusScheduled, nil)

	res, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 0 || pub.publishCount() != 0 {
		t.Fatalf("res = %+v, calls = %d", res, pub.publishCount())
	}
	for _, p := range []*domain.Post{draft, future, unscheduled} {
		if got := mustGetPost(t, db, p.ID).Status; got != p.Status {
			t.Fatalf("%s changed to %s", p.ID, got)
		}
	}
}

func TestSchedulerRun_ErrorDiagnosticSurvivesCleanRuns(t *testing.T) {
	db := newServiceDB(t)
	pub := &fakePublisher{}
	pipeline := newPipeline(db, pub, nil)
	sched := newScheduler(pipeline)

	seedPost(t, db, "", domain.StatusScheduled, ago(time.Minute))
	if _, err := sched.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	later := testNow.Add(10 * time.Minute)
	sched.Now = func() time.Time { return later }
	seedPost(t, db, "u1", domain.StatusScheduled, ago(0))
	if _, err := sched.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	st, err := sched.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Run == nil || !st.Run.Timestamp.Equal(later) || st.Run.Processed != 1 {
		t.Fatalf("last run = %+v", st.Run)
	}
	if st.Error == nil || !st.Error.Timestamp.Equal(testNow) || len(st.Error.Failures) != 1 {
		t.Fatalf("last error = %+v; want the first run's failure", st.Error)
	}
}

func TestSchedulerRun_SkipsItemsOwnedByAnotherRun(t *testing.T) {
	db := newServiceDB(t)
	pub := &fakePublisher{}
	pipeline := newPipeline(db, pub, nil)
	sched := newScheduler(pipeline)
	p := seedPost(t, db, "u1", domain.StatusScheduled, ago(time.Minute))

	// Another run claimed the post just now.
	if err := db.Model(&domain.Post{}).Where("id = ?", p.ID).Updates(map[string]any{
		"claim_token": "other",
		"claimed_at":  testNow,
	}).Error; err != nil {
		t.Fatalf("claim: %v", err)
	}

	res, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Skipped != 1 || res.Failed != 0 || res.Results[0].Status != ResultSkipped {
		t.Fatalf("res = %+v", res)
	}
	st, _ := sched.Status(context.Background())
	if st.Error != nil {
		t.Fatalf("skips must not be recorded as errors: %+v", st.Error)
	}
}

func TestSchedulerRun_AbandonedClaimIsAFailure(t *testing.T) {
	db := newServiceDB(t)
	pub := &fakePublisher{}
	sched := newScheduler(newPipeline(db, pub, nil))
	p := seedPost(t, db, "u1", domain.StatusScheduled, ago(time.Hour))

	if err := db.Model(&domain.Post{}).Where("id = ?", p.ID).Updates(map[string]any{
		"claim_token": "crashed",
		"claimed_at":  testNow.Add(-time.Hour),
	}).Error; err != nil {
		t.Fatalf("claim: %v", err)
	}

	res, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Results[0].Status != ResultFailed {
		t.Fatalf("res = %+v", res)
	}
	if pub.publishCount() != 0 {
		t.Fatalf("abandoned post was sent again")
	}
	if got := mustGetPost(t, db, p.ID); got.Status != domain.StatusFailed {
		t.Fatalf("status = %s; want FAILED", got.Status)
	}
}

func TestSchedulerRun_CancellationStopsBetweenItems(t *testing.T) {
	db := newServiceDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{onPublish: func(publisher.PublishRequest) { cancel() }}
	sched := newScheduler(newPipeline(db, pub, nil))

	first := seedPost(t, db, "u1", domain.StatusScheduled, ago(2*time.Minute))
	second := seedPost(t, db, "u1", domain.StatusScheduled, ago(time.Minute))

	res, err := sched.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d; want 1", res.Processed)
	}
	if got := mustGetPost(t, db, first.ID).Status; got != domain.StatusPublished {
		t.Fatalf("first = %s; terminal write must survive cancellation", got)
	}
	if got := mustGetPost(t, db, second.ID).Status; got != domain.StatusScheduled {
		t.Fatalf("second = %s; want untouched", got)
	}
	st, err := sched.Status(context.Background())
	if err != nil || st.Run == nil || st.Run.Processed != 1 {
		t.Fatalf("last run = %+v, err = %v", st.Run, err)
	}
}

func TestSchedulerRun_AbortsWhenStoreUnavailable(t *testing.T) {
	db := newServiceDB(t)
	sched := newScheduler(newPipeline(db, &fakePublisher{}, nil))

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	_ = sqlDB.Close()

	if _, err := sched.Run(context.Background()); !errors.Is(err, ErrRunAborted) {
		t.Fatalf("err = %v; want ErrRunAborted", err)
	}
}

func TestSchedulerStatus_EmptyBeforeFirstRun(t *testing.T) {
	db := newServiceDB(t)
	sched := newScheduler(newPipeline(db, &fakePublisher{}, nil))

	st, err := sched.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Run != nil || st.Error != nil {
		t.Fatalf("status = %+v; want empty", st)
	}
}
