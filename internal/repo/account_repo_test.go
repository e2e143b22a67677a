package repo

import (
	"context"
	"errors"
	"testing"
)

func TestAccount_UpsertGetClear(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := GetAccount(ctx, db, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	a, err := UpsertAccount(ctx, db, "u1", "alice", "tok-1", "client")
	if err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	if !a.HasCredentials() || a.Handle != "alice" {
		t.Fatalf("unexpected account: %+v", a)
	}

	a, err = UpsertAccount(ctx, db, "u1", "alice2", "tok-2", "client")
	if err != nil || a.AccessToken != "tok-2" || a.Handle != "alice2" {
		t.Fatalf("expected overwrite, got %+v err=%v", a, err)
	}

	if err := ClearCredentials(ctx, db, "u1"); err != nil {
		t.Fatalf("ClearCredentials: %v", err)
	}
	a, _ = GetAccount(ctx, db, "u1")
	if a.HasCredentials() {
		t.Fatalf("expected credentials cleared, got %+v", a)
	}

	if err := ClearCredentials(ctx, db, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}
}
