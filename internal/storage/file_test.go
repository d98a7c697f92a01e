package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "nudgebot/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "nudgebot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestFileStoreUpsertGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	o := Obligation{
		UserID:         "u1",
		ThreadID:       "t1",
		ActivityTime:   time.Date(2024, 3, 4, 11, 30, 0, 0, time.UTC),
		RequestedHours: 24,
	}
	if err := st.UpsertObligation(ctx, o); err != nil {
		t.Fatalf("UpsertObligation: %v", err)
	}

	got, ok, err := st.GetObligation(ctx, "u1", "t1")
	if err != nil || !ok {
		t.Fatalf("GetObligation = %v, %v, %v", got, ok, err)
	}
	if !got.ActivityTime.Equal(o.ActivityTime) || got.RequestedHours != 24 {
		t.Fatalf("GetObligation = %+v, want %+v", got, o)
	}

	// Upsert for the same key replaces, never duplicates.
	o2 := o
	o2.ActivityTime = o.ActivityTime.Add(2 * time.Hour)
	o2.RequestedHours = 8
	if err := st.UpsertObligation(ctx, o2); err != nil {
		t.Fatalf("UpsertObligation (replace): %v", err)
	}
	all, err := st.ListObligations(ctx)
	if err != nil {
		t.Fatalf("ListObligations: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("ListObligations len = %d, want 1", len(all))
	}
	if all[0].RequestedHours != 8 {
		t.Fatalf("replaced row not honored: %+v", all[0])
	}

	if err := st.DeleteObligation(ctx, "u1", "t1"); err != nil {
		t.Fatalf("DeleteObligation: %v", err)
	}
	if _, ok, _ := st.GetObligation(ctx, "u1", "t1"); ok {
		t.Fatal("obligation still present after delete")
	}
}

func TestFileStoreDeleteMissingIsNoop(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir())
	defer st.Close()
	if err := st.DeleteObligation(context.Background(), "nobody", "nowhere"); err != nil {
		t.Fatalf("DeleteObligation on missing row: %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st := openTestStore(t, dir)
	for _, o := range []Obligation{
		{UserID: "u1", ThreadID: "t1", ActivityTime: time.Now().UTC(), RequestedHours: 24},
		{UserID: "u2", ThreadID: "t1", ActivityTime: time.Now().UTC(), RequestedHours: 4},
		{UserID: "u1", ThreadID: "t2", ActivityTime: time.Now().UTC(), RequestedHours: 24},
	} {
		if err := st.UpsertObligation(ctx, o); err != nil {
			t.Fatalf("UpsertObligation: %v", err)
		}
	}
	if err := st.DeleteObligation(ctx, "u2", "t1"); err != nil {
		t.Fatalf("DeleteObligation: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2 := openTestStore(t, dir)
	defer st2.Close()
	all, err := st2.ListObligations(ctx)
	if err != nil {
		t.Fatalf("ListObligations after reopen: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListObligations after reopen len = %d, want 2", len(all))
	}
	for _, o := range all {
		if o.UserID == "u2" {
			t.Fatalf("deleted row resurrected: %+v", o)
		}
	}
}

func TestFileStoreDeleteAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	for i, u := range []string{"a", "b", "c"} {
		o := Obligation{UserID: u, ThreadID: "t", ActivityTime: time.Now().UTC(), RequestedHours: i + 1}
		if err := st.UpsertObligation(ctx, o); err != nil {
			t.Fatalf("UpsertObligation: %v", err)
		}
	}
	n, err := st.DeleteAllObligations(ctx)
	if err != nil {
		t.Fatalf("DeleteAllObligations: %v", err)
	}
	if n != 3 {
		t.Fatalf("DeleteAllObligations = %d, want 3", n)
	}
	all, err := st.ListObligations(ctx)
	if err != nil {
		t.Fatalf("ListObligations: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ListObligations after clear len = %d, want 0", len(all))
	}
}

func TestFileStoreAppendAudit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir())
	defer st.Close()
	e := AuditEntry{At: time.Now().UTC(), Event: "obligation_started", UserID: "u1", ThreadID: "t1"}
	if err := st.AppendAudit(context.Background(), e); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}
