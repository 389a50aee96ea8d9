package sqlite

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

func newTestDB(t *testing.T) *ScheduleStore {
	t.Helper()
	// A unique in-memory database per test so parallel tests never share
	// state; modernc.org/sqlite treats ":memory:" as a fresh database per
	// connection.
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewScheduleStore(db)
}

func TestScheduleStore_CreateGetRoundTrip(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.ScheduleDraft{
		Name:            "daily-listed-info",
		TaskName:        "fetch_listed_info",
		CronExpression:  "0 6 * * *",
		Enabled:         true,
		Kwargs:          json.RawMessage(`{"period_type":"yesterday"}`),
		Tags:            []string{"jquants", "daily"},
		ExecutionPolicy: model.PolicySkip,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.AutoGeneratedName {
		t.Fatalf("expected explicit Name to suppress auto-generation")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "daily-listed-info" || got.TaskName != "fetch_listed_info" {
		t.Fatalf("round-tripped schedule mismatch: %+v", got)
	}
	if len(got.Tags) != 2 {
		t.Fatalf("tags = %v, want 2 entries", got.Tags)
	}
}

func TestScheduleStore_Create_DuplicateNameAllowed(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	draft := model.ScheduleDraft{Name: "dup", TaskName: "noop", CronExpression: "* * * * *", ExecutionPolicy: model.PolicyAllow}

	first, err := s.Create(ctx, draft)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := s.Create(ctx, draft)
	if err != nil {
		t.Fatalf("second Create with the same name: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected two distinct schedules sharing a name")
	}
}

func TestScheduleStore_Create_AutoGeneratesNameWhenEmpty(t *testing.T) {
	s := newTestDB(t)
	created, err := s.Create(context.Background(), model.ScheduleDraft{
		TaskName:        "fetch_listed_info",
		CronExpression:  "0 6 * * *",
		ExecutionPolicy: model.PolicyAllow,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !created.AutoGeneratedName {
		t.Fatalf("expected AutoGeneratedName = true when Name is empty")
	}
	if created.Name == "" {
		t.Fatalf("expected a non-empty generated name")
	}
}

func TestScheduleStore_Delete(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	created, err := s.Create(ctx, model.ScheduleDraft{Name: "to-delete", TaskName: "noop", CronExpression: "* * * * *", ExecutionPolicy: model.PolicyAllow})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, created.ID); err != store.ErrNotFound {
		t.Fatalf("Get after Delete = %v, want store.ErrNotFound", err)
	}
}

func TestExecutionLogStore_BeginCompleteFailIsTerminalOnce(t *testing.T) {
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logs := NewExecutionLogStore(db)
	ctx := context.Background()

	entry, err := logs.Begin(ctx, nil, "fetch_listed_info")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if entry.Status != model.StatusRunning {
		t.Fatalf("status = %q, want running", entry.Status)
	}

	if err := logs.Complete(ctx, entry.ID, []byte(`{"fetched":1}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// A second terminal transition must not error and must not overwrite
	// the first outcome (first-writer-wins).
	if err := logs.Fail(ctx, entry.ID, "too late"); err != nil {
		t.Fatalf("Fail after Complete: %v", err)
	}

	got, err := logs.get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusSuccess {
		t.Fatalf("status after racing terminal writes = %q, want success (first writer wins)", got.Status)
	}
}

func TestListedInfoStore_BulkUpsertUpdatesOnConflict(t *testing.T) {
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	listed := NewListedInfoStore(db)
	ctx := context.Background()

	n, err := listed.BulkUpsert(ctx, []model.ListedInfo{
		{Date: "2026-01-05", Code: "1301", CompanyName: "Example Co"},
	})
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}

	n, err = listed.BulkUpsert(ctx, []model.ListedInfo{
		{Date: "2026-01-05", Code: "1301", CompanyName: "Example Co Renamed"},
	})
	if err != nil {
		t.Fatalf("BulkUpsert (update): %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
}
