package stores

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	store, err := NewSQLiteStoreSimple(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)

	run := &Run{
		RunID:   "run-1",
		Channel: "cli",
		Input:   "multiply 2 and 3",
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Status != "running" {
		t.Errorf("Expected default status running, got %s", run.Status)
	}

	if err := store.CompleteRun("run-1", "The product of 2 * 3 is 6", nil); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	fetched, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched.Status != "completed" {
		t.Errorf("Expected status completed, got %s", fetched.Status)
	}
	if fetched.Output != "The product of 2 * 3 is 6" {
		t.Errorf("Unexpected output: %q", fetched.Output)
	}
	if fetched.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestSQLiteStore_FailedRun(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateRun(&Run{RunID: "run-err", Channel: "http"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.CompleteRun("run-err", "", errors.New("llm timeout")); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	fetched, err := store.GetRun("run-err")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if fetched.Status != "failed" {
		t.Errorf("Expected status failed, got %s", fetched.Status)
	}
	if fetched.Error != "llm timeout" {
		t.Errorf("Expected error message, got %q", fetched.Error)
	}
}

func TestSQLiteStore_CompleteUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if err := store.CompleteRun("ghost", "x", nil); err == nil {
		t.Error("Expected error completing unknown run")
	}
}

func TestSQLiteStore_GetUnknownRun(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetRun("ghost"); err == nil {
		t.Error("Expected error for unknown run")
	}
}

func TestSQLiteStore_Steps(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateRun(&Run{RunID: "run-steps", Channel: "ws"}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	base := time.Now()
	steps := []StepRecord{
		{StepUUID: "u1", EventType: "WORKFLOW_START", Name: "agent", Timestamp: base, Input: "hi"},
		{StepUUID: "u2", EventType: "TOOL_START", Name: "calc", Timestamp: base.Add(time.Millisecond)},
		{StepUUID: "u2", EventType: "TOOL_END", Name: "calc", Timestamp: base.Add(2 * time.Millisecond), Output: "6"},
		{StepUUID: "u1", EventType: "WORKFLOW_END", Name: "agent", Timestamp: base.Add(3 * time.Millisecond), Output: "done"},
	}
	if err := store.SaveSteps("run-steps", steps); err != nil {
		t.Fatalf("SaveSteps failed: %v", err)
	}

	fetched, err := store.FetchSteps("run-steps")
	if err != nil {
		t.Fatalf("FetchSteps failed: %v", err)
	}
	if len(fetched) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(fetched))
	}
	if fetched[0].EventType != "WORKFLOW_START" || fetched[3].EventType != "WORKFLOW_END" {
		t.Errorf("Expected steps ordered by timestamp, got %s first and %s last",
			fetched[0].EventType, fetched[3].EventType)
	}
	if fetched[2].Output != "6" {
		t.Errorf("Expected tool output 6, got %q", fetched[2].Output)
	}
}

func TestSQLiteStore_SaveStepsEmpty(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSteps("whatever", nil); err != nil {
		t.Errorf("Expected no-op for empty steps, got %v", err)
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := newTestStore(t)

	early := time.Now().Add(-time.Hour)
	late := time.Now()
	if err := store.CreateRun(&Run{RunID: "old", Channel: "cli", StartedAt: early}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.CreateRun(&Run{RunID: "new", Channel: "http", StartedAt: late}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	all, err := store.ListRuns("", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(all))
	}
	if all[0].RunID != "new" {
		t.Errorf("Expected newest run first, got %s", all[0].RunID)
	}

	httpOnly, err := store.ListRuns("http", 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(httpOnly) != 1 || httpOnly[0].Channel != "http" {
		t.Errorf("Expected only the http run, got %+v", httpOnly)
	}

	limited, err := store.ListRuns("", 1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected limit of 1 run, got %d", len(limited))
	}
}

func TestSQLiteStore_PruneBefore(t *testing.T) {
	store := newTestStore(t)

	old := time.Now().AddDate(0, 0, -30)
	if err := store.CreateRun(&Run{RunID: "expired", Channel: "schedule", StartedAt: old}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := store.SaveSteps("expired", []StepRecord{
		{StepUUID: "s", EventType: "WORKFLOW_START", Timestamp: old},
	}); err != nil {
		t.Fatalf("SaveSteps failed: %v", err)
	}
	if err := store.CreateRun(&Run{RunID: "fresh", Channel: "cli", StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	pruned, err := store.PruneBefore(time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned run, got %d", pruned)
	}

	if _, err := store.GetRun("expired"); err == nil {
		t.Error("Expected expired run to be gone")
	}
	if _, err := store.GetRun("fresh"); err != nil {
		t.Errorf("Expected fresh run to survive, got %v", err)
	}
	steps, err := store.FetchSteps("expired")
	if err != nil {
		t.Fatalf("FetchSteps failed: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("Expected expired run's steps to be deleted, got %d", len(steps))
	}

	// Pruned rows must be physically removed, not just soft-deleted.
	var ghostRuns int64
	if err := store.db.Unscoped().Model(&Run{}).Where("run_id = ?", "expired").Count(&ghostRuns).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if ghostRuns != 0 {
		t.Errorf("Expected expired run to be hard-deleted, found %d soft-deleted rows", ghostRuns)
	}
	var ghostSteps int64
	if err := store.db.Unscoped().Model(&StepRecord{}).Where("run_id = ?", "expired").Count(&ghostSteps).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if ghostSteps != 0 {
		t.Errorf("Expected expired steps to be hard-deleted, found %d soft-deleted rows", ghostSteps)
	}
}

func TestSQLiteStore_PruneNothing(t *testing.T) {
	store := newTestStore(t)
	pruned, err := store.PruneBefore(time.Now())
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("Expected 0 pruned runs, got %d", pruned)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewStore_Factory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factory.sqlite")
	store, err := NewStore(NewStoreConfig("sqlite", path))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if _, err := NewStore(NewStoreConfig("mongodb", "")); err == nil {
		t.Error("Expected error for unsupported store type")
	}
}
