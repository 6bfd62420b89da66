package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"dwetl/internal/config"
	"dwetl/internal/ledger"
	"dwetl/internal/merge"
	"dwetl/internal/storage"
)

func testWarehouse() config.Warehouse {
	return config.Warehouse{
		Process: "warehouse_load",
		Storage: config.Storage{Kind: "sqlite"},
		Tables: []config.Table{
			{
				Name:         "crm_cust_info",
				BusinessKeys: []string{"cst_id"},
				Columns:      []string{"cst_id", "cst_key"},
			},
		},
	}
}

func openRepo(t *testing.T) storage.Repository {
	t.Helper()
	ctx := context.Background()

	repo, err := Open(ctx, filepath.Join(t.TempDir(), "wh.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := EnsureSchema(ctx, repo, testWarehouse()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func custSpec() merge.Spec {
	return merge.Spec{
		Landing: "stg_crm_cust_info",
		Target:  "raw_crm_cust_info",
		Columns: []string{"cst_id", "cst_key"},
		Keys:    []string{"cst_id"},
	}
}

func landCust(t *testing.T, unit storage.Unit, rows [][]any) {
	t.Helper()
	cols := []string{"cst_id", "cst_key", merge.LineColumn}
	if _, err := unit.CopyIn(context.Background(), "stg_crm_cust_info", cols, rows); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
}

func readTarget(t *testing.T, repo storage.Repository) map[string]string {
	t.Helper()
	ctx := context.Background()

	unit, err := repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	defer unit.Rollback(ctx)

	rows, err := unit.ReadRows(ctx, "raw_crm_cust_info", []string{"cst_id", "cst_key"})
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	out := map[string]string{}
	for _, r := range rows {
		out[storage.AsString(r[0])] = storage.AsString(r[1])
	}
	return out
}

func TestMergeLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	unit, err := repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	// Key 1 repeats; the row from the highest line must win. The row with a
	// blank key is landed but never merged.
	landCust(t, unit, [][]any{
		{"1", "AW-first", int64(2)},
		{"2", "AW-two", int64(3)},
		{"1", "AW-last", int64(4)},
		{"  ", "no-key", int64(5)},
	})

	stats, err := unit.Merge(ctx, custSpec())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 2 || stats.Updated != 0 || stats.Skipped != 2 {
		t.Errorf("stats = %+v; want {Inserted:2 Updated:0 Skipped:2}", stats)
	}
	if err := unit.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := readTarget(t, repo)
	if len(got) != 2 {
		t.Fatalf("target rows = %v; want 2 keys", got)
	}
	if got["1"] != "AW-last" {
		t.Errorf("key 1 = %q; want last occurrence to win", got["1"])
	}

	// Second load touches only key 1; key 2 must survive (upsert only).
	unit, err = repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	if err := unit.Truncate(ctx, "stg_crm_cust_info"); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	landCust(t, unit, [][]any{
		{"1", "AW-updated", int64(2)},
	})
	stats, err = unit.Merge(ctx, custSpec())
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if stats.Inserted != 0 || stats.Updated != 1 || stats.Skipped != 0 {
		t.Errorf("second stats = %+v; want {Inserted:0 Updated:1 Skipped:0}", stats)
	}
	if err := unit.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got = readTarget(t, repo)
	if got["1"] != "AW-updated" {
		t.Errorf("key 1 = %q; want updated value", got["1"])
	}
	if got["2"] != "AW-two" {
		t.Errorf("key 2 = %q; absent keys must never be deleted", got["2"])
	}
}

func TestMergeAuditColumns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	unit, err := repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	landCust(t, unit, [][]any{{"1", "A", int64(2)}})
	if _, err := unit.Merge(ctx, custSpec()); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	rows, err := unit.ReadRows(ctx, "raw_crm_cust_info",
		[]string{"cst_id", merge.CreatedAt, merge.UpdatedAt})
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d; want 1", len(rows))
	}
	if _, ok := storage.AsTime(rows[0][1]); !ok {
		t.Errorf("created_at not set: %#v", rows[0][1])
	}
	if _, ok := storage.AsTime(rows[0][2]); !ok {
		t.Errorf("updated_at not set: %#v", rows[0][2])
	}
	if err := unit.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestUnitRollbackLeavesNoTrace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	unit, err := repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	landCust(t, unit, [][]any{{"1", "A", int64(2)}})
	if _, err := unit.Merge(ctx, custSpec()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := unit.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if got := readTarget(t, repo); len(got) != 0 {
		t.Errorf("target rows after rollback = %v; want none", got)
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	unit, err := repo.BeginUnit(ctx)
	if err != nil {
		t.Fatalf("BeginUnit: %v", err)
	}
	landCust(t, unit, [][]any{{"1", "A", int64(2)}})
	if err := unit.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := unit.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit: %v; want nil", err)
	}
}

func TestFactoryRegistered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo, err := storage.New(ctx, storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "wh.db"),
	})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	repo.Close()
}

func TestLedgerStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openRepo(t)

	start := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	id, err := repo.InsertRun(ctx, ledger.RunRecord{
		Process:   "warehouse_load",
		StartTime: start,
		Status:    ledger.StatusInProgress,
	})
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertRun returned zero id")
	}

	end := start.Add(90 * time.Second)
	err = repo.UpdateRun(ctx, ledger.RunRecord{
		ID:          id,
		EndTime:     &end,
		DurationSec: 90,
		Status:      ledger.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	runs, err := repo.ListRuns(ctx, ledger.Filter{Process: "warehouse_load"})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d; want 1", len(runs))
	}
	rec := runs[0]
	if rec.ID != id || rec.Status != ledger.StatusSuccess || rec.DurationSec != 90 {
		t.Errorf("record = %+v", rec)
	}
	if rec.EndTime == nil {
		t.Error("end time not persisted")
	}

	// Filters narrow by process and status.
	if runs, _ := repo.ListRuns(ctx, ledger.Filter{Process: "other"}); len(runs) != 0 {
		t.Errorf("process filter leaked %d runs", len(runs))
	}
	if runs, _ := repo.ListRuns(ctx, ledger.Filter{Status: ledger.StatusError}); len(runs) != 0 {
		t.Errorf("status filter leaked %d runs", len(runs))
	}
}

func TestUpdateRunMissingRecord(t *testing.T) {
	t.Parallel()
	repo := openRepo(t)

	err := repo.UpdateRun(context.Background(), ledger.RunRecord{
		ID:     9999,
		Status: ledger.StatusSuccess,
	})
	if err == nil {
		t.Fatal("UpdateRun on missing record: want error")
	}
}
