package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/propertydigital/pdimport/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	// Verify tables exist by querying them
	tables := []string{"jobs", "records", "entity_cache"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			rows.Close()
		}
	}
}

// --- Job tests ---

func TestSQLiteStore_UpsertJobCreatesThenMerges(t *testing.T) {
	store := setupTestStore(t)
	started := time.Now().UTC()

	first := &core.ImportJob{
		JobID:      "job-1",
		EntityType: core.EntityPayment,
		Total:      100,
		Processed:  95,
		Failed:     5,
		Status:     core.JobStatusCompletedWithErrors,
		ErrorSample: []core.ErrorDetail{
			{Row: 3, Message: "duplicate", Kind: core.FailurePartial},
		},
		StartedAt: started,
	}
	if err := store.UpsertJob(first); err != nil {
		t.Fatalf("failed to upsert job: %v", err)
	}

	// Second chunk for the same job id: counts add up, status stays sticky
	// on completed_with_errors even though this chunk was clean.
	second := &core.ImportJob{
		JobID:      "job-1",
		EntityType: core.EntityPayment,
		Total:      100,
		Processed:  100,
		Status:     core.JobStatusCompleted,
		StartedAt:  started.Add(time.Second),
	}
	if err := store.UpsertJob(second); err != nil {
		t.Fatalf("failed to upsert second chunk: %v", err)
	}

	job, err := store.GetJob("job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Total != 200 || job.Processed != 195 || job.Failed != 5 {
		t.Errorf("expected 200/195/5, got %d/%d/%d", job.Total, job.Processed, job.Failed)
	}
	if job.Status != core.JobStatusCompletedWithErrors {
		t.Errorf("expected sticky completed_with_errors, got %s", job.Status)
	}
	if len(job.ErrorSample) != 1 {
		t.Errorf("expected 1 sampled error, got %d", len(job.ErrorSample))
	}
	if !job.StartedAt.Equal(started) {
		t.Errorf("started_at should keep the first chunk's time")
	}
}

func TestSQLiteStore_UpsertJobBoundsErrorSample(t *testing.T) {
	store := setupTestStore(t)

	var sample []core.ErrorDetail
	for i := 0; i < core.ErrorSampleLimit+5; i++ {
		sample = append(sample, core.ErrorDetail{Row: i + 1, Message: fmt.Sprintf("error %d", i)})
	}
	job := &core.ImportJob{
		JobID:       "job-2",
		EntityType:  core.EntityTenant,
		Status:      core.JobStatusCompletedWithErrors,
		ErrorSample: sample,
		StartedAt:   time.Now().UTC(),
	}
	if err := store.UpsertJob(job); err != nil {
		t.Fatalf("failed to upsert job: %v", err)
	}

	got, err := store.GetJob("job-2")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if len(got.ErrorSample) != core.ErrorSampleLimit {
		t.Errorf("expected sample bounded at %d, got %d", core.ErrorSampleLimit, len(got.ErrorSample))
	}
}

func TestSQLiteStore_GetJobUnknown(t *testing.T) {
	store := setupTestStore(t)

	job, err := store.GetJob("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil for unknown job, got %+v", job)
	}
}

func TestSQLiteStore_ListJobs(t *testing.T) {
	store := setupTestStore(t)
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		entity := core.EntityPayment
		if i == 2 {
			entity = core.EntityTenant
		}
		job := &core.ImportJob{
			JobID:      fmt.Sprintf("job-%d", i),
			EntityType: entity,
			Status:     core.JobStatusCompleted,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.UpsertJob(job); err != nil {
			t.Fatalf("failed to upsert job: %v", err)
		}
	}

	payments, err := store.ListJobs(core.EntityPayment, 10)
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(payments) != 2 {
		t.Errorf("expected 2 payment jobs, got %d", len(payments))
	}

	all, err := store.ListJobs("", 10)
	if err != nil {
		t.Fatalf("failed to list all jobs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(all))
	}
	// Newest first.
	if all[0].JobID != "job-2" {
		t.Errorf("expected newest job first, got %s", all[0].JobID)
	}
}

// --- Record tests ---

func TestSQLiteStore_InsertBatch(t *testing.T) {
	store := setupTestStore(t)

	records := []core.Record{
		{"full_name": "דני", "amount": 1200.0, "receipt_number": "r-1", core.FieldImportJobID: "job-1"},
		{"full_name": "רות", "amount": 800.0, "receipt_number": "r-2", core.FieldImportJobID: "job-1"},
	}
	inserted, err := store.InsertBatch(core.EntityPayment, records)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("expected 2 inserted, got %d", inserted)
	}

	count, err := store.CountRecords(core.EntityPayment)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 stored records, got %d", count)
	}
}

func TestSQLiteStore_InsertBatchPartialFailure(t *testing.T) {
	store := setupTestStore(t)

	seed := []core.Record{{"full_name": "דני", "receipt_number": "dup"}}
	if _, err := store.InsertBatch(core.EntityPayment, seed); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	batch := []core.Record{
		{"full_name": "רות", "receipt_number": "r-9", "source_row": 4},
		{"full_name": "יעל", "receipt_number": "dup", "source_row": 5}, // duplicate key
		{"full_name": "משה", "receipt_number": "r-10", "source_row": 6},
	}
	inserted, err := store.InsertBatch(core.EntityPayment, batch)
	if inserted != 2 {
		t.Errorf("expected 2 inserted with partial credit, got %d", inserted)
	}

	var partial *core.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialWriteError, got %v", err)
	}
	if len(partial.Failed) != 1 {
		t.Fatalf("expected 1 failed record, got %d", len(partial.Failed))
	}
	if partial.Failed[0].Row != 5 {
		t.Errorf("expected failure on source row 5, got %d", partial.Failed[0].Row)
	}
}

func TestSQLiteStore_InsertBatchNilReceiptsNotUnique(t *testing.T) {
	store := setupTestStore(t)

	// Records without receipt numbers must never collide with each other.
	batch := []core.Record{
		{"full_name": "א"},
		{"full_name": "ב"},
	}
	inserted, err := store.InsertBatch(core.EntityTenant, batch)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("expected 2 inserted, got %d", inserted)
	}
}

// --- Entity cache tests ---

func TestSQLiteStore_CacheRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Put("tenants:t-1", core.Entity{"full_name": "דני"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Put("properties:p-1", core.Entity{"name": "בניין א"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	entries, err := store.GetAll()
	if err != nil {
		t.Fatalf("get all failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries["tenants:t-1"]["full_name"] != "דני" {
		t.Errorf("unexpected payload: %+v", entries["tenants:t-1"])
	}

	if err := store.DeletePrefix("tenants:"); err != nil {
		t.Fatalf("delete prefix failed: %v", err)
	}
	entries, _ = store.GetAll()
	if len(entries) != 1 {
		t.Errorf("expected 1 entry after prefix delete, got %d", len(entries))
	}

	if err := store.DeleteAll(); err != nil {
		t.Fatalf("delete all failed: %v", err)
	}
	entries, _ = store.GetAll()
	if len(entries) != 0 {
		t.Errorf("expected empty cache, got %d entries", len(entries))
	}
}
