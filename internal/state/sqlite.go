// Package state provides durable storage for pdimport using SQLite.
// One store holds import job summaries, imported records and the entity
// resolution cache's backing table.
package state

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/propertydigital/pdimport/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore implements core.JobStore, core.RecordStore and core.CacheStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema initializes the database schema.
func (s *SQLiteStore) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Available reports whether the store can accept writes right now.
func (s *SQLiteStore) Available() bool {
	return s.db != nil && s.db.Ping() == nil
}

// --- Job operations ---

// UpsertJob creates the job summary on first sight of its id and merges
// counts additively afterwards. The error sample stays bounded at
// core.ErrorSampleLimit entries; status and completion timestamp track the
// latest chunk.
func (s *SQLiteStore) UpsertJob(job *core.ImportJob) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := getJobTx(tx, job.JobID)
	if err != nil {
		return err
	}

	merged := *job
	if existing != nil {
		merged.Total = existing.Total + job.Total
		merged.Processed = existing.Processed + job.Processed
		merged.Failed = existing.Failed + job.Failed
		merged.StartedAt = existing.StartedAt
		merged.ErrorSample = appendBounded(existing.ErrorSample, job.ErrorSample, core.ErrorSampleLimit)
		if existing.Status == core.JobStatusCompletedWithErrors && merged.Status == core.JobStatusCompleted {
			// A clean later chunk does not erase earlier failures.
			merged.Status = core.JobStatusCompletedWithErrors
		}
	} else {
		merged.ErrorSample = appendBounded(nil, job.ErrorSample, core.ErrorSampleLimit)
	}

	sample, err := json.Marshal(merged.ErrorSample)
	if err != nil {
		return fmt.Errorf("failed to encode error sample: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO jobs (job_id, entity_type, total, processed, failed, status, message, error_sample, cache_hit_rate, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   total = excluded.total,
		   processed = excluded.processed,
		   failed = excluded.failed,
		   status = excluded.status,
		   message = excluded.message,
		   error_sample = excluded.error_sample,
		   cache_hit_rate = excluded.cache_hit_rate,
		   completed_at = excluded.completed_at`,
		merged.JobID, merged.EntityType, merged.Total, merged.Processed, merged.Failed,
		merged.Status, merged.Message, string(sample), merged.CacheHitRate,
		merged.StartedAt, merged.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetJob retrieves a job summary by id. Returns nil without error when the
// job is unknown.
func (s *SQLiteStore) GetJob(jobID string) (*core.ImportJob, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT job_id, entity_type, total, processed, failed, status, message, error_sample, cache_hit_rate, started_at, completed_at
		 FROM jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

// ListJobs returns recent jobs, newest first. An empty entity type lists
// across all entities.
func (s *SQLiteStore) ListJobs(entityType core.EntityType, limit int) ([]*core.ImportJob, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT job_id, entity_type, total, processed, failed, status, message, error_sample, cache_hit_rate, started_at, completed_at
	          FROM jobs`
	args := []any{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*core.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*core.ImportJob, error) {
	job := &core.ImportJob{}
	var message, sample, hitRate sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&job.JobID, &job.EntityType, &job.Total, &job.Processed, &job.Failed,
		&job.Status, &message, &sample, &hitRate, &job.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if message.Valid {
		job.Message = message.String
	}
	if hitRate.Valid {
		job.CacheHitRate = hitRate.String
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if sample.Valid && sample.String != "" && sample.String != "null" {
		if err := json.Unmarshal([]byte(sample.String), &job.ErrorSample); err != nil {
			return nil, fmt.Errorf("failed to decode error sample: %w", err)
		}
	}
	return job, nil
}

func getJobTx(tx *sql.Tx, jobID string) (*core.ImportJob, error) {
	row := tx.QueryRow(
		`SELECT job_id, entity_type, total, processed, failed, status, message, error_sample, cache_hit_rate, started_at, completed_at
		 FROM jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

func appendBounded(existing, extra []core.ErrorDetail, limit int) []core.ErrorDetail {
	merged := append(append([]core.ErrorDetail{}, existing...), extra...)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// --- Record operations ---

// InsertBatch writes one sub-batch of records. Each record is inserted
// individually so one rejected row never discards its neighbours, matching
// the semantics of an unordered bulk insert. Returns the number persisted;
// when only some made it the error is a *core.PartialWriteError carrying
// per-record detail.
func (s *SQLiteStore) InsertBatch(entityType core.EntityType, records []core.Record) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	if err := s.db.Ping(); err != nil {
		return 0, fmt.Errorf("failed to reach database: %w", err)
	}

	now := time.Now().UTC()
	inserted := 0
	var failed []core.RecordFailure

	for i, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			failed = append(failed, core.RecordFailure{Index: i, Row: sourceRow(record), Message: fmt.Sprintf("encode failed: %v", err)})
			continue
		}

		var receipt any
		if r, ok := record["receipt_number"].(string); ok && r != "" {
			receipt = r
		}
		jobID, _ := record[core.FieldImportJobID].(string)

		_, err = s.db.Exec(
			`INSERT INTO records (entity_type, receipt_number, import_job_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			entityType, receipt, jobID, string(payload), now,
		)
		if err != nil {
			if isConstraintErr(err) {
				failed = append(failed, core.RecordFailure{Index: i, Row: sourceRow(record), Message: fmt.Sprintf("duplicate or invalid record: %v", err)})
				continue
			}
			// Anything else is infrastructure, not data: the rest of the
			// sub-batch gets no credit either.
			return inserted, fmt.Errorf("failed to insert record: %w", err)
		}
		inserted++
	}

	if len(failed) > 0 {
		return inserted, &core.PartialWriteError{Inserted: inserted, Failed: failed}
	}
	return inserted, nil
}

// CountRecords counts stored records for an entity type.
func (s *SQLiteStore) CountRecords(entityType core.EntityType) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM records WHERE entity_type = ?`, entityType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func isConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "constraint failed")
}

// sourceRow extracts the original 1-indexed source row, when the normalizer
// recorded one on the record.
func sourceRow(record core.Record) int {
	switch v := record["source_row"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// --- Entity cache operations ---

// Put writes one resolved entity into the durable cache table.
func (s *SQLiteStore) Put(key string, entity core.Entity) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO entity_cache (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// GetAll loads every cache entry, used to warm the in-memory cache at start.
func (s *SQLiteStore) GetAll() (map[string]core.Entity, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.Query(`SELECT key, payload FROM entity_cache ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]core.Entity)
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		var entity core.Entity
		if err := json.Unmarshal([]byte(payload), &entity); err != nil {
			return nil, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
		}
		entries[key] = entity
	}
	return entries, rows.Err()
}

// DeleteAll clears the durable cache.
func (s *SQLiteStore) DeleteAll() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM entity_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// DeletePrefix clears cache entries whose key starts with the prefix,
// i.e. one entity type's keys.
func (s *SQLiteStore) DeletePrefix(prefix string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM entity_cache WHERE key LIKE ? || '%'`, prefix); err != nil {
		return fmt.Errorf("failed to clear cache prefix: %w", err)
	}
	return nil
}

// Interface checks.
var (
	_ core.JobStore    = (*SQLiteStore)(nil)
	_ core.RecordStore = (*SQLiteStore)(nil)
	_ core.CacheStore  = (*SQLiteStore)(nil)
)
