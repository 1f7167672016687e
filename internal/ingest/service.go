// Package ingest implements the durable-write side of the import pipeline:
// it accepts one chunk of records, re-normalizes them, writes sub-batches to
// the store with partial-failure isolation, and maintains the job summary.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/propertydigital/pdimport/internal/normalize"
	"github.com/propertydigital/pdimport/pkg/core"
)

// SubBatchSize bounds how many records go into one store write. Small enough
// to keep per-write memory flat, and a failed write only takes this many
// records down with it.
const SubBatchSize = 25

// Request is one chunk of an import run. Records arrive as decoded JSON
// objects and are re-normalized server-side regardless of what the client
// already did. ChunkIndex is 1-based; both chunk fields are zero for
// unchunked calls.
type Request struct {
	JobID       string
	EntityType  core.EntityType
	Records     []map[string]any
	ImportedBy  string
	ChunkIndex  int
	TotalChunks int
}

// Service processes chunks against the durable store.
type Service struct {
	jobs    core.JobStore
	records core.RecordStore
	hitRate func() string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCacheHitRate wires the resolver's hit-rate reading into job summaries.
func WithCacheHitRate(fn func() string) Option {
	return func(s *Service) { s.hitRate = fn }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the ingestion service.
func NewService(jobs core.JobStore, records core.RecordStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		jobs:    jobs,
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest processes one chunk. Request-validation failures and store
// unavailability return an error and touch nothing; everything else is
// absorbed into the chunk result. One bad record never blocks the rest of
// the chunk.
func (s *Service) Ingest(ctx context.Context, req *Request) (*core.ChunkResult, error) {
	if !req.EntityType.Valid() {
		return nil, &core.RequestError{Reason: fmt.Sprintf("unknown entity type %q", req.EntityType)}
	}
	if req.Records == nil {
		return nil, &core.RequestError{Reason: "records must be a list"}
	}
	if !s.records.Available() {
		return nil, &core.StoreUnavailableError{Err: fmt.Errorf("record store is not reachable")}
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}
	startedAt := s.now()

	total := len(req.Records)
	var errorDetails []core.ErrorDetail

	// Normalization pass. Records that fail validation are excluded from the
	// write entirely, each logged with its source row and raw payload.
	writable := make([]core.Record, 0, total)
	for i, raw := range req.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := sourceRow(raw, i)
		record, fieldErrs := normalize.Normalize(stringify(raw), nil, row, req.EntityType)

		rejected := false
		for _, fe := range fieldErrs {
			if fe.Severity != core.SeverityError {
				s.logger.Debug("normalization warning", "job_id", jobID, "row", fe.Row, "column", fe.Column, "message", fe.Message)
				continue
			}
			rejected = true
			errorDetails = append(errorDetails, core.ErrorDetail{
				Row:     fe.Row,
				Column:  fe.Column,
				Message: fe.Message,
				Kind:    core.FailureNormalization,
				Raw:     compactJSON(raw),
			})
		}
		if rejected {
			continue
		}

		record["source_row"] = row
		stampProvenance(record, jobID, req.ImportedBy, startedAt)
		writable = append(writable, record)
	}

	// Sub-batch writes, sequential. A failed sub-batch is recorded and the
	// next one is still attempted.
	processed := 0
	for start := 0; start < len(writable); start += SubBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + SubBatchSize
		if end > len(writable) {
			end = len(writable)
		}
		batch := writable[start:end]
		batchNum := start/SubBatchSize + 1

		inserted, err := s.records.InsertBatch(req.EntityType, batch)
		processed += inserted
		switch werr := err.(type) {
		case nil:
		case *core.PartialWriteError:
			for _, failure := range werr.Failed {
				errorDetails = append(errorDetails, core.ErrorDetail{
					Row:     failure.Row,
					Batch:   batchNum,
					Message: failure.Message,
					Kind:    core.FailurePartial,
				})
			}
			s.logger.Warn("sub-batch partially failed", "job_id", jobID, "batch", batchNum, "inserted", inserted, "failed", len(werr.Failed))
		default:
			errorDetails = append(errorDetails, core.ErrorDetail{
				Batch:   batchNum,
				Message: fmt.Sprintf("batch write failed: %v", err),
				Kind:    core.FailureTotal,
			})
			s.logger.Error("sub-batch failed entirely", "job_id", jobID, "batch", batchNum, "records", len(batch), "error", err)
		}
	}

	failed := total - processed
	status := core.JobStatusCompleted
	if failed > 0 {
		status = core.JobStatusCompletedWithErrors
	}

	if err := s.upsertSummary(jobID, req, total, processed, failed, status, errorDetails, startedAt); err != nil {
		// The records are already durable; a summary write failure must not
		// turn a processed chunk into a client-visible failure.
		s.logger.Error("failed to persist job summary", "job_id", jobID, "error", err)
	}

	result := &core.ChunkResult{
		JobID:      jobID,
		Status:     status,
		Processed:  processed,
		Total:      total,
		Failed:     failed,
		ErrorCount: len(errorDetails),
		Errors:     errorDetails,
		Message:    resultMessage(processed, total, failed),
		Timestamp:  s.now(),
	}
	if req.TotalChunks > 0 {
		result.Chunk = fmt.Sprintf("%d/%d", req.ChunkIndex, req.TotalChunks)
	}
	return result, nil
}

func (s *Service) upsertSummary(jobID string, req *Request, total, processed, failed int, status core.JobStatus, details []core.ErrorDetail, startedAt time.Time) error {
	sample := details
	if len(sample) > core.ErrorSampleLimit {
		sample = sample[:core.ErrorSampleLimit]
	}
	job := &core.ImportJob{
		JobID:       jobID,
		EntityType:  req.EntityType,
		Total:       total,
		Processed:   processed,
		Failed:      failed,
		Status:      status,
		ErrorSample: sample,
		StartedAt:   startedAt,
	}
	if s.hitRate != nil {
		job.CacheHitRate = s.hitRate()
	}
	if req.TotalChunks == 0 || req.ChunkIndex >= req.TotalChunks {
		done := s.now()
		job.CompletedAt = &done
	}
	return s.jobs.UpsertJob(job)
}

// stampProvenance marks the record before any write attempt is made.
func stampProvenance(record core.Record, jobID, importedBy string, at time.Time) {
	record[core.FieldImportJobID] = jobID
	record[core.FieldImportedAt] = at.Format(time.RFC3339)
	if importedBy == "" {
		importedBy = "import"
	}
	record[core.FieldImportedBy] = importedBy
}

// sourceRow reads the 1-indexed source row carried on the record, falling
// back to the record's position within the chunk.
func sourceRow(raw map[string]any, index int) int {
	switch v := raw["source_row"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return index + 1
}

// stringify flattens a decoded JSON object into the raw string row the
// normalizer consumes. Provenance and bookkeeping keys are not data.
func stringify(raw map[string]any) core.RawRecord {
	out := make(core.RawRecord, len(raw))
	for k, v := range raw {
		switch k {
		case "source_row", core.FieldImportJobID, core.FieldImportedAt, core.FieldImportedBy:
			continue
		}
		switch x := v.(type) {
		case nil:
			out[k] = ""
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case int:
			out[k] = strconv.Itoa(x)
		case bool:
			out[k] = strconv.FormatBool(x)
		default:
			out[k] = fmt.Sprintf("%v", x)
		}
	}
	return out
}

func compactJSON(raw map[string]any) string {
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}

func resultMessage(processed, total, failed int) string {
	if failed == 0 {
		return fmt.Sprintf("processed %d of %d records", processed, total)
	}
	return fmt.Sprintf("processed %d of %d records, %d failed", processed, total, failed)
}
