// Package upload drives the client side of an import run: it normalizes the
// parsed dataset, splits it into chunks, sends them sequentially to the
// ingestion endpoint and tracks cumulative progress with cooperative
// cancellation.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/propertydigital/pdimport/internal/normalize"
	"github.com/propertydigital/pdimport/internal/resolve"
	"github.com/propertydigital/pdimport/pkg/core"
)

// DefaultChunkSize is the number of records sent per request.
const DefaultChunkSize = 100

// Sender delivers one chunk to the ingestion endpoint.
type Sender interface {
	SendChunk(ctx context.Context, req *ChunkRequest) (*core.ChunkResult, error)
}

// ChunkRequest is the wire payload for one chunk.
type ChunkRequest struct {
	JobID       string           `json:"jobId"`
	EntityType  core.EntityType  `json:"entityType"`
	Data        []map[string]any `json:"data"`
	ImportedBy  string           `json:"importedBy,omitempty"`
	ChunkIndex  int              `json:"chunkIndex"`
	TotalChunks int              `json:"totalChunks"`
}

// Dataset is a parsed source file ready for upload. Headers preserve the
// source column order so alias matching stays deterministic.
type Dataset struct {
	EntityType core.EntityType
	Headers    []string
	Rows       []core.RawRecord
	ImportedBy string
}

// Progress is reported after every chunk response. Percent is chunk-based,
// not record-based, so it stays monotonic even when a chunk partially fails.
type Progress struct {
	ChunksDone  int
	ChunksTotal int
	Percent     int
	Processed   int
	Failed      int
}

// ChunkError records one chunk that failed at the transport or processing
// level. The run continues past it.
type ChunkError struct {
	Chunk   int
	Records int
	Message string
}

// Summary is the terminal outcome of a run.
type Summary struct {
	JobID        string
	Status       core.JobStatus
	TotalRecords int
	Processed    int
	Failed       int
	ChunkErrors  []ChunkError
	Errors       []core.ErrorDetail
	Elapsed      time.Duration
}

// Orchestrator uploads datasets chunk by chunk.
type Orchestrator struct {
	sender     Sender
	resolver   *resolve.Resolver
	chunkSize  int
	onProgress func(Progress)
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithChunkSize overrides the records-per-chunk default.
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithResolver wires an entity resolver used to pre-warm foreign references
// before the upload starts.
func WithResolver(r *resolve.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithProgress registers a progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// New creates an orchestrator.
func New(sender Sender, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sender:    sender,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run uploads the dataset. Chunks go out strictly one at a time; a chunk
// failure is recorded and the run moves on, since failing the whole run
// would force re-upload of already-ingested data. Cancellation is honored
// between chunks and aborts the in-flight request; chunks already accepted
// by the server stay persisted.
func (o *Orchestrator) Run(ctx context.Context, dataset *Dataset) (*Summary, error) {
	if !dataset.EntityType.Valid() {
		return nil, fmt.Errorf("unknown entity type %q", dataset.EntityType)
	}
	start := time.Now()
	jobID := uuid.New().String()

	records := o.normalizeRows(dataset)
	if o.resolver != nil {
		o.prewarm(ctx, records)
	}

	chunks := chunkRecords(records, o.chunkSize)
	summary := &Summary{
		JobID:        jobID,
		TotalRecords: len(records),
	}

	o.logger.Info("starting import run", "job_id", jobID, "entity_type", dataset.EntityType, "records", len(records), "chunks", len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			summary.Status = core.JobStatusCancelled
			summary.Elapsed = time.Since(start)
			return summary, nil
		}

		result, err := o.sender.SendChunk(ctx, &ChunkRequest{
			JobID:       jobID,
			EntityType:  dataset.EntityType,
			Data:        chunk,
			ImportedBy:  dataset.ImportedBy,
			ChunkIndex:  i + 1,
			TotalChunks: len(chunks),
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				summary.Status = core.JobStatusCancelled
				summary.Elapsed = time.Since(start)
				return summary, nil
			}
			summary.Failed += len(chunk)
			summary.ChunkErrors = append(summary.ChunkErrors, ChunkError{
				Chunk:   i + 1,
				Records: len(chunk),
				Message: err.Error(),
			})
			o.logger.Warn("chunk failed, continuing", "job_id", jobID, "chunk", i+1, "error", err)
		} else {
			summary.Processed += result.Processed
			summary.Failed += result.Failed
			summary.Errors = append(summary.Errors, result.Errors...)
		}

		o.reportProgress(i+1, len(chunks), summary)
	}

	summary.Status = core.JobStatusCompleted
	if summary.Failed > 0 || len(summary.ChunkErrors) > 0 {
		summary.Status = core.JobStatusCompletedWithErrors
	}
	if len(chunks) > 0 && len(summary.ChunkErrors) == len(chunks) {
		// Not a single chunk got through.
		summary.Status = core.JobStatusFailed
	}
	summary.Elapsed = time.Since(start)

	o.logger.Info("import run finished", "job_id", jobID, "status", summary.Status, "processed", summary.Processed, "failed", summary.Failed, "elapsed", summary.Elapsed)
	return summary, nil
}

// normalizeRows runs the client-side normalization pass and stamps each
// record with its 1-indexed source row. The server re-normalizes anyway;
// this pass exists so foreign ids are canonical before pre-warming.
func (o *Orchestrator) normalizeRows(dataset *Dataset) []map[string]any {
	out := make([]map[string]any, 0, len(dataset.Rows))
	for i, row := range dataset.Rows {
		record, fieldErrs := normalize.Normalize(row, dataset.Headers, i+1, dataset.EntityType)
		for _, fe := range fieldErrs {
			o.logger.Debug("normalization issue", "row", fe.Row, "column", fe.Column, "severity", fe.Severity, "message", fe.Message)
		}
		m := make(map[string]any, len(record)+1)
		for k, v := range record {
			m[k] = v
		}
		m["source_row"] = i + 1
		out = append(out, m)
	}
	return out
}

// prewarm resolves the distinct foreign ids referenced by the dataset so
// the server-side cache is hot before chunks arrive. Failures are logged
// and ignored; resolution is best-effort.
func (o *Orchestrator) prewarm(ctx context.Context, records []map[string]any) {
	refs := map[string][]string{
		"tenants":    collectIDs(records, "tenant_id"),
		"properties": collectIDs(records, "property_id"),
	}
	for entityType, ids := range refs {
		if len(ids) == 0 {
			continue
		}
		if _, err := o.resolver.Resolve(ctx, entityType, ids); err != nil {
			o.logger.Warn("reference pre-warm failed", "entity_type", entityType, "error", err)
		}
	}
}

func (o *Orchestrator) reportProgress(done, total int, summary *Summary) {
	if o.onProgress == nil {
		return
	}
	o.onProgress(Progress{
		ChunksDone:  done,
		ChunksTotal: total,
		Percent:     int(math.Round(float64(done) / float64(total) * 100)),
		Processed:   summary.Processed,
		Failed:      summary.Failed,
	})
}

func chunkRecords(records []map[string]any, size int) [][]map[string]any {
	var chunks [][]map[string]any
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

func collectIDs(records []map[string]any, field string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, rec := range records {
		id, ok := rec[field].(string)
		if !ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
