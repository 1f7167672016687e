package core

import "time"

// JobStatus represents the lifecycle state of an import job.
type JobStatus string

// Job status constants.
const (
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	// JobStatusCancelled is a client-side terminal status. The server never
	// records it: a cancelled run simply stops sending chunks.
	JobStatusCancelled JobStatus = "cancelled"
)

// ErrorSampleLimit bounds how many error details a job summary retains.
const ErrorSampleLimit = 10

// ErrorDetail is one recorded failure inside a chunk. Row is the 1-indexed
// source row where known, zero otherwise. Batch is the 1-based sub-batch
// number within the chunk for storage-level failures.
type ErrorDetail struct {
	Row     int    `json:"row,omitempty"`
	Batch   int    `json:"batch,omitempty"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
	Kind    string `json:"kind"` // normalization, partial_failure, total_failure
	Raw     string `json:"raw,omitempty"`
}

// Failure kind constants for ErrorDetail.Kind.
const (
	FailureNormalization = "normalization"
	FailurePartial       = "partial_failure"
	FailureTotal         = "total_failure"
)

// ImportJob is the authoritative server-side summary of an import. It is
// created when the first chunk for a job id is accepted and updated
// additively as further chunks arrive.
type ImportJob struct {
	JobID        string        `json:"jobId"`
	EntityType   EntityType    `json:"entityType"`
	Total        int           `json:"total"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
	Status       JobStatus     `json:"status"`
	Message      string        `json:"message,omitempty"`
	ErrorSample  []ErrorDetail `json:"errorDetails,omitempty"`
	CacheHitRate string        `json:"cacheHitRate,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
}

// ChunkResult is the ingestion service's answer for one chunk.
// Status distinguishes completed from completed_with_errors so a caller can
// detect partial failure from the body alone.
type ChunkResult struct {
	JobID      string        `json:"jobId"`
	Status     JobStatus     `json:"status"`
	Processed  int           `json:"processed"`
	Total      int           `json:"total"`
	Failed     int           `json:"failed"`
	ErrorCount int           `json:"errors"`
	Errors     []ErrorDetail `json:"errorDetails,omitempty"`
	Chunk      string        `json:"chunk,omitempty"` // "index/total" when chunked
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
}
