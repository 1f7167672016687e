// Package core defines the shared language of the pdimport pipeline.
//
// This package contains:
//   - Domain entities (Record, ImportJob, ChunkResult)
//   - Service interfaces (JobStore, RecordStore, CacheStore)
//   - The error taxonomy shared by the ingestion service and its callers
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
