package core

// Entity is a resolved foreign entity payload, as returned by the resolution
// API. Kept schemaless: callers read the fields they need.
type Entity map[string]any

// JobStore persists import job summaries so a later status query can
// retrieve the outcome without re-deriving it.
type JobStore interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// UpsertJob creates the job on first sight of its id and merges counts
	// and error samples additively on subsequent chunks.
	UpsertJob(job *ImportJob) error
	GetJob(jobID string) (*ImportJob, error)
	ListJobs(entityType EntityType, limit int) ([]*ImportJob, error)
}

// RecordStore is the durable write boundary for imported records.
// InsertBatch returns the number of records persisted; a *PartialWriteError
// when only some made it; any other error means the whole batch failed.
type RecordStore interface {
	InsertBatch(entityType EntityType, records []Record) (int, error)
	CountRecords(entityType EntityType) (int, error)
	Available() bool
}

// CacheStore is the durable backing for the entity resolution cache:
// a flat key-value table keyed by "entityType:id".
type CacheStore interface {
	Put(key string, entity Entity) error
	GetAll() (map[string]Entity, error)
	DeleteAll() error
	DeletePrefix(prefix string) error
}
