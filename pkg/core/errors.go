package core

import "fmt"

// RequestError is a request-validation failure: the call is rejected before
// any record is touched. Maps to HTTP 400.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// StoreUnavailableError means the durable store could not be reached at all.
// Fatal to the call, maps to HTTP 500.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialWriteError reports a sub-batch write in which some records persisted
// and some were rejected (duplicate keys, constraint conflicts). Callers
// credit Inserted and record the rest.
type PartialWriteError struct {
	Inserted int
	Failed   []RecordFailure
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial insertion failure: %d records failed", len(e.Failed))
}

// RecordFailure carries per-record detail for a rejected write.
type RecordFailure struct {
	Index   int // position within the sub-batch
	Row     int // 1-indexed source row, zero if unknown
	Message string
}
