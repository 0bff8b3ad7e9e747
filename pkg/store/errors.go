package store

import "errors"

var (
	// ErrDuplicatePoint reports an append whose series already has a
	// point at that timestamp.
	ErrDuplicatePoint = errors.New("duplicate point for series and timestamp")
	// ErrRunClosed reports an append or close against a run that is no
	// longer active.
	ErrRunClosed = errors.New("run is closed")
	// ErrRunNotFound reports an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	errFailedOpenDB      = errors.New("failed to open database")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToInit      = errors.New("failed to initialize schema")
	errFailedToInsert    = errors.New("failed to insert")
	errFailedToQuery     = errors.New("failed to query")
	errFailedToScan      = errors.New("failed to scan row")
	errFailedToBeginTx   = errors.New("failed to begin transaction")
	errFailedToDelete    = errors.New("failed to delete")
)
