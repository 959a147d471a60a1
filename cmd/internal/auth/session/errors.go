package session

import "errors"

var (
	// ErrUnauthenticated is the single failure callers at the boundary report.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrRecordNotFound is returned by a Ledger when no record matches.
	ErrRecordNotFound = errors.New("token record not found")

	// ErrStoreMutation is returned when a conditional store mutation reports no change.
	ErrStoreMutation = errors.New("store mutation had no effect")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")

	// errRecordGone marks a record removed by a concurrent caller while we waited for its lock.
	errRecordGone = errors.New("token record vanished before lock")
)
