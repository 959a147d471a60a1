package vote

import "errors"

var (
	// ErrNotFound is returned when the message does not exist.
	ErrNotFound = errors.New("vote: message not found")
	// ErrStoreMutation is returned when the store reports the flip had no effect.
	ErrStoreMutation = errors.New("vote: upvote update had no effect")
)
