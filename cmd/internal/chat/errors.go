package chat

import "errors"

var (
	// ErrNotFound is returned for an unknown message id.
	ErrNotFound = errors.New("chat: message not found")
	// ErrUnknownUser is returned when a recipient or new chat partner does not exist.
	ErrUnknownUser = errors.New("chat: unknown user")
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrMessageTooLong is returned when text exceeds MaxMessageLen.
	ErrMessageTooLong = errors.New("chat: message too long")
)
