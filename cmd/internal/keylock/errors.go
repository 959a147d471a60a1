package keylock

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned (wrapped in *TimeoutError) when a key could not be claimed in time.
var ErrTimeout = errors.New("keylock: timed out waiting for lock")

// TimeoutError reports which key could not be acquired and how long the caller waited.
type TimeoutError struct {
	Key    string
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("keylock: key %q still held after %s", e.Key, e.Waited.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
