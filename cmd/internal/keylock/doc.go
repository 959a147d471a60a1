// Package keylock provides a keyed mutual-exclusion registry.
//
// At most one holder exists per key at any instant; distinct keys never block each
// other. Waiters are not queued fairly: when a key is released every waiter wakes
// and races to claim it. A wait is bounded by the registry timeout and by the
// caller's context.
package keylock
