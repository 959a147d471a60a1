package session

import (
	"context"
	"time"
)

// Pair is the client-held credential pair. The zero Pair means "no credentials".
type Pair struct {
	Access  string
	Refresh string
}

// Empty reports whether either half is missing.
func (p Pair) Empty() bool { return p.Access == "" || p.Refresh == "" }

// Record is one issued pair as the ledger stores it: hashes only, never the secrets.
type Record struct {
	ID               string
	Username         string
	AccessHash       string
	AccessExpiresAt  time.Time
	RefreshHash      string
	RefreshExpiresAt time.Time
	CreatedAt        time.Time
}

// Window is the validity state of a record at an instant.
type Window uint8

const (
	// WindowAccess: the access token is still live.
	WindowAccess Window = iota
	// WindowRefresh: access expired, refresh still live.
	WindowRefresh
	// WindowExpired: both expired.
	WindowExpired
)

// WindowAt classifies now against the record's expiries. Both bounds are inclusive.
func (r Record) WindowAt(now time.Time) Window {
	switch {
	case !now.After(r.AccessExpiresAt):
		return WindowAccess
	case !now.After(r.RefreshExpiresAt):
		return WindowRefresh
	default:
		return WindowExpired
	}
}

// Ledger owns token records.
type Ledger interface {
	// FindExact returns the record matching all three fields, or ErrRecordNotFound.
	FindExact(ctx context.Context, username, accessHash, refreshHash string) (Record, error)
	// Get loads a record by id, or ErrRecordNotFound. Inside InTx the row is locked.
	Get(ctx context.Context, id string) (Record, error)
	// Insert stores rec and returns its id.
	Insert(ctx context.Context, rec Record) (string, error)
	// Delete removes a record; deleted is false when it was already gone.
	Delete(ctx context.Context, id string) (deleted bool, err error)
	// ListExpired returns up to limit records whose refresh window ended before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Record, error)
}

// Directory is the slice of the user directory the authority needs.
// identity.Directory satisfies it.
type Directory interface {
	AddTokenID(ctx context.Context, username, id string) (changed bool, err error)
	RemoveTokenID(ctx context.Context, username, id string) (changed bool, err error)
}

// Transactor is implemented by ledgers that can run the ledger and directory steps
// of one operation inside a single transaction. fn's error rolls everything back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger, dir Directory) error) error
}
