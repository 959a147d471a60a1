package session

import (
	"context"
	"crypto/subtle"
	"sort"
	"sync"
	"time"

	"duet/cmd/identity"
)

// MemoryLedger is an in-process Ledger for tests and single-node dev runs.
type MemoryLedger struct {
	mu     sync.Mutex
	byID   map[string]Record
	byUser map[string]map[string]struct{}
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		byID:   make(map[string]Record),
		byUser: make(map[string]map[string]struct{}),
	}
}

var _ Ledger = (*MemoryLedger)(nil)

// FindExact scans the user's records comparing hashes in constant time.
func (l *MemoryLedger) FindExact(ctx context.Context, username, accessHash, refreshHash string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for id := range l.byUser[username] {
		rec := l.byID[id]
		a := subtle.ConstantTimeCompare([]byte(rec.AccessHash), []byte(accessHash))
		r := subtle.ConstantTimeCompare([]byte(rec.RefreshHash), []byte(refreshHash))
		if a&r == 1 {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

// Get loads a record by id.
func (l *MemoryLedger) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Insert stores rec, assigning a ULID when rec.ID is empty.
func (l *MemoryLedger) Insert(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.ID == "" {
		id, err := identity.NewULID(rec.CreatedAt)
		if err != nil {
			return "", err
		}
		rec.ID = id
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.byID[rec.ID] = rec
	ids := l.byUser[rec.Username]
	if ids == nil {
		ids = make(map[string]struct{})
		l.byUser[rec.Username] = ids
	}
	ids[rec.ID] = struct{}{}
	return rec.ID, nil
}

// Delete removes a record by id.
func (l *MemoryLedger) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byID[id]
	if !ok {
		return false, nil
	}
	delete(l.byID, id)
	if ids := l.byUser[rec.Username]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(l.byUser, rec.Username)
		}
	}
	return true, nil
}

// ListExpired returns the oldest fully expired records first.
func (l *MemoryLedger) ListExpired(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for _, rec := range l.byID {
		if now.After(rec.RefreshExpiresAt) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RefreshExpiresAt.Before(out[j].RefreshExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
