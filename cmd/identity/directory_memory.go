package identity

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryDirectory is an in-process Directory. Every operation runs under one mutex,
// which makes each conditional mutation atomic.
type MemoryDirectory struct {
	mu    sync.Mutex
	users map[string]*User
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]*User)}
}

var _ Directory = (*MemoryDirectory)(nil)

// Find returns a copy of the user.
func (d *MemoryDirectory) Find(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[username]
	if !ok {
		return User{}, NotFoundError{Op: "identity.Find", Username: username}
	}
	return cloneUser(u), nil
}

// Create inserts a new user; an existing username yields ConflictError.
func (d *MemoryDirectory) Create(ctx context.Context, username, passwordHash string, now time.Time) (User, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if username == "" || passwordHash == "" {
		return User{}, invalid(op, "username and password hash are required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[username]; exists {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	u := &User{Username: username, PasswordHash: passwordHash, CreatedAt: now.UTC()}
	d.users[username] = u
	return cloneUser(u), nil
}

// AddTokenID appends id unless present.
func (d *MemoryDirectory) AddTokenID(ctx context.Context, username, id string) (bool, error) {
	return d.mutate(ctx, username, func(u *User) bool { return addToSet(&u.TokenIDs, id) })
}

// RemoveTokenID removes id if present.
func (d *MemoryDirectory) RemoveTokenID(ctx context.Context, username, id string) (bool, error) {
	return d.mutate(ctx, username, func(u *User) bool { return removeFromSet(&u.TokenIDs, id) })
}

// AddChat records peer as a chat partner unless already present.
func (d *MemoryDirectory) AddChat(ctx context.Context, username, peer string) (bool, error) {
	return d.mutate(ctx, username, func(u *User) bool { return addToSet(&u.Chats, peer) })
}

// Chats returns the user's chat partners in insertion order.
func (d *MemoryDirectory) Chats(ctx context.Context, username string) ([]string, error) {
	u, err := d.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.Chats == nil {
		return []string{}, nil
	}
	return u.Chats, nil
}

// mutate applies fn to the user under the lock. A missing user is "no change", not an error.
func (d *MemoryDirectory) mutate(ctx context.Context, username string, fn func(*User) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[username]
	if !ok {
		return false, nil
	}
	return fn(u), nil
}

func addToSet(set *[]string, v string) bool {
	if slices.Contains(*set, v) {
		return false
	}
	*set = append(*set, v)
	return true
}

func removeFromSet(set *[]string, v string) bool {
	i := slices.Index(*set, v)
	if i < 0 {
		return false
	}
	*set = slices.Delete(*set, i, i+1)
	return true
}

func cloneUser(u *User) User {
	out := *u
	out.TokenIDs = slices.Clone(u.TokenIDs)
	out.Chats = slices.Clone(u.Chats)
	return out
}
