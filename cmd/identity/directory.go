package identity

import (
	"context"
	"time"
)

// User is a directory entry.
type User struct {
	Username     string
	PasswordHash string

	// TokenIDs are non-owning references to token records in the session ledger.
	TokenIDs []string
	// Chats lists the usernames this user has a conversation with.
	Chats []string

	CreatedAt time.Time
}

// Directory is the user store.
//
// AddTokenID/RemoveTokenID/AddChat are atomic conditional mutations: changed is
// false when the set already had (or lacked) the value or the user is missing.
type Directory interface {
	Find(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, username, passwordHash string, now time.Time) (User, error)

	AddTokenID(ctx context.Context, username, id string) (changed bool, err error)
	RemoveTokenID(ctx context.Context, username, id string) (changed bool, err error)

	AddChat(ctx context.Context, username, peer string) (changed bool, err error)
	Chats(ctx context.Context, username string) ([]string, error)
}
