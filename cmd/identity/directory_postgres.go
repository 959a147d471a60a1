package identity

import (
	"context"
	"fmt"
	"time"

	"duet/cmd/internal/store/pgstore"
)

// PostgresDirectory implements Directory over the users table.
//
// The querier is owned by the caller and never closed here. Set mutations are
// single conditional UPDATE statements, so RowsAffected is the "changed" signal.
type PostgresDirectory struct {
	q      pgstore.Querier
	schema string
}

// PostgresOption configures the directory.
type PostgresOption func(*PostgresDirectory) error

// WithSchema sets the schema holding the users table (default "duet").
func WithSchema(schema string) PostgresOption {
	return func(d *PostgresDirectory) error {
		s, err := pgstore.Schema(schema)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		d.schema = s
		return nil
	}
}

// NewPostgresDirectory builds a directory over q (a pool or a transaction).
func NewPostgresDirectory(q pgstore.Querier, opts ...PostgresOption) (*PostgresDirectory, error) {
	d := &PostgresDirectory{q: q, schema: pgstore.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.q == nil {
		return nil, fmt.Errorf("identity: nil querier")
	}
	return d, nil
}

var _ Directory = (*PostgresDirectory)(nil)

// With returns a copy of the directory bound to q, typically a pgx.Tx.
func (d *PostgresDirectory) With(q pgstore.Querier) *PostgresDirectory {
	return &PostgresDirectory{q: q, schema: d.schema}
}

func (d *PostgresDirectory) users() string { return pgstore.Ident(d.schema, "users") }

// Find loads a user by exact username.
func (d *PostgresDirectory) Find(ctx context.Context, username string) (User, error) {
	var u User
	err := d.q.QueryRow(ctx,
		`SELECT username, password_hash, token_ids, chats, created_at
		   FROM `+d.users()+`
		  WHERE username = $1`,
		username,
	).Scan(&u.Username, &u.PasswordHash, &u.TokenIDs, &u.Chats, &u.CreatedAt)
	if err != nil {
		if pgstore.IsNoRows(err) {
			return User{}, NotFoundError{Op: "identity.Find", Username: username}
		}
		return User{}, fmt.Errorf("identity: find user: %w", err)
	}
	return u, nil
}

// Create inserts a user row.
func (d *PostgresDirectory) Create(ctx context.Context, username, passwordHash string, now time.Time) (User, error) {
	const op = "identity.Create"

	if username == "" || passwordHash == "" {
		return User{}, invalid(op, "username and password hash are required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	_, err := d.q.Exec(ctx,
		`INSERT INTO `+d.users()+` (username, password_hash, created_at)
		 VALUES ($1, $2, $3)`,
		username, passwordHash, now,
	)
	if err != nil {
		if _, ok := pgstore.IsUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: "username"}
		}
		return User{}, fmt.Errorf("identity: create user: %w", err)
	}

	return User{
		Username:     username,
		PasswordHash: passwordHash,
		TokenIDs:     []string{},
		Chats:        []string{},
		CreatedAt:    now,
	}, nil
}

// AddTokenID appends id unless the user already references it.
func (d *PostgresDirectory) AddTokenID(ctx context.Context, username, id string) (bool, error) {
	return d.exec1(ctx, "add token id",
		`UPDATE `+d.users()+`
		    SET token_ids = array_append(token_ids, $2)
		  WHERE username = $1 AND NOT ($2 = ANY(token_ids))`,
		username, id)
}

// RemoveTokenID drops id if the user references it.
func (d *PostgresDirectory) RemoveTokenID(ctx context.Context, username, id string) (bool, error) {
	return d.exec1(ctx, "remove token id",
		`UPDATE `+d.users()+`
		    SET token_ids = array_remove(token_ids, $2)
		  WHERE username = $1 AND $2 = ANY(token_ids)`,
		username, id)
}

// AddChat records peer unless already present.
func (d *PostgresDirectory) AddChat(ctx context.Context, username, peer string) (bool, error) {
	return d.exec1(ctx, "add chat",
		`UPDATE `+d.users()+`
		    SET chats = array_append(chats, $2)
		  WHERE username = $1 AND NOT ($2 = ANY(chats))`,
		username, peer)
}

// Chats returns the user's chat partners in insertion order.
func (d *PostgresDirectory) Chats(ctx context.Context, username string) ([]string, error) {
	var chats []string
	err := d.q.QueryRow(ctx,
		`SELECT chats FROM `+d.users()+` WHERE username = $1`,
		username,
	).Scan(&chats)
	if err != nil {
		if pgstore.IsNoRows(err) {
			return nil, NotFoundError{Op: "identity.Chats", Username: username}
		}
		return nil, fmt.Errorf("identity: chats: %w", err)
	}
	if chats == nil {
		chats = []string{}
	}
	return chats, nil
}

func (d *PostgresDirectory) exec1(ctx context.Context, what, sql string, args ...any) (bool, error) {
	tag, err := d.q.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("identity: %s: %w", what, err)
	}
	return tag.RowsAffected() == 1, nil
}
