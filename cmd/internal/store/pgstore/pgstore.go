// Package pgstore holds the Postgres plumbing shared by the duet stores:
// identifier quoting, error classification and schema migrations.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the schema duet tables live in unless configured otherwise.
const DefaultSchema = "duet"

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdent reports whether s is a plain Postgres identifier.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// Schema trims and validates a schema name, falling back to DefaultSchema when empty.
func Schema(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSchema, nil
	}
	if !ValidIdent(s) {
		return "", fmt.Errorf("pgstore: invalid schema identifier %q", s)
	}
	return s, nil
}

// Ident quotes a schema-qualified identifier: "schema"."name".
func Ident(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// IsUniqueViolation reports a 23505 error and the violated constraint name.
func IsUniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(pgErr.ConstraintName)), true
}

// IsForeignKeyViolation reports a 23503 error.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsNoRows reports pgx.ErrNoRows.
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
