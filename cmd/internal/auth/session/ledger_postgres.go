package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"duet/cmd/identity"
	"duet/cmd/internal/store/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger implements Ledger over the token_records table.
//
// When built with a user directory it is also a Transactor: InTx runs the
// ledger and directory steps of one operation in a single READ COMMITTED
// transaction, and Get locks the record row FOR UPDATE.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	q      pgstore.Querier
	schema string

	dir       *identity.PostgresDirectory
	forUpdate bool
}

// NewPostgresLedger creates a ledger on pool. dir may be nil, which disables InTx.
func NewPostgresLedger(pool *pgxpool.Pool, schema string, dir *identity.PostgresDirectory) (*PostgresLedger, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	s, err := pgstore.Schema(schema)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return &PostgresLedger{pool: pool, q: pool, schema: s, dir: dir}, nil
}

var (
	_ Ledger     = (*PostgresLedger)(nil)
	_ Transactor = (*PostgresLedger)(nil)
)

func (l *PostgresLedger) table() string { return pgstore.Ident(l.schema, "token_records") }

const recordColumns = `id, username, access_hash, access_expires_at, refresh_hash, refresh_expires_at, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Username, &r.AccessHash, &r.AccessExpiresAt, &r.RefreshHash, &r.RefreshExpiresAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return r, err
}

// FindExact matches username and both hashes, then re-checks the hashes in constant time.
func (l *PostgresLedger) FindExact(ctx context.Context, username, accessHash, refreshHash string) (Record, error) {
	rec, err := scanRecord(l.q.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+l.table()+`
		  WHERE username = $1 AND access_hash = $2 AND refresh_hash = $3`,
		username, accessHash, refreshHash,
	))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("session: find record: %w", err)
	}
	if !ctEqHex64(rec.AccessHash, accessHash) || !ctEqHex64(rec.RefreshHash, refreshHash) {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Get loads a record by id, locking the row when called inside InTx.
func (l *PostgresLedger) Get(ctx context.Context, id string) (Record, error) {
	sql := `SELECT ` + recordColumns + ` FROM ` + l.table() + ` WHERE id = $1`
	if l.forUpdate {
		sql += ` FOR UPDATE`
	}
	rec, err := scanRecord(l.q.QueryRow(ctx, sql, id))
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Record{}, fmt.Errorf("session: get record: %w", err)
	}
	return rec, err
}

// Insert stores rec, assigning a ULID when rec.ID is empty.
func (l *PostgresLedger) Insert(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		id, err := identity.NewULID(rec.CreatedAt)
		if err != nil {
			return "", err
		}
		rec.ID = id
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := l.q.Exec(ctx,
		`INSERT INTO `+l.table()+` (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Username, rec.AccessHash, rec.AccessExpiresAt, rec.RefreshHash, rec.RefreshExpiresAt, rec.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("session: insert record: %w", err)
	}
	return rec.ID, nil
}

// Delete removes a record by id.
func (l *PostgresLedger) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := l.q.Exec(ctx, `DELETE FROM `+l.table()+` WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("session: delete record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpired returns the oldest fully expired records first.
func (l *PostgresLedger) ListExpired(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.q.Query(ctx,
		`SELECT `+recordColumns+`
		   FROM `+l.table()+`
		  WHERE refresh_expires_at < $1
		  ORDER BY refresh_expires_at
		  LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("session: list expired: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("session: scan expired: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InTx runs fn with a ledger and directory bound to one transaction.
func (l *PostgresLedger) InTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger, dir Directory) error) error {
	if l.dir == nil {
		return fmt.Errorf("session: transactions need a postgres directory")
	}

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txLedger := &PostgresLedger{pool: l.pool, q: tx, schema: l.schema, forUpdate: true}
	if err := fn(ctx, txLedger, l.dir.With(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	return nil
}

// ctEqHex64 compares two 64-char hex digests in constant time.
func ctEqHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
