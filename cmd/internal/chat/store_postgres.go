package chat

import (
	"context"
	"errors"
	"fmt"

	"duet/cmd/internal/store/pgstore"

	"github.com/jackc/pgx/v5"
)

// PostgresStore implements Store over the messages table.
type PostgresStore struct {
	q      pgstore.Querier
	schema string
}

// NewPostgresStore builds a store on q; schema "" means the default.
func NewPostgresStore(q pgstore.Querier, schema string) (*PostgresStore, error) {
	if q == nil {
		return nil, fmt.Errorf("chat: nil querier")
	}
	s, err := pgstore.Schema(schema)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	return &PostgresStore{q: q, schema: s}, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) table() string { return pgstore.Ident(s.schema, "messages") }

const messageColumns = `id, user1, user2, sender, body, sent_at, upvoters`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.User1, &m.User2, &m.Sender, &m.Text, &m.SentAt, &m.Upvoters)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if m.Upvoters == nil {
		m.Upvoters = []string{}
	}
	return m, err
}

// Append inserts m.
func (s *PostgresStore) Append(ctx context.Context, m Message) error {
	upvoters := m.Upvoters
	if upvoters == nil {
		upvoters = []string{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO `+s.table()+` (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.User1, m.User2, m.Sender, m.Text, m.SentAt, upvoters,
	)
	if err != nil {
		if pgstore.IsForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return fmt.Errorf("chat: append: %w", err)
	}
	return nil
}

// List returns the conversation oldest first (ULID order).
func (s *PostgresStore) List(ctx context.Context, a, b string) ([]Message, error) {
	u1, u2 := Participants(a, b)
	rows, err := s.q.Query(ctx,
		`SELECT `+messageColumns+`
		   FROM `+s.table()+`
		  WHERE user1 = $1 AND user2 = $2
		  ORDER BY id`,
		u1, u2,
	)
	if err != nil {
		return nil, fmt.Errorf("chat: list: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("chat: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Find loads a message by id.
func (s *PostgresStore) Find(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.q.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM `+s.table()+` WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Message{}, fmt.Errorf("chat: find: %w", err)
	}
	return m, err
}

// SetUpvoter is one conditional UPDATE; RowsAffected is the change signal.
func (s *PostgresStore) SetUpvoter(ctx context.Context, id, user string, member bool) (bool, error) {
	sql := `UPDATE ` + s.table() + `
	           SET upvoters = array_append(upvoters, $2)
	         WHERE id = $1 AND NOT ($2 = ANY(upvoters))`
	if !member {
		sql = `UPDATE ` + s.table() + `
		          SET upvoters = array_remove(upvoters, $2)
		        WHERE id = $1 AND $2 = ANY(upvoters)`
	}

	tag, err := s.q.Exec(ctx, sql, id, user)
	if err != nil {
		return false, fmt.Errorf("chat: set upvoter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
