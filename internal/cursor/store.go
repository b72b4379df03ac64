package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticketbridge/internal/db"
)

// DefaultKey names the watermark row for the GestionEventos source table.
const DefaultKey = "gestion_last_id"

// Store persists the id of the last fully processed event.
type Store struct {
	db  *db.DB
	key string
}

func NewStore(conn *db.DB, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{db: conn, key: key}
}

// Init creates the state row at 0 when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM ` + db.StateTable + ` WHERE sk = ?`)
	if err := s.db.QueryRowContext(ctx, q, s.key).Scan(&n); err != nil {
		return fmt.Errorf("count cursor row: %w", err)
	}
	if n > 0 {
		return nil
	}
	q = s.db.Rebind(`INSERT INTO ` + db.StateTable + ` (sk, sval) VALUES (?, 0)`)
	if _, err := s.db.ExecContext(ctx, q, s.key); err != nil {
		return fmt.Errorf("insert cursor row: %w", err)
	}
	return nil
}

// Get returns the watermark, 0 when the row is missing.
func (s *Store) Get(ctx context.Context) (int64, error) {
	var v int64
	q := s.db.Rebind(`SELECT sval FROM ` + db.StateTable + ` WHERE sk = ?`)
	err := s.db.QueryRowContext(ctx, q, s.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return v, nil
}

// Set advances the watermark. Values lower than the stored one are ignored so the
// cursor never moves backwards.
func (s *Store) Set(ctx context.Context, id int64) error {
	q := s.db.Rebind(`UPDATE ` + db.StateTable + ` SET sval = ? WHERE sk = ? AND sval < ?`)
	if _, err := s.db.ExecContext(ctx, q, id, s.key, id); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}
