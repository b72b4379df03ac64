// Package ledger remembers which ticket was opened for which source event, so a
// restart after a crash does not open a second ticket.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketbridge/internal/db"
)

type Entry struct {
	EventID      int64
	TicketID     int64
	FollowupDone bool
	CreatedAt    time.Time
}

type Store struct {
	db *db.DB
}

func NewStore(conn *db.DB) *Store {
	return &Store{db: conn}
}

// Get returns the entry for eventID, or nil when the event has no ticket yet.
func (s *Store) Get(ctx context.Context, eventID int64) (*Entry, error) {
	q := s.db.Rebind(`SELECT event_id, ticket_id, followup_done, created_at FROM ` + db.LedgerTable + ` WHERE event_id = ?`)
	var e Entry
	err := s.db.QueryRowContext(ctx, q, eventID).Scan(&e.EventID, &e.TicketID, &e.FollowupDone, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return &e, nil
}

// Record stores the ticket opened for eventID.
func (s *Store) Record(ctx context.Context, eventID, ticketID int64) error {
	q := s.db.Rebind(`INSERT INTO ` + db.LedgerTable + ` (event_id, ticket_id, followup_done, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, q, eventID, ticketID, false, time.Now().UTC()); err != nil {
		return fmt.Errorf("record ticket %d for event %d: %w", ticketID, eventID, err)
	}
	return nil
}

// MarkFollowupDone flags that the diagnostics follow-up was appended.
func (s *Store) MarkFollowupDone(ctx context.Context, eventID int64) error {
	q := s.db.Rebind(`UPDATE ` + db.LedgerTable + ` SET followup_done = ? WHERE event_id = ?`)
	res, err := s.db.ExecContext(ctx, q, true, eventID)
	if err != nil {
		return fmt.Errorf("mark followup done: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark followup done: no ledger entry for event %d", eventID)
	}
	return nil
}
