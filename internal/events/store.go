package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"ticketbridge/internal/db"
)

const (
	SourceTable  = "GestionEventos"
	ProblemTable = "ProblemasZabbix"
)

// Poller reads new rows from the source table. Every Fetch issues a fresh query.
type Poller struct {
	db    *db.DB
	limit int
}

// NewPoller builds a poller; limit caps the batch size, 0 means unbounded.
func NewPoller(conn *db.DB, limit int) *Poller {
	return &Poller{db: conn, limit: limit}
}

// Fetch returns events with id > after in ascending id order.
func (p *Poller) Fetch(ctx context.Context, after int64) ([]Event, error) {
	q := `
		SELECT id, eventid, comentario, responsable, clienteImpactado, sistemaImpactado, IdUser, fecha_gestion
		FROM ` + SourceTable + `
		WHERE id > ?
		ORDER BY id ASC`
	if p.limit > 0 {
		q += " LIMIT " + strconv.Itoa(p.limit)
	}
	rows, err := p.db.QueryContext(ctx, p.db.Rebind(q), after)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", SourceTable, err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var (
			e                                    Event
			comment, responsible, client, system sql.NullString
			owner                                sql.NullInt64
			managedAt                            sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.EventRef, &comment, &responsible, &client, &system, &owner, &managedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", SourceTable, err)
		}
		// Guard the watermark contract even if the source misbehaves.
		if e.ID <= after {
			continue
		}
		e.Comment = comment.String
		e.Responsible = responsible.String
		e.ImpactedClient = client.String
		e.ImpactedSystem = system.String
		e.OwnerUserID = owner.Int64
		e.ManagedAt = managedAt.Time
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", SourceTable, err)
	}
	return result, nil
}

// LookupProblemName returns the most recent problem name recorded for eventRef.
// A missing row is reported as ok=false, not as an error.
func (p *Poller) LookupProblemName(ctx context.Context, eventRef int64) (string, bool, error) {
	q := p.db.Rebind(`SELECT name FROM ` + ProblemTable + ` WHERE eventid = ? ORDER BY id DESC LIMIT 1`)
	var name sql.NullString
	err := p.db.QueryRowContext(ctx, q, eventRef).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup problem name: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", false, nil
	}
	return name.String, true, nil
}
