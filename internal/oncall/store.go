// Package oncall picks the contact that should be called for a new ticket.
package oncall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ticketbridge/internal/db"
)

const Table = "disponibles"

// Contact is an eligible on-call person. Window bounds are wall-clock times in
// the availability zone.
type Contact struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Level       int       `json:"level"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

type Store struct {
	db  *db.DB
	loc *time.Location
}

// NewStore builds a lookup whose availability windows are naive wall-clock times
// in loc.
func NewStore(conn *db.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: conn, loc: loc}
}

// Current returns the available contact whose window contains now, preferring the
// lowest escalation level and then the lowest id. It returns nil when nobody is
// eligible. now is bound as a zone-less DATETIME literal in loc; a time.Time
// parameter would be shifted into the driver's own location first.
func (s *Store) Current(ctx context.Context, now time.Time) (*Contact, error) {
	q := s.db.Rebind(`
		SELECT Id, Nombre, Contacto, Nivel, FechaInicioDisponibilidad, FechaFinDisponibilidad
		FROM ` + Table + `
		WHERE Disponible = 1
		  AND ? BETWEEN FechaInicioDisponibilidad AND FechaFinDisponibilidad
		ORDER BY Nivel ASC, Id ASC
		LIMIT 1`)

	var (
		c           Contact
		name, phone sql.NullString
		start, end  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, now.In(s.loc).Format(time.DateTime)).Scan(&c.ID, &name, &phone, &c.Level, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup on-call contact: %w", err)
	}
	c.Name = name.String
	c.Phone = phone.String
	c.WindowStart = s.wallClock(start)
	c.WindowEnd = s.wallClock(end)
	return &c, nil
}

// wallClock relabels a scanned naive timestamp with the availability zone.
func (s *Store) wallClock(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	v := t.Time
	return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), s.loc)
}
