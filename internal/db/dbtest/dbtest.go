// Package dbtest opens throwaway SQLite databases that carry both the bridge's own
// tables and the upstream source tables, for store and pipeline tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"ticketbridge/internal/db"
)

var sourceSchema = []string{
	`CREATE TABLE GestionEventos (
		id BIGINT PRIMARY KEY,
		eventid BIGINT NOT NULL,
		comentario TEXT,
		responsable TEXT,
		clienteImpactado TEXT,
		sistemaImpactado TEXT,
		IdUser BIGINT,
		fecha_gestion TIMESTAMP
	)`,
	`CREATE TABLE ProblemasZabbix (
		id INTEGER PRIMARY KEY,
		eventid BIGINT NOT NULL,
		name TEXT
	)`,
	`CREATE TABLE disponibles (
		Id INTEGER PRIMARY KEY,
		Nombre TEXT,
		Contacto TEXT,
		Disponible INTEGER NOT NULL DEFAULT 0,
		FechaInicioDisponibilidad TIMESTAMP,
		FechaFinDisponibilidad TIMESTAMP,
		Nivel INTEGER NOT NULL DEFAULT 1
	)`,
}

// Open returns a migrated database that is closed when the test ends.
func Open(t testing.TB) *db.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bridge.db")
	conn, err := db.OpenDSN(ctx, db.SQLite, db.SQLiteDSN(path), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, stmt := range sourceSchema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("source schema: %v", err)
		}
	}
	return conn
}

// Exec runs a statement and fails the test on error.
func Exec(t testing.TB, conn *db.DB, q string, args ...any) {
	t.Helper()
	if _, err := conn.ExecContext(context.Background(), conn.Rebind(q), args...); err != nil {
		t.Fatalf("exec %q: %v", q, err)
	}
}
