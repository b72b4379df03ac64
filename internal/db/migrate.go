package db

import (
	"context"
	"fmt"
)

// Tables owned by the bridge. Source tables belong to the upstream system and are
// never created here.
const (
	StateTable     = "IntegrationState"
	LedgerTable    = "bridge_ticket_ledger"
	OperatorsTable = "bridge_operators"
)

func schema(d Dialect) []string {
	ts := d.timestampType()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + StateTable + ` (
			sk VARCHAR(64) PRIMARY KEY,
			sval BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ` + LedgerTable + ` (
			event_id BIGINT PRIMARY KEY,
			ticket_id BIGINT NOT NULL,
			followup_done BOOLEAN NOT NULL DEFAULT FALSE,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + OperatorsTable + ` (
			username VARCHAR(128) PRIMARY KEY,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(32) NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
	}
}

// Migrate creates the bridge's own tables. Safe to run on every start.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schema(db.dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
