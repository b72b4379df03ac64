package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/db"
	"ticketbridge/internal/db/dbtest"
)

func insertEvent(t *testing.T, conn *db.DB, id, ref int64, system string) {
	t.Helper()
	dbtest.Exec(t, conn,
		`INSERT INTO GestionEventos (id, eventid, comentario, responsable, clienteImpactado, sistemaImpactado, IdUser, fecha_gestion)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ref, "link down", "noc", "ACME", system, 7, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC))
}

func TestFetchReturnsAscendingAfterCursor(t *testing.T) {
	conn := dbtest.Open(t)
	for _, id := range []int64{103, 101, 100, 102} {
		insertEvent(t, conn, id, id*10, "http://10.0.0.5:8080/status")
	}

	got, err := NewPoller(conn, 0).Fetch(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []int64{101, 102, 103} {
		assert.Equal(t, want, got[i].ID)
		assert.Greater(t, got[i].ID, int64(100))
	}
	assert.Equal(t, int64(1010), got[0].EventRef)
	assert.Equal(t, "ACME", got[0].ImpactedClient)
	assert.Equal(t, "http://10.0.0.5:8080/status", got[0].ImpactedSystem)
	assert.Equal(t, int64(7), got[0].OwnerUserID)
	assert.True(t, got[0].ManagedAt.Equal(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
}

func TestFetchHandlesNullColumns(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.Exec(t, conn, `INSERT INTO GestionEventos (id, eventid) VALUES (?, ?)`, 5, 50)

	got, err := NewPoller(conn, 0).Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ImpactedSystem)
	assert.True(t, got[0].ManagedAt.IsZero())
}

func TestFetchRespectsLimit(t *testing.T) {
	conn := dbtest.Open(t)
	for id := int64(1); id <= 5; id++ {
		insertEvent(t, conn, id, id, "")
	}
	got, err := NewPoller(conn, 2).Fetch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []int64{2, 3}, []int64{got[0].ID, got[1].ID})
}

func TestFetchEmpty(t *testing.T) {
	got, err := NewPoller(dbtest.Open(t), 0).Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFetchErrorsNameTheSourceTable(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.Exec(t, conn, `DROP TABLE GestionEventos`)

	_, err := NewPoller(conn, 0).Fetch(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), SourceTable)
}

func TestLookupProblemNamePrefersNewest(t *testing.T) {
	conn := dbtest.Open(t)
	dbtest.Exec(t, conn, `INSERT INTO ProblemasZabbix (id, eventid, name) VALUES (?, ?, ?)`, 1, 900, "old name")
	dbtest.Exec(t, conn, `INSERT INTO ProblemasZabbix (id, eventid, name) VALUES (?, ?, ?)`, 2, 900, "High ICMP ping loss")
	dbtest.Exec(t, conn, `INSERT INTO ProblemasZabbix (id, eventid, name) VALUES (?, ?, ?)`, 3, 901, "other")

	p := NewPoller(conn, 0)
	name, ok, err := p.LookupProblemName(context.Background(), 900)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "High ICMP ping loss", name)

	_, ok, err = p.LookupProblemName(context.Background(), 12345)
	require.NoError(t, err)
	assert.False(t, ok)
}
