package oncall

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/db"
	"ticketbridge/internal/db/dbtest"
)

var now = time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)

// addContact stores the window the way the availability table holds it: naive
// wall-clock DATETIME text without a zone.
func addContact(t *testing.T, conn *db.DB, id int64, name string, available bool, start, end time.Time, level int) {
	t.Helper()
	flag := 0
	if available {
		flag = 1
	}
	dbtest.Exec(t, conn,
		`INSERT INTO disponibles (Id, Nombre, Contacto, Disponible, FechaInicioDisponibilidad, FechaFinDisponibilidad, Nivel)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, "3001234567", flag, start.Format(time.DateTime), end.Format(time.DateTime), level)
}

func TestCurrentPicksLowestLevelInsideWindow(t *testing.T) {
	conn := dbtest.Open(t)
	addContact(t, conn, 1, "level two", true, now.Add(-time.Hour), now.Add(time.Hour), 2)
	addContact(t, conn, 2, "level one", true, now.Add(-time.Hour), now.Add(time.Hour), 1)
	addContact(t, conn, 3, "level one later id", true, now.Add(-time.Hour), now.Add(time.Hour), 1)

	c, err := NewStore(conn, time.UTC).Current(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(2), c.ID)
	assert.Equal(t, "level one", c.Name)
	assert.Equal(t, "3001234567", c.Phone)
	assert.Equal(t, 1, c.Level)
	assert.True(t, c.WindowStart.Equal(now.Add(-time.Hour)))
}

func TestCurrentSkipsUnavailableAndOutOfWindow(t *testing.T) {
	conn := dbtest.Open(t)
	addContact(t, conn, 1, "off duty", false, now.Add(-time.Hour), now.Add(time.Hour), 1)
	addContact(t, conn, 2, "expired", true, now.Add(-3*time.Hour), now.Add(-time.Hour), 1)
	addContact(t, conn, 3, "future", true, now.Add(time.Hour), now.Add(3*time.Hour), 1)

	c, err := NewStore(conn, nil).Current(context.Background(), now)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCurrentWindowBoundsAreInclusive(t *testing.T) {
	conn := dbtest.Open(t)
	addContact(t, conn, 1, "edge", true, now, now.Add(time.Hour), 1)

	c, err := NewStore(conn, time.UTC).Current(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "edge", c.Name)
}

func TestCurrentComparesWallClockInConfiguredZone(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	conn := dbtest.Open(t)
	// now is 14:00 UTC, 09:00 in Bogota.
	local := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	addContact(t, conn, 1, "utc shift", true, now.Add(-time.Hour), now.Add(time.Hour), 1)
	addContact(t, conn, 2, "bogota morning", true, local, local.Add(2*time.Hour), 2)

	c, err := NewStore(conn, bogota).Current(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(2), c.ID)
	assert.Equal(t, time.Date(2026, 10, 16, 8, 0, 0, 0, bogota), c.WindowStart)
	assert.Equal(t, time.Date(2026, 10, 16, 10, 0, 0, 0, bogota), c.WindowEnd)

	c, err = NewStore(conn, time.UTC).Current(context.Background(), now)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.ID)
}
