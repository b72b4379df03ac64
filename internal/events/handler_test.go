package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/db/dbtest"
	"ticketbridge/internal/logging"
)

type fixedCursor struct {
	v   int64
	err error
}

func (c fixedCursor) Get(context.Context) (int64, error) { return c.v, c.err }

func TestBacklogHandlerListsPendingAfterCursor(t *testing.T) {
	conn := dbtest.Open(t)
	for id := int64(1); id <= 4; id++ {
		insertEvent(t, conn, id, id, "")
	}
	h := &BacklogHandler{Poller: NewPoller(conn, 0), Cursor: fixedCursor{v: 1}, Logger: logging.Discard()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backlog?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body backlogResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Cursor)
	assert.True(t, body.More)
	require.Len(t, body.Pending, 2)
	assert.Equal(t, int64(2), body.Pending[0].ID)
	assert.Equal(t, int64(3), body.Pending[1].ID)
}

func TestBacklogHandlerEmpty(t *testing.T) {
	h := &BacklogHandler{Poller: NewPoller(dbtest.Open(t), 0), Cursor: fixedCursor{}, Logger: logging.Discard()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backlog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cursor":0,"pending":[],"more":false}`, rec.Body.String())
}

func TestBacklogHandlerRejects(t *testing.T) {
	h := &BacklogHandler{Poller: NewPoller(dbtest.Open(t), 0), Cursor: fixedCursor{}, Logger: logging.Discard()}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backlog", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backlog?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.Cursor = fixedCursor{err: errors.New("db gone")}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backlog", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
