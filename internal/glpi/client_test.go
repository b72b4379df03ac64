package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketbridge/internal/config"
)

type fakeGLPI struct {
	mu        sync.Mutex
	requests  []*http.Request
	bodies    []map[string]any
	ticketRes string
	status    int
	killed    bool
}

func (f *fakeGLPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	var body map[string]any
	if b, _ := io.ReadAll(r.Body); len(b) > 0 {
		_ = json.Unmarshal(b, &body)
	}
	f.bodies = append(f.bodies, body)

	if f.status != 0 && r.URL.Path != "/initSession" {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `["ERROR_GLPI_ADD","nope"]`)
		return
	}
	switch r.URL.Path {
	case "/initSession":
		_, _ = io.WriteString(w, `{"session_token":"sess-1"}`)
	case "/Ticket/":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, f.ticketRes)
	case "/ITILFollowup/":
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":9}`)
	case "/killSession":
		f.killed = true
		_, _ = io.WriteString(w, `true`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeGLPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(config.GLPIConfig{APIURL: srv.URL + "/", UserToken: "user-tok", AppToken: "app-tok"})
}

func TestInitSessionSendsTokens(t *testing.T) {
	f := &fakeGLPI{}
	c := newTestClient(t, f)

	require.NoError(t, c.InitSession(context.Background()))
	assert.True(t, c.HasSession())

	r := f.requests[0]
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "app-tok", r.Header.Get("App-Token"))
	assert.Equal(t, "user_token user-tok", r.Header.Get("Authorization"))
}

func TestInitSessionWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := New(config.GLPIConfig{APIURL: srv.URL, UserToken: "u", AppToken: "a"})
	err := c.InitSession(context.Background())
	assert.ErrorIs(t, err, ErrNoSessionToken)
	assert.False(t, c.HasSession())
}

func TestCreateTicketReadsObjectOrArray(t *testing.T) {
	for _, res := range []string{`{"id":812,"message":""}`, `[{"id":812,"message":""}]`} {
		f := &fakeGLPI{ticketRes: res}
		c := newTestClient(t, f)
		require.NoError(t, c.InitSession(context.Background()))

		id, err := c.CreateTicket(context.Background(), c.NewTicket("Event 5 - Disk full", "<p>body</p>"))
		require.NoError(t, err, res)
		assert.Equal(t, int64(812), id)

		r := f.requests[1]
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sess-1", r.Header.Get("Session-Token"))
		assert.Equal(t, "app-tok", r.Header.Get("App-Token"))
		input := f.bodies[1]["input"].(map[string]any)
		assert.Equal(t, "Event 5 - Disk full", input["name"])
		assert.EqualValues(t, 3, input["urgency"])
		assert.EqualValues(t, 2, input["impact"])
		assert.EqualValues(t, 2, input["requesttypes_id"])
	}
}

func TestCreateTicketWithoutID(t *testing.T) {
	f := &fakeGLPI{ticketRes: `{"message":"created?"}`}
	c := newTestClient(t, f)
	require.NoError(t, c.InitSession(context.Background()))

	_, err := c.CreateTicket(context.Background(), c.NewTicket("t", "c"))
	assert.ErrorIs(t, err, ErrNoTicketID)
}

func TestCreateTicketAPIError(t *testing.T) {
	f := &fakeGLPI{status: http.StatusBadRequest}
	c := newTestClient(t, f)
	require.NoError(t, c.InitSession(context.Background()))

	_, err := c.CreateTicket(context.Background(), c.NewTicket("t", "c"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "ERROR_GLPI_ADD")
}

func TestCallsRequireSession(t *testing.T) {
	c := newTestClient(t, &fakeGLPI{})
	_, err := c.CreateTicket(context.Background(), c.NewTicket("t", "c"))
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, c.AddFollowup(context.Background(), 1, "x", false), ErrNoSession)
}

func TestAddFollowupPayload(t *testing.T) {
	f := &fakeGLPI{}
	c := newTestClient(t, f)
	require.NoError(t, c.InitSession(context.Background()))

	require.NoError(t, c.AddFollowup(context.Background(), 812, "<p>diag</p>", true))
	input := f.bodies[1]["input"].(map[string]any)
	assert.Equal(t, "Ticket", input["itemtype"])
	assert.EqualValues(t, 812, input["items_id"])
	assert.Equal(t, "<p>diag</p>", input["content"])
	assert.EqualValues(t, 1, input["is_private"])
}

func TestKillSessionClearsTokenEvenOnError(t *testing.T) {
	f := &fakeGLPI{}
	c := newTestClient(t, f)
	require.NoError(t, c.InitSession(context.Background()))

	require.NoError(t, c.KillSession(context.Background()))
	assert.True(t, f.killed)
	assert.False(t, c.HasSession())
	// Second kill is a no-op.
	require.NoError(t, c.KillSession(context.Background()))

	f2 := &fakeGLPI{}
	c2 := newTestClient(t, f2)
	require.NoError(t, c2.InitSession(context.Background()))
	f2.status = http.StatusInternalServerError
	assert.Error(t, c2.KillSession(context.Background()))
	assert.False(t, c2.HasSession())
}
