// Package glpi talks to the GLPI REST API: session handling, ticket creation and
// follow-ups.
package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ticketbridge/internal/config"
)

const (
	initTimeout     = 20 * time.Second
	writeTimeout    = 30 * time.Second
	killTimeout     = 10 * time.Second
	maxErrorBodyLen = 2048
)

var (
	ErrNoSessionToken = errors.New("glpi: initSession response has no session_token")
	ErrNoTicketID     = errors.New("glpi: ticket response has no id")
	ErrNoSession      = errors.New("glpi: no active session")
)

// APIError is returned for any non-2xx answer.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("glpi %s: status %d: %s", e.Op, e.Status, e.Body)
}

// TicketInput is the subset of ticket fields the bridge sets.
type TicketInput struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Urgency     int    `json:"urgency"`
	Impact      int    `json:"impact"`
	RequestType int    `json:"requesttypes_id"`
}

type followupInput struct {
	ItemType  string `json:"itemtype"`
	ItemsID   int64  `json:"items_id"`
	Content   string `json:"content"`
	IsPrivate int    `json:"is_private"`
}

type Client struct {
	baseURL   string
	userToken string
	appToken  string
	defaults  TicketInput
	http      *http.Client

	mu      sync.Mutex
	session string
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(cfg config.GLPIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.APIURL, "/"),
		userToken: cfg.UserToken,
		appToken:  cfg.AppToken,
		defaults: TicketInput{
			Urgency:     orDefault(cfg.Urgency, 3),
			Impact:      orDefault(cfg.Impact, 2),
			RequestType: orDefault(cfg.RequestType, 2),
		},
		http: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewTicket fills in the configured urgency, impact and request type.
func (c *Client) NewTicket(name, content string) TicketInput {
	t := c.defaults
	t.Name = name
	t.Content = content
	return t
}

// InitSession opens a session and keeps its token for later calls.
func (c *Client) InitSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/initSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("App-Token", c.appToken)
	req.Header.Set("Authorization", "user_token "+c.userToken)

	var body struct {
		SessionToken string `json:"session_token"`
	}
	if err := c.do(req, "initSession", &body); err != nil {
		return err
	}
	if body.SessionToken == "" {
		return ErrNoSessionToken
	}
	c.mu.Lock()
	c.session = body.SessionToken
	c.mu.Unlock()
	return nil
}

// HasSession reports whether InitSession succeeded and KillSession has not run.
func (c *Client) HasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != ""
}

// CreateTicket creates a ticket and returns its id. GLPI answers either with an
// object or with a one-element array.
func (c *Client) CreateTicket(ctx context.Context, in TicketInput) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	req, err := c.newJSONRequest(ctx, http.MethodPost, "/Ticket/", map[string]any{"input": in})
	if err != nil {
		return 0, err
	}
	var raw json.RawMessage
	if err := c.do(req, "create ticket", &raw); err != nil {
		return 0, err
	}
	return ticketID(raw)
}

// AddFollowup appends a follow-up to a ticket.
func (c *Client) AddFollowup(ctx context.Context, ticketID int64, content string, private bool) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	in := followupInput{ItemType: "Ticket", ItemsID: ticketID, Content: content}
	if private {
		in.IsPrivate = 1
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/ITILFollowup/", map[string]any{"input": in})
	if err != nil {
		return err
	}
	return c.do(req, "add followup", nil)
}

// KillSession closes the session. The local token is cleared whatever happens.
func (c *Client) KillSession(ctx context.Context) error {
	c.mu.Lock()
	token := c.session
	c.session = ""
	c.mu.Unlock()
	if token == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, killTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/killSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("App-Token", c.appToken)
	req.Header.Set("Session-Token", token)
	return c.do(req, "killSession", nil)
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	c.mu.Lock()
	token := c.session
	c.mu.Unlock()
	if token == "" {
		return nil, ErrNoSession
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-Token", c.appToken)
	req.Header.Set("Session-Token", token)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("glpi %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("glpi %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBodyLen {
			text = text[:maxErrorBodyLen]
		}
		return &APIError{Op: op, Status: resp.StatusCode, Body: text}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("glpi %s: decode: %w", op, err)
	}
	return nil
}

func ticketID(raw json.RawMessage) (int64, error) {
	type idOnly struct {
		ID int64 `json:"id"`
	}
	var obj idOnly
	if err := json.Unmarshal(raw, &obj); err == nil && obj.ID > 0 {
		return obj.ID, nil
	}
	var arr []idOnly
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 && arr[0].ID > 0 {
		return arr[0].ID, nil
	}
	return 0, ErrNoTicketID
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
