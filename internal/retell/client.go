// Package retell places outbound voice calls through the Retell REST API.
package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ticketbridge/internal/config"
)

const (
	DefaultBaseURL = "https://api.retellai.com/v2"
	callTimeout    = 30 * time.Second
	maxTextLen     = 1800
)

// CallRequest describes one outbound call. Variables are handed to the agent's
// prompt as retell_llm_dynamic_variables.
type CallRequest struct {
	From      string
	To        string
	AgentID   string
	Variables map[string]string
}

// CallResult is the outcome of PlaceCall. Failures are reported through Error,
// Status and Text instead of a Go error.
type CallResult struct {
	Error  bool   `json:"error"`
	Status int    `json:"status,omitempty"`
	Text   string `json:"text,omitempty"`
	CallID string `json:"call_id,omitempty"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(cfg config.RetellConfig, hc *http.Client) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: base, http: hc}
}

// PlaceCall asks Retell to start a phone call. It never returns an error.
func (c *Client) PlaceCall(ctx context.Context, req CallRequest) CallResult {
	if c.apiKey == "" {
		return CallResult{Error: true, Text: "missing Retell API key"}
	}

	payload := map[string]any{
		"from_number":                  req.From,
		"to_number":                    req.To,
		"agent_id":                     req.AgentID,
		"retell_llm_dynamic_variables": req.Variables,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return CallResult{Error: true, Text: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create-phone-call", bytes.NewReader(b))
	if err != nil {
		return CallResult{Error: true, Text: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return CallResult{Error: true, Text: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	res := CallResult{Status: resp.StatusCode, Text: truncate(string(body), maxTextLen)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = true
		return res
	}
	var created struct {
		CallID string `json:"call_id"`
	}
	if json.Unmarshal(body, &created) == nil {
		res.CallID = created.CallID
	}
	return res
}

// NormalizeNumber trims raw and prefixes the default country code when the number
// has no leading '+'. An empty number stays empty.
func NormalizeNumber(raw, cc string) string {
	n := strings.TrimSpace(raw)
	if n == "" || strings.HasPrefix(n, "+") {
		return n
	}
	return cc + n
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
