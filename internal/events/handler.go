package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"
)

const (
	defaultBacklogLimit = 50
	maxBacklogLimit     = 500
)

// CursorReader exposes the current watermark.
type CursorReader interface {
	Get(ctx context.Context) (int64, error)
}

// BacklogHandler lists source rows that are newer than the watermark, oldest first.
type BacklogHandler struct {
	Poller *Poller
	Cursor CursorReader
	Logger *slog.Logger
}

type backlogResponse struct {
	Cursor  int64   `json:"cursor"`
	Pending []Event `json:"pending"`
	More    bool    `json:"more"`
}

func (h *BacklogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := defaultBacklogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit = min(l, maxBacklogLimit)
	}

	ctx := r.Context()
	after, err := h.Cursor.Get(ctx)
	if err != nil {
		h.Logger.Error("read cursor", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	// One extra row tells the caller whether the list was cut.
	pending, err := (&Poller{db: h.Poller.db, limit: limit + 1}).Fetch(ctx, after)
	if err != nil {
		h.Logger.Error("list backlog", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp := backlogResponse{Cursor: after, Pending: pending}
	if len(pending) > limit {
		resp.Pending = pending[:limit]
		resp.More = true
	}
	if resp.Pending == nil {
		resp.Pending = []Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
