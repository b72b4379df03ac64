package pipeline

import (
	"context"
	"time"

	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/events"
	"ticketbridge/internal/glpi"
	"ticketbridge/internal/ledger"
	"ticketbridge/internal/oncall"
	"ticketbridge/internal/retell"
	"ticketbridge/internal/target"
)

// EventSource yields new source rows after a watermark.
type EventSource interface {
	Fetch(ctx context.Context, after int64) ([]events.Event, error)
	LookupProblemName(ctx context.Context, eventRef int64) (string, bool, error)
}

type Cursor interface {
	Get(ctx context.Context) (int64, error)
	Set(ctx context.Context, id int64) error
}

type Tickets interface {
	NewTicket(name, content string) glpi.TicketInput
	CreateTicket(ctx context.Context, in glpi.TicketInput) (int64, error)
	AddFollowup(ctx context.Context, ticketID int64, content string, private bool) error
}

type Diagnostics interface {
	Run(ctx context.Context, t target.Target) diagnostics.Result
}

type Contacts interface {
	Current(ctx context.Context, now time.Time) (*oncall.Contact, error)
}

type Caller interface {
	PlaceCall(ctx context.Context, req retell.CallRequest) retell.CallResult
}

// Ledger maps source events to the tickets opened for them.
type Ledger interface {
	Get(ctx context.Context, eventID int64) (*ledger.Entry, error)
	Record(ctx context.Context, eventID, ticketID int64) error
	MarkFollowupDone(ctx context.Context, eventID int64) error
}

// Renderer converts Markdown to the rich text stored on tickets.
type Renderer interface {
	Render(markdown string) string
}

// Deps are the collaborators of a Bridge. Contacts, Caller, Ledger and Renderer
// are optional.
type Deps struct {
	Source      EventSource
	Cursor      Cursor
	Tickets     Tickets
	Diagnostics Diagnostics
	Contacts    Contacts
	Caller      Caller
	Ledger      Ledger
	Renderer    Renderer
}
