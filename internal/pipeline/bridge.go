// Package pipeline turns new source events into GLPI tickets carrying network
// diagnostics, optionally phones the on-call contact, and advances the cursor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ticketbridge/internal/content"
	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/events"
	"ticketbridge/internal/retell"
	"ticketbridge/internal/target"
	"ticketbridge/internal/telemetry"
)

var (
	ErrTicketCreate = errors.New("create ticket")
	ErrFollowup     = errors.New("append followup")
	ErrCursor       = errors.New("advance cursor")
)

type Options struct {
	PollInterval time.Duration
	// BatchPause is the pause after a non-empty batch before polling again.
	BatchPause time.Duration
	CallFrom   string
	AgentID    string
	DefaultCC  string
	// Now feeds the on-call window lookup.
	Now     func() time.Time
	Resolve func(raw string) target.Target
}

type Bridge struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	status statusTracker
}

func New(deps Deps, opts Options, logger *slog.Logger) *Bridge {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.BatchPause <= 0 {
		opts.BatchPause = time.Second
	}
	if opts.DefaultCC == "" {
		opts.DefaultCC = "+57"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Resolve == nil {
		opts.Resolve = target.Resolve
	}
	return &Bridge{
		deps:   deps,
		opts:   opts,
		logger: logger,
		tracer: telemetry.Tracer(),
	}
}

// Status returns a snapshot of the loop's progress.
func (b *Bridge) Status() Status {
	return b.status.snapshot()
}

// Run polls until ctx is done or a fatal step fails. Events of a batch are handled
// one at a time in ascending id order.
func (b *Bridge) Run(ctx context.Context) error {
	after, err := b.deps.Cursor.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: read watermark: %w", ErrCursor, err)
	}
	b.status.start(after)
	defer b.status.stop()
	b.logger.Info("bridge started", "cursor", after, "poll_interval", b.opts.PollInterval)

	for {
		batch, err := b.deps.Source.Fetch(ctx, after)
		b.status.polled()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch events after %d: %w", after, err)
		}
		if len(batch) == 0 {
			if err := sleep(ctx, b.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		for _, ev := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.processEvent(ctx, ev); err != nil {
				b.status.failed(ev.ID, err)
				return err
			}
			after = ev.ID
		}
		if err := sleep(ctx, b.opts.BatchPause); err != nil {
			return err
		}
	}
}

// processEvent walks one event through the ticket pipeline. Ticket, follow-up and
// cursor failures are returned; everything else is logged and skipped.
func (b *Bridge) processEvent(ctx context.Context, ev events.Event) (err error) {
	ctx, span := b.tracer.Start(ctx, "bridge.event", trace.WithAttributes(
		attribute.Int64("event.id", ev.ID),
		attribute.Int64("event.ref", ev.EventRef),
	))
	defer func() { telemetry.End(span, err) }()

	log := b.logger.With("event_id", ev.ID, "event_ref", ev.EventRef)
	log.InfoContext(ctx, "processing event")

	problem := b.lookupProblem(ctx, log, ev)
	title := content.Title(ev.EventRef, problem)

	ticketID, followupDone, err := b.ensureTicket(ctx, log, ev, title, problem)
	if err != nil {
		return err
	}
	log = log.With("ticket_id", ticketID)
	span.SetAttributes(attribute.Int64("ticket.id", ticketID))

	t := b.opts.Resolve(ev.ImpactedSystem)
	var followup, summary string
	if !t.Valid() {
		log.WarnContext(ctx, "no target in impacted system, skipping probes", "raw", ev.ImpactedSystem)
		b.status.invalidTarget()
		followup = content.InvalidTarget(ev.ImpactedSystem)
		summary = content.InvalidTargetSummary
	} else {
		res := b.runDiagnostics(ctx, t)
		log.InfoContext(ctx, "diagnostics finished", "target", t.String(),
			"ping_ok", res.Ping.OK, "trace_ok", res.Traceroute.OK, "port_ok", res.Port.OK)
		followup = content.Followup(ev.ImpactedSystem, t, res)
		summary = res.Summary()
	}

	if followupDone {
		log.InfoContext(ctx, "diagnostics followup already on ticket")
	} else {
		if err := b.appendFollowup(ctx, ev.ID, ticketID, followup); err != nil {
			return err
		}
		log.InfoContext(ctx, "followup appended")
	}

	b.notify(ctx, log, ev, title, summary, ticketID)

	if err := b.advance(ctx, ev.ID); err != nil {
		return err
	}
	b.status.processed(ev.ID, ticketID)
	log.InfoContext(ctx, "event processed")
	return nil
}

// lookupProblem only enriches the title, so failures fall back to no name.
func (b *Bridge) lookupProblem(ctx context.Context, log *slog.Logger, ev events.Event) string {
	ctx, span := b.tracer.Start(ctx, "bridge.lookup_problem")
	name, ok, err := b.deps.Source.LookupProblemName(ctx, ev.EventRef)
	telemetry.End(span, err)
	if err != nil {
		log.WarnContext(ctx, "lookup problem name", "err", err)
		return ""
	}
	if !ok {
		return ""
	}
	return name
}

// ensureTicket returns the ticket for ev, creating it unless the ledger already
// holds one. followupDone reports that a previous attempt attached diagnostics.
func (b *Bridge) ensureTicket(ctx context.Context, log *slog.Logger, ev events.Event, title, problem string) (ticketID int64, followupDone bool, err error) {
	ctx, span := b.tracer.Start(ctx, "bridge.create_ticket")
	defer func() { telemetry.End(span, err) }()

	if b.deps.Ledger != nil {
		entry, err := b.deps.Ledger.Get(ctx, ev.ID)
		if err != nil {
			return 0, false, fmt.Errorf("%w for event %d: read ledger: %w", ErrTicketCreate, ev.ID, err)
		}
		if entry != nil {
			log.InfoContext(ctx, "reusing ticket from ledger", "ticket_id", entry.TicketID)
			b.status.ticketReused()
			span.SetAttributes(attribute.Bool("ticket.reused", true))
			return entry.TicketID, entry.FollowupDone, nil
		}
	}

	in := b.deps.Tickets.NewTicket(title, b.render(content.Body(ev, problem)))
	id, err := b.deps.Tickets.CreateTicket(ctx, in)
	if err != nil {
		return 0, false, fmt.Errorf("%w for event %d: %w", ErrTicketCreate, ev.ID, err)
	}
	log.InfoContext(ctx, "ticket created", "ticket_id", id)
	b.status.ticketCreated()

	if b.deps.Ledger != nil {
		if err := b.deps.Ledger.Record(ctx, ev.ID, id); err != nil {
			return 0, false, fmt.Errorf("%w for event %d: ticket %d not recorded: %w", ErrTicketCreate, ev.ID, id, err)
		}
	}
	return id, false, nil
}

func (b *Bridge) runDiagnostics(ctx context.Context, t target.Target) diagnostics.Result {
	ctx, span := b.tracer.Start(ctx, "bridge.diagnostics", trace.WithAttributes(
		attribute.String("target", t.String()),
	))
	defer span.End()
	return b.deps.Diagnostics.Run(ctx, t)
}

func (b *Bridge) appendFollowup(ctx context.Context, eventID, ticketID int64, followup string) (err error) {
	ctx, span := b.tracer.Start(ctx, "bridge.append_followup")
	defer func() { telemetry.End(span, err) }()

	if err := b.deps.Tickets.AddFollowup(ctx, ticketID, b.render(followup), false); err != nil {
		return fmt.Errorf("%w to ticket %d: %w", ErrFollowup, ticketID, err)
	}
	b.status.followupAppended()
	if b.deps.Ledger != nil {
		if err := b.deps.Ledger.MarkFollowupDone(ctx, eventID); err != nil {
			return fmt.Errorf("%w to ticket %d: ledger: %w", ErrFollowup, ticketID, err)
		}
	}
	return nil
}

// notify phones the on-call contact. Nothing here can fail the event.
func (b *Bridge) notify(ctx context.Context, log *slog.Logger, ev events.Event, title, summary string, ticketID int64) {
	if b.deps.Contacts == nil || b.deps.Caller == nil {
		log.DebugContext(ctx, "notifications disabled")
		return
	}
	ctx, span := b.tracer.Start(ctx, "bridge.notify")
	defer span.End()

	contact, err := b.deps.Contacts.Current(ctx, b.opts.Now())
	if err != nil {
		span.RecordError(err)
		log.ErrorContext(ctx, "lookup on-call contact", "err", err)
		return
	}
	if contact == nil {
		log.InfoContext(ctx, "no contact available in the current window")
		return
	}

	to := retell.NormalizeNumber(contact.Phone, b.opts.DefaultCC)
	if to == "" {
		log.WarnContext(ctx, "on-call contact has no phone number", "contact_id", contact.ID)
		return
	}
	res := b.deps.Caller.PlaceCall(ctx, retell.CallRequest{
		From:      b.opts.CallFrom,
		To:        to,
		AgentID:   b.opts.AgentID,
		Variables: content.CallVariables(contact.Name, title, ev, summary, ticketID),
	})
	if res.Error {
		b.status.callFailed()
		log.ErrorContext(ctx, "place call", "to", to, "status", res.Status, "text", res.Text)
	} else {
		b.status.callPlaced()
		log.InfoContext(ctx, "call placed", "to", to, "call_id", res.CallID)
	}

	note := b.render(content.CallOutcome(contact.Name, to, res))
	if err := b.deps.Tickets.AddFollowup(ctx, ticketID, note, false); err != nil {
		log.WarnContext(ctx, "record call outcome on ticket", "err", err)
	}
}

func (b *Bridge) advance(ctx context.Context, eventID int64) (err error) {
	ctx, span := b.tracer.Start(ctx, "bridge.advance_cursor")
	defer func() { telemetry.End(span, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.deps.Cursor.Set(ctx, eventID); err != nil {
		return fmt.Errorf("%w to %d: %w", ErrCursor, eventID, err)
	}
	return nil
}

func (b *Bridge) render(markdown string) string {
	if b.deps.Renderer == nil {
		return markdown
	}
	return b.deps.Renderer.Render(markdown)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
