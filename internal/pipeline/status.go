package pipeline

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the bridge, served by the operator API.
type Status struct {
	Running           bool      `json:"running"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	LastPollAt        time.Time `json:"last_poll_at,omitempty"`
	Cursor            int64     `json:"cursor"`
	LastEventID       int64     `json:"last_event_id"`
	LastTicketID      int64     `json:"last_ticket_id"`
	LastError         string    `json:"last_error,omitempty"`
	LastErrorEventID  int64     `json:"last_error_event_id,omitempty"`
	Processed         int64     `json:"processed"`
	TicketsCreated    int64     `json:"tickets_created"`
	TicketsReused     int64     `json:"tickets_reused"`
	FollowupsAppended int64     `json:"followups_appended"`
	InvalidTargets    int64     `json:"invalid_targets"`
	CallsPlaced       int64     `json:"calls_placed"`
	CallsFailed       int64     `json:"calls_failed"`
}

type statusTracker struct {
	mu sync.Mutex
	s  Status
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

func (t *statusTracker) update(fn func(*Status)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

func (t *statusTracker) start(cursor int64) {
	t.update(func(s *Status) {
		s.Running = true
		s.StartedAt = time.Now().UTC()
		s.Cursor = cursor
	})
}

func (t *statusTracker) stop() {
	t.update(func(s *Status) { s.Running = false })
}

func (t *statusTracker) polled() {
	t.update(func(s *Status) { s.LastPollAt = time.Now().UTC() })
}

func (t *statusTracker) failed(eventID int64, err error) {
	t.update(func(s *Status) {
		s.LastError = err.Error()
		s.LastErrorEventID = eventID
	})
}

func (t *statusTracker) processed(eventID, ticketID int64) {
	t.update(func(s *Status) {
		s.Cursor = eventID
		s.LastEventID = eventID
		s.LastTicketID = ticketID
		s.Processed++
	})
}

func (t *statusTracker) ticketCreated()    { t.update(func(s *Status) { s.TicketsCreated++ }) }
func (t *statusTracker) ticketReused()     { t.update(func(s *Status) { s.TicketsReused++ }) }
func (t *statusTracker) followupAppended() { t.update(func(s *Status) { s.FollowupsAppended++ }) }
func (t *statusTracker) invalidTarget()    { t.update(func(s *Status) { s.InvalidTargets++ }) }
func (t *statusTracker) callPlaced()       { t.update(func(s *Status) { s.CallsPlaced++ }) }
func (t *statusTracker) callFailed()       { t.update(func(s *Status) { s.CallsFailed++ }) }
