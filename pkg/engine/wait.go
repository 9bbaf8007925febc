package engine

import (
	"fmt"
	"sync"

	"github.com/dagline/dagline/pkg/models"
)

// waitEntry identifies the suspended node a ticket belongs to.
type waitEntry struct {
	executionID string
	nodeID      string
}

// WaitRegistry is the ticket-keyed suspension table spec §4.6 describes:
// an external resume(executionId, waitTicket, payload) call is routed
// to exactly one paused node. Resolving a ticket removes it, so a
// duplicate resume delivery after the first success is a no-op
// (spec §6 "resume(wait, payload) is idempotent").
type WaitRegistry struct {
	mu      sync.Mutex
	tickets map[string]waitEntry
}

func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{tickets: make(map[string]waitEntry)}
}

// register records that ticket belongs to nodeID within executionID.
func (r *WaitRegistry) register(executionID, nodeID, ticket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket] = waitEntry{executionID: executionID, nodeID: nodeID}
}

// resolve removes and returns the entry for ticket, if the caller's
// executionID matches. Returns ok=false on unknown or already-resolved
// tickets, or a ticket belonging to a different execution.
func (r *WaitRegistry) resolve(executionID, ticket string) (waitEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.tickets[ticket]
	if !ok || entry.executionID != executionID {
		return waitEntry{}, false
	}
	delete(r.tickets, ticket)
	return entry, true
}

// release drops every ticket owned by executionID, e.g. when the
// execution terminates without every wait being resumed.
func (r *WaitRegistry) release(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ticket, entry := range r.tickets {
		if entry.executionID == executionID {
			delete(r.tickets, ticket)
		}
	}
}

// errTicketNotPending mirrors models.ErrWaitTicketNotFound with the
// scheduler's own wording for a resume call that can't be routed.
func errTicketNotPending(ticket string) error {
	return fmt.Errorf("%w: %s", models.ErrWaitTicketNotFound, ticket)
}
