/*
events.go - Domain events emitted by the engine

PURPOSE:
  The engine emits events at decision points; an external notifier
  (email, websocket) subscribes to them. The engine never delivers
  notifications itself - delivery is the subscriber's concern.

DELIVERY GUARANTEE:
  None. Events are fire-and-forget from the engine's perspective. State
  transitions commit regardless of whether a subscriber is attached or
  whether it errors. Subscribers that need durability must persist on
  their side.
*/
package leave

import "time"

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	EventRequestApproved     EventKind = "request_approved"
	EventRequestRejected     EventKind = "request_rejected"
	EventRequestCancelled    EventKind = "request_cancelled"
	EventStepEscalated       EventKind = "step_escalated"
	EventAllocationCompleted EventKind = "allocation_completed"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Kind       EventKind
	EmployeeID EmployeeID
	RequestID  RequestID // empty for allocation events
	LeaveType  LeaveTypeCode
	Level      int // set for step_escalated
	Year       int // set for allocation_completed
	At         time.Time
}

// Notifier receives engine events. Implementations must not block the
// caller; slow delivery belongs behind a queue on the subscriber side.
type Notifier interface {
	Notify(event Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }
