/*
request.go - Leave request entity and persistence contract

LIFECYCLE:
  Created (chain bound, immutable) -> records mutate through the state
  machine -> terminal decision triggers the balance debit (APPROVED) or
  nothing (REJECTED/CANCELLED) -> the request becomes immutable history.
*/
package approval

import (
	"context"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST
// =============================================================================

// Status is the request-level aggregate state.
type Status string

const (
	StatusPending   Status = "PENDING" // chain in progress
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further decisions apply.
func (s Status) Terminal() bool { return s != StatusPending }

// LeaveRequest is a request for leave with its bound approval chain.
type LeaveRequest struct {
	ID         leave.RequestID     `json:"id"`
	EmployeeID leave.EmployeeID    `json:"employee_id"`
	LeaveType  leave.LeaveTypeCode `json:"leave_type"`
	Range      leave.DateRange     `json:"range"`

	// TotalDays may be fractional (half/quarter/hourly granularity).
	TotalDays leave.Amount `json:"total_days"`

	Reason                string `json:"reason"`
	RequiresDocumentation bool   `json:"requires_documentation"`

	Status Status         `json:"status"`
	Chain  *ApprovalChain `json:"chain"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	// Version supports optimistic locking across processes. Stores reject
	// a save whose version doesn't match the persisted row.
	Version int `json:"version"`
}

// BalanceYear is the ledger year this request debits: the year the leave
// starts in.
func (r *LeaveRequest) BalanceYear() int { return r.Range.Start.Year() }

// Interval adapts the request for overlap detection.
func (r *LeaveRequest) Interval() leave.LeaveInterval {
	return leave.LeaveInterval{
		EmployeeID: r.EmployeeID,
		RequestID:  r.ID,
		Range:      r.Range,
	}
}

// =============================================================================
// REQUEST STORE
// =============================================================================

// RequestStore persists leave requests with their chains.
type RequestStore interface {
	// SaveRequest inserts a new request (Version 0) or updates an existing
	// one. Updates must match the stored version and bump it, returning
	// leave.ErrConcurrentModification on mismatch.
	SaveRequest(ctx context.Context, req *LeaveRequest) error

	// GetRequest returns the request or leave.ErrRequestNotFound.
	GetRequest(ctx context.Context, id leave.RequestID) (*LeaveRequest, error)

	// PendingRequests returns every non-terminal request. Used by the
	// escalation sweep.
	PendingRequests(ctx context.Context) ([]*LeaveRequest, error)

	// RequestsByEmployee returns the employee's requests, newest first.
	RequestsByEmployee(ctx context.Context, id leave.EmployeeID) ([]*LeaveRequest, error)

	// ApprovedInWindow returns approved requests whose range intersects the
	// window, for conflict detection.
	ApprovedInWindow(ctx context.Context, window leave.DateRange) ([]*LeaveRequest, error)
}
