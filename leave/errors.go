/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these sentinels with additional context.

ERROR CATEGORIES:
  1. Configuration errors - no matching workflow, missing policy
  2. State errors - wrong approver, wrong level, already decided
  3. Balance errors - insufficient balance, over-credit, write conflicts
  4. Validation errors - malformed ranges, notice/duration violations

USAGE:
  The wiring layer classifies errors for HTTP status mapping:

    if leave.IsConflict(err) { // 409
    if leave.IsNotFound(err) { // 404

SEE ALSO:
  - ledger: wraps ErrInsufficientBalance with balance context
  - approval: uses the state-error sentinels in Decide
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoApplicableWorkflow is returned when no workflow configuration
	// matches a request and no default exists for the leave type. The
	// request must be rejected at creation time; no chain is fabricated.
	ErrNoApplicableWorkflow = errors.New("no applicable workflow")

	// ErrPolicyNotFound is returned when no leave-type configuration exists
	// for the requested type/region at the given date.
	ErrPolicyNotFound = errors.New("leave policy not found")

	// ErrEmployeeNotFound is returned when the directory has no record for
	// the referenced employee.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrRequestNotFound is returned when a referenced leave request
	// doesn't exist.
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrInvalidApprover is returned when the deciding actor is not among
	// the step's assigned approvers (after any escalation reassignment).
	ErrInvalidApprover = errors.New("approver not assigned to this step")

	// ErrInvalidLevel is returned when a decision targets a level that is
	// not currently active, or a step that has already resolved.
	ErrInvalidLevel = errors.New("level is not awaiting a decision")

	// ErrAlreadyDecided is returned when the request is already terminal.
	ErrAlreadyDecided = errors.New("request already decided")

	// ErrInsufficientBalance is returned when a debit would push the
	// balance below the policy's allowed floor.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrOverCredit is returned when a credit would push used days below
	// zero. This is a double-reversal guard, not a business rule.
	ErrOverCredit = errors.New("credit exceeds recorded usage")

	// ErrConcurrentModification is returned when optimistic locking
	// detects a conflicting write. Callers may retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAlreadyAllocated reports that a balance row already exists for the
	// employee/type/year. Allocation is idempotent; this is informational.
	ErrAlreadyAllocated = errors.New("balance already allocated")

	// ErrInvalidDateRange is returned when a range ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrAdvanceNotice is returned when a request is filed closer to its
	// start date than the policy's minimum advance notice allows.
	ErrAdvanceNotice = errors.New("minimum advance notice not met")

	// ErrMaxConsecutive is returned when a request spans more consecutive
	// days than the policy allows.
	ErrMaxConsecutive = errors.New("exceeds maximum consecutive days")

	// ErrTeamOverlap is returned when a blocking overlap policy rejects a
	// request because too many team members would be away at once.
	ErrTeamOverlap = errors.New("too many overlapping team leaves")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoApplicableWorkflowError reports why resolution failed.
type NoApplicableWorkflowError struct {
	LeaveType LeaveTypeCode
	Evaluated int // how many configurations were considered
}

func (e *NoApplicableWorkflowError) Error() string {
	return fmt.Sprintf("no applicable workflow for leave type %q (%d configurations evaluated, no default)",
		e.LeaveType, e.Evaluated)
}

func (e *NoApplicableWorkflowError) Unwrap() error { return ErrNoApplicableWorkflow }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	LeaveType  LeaveTypeCode
	Year       int
	Available  Amount
	Requested  Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: available %s, requested %s",
		e.EmployeeID, e.LeaveType, e.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidApproverError identifies the rejected actor and the step.
type InvalidApproverError struct {
	RequestID  RequestID
	Level      int
	ApproverID EmployeeID
}

func (e *InvalidApproverError) Error() string {
	return fmt.Sprintf("approver %s is not assigned at level %d of request %s",
		e.ApproverID, e.Level, e.RequestID)
}

func (e *InvalidApproverError) Unwrap() error { return ErrInvalidApprover }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict returns true for state errors that map to HTTP 409: the
// operation was rejected but nothing was corrupted.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidApprover) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}

// IsValidation returns true for request-shape errors that map to HTTP 422.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrAdvanceNotice) ||
		errors.Is(err, ErrMaxConsecutive) ||
		errors.Is(err, ErrTeamOverlap) ||
		errors.Is(err, ErrNoApplicableWorkflow)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
