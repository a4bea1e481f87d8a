/*
machine.go - Approval lifecycle state machine

PURPOSE:
  Owns every transition of a bound leave request: per-approver decisions,
  level advancement, fail-fast rejection, cancellation with reversal, and
  the escalation sweep.

TRANSITIONS:
  Step:    PENDING -> {APPROVED, REJECTED}; PENDING -> PENDING with
           escalation reassignment (once) after EscalateAfterHours.
  Request: PENDING(level) -> {APPROVED, REJECTED, CANCELLED}.

  REJECTED at any level terminates the chain immediately; later levels
  never see a transition. APPROVED at the last level debits the balance
  ledger; if the debit fails the approval transition is NOT persisted and
  the error surfaces - a request is never left APPROVED without its debit.

CONCURRENCY:
  Decisions on one request are serialized by a per-request mutex; requests
  proceed in parallel. Cross-process safety comes from the request store's
  optimistic version check. The escalation sweep is idempotent (EscalatedAt
  is a latch checked under the same lock), so concurrent scheduler
  instances are safe.
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// LEDGER CONTRACT - Implemented by ledger.BalanceLedger
// =============================================================================

// Ledger is the balance side effect surface the state machine needs.
type Ledger interface {
	// Debit consumes days on terminal approval. Fails with
	// leave.ErrInsufficientBalance if the floor would be crossed.
	Debit(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int, days leave.Amount, reference string) error

	// Credit reverses a prior debit on post-approval cancellation.
	Credit(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int, days leave.Amount, reference string) error
}

// =============================================================================
// STATE MACHINE
// =============================================================================

// StateMachine drives bound requests to a terminal state.
type StateMachine struct {
	Requests  RequestStore
	Ledger    Ledger
	Directory leave.Directory
	Resolver  *Resolver
	Notifier  leave.Notifier

	// Now is the clock; nil means time.Now. Tests pin it.
	Now func() time.Time

	mu    sync.Mutex
	locks map[leave.RequestID]*sync.Mutex
}

func (m *StateMachine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *StateMachine) notify(e leave.Event) {
	if m.Notifier != nil {
		m.Notifier.Notify(e)
	}
}

// lockFor returns the per-request mutex, creating it on first use.
func (m *StateMachine) lockFor(id leave.RequestID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[leave.RequestID]*sync.Mutex)
	}
	if _, ok := m.locks[id]; !ok {
		m.locks[id] = &sync.Mutex{}
	}
	return m.locks[id]
}

// releaseLock drops a request's mutex entry once its stored state is
// terminal. Terminal requests are immutable, so a racing caller that
// creates a fresh mutex can only observe the terminal state and bail;
// without this the map grows for the life of the process.
func (m *StateMachine) releaseLock(id leave.RequestID) {
	m.mu.Lock()
	delete(m.locks, id)
	m.mu.Unlock()
}

// =============================================================================
// DECIDE
// =============================================================================

// Decide records one approver's decision at one level and applies any
// resulting step resolution or terminal transition.
func (m *StateMachine) Decide(
	ctx context.Context,
	requestID leave.RequestID,
	level int,
	approverID leave.EmployeeID,
	decision Decision,
	comments string,
) (*LeaveRequest, error) {
	if decision != DecisionApproved && decision != DecisionRejected {
		return nil, fmt.Errorf("decision must be APPROVED or REJECTED, got %q", decision)
	}

	lock := m.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := m.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		m.releaseLock(requestID)
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, leave.ErrAlreadyDecided)
	}

	chain := req.Chain
	step := chain.StepAt(level)
	if step == nil || level != chain.CurrentLevel || step.Resolution != DecisionPending {
		return nil, fmt.Errorf("request %s level %d: %w", requestID, level, leave.ErrInvalidLevel)
	}

	rec := step.RecordFor(approverID)
	if rec == nil || !assigned(step.AssignedApprovers, approverID) {
		return nil, &leave.InvalidApproverError{RequestID: requestID, Level: level, ApproverID: approverID}
	}
	if rec.Decision != DecisionPending {
		return nil, fmt.Errorf("approver %s already decided at level %d: %w", approverID, level, leave.ErrInvalidLevel)
	}
	if step.Step.Mode == ModeSequential {
		next, ok := step.NextSequentialApprover()
		if !ok || next != approverID {
			return nil, fmt.Errorf("level %d is sequential and it is not %s's turn: %w",
				level, approverID, leave.ErrInvalidLevel)
		}
	}

	now := m.now()
	rec.Decision = decision
	rec.DecidedAt = &now
	rec.Comments = comments

	if decision == DecisionRejected {
		// Fail-fast: one rejection terminates the whole chain.
		step.Resolution = DecisionRejected
		req.Status = StatusRejected
		req.DecidedAt = &now
		if err := m.Requests.SaveRequest(ctx, req); err != nil {
			return nil, err
		}
		m.releaseLock(requestID)
		m.notify(leave.Event{
			Kind: leave.EventRequestRejected, EmployeeID: req.EmployeeID,
			RequestID: req.ID, LeaveType: req.LeaveType, At: now,
		})
		return req, nil
	}

	if !step.QuorumMet() {
		// Partial ALL_OF/SEQUENTIAL progress; persist the record and wait.
		return req, m.Requests.SaveRequest(ctx, req)
	}

	step.Resolution = DecisionApproved

	if !chain.IsLastLevel(level) {
		chain.Advance(now)
		return req, m.Requests.SaveRequest(ctx, req)
	}

	// Terminal approval. The debit and the status flip are one logical
	// transaction: debit first, and only persist APPROVED if it succeeds.
	// A failed debit here means a race or a stale policy snapshot; the
	// request must not be left APPROVED.
	if err := m.Ledger.Debit(ctx, req.EmployeeID, req.LeaveType, req.BalanceYear(), req.TotalDays, string(req.ID)); err != nil {
		return nil, fmt.Errorf("terminal approval of %s: %w", requestID, err)
	}

	req.Status = StatusApproved
	req.DecidedAt = &now
	if err := m.Requests.SaveRequest(ctx, req); err != nil {
		// Undo the debit so the ledger and the stored request agree.
		if cerr := m.Ledger.Credit(ctx, req.EmployeeID, req.LeaveType, req.BalanceYear(), req.TotalDays, string(req.ID)); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	m.releaseLock(requestID)
	m.notify(leave.Event{
		Kind: leave.EventRequestApproved, EmployeeID: req.EmployeeID,
		RequestID: req.ID, LeaveType: req.LeaveType, At: now,
	})
	return req, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel cancels an in-progress request, or reverses an approved one by
// crediting the debited days back. Cancelling an already rejected or
// cancelled request is a no-op: terminal, nothing to reverse.
func (m *StateMachine) Cancel(ctx context.Context, requestID leave.RequestID, actorID leave.EmployeeID) (*LeaveRequest, error) {
	lock := m.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := m.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case StatusRejected, StatusCancelled:
		m.releaseLock(requestID)
		return req, nil

	case StatusApproved:
		if err := m.Ledger.Credit(ctx, req.EmployeeID, req.LeaveType, req.BalanceYear(), req.TotalDays, string(req.ID)); err != nil {
			return nil, fmt.Errorf("reverse debit for %s: %w", requestID, err)
		}
	}

	now := m.now()
	req.Status = StatusCancelled
	req.DecidedAt = &now
	if err := m.Requests.SaveRequest(ctx, req); err != nil {
		return nil, err
	}

	m.releaseLock(requestID)
	m.notify(leave.Event{
		Kind: leave.EventRequestCancelled, EmployeeID: req.EmployeeID,
		RequestID: req.ID, LeaveType: req.LeaveType, At: now,
	})
	return req, nil
}

// =============================================================================
// ESCALATION SWEEP
// =============================================================================

// SweepResult reports one sweep run. Failures are per-request; one
// request's failure never blocks the others.
type SweepResult struct {
	Checked   int
	Escalated int
	Errors    []error
}

// CheckEscalations scans all pending requests and reassigns any active step
// whose escalation window has elapsed. Idempotent: a step escalates at most
// once, and re-running the sweep at the same instant is a no-op.
func (m *StateMachine) CheckEscalations(ctx context.Context, now time.Time) SweepResult {
	result := SweepResult{}

	pending, err := m.Requests.PendingRequests(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("list pending requests: %w", err))
		return result
	}

	for _, stale := range pending {
		result.Checked++
		escalated, err := m.escalateOne(ctx, stale.ID, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("request %s: %w", stale.ID, err))
			continue
		}
		if escalated {
			result.Escalated++
		}
	}
	return result
}

func (m *StateMachine) escalateOne(ctx context.Context, id leave.RequestID, now time.Time) (bool, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	// Reload under the lock: the listed snapshot may be stale.
	req, err := m.Requests.GetRequest(ctx, id)
	if err != nil {
		return false, err
	}
	if req.Status.Terminal() {
		m.releaseLock(id)
		return false, nil
	}

	step := req.Chain.ActiveStep()
	if step == nil || step.Step.EscalateAfterHours <= 0 {
		return false, nil
	}
	if step.EscalatedAt != nil {
		return false, nil // escalates at most once
	}

	deadline := step.ActivatedAt.Add(time.Duration(step.Step.EscalateAfterHours) * time.Hour)
	if now.Before(deadline) {
		return false, nil
	}

	emp, err := m.Directory.Employee(ctx, req.EmployeeID)
	if err != nil {
		return false, err
	}
	approvers, err := m.Resolver.ApproversForRole(ctx, step.Step.EscalateToRole, *emp)
	if err != nil {
		return false, err
	}
	if len(approvers) == 0 {
		return false, fmt.Errorf("escalation role %q has no approvers", step.Step.EscalateToRole)
	}

	step.Reassign(approvers, now)
	if err := m.Requests.SaveRequest(ctx, req); err != nil {
		return false, err
	}

	m.notify(leave.Event{
		Kind: leave.EventStepEscalated, EmployeeID: req.EmployeeID,
		RequestID: req.ID, LeaveType: req.LeaveType, Level: step.Step.Level, At: now,
	})
	return true, nil
}

func assigned(ids []leave.EmployeeID, id leave.EmployeeID) bool {
	for _, a := range ids {
		if a == id {
			return true
		}
	}
	return false
}
