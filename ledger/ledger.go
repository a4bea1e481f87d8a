/*
Package ledger is the authoritative per-employee, per-leave-type, per-year
balance record. All debits and credits flow through it.

PURPOSE:
  A LeaveBalance row is mutated ONLY through the ledger's operations -
  never by direct field assignment from two concurrent callers. Each
  operation is an atomic read-modify-write: load the row, recompute, and
  store with an optimistic version check. A conflicting writer surfaces as
  ErrConcurrentModification and the operation retries with a fresh read,
  so debit/credit for one (employee, leaveType, year) key are linearized
  while different keys proceed fully in parallel.

AVAILABILITY:
  Available is NEVER stored. It is always computed as

    available = totalEntitlement + carryForward - used

  so it cannot drift from its components. The floor a debit may reach is
  the policy's: 0, or -negativeBalanceLimit when the leave type allows
  negative balances.

JOURNAL:
  Every mutation appends a journal Entry (append-only). Corrections are
  made via compensating entries, never edits - the balance row is a cache
  of the journal's net effect, and the journal explains how the balance
  got to its current state.

SEE ALSO:
  - accrual: creates rows (allocation) and applies carry-forward through
    the same ledger operations
  - approval: debits on terminal approval, credits on cancellation
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// BALANCE - One row per (employee, leaveType, year)
// =============================================================================

// Key identifies one balance row.
type Key struct {
	EmployeeID leave.EmployeeID    `json:"employee_id"`
	LeaveType  leave.LeaveTypeCode `json:"leave_type"`
	Year       int                 `json:"year"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.LeaveType, k.Year)
}

// Balance is the ledger row. Available is derived, not stored.
type Balance struct {
	Key

	// TotalEntitlement is the (possibly pro-rated) base allocation for the
	// year. Carry-forward is tracked separately so the year-boundary
	// transfer shows up in both the entitlement view and availability
	// without double counting.
	TotalEntitlement leave.Amount `json:"total_entitlement"`
	Used             leave.Amount `json:"used"`
	CarryForward     leave.Amount `json:"carry_forward"`

	// Version is the optimistic-lock counter, bumped on every store write.
	Version int `json:"version"`
}

// Available recomputes the derived balance. The invariant holds on every
// read because it is never stored.
func (b Balance) Available() leave.Amount {
	return b.TotalEntitlement.Add(b.CarryForward).Sub(b.Used)
}

// Ceiling is the most that can ever be available; a credit may not push
// availability above it.
func (b Balance) Ceiling() leave.Amount {
	return b.TotalEntitlement.Add(b.CarryForward)
}

// =============================================================================
// JOURNAL - Append-only record of every mutation
// =============================================================================

type EntryKind string

const (
	EntryDebit        EntryKind = "debit"         // approved request consumption
	EntryCredit       EntryKind = "credit"        // cancellation reversal
	EntryAllocation   EntryKind = "allocation"    // annual (pro-rated) grant
	EntryCarryForward EntryKind = "carry_forward" // year-boundary transfer in
)

// Entry is one journal line. Once written it is never modified.
type Entry struct {
	ID        string       `json:"id"`
	Key       Key          `json:"key"`
	Delta     leave.Amount `json:"delta"` // negative for debits
	Kind      EntryKind    `json:"kind"`
	Reference string       `json:"reference"` // request id, sweep id, ...
	CreatedAt time.Time    `json:"created_at"`
}

// =============================================================================
// BALANCE STORE - Persistence contract
// =============================================================================

// BalanceStore persists balance rows and the journal.
type BalanceStore interface {
	// GetBalance returns the row, or nil when it doesn't exist yet.
	GetBalance(ctx context.Context, key Key) (*Balance, error)

	// CreateBalance inserts a new row. Returns leave.ErrAlreadyAllocated
	// when the key already exists - allocation never overwrites.
	CreateBalance(ctx context.Context, b Balance) error

	// UpdateBalance stores the row iff the persisted version equals
	// expectedVersion, then bumps it. Mismatch returns
	// leave.ErrConcurrentModification.
	UpdateBalance(ctx context.Context, b Balance, expectedVersion int) error

	// BalancesForYear returns every row for the year (carry-forward sweep).
	BalancesForYear(ctx context.Context, year int) ([]Balance, error)

	// AppendEntry adds a journal line. Append-only.
	AppendEntry(ctx context.Context, e Entry) error

	// Entries returns the journal for one key, oldest first.
	Entries(ctx context.Context, key Key) ([]Entry, error)
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// defaultRetries bounds the optimistic-concurrency retry loop.
const defaultRetries = 5

// BalanceLedger applies atomic debits and credits against balance rows.
type BalanceLedger struct {
	Store     BalanceStore
	Policies  leave.PolicyStore
	Directory leave.Directory

	// MaxRetries for version conflicts; zero means defaultRetries.
	MaxRetries int
}

func (l *BalanceLedger) retries() int {
	if l.MaxRetries > 0 {
		return l.MaxRetries
	}
	return defaultRetries
}

// Debit consumes days from the balance. Fails with an
// InsufficientBalanceError (wrapping leave.ErrInsufficientBalance) when the
// result would cross the policy floor; the balance is left unchanged.
func (l *BalanceLedger) Debit(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int, days leave.Amount, reference string) error {
	if !days.IsPositive() {
		return fmt.Errorf("debit amount must be positive, got %s", days)
	}
	key := Key{EmployeeID: employeeID, LeaveType: code, Year: year}

	floor, err := l.floorFor(ctx, employeeID, code, year)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < l.retries(); attempt++ {
		b, err := l.Store.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if b == nil {
			// Nothing allocated: available is zero by definition.
			return &leave.InsufficientBalanceError{
				EmployeeID: employeeID, LeaveType: code, Year: year,
				Available: leave.ZeroDays(), Requested: days,
			}
		}

		if b.Available().Sub(days).LessThan(floor) {
			return &leave.InsufficientBalanceError{
				EmployeeID: employeeID, LeaveType: code, Year: year,
				Available: b.Available(), Requested: days,
			}
		}

		expected := b.Version
		b.Used = b.Used.Add(days)
		if err := l.Store.UpdateBalance(ctx, *b, expected); err != nil {
			if errors.Is(err, leave.ErrConcurrentModification) {
				lastErr = err
				continue // fresh read, re-check the floor
			}
			return err
		}
		return l.journal(ctx, key, days.Neg(), EntryDebit, reference)
	}
	return fmt.Errorf("debit %s: retries exhausted: %w", key, lastErr)
}

// Credit reverses a prior debit. Never fails for business reasons, but a
// credit that would push used days below zero indicates a double reversal
// and returns leave.ErrOverCredit.
func (l *BalanceLedger) Credit(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int, days leave.Amount, reference string) error {
	if !days.IsPositive() {
		return fmt.Errorf("credit amount must be positive, got %s", days)
	}
	key := Key{EmployeeID: employeeID, LeaveType: code, Year: year}

	var lastErr error
	for attempt := 0; attempt < l.retries(); attempt++ {
		b, err := l.Store.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("credit %s: no balance row: %w", key, leave.ErrOverCredit)
		}

		if days.GreaterThan(b.Used) {
			return fmt.Errorf("credit %s days against %s used: %w", days, b.Used, leave.ErrOverCredit)
		}

		expected := b.Version
		b.Used = b.Used.Sub(days)
		if err := l.Store.UpdateBalance(ctx, *b, expected); err != nil {
			if errors.Is(err, leave.ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return err
		}
		return l.journal(ctx, key, days, EntryCredit, reference)
	}
	return fmt.Errorf("credit %s: retries exhausted: %w", key, lastErr)
}

// =============================================================================
// ALLOCATION-SIDE MUTATIONS (used by the accrual engine)
// =============================================================================

// CreateAllocation inserts a fresh balance row. Idempotent at the store
// level: an existing row surfaces leave.ErrAlreadyAllocated untouched.
func (l *BalanceLedger) CreateAllocation(ctx context.Context, key Key, entitlement leave.Amount, reference string) error {
	b := Balance{
		Key:              key,
		TotalEntitlement: entitlement,
		Used:             leave.ZeroDays(),
		CarryForward:     leave.ZeroDays(),
	}
	if err := l.Store.CreateBalance(ctx, b); err != nil {
		return err
	}
	return l.journal(ctx, key, entitlement, EntryAllocation, reference)
}

// TransferCarryForward adds transferred days to the target row's
// carry-forward component and journals the outflow on the source key. The
// negative source entry is the sweep's idempotence marker: CarriedOut
// finds it on a re-run. The target row must already exist.
//
// The source marker is written before the target row moves. A crash in
// between leaves a skipped transfer that the journal reference makes
// reconcilable; the reverse order would double the transfer on the next
// sweep.
func (l *BalanceLedger) TransferCarryForward(ctx context.Context, source, target Key, transferred leave.Amount, reference string) error {
	if !transferred.IsPositive() {
		return fmt.Errorf("carry-forward amount must be positive, got %s", transferred)
	}

	if err := l.journal(ctx, source, transferred.Neg(), EntryCarryForward, reference); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < l.retries(); attempt++ {
		b, err := l.Store.GetBalance(ctx, target)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("carry-forward into %s: no balance row", target)
		}

		expected := b.Version
		b.CarryForward = b.CarryForward.Add(transferred)
		if err := l.Store.UpdateBalance(ctx, *b, expected); err != nil {
			if errors.Is(err, leave.ErrConcurrentModification) {
				lastErr = err
				continue
			}
			return err
		}
		return l.journal(ctx, target, transferred, EntryCarryForward, reference)
	}
	return fmt.Errorf("carry-forward into %s: retries exhausted: %w", target, lastErr)
}

// CarriedOut reports whether the key's balance has already been swept into
// the next year (a negative carry-forward journal entry exists).
func (l *BalanceLedger) CarriedOut(ctx context.Context, key Key) (bool, error) {
	entries, err := l.Store.Entries(ctx, key)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Kind == EntryCarryForward && e.Delta.IsNegative() {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the balance row, or nil when none exists.
func (l *BalanceLedger) Get(ctx context.Context, key Key) (*Balance, error) {
	return l.Store.GetBalance(ctx, key)
}

func (l *BalanceLedger) floorFor(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int) (leave.Amount, error) {
	emp, err := l.Directory.Employee(ctx, employeeID)
	if err != nil {
		return leave.ZeroDays(), err
	}
	policy, err := l.Policies.Policy(ctx, code, emp.Region, leave.EndOfYear(year))
	if err != nil {
		return leave.ZeroDays(), err
	}
	return policy.BalanceFloor(), nil
}

func (l *BalanceLedger) journal(ctx context.Context, key Key, delta leave.Amount, kind EntryKind, reference string) error {
	return l.Store.AppendEntry(ctx, Entry{
		ID:        uuid.NewString(),
		Key:       key,
		Delta:     delta,
		Kind:      kind,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	})
}
