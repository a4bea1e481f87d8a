/*
Package accrual grants annual leave entitlements and carries unused days
across the year boundary.

PURPOSE:
  On each January 1st (or on demand for new hires) the engine creates one
  balance row per active employee per applicable policy for the year. Mid-
  year joiners get a pro-rated entitlement:

    entitled = round(annual * remainingMonths / 12 * 2) / 2

  where remainingMonths counts the join month itself - a July hire with a
  15-day annual policy gets 15 * 6/12 = 7.5 days. Results round to the
  nearest half day. Employees who joined in a prior year get the full
  annual entitlement.

IDEMPOTENCE:
  Allocation is keyed on (employee, leaveType, year). Running the same
  allocation twice - a re-run after a partial batch failure, a retried
  scheduler tick - finds the existing row and reports AlreadyAllocated
  instead of granting again. An employee can never receive two grants for
  one key.

CARRY-FORWARD:
  At year end, min(available, maxCarryForward) transfers into the next
  year's row; the remainder is forfeited. A policy with a zero cap
  forfeits everything and creates no next-year row from this path.

SEE ALSO:
  - ledger: every grant and transfer lands as a journal entry there
  - api/scheduler.go: drives the annual runs
*/
package accrual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

var (
	twelve = decimal.NewFromInt(12)
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs annual allocations and year-boundary carry-forward.
type Engine struct {
	Policies  leave.PolicyStore
	Directory leave.Directory
	Ledger    *ledger.BalanceLedger
	Notifier  leave.Notifier
}

// Outcome reports what a single allocation attempt did.
type Outcome string

const (
	Allocated        Outcome = "allocated"
	AlreadyAllocated Outcome = "already_allocated"
	Skipped          Outcome = "skipped" // inactive employee, joined after year
	Failed           Outcome = "failed"
)

// AllocationResult is the per-(employee, policy) line of a batch run.
type AllocationResult struct {
	EmployeeID leave.EmployeeID
	LeaveType  leave.LeaveTypeCode
	Year       int
	Entitled   leave.Amount
	Outcome    Outcome
	Err        error
}

// =============================================================================
// SINGLE ALLOCATION
// =============================================================================

// Allocate grants one employee's entitlement for one leave type and year.
// Safe to call repeatedly: an existing row reports AlreadyAllocated.
func (e *Engine) Allocate(ctx context.Context, employeeID leave.EmployeeID, code leave.LeaveTypeCode, year int) (AllocationResult, error) {
	result := AllocationResult{EmployeeID: employeeID, LeaveType: code, Year: year}

	emp, err := e.Directory.Employee(ctx, employeeID)
	if err != nil {
		result.Outcome = Failed
		result.Err = err
		return result, err
	}
	if !emp.IsActive() {
		result.Outcome = Skipped
		return result, nil
	}
	if emp.JoinDate.Year() > year {
		result.Outcome = Skipped
		return result, nil
	}

	policy, err := e.Policies.Policy(ctx, code, emp.Region, leave.EndOfYear(year))
	if err != nil {
		result.Outcome = Failed
		result.Err = err
		return result, err
	}

	entitled := Entitlement(policy.DefaultEntitlement, emp.JoinDate, year)
	result.Entitled = entitled

	key := ledger.Key{EmployeeID: employeeID, LeaveType: code, Year: year}
	reference := fmt.Sprintf("allocation-%d", year)
	if err := e.Ledger.CreateAllocation(ctx, key, entitled, reference); err != nil {
		if errors.Is(err, leave.ErrAlreadyAllocated) {
			result.Outcome = AlreadyAllocated
			return result, nil
		}
		result.Outcome = Failed
		result.Err = err
		return result, err
	}

	result.Outcome = Allocated
	e.notify(leave.Event{
		Kind:       leave.EventAllocationCompleted,
		EmployeeID: employeeID,
		LeaveType:  code,
		Year:       year,
		At:         time.Now().UTC(),
	})
	return result, nil
}

// Entitlement computes the (pro-rated) grant for an employee who joined on
// joinDate, for the given year. Prior-year joiners get the full amount;
// same-year joiners get annual * remainingMonths / 12 rounded to the
// nearest half day, counting the join month as a remaining month.
func Entitlement(annual leave.Amount, joinDate leave.Date, year int) leave.Amount {
	if joinDate.Year() < year {
		return annual
	}
	remaining := 12 - int(joinDate.Month()) + 1
	// Multiply before dividing: annual*remaining/12 divides exactly, while
	// remaining/12 truncates and can shift a .25 tie below the boundary.
	scaled := annual.Mul(decimal.NewFromInt(int64(remaining)))
	return leave.Amount{Value: scaled.Value.Div(twelve)}.RoundToHalf()
}

// =============================================================================
// BATCH ALLOCATION
// =============================================================================

// AllocateBatch runs Allocate for every active employee against every
// policy valid for their region. One employee's failure never aborts the
// batch; failed lines carry their error in the result.
func (e *Engine) AllocateBatch(ctx context.Context, year int) ([]AllocationResult, error) {
	employees, err := e.Directory.ActiveEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing employees for %d allocation: %w", year, err)
	}

	var results []AllocationResult
	for _, emp := range employees {
		policies, err := e.Policies.Policies(ctx, emp.Region, leave.EndOfYear(year))
		if err != nil {
			results = append(results, AllocationResult{
				EmployeeID: emp.ID, Year: year, Outcome: Failed, Err: err,
			})
			continue
		}
		for _, policy := range policies {
			// Allocate reports failure in the result; the batch keeps going.
			r, _ := e.Allocate(ctx, emp.ID, policy.Code, year)
			results = append(results, r)
		}
	}
	return results, nil
}

// =============================================================================
// CARRY-FORWARD
// =============================================================================

// CarryForwardResult is the per-balance line of a year-end sweep.
type CarryForwardResult struct {
	Key         ledger.Key
	Transferred leave.Amount
	Forfeited   leave.Amount
	Err         error
}

// ApplyCarryForward sweeps every balance of fromYear, transferring
// min(available, maxCarryForward) into the fromYear+1 row and forfeiting
// the rest. The target row is created through the normal allocation path
// when it doesn't exist yet, so the sweep is safe to run before or after
// the new year's allocation.
func (e *Engine) ApplyCarryForward(ctx context.Context, fromYear int) ([]CarryForwardResult, error) {
	balances, err := e.Ledger.Store.BalancesForYear(ctx, fromYear)
	if err != nil {
		return nil, fmt.Errorf("listing %d balances for carry-forward: %w", fromYear, err)
	}

	var results []CarryForwardResult
	for _, b := range balances {
		results = append(results, e.carryOne(ctx, b, fromYear))
	}
	return results, nil
}

func (e *Engine) carryOne(ctx context.Context, b ledger.Balance, fromYear int) CarryForwardResult {
	result := CarryForwardResult{Key: b.Key}

	swept, err := e.Ledger.CarriedOut(ctx, b.Key)
	if err != nil {
		result.Err = err
		return result
	}
	if swept {
		return result // previous sweep already transferred this balance
	}

	available := b.Available()
	if !available.IsPositive() {
		return result // nothing to transfer
	}

	emp, err := e.Directory.Employee(ctx, b.EmployeeID)
	if err != nil {
		result.Err = err
		return result
	}
	policy, err := e.Policies.Policy(ctx, b.LeaveType, emp.Region, leave.EndOfYear(fromYear))
	if err != nil {
		result.Err = err
		return result
	}

	transferred := available.Min(policy.MaxCarryForward)
	result.Forfeited = available.Sub(transferred)
	if !transferred.IsPositive() {
		return result // zero cap: everything forfeited, no target row
	}

	// Ensure the target row exists; AlreadyAllocated is the normal case
	// when the new year's batch already ran.
	allocated, err := e.Allocate(ctx, b.EmployeeID, b.LeaveType, fromYear+1)
	if err != nil {
		result.Err = err
		return result
	}
	if allocated.Outcome == Skipped {
		// No longer active: the remainder is forfeited with the rest.
		result.Forfeited = available
		return result
	}

	target := ledger.Key{EmployeeID: b.EmployeeID, LeaveType: b.LeaveType, Year: fromYear + 1}
	reference := fmt.Sprintf("carry-forward-%d", fromYear)
	if err := e.Ledger.TransferCarryForward(ctx, b.Key, target, transferred, reference); err != nil {
		result.Err = err
		return result
	}
	result.Transferred = transferred
	return result
}

func (e *Engine) notify(event leave.Event) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(event)
}
