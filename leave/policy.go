/*
policy.go - Leave-type configuration and the PolicyStore contract

PURPOSE:
  Defines the rules that govern how a leave type behaves: entitlement,
  carry-forward limits, negative-balance policy, documentation thresholds,
  and duration granularity. A LeaveTypeConfiguration is the contract
  between the organization and employees about a leave type.

LOOKUP SEMANTICS:
  Configurations are keyed by (leave type, region) and carry a validity
  window. The engine never mutates them; it looks them up through the
  PolicyStore at request-creation and allocation time. Configuration is
  read-mostly and may be cached freely - workflow and policy snapshots are
  bound at request creation, so staleness after binding is irrelevant.

NEGATIVE BALANCES:
  Some leave types (commonly sick leave) allow going below zero up to a
  configured limit. The ledger enforces the floor:
    floor = 0                        when !AllowNegativeBalance
    floor = -NegativeBalanceLimit    when AllowNegativeBalance

SEE ALSO:
  - factory: JSON-defined fixture configurations
  - ledger: floor enforcement on debit
  - accrual: entitlement and carry-forward application
*/
package leave

import "context"

// =============================================================================
// LEAVE TYPE CONFIGURATION
// =============================================================================

// Granularity flags which request durations a leave type accepts.
type Granularity struct {
	FullDay    bool
	HalfDay    bool
	QuarterDay bool
	Hourly     bool
}

// Allows reports whether the requested total is representable under the
// configured granularity. Hourly implies any fraction is acceptable.
func (g Granularity) Allows(total Amount) bool {
	if g.Hourly {
		return true
	}
	step := 1.0
	switch {
	case g.QuarterDay:
		step = 0.25
	case g.HalfDay:
		step = 0.5
	}
	quotient := total.Value.Div(Days(step).Value)
	return quotient.Equal(quotient.Round(0))
}

// LeaveTypeConfiguration is the complete ruleset for one leave type in one
// region. Immutable per effective window.
type LeaveTypeConfiguration struct {
	Code   LeaveTypeCode
	Region string
	Name   string

	// Annual entitlement in days for a full year of service.
	DefaultEntitlement Amount

	// Carry-forward cap at year end. Zero means use-it-or-lose-it.
	MaxCarryForward Amount

	// Negative balance policy.
	AllowNegativeBalance bool
	NegativeBalanceLimit Amount

	// Requests at or above the threshold require supporting documents.
	RequiresDocumentation  bool
	DocumentationThreshold Amount

	// Request validation.
	MinAdvanceNoticeDays int
	MaxConsecutiveDays   int
	DurationGranularity  Granularity

	// Validity window. ValidTo zero value means open-ended.
	ValidFrom Date
	ValidTo   Date
}

// ValidAt reports whether the configuration is effective on the given day.
func (c LeaveTypeConfiguration) ValidAt(d Date) bool {
	if !c.ValidFrom.IsZero() && d.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidTo.IsZero() && d.After(c.ValidTo) {
		return false
	}
	return true
}

// BalanceFloor returns the lowest available balance a debit may leave.
func (c LeaveTypeConfiguration) BalanceFloor() Amount {
	if c.AllowNegativeBalance {
		return c.NegativeBalanceLimit.Neg()
	}
	return ZeroDays()
}

// CarryForwardEligible reports whether any unused balance may transfer.
func (c LeaveTypeConfiguration) CarryForwardEligible() bool {
	return c.MaxCarryForward.IsPositive()
}

// =============================================================================
// POLICY STORE - Read-only configuration provider
// =============================================================================

// PolicyStore provides leave-type configurations. Implementations are
// read-only from the engine's point of view.
type PolicyStore interface {
	// Policy returns the configuration valid for the leave type and region
	// on the given date. Returns ErrPolicyNotFound when none applies.
	Policy(ctx context.Context, code LeaveTypeCode, region string, asOf Date) (*LeaveTypeConfiguration, error)

	// Policies returns every configuration valid on the given date for the
	// region. Used by batch allocation to enumerate allocatable types.
	Policies(ctx context.Context, region string, asOf Date) ([]LeaveTypeConfiguration, error)
}
