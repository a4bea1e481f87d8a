/*
Package approval implements the leave-request approval workflow: workflow
configuration and resolution, the bound approval chain, and the state
machine that drives a request from submission to a terminal decision.

PURPOSE:
  A leave request is routed through a multi-level approval chain. Which
  chain applies is decided exactly once, at request creation, by the
  Resolver; from then on the chain is a snapshot - configuration changes
  never touch in-flight requests. The StateMachine records per-approver
  decisions, applies escalation timeouts, and triggers the balance debit
  (or credit reversal) at the terminal transition.

KEY CONCEPTS:
  WorkflowConfiguration: Ordered approval steps + applicability conditions
  ExecutionMode: Quorum rule within one level (SEQUENTIAL, ANY_OF, ALL_OF)
  ApprovalChain: Immutable snapshot of steps, mutable decision state
  StateMachine: Decide / Cancel / CheckEscalations

SEE ALSO:
  - resolver.go: Workflow selection and chain binding
  - chain.go: Runtime chain state
  - machine.go: Lifecycle transitions
*/
package approval

import (
	"context"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EXECUTION MODE - Closed set of quorum rules
// =============================================================================

// ExecutionMode is the quorum rule for a multi-approver step.
type ExecutionMode string

const (
	// ModeSequential: approvers at the level decide in listed order; every
	// one of them must approve before the level resolves.
	ModeSequential ExecutionMode = "SEQUENTIAL"

	// ModeAnyOf: the first approval resolves the level; sibling records
	// stay pending and are never required.
	ModeAnyOf ExecutionMode = "ANY_OF"

	// ModeAllOf: every assigned approver must approve, in any order.
	ModeAllOf ExecutionMode = "ALL_OF"
)

// Valid reports whether the mode is one of the closed set.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeSequential, ModeAnyOf, ModeAllOf:
		return true
	}
	return false
}

// =============================================================================
// WORKFLOW CONFIGURATION
// =============================================================================

// RoleManager routes a step to the requesting employee's direct manager
// instead of a directory role lookup.
const RoleManager = "manager"

// ApprovalStep is one level of a workflow definition.
type ApprovalStep struct {
	Level        int           `json:"level"`
	ApproverRole string        `json:"approver_role"`
	Mode         ExecutionMode `json:"mode"`

	// EscalateAfterHours: reassign the step after this many hours without
	// a decision. Zero disables escalation for the step.
	EscalateAfterHours int    `json:"escalate_after_hours,omitempty"`
	EscalateToRole     string `json:"escalate_to_role,omitempty"`
}

// Conditions restrict which requests a workflow applies to. All set fields
// must hold; unset fields match anything.
type Conditions struct {
	MinDays     *leave.Amount `json:"min_days,omitempty"`
	MaxDays     *leave.Amount `json:"max_days,omitempty"`
	Departments []string      `json:"departments,omitempty"`
	Roles       []string      `json:"roles,omitempty"`
}

// Matches reports whether the request duration and employee satisfy every
// set condition.
func (c Conditions) Matches(duration leave.Amount, emp leave.Employee) bool {
	if c.MinDays != nil && duration.LessThan(*c.MinDays) {
		return false
	}
	if c.MaxDays != nil && duration.GreaterThan(*c.MaxDays) {
		return false
	}
	if len(c.Departments) > 0 && !contains(c.Departments, emp.Department) {
		return false
	}
	if len(c.Roles) > 0 && !contains(c.Roles, emp.Role) {
		return false
	}
	return true
}

// Specificity counts set condition fields. Used as a tie-breaker when two
// matching workflows share the same priority.
func (c Conditions) Specificity() int {
	n := 0
	if c.MinDays != nil || c.MaxDays != nil {
		n++
	}
	if len(c.Departments) > 0 {
		n++
	}
	if len(c.Roles) > 0 {
		n++
	}
	return n
}

// WorkflowConfiguration defines one approval workflow. Multiple
// configurations may match a request; selection happens once, at creation.
type WorkflowConfiguration struct {
	ID         leave.WorkflowID      `json:"id"`
	Name       string                `json:"name"`
	LeaveTypes []leave.LeaveTypeCode `json:"leave_types"`
	Conditions Conditions            `json:"conditions"`
	Steps      []ApprovalStep        `json:"steps"`
	IsDefault  bool                  `json:"is_default"`
	Priority   int                   `json:"priority"`

	ValidFrom leave.Date `json:"valid_from,omitempty"`
	ValidTo   leave.Date `json:"valid_to,omitempty"`
}

// AppliesTo reports whether the configuration covers the leave type.
func (w WorkflowConfiguration) AppliesTo(code leave.LeaveTypeCode) bool {
	for _, lt := range w.LeaveTypes {
		if lt == code {
			return true
		}
	}
	return false
}

// ValidAt reports whether the configuration window covers the date.
func (w WorkflowConfiguration) ValidAt(d leave.Date) bool {
	if !w.ValidFrom.IsZero() && d.Before(w.ValidFrom) {
		return false
	}
	if !w.ValidTo.IsZero() && d.After(w.ValidTo) {
		return false
	}
	return true
}

// =============================================================================
// WORKFLOW STORE - Read-only configuration provider
// =============================================================================

// WorkflowStore provides workflow configurations. Read-only.
type WorkflowStore interface {
	// Workflows returns every configuration covering the leave type that
	// is valid on the given date.
	Workflows(ctx context.Context, code leave.LeaveTypeCode, asOf leave.Date) ([]WorkflowConfiguration, error)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
