/*
resolver.go - Workflow selection and chain binding

PURPOSE:
  Given a leave request, pick the single best-matching workflow
  configuration and instantiate its ApprovalChain. The binding is a deep
  copy (snapshot): later configuration changes never affect in-flight
  requests.

SELECTION ALGORITHM:
  1. Filter configurations: leave type covered, validity window holds,
     conditions (duration range, department, role) satisfied.
  2. Among explicit (non-default) matches: highest Priority wins; ties
     break by most specific conditions.
  3. No explicit match: fall back to the IsDefault configuration for the
     leave type.
  4. Nothing left: ErrNoApplicableWorkflow - the caller must reject the
     request at creation time rather than fabricate a chain.

APPROVER ASSIGNMENT:
  Assigned approvers are resolved from each step's role at binding time:
  the "manager" role maps to the employee's direct manager; other roles go
  through the directory, department-scoped first, then org-wide. A step
  that resolves to zero approvers makes the workflow unusable for this
  request and fails resolution.
*/
package approval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver selects a workflow and binds an ApprovalChain for one request.
type Resolver struct {
	Workflows WorkflowStore
	Directory leave.Directory
}

// Resolve picks the best-matching workflow for the request parameters and
// returns a freshly bound chain with all records pending and level 1 active.
func (r *Resolver) Resolve(
	ctx context.Context,
	code leave.LeaveTypeCode,
	duration leave.Amount,
	emp leave.Employee,
	asOf leave.Date,
	now time.Time,
) (*ApprovalChain, error) {
	configs, err := r.Workflows.Workflows(ctx, code, asOf)
	if err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}

	selected, err := selectWorkflow(configs, code, duration, emp, asOf)
	if err != nil {
		return nil, err
	}

	return r.bind(ctx, selected, emp, now)
}

// selectWorkflow applies the priority/specificity/default selection rules.
func selectWorkflow(
	configs []WorkflowConfiguration,
	code leave.LeaveTypeCode,
	duration leave.Amount,
	emp leave.Employee,
	asOf leave.Date,
) (*WorkflowConfiguration, error) {
	var matches []WorkflowConfiguration
	var fallback *WorkflowConfiguration

	for i := range configs {
		wf := configs[i]
		if !wf.AppliesTo(code) || !wf.ValidAt(asOf) {
			continue
		}
		if wf.IsDefault && fallback == nil {
			fallback = &configs[i]
		}
		if !wf.Conditions.Matches(duration, emp) {
			continue
		}
		if !wf.IsDefault {
			matches = append(matches, wf)
		}
	}

	if len(matches) > 0 {
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Priority != matches[j].Priority {
				return matches[i].Priority > matches[j].Priority
			}
			return matches[i].Conditions.Specificity() > matches[j].Conditions.Specificity()
		})
		return &matches[0], nil
	}

	// A default whose conditions happen to match still counts as a match;
	// it just never outranks an explicit configuration.
	if fallback != nil {
		return fallback, nil
	}

	return nil, &leave.NoApplicableWorkflowError{LeaveType: code, Evaluated: len(configs)}
}

// bind deep-copies the workflow steps into a chain and resolves approvers.
func (r *Resolver) bind(ctx context.Context, wf *WorkflowConfiguration, emp leave.Employee, now time.Time) (*ApprovalChain, error) {
	chain := &ApprovalChain{
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		CurrentLevel: 1,
	}

	steps := append([]ApprovalStep(nil), wf.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Level < steps[j].Level })

	for _, def := range steps {
		if !def.Mode.Valid() {
			return nil, fmt.Errorf("workflow %s level %d: unknown execution mode %q", wf.ID, def.Level, def.Mode)
		}
		approvers, err := r.ApproversForRole(ctx, def.ApproverRole, emp)
		if err != nil {
			return nil, err
		}
		if len(approvers) == 0 {
			return nil, fmt.Errorf("workflow %s level %d: role %q has no approvers: %w",
				wf.ID, def.Level, def.ApproverRole, leave.ErrNoApplicableWorkflow)
		}

		step := ChainStep{
			Step:              def,
			AssignedApprovers: approvers,
			Resolution:        DecisionPending,
		}
		for _, id := range approvers {
			step.Records = append(step.Records, ApprovalRecord{
				Level:      def.Level,
				ApproverID: id,
				Decision:   DecisionPending,
			})
		}
		chain.Steps = append(chain.Steps, step)
	}

	if len(chain.Steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps: %w", wf.ID, leave.ErrNoApplicableWorkflow)
	}

	chain.Steps[0].ActivatedAt = now
	return chain, nil
}

// ApproversForRole resolves the employees assigned for a step role. Also
// used by the state machine for escalation reassignment.
func (r *Resolver) ApproversForRole(ctx context.Context, role string, emp leave.Employee) ([]leave.EmployeeID, error) {
	if role == RoleManager && emp.ManagerID != "" {
		return []leave.EmployeeID{emp.ManagerID}, nil
	}

	// Department-scoped holders first, then org-wide.
	holders, err := r.Directory.InRole(ctx, role, emp.Department)
	if err != nil {
		return nil, fmt.Errorf("resolve role %q: %w", role, err)
	}
	if len(holders) == 0 {
		holders, err = r.Directory.InRole(ctx, role, "")
		if err != nil {
			return nil, fmt.Errorf("resolve role %q: %w", role, err)
		}
	}

	ids := make([]leave.EmployeeID, 0, len(holders))
	for _, h := range holders {
		if h.ID == emp.ID {
			continue // nobody approves their own leave
		}
		ids = append(ids, h.ID)
	}
	return ids, nil
}
