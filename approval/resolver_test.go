package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ORG FIXTURE
// =============================================================================

func testOrg() *factory.StaticDirectory {
	return factory.NewStaticDirectory(
		leave.Employee{
			ID: "dev-1", Name: "Asha", Role: "engineer", Department: "eng",
			ManagerID: "mgr-1", JoinDate: leave.NewDate(2024, time.March, 1),
			Status: leave.EmployeeActive,
		},
		leave.Employee{
			ID: "mgr-1", Name: "Mohan", Role: "manager", Department: "eng",
			JoinDate: leave.NewDate(2020, time.January, 15),
			Status:   leave.EmployeeActive,
		},
		leave.Employee{
			ID: "hr-1", Name: "Priya", Role: "hr", Department: "people",
			JoinDate: leave.NewDate(2021, time.June, 1),
			Status:   leave.EmployeeActive,
		},
		leave.Employee{
			ID: "hr-2", Name: "Dan", Role: "hr", Department: "eng",
			JoinDate: leave.NewDate(2022, time.February, 1),
			Status:   leave.EmployeeActive,
		},
	)
}

func newResolver(workflows ...approval.WorkflowConfiguration) *approval.Resolver {
	return &approval.Resolver{
		Workflows: factory.NewWorkflowSet(workflows...),
		Directory: testOrg(),
	}
}

func resolveFor(t *testing.T, r *approval.Resolver, code leave.LeaveTypeCode, days float64, empID leave.EmployeeID) *approval.ApprovalChain {
	t.Helper()
	emp, err := r.Directory.Employee(context.Background(), empID)
	require.NoError(t, err)
	chain, err := r.Resolve(context.Background(), code, leave.Days(days), *emp,
		leave.NewDate(2026, time.June, 1), time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return chain
}

// =============================================================================
// SELECTION
// =============================================================================

func TestResolveFallsBackToDefault(t *testing.T) {
	r := newResolver(factory.StandardWorkflows()...)

	// A 3-day annual request misses the long-leave condition (min 5).
	chain := resolveFor(t, r, leave.LeaveAnnual, 3, "dev-1")

	assert.Equal(t, leave.WorkflowID("wf-default"), chain.WorkflowID)
	require.Len(t, chain.Steps, 1)
	assert.Equal(t, 1, chain.CurrentLevel)
}

func TestResolvePrefersExplicitMatchOverDefault(t *testing.T) {
	r := newResolver(factory.StandardWorkflows()...)

	// A 7-day annual request matches the long-leave workflow.
	chain := resolveFor(t, r, leave.LeaveAnnual, 7, "dev-1")

	assert.Equal(t, leave.WorkflowID("wf-long-leave"), chain.WorkflowID)
	require.Len(t, chain.Steps, 2)
	assert.Equal(t, "hr", chain.Steps[1].Step.ApproverRole)
}

func TestResolveHighestPriorityWins(t *testing.T) {
	low := approval.WorkflowConfiguration{
		ID: "wf-low", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		Priority: 1,
		Steps:    []approval.ApprovalStep{{Level: 1, ApproverRole: "manager", Mode: approval.ModeSequential}},
	}
	high := approval.WorkflowConfiguration{
		ID: "wf-high", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		Priority: 10,
		Steps:    []approval.ApprovalStep{{Level: 1, ApproverRole: "hr", Mode: approval.ModeAnyOf}},
	}
	r := newResolver(low, high)

	chain := resolveFor(t, r, leave.LeaveAnnual, 2, "dev-1")
	assert.Equal(t, leave.WorkflowID("wf-high"), chain.WorkflowID)
}

func TestResolvePriorityTieBreaksOnSpecificity(t *testing.T) {
	five := leave.DaysFromInt(5)
	broad := approval.WorkflowConfiguration{
		ID: "wf-broad", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		Steps: []approval.ApprovalStep{{Level: 1, ApproverRole: "manager", Mode: approval.ModeSequential}},
	}
	narrow := approval.WorkflowConfiguration{
		ID: "wf-narrow", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		Conditions: approval.Conditions{MinDays: &five, Departments: []string{"eng"}},
		Steps:      []approval.ApprovalStep{{Level: 1, ApproverRole: "hr", Mode: approval.ModeAnyOf}},
	}
	r := newResolver(broad, narrow)

	chain := resolveFor(t, r, leave.LeaveAnnual, 6, "dev-1")
	assert.Equal(t, leave.WorkflowID("wf-narrow"), chain.WorkflowID)
}

func TestResolveNoApplicableWorkflow(t *testing.T) {
	r := newResolver() // nothing configured

	emp, err := r.Directory.Employee(context.Background(), "dev-1")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), leave.LeaveAnnual, leave.DaysFromInt(2), *emp,
		leave.NewDate(2026, time.June, 1), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, leave.ErrNoApplicableWorkflow)

	var nwe *leave.NoApplicableWorkflowError
	require.ErrorAs(t, err, &nwe)
	assert.Equal(t, leave.LeaveAnnual, nwe.LeaveType)
}

func TestResolveSkipsExpiredConfigurations(t *testing.T) {
	expired := approval.WorkflowConfiguration{
		ID: "wf-old", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		ValidTo: leave.NewDate(2025, time.December, 31),
		Steps:   []approval.ApprovalStep{{Level: 1, ApproverRole: "manager", Mode: approval.ModeSequential}},
	}
	r := newResolver(expired)

	emp, err := r.Directory.Employee(context.Background(), "dev-1")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), leave.LeaveAnnual, leave.DaysFromInt(2), *emp,
		leave.NewDate(2026, time.June, 1), time.Now())
	assert.ErrorIs(t, err, leave.ErrNoApplicableWorkflow)
}

// =============================================================================
// APPROVER ASSIGNMENT
// =============================================================================

func TestResolveRoutesManagerRoleToDirectManager(t *testing.T) {
	r := newResolver(factory.StandardWorkflows()...)

	chain := resolveFor(t, r, leave.LeaveAnnual, 3, "dev-1")

	require.Len(t, chain.Steps, 1)
	assert.Equal(t, []leave.EmployeeID{"mgr-1"}, chain.Steps[0].AssignedApprovers)
	require.Len(t, chain.Steps[0].Records, 1)
	assert.Equal(t, approval.DecisionPending, chain.Steps[0].Records[0].Decision)
}

func TestResolvePrefersDepartmentScopedRoleHolders(t *testing.T) {
	hrOnly := approval.WorkflowConfiguration{
		ID: "wf-hr", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		IsDefault: true,
		Steps:     []approval.ApprovalStep{{Level: 1, ApproverRole: "hr", Mode: approval.ModeAnyOf}},
	}
	r := newResolver(hrOnly)

	// dev-1 is in eng; hr-2 is the eng-scoped HR partner.
	chain := resolveFor(t, r, leave.LeaveAnnual, 2, "dev-1")
	assert.Equal(t, []leave.EmployeeID{"hr-2"}, chain.Steps[0].AssignedApprovers)
}

func TestResolveFiltersSelfApproval(t *testing.T) {
	hrOnly := approval.WorkflowConfiguration{
		ID: "wf-hr", LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
		IsDefault: true,
		Steps:     []approval.ApprovalStep{{Level: 1, ApproverRole: "hr", Mode: approval.ModeAnyOf}},
	}
	r := newResolver(hrOnly)

	// hr-2 requesting leave: the eng-scoped holder is hr-2 alone, so after
	// the self filter the step has nobody and resolution must fail.
	emp, err := r.Directory.Employee(context.Background(), "hr-2")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), leave.LeaveAnnual, leave.DaysFromInt(2), *emp,
		leave.NewDate(2026, time.June, 1), time.Now())
	assert.ErrorIs(t, err, leave.ErrNoApplicableWorkflow)
}

// =============================================================================
// CHAIN BINDING
// =============================================================================

func TestResolveBindsSnapshot(t *testing.T) {
	r := newResolver(factory.StandardWorkflows()...)
	bound := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)

	emp, err := r.Directory.Employee(context.Background(), "dev-1")
	require.NoError(t, err)
	chain, err := r.Resolve(context.Background(), leave.LeaveAnnual, leave.DaysFromInt(7), *emp,
		leave.NewDate(2026, time.June, 1), bound)
	require.NoError(t, err)

	// Level 1 is active from binding time; level 2 is dormant.
	assert.Equal(t, bound, chain.Steps[0].ActivatedAt)
	assert.True(t, chain.Steps[1].ActivatedAt.IsZero())
	assert.Equal(t, approval.DecisionPending, chain.Steps[0].Resolution)
	assert.Nil(t, chain.Steps[0].EscalatedAt)

	// Every assigned approver has exactly one pending record.
	for _, step := range chain.Steps {
		require.Len(t, step.Records, len(step.AssignedApprovers))
		for _, rec := range step.Records {
			assert.Equal(t, approval.DecisionPending, rec.Decision)
			assert.Nil(t, rec.DecidedAt)
		}
	}
}
