package approval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
)

func params(t *testing.T, emp string, code leave.LeaveTypeCode, start, end string) approval.CreateParams {
	t.Helper()
	s, err := leave.ParseDate(start)
	require.NoError(t, err)
	e, err := leave.ParseDate(end)
	require.NoError(t, err)
	return approval.CreateParams{
		EmployeeID: leave.EmployeeID(emp),
		LeaveType:  code,
		Start:      s,
		End:        e,
	}
}

// =============================================================================
// CREATION
// =============================================================================

func TestCreateRequestBindsChainAndPersists(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	req, err := r.service.CreateRequest(ctx, params(t, "dev-1", leave.LeaveAnnual, "2026-06-01", "2026-06-05"))
	require.NoError(t, err)

	assert.Equal(t, approval.StatusPending, req.Status)
	assert.True(t, req.TotalDays.Equal(leave.DaysFromInt(5)))
	require.NotNil(t, req.Chain)
	assert.Equal(t, leave.WorkflowID("wf-long-leave"), req.Chain.WorkflowID)

	stored, err := r.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, stored.ID)
	assert.Equal(t, req.Chain.WorkflowID, stored.Chain.WorkflowID)
}

func TestCreateRequestCountsWorkdaysByDefault(t *testing.T) {
	r := newRig(t)

	// Jun 1-9 2026 spans two weekends days; seven workdays remain.
	req, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-01", "2026-06-09"))
	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(leave.DaysFromInt(7)))
}

func TestCreateRequestHonorsExplicitFraction(t *testing.T) {
	r := newRig(t)

	p := params(t, "dev-1", leave.LeaveAnnual, "2026-06-01", "2026-06-01")
	p.TotalDays = leave.Days(0.5)
	req, err := r.service.CreateRequest(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(leave.Days(0.5)))

	// Annual leave stops at half days; a quarter is not representable.
	p.TotalDays = leave.Days(0.25)
	_, err = r.service.CreateRequest(context.Background(), p)
	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
}

func TestCreateRequestSetsDocumentationFlag(t *testing.T) {
	r := newRig(t)

	// Sick leave requires documents from 3 days up.
	long, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveSick, "2026-06-01", "2026-06-03"))
	require.NoError(t, err)
	assert.True(t, long.RequiresDocumentation)

	short, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveSick, "2026-06-04", "2026-06-05"))
	require.NoError(t, err)
	assert.False(t, short.RequiresDocumentation)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreateRequestRejectsReversedRange(t *testing.T) {
	r := newRig(t)

	_, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-05", "2026-06-01"))
	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
}

func TestCreateRequestRejectsWeekendOnlyRange(t *testing.T) {
	r := newRig(t)

	// Jun 6-7 2026 is a Saturday and Sunday: zero workdays.
	_, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-06", "2026-06-07"))
	assert.ErrorIs(t, err, leave.ErrInvalidDateRange)
}

func TestCreateRequestEnforcesAdvanceNotice(t *testing.T) {
	r := newRig(t)

	// The clock is pinned to May 20; annual leave needs 3 days notice.
	_, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveAnnual, "2026-05-21", "2026-05-22"))
	assert.ErrorIs(t, err, leave.ErrAdvanceNotice)

	// Sick leave has no notice requirement: same-day filing is fine.
	_, err = r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveSick, "2026-05-20", "2026-05-20"))
	assert.NoError(t, err)
}

func TestCreateRequestEnforcesMaxConsecutiveDays(t *testing.T) {
	r := newRig(t)

	// 16 calendar days against an annual cap of 15.
	_, err := r.service.CreateRequest(context.Background(),
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-01", "2026-06-16"))
	assert.ErrorIs(t, err, leave.ErrMaxConsecutive)
}

func TestCreateRequestUnknownEmployee(t *testing.T) {
	r := newRig(t)

	_, err := r.service.CreateRequest(context.Background(),
		params(t, "ghost", leave.LeaveAnnual, "2026-06-01", "2026-06-05"))
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

// =============================================================================
// OVERLAP BLOCKING
// =============================================================================

func TestCreateRequestBlockedByTeamOverlap(t *testing.T) {
	r := newRig(t)
	r.service.Overlap = &leave.OverlapDetector{
		Policy: leave.OverlapPolicy{
			Mode:             leave.ThresholdAbsolute,
			MaxAbsent:        1,
			BlockApplication: true,
		},
	}
	ctx := context.Background()

	// GIVEN an approved leave for a teammate in the same department
	teammate := &approval.LeaveRequest{
		ID:         "req-teammate",
		EmployeeID: "hr-2", // eng department in testOrg
		LeaveType:  leave.LeaveAnnual,
		Range:      mustDateRange(t, "2026-06-01", "2026-06-05"),
		TotalDays:  leave.DaysFromInt(5),
		Status:     approval.StatusApproved,
		CreatedAt:  r.now,
	}
	require.NoError(t, r.store.SaveRequest(ctx, teammate))

	// WHEN dev-1 asks for overlapping days THEN the policy blocks it
	_, err := r.service.CreateRequest(ctx,
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-03", "2026-06-04"))
	assert.ErrorIs(t, err, leave.ErrTeamOverlap)

	// A disjoint range is accepted.
	_, err = r.service.CreateRequest(ctx,
		params(t, "dev-1", leave.LeaveAnnual, "2026-06-15", "2026-06-16"))
	assert.NoError(t, err)
}

func TestFindConflictsScopesToDepartment(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	save := func(id, emp, start, end string) {
		t.Helper()
		require.NoError(t, r.store.SaveRequest(ctx, &approval.LeaveRequest{
			ID:         leave.RequestID(id),
			EmployeeID: leave.EmployeeID(emp),
			LeaveType:  leave.LeaveAnnual,
			Range:      mustDateRange(t, start, end),
			TotalDays:  leave.DaysFromInt(2),
			Status:     approval.StatusApproved,
			CreatedAt:  r.now,
		}))
	}
	save("req-a", "dev-1", "2026-06-01", "2026-06-05")
	save("req-b", "hr-2", "2026-06-04", "2026-06-08") // eng: overlaps req-a
	save("req-c", "hr-1", "2026-06-04", "2026-06-08") // people: out of scope

	window := mustDateRange(t, "2026-06-01", "2026-06-30")
	report, err := r.service.FindConflicts(ctx, "eng", window)
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, leave.EmployeeID("dev-1"), report.Conflicts[0].A.EmployeeID)
	assert.Equal(t, leave.EmployeeID("hr-2"), report.Conflicts[0].B.EmployeeID)
}

func mustDateRange(t *testing.T, start, end string) leave.DateRange {
	t.Helper()
	s, err := leave.ParseDate(start)
	require.NoError(t, err)
	e, err := leave.ParseDate(end)
	require.NoError(t, err)
	r, err := leave.NewDateRange(s, e)
	require.NoError(t, err)
	return r
}
