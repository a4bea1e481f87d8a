package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "leave-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRequest(t *testing.T, id string, start, end string) *approval.LeaveRequest {
	t.Helper()
	s, err := leave.ParseDate(start)
	require.NoError(t, err)
	e, err := leave.ParseDate(end)
	require.NoError(t, err)
	r, err := leave.NewDateRange(s, e)
	require.NoError(t, err)

	return &approval.LeaveRequest{
		ID:         leave.RequestID(id),
		EmployeeID: "emp-1",
		LeaveType:  leave.LeaveAnnual,
		Range:      r,
		TotalDays:  leave.Days(2.5),
		Reason:     "family visit",
		Status:     approval.StatusPending,
		Chain: &approval.ApprovalChain{
			WorkflowID:   "wf-default",
			WorkflowName: "Manager Approval",
			CurrentLevel: 1,
			Steps: []approval.ChainStep{{
				Step: approval.ApprovalStep{
					Level: 1, ApproverRole: "manager", Mode: approval.ModeSequential,
					EscalateAfterHours: 72, EscalateToRole: "hr",
				},
				AssignedApprovers: []leave.EmployeeID{"mgr-1"},
				Records: []approval.ApprovalRecord{{
					Level: 1, ApproverID: "mgr-1", Decision: approval.DecisionPending,
				}},
				Resolution:  approval.DecisionPending,
				ActivatedAt: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC),
			}},
		},
		CreatedAt: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func TestRequestRoundTripWithChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := testRequest(t, "req-1", "2026-06-01", "2026-06-03")
	require.NoError(t, store.SaveRequest(ctx, req))
	assert.Equal(t, 1, req.Version, "insert bumps the in-memory version")

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)

	assert.Equal(t, req.EmployeeID, got.EmployeeID)
	assert.Equal(t, "2026-06-01", got.Range.Start.String())
	assert.Equal(t, "2026-06-03", got.Range.End.String())
	assert.True(t, got.TotalDays.Equal(leave.Days(2.5)))
	assert.Equal(t, "family visit", got.Reason)
	assert.Nil(t, got.DecidedAt)

	// The chain survives serialization intact.
	require.NotNil(t, got.Chain)
	assert.Equal(t, leave.WorkflowID("wf-default"), got.Chain.WorkflowID)
	require.Len(t, got.Chain.Steps, 1)
	step := got.Chain.Steps[0]
	assert.Equal(t, []leave.EmployeeID{"mgr-1"}, step.AssignedApprovers)
	assert.Equal(t, 72, step.Step.EscalateAfterHours)
	require.Len(t, step.Records, 1)
	assert.Equal(t, approval.DecisionPending, step.Records[0].Decision)
}

func TestGetRequestNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRequest(context.Background(), "req-missing")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestSaveRequestDetectsStaleVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	req := testRequest(t, "req-1", "2026-06-01", "2026-06-03")
	require.NoError(t, store.SaveRequest(ctx, req))

	// Two actors load the same version.
	a, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	b, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)

	// The first write wins.
	now := time.Now().UTC()
	a.Status = approval.StatusApproved
	a.DecidedAt = &now
	require.NoError(t, store.SaveRequest(ctx, a))

	// The second write carries the stale version and is rejected.
	b.Status = approval.StatusCancelled
	err = store.SaveRequest(ctx, b)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, got.Status)
	require.NotNil(t, got.DecidedAt)
}

func TestSaveRequestRejectsDuplicateInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, testRequest(t, "req-1", "2026-06-01", "2026-06-03")))

	err := store.SaveRequest(ctx, testRequest(t, "req-1", "2026-06-01", "2026-06-03"))
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)
}

func TestPendingRequests(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testRequest(t, "req-1", "2026-06-01", "2026-06-03")
	require.NoError(t, store.SaveRequest(ctx, first))

	second := testRequest(t, "req-2", "2026-07-06", "2026-07-08")
	second.CreatedAt = first.CreatedAt.Add(time.Hour)
	require.NoError(t, store.SaveRequest(ctx, second))

	done := testRequest(t, "req-3", "2026-08-03", "2026-08-05")
	done.Status = approval.StatusApproved
	require.NoError(t, store.SaveRequest(ctx, done))

	pending, err := store.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, leave.RequestID("req-1"), pending[0].ID)
	assert.Equal(t, leave.RequestID("req-2"), pending[1].ID)
}

func TestApprovedInWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	save := func(id, start, end string, status approval.Status) {
		req := testRequest(t, id, start, end)
		req.Status = status
		require.NoError(t, store.SaveRequest(ctx, req))
	}
	save("req-before", "2026-05-04", "2026-05-08", approval.StatusApproved)
	save("req-touching-start", "2026-05-28", "2026-06-01", approval.StatusApproved)
	save("req-inside", "2026-06-08", "2026-06-12", approval.StatusApproved)
	save("req-touching-end", "2026-06-30", "2026-07-03", approval.StatusApproved)
	save("req-after", "2026-07-06", "2026-07-10", approval.StatusApproved)
	save("req-pending", "2026-06-08", "2026-06-12", approval.StatusPending)

	window, err := leave.NewDateRange(
		leave.NewDate(2026, time.June, 1), leave.NewDate(2026, time.June, 30))
	require.NoError(t, err)

	got, err := store.ApprovedInWindow(ctx, window)
	require.NoError(t, err)

	// Boundary-touching ranges are included; pending ones are not.
	require.Len(t, got, 3)
	assert.Equal(t, leave.RequestID("req-touching-start"), got[0].ID)
	assert.Equal(t, leave.RequestID("req-inside"), got[1].ID)
	assert.Equal(t, leave.RequestID("req-touching-end"), got[2].ID)
}

func TestRequestsByEmployee(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := testRequest(t, "req-old", "2026-06-01", "2026-06-03")
	require.NoError(t, store.SaveRequest(ctx, old))

	recent := testRequest(t, "req-new", "2026-07-06", "2026-07-08")
	recent.CreatedAt = old.CreatedAt.Add(2 * time.Hour)
	require.NoError(t, store.SaveRequest(ctx, recent))

	other := testRequest(t, "req-other", "2026-06-01", "2026-06-03")
	other.EmployeeID = "emp-2"
	require.NoError(t, store.SaveRequest(ctx, other))

	got, err := store.RequestsByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, leave.RequestID("req-new"), got[0].ID, "newest first")
	assert.Equal(t, leave.RequestID("req-old"), got[1].ID)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestBalanceCreateAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	k := ledger.Key{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2026}

	require.NoError(t, store.CreateBalance(ctx, ledger.Balance{
		Key:              k,
		TotalEntitlement: leave.DaysFromInt(18),
		Used:             leave.ZeroDays(),
		CarryForward:     leave.ZeroDays(),
	}))

	b, err := store.GetBalance(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 1, b.Version)
	assert.True(t, b.Available().Equal(leave.DaysFromInt(18)))

	b.Used = leave.Days(2.5)
	require.NoError(t, store.UpdateBalance(ctx, *b, b.Version))

	got, err := store.GetBalance(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.Used.Equal(leave.Days(2.5)))
	assert.True(t, got.Available().Equal(leave.Days(15.5)))
}

func TestBalanceDuplicateCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	k := ledger.Key{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2026}

	row := ledger.Balance{Key: k, TotalEntitlement: leave.DaysFromInt(18)}
	require.NoError(t, store.CreateBalance(ctx, row))
	assert.ErrorIs(t, store.CreateBalance(ctx, row), leave.ErrAlreadyAllocated)
}

func TestBalanceOptimisticLock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	k := ledger.Key{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2026}

	require.NoError(t, store.CreateBalance(ctx, ledger.Balance{
		Key: k, TotalEntitlement: leave.DaysFromInt(18),
	}))

	a, err := store.GetBalance(ctx, k)
	require.NoError(t, err)
	b, err := store.GetBalance(ctx, k)
	require.NoError(t, err)

	a.Used = leave.DaysFromInt(1)
	require.NoError(t, store.UpdateBalance(ctx, *a, a.Version))

	// The second writer's version is stale.
	b.Used = leave.DaysFromInt(2)
	err = store.UpdateBalance(ctx, *b, b.Version)
	assert.ErrorIs(t, err, leave.ErrConcurrentModification)

	got, err := store.GetBalance(ctx, k)
	require.NoError(t, err)
	assert.True(t, got.Used.Equal(leave.DaysFromInt(1)))
}

func TestGetBalanceMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	b, err := store.GetBalance(context.Background(),
		ledger.Key{EmployeeID: "emp-x", LeaveType: leave.LeaveAnnual, Year: 2026})
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBalancesForYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, k := range []ledger.Key{
		{EmployeeID: "emp-2", LeaveType: leave.LeaveAnnual, Year: 2026},
		{EmployeeID: "emp-1", LeaveType: leave.LeaveSick, Year: 2026},
		{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2026},
		{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2025},
	} {
		require.NoError(t, store.CreateBalance(ctx, ledger.Balance{
			Key: k, TotalEntitlement: leave.DaysFromInt(10),
		}))
	}

	rows, err := store.BalancesForYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, leave.EmployeeID("emp-1"), rows[0].EmployeeID)
	assert.Equal(t, leave.LeaveAnnual, rows[0].LeaveType)
	assert.Equal(t, leave.EmployeeID("emp-2"), rows[2].EmployeeID)
}

// =============================================================================
// JOURNAL
// =============================================================================

func TestEntriesAppendOnlyAndOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	k := ledger.Key{EmployeeID: "emp-1", LeaveType: leave.LeaveAnnual, Year: 2026}

	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	appendEntry := func(id string, delta leave.Amount, kind ledger.EntryKind, at time.Time) {
		require.NoError(t, store.AppendEntry(ctx, ledger.Entry{
			ID: id, Key: k, Delta: delta, Kind: kind, Reference: "test", CreatedAt: at,
		}))
	}
	appendEntry("e-1", leave.DaysFromInt(18), ledger.EntryAllocation, base)
	appendEntry("e-2", leave.DaysFromInt(-3), ledger.EntryDebit, base.Add(time.Hour))
	appendEntry("e-3", leave.DaysFromInt(3), ledger.EntryCredit, base.Add(2*time.Hour))

	entries, err := store.Entries(ctx, k)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.EntryAllocation, entries[0].Kind)
	assert.True(t, entries[1].Delta.Equal(leave.DaysFromInt(-3)))
	assert.Equal(t, "test", entries[2].Reference)

	// A different key sees nothing.
	other, err := store.Entries(ctx, ledger.Key{EmployeeID: "emp-2", LeaveType: leave.LeaveAnnual, Year: 2026})
	require.NoError(t, err)
	assert.Empty(t, other)
}
