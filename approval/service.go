/*
service.go - Request creation orchestration

PURPOSE:
  CreateRequest is the single entry point that turns raw request
  parameters into a bound LeaveRequest: policy validation (notice,
  duration, granularity), overlap blocking, workflow resolution, chain
  binding, persistence. Creation fails fast with a specific reason -
  nothing is fabricated when configuration is missing.
*/
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SERVICE
// =============================================================================

// CreateParams are the request-creation inputs.
type CreateParams struct {
	EmployeeID leave.EmployeeID
	LeaveType  leave.LeaveTypeCode
	Start      leave.Date
	End        leave.Date

	// TotalDays overrides the workday count for fractional requests
	// (half/quarter days). Zero means "count workdays in the range".
	TotalDays leave.Amount

	Reason string
}

// Service orchestrates request creation and exposes the engine's
// request-facing operations to the transport layer.
type Service struct {
	Policies  leave.PolicyStore
	Directory leave.Directory
	Resolver  *Resolver
	Machine   *StateMachine
	Requests  RequestStore

	// Overlap, when set, is consulted at creation time. A blocking policy
	// rejects requests that would thin the team below threshold.
	Overlap *leave.OverlapDetector

	// Now is the clock; nil means time.Now. Tests pin it.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateRequest validates the parameters, binds the approval chain, and
// persists the new request in PENDING state.
func (s *Service) CreateRequest(ctx context.Context, p CreateParams) (*LeaveRequest, error) {
	dateRange, err := leave.NewDateRange(p.Start, p.End)
	if err != nil {
		return nil, err
	}

	emp, err := s.Directory.Employee(ctx, p.EmployeeID)
	if err != nil {
		return nil, err
	}

	policy, err := s.Policies.Policy(ctx, p.LeaveType, emp.Region, p.Start)
	if err != nil {
		return nil, err
	}

	now := s.now()

	total := p.TotalDays
	if total.IsZero() {
		total = leave.DaysFromInt(dateRange.Workdays())
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("request covers no workdays: %w", leave.ErrInvalidDateRange)
	}

	if err := s.validatePolicy(policy, dateRange, total, now); err != nil {
		return nil, err
	}

	if err := s.checkOverlap(ctx, *emp, dateRange); err != nil {
		return nil, err
	}

	chain, err := s.Resolver.Resolve(ctx, p.LeaveType, total, *emp, p.Start, now)
	if err != nil {
		return nil, err
	}

	req := &LeaveRequest{
		ID:         leave.RequestID("req-" + uuid.NewString()),
		EmployeeID: p.EmployeeID,
		LeaveType:  p.LeaveType,
		Range:      dateRange,
		TotalDays:  total,
		Reason:     p.Reason,
		RequiresDocumentation: policy.RequiresDocumentation &&
			!total.LessThan(policy.DocumentationThreshold),
		Status:    StatusPending,
		Chain:     chain,
		CreatedAt: now,
	}

	if err := s.Requests.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}
	return req, nil
}

func (s *Service) validatePolicy(policy *leave.LeaveTypeConfiguration, r leave.DateRange, total leave.Amount, now time.Time) error {
	if policy.MinAdvanceNoticeDays > 0 {
		earliest := leave.DateOf(now).AddDays(policy.MinAdvanceNoticeDays)
		if r.Start.Before(earliest) {
			return fmt.Errorf("%s requires %d days notice: %w",
				policy.Code, policy.MinAdvanceNoticeDays, leave.ErrAdvanceNotice)
		}
	}
	if policy.MaxConsecutiveDays > 0 && r.CalendarDays() > policy.MaxConsecutiveDays {
		return fmt.Errorf("%s allows at most %d consecutive days, requested %d: %w",
			policy.Code, policy.MaxConsecutiveDays, r.CalendarDays(), leave.ErrMaxConsecutive)
	}
	if !policy.DurationGranularity.Allows(total) {
		return fmt.Errorf("%s does not allow a duration of %s days: %w",
			policy.Code, total, leave.ErrInvalidDateRange)
	}
	return nil
}

// checkOverlap rejects the request when a blocking overlap policy would be
// violated by this leave. Advisory policies never reject here; their
// reports surface through FindConflicts.
func (s *Service) checkOverlap(ctx context.Context, emp leave.Employee, r leave.DateRange) error {
	if s.Overlap == nil || !s.Overlap.Policy.BlockApplication {
		return nil
	}

	team, err := s.Directory.InRole(ctx, "", emp.Department)
	if err != nil {
		return err
	}
	teamIDs := make(map[leave.EmployeeID]bool, len(team))
	for _, member := range team {
		teamIDs[member.ID] = true
	}

	approved, err := s.Requests.ApprovedInWindow(ctx, r)
	if err != nil {
		return err
	}
	var intervals []leave.LeaveInterval
	for _, a := range approved {
		if teamIDs[a.EmployeeID] && a.EmployeeID != emp.ID {
			intervals = append(intervals, a.Interval())
		}
	}

	candidate := leave.LeaveInterval{EmployeeID: emp.ID, Range: r}
	if s.Overlap.WouldBlock(intervals, candidate) {
		return fmt.Errorf("too many team members away in %s: %w", r, leave.ErrTeamOverlap)
	}
	return nil
}

// FindConflicts reports team-leave conflicts for a department over a date
// window. Purely advisory; nothing is mutated.
func (s *Service) FindConflicts(ctx context.Context, department string, window leave.DateRange) (leave.OverlapReport, error) {
	detector := s.Overlap
	if detector == nil {
		detector = &leave.OverlapDetector{}
	}

	team, err := s.Directory.InRole(ctx, "", department)
	if err != nil {
		return leave.OverlapReport{}, err
	}
	teamIDs := make(map[leave.EmployeeID]bool, len(team))
	for _, member := range team {
		teamIDs[member.ID] = true
	}

	approved, err := s.Requests.ApprovedInWindow(ctx, window)
	if err != nil {
		return leave.OverlapReport{}, err
	}
	var intervals []leave.LeaveInterval
	for _, a := range approved {
		if teamIDs[a.EmployeeID] {
			intervals = append(intervals, a.Interval())
		}
	}

	return detector.FindConflicts(intervals, window), nil
}
