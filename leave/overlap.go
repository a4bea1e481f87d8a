/*
overlap.go - Team leave conflict detection

PURPOSE:
  Pure interval reasoning over approved leaves: which team members are
  away at the same time, and on which days is the team thinner than
  policy allows. The detector shares DateRange primitives with accrual
  windows and never mutates state - its output is advisory (warn) or
  blocking (reject at creation time), per policy.

DENSITY:
  Conflict density on a day = number of approved leaves covering it.
  A day is over threshold when density exceeds either an absolute
  headcount or a percentage of team size, whichever mode the policy
  selects.
*/
package leave

import "sort"

// =============================================================================
// INTERVALS AND CONFLICTS
// =============================================================================

// LeaveInterval is one employee's approved leave span.
type LeaveInterval struct {
	EmployeeID EmployeeID
	RequestID  RequestID
	Range      DateRange
}

// Conflict is a pair of intervals that share at least one day.
type Conflict struct {
	A       LeaveInterval
	B       LeaveInterval
	Overlap DateRange
}

// ThresholdMode selects how the over-threshold rule is evaluated.
type ThresholdMode string

const (
	ThresholdAbsolute ThresholdMode = "absolute"
	ThresholdPercent  ThresholdMode = "percent"
)

// OverlapPolicy configures the detector for one team.
type OverlapPolicy struct {
	Mode ThresholdMode

	// MaxAbsent for ThresholdAbsolute: a day is over threshold when more
	// than this many team members are away.
	MaxAbsent int

	// MaxAbsentPercent for ThresholdPercent: 0-100, evaluated against
	// TeamSize.
	MaxAbsentPercent int
	TeamSize         int

	// BlockApplication: when true, callers should reject a new request
	// that produces an over-threshold day. Otherwise the result is a
	// warning only.
	BlockApplication bool
}

// DayDensity is the per-day absence count within the inspected window.
type DayDensity struct {
	Day           Date
	Count         int
	OverThreshold bool
	Absent        []EmployeeID
}

// OverlapReport is the detector output.
type OverlapReport struct {
	Conflicts []Conflict
	Days      []DayDensity
	Blocking  bool // true when the policy blocks and any day is over threshold
}

// =============================================================================
// DETECTOR
// =============================================================================

// OverlapDetector computes team-leave conflicts over a date window.
type OverlapDetector struct {
	Policy OverlapPolicy
}

// FindConflicts returns every pairwise conflict among the given intervals,
// restricted to the inspection window, plus the per-day density table.
func (od *OverlapDetector) FindConflicts(intervals []LeaveInterval, window DateRange) OverlapReport {
	report := OverlapReport{}

	// Clip intervals to the window; drop the rest.
	var clipped []LeaveInterval
	for _, iv := range intervals {
		if !iv.Range.Intersects(window) {
			continue
		}
		iv.Range = iv.Range.Intersection(window)
		clipped = append(clipped, iv)
	}

	// Pairwise conflicts between DIFFERENT employees.
	for i := 0; i < len(clipped); i++ {
		for j := i + 1; j < len(clipped); j++ {
			a, b := clipped[i], clipped[j]
			if a.EmployeeID == b.EmployeeID {
				continue
			}
			if a.Range.Intersects(b.Range) {
				report.Conflicts = append(report.Conflicts, Conflict{
					A:       a,
					B:       b,
					Overlap: a.Range.Intersection(b.Range),
				})
			}
		}
	}

	// Per-day density. Only days with at least one absence are reported.
	byDay := make(map[Date][]EmployeeID)
	for _, iv := range clipped {
		for _, day := range iv.Range.Days() {
			byDay[day] = append(byDay[day], iv.EmployeeID)
		}
	}

	for day, absent := range byDay {
		density := DayDensity{
			Day:           day,
			Count:         len(absent),
			Absent:        absent,
			OverThreshold: od.overThreshold(len(absent)),
		}
		report.Days = append(report.Days, density)
		if density.OverThreshold && od.Policy.BlockApplication {
			report.Blocking = true
		}
	}
	sort.Slice(report.Days, func(i, j int) bool {
		return report.Days[i].Day.Before(report.Days[j].Day)
	})

	return report
}

// WouldBlock reports whether adding a candidate interval to the existing
// approved intervals produces an over-threshold day, under a blocking
// policy. Used at request-creation time.
func (od *OverlapDetector) WouldBlock(existing []LeaveInterval, candidate LeaveInterval) bool {
	if !od.Policy.BlockApplication {
		return false
	}
	report := od.FindConflicts(append(existing, candidate), candidate.Range)
	return report.Blocking
}

func (od *OverlapDetector) overThreshold(count int) bool {
	switch od.Policy.Mode {
	case ThresholdPercent:
		if od.Policy.TeamSize <= 0 {
			return false
		}
		return count*100 > od.Policy.MaxAbsentPercent*od.Policy.TeamSize
	default:
		return count > od.Policy.MaxAbsent
	}
}
