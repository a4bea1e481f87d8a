/*
Package leave provides the shared data model for the leave approval and
accrual engine.

PURPOSE:
  This package contains the types every other package speaks in: typed
  identifiers, decimal-backed day amounts, calendar dates and ranges,
  leave-type policy configuration, the employee directory contract, the
  domain event surface, and the centralized error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A day quantity (may be fractional: half/quarter/hourly days)
  - Date: A calendar day (the engine reasons in days, not instants)
  - DateRange: An inclusive day interval (leave spans, accrual windows)
  - Employee/LeaveType/Request IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so 0.25 + 0.25 + 0.5 is exactly 1
  2. Type Safety: Strong typing for IDs prevents mixing employee/request IDs
  3. Day granularity: All interval reasoning is inclusive day ranges

SEE ALSO:
  - policy.go: Leave-type configuration and the PolicyStore contract
  - errors.go: Error taxonomy
  - overlap.go: Interval conflict detection built on DateRange
*/
package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string
type WorkflowID string

// LeaveTypeCode identifies a leave type (e.g. "annual", "sick", "parental").
type LeaveTypeCode string

const (
	LeaveAnnual    LeaveTypeCode = "annual"
	LeaveSick      LeaveTypeCode = "sick"
	LeavePersonal  LeaveTypeCode = "personal"
	LeaveParental  LeaveTypeCode = "parental"
	LeaveUnpaid    LeaveTypeCode = "unpaid"
	LeaveBereaved  LeaveTypeCode = "bereavement"
	LeaveCompOff   LeaveTypeCode = "comp_off"
)

// =============================================================================
// AMOUNT - Day quantity (always days for this system)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func Days(value float64) Amount        { return Amount{Value: decimal.NewFromFloat(value)} }
func DaysFromInt(value int) Amount     { return Amount{Value: decimal.NewFromInt(int64(value))} }
func ZeroDays() Amount                 { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Min(b Amount) Amount          { if a.LessThan(b) { return a }; return b }
func (a Amount) Float64() float64             { f, _ := a.Value.Float64(); return f }
func (a Amount) String() string               { return a.Value.String() }

// Amounts marshal as the bare decimal, not a wrapper object.
func (a Amount) MarshalJSON() ([]byte, error) { return a.Value.MarshalJSON() }
func (a *Amount) UnmarshalJSON(data []byte) error { return a.Value.UnmarshalJSON(data) }

// RoundToHalf rounds to the nearest half day: round(x*2)/2.
// This is the canonical rounding rule for pro-rated allocations.
func (a Amount) RoundToHalf() Amount {
	two := decimal.NewFromInt(2)
	return Amount{Value: a.Value.Mul(two).Round(0).Div(two)}
}

// =============================================================================
// DATE - A calendar day
// =============================================================================

// Date is a calendar day in UTC. The engine never reasons below day
// granularity except through Amount fractions.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func Today() Date { return DateOf(time.Now().UTC()) }

func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

func (d Date) AddDays(n int) Date  { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) Year() int           { return d.Time.Year() }
func (d Date) Month() time.Month   { return d.Time.Month() }
func (d Date) Day() int            { return d.Time.Day() }
func (d Date) IsZero() bool        { return d.Time.IsZero() }
func (d Date) IsWeekend() bool {
	wd := d.Time.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
func (d Date) String() string { return d.Time.Format("2006-01-02") }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Dates marshal as YYYY-MM-DD in JSON and in storage.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

// =============================================================================
// DATE RANGE - Inclusive day interval
// =============================================================================

// DateRange is an inclusive interval of calendar days [Start, End].
type DateRange struct {
	Start Date
	End   Date
}

func NewDateRange(start, end Date) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, ErrInvalidDateRange
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains reports whether the day falls within the range.
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Intersects reports whether two inclusive ranges share at least one day:
// a.Start <= b.End && b.Start <= a.End.
func (r DateRange) Intersects(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(r.End)
}

// Intersection returns the overlapping sub-range. Only meaningful when
// Intersects is true.
func (r DateRange) Intersection(other DateRange) DateRange {
	start := r.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := r.End
	if other.End.Before(end) {
		end = other.End
	}
	return DateRange{Start: start, End: end}
}

// Days returns every day in the range in order.
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// CalendarDays returns the number of days in the inclusive range.
func (r DateRange) CalendarDays() int {
	return int(r.End.Time.Sub(r.Start.Time).Hours()/24) + 1
}

// Workdays returns the number of non-weekend days in the range.
func (r DateRange) Workdays() int {
	n := 0
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		if !d.IsWeekend() {
			n++
		}
	}
	return n
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
