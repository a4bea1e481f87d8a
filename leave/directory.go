package leave

import "context"

// =============================================================================
// EMPLOYEE DIRECTORY - External collaborator
// =============================================================================

// EmployeeStatus marks whether an employee participates in allocation.
type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeTerminated EmployeeStatus = "terminated"
	EmployeeOnLeave    EmployeeStatus = "on_leave"
)

// Employee is the directory record the engine needs: role and department
// for workflow conditions, join date and region for accrual eligibility,
// manager for approval routing.
type Employee struct {
	ID         EmployeeID
	Name       string
	Role       string
	Department string
	Region     string
	JoinDate   Date
	ManagerID  EmployeeID
	Status     EmployeeStatus
}

// IsActive reports whether the employee is eligible for allocation.
func (e Employee) IsActive() bool { return e.Status == EmployeeActive }

// Directory resolves employee records and role membership. It is an
// external collaborator; the engine only reads from it.
type Directory interface {
	// Employee returns the record for the given id, or ErrEmployeeNotFound.
	Employee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ActiveEmployees returns every active employee. Used by batch
	// allocation and the carry-forward sweep.
	ActiveEmployees(ctx context.Context) ([]Employee, error)

	// InRole returns active employees holding the role, optionally
	// restricted to a department (empty string means any). Used to assign
	// approvers to workflow steps.
	InRole(ctx context.Context, role, department string) ([]Employee, error)
}
