/*
directory.go - Static employee directory

PURPOSE:
  A map-backed leave.Directory for tests, demos, and deployments where
  the org chart is loaded from a JSON file at startup. Production systems
  would adapt their HRIS behind the same interface.
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/warp/leave-engine/leave"
)

// EmployeeJSON is the JSON representation of a directory entry.
type EmployeeJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Department string `json:"department"`
	Region     string `json:"region"`
	JoinDate   string `json:"join_date"`
	ManagerID  string `json:"manager_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// ParseEmployees parses a JSON array of directory entries.
func ParseEmployees(jsonStr string) ([]leave.Employee, error) {
	var ejs []EmployeeJSON
	if err := json.Unmarshal([]byte(jsonStr), &ejs); err != nil {
		return nil, fmt.Errorf("failed to parse employee JSON: %w", err)
	}

	var employees []leave.Employee
	for _, ej := range ejs {
		emp, err := EmployeeFromJSON(ej)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, nil
}

// EmployeeFromJSON converts EmployeeJSON to an Employee.
func EmployeeFromJSON(ej EmployeeJSON) (leave.Employee, error) {
	if ej.ID == "" {
		return leave.Employee{}, fmt.Errorf("employee requires an id")
	}
	joinDate, err := leave.ParseDate(ej.JoinDate)
	if err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s: %w", ej.ID, err)
	}

	status := leave.EmployeeStatus(ej.Status)
	if status == "" {
		status = leave.EmployeeActive
	}

	return leave.Employee{
		ID:         leave.EmployeeID(ej.ID),
		Name:       ej.Name,
		Role:       ej.Role,
		Department: ej.Department,
		Region:     ej.Region,
		JoinDate:   joinDate,
		ManagerID:  leave.EmployeeID(ej.ManagerID),
		Status:     status,
	}, nil
}

// =============================================================================
// STATIC DIRECTORY
// =============================================================================

// StaticDirectory is a map-backed leave.Directory.
type StaticDirectory struct {
	byID map[leave.EmployeeID]leave.Employee
}

func NewStaticDirectory(employees ...leave.Employee) *StaticDirectory {
	byID := make(map[leave.EmployeeID]leave.Employee, len(employees))
	for _, emp := range employees {
		byID[emp.ID] = emp
	}
	return &StaticDirectory{byID: byID}
}

func (d *StaticDirectory) Employee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	emp, exists := d.byID[id]
	if !exists {
		return nil, fmt.Errorf("employee %s: %w", id, leave.ErrEmployeeNotFound)
	}
	return &emp, nil
}

func (d *StaticDirectory) ActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	var out []leave.Employee
	for _, emp := range d.byID {
		if emp.IsActive() {
			out = append(out, emp)
		}
	}
	sortEmployees(out)
	return out, nil
}

// InRole returns active employees holding the role. An empty role matches
// any role; an empty department matches any department.
func (d *StaticDirectory) InRole(ctx context.Context, role, department string) ([]leave.Employee, error) {
	var out []leave.Employee
	for _, emp := range d.byID {
		if !emp.IsActive() {
			continue
		}
		if role != "" && emp.Role != role {
			continue
		}
		if department != "" && emp.Department != department {
			continue
		}
		out = append(out, emp)
	}
	sortEmployees(out)
	return out, nil
}

// sortEmployees keeps directory listings deterministic.
func sortEmployees(employees []leave.Employee) {
	sort.Slice(employees, func(i, j int) bool {
		return employees[i].ID < employees[j].ID
	})
}
