/*
workflow.go - Workflow JSON schema, in-memory WorkflowStore, presets

JSON SCHEMA:
  {
    "id": "wf-long-leave",
    "name": "Long Leave",
    "leave_types": ["annual"],
    "conditions": {"min_days": 5},
    "steps": [
      {"level": 1, "approver_role": "manager", "mode": "SEQUENTIAL",
       "escalate_after_hours": 48, "escalate_to_role": "hr"},
      {"level": 2, "approver_role": "hr", "mode": "ANY_OF"}
    ],
    "priority": 10
  }
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// WorkflowJSON is the JSON representation of a workflow configuration.
type WorkflowJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	LeaveTypes []string        `json:"leave_types"`
	Conditions *ConditionsJSON `json:"conditions,omitempty"`
	Steps      []StepJSON      `json:"steps"`
	IsDefault  bool            `json:"is_default,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	ValidFrom  string          `json:"valid_from,omitempty"`
	ValidTo    string          `json:"valid_to,omitempty"`
}

// ConditionsJSON restricts workflow applicability.
type ConditionsJSON struct {
	MinDays     *float64 `json:"min_days,omitempty"`
	MaxDays     *float64 `json:"max_days,omitempty"`
	Departments []string `json:"departments,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// StepJSON is one approval level.
type StepJSON struct {
	Level              int    `json:"level"`
	ApproverRole       string `json:"approver_role"`
	Mode               string `json:"mode,omitempty"`
	EscalateAfterHours int    `json:"escalate_after_hours,omitempty"`
	EscalateToRole     string `json:"escalate_to_role,omitempty"`
}

// ParseWorkflows parses a JSON array of workflow configurations.
func ParseWorkflows(jsonStr string) ([]approval.WorkflowConfiguration, error) {
	var wjs []WorkflowJSON
	if err := json.Unmarshal([]byte(jsonStr), &wjs); err != nil {
		return nil, fmt.Errorf("failed to parse workflow JSON: %w", err)
	}

	var configs []approval.WorkflowConfiguration
	for _, wj := range wjs {
		config, err := WorkflowFromJSON(wj)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, nil
}

// WorkflowFromJSON converts WorkflowJSON to a WorkflowConfiguration.
func WorkflowFromJSON(wj WorkflowJSON) (approval.WorkflowConfiguration, error) {
	if wj.ID == "" {
		return approval.WorkflowConfiguration{}, fmt.Errorf("workflow requires an id")
	}
	if len(wj.Steps) == 0 {
		return approval.WorkflowConfiguration{}, fmt.Errorf("workflow %s: at least one step required", wj.ID)
	}

	config := approval.WorkflowConfiguration{
		ID:        leave.WorkflowID(wj.ID),
		Name:      wj.Name,
		IsDefault: wj.IsDefault,
		Priority:  wj.Priority,
	}
	for _, lt := range wj.LeaveTypes {
		config.LeaveTypes = append(config.LeaveTypes, leave.LeaveTypeCode(lt))
	}

	if wj.Conditions != nil {
		if wj.Conditions.MinDays != nil {
			d := leave.Days(*wj.Conditions.MinDays)
			config.Conditions.MinDays = &d
		}
		if wj.Conditions.MaxDays != nil {
			d := leave.Days(*wj.Conditions.MaxDays)
			config.Conditions.MaxDays = &d
		}
		config.Conditions.Departments = wj.Conditions.Departments
		config.Conditions.Roles = wj.Conditions.Roles
	}

	for _, sj := range wj.Steps {
		step := approval.ApprovalStep{
			Level:              sj.Level,
			ApproverRole:       sj.ApproverRole,
			Mode:               approval.ExecutionMode(sj.Mode),
			EscalateAfterHours: sj.EscalateAfterHours,
			EscalateToRole:     sj.EscalateToRole,
		}
		if step.Mode == "" {
			step.Mode = approval.ModeSequential
		}
		if !step.Mode.Valid() {
			return config, fmt.Errorf("workflow %s level %d: unknown mode %q", wj.ID, sj.Level, sj.Mode)
		}
		if step.ApproverRole == "" {
			return config, fmt.Errorf("workflow %s level %d: approver role required", wj.ID, sj.Level)
		}
		config.Steps = append(config.Steps, step)
	}

	var err error
	if config.ValidFrom, err = parseOptionalDate(wj.ValidFrom); err != nil {
		return config, fmt.Errorf("workflow %s: %w", wj.ID, err)
	}
	if config.ValidTo, err = parseOptionalDate(wj.ValidTo); err != nil {
		return config, fmt.Errorf("workflow %s: %w", wj.ID, err)
	}
	return config, nil
}

// =============================================================================
// WORKFLOW SET - In-memory WorkflowStore
// =============================================================================

// WorkflowSet is an in-memory approval.WorkflowStore.
type WorkflowSet struct {
	configs []approval.WorkflowConfiguration
}

func NewWorkflowSet(configs ...approval.WorkflowConfiguration) *WorkflowSet {
	return &WorkflowSet{configs: configs}
}

// Workflows returns every configuration covering the leave type that is
// valid on asOf. Selection among candidates is the resolver's job.
func (s *WorkflowSet) Workflows(ctx context.Context, code leave.LeaveTypeCode, asOf leave.Date) ([]approval.WorkflowConfiguration, error) {
	var out []approval.WorkflowConfiguration
	for _, w := range s.configs {
		if w.AppliesTo(code) && w.ValidAt(asOf) {
			out = append(out, w)
		}
	}
	return out, nil
}

// =============================================================================
// PRESET WORKFLOWS
// =============================================================================

// StandardWorkflows returns a common two-workflow setup: manager approval
// by default, manager + HR for long annual leave.
func StandardWorkflows() []approval.WorkflowConfiguration {
	five := leave.DaysFromInt(5)
	return []approval.WorkflowConfiguration{
		{
			ID:         "wf-default",
			Name:       "Manager Approval",
			LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual, leave.LeaveSick, leave.LeavePersonal},
			Steps: []approval.ApprovalStep{
				{Level: 1, ApproverRole: approval.RoleManager, Mode: approval.ModeSequential,
					EscalateAfterHours: 72, EscalateToRole: "hr"},
			},
			IsDefault: true,
		},
		{
			ID:         "wf-long-leave",
			Name:       "Long Leave",
			LeaveTypes: []leave.LeaveTypeCode{leave.LeaveAnnual},
			Conditions: approval.Conditions{MinDays: &five},
			Steps: []approval.ApprovalStep{
				{Level: 1, ApproverRole: approval.RoleManager, Mode: approval.ModeSequential,
					EscalateAfterHours: 48, EscalateToRole: "hr"},
				{Level: 2, ApproverRole: "hr", Mode: approval.ModeAnyOf},
			},
			Priority: 10,
		},
	}
}
