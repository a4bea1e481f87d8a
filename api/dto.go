/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

CONVENTIONS:
  - Dates are YYYY-MM-DD strings
  - Timestamps are RFC3339
  - Day amounts are JSON numbers (may be fractional: 0.5, 2.25)

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// CreateRequestBody submits a new leave request.
type CreateRequestBody struct {
	EmployeeID string  `json:"employee_id"`
	LeaveType  string  `json:"leave_type"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
	TotalDays  float64 `json:"total_days,omitempty"` // 0 = count workdays
	Reason     string  `json:"reason,omitempty"`
}

// DecisionBody records an approver's decision.
type DecisionBody struct {
	ApproverID string `json:"approver_id"`
	Level      int    `json:"level"`
	Decision   string `json:"decision"` // APPROVED or REJECTED
	Comments   string `json:"comments,omitempty"`
}

// CancelBody identifies who is cancelling.
type CancelBody struct {
	ActorID string `json:"actor_id"`
}

// AllocateBody triggers an allocation or carry-forward run.
type AllocateBody struct {
	Year int `json:"year"`
}

// =============================================================================
// RESPONSE DTOS
// =============================================================================

// ErrorResponse is the uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID                    string    `json:"id"`
	EmployeeID            string    `json:"employee_id"`
	LeaveType             string    `json:"leave_type"`
	StartDate             string    `json:"start_date"`
	EndDate               string    `json:"end_date"`
	TotalDays             float64   `json:"total_days"`
	Reason                string    `json:"reason,omitempty"`
	RequiresDocumentation bool      `json:"requires_documentation"`
	Status                string    `json:"status"`
	Chain                 *ChainDTO `json:"chain,omitempty"`
	CreatedAt             string    `json:"created_at"`
	DecidedAt             string    `json:"decided_at,omitempty"`
}

// ChainDTO represents the bound approval chain.
type ChainDTO struct {
	WorkflowID   string    `json:"workflow_id"`
	WorkflowName string    `json:"workflow_name"`
	CurrentLevel int       `json:"current_level"`
	Steps        []StepDTO `json:"steps"`
}

// StepDTO is one chain level with its decision state.
type StepDTO struct {
	Level      int         `json:"level"`
	Role       string      `json:"role"`
	Mode       string      `json:"mode"`
	Resolution string      `json:"resolution"`
	Escalated  bool        `json:"escalated"`
	Records    []RecordDTO `json:"records"`
}

// RecordDTO is one approver's record within a step.
type RecordDTO struct {
	ApproverID string `json:"approver_id"`
	Decision   string `json:"decision"`
	DecidedAt  string `json:"decided_at,omitempty"`
	Comments   string `json:"comments,omitempty"`
}

// BalanceDTO represents one balance row.
type BalanceDTO struct {
	LeaveType        string  `json:"leave_type"`
	Year             int     `json:"year"`
	TotalEntitlement float64 `json:"total_entitlement"`
	Used             float64 `json:"used"`
	CarryForward     float64 `json:"carry_forward"`
	Available        float64 `json:"available"`
}

// EntryDTO is one ledger journal line.
type EntryDTO struct {
	ID        string  `json:"id"`
	Delta     float64 `json:"delta"`
	Kind      string  `json:"kind"`
	Reference string  `json:"reference,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// ConflictDTO describes one overlapping leave pair.
type ConflictDTO struct {
	EmployeeA    string `json:"employee_a"`
	EmployeeB    string `json:"employee_b"`
	OverlapStart string `json:"overlap_start"`
	OverlapEnd   string `json:"overlap_end"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestDTO(req *approval.LeaveRequest) RequestDTO {
	dto := RequestDTO{
		ID:                    string(req.ID),
		EmployeeID:            string(req.EmployeeID),
		LeaveType:             string(req.LeaveType),
		StartDate:             req.Range.Start.String(),
		EndDate:               req.Range.End.String(),
		TotalDays:             req.TotalDays.Float64(),
		Reason:                req.Reason,
		RequiresDocumentation: req.RequiresDocumentation,
		Status:                string(req.Status),
		CreatedAt:             req.CreatedAt.Format(time.RFC3339),
	}
	if req.DecidedAt != nil {
		dto.DecidedAt = req.DecidedAt.Format(time.RFC3339)
	}
	if req.Chain != nil {
		dto.Chain = toChainDTO(req.Chain)
	}
	return dto
}

func toChainDTO(chain *approval.ApprovalChain) *ChainDTO {
	dto := &ChainDTO{
		WorkflowID:   string(chain.WorkflowID),
		WorkflowName: chain.WorkflowName,
		CurrentLevel: chain.CurrentLevel,
	}
	for _, step := range chain.Steps {
		sd := StepDTO{
			Level:      step.Step.Level,
			Role:       step.Step.ApproverRole,
			Mode:       string(step.Step.Mode),
			Resolution: string(step.Resolution),
			Escalated:  step.EscalatedAt != nil,
		}
		for _, rec := range step.Records {
			rd := RecordDTO{
				ApproverID: string(rec.ApproverID),
				Decision:   string(rec.Decision),
				Comments:   rec.Comments,
			}
			if rec.DecidedAt != nil {
				rd.DecidedAt = rec.DecidedAt.Format(time.RFC3339)
			}
			sd.Records = append(sd.Records, rd)
		}
		dto.Steps = append(dto.Steps, sd)
	}
	return dto
}

func toBalanceDTO(b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		LeaveType:        string(b.LeaveType),
		Year:             b.Year,
		TotalEntitlement: b.TotalEntitlement.Float64(),
		Used:             b.Used.Float64(),
		CarryForward:     b.CarryForward.Float64(),
		Available:        b.Available().Float64(),
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:        e.ID,
		Delta:     e.Delta.Float64(),
		Kind:      string(e.Kind),
		Reference: e.Reference,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toConflictDTO(c leave.Conflict) ConflictDTO {
	return ConflictDTO{
		EmployeeA:    string(c.A.EmployeeID),
		EmployeeB:    string(c.B.EmployeeID),
		OverlapStart: c.Overlap.Start.String(),
		OverlapEnd:   c.Overlap.End.String(),
	}
}
