/*
chain.go - Runtime approval chain state

PURPOSE:
  The ApprovalChain is the per-request runtime copy of a resolved
  workflow. Step DEFINITIONS are frozen at binding time; only decision
  state (records, escalation marks, the active level pointer) mutates
  afterwards.

INVARIANTS:
  - Step definitions never change after binding.
  - Levels resolve strictly in order; CurrentLevel identifies the one
    level awaiting decisions.
  - A step escalates at most once (EscalatedAt is a latch).
*/
package approval

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// DECISIONS
// =============================================================================

// Decision is the per-record and per-step outcome.
type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// ApprovalRecord tracks one assigned approver's decision at one level.
type ApprovalRecord struct {
	Level      int              `json:"level"`
	ApproverID leave.EmployeeID `json:"approver_id"`
	Decision   Decision         `json:"decision"`
	DecidedAt  *time.Time       `json:"decided_at,omitempty"`
	Comments   string           `json:"comments,omitempty"`
}

// =============================================================================
// CHAIN STEP
// =============================================================================

// ChainStep is one level of a bound chain: the frozen step definition plus
// mutable decision state.
type ChainStep struct {
	Step              ApprovalStep       `json:"step"`
	AssignedApprovers []leave.EmployeeID `json:"assigned_approvers"`
	Records           []ApprovalRecord   `json:"records"`

	// Resolution is PENDING until the step's quorum is met or an approver
	// rejects.
	Resolution Decision `json:"resolution"`

	// ActivatedAt anchors the escalation timer: set when the level becomes
	// active, reset once on escalation.
	ActivatedAt time.Time  `json:"activated_at"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
}

// RecordFor returns the record for the given approver, or nil.
func (s *ChainStep) RecordFor(approverID leave.EmployeeID) *ApprovalRecord {
	for i := range s.Records {
		if s.Records[i].ApproverID == approverID {
			return &s.Records[i]
		}
	}
	return nil
}

// NextSequentialApprover returns the first assigned approver with a pending
// record. Only meaningful for ModeSequential.
func (s *ChainStep) NextSequentialApprover() (leave.EmployeeID, bool) {
	for _, id := range s.AssignedApprovers {
		if rec := s.RecordFor(id); rec != nil && rec.Decision == DecisionPending {
			return id, true
		}
	}
	return "", false
}

// QuorumMet reports whether the step's mode-specific approval quorum holds.
func (s *ChainStep) QuorumMet() bool {
	switch s.Step.Mode {
	case ModeAnyOf:
		for _, rec := range s.Records {
			if rec.Decision == DecisionApproved {
				return true
			}
		}
		return false
	default: // SEQUENTIAL and ALL_OF both require everyone
		for _, id := range s.AssignedApprovers {
			rec := s.RecordFor(id)
			if rec == nil || rec.Decision != DecisionApproved {
				return false
			}
		}
		return len(s.AssignedApprovers) > 0
	}
}

// Reassign replaces the step's pending assignment with the escalation
// approvers. Decided records are kept for audit; pending ones are dropped
// and fresh pending records created for the new assignees.
func (s *ChainStep) Reassign(approvers []leave.EmployeeID, at time.Time) {
	var kept []ApprovalRecord
	for _, rec := range s.Records {
		if rec.Decision != DecisionPending {
			kept = append(kept, rec)
		}
	}
	s.AssignedApprovers = approvers
	for _, id := range approvers {
		if already := func() bool {
			for _, rec := range kept {
				if rec.ApproverID == id {
					return true
				}
			}
			return false
		}(); !already {
			kept = append(kept, ApprovalRecord{
				Level:      s.Step.Level,
				ApproverID: id,
				Decision:   DecisionPending,
			})
		}
	}
	s.Records = kept
	s.EscalatedAt = &at
	s.ActivatedAt = at // restart the timer once
}

// =============================================================================
// APPROVAL CHAIN
// =============================================================================

// ApprovalChain is the per-request snapshot of a resolved workflow.
type ApprovalChain struct {
	WorkflowID   leave.WorkflowID `json:"workflow_id"`
	WorkflowName string           `json:"workflow_name"`
	Steps        []ChainStep      `json:"steps"`

	// CurrentLevel is 1-based. Levels resolve strictly in order.
	CurrentLevel int `json:"current_level"`
}

// ActiveStep returns the step awaiting decisions, or nil when the chain has
// run off the end (all levels resolved).
func (c *ApprovalChain) ActiveStep() *ChainStep {
	if c.CurrentLevel < 1 || c.CurrentLevel > len(c.Steps) {
		return nil
	}
	return &c.Steps[c.CurrentLevel-1]
}

// StepAt returns the step for a 1-based level, or nil.
func (c *ApprovalChain) StepAt(level int) *ChainStep {
	if level < 1 || level > len(c.Steps) {
		return nil
	}
	return &c.Steps[level-1]
}

// IsLastLevel reports whether the given level is the chain's final one.
func (c *ApprovalChain) IsLastLevel(level int) bool {
	return level == len(c.Steps)
}

// Advance moves the active level forward and stamps the activation time on
// the newly active step.
func (c *ApprovalChain) Advance(at time.Time) {
	c.CurrentLevel++
	if step := c.ActiveStep(); step != nil {
		step.ActivatedAt = at
	}
}
