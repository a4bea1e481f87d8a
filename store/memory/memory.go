/*
Package memory provides in-memory implementations of the storage
interfaces, for tests and demos.

PURPOSE:
  Same contracts as the sqlite store - version checks included - backed by
  maps under a RWMutex. Every read hands out a deep copy so callers can't
  mutate stored state behind the version counter's back.

SEE ALSO:
  - store/sqlite: the durable implementation with identical semantics
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// Store implements approval.RequestStore and ledger.BalanceStore.
type Store struct {
	mu       sync.RWMutex
	requests map[leave.RequestID]*approval.LeaveRequest
	balances map[ledger.Key]ledger.Balance
	entries  map[ledger.Key][]ledger.Entry
}

func New() *Store {
	return &Store{
		requests: make(map[leave.RequestID]*approval.LeaveRequest),
		balances: make(map[ledger.Key]ledger.Balance),
		entries:  make(map[ledger.Key][]ledger.Entry),
	}
}

// =============================================================================
// REQUEST STORE (approval.RequestStore)
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, req *approval.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.requests[req.ID]
	if exists && stored.Version != req.Version {
		return fmt.Errorf("request %s: stored version %d, caller has %d: %w",
			req.ID, stored.Version, req.Version, leave.ErrConcurrentModification)
	}

	req.Version++
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.requests[id]
	if !exists {
		return nil, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return copyRequest(stored), nil
}

func (s *Store) PendingRequests(ctx context.Context) ([]*approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*approval.LeaveRequest
	for _, req := range s.requests {
		if !req.Status.Terminal() {
			pending = append(pending, copyRequest(req))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *Store) RequestsByEmployee(ctx context.Context, id leave.EmployeeID) ([]*approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*approval.LeaveRequest
	for _, req := range s.requests {
		if req.EmployeeID == id {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ApprovedInWindow(ctx context.Context, window leave.DateRange) ([]*approval.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*approval.LeaveRequest
	for _, req := range s.requests {
		if req.Status == approval.StatusApproved && req.Range.Intersects(window) {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Range.Start.Before(out[j].Range.Start)
	})
	return out, nil
}

// copyRequest deep-copies the chain so callers can't alias stored steps.
func copyRequest(req *approval.LeaveRequest) *approval.LeaveRequest {
	cp := *req
	if req.Chain != nil {
		chain := *req.Chain
		chain.Steps = make([]approval.ChainStep, len(req.Chain.Steps))
		for i, step := range req.Chain.Steps {
			cs := step
			cs.AssignedApprovers = append([]leave.EmployeeID(nil), step.AssignedApprovers...)
			cs.Records = append([]approval.ApprovalRecord(nil), step.Records...)
			chain.Steps[i] = cs
		}
		cp.Chain = &chain
	}
	if req.DecidedAt != nil {
		t := *req.DecidedAt
		cp.DecidedAt = &t
	}
	return &cp
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.balances[key]
	if !exists {
		return nil, nil
	}
	return &b, nil
}

func (s *Store) CreateBalance(ctx context.Context, b ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.balances[b.Key]; exists {
		return fmt.Errorf("balance %s: %w", b.Key, leave.ErrAlreadyAllocated)
	}
	b.Version = 1
	s.balances[b.Key] = b
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, b ledger.Balance, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.balances[b.Key]
	if !exists {
		return fmt.Errorf("balance %s: no row to update", b.Key)
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("balance %s: stored version %d, caller has %d: %w",
			b.Key, stored.Version, expectedVersion, leave.ErrConcurrentModification)
	}
	b.Version = expectedVersion + 1
	s.balances[b.Key] = b
	return nil
}

func (s *Store) BalancesForYear(ctx context.Context, year int) ([]ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Balance
	for key, b := range s.balances {
		if key.Year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID < out[j].EmployeeID
		}
		return out[i].LeaveType < out[j].LeaveType
	})
	return out, nil
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.Key] = append(s.entries[e.Key], e)
	return nil
}

func (s *Store) Entries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ledger.Entry(nil), s.entries[key]...), nil
}
