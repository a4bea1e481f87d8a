/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the persistence interfaces (approval.RequestStore,
  ledger.BalanceStore) using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  leave_requests:  Requests with their approval chain stored as JSON and
                   an optimistic-lock version column
  leave_balances:  One row per (employee, leave_type, year) with a
                   version column for compare-and-swap updates
  ledger_entries:  Append-only journal of every balance mutation

OPTIMISTIC LOCKING:
  Updates are guarded with "WHERE version = ?". Zero rows affected means
  a concurrent writer got there first and the caller sees
  leave.ErrConcurrentModification; the ledger retries with a fresh read.

APPEND-ONLY ENFORCEMENT:
  ledger_entries has no UPDATE or DELETE path. Corrections are made via
  compensating entries only.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - approval/request.go: RequestStore contract
  - ledger/ledger.go: BalanceStore contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// Store implements approval.RequestStore and ledger.BalanceStore.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Requests with their bound approval chain
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		reason TEXT,
		requires_documentation BOOLEAN DEFAULT FALSE,
		status TEXT NOT NULL,
		chain_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		decided_at TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);

	-- Window queries for conflict detection (hot path)
	CREATE INDEX IF NOT EXISTS idx_requests_window
		ON leave_requests(status, start_date, end_date);

	-- One balance row per (employee, leave_type, year)
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		total_entitlement TEXT NOT NULL,
		used TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (employee_id, leave_type, year)
	);

	CREATE INDEX IF NOT EXISTS idx_balances_year
		ON leave_balances(year);

	-- Append-only journal of balance mutations
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		delta TEXT NOT NULL,
		kind TEXT NOT NULL,
		reference TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_key
		ON ledger_entries(employee_id, leave_type, year, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON ledger_entries(reference) WHERE reference IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (approval.RequestStore interface)
// =============================================================================

// SaveRequest inserts (version 0) or updates the request with a version
// check, bumping req.Version on success.
func (s *Store) SaveRequest(ctx context.Context, req *approval.LeaveRequest) error {
	chainJSON, err := json.Marshal(req.Chain)
	if err != nil {
		return fmt.Errorf("encoding chain for %s: %w", req.ID, err)
	}

	var decidedAt *string
	if req.DecidedAt != nil {
		t := req.DecidedAt.Format(time.RFC3339)
		decidedAt = &t
	}

	if req.Version == 0 {
		query := `
			INSERT INTO leave_requests
			(id, employee_id, leave_type, start_date, end_date, total_days, reason,
			 requires_documentation, status, chain_json, created_at, decided_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		_, err := s.db.ExecContext(ctx, query,
			req.ID, req.EmployeeID, req.LeaveType,
			req.Range.Start.String(), req.Range.End.String(),
			req.TotalDays.String(), req.Reason, req.RequiresDocumentation,
			req.Status, string(chainJSON),
			req.CreatedAt.Format(time.RFC3339), decidedAt,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("request %s already exists: %w", req.ID, leave.ErrConcurrentModification)
			}
			return fmt.Errorf("failed to insert request: %w", err)
		}
		req.Version = 1
		return nil
	}

	query := `
		UPDATE leave_requests
		SET status = ?, chain_json = ?, decided_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		req.Status, string(chainJSON), decidedAt, req.ID, req.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("request %s at version %d: %w", req.ID, req.Version, leave.ErrConcurrentModification)
	}
	req.Version++
	return nil
}

// GetRequest returns the request or leave.ErrRequestNotFound.
func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*approval.LeaveRequest, error) {
	query := `
		SELECT id, employee_id, leave_type, start_date, end_date, total_days, reason,
		       requires_documentation, status, chain_json, created_at, decided_at, version
		FROM leave_requests WHERE id = ?
	`
	reqs, err := s.queryRequests(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return reqs[0], nil
}

// PendingRequests returns every non-terminal request, oldest first.
func (s *Store) PendingRequests(ctx context.Context) ([]*approval.LeaveRequest, error) {
	query := `
		SELECT id, employee_id, leave_type, start_date, end_date, total_days, reason,
		       requires_documentation, status, chain_json, created_at, decided_at, version
		FROM leave_requests
		WHERE status = ?
		ORDER BY created_at ASC
	`
	return s.queryRequests(ctx, query, approval.StatusPending)
}

// RequestsByEmployee returns the employee's requests, newest first.
func (s *Store) RequestsByEmployee(ctx context.Context, id leave.EmployeeID) ([]*approval.LeaveRequest, error) {
	query := `
		SELECT id, employee_id, leave_type, start_date, end_date, total_days, reason,
		       requires_documentation, status, chain_json, created_at, decided_at, version
		FROM leave_requests
		WHERE employee_id = ?
		ORDER BY created_at DESC
	`
	return s.queryRequests(ctx, query, id)
}

// ApprovedInWindow returns approved requests intersecting the window.
// Dates are ISO-8601 strings so lexicographic comparison is date order.
func (s *Store) ApprovedInWindow(ctx context.Context, window leave.DateRange) ([]*approval.LeaveRequest, error) {
	query := `
		SELECT id, employee_id, leave_type, start_date, end_date, total_days, reason,
		       requires_documentation, status, chain_json, created_at, decided_at, version
		FROM leave_requests
		WHERE status = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC
	`
	return s.queryRequests(ctx, query, approval.StatusApproved,
		window.End.String(), window.Start.String())
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*approval.LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []*approval.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (*approval.LeaveRequest, error) {
	var (
		req        approval.LeaveRequest
		startDate  string
		endDate    string
		totalDays  string
		reason     sql.NullString
		chainJSON  string
		createdAt  string
		decidedAt  sql.NullString
	)

	err := rows.Scan(
		&req.ID, &req.EmployeeID, &req.LeaveType, &startDate, &endDate,
		&totalDays, &reason, &req.RequiresDocumentation, &req.Status,
		&chainJSON, &createdAt, &decidedAt, &req.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	start, err := leave.ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := leave.ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	req.Range = leave.DateRange{Start: start, End: end}

	days, err := decimal.NewFromString(totalDays)
	if err != nil {
		return nil, fmt.Errorf("parsing total_days %q: %w", totalDays, err)
	}
	req.TotalDays = leave.Amount{Value: days}
	req.Reason = reason.String

	var chain approval.ApprovalChain
	if err := json.Unmarshal([]byte(chainJSON), &chain); err != nil {
		return nil, fmt.Errorf("decoding chain for %s: %w", req.ID, err)
	}
	req.Chain = &chain

	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if decidedAt.Valid {
		t, _ := time.Parse(time.RFC3339, decidedAt.String)
		req.DecidedAt = &t
	}

	return &req, nil
}

// =============================================================================
// BALANCE STORE (ledger.BalanceStore interface)
// =============================================================================

// GetBalance returns the row, or nil when it doesn't exist.
func (s *Store) GetBalance(ctx context.Context, key ledger.Key) (*ledger.Balance, error) {
	query := `
		SELECT total_entitlement, used, carry_forward, version
		FROM leave_balances
		WHERE employee_id = ? AND leave_type = ? AND year = ?
	`

	var entitlement, used, carryForward string
	var version int
	err := s.db.QueryRowContext(ctx, query, key.EmployeeID, key.LeaveType, key.Year).
		Scan(&entitlement, &used, &carryForward, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query balance %s: %w", key, err)
	}

	b := ledger.Balance{Key: key, Version: version}
	if b.TotalEntitlement, err = parseAmount(entitlement); err != nil {
		return nil, err
	}
	if b.Used, err = parseAmount(used); err != nil {
		return nil, err
	}
	if b.CarryForward, err = parseAmount(carryForward); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBalance inserts a new row at version 1. A duplicate key surfaces
// leave.ErrAlreadyAllocated.
func (s *Store) CreateBalance(ctx context.Context, b ledger.Balance) error {
	query := `
		INSERT INTO leave_balances
		(employee_id, leave_type, year, total_entitlement, used, carry_forward, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
	`
	_, err := s.db.ExecContext(ctx, query,
		b.EmployeeID, b.LeaveType, b.Year,
		b.TotalEntitlement.String(), b.Used.String(), b.CarryForward.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("balance %s: %w", b.Key, leave.ErrAlreadyAllocated)
		}
		return fmt.Errorf("failed to insert balance: %w", err)
	}
	return nil
}

// UpdateBalance stores the row iff the persisted version matches.
func (s *Store) UpdateBalance(ctx context.Context, b ledger.Balance, expectedVersion int) error {
	query := `
		UPDATE leave_balances
		SET total_entitlement = ?, used = ?, carry_forward = ?, version = version + 1
		WHERE employee_id = ? AND leave_type = ? AND year = ? AND version = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		b.TotalEntitlement.String(), b.Used.String(), b.CarryForward.String(),
		b.EmployeeID, b.LeaveType, b.Year, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("balance %s at version %d: %w", b.Key, expectedVersion, leave.ErrConcurrentModification)
	}
	return nil
}

// BalancesForYear returns every row for the year.
func (s *Store) BalancesForYear(ctx context.Context, year int) ([]ledger.Balance, error) {
	query := `
		SELECT employee_id, leave_type, total_entitlement, used, carry_forward, version
		FROM leave_balances
		WHERE year = ?
		ORDER BY employee_id, leave_type
	`
	rows, err := s.db.QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances for %d: %w", year, err)
	}
	defer rows.Close()

	var balances []ledger.Balance
	for rows.Next() {
		b := ledger.Balance{Key: ledger.Key{Year: year}}
		var entitlement, used, carryForward string
		if err := rows.Scan(&b.EmployeeID, &b.LeaveType, &entitlement, &used, &carryForward, &b.Version); err != nil {
			return nil, err
		}
		if b.TotalEntitlement, err = parseAmount(entitlement); err != nil {
			return nil, err
		}
		if b.Used, err = parseAmount(used); err != nil {
			return nil, err
		}
		if b.CarryForward, err = parseAmount(carryForward); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// AppendEntry adds a journal line. There is no update or delete path for
// ledger_entries.
func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries
		(id, employee_id, leave_type, year, delta, kind, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Key.EmployeeID, e.Key.LeaveType, e.Key.Year,
		e.Delta.String(), e.Kind, nullString(e.Reference),
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Entries returns the journal for one key, oldest first.
func (s *Store) Entries(ctx context.Context, key ledger.Key) ([]ledger.Entry, error) {
	query := `
		SELECT id, delta, kind, reference, created_at
		FROM ledger_entries
		WHERE employee_id = ? AND leave_type = ? AND year = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, key.EmployeeID, key.LeaveType, key.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal for %s: %w", key, err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e := ledger.Entry{Key: key}
		var delta string
		var reference sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &delta, &e.Kind, &reference, &createdAt); err != nil {
			return nil, err
		}
		if e.Delta, err = parseAmount(delta); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAmount(s string) (leave.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return leave.Amount{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return leave.Amount{Value: d}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
