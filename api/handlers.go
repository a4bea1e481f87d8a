/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the approval, ledger, and accrual engines via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Requests:
    POST   /api/requests                    Submit a leave request
    GET    /api/requests/{id}               Request with its chain
    GET    /api/requests/pending            All pending requests
    POST   /api/requests/{id}/decide        Record an approver decision
    POST   /api/requests/{id}/cancel        Cancel a request

  Employees:
    GET    /api/employees/{id}/requests     Request history
    GET    /api/employees/{id}/balances     Balance rows for a year
    GET    /api/employees/{id}/ledger       Journal for one leave type

  Team:
    GET    /api/conflicts                   Overlap report for a window

  Admin:
    POST   /api/admin/allocate              Run annual allocation
    POST   /api/admin/carry-forward         Run year-end carry-forward
    POST   /api/admin/escalations           Run the escalation sweep now

ERROR HANDLING:
  Domain errors map to HTTP status via the leave error classifiers:
  - 404: leave.IsNotFound
  - 409: leave.IsConflict (insufficient balance, version conflicts, ...)
  - 422: leave.IsValidation (notice, granularity, team overlap, ...)
  - 400: Malformed input
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Approver identity is taken from the request body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *approval.Service
	Machine  *approval.StateMachine
	Ledger   *ledger.BalanceLedger
	Accrual  *accrual.Engine
	Requests approval.RequestStore
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest creates a leave request and binds its approval chain.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := leave.ParseDate(body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	end, err := leave.ParseDate(body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
		return
	}

	params := approval.CreateParams{
		EmployeeID: leave.EmployeeID(body.EmployeeID),
		LeaveType:  leave.LeaveTypeCode(body.LeaveType),
		Start:      start,
		End:        end,
		Reason:     body.Reason,
	}
	if body.TotalDays > 0 {
		params.TotalDays = leave.Days(body.TotalDays)
	}

	req, err := h.Service.CreateRequest(r.Context(), params)
	if err != nil {
		writeDomainError(w, "Failed to create request", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestDTO(req))
}

// GetRequest returns one request with its full chain.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	req, err := h.Requests.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get request", err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListPendingRequests returns every request still in flight.
// GET /api/requests/pending
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Requests.PendingRequests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending requests", err)
		return
	}

	dtos := make([]RequestDTO, 0, len(pending))
	for _, req := range pending {
		dtos = append(dtos, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DecideRequest records one approver's decision.
// POST /api/requests/{id}/decide
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var body DecisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.ApproverID == "" {
		writeError(w, http.StatusBadRequest, "approver_id is required", nil)
		return
	}

	req, err := h.Machine.Decide(r.Context(), id, body.Level,
		leave.EmployeeID(body.ApproverID), approval.Decision(body.Decision), body.Comments)
	if err != nil {
		writeDomainError(w, "Failed to record decision", err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest cancels a request, reversing the debit if it was approved.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var body CancelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := h.Machine.Cancel(r.Context(), id, leave.EmployeeID(body.ActorID))
	if err != nil {
		writeDomainError(w, "Failed to cancel request", err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployeeRequests returns an employee's request history, newest first.
// GET /api/employees/{id}/requests
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	requests, err := h.Requests.RequestsByEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}

	dtos := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalances returns the employee's balance rows for a year.
// GET /api/employees/{id}/balances?year=2026
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	year, err := yearParam(r, leave.Today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	balances, err := h.Ledger.Store.BalancesForYear(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balances", err)
		return
	}

	dtos := make([]BalanceDTO, 0)
	for _, b := range balances {
		if b.EmployeeID == id {
			dtos = append(dtos, toBalanceDTO(b))
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLedger returns the journal for one (employee, leave type, year).
// GET /api/employees/{id}/ledger?leave_type=annual&year=2026
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	code := leave.LeaveTypeCode(r.URL.Query().Get("leave_type"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "leave_type is required", nil)
		return
	}
	year, err := yearParam(r, leave.Today().Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	entries, err := h.Ledger.Store.Entries(r.Context(), ledger.Key{
		EmployeeID: id, LeaveType: code, Year: year,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TEAM HANDLERS
// =============================================================================

// GetConflicts returns the overlap report for a department and window.
// GET /api/conflicts?department=eng&from=2026-07-01&to=2026-07-31
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")

	from, err := leave.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := leave.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	window, err := leave.NewDateRange(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must not be after to", err)
		return
	}

	report, err := h.Service.FindConflicts(r.Context(), department, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to detect conflicts", err)
		return
	}

	conflicts := make([]ConflictDTO, 0, len(report.Conflicts))
	for _, c := range report.Conflicts {
		conflicts = append(conflicts, toConflictDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conflicts": conflicts,
		"blocking":  report.Blocking,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerAllocation runs the annual allocation batch for a year.
// POST /api/admin/allocate
func (h *Handler) TriggerAllocation(w http.ResponseWriter, r *http.Request) {
	var body AllocateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Year == 0 {
		body.Year = leave.Today().Year()
	}

	results, err := h.Accrual.AllocateBatch(r.Context(), body.Year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Allocation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, allocationSummary(body.Year, results))
}

// TriggerCarryForward runs the year-end carry-forward sweep.
// POST /api/admin/carry-forward
func (h *Handler) TriggerCarryForward(w http.ResponseWriter, r *http.Request) {
	var body AllocateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Year == 0 {
		body.Year = leave.Today().Year() - 1
	}

	results, err := h.Accrual.ApplyCarryForward(r.Context(), body.Year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Carry-forward failed", err)
		return
	}

	transferred, forfeited, failed := 0.0, 0.0, 0
	for _, res := range results {
		transferred += res.Transferred.Float64()
		forfeited += res.Forfeited.Float64()
		if res.Err != nil {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from_year":   body.Year,
		"balances":    len(results),
		"transferred": transferred,
		"forfeited":   forfeited,
		"failed":      failed,
	})
}

// TriggerEscalations runs the escalation sweep immediately.
// POST /api/admin/escalations
func (h *Handler) TriggerEscalations(w http.ResponseWriter, r *http.Request) {
	result := h.Machine.CheckEscalations(r.Context(), time.Now())

	errs := make([]string, 0, len(result.Errors))
	for _, err := range result.Errors {
		errs = append(errs, err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checked":   result.Checked,
		"escalated": result.Escalated,
		"errors":    errs,
	})
}

func allocationSummary(year int, results []accrual.AllocationResult) map[string]any {
	counts := map[accrual.Outcome]int{}
	for _, res := range results {
		counts[res.Outcome]++
	}
	return map[string]any{
		"year":              year,
		"total":             len(results),
		"allocated":         counts[accrual.Allocated],
		"already_allocated": counts[accrual.AlreadyAllocated],
		"skipped":           counts[accrual.Skipped],
		"failed":            counts[accrual.Failed],
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func yearParam(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case leave.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case leave.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
