/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. This is the "calling process"
  that decides when a deal's commissions are rebuilt: it handles HTTP
  request/response, JSON serialization, and delegates to the calculator.

ENDPOINTS:
  Deals:
    POST   /api/deals/{id}/recalculate   Rebuild one deal's commission set
    GET    /api/deals/{id}/commissions   Stored commission set for a deal

  Batch:
    POST   /api/recalculate              Rebuild many deals (or all)

  Pay plans:
    GET    /api/payplans                 List pay plans
    POST   /api/payplans                 Install a pay plan from JSON
    POST   /api/people/{id}/payplan      Start a pay plan for a person

  Admin:
    GET    /api/sweep/last               Most recent periodic sweep

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    GET    /api/scenarios/current        Currently loaded scenario
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Clear all data

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: reads, seeding writes and reset
  - Calc: the commission calculator (owns locking and replacement)
  - Batch: bounded-concurrency wrapper around Calc
  - PlanFactory: JSON to PayPlan conversion

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, invalid rule or assignment
  - 404: Deal not found
  - 409: Deal lock not acquired (retry)
  - 422: Deal references a person that does not exist
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs beyond the calculator's own reads.
type Store interface {
	commission.Store
	commission.OrgWriter
	ListPayPlans(ctx context.Context) ([]commission.PayPlan, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Calc        *commission.Calculator
	Batch       *commission.BatchRecalculator
	PlanFactory *factory.PayPlanFactory
	Logger      *slog.Logger

	// Sweeper is optional; nil when periodic sweeps are off.
	Sweeper *SweepScheduler

	mu sync.Mutex
	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around a calculator built on store.
func NewHandler(store Store, calc *commission.Calculator, batch *commission.BatchRecalculator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if batch == nil {
		batch = &commission.BatchRecalculator{Calc: calc, Logger: logger}
	}
	return &Handler{
		Store:       store,
		Calc:        calc,
		Batch:       batch,
		PlanFactory: factory.NewPayPlanFactory(),
		Logger:      logger,
	}
}

// =============================================================================
// DEAL HANDLERS
// =============================================================================

// RecalculateDeal rebuilds one deal's commission set and returns it.
func (h *Handler) RecalculateDeal(w http.ResponseWriter, r *http.Request) {
	dealID := commission.DealID(chi.URLParam(r, "id"))
	ctx := r.Context()

	count, err := h.Calc.Recalculate(ctx, dealID)
	if err != nil {
		h.writeEngineError(w, "Failed to recalculate deal", err)
		return
	}

	rows, err := h.Calc.Commissions(ctx, dealID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read commissions", err)
		return
	}

	writeJSON(w, http.StatusOK, RecalculateResponse{
		DealID:      string(dealID),
		Count:       count,
		Commissions: toCommissionDTOs(rows),
	})
}

// GetDealCommissions returns the stored commission set for a deal.
func (h *Handler) GetDealCommissions(w http.ResponseWriter, r *http.Request) {
	dealID := commission.DealID(chi.URLParam(r, "id"))
	ctx := r.Context()

	deal, err := h.Store.GetDeal(ctx, dealID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get deal", err)
		return
	}
	if deal == nil {
		writeError(w, http.StatusNotFound, "Deal not found", nil)
		return
	}

	rows, err := h.Calc.Commissions(ctx, dealID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read commissions", err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTOs(rows))
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// RecalculateBatch rebuilds many deals. One deal failing does not stop the
// others; failures are reported per deal.
func (h *Handler) RecalculateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ctx := r.Context()

	var ids []commission.DealID
	if req.All {
		all, err := h.Store.ListDealIDs(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list deals", err)
			return
		}
		ids = all
	} else {
		for _, id := range req.DealIDs {
			if strings.TrimSpace(id) == "" {
				writeError(w, http.StatusBadRequest, "deal_ids must not contain empty ids", nil)
				return
			}
			ids = append(ids, commission.DealID(id))
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "deal_ids is required unless all is set", nil)
		return
	}

	results, err := h.Batch.RecalculateMany(ctx, ids)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Batch interrupted", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResponse(results))
}

// =============================================================================
// PAY PLAN HANDLERS
// =============================================================================

// ListPayPlans returns all pay plans.
func (h *Handler) ListPayPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPayPlans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pay plans", err)
		return
	}

	dtos := make([]PayPlanDTO, 0, len(plans))
	for _, p := range plans {
		dtos = append(dtos, PayPlanDTO{ID: string(p.ID), Name: p.Name, Description: p.Description})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayPlan installs a pay plan and its rules from a JSON body.
func (h *Handler) CreatePayPlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	plan, err := h.PlanFactory.Install(r.Context(), h.Store, string(body))
	if err != nil {
		status := http.StatusInternalServerError
		if commission.IsClientError(err) || isJSONError(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Invalid pay plan", err)
		return
	}

	writeJSON(w, http.StatusCreated, PayPlanDTO{
		ID:          string(plan.ID),
		Name:        plan.Name,
		Description: plan.Description,
	})
}

// AssignPayPlan starts a pay plan for a person, ending the open one.
func (h *Handler) AssignPayPlan(w http.ResponseWriter, r *http.Request) {
	personID := commission.PersonID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req AssignPayPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PayPlanID == "" {
		writeError(w, http.StatusBadRequest, "pay_plan_id is required", nil)
		return
	}
	from, err := commission.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}

	person, err := h.Store.GetPerson(ctx, personID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get person", err)
		return
	}
	if person == nil {
		writeError(w, http.StatusNotFound, "Person not found", nil)
		return
	}
	plan, err := h.Store.GetPayPlan(ctx, commission.PayPlanID(req.PayPlanID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get pay plan", err)
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "Pay plan not found", nil)
		return
	}

	assignment, err := h.Calc.Plans().Assign(ctx, personID, plan.ID, from, req.Notes)
	if err != nil {
		h.writeEngineError(w, "Failed to assign pay plan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(assignment))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LastSweep returns the most recent periodic sweep.
func (h *Handler) LastSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, http.StatusNotFound, "Periodic sweep is disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Sweeper.LastRun())
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeEngineError maps calculator and repository errors to HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, commission.ErrDealNotFound):
		return http.StatusNotFound, "deal_not_found"
	case errors.Is(err, commission.ErrPersonNotFound):
		return http.StatusUnprocessableEntity, "person_not_found"
	case commission.IsRetryable(err):
		return http.StatusConflict, "deal_locked"
	case commission.IsClientError(err):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, ""
	}
}

func isJSONError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
