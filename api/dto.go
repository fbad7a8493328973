/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal commission model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Commissions:
    CommissionDTO, RecalculateResponse

  Batch:
    BatchRecalculateRequest, BatchResultDTO, BatchRecalculateResponse

  Pay plans:
    PayPlanDTO, AssignPayPlanRequest, AssignmentDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are rendered as fixed two-decimal strings ("750.00") so clients
  never round-trip money through floats.

SEE ALSO:
  - handlers.go: Uses these types
  - commission/details.go: CalcDetails audit payload
*/
package api

import (
	"time"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CommissionDTO represents one commission row in API responses.
type CommissionDTO struct {
	ID        string                 `json:"id"`
	DealID    string                 `json:"deal_id"`
	PersonID  string                 `json:"person_id"`
	Type      string                 `json:"type"`
	Amount    string                 `json:"amount"`
	RuleID    string                 `json:"rule_id"`
	PayPlanID string                 `json:"pay_plan_id"`
	Status    string                 `json:"status"`
	Details   commission.CalcDetails `json:"details"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// RecalculateResponse is returned by a single-deal recalculation.
type RecalculateResponse struct {
	DealID      string          `json:"deal_id"`
	Count       int             `json:"count"`
	Commissions []CommissionDTO `json:"commissions"`
}

// BatchRecalculateRequest selects deals to recalculate. All ignores DealIDs.
type BatchRecalculateRequest struct {
	DealIDs []string `json:"deal_ids"`
	All     bool     `json:"all,omitempty"`
}

// BatchResultDTO is the outcome for one deal of a batch.
type BatchResultDTO struct {
	DealID string `json:"deal_id"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// BatchRecalculateResponse wraps per-deal batch results.
type BatchRecalculateResponse struct {
	Results []BatchResultDTO `json:"results"`
	Failed  int              `json:"failed"`
}

// PayPlanDTO represents a pay plan in API responses.
type PayPlanDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AssignPayPlanRequest starts a pay plan for a person.
type AssignPayPlanRequest struct {
	PayPlanID     string `json:"pay_plan_id"`
	EffectiveFrom string `json:"effective_from"` // YYYY-MM-DD
	Notes         string `json:"notes,omitempty"`
}

// AssignmentDTO represents a pay-plan assignment.
type AssignmentDTO struct {
	ID            string  `json:"id"`
	PersonID      string  `json:"person_id"`
	PayPlanID     string  `json:"pay_plan_id"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCommissionDTO(c commission.Commission) CommissionDTO {
	dto := CommissionDTO{
		ID:        string(c.ID),
		DealID:    string(c.DealID),
		PersonID:  string(c.PersonID),
		Type:      string(c.Type),
		Amount:    c.Amount.StringFixed(2),
		RuleID:    string(c.RuleID),
		PayPlanID: string(c.PayPlanID),
		Status:    string(c.Status),
		Details:   c.Details,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toCommissionDTOs(rows []commission.Commission) []CommissionDTO {
	dtos := make([]CommissionDTO, 0, len(rows))
	for _, c := range rows {
		dtos = append(dtos, toCommissionDTO(c))
	}
	return dtos
}

func toBatchResponse(results []commission.BatchResult) BatchRecalculateResponse {
	resp := BatchRecalculateResponse{
		Results: make([]BatchResultDTO, 0, len(results)),
		Failed:  commission.Failed(results),
	}
	for _, r := range results {
		dto := BatchResultDTO{DealID: string(r.DealID), Count: r.Count}
		if r.Err != nil {
			dto.Error = r.Err.Error()
		}
		resp.Results = append(resp.Results, dto)
	}
	return resp
}

func toAssignmentDTO(a commission.PlanAssignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:            a.ID,
		PersonID:      string(a.PersonID),
		PayPlanID:     string(a.PayPlanID),
		EffectiveFrom: a.Range.From.String(),
		Notes:         a.Notes,
	}
	if a.Range.To != nil {
		to := a.Range.To.String()
		dto.EffectiveTo = &to
	}
	return dto
}
