/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	sales organisation, pay plans and deals, then recalculate every deal so
	the resulting commission sets can be inspected.

AVAILABLE SCENARIOS:

	solar-office:  One office with manager, recruiter and office-leadership
	               lines; a standard deal and a self-gen deal
	plan-change:   A rep promoted mid-year; deals before and after pick
	               different plans by close date
	broken-chain:  A departed manager and a recruiter loop; chains stop
	               cleanly and the direct payouts still happen

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Install pay plans via the factory
 3. Create offices, people and leadership
 4. Assign pay plans with effective dates
 5. Create deals
 6. Recalculate every deal

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "solar-office"}

USAGE VIA CLI:

	commissiond seed solar-office

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to loaderFor

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - plans/presets.go: Pay plan JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/plans"
)

// ErrUnknownScenario is returned by Seed for an unlisted scenario ID.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "solar-office",
		Name:        "Solar Office",
		Description: "Setter, closer, two-level manager and recruiter lines, full office leadership",
	},
	{
		ID:          "plan-change",
		Name:        "Mid-Year Promotion",
		Description: "Rookie plan until June, veteran plan from July; deals use the plan in force at close",
	},
	{
		ID:          "broken-chain",
		Name:        "Broken Chains",
		Description: "Manager left the company and recruiters refer to each other; chains stop, direct pay continues",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	return append([]ScenarioDTO(nil), scenarios...)
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	results, err := h.Seed(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"deals":    toBatchResponse(results),
	})
}

// Seed resets the store, loads the scenario and recalculates every deal.
// Per-deal failures are reported in the results, not as an error.
func (h *Handler) Seed(ctx context.Context, scenarioID string) ([]commission.BatchResult, error) {
	load := h.loaderFor(scenarioID)
	if load == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenarioID)
	}

	if err := h.Store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := load(ctx); err != nil {
		return nil, err
	}

	ids, err := h.Store.ListDealIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	results, err := h.Batch.RecalculateMany(ctx, ids)
	if err != nil {
		return results, err
	}

	h.mu.Lock()
	h.currentScenario = scenarioID
	h.mu.Unlock()
	return results, nil
}

func (h *Handler) loaderFor(scenarioID string) func(context.Context) error {
	switch scenarioID {
	case "solar-office":
		return h.loadSolarOfficeScenario
	case "plan-change":
		return h.loadPlanChangeScenario
	case "broken-chain":
		return h.loadBrokenChainScenario
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var (
	planStart = commission.MustParseDate("2024-01-01")

	// fieldLead pays setter/closer/self-gen plus two manager and two
	// recruiter override levels.
	fieldLead = plans.FieldRates{
		RookieSetter:  0.25,
		VeteranSetter: 0.35,
		CloserPercent: 2.5,
		SelfGen:       0.50,
		Manager:       []float64{0.10, 0.05},
		Recruiter:     []float64{0.03, 0.01},
	}
)

func (h *Handler) loadSolarOfficeScenario(ctx context.Context) error {
	if err := h.installPlans(ctx,
		plans.FieldPlanJSON("field-rookie", "Field Rookie", plans.FieldRates{
			RookieSetter: 0.25, VeteranSetter: 0.35, CloserPercent: 2.5, SelfGen: 0.50,
		}),
		plans.FieldPlanJSON("field-lead", "Field Lead", fieldLead),
		plans.CloserPercentJSON("closer-standard", "Standard Closer", 3),
		plans.OfficeOverrideJSON("office-leadership", "Office Leadership", 0.04, 0.03, 0.02, 0.01),
	); err != nil {
		return err
	}

	office := commission.Office{
		ID:         "off-phx",
		Name:       "Phoenix",
		RegionID:   ptr(commission.RegionID("southwest")),
		DivisionID: ptr(commission.DivisionID("west")),
	}
	if err := h.Store.SaveOffice(ctx, office); err != nil {
		return err
	}

	people := []commission.Person{
		{ID: "mark", Name: "Mark Alvarez", OfficeID: &office.ID, SetterTier: ptr(commission.TierTeamLead)},
		{ID: "tina", Name: "Tina Brooks", OfficeID: &office.ID, ReportsToID: ptr(commission.PersonID("mark")),
			RecruitedByID: ptr(commission.PersonID("mark")), SetterTier: ptr(commission.TierTeamLead)},
		{ID: "rita", Name: "Rita Chen", OfficeID: &office.ID, ReportsToID: ptr(commission.PersonID("mark")),
			RecruitedByID: ptr(commission.PersonID("mark")), SetterTier: ptr(commission.TierVeteran)},
		{ID: "sam", Name: "Sam Diaz", OfficeID: &office.ID, ReportsToID: ptr(commission.PersonID("tina")),
			RecruitedByID: ptr(commission.PersonID("rita")), SetterTier: ptr(commission.TierRookie)},
		{ID: "cole", Name: "Cole Evans", OfficeID: &office.ID},
		{ID: "alma", Name: "Alma Foster", RoleID: ptr(commission.RoleID("area_director"))},
		{ID: "rico", Name: "Rico Garza", RoleID: ptr(commission.RoleID("regional_manager"))},
		{ID: "dina", Name: "Dina Hale", RoleID: ptr(commission.RoleID("divisional_manager"))},
		{ID: "vic", Name: "Vic Ibarra", RoleID: ptr(commission.RoleID("vp"))},
	}
	if err := h.savePeople(ctx, people); err != nil {
		return err
	}

	leaders := []commission.LeadershipAssignment{
		{ID: "lead-ad", PersonID: "alma", Role: commission.LeadAreaDirector, OfficeID: &office.ID},
		{ID: "lead-rg", PersonID: "rico", Role: commission.LeadRegional, RegionID: office.RegionID},
		{ID: "lead-dv", PersonID: "dina", Role: commission.LeadDivisional, DivisionID: office.DivisionID},
		{ID: "lead-vp", PersonID: "vic", Role: commission.LeadVP, DivisionID: office.DivisionID},
	}
	for _, l := range leaders {
		l.Range = commission.EffectiveRange{From: planStart}
		if err := h.Store.SaveLeadership(ctx, l); err != nil {
			return err
		}
	}

	assignments := map[commission.PersonID]commission.PayPlanID{
		"sam":  "field-rookie",
		"tina": "field-lead",
		"rita": "field-lead",
		"mark": "field-lead",
		"cole": "closer-standard",
		"alma": "office-leadership",
		"rico": "office-leadership",
		"dina": "office-leadership",
		"vic":  "office-leadership",
	}
	if err := h.assignAll(ctx, planStart, assignments); err != nil {
		return err
	}

	return h.saveDeals(ctx,
		commission.Deal{
			ID: "deal-1001", DealType: "solar",
			SystemSize: dec("9.8"), DealValue: dec("25000"), PricePerUnit: dec("2.55"),
			SetterID: "sam", CloserID: "cole", OfficeID: &office.ID,
			SaleDate: ptr(commission.MustParseDate("2024-02-20")), CloseDate: ptr(commission.MustParseDate("2024-03-15")),
		},
		commission.Deal{
			ID: "deal-1002", DealType: "solar", IsSelfGen: true,
			SystemSize: dec("12"), DealValue: dec("31200"), PricePerUnit: dec("2.60"),
			SetterID: "tina", CloserID: "tina", OfficeID: &office.ID,
			CloseDate: ptr(commission.MustParseDate("2024-04-02")),
		},
	)
}

func (h *Handler) loadPlanChangeScenario(ctx context.Context) error {
	if err := h.installPlans(ctx,
		plans.SolarSetterJSON("setter-rookie", "Setter Rookie", 0.25, 0.25),
		plans.SolarSetterJSON("setter-veteran", "Setter Veteran", 0.35, 0.35),
		plans.CloserPercentJSON("closer-standard", "Standard Closer", 3),
	); err != nil {
		return err
	}

	if err := h.savePeople(ctx, []commission.Person{
		{ID: "pat", Name: "Pat Jensen", SetterTier: ptr(commission.TierVeteran)},
		{ID: "cole", Name: "Cole Evans"},
	}); err != nil {
		return err
	}

	if err := h.assignAll(ctx, planStart, map[commission.PersonID]commission.PayPlanID{
		"pat":  "setter-rookie",
		"cole": "closer-standard",
	}); err != nil {
		return err
	}
	if _, err := h.Calc.Plans().Assign(ctx, "pat", "setter-veteran",
		commission.MustParseDate("2024-07-01"), "Promoted to veteran"); err != nil {
		return err
	}

	return h.saveDeals(ctx,
		commission.Deal{
			ID: "deal-2001", DealType: "solar",
			SystemSize: dec("8"), DealValue: dec("20000"), PricePerUnit: dec("2.50"),
			SetterID: "pat", CloserID: "cole",
			CloseDate: ptr(commission.MustParseDate("2024-03-01")),
		},
		commission.Deal{
			ID: "deal-2002", DealType: "solar",
			SystemSize: dec("8"), DealValue: dec("20000"), PricePerUnit: dec("2.50"),
			SetterID: "pat", CloserID: "cole",
			CloseDate: ptr(commission.MustParseDate("2024-09-01")),
		},
	)
}

func (h *Handler) loadBrokenChainScenario(ctx context.Context) error {
	if err := h.installPlans(ctx,
		plans.FieldPlanJSON("field-lead", "Field Lead", fieldLead),
		plans.CloserPercentJSON("closer-standard", "Standard Closer", 3),
	); err != nil {
		return err
	}

	// "gone" no longer exists; una and val recruited each other.
	if err := h.savePeople(ctx, []commission.Person{
		{ID: "una", Name: "Una Keller", ReportsToID: ptr(commission.PersonID("gone")),
			RecruitedByID: ptr(commission.PersonID("val")), SetterTier: ptr(commission.TierRookie)},
		{ID: "val", Name: "Val Lopez", RecruitedByID: ptr(commission.PersonID("una"))},
		{ID: "cole", Name: "Cole Evans"},
	}); err != nil {
		return err
	}

	if err := h.assignAll(ctx, planStart, map[commission.PersonID]commission.PayPlanID{
		"una":  "field-lead",
		"val":  "field-lead",
		"cole": "closer-standard",
	}); err != nil {
		return err
	}

	return h.saveDeals(ctx, commission.Deal{
		ID: "deal-3001", DealType: "solar",
		SystemSize: dec("10"), DealValue: dec("28000"), PricePerUnit: dec("2.80"),
		SetterID: "una", CloserID: "cole",
		CloseDate: ptr(commission.MustParseDate("2024-05-10")),
	})
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func (h *Handler) installPlans(ctx context.Context, planJSON ...string) error {
	for _, js := range planJSON {
		if _, err := h.PlanFactory.Install(ctx, h.Store, js); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) savePeople(ctx context.Context, people []commission.Person) error {
	for _, p := range people {
		if err := h.Store.SavePerson(ctx, p); err != nil {
			return fmt.Errorf("save person %s: %w", p.ID, err)
		}
	}
	return nil
}

func (h *Handler) assignAll(ctx context.Context, from commission.Date, byPerson map[commission.PersonID]commission.PayPlanID) error {
	for person, plan := range byPerson {
		if _, err := h.Calc.Plans().Assign(ctx, person, plan, from, ""); err != nil {
			return fmt.Errorf("assign %s to %s: %w", plan, person, err)
		}
	}
	return nil
}

func (h *Handler) saveDeals(ctx context.Context, deals ...commission.Deal) error {
	for _, d := range deals {
		if err := h.Store.SaveDeal(ctx, d); err != nil {
			return fmt.Errorf("save deal %s: %w", d.ID, err)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }
