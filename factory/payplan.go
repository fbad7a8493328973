/*
Package factory provides JSON to Go pay-plan conversion.

PURPOSE:
  Converts JSON pay-plan definitions into commission.PayPlan and
  commission.Rule values. Comp admins define plans in JSON; the factory
  validates them and produces the structs the engine stores and evaluates.

JSON SCHEMA:
  {
    "id": "solar-setter",
    "name": "Solar Setter",
    "description": "Rookie and veteran setter rates",
    "rules": [
      {
        "id": "solar-setter-rookie",
        "name": "Rookie per kW",
        "category": "direct_seller",
        "calc_method": "flat_per_kw",
        "rate": "0.25",
        "conditions": {"tiers": ["rookie"], "deal_types": ["solar"]},
        "sort_key": 10
      },
      {
        "id": "mgr-l1",
        "category": "override",
        "calc_method": "flat_per_kw",
        "rate": "0.05",
        "override_source": "manager_chain",
        "override_level": 1
      }
    ]
  }

DEFAULTS:
  - Rule IDs default to "<plan id>-<index>"
  - Rule names default to the category
  - "active" defaults to true
  - Override rules without override_source are rejected

USAGE:
  factory := NewPayPlanFactory()
  plan, rules, err := factory.ParsePayPlan(plans.SolarSetterJSON("solar-setter", "Solar Setter", 0.25))
  err = factory.Install(ctx, store, planJSON)

SEE ALSO:
  - commission/rules.go: Rule type definition
  - plans/presets.go: Stock plan definitions
*/
package factory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PayPlanJSON is the JSON representation of a pay plan and its rules.
type PayPlanJSON struct {
	ID          string     `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description,omitempty"`
	Rules       []RuleJSON `json:"rules" validate:"dive"`
}

// RuleJSON represents one commission rule.
type RuleJSON struct {
	ID             string                `json:"id,omitempty"`
	Name           string                `json:"name,omitempty"`
	Category       string                `json:"category" validate:"required,oneof=direct_seller direct_closer self_gen override recruiting_bonus draw"`
	CalcMethod     string                `json:"calc_method" validate:"required,oneof=flat_per_kw percentage_of_deal flat_fee"`
	Rate           decimal.Decimal       `json:"rate"`
	RoleID         string                `json:"role_id,omitempty"`
	Conditions     commission.Conditions `json:"conditions" validate:"-"`
	OverrideSource string                `json:"override_source,omitempty" validate:"omitempty,oneof=none manager_chain recruiter_chain office_hierarchy"`
	OverrideLevel  int                   `json:"override_level,omitempty" validate:"gte=0,lte=10"`
	Active         *bool                 `json:"active,omitempty"`
	SortKey        int                   `json:"sort_key,omitempty"`
}

// =============================================================================
// PAY PLAN FACTORY
// =============================================================================

// PayPlanFactory converts JSON pay plans to Go structs.
type PayPlanFactory struct {
	validate *validator.Validate

	// Now stamps rule creation times; rules keep their JSON order as a
	// tie-break by being one microsecond apart.
	Now func() time.Time
}

// NewPayPlanFactory creates a new pay-plan factory.
func NewPayPlanFactory() *PayPlanFactory {
	return &PayPlanFactory{
		validate: validator.New(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// ParsePayPlan parses a JSON string into a PayPlan and its rules.
func (f *PayPlanFactory) ParsePayPlan(jsonStr string) (*commission.PayPlan, []commission.Rule, error) {
	var pj PayPlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, nil, fmt.Errorf("failed to parse pay plan JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PayPlanJSON to a PayPlan and rules, validating both the
// JSON shape and each resulting rule.
func (f *PayPlanFactory) FromJSON(pj PayPlanJSON) (*commission.PayPlan, []commission.Rule, error) {
	if err := f.validate.Struct(pj); err != nil {
		return nil, nil, fmt.Errorf("%w: plan %q: %s", commission.ErrInvalidRule, pj.ID, describe(err))
	}

	plan := &commission.PayPlan{
		ID:          commission.PayPlanID(pj.ID),
		Name:        pj.Name,
		Description: pj.Description,
	}

	base := f.Now()
	rules := make([]commission.Rule, 0, len(pj.Rules))
	for i, rj := range pj.Rules {
		rule, err := f.toRule(plan.ID, i, rj, base.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, nil, err
		}
		rules = append(rules, rule)
	}
	return plan, rules, nil
}

func (f *PayPlanFactory) toRule(planID commission.PayPlanID, i int, rj RuleJSON, createdAt time.Time) (commission.Rule, error) {
	rule := commission.Rule{
		ID:             commission.RuleID(rj.ID),
		PayPlanID:      planID,
		Name:           rj.Name,
		Category:       commission.RuleCategory(rj.Category),
		CalcMethod:     commission.CalcMethod(rj.CalcMethod),
		Rate:           rj.Rate,
		Conditions:     rj.Conditions,
		OverrideSource: commission.OverrideSource(rj.OverrideSource),
		OverrideLevel:  rj.OverrideLevel,
		Active:         true,
		SortKey:        rj.SortKey,
		CreatedAt:      createdAt,
	}
	if rule.ID == "" {
		rule.ID = commission.RuleID(fmt.Sprintf("%s-%d", planID, i))
	}
	if rule.Name == "" {
		rule.Name = rj.Category
	}
	if rj.RoleID != "" {
		role := commission.RoleID(rj.RoleID)
		rule.RoleID = &role
	}
	if rj.Active != nil {
		rule.Active = *rj.Active
	}

	if rule.Category == commission.CategoryOverride &&
		(rule.OverrideSource == "" || rule.OverrideSource == commission.SourceNone) {
		return commission.Rule{}, &commission.RuleValidationError{
			RuleID: rule.ID,
			Fields: []string{"OverrideSource:required_for_override"},
		}
	}
	if rule.Rate.IsNegative() {
		return commission.Rule{}, &commission.RuleValidationError{
			RuleID: rule.ID,
			Fields: []string{"Rate:gte"},
		}
	}
	if err := rule.Validate(); err != nil {
		return commission.Rule{}, err
	}
	return rule, nil
}

// ToJSON converts a plan and its rules back to the JSON representation.
func (f *PayPlanFactory) ToJSON(plan commission.PayPlan, rules []commission.Rule) PayPlanJSON {
	pj := PayPlanJSON{
		ID:          string(plan.ID),
		Name:        plan.Name,
		Description: plan.Description,
	}
	for _, r := range rules {
		active := r.Active
		rj := RuleJSON{
			ID:             string(r.ID),
			Name:           r.Name,
			Category:       string(r.Category),
			CalcMethod:     string(r.CalcMethod),
			Rate:           r.Rate,
			Conditions:     r.Conditions,
			OverrideSource: string(r.OverrideSource),
			OverrideLevel:  r.OverrideLevel,
			Active:         &active,
			SortKey:        r.SortKey,
		}
		if r.RoleID != nil {
			rj.RoleID = string(*r.RoleID)
		}
		pj.Rules = append(pj.Rules, rj)
	}
	return pj
}

// Install parses the plan and saves it with its rules.
func (f *PayPlanFactory) Install(ctx context.Context, w commission.OrgWriter, jsonStr string) (*commission.PayPlan, error) {
	plan, rules, err := f.ParsePayPlan(jsonStr)
	if err != nil {
		return nil, err
	}
	if err := w.SavePayPlan(ctx, *plan); err != nil {
		return nil, fmt.Errorf("save pay plan %s: %w", plan.ID, err)
	}
	for _, r := range rules {
		if err := w.SaveRule(ctx, r); err != nil {
			return nil, fmt.Errorf("save rule %s: %w", r.ID, err)
		}
	}
	return plan, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+":"+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
