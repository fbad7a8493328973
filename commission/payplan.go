/*
payplan.go - Pay plans, their assignment to people, and rule lookup

PURPOSE:
  A PayPlan is a named bundle of commission rules. A person holds exactly
  one plan at any date through PlanAssignments with effective ranges.

KEY CONCEPTS:
  PlanAssignment:
    Links a person to a plan for [EffectiveFrom, EffectiveTo]. A nil end
    means the assignment is still open. Assign closes the open assignment
    on the day before the new one starts, so ranges never gap or overlap.

  PayPlanRepository:
    RulesForPlan    active rules, optionally by category, deterministic order
    CurrentPayPlan  the plan in effect for a person on a date (or none)

ABSENCE IS NOT AN ERROR:
  CurrentPayPlan returns (nil, nil) when the person has no plan. Callers
  skip that payee rather than fail the deal.

SEE ALSO:
  - rules.go: Rule and evaluator
  - calculator.go: Consumer of both lookups
*/
package commission

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// =============================================================================
// PAY PLAN / ASSIGNMENT
// =============================================================================

type PayPlan struct {
	ID          PayPlanID
	Name        string
	Description string
}

// PlanAssignment links a person to a pay plan for a date range.
type PlanAssignment struct {
	ID        string
	PersonID  PersonID
	PayPlanID PayPlanID
	Range     EffectiveRange
	Notes     string
}

// IsActive returns true if the assignment covers the given day.
func (a PlanAssignment) IsActive(on Date) bool {
	return a.Range.Contains(on)
}

// CurrentPlan is the result of a current-plan lookup.
type CurrentPlan struct {
	Plan          PayPlan
	EffectiveDate Date
	Notes         string
}

// =============================================================================
// PAY PLAN REPOSITORY
// =============================================================================

type PayPlanRepository struct {
	Store  PayPlanStore
	Logger *slog.Logger
}

func NewPayPlanRepository(store PayPlanStore, logger *slog.Logger) *PayPlanRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayPlanRepository{Store: store, Logger: logger}
}

// RulesForPlan returns the plan's active, valid rules ordered by
// (SortKey, CreatedAt). An empty category returns every category.
func (r *PayPlanRepository) RulesForPlan(ctx context.Context, planID PayPlanID, category RuleCategory) ([]Rule, error) {
	all, err := r.Store.Rules(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load rules for plan %s: %w", planID, err)
	}

	var rules []Rule
	for _, rule := range all {
		if !rule.Active {
			continue
		}
		if category != "" && rule.Category != category {
			continue
		}
		if err := rule.Validate(); err != nil {
			r.Logger.Warn("skipping invalid rule",
				slog.String("pay_plan_id", string(planID)),
				slog.String("rule_id", string(rule.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		rules = append(rules, rule)
	}

	SortRules(rules)
	return rules, nil
}

// CurrentPayPlan resolves the plan in effect for the person. With a nil
// date it returns the open-ended assignment.
func (r *PayPlanRepository) CurrentPayPlan(ctx context.Context, personID PersonID, asOf *Date) (*CurrentPlan, error) {
	assignments, err := r.Store.Assignments(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("load plan assignments for %s: %w", personID, err)
	}

	active := selectAssignment(assignments, asOf)
	if active == nil {
		return nil, nil
	}

	plan, err := r.Store.GetPayPlan(ctx, active.PayPlanID)
	if err != nil {
		return nil, fmt.Errorf("load pay plan %s: %w", active.PayPlanID, err)
	}
	if plan == nil {
		r.Logger.Warn("assignment references missing pay plan",
			slog.String("person_id", string(personID)),
			slog.String("pay_plan_id", string(active.PayPlanID)),
		)
		return nil, nil
	}

	return &CurrentPlan{
		Plan:          *plan,
		EffectiveDate: active.Range.From,
		Notes:         active.Notes,
	}, nil
}

// Assign starts a new plan for the person on from, ending any open
// assignment the day before.
func (r *PayPlanRepository) Assign(ctx context.Context, personID PersonID, planID PayPlanID, from Date, notes string) (PlanAssignment, error) {
	assignments, err := r.Store.Assignments(ctx, personID)
	if err != nil {
		return PlanAssignment{}, fmt.Errorf("load plan assignments for %s: %w", personID, err)
	}

	for _, a := range assignments {
		if !a.Range.IsOpen() {
			if a.Range.Contains(from) {
				return PlanAssignment{}, fmt.Errorf("%w: %s already covered by %s", ErrInvalidAssignment, from, a.ID)
			}
			continue
		}
		if !from.After(a.Range.From) {
			return PlanAssignment{}, fmt.Errorf("%w: %s does not follow open assignment starting %s",
				ErrInvalidAssignment, from, a.Range.From)
		}
		end := from.AddDays(-1)
		a.Range.To = &end
		if err := r.Store.SaveAssignment(ctx, a); err != nil {
			return PlanAssignment{}, fmt.Errorf("close assignment %s: %w", a.ID, err)
		}
	}

	next := PlanAssignment{
		ID:        uuid.NewString(),
		PersonID:  personID,
		PayPlanID: planID,
		Range:     EffectiveRange{From: from},
		Notes:     notes,
	}
	if err := r.Store.SaveAssignment(ctx, next); err != nil {
		return PlanAssignment{}, fmt.Errorf("save assignment: %w", err)
	}
	return next, nil
}

// selectAssignment picks the assignment covering asOf, or the open one when
// asOf is nil. Later starts win if data ever overlaps.
func selectAssignment(assignments []PlanAssignment, asOf *Date) *PlanAssignment {
	sorted := make([]PlanAssignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Range.From.After(sorted[j].Range.From)
	})

	for i := range sorted {
		a := sorted[i]
		if asOf == nil {
			if a.Range.IsOpen() {
				return &a
			}
			continue
		}
		if a.IsActive(*asOf) {
			return &a
		}
	}
	return nil
}
