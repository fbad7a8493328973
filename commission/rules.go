/*
rules.go - Commission rules and the rule evaluator

PURPOSE:
  A Rule says "for this payout scenario, under these conditions, pay this
  much". The Evaluator decides whether a rule applies to a deal/payee
  context and computes the amount.

EVALUATION ORDER (all must pass, unset conditions pass vacuously):
  1. Tier membership (payee tier must be set and allowed)
  2. Deal type membership (case-insensitive)
  3. Minimum system size (inclusive)
  4. Minimum price-per-unit (inclusive)
  5. Exact role match

CALC METHODS:
  flat_per_kw         rate x system size
  percentage_of_deal  rate / 100 x deal value
  flat_fee            rate

  Unknown methods yield zero and a data-integrity warning, never an error.

FIRST MATCH WINS:
  Applicable returns matching active rules ordered by (SortKey, CreatedAt).
  Downstream code uses the first element only.
*/
package commission

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE
// =============================================================================

// RuleCategory is the payout scenario a rule is written for.
type RuleCategory string

const (
	CategoryDirectSeller    RuleCategory = "direct_seller"
	CategoryDirectCloser    RuleCategory = "direct_closer"
	CategorySelfGen         RuleCategory = "self_gen"
	CategoryOverride        RuleCategory = "override"
	CategoryRecruitingBonus RuleCategory = "recruiting_bonus"
	CategoryDraw            RuleCategory = "draw"
)

// CalcMethod is how a matching rule turns deal facts into money.
type CalcMethod string

const (
	MethodFlatPerKW        CalcMethod = "flat_per_kw"
	MethodPercentageOfDeal CalcMethod = "percentage_of_deal"
	MethodFlatFee          CalcMethod = "flat_fee"
)

// Known reports whether the evaluator can compute an amount for m.
func (m CalcMethod) Known() bool {
	switch m {
	case MethodFlatPerKW, MethodPercentageOfDeal, MethodFlatFee:
		return true
	}
	return false
}

// OverrideSource is the relationship chain an override rule traverses.
type OverrideSource string

const (
	SourceNone            OverrideSource = "none"
	SourceManagerChain    OverrideSource = "manager_chain"
	SourceRecruiterChain  OverrideSource = "recruiter_chain"
	SourceOfficeHierarchy OverrideSource = "office_hierarchy"
)

// Conditions restrict when a rule applies. Zero values are unset.
type Conditions struct {
	Tiers           []Tier           `json:"tiers,omitempty" validate:"omitempty,dive,oneof=rookie veteran team_lead"`
	DealTypes       []string         `json:"deal_types,omitempty" validate:"omitempty,dive,required"`
	MinSystemSize   *decimal.Decimal `json:"min_system_size,omitempty" validate:"omitempty,gte=0"`
	MinPricePerUnit *decimal.Decimal `json:"min_price_per_unit,omitempty" validate:"omitempty,gte=0"`
}

// IsEmpty reports whether no condition is set.
func (c Conditions) IsEmpty() bool {
	return len(c.Tiers) == 0 && len(c.DealTypes) == 0 &&
		c.MinSystemSize == nil && c.MinPricePerUnit == nil
}

// Rule belongs to exactly one pay plan.
type Rule struct {
	ID         RuleID       `validate:"required"`
	PayPlanID  PayPlanID    `validate:"required"`
	Name       string
	Category   RuleCategory `validate:"required,oneof=direct_seller direct_closer self_gen override recruiting_bonus draw"`
	CalcMethod CalcMethod   `validate:"required"`
	Rate       decimal.Decimal
	RoleID     *RoleID
	Conditions Conditions

	// OverrideLevel 0 means any level.
	OverrideSource OverrideSource `validate:"omitempty,oneof=none manager_chain recruiter_chain office_hierarchy"`
	OverrideLevel  int            `validate:"gte=0"`

	Active    bool
	SortKey   int
	CreatedAt time.Time
}

// MatchesLevel reports whether an override rule is usable at depth.
func (r Rule) MatchesLevel(level int) bool {
	return r.OverrideLevel == 0 || r.OverrideLevel == level
}

// Snapshot is the copy of the rule embedded in audit payloads.
func (r Rule) Snapshot() RuleSnapshot {
	return RuleSnapshot{
		ID:         r.ID,
		Name:       r.Name,
		Category:   r.Category,
		CalcMethod: r.CalcMethod,
		Rate:       r.Rate,
	}
}

// Validate checks the rule's structure and condition set.
func (r Rule) Validate() error {
	return validateRule(r)
}

// SortRules orders rules by (SortKey, CreatedAt, ID) in place.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.SortKey != b.SortKey {
			return a.SortKey < b.SortKey
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// =============================================================================
// EVALUATION CONTEXT
// =============================================================================

// EvalContext is the deal/payee view a rule is evaluated against.
type EvalContext struct {
	DealType     string
	SystemSize   decimal.Decimal
	DealValue    decimal.Decimal
	PricePerUnit decimal.Decimal
	Tier         *Tier
	RoleID       *RoleID
}

// NewEvalContext builds a context from deal facts plus the tier and role
// that the rule conditions should see.
func NewEvalContext(d Deal, tier *Tier, role *RoleID) EvalContext {
	return EvalContext{
		DealType:     d.DealType,
		SystemSize:   d.SystemSize,
		DealValue:    d.DealValue,
		PricePerUnit: d.PricePerUnit,
		Tier:         tier,
		RoleID:       role,
	}
}

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluator applies rules to contexts. The zero value logs to slog.Default().
type Evaluator struct {
	Logger *slog.Logger
}

func (e *Evaluator) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Applies is a pure predicate over the rule's conditions and role.
func (e *Evaluator) Applies(r Rule, ctx EvalContext) bool {
	c := r.Conditions

	if len(c.Tiers) > 0 {
		if ctx.Tier == nil || !containsTier(c.Tiers, *ctx.Tier) {
			return false
		}
	}

	if len(c.DealTypes) > 0 && !containsFold(c.DealTypes, ctx.DealType) {
		return false
	}

	if c.MinSystemSize != nil && ctx.SystemSize.LessThan(*c.MinSystemSize) {
		return false
	}

	if c.MinPricePerUnit != nil && ctx.PricePerUnit.LessThan(*c.MinPricePerUnit) {
		return false
	}

	if r.RoleID != nil {
		if ctx.RoleID == nil || *ctx.RoleID != *r.RoleID {
			return false
		}
	}

	return true
}

// Amount computes the payout for a matching rule, rounded to cents.
func (e *Evaluator) Amount(r Rule, ctx EvalContext) decimal.Decimal {
	switch r.CalcMethod {
	case MethodFlatPerKW:
		return r.Rate.Mul(ctx.SystemSize).Round(2)
	case MethodPercentageOfDeal:
		return r.Rate.Div(hundred).Mul(ctx.DealValue).Round(2)
	case MethodFlatFee:
		return r.Rate.Round(2)
	default:
		e.logger().Warn("unknown calc method, paying zero",
			slog.String("rule_id", string(r.ID)),
			slog.String("calc_method", string(r.CalcMethod)),
		)
		return decimal.Zero
	}
}

// Applicable filters to active matching rules, ordered by (SortKey, CreatedAt).
func (e *Evaluator) Applicable(rules []Rule, ctx EvalContext) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.Active && e.Applies(r, ctx) {
			out = append(out, r)
		}
	}
	SortRules(out)
	return out
}

// First returns the winning rule, if any.
func (e *Evaluator) First(rules []Rule, ctx EvalContext) (Rule, bool) {
	matched := e.Applicable(rules, ctx)
	if len(matched) == 0 {
		return Rule{}, false
	}
	return matched[0], true
}

var hundred = decimal.NewFromInt(100)

func containsTier(tiers []Tier, t Tier) bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
