package plans_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/plans"
)

func TestPresets_Parse(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		rules int
	}{
		{"solar setter", plans.SolarSetterJSON("s", "Setter", 0.25, 0.35), 2},
		{"closer percent", plans.CloserPercentJSON("c", "Closer", 3), 1},
		{"self gen", plans.SelfGenJSON("g", "Self Gen", 0.5), 1},
		{"manager override", plans.ManagerOverrideJSON("m", "Managers", 0.1, 0.05, 0.02), 3},
		{"recruiter override", plans.RecruiterOverrideJSON("r", "Recruiters", 0.03, 0.01), 2},
		{"office override", plans.OfficeOverrideJSON("o", "Office", 0.04, 0.03, 0.02, 0.01), 4},
		{"dealer fee", plans.DealerFeeJSON("d", "Dealer", 500, 3.0), 1},
		{"field plan", plans.FieldPlanJSON("f", "Field", plans.FieldRates{
			RookieSetter: 0.25, VeteranSetter: 0.35, CloserPercent: 3, SelfGen: 0.5,
			Manager: []float64{0.1}, Recruiter: []float64{0.03, 0.01},
		}), 7},
	}

	f := factory.NewPayPlanFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rules, err := f.ParsePayPlan(tt.json)
			require.NoError(t, err)
			assert.Len(t, rules, tt.rules)
		})
	}
}

func TestOfficeOverrideJSON_Levels(t *testing.T) {
	_, rules, err := factory.NewPayPlanFactory().ParsePayPlan(
		plans.OfficeOverrideJSON("o", "Office", 0.04, 0.03, 0.02, 0.01))
	require.NoError(t, err)

	for i, r := range rules {
		assert.Equal(t, commission.SourceOfficeHierarchy, r.OverrideSource)
		assert.Equal(t, i+1, r.OverrideLevel)
	}
	assert.True(t, rules[3].Rate.Equal(decimal.RequireFromString("0.01")))
}

func TestSolarSetterJSON_TierOrdering(t *testing.T) {
	// GIVEN: The stock setter plan installed
	// WHEN: Evaluating it for a veteran and for an untiered rep
	// THEN: The veteran rule is tried first, the rookie rule catches the rest
	ctx := context.Background()
	mem := store.NewMemory()
	plan, err := factory.NewPayPlanFactory().Install(ctx, mem, plans.SolarSetterJSON("s", "Setter", 0.25, 0.35))
	require.NoError(t, err)

	rules, err := commission.NewPayPlanRepository(mem, nil).RulesForPlan(ctx, plan.ID, commission.CategoryDirectSeller)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	deal := commission.Deal{
		DealType:   "solar",
		SystemSize: decimal.RequireFromString("10"),
		DealValue:  decimal.RequireFromString("30000"),
	}
	veteran := commission.TierVeteran
	eval := &commission.Evaluator{}

	rule, ok := eval.First(rules, commission.NewEvalContext(deal, &veteran, nil))
	require.True(t, ok)
	assert.Equal(t, "3.50", eval.Amount(rule, commission.NewEvalContext(deal, &veteran, nil)).StringFixed(2))

	rule, ok = eval.First(rules, commission.NewEvalContext(deal, nil, nil))
	require.True(t, ok)
	assert.Equal(t, commission.RuleID("s-rookie"), rule.ID)
}
