package commission_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	jan1    = commission.MustParseDate("2024-01-01")
	dealDay = commission.MustParseDate("2024-03-15")
	epoch   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

// org builds reference data on a memory store.
type org struct {
	t     *testing.T
	ctx   context.Context
	store *store.Memory
	seq   int
}

func newOrg(t *testing.T) *org {
	t.Helper()
	return &org{t: t, ctx: context.Background(), store: store.NewMemory()}
}

func (o *org) calculator() *commission.Calculator {
	return commission.NewCalculator(o.store, commission.CalculatorConfig{
		Clock: commission.FixedClock{Day: dealDay},
		Now:   func() time.Time { return epoch },
	})
}

func (o *org) person(p commission.Person) commission.PersonID {
	o.t.Helper()
	if p.Name == "" {
		p.Name = string(p.ID)
	}
	require.NoError(o.t, o.store.SavePerson(o.ctx, p))
	return p.ID
}

// plan saves a plan with the given rules and assigns it to each person
// from jan1.
func (o *org) plan(id commission.PayPlanID, rules []commission.Rule, people ...commission.PersonID) {
	o.t.Helper()
	require.NoError(o.t, o.store.SavePayPlan(o.ctx, commission.PayPlan{ID: id, Name: "Plan " + string(id)}))
	for i, r := range rules {
		if r.ID == "" {
			r.ID = commission.RuleID(fmt.Sprintf("%s-r%d", id, i))
		}
		r.PayPlanID = id
		r.Active = true
		if r.CreatedAt.IsZero() {
			r.CreatedAt = epoch.Add(time.Duration(i) * time.Minute)
		}
		require.NoError(o.t, o.store.SaveRule(o.ctx, r))
	}
	for _, p := range people {
		o.assign(p, id, jan1, nil)
	}
}

func (o *org) assign(person commission.PersonID, plan commission.PayPlanID, from commission.Date, to *commission.Date) {
	o.t.Helper()
	o.seq++
	require.NoError(o.t, o.store.SaveAssignment(o.ctx, commission.PlanAssignment{
		ID:        fmt.Sprintf("pa-%d", o.seq),
		PersonID:  person,
		PayPlanID: plan,
		Range:     commission.EffectiveRange{From: from, To: to},
	}))
}

func (o *org) deal(d commission.Deal) commission.DealID {
	o.t.Helper()
	if d.DealType == "" {
		d.DealType = "solar"
	}
	if d.SystemSize.IsZero() {
		d.SystemSize = dec("9.8")
	}
	if d.DealValue.IsZero() {
		d.DealValue = dec("25000")
	}
	if d.PricePerUnit.IsZero() {
		d.PricePerUnit = dec("2.55")
	}
	if d.CloseDate == nil && d.SaleDate == nil {
		d.CloseDate = ptr(dealDay)
	}
	require.NoError(o.t, o.store.SaveDeal(o.ctx, d))
	return d.ID
}

func (o *org) office(id commission.OfficeID, region commission.RegionID, division commission.DivisionID) {
	o.t.Helper()
	off := commission.Office{ID: id, Name: string(id)}
	if region != "" {
		off.RegionID = &region
	}
	if division != "" {
		off.DivisionID = &division
	}
	require.NoError(o.t, o.store.SaveOffice(o.ctx, off))
}

func (o *org) leader(a commission.LeadershipAssignment) {
	o.t.Helper()
	if a.Range.From.IsZero() {
		a.Range.From = jan1
	}
	require.NoError(o.t, o.store.SaveLeadership(o.ctx, a))
}

func flatFee(category commission.RuleCategory, amount string) commission.Rule {
	return commission.Rule{
		Name:       string(category) + " flat fee",
		Category:   category,
		CalcMethod: commission.MethodFlatFee,
		Rate:       dec(amount),
	}
}

func override(source commission.OverrideSource, level int, amount string) commission.Rule {
	r := flatFee(commission.CategoryOverride, amount)
	r.OverrideSource = source
	r.OverrideLevel = level
	return r
}

func byType(rows []commission.Commission) map[commission.CommissionType]commission.Commission {
	out := make(map[commission.CommissionType]commission.Commission, len(rows))
	for _, r := range rows {
		out[r.Type] = r
	}
	return out
}
