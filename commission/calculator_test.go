package commission_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
)

// =============================================================================
// DIRECT PAYOUTS
// =============================================================================

func TestRecalculate_SetterAndCloser(t *testing.T) {
	// GIVEN: A $25,000 / 9.8 kW solar deal
	//   - setter plan: $0.25/kW direct-seller
	//   - closer plan: 3% direct-closer
	// WHEN: Recalculating
	// THEN: $2.45 to the setter and $750.00 to the closer, with literal formulas
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter", SetterTier: ptr(commission.TierRookie)})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("setter-plan", []commission.Rule{{
		Name:       "Setter per kW",
		Category:   commission.CategoryDirectSeller,
		CalcMethod: commission.MethodFlatPerKW,
		Rate:       dec("0.25"),
	}}, setter)
	o.plan("closer-plan", []commission.Rule{{
		Name:       "Closer percent",
		Category:   commission.CategoryDirectCloser,
		CalcMethod: commission.MethodPercentageOfDeal,
		Rate:       dec("3"),
	}}, closer)
	dealID := o.deal(commission.Deal{ID: "deal-1", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := o.store.DealCommissions(o.ctx, dealID)
	require.NoError(t, err)
	got := byType(rows)

	seller := got[commission.TypeDirectSeller]
	assert.Equal(t, setter, seller.PersonID)
	assert.Equal(t, "2.45", seller.Amount.StringFixed(2))
	assert.Equal(t, "$0.25/kW × 9.8 kW = $2.45", seller.Details.Formula)
	assert.Equal(t, commission.PayPlanID("setter-plan"), seller.PayPlanID)
	assert.Equal(t, "Plan setter-plan", seller.Details.PayPlanName)
	assert.Equal(t, commission.TierRookie, *seller.Details.TierUsed)
	assert.Equal(t, commission.StatusPending, seller.Status)

	closerRow := got[commission.TypeDirectCloser]
	assert.Equal(t, closer, closerRow.PersonID)
	assert.Equal(t, "750.00", closerRow.Amount.StringFixed(2))
	assert.Equal(t, "3% × $25,000.00 = $750.00", closerRow.Details.Formula)
	assert.Nil(t, closerRow.Details.OverrideLevel)
	assert.True(t, closerRow.Details.Deductions.IsZero())
	assert.True(t, closerRow.Details.Bonuses.IsZero())
	assert.Equal(t, "solar", closerRow.Details.Deal.DealType)
}

func TestRecalculate_SelfGenIsExclusive(t *testing.T) {
	// GIVEN: One person as setter and closer with seller, closer and self-gen rules
	// WHEN: Recalculating
	// THEN: Exactly one self-gen commission, no direct rows
	o := newOrg(t)
	rep := o.person(commission.Person{ID: "rep", SetterTier: ptr(commission.TierVeteran)})
	o.plan("rep-plan", []commission.Rule{
		flatFee(commission.CategoryDirectSeller, "100"),
		flatFee(commission.CategoryDirectCloser, "200"),
		flatFee(commission.CategorySelfGen, "500"),
	}, rep)
	dealID := o.deal(commission.Deal{ID: "deal-sg", SetterID: rep, CloserID: rep})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rows, _ := o.store.DealCommissions(o.ctx, dealID)
	require.Len(t, rows, 1)
	assert.Equal(t, commission.TypeSelfGen, rows[0].Type)
	assert.Equal(t, "500.00", rows[0].Amount.StringFixed(2))
	assert.Equal(t, "flat fee = $500.00", rows[0].Details.Formula)
}

func TestRecalculate_SelfGenFlagWithoutMatchingRule(t *testing.T) {
	// GIVEN: A deal flagged self-gen whose setter plan has only direct rules
	// WHEN: Recalculating
	// THEN: Nothing is written
	o := newOrg(t)
	rep := o.person(commission.Person{ID: "rep"})
	o.plan("rep-plan", []commission.Rule{flatFee(commission.CategoryDirectSeller, "100")}, rep)
	dealID := o.deal(commission.Deal{ID: "deal-sg", IsSelfGen: true, SetterID: rep, CloserID: rep})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecalculate_FirstMatchWins(t *testing.T) {
	// GIVEN: Two applicable seller rules, the lower sort key paying $200
	// WHEN: Recalculating
	// THEN: The $200 rule is used
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	low := flatFee(commission.CategoryDirectSeller, "100")
	low.SortKey = 2
	high := flatFee(commission.CategoryDirectSeller, "200")
	high.SortKey = 1
	o.plan("p", []commission.Rule{low, high}, setter)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	_, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)

	rows, _ := o.store.DealCommissions(o.ctx, dealID)
	require.Len(t, rows, 1)
	assert.Equal(t, "200.00", rows[0].Amount.StringFixed(2))
}

func TestRecalculate_CloserTierConditions(t *testing.T) {
	// GIVEN: A closer rule restricted to veterans and a veteran closer
	// WHEN: Recalculating
	// THEN: The closer is paid and the tier is recorded
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter", SetterTier: ptr(commission.TierRookie)})
	closer := o.person(commission.Person{ID: "closer", SetterTier: ptr(commission.TierVeteran)})
	rule := flatFee(commission.CategoryDirectCloser, "300")
	rule.Conditions.Tiers = []commission.Tier{commission.TierVeteran}
	o.plan("closer-plan", []commission.Rule{rule}, closer)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	_, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)

	rows, _ := o.store.DealCommissions(o.ctx, dealID)
	require.Len(t, rows, 1)
	assert.Equal(t, commission.TierVeteran, *rows[0].Details.TierUsed)
}

func TestRecalculate_UsesPlanInEffectOnCloseDate(t *testing.T) {
	// GIVEN: Plan A until May, plan B from June; the deal closed in March
	// WHEN: Recalculating
	// THEN: Plan A pays
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("A", []commission.Rule{flatFee(commission.CategoryDirectSeller, "100")})
	o.plan("B", []commission.Rule{flatFee(commission.CategoryDirectSeller, "999")})
	o.assign(setter, "A", jan1, ptr(commission.MustParseDate("2024-05-31")))
	o.assign(setter, "B", commission.MustParseDate("2024-06-01"), nil)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	_, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)

	rows, _ := o.store.DealCommissions(o.ctx, dealID)
	require.Len(t, rows, 1)
	assert.Equal(t, commission.PayPlanID("A"), rows[0].PayPlanID)
}

// =============================================================================
// CHAIN OVERRIDES
// =============================================================================

func TestRecalculate_ManagerChainCappedAtFour(t *testing.T) {
	// GIVEN: A manager chain ten deep, every manager on an any-level override plan
	// WHEN: Recalculating
	// THEN: Exactly four manager overrides, levels 1..4
	o := newOrg(t)
	var managers []commission.PersonID
	for i := 10; i >= 1; i-- {
		p := commission.Person{ID: commission.PersonID(fmt.Sprintf("m%d", i))}
		if i < 10 {
			p.ReportsToID = ptr(commission.PersonID(fmt.Sprintf("m%d", i+1)))
		}
		managers = append(managers, o.person(p))
	}
	o.plan("mgr", []commission.Rule{override(commission.SourceManagerChain, 0, "50")}, managers...)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: ptr(commission.PersonID("m1"))})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	rows, _ := o.store.DealCommissions(o.ctx, dealID)
	got := byType(rows)
	for level := 1; level <= 4; level++ {
		row, ok := got[commission.ManagerOverrideType(level)]
		require.True(t, ok, "missing level %d", level)
		assert.Equal(t, commission.PersonID(fmt.Sprintf("m%d", level)), row.PersonID)
		require.NotNil(t, row.Details.OverrideLevel)
		assert.Equal(t, level, *row.Details.OverrideLevel)
		assert.Equal(t, commission.SourceManagerChain, row.Details.OverrideSource)
	}
}

func TestRecalculate_RecruiterChainCappedAtTwo(t *testing.T) {
	// GIVEN: A recruiter lineage ten deep
	// WHEN: Recalculating
	// THEN: Exactly two recruiter overrides
	o := newOrg(t)
	var recruiters []commission.PersonID
	for i := 10; i >= 1; i-- {
		p := commission.Person{ID: commission.PersonID(fmt.Sprintf("r%d", i))}
		if i < 10 {
			p.RecruitedByID = ptr(commission.PersonID(fmt.Sprintf("r%d", i+1)))
		}
		recruiters = append(recruiters, o.person(p))
	}
	o.plan("rec", []commission.Rule{override(commission.SourceRecruiterChain, 0, "25")}, recruiters...)
	setter := o.person(commission.Person{ID: "setter", RecruitedByID: ptr(commission.PersonID("r1"))})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got := byType(mustRows(t, o, dealID))
	assert.Equal(t, commission.PersonID("r1"), got[commission.RecruiterOverrideType(1)].PersonID)
	assert.Equal(t, commission.PersonID("r2"), got[commission.RecruiterOverrideType(2)].PersonID)
}

func TestRecalculate_ConfiguredDepths(t *testing.T) {
	// GIVEN: A five-deep manager chain and a calculator limited to depth 2
	// WHEN: Recalculating
	// THEN: Two manager overrides
	o := newOrg(t)
	var managers []commission.PersonID
	for i := 5; i >= 1; i-- {
		p := commission.Person{ID: commission.PersonID(fmt.Sprintf("m%d", i))}
		if i < 5 {
			p.ReportsToID = ptr(commission.PersonID(fmt.Sprintf("m%d", i+1)))
		}
		managers = append(managers, o.person(p))
	}
	o.plan("mgr", []commission.Rule{override(commission.SourceManagerChain, 0, "10")}, managers...)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: ptr(commission.PersonID("m1"))})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	calc := commission.NewCalculator(o.store, commission.CalculatorConfig{MaxManagerDepth: 2})
	count, err := calc.Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecalculate_ManagerWithoutPlanIsSkipped(t *testing.T) {
	// GIVEN: setter -> m1 (no plan) -> m2 (override plan)
	// WHEN: Recalculating
	// THEN: Only m2 is paid, tagged level 2
	o := newOrg(t)
	m2 := o.person(commission.Person{ID: "m2"})
	o.person(commission.Person{ID: "m1", ReportsToID: &m2})
	o.plan("mgr", []commission.Rule{override(commission.SourceManagerChain, 0, "75")}, m2)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: ptr(commission.PersonID("m1"))})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rows := mustRows(t, o, dealID)
	assert.Equal(t, commission.ManagerOverrideType(2), rows[0].Type)
	assert.Equal(t, m2, rows[0].PersonID)
}

func TestRecalculate_LevelSpecificOverrideRules(t *testing.T) {
	// GIVEN: Two managers on a plan whose only override pays at level 2
	// WHEN: Recalculating
	// THEN: Only the level 2 manager is paid
	o := newOrg(t)
	m2 := o.person(commission.Person{ID: "m2"})
	m1 := o.person(commission.Person{ID: "m1", ReportsToID: &m2})
	o.plan("mgr", []commission.Rule{override(commission.SourceManagerChain, 2, "40")}, m1, m2)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: &m1})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	assert.Equal(t, m2, mustRows(t, o, dealID)[0].PersonID)
}

func TestRecalculate_OverrideConditionsSeeSetterTier(t *testing.T) {
	// GIVEN: A rookie setter and a veteran manager whose override requires rookie
	// WHEN: Recalculating
	// THEN: The manager is paid and the recorded tier is the setter's
	o := newOrg(t)
	mgr := o.person(commission.Person{ID: "mgr", SetterTier: ptr(commission.TierVeteran)})
	rule := override(commission.SourceManagerChain, 0, "60")
	rule.Conditions.Tiers = []commission.Tier{commission.TierRookie}
	o.plan("mgr-plan", []commission.Rule{rule}, mgr)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: &mgr, SetterTier: ptr(commission.TierRookie)})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	assert.Equal(t, commission.TierRookie, *mustRows(t, o, dealID)[0].Details.TierUsed)
}

func TestRecalculate_ChainCycleStops(t *testing.T) {
	// GIVEN: setter -> m1 -> m2 -> m1
	// WHEN: Recalculating
	// THEN: m1 and m2 are each paid once
	o := newOrg(t)
	m1ID, m2ID := commission.PersonID("m1"), commission.PersonID("m2")
	o.person(commission.Person{ID: m1ID, ReportsToID: &m2ID})
	o.person(commission.Person{ID: m2ID, ReportsToID: &m1ID})
	o.plan("mgr", []commission.Rule{override(commission.SourceManagerChain, 0, "10")}, m1ID, m2ID)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: &m1ID})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecalculate_DanglingManagerEndsChain(t *testing.T) {
	// GIVEN: A setter whose manager id no longer resolves
	// WHEN: Recalculating
	// THEN: The deal still pays its direct rows
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: ptr(commission.PersonID("gone"))})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("p", []commission.Rule{flatFee(commission.CategoryDirectSeller, "10")}, setter)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecalculate_SetterWithoutPlanStillPaysOverrides(t *testing.T) {
	// GIVEN: A setter with no pay plan, and a manager with an override plan
	// WHEN: Recalculating
	// THEN: No direct rows, one manager override
	o := newOrg(t)
	mgr := o.person(commission.Person{ID: "mgr"})
	o.plan("mgr-plan", []commission.Rule{override(commission.SourceManagerChain, 1, "80")}, mgr)
	setter := o.person(commission.Person{ID: "setter", ReportsToID: &mgr})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	require.NoError(t, o.store.DeleteDealCommissions(o.ctx, dealID))
	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rows := mustRows(t, o, dealID)
	assert.Equal(t, commission.ManagerOverrideType(1), rows[0].Type)
}

// =============================================================================
// OFFICE HIERARCHY
// =============================================================================

func TestRecalculate_OfficeHierarchy(t *testing.T) {
	// GIVEN: An office with AD, regional, divisional and both VP kinds
	// WHEN: Recalculating
	// THEN: Four office overrides, the VP being the division-scoped one
	o := newOrg(t)
	o.office("off-1", "reg-1", "div-1")
	leaders := []commission.PersonID{
		o.person(commission.Person{ID: "ad"}),
		o.person(commission.Person{ID: "rvp"}),
		o.person(commission.Person{ID: "dvp"}),
		o.person(commission.Person{ID: "vp-div"}),
		o.person(commission.Person{ID: "vp-co"}),
	}
	o.plan("leader-plan", []commission.Rule{override(commission.SourceOfficeHierarchy, 0, "20")}, leaders...)

	o.leader(commission.LeadershipAssignment{ID: "l1", PersonID: "ad", Role: commission.LeadAreaDirector, OfficeID: ptr(commission.OfficeID("off-1"))})
	o.leader(commission.LeadershipAssignment{ID: "l2", PersonID: "rvp", Role: commission.LeadRegional, RegionID: ptr(commission.RegionID("reg-1"))})
	o.leader(commission.LeadershipAssignment{ID: "l3", PersonID: "dvp", Role: commission.LeadDivisional, DivisionID: ptr(commission.DivisionID("div-1"))})
	o.leader(commission.LeadershipAssignment{ID: "l4", PersonID: "vp-co", Role: commission.LeadVP})
	o.leader(commission.LeadershipAssignment{ID: "l5", PersonID: "vp-div", Role: commission.LeadVP, DivisionID: ptr(commission.DivisionID("div-1"))})

	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer, OfficeID: ptr(commission.OfficeID("off-1"))})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	got := byType(mustRows(t, o, dealID))
	assert.Equal(t, commission.PersonID("ad"), got[commission.OfficeOverrideType(commission.LeadAreaDirector)].PersonID)
	assert.Equal(t, commission.PersonID("rvp"), got[commission.OfficeOverrideType(commission.LeadRegional)].PersonID)
	assert.Equal(t, commission.PersonID("dvp"), got[commission.OfficeOverrideType(commission.LeadDivisional)].PersonID)

	vp := got[commission.OfficeOverrideType(commission.LeadVP)]
	assert.Equal(t, commission.PersonID("vp-div"), vp.PersonID)
	require.NotNil(t, vp.Details.OverrideLevel)
	assert.Equal(t, 4, *vp.Details.OverrideLevel)
}

func TestRecalculate_CompanyWideVPFallback(t *testing.T) {
	// GIVEN: Only a company-wide VP
	// WHEN: Recalculating a deal in a divisional office
	// THEN: The company-wide VP is paid
	o := newOrg(t)
	o.office("off-1", "", "div-1")
	vp := o.person(commission.Person{ID: "vp-co"})
	o.plan("vp-plan", []commission.Rule{override(commission.SourceOfficeHierarchy, 4, "15")}, vp)
	o.leader(commission.LeadershipAssignment{ID: "l1", PersonID: vp, Role: commission.LeadVP})

	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer, OfficeID: ptr(commission.OfficeID("off-1"))})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	assert.Equal(t, vp, mustRows(t, o, dealID)[0].PersonID)
}

func TestRecalculate_ExpiredLeadershipIgnored(t *testing.T) {
	// GIVEN: An AD whose assignment ended before the deal closed
	// WHEN: Recalculating
	// THEN: No office override
	o := newOrg(t)
	o.office("off-1", "", "")
	ad := o.person(commission.Person{ID: "ad"})
	o.plan("ad-plan", []commission.Rule{override(commission.SourceOfficeHierarchy, 1, "15")}, ad)
	o.leader(commission.LeadershipAssignment{
		ID: "l1", PersonID: ad, Role: commission.LeadAreaDirector, OfficeID: ptr(commission.OfficeID("off-1")),
		Range: commission.EffectiveRange{From: jan1, To: ptr(commission.MustParseDate("2024-02-01"))},
	})

	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer, OfficeID: ptr(commission.OfficeID("off-1"))})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecalculate_NoOfficeNoOfficeOverrides(t *testing.T) {
	// GIVEN: A leadership structure, and a deal without an office
	// WHEN: Recalculating
	// THEN: Zero office overrides
	o := newOrg(t)
	o.office("off-1", "", "")
	ad := o.person(commission.Person{ID: "ad"})
	o.plan("ad-plan", []commission.Rule{override(commission.SourceOfficeHierarchy, 0, "15")}, ad)
	o.leader(commission.LeadershipAssignment{ID: "l1", PersonID: ad, Role: commission.LeadAreaDirector, OfficeID: ptr(commission.OfficeID("off-1"))})
	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	count, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// FAILURES, IDEMPOTENCE, CONCURRENCY
// =============================================================================

func TestRecalculate_MissingDeal(t *testing.T) {
	o := newOrg(t)
	_, err := o.calculator().Recalculate(o.ctx, "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrDealNotFound)
	assert.True(t, commission.IsNotFound(err))
}

func TestRecalculate_MissingPartyWritesNothing(t *testing.T) {
	// GIVEN: A deal with an existing commission set and a closer that does not exist
	// WHEN: Recalculating
	// THEN: Fatal error naming the closer, prior set untouched
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: "ghost"})
	_, err := o.store.ReplaceDealCommissions(o.ctx, dealID, []commission.Commission{{ID: "old", DealID: dealID, PersonID: setter}})
	require.NoError(t, err)

	_, err = o.calculator().Recalculate(o.ctx, dealID)
	require.Error(t, err)
	assert.ErrorIs(t, err, commission.ErrPersonNotFound)

	var nf *commission.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "closer", nf.Kind)

	rows := mustRows(t, o, dealID)
	require.Len(t, rows, 1)
	assert.Equal(t, commission.CommissionID("old"), rows[0].ID)
}

func TestRecalculate_MissingSetter(t *testing.T) {
	o := newOrg(t)
	closer := o.person(commission.Person{ID: "closer"})
	dealID := o.deal(commission.Deal{ID: "d", SetterID: "ghost", CloserID: closer})

	_, err := o.calculator().Recalculate(o.ctx, dealID)
	var nf *commission.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "setter", nf.Kind)
}

func TestRecalculate_Idempotent(t *testing.T) {
	// GIVEN: A deal with direct and override payouts
	// WHEN: Recalculating twice
	// THEN: Same count, same payees, types and amounts
	o := newOrg(t)
	mgr := o.person(commission.Person{ID: "mgr"})
	setter := o.person(commission.Person{ID: "setter", ReportsToID: &mgr})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("p", []commission.Rule{
		flatFee(commission.CategoryDirectSeller, "100"),
		flatFee(commission.CategoryDirectCloser, "200"),
		override(commission.SourceManagerChain, 0, "30"),
	}, setter, closer, mgr)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	calc := o.calculator()
	first, err := calc.Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	firstRows := mustRows(t, o, dealID)

	second, err := calc.Recalculate(o.ctx, dealID)
	require.NoError(t, err)
	secondRows := mustRows(t, o, dealID)

	assert.Equal(t, 3, first)
	assert.Equal(t, first, second)
	assert.Equal(t, fingerprint(firstRows), fingerprint(secondRows))
}

func TestRecalculate_ConcurrentSameDeal(t *testing.T) {
	// GIVEN: One deal recalculated from many goroutines
	// WHEN: All finish
	// THEN: Exactly one set of rows remains
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("p", []commission.Rule{
		flatFee(commission.CategoryDirectSeller, "100"),
		flatFee(commission.CategoryDirectCloser, "200"),
	}, setter, closer)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	calc := o.calculator()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := calc.Recalculate(context.Background(), dealID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, mustRows(t, o, dealID), 2)
}

func TestRecalculate_SnapshotRecorded(t *testing.T) {
	// GIVEN: A paid setter
	// WHEN: Recalculating
	// THEN: The row references the setter's snapshot for the close date
	o := newOrg(t)
	setter := o.person(commission.Person{ID: "setter"})
	closer := o.person(commission.Person{ID: "closer"})
	o.plan("p", []commission.Rule{flatFee(commission.CategoryDirectSeller, "100")}, setter)
	dealID := o.deal(commission.Deal{ID: "d", SetterID: setter, CloserID: closer})

	_, err := o.calculator().Recalculate(o.ctx, dealID)
	require.NoError(t, err)

	snap, err := o.store.GetSnapshot(o.ctx, setter, dealDay)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, snap.ID, mustRows(t, o, dealID)[0].Details.SnapshotID)
	require.NotNil(t, snap.PayPlanID)
	assert.Equal(t, commission.PayPlanID("p"), *snap.PayPlanID)
}

func mustRows(t *testing.T, o *org, id commission.DealID) []commission.Commission {
	t.Helper()
	rows, err := o.store.DealCommissions(o.ctx, id)
	require.NoError(t, err)
	return rows
}

func fingerprint(rows []commission.Commission) map[string]string {
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[string(r.PersonID)+"/"+string(r.Type)] = r.Amount.StringFixed(2)
	}
	return out
}
