/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario seeds the expected organisation and that the
	recalculated commission sets match hand-computed amounts. These double
	as end-to-end tests of the calculator over realistic data.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/store/sqlite"
)

func amountsByType(t *testing.T, s Store, dealID commission.DealID) map[commission.CommissionType]string {
	t.Helper()
	rows, err := s.DealCommissions(context.Background(), dealID)
	require.NoError(t, err)
	out := make(map[commission.CommissionType]string, len(rows))
	for _, r := range rows {
		out[r.Type] = r.Amount.StringFixed(2)
	}
	return out
}

func TestScenario_SolarOffice(t *testing.T) {
	// GIVEN: The solar-office scenario
	// WHEN: Seeding it
	// THEN: Every line of the org is paid with the expected amounts
	s := setupTestServer(t)
	results, err := s.h.Seed(context.Background(), "solar-office")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Zero(t, commission.Failed(results))

	assert.Equal(t, map[commission.CommissionType]string{
		commission.TypeDirectSeller:                                "2.45",
		commission.TypeDirectCloser:                                "750.00",
		commission.ManagerOverrideType(1):                          "0.98",
		commission.ManagerOverrideType(2):                          "0.49",
		commission.RecruiterOverrideType(1):                        "0.29",
		commission.RecruiterOverrideType(2):                        "0.10",
		commission.OfficeOverrideType(commission.LeadAreaDirector): "0.39",
		commission.OfficeOverrideType(commission.LeadRegional):     "0.29",
		commission.OfficeOverrideType(commission.LeadDivisional):   "0.20",
		commission.OfficeOverrideType(commission.LeadVP):           "0.10",
	}, amountsByType(t, s.store, "deal-1001"))

	selfGen := amountsByType(t, s.store, "deal-1002")
	assert.Len(t, selfGen, 7)
	assert.Equal(t, "6.00", selfGen[commission.TypeSelfGen])
	assert.NotContains(t, selfGen, commission.TypeDirectSeller)
	assert.NotContains(t, selfGen, commission.TypeDirectCloser)
	assert.Equal(t, "1.20", selfGen[commission.ManagerOverrideType(1)])
	assert.Equal(t, "0.36", selfGen[commission.RecruiterOverrideType(1)])
}

func TestScenario_PlanChange(t *testing.T) {
	s := setupTestServer(t)
	_, err := s.h.Seed(context.Background(), "plan-change")
	require.NoError(t, err)

	assert.Equal(t, "2.00", amountsByType(t, s.store, "deal-2001")[commission.TypeDirectSeller])
	assert.Equal(t, "2.80", amountsByType(t, s.store, "deal-2002")[commission.TypeDirectSeller])
}

func TestScenario_BrokenChain(t *testing.T) {
	// GIVEN: A setter whose manager is gone and whose recruiter loops back
	// WHEN: Seeding the scenario
	// THEN: Direct pay plus the one reachable recruiter level, nothing else
	s := setupTestServer(t)
	results, err := s.h.Seed(context.Background(), "broken-chain")
	require.NoError(t, err)
	assert.Zero(t, commission.Failed(results))

	assert.Equal(t, map[commission.CommissionType]string{
		commission.TypeDirectSeller:         "2.50",
		commission.TypeDirectCloser:         "840.00",
		commission.RecruiterOverrideType(1): "0.30",
	}, amountsByType(t, s.store, "deal-3001"))
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.h.Seed(ctx, "solar-office")
	require.NoError(t, err)
	_, err = s.h.Seed(ctx, "plan-change")
	require.NoError(t, err)

	ids, err := s.store.ListDealIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []commission.DealID{"deal-2001", "deal-2002"}, ids)

	rows, err := s.store.DealCommissions(ctx, "deal-1001")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestScenario_OnSQLite(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewHandler(db, commission.NewCalculator(db, commission.CalculatorConfig{}), nil, nil)
	results, err := h.Seed(context.Background(), "solar-office")
	require.NoError(t, err)
	assert.Zero(t, commission.Failed(results))

	assert.Equal(t, "750.00", amountsByType(t, db, "deal-1001")[commission.TypeDirectCloser])
	assert.Len(t, amountsByType(t, db, "deal-1002"), 7)
}

func TestLoadScenario_HTTP(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(Scenarios()))

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "plan-change"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plan-change", decode[ScenarioDTO](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ids, err := s.store.ListDealIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
