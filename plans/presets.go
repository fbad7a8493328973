/*
Package plans provides stock pay-plan definitions.

These functions build JSON pay plans for the common compensation shapes
(tiered setter pay, percentage closers, self-gen bonuses, and manager,
recruiter and office overrides). They construct JSON strings directly so
the factory package can parse them without an import cycle.

A person holds exactly one plan at a time, so plans are composed: a field
manager's plan carries both their own direct rules and the override rules
they earn on their team's deals. FieldPlanJSON builds that combination.

USAGE:
  import "github.com/warp/commission-engine/plans"

  jsonStr := plans.SolarSetterJSON("solar-setter", "Solar Setter", 0.25, 0.35)
  plan, rules, err := factory.NewPayPlanFactory().ParsePayPlan(jsonStr)
*/
package plans

import (
	"encoding/json"
	"fmt"
)

// SolarSetterJSON returns JSON for a tiered per-kW setter plan on solar deals.
// Team leads earn the veteran rate; anyone without a tier falls through to the
// rookie rate.
func SolarSetterJSON(id, name string, rookieRate, veteranRate float64) string {
	pj := map[string]interface{}{
		"id":          id,
		"name":        name,
		"description": "Per-kW setter pay by tier",
		"rules":       setterRules(id, rookieRate, veteranRate),
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// CloserPercentJSON returns JSON for a closer paid a percentage of deal value.
func CloserPercentJSON(id, name string, percent float64) string {
	pj := map[string]interface{}{
		"id":   id,
		"name": name,
		"rules": []map[string]interface{}{
			closerRule(id, percent),
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// SelfGenJSON returns JSON for a per-kW self-generated deal bonus.
func SelfGenJSON(id, name string, rate float64) string {
	pj := map[string]interface{}{
		"id":   id,
		"name": name,
		"rules": []map[string]interface{}{
			selfGenRule(id, rate),
		},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// ManagerOverrideJSON returns JSON for per-kW manager overrides, one rate per
// level starting at the setter's direct manager.
func ManagerOverrideJSON(id, name string, perLevel ...float64) string {
	pj := map[string]interface{}{
		"id":    id,
		"name":  name,
		"rules": overrideRules(id, "manager_chain", perLevel),
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// RecruiterOverrideJSON returns JSON for per-kW recruiter overrides, one rate
// per level starting at whoever recruited the setter.
func RecruiterOverrideJSON(id, name string, perLevel ...float64) string {
	pj := map[string]interface{}{
		"id":    id,
		"name":  name,
		"rules": overrideRules(id, "recruiter_chain", perLevel),
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// OfficeOverrideJSON returns JSON for office-hierarchy overrides. The rates
// apply to the area director, regional, divisional and VP levels in order.
func OfficeOverrideJSON(id, name string, areaDirector, regional, divisional, vp float64) string {
	pj := map[string]interface{}{
		"id":   id,
		"name": name,
		"rules": overrideRules(id, "office_hierarchy",
			[]float64{areaDirector, regional, divisional, vp}),
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// DealerFeeJSON returns JSON for a flat fee per deal, limited to deals priced
// at or above minPricePerUnit.
func DealerFeeJSON(id, name string, fee, minPricePerUnit float64) string {
	pj := map[string]interface{}{
		"id":   id,
		"name": name,
		"rules": []map[string]interface{}{{
			"id":          id + "-fee",
			"name":        "Dealer fee",
			"category":    "direct_seller",
			"calc_method": "flat_fee",
			"rate":        fee,
			"conditions": map[string]interface{}{
				"min_price_per_unit": minPricePerUnit,
			},
		}},
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// FieldRates configures FieldPlanJSON.
type FieldRates struct {
	RookieSetter  float64
	VeteranSetter float64
	CloserPercent float64
	SelfGen       float64
	Manager       []float64
	Recruiter     []float64
	Office        []float64
}

// FieldPlanJSON returns JSON for a combined field plan: setter, closer and
// self-gen rules plus whichever override ladders are configured.
func FieldPlanJSON(id, name string, r FieldRates) string {
	rules := setterRules(id, r.RookieSetter, r.VeteranSetter)
	rules = append(rules, closerRule(id, r.CloserPercent), selfGenRule(id, r.SelfGen))
	rules = append(rules, overrideRules(id, "manager_chain", r.Manager)...)
	rules = append(rules, overrideRules(id, "recruiter_chain", r.Recruiter)...)
	rules = append(rules, overrideRules(id, "office_hierarchy", r.Office)...)

	pj := map[string]interface{}{
		"id":          id,
		"name":        name,
		"description": "Field rep plan with overrides",
		"rules":       rules,
	}
	b, _ := json.MarshalIndent(pj, "", "  ")
	return string(b)
}

// =============================================================================
// RULE FRAGMENTS
// =============================================================================

func setterRules(id string, rookieRate, veteranRate float64) []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id":          id + "-veteran",
			"name":        "Veteran setter per kW",
			"category":    "direct_seller",
			"calc_method": "flat_per_kw",
			"rate":        veteranRate,
			"conditions": map[string]interface{}{
				"tiers":      []string{"veteran", "team_lead"},
				"deal_types": []string{"solar"},
			},
			"sort_key": 10,
		},
		{
			"id":          id + "-rookie",
			"name":        "Rookie setter per kW",
			"category":    "direct_seller",
			"calc_method": "flat_per_kw",
			"rate":        rookieRate,
			"conditions": map[string]interface{}{
				"deal_types": []string{"solar"},
			},
			"sort_key": 20,
		},
	}
}

func closerRule(id string, percent float64) map[string]interface{} {
	return map[string]interface{}{
		"id":          id + "-closer",
		"name":        "Closer percentage",
		"category":    "direct_closer",
		"calc_method": "percentage_of_deal",
		"rate":        percent,
	}
}

func selfGenRule(id string, rate float64) map[string]interface{} {
	return map[string]interface{}{
		"id":          id + "-self-gen",
		"name":        "Self-gen per kW",
		"category":    "self_gen",
		"calc_method": "flat_per_kw",
		"rate":        rate,
	}
}

func overrideRules(id, source string, perLevel []float64) []map[string]interface{} {
	rules := make([]map[string]interface{}, 0, len(perLevel))
	for i, rate := range perLevel {
		level := i + 1
		rules = append(rules, map[string]interface{}{
			"id":              fmt.Sprintf("%s-%s-l%d", id, source, level),
			"name":            fmt.Sprintf("%s level %d", source, level),
			"category":        "override",
			"calc_method":     "flat_per_kw",
			"rate":            rate,
			"override_source": source,
			"override_level":  level,
		})
	}
	return rules
}
