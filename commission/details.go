package commission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// =============================================================================
// CALC DETAILS - Audit payload attached to every commission
// =============================================================================

// CalcDetails is a denormalised explanation of one commission row. Every
// field can be rebuilt from the referenced rule and snapshot.
type CalcDetails struct {
	Formula     string          `json:"formula"`
	Result      decimal.Decimal `json:"result"`
	PayPlanID   PayPlanID       `json:"pay_plan_id"`
	PayPlanName string          `json:"pay_plan_name"`
	Rule        RuleSnapshot    `json:"rule"`
	SnapshotID  SnapshotID      `json:"snapshot_id"`
	TierUsed    *Tier           `json:"tier_used"`
	Deal        DealFacts       `json:"deal"`

	// Adjustments are zero until deductions and bonuses exist.
	Deductions decimal.Decimal `json:"deductions"`
	Bonuses    decimal.Decimal `json:"bonuses"`

	OverrideSource OverrideSource `json:"override_source,omitempty"`
	OverrideLevel  *int           `json:"override_level,omitempty"`
}

// RuleSnapshot is the rule as it was when the commission was computed.
type RuleSnapshot struct {
	ID         RuleID          `json:"id"`
	Name       string          `json:"name"`
	Category   RuleCategory    `json:"category"`
	CalcMethod CalcMethod      `json:"calc_method"`
	Rate       decimal.Decimal `json:"rate"`
}

// DealFacts is the compact deal copy.
type DealFacts struct {
	DealType     string          `json:"deal_type"`
	DealValue    decimal.Decimal `json:"deal_value"`
	SystemSize   decimal.Decimal `json:"system_size"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// =============================================================================
// FORMULA RENDERING
// =============================================================================

var usd = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders d as "$25,000.00". Digits come from the decimal itself,
// so the text always matches the stored amount.
func FormatUSD(d decimal.Decimal) string {
	whole, cents, _ := strings.Cut(d.Abs().StringFixed(2), ".")
	sign := ""
	if d.Round(2).IsNegative() {
		sign = "-"
	}
	return sign + "$" + groupThousands(whole) + "." + cents
}

func groupThousands(digits string) string {
	if n, err := strconv.ParseInt(digits, 10, 64); err == nil {
		return usd.Sprintf("%d", n)
	}
	// Beyond int64; group by hand.
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatRate keeps sub-cent per-unit rates exact.
func formatRate(rate decimal.Decimal) string {
	if rate.Exponent() < -2 && !rate.Equal(rate.Round(2)) {
		return "$" + rate.String()
	}
	return FormatUSD(rate)
}

// Formula renders the human-readable computation, e.g.
// "$0.25/kW × 9.8 kW = $2.45" or "3% × $25,000.00 = $750.00".
func Formula(r Rule, ctx EvalContext, result decimal.Decimal) string {
	switch r.CalcMethod {
	case MethodFlatPerKW:
		return fmt.Sprintf("%s/kW × %s kW = %s", formatRate(r.Rate), ctx.SystemSize.String(), FormatUSD(result))
	case MethodPercentageOfDeal:
		return fmt.Sprintf("%s%% × %s = %s", r.Rate.String(), FormatUSD(ctx.DealValue), FormatUSD(result))
	case MethodFlatFee:
		return fmt.Sprintf("flat fee = %s", FormatUSD(result))
	default:
		return fmt.Sprintf("unknown method %q = %s", r.CalcMethod, FormatUSD(result))
	}
}
