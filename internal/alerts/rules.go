// Package alerts evaluates threshold rules against per campaign aggregates
// and manages the resulting alerts.
package alerts

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/AngelCh415/adsync/internal/models"
)

// Presets is the fixed rule catalog every tenant starts with. Overspend is
// relative to the campaign budget: 1.1 means 110% of it.
var Presets = []models.AlertRule{
	{Name: "Low ROAS", Description: "ROAS below 1.0, the campaign is losing money", Metric: "roas", Operator: models.OpLT, Threshold: 1.0, Severity: models.SeverityWarning},
	{Name: "Critical ROAS", Description: "ROAS below 0.5, heavy losses", Metric: "roas", Operator: models.OpLT, Threshold: 0.5, Severity: models.SeverityCritical},
	{Name: "Overspend", Description: "Spend above 110% of budget", Metric: "spend", Operator: models.OpGT, Threshold: 1.1, BudgetRelative: true, Severity: models.SeverityWarning},
	{Name: "No Conversions", Description: "No conversions in the window", Metric: "conversions", Operator: models.OpEQ, Threshold: 0, Severity: models.SeverityCritical},
	{Name: "CTR Drop", Description: "CTR below 0.7%", Metric: "ctr", Operator: models.OpLT, Threshold: 0.7, Severity: models.SeverityWarning},
	{Name: "Inactive Campaign", Description: "No impressions in the window", Metric: "impressions", Operator: models.OpEQ, Threshold: 0, Severity: models.SeverityInfo},
}

// Metrics lists the names a rule may test.
var Metrics = []string{"impressions", "clicks", "spend", "conversions", "revenue", "ctr", "cpc", "cpm", "roas"}

// AlertType derives the dedup discriminant from a rule name:
// "Low ROAS" becomes "LOW_ROAS".
func AlertType(ruleName string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(ruleName)), " ", "_")
}

func metricValue(name string, c models.Counters) (float64, bool) {
	r := models.Derive(c)
	switch strings.ToLower(name) {
	case "impressions":
		return float64(c.Impressions), true
	case "clicks":
		return float64(c.Clicks), true
	case "spend":
		return c.Spend, true
	case "conversions":
		return c.Conversions, true
	case "revenue":
		return c.Revenue, true
	case "ctr":
		return r.CTR, true
	case "cpc":
		return r.CPC, true
	case "cpm":
		return r.CPM, true
	case "roas":
		return r.ROAS, true
	}
	return 0, false
}

const eqTolerance = 1e-9

func compare(op models.Operator, value, threshold float64) bool {
	switch op {
	case models.OpGT:
		return value > threshold
	case models.OpLT:
		return value < threshold
	case models.OpEQ:
		return math.Abs(value-threshold) < eqTolerance
	case models.OpGTE:
		return value >= threshold
	case models.OpLTE:
		return value <= threshold
	}
	return false
}

// Evaluation is the outcome of one rule against one campaign.
type Evaluation struct {
	Value     float64
	Threshold float64
	Violated  bool
}

// Evaluate tests rule against summed counters. ok is false when the rule
// cannot be evaluated: unknown metric, or a budget relative rule on a
// campaign without budget.
func Evaluate(rule models.AlertRule, c models.Counters, budget *float64) (ev Evaluation, ok bool) {
	value, ok := metricValue(rule.Metric, c)
	if !ok {
		return ev, false
	}
	threshold := rule.Threshold
	if rule.BudgetRelative {
		if budget == nil || *budget <= 0 {
			return ev, false
		}
		threshold = *budget * rule.Threshold
	}
	return Evaluation{Value: value, Threshold: threshold, Violated: compare(rule.Operator, value, threshold)}, true
}

func message(rule models.AlertRule, campaign string, ev Evaluation) string {
	return fmt.Sprintf("Campaign %q has %s = %.2f (threshold: %s %.2f)", campaign, rule.Metric, ev.Value, rule.Operator, ev.Threshold)
}

func validMetric(name string) bool {
	return slices.Contains(Metrics, strings.ToLower(name))
}
