package proposal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// monitoringShare is the part of the recommended demand real-time monitoring keeps
// from being crossed in a month
var monitoringShare = d("0.05")

func buildDemand(ctx context.Context, g *Generator, w window) (draft, error) {
	dc := g.calc.DemandControl(ctx, "", w.from, w.to)

	situation := datatypes.JSONMap{
		"analysis_days":       w.days,
		"meter_code":          dc.MeterCode,
		"declared_demand":     dc.Declared.InexactFloat64(),
		"max_demand":          dc.MaxDemand.InexactFloat64(),
		"demand_95th":         dc.P95.InexactFloat64(),
		"recommended_demand":  dc.Recommended.InexactFloat64(),
		"demand_price":        dc.DemandPrice.InexactFloat64(),
		"over_declared_count": dc.OverDeclared,
		"demand_source":       dc.Source,
	}
	if !dc.Available {
		situation["error"] = "no demand data"
	}

	// declared demand down to the recommendation
	m1 := measureDraft{
		object:      "Declared demand",
		description: fmt.Sprintf("Lower the declared demand of %s to 1.05x its 95th percentile", dc.MeterCode),
		current:     state(dc.Declared, "declared_demand", dc.Declared.InexactFloat64()),
		target:      state(decimal.Min(dc.Declared, dc.Recommended), "declared_demand", dc.Recommended.InexactFloat64()),
		formula: []string{
			fmt.Sprintf("recommended demand = %s kW (95th) * 1.05 = %s kW", dc.P95, dc.Recommended),
			fmt.Sprintf("monthly saving = (%s - %s) kW * %s CNY/kW / 10000 = %s (10k CNY)", dc.Declared, dc.Recommended, dc.DemandPrice, dc.MonthlySaving.Value),
			fmt.Sprintf("annual benefit = %s * 12 = %s (10k CNY/year)", dc.MonthlySaving.Value, dc.AnnualSaving.Value),
		},
		basis:      dc.AnnualSaving.Formula,
		benefit:    dc.AnnualSaving.Value,
		investment: decimal.Zero,
	}

	// monitoring avoids penalty excursions over the recommended demand
	guard := round(dc.Recommended.Mul(monitoringShare))
	guardSaving := g.calc.DemandChargeSaving(ctx, guard)
	m2 := measureDraft{
		object:      "Real-time demand monitoring",
		description: "Alarm on the 15-minute demand forecast and shed load before the declared demand is crossed",
		current:     state(dc.MaxDemand, "monitoring", "none"),
		target:      state(decimal.Max(dc.MaxDemand.Sub(guard), decimal.Zero), "monitoring", "15min forecast"),
		formula: []string{
			fmt.Sprintf("protected demand = %s kW * 0.05 = %s kW", dc.Recommended, guard),
			fmt.Sprintf("annual benefit = %s kW * %s CNY/kW * 12 / 10000 = %s (10k CNY/year)", guard, dc.DemandPrice, guardSaving.Value),
		},
		basis:      guardSaving.Formula,
		benefit:    guardSaving.Value,
		investment: decimal.Zero,
	}

	// capping the peak at target_demand_ratio of the max demand
	opt := g.calc.DemandOptimization(ctx, dc.MaxDemand)
	capBenefit := round(opt.Benefit.Value.Div(tenThousand))
	m3 := measureDraft{
		object:      "Peak load capping",
		description: "Cap the site peak by interrupting non-critical loads when demand nears the limit",
		current:     state(dc.MaxDemand, "peak_limit", "none"),
		target:      state(dc.MaxDemand.Sub(opt.PeakReduction.Value), "peak_limit", dc.MaxDemand.Sub(opt.PeakReduction.Value).InexactFloat64()),
		formula: []string{
			fmt.Sprintf("peak reduction = %s kW * (1 - %v) = %s kW", dc.MaxDemand, opt.PeakReduction.DataSource["target_demand_ratio"], opt.PeakReduction.Value),
			fmt.Sprintf("annual benefit = %s kW * %s CNY/kW * 12 / 10000 = %s (10k CNY/year)", opt.PeakReduction.Value, dc.DemandPrice, capBenefit),
		},
		basis:      opt.Benefit.Formula,
		benefit:    capBenefit,
		investment: decimal.Zero,
	}

	situation["target_demand_ratio"] = opt.PeakReduction.DataSource["target_demand_ratio"]
	return draft{situation: situation, measures: []measureDraft{m1, m2, m3}}, nil
}
