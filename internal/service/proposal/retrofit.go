package proposal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/service/calculator"
)

type retrofit struct {
	operatingChange
	investment decimal.Decimal // 10k CNY
	extra      decimal.Decimal // maintenance saving, 10k CNY/year
}

var retrofits = []retrofit{
	{
		operatingChange: operatingChange{
			object:      "Air compressor station",
			description: "Replace the fixed-speed compressors with permanent-magnet variable-speed units",
			before:      d("160"),
			after:       d("132"),
			hours:       d("6000"),
			detail:      []interface{}{"type", "pm_vsd"},
		},
		investment: d("12"),
		extra:      decimal.Zero,
	},
	{
		operatingChange: operatingChange{
			object:      "Circulating pumps",
			description: "Fit variable frequency drives to two 75 kW pumps, cutting their draw by 35%",
			before:      d("150"), // 2 x 75 kW
			after:       d("97.5"),
			hours:       d("7200"),
			detail:      []interface{}{"type", "vfd", "units", 2},
		},
		investment: d("4.5"),
		extra:      decimal.Zero,
	},
	{
		operatingChange: operatingChange{
			object:      "Plant lighting",
			description: "Replace metal-halide fixtures with LED",
			before:      d("120"),
			after:       d("50"),
			hours:       d("4000"),
			detail:      []interface{}{"type", "led"},
		},
		investment: d("8"),
		extra:      d("0.5"),
	},
}

func buildRetrofit(ctx context.Context, g *Generator, w window) (draft, error) {
	situation := datatypes.JSONMap{
		"analysis_days":     w.days,
		"electricity_price": calculator.BlendedPrice.InexactFloat64(),
	}
	if bench, err := g.calc.EfficiencyBenchmark(ctx, "PUMP"); err == nil {
		list := make([]interface{}, 0, len(bench))
		for _, e := range bench {
			list = append(list, map[string]interface{}{
				"device_code":          e.DeviceCode,
				"current_efficiency":   e.Current.InexactFloat64(),
				"benchmark_efficiency": e.Benchmark.InexactFloat64(),
				"efficiency_gap":       e.Gap.InexactFloat64(),
			})
		}
		situation["pump_benchmark"] = list
	} else {
		situation["pump_benchmark_error"] = err.Error()
	}

	var measures []measureDraft
	for _, r := range retrofits {
		saving := calculator.OperatingSaving(r.before.Sub(r.after), r.hours, calculator.BlendedPrice)
		benefit := saving.Value.Add(r.extra)
		formula := operatingFormula(r.before, r.after, r.hours, calculator.BlendedPrice, saving.Value)
		if r.extra.IsPositive() {
			formula = append(formula, fmt.Sprintf("with maintenance saving = %s + %s = %s (10k CNY/year)", saving.Value, r.extra, benefit))
		}
		payback := "inf"
		if benefit.IsPositive() {
			payback = r.investment.Div(benefit).Round(1).String()
		}
		formula = append(formula, fmt.Sprintf("payback = %s / %s = %s years", r.investment, benefit, payback))

		measures = append(measures, measureDraft{
			object:      r.object,
			description: r.description,
			current:     state(r.before, "annual_hours", r.hours.InexactFloat64()),
			target:      state(r.after, append(append([]interface{}{}, r.detail...), "payback_years", payback)...),
			formula:     formula,
			basis:       saving.Formula,
			benefit:     benefit,
			investment:  r.investment,
		})
	}
	return draft{situation: situation, measures: measures}, nil
}
