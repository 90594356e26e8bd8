package proposal

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/service/calculator"
)

type shiftLoad struct {
	object      string
	description string
	power       decimal.Decimal
	hours       decimal.Decimal
	from, to    domain.PeriodType
}

var peakValleyLoads = []shiftLoad{
	{
		object:      "Heat-treatment furnaces",
		description: "Run the heat-treatment batch in the valley period instead of the sharp period",
		power:       d("2500"),
		hours:       d("2"),
		from:        domain.PeriodSharp,
		to:          domain.PeriodValley,
	},
	{
		object:      "Auxiliary production lines",
		description: "Move auxiliary processes out of the peak period into the normal period",
		power:       d("1200"),
		hours:       d("3"),
		from:        domain.PeriodPeak,
		to:          domain.PeriodNormal,
	},
	{
		object:      "Air compressors with storage tank",
		description: "Charge the air tanks during the valley and coast through the sharp period",
		power:       d("800"),
		hours:       d("4"),
		from:        domain.PeriodSharp,
		to:          domain.PeriodValley,
	},
}

func buildPeakValley(ctx context.Context, g *Generator, w window) (draft, error) {
	tariff := g.calc.Tariff(ctx)
	days := g.calc.AnnualWorkingDays(ctx)
	split := g.calc.PeakValleySplit(ctx, w.from, w.to)

	ratio := map[string]interface{}{}
	for pt, r := range split.Ratio {
		ratio[string(pt)] = r.InexactFloat64()
	}
	out := draft{
		situation: datatypes.JSONMap{
			"analysis_days":     w.days,
			"prices":            prices(tariff),
			"working_days":      days,
			"total_energy":      split.Total.InexactFloat64(),
			"period_ratio":      ratio,
			"ratio_estimated":   split.Estimated,
			"energy_source":     split.Source,
			"transferable_load": sumPower(peakValleyLoads).InexactFloat64(),
		},
	}

	for _, l := range peakValleyLoads {
		high, low := tariff[l.from], tariff[l.to]
		b := calculator.PeakShiftBenefit(l.power, l.hours, high, low, days)
		out.measures = append(out.measures, measureDraft{
			object:      l.object,
			description: l.description,
			current:     state(l.power, "period", string(l.from), "hours", l.hours.InexactFloat64()),
			target:      state(decimal.Zero, "period", string(l.from), "shifted_to", string(l.to), "hours", l.hours.InexactFloat64()),
			formula: shiftFormula(l.power, l.hours, high, low, l.from, l.to, days,
				b.DailyEnergy.Value, b.DailySaving.Value, b.AnnualSaving.Value),
			basis:      b.AnnualSaving.Formula,
			benefit:    b.AnnualSaving.Value,
			investment: decimal.Zero,
		})
	}
	return out, nil
}

func sumPower(loads []shiftLoad) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range loads {
		sum = sum.Add(l.power)
	}
	return sum
}
