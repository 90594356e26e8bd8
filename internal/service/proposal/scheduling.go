package proposal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/service/calculator"
)

var (
	sequencingShare = d("0.15") // of the peak-valley difference
	startStopShare  = d("0.10") // of the max load
	startStopDemand = d("0.05") // of the max load
	fillShare       = d("0.5")  // of avg - min
)

func buildScheduling(ctx context.Context, g *Generator, w window) (draft, error) {
	la := g.calc.LoadCurveAnalysis(ctx, w.to.AddDate(0, 0, -1))
	tariff := g.calc.Tariff(ctx)
	days := g.calc.AnnualWorkingDays(ctx)

	situation := datatypes.JSONMap{
		"analysis_days":     w.days,
		"curve_date":        la.Date,
		"max_load":          la.MaxLoad.InexactFloat64(),
		"min_load":          la.MinLoad.InexactFloat64(),
		"avg_load":          la.AvgLoad.InexactFloat64(),
		"peak_valley_diff":  la.PeakValleyDiff.InexactFloat64(),
		"load_rate":         la.LoadRate.InexactFloat64(),
		"peak_valley_ratio": la.PeakValleyRate.InexactFloat64(),
		"prices":            prices(tariff),
		"working_days":      days,
		"curve_source":      la.Source,
	}

	combined := func(shift calculator.ShiftBenefit, demand domain.Metric) decimal.Decimal {
		return shift.AnnualSaving.Value.Add(demand.Value)
	}
	sharp, normal, valley := tariff[domain.PeriodSharp], tariff[domain.PeriodNormal], tariff[domain.PeriodValley]

	// sequencing moves part of the peak-valley difference out of the sharp period
	seqPower := round(la.PeakValleyDiff.Mul(sequencingShare))
	seqShift := calculator.PeakShiftBenefit(seqPower, d("2"), sharp, normal, days)
	seqDemand := g.calc.DemandChargeSaving(ctx, d("100"))
	m1 := measureDraft{
		object:      "Production sequencing",
		description: "Reorder high-load processes so they avoid the sharp period",
		current:     state(la.MaxLoad, "period", string(domain.PeriodSharp)),
		target:      state(la.MaxLoad.Sub(seqPower), "period", string(domain.PeriodSharp), "shifted_to", string(domain.PeriodNormal)),
		formula: append(
			shiftFormula(seqPower, d("2"), sharp, normal, domain.PeriodSharp, domain.PeriodNormal, days,
				seqShift.DailyEnergy.Value, seqShift.DailySaving.Value, seqShift.AnnualSaving.Value),
			fmt.Sprintf("shifted power = %s kW * 0.15 = %s kW", la.PeakValleyDiff, seqPower),
			fmt.Sprintf("demand charge saving = 100 kW -> %s (10k CNY/year)", seqDemand.Value),
			fmt.Sprintf("annual benefit = %s + %s = %s (10k CNY/year)", seqShift.AnnualSaving.Value, seqDemand.Value, combined(seqShift, seqDemand)),
		),
		basis:      seqShift.AnnualSaving.Formula + "; " + seqDemand.Formula,
		benefit:    combined(seqShift, seqDemand),
		investment: decimal.Zero,
	}

	// staggered starts trim the inrush peak
	ssPower := round(la.MaxLoad.Mul(startStopShare))
	ssShift := calculator.PeakShiftBenefit(ssPower, d("0.5"), sharp, normal, days)
	ssDemand := g.calc.DemandChargeSaving(ctx, round(la.MaxLoad.Mul(startStopDemand)))
	m2 := measureDraft{
		object:      "Equipment start/stop",
		description: "Stagger large motor starts and stop idle equipment between batches",
		current:     state(la.MaxLoad, "start_mode", "simultaneous"),
		target:      state(la.MaxLoad.Sub(ssPower), "start_mode", "staggered"),
		formula: append(
			shiftFormula(ssPower, d("0.5"), sharp, normal, domain.PeriodSharp, domain.PeriodNormal, days,
				ssShift.DailyEnergy.Value, ssShift.DailySaving.Value, ssShift.AnnualSaving.Value),
			fmt.Sprintf("demand charge saving = %s kW * 0.05 -> %s (10k CNY/year)", la.MaxLoad, ssDemand.Value),
			fmt.Sprintf("annual benefit = %s + %s = %s (10k CNY/year)", ssShift.AnnualSaving.Value, ssDemand.Value, combined(ssShift, ssDemand)),
		),
		basis:      ssShift.AnnualSaving.Formula + "; " + ssDemand.Formula,
		benefit:    combined(ssShift, ssDemand),
		investment: decimal.Zero,
	}

	// valley filling moves flexible load from normal into valley hours
	fillPower := round(decimal.Max(la.AvgLoad.Sub(la.MinLoad), decimal.Zero).Mul(fillShare))
	fillShift := calculator.PeakShiftBenefit(fillPower, d("4"), normal, valley, days)
	fillDemand := g.calc.DemandChargeSaving(ctx, d("50"))
	m3 := measureDraft{
		object:      "Load curve shaping",
		description: "Fill the valley with flexible load taken from the normal period",
		current:     state(la.AvgLoad, "period", string(domain.PeriodNormal)),
		target:      state(la.AvgLoad.Sub(fillPower), "period", string(domain.PeriodNormal), "shifted_to", string(domain.PeriodValley)),
		formula: append(
			shiftFormula(fillPower, d("4"), normal, valley, domain.PeriodNormal, domain.PeriodValley, days,
				fillShift.DailyEnergy.Value, fillShift.DailySaving.Value, fillShift.AnnualSaving.Value),
			fmt.Sprintf("shifted power = (%s - %s) kW * 0.5 = %s kW", la.AvgLoad, la.MinLoad, fillPower),
			fmt.Sprintf("demand charge saving = 50 kW -> %s (10k CNY/year)", fillDemand.Value),
			fmt.Sprintf("annual benefit = %s + %s = %s (10k CNY/year)", fillShift.AnnualSaving.Value, fillDemand.Value, combined(fillShift, fillDemand)),
		),
		basis:      fillShift.AnnualSaving.Formula + "; " + fillDemand.Formula,
		benefit:    combined(fillShift, fillDemand),
		investment: decimal.Zero,
	}

	return draft{situation: situation, measures: []measureDraft{m1, m2, m3}}, nil
}
