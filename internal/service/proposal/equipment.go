package proposal

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/service/calculator"
)

type operatingChange struct {
	object      string
	description string
	before      decimal.Decimal // kW
	after       decimal.Decimal // kW
	hours       decimal.Decimal // per year
	detail      []interface{}
}

var equipmentChanges = []operatingChange{
	{
		object:      "Central HVAC chillers",
		description: "Raise the chilled water setpoint and sequence chillers by load",
		before:      d("320"),
		after:       d("280"),
		hours:       d("6000"),
		detail:      []interface{}{"chilled_water_setpoint", 7},
	},
	{
		object:      "Circulating pumps",
		description: "Run the pumps at the efficient operating point, 20% below current draw",
		before:      d("150"),
		after:       d("120"),
		hours:       d("7200"),
		detail:      []interface{}{"saving_rate", 0.2},
	},
	{
		object:      "Plant lighting",
		description: "Zone the lighting schedule and switch off unoccupied areas, 30% below current draw",
		before:      d("80"),
		after:       d("56"),
		hours:       d("4000"),
		detail:      []interface{}{"saving_rate", 0.3},
	},
}

func buildEquipment(ctx context.Context, g *Generator, w window) (draft, error) {
	load := g.calc.LoadMetrics(ctx, w.from, w.to)
	situation := datatypes.JSONMap{
		"analysis_days":     w.days,
		"electricity_price": calculator.BlendedPrice.InexactFloat64(),
		"load_rate":         load.LoadRate.Value.InexactFloat64(),
		"p_max":             load.Max.Value.InexactFloat64(),
		"p_avg":             load.Avg.Value.InexactFloat64(),
	}

	// devices the operating-strategy estimate covers today
	if candidates, err := g.calc.EquipmentOptimization(ctx); err == nil {
		list := make([]interface{}, 0, len(candidates))
		for _, c := range candidates {
			list = append(list, map[string]interface{}{
				"device_code": c.DeviceCode,
				"device_type": c.DeviceType,
				"saving_rate": c.Rate,
				"cost_saving": c.Cost.Value.InexactFloat64(),
			})
		}
		situation["candidates"] = list
	} else {
		situation["candidates_error"] = err.Error()
	}

	var measures []measureDraft
	for _, c := range equipmentChanges {
		saving := calculator.OperatingSaving(c.before.Sub(c.after), c.hours, calculator.BlendedPrice)
		measures = append(measures, measureDraft{
			object:      c.object,
			description: c.description,
			current:     state(c.before, "annual_hours", c.hours.InexactFloat64()),
			target:      state(c.after, c.detail...),
			formula:     operatingFormula(c.before, c.after, c.hours, calculator.BlendedPrice, saving.Value),
			basis:       saving.Formula,
			benefit:     saving.Value,
			investment:  decimal.Zero,
		})
	}
	return draft{situation: situation, measures: measures}, nil
}
