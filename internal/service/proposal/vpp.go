package proposal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/service/calculator"
)

var vppTierNames = []string{"I", "II", "III"}

func buildVPP(ctx context.Context, g *Generator, w window) (draft, error) {
	situation := datatypes.JSONMap{"analysis_days": w.days}

	tiers, err := g.calc.VPPTiers(ctx)
	if err != nil {
		situation["error"] = err.Error()
	}
	byName := map[string]calculator.VPPTier{}
	total := decimal.Zero
	summary := map[string]interface{}{}
	for _, t := range tiers {
		byName[t.Tier] = t
		total = total.Add(t.Capacity)
		summary[t.Tier] = map[string]interface{}{
			"capacity":        t.Capacity.InexactFloat64(),
			"events_per_year": t.EventsPerYear,
			"compensation":    t.Compensation.InexactFloat64(),
			"devices":         t.Devices,
		}
	}
	situation["tiers"] = summary
	situation["adjustable_capacity"] = total.InexactFloat64()

	var measures []measureDraft
	for _, name := range vppTierNames {
		t, ok := byName[name]
		if !ok {
			t = calculator.VPPTier{Tier: name, Capacity: decimal.Zero, Compensation: decimal.Zero}
		}
		measures = append(measures, measureDraft{
			object:      fmt.Sprintf("Tier %s resources", name),
			description: fmt.Sprintf("Enroll %s kW of tier %s load (%s notice) in demand response events", t.Capacity, name, t.Notice),
			current:     state(t.Capacity, "tier", name, "enrolled", false),
			target:      state(decimal.Zero, "tier", name, "enrolled", true),
			formula: []string{
				fmt.Sprintf("capacity = %s kW (%d devices)", t.Capacity, len(t.Devices)),
				fmt.Sprintf("annual benefit = %s kW / 1000 * %d events * %s CNY/MW / 10000 = %s (10k CNY/year)",
					t.Capacity, t.EventsPerYear, t.Compensation, t.Revenue.Value),
			},
			basis:      t.Revenue.Formula,
			benefit:    t.Revenue.Value,
			investment: decimal.Zero,
		})
	}
	return draft{situation: situation, measures: measures}, nil
}
