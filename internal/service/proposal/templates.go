package proposal

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/seu-repo/energy-core/internal/domain"
)

// TemplateInfo describes a template to callers choosing one
type TemplateInfo struct {
	ID          domain.TemplateID `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Measures    []string          `json:"measures"`
}

type template struct {
	TemplateInfo
	build func(ctx context.Context, g *Generator, w window) (draft, error)
}

var templates = map[domain.TemplateID]template{
	domain.TemplatePeakValley: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplatePeakValley,
			Name:        "Peak-Valley Arbitrage",
			Type:        "A",
			Description: "Move transferable load from sharp and peak periods into cheaper periods",
			Measures:    []string{"heat-treatment shift", "auxiliary off-peak", "compressor air-tank storage"},
		},
		build: buildPeakValley,
	},
	domain.TemplateDemand: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplateDemand,
			Name:        "Demand Control",
			Type:        "A",
			Description: "Align the declared demand with the demand the site actually reaches",
			Measures:    []string{"declared demand reduction", "real-time demand monitoring", "peak load capping"},
		},
		build: buildDemand,
	},
	domain.TemplateEquipment: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplateEquipment,
			Name:        "Equipment Operation Optimization",
			Type:        "A",
			Description: "Tune operating strategy of HVAC, pumps and lighting without new hardware",
			Measures:    []string{"HVAC setpoint optimization", "pump operating point", "lighting schedule"},
		},
		build: buildEquipment,
	},
	domain.TemplateVPP: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplateVPP,
			Name:        "VPP Demand Response",
			Type:        "A",
			Description: "Offer adjustable capacity to the virtual power plant by response tier",
			Measures:    []string{"tier I fast response", "tier II response", "tier III day-ahead response"},
		},
		build: buildVPP,
	},
	domain.TemplateScheduling: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplateScheduling,
			Name:        "Load Scheduling Optimization",
			Type:        "A",
			Description: "Reshape the daily load curve through production scheduling",
			Measures:    []string{"production sequencing", "staggered start/stop", "load curve shaping"},
		},
		build: buildScheduling,
	},
	domain.TemplateRetrofit: {
		TemplateInfo: TemplateInfo{
			ID:          domain.TemplateRetrofit,
			Name:        "Equipment Retrofit/Upgrade",
			Type:        "B",
			Description: "Replace equipment that falls short of the industry efficiency benchmark",
			Measures:    []string{"compressor upgrade", "pump variable frequency drive", "LED lighting"},
		},
		build: buildRetrofit,
	},
}

var tenThousand = decimal.NewFromInt(10000)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func round(v decimal.Decimal) decimal.Decimal { return v.RoundBank(2) }

// state builds a measure snapshot. Every snapshot carries a numeric power in kW,
// which the executor uses as its fallback reading.
func state(power decimal.Decimal, kv ...interface{}) datatypes.JSONMap {
	m := datatypes.JSONMap{"power": power.InexactFloat64()}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

// prices renders a tariff for current_situation
func prices(tariff map[domain.PeriodType]decimal.Decimal) map[string]interface{} {
	out := make(map[string]interface{}, len(tariff))
	for pt, p := range tariff {
		out[string(pt)] = p.InexactFloat64()
	}
	return out
}

// shiftFormula spells out a PeakShiftBenefit derivation
func shiftFormula(power, hours, high, low decimal.Decimal, from, to domain.PeriodType, days int, energy, daily, annual decimal.Decimal) []string {
	return []string{
		fmt.Sprintf("shifted energy = %s kW * %s h = %s kWh/day", power, hours, energy),
		fmt.Sprintf("price spread = %s (%s) - %s (%s) = %s CNY/kWh", high, from, low, to, high.Sub(low)),
		fmt.Sprintf("daily saving = %s kWh * %s CNY/kWh = %s CNY", energy, high.Sub(low), daily),
		fmt.Sprintf("annual benefit = %s CNY * %d days / 10000 = %s (10k CNY/year)", daily, days, annual),
	}
}

// operatingFormula spells out an OperatingSaving derivation
func operatingFormula(before, after, hours, price, benefit decimal.Decimal) []string {
	saved := before.Sub(after)
	return []string{
		fmt.Sprintf("power reduction = %s kW - %s kW = %s kW", before, after, saved),
		fmt.Sprintf("energy saved = %s kW * %s h = %s kWh/year", saved, hours, saved.Mul(hours)),
		fmt.Sprintf("annual benefit = %s kWh * %s CNY/kWh / 10000 = %s (10k CNY/year)", saved.Mul(hours), price, benefit),
	}
}
