package calculator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

const (
	annualRunHours = 6000
	// averagePrice is the blended tariff used where no period applies, CNY/kWh
	averagePrice = "0.436"
)

// Benchmark efficiencies per device type, in %
var benchmarkEfficiency = map[string]float64{
	"UPS":       98,
	"HVAC":      95,
	"PUMP":      92,
	"IT_SERVER": 96,
	"LIGHTING":  90,
}

const (
	defaultBenchmark  = 95
	defaultEfficiency = 90
)

// Efficiency compares one device with the benchmark of its type
type Efficiency struct {
	DeviceID      string          `json:"device_id"`
	DeviceCode    string          `json:"device_code"`
	DeviceType    string          `json:"device_type"`
	RatedPower    decimal.Decimal `json:"rated_power"`
	Current       decimal.Decimal `json:"current_efficiency"`   // %
	Benchmark     decimal.Decimal `json:"benchmark_efficiency"` // %
	Gap           decimal.Decimal `json:"efficiency_gap"`       // percentage points
	EnergySaving  domain.Metric   `json:"energy_saving"`        // kWh/year
	CostSaving    domain.Metric   `json:"cost_saving"`          // 10k CNY/year
	Investment    domain.Metric   `json:"investment"`           // 10k CNY
	PaybackPeriod domain.Metric   `json:"payback_period"`       // years
}

// EfficiencyBenchmark rates the enabled devices of deviceType (all types when empty)
// against the benchmark efficiency, worst gap first
func (s *Service) EfficiencyBenchmark(ctx context.Context, deviceType string) ([]Efficiency, error) {
	devices, err := s.store.Topology().ListDevices(ctx, "")
	if err != nil {
		return nil, err
	}
	price := decimal.RequireFromString(averagePrice)
	hours := decimal.NewFromInt(annualRunHours)
	perKW := decimal.NewFromInt(300) // CNY of retrofit per kW

	var out []Efficiency
	for _, d := range devices {
		if !d.IsEnabled || (deviceType != "" && !strings.EqualFold(d.DeviceType, deviceType)) {
			continue
		}
		bench, ok := benchmarkEfficiency[strings.ToUpper(d.DeviceType)]
		if !ok {
			bench = defaultBenchmark
		}
		cur := d.Efficiency
		if cur <= 0 {
			cur = defaultEfficiency
		}
		rated := dec(d.RatedPower)
		curD, benchD := dec(cur), dec(bench)

		saving := decimal.Zero
		if curD.LessThan(benchD) {
			saving = round(rated.Mul(hours).Mul(hundred.Div(curD).Sub(hundred.Div(benchD))), 2)
		}
		cost := round(saving.Mul(price).Div(tenThousand), 2)
		investment := round(rated.Mul(perKW).Div(tenThousand), 2)

		src := map[string]interface{}{
			"device_code":          d.Code,
			"rated_power":          rated.String(),
			"current_efficiency":   curD.String(),
			"benchmark_efficiency": benchD.String(),
			"annual_hours":         annualRunHours,
			"electricity_price":    averagePrice,
		}
		payback := domain.Metric{Unit: "years", Formula: "payback_period = investment / cost_saving", DataSource: src}
		if cost.IsPositive() {
			payback.Value = round(investment.Div(cost), 1)
		} else {
			payback.Value = decimal.Zero
			payback.Infinite = true
		}
		out = append(out, Efficiency{
			DeviceID:   d.ID,
			DeviceCode: d.Code,
			DeviceType: d.DeviceType,
			RatedPower: rated,
			Current:    curD,
			Benchmark:  benchD,
			Gap:        benchD.Sub(curD),
			EnergySaving: domain.Metric{
				Value: saving, Unit: "kWh/year", DataSource: src,
				Formula: "energy_saving = rated_power * annual_hours * (100 / current_efficiency - 100 / benchmark_efficiency)",
			},
			CostSaving: domain.Metric{
				Value: cost, Unit: "10k CNY/year", DataSource: src,
				Formula: "cost_saving = energy_saving * electricity_price / 10000",
			},
			Investment: domain.Metric{
				Value: investment, Unit: "10k CNY", DataSource: src,
				Formula: "investment = rated_power * 300 / 10000",
			},
			PaybackPeriod: payback,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Gap.GreaterThan(out[j].Gap) })
	return out, nil
}

// Operating-strategy saving rate per device type
var optimizationRate = map[string]string{
	"HVAC":      "0.25",
	"PUMP":      "0.20",
	"UPS":       "0.10",
	"IT_SERVER": "0.10",
}

// EquipmentSaving is the saving of better operating strategy on one device
type EquipmentSaving struct {
	DeviceID   string        `json:"device_id"`
	DeviceCode string        `json:"device_code"`
	DeviceType string        `json:"device_type"`
	Rate       string        `json:"saving_rate"`
	Energy     domain.Metric `json:"energy_saving"` // kWh/year
	Cost       domain.Metric `json:"cost_saving"`   // 10k CNY/year
}

// EquipmentOptimization estimates what operating-strategy changes save on HVAC,
// pumps, UPS and IT servers, largest saving first
func (s *Service) EquipmentOptimization(ctx context.Context) ([]EquipmentSaving, error) {
	devices, err := s.store.Topology().ListDevices(ctx, "")
	if err != nil {
		return nil, err
	}
	price := decimal.RequireFromString(averagePrice)
	hours := decimal.NewFromInt(annualRunHours)

	var out []EquipmentSaving
	for _, d := range devices {
		rate, ok := optimizationRate[strings.ToUpper(d.DeviceType)]
		if !d.IsEnabled || !ok {
			continue
		}
		r := decimal.RequireFromString(rate)
		energy := round(dec(d.RatedPower).Mul(r).Mul(hours), 2)
		src := map[string]interface{}{
			"device_code":       d.Code,
			"rated_power":       dec(d.RatedPower).String(),
			"saving_rate":       rate,
			"annual_hours":      annualRunHours,
			"electricity_price": averagePrice,
		}
		out = append(out, EquipmentSaving{
			DeviceID:   d.ID,
			DeviceCode: d.Code,
			DeviceType: d.DeviceType,
			Rate:       rate,
			Energy:     domain.Metric{Value: energy, Unit: "kWh/year", Formula: "energy_saving = rated_power * saving_rate * annual_hours", DataSource: src},
			Cost: domain.Metric{
				Value:      round(energy.Mul(price).Div(tenThousand), 2),
				Unit:       "10k CNY/year",
				Formula:    "cost_saving = energy_saving * electricity_price / 10000",
				DataSource: src,
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Energy.Value.GreaterThan(out[j].Energy.Value) })
	return out, nil
}

// Analysis bundles every headline metric for a billing month and a load window
type Analysis struct {
	Month              string             `json:"month"`
	AveragePrice       domain.Metric      `json:"average_price"`
	PeakRatio          domain.Metric      `json:"peak_ratio"`
	ValleyRatio        domain.Metric      `json:"valley_ratio"`
	CostStructure      CostStructure      `json:"cost_structure"`
	Load               LoadMetrics        `json:"load"`
	Transfer           TransferPotential  `json:"transfer_potential"`
	DemandOptimization DemandOptimization `json:"demand_optimization"`
	VPP                VPPRevenue         `json:"vpp_revenue"`
	ROI                ROI                `json:"roi"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// FullAnalysis chains the calculator: P_max feeds demand optimization, the
// transferable load is offered as VPP capacity, and the three benefits sum into ROI
func (s *Service) FullAnalysis(ctx context.Context, month string, from, to time.Time) Analysis {
	a := Analysis{
		Month:         month,
		AveragePrice:  s.AveragePrice(ctx, month),
		PeakRatio:     s.PeakRatio(ctx, month),
		ValleyRatio:   s.ValleyRatio(ctx, month),
		CostStructure: s.CostStructure(ctx, month),
		Load:          s.LoadMetrics(ctx, from, to),
		Transfer:      s.TransferPotential(ctx),
		GeneratedAt:   time.Now(),
	}
	a.DemandOptimization = s.DemandOptimization(ctx, a.Load.Max.Value)
	a.VPP = s.VPPRevenue(ctx, a.Transfer.TransferableLoad.Value)

	benefit := a.Transfer.AnnualBenefit.Value.
		Add(a.DemandOptimization.Benefit.Value).
		Add(a.VPP.Total.Value)
	a.ROI = s.ROI(ctx, benefit)
	return a
}

// BlendedPrice is the flat tariff applied to savings that span every period, CNY/kWh
var BlendedPrice = decimal.RequireFromString(averagePrice)

// Tariff resolves the price of every period
func (s *Service) Tariff(ctx context.Context) map[domain.PeriodType]decimal.Decimal {
	prices := s.prices(ctx)
	out := make(map[domain.PeriodType]decimal.Decimal, len(domain.PeriodTypes))
	for _, pt := range domain.PeriodTypes {
		out[pt] = price(prices, pt)
	}
	return out
}

// AnnualWorkingDays is the configured number of production days per year
func (s *Service) AnnualWorkingDays(ctx context.Context) int {
	return int(s.Setting(ctx, KeyAnnualWorkingDays).IntPart())
}

// OperatingSaving is the yearly cost of power kW drawn for hours a year at unitPrice
func OperatingSaving(power, hours, unitPrice decimal.Decimal) domain.Metric {
	energy := round(power.Mul(hours), 2)
	return domain.Metric{
		Value:   round(energy.Mul(unitPrice).Div(tenThousand), 2),
		Unit:    "10k CNY/year",
		Formula: "saving = power * hours * price / 10000",
		DataSource: map[string]interface{}{
			"power":  power.String(),
			"hours":  hours.String(),
			"price":  unitPrice.String(),
			"energy": energy.String(),
		},
	}
}

// DemandChargeSaving is the yearly demand charge of kw of declared demand
func (s *Service) DemandChargeSaving(ctx context.Context, kw decimal.Decimal) domain.Metric {
	demandPrice := s.Setting(ctx, KeyDemandPrice)
	return domain.Metric{
		Value:   round(kw.Mul(demandPrice).Mul(twelve).Div(tenThousand), 2),
		Unit:    "10k CNY/year",
		Formula: "saving = demand_reduction * demand_price * 12 / 10000",
		DataSource: map[string]interface{}{
			"demand_reduction": kw.String(),
			"demand_price":     demandPrice.String(),
		},
	}
}
