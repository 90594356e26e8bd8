package calculator

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// DemandOptimization is the demand charge avoided by capping the peak at target_ratio
type DemandOptimization struct {
	PeakReduction domain.Metric `json:"peak_reduction_potential"`
	Benefit       domain.Metric `json:"demand_optimization_benefit"`
}

func (s *Service) DemandOptimization(ctx context.Context, pMax decimal.Decimal) DemandOptimization {
	ratio := s.Setting(ctx, KeyTargetDemandRatio)
	demandPrice := s.Setting(ctx, KeyDemandPrice)

	reduction := round(pMax.Mul(decimal.NewFromInt(1).Sub(ratio)), 2)
	benefit := round(reduction.Mul(demandPrice).Mul(twelve), 2)

	src := map[string]interface{}{
		"p_max":               pMax.String(),
		"target_demand_ratio": ratio.String(),
		"demand_price":        demandPrice.String(),
	}
	return DemandOptimization{
		PeakReduction: domain.Metric{Value: reduction, Unit: "kW", Formula: "peak_reduction = P_max * (1 - target_ratio)", DataSource: src},
		Benefit:       domain.Metric{Value: benefit, Unit: "CNY/year", Formula: "benefit = peak_reduction * demand_price * 12", DataSource: src},
	}
}

// DemandControl compares the declared demand with what the meter actually needs
type DemandControl struct {
	MeterPointID  string                 `json:"meter_point_id"`
	MeterCode     string                 `json:"meter_code"`
	Declared      decimal.Decimal        `json:"declared_demand"`     // kW
	MaxDemand     decimal.Decimal        `json:"max_demand"`          // kW
	P95           decimal.Decimal        `json:"demand_95th"`         // kW
	Recommended   decimal.Decimal        `json:"recommended_demand"`  // kW
	DemandPrice   decimal.Decimal        `json:"demand_price"`        // CNY/kW/month
	OverDeclared  int                    `json:"over_declared_count"` // windows above declared
	MonthlySaving domain.Metric          `json:"monthly_saving"`
	AnnualSaving  domain.Metric          `json:"annual_saving"`
	Available     bool                   `json:"available"`
	Source        map[string]interface{} `json:"data_source"`
}

var recommendMargin = decimal.RequireFromString("1.05")

// DemandControl evaluates one meter point, or the first enabled one when meterPointID
// is empty. The 95th percentile comes from the monthly demand history (current
// month, else previous) and otherwise from the 15-minute records in [from, to].
func (s *Service) DemandControl(ctx context.Context, meterPointID string, from, to time.Time) DemandControl {
	const (
		monthlyFormula = "monthly_saving = (declared - recommended) * demand_price / 10000"
		annualFormula  = "annual_saving = monthly_saving * 12"
	)
	out := DemandControl{
		DemandPrice: s.Setting(ctx, KeyDemandPrice),
		Source:      map[string]interface{}{},
	}
	fail := func(err error) DemandControl {
		out.MonthlySaving = s.noData("10k CNY/month", monthlyFormula, err, out.Source)
		out.AnnualSaving = s.noData("10k CNY/year", annualFormula, err, out.Source)
		return out
	}

	meter, err := s.meterPoint(ctx, meterPointID)
	if err != nil || meter == nil {
		out.Source["meter_point_id"] = meterPointID
		return fail(err)
	}
	out.MeterPointID = meter.ID
	out.MeterCode = meter.Code
	out.Declared = dec(meter.DeclaredDemand)
	out.Source["meter_code"] = meter.Code

	hist, err := s.recentDemandHistory(ctx, meter.ID, to)
	if err != nil {
		return fail(err)
	}
	switch {
	case hist != nil:
		out.P95 = dec(hist.Demand95th)
		out.MaxDemand = dec(hist.MaxDemand)
		out.OverDeclared = hist.OverDeclaredCount
		if hist.DeclaredDemand > 0 {
			out.Declared = dec(hist.DeclaredDemand)
		}
		out.Source["table"] = "demand_history"
		out.Source["month"] = time.Date(hist.StatYear, time.Month(hist.StatMonth), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	default:
		rows, err := s.store.Series().Demand15Min(ctx, meter.ID, from, to)
		if err != nil || len(rows) == 0 {
			return fail(err)
		}
		values := make([]float64, len(rows))
		over := 0
		for i, r := range rows {
			values[i] = r.AvgPower
			if meter.DeclaredDemand > 0 && r.AvgPower > meter.DeclaredDemand {
				over++
			}
		}
		sort.Float64s(values)
		out.P95 = round(dec(percentile(values, 95)), 2)
		out.MaxDemand = round(dec(values[len(values)-1]), 2)
		out.OverDeclared = over
		out.Source["table"] = "demand_15min"
		out.Source["samples"] = len(rows)
	}

	out.Available = true
	out.Recommended = round(out.P95.Mul(recommendMargin), 1)
	monthly := decimal.Zero
	if out.Declared.GreaterThan(out.Recommended) {
		monthly = round(out.Declared.Sub(out.Recommended).Mul(out.DemandPrice).Div(tenThousand), 2)
	}
	src := map[string]interface{}{
		"declared_demand":    out.Declared.String(),
		"demand_95th":        out.P95.String(),
		"recommended_demand": out.Recommended.String(),
		"demand_price":       out.DemandPrice.String(),
	}
	for k, v := range out.Source {
		src[k] = v
	}
	out.MonthlySaving = domain.Metric{Value: monthly, Unit: "10k CNY/month", Formula: monthlyFormula, DataSource: src}
	out.AnnualSaving = domain.Metric{Value: round(monthly.Mul(twelve), 2), Unit: "10k CNY/year", Formula: annualFormula, DataSource: src}
	return out
}

func (s *Service) meterPoint(ctx context.Context, id string) (*domain.MeterPoint, error) {
	if id != "" {
		n, err := s.store.Topology().Get(ctx, domain.KindMeterPoint, id)
		if err != nil || n == nil {
			return nil, err
		}
		return n.(*domain.MeterPoint), nil
	}
	meters, err := s.store.Topology().ListMeterPoints(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range meters {
		if meters[i].IsEnabled {
			return &meters[i], nil
		}
	}
	return nil, nil
}

func (s *Service) recentDemandHistory(ctx context.Context, meterID string, at time.Time) (*domain.DemandHistory, error) {
	h, err := s.store.Series().DemandHistory(ctx, meterID, at.Year(), int(at.Month()))
	if err != nil || h != nil {
		return h, err
	}
	prev := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location()).AddDate(0, -1, 0)
	return s.store.Series().DemandHistory(ctx, meterID, prev.Year(), int(prev.Month()))
}

// percentile uses linear interpolation between closest ranks on sorted values
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
