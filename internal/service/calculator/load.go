package calculator

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// LoadMetrics summarises the load curve over a closed window
type LoadMetrics struct {
	Max            domain.Metric `json:"p_max"`
	Avg            domain.Metric `json:"p_avg"`
	Min            domain.Metric `json:"p_min"`
	LoadRate       domain.Metric `json:"load_rate"`
	PeakValleyDiff domain.Metric `json:"peak_valley_diff"`
	Std            domain.Metric `json:"load_std"`
	Samples        int           `json:"samples"`
}

type curveStats struct {
	max, min, avg, std decimal.Decimal
	n                  int
}

func statsOf(points []domain.LoadCurvePoint) curveStats {
	st := curveStats{n: len(points)}
	if st.n == 0 {
		return st
	}
	sum := decimal.Zero
	st.max, st.min = dec(points[0].Power), dec(points[0].Power)
	for _, p := range points {
		v := dec(p.Power)
		st.max = decimal.Max(st.max, v)
		st.min = decimal.Min(st.min, v)
		sum = sum.Add(v)
	}
	st.avg = sum.Div(decimal.NewFromInt(int64(st.n)))

	st.std = decimal.Zero
	if st.n > 1 {
		ss := decimal.Zero
		for _, p := range points {
			d := dec(p.Power).Sub(st.avg)
			ss = ss.Add(d.Mul(d))
		}
		variance, _ := ss.Div(decimal.NewFromInt(int64(st.n - 1))).Float64()
		st.std = dec(math.Sqrt(variance))
	}
	return st
}

// LoadMetrics computes P_max, P_avg, P_min, load rate, peak-valley difference and
// the sample standard deviation over the load curve in [from, to]
func (s *Service) LoadMetrics(ctx context.Context, from, to time.Time) LoadMetrics {
	source := map[string]interface{}{
		"table": "load_curve",
		"from":  from.Format(time.RFC3339),
		"to":    to.Format(time.RFC3339),
	}
	points, err := s.store.Series().LoadCurve(ctx, from, to)
	if err != nil || len(points) == 0 {
		return LoadMetrics{
			Max:            s.noData("kW", "P_max = max(P)", err, source),
			Avg:            s.noData("kW", "P_avg = sum(P) / n", err, source),
			Min:            s.noData("kW", "P_min = min(P)", err, source),
			LoadRate:       s.noData("ratio", "load_rate = P_avg / P_max", err, source),
			PeakValleyDiff: s.noData("kW", "peak_valley_diff = P_max - P_min", err, source),
			Std:            s.noData("kW", "load_std = sqrt(sum((P - P_avg)^2) / (n - 1))", err, source),
		}
	}

	st := statsOf(points)
	source["samples"] = st.n

	loadRate := decimal.Zero
	if st.max.IsPositive() {
		loadRate = round(st.avg.Div(st.max), 4)
	}
	metric := func(v decimal.Decimal, unit, formula string) domain.Metric {
		return domain.Metric{Value: v, Unit: unit, Formula: formula, DataSource: source}
	}
	return LoadMetrics{
		Max:            metric(round(st.max, 2), "kW", "P_max = max(P)"),
		Avg:            metric(round(st.avg, 2), "kW", "P_avg = sum(P) / n"),
		Min:            metric(round(st.min, 2), "kW", "P_min = min(P)"),
		LoadRate:       metric(loadRate, "ratio", "load_rate = P_avg / P_max"),
		PeakValleyDiff: metric(round(st.max.Sub(st.min), 2), "kW", "peak_valley_diff = P_max - P_min"),
		Std:            metric(round(st.std, 2), "kW", "load_std = sqrt(sum((P - P_avg)^2) / (n - 1))"),
		Samples:        st.n,
	}
}

// LoadCurveAnalysis describes one day of the load curve
type LoadCurveAnalysis struct {
	Date           string                 `json:"date"`
	MaxLoad        decimal.Decimal        `json:"max_load"`
	MinLoad        decimal.Decimal        `json:"min_load"`
	AvgLoad        decimal.Decimal        `json:"avg_load"`
	PeakValleyDiff decimal.Decimal        `json:"peak_valley_diff"`
	LoadRate       decimal.Decimal        `json:"load_rate"` // %
	PeakValleyRate decimal.Decimal        `json:"peak_valley_ratio"`
	Samples        int                    `json:"samples"`
	Source         map[string]interface{} `json:"data_source"`
}

// LoadCurveAnalysis computes the daily load shape figures used for scheduling.
// A day without samples yields zeros and an error entry in Source.
func (s *Service) LoadCurveAnalysis(ctx context.Context, day time.Time) LoadCurveAnalysis {
	from, to := dayBounds(day)
	out := LoadCurveAnalysis{
		Date:   from.Format("2006-01-02"),
		Source: map[string]interface{}{"table": "load_curve", "date": from.Format("2006-01-02")},
	}
	points, err := s.store.Series().LoadCurve(ctx, from, to)
	if err != nil || len(points) == 0 {
		out.Source["error"] = "no data"
		if err != nil {
			out.Source["error"] = err.Error()
		}
		return out
	}

	st := statsOf(points)
	out.Samples = st.n
	out.MaxLoad = round(st.max, 2)
	out.MinLoad = round(st.min, 2)
	out.AvgLoad = round(st.avg, 2)
	out.PeakValleyDiff = round(st.max.Sub(st.min), 2)
	if st.max.IsPositive() {
		out.LoadRate = round(st.avg.Div(st.max).Mul(hundred), 2)
	}
	if st.min.IsPositive() {
		out.PeakValleyRate = round(st.max.Div(st.min), 2)
	}
	out.Source["samples"] = st.n
	return out
}
