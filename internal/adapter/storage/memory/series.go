package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

type seriesRepo struct{ s *Store }

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (r *seriesRepo) Bill(ctx context.Context, month string) (*domain.ElectricityBill, error) {
	var out *domain.ElectricityBill
	err := r.s.do(func(st *state) error {
		if b, ok := st.bills[month]; ok {
			out = &b
		}
		return nil
	})
	return out, err
}

func (r *seriesRepo) Bills(ctx context.Context, months []string) ([]domain.ElectricityBill, error) {
	var out []domain.ElectricityBill
	err := r.s.do(func(st *state) error {
		for _, m := range months {
			if b, ok := st.bills[m]; ok {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, err
}

func (r *seriesRepo) LoadCurve(ctx context.Context, from, to time.Time) ([]domain.LoadCurvePoint, error) {
	var out []domain.LoadCurvePoint
	err := r.s.do(func(st *state) error {
		for _, p := range st.loadCurve {
			if within(p.Timestamp, from, to) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, err
}

func (r *seriesRepo) EnergyDaily(ctx context.Context, from, to time.Time) ([]domain.EnergyDaily, error) {
	var out []domain.EnergyDaily
	err := r.s.do(func(st *state) error {
		for _, d := range st.daily {
			if within(d.StatDate, from, to) {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StatDate.Before(out[j].StatDate) })
	return out, err
}

func (r *seriesRepo) SumEnergyByPeriod(ctx context.Context, from, to time.Time) (map[domain.PeriodType]decimal.Decimal, error) {
	rows, err := r.EnergyDaily(ctx, from, to)
	if err != nil {
		return nil, err
	}
	sums := map[domain.PeriodType]decimal.Decimal{}
	for _, p := range domain.PeriodTypes {
		sums[p] = decimal.Zero
	}
	for _, d := range rows {
		sums[domain.PeriodSharp] = sums[domain.PeriodSharp].Add(d.SharpEnergy)
		sums[domain.PeriodPeak] = sums[domain.PeriodPeak].Add(d.PeakEnergy)
		sums[domain.PeriodNormal] = sums[domain.PeriodNormal].Add(d.FlatEnergy)
		sums[domain.PeriodValley] = sums[domain.PeriodValley].Add(d.ValleyEnergy)
		sums[domain.PeriodDeepValley] = sums[domain.PeriodDeepValley].Add(d.DeepValleyEnergy)
	}
	return sums, nil
}

func (r *seriesRepo) EnergyHourly(ctx context.Context, deviceIDs []string, from, to time.Time) ([]domain.EnergyHourly, error) {
	want := map[string]bool{}
	for _, id := range deviceIDs {
		want[id] = true
	}
	var out []domain.EnergyHourly
	err := r.s.do(func(st *state) error {
		for _, h := range st.hourly {
			if (len(want) == 0 || want[h.DeviceID]) && within(h.StatTime, from, to) {
				out = append(out, h)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StatTime.Before(out[j].StatTime) })
	return out, err
}

func (r *seriesRepo) Demand15Min(ctx context.Context, meterPointID string, from, to time.Time) ([]domain.Demand15Min, error) {
	var out []domain.Demand15Min
	err := r.s.do(func(st *state) error {
		for _, d := range st.demand {
			if (meterPointID == "" || d.MeterPointID == meterPointID) && within(d.Timestamp, from, to) {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, err
}

func (r *seriesRepo) DemandHistory(ctx context.Context, meterPointID string, year, month int) (*domain.DemandHistory, error) {
	var out *domain.DemandHistory
	err := r.s.do(func(st *state) error {
		for _, h := range st.demandHist {
			if h.MeterPointID == meterPointID && h.StatYear == year && h.StatMonth == month {
				v := h
				out = &v
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *seriesRepo) Prices(ctx context.Context) ([]domain.ElectricityPrice, error) {
	var out []domain.ElectricityPrice
	err := r.s.do(func(st *state) error {
		out = append(out, st.prices...)
		return nil
	})
	return out, err
}

func (r *seriesRepo) SaveBill(ctx context.Context, b *domain.ElectricityBill) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return r.s.do(func(st *state) error {
		if prev, ok := st.bills[b.Month]; ok {
			b.ID = prev.ID
		} else if b.ID == 0 {
			b.ID = st.id()
		}
		st.bills[b.Month] = *b
		return nil
	})
}

func (r *seriesRepo) SaveLoadCurve(ctx context.Context, points []domain.LoadCurvePoint) error {
	return r.s.do(func(st *state) error {
		for _, p := range points {
			p.ID = st.id()
			st.loadCurve = append(st.loadCurve, p)
		}
		return nil
	})
}

func (r *seriesRepo) SaveEnergyDaily(ctx context.Context, rows []domain.EnergyDaily) error {
	return r.s.do(func(st *state) error {
		for _, row := range rows {
			replaced := false
			for i, d := range st.daily {
				if d.DeviceID == row.DeviceID && d.StatDate.Equal(row.StatDate) {
					row.ID = d.ID
					st.daily[i] = row
					replaced = true
					break
				}
			}
			if !replaced {
				row.ID = st.id()
				st.daily = append(st.daily, row)
			}
		}
		return nil
	})
}

func (r *seriesRepo) SaveEnergyHourly(ctx context.Context, rows []domain.EnergyHourly) error {
	return r.s.do(func(st *state) error {
		for _, row := range rows {
			row.ID = st.id()
			st.hourly = append(st.hourly, row)
		}
		return nil
	})
}

func (r *seriesRepo) SaveDemand15Min(ctx context.Context, rows []domain.Demand15Min) error {
	for i := range rows {
		if !rows[i].Aligned() {
			return domain.Validation("demand timestamp %s is not on a quarter hour", rows[i].Timestamp)
		}
	}
	return r.s.do(func(st *state) error {
		for _, row := range rows {
			row.ID = st.id()
			st.demand = append(st.demand, row)
		}
		return nil
	})
}

func (r *seriesRepo) SaveDemandHistory(ctx context.Context, h *domain.DemandHistory) error {
	return r.s.do(func(st *state) error {
		for i, prev := range st.demandHist {
			if prev.MeterPointID == h.MeterPointID && prev.StatYear == h.StatYear && prev.StatMonth == h.StatMonth {
				h.ID = prev.ID
				st.demandHist[i] = *h
				return nil
			}
		}
		h.ID = st.id()
		st.demandHist = append(st.demandHist, *h)
		return nil
	})
}

func (r *seriesRepo) SavePrice(ctx context.Context, p *domain.ElectricityPrice) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.s.do(func(st *state) error {
		if p.ID != 0 {
			for i, prev := range st.prices {
				if prev.ID == p.ID {
					st.prices[i] = *p
					return nil
				}
			}
		}
		p.ID = st.id()
		st.prices = append(st.prices, *p)
		return nil
	})
}
