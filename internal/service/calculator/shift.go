package calculator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// ShiftableLoad is one device contributing to the transferable load
type ShiftableLoad struct {
	DeviceID     string          `json:"device_id"`
	DeviceCode   string          `json:"device_code"`
	DeviceName   string          `json:"device_name"`
	DeviceType   string          `json:"device_type"`
	RatedPower   decimal.Decimal `json:"rated_power"`
	Ratio        decimal.Decimal `json:"ratio"`
	NoticeMinute int             `json:"shift_notice_time"`
	Load         decimal.Decimal `json:"load"`
}

// ShiftableLoads lists enabled devices with a shiftable configuration
func (s *Service) ShiftableLoads(ctx context.Context) ([]ShiftableLoad, error) {
	configs, err := s.store.Topology().ListShiftConfigs(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.store.Topology().ListDevices(ctx, "")
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.PowerDevice, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	var out []ShiftableLoad
	for _, c := range configs {
		d, ok := byID[c.DeviceID]
		if !ok || !c.IsShiftable || !d.IsEnabled {
			continue
		}
		rated := dec(d.RatedPower)
		ratio := dec(c.ShiftablePowerRatio)
		out = append(out, ShiftableLoad{
			DeviceID:     d.ID,
			DeviceCode:   d.Code,
			DeviceName:   d.Name,
			DeviceType:   d.DeviceType,
			RatedPower:   rated,
			Ratio:        ratio,
			NoticeMinute: c.ShiftNoticeTime,
			Load:         rated.Mul(ratio),
		})
	}
	return out, nil
}

// TransferPotential is the load that can move from peak to valley and what moving it earns
type TransferPotential struct {
	TransferableLoad domain.Metric `json:"transferable_load"`
	PriceSpread      domain.Metric `json:"price_spread"`
	DailyShiftHours  domain.Metric `json:"daily_shift_hours"`
	AnnualBenefit    domain.Metric `json:"annual_shift_benefit"`
}

func (s *Service) TransferPotential(ctx context.Context) TransferPotential {
	const (
		loadFormula    = "transferable_load = sum(rated_power * adjustable_ratio)"
		spreadFormula  = "price_spread = peak_price - valley_price"
		benefitFormula = "annual_shift_benefit = transferable_load * daily_shift_hours * 365 * price_spread"
	)

	hours := s.Setting(ctx, KeyDailyShiftHours)
	prices := s.prices(ctx)
	peak, valley := price(prices, domain.PeriodPeak), price(prices, domain.PeriodValley)
	spread := round(peak.Sub(valley), 4)

	out := TransferPotential{
		PriceSpread: domain.Metric{Value: spread, Unit: "CNY/kWh", Formula: spreadFormula, DataSource: map[string]interface{}{
			"peak_price":   peak.String(),
			"valley_price": valley.String(),
		}},
		DailyShiftHours: domain.Metric{Value: hours, Unit: "h", Formula: KeyDailyShiftHours, DataSource: map[string]interface{}{
			"setting": KeyDailyShiftHours,
		}},
	}

	loads, err := s.ShiftableLoads(ctx)
	if err != nil || len(loads) == 0 {
		src := map[string]interface{}{"table": "device_shift_config"}
		out.TransferableLoad = s.noData("kW", loadFormula, err, src)
		out.AnnualBenefit = s.noData("CNY/year", benefitFormula, err, src)
		return out
	}

	total := decimal.Zero
	devices := make([]string, 0, len(loads))
	for _, l := range loads {
		total = total.Add(l.Load)
		devices = append(devices, l.DeviceCode)
	}
	total = round(total, 2)

	out.TransferableLoad = domain.Metric{Value: total, Unit: "kW", Formula: loadFormula, DataSource: map[string]interface{}{
		"table":   "device_shift_config",
		"devices": devices,
	}}
	out.AnnualBenefit = domain.Metric{
		Value:   round(total.Mul(hours).Mul(daysPerYear).Mul(spread), 2),
		Unit:    "CNY/year",
		Formula: benefitFormula,
		DataSource: map[string]interface{}{
			"transferable_load": total.String(),
			"daily_shift_hours": hours.String(),
			"price_spread":      spread.String(),
		},
	}
	return out
}

// PeakValleySplit is the energy per price period over a window, with the share of each
type PeakValleySplit struct {
	Energy map[domain.PeriodType]decimal.Decimal `json:"energy"` // kWh
	Ratio  map[domain.PeriodType]decimal.Decimal `json:"ratio"`  // %
	Total  decimal.Decimal                       `json:"total"`
	// Estimated is set when sharp and deep-valley energy were apportioned from peak and valley
	Estimated bool                   `json:"estimated"`
	Source    map[string]interface{} `json:"data_source"`
}

var (
	sharpShare      = decimal.RequireFromString("0.3")
	deepValleyShare = decimal.RequireFromString("0.4")
)

// PeakValleySplit aggregates the daily buckets in [from, to] by period. Meters that
// do not record sharp or deep-valley energy get 30% of peak booked as sharp and 40%
// of valley booked as deep valley.
func (s *Service) PeakValleySplit(ctx context.Context, from, to time.Time) PeakValleySplit {
	out := PeakValleySplit{
		Energy: map[domain.PeriodType]decimal.Decimal{},
		Ratio:  map[domain.PeriodType]decimal.Decimal{},
		Source: map[string]interface{}{
			"table": "energy_daily",
			"from":  from.Format("2006-01-02"),
			"to":    to.Format("2006-01-02"),
		},
	}
	for _, pt := range domain.PeriodTypes {
		out.Energy[pt] = decimal.Zero
		out.Ratio[pt] = decimal.Zero
	}

	sums, err := s.store.Series().SumEnergyByPeriod(ctx, from, to)
	if err != nil {
		out.Source["error"] = err.Error()
		return out
	}

	e := func(pt domain.PeriodType) decimal.Decimal { return sums[pt] }
	sharp, peak := e(domain.PeriodSharp), e(domain.PeriodPeak)
	valley, deep := e(domain.PeriodValley), e(domain.PeriodDeepValley)
	if sharp.IsZero() && peak.IsPositive() {
		sharp = peak.Mul(sharpShare)
		peak = peak.Sub(sharp)
		out.Estimated = true
	}
	if deep.IsZero() && valley.IsPositive() {
		deep = valley.Mul(deepValleyShare)
		valley = valley.Sub(deep)
		out.Estimated = true
	}

	out.Energy[domain.PeriodSharp] = round(sharp, 2)
	out.Energy[domain.PeriodPeak] = round(peak, 2)
	out.Energy[domain.PeriodNormal] = round(e(domain.PeriodNormal), 2)
	out.Energy[domain.PeriodValley] = round(valley, 2)
	out.Energy[domain.PeriodDeepValley] = round(deep, 2)

	total := decimal.Zero
	for _, pt := range domain.PeriodTypes {
		total = total.Add(out.Energy[pt])
	}
	out.Total = total
	if total.IsZero() {
		out.Source["error"] = "no data"
		return out
	}
	for _, pt := range domain.PeriodTypes {
		out.Ratio[pt] = round(out.Energy[pt].Div(total).Mul(hundred), 2)
	}
	return out
}

// ShiftBenefit is the saving from running a load in a cheaper period
type ShiftBenefit struct {
	DailyEnergy  domain.Metric `json:"daily_shift_energy"` // kWh
	DailySaving  domain.Metric `json:"daily_saving"`       // CNY
	AnnualSaving domain.Metric `json:"annual_saving"`      // 10k CNY
}

// PeakShiftBenefit moves power kW for hours a day from a period priced high to one
// priced low, over workingDays a year
func PeakShiftBenefit(power, hours, high, low decimal.Decimal, workingDays int) ShiftBenefit {
	days := decimal.NewFromInt(int64(workingDays))
	energy := round(power.Mul(hours), 2)
	daily := round(energy.Mul(high.Sub(low)), 2)
	annual := round(daily.Mul(days).Div(tenThousand), 2)

	src := map[string]interface{}{
		"power":        power.String(),
		"hours":        hours.String(),
		"high_price":   high.String(),
		"low_price":    low.String(),
		"working_days": workingDays,
	}
	return ShiftBenefit{
		DailyEnergy:  domain.Metric{Value: energy, Unit: "kWh", Formula: "daily_shift_energy = power * hours", DataSource: src},
		DailySaving:  domain.Metric{Value: daily, Unit: "CNY", Formula: "daily_saving = daily_shift_energy * (high_price - low_price)", DataSource: src},
		AnnualSaving: domain.Metric{Value: annual, Unit: "10k CNY/year", Formula: "annual_saving = daily_saving * working_days / 10000", DataSource: src},
	}
}
