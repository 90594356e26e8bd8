package calculator

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// VPPRevenue is the yearly market revenue of an adjustable capacity
type VPPRevenue struct {
	DemandResponse domain.Metric `json:"demand_response"`
	Ancillary      domain.Metric `json:"ancillary_service"`
	SpotArbitrage  domain.Metric `json:"spot_arbitrage"`
	Total          domain.Metric `json:"total"`
}

// VPPRevenue prices capacity (kW) in the demand-response, ancillary-service and
// spot markets using the configured counts, hours and prices
func (s *Service) VPPRevenue(ctx context.Context, capacity decimal.Decimal) VPPRevenue {
	responseCount := s.Setting(ctx, KeyResponseCount)
	responsePrice := s.Setting(ctx, KeyResponsePrice)
	serviceHours := s.Setting(ctx, KeyServiceHours)
	servicePrice := s.Setting(ctx, KeyServicePrice)
	arbitrageHours := s.Setting(ctx, KeyArbitrageHours)
	spread := s.Setting(ctx, KeyPriceSpreadSpot)

	dr := round(capacity.Mul(responseCount).Mul(responsePrice), 2)
	anc := round(capacity.Mul(serviceHours).Mul(servicePrice), 2)
	spot := round(capacity.Mul(arbitrageHours).Mul(spread), 2)

	src := map[string]interface{}{
		"capacity":          capacity.String(),
		"response_count":    responseCount.String(),
		"response_price":    responsePrice.String(),
		"service_hours":     serviceHours.String(),
		"service_price":     servicePrice.String(),
		"arbitrage_hours":   arbitrageHours.String(),
		"price_spread_spot": spread.String(),
	}
	metric := func(v decimal.Decimal, formula string) domain.Metric {
		return domain.Metric{Value: v, Unit: "CNY/year", Formula: formula, DataSource: src}
	}
	return VPPRevenue{
		DemandResponse: metric(dr, "demand_response = capacity * response_count * response_price"),
		Ancillary:      metric(anc, "ancillary = capacity * service_hours * service_price"),
		SpotArbitrage:  metric(spot, "spot = capacity * arbitrage_hours * price_spread_spot"),
		Total:          metric(dr.Add(anc).Add(spot), "total = demand_response + ancillary + spot"),
	}
}

// VPPTier is one response class of the dispatchable resource pool
type VPPTier struct {
	Tier          string          `json:"tier"`
	Notice        string          `json:"notice"`
	Capacity      decimal.Decimal `json:"capacity"` // kW
	EventsPerYear int             `json:"events_per_year"`
	Compensation  decimal.Decimal `json:"compensation"` // CNY per MW per event
	Devices       []string        `json:"devices"`
	Revenue       domain.Metric   `json:"revenue"` // 10k CNY/year
}

type tierRule struct {
	name, notice string
	events       int
	compensation int64
	match        func(noticeMinutes int) bool
}

// Tier I answers within 5 minutes, tier II within 15, tier III is planned a day
// ahead. Resources needing 15 to 240 minutes do not qualify for any tier.
var tierRules = []tierRule{
	{"I", "<= 5 min", 50, 600, func(n int) bool { return n <= 5 }},
	{"II", "5-15 min", 80, 300, func(n int) bool { return n > 5 && n <= 15 }},
	{"III", "> 240 min", 100, 200, func(n int) bool { return n > 240 }},
}

// VPPTiers groups the shiftable load by notice time and prices each tier
func (s *Service) VPPTiers(ctx context.Context) ([]VPPTier, error) {
	loads, err := s.ShiftableLoads(ctx)
	if err != nil {
		return nil, err
	}

	mw := decimal.NewFromInt(1000)
	tiers := make([]VPPTier, 0, len(tierRules))
	for _, rule := range tierRules {
		t := VPPTier{
			Tier:          rule.name,
			Notice:        rule.notice,
			Capacity:      decimal.Zero,
			EventsPerYear: rule.events,
			Compensation:  decimal.NewFromInt(rule.compensation),
			Devices:       []string{},
		}
		for _, l := range loads {
			if rule.match(l.NoticeMinute) {
				t.Capacity = t.Capacity.Add(l.Load)
				t.Devices = append(t.Devices, l.DeviceCode)
			}
		}
		t.Capacity = round(t.Capacity, 2)
		revenue := round(t.Capacity.Div(mw).Mul(decimal.NewFromInt(int64(rule.events))).Mul(t.Compensation).Div(tenThousand), 2)
		t.Revenue = domain.Metric{
			Value:   revenue,
			Unit:    "10k CNY/year",
			Formula: "revenue = capacity / 1000 * events_per_year * compensation / 10000",
			DataSource: map[string]interface{}{
				"capacity":        t.Capacity.String(),
				"events_per_year": rule.events,
				"compensation":    t.Compensation.String(),
				"devices":         t.Devices,
			},
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}

// ROI relates the annual benefit to the platform investment
type ROI struct {
	Investment    domain.Metric `json:"total_investment"` // CNY
	PaybackPeriod domain.Metric `json:"payback_period"`   // years
	ROI           domain.Metric `json:"roi"`              // %
}

func (s *Service) ROI(ctx context.Context, annualBenefit decimal.Decimal) ROI {
	parts := map[string]decimal.Decimal{
		KeyMonitoringInvestment: s.Setting(ctx, KeyMonitoringInvestment),
		KeyControlInvestment:    s.Setting(ctx, KeyControlInvestment),
		KeyPlatformInvestment:   s.Setting(ctx, KeyPlatformInvestment),
		KeyOtherInvestment:      s.Setting(ctx, KeyOtherInvestment),
	}
	investment := decimal.Zero
	src := map[string]interface{}{"annual_benefit": annualBenefit.String()}
	for k, v := range parts {
		investment = investment.Add(v)
		src[k] = v.String()
	}
	investment = round(investment, 2)
	src["total_investment"] = investment.String()

	payback := domain.Metric{Unit: "years", Formula: "payback_period = total_investment / annual_benefit", DataSource: src}
	if annualBenefit.IsPositive() {
		payback.Value = round(investment.Div(annualBenefit), 2)
	} else {
		payback.Value = decimal.Zero
		payback.Infinite = true
	}

	roi := domain.Metric{Value: decimal.Zero, Unit: "%", Formula: "roi = annual_benefit / total_investment * 100", DataSource: src}
	if investment.IsPositive() {
		roi.Value = round(annualBenefit.Div(investment).Mul(hundred), 2)
	}

	return ROI{
		Investment: domain.Metric{
			Value:      investment,
			Unit:       "CNY",
			Formula:    "total_investment = monitoring + control + platform + other",
			DataSource: src,
		},
		PaybackPeriod: payback,
		ROI:           roi,
	}
}
