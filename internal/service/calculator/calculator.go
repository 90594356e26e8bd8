package calculator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/cache"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/pricing"
)

// Service computes the analytics metrics. Every result carries its formula and
// the inputs it was derived from.
type Service struct {
	store   ports.Store
	pricing ports.Pricing
	cache   ports.Cache
	log     *zap.Logger
	config  *Config
}

type Config struct {
	// SettingsTTL bounds how long the key-value settings are served from cache
	SettingsTTL time.Duration
}

func DefaultConfig() *Config {
	return &Config{SettingsTTL: time.Minute}
}

func NewService(store ports.Store, pricing ports.Pricing, c ports.Cache, log *zap.Logger, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{
		store:   store,
		pricing: pricing,
		cache:   c,
		log:     log,
		config:  config,
	}
}

// Setting keys
const (
	KeyTargetDemandRatio    = "target_demand_ratio"
	KeyDemandPrice          = "demand_price"
	KeyDailyShiftHours      = "daily_shift_hours"
	KeyResponseCount        = "response_count"
	KeyResponsePrice        = "response_price"
	KeyServiceHours         = "service_hours"
	KeyServicePrice         = "service_price"
	KeyArbitrageHours       = "arbitrage_hours"
	KeyPriceSpreadSpot      = "price_spread_spot"
	KeyMonitoringInvestment = "monitoring_investment"
	KeyControlInvestment    = "control_investment"
	KeyPlatformInvestment   = "platform_investment"
	KeyOtherInvestment      = "other_investment"
	KeyPeakPrice            = "peak_price"
	KeyValleyPrice          = "valley_price"
	KeyAnnualWorkingDays    = "annual_working_days"
)

// Defaults apply whenever a key is absent from the settings store or unparsable
var Defaults = map[string]decimal.Decimal{
	KeyTargetDemandRatio:    decimal.RequireFromString("0.9"),
	KeyDemandPrice:          decimal.NewFromInt(40), // CNY/kW/month
	KeyDailyShiftHours:      decimal.NewFromInt(4),
	KeyResponseCount:        decimal.NewFromInt(20), // events/year
	KeyResponsePrice:        decimal.NewFromInt(4),  // CNY/kW per event
	KeyServiceHours:         decimal.NewFromInt(200),
	KeyServicePrice:         decimal.RequireFromString("0.75"), // CNY/kW/h
	KeyArbitrageHours:       decimal.NewFromInt(500),
	KeyPriceSpreadSpot:      decimal.RequireFromString("0.3"), // CNY/kWh
	KeyMonitoringInvestment: decimal.NewFromInt(500000),
	KeyControlInvestment:    decimal.NewFromInt(800000),
	KeyPlatformInvestment:   decimal.NewFromInt(200000),
	KeyOtherInvestment:      decimal.NewFromInt(100000),
	KeyPeakPrice:            pricing.DefaultPrices[domain.PeriodPeak],
	KeyValleyPrice:          pricing.DefaultPrices[domain.PeriodValley],
	KeyAnnualWorkingDays:    decimal.NewFromInt(300),
}

var (
	hundred     = decimal.NewFromInt(100)
	tenThousand = decimal.NewFromInt(10000)
	twelve      = decimal.NewFromInt(12)
	daysPerYear = decimal.NewFromInt(365)
)

func round(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundBank(places)
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Setting returns the configured value of key, or its documented default
func (s *Service) Setting(ctx context.Context, key string) decimal.Decimal {
	def := Defaults[key]
	all, err := s.settings(ctx)
	if err != nil {
		s.log.Warn("Falling back to default setting", zap.String("key", key), zap.Error(err))
		return def
	}
	raw, ok := all[key]
	if !ok {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		s.log.Warn("Ignoring malformed setting", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return v
}

// SetSetting stores a numeric setting and invalidates the cached copy
func (s *Service) SetSetting(ctx context.Context, key string, value decimal.Decimal) error {
	if _, known := Defaults[key]; !known {
		return domain.Validation("unknown setting %q", key)
	}
	if value.IsNegative() {
		return domain.Validation("setting %s must not be negative", key)
	}
	if err := s.store.Settings().Set(ctx, key, value.String()); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.KeySettings); err != nil {
			s.log.Warn("Failed to invalidate settings cache", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) settings(ctx context.Context) (map[string]string, error) {
	var all map[string]string
	if cache.GetJSON(ctx, s.cache, cache.KeySettings, &all) {
		return all, nil
	}
	all, err := s.store.Settings().All(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, cache.KeySettings, all, s.config.SettingsTTL); err != nil {
		s.log.Debug("Failed to cache settings", zap.Error(err))
	}
	return all, nil
}

// prices resolves the tariff, preferring the pricing port over the flat settings
func (s *Service) prices(ctx context.Context) map[domain.PeriodType]decimal.Decimal {
	if s.pricing != nil {
		p, err := s.pricing.Prices(ctx)
		if err == nil {
			return p
		}
		s.log.Warn("Pricing unavailable, using configured peak/valley prices", zap.Error(err))
	}
	prices := make(map[domain.PeriodType]decimal.Decimal, len(pricing.DefaultPrices))
	for pt, p := range pricing.DefaultPrices {
		prices[pt] = p
	}
	prices[domain.PeriodPeak] = s.Setting(ctx, KeyPeakPrice)
	prices[domain.PeriodValley] = s.Setting(ctx, KeyValleyPrice)
	return prices
}

// price returns the price of a period, falling back to the next cheaper known period
func price(prices map[domain.PeriodType]decimal.Decimal, pt domain.PeriodType) decimal.Decimal {
	if p, ok := prices[pt]; ok {
		return p
	}
	switch pt {
	case domain.PeriodSharp:
		return price(prices, domain.PeriodPeak)
	case domain.PeriodDeepValley:
		return price(prices, domain.PeriodValley)
	}
	return decimal.Zero
}

// WorkingDays estimates working days in the closed date range as floor(days*5/7)
func WorkingDays(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	if t.Before(f) {
		return 0
	}
	days := int(t.Sub(f).Hours()/24) + 1
	return days * 5 / 7
}

// dayBounds returns the closed interval covering the calendar day of t
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
