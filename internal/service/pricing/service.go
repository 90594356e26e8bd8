package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/cache"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// DefaultPrices fill the periods the tariff table does not define (CNY/kWh)
var DefaultPrices = map[domain.PeriodType]decimal.Decimal{
	domain.PeriodSharp:      decimal.RequireFromString("1.1"),
	domain.PeriodPeak:       decimal.RequireFromString("0.68"),
	domain.PeriodNormal:     decimal.RequireFromString("0.425"),
	domain.PeriodValley:     decimal.RequireFromString("0.111"),
	domain.PeriodDeepValley: decimal.RequireFromString("0.08"),
}

// FallbackPrice is the blended price used when a period cannot be resolved
var FallbackPrice = decimal.RequireFromString("0.436")

// Service implements ports.Pricing on top of the electricity_prices table
type Service struct {
	store  ports.Store
	cache  ports.Cache
	clock  ports.Clock
	log    *zap.Logger
	config *Config
}

type Config struct {
	CacheTTL time.Duration
	// Location is the timezone the HH:MM windows are expressed in
	Location *time.Location
}

func DefaultConfig() *Config {
	return &Config{
		CacheTTL: 5 * time.Minute,
		Location: time.UTC,
	}
}

func NewService(store ports.Store, c ports.Cache, clock ports.Clock, log *zap.Logger, config *Config) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Service{
		store:  store,
		cache:  c,
		clock:  clock,
		log:    log,
		config: config,
	}
}

var _ ports.Pricing = (*Service)(nil)

// Windows returns the tariff windows in force today, ordered by start time
func (s *Service) Windows(ctx context.Context) ([]domain.ElectricityPrice, error) {
	return s.windowsOn(ctx, s.clock.Now())
}

// windowsOn returns the windows in force on the local calendar day of t
func (s *Service) windowsOn(ctx context.Context, t time.Time) ([]domain.ElectricityPrice, error) {
	day := t.In(s.config.Location)
	key := fmt.Sprintf("%s:%s", cache.KeyPriceWindows, day.Format("20060102"))

	var windows []domain.ElectricityPrice
	if cache.GetJSON(ctx, s.cache, key, &windows) {
		return windows, nil
	}

	all, err := s.store.Series().Prices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load electricity prices: %w", err)
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.config.Location)
	for _, p := range all {
		if p.ActiveOn(midnight) {
			windows = append(windows, p)
		}
	}
	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].StartTime != windows[j].StartTime {
			return windows[i].StartTime < windows[j].StartTime
		}
		return windows[i].ID < windows[j].ID
	})

	if err := cache.SetJSON(ctx, s.cache, key, windows, s.config.CacheTTL); err != nil {
		s.log.Warn("Failed to cache price windows", zap.Error(err))
	}
	return windows, nil
}

// Prices returns one price per period for today. The first window of a period
// wins and periods without windows take DefaultPrices.
func (s *Service) Prices(ctx context.Context) (map[domain.PeriodType]decimal.Decimal, error) {
	windows, err := s.Windows(ctx)
	if err != nil {
		return nil, err
	}
	return s.prices(windows), nil
}

func (s *Service) prices(windows []domain.ElectricityPrice) map[domain.PeriodType]decimal.Decimal {
	prices := make(map[domain.PeriodType]decimal.Decimal, len(domain.PeriodTypes))
	for _, w := range windows {
		pt, err := domain.ParsePeriodType(string(w.PeriodType))
		if err != nil {
			s.log.Warn("Skipping price window with unknown period", zap.String("period_type", string(w.PeriodType)))
			continue
		}
		if _, seen := prices[pt]; !seen {
			prices[pt] = w.Price
		}
	}
	for pt, def := range DefaultPrices {
		if _, ok := prices[pt]; !ok {
			prices[pt] = def
		}
	}
	return prices
}

// PeriodAt classifies t by the half-open windows in force on t's own day.
// Times outside every window are treated as normal.
func (s *Service) PeriodAt(ctx context.Context, t time.Time) (domain.PeriodType, error) {
	windows, err := s.windowsOn(ctx, t)
	if err != nil {
		return "", err
	}
	return periodIn(windows, t.In(s.config.Location)), nil
}

func periodIn(windows []domain.ElectricityPrice, local time.Time) domain.PeriodType {
	for _, w := range windows {
		if w.Contains(local) {
			if pt, err := domain.ParsePeriodType(string(w.PeriodType)); err == nil {
				return pt
			}
		}
	}
	return domain.PeriodNormal
}

// PriceAt is the price that applies at t, under the tariff of t's day
func (s *Service) PriceAt(ctx context.Context, t time.Time) (decimal.Decimal, error) {
	windows, err := s.windowsOn(ctx, t)
	if err != nil {
		return FallbackPrice, err
	}
	pt := periodIn(windows, t.In(s.config.Location))
	if p, ok := s.prices(windows)[pt]; ok {
		return p, nil
	}
	return FallbackPrice, nil
}

// Invalidate drops today's cached windows after the tariff table changes
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	day := s.clock.Now().In(s.config.Location)
	key := fmt.Sprintf("%s:%s", cache.KeyPriceWindows, day.Format("20060102"))
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("Failed to invalidate price cache", zap.Error(err))
	}
}
