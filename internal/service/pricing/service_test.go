package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/cache"
	"github.com/seu-repo/energy-core/internal/adapter/clock"
	"github.com/seu-repo/energy-core/internal/adapter/storage/memory"
	"github.com/seu-repo/energy-core/internal/domain"
)

func seedTariff(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	windows := []domain.ElectricityPrice{
		{PeriodType: "peak", StartTime: "08:00", EndTime: "11:00", Price: decimal.RequireFromString("0.95"), IsEnabled: true},
		{PeriodType: "sharp", StartTime: "11:00", EndTime: "13:00", Price: decimal.RequireFromString("1.20"), IsEnabled: true},
		{PeriodType: "flat", StartTime: "13:00", EndTime: "23:00", Price: decimal.RequireFromString("0.50"), IsEnabled: true},
		{PeriodType: "valley", StartTime: "23:00", EndTime: "07:00", Price: decimal.RequireFromString("0.20"), IsEnabled: true},
		{PeriodType: "peak", StartTime: "07:00", EndTime: "08:00", Price: decimal.RequireFromString("9.99"), IsEnabled: false},
	}
	for i := range windows {
		if err := store.Series().SavePrice(ctx, &windows[i]); err != nil {
			t.Fatalf("seed price: %v", err)
		}
	}
}

func TestPeriodAt(t *testing.T) {
	store := memory.NewStore()
	seedTariff(t, store)
	clk := clock.NewManual(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	svc := NewService(store, nil, clk, zap.NewNop(), nil)

	tests := []struct {
		at   string
		want domain.PeriodType
	}{
		{"08:00", domain.PeriodPeak},
		{"10:59", domain.PeriodPeak},
		{"11:00", domain.PeriodSharp},
		{"13:00", domain.PeriodNormal},
		{"23:30", domain.PeriodValley},
		{"02:00", domain.PeriodValley},
		{"07:30", domain.PeriodNormal}, // disabled window, no match
	}
	for _, tt := range tests {
		t.Run(tt.at, func(t *testing.T) {
			at, _ := time.Parse("2006-01-02 15:04", "2026-01-15 "+tt.at)
			got, err := svc.PeriodAt(context.Background(), at)
			if err != nil {
				t.Fatalf("period: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPrices_FillsDefaults(t *testing.T) {
	store := memory.NewStore()
	seedTariff(t, store)
	svc := NewService(store, nil, clock.NewManual(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)), zap.NewNop(), nil)

	prices, err := svc.Prices(context.Background())
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if !prices[domain.PeriodPeak].Equal(decimal.RequireFromString("0.95")) {
		t.Errorf("peak: got %s", prices[domain.PeriodPeak])
	}
	if !prices[domain.PeriodNormal].Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("flat alias should price normal, got %s", prices[domain.PeriodNormal])
	}
	if !prices[domain.PeriodDeepValley].Equal(DefaultPrices[domain.PeriodDeepValley]) {
		t.Errorf("deep valley should take the default, got %s", prices[domain.PeriodDeepValley])
	}
}

func TestWindows_ExpiredAndCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := cache.NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	clk := clock.NewManual(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := NewService(store, c, clk, zap.NewNop(), nil)

	expired := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	_ = store.Series().SavePrice(ctx, &domain.ElectricityPrice{PeriodType: "peak", StartTime: "08:00", EndTime: "12:00", Price: decimal.NewFromInt(1), IsEnabled: true, ExpireDate: &expired})
	_ = store.Series().SavePrice(ctx, &domain.ElectricityPrice{PeriodType: "valley", StartTime: "00:00", EndTime: "08:00", Price: decimal.RequireFromString("0.3"), IsEnabled: true})

	w, err := svc.Windows(ctx)
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(w) != 1 || w[0].PeriodType != domain.PeriodValley {
		t.Fatalf("expected only the valley window, got %+v", w)
	}

	// cached until invalidated
	_ = store.Series().SavePrice(ctx, &domain.ElectricityPrice{PeriodType: "peak", StartTime: "08:00", EndTime: "12:00", Price: decimal.NewFromInt(1), IsEnabled: true})
	if w, _ := svc.Windows(ctx); len(w) != 1 {
		t.Errorf("expected cached windows, got %d", len(w))
	}
	svc.Invalidate(ctx)
	if w, _ := svc.Windows(ctx); len(w) != 2 {
		t.Errorf("expected reloaded windows, got %d", len(w))
	}
}

func TestPriceAt(t *testing.T) {
	store := memory.NewStore()
	seedTariff(t, store)
	svc := NewService(store, nil, clock.NewManual(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)), zap.NewNop(), nil)

	p, err := svc.PriceAt(context.Background(), time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !p.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("expected sharp price, got %s", p)
	}
}

func TestPeriodAt_UsesTariffOfThatDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := cache.NewLocalCache(time.Minute, zap.NewNop())
	defer c.Close()
	svc := NewService(store, c, clock.NewManual(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)), zap.NewNop(), nil)

	// a summer peak starting next week; today has no peak window
	effective := time.Date(2026, 6, 8, 0, 0, 0, 0, time.UTC)
	_ = store.Series().SavePrice(ctx, &domain.ElectricityPrice{PeriodType: "peak", StartTime: "10:00", EndTime: "12:00", Price: decimal.RequireFromString("1.05"), IsEnabled: true, EffectiveDate: &effective})

	today := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	nextWeek := time.Date(2026, 6, 9, 11, 0, 0, 0, time.UTC)

	if got, err := svc.PeriodAt(ctx, today); err != nil || got != domain.PeriodNormal {
		t.Errorf("today: expected normal, got %s (%v)", got, err)
	}
	if got, err := svc.PeriodAt(ctx, nextWeek); err != nil || got != domain.PeriodPeak {
		t.Errorf("next week: expected peak, got %s (%v)", got, err)
	}
	p, err := svc.PriceAt(ctx, nextWeek)
	if err != nil || !p.Equal(decimal.RequireFromString("1.05")) {
		t.Errorf("next week: expected 1.05, got %s (%v)", p, err)
	}
}
