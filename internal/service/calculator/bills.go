package calculator

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
)

// AveragePrice is total_cost / total_consumption of the month's bill
func (s *Service) AveragePrice(ctx context.Context, month string) domain.Metric {
	const formula = "average_price = total_cost / total_consumption"
	bill, err := s.store.Series().Bill(ctx, month)
	if err != nil || bill == nil {
		return s.noData("CNY/kWh", formula, err, map[string]interface{}{"month": month})
	}
	return billAveragePrice(bill, formula)
}

func billAveragePrice(bill *domain.ElectricityBill, formula string) domain.Metric {
	value := decimal.Zero
	if bill.TotalConsumption.IsPositive() {
		value = round(bill.TotalCost.Div(bill.TotalConsumption), 4)
	}
	return domain.Metric{
		Value:   value,
		Unit:    "CNY/kWh",
		Formula: formula,
		DataSource: map[string]interface{}{
			"month":             bill.Month,
			"total_cost":        bill.TotalCost.String(),
			"total_consumption": bill.TotalConsumption.String(),
		},
	}
}

// FluctuationRate is (max - min) / avg * 100 over the monthly average prices
func (s *Service) FluctuationRate(ctx context.Context, months []string) domain.Metric {
	const formula = "fluctuation_rate = (max(price) - min(price)) / avg(price) * 100"
	bills, err := s.store.Series().Bills(ctx, months)
	if err != nil {
		return s.noData("%", formula, err, map[string]interface{}{"months": months})
	}

	var prices []decimal.Decimal
	used := make([]string, 0, len(bills))
	for i := range bills {
		if !bills[i].TotalConsumption.IsPositive() {
			continue
		}
		prices = append(prices, billAveragePrice(&bills[i], "").Value)
		used = append(used, bills[i].Month)
	}
	if len(prices) < 2 {
		return s.noData("%", formula, nil, map[string]interface{}{"months": months, "months_with_data": used})
	}

	max, min, sum := prices[0], prices[0], decimal.Zero
	for _, p := range prices {
		max = decimal.Max(max, p)
		min = decimal.Min(min, p)
		sum = sum.Add(p)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(prices))))

	value := decimal.Zero
	if avg.IsPositive() {
		value = round(max.Sub(min).Div(avg).Mul(hundred), 2)
	}
	return domain.Metric{
		Value:   value,
		Unit:    "%",
		Formula: formula,
		DataSource: map[string]interface{}{
			"months":    used,
			"max_price": max.String(),
			"min_price": min.String(),
			"avg_price": round(avg, 4).String(),
		},
	}
}

// PeakRatio is the share of the month's consumption billed at peak
func (s *Service) PeakRatio(ctx context.Context, month string) domain.Metric {
	return s.consumptionRatio(ctx, month, "peak_ratio = peak_consumption / total_consumption * 100",
		func(b *domain.ElectricityBill) decimal.Decimal { return b.PeakConsumption })
}

// ValleyRatio is the share of the month's consumption billed at valley
func (s *Service) ValleyRatio(ctx context.Context, month string) domain.Metric {
	return s.consumptionRatio(ctx, month, "valley_ratio = valley_consumption / total_consumption * 100",
		func(b *domain.ElectricityBill) decimal.Decimal { return b.ValleyConsumption })
}

func (s *Service) consumptionRatio(ctx context.Context, month, formula string, part func(*domain.ElectricityBill) decimal.Decimal) domain.Metric {
	bill, err := s.store.Series().Bill(ctx, month)
	if err != nil || bill == nil {
		return s.noData("%", formula, err, map[string]interface{}{"month": month})
	}
	return ratioMetric(part(bill), bill.TotalConsumption, formula, map[string]interface{}{
		"month":             month,
		"part":              part(bill).String(),
		"total_consumption": bill.TotalConsumption.String(),
	})
}

// CostStructure splits the month's bill into fee classes as a share of total cost
type CostStructure struct {
	Month              string        `json:"month"`
	BasicFee           domain.Metric `json:"basic_fee"`
	MarketPurchaseFee  domain.Metric `json:"market_purchase_fee"`
	TransmissionFee    domain.Metric `json:"transmission_fee"`
	SystemOperationFee domain.Metric `json:"system_operation_fee"`
	GovernmentFund     domain.Metric `json:"government_fund"`
}

func (s *Service) CostStructure(ctx context.Context, month string) CostStructure {
	out := CostStructure{Month: month}
	bill, err := s.store.Series().Bill(ctx, month)
	fields := []struct {
		name string
		dst  *domain.Metric
		get  func(*domain.ElectricityBill) decimal.Decimal
	}{
		{"basic_fee", &out.BasicFee, func(b *domain.ElectricityBill) decimal.Decimal { return b.BasicFee }},
		{"market_purchase_fee", &out.MarketPurchaseFee, func(b *domain.ElectricityBill) decimal.Decimal { return b.MarketPurchaseFee }},
		{"transmission_fee", &out.TransmissionFee, func(b *domain.ElectricityBill) decimal.Decimal { return b.TransmissionFee }},
		{"system_operation_fee", &out.SystemOperationFee, func(b *domain.ElectricityBill) decimal.Decimal { return b.SystemOperationFee }},
		{"government_fund", &out.GovernmentFund, func(b *domain.ElectricityBill) decimal.Decimal { return b.GovernmentFund }},
	}
	for _, f := range fields {
		formula := f.name + "_ratio = " + f.name + " / total_cost * 100"
		if err != nil || bill == nil {
			*f.dst = s.noData("%", formula, err, map[string]interface{}{"month": month})
			continue
		}
		*f.dst = ratioMetric(f.get(bill), bill.TotalCost, formula, map[string]interface{}{
			"month":      month,
			f.name:       f.get(bill).String(),
			"total_cost": bill.TotalCost.String(),
		})
	}
	return out
}

func ratioMetric(part, total decimal.Decimal, formula string, source map[string]interface{}) domain.Metric {
	value := decimal.Zero
	if total.IsPositive() {
		value = round(part.Div(total).Mul(hundred), 2)
	}
	return domain.Metric{Value: value, Unit: "%", Formula: formula, DataSource: source}
}

// noData logs store failures and returns the degraded metric
func (s *Service) noData(unit, formula string, err error, source map[string]interface{}) domain.Metric {
	m := domain.NoData(unit, formula, source)
	if err != nil {
		s.log.Warn("Metric source unavailable", zap.String("formula", formula), zap.Error(err))
		m.DataSource["error"] = err.Error()
	}
	return m
}
