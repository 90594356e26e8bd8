package domain

import "github.com/shopspring/decimal"

// Metric is a calculated value together with how it was obtained
type Metric struct {
	Value      decimal.Decimal        `json:"value"`
	Unit       string                 `json:"unit"`
	Formula    string                 `json:"formula"`
	DataSource map[string]interface{} `json:"data_source"`
	// Infinite marks results such as a payback period with no benefit
	Infinite bool `json:"infinite,omitempty"`
}

// Failed reports whether the metric degraded because its inputs were missing
func (m Metric) Failed() bool {
	_, ok := m.DataSource["error"]
	return ok
}

// NoData builds the zeroed result returned when a metric has nothing to work on
func NoData(unit, formula string, source map[string]interface{}) Metric {
	ds := map[string]interface{}{"error": "no data"}
	for k, v := range source {
		ds[k] = v
	}
	return Metric{Value: decimal.Zero, Unit: unit, Formula: formula, DataSource: ds}
}
