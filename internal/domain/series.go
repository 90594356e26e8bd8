package domain

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var billMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// EnergyDaily is the per-device daily energy bucket split by price period
type EnergyDaily struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	DeviceID         string          `json:"device_id" gorm:"type:uuid;uniqueIndex:idx_energy_daily_device_date"`
	StatDate         time.Time       `json:"stat_date" gorm:"type:date;uniqueIndex:idx_energy_daily_device_date"`
	TotalEnergy      decimal.Decimal `json:"total_energy" gorm:"type:numeric(14,2)"`
	SharpEnergy      decimal.Decimal `json:"sharp_energy" gorm:"type:numeric(14,2)"`
	PeakEnergy       decimal.Decimal `json:"peak_energy" gorm:"type:numeric(14,2)"`
	FlatEnergy       decimal.Decimal `json:"flat_energy" gorm:"type:numeric(14,2)"`
	ValleyEnergy     decimal.Decimal `json:"valley_energy" gorm:"type:numeric(14,2)"`
	DeepValleyEnergy decimal.Decimal `json:"deep_valley_energy" gorm:"type:numeric(14,2)"`
	MaxPower         float64         `json:"max_power"`
	AvgPower         float64         `json:"avg_power"`
}

// EnergyHourly is the per-device hourly energy bucket
type EnergyHourly struct {
	ID       uint            `json:"id" gorm:"primaryKey"`
	DeviceID string          `json:"device_id" gorm:"type:uuid;index"`
	StatTime time.Time       `json:"stat_time" gorm:"index"`
	Energy   decimal.Decimal `json:"energy" gorm:"type:numeric(14,2)"`
	AvgPower float64         `json:"avg_power"`
	MaxPower float64         `json:"max_power"`
}

// Demand15Min is the mean power of one quarter-hour demand window
type Demand15Min struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	MeterPointID string    `json:"meter_point_id" gorm:"type:uuid;uniqueIndex:idx_demand_meter_ts"`
	Timestamp    time.Time `json:"timestamp" gorm:"uniqueIndex:idx_demand_meter_ts"`
	AvgPower     float64   `json:"avg_power"` // kW
}

// Aligned reports whether the record sits on a quarter-hour boundary
func (d *Demand15Min) Aligned() bool {
	return d.Timestamp.Minute()%15 == 0 && d.Timestamp.Second() == 0 && d.Timestamp.Nanosecond() == 0
}

// DemandHistory summarises one month of demand for a meter point
type DemandHistory struct {
	ID                uint    `json:"id" gorm:"primaryKey"`
	MeterPointID      string  `json:"meter_point_id" gorm:"type:uuid;uniqueIndex:idx_demand_hist"`
	StatYear          int     `json:"stat_year" gorm:"uniqueIndex:idx_demand_hist"`
	StatMonth         int     `json:"stat_month" gorm:"uniqueIndex:idx_demand_hist"`
	DeclaredDemand    float64 `json:"declared_demand"`
	MaxDemand         float64 `json:"max_demand"`
	AvgDemand         float64 `json:"avg_demand"`
	Demand95th        float64 `json:"demand_95th"`
	OverDeclaredCount int     `json:"over_declared_count"`
}

// ElectricityBill is one month of the utility bill with itemised cost structure
type ElectricityBill struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	Month              string          `json:"month" gorm:"uniqueIndex;size:7"` // YYYY-MM
	TotalConsumption   decimal.Decimal `json:"total_consumption" gorm:"type:numeric(14,2)"`
	PeakConsumption    decimal.Decimal `json:"peak_consumption" gorm:"type:numeric(14,2)"`
	ValleyConsumption  decimal.Decimal `json:"valley_consumption" gorm:"type:numeric(14,2)"`
	FlatConsumption    decimal.Decimal `json:"flat_consumption" gorm:"type:numeric(14,2)"`
	MaxDemand          decimal.Decimal `json:"max_demand" gorm:"type:numeric(12,2)"`
	PowerFactor        decimal.Decimal `json:"power_factor" gorm:"type:numeric(5,3)"`
	TotalCost          decimal.Decimal `json:"total_cost" gorm:"type:numeric(14,2)"`
	BasicFee           decimal.Decimal `json:"basic_fee" gorm:"type:numeric(14,2)"`
	MarketPurchaseFee  decimal.Decimal `json:"market_purchase_fee" gorm:"type:numeric(14,2)"`
	TransmissionFee    decimal.Decimal `json:"transmission_fee" gorm:"type:numeric(14,2)"`
	SystemOperationFee decimal.Decimal `json:"system_operation_fee" gorm:"type:numeric(14,2)"`
	GovernmentFund     decimal.Decimal `json:"government_fund" gorm:"type:numeric(14,2)"`
}

func (b *ElectricityBill) Validate() error {
	if !billMonthPattern.MatchString(b.Month) {
		return Validation("bill month must be YYYY-MM, got %q", b.Month)
	}
	if b.TotalConsumption.IsNegative() || b.TotalCost.IsNegative() {
		return Validation("bill %s has negative totals", b.Month)
	}
	return nil
}

// LoadCurvePoint is one sample of the site load curve
type LoadCurvePoint struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	MeterPointID string    `json:"meter_point_id,omitempty" gorm:"type:uuid;index"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
	Power        float64   `json:"power"` // kW
}

// ConfigEntry is a key-value tunable read by the calculator
type ConfigEntry struct {
	Key         string    `json:"key" gorm:"primaryKey;size:64"`
	Value       string    `json:"value" gorm:"size:255"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
