package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodType is a time-of-use price class
type PeriodType string

const (
	PeriodSharp      PeriodType = "sharp"
	PeriodPeak       PeriodType = "peak"
	PeriodNormal     PeriodType = "normal"
	PeriodValley     PeriodType = "valley"
	PeriodDeepValley PeriodType = "deep_valley"
)

// PeriodTypes lists the price classes from most to least expensive
var PeriodTypes = []PeriodType{PeriodSharp, PeriodPeak, PeriodNormal, PeriodValley, PeriodDeepValley}

var periodAliases = map[string]PeriodType{
	"sharp":       PeriodSharp,
	"peak":        PeriodPeak,
	"high":        PeriodPeak,
	"normal":      PeriodNormal,
	"flat":        PeriodNormal,
	"mid":         PeriodNormal,
	"valley":      PeriodValley,
	"low":         PeriodValley,
	"off_peak":    PeriodValley,
	"deep_valley": PeriodDeepValley,
}

// ParsePeriodType accepts the canonical names and the aliases found in tariff sheets
func ParsePeriodType(s string) (PeriodType, error) {
	if p, ok := periodAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", Validation("unknown period type %q", s)
}

// ElectricityPrice is one time-of-use window of the tariff
type ElectricityPrice struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	PeriodType    PeriodType      `json:"period_type" gorm:"size:16;index"`
	StartTime     string          `json:"start_time" gorm:"size:5"` // HH:MM inclusive
	EndTime       string          `json:"end_time" gorm:"size:5"`   // HH:MM exclusive
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(8,4)"`
	EffectiveDate *time.Time      `json:"effective_date,omitempty" gorm:"type:date"`
	ExpireDate    *time.Time      `json:"expire_date,omitempty" gorm:"type:date"`
	IsEnabled     bool            `json:"is_enabled"`
}

func (p *ElectricityPrice) Validate() error {
	if _, err := ParsePeriodType(string(p.PeriodType)); err != nil {
		return err
	}
	if _, err := ParseClock(p.StartTime); err != nil {
		return err
	}
	if _, err := ParseClock(p.EndTime); err != nil {
		return err
	}
	if p.Price.IsNegative() {
		return Validation("price must not be negative")
	}
	return nil
}

// Contains reports whether the time of day of t falls in [start, end).
// A window whose end is not after its start wraps past midnight.
func (p *ElectricityPrice) Contains(t time.Time) bool {
	start, err := ParseClock(p.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(p.EndTime)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// ActiveOn reports whether the window is enabled and in force on day
func (p *ElectricityPrice) ActiveOn(day time.Time) bool {
	if !p.IsEnabled {
		return false
	}
	if p.EffectiveDate != nil && day.Before(*p.EffectiveDate) {
		return false
	}
	if p.ExpireDate != nil && !day.Before(p.ExpireDate.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// ParseClock converts HH:MM into minutes since midnight. "24:00" is accepted as an end bound.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || len(s) != 5 {
		return 0, Validation("time must be HH:MM, got %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, Validation("time out of range: %q", s)
	}
	return h*60 + m, nil
}
