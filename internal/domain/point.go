package domain

import (
	"strings"
	"time"
)

// PointType is the signal class of a measurement point
type PointType string

const (
	PointAI PointType = "AI"
	PointDI PointType = "DI"
	PointAO PointType = "AO"
	PointDO PointType = "DO"
)

func ParsePointType(s string) (PointType, error) {
	switch PointType(strings.ToUpper(s)) {
	case PointAI, PointDI, PointAO, PointDO:
		return PointType(strings.ToUpper(s)), nil
	}
	return "", Validation("unknown point type %q", s)
}

// PointQuality follows the usual good/uncertain/bad scale
type PointQuality int

const (
	QualityGood      PointQuality = 0
	QualityUncertain PointQuality = 1
	QualityBad       PointQuality = 2
)

// PointUsage is the role a point plays for its device
type PointUsage string

const (
	UsagePower       PointUsage = "power"
	UsageCurrent     PointUsage = "current"
	UsageEnergy      PointUsage = "energy"
	UsageVoltage     PointUsage = "voltage"
	UsagePowerFactor PointUsage = "power_factor"
)

// PointUsages is the canonical usage order
var PointUsages = []PointUsage{UsagePower, UsageCurrent, UsageEnergy, UsageVoltage, UsagePowerFactor}

func ParsePointUsage(s string) (PointUsage, error) {
	for _, u := range PointUsages {
		if string(u) == s {
			return u, nil
		}
	}
	return "", Validation("unknown point usage %q", s)
}

// PointBindings maps a usage to a point id
type PointBindings map[PointUsage]string

// Point is a physical measurement point of the acquisition system
type Point struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	Code           string    `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name           string    `json:"name" gorm:"size:128"`
	Type           PointType `json:"type" gorm:"size:4"`
	DeviceType     string    `json:"device_type,omitempty" gorm:"size:32"`
	AreaCode       string    `json:"area_code,omitempty" gorm:"size:32;index"`
	Unit           string    `json:"unit,omitempty" gorm:"size:16"`
	RangeMin       *float64  `json:"range_min,omitempty"`
	RangeMax       *float64  `json:"range_max,omitempty"`
	Precision      int       `json:"precision"`
	IsEnabled      bool      `json:"is_enabled"`
	EnergyDeviceID *string   `json:"energy_device_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *Point) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return Validation("point code is required")
	}
	if p.Type == "" {
		p.Type = PointAI
	}
	if _, err := ParsePointType(string(p.Type)); err != nil {
		return err
	}
	if p.RangeMin != nil && p.RangeMax != nil && *p.RangeMin > *p.RangeMax {
		return Validation("point %s range min exceeds max", p.Code)
	}
	return nil
}

// PointRealtime holds the latest sample of a point
type PointRealtime struct {
	PointID   string       `json:"point_id" gorm:"primaryKey;type:uuid"`
	Value     float64      `json:"value"`
	Quality   PointQuality `json:"quality"`
	Status    string       `json:"status" gorm:"size:16"`
	UpdatedAt time.Time    `json:"updated_at"`
}
