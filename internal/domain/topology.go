package domain

import (
	"fmt"
	"strings"
	"time"
)

// MaxPanelDepth bounds the nesting of distribution panels
const MaxPanelDepth = 10

// NodeKind identifies a level of the electrical hierarchy
type NodeKind string

const (
	KindTransformer NodeKind = "transformer"
	KindMeterPoint  NodeKind = "meter_point"
	KindPanel       NodeKind = "panel"
	KindCircuit     NodeKind = "circuit"
	KindDevice      NodeKind = "device"
)

// NodeKinds lists the hierarchy from root to leaf
var NodeKinds = []NodeKind{KindTransformer, KindMeterPoint, KindPanel, KindCircuit, KindDevice}

func ParseNodeKind(s string) (NodeKind, error) {
	for _, k := range NodeKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", Validation("unknown node kind %q", s)
}

// ParentKind returns the kind a node of kind k must hang under. Transformers are roots.
func (k NodeKind) ParentKind() NodeKind {
	switch k {
	case KindMeterPoint:
		return KindTransformer
	case KindPanel:
		return KindMeterPoint
	case KindCircuit:
		return KindPanel
	case KindDevice:
		return KindCircuit
	}
	return ""
}

// Node is implemented by every hierarchy entity
type Node interface {
	Kind() NodeKind
	NodeID() string
	NodeCode() string
	// ParentRef is the id of the owning node, empty for transformers
	ParentRef() string
	Validate() error
}

type TransformerStatus string

const (
	TransformerRunning TransformerStatus = "running"
	TransformerStandby TransformerStatus = "standby"
	TransformerFault   TransformerStatus = "fault"
	TransformerOff     TransformerStatus = "off"
)

func ParseTransformerStatus(s string) (TransformerStatus, error) {
	switch TransformerStatus(s) {
	case TransformerRunning, TransformerStandby, TransformerFault, TransformerOff:
		return TransformerStatus(s), nil
	}
	return "", Validation("unknown transformer status %q", s)
}

type PanelType string

const (
	PanelMain      PanelType = "main"
	PanelSub       PanelType = "sub"
	PanelUPSInput  PanelType = "ups_input"
	PanelUPSOutput PanelType = "ups_output"
)

func ParsePanelType(s string) (PanelType, error) {
	switch PanelType(s) {
	case PanelMain, PanelSub, PanelUPSInput, PanelUPSOutput:
		return PanelType(s), nil
	}
	return "", Validation("unknown panel type %q", s)
}

type LoadType string

const (
	LoadITEquipment LoadType = "it_equipment"
	LoadHVAC        LoadType = "hvac"
	LoadLighting    LoadType = "lighting"
	LoadUPS         LoadType = "ups"
	LoadPump        LoadType = "pump"
	LoadOther       LoadType = "other"
)

func ParseLoadType(s string) (LoadType, error) {
	switch LoadType(s) {
	case LoadITEquipment, LoadHVAC, LoadLighting, LoadUPS, LoadPump, LoadOther:
		return LoadType(s), nil
	}
	return "", Validation("unknown load type %q", s)
}

// Transformer is the root of the hierarchy
type Transformer struct {
	ID            string            `json:"id" gorm:"primaryKey;type:uuid"`
	Code          string            `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name          string            `json:"name" gorm:"size:128;not null"`
	RatedCapacity float64           `json:"rated_capacity"` // kVA
	HighVoltage   float64           `json:"high_voltage"`   // kV
	LowVoltage    float64           `json:"low_voltage"`    // kV
	Status        TransformerStatus `json:"status" gorm:"size:16"`
	Location      string            `json:"location,omitempty"`
	IsEnabled     bool              `json:"is_enabled"`
	CreatedAt     time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (t *Transformer) Kind() NodeKind    { return KindTransformer }
func (t *Transformer) NodeID() string    { return t.ID }
func (t *Transformer) NodeCode() string  { return t.Code }
func (t *Transformer) ParentRef() string { return "" }

func (t *Transformer) Validate() error {
	if err := validateIdentity(KindTransformer, t.Code, t.Name); err != nil {
		return err
	}
	if t.RatedCapacity <= 0 {
		return Validation("transformer rated capacity must be positive, got %v", t.RatedCapacity)
	}
	if t.HighVoltage < 0 || t.LowVoltage < 0 {
		return Validation("transformer voltages must not be negative")
	}
	if t.Status == "" {
		t.Status = TransformerRunning
	}
	_, err := ParseTransformerStatus(string(t.Status))
	return err
}

// MeterPoint is a billing meter under a transformer
type MeterPoint struct {
	ID             string    `json:"id" gorm:"primaryKey;type:uuid"`
	TransformerID  string    `json:"transformer_id" gorm:"type:uuid;index;not null"`
	Code           string    `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name           string    `json:"name" gorm:"size:128;not null"`
	DeclaredDemand float64   `json:"declared_demand"` // kW
	DemandType     string    `json:"demand_type,omitempty" gorm:"size:16"`
	DemandWindow   int       `json:"demand_window"` // minutes
	CTRatio        float64   `json:"ct_ratio"`
	PTRatio        float64   `json:"pt_ratio"`
	CustomerNo     string    `json:"customer_no,omitempty" gorm:"size:64"`
	IsEnabled      bool      `json:"is_enabled"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (m *MeterPoint) Kind() NodeKind    { return KindMeterPoint }
func (m *MeterPoint) NodeID() string    { return m.ID }
func (m *MeterPoint) NodeCode() string  { return m.Code }
func (m *MeterPoint) ParentRef() string { return m.TransformerID }

func (m *MeterPoint) Validate() error {
	if err := validateIdentity(KindMeterPoint, m.Code, m.Name); err != nil {
		return err
	}
	if m.DeclaredDemand < 0 {
		return Validation("declared demand must not be negative, got %v", m.DeclaredDemand)
	}
	if m.DemandWindow == 0 {
		m.DemandWindow = 15
	}
	if m.DemandWindow < 0 {
		return Validation("demand window must be positive, got %d", m.DemandWindow)
	}
	if m.CTRatio < 0 || m.PTRatio < 0 {
		return Validation("CT/PT ratios must not be negative")
	}
	return nil
}

// DistributionPanel hangs under a meter point and optionally under another panel
type DistributionPanel struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid"`
	MeterPointID string    `json:"meter_point_id" gorm:"type:uuid;index;not null"`
	ParentID     *string   `json:"parent_id,omitempty" gorm:"type:uuid;index"`
	Code         string    `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	PanelType    PanelType `json:"panel_type" gorm:"size:16"`
	RatedCurrent float64   `json:"rated_current"` // A
	AreaCode     string    `json:"area_code,omitempty" gorm:"size:32"`
	IsEnabled    bool      `json:"is_enabled"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *DistributionPanel) Kind() NodeKind    { return KindPanel }
func (p *DistributionPanel) NodeID() string    { return p.ID }
func (p *DistributionPanel) NodeCode() string  { return p.Code }
func (p *DistributionPanel) ParentRef() string { return p.MeterPointID }

func (p *DistributionPanel) Validate() error {
	if err := validateIdentity(KindPanel, p.Code, p.Name); err != nil {
		return err
	}
	if p.RatedCurrent < 0 {
		return Validation("panel rated current must not be negative, got %v", p.RatedCurrent)
	}
	if p.PanelType == "" {
		p.PanelType = PanelSub
	}
	if p.ParentID != nil && *p.ParentID == "" {
		p.ParentID = nil
	}
	if p.ParentID != nil && *p.ParentID == p.ID && p.ID != "" {
		return InvalidParent("panel %s cannot be its own parent", p.Code)
	}
	_, err := ParsePanelType(string(p.PanelType))
	return err
}

// DistributionCircuit is an outgoing feeder of a panel
type DistributionCircuit struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	PanelID       string    `json:"panel_id" gorm:"type:uuid;index;not null"`
	Code          string    `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name          string    `json:"name" gorm:"size:128;not null"`
	LoadType      LoadType  `json:"load_type" gorm:"size:16"`
	RatedCurrent  float64   `json:"rated_current"`
	IsShiftable   bool      `json:"is_shiftable"`
	ShiftPriority int       `json:"shift_priority"` // 1 (first) .. 10
	IsEnabled     bool      `json:"is_enabled"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *DistributionCircuit) Kind() NodeKind    { return KindCircuit }
func (c *DistributionCircuit) NodeID() string    { return c.ID }
func (c *DistributionCircuit) NodeCode() string  { return c.Code }
func (c *DistributionCircuit) ParentRef() string { return c.PanelID }

func (c *DistributionCircuit) Validate() error {
	if err := validateIdentity(KindCircuit, c.Code, c.Name); err != nil {
		return err
	}
	if c.LoadType == "" {
		c.LoadType = LoadOther
	}
	if _, err := ParseLoadType(string(c.LoadType)); err != nil {
		return err
	}
	if c.ShiftPriority == 0 {
		c.ShiftPriority = 5
	}
	if c.ShiftPriority < 1 || c.ShiftPriority > 10 {
		return Validation("shift priority must be within 1..10, got %d", c.ShiftPriority)
	}
	if c.RatedCurrent < 0 {
		return Validation("circuit rated current must not be negative")
	}
	return nil
}

// PowerDevice is a metered or unmetered load on a circuit
type PowerDevice struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:uuid"`
	CircuitID          string    `json:"circuit_id" gorm:"type:uuid;index;not null"`
	Code               string    `json:"code" gorm:"uniqueIndex;size:64;not null"`
	Name               string    `json:"name" gorm:"size:128;not null"`
	DeviceType         string    `json:"device_type" gorm:"size:32;index"`
	RatedPower         float64   `json:"rated_power"` // kW
	AreaCode           string    `json:"area_code,omitempty" gorm:"size:32"`
	Efficiency         float64   `json:"efficiency,omitempty"`    // %
	AvgLoadRate        float64   `json:"avg_load_rate,omitempty"` // %
	IsITLoad           bool      `json:"is_it_load"`
	IsCritical         bool      `json:"is_critical"`
	IsMetered          bool      `json:"is_metered"`
	IsEnabled          bool      `json:"is_enabled"`
	PowerPointID       *string   `json:"power_point_id,omitempty" gorm:"type:uuid"`
	CurrentPointID     *string   `json:"current_point_id,omitempty" gorm:"type:uuid"`
	EnergyPointID      *string   `json:"energy_point_id,omitempty" gorm:"type:uuid"`
	VoltagePointID     *string   `json:"voltage_point_id,omitempty" gorm:"type:uuid"`
	PowerFactorPointID *string   `json:"power_factor_point_id,omitempty" gorm:"type:uuid"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (d *PowerDevice) Kind() NodeKind    { return KindDevice }
func (d *PowerDevice) NodeID() string    { return d.ID }
func (d *PowerDevice) NodeCode() string  { return d.Code }
func (d *PowerDevice) ParentRef() string { return d.CircuitID }

func (d *PowerDevice) Validate() error {
	if err := validateIdentity(KindDevice, d.Code, d.Name); err != nil {
		return err
	}
	if d.RatedPower < 0 {
		return Validation("device rated power must not be negative, got %v", d.RatedPower)
	}
	if d.Efficiency < 0 || d.Efficiency > 100 {
		return Validation("device efficiency must be within 0..100, got %v", d.Efficiency)
	}
	if d.AvgLoadRate < 0 || d.AvgLoadRate > 100 {
		return Validation("device load rate must be within 0..100, got %v", d.AvgLoadRate)
	}
	return nil
}

// Bindings returns the device's point references keyed by usage
func (d *PowerDevice) Bindings() PointBindings {
	b := PointBindings{}
	for usage, ref := range d.bindingRefs() {
		if *ref != nil {
			b[usage] = **ref
		}
	}
	return b
}

// SetBindings replaces all five point references
func (d *PowerDevice) SetBindings(b PointBindings) {
	for usage, ref := range d.bindingRefs() {
		if id, ok := b[usage]; ok && id != "" {
			v := id
			*ref = &v
		} else {
			*ref = nil
		}
	}
}

func (d *PowerDevice) bindingRefs() map[PointUsage]**string {
	return map[PointUsage]**string{
		UsagePower:       &d.PowerPointID,
		UsageCurrent:     &d.CurrentPointID,
		UsageEnergy:      &d.EnergyPointID,
		UsageVoltage:     &d.VoltagePointID,
		UsagePowerFactor: &d.PowerFactorPointID,
	}
}

// DeviceShiftConfig declares how much of a device's load can move in time
type DeviceShiftConfig struct {
	ID                  string    `json:"id" gorm:"primaryKey;type:uuid"`
	DeviceID            string    `json:"device_id" gorm:"type:uuid;uniqueIndex;not null"`
	IsShiftable         bool      `json:"is_shiftable"`
	ShiftablePowerRatio float64   `json:"shiftable_power_ratio"` // 0..1
	ShiftNoticeTime     int       `json:"shift_notice_time"`     // minutes
	AllowedWindow       string    `json:"allowed_window,omitempty" gorm:"size:32"`
	CreatedAt           time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *DeviceShiftConfig) Validate() error {
	if c.DeviceID == "" {
		return Validation("shift config requires a device")
	}
	if c.ShiftablePowerRatio < 0 || c.ShiftablePowerRatio > 1 {
		return Validation("shiftable power ratio must be within 0..1, got %v", c.ShiftablePowerRatio)
	}
	if c.ShiftNoticeTime < 0 {
		return Validation("shift notice time must not be negative")
	}
	return nil
}

// ImpactCounts is the number of descendants per kind touched by a cascade delete
type ImpactCounts struct {
	MeterPoints int `json:"meter_points"`
	Panels      int `json:"panels"`
	Circuits    int `json:"circuits"`
	Devices     int `json:"devices"`
	Points      int `json:"points"`
}

func (c ImpactCounts) Total() int {
	return c.MeterPoints + c.Panels + c.Circuits + c.Devices
}

func (c ImpactCounts) String() string {
	return fmt.Sprintf("meter_points=%d panels=%d circuits=%d devices=%d points=%d",
		c.MeterPoints, c.Panels, c.Circuits, c.Devices, c.Points)
}

func validateIdentity(kind NodeKind, code, name string) error {
	if strings.TrimSpace(code) == "" {
		return Validation("%s code is required", kind)
	}
	if strings.TrimSpace(name) == "" {
		return Validation("%s name is required", kind)
	}
	return nil
}

// NewNode returns an empty entity of the given kind
func NewNode(kind NodeKind) Node {
	switch kind {
	case KindTransformer:
		return &Transformer{}
	case KindMeterPoint:
		return &MeterPoint{}
	case KindPanel:
		return &DistributionPanel{}
	case KindCircuit:
		return &DistributionCircuit{}
	case KindDevice:
		return &PowerDevice{}
	}
	return nil
}
