package topology

import "github.com/seu-repo/energy-core/internal/domain"

// Patch is a partial update of one node. Nil fields are left untouched.
type Patch interface {
	Kind() domain.NodeKind
	apply(n domain.Node)
}

type TransformerPatch struct {
	Code          *string
	Name          *string
	RatedCapacity *float64
	HighVoltage   *float64
	LowVoltage    *float64
	Status        *domain.TransformerStatus
	Location      *string
	IsEnabled     *bool
}

type MeterPointPatch struct {
	TransformerID  *string
	Code           *string
	Name           *string
	DeclaredDemand *float64
	DemandType     *string
	DemandWindow   *int
	CTRatio        *float64
	PTRatio        *float64
	CustomerNo     *string
	IsEnabled      *bool
}

// PanelPatch moves a panel to the root of its meter point when ParentID points to ""
type PanelPatch struct {
	MeterPointID *string
	ParentID     *string
	Code         *string
	Name         *string
	PanelType    *domain.PanelType
	RatedCurrent *float64
	AreaCode     *string
	IsEnabled    *bool
}

type CircuitPatch struct {
	PanelID       *string
	Code          *string
	Name          *string
	LoadType      *domain.LoadType
	RatedCurrent  *float64
	IsShiftable   *bool
	ShiftPriority *int
	IsEnabled     *bool
}

type DevicePatch struct {
	CircuitID   *string
	Code        *string
	Name        *string
	DeviceType  *string
	RatedPower  *float64
	AreaCode    *string
	Efficiency  *float64
	AvgLoadRate *float64
	IsITLoad    *bool
	IsCritical  *bool
	IsMetered   *bool
	IsEnabled   *bool
}

func (TransformerPatch) Kind() domain.NodeKind { return domain.KindTransformer }
func (MeterPointPatch) Kind() domain.NodeKind  { return domain.KindMeterPoint }
func (PanelPatch) Kind() domain.NodeKind       { return domain.KindPanel }
func (CircuitPatch) Kind() domain.NodeKind     { return domain.KindCircuit }
func (DevicePatch) Kind() domain.NodeKind      { return domain.KindDevice }

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (p TransformerPatch) apply(n domain.Node) {
	t := n.(*domain.Transformer)
	set(&t.Code, p.Code)
	set(&t.Name, p.Name)
	set(&t.RatedCapacity, p.RatedCapacity)
	set(&t.HighVoltage, p.HighVoltage)
	set(&t.LowVoltage, p.LowVoltage)
	set(&t.Status, p.Status)
	set(&t.Location, p.Location)
	set(&t.IsEnabled, p.IsEnabled)
}

func (p MeterPointPatch) apply(n domain.Node) {
	m := n.(*domain.MeterPoint)
	set(&m.TransformerID, p.TransformerID)
	set(&m.Code, p.Code)
	set(&m.Name, p.Name)
	set(&m.DeclaredDemand, p.DeclaredDemand)
	set(&m.DemandType, p.DemandType)
	set(&m.DemandWindow, p.DemandWindow)
	set(&m.CTRatio, p.CTRatio)
	set(&m.PTRatio, p.PTRatio)
	set(&m.CustomerNo, p.CustomerNo)
	set(&m.IsEnabled, p.IsEnabled)
}

func (p PanelPatch) apply(n domain.Node) {
	pn := n.(*domain.DistributionPanel)
	set(&pn.MeterPointID, p.MeterPointID)
	if p.ParentID != nil {
		if *p.ParentID == "" {
			pn.ParentID = nil
		} else {
			v := *p.ParentID
			pn.ParentID = &v
		}
	}
	set(&pn.Code, p.Code)
	set(&pn.Name, p.Name)
	set(&pn.PanelType, p.PanelType)
	set(&pn.RatedCurrent, p.RatedCurrent)
	set(&pn.AreaCode, p.AreaCode)
	set(&pn.IsEnabled, p.IsEnabled)
}

func (p CircuitPatch) apply(n domain.Node) {
	c := n.(*domain.DistributionCircuit)
	set(&c.PanelID, p.PanelID)
	set(&c.Code, p.Code)
	set(&c.Name, p.Name)
	set(&c.LoadType, p.LoadType)
	set(&c.RatedCurrent, p.RatedCurrent)
	set(&c.IsShiftable, p.IsShiftable)
	set(&c.ShiftPriority, p.ShiftPriority)
	set(&c.IsEnabled, p.IsEnabled)
}

func (p DevicePatch) apply(n domain.Node) {
	d := n.(*domain.PowerDevice)
	set(&d.CircuitID, p.CircuitID)
	set(&d.Code, p.Code)
	set(&d.Name, p.Name)
	set(&d.DeviceType, p.DeviceType)
	set(&d.RatedPower, p.RatedPower)
	set(&d.AreaCode, p.AreaCode)
	set(&d.Efficiency, p.Efficiency)
	set(&d.AvgLoadRate, p.AvgLoadRate)
	set(&d.IsITLoad, p.IsITLoad)
	set(&d.IsCritical, p.IsCritical)
	set(&d.IsMetered, p.IsMetered)
	set(&d.IsEnabled, p.IsEnabled)
}
