package topology

import (
	"context"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

type DeviceNode struct {
	domain.PowerDevice
	ShiftConfig *domain.DeviceShiftConfig `json:"shift_config,omitempty"`
}

type CircuitNode struct {
	domain.DistributionCircuit
	Devices []DeviceNode `json:"devices"`
}

type PanelNode struct {
	domain.DistributionPanel
	Depth     int           `json:"depth"`
	Circuits  []CircuitNode `json:"circuits"`
	SubPanels []*PanelNode  `json:"sub_panels"`
}

type MeterPointNode struct {
	domain.MeterPoint
	Panels []*PanelNode `json:"panels"`
}

type TransformerTree struct {
	domain.Transformer
	MeterPoints []MeterPointNode `json:"meter_points"`
}

// Tree returns the whole hierarchy nested from the transformers down
func (s *Service) Tree(ctx context.Context) ([]TransformerTree, error) {
	ctx, span := telemetry.StartSpan(ctx, "topology.Tree")
	defer span.End()

	repo := s.store.Topology()
	transformers, err := repo.ListTransformers(ctx)
	if err != nil {
		return nil, s.fail(ctx, "Tree", err)
	}
	shift, err := repo.ListShiftConfigs(ctx)
	if err != nil {
		return nil, s.fail(ctx, "Tree", err)
	}
	shiftByDevice := make(map[string]domain.DeviceShiftConfig, len(shift))
	for _, c := range shift {
		shiftByDevice[c.DeviceID] = c
	}

	out := make([]TransformerTree, 0, len(transformers))
	for _, t := range transformers {
		tt := TransformerTree{Transformer: t, MeterPoints: []MeterPointNode{}}
		meters, err := repo.ListMeterPoints(ctx, t.ID)
		if err != nil {
			return nil, s.fail(ctx, "Tree", err)
		}
		for _, m := range meters {
			mn := MeterPointNode{MeterPoint: m}
			if mn.Panels, err = s.panelTree(ctx, repo, m.ID, shiftByDevice); err != nil {
				return nil, s.fail(ctx, "Tree", err)
			}
			tt.MeterPoints = append(tt.MeterPoints, mn)
		}
		out = append(out, tt)
	}
	return out, nil
}

// panelTree nests the panels of one meter point level by level. Panels
// unreachable from a root (a cycle written behind our back) are left out.
func (s *Service) panelTree(ctx context.Context, repo ports.TopologyRepository, meterID string, shift map[string]domain.DeviceShiftConfig) ([]*PanelNode, error) {
	all, err := repo.ListPanels(ctx, meterID)
	if err != nil {
		return nil, err
	}
	children := map[string][]domain.DistributionPanel{}
	var roots []*PanelNode
	for _, p := range all {
		if p.ParentID == nil {
			roots = append(roots, &PanelNode{DistributionPanel: p, Depth: 1})
		} else {
			children[*p.ParentID] = append(children[*p.ParentID], p)
		}
	}

	visited := map[string]bool{}
	level := roots
	for len(level) > 0 {
		var next []*PanelNode
		for _, n := range level {
			visited[n.ID] = true
			if n.Circuits, err = s.circuitNodes(ctx, repo, n.ID, shift); err != nil {
				return nil, err
			}
			n.SubPanels = []*PanelNode{}
			if n.Depth >= domain.MaxPanelDepth {
				continue
			}
			for _, c := range children[n.ID] {
				if visited[c.ID] {
					continue
				}
				child := &PanelNode{DistributionPanel: c, Depth: n.Depth + 1}
				n.SubPanels = append(n.SubPanels, child)
				next = append(next, child)
			}
		}
		level = next
	}
	if roots == nil {
		roots = []*PanelNode{}
	}
	return roots, nil
}

func (s *Service) circuitNodes(ctx context.Context, repo ports.TopologyRepository, panelID string, shift map[string]domain.DeviceShiftConfig) ([]CircuitNode, error) {
	circuits, err := repo.ListCircuits(ctx, panelID)
	if err != nil {
		return nil, err
	}
	out := make([]CircuitNode, 0, len(circuits))
	for _, c := range circuits {
		devices, err := repo.ListDevices(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		cn := CircuitNode{DistributionCircuit: c, Devices: make([]DeviceNode, 0, len(devices))}
		for _, d := range devices {
			dn := DeviceNode{PowerDevice: d}
			if cfg, ok := shift[d.ID]; ok {
				dn.ShiftConfig = &cfg
			}
			cn.Devices = append(cn.Devices, dn)
		}
		out = append(out, cn)
	}
	return out, nil
}
