package memory

import (
	"context"
	"sort"

	"github.com/seu-repo/energy-core/internal/domain"
)

type topologyRepo struct{ s *Store }

func (r *topologyRepo) Create(ctx context.Context, node domain.Node) error {
	return r.s.do(func(st *state) error {
		if node.NodeID() == "" {
			return domain.Validation("%s id is required", node.Kind())
		}
		if st.exists(node.Kind(), node.NodeID()) {
			return domain.Validation("%s %s already exists", node.Kind(), node.NodeID())
		}
		if st.codeTaken(node.Kind(), node.NodeCode(), "") {
			return domain.DuplicateCode(node.Kind(), node.NodeCode())
		}
		st.put(node)
		return nil
	})
}

func (r *topologyRepo) Save(ctx context.Context, node domain.Node) error {
	return r.s.do(func(st *state) error {
		if !st.exists(node.Kind(), node.NodeID()) {
			return domain.NotFound(string(node.Kind()), node.NodeID())
		}
		if st.codeTaken(node.Kind(), node.NodeCode(), node.NodeID()) {
			return domain.DuplicateCode(node.Kind(), node.NodeCode())
		}
		st.put(node)
		return nil
	})
}

func (r *topologyRepo) Delete(ctx context.Context, kind domain.NodeKind, id string) error {
	return r.s.do(func(st *state) error {
		if !st.exists(kind, id) {
			return domain.NotFound(string(kind), id)
		}
		switch kind {
		case domain.KindTransformer:
			delete(st.transformers, id)
		case domain.KindMeterPoint:
			delete(st.meters, id)
		case domain.KindPanel:
			delete(st.panels, id)
		case domain.KindCircuit:
			delete(st.circuits, id)
		case domain.KindDevice:
			delete(st.devices, id)
			delete(st.shift, id)
			st.clearBackRefs(id)
		}
		return nil
	})
}

func (r *topologyRepo) Get(ctx context.Context, kind domain.NodeKind, id string) (domain.Node, error) {
	var n domain.Node
	err := r.s.do(func(st *state) error {
		n = st.get(kind, id)
		return nil
	})
	return n, err
}

func (r *topologyRepo) GetByCode(ctx context.Context, kind domain.NodeKind, code string) (domain.Node, error) {
	var n domain.Node
	err := r.s.do(func(st *state) error {
		if id := st.idByCode(kind, code); id != "" {
			n = st.get(kind, id)
		}
		return nil
	})
	return n, err
}

func (r *topologyRepo) ListTransformers(ctx context.Context) ([]domain.Transformer, error) {
	var out []domain.Transformer
	err := r.s.do(func(st *state) error {
		for _, t := range st.transformers {
			out = append(out, t)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) ListMeterPoints(ctx context.Context, transformerID string) ([]domain.MeterPoint, error) {
	var out []domain.MeterPoint
	err := r.s.do(func(st *state) error {
		for _, m := range st.meters {
			if transformerID == "" || m.TransformerID == transformerID {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) ListPanels(ctx context.Context, meterPointID string) ([]domain.DistributionPanel, error) {
	var out []domain.DistributionPanel
	err := r.s.do(func(st *state) error {
		for _, p := range st.panels {
			if meterPointID == "" || p.MeterPointID == meterPointID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) ListChildPanels(ctx context.Context, parentPanelID string) ([]domain.DistributionPanel, error) {
	var out []domain.DistributionPanel
	err := r.s.do(func(st *state) error {
		for _, p := range st.panels {
			if p.ParentID != nil && *p.ParentID == parentPanelID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) ListCircuits(ctx context.Context, panelID string) ([]domain.DistributionCircuit, error) {
	var out []domain.DistributionCircuit
	err := r.s.do(func(st *state) error {
		for _, c := range st.circuits {
			if panelID == "" || c.PanelID == panelID {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) ListDevices(ctx context.Context, circuitID string) ([]domain.PowerDevice, error) {
	var out []domain.PowerDevice
	err := r.s.do(func(st *state) error {
		for _, d := range st.devices {
			if circuitID == "" || d.CircuitID == circuitID {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *topologyRepo) CountChildren(ctx context.Context, kind domain.NodeKind, id string) (int, error) {
	n := 0
	err := r.s.do(func(st *state) error {
		switch kind {
		case domain.KindTransformer:
			for _, m := range st.meters {
				if m.TransformerID == id {
					n++
				}
			}
		case domain.KindMeterPoint:
			for _, p := range st.panels {
				if p.MeterPointID == id {
					n++
				}
			}
		case domain.KindPanel:
			for _, p := range st.panels {
				if p.ParentID != nil && *p.ParentID == id {
					n++
				}
			}
			for _, c := range st.circuits {
				if c.PanelID == id {
					n++
				}
			}
		case domain.KindCircuit:
			for _, d := range st.devices {
				if d.CircuitID == id {
					n++
				}
			}
		}
		return nil
	})
	return n, err
}

func (r *topologyRepo) ListShiftConfigs(ctx context.Context) ([]domain.DeviceShiftConfig, error) {
	var out []domain.DeviceShiftConfig
	err := r.s.do(func(st *state) error {
		for _, c := range st.shift {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, err
}

func (r *topologyRepo) SaveShiftConfig(ctx context.Context, cfg *domain.DeviceShiftConfig) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.devices[cfg.DeviceID]; !ok {
			return domain.NotFound("device", cfg.DeviceID)
		}
		if prev, ok := st.shift[cfg.DeviceID]; ok && cfg.ID == "" {
			cfg.ID = prev.ID
		}
		st.shift[cfg.DeviceID] = *cfg
		return nil
	})
}

func (r *topologyRepo) DeleteShiftConfig(ctx context.Context, deviceID string) error {
	return r.s.do(func(st *state) error {
		delete(st.shift, deviceID)
		return nil
	})
}

func (r *topologyRepo) DeleteAll(ctx context.Context) error {
	return r.s.do(func(st *state) error {
		for id := range st.devices {
			st.clearBackRefs(id)
		}
		st.transformers = map[string]domain.Transformer{}
		st.meters = map[string]domain.MeterPoint{}
		st.panels = map[string]domain.DistributionPanel{}
		st.circuits = map[string]domain.DistributionCircuit{}
		st.devices = map[string]domain.PowerDevice{}
		st.shift = map[string]domain.DeviceShiftConfig{}
		return nil
	})
}

func (st *state) exists(kind domain.NodeKind, id string) bool {
	return st.get(kind, id) != nil
}

func (st *state) get(kind domain.NodeKind, id string) domain.Node {
	switch kind {
	case domain.KindTransformer:
		if v, ok := st.transformers[id]; ok {
			return &v
		}
	case domain.KindMeterPoint:
		if v, ok := st.meters[id]; ok {
			return &v
		}
	case domain.KindPanel:
		if v, ok := st.panels[id]; ok {
			if v.ParentID != nil {
				parent := *v.ParentID
				v.ParentID = &parent
			}
			return &v
		}
	case domain.KindCircuit:
		if v, ok := st.circuits[id]; ok {
			return &v
		}
	case domain.KindDevice:
		if v, ok := st.devices[id]; ok {
			v.SetBindings(v.Bindings())
			return &v
		}
	}
	return nil
}

func (st *state) put(node domain.Node) {
	switch n := node.(type) {
	case *domain.Transformer:
		st.transformers[n.ID] = *n
	case *domain.MeterPoint:
		st.meters[n.ID] = *n
	case *domain.DistributionPanel:
		v := *n
		if v.ParentID != nil {
			parent := *v.ParentID
			v.ParentID = &parent
		}
		st.panels[n.ID] = v
	case *domain.DistributionCircuit:
		st.circuits[n.ID] = *n
	case *domain.PowerDevice:
		v := *n
		v.SetBindings(n.Bindings())
		st.devices[n.ID] = v
	}
}

func (st *state) idByCode(kind domain.NodeKind, code string) string {
	switch kind {
	case domain.KindTransformer:
		for id, v := range st.transformers {
			if v.Code == code {
				return id
			}
		}
	case domain.KindMeterPoint:
		for id, v := range st.meters {
			if v.Code == code {
				return id
			}
		}
	case domain.KindPanel:
		for id, v := range st.panels {
			if v.Code == code {
				return id
			}
		}
	case domain.KindCircuit:
		for id, v := range st.circuits {
			if v.Code == code {
				return id
			}
		}
	case domain.KindDevice:
		for id, v := range st.devices {
			if v.Code == code {
				return id
			}
		}
	}
	return ""
}

func (st *state) codeTaken(kind domain.NodeKind, code, exceptID string) bool {
	id := st.idByCode(kind, code)
	return id != "" && id != exceptID
}

// clearBackRefs detaches every point still pointing at the device
func (st *state) clearBackRefs(deviceID string) {
	for id, p := range st.points {
		if p.EnergyDeviceID != nil && *p.EnergyDeviceID == deviceID {
			p.EnergyDeviceID = nil
			st.points[id] = p
		}
	}
}
