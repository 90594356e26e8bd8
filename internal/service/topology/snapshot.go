package topology

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// SnapshotVersion is the only snapshot format Import accepts
const SnapshotVersion = "1.0"

type MeterPointRecord struct {
	domain.MeterPoint
	TransformerCode string `json:"transformer_code"`
}

type PanelRecord struct {
	domain.DistributionPanel
	MeterPointCode string `json:"meter_point_code"`
	ParentCode     string `json:"parent_code,omitempty"`
}

type CircuitRecord struct {
	domain.DistributionCircuit
	PanelCode string `json:"panel_code"`
}

type DeviceRecord struct {
	domain.PowerDevice
	CircuitCode string `json:"circuit_code"`
	// Points maps a usage to the bound point code
	Points      map[domain.PointUsage]string `json:"points,omitempty"`
	ShiftConfig *domain.DeviceShiftConfig    `json:"shift_config,omitempty"`
}

// Snapshot is the portable form of the hierarchy. Parents are referenced by
// code so a snapshot can be loaded into another store.
type Snapshot struct {
	Version      string               `json:"version"`
	ExportedAt   time.Time            `json:"exported_at"`
	Transformers []domain.Transformer `json:"transformers"`
	MeterPoints  []MeterPointRecord   `json:"meter_points"`
	Panels       []PanelRecord        `json:"panels"`
	Circuits     []CircuitRecord      `json:"circuits"`
	Devices      []DeviceRecord       `json:"devices"`
}

// ExportAll dumps every level as a flat list sorted by code
func (s *Service) ExportAll(ctx context.Context) (*Snapshot, error) {
	snap, err := export(ctx, s.store, s.clock.Now())
	if err != nil {
		return nil, s.fail(ctx, "ExportAll", err)
	}
	return snap, nil
}

func export(ctx context.Context, store ports.Store, at time.Time) (*Snapshot, error) {
	repo := store.Topology()
	snap := &Snapshot{Version: SnapshotVersion, ExportedAt: at.UTC()}

	transformers, err := repo.ListTransformers(ctx)
	if err != nil {
		return nil, err
	}
	meters, err := repo.ListMeterPoints(ctx, "")
	if err != nil {
		return nil, err
	}
	panels, err := repo.ListPanels(ctx, "")
	if err != nil {
		return nil, err
	}
	circuits, err := repo.ListCircuits(ctx, "")
	if err != nil {
		return nil, err
	}
	devices, err := repo.ListDevices(ctx, "")
	if err != nil {
		return nil, err
	}
	shift, err := repo.ListShiftConfigs(ctx)
	if err != nil {
		return nil, err
	}
	points, err := store.Points().List(ctx)
	if err != nil {
		return nil, err
	}

	codes := map[string]string{}
	for _, t := range transformers {
		codes[t.ID] = t.Code
	}
	for _, m := range meters {
		codes[m.ID] = m.Code
	}
	for _, p := range panels {
		codes[p.ID] = p.Code
	}
	for _, c := range circuits {
		codes[c.ID] = c.Code
	}
	pointCodes := make(map[string]string, len(points))
	for _, p := range points {
		pointCodes[p.ID] = p.Code
	}
	shiftByDevice := make(map[string]domain.DeviceShiftConfig, len(shift))
	for _, c := range shift {
		shiftByDevice[c.DeviceID] = c
	}

	snap.Transformers = transformers
	for _, m := range meters {
		snap.MeterPoints = append(snap.MeterPoints, MeterPointRecord{MeterPoint: m, TransformerCode: codes[m.TransformerID]})
	}
	for _, p := range panels {
		rec := PanelRecord{DistributionPanel: p, MeterPointCode: codes[p.MeterPointID]}
		if p.ParentID != nil {
			rec.ParentCode = codes[*p.ParentID]
		}
		snap.Panels = append(snap.Panels, rec)
	}
	for _, c := range circuits {
		snap.Circuits = append(snap.Circuits, CircuitRecord{DistributionCircuit: c, PanelCode: codes[c.PanelID]})
	}
	for _, d := range devices {
		rec := DeviceRecord{PowerDevice: d, CircuitCode: codes[d.CircuitID]}
		for usage, id := range d.Bindings() {
			if code, ok := pointCodes[id]; ok {
				if rec.Points == nil {
					rec.Points = map[domain.PointUsage]string{}
				}
				rec.Points[usage] = code
			}
		}
		if c, ok := shiftByDevice[d.ID]; ok {
			c := c
			rec.ShiftConfig = &c
		}
		snap.Devices = append(snap.Devices, rec)
	}

	sort.Slice(snap.Transformers, func(i, j int) bool { return snap.Transformers[i].Code < snap.Transformers[j].Code })
	sort.Slice(snap.MeterPoints, func(i, j int) bool { return snap.MeterPoints[i].Code < snap.MeterPoints[j].Code })
	sort.Slice(snap.Panels, func(i, j int) bool { return snap.Panels[i].Code < snap.Panels[j].Code })
	sort.Slice(snap.Circuits, func(i, j int) bool { return snap.Circuits[i].Code < snap.Circuits[j].Code })
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].Code < snap.Devices[j].Code })
	return snap, nil
}

// ImportCounts reports what an import wrote per level
type ImportCounts struct {
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Transformers int `json:"transformers"`
	MeterPoints  int `json:"meter_points"`
	Panels       int `json:"panels"`
	Circuits     int `json:"circuits"`
	Devices      int `json:"devices"`
}

// ImportAll loads a snapshot in one transaction. Nodes are merged by code,
// updating the ones that exist; replace truncates the hierarchy first. Panels go
// in two passes so a sub-panel can precede its parent in the list.
func (s *Service) ImportAll(ctx context.Context, snap *Snapshot, replace bool) (ImportCounts, error) {
	if snap == nil || snap.Version != SnapshotVersion {
		return ImportCounts{}, domain.Validation("unsupported snapshot version")
	}
	var counts ImportCounts
	err := s.mutate(ctx, "ImportAll", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		if replace {
			if err := tx.Topology().DeleteAll(ctx); err != nil {
				return err
			}
		}
		im := &importer{tx: tx, ids: map[domain.NodeKind]map[string]string{}, counts: &counts}
		if err := im.run(ctx, s, snap); err != nil {
			return err
		}
		emit(domain.KindTransformer, OpImport, "", "")
		return nil
	})
	if err != nil {
		return ImportCounts{}, err
	}
	return counts, nil
}

type importer struct {
	tx     ports.Store
	ids    map[domain.NodeKind]map[string]string // kind -> code -> id
	counts *ImportCounts
}

// upsert writes node, reusing the id of an existing node with the same code
func (im *importer) upsert(ctx context.Context, node domain.Node, setID func(string)) error {
	existing, err := im.tx.Topology().GetByCode(ctx, node.Kind(), node.NodeCode())
	if err != nil {
		return err
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if existing != nil {
		setID(existing.NodeID())
		if err := im.tx.Topology().Save(ctx, node); err != nil {
			return err
		}
		im.counts.Updated++
	} else {
		setID(uuid.NewString())
		if err := im.tx.Topology().Create(ctx, node); err != nil {
			return err
		}
		im.counts.Created++
	}
	if im.ids[node.Kind()] == nil {
		im.ids[node.Kind()] = map[string]string{}
	}
	im.ids[node.Kind()][node.NodeCode()] = node.NodeID()
	return nil
}

// resolve maps a parent code to its id, looking in the store for parents the
// snapshot does not carry
func (im *importer) resolve(ctx context.Context, kind domain.NodeKind, code, child string) (string, error) {
	if id, ok := im.ids[kind][code]; ok {
		return id, nil
	}
	n, err := im.tx.Topology().GetByCode(ctx, kind, code)
	if err != nil {
		return "", err
	}
	if n == nil {
		return "", domain.InvalidParent("%s: %s %q not found", child, kind, code)
	}
	return n.NodeID(), nil
}

func (im *importer) run(ctx context.Context, s *Service, snap *Snapshot) error {
	for _, rec := range snap.Transformers {
		t := rec
		if err := im.upsert(ctx, &t, func(id string) { t.ID = id }); err != nil {
			return err
		}
		im.counts.Transformers++
	}

	for _, rec := range snap.MeterPoints {
		m := rec.MeterPoint
		parent, err := im.resolve(ctx, domain.KindTransformer, rec.TransformerCode, m.Code)
		if err != nil {
			return err
		}
		m.TransformerID = parent
		if err := im.upsert(ctx, &m, func(id string) { m.ID = id }); err != nil {
			return err
		}
		im.counts.MeterPoints++
	}

	// first pass: every panel at the root of its meter point
	for _, rec := range snap.Panels {
		p := rec.DistributionPanel
		meter, err := im.resolve(ctx, domain.KindMeterPoint, rec.MeterPointCode, p.Code)
		if err != nil {
			return err
		}
		p.MeterPointID = meter
		p.ParentID = nil
		if err := im.upsert(ctx, &p, func(id string) { p.ID = id }); err != nil {
			return err
		}
		im.counts.Panels++
	}
	// second pass: attach parents and check placement
	for _, rec := range snap.Panels {
		if rec.ParentCode == "" {
			continue
		}
		p, err := getPanel(ctx, im.tx, im.ids[domain.KindPanel][rec.Code])
		if err != nil {
			return err
		}
		parent, err := im.resolve(ctx, domain.KindPanel, rec.ParentCode, rec.Code)
		if err != nil {
			return err
		}
		p.ParentID = &parent
		if err := checkPanelPlacement(ctx, im.tx, p); err != nil {
			return err
		}
		if err := im.tx.Topology().Save(ctx, p); err != nil {
			return err
		}
	}

	for _, rec := range snap.Circuits {
		c := rec.DistributionCircuit
		panel, err := im.resolve(ctx, domain.KindPanel, rec.PanelCode, c.Code)
		if err != nil {
			return err
		}
		c.PanelID = panel
		if err := im.upsert(ctx, &c, func(id string) { c.ID = id }); err != nil {
			return err
		}
		im.counts.Circuits++
	}

	for _, rec := range snap.Devices {
		d := rec.PowerDevice
		circuit, err := im.resolve(ctx, domain.KindCircuit, rec.CircuitCode, d.Code)
		if err != nil {
			return err
		}
		d.CircuitID = circuit
		d.SetBindings(nil)
		if err := im.upsert(ctx, &d, func(id string) { d.ID = id }); err != nil {
			return err
		}
		if err := im.bindPoints(ctx, s, &d, rec.Points); err != nil {
			return err
		}
		if rec.ShiftConfig != nil {
			cfg := *rec.ShiftConfig
			cfg.ID, cfg.DeviceID = "", d.ID
			if err := cfg.Validate(); err != nil {
				return err
			}
			cfg.ID = uuid.NewString()
			if err := im.tx.Topology().SaveShiftConfig(ctx, &cfg); err != nil {
				return err
			}
		}
		im.counts.Devices++
	}
	return nil
}

// bindPoints restores exported bindings by point code. Codes that do not exist
// here are dropped, and a device left with no binding goes through the matcher.
func (im *importer) bindPoints(ctx context.Context, s *Service, d *domain.PowerDevice, byCode map[domain.PointUsage]string) error {
	bindings := domain.PointBindings{}
	if len(byCode) > 0 {
		codes := make([]string, 0, len(byCode))
		for _, c := range byCode {
			codes = append(codes, c)
		}
		found, err := im.tx.Points().GetByCodes(ctx, codes)
		if err != nil {
			return err
		}
		ids := make(map[string]string, len(found))
		for _, p := range found {
			ids[p.Code] = p.ID
		}
		for usage, code := range byCode {
			if id, ok := ids[code]; ok {
				bindings[usage] = id
			}
		}
	}
	if len(bindings) == 0 {
		_, err := s.bindDevice(ctx, im.tx, d)
		return err
	}
	return im.tx.Points().BindDevice(ctx, d.ID, bindings)
}
