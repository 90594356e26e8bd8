package topology

import (
	"context"
	"sort"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

type panelRef struct {
	id    string
	depth int
}

// subtree holds the descendants of one node, excluding the node itself
type subtree struct {
	meters   []string
	panels   []panelRef
	circuits []string
	devices  []string
	points   int
}

func (t *subtree) counts() domain.ImpactCounts {
	return domain.ImpactCounts{
		MeterPoints: len(t.meters),
		Panels:      len(t.panels),
		Circuits:    len(t.circuits),
		Devices:     len(t.devices),
		Points:      t.points,
	}
}

// collect walks the descendants of (kind, id). Points bound to a device root are
// counted too, since they go with it.
func collect(ctx context.Context, store ports.Store, kind domain.NodeKind, id string) (*subtree, error) {
	t := &subtree{}
	repo := store.Topology()

	var meters, panels, circuits, devices []string
	switch kind {
	case domain.KindTransformer:
		ms, err := repo.ListMeterPoints(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			meters = append(meters, m.ID)
		}
		t.meters = meters
	case domain.KindMeterPoint:
		meters = []string{id}
	case domain.KindPanel:
		refs, err := panelDescendants(ctx, repo, id)
		if err != nil {
			return nil, err
		}
		t.panels = refs
		panels = append(panels, id)
		for _, r := range refs {
			panels = append(panels, r.id)
		}
	case domain.KindCircuit:
		circuits = []string{id}
	case domain.KindDevice:
		devices = []string{id}
	}

	for _, m := range meters {
		refs, err := meterPanels(ctx, repo, m)
		if err != nil {
			return nil, err
		}
		t.panels = append(t.panels, refs...)
		for _, r := range refs {
			panels = append(panels, r.id)
		}
	}
	for _, p := range panels {
		cs, err := repo.ListCircuits(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, c := range cs {
			circuits = append(circuits, c.ID)
			if kind != domain.KindCircuit {
				t.circuits = append(t.circuits, c.ID)
			}
		}
	}
	for _, c := range circuits {
		ds, err := repo.ListDevices(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, d := range ds {
			devices = append(devices, d.ID)
			t.devices = append(t.devices, d.ID)
		}
	}
	if kind == domain.KindDevice {
		t.devices = nil
	}
	for _, d := range devices {
		ps, err := store.Points().ListByDevice(ctx, d)
		if err != nil {
			return nil, err
		}
		t.points += len(ps)
	}
	return t, nil
}

// remove deletes the subtree bottom-up and then the root. It returns what it removed.
func (t *subtree) remove(ctx context.Context, tx ports.Store, kind domain.NodeKind, id string) (domain.ImpactCounts, error) {
	var done domain.ImpactCounts
	repo := tx.Topology()

	dropDevice := func(deviceID string) error {
		n, err := tx.Points().DeleteByDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		done.Points += n
		return repo.Delete(ctx, domain.KindDevice, deviceID)
	}

	for _, d := range t.devices {
		if err := dropDevice(d); err != nil {
			return done, err
		}
		done.Devices++
	}
	for _, c := range t.circuits {
		if err := repo.Delete(ctx, domain.KindCircuit, c); err != nil {
			return done, err
		}
		done.Circuits++
	}
	panels := append([]panelRef(nil), t.panels...)
	sort.SliceStable(panels, func(i, j int) bool { return panels[i].depth > panels[j].depth })
	for _, p := range panels {
		if err := repo.Delete(ctx, domain.KindPanel, p.id); err != nil {
			return done, err
		}
		done.Panels++
	}
	for _, m := range t.meters {
		if err := repo.Delete(ctx, domain.KindMeterPoint, m); err != nil {
			return done, err
		}
		done.MeterPoints++
	}

	if kind == domain.KindDevice {
		return done, dropDevice(id)
	}
	return done, repo.Delete(ctx, kind, id)
}

// meterPanels returns every panel of a meter point with its depth (roots at 1)
func meterPanels(ctx context.Context, repo ports.TopologyRepository, meterID string) ([]panelRef, error) {
	all, err := repo.ListPanels(ctx, meterID)
	if err != nil {
		return nil, err
	}
	parent := make(map[string]string, len(all))
	for _, p := range all {
		if p.ParentID != nil {
			parent[p.ID] = *p.ParentID
		}
	}
	refs := make([]panelRef, 0, len(all))
	for _, p := range all {
		depth := 1
		seen := map[string]bool{p.ID: true}
		for cur, ok := parent[p.ID]; ok && !seen[cur] && depth <= domain.MaxPanelDepth; cur, ok = parent[cur] {
			seen[cur] = true
			depth++
		}
		refs = append(refs, panelRef{id: p.ID, depth: depth})
	}
	return refs, nil
}

// panelDescendants walks sub-panels breadth first with a visited set and the depth cap
func panelDescendants(ctx context.Context, repo ports.TopologyRepository, rootID string) ([]panelRef, error) {
	var out []panelRef
	visited := map[string]bool{rootID: true}
	level := []string{rootID}
	for depth := 1; len(level) > 0 && depth <= domain.MaxPanelDepth; depth++ {
		var next []string
		for _, id := range level {
			children, err := repo.ListChildPanels(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				if visited[c.ID] {
					continue
				}
				visited[c.ID] = true
				out = append(out, panelRef{id: c.ID, depth: depth})
				next = append(next, c.ID)
			}
		}
		level = next
	}
	return out, nil
}
