package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

const defaultCurtailRatio = 0.5

// CurtailableFromTopology builds the curtailable pool from the devices hanging
// under enabled shiftable circuits. Critical and disabled devices never enter
// the pool. A device shift config overrides the default ratio, and a config
// marked not shiftable removes the device.
func CurtailableFromTopology(ctx context.Context, store ports.Store) ([]domain.CurtailableDevice, error) {
	circuits, err := store.Topology().ListCircuits(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list circuits: %w", err)
	}
	configs, err := store.Topology().ListShiftConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list shift configs: %w", err)
	}
	byDevice := make(map[string]domain.DeviceShiftConfig, len(configs))
	for _, c := range configs {
		byDevice[c.DeviceID] = c
	}

	type entry struct {
		code string
		dev  domain.CurtailableDevice
	}
	var pool []entry
	for _, c := range circuits {
		if !c.IsEnabled || !c.IsShiftable {
			continue
		}
		priority := c.ShiftPriority
		if priority < 1 || priority > 10 {
			priority = 5
		}
		devices, err := store.Topology().ListDevices(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices of circuit %s: %w", c.Code, err)
		}
		for _, d := range devices {
			if !d.IsEnabled || d.IsCritical || d.RatedPower <= 0 {
				continue
			}
			ratio := defaultCurtailRatio
			if cfg, ok := byDevice[d.ID]; ok {
				if !cfg.IsShiftable {
					continue
				}
				ratio = cfg.ShiftablePowerRatio
			}
			pool = append(pool, entry{code: d.Code, dev: domain.CurtailableDevice{
				ID:           d.ID,
				Name:         d.Name,
				RatedPower:   d.RatedPower,
				CurtailRatio: ratio,
				Priority:     priority,
			}})
		}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].dev.Priority != pool[j].dev.Priority {
			return pool[i].dev.Priority < pool[j].dev.Priority
		}
		return pool[i].code < pool[j].code
	})
	out := make([]domain.CurtailableDevice, len(pool))
	for i, e := range pool {
		out[i] = e.dev
	}
	return out, nil
}

// ResolveDemandTarget returns configured when positive. Otherwise it falls
// back to the declared demand of the meter point named by meterCode, or of
// the first meter point declaring one.
func ResolveDemandTarget(ctx context.Context, store ports.Store, configured float64, meterCode string) (float64, error) {
	if configured > 0 {
		return configured, nil
	}
	if meterCode != "" {
		n, err := store.Topology().GetByCode(ctx, domain.KindMeterPoint, meterCode)
		if err != nil {
			return 0, fmt.Errorf("failed to load meter point %s: %w", meterCode, err)
		}
		m, ok := n.(*domain.MeterPoint)
		if !ok || m == nil {
			return 0, domain.NotFound("meter_point", meterCode)
		}
		if m.DeclaredDemand <= 0 {
			return 0, domain.Validation("meter point %s declares no demand", meterCode)
		}
		return m.DeclaredDemand, nil
	}

	meters, err := store.Topology().ListMeterPoints(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list meter points: %w", err)
	}
	sort.SliceStable(meters, func(i, j int) bool { return meters[i].Code < meters[j].Code })
	for _, m := range meters {
		if m.IsEnabled && m.DeclaredDemand > 0 {
			return m.DeclaredDemand, nil
		}
	}
	return 0, domain.Validation("no demand target configured and no meter point declares one")
}
