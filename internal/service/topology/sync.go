package topology

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

// bindDevice matches dev and writes the result, clearing stale back-references
func (s *Service) bindDevice(ctx context.Context, tx ports.Store, dev *domain.PowerDevice) (MatchResult, error) {
	area, err := effectiveArea(ctx, tx, dev)
	if err != nil {
		return MatchResult{}, err
	}
	res, err := s.matcher.Match(ctx, tx.Points(), dev, area)
	if err != nil {
		return res, err
	}
	if err := tx.Points().BindDevice(ctx, dev.ID, res.Bindings); err != nil {
		return res, err
	}
	dev.SetBindings(res.Bindings)
	telemetry.PointBindingsTotal.WithLabelValues(string(res.Rule)).Inc()
	s.log.Debug("Device points matched",
		zap.String("device", dev.Code),
		zap.String("rule", string(res.Rule)),
		zap.Int("bound", len(res.Bindings)),
	)
	return res, nil
}

// effectiveArea is the device's area code, else the area of the panel feeding its circuit
func effectiveArea(ctx context.Context, tx ports.Store, dev *domain.PowerDevice) (string, error) {
	if dev.AreaCode != "" {
		return dev.AreaCode, nil
	}
	n, err := tx.Topology().Get(ctx, domain.KindCircuit, dev.CircuitID)
	if err != nil || n == nil {
		return "", err
	}
	panel, err := getPanel(ctx, tx, n.(*domain.DistributionCircuit).PanelID)
	if err != nil || panel == nil {
		return "", err
	}
	return panel.AreaCode, nil
}

// SyncDevicePoints runs the matcher again for one device
func (s *Service) SyncDevicePoints(ctx context.Context, deviceID string) (MatchResult, error) {
	var res MatchResult
	err := s.mutate(ctx, "SyncDevicePoints", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		dev, err := getDevice(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		res, err = s.bindDevice(ctx, tx, dev)
		return err
	})
	return res, err
}

// SyncReport summarises a full matcher pass
type SyncReport struct {
	Devices  int               `json:"devices"`
	Matched  int               `json:"matched"`
	Unbound  int               `json:"unbound"`
	ByRule   map[MatchRule]int `json:"by_rule"`
	Failures map[string]string `json:"failures,omitempty"`
	Results  []MatchResult     `json:"results"`
}

// SyncAllDevicePoints rebinds every device, one transaction per device so a
// single failure does not undo the rest
func (s *Service) SyncAllDevicePoints(ctx context.Context) (SyncReport, error) {
	report := SyncReport{ByRule: map[MatchRule]int{}, Failures: map[string]string{}}
	devices, err := s.store.Topology().ListDevices(ctx, "")
	if err != nil {
		return report, s.fail(ctx, "SyncAllDevicePoints", err)
	}
	for _, d := range devices {
		report.Devices++
		res, err := s.SyncDevicePoints(ctx, d.ID)
		if err != nil {
			report.Failures[d.Code] = err.Error()
			continue
		}
		report.ByRule[res.Rule]++
		if res.Rule == RuleNone {
			report.Unbound++
		} else {
			report.Matched++
		}
		report.Results = append(report.Results, res)
	}
	s.log.Info("Device points synchronized",
		zap.Int("devices", report.Devices),
		zap.Int("matched", report.Matched),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// MatchStats is the linkage between devices and points
type MatchStats struct {
	TotalDevices   int             `json:"total_devices"`
	LinkedDevices  int             `json:"linked_devices"`
	OrphanDevices  int             `json:"orphan_devices"`
	TotalPoints    int             `json:"total_points"`
	LinkedPoints   int             `json:"linked_points"`
	OrphanPoints   int             `json:"orphan_points"`
	DeviceLinkRate decimal.Decimal `json:"device_link_rate"` // %
	PointLinkRate  decimal.Decimal `json:"point_link_rate"`  // %
}

func (s *Service) MatchStatistics(ctx context.Context) (MatchStats, error) {
	var st MatchStats
	devices, err := s.store.Topology().ListDevices(ctx, "")
	if err != nil {
		return st, s.fail(ctx, "MatchStatistics", err)
	}
	points, err := s.store.Points().List(ctx)
	if err != nil {
		return st, s.fail(ctx, "MatchStatistics", err)
	}

	st.TotalDevices = len(devices)
	for _, d := range devices {
		if len(d.Bindings()) > 0 {
			st.LinkedDevices++
		}
	}
	st.OrphanDevices = st.TotalDevices - st.LinkedDevices

	st.TotalPoints = len(points)
	for _, p := range points {
		if p.EnergyDeviceID != nil {
			st.LinkedPoints++
		}
	}
	st.OrphanPoints = st.TotalPoints - st.LinkedPoints

	st.DeviceLinkRate = rate(st.LinkedDevices, st.TotalDevices)
	st.PointLinkRate = rate(st.LinkedPoints, st.TotalPoints)
	return st, nil
}

func rate(part, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(total))).RoundBank(2)
}

// Provisioned point templates, in binding order
var provisioned = []struct {
	usage  domain.PointUsage
	suffix string
	name   string
	unit   string
}{
	{domain.UsagePower, "P", "有功功率", "kW"},
	{domain.UsageCurrent, "I", "电流", "A"},
	{domain.UsageEnergy, "E", "累计电量", "kWh"},
	{domain.UsageVoltage, "U", "电压", "V"},
	{domain.UsagePowerFactor, "PF", "功率因数", ""},
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// ProvisionDevicePoints creates the five analog points of a device that has no
// bindings yet, seeds their realtime rows and binds them. A device that is
// already bound is left alone and its existing point ids are returned.
func (s *Service) ProvisionDevicePoints(ctx context.Context, deviceID string) ([]string, error) {
	var ids []string
	err := s.mutate(ctx, "ProvisionDevicePoints", func(ctx context.Context, tx ports.Store, emit emitFunc) error {
		dev, err := getDevice(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		if b := dev.Bindings(); len(b) > 0 {
			for _, u := range domain.PointUsages {
				if id, ok := b[u]; ok {
					ids = append(ids, id)
				}
			}
			return nil
		}

		area, err := effectiveArea(ctx, tx, dev)
		if err != nil {
			return err
		}
		base := s.matcher.PointPrefix(dev.Code, dev.DeviceType, area)
		if base == "" {
			base = dev.Code + "_"
		}
		base += nonAlnum.ReplaceAllString(strings.ToUpper(dev.Code), "") + "_"

		now := s.clock.Now()
		bindings := domain.PointBindings{}
		for _, tpl := range provisioned {
			code := base + tpl.suffix
			p, err := tx.Points().GetByCode(ctx, code)
			if err != nil {
				return err
			}
			if p == nil {
				p = &domain.Point{
					ID:         uuid.NewString(),
					Code:       code,
					Name:       fmt.Sprintf("%s %s", dev.Name, tpl.name),
					Type:       domain.PointAI,
					DeviceType: dev.DeviceType,
					AreaCode:   area,
					Unit:       tpl.unit,
					Precision:  2,
					IsEnabled:  true,
				}
				if err := tx.Points().Create(ctx, p); err != nil {
					return err
				}
				if err := tx.Points().SaveRealtime(ctx, &domain.PointRealtime{
					PointID:   p.ID,
					Quality:   domain.QualityGood,
					Status:    "normal",
					UpdatedAt: now,
				}); err != nil {
					return err
				}
			}
			bindings[tpl.usage] = p.ID
			ids = append(ids, p.ID)
		}
		if err := tx.Points().BindDevice(ctx, dev.ID, bindings); err != nil {
			return err
		}
		emit(domain.KindDevice, OpUpdate, dev.ID, dev.Code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func getDevice(ctx context.Context, tx ports.Store, id string) (*domain.PowerDevice, error) {
	n, err := tx.Topology().Get(ctx, domain.KindDevice, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, domain.NotFound("device", id)
	}
	return n.(*domain.PowerDevice), nil
}
