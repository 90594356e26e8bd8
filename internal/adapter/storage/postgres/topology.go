package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/energy-core/internal/domain"
)

type topologyRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// model returns an empty row of the kind's table
func model(kind domain.NodeKind) (domain.Node, error) {
	switch kind {
	case domain.KindTransformer:
		return &domain.Transformer{}, nil
	case domain.KindMeterPoint:
		return &domain.MeterPoint{}, nil
	case domain.KindPanel:
		return &domain.DistributionPanel{}, nil
	case domain.KindCircuit:
		return &domain.DistributionCircuit{}, nil
	case domain.KindDevice:
		return &domain.PowerDevice{}, nil
	}
	return nil, domain.Validation("unknown node kind %q", kind)
}

func (r *topologyRepo) Create(ctx context.Context, node domain.Node) error {
	if node.NodeID() == "" {
		return domain.Validation("%s id is required", node.Kind())
	}
	err := r.db.WithContext(ctx).Create(node).Error
	return mapError(err, node.Kind(), node.NodeCode())
}

func (r *topologyRepo) Save(ctx context.Context, node domain.Node) error {
	res := r.db.WithContext(ctx).Model(node).Select("*").Omit("created_at").Updates(node)
	if res.Error != nil {
		return mapError(res.Error, node.Kind(), node.NodeCode())
	}
	if res.RowsAffected == 0 {
		return domain.NotFound(string(node.Kind()), node.NodeID())
	}
	return nil
}

func (r *topologyRepo) Delete(ctx context.Context, kind domain.NodeKind, id string) error {
	m, err := model(kind)
	if err != nil {
		return err
	}
	db := r.db.WithContext(ctx)
	if kind == domain.KindDevice {
		if err := db.Where("device_id = ?", id).Delete(&domain.DeviceShiftConfig{}).Error; err != nil {
			return fmt.Errorf("failed to delete shift config of %s: %w", id, err)
		}
		if err := db.Model(&domain.Point{}).Where("energy_device_id = ?", id).
			Update("energy_device_id", nil).Error; err != nil {
			return fmt.Errorf("failed to detach points of %s: %w", id, err)
		}
	}
	res := db.Where("id = ?", id).Delete(m)
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound(string(kind), id)
	}
	return nil
}

func (r *topologyRepo) Get(ctx context.Context, kind domain.NodeKind, id string) (domain.Node, error) {
	return r.lookup(ctx, kind, "id = ?", id)
}

func (r *topologyRepo) GetByCode(ctx context.Context, kind domain.NodeKind, code string) (domain.Node, error) {
	return r.lookup(ctx, kind, "code = ?", code)
}

func (r *topologyRepo) lookup(ctx context.Context, kind domain.NodeKind, where string, arg string) (domain.Node, error) {
	m, err := model(kind)
	if err != nil {
		return nil, err
	}
	ok, err := first(r.db.WithContext(ctx), m, where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	if !ok {
		return nil, nil
	}
	return m, nil
}

func (r *topologyRepo) ListTransformers(ctx context.Context) ([]domain.Transformer, error) {
	var out []domain.Transformer
	err := r.db.WithContext(ctx).Order("code").Find(&out).Error
	return out, err
}

func (r *topologyRepo) ListMeterPoints(ctx context.Context, transformerID string) ([]domain.MeterPoint, error) {
	var out []domain.MeterPoint
	err := byParent(r.db.WithContext(ctx), "transformer_id", transformerID).Find(&out).Error
	return out, err
}

func (r *topologyRepo) ListPanels(ctx context.Context, meterPointID string) ([]domain.DistributionPanel, error) {
	var out []domain.DistributionPanel
	err := byParent(r.db.WithContext(ctx), "meter_point_id", meterPointID).Find(&out).Error
	return out, err
}

func (r *topologyRepo) ListChildPanels(ctx context.Context, parentPanelID string) ([]domain.DistributionPanel, error) {
	var out []domain.DistributionPanel
	err := r.db.WithContext(ctx).Where("parent_id = ?", parentPanelID).Order("code").Find(&out).Error
	return out, err
}

func (r *topologyRepo) ListCircuits(ctx context.Context, panelID string) ([]domain.DistributionCircuit, error) {
	var out []domain.DistributionCircuit
	err := byParent(r.db.WithContext(ctx), "panel_id", panelID).Find(&out).Error
	return out, err
}

func (r *topologyRepo) ListDevices(ctx context.Context, circuitID string) ([]domain.PowerDevice, error) {
	var out []domain.PowerDevice
	err := byParent(r.db.WithContext(ctx), "circuit_id", circuitID).Find(&out).Error
	return out, err
}

// byParent filters on the parent column unless id is empty, ordered by code
func byParent(q *gorm.DB, column, id string) *gorm.DB {
	if id != "" {
		q = q.Where(column+" = ?", id)
	}
	return q.Order("code")
}

func (r *topologyRepo) CountChildren(ctx context.Context, kind domain.NodeKind, id string) (int, error) {
	db := r.db.WithContext(ctx)
	count := func(m interface{}, where string) (int64, error) {
		var n int64
		err := db.Model(m).Where(where, id).Count(&n).Error
		return n, err
	}

	var (
		n   int64
		err error
	)
	switch kind {
	case domain.KindTransformer:
		n, err = count(&domain.MeterPoint{}, "transformer_id = ?")
	case domain.KindMeterPoint:
		n, err = count(&domain.DistributionPanel{}, "meter_point_id = ?")
	case domain.KindPanel:
		var circuits int64
		if n, err = count(&domain.DistributionPanel{}, "parent_id = ?"); err == nil {
			circuits, err = count(&domain.DistributionCircuit{}, "panel_id = ?")
			n += circuits
		}
	case domain.KindCircuit:
		n, err = count(&domain.PowerDevice{}, "circuit_id = ?")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count children of %s %s: %w", kind, id, err)
	}
	return int(n), nil
}

func (r *topologyRepo) ListShiftConfigs(ctx context.Context) ([]domain.DeviceShiftConfig, error) {
	var out []domain.DeviceShiftConfig
	err := r.db.WithContext(ctx).Order("device_id").Find(&out).Error
	return out, err
}

// SaveShiftConfig upserts on device_id
func (r *topologyRepo) SaveShiftConfig(ctx context.Context, cfg *domain.DeviceShiftConfig) error {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&domain.PowerDevice{}).Where("id = ?", cfg.DeviceID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("device", cfg.DeviceID)
	}
	var prev domain.DeviceShiftConfig
	ok, err := first(db, &prev, "device_id = ?", cfg.DeviceID)
	if err != nil {
		return err
	}
	switch {
	case ok:
		cfg.ID = prev.ID
	case cfg.ID == "":
		cfg.ID = uuid.New().String()
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_shiftable", "shiftable_power_ratio", "shift_notice_time", "allowed_window", "updated_at",
		}),
	}).Create(cfg).Error
}

func (r *topologyRepo) DeleteShiftConfig(ctx context.Context, deviceID string) error {
	return r.db.WithContext(ctx).Where("device_id = ?", deviceID).Delete(&domain.DeviceShiftConfig{}).Error
}

// DeleteAll empties the hierarchy leaf first and detaches every bound point
func (r *topologyRepo) DeleteAll(ctx context.Context) error {
	db := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := db.Model(&domain.Point{}).Where("energy_device_id IS NOT NULL").
		Update("energy_device_id", nil).Error; err != nil {
		return fmt.Errorf("failed to detach points: %w", err)
	}
	for _, m := range []interface{}{
		&domain.DeviceShiftConfig{},
		&domain.PowerDevice{},
		&domain.DistributionCircuit{},
		&domain.DistributionPanel{},
		&domain.MeterPoint{},
		&domain.Transformer{},
	} {
		if err := db.Delete(m).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", m, err)
		}
	}
	r.log.Info("Topology cleared")
	return nil
}
