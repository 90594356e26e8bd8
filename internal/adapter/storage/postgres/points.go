package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/energy-core/internal/domain"
)

type pointRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func (r *pointRepo) Create(ctx context.Context, p *domain.Point) error {
	if p.ID == "" {
		return domain.Validation("point id is required")
	}
	return mapError(r.db.WithContext(ctx).Create(p).Error, "point", p.Code)
}

func (r *pointRepo) Get(ctx context.Context, id string) (*domain.Point, error) {
	return r.one(ctx, "id = ?", id)
}

func (r *pointRepo) GetByCode(ctx context.Context, code string) (*domain.Point, error) {
	return r.one(ctx, "code = ?", code)
}

func (r *pointRepo) one(ctx context.Context, where, arg string) (*domain.Point, error) {
	var p domain.Point
	ok, err := first(r.db.WithContext(ctx), &p, where, arg)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (r *pointRepo) GetByCodes(ctx context.Context, codes []string) ([]domain.Point, error) {
	var out []domain.Point
	if len(codes) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("code IN ?", codes).Order("code").Find(&out).Error
	return out, err
}

func (r *pointRepo) ListByPrefix(ctx context.Context, prefix string) ([]domain.Point, error) {
	var out []domain.Point
	err := r.db.WithContext(ctx).
		Where("is_enabled = ? AND code LIKE ?", true, escapeLike(prefix)+"%").
		Order("code").Find(&out).Error
	return out, err
}

func (r *pointRepo) ListByDevice(ctx context.Context, deviceID string) ([]domain.Point, error) {
	var out []domain.Point
	err := r.db.WithContext(ctx).Where("energy_device_id = ?", deviceID).Order("code").Find(&out).Error
	return out, err
}

func (r *pointRepo) List(ctx context.Context) ([]domain.Point, error) {
	var out []domain.Point
	err := r.db.WithContext(ctx).Order("code").Find(&out).Error
	return out, err
}

// BindDevice expects to run inside a transaction: it touches the device row,
// the newly bound points and any previous owner of those points.
func (r *pointRepo) BindDevice(ctx context.Context, deviceID string, bindings domain.PointBindings) error {
	db := r.db.WithContext(ctx)

	var dev domain.PowerDevice
	ok, err := first(db.Clauses(clause.Locking{Strength: "UPDATE"}), &dev, "id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("failed to load device %s: %w", deviceID, err)
	}
	if !ok {
		return domain.NotFound("device", deviceID)
	}

	var ids []string
	for _, pid := range bindings {
		if pid != "" {
			ids = append(ids, pid)
		}
	}
	var points []domain.Point
	if len(ids) > 0 {
		if err := db.Where("id IN ?", ids).Find(&points).Error; err != nil {
			return fmt.Errorf("failed to load points: %w", err)
		}
	}
	found := make(map[string]domain.Point, len(points))
	for _, p := range points {
		found[p.ID] = p
	}
	for _, pid := range ids {
		if _, ok := found[pid]; !ok {
			return domain.NotFound("point", pid)
		}
	}

	// stale back-references of this device
	stale := db.Model(&domain.Point{}).Where("energy_device_id = ?", deviceID)
	if len(ids) > 0 {
		stale = stale.Where("id NOT IN ?", ids)
	}
	if err := stale.Update("energy_device_id", nil).Error; err != nil {
		return fmt.Errorf("failed to clear stale bindings of %s: %w", deviceID, err)
	}

	// points taken from another device lose that device's reference
	for _, p := range points {
		if p.EnergyDeviceID == nil || *p.EnergyDeviceID == deviceID {
			continue
		}
		if err := r.unbind(ctx, *p.EnergyDeviceID, p.ID); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		if err := db.Model(&domain.Point{}).Where("id IN ?", ids).
			Update("energy_device_id", deviceID).Error; err != nil {
			return fmt.Errorf("failed to bind points to %s: %w", deviceID, err)
		}
	}

	dev.SetBindings(bindings)
	return r.saveBindings(ctx, &dev)
}

func (r *pointRepo) unbind(ctx context.Context, deviceID, pointID string) error {
	var dev domain.PowerDevice
	ok, err := first(r.db.WithContext(ctx), &dev, "id = ?", deviceID)
	if err != nil || !ok {
		return err
	}
	b := dev.Bindings()
	for usage, id := range b {
		if id == pointID {
			delete(b, usage)
		}
	}
	dev.SetBindings(b)
	return r.saveBindings(ctx, &dev)
}

func (r *pointRepo) saveBindings(ctx context.Context, dev *domain.PowerDevice) error {
	err := r.db.WithContext(ctx).Model(&domain.PowerDevice{}).Where("id = ?", dev.ID).Updates(map[string]interface{}{
		"power_point_id":        dev.PowerPointID,
		"current_point_id":      dev.CurrentPointID,
		"energy_point_id":       dev.EnergyPointID,
		"voltage_point_id":      dev.VoltagePointID,
		"power_factor_point_id": dev.PowerFactorPointID,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to save bindings of %s: %w", dev.Code, err)
	}
	return nil
}

func (r *pointRepo) DeleteByDevice(ctx context.Context, deviceID string) (int, error) {
	db := r.db.WithContext(ctx)
	var ids []string
	if err := db.Model(&domain.Point{}).Where("energy_device_id = ?", deviceID).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.Where("point_id IN ?", ids).Delete(&domain.PointRealtime{}).Error; err != nil {
		return 0, fmt.Errorf("failed to delete realtime rows: %w", err)
	}
	res := db.Where("id IN ?", ids).Delete(&domain.Point{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete points of %s: %w", deviceID, res.Error)
	}
	err := db.Model(&domain.PowerDevice{}).Where("id = ?", deviceID).Updates(map[string]interface{}{
		"power_point_id":        nil,
		"current_point_id":      nil,
		"energy_point_id":       nil,
		"voltage_point_id":      nil,
		"power_factor_point_id": nil,
	}).Error
	if err != nil {
		return 0, fmt.Errorf("failed to clear bindings of %s: %w", deviceID, err)
	}
	return int(res.RowsAffected), nil
}

func (r *pointRepo) Realtime(ctx context.Context, pointID string) (*domain.PointRealtime, error) {
	var rt domain.PointRealtime
	ok, err := first(r.db.WithContext(ctx), &rt, "point_id = ?", pointID)
	if err != nil || !ok {
		return nil, err
	}
	return &rt, nil
}

func (r *pointRepo) SaveRealtime(ctx context.Context, rt *domain.PointRealtime) error {
	db := r.db.WithContext(ctx)
	var n int64
	if err := db.Model(&domain.Point{}).Where("id = ?", rt.PointID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("point", rt.PointID)
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "point_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "quality", "status", "updated_at"}),
	}).Create(rt).Error
}

// escapeLike makes prefix match literally in a LIKE pattern
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
