package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/energy-core/internal/domain"
)

const batchSize = 500

type seriesRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

func (r *seriesRepo) Bill(ctx context.Context, month string) (*domain.ElectricityBill, error) {
	var b domain.ElectricityBill
	ok, err := first(r.db.WithContext(ctx), &b, "month = ?", month)
	if err != nil || !ok {
		return nil, err
	}
	return &b, nil
}

func (r *seriesRepo) Bills(ctx context.Context, months []string) ([]domain.ElectricityBill, error) {
	var out []domain.ElectricityBill
	if len(months) == 0 {
		return out, nil
	}
	err := r.db.WithContext(ctx).Where("month IN ?", months).Order("month").Find(&out).Error
	return out, err
}

func (r *seriesRepo) LoadCurve(ctx context.Context, from, to time.Time) ([]domain.LoadCurvePoint, error) {
	var out []domain.LoadCurvePoint
	err := r.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp").Find(&out).Error
	return out, err
}

func (r *seriesRepo) EnergyDaily(ctx context.Context, from, to time.Time) ([]domain.EnergyDaily, error) {
	var out []domain.EnergyDaily
	err := r.db.WithContext(ctx).
		Where("stat_date BETWEEN ? AND ?", from, to).
		Order("stat_date").Find(&out).Error
	return out, err
}

func (r *seriesRepo) SumEnergyByPeriod(ctx context.Context, from, to time.Time) (map[domain.PeriodType]decimal.Decimal, error) {
	var row struct {
		Sharp      decimal.Decimal
		Peak       decimal.Decimal
		Flat       decimal.Decimal
		Valley     decimal.Decimal
		DeepValley decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&domain.EnergyDaily{}).
		Select(`COALESCE(SUM(sharp_energy), 0) AS sharp,
			COALESCE(SUM(peak_energy), 0) AS peak,
			COALESCE(SUM(flat_energy), 0) AS flat,
			COALESCE(SUM(valley_energy), 0) AS valley,
			COALESCE(SUM(deep_valley_energy), 0) AS deep_valley`).
		Where("stat_date BETWEEN ? AND ?", from, to).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum energy by period: %w", err)
	}
	return map[domain.PeriodType]decimal.Decimal{
		domain.PeriodSharp:      row.Sharp,
		domain.PeriodPeak:       row.Peak,
		domain.PeriodNormal:     row.Flat,
		domain.PeriodValley:     row.Valley,
		domain.PeriodDeepValley: row.DeepValley,
	}, nil
}

func (r *seriesRepo) EnergyHourly(ctx context.Context, deviceIDs []string, from, to time.Time) ([]domain.EnergyHourly, error) {
	var out []domain.EnergyHourly
	q := r.db.WithContext(ctx).Where("stat_time BETWEEN ? AND ?", from, to)
	if len(deviceIDs) > 0 {
		q = q.Where("device_id IN ?", deviceIDs)
	}
	err := q.Order("stat_time").Find(&out).Error
	return out, err
}

func (r *seriesRepo) Demand15Min(ctx context.Context, meterPointID string, from, to time.Time) ([]domain.Demand15Min, error) {
	var out []domain.Demand15Min
	q := r.db.WithContext(ctx).Where("timestamp BETWEEN ? AND ?", from, to)
	if meterPointID != "" {
		q = q.Where("meter_point_id = ?", meterPointID)
	}
	err := q.Order("timestamp").Find(&out).Error
	return out, err
}

func (r *seriesRepo) DemandHistory(ctx context.Context, meterPointID string, year, month int) (*domain.DemandHistory, error) {
	var h domain.DemandHistory
	ok, err := first(r.db.WithContext(ctx), &h,
		"meter_point_id = ? AND stat_year = ? AND stat_month = ?", meterPointID, year, month)
	if err != nil || !ok {
		return nil, err
	}
	return &h, nil
}

func (r *seriesRepo) Prices(ctx context.Context) ([]domain.ElectricityPrice, error) {
	var out []domain.ElectricityPrice
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (r *seriesRepo) SaveBill(ctx context.Context, b *domain.ElectricityBill) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "month"}},
		UpdateAll: true,
	}).Create(b).Error
}

func (r *seriesRepo) SaveLoadCurve(ctx context.Context, points []domain.LoadCurvePoint) error {
	if len(points) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(points, batchSize).Error
}

func (r *seriesRepo) SaveEnergyDaily(ctx context.Context, rows []domain.EnergyDaily) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "stat_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_energy", "sharp_energy", "peak_energy", "flat_energy",
			"valley_energy", "deep_valley_energy", "max_power", "avg_power",
		}),
	}).CreateInBatches(rows, batchSize).Error
}

func (r *seriesRepo) SaveEnergyHourly(ctx context.Context, rows []domain.EnergyHourly) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error
}

func (r *seriesRepo) SaveDemand15Min(ctx context.Context, rows []domain.Demand15Min) error {
	for i := range rows {
		if !rows[i].Aligned() {
			return domain.Validation("demand timestamp %s is not on a quarter hour", rows[i].Timestamp)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meter_point_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{"avg_power"}),
	}).CreateInBatches(rows, batchSize).Error
}

func (r *seriesRepo) SaveDemandHistory(ctx context.Context, h *domain.DemandHistory) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "meter_point_id"}, {Name: "stat_year"}, {Name: "stat_month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"declared_demand", "max_demand", "avg_demand", "demand95th", "over_declared_count",
		}),
	}).Create(h).Error
}

func (r *seriesRepo) SavePrice(ctx context.Context, p *domain.ElectricityPrice) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(p).Error
}
