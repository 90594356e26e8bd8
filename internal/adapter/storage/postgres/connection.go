package postgres

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/pkg/config"
)

// NewConnection opens the pool described by cfg. url overrides cfg.URL when
// the credentials were resolved elsewhere (Vault).
func NewConnection(cfg config.DatabaseConfig, url string, log *zap.Logger) (*gorm.DB, error) {
	if url == "" {
		url = cfg.URL
	}
	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Models lists every table of the schema in dependency order
var Models = []interface{}{
	&domain.Transformer{},
	&domain.MeterPoint{},
	&domain.DistributionPanel{},
	&domain.DistributionCircuit{},
	&domain.PowerDevice{},
	&domain.DeviceShiftConfig{},
	&domain.Point{},
	&domain.PointRealtime{},
	&domain.ElectricityBill{},
	&domain.ElectricityPrice{},
	&domain.LoadCurvePoint{},
	&domain.EnergyDaily{},
	&domain.EnergyHourly{},
	&domain.Demand15Min{},
	&domain.DemandHistory{},
	&domain.ConfigEntry{},
	&domain.Proposal{},
	&domain.Measure{},
	&domain.ExecutionLog{},
	&domain.ProposalSequence{},
}

// RunMigrations creates or updates the schema with AutoMigrate
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
