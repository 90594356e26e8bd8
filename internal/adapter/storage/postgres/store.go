package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/observability/telemetry"
	"github.com/seu-repo/energy-core/internal/ports"
)

// Store is the gorm-backed ports.Store. A Store handed to a Transaction
// callback wraps the transaction handle, so every repository it returns
// shares that transaction.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Topology() ports.TopologyRepository  { return &topologyRepo{db: s.db, log: s.log} }
func (s *Store) Points() ports.PointRepository       { return &pointRepo{db: s.db, log: s.log} }
func (s *Store) Series() ports.SeriesRepository      { return &seriesRepo{db: s.db, log: s.log} }
func (s *Store) Proposals() ports.ProposalRepository { return &proposalRepo{db: s.db, log: s.log} }
func (s *Store) Settings() ports.SettingsRepository  { return &settingsRepo{db: s.db} }

// Transaction commits when fn returns nil. gorm rolls back on error and on panic.
func (s *Store) Transaction(ctx context.Context, fn func(tx ports.Store) error) error {
	start := time.Now()
	defer func() { telemetry.DatabaseLatency.Observe(time.Since(start).Seconds()) }()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// mapError turns driver errors into domain kinds. Unique violations need
// TranslateError on the gorm config.
func mapError(err error, kind domain.NodeKind, code string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.DuplicateCode(kind, code)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return domain.InvalidParent("%s %s references a missing parent", kind, code)
	}
	return err
}

// first loads one row into dest, reporting false when it does not exist
func first(q *gorm.DB, dest interface{}, where string, args ...interface{}) (bool, error) {
	err := q.Where(where, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type settingsRepo struct {
	db *gorm.DB
}

func (r *settingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var e domain.ConfigEntry
	ok, err := first(r.db.WithContext(ctx), &e, "key = ?", key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return e.Value, ok, nil
}

func (r *settingsRepo) All(ctx context.Context) (map[string]string, error) {
	var rows []domain.ConfigEntry
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, e := range rows {
		out[e.Key] = e.Value
	}
	return out, nil
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.Validation("setting key is required")
	}
	e := domain.ConfigEntry{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
}
