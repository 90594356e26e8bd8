//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	_ "github.com/lib/pq"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/pkg/config"
)

type testEnv struct {
	store *Store
	raw   *sql.DB
}

// setupStore connects to DATABASE_URL when set, otherwise starts a container
func setupStore(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("energy_test"),
			tcpostgres.WithUsername("energy"),
			tcpostgres.WithPassword("energy_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Fatalf("Failed to start postgres container: %v", err)
		}
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("Failed to terminate postgres container: %v", err)
			}
		})
		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("Failed to get connection string: %v", err)
		}
	}

	db, err := NewConnection(config.DatabaseConfig{MaxOpenConns: 5}, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	if err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	raw, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to open verification connection: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	for _, table := range []string{
		"execution_logs", "measures", "proposals", "proposal_sequences",
		"point_realtimes", "points", "device_shift_configs", "power_devices",
		"distribution_circuits", "distribution_panels", "meter_points", "transformers",
		"energy_dailies", "demand15_mins", "demand_histories", "electricity_bills",
		"electricity_prices", "config_entries",
	} {
		if _, err := raw.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Logf("Failed to truncate %s: %v", table, err)
		}
	}
	return &testEnv{store: NewStore(db, zap.NewNop()), raw: raw}
}

func seedHierarchy(t *testing.T, s ports.Store) (meter, circuit, device string) {
	t.Helper()
	ctx := context.Background()
	tr := &domain.Transformer{ID: uuid.NewString(), Code: "T-1", Name: "Main", IsEnabled: true}
	mp := &domain.MeterPoint{ID: uuid.NewString(), TransformerID: tr.ID, Code: "MP-1", Name: "Meter", DeclaredDemand: 800, IsEnabled: true}
	pn := &domain.DistributionPanel{ID: uuid.NewString(), MeterPointID: mp.ID, Code: "P-1", Name: "Panel", IsEnabled: true}
	ci := &domain.DistributionCircuit{ID: uuid.NewString(), PanelID: pn.ID, Code: "C-1", Name: "HVAC", IsShiftable: true, ShiftPriority: 2, IsEnabled: true}
	dv := &domain.PowerDevice{ID: uuid.NewString(), CircuitID: ci.ID, Code: "D-1", Name: "Chiller", RatedPower: 120, IsEnabled: true}
	for _, n := range []domain.Node{tr, mp, pn, ci, dv} {
		if err := s.Topology().Create(ctx, n); err != nil {
			t.Fatalf("Failed to create %s: %v", n.Kind(), err)
		}
	}
	return mp.ID, ci.ID, dv.ID
}

func TestStore_Topology(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	_, circuitID, deviceID := seedHierarchy(t, env.store)

	t.Run("DuplicateCode", func(t *testing.T) {
		err := env.store.Topology().Create(ctx, &domain.Transformer{ID: uuid.NewString(), Code: "T-1", Name: "Dup"})
		if domain.KindOf(err) != domain.ErrDuplicateCode {
			t.Errorf("Expected duplicate code, got %v", err)
		}
	})

	t.Run("CountChildren", func(t *testing.T) {
		n, err := env.store.Topology().CountChildren(ctx, domain.KindCircuit, circuitID)
		if err != nil {
			t.Fatalf("CountChildren failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 device, got %d", n)
		}
	})

	t.Run("ShiftConfigUpsert", func(t *testing.T) {
		repo := env.store.Topology()
		if err := repo.SaveShiftConfig(ctx, &domain.DeviceShiftConfig{DeviceID: deviceID, IsShiftable: true, ShiftablePowerRatio: 0.3}); err != nil {
			t.Fatalf("SaveShiftConfig failed: %v", err)
		}
		if err := repo.SaveShiftConfig(ctx, &domain.DeviceShiftConfig{DeviceID: deviceID, IsShiftable: true, ShiftablePowerRatio: 0.6}); err != nil {
			t.Fatalf("SaveShiftConfig failed: %v", err)
		}
		var count int
		var ratio float64
		err := env.raw.QueryRow(`SELECT COUNT(*), MAX(shiftable_power_ratio) FROM device_shift_configs WHERE device_id = $1`, deviceID).Scan(&count, &ratio)
		if err != nil {
			t.Fatalf("Failed to query shift configs: %v", err)
		}
		if count != 1 || ratio != 0.6 {
			t.Errorf("Expected one row with ratio 0.6, got %d rows ratio %v", count, ratio)
		}
	})

	t.Run("MissingIsNil", func(t *testing.T) {
		n, err := env.store.Topology().GetByCode(ctx, domain.KindDevice, "NOPE")
		if err != nil || n != nil {
			t.Errorf("Expected nil, nil; got %v, %v", n, err)
		}
	})
}

func TestStore_PointBindingAndRealtime(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	_, _, deviceID := seedHierarchy(t, env.store)

	pt := &domain.Point{ID: uuid.NewString(), Code: "EMS_P_001", Name: "power", Type: domain.PointAI, IsEnabled: true}
	if err := env.store.Points().Create(ctx, pt); err != nil {
		t.Fatalf("Failed to create point: %v", err)
	}

	err := env.store.Transaction(ctx, func(tx ports.Store) error {
		return tx.Points().BindDevice(ctx, deviceID, domain.PointBindings{domain.UsagePower: pt.ID})
	})
	if err != nil {
		t.Fatalf("BindDevice failed: %v", err)
	}

	var owner string
	if err := env.raw.QueryRow(`SELECT energy_device_id FROM points WHERE id = $1`, pt.ID).Scan(&owner); err != nil {
		t.Fatalf("Failed to query point: %v", err)
	}
	if owner != deviceID {
		t.Errorf("Expected point owned by %s, got %s", deviceID, owner)
	}

	rt := &domain.PointRealtime{PointID: pt.ID, Value: 42.5, Status: "normal", UpdatedAt: time.Now().UTC()}
	if err := env.store.Points().SaveRealtime(ctx, rt); err != nil {
		t.Fatalf("SaveRealtime failed: %v", err)
	}
	rt.Value = 40
	if err := env.store.Points().SaveRealtime(ctx, rt); err != nil {
		t.Fatalf("SaveRealtime failed: %v", err)
	}
	got, err := env.store.Points().Realtime(ctx, pt.ID)
	if err != nil || got == nil || got.Value != 40 {
		t.Errorf("Expected realtime value 40, got %+v (%v)", got, err)
	}

	err = env.store.Points().SaveRealtime(ctx, &domain.PointRealtime{PointID: uuid.NewString()})
	if domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected not found for unknown point, got %v", err)
	}

	prefixed, err := env.store.Points().ListByPrefix(ctx, "EMS_P")
	if err != nil || len(prefixed) != 1 {
		t.Errorf("Expected 1 prefixed point, got %d (%v)", len(prefixed), err)
	}
}

func TestStore_Series(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	series := env.store.Series()
	deviceID := uuid.NewString()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	row := domain.EnergyDaily{DeviceID: deviceID, StatDate: day, TotalEnergy: decimal.NewFromInt(100), PeakEnergy: decimal.NewFromInt(40), FlatEnergy: decimal.NewFromInt(60)}
	if err := series.SaveEnergyDaily(ctx, []domain.EnergyDaily{row}); err != nil {
		t.Fatalf("SaveEnergyDaily failed: %v", err)
	}
	row.PeakEnergy = decimal.NewFromInt(50)
	if err := series.SaveEnergyDaily(ctx, []domain.EnergyDaily{row}); err != nil {
		t.Fatalf("SaveEnergyDaily upsert failed: %v", err)
	}

	var rows int
	if err := env.raw.QueryRow(`SELECT COUNT(*) FROM energy_dailies`).Scan(&rows); err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if rows != 1 {
		t.Errorf("Expected upsert to keep 1 row, got %d", rows)
	}

	sums, err := series.SumEnergyByPeriod(ctx, day, day)
	if err != nil {
		t.Fatalf("SumEnergyByPeriod failed: %v", err)
	}
	if !sums[domain.PeriodPeak].Equal(decimal.NewFromInt(50)) || !sums[domain.PeriodNormal].Equal(decimal.NewFromInt(60)) {
		t.Errorf("Unexpected sums: %v", sums)
	}
	if !sums[domain.PeriodDeepValley].IsZero() {
		t.Errorf("Expected zero deep valley, got %s", sums[domain.PeriodDeepValley])
	}

	err = series.SaveDemand15Min(ctx, []domain.Demand15Min{{MeterPointID: deviceID, Timestamp: day.Add(7 * time.Minute), AvgPower: 10}})
	if domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected validation error for unaligned demand, got %v", err)
	}

	if err := series.SaveBill(ctx, &domain.ElectricityBill{Month: "2026-03", TotalCost: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("SaveBill failed: %v", err)
	}
	if err := series.SaveBill(ctx, &domain.ElectricityBill{Month: "2026-03", TotalCost: decimal.NewFromInt(1200)}); err != nil {
		t.Fatalf("SaveBill upsert failed: %v", err)
	}
	bill, err := series.Bill(ctx, "2026-03")
	if err != nil || bill == nil || !bill.TotalCost.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("Expected bill cost 1200, got %+v (%v)", bill, err)
	}
}

func TestStore_Proposals(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	repo := env.store.Proposals()

	for want := 1; want <= 3; want++ {
		n, err := repo.NextSequence(ctx, domain.TemplateID("A1"), "20260302")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if n != want {
			t.Errorf("Expected sequence %d, got %d", want, n)
		}
	}
	if _, err := env.raw.ExecContext(ctx,
		`UPDATE proposal_sequences SET last_value = $1 WHERE template_id = 'A1' AND day = '20260302'`,
		domain.MaxDailyProposals); err != nil {
		t.Fatalf("Failed to advance sequence: %v", err)
	}
	if _, err := repo.NextSequence(ctx, domain.TemplateID("A1"), "20260302"); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION once the day is exhausted, got %v", err)
	}

	p := &domain.Proposal{
		ID:           uuid.NewString(),
		ProposalCode: "A1-20260302-001",
		TemplateID:   "A1",
		Status:       domain.ProposalPending,
		Measures: []domain.Measure{
			{ID: uuid.NewString(), SortOrder: 2, MeasureCode: "A1-20260302-001-M002", CurrentState: datatypes.JSONMap{"power": 200}},
			{ID: uuid.NewString(), SortOrder: 1, MeasureCode: "A1-20260302-001-M001", CurrentState: datatypes.JSONMap{"power": 300}},
		},
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	dup := *p
	dup.ID = uuid.NewString()
	dup.Measures = nil
	if err := repo.Create(ctx, &dup); domain.KindOf(err) != domain.ErrDuplicateCode {
		t.Errorf("Expected duplicate code, got %v", err)
	}

	got, err := repo.GetByCode(ctx, p.ProposalCode)
	if err != nil || got == nil {
		t.Fatalf("GetByCode failed: %v", err)
	}
	if len(got.Measures) != 2 || got.Measures[0].SortOrder != 1 {
		t.Errorf("Expected measures sorted by sort order, got %+v", got.Measures)
	}

	for i, m := range got.Measures {
		err := repo.AddExecutionLog(ctx, &domain.ExecutionLog{
			ID: uuid.NewString(), MeasureID: m.ID, ExecutedAt: time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AddExecutionLog failed: %v", err)
		}
	}
	logs, err := repo.ExecutionLogs(ctx, p.ID)
	if err != nil {
		t.Fatalf("ExecutionLogs failed: %v", err)
	}
	if len(logs) != 2 || logs[0].MeasureID != got.Measures[0].ID {
		t.Errorf("Expected logs ordered by measure, got %+v", logs)
	}

	if err := repo.UpdateStatus(ctx, uuid.NewString(), domain.ProposalAccepted); domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected not found, got %v", err)
	}
}
