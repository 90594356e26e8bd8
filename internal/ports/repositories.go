package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seu-repo/energy-core/internal/domain"
)

// Store is the relational store consumed by the core. Every repository obtained from
// a Store handed to a Transaction callback shares that transaction.
type Store interface {
	Topology() TopologyRepository
	Points() PointRepository
	Series() SeriesRepository
	Proposals() ProposalRepository
	Settings() SettingsRepository
	// Transaction commits when fn returns nil and rolls back otherwise, including on panic
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// TopologyRepository persists the electrical hierarchy. Lookups return nil, nil when absent.
type TopologyRepository interface {
	Create(ctx context.Context, node domain.Node) error
	Save(ctx context.Context, node domain.Node) error
	Delete(ctx context.Context, kind domain.NodeKind, id string) error
	Get(ctx context.Context, kind domain.NodeKind, id string) (domain.Node, error)
	GetByCode(ctx context.Context, kind domain.NodeKind, code string) (domain.Node, error)

	ListTransformers(ctx context.Context) ([]domain.Transformer, error)
	// An empty parent id lists every node of the kind
	ListMeterPoints(ctx context.Context, transformerID string) ([]domain.MeterPoint, error)
	ListPanels(ctx context.Context, meterPointID string) ([]domain.DistributionPanel, error)
	ListChildPanels(ctx context.Context, parentPanelID string) ([]domain.DistributionPanel, error)
	ListCircuits(ctx context.Context, panelID string) ([]domain.DistributionCircuit, error)
	ListDevices(ctx context.Context, circuitID string) ([]domain.PowerDevice, error)
	CountChildren(ctx context.Context, kind domain.NodeKind, id string) (int, error)

	ListShiftConfigs(ctx context.Context) ([]domain.DeviceShiftConfig, error)
	SaveShiftConfig(ctx context.Context, cfg *domain.DeviceShiftConfig) error
	DeleteShiftConfig(ctx context.Context, deviceID string) error

	// DeleteAll truncates the whole hierarchy together with shift configs
	DeleteAll(ctx context.Context) error
}

// PointRepository persists measurement points and their realtime values
type PointRepository interface {
	Create(ctx context.Context, p *domain.Point) error
	Get(ctx context.Context, id string) (*domain.Point, error)
	GetByCode(ctx context.Context, code string) (*domain.Point, error)
	GetByCodes(ctx context.Context, codes []string) ([]domain.Point, error)
	// ListByPrefix returns enabled points whose code starts with prefix, ordered by code
	ListByPrefix(ctx context.Context, prefix string) ([]domain.Point, error)
	ListByDevice(ctx context.Context, deviceID string) ([]domain.Point, error)
	List(ctx context.Context) ([]domain.Point, error)

	// BindDevice writes the device's point references and mirrors them on the points:
	// bound points get energy_device_id = deviceID, stale back-references are cleared.
	BindDevice(ctx context.Context, deviceID string, bindings domain.PointBindings) error
	// DeleteByDevice removes every point bound to the device along with its realtime row
	DeleteByDevice(ctx context.Context, deviceID string) (int, error)

	Realtime(ctx context.Context, pointID string) (*domain.PointRealtime, error)
	SaveRealtime(ctx context.Context, rt *domain.PointRealtime) error
}

// SeriesRepository reads and seeds the historical series. Date ranges are closed on both ends.
type SeriesRepository interface {
	Bill(ctx context.Context, month string) (*domain.ElectricityBill, error)
	Bills(ctx context.Context, months []string) ([]domain.ElectricityBill, error)
	LoadCurve(ctx context.Context, from, to time.Time) ([]domain.LoadCurvePoint, error)
	EnergyDaily(ctx context.Context, from, to time.Time) ([]domain.EnergyDaily, error)
	// SumEnergyByPeriod aggregates daily buckets by price period
	SumEnergyByPeriod(ctx context.Context, from, to time.Time) (map[domain.PeriodType]decimal.Decimal, error)
	EnergyHourly(ctx context.Context, deviceIDs []string, from, to time.Time) ([]domain.EnergyHourly, error)
	Demand15Min(ctx context.Context, meterPointID string, from, to time.Time) ([]domain.Demand15Min, error)
	DemandHistory(ctx context.Context, meterPointID string, year, month int) (*domain.DemandHistory, error)
	Prices(ctx context.Context) ([]domain.ElectricityPrice, error)

	SaveBill(ctx context.Context, b *domain.ElectricityBill) error
	SaveLoadCurve(ctx context.Context, points []domain.LoadCurvePoint) error
	SaveEnergyDaily(ctx context.Context, rows []domain.EnergyDaily) error
	SaveEnergyHourly(ctx context.Context, rows []domain.EnergyHourly) error
	SaveDemand15Min(ctx context.Context, rows []domain.Demand15Min) error
	SaveDemandHistory(ctx context.Context, h *domain.DemandHistory) error
	SavePrice(ctx context.Context, p *domain.ElectricityPrice) error
}

// ProposalRepository persists proposals, their measures and execution logs
type ProposalRepository interface {
	// NextSequence increments and returns the per-template per-day counter.
	// Callers must run it in the same transaction as the proposal insert.
	NextSequence(ctx context.Context, template domain.TemplateID, day string) (int, error)
	Create(ctx context.Context, p *domain.Proposal) error
	Get(ctx context.Context, id string) (*domain.Proposal, error)
	GetByCode(ctx context.Context, code string) (*domain.Proposal, error)
	List(ctx context.Context, template domain.TemplateID) ([]domain.Proposal, error)
	UpdateStatus(ctx context.Context, id string, status domain.ProposalStatus) error
	UpdateMeasure(ctx context.Context, m *domain.Measure) error
	AddExecutionLog(ctx context.Context, log *domain.ExecutionLog) error
	ExecutionLogs(ctx context.Context, proposalID string) ([]domain.ExecutionLog, error)
}

// SettingsRepository is the key-value configuration store
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
}
