package memory

import (
	"context"
	"sync"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// Store is an in-process ports.Store. Transactions run against a copy of the
// state that replaces the committed one only when the callback succeeds.
type Store struct {
	mu   *sync.Mutex
	root *Store
	st   *state
	tx   bool
}

type state struct {
	transformers map[string]domain.Transformer
	meters       map[string]domain.MeterPoint
	panels       map[string]domain.DistributionPanel
	circuits     map[string]domain.DistributionCircuit
	devices      map[string]domain.PowerDevice
	shift        map[string]domain.DeviceShiftConfig // by device id

	points   map[string]domain.Point
	realtime map[string]domain.PointRealtime

	bills      map[string]domain.ElectricityBill
	loadCurve  []domain.LoadCurvePoint
	daily      []domain.EnergyDaily
	hourly     []domain.EnergyHourly
	demand     []domain.Demand15Min
	demandHist []domain.DemandHistory
	prices     []domain.ElectricityPrice
	nextID     uint

	proposals map[string]domain.Proposal
	logs      map[string][]domain.ExecutionLog // by measure id
	sequences map[string]int

	settings map[string]string
}

func NewStore() *Store {
	s := &Store{mu: &sync.Mutex{}, st: newState()}
	s.root = s
	return s
}

func newState() *state {
	return &state{
		transformers: map[string]domain.Transformer{},
		meters:       map[string]domain.MeterPoint{},
		panels:       map[string]domain.DistributionPanel{},
		circuits:     map[string]domain.DistributionCircuit{},
		devices:      map[string]domain.PowerDevice{},
		shift:        map[string]domain.DeviceShiftConfig{},
		points:       map[string]domain.Point{},
		realtime:     map[string]domain.PointRealtime{},
		bills:        map[string]domain.ElectricityBill{},
		proposals:    map[string]domain.Proposal{},
		logs:         map[string][]domain.ExecutionLog{},
		sequences:    map[string]int{},
		settings:     map[string]string{},
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.transformers {
		c.transformers[k] = v
	}
	for k, v := range st.meters {
		c.meters[k] = v
	}
	for k, v := range st.panels {
		c.panels[k] = v
	}
	for k, v := range st.circuits {
		c.circuits[k] = v
	}
	for k, v := range st.devices {
		c.devices[k] = v
	}
	for k, v := range st.shift {
		c.shift[k] = v
	}
	for k, v := range st.points {
		c.points[k] = v
	}
	for k, v := range st.realtime {
		c.realtime[k] = v
	}
	for k, v := range st.bills {
		c.bills[k] = v
	}
	c.loadCurve = append(c.loadCurve, st.loadCurve...)
	c.daily = append(c.daily, st.daily...)
	c.hourly = append(c.hourly, st.hourly...)
	c.demand = append(c.demand, st.demand...)
	c.demandHist = append(c.demandHist, st.demandHist...)
	c.prices = append(c.prices, st.prices...)
	c.nextID = st.nextID
	for k, v := range st.proposals {
		v.Measures = append([]domain.Measure(nil), v.Measures...)
		c.proposals[k] = v
	}
	for k, v := range st.logs {
		c.logs[k] = append([]domain.ExecutionLog(nil), v...)
	}
	for k, v := range st.sequences {
		c.sequences[k] = v
	}
	for k, v := range st.settings {
		c.settings[k] = v
	}
	return c
}

func (st *state) id() uint {
	st.nextID++
	return st.nextID
}

// do runs fn against the visible state. Inside a transaction the lock is already held.
func (s *Store) do(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.root.st)
}

func (s *Store) Topology() ports.TopologyRepository  { return &topologyRepo{s: s} }
func (s *Store) Points() ports.PointRepository       { return &pointRepo{s: s} }
func (s *Store) Series() ports.SeriesRepository      { return &seriesRepo{s: s} }
func (s *Store) Proposals() ports.ProposalRepository { return &proposalRepo{s: s} }
func (s *Store) Settings() ports.SettingsRepository  { return &settingsRepo{s: s} }
func (s *Store) Ping(ctx context.Context) error      { return ctx.Err() }

func (s *Store) Transaction(ctx context.Context, fn func(tx ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.tx {
		// nested: work on a copy of the enclosing transaction's state
		inner := &Store{mu: s.mu, root: s.root, st: s.st.clone(), tx: true}
		if err := fn(inner); err != nil {
			return err
		}
		s.st = inner.st
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, root: s.root, st: s.root.st.clone(), tx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.root.st = tx.st
	return nil
}

type settingsRepo struct{ s *Store }

func (r *settingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := r.s.do(func(st *state) error {
		v, ok = st.settings[key]
		return nil
	})
	return v, ok, err
}

func (r *settingsRepo) All(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := r.s.do(func(st *state) error {
		for k, v := range st.settings {
			out[k] = v
		}
		return nil
	})
	return out, err
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return domain.Validation("setting key is required")
	}
	return r.s.do(func(st *state) error {
		st.settings[key] = value
		return nil
	})
}
