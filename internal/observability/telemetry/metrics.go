package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Métricas de negócio
	TopologyMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_topology_mutations_total",
		Help: "Topology mutations committed, by node kind and operation",
	}, []string{"kind", "op"})

	PointBindingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_point_bindings_total",
		Help: "Device point matching runs, by matching rule",
	}, []string{"rule"})

	ProposalsGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_proposals_generated_total",
		Help: "Proposals generated, by template",
	}, []string{"template"})

	MeasureExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_measure_executions_total",
		Help: "Measure actuations, by result",
	}, []string{"result"})

	PowerSavedKW = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_power_saved_kw_total",
		Help: "Power reduction observed after measure execution, in kW",
	})

	// Despacho em tempo real
	DispatchReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_dispatch_readings_total",
		Help: "Power readings consumed by the dispatch controller",
	})

	DispatchPredictedDemand = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_dispatch_predicted_demand_kw",
		Help: "Predicted average demand of the current 15-minute window",
	})

	DispatchUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_dispatch_utilization_ratio",
		Help: "Predicted demand over demand target",
	})

	DispatchAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_dispatch_alerts_total",
		Help: "Dispatch alerts raised, by level",
	}, []string{"level"})

	DispatchCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_dispatch_commands_total",
		Help: "Adjustment commands issued, by action",
	}, []string{"action"})

	// Métricas de infraestrutura
	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "energy_database_latency_seconds",
		Help:    "Latency of store transactions",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "energy_http_request_duration_seconds",
		Help:    "Latency of the operational HTTP endpoints",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})

	ActuationBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_actuation_breaker_state",
		Help: "Actuation circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)
