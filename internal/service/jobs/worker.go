// Package jobs runs proposal and point-sync requests that arrive over the
// message queue.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/proposal"
	"github.com/seu-repo/energy-core/internal/service/topology"
)

type Generator interface {
	Generate(ctx context.Context, templateID string, analysisDays int) (*domain.Proposal, error)
	Get(ctx context.Context, id string) (*domain.Proposal, error)
	Accept(ctx context.Context, proposalID string, measureIDs []string) error
	Reject(ctx context.Context, proposalID string) error
}

type Executor interface {
	Execute(ctx context.Context, proposalID string) (*proposal.ExecutionSummary, error)
}

type PointSyncer interface {
	SyncDevicePoints(ctx context.Context, deviceID string) (topology.MatchResult, error)
	SyncAllDevicePoints(ctx context.Context) (topology.SyncReport, error)
}

type GenerateRequest struct {
	TemplateID   string `json:"template_id"`
	AnalysisDays int    `json:"analysis_days"`
}

type ExecuteRequest struct {
	ProposalID string `json:"proposal_id"`
}

// AcceptRequest selects measures of a proposal, every measure when MeasureIDs is empty
type AcceptRequest struct {
	ProposalID string   `json:"proposal_id"`
	MeasureIDs []string `json:"measure_ids,omitempty"`
}

type RejectRequest struct {
	ProposalID string `json:"proposal_id"`
}

// SyncRequest rebinds one device, or every device when DeviceID is empty
type SyncRequest struct {
	DeviceID string `json:"device_id,omitempty"`
}

// Failure is published on jobs.failed when a request cannot be served
type Failure struct {
	Subject string           `json:"subject"`
	Request interface{}      `json:"request"`
	Kind    domain.ErrorKind `json:"kind"`
	Error   string           `json:"error"`
	At      time.Time        `json:"at"`
}

const defaultAnalysisDays = 30

type Worker struct {
	gen     Generator
	exec    Executor
	sync    PointSyncer
	events  ports.EventPublisher
	clock   ports.Clock
	timeout time.Duration
	log     *zap.Logger
}

// NewWorker builds a worker; a timeout of zero means two minutes per job
func NewWorker(gen Generator, exec Executor, sync PointSyncer, events ports.EventPublisher, clock ports.Clock, timeout time.Duration, log *zap.Logger) *Worker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Worker{gen: gen, exec: exec, sync: sync, events: events, clock: clock, timeout: timeout, log: log}
}

// Generate serves proposal.generate. Failures are reported, not returned,
// so the broker does not redeliver requests that can never succeed.
func (w *Worker) Generate(req GenerateRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	days := req.AnalysisDays
	if days == 0 {
		days = defaultAnalysisDays
	}
	p, err := w.gen.Generate(ctx, req.TemplateID, days)
	if err != nil {
		w.fail(ctx, ports.SubjectGenerateRequests, req, err)
		return nil
	}
	w.log.Info("Proposal generated on request",
		zap.String("proposal", p.ProposalCode),
		zap.String("template", string(p.TemplateID)),
	)
	return nil
}

// Execute serves proposal.execute
func (w *Worker) Execute(req ExecuteRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if req.ProposalID == "" {
		w.fail(ctx, ports.SubjectExecuteRequests, req, domain.Validation("proposal id is required"))
		return nil
	}
	summary, err := w.exec.Execute(ctx, req.ProposalID)
	if err != nil {
		w.fail(ctx, ports.SubjectExecuteRequests, req, err)
		return nil
	}
	w.log.Info("Proposal executed on request",
		zap.String("proposal", summary.ProposalCode),
		zap.Int("succeeded", summary.SuccessCount),
		zap.Int("failed", summary.FailedCount),
	)
	return nil
}

// Accept serves proposal.accept
func (w *Worker) Accept(req AcceptRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if req.ProposalID == "" {
		w.fail(ctx, ports.SubjectAcceptRequests, req, domain.Validation("proposal id is required"))
		return nil
	}
	ids := req.MeasureIDs
	if len(ids) == 0 {
		p, err := w.gen.Get(ctx, req.ProposalID)
		if err != nil {
			w.fail(ctx, ports.SubjectAcceptRequests, req, err)
			return nil
		}
		for _, m := range p.Measures {
			ids = append(ids, m.ID)
		}
	}
	if err := w.gen.Accept(ctx, req.ProposalID, ids); err != nil {
		w.fail(ctx, ports.SubjectAcceptRequests, req, err)
		return nil
	}
	w.log.Info("Proposal accepted on request",
		zap.String("proposal", req.ProposalID),
		zap.Int("measures", len(ids)),
	)
	return nil
}

// Reject serves proposal.reject
func (w *Worker) Reject(req RejectRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if req.ProposalID == "" {
		w.fail(ctx, ports.SubjectRejectRequests, req, domain.Validation("proposal id is required"))
		return nil
	}
	if err := w.gen.Reject(ctx, req.ProposalID); err != nil {
		w.fail(ctx, ports.SubjectRejectRequests, req, err)
		return nil
	}
	w.log.Info("Proposal rejected on request", zap.String("proposal", req.ProposalID))
	return nil
}

// Sync serves topology.sync
func (w *Worker) Sync(req SyncRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if req.DeviceID != "" {
		res, err := w.sync.SyncDevicePoints(ctx, req.DeviceID)
		if err != nil {
			w.fail(ctx, ports.SubjectSyncRequests, req, err)
			return nil
		}
		w.log.Info("Device points synchronized on request",
			zap.String("device", req.DeviceID),
			zap.String("rule", string(res.Rule)),
		)
		return nil
	}
	if _, err := w.sync.SyncAllDevicePoints(ctx); err != nil {
		w.fail(ctx, ports.SubjectSyncRequests, req, err)
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, subject string, req interface{}, err error) {
	kind := domain.KindOf(err)
	w.log.Warn("Job failed",
		zap.String("subject", subject),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	if w.events == nil {
		return
	}
	ev := Failure{Subject: subject, Request: req, Kind: kind, Error: err.Error(), At: w.clock.Now()}
	if perr := w.events.Publish(context.WithoutCancel(ctx), ports.SubjectJobFailed, ev); perr != nil {
		w.log.Warn("Failed to publish job failure", zap.Error(perr))
	}
}
