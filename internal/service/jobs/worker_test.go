package jobs

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/clock"
	"github.com/seu-repo/energy-core/internal/adapter/queue"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/mocks"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/proposal"
	"github.com/seu-repo/energy-core/internal/service/topology"
)

type fakeGenerator struct {
	template string
	days     int
	accepted map[string][]string
	rejected []string
}

func (g *fakeGenerator) Generate(ctx context.Context, templateID string, analysisDays int) (*domain.Proposal, error) {
	if _, err := domain.ParseTemplateID(templateID); err != nil {
		return nil, err
	}
	g.template, g.days = templateID, analysisDays
	return &domain.Proposal{ProposalCode: templateID + "-20260115-001", TemplateID: domain.TemplateID(templateID)}, nil
}

func (g *fakeGenerator) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	if id == "missing" {
		return nil, domain.NotFound("proposal", id)
	}
	return &domain.Proposal{ID: id, Measures: []domain.Measure{{ID: "m1"}, {ID: "m2"}}}, nil
}

func (g *fakeGenerator) Accept(ctx context.Context, proposalID string, measureIDs []string) error {
	if proposalID == "missing" {
		return domain.NotFound("proposal", proposalID)
	}
	if g.accepted == nil {
		g.accepted = map[string][]string{}
	}
	g.accepted[proposalID] = measureIDs
	return nil
}

func (g *fakeGenerator) Reject(ctx context.Context, proposalID string) error {
	if proposalID == "missing" {
		return domain.NotFound("proposal", proposalID)
	}
	g.rejected = append(g.rejected, proposalID)
	return nil
}

type fakeExecutor struct{ executed []string }

func (e *fakeExecutor) Execute(ctx context.Context, proposalID string) (*proposal.ExecutionSummary, error) {
	if proposalID == "missing" {
		return nil, domain.NotFound("proposal", proposalID)
	}
	e.executed = append(e.executed, proposalID)
	return &proposal.ExecutionSummary{ProposalID: proposalID, SuccessCount: 3}, nil
}

type fakeSyncer struct {
	one, all int
}

func (s *fakeSyncer) SyncDevicePoints(ctx context.Context, deviceID string) (topology.MatchResult, error) {
	s.one++
	return topology.MatchResult{DeviceID: deviceID}, nil
}

func (s *fakeSyncer) SyncAllDevicePoints(ctx context.Context) (topology.SyncReport, error) {
	s.all++
	return topology.SyncReport{}, nil
}

var at = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func TestWorker_Generate(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &mocks.MockPublisher{}
	w := NewWorker(gen, &fakeExecutor{}, &fakeSyncer{}, pub, clock.NewManual(at), 0, zap.NewNop())

	if err := w.Generate(GenerateRequest{TemplateID: "A3"}); err != nil {
		t.Fatalf("Generate returned %v", err)
	}
	if gen.template != "A3" || gen.days != defaultAnalysisDays {
		t.Errorf("Expected A3 over %d days, got %s over %d", defaultAnalysisDays, gen.template, gen.days)
	}

	if err := w.Generate(GenerateRequest{TemplateID: "Z9", AnalysisDays: 7}); err != nil {
		t.Fatalf("Expected failures to be reported, got %v", err)
	}
	ev, ok := pub.Last(ports.SubjectJobFailed)
	if !ok {
		t.Fatal("Expected a job failure event")
	}
	f := ev.(Failure)
	if f.Subject != ports.SubjectGenerateRequests || f.Kind != domain.ErrUnknownTemplate || !f.At.Equal(at) {
		t.Errorf("Unexpected failure %+v", f)
	}
}

func TestWorker_Execute(t *testing.T) {
	exec := &fakeExecutor{}
	pub := &mocks.MockPublisher{}
	w := NewWorker(&fakeGenerator{}, exec, &fakeSyncer{}, pub, clock.NewManual(at), time.Second, zap.NewNop())

	tests := []struct {
		name     string
		req      ExecuteRequest
		wantKind domain.ErrorKind
	}{
		{"executes", ExecuteRequest{ProposalID: "p1"}, ""},
		{"missing id", ExecuteRequest{}, domain.ErrValidation},
		{"unknown proposal", ExecuteRequest{ProposalID: "missing"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := pub.Count(ports.SubjectJobFailed)
			if err := w.Execute(tt.req); err != nil {
				t.Fatalf("Execute returned %v", err)
			}
			if tt.wantKind == "" {
				if pub.Count(ports.SubjectJobFailed) != before {
					t.Error("Expected no failure event")
				}
				return
			}
			ev, _ := pub.Last(ports.SubjectJobFailed)
			if f, ok := ev.(Failure); !ok || f.Kind != tt.wantKind {
				t.Errorf("Expected %s failure, got %+v", tt.wantKind, ev)
			}
		})
	}
	if len(exec.executed) != 1 || exec.executed[0] != "p1" {
		t.Errorf("Expected only p1 executed, got %v", exec.executed)
	}
}

func TestWorker_SyncOverQueue(t *testing.T) {
	syncer := &fakeSyncer{}
	w := NewWorker(&fakeGenerator{}, &fakeExecutor{}, syncer, nil, clock.NewManual(at), 0, zap.NewNop())

	mq := mocks.NewMockMessageQueue()
	if err := queue.SubscribeJSON(mq, ports.SubjectSyncRequests, w.Sync); err != nil {
		t.Fatalf("SubscribeJSON failed: %v", err)
	}
	bus := queue.NewPublisher(mq)
	ctx := context.Background()
	if err := bus.Publish(ctx, ports.SubjectSyncRequests, SyncRequest{DeviceID: "d1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := bus.Publish(ctx, ports.SubjectSyncRequests, SyncRequest{}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if syncer.one != 1 || syncer.all != 1 {
		t.Errorf("Expected one device sync and one full sync, got %d and %d", syncer.one, syncer.all)
	}
}

func TestWorker_AcceptOverQueue(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &mocks.MockPublisher{}
	w := NewWorker(gen, &fakeExecutor{}, &fakeSyncer{}, pub, clock.NewManual(at), 0, zap.NewNop())

	mq := mocks.NewMockMessageQueue()
	if err := queue.SubscribeJSON(mq, ports.SubjectAcceptRequests, w.Accept); err != nil {
		t.Fatalf("SubscribeJSON failed: %v", err)
	}
	bus := queue.NewPublisher(mq)
	ctx := context.Background()
	for _, req := range []AcceptRequest{
		{ProposalID: "p1", MeasureIDs: []string{"m2"}},
		{ProposalID: "p2"},
	} {
		if err := bus.Publish(ctx, ports.SubjectAcceptRequests, req); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	if got := gen.accepted["p1"]; len(got) != 1 || got[0] != "m2" {
		t.Errorf("Expected p1 accepted with m2, got %v", got)
	}
	if got := gen.accepted["p2"]; len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("Expected p2 accepted with every measure, got %v", got)
	}
	if pub.Count(ports.SubjectJobFailed) != 0 {
		t.Errorf("Expected no failures, got %d", pub.Count(ports.SubjectJobFailed))
	}

	if err := w.Accept(AcceptRequest{ProposalID: "missing"}); err != nil {
		t.Fatalf("Expected failures to be reported, got %v", err)
	}
	ev, _ := pub.Last(ports.SubjectJobFailed)
	if f, ok := ev.(Failure); !ok || f.Subject != ports.SubjectAcceptRequests || f.Kind != domain.ErrNotFound {
		t.Errorf("Expected a NOT_FOUND accept failure, got %+v", ev)
	}
}

func TestWorker_Reject(t *testing.T) {
	gen := &fakeGenerator{}
	pub := &mocks.MockPublisher{}
	w := NewWorker(gen, &fakeExecutor{}, &fakeSyncer{}, pub, clock.NewManual(at), 0, zap.NewNop())

	tests := []struct {
		name     string
		req      RejectRequest
		wantKind domain.ErrorKind
	}{
		{"rejects", RejectRequest{ProposalID: "p1"}, ""},
		{"missing id", RejectRequest{}, domain.ErrValidation},
		{"unknown proposal", RejectRequest{ProposalID: "missing"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := pub.Count(ports.SubjectJobFailed)
			if err := w.Reject(tt.req); err != nil {
				t.Fatalf("Reject returned %v", err)
			}
			if tt.wantKind == "" {
				if pub.Count(ports.SubjectJobFailed) != before {
					t.Error("Expected no failure event")
				}
				return
			}
			ev, _ := pub.Last(ports.SubjectJobFailed)
			if f, ok := ev.(Failure); !ok || f.Kind != tt.wantKind || f.Subject != ports.SubjectRejectRequests {
				t.Errorf("Expected %s failure, got %+v", tt.wantKind, ev)
			}
		})
	}
	if len(gen.rejected) != 1 || gen.rejected[0] != "p1" {
		t.Errorf("Expected only p1 rejected, got %v", gen.rejected)
	}
}
