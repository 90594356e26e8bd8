package proposal

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/storage/memory"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
)

// scriptedActuation answers from a per-measure-code script; unlisted measures succeed
type scriptedActuation struct {
	results map[string]ports.ActuationResult
	errs    map[string]error
	onApply func(m *domain.Measure)
	calls   []string
}

func (a *scriptedActuation) Apply(ctx context.Context, m *domain.Measure) (ports.ActuationResult, error) {
	a.calls = append(a.calls, m.MeasureCode)
	if a.onApply != nil {
		a.onApply(m)
	}
	if err := a.errs[m.MeasureCode]; err != nil {
		return ports.ActuationResult{}, err
	}
	if r, ok := a.results[m.MeasureCode]; ok {
		return r, nil
	}
	return ports.ActuationResult{OK: true, Message: "applied"}, nil
}

// failingRealtime breaks realtime reads on top of a working store
type failingRealtime struct {
	ports.Store
}

func (s failingRealtime) Points() ports.PointRepository {
	return failingPoints{s.Store.Points()}
}

type failingPoints struct {
	ports.PointRepository
}

func (failingPoints) Realtime(ctx context.Context, pointID string) (*domain.PointRealtime, error) {
	return nil, errors.New("realtime table unavailable")
}

// acceptedA3 generates an A3 proposal and accepts the measures at the given positions
func acceptedA3(t *testing.T, g *Generator, positions ...int) *domain.Proposal {
	t.Helper()
	ctx := context.Background()
	p, err := g.Generate(ctx, "A3", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	var ids []string
	for _, i := range positions {
		ids = append(ids, p.Measures[i].ID)
	}
	if err := g.Accept(ctx, p.ID, ids); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return p
}

func newTestExecutor(store ports.Store, act ports.Actuation, pub ports.EventPublisher) *Executor {
	return NewExecutor(store, act, fixedClock(jan15), pub, zap.NewNop(), &ExecutorConfig{SettleDelay: 0})
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestExecute_OneSuccessOneFailure(t *testing.T) {
	g, store, _, pub := newTestGenerator(t)
	ctx := context.Background()
	p := acceptedA3(t, g, 0, 1)

	act := &scriptedActuation{results: map[string]ports.ActuationResult{
		p.Measures[1].MeasureCode: {OK: false, Message: "pump controller refused"},
	}}
	sum, err := newTestExecutor(store, act, pub).Execute(ctx, p.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if sum.Executed != 2 || sum.SuccessCount != 1 || sum.FailedCount != 1 || len(sum.Logs) != 2 {
		t.Fatalf("Unexpected summary %+v", sum)
	}
	if sum.Status != domain.ProposalCompleted {
		t.Errorf("Expected completed, got %s", sum.Status)
	}
	if len(act.calls) != 2 {
		t.Errorf("Expected only selected measures actuated, got %v", act.calls)
	}

	ok := sum.Logs[0]
	// A3 HVAC: 320 kW -> 280 kW
	assertDecimal(t, "power before", ok.PowerBefore, "320")
	assertDecimal(t, "power after", ok.PowerAfter, "280")
	assertDecimal(t, "power saved", ok.PowerSaved, "40")
	assertDecimal(t, "expected", ok.ExpectedPowerSaved, "40")
	if ok.Result != domain.ResultSuccess {
		t.Errorf("Expected success, got %s", ok.Result)
	}
	failed := sum.Logs[1]
	if failed.Result != domain.ResultFailed || failed.Message != "pump controller refused" {
		t.Errorf("Unexpected failed log %+v", failed)
	}
	assertDecimal(t, "failed saved", failed.PowerSaved, "0")

	got, err := g.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.ProposalCompleted {
		t.Errorf("Expected stored status completed, got %s", got.Status)
	}
	statuses := []domain.ExecutionStatus{got.Measures[0].ExecutionStatus, got.Measures[1].ExecutionStatus, got.Measures[2].ExecutionStatus}
	want := []domain.ExecutionStatus{domain.ExecutionCompleted, domain.ExecutionFailed, domain.ExecutionPending}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("Measure %d: expected %s, got %s", i+1, want[i], statuses[i])
		}
	}
	if len(got.Measures[0].Logs) != 1 || len(got.Measures[1].Logs) != 1 {
		t.Errorf("Expected one log per executed measure")
	}
	if last := pub.subjects[len(pub.subjects)-1]; last != ports.SubjectProposalExecuted {
		t.Errorf("Expected a proposal.executed event, got %s", last)
	}
}

func TestExecute_AllFailed(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	p := acceptedA3(t, g, 2)

	act := &scriptedActuation{errs: map[string]error{p.Measures[2].MeasureCode: errors.New("driver offline")}}
	sum, err := newTestExecutor(store, act, nil).Execute(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sum.Status != domain.ProposalFailed || sum.FailedCount != 1 {
		t.Errorf("Expected failed proposal, got %+v", sum)
	}
	if sum.Logs[0].Message != "actuation error: driver offline" {
		t.Errorf("Unexpected message %q", sum.Logs[0].Message)
	}
}

func TestExecute_RequiresAccepted(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()
	p, err := g.Generate(ctx, "A1", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	ex := newTestExecutor(store, &scriptedActuation{}, nil)

	if _, err := ex.Execute(ctx, p.ID); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION for pending proposal, got %v", err)
	}
	if _, err := ex.Execute(ctx, "missing"); domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}

	q := acceptedA3(t, g, 0)
	if _, err := ex.Execute(ctx, q.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := ex.Execute(ctx, q.ID); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION executing twice, got %v", err)
	}
}

func TestExecute_ReadsBoundPoint(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()
	p := acceptedA3(t, g, 0)

	point := &domain.Point{ID: "pt-1", Code: "B1_CH_AI_001", Name: "active power", IsEnabled: true}
	if err := store.Points().Create(ctx, point); err != nil {
		t.Fatalf("create point: %v", err)
	}
	if err := store.Points().SaveRealtime(ctx, &domain.PointRealtime{PointID: "pt-1", Value: 310}); err != nil {
		t.Fatalf("save realtime: %v", err)
	}
	m := p.Measures[0]
	m.IsSelected = true
	m.PowerPointID = &point.ID
	if err := store.Proposals().UpdateMeasure(ctx, &m); err != nil {
		t.Fatalf("bind measure: %v", err)
	}

	act := &scriptedActuation{onApply: func(*domain.Measure) {
		_ = store.Points().SaveRealtime(ctx, &domain.PointRealtime{PointID: "pt-1", Value: 275})
	}}
	sum, err := newTestExecutor(store, act, nil).Execute(ctx, p.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	l := sum.Logs[0]
	assertDecimal(t, "before", l.PowerBefore, "310")
	assertDecimal(t, "after", l.PowerAfter, "275")
	assertDecimal(t, "saved", l.PowerSaved, "35")
	if l.ExecutionData["power_source"] != "point" {
		t.Errorf("Expected point as power source, got %v", l.ExecutionData["power_source"])
	}
}

func TestExecute_ReadErrorStillLogs(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()
	p := acceptedA3(t, g, 0)

	m := p.Measures[0]
	m.IsSelected = true
	pid := "pt-missing"
	m.PowerPointID = &pid
	if err := store.Proposals().UpdateMeasure(ctx, &m); err != nil {
		t.Fatalf("bind measure: %v", err)
	}

	act := &scriptedActuation{}
	sum, err := newTestExecutor(failingRealtime{store}, act, nil).Execute(ctx, p.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(act.calls) != 0 {
		t.Errorf("Expected no actuation after a failed read, got %v", act.calls)
	}
	if sum.FailedCount != 1 || sum.Status != domain.ProposalFailed {
		t.Errorf("Unexpected summary %+v", sum)
	}
	logs, err := store.Proposals().ExecutionLogs(ctx, p.ID)
	if err != nil || len(logs) != 1 || logs[0].Result != domain.ResultFailed {
		t.Fatalf("Expected one failed log, got %v (%v)", logs, err)
	}
}

func TestExecute_CancelDuringSettle(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	p := acceptedA3(t, g, 0, 1)

	ex := NewExecutor(store, &scriptedActuation{}, fixedClock(jan15), nil, zap.NewNop(), &ExecutorConfig{SettleDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sum, err := ex.Execute(ctx, p.ID)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if sum.Executed != 1 || sum.Status != domain.ProposalFailed {
		t.Errorf("Expected one interrupted measure and a failed proposal, got %+v", sum)
	}

	got, err := store.Proposals().Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.ProposalFailed {
		t.Errorf("Expected the final status written despite cancellation, got %s", got.Status)
	}
	if len(got.Measures[0].Logs) != 1 {
		t.Errorf("Expected the interrupted measure to be logged")
	}
}

func TestSummary(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()
	p := acceptedA3(t, g, 0, 1)

	ex := newTestExecutor(store, &scriptedActuation{results: map[string]ports.ActuationResult{
		p.Measures[1].MeasureCode: {OK: false, Message: "refused"},
	}}, nil)
	if _, err := ex.Execute(ctx, p.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	st, err := ex.Summary(ctx, p.ID)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if st.TotalExecutions != 2 || st.SuccessCount != 1 {
		t.Errorf("Unexpected counts %+v", st)
	}
	assertDecimal(t, "success rate", st.SuccessRate, "0.5")
	assertDecimal(t, "power saved", st.TotalPowerSaved, "40")
	// 40 kW * 0.5 / 10000
	assertDecimal(t, "annual savings", st.EstimatedAnnualSavings, "0.002")

	if _, err := ex.Summary(ctx, "missing"); domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestExpectedSaving(t *testing.T) {
	tests := []struct {
		name            string
		current, target map[string]interface{}
		want            string
	}{
		{"reduction", map[string]interface{}{"power": 320.0}, map[string]interface{}{"power": 280.0}, "40"},
		{"increase floors at zero", map[string]interface{}{"power": 100.0}, map[string]interface{}{"power": 150.0}, "0"},
		{"missing target", map[string]interface{}{"power": 100.0}, nil, "0"},
		{"missing current", nil, map[string]interface{}{"power": 80.0}, "0"},
		{"unchanged", map[string]interface{}{"power": 75.0}, map[string]interface{}{"power": 75.0}, "0"},
		{"string power", map[string]interface{}{"power": "97.5"}, map[string]interface{}{"power": 50}, "47.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &domain.Measure{CurrentState: tt.current, TargetState: tt.target}
			assertDecimal(t, tt.name, expectedSaving(m), tt.want)
		})
	}
}

var _ ports.Store = failingRealtime{memory.NewStore()}
