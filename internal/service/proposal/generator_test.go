package proposal

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/clock"
	"github.com/seu-repo/energy-core/internal/adapter/storage/memory"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/service/calculator"
	"github.com/seu-repo/energy-core/internal/service/pricing"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	events   []interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, event)
	return nil
}

var jan15 = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestGenerator(t *testing.T) (*Generator, *memory.Store, *clock.Manual, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(jan15)
	log := zap.NewNop()
	calc := calculator.NewService(store, pricing.NewService(store, nil, clk, log, nil), nil, log, nil)
	pub := &recordingPublisher{}
	return NewGenerator(store, calc, clk, pub, log), store, clk, pub
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("%s: expected %s, got %s", name, want, got.String())
	}
}

func TestGenerate_CodeSequencing(t *testing.T) {
	g, _, _, pub := newTestGenerator(t)
	ctx := context.Background()

	want := []string{"A1-20260115-001", "A1-20260115-002", "A1-20260115-003"}
	sumTotals, sumMeasures := decimal.Zero, decimal.Zero
	for i, code := range want {
		p, err := g.Generate(ctx, "A1", DefaultAnalysisDays)
		if err != nil {
			t.Fatalf("Generate %d failed: %v", i, err)
		}
		if p.ProposalCode != code {
			t.Errorf("Expected code %s, got %s", code, p.ProposalCode)
		}
		if !domain.ProposalCodePattern.MatchString(p.ProposalCode) {
			t.Errorf("Code %s does not match the code pattern", p.ProposalCode)
		}
		if len(p.Measures) != 3 {
			t.Fatalf("Expected 3 measures, got %d", len(p.Measures))
		}
		if p.Measures[0].MeasureCode != code+"-M001" || p.Measures[2].MeasureCode != code+"-M003" {
			t.Errorf("Unexpected measure codes %s..%s", p.Measures[0].MeasureCode, p.Measures[2].MeasureCode)
		}
		sumTotals = sumTotals.Add(p.TotalBenefit)
		for _, m := range p.Measures {
			sumMeasures = sumMeasures.Add(m.AnnualBenefit)
		}
	}
	if !sumTotals.Equal(sumMeasures) {
		t.Errorf("Expected totals %s to equal measure sum %s", sumTotals, sumMeasures)
	}
	if len(pub.subjects) != 3 || pub.subjects[0] != "proposal.generated" {
		t.Errorf("Expected three proposal.generated events, got %v", pub.subjects)
	}
}

func TestGenerate_SequencePerTemplateAndDay(t *testing.T) {
	g, _, clk, _ := newTestGenerator(t)
	ctx := context.Background()

	codes := func(template string) string {
		p, err := g.Generate(ctx, template, 7)
		if err != nil {
			t.Fatalf("Generate %s failed: %v", template, err)
		}
		return p.ProposalCode
	}
	if c := codes("A1"); c != "A1-20260115-001" {
		t.Errorf("got %s", c)
	}
	if c := codes("A2"); c != "A2-20260115-001" {
		t.Errorf("got %s", c)
	}
	clk.Advance(24 * time.Hour)
	if c := codes("A1"); c != "A1-20260116-001" {
		t.Errorf("got %s", c)
	}
}

func TestGenerate_ConcurrentCodesAreUnique(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	codes := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := g.Generate(ctx, "B1", 30)
			if err != nil {
				t.Errorf("Generate failed: %v", err)
				return
			}
			codes <- p.ProposalCode
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		if seen[c] {
			t.Errorf("Duplicate code %s", c)
		}
		seen[c] = true
	}
	for i := 1; i <= n; i++ {
		if c := domain.ProposalCode(domain.TemplateRetrofit, jan15, i); !seen[c] {
			t.Errorf("Expected gap-free sequence, %s missing", c)
		}
	}
}

func TestGenerate_Window(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	p, err := g.Generate(context.Background(), "A1", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := p.AnalysisStartDate.Format("2006-01-02"); got != "2025-12-17" {
		t.Errorf("Expected window start 2025-12-17, got %s", got)
	}
	if got := p.AnalysisEndDate.Format("2006-01-02"); got != "2026-01-15" {
		t.Errorf("Expected window end 2026-01-15, got %s", got)
	}
	if p.Status != domain.ProposalPending || p.ProposalType != "A" || p.TemplateName != "Peak-Valley Arbitrage" {
		t.Errorf("Unexpected header %+v", p)
	}
}

func TestGenerate_Errors(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	tests := []struct {
		name     string
		template string
		days     int
		want     domain.ErrorKind
	}{
		{"unknown template", "C9", 30, domain.ErrUnknownTemplate},
		{"lowercase template", "a1", 30, domain.ErrUnknownTemplate},
		{"zero days", "A1", 0, domain.ErrValidation},
		{"negative days", "A2", -3, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tt.template, tt.days)
			if got := domain.KindOf(err); got != tt.want {
				t.Errorf("Expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestGenerate_PeakValleyBenefits(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	p, err := g.Generate(context.Background(), "A1", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// 2500 kW x 2 h sharp->valley, 1200 kW x 3 h peak->normal, 800 kW x 4 h sharp->valley, 300 days
	assertDecimal(t, "heat treatment", p.Measures[0].AnnualBenefit, "148.35")
	assertDecimal(t, "auxiliary", p.Measures[1].AnnualBenefit, "27.54")
	assertDecimal(t, "compressor", p.Measures[2].AnnualBenefit, "94.94")
	assertDecimal(t, "total", p.TotalBenefit, "270.83")
	assertDecimal(t, "investment", p.TotalInvestment, "0")

	for _, key := range []string{"prices", "working_days", "period_ratio", "transferable_load"} {
		if _, ok := p.CurrentSituation[key]; !ok {
			t.Errorf("Expected current_situation to carry %s", key)
		}
	}
}

func TestGenerate_FixedTemplates(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	ctx := context.Background()

	a3, err := g.Generate(ctx, "A3", 30)
	if err != nil {
		t.Fatalf("Generate A3 failed: %v", err)
	}
	assertDecimal(t, "hvac", a3.Measures[0].AnnualBenefit, "10.46")
	assertDecimal(t, "pump", a3.Measures[1].AnnualBenefit, "9.42")
	assertDecimal(t, "lighting", a3.Measures[2].AnnualBenefit, "4.19")

	b1, err := g.Generate(ctx, "B1", 30)
	if err != nil {
		t.Fatalf("Generate B1 failed: %v", err)
	}
	if b1.ProposalType != "B" {
		t.Errorf("Expected type B, got %s", b1.ProposalType)
	}
	assertDecimal(t, "compressor", b1.Measures[0].AnnualBenefit, "7.32")
	assertDecimal(t, "vfd", b1.Measures[1].AnnualBenefit, "16.48")
	assertDecimal(t, "led", b1.Measures[2].AnnualBenefit, "12.71")
	assertDecimal(t, "investment", b1.TotalInvestment, "24.5")
}

func TestGenerate_EveryTemplateShape(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()

	// enough history for the data-driven templates
	meter := &domain.MeterPoint{ID: "m1", TransformerID: "t1", Code: "MP-1", Name: "main", DeclaredDemand: 1000, IsEnabled: true}
	if err := store.Topology().Create(ctx, meter); err != nil {
		t.Fatalf("create meter: %v", err)
	}
	if err := store.Series().SaveDemandHistory(ctx, &domain.DemandHistory{
		MeterPointID: "m1", StatYear: 2026, StatMonth: 1, MaxDemand: 820, Demand95th: 760, DeclaredDemand: 1000,
	}); err != nil {
		t.Fatalf("save demand history: %v", err)
	}

	for _, info := range g.Templates() {
		t.Run(string(info.ID), func(t *testing.T) {
			p, err := g.Generate(ctx, string(info.ID), 30)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if len(p.Measures) != 3 {
				t.Fatalf("Expected 3 measures, got %d", len(p.Measures))
			}
			benefit, investment := p.Totals()
			if !benefit.Equal(p.TotalBenefit) || !investment.Equal(p.TotalInvestment) {
				t.Errorf("Header totals do not match measures")
			}
			if info.ID == domain.TemplateRetrofit {
				if !investment.IsPositive() {
					t.Errorf("Expected positive investment, got %s", investment)
				}
			} else if !investment.IsZero() {
				t.Errorf("Expected zero investment, got %s", investment)
			}
			for _, m := range p.Measures {
				if _, ok := domain.StatePower(m.CurrentState); !ok {
					t.Errorf("%s: current_state has no power", m.MeasureCode)
				}
				if _, ok := domain.StatePower(m.TargetState); !ok {
					t.Errorf("%s: target_state has no power", m.MeasureCode)
				}
				if m.CalculationFormula == "" || m.IsSelected || m.ExecutionStatus != domain.ExecutionPending {
					t.Errorf("%s: unexpected measure %+v", m.MeasureCode, m)
				}
				if m.AnnualBenefit.IsNegative() {
					t.Errorf("%s: negative benefit %s", m.MeasureCode, m.AnnualBenefit)
				}
			}
		})
	}
}

func TestGenerate_DemandFromHistory(t *testing.T) {
	g, store, _, _ := newTestGenerator(t)
	ctx := context.Background()
	if err := store.Topology().Create(ctx, &domain.MeterPoint{ID: "m1", TransformerID: "t1", Code: "MP-1", Name: "main", DeclaredDemand: 1000, IsEnabled: true}); err != nil {
		t.Fatalf("create meter: %v", err)
	}
	if err := store.Series().SaveDemandHistory(ctx, &domain.DemandHistory{
		MeterPointID: "m1", StatYear: 2026, StatMonth: 1, MaxDemand: 820, Demand95th: 760, DeclaredDemand: 1000,
	}); err != nil {
		t.Fatalf("save demand history: %v", err)
	}

	p, err := g.Generate(ctx, "A2", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// recommended = 760 * 1.05 = 798; (1000 - 798) * 40 / 10000 = 0.81 a month, 9.72 a year
	assertDecimal(t, "declared reduction", p.Measures[0].AnnualBenefit, "9.72")
	// 798 * 0.05 = 39.9 kW; 39.9 * 40 * 12 / 10000 = 1.92
	assertDecimal(t, "monitoring", p.Measures[1].AnnualBenefit, "1.92")
	// 820 * 0.1 = 82 kW; 82 * 40 * 12 / 10000 = 3.94
	assertDecimal(t, "capping", p.Measures[2].AnnualBenefit, "3.94")
	if p.CurrentSituation["meter_code"] != "MP-1" {
		t.Errorf("Expected meter code in situation, got %v", p.CurrentSituation["meter_code"])
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	ctx := context.Background()

	for _, template := range []string{"A1", "A5", "B1"} {
		first, err := g.Generate(ctx, template, 30)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		second, err := g.Generate(ctx, template, 30)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if !reflect.DeepEqual(first.CurrentSituation, second.CurrentSituation) {
			t.Errorf("%s: current_situation differs between runs", template)
		}
		for i := range first.Measures {
			a, b := first.Measures[i], second.Measures[i]
			if a.RegulationObject != b.RegulationObject ||
				a.CalculationFormula != b.CalculationFormula ||
				!a.AnnualBenefit.Equal(b.AnnualBenefit) ||
				!reflect.DeepEqual(a.CurrentState, b.CurrentState) ||
				!reflect.DeepEqual(a.TargetState, b.TargetState) {
				t.Errorf("%s: measure %d differs between runs", template, i+1)
			}
		}
	}
}

func TestTransitions(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	ctx := context.Background()

	p, err := g.Generate(ctx, "A3", 30)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	m1, m2 := p.Measures[0].ID, p.Measures[1].ID

	if err := g.Accept(ctx, p.ID, nil); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION for empty selection, got %v", err)
	}
	if err := g.Accept(ctx, p.ID, []string{"nope"}); domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected NOT_FOUND for unknown measure, got %v", err)
	}
	if err := g.SelectMeasures(ctx, p.ID, []string{m1, m2}); err != nil {
		t.Fatalf("SelectMeasures failed: %v", err)
	}
	if err := g.Accept(ctx, p.ID, []string{m2}); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	got, err := g.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.ProposalAccepted {
		t.Errorf("Expected accepted, got %s", got.Status)
	}
	if got.Measures[0].IsSelected || !got.Measures[1].IsSelected || got.Measures[2].IsSelected {
		t.Errorf("Expected only the second measure selected")
	}

	if err := g.Accept(ctx, p.ID, []string{m1}); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION accepting twice, got %v", err)
	}
	if err := g.Reject(ctx, p.ID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if err := g.SelectMeasures(ctx, p.ID, []string{m1}); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION selecting on a rejected proposal, got %v", err)
	}
	if _, err := g.Get(ctx, "missing"); domain.KindOf(err) != domain.ErrNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestList(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	ctx := context.Background()
	for _, template := range []string{"A1", "A2", "A1"} {
		if _, err := g.Generate(ctx, template, 30); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}

	a1, err := g.List(ctx, "A1")
	if err != nil || len(a1) != 2 {
		t.Fatalf("Expected 2 A1 proposals, got %d (%v)", len(a1), err)
	}
	all, err := g.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("Expected 3 proposals, got %d (%v)", len(all), err)
	}
	if _, err := g.List(ctx, "Z1"); domain.KindOf(err) != domain.ErrUnknownTemplate {
		t.Errorf("Expected UNKNOWN_TEMPLATE, got %v", err)
	}
}

func TestTemplates(t *testing.T) {
	g, _, _, _ := newTestGenerator(t)
	infos := g.Templates()
	if len(infos) != 6 {
		t.Fatalf("Expected 6 templates, got %d", len(infos))
	}
	for i, id := range domain.TemplateIDs {
		if infos[i].ID != id || len(infos[i].Measures) != 3 {
			t.Errorf("Unexpected template %+v", infos[i])
		}
	}
}
