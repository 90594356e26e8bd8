package dispatch

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/clock"
	"github.com/seu-repo/energy-core/internal/domain"
)

type recordingListener struct {
	mu       sync.Mutex
	events   []string
	alerts   []domain.Prediction
	commands []domain.AdjustmentCommand
	err      error
	panics   bool
}

func (l *recordingListener) OnAlert(p domain.Prediction) error {
	if l.panics {
		panic("alert sink exploded")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "alert")
	l.alerts = append(l.alerts, p)
	return l.err
}

func (l *recordingListener) OnCommand(cmd domain.AdjustmentCommand) error {
	if l.panics {
		panic("command sink exploded")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "command:"+cmd.DeviceName)
	l.commands = append(l.commands, cmd)
	return l.err
}

var quarter = time.Date(2026, 1, 15, 10, 15, 0, 0, time.UTC)

func newTestController(target float64) (*Controller, *recordingListener) {
	c := NewController(target, clock.NewManual(quarter), zap.NewNop())
	l := &recordingListener{}
	c.AddListener(l)
	return c, l
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestWindowStart(t *testing.T) {
	tests := []struct {
		at, want string
	}{
		{"10:15:00", "10:15:00"},
		{"10:29:59", "10:15:00"},
		{"10:30:00", "10:30:00"},
		{"10:44:10", "10:30:00"},
		{"23:59:59", "23:45:00"},
		{"00:07:30", "00:00:00"},
	}
	for _, tt := range tests {
		at, _ := time.Parse("15:04:05", tt.at)
		want, _ := time.Parse("15:04:05", tt.want)
		if got := WindowStart(at); !got.Equal(want) {
			t.Errorf("WindowStart(%s): expected %s, got %s", tt.at, tt.want, got.Format("15:04:05"))
		}
	}
}

func TestAddReading_ConstantLoadStaysAtAttention(t *testing.T) {
	c, l := newTestController(800)
	if err := c.SetStorageStatus(100, 0.6); err != nil {
		t.Fatalf("SetStorageStatus failed: %v", err)
	}

	var p domain.Prediction
	for i := 0; i < 60; i++ {
		p = c.AddReading(700, quarter.Add(time.Duration(i)*15*time.Second))
		if p.AlertLevel != domain.AlertAttention {
			t.Fatalf("Reading %d: expected attention, got %s", i, p.AlertLevel)
		}
	}

	if !near(p.PredictedAvg, 700) || !near(p.CurrentWindowAvg, 700) {
		t.Errorf("Expected a 700 kW prediction, got %+v", p)
	}
	if !near(p.Utilization, 0.875) {
		t.Errorf("Expected utilization 0.875, got %v", p.Utilization)
	}
	if p.TimeRemaining != 15 || p.Trend != domain.TrendStable {
		t.Errorf("Unexpected window state %+v", p)
	}
	// 87.5 plus the final five minutes bonus
	if !near(p.RiskScore, 97.5) {
		t.Errorf("Expected risk 97.5, got %v", p.RiskScore)
	}
	if len(l.commands) != 0 || len(c.Status().ActiveCommands) != 0 {
		t.Errorf("Expected no commands below critical, got %d", len(l.commands))
	}
	if len(l.alerts) != 60 {
		t.Errorf("Expected an alert per reading, got %d", len(l.alerts))
	}
}

func TestAddReading_RampReachesCritical(t *testing.T) {
	c, l := newTestController(800)
	if err := c.SetStorageStatus(5, 0.6); err != nil {
		t.Fatalf("SetStorageStatus failed: %v", err)
	}
	err := c.SetCurtailableDevices([]domain.CurtailableDevice{
		{ID: "1", Name: "HVAC-1", RatedPower: 50, CurtailRatio: 0.3, Priority: 3},
		{ID: "2", Name: "Lighting-2", RatedPower: 30, CurtailRatio: 0.5, Priority: 5},
		{ID: "3", Name: "Fans-3", RatedPower: 40, CurtailRatio: 0.4, Priority: 4},
	})
	if err != nil {
		t.Fatalf("SetCurtailableDevices failed: %v", err)
	}
	const capacity = 5 + 15 + 15 + 16

	at := quarter
	for i := 0; i < 44; i++ {
		c.AddReading(700, at)
		at = at.Add(15 * time.Second)
	}
	if len(l.commands) != 0 {
		t.Fatalf("Expected no commands during the flat phase, got %d", len(l.commands))
	}

	// final four minutes, rising 15 kW per sample
	var p domain.Prediction
	triggered := 0
	for j := 0; j < 16; j++ {
		before := len(l.commands)
		p = c.AddReading(780+15*float64(j), at)
		at = at.Add(15 * time.Second)

		if p.Trend != domain.TrendUp {
			t.Errorf("Sample %d: expected trend up, got %s", j, p.Trend)
		}
		issued := l.commands[before:]
		if !p.AlertLevel.Triggers() {
			if len(issued) != 0 {
				t.Errorf("Sample %d: commands issued at %s", j, p.AlertLevel)
			}
			continue
		}
		triggered++
		sum := 0.0
		for _, cmd := range issued {
			sum += cmd.PowerChange
			if cmd.Duration != p.TimeRemaining+60 {
				t.Errorf("Sample %d: expected duration %d, got %d", j, p.TimeRemaining+60, cmd.Duration)
			}
		}
		want := math.Min(p.PredictedAvg-760, capacity)
		if !near(sum, want) {
			t.Errorf("Sample %d: commands sum to %v, expected %v", j, sum, want)
		}
	}

	if p.AlertLevel != domain.AlertCritical {
		t.Fatalf("Expected critical at the end of the window, got %s (%+v)", p.AlertLevel, p)
	}
	if p.PredictedAvg < 760 {
		t.Errorf("Expected predicted >= 760, got %v", p.PredictedAvg)
	}
	if triggered == 0 {
		t.Fatal("Expected at least one triggering sample")
	}
	if got := len(c.Status().ActiveCommands); got != len(l.commands) {
		t.Errorf("Expected every command to stay active, %d active vs %d issued", got, len(l.commands))
	}
}

func TestAddReading_AdjustmentOrder(t *testing.T) {
	c, l := newTestController(800)
	if err := c.SetStorageStatus(50, 0.5); err != nil {
		t.Fatalf("SetStorageStatus failed: %v", err)
	}
	err := c.SetCurtailableDevices([]domain.CurtailableDevice{
		{ID: "b", Name: "B", RatedPower: 100, CurtailRatio: 0.5, Priority: 4},
		{ID: "a", Name: "A", RatedPower: 40, CurtailRatio: 0.5, Priority: 2},
		{ID: "c", Name: "C", RatedPower: 200, CurtailRatio: 1, Priority: 7},
		{ID: "d", Name: "D", RatedPower: 80, CurtailRatio: 1, Priority: 9},
	})
	if err != nil {
		t.Fatalf("SetCurtailableDevices failed: %v", err)
	}

	// first sample of the window: the prediction is the reading itself
	p := c.AddReading(900, quarter)
	if p.AlertLevel != domain.AlertExceeded || !near(p.PredictedAvg, 900) {
		t.Fatalf("Unexpected prediction %+v", p)
	}

	wantEvents := []string{"alert", "command:energy storage", "command:A", "command:B", "command:C"}
	if len(l.events) != len(wantEvents) {
		t.Fatalf("Expected events %v, got %v", wantEvents, l.events)
	}
	for i := range wantEvents {
		if l.events[i] != wantEvents[i] {
			t.Errorf("Event %d: expected %s, got %s", i, wantEvents[i], l.events[i])
		}
	}

	// excess 900 - 760 = 140
	want := []struct {
		action   domain.AdjustmentAction
		kw       float64
		priority int
	}{
		{domain.ActionDischarge, 50, 1},
		{domain.ActionCurtail, 20, 2},
		{domain.ActionCurtail, 50, 4},
		{domain.ActionCurtail, 20, 7},
	}
	for i, w := range want {
		cmd := l.commands[i]
		if cmd.Action != w.action || !near(cmd.PowerChange, w.kw) || cmd.Priority != w.priority {
			t.Errorf("Command %d: expected %s %v kW priority %d, got %+v", i, w.action, w.kw, w.priority, cmd)
		}
		if cmd.Duration != 960 || cmd.Status != domain.CommandPending || cmd.Manual {
			t.Errorf("Command %d: unexpected fields %+v", i, cmd)
		}
	}
}

func TestAddReading_LowChargeSkipsStorage(t *testing.T) {
	c, l := newTestController(800)
	if err := c.SetStorageStatus(500, 0.2); err != nil {
		t.Fatalf("SetStorageStatus failed: %v", err)
	}
	if err := c.SetCurtailableDevices([]domain.CurtailableDevice{{ID: "x", Name: "X", RatedPower: 100, CurtailRatio: 0.5, Priority: 1}}); err != nil {
		t.Fatalf("SetCurtailableDevices failed: %v", err)
	}

	c.AddReading(780, quarter)
	if len(l.commands) != 1 || l.commands[0].Action != domain.ActionCurtail || !near(l.commands[0].PowerChange, 20) {
		t.Errorf("Expected a single 20 kW curtailment, got %+v", l.commands)
	}
}

func TestAddReading_Retention(t *testing.T) {
	c, _ := newTestController(800)
	start := quarter
	for i := 0; i <= 20; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		c.AddReading(500, now)

		cutoff := now.Add(-WindowSeconds * time.Second)
		kept := c.Readings()
		for _, r := range kept {
			if r.Timestamp.Before(cutoff) {
				t.Fatalf("Minute %d: reading at %s is older than %s", i, r.Timestamp, cutoff)
			}
		}
		// the reading exactly 900 s old is kept
		want := i + 1
		if want > 16 {
			want = 16
		}
		if len(kept) != want {
			t.Errorf("Minute %d: expected %d readings, got %d", i, want, len(kept))
		}
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name   string
		powers []float64
		want   domain.Trend
	}{
		{"too few", []float64{100, 200}, domain.TrendStable},
		{"up", []float64{100, 90, 102.1}, domain.TrendUp},
		{"edge not up", []float64{100, 150, 102}, domain.TrendStable},
		{"down", []float64{100, 110, 97.9}, domain.TrendDown},
		{"uses last three", []float64{10, 100, 100, 100}, domain.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rs []domain.PowerReading
			for _, p := range tt.powers {
				rs = append(rs, domain.PowerReading{Power: p})
			}
			if got := trend(rs); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLevelAndRisk(t *testing.T) {
	levels := []struct {
		u    float64
		want domain.AlertLevel
	}{
		{0.5, domain.AlertNormal},
		{0.8499, domain.AlertNormal},
		{0.85, domain.AlertAttention},
		{0.9, domain.AlertWarning},
		{0.95, domain.AlertCritical},
		{0.9999, domain.AlertCritical},
		{1.0, domain.AlertExceeded},
		{1.7, domain.AlertExceeded},
	}
	for _, tt := range levels {
		if got := levelFor(tt.u); got != tt.want {
			t.Errorf("levelFor(%v): expected %s, got %s", tt.u, tt.want, got)
		}
	}

	if got := riskScore(1.2, domain.TrendUp, 10); got != 100 {
		t.Errorf("Expected risk clamped to 100, got %v", got)
	}
	if got := riskScore(0.5, domain.TrendUp, 600); !near(got, 55) {
		t.Errorf("Expected 55, got %v", got)
	}
	if got := riskScore(0, domain.TrendDown, 600); got != 0 {
		t.Errorf("Expected 0, got %v", got)
	}
}

func TestListenerFailuresAreContained(t *testing.T) {
	c := NewController(800, clock.NewManual(quarter), zap.NewNop())
	c.AddListener(&recordingListener{panics: true})
	c.AddListener(&recordingListener{err: errors.New("bus down")})
	good := &recordingListener{}
	c.AddListener(good)
	if err := c.SetStorageStatus(100, 0.9); err != nil {
		t.Fatalf("SetStorageStatus failed: %v", err)
	}

	p := c.AddReading(1000, quarter)
	if p.AlertLevel != domain.AlertExceeded {
		t.Fatalf("Expected exceeded, got %s", p.AlertLevel)
	}
	if len(good.alerts) != 1 || len(good.commands) != 1 {
		t.Errorf("Expected the healthy listener to be served, got %v", good.events)
	}
	s := c.Status()
	if len(s.ActiveCommands) != 1 || s.LastPrediction == nil || s.ReadingCount != 1 {
		t.Errorf("Expected state intact after listener failures, got %+v", s)
	}
}

func TestManualCommandsAndCompletion(t *testing.T) {
	c, l := newTestController(800)

	cmd := c.CreateManualCommand(domain.ActionShift, "dev-9", "Kiln", 35, 600, "")
	if !cmd.Manual || cmd.Priority != 1 || cmd.Reason != "manual adjustment" || !cmd.CreatedAt.Equal(quarter) {
		t.Errorf("Unexpected manual command %+v", cmd)
	}
	if len(l.commands) != 1 || len(l.alerts) != 0 {
		t.Errorf("Expected one command notification and no alert, got %v", l.events)
	}

	if c.CompleteCommand("nope", true) {
		t.Error("Expected false for an unknown command")
	}
	if !c.CompleteCommand(cmd.ID, false) {
		t.Fatal("Expected the manual command to complete")
	}
	if c.CompleteCommand(cmd.ID, true) {
		t.Error("Expected a completed command to leave the active list")
	}
	s := c.Status()
	if len(s.ActiveCommands) != 0 || s.HistoryCount != 1 {
		t.Errorf("Unexpected status %+v", s)
	}
}

func TestSettersValidate(t *testing.T) {
	c, _ := newTestController(800)
	ok := []domain.CurtailableDevice{{ID: "a", Name: "A", RatedPower: 10, CurtailRatio: 0.5, Priority: 1}}
	if err := c.SetCurtailableDevices(ok); err != nil {
		t.Fatalf("SetCurtailableDevices failed: %v", err)
	}

	bad := []domain.CurtailableDevice{ok[0], {ID: "b", RatedPower: 10, CurtailRatio: 1.5, Priority: 1}}
	if err := c.SetCurtailableDevices(bad); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION, got %v", err)
	}
	if c.Status().CurtailableDevices != 1 {
		t.Error("Expected the pool unchanged after a rejected update")
	}
	if err := c.SetStorageStatus(10, 1.2); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION for soc, got %v", err)
	}
	if err := c.SetDemandTarget(0); domain.KindOf(err) != domain.ErrValidation {
		t.Errorf("Expected VALIDATION for target, got %v", err)
	}
	if err := c.SetDemandTarget(650); err != nil || c.Status().DemandTarget != 650 {
		t.Errorf("Expected target 650, got %v (%v)", c.Status().DemandTarget, err)
	}
}
