package main

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/mocks"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/dispatch"
)

func TestProfile(t *testing.T) {
	day := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	if got := profile(600, 400, day.Add(15*time.Hour)); math.Abs(got-1000) > 1e-9 {
		t.Errorf("Expected peak 1000 kW at 15:00, got %f", got)
	}
	if got := profile(600, 400, day.Add(3*time.Hour)); math.Abs(got-600) > 1e-9 {
		t.Errorf("Expected base 600 kW at 03:00, got %f", got)
	}
}

func TestSimulator_CommandsReduceLoad(t *testing.T) {
	mq := mocks.NewMockMessageQueue()
	sim := NewSimulator(&SimulatorConfig{Source: "test", Interval: time.Hour, BaseLoadKW: 500, Obey: true}, mq, zap.NewNop())
	if err := sim.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer sim.Stop()

	cmd, _ := json.Marshal(domain.AdjustmentCommand{ID: "c1", Action: domain.ActionCurtail, PowerChange: 120, Duration: 600})
	if err := mq.Publish(ports.SubjectDispatchCommands, cmd); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := sim.load(time.Now()); got != 380 {
		t.Errorf("Expected curtailed load 380 kW, got %f", got)
	}

	restore, _ := json.Marshal(domain.AdjustmentCommand{ID: "c2", Action: domain.ActionRestore})
	if err := mq.Publish(ports.SubjectDispatchCommands, restore); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if got := sim.load(time.Now()); got != 500 {
		t.Errorf("Expected restored base load 500 kW, got %f", got)
	}
}

func TestSimulator_SendReading(t *testing.T) {
	mq := mocks.NewMockMessageQueue()
	sim := NewSimulator(&SimulatorConfig{Source: "meter-1"}, mq, zap.NewNop())

	at := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	sim.sendReading(812.345, at)

	msgs := mq.GetPublishedMessages(ports.SubjectDispatchReadings)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 reading, got %d", len(msgs))
	}
	var r domain.PowerReading
	if err := json.Unmarshal(msgs[0], &r); err != nil {
		t.Fatalf("Failed to decode reading: %v", err)
	}
	if r.Power != 812.35 || r.Source != "meter-1" || !r.Timestamp.Equal(at) {
		t.Errorf("Unexpected reading %+v", r)
	}
}

func TestSimulator_ReportsCompletions(t *testing.T) {
	for _, obey := range []bool{true, false} {
		mq := mocks.NewMockMessageQueue()
		sim := NewSimulator(&SimulatorConfig{Source: "test", Interval: time.Hour, BaseLoadKW: 500, Obey: obey}, mq, zap.NewNop())
		if err := sim.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		cmd, _ := json.Marshal(domain.AdjustmentCommand{ID: "c1", Action: domain.ActionCurtail, PowerChange: 50, Duration: 600})
		if err := mq.Publish(ports.SubjectDispatchCommands, cmd); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		sim.Stop()

		msgs := mq.GetPublishedMessages(ports.SubjectDispatchComplete)
		if len(msgs) != 1 {
			t.Fatalf("obey=%v: expected 1 completion, got %d", obey, len(msgs))
		}
		var done dispatch.CompleteRequest
		if err := json.Unmarshal(msgs[0], &done); err != nil {
			t.Fatalf("Failed to decode completion: %v", err)
		}
		if done.CommandID != "c1" || done.Success != obey {
			t.Errorf("obey=%v: unexpected completion %+v", obey, done)
		}
	}
}
