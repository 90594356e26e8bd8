package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/queue"
	"github.com/seu-repo/energy-core/internal/domain"
	"github.com/seu-repo/energy-core/internal/ports"
	"github.com/seu-repo/energy-core/internal/service/dispatch"
	"github.com/seu-repo/energy-core/internal/service/jobs"
)

// SimulatorConfig holds the simulator configuration
type SimulatorConfig struct {
	Source     string
	Interval   time.Duration
	BaseLoadKW float64
	SwingKW    float64 // peak-to-base difference over the day
	NoiseKW    float64
	Obey       bool // apply curtail and discharge commands to the simulated load
}

// reduction is an active command lowering the simulated load
type reduction struct {
	commandID string
	kw        float64
	until     time.Time
}

// Simulator plays a site meter: it publishes active power readings and
// reacts to the dispatch commands the core sends back.
type Simulator struct {
	config *SimulatorConfig
	mq     queue.MessageQueue
	log    *zap.Logger
	rnd    *rand.Rand

	mu         sync.Mutex
	spikeKW    float64
	spikeUntil time.Time
	reductions []reduction
	lastKW     float64
	sent       int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSimulator creates a new site load simulator
func NewSimulator(config *SimulatorConfig, mq queue.MessageQueue, log *zap.Logger) *Simulator {
	return &Simulator{
		config:   config,
		mq:       mq,
		log:      log,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan: make(chan struct{}),
	}
}

// Start subscribes to the core's output and begins the reading loop
func (s *Simulator) Start() error {
	if err := queue.SubscribeJSON(s.mq, ports.SubjectDispatchCommands, s.handleCommand); err != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}
	if err := queue.SubscribeJSON(s.mq, ports.SubjectDispatchAlerts, s.handleAlert); err != nil {
		return fmt.Errorf("failed to subscribe to alerts: %w", err)
	}

	s.wg.Add(1)
	go s.readingLoop()
	return nil
}

// Stop stops the simulator
func (s *Simulator) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Simulator) readingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			s.sendReading(s.load(now), now)
		}
	}
}

// load is the base profile for the hour plus spikes, minus active reductions
func (s *Simulator) load(now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	kw := profile(s.config.BaseLoadKW, s.config.SwingKW, now)
	if s.config.NoiseKW > 0 {
		kw += (s.rnd.Float64()*2 - 1) * s.config.NoiseKW
	}
	if now.Before(s.spikeUntil) {
		kw += s.spikeKW
	}

	active := s.reductions[:0]
	for _, r := range s.reductions {
		if now.Before(r.until) {
			kw -= r.kw
			active = append(active, r)
		}
	}
	s.reductions = active

	return math.Max(kw, 0)
}

// profile peaks mid-afternoon and bottoms out before dawn
func profile(base, swing float64, t time.Time) float64 {
	hour := float64(t.Hour()) + float64(t.Minute())/60
	return base + swing*(1+math.Cos((hour-15)*math.Pi/12))/2
}

func (s *Simulator) sendReading(kw float64, at time.Time) {
	reading := domain.PowerReading{Timestamp: at, Power: math.Round(kw*100) / 100, Source: s.config.Source}
	data, err := json.Marshal(reading)
	if err != nil {
		s.log.Error("Failed to marshal reading", zap.Error(err))
		return
	}
	if err := s.mq.Publish(ports.SubjectDispatchReadings, data); err != nil {
		s.log.Warn("Failed to publish reading", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.lastKW = reading.Power
	s.sent++
	s.mu.Unlock()
	s.log.Debug("Reading sent", zap.Float64("power_kw", reading.Power))
}

func (s *Simulator) handleCommand(cmd domain.AdjustmentCommand) error {
	s.log.Info("Command received",
		zap.String("id", cmd.ID),
		zap.String("action", string(cmd.Action)),
		zap.String("device", cmd.DeviceName),
		zap.Float64("power_change_kw", cmd.PowerChange),
		zap.Int("duration_s", cmd.Duration),
	)
	if s.config.Obey {
		s.apply(cmd)
	}

	// a disobedient site still reports back, as a failed command
	done := dispatch.CompleteRequest{CommandID: cmd.ID, Success: s.config.Obey}
	if err := s.publish(ports.SubjectDispatchComplete, done); err != nil {
		s.log.Warn("Failed to publish command completion", zap.String("id", cmd.ID), zap.Error(err))
	}
	return nil
}

func (s *Simulator) apply(cmd domain.AdjustmentCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Action {
	case domain.ActionCurtail, domain.ActionDischarge, domain.ActionShift:
		s.reductions = append(s.reductions, reduction{
			commandID: cmd.ID,
			kw:        cmd.PowerChange,
			until:     time.Now().Add(time.Duration(cmd.Duration) * time.Second),
		})
	case domain.ActionRestore:
		s.reductions = s.reductions[:0]
	}
}

func (s *Simulator) handleAlert(p domain.Prediction) error {
	fmt.Printf("\n[ALERT %s] window avg %.1f kW heading to %.1f of %.1f kW (risk %.0f, %ds left)\n> ",
		p.AlertLevel, p.CurrentWindowAvg, p.PredictedAvg, p.DemandTarget, p.RiskScore, p.TimeRemaining)
	return nil
}

// spike adds kw to the load for d
func (s *Simulator) spike(kw float64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spikeKW = kw
	s.spikeUntil = time.Now().Add(d)
}

// publish sends an arbitrary job request to the core
func (s *Simulator) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.mq.Publish(subject, data)
}

// RunInteractive runs the simulator in interactive mode
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			fmt.Print("> ")
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "send":
			if len(args) < 1 {
				fmt.Println("Usage: send <kW>")
				break
			}
			kw, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				fmt.Printf("Invalid power: %s\n", args[0])
				break
			}
			s.sendReading(kw, time.Now())
			fmt.Printf("Sent reading: %.2f kW\n", kw)

		case "spike":
			if len(args) < 2 {
				fmt.Println("Usage: spike <kW> <seconds>")
				break
			}
			kw, _ := strconv.ParseFloat(args[0], 64)
			secs, _ := strconv.Atoi(args[1])
			s.spike(kw, time.Duration(secs)*time.Second)
			fmt.Printf("Adding %.1f kW for %ds\n", kw, secs)

		case "base":
			if len(args) < 1 {
				fmt.Println("Usage: base <kW>")
				break
			}
			kw, _ := strconv.ParseFloat(args[0], 64)
			s.mu.Lock()
			s.config.BaseLoadKW = kw
			s.mu.Unlock()
			fmt.Printf("Base load set to %.1f kW\n", kw)

		case "status":
			s.mu.Lock()
			fmt.Printf("Last reading: %.2f kW, sent: %d, active reductions: %d\n", s.lastKW, s.sent, len(s.reductions))
			s.mu.Unlock()

		case "generate":
			if len(args) < 1 {
				fmt.Println("Usage: generate <template> [days]")
				break
			}
			days := 0
			if len(args) > 1 {
				days, _ = strconv.Atoi(args[1])
			}
			req := jobs.GenerateRequest{TemplateID: strings.ToUpper(args[0]), AnalysisDays: days}
			s.report(s.publish(ports.SubjectGenerateRequests, req), "generate request")

		case "execute":
			if len(args) < 1 {
				fmt.Println("Usage: execute <proposal-id>")
				break
			}
			s.report(s.publish(ports.SubjectExecuteRequests, jobs.ExecuteRequest{ProposalID: args[0]}), "execute request")

		case "accept":
			if len(args) < 1 {
				fmt.Println("Usage: accept <proposal-id> [measure-id...]")
				break
			}
			req := jobs.AcceptRequest{ProposalID: args[0], MeasureIDs: args[1:]}
			s.report(s.publish(ports.SubjectAcceptRequests, req), "accept request")

		case "reject":
			if len(args) < 1 {
				fmt.Println("Usage: reject <proposal-id>")
				break
			}
			s.report(s.publish(ports.SubjectRejectRequests, jobs.RejectRequest{ProposalID: args[0]}), "reject request")

		case "manual":
			if len(args) < 3 {
				fmt.Println("Usage: manual <action> <kW> <seconds> [device]")
				break
			}
			kw, _ := strconv.ParseFloat(args[1], 64)
			secs, _ := strconv.Atoi(args[2])
			req := dispatch.ManualRequest{Action: args[0], PowerChange: kw, Duration: secs, Reason: "simulator operator"}
			if len(args) > 3 {
				req.DeviceName = args[3]
			}
			s.report(s.publish(ports.SubjectDispatchManual, req), "manual command")

		case "target":
			if len(args) < 1 {
				fmt.Println("Usage: target <kW>")
				break
			}
			kw, _ := strconv.ParseFloat(args[0], 64)
			s.report(s.publish(ports.SubjectDispatchTarget, dispatch.TargetRequest{DemandTarget: kw}), "demand target")

		case "storage":
			if len(args) < 2 {
				fmt.Println("Usage: storage <kW> <soc>")
				break
			}
			kw, _ := strconv.ParseFloat(args[0], 64)
			soc, _ := strconv.ParseFloat(args[1], 64)
			s.report(s.publish(ports.SubjectDispatchStorage, dispatch.StorageRequest{AvailableKW: kw, SOC: soc}), "storage status")

		case "sync":
			var req jobs.SyncRequest
			if len(args) > 0 {
				req.DeviceID = args[0]
			}
			s.report(s.publish(ports.SubjectSyncRequests, req), "sync request")

		case "quit", "exit":
			fmt.Println("Exiting...")
			s.Stop()
			os.Exit(0)

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}

		fmt.Print("> ")
	}
}

func (s *Simulator) report(err error, what string) {
	if err != nil {
		fmt.Printf("Failed to send %s: %v\n", what, err)
		return
	}
	fmt.Printf("Sent %s\n", what)
}
