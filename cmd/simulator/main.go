package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/energy-core/internal/adapter/queue"
	"github.com/seu-repo/energy-core/pkg/config"
)

var (
	driver      = flag.String("queue", "nats", "Message queue driver (nats, rabbitmq)")
	brokerURL   = flag.String("url", "nats://localhost:4222", "Broker URL")
	source      = flag.String("source", "SIM-METER-01", "Reading source tag")
	interval    = flag.Duration("interval", 5*time.Second, "Reading interval")
	baseLoad    = flag.Float64("base", 600, "Night base load (kW)")
	swing       = flag.Float64("swing", 400, "Afternoon peak above base load (kW)")
	noise       = flag.Float64("noise", 20, "Random noise amplitude (kW)")
	obey        = flag.Bool("obey", true, "Apply dispatch commands to the simulated load")
	interactive = flag.Bool("interactive", false, "Enable interactive mode")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	// Setup logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	qcfg := config.QueueConfig{Driver: *driver}
	switch *driver {
	case "rabbitmq":
		qcfg.RabbitMQ.URL = *brokerURL
	default:
		qcfg.NATS = config.NATSConfig{URL: *brokerURL, MaxReconnects: 10, ReconnectWait: 2 * time.Second, Timeout: 5 * time.Second}
	}
	mq, err := queue.New(qcfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to broker", zap.Error(err))
	}
	defer mq.Close()

	simulator := NewSimulator(&SimulatorConfig{
		Source:     *source,
		Interval:   *interval,
		BaseLoadKW: *baseLoad,
		SwingKW:    *swing,
		NoiseKW:    *noise,
		Obey:       *obey,
	}, mq, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down simulator...")
		simulator.Stop()
		mq.Close()
		os.Exit(0)
	}()

	if err := simulator.Start(); err != nil {
		logger.Fatal("Failed to start simulator", zap.Error(err))
	}

	if *interactive {
		runInteractiveMode(simulator)
		return
	}

	fmt.Printf("Site Load Simulator started\n")
	fmt.Printf("  Source: %s\n", *source)
	fmt.Printf("  Broker: %s (%s)\n", *brokerURL, *driver)
	fmt.Printf("  Interval: %s\n", *interval)
	fmt.Println("\nPress Ctrl+C to stop")

	select {}
}

func runInteractiveMode(sim *Simulator) {
	fmt.Println("\nSite Load Simulator - Interactive Mode")
	fmt.Println("======================================")
	fmt.Println("Commands:")
	fmt.Println("  send <kW>                - Publish one reading now")
	fmt.Println("  spike <kW> <seconds>     - Add load for a while")
	fmt.Println("  base <kW>                - Change the base load")
	fmt.Println("  status                   - Show simulator state")
	fmt.Println("  generate <template> [d]  - Request a proposal (A1..C2)")
	fmt.Println("  accept <id> [measure..]  - Accept a proposal (all measures by default)")
	fmt.Println("  reject <proposal-id>     - Reject a proposal")
	fmt.Println("  execute <proposal-id>    - Request proposal execution")
	fmt.Println("  manual <action> <kW> <s> - Issue an operator dispatch command")
	fmt.Println("  target <kW>              - Move the demand target")
	fmt.Println("  storage <kW> <soc>       - Report battery headroom")
	fmt.Println("  sync [device-id]         - Request point rebinding")
	fmt.Println("  quit                     - Exit simulator")
	fmt.Println("")

	sim.RunInteractive()
}
