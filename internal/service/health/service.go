package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration_ms"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse represents the readiness response
type ReadyResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker defines a health check function
type Checker func(ctx context.Context) CheckResult

// ContextPinger is satisfied by the store
type ContextPinger interface {
	Ping(ctx context.Context) error
}

// Pinger is satisfied by the cache and the message queue
type Pinger interface {
	Ping() error
}

// Config holds health service configuration. A nil dependency is not checked.
type Config struct {
	Version string
	Store   ContextPinger
	Cache   Pinger
	Queue   Pinger
	Timeout time.Duration
}

// Service runs the registered readiness checks
type Service struct {
	startTime time.Time
	version   string
	timeout   time.Duration
	checkers  map[string]Checker
	log       *zap.Logger
	mu        sync.RWMutex
}

func NewService(config *Config, log *zap.Logger) *Service {
	s := &Service{
		startTime: time.Now(),
		version:   config.Version,
		timeout:   config.Timeout,
		checkers:  make(map[string]Checker),
		log:       log,
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}

	if config.Store != nil {
		s.RegisterChecker("database", pingCheck("database", StatusUnhealthy, config.Store.Ping, log))
	}
	// the services fall back to the store when the cache is gone
	if config.Cache != nil {
		s.RegisterChecker("cache", pingCheck("cache", StatusDegraded, ignoreCtx(config.Cache), log))
	}
	if config.Queue != nil {
		s.RegisterChecker("queue", pingCheck("queue", StatusUnhealthy, ignoreCtx(config.Queue), log))
	}
	return s
}

// RegisterChecker registers a custom health checker
func (s *Service) RegisterChecker(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.log.Info("Registered health checker", zap.String("name", name))
}

// Health performs a basic liveness check
func (s *Service) Health(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Ready runs every checker concurrently. Unhealthy checks make the service
// not ready; degraded ones only lower the overall status.
func (s *Service) Ready(ctx context.Context) *ReadyResponse {
	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for k, v := range s.checkers {
		checkers[k] = v
	}
	s.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			result := checker(checkCtx)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overall := StatusHealthy
	ready := true
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
			ready = false
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	return &ReadyResponse{
		Ready:     ready,
		Status:    overall,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func pingCheck(name string, failed Status, ping func(ctx context.Context) error, log *zap.Logger) Checker {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := ping(ctx)
		result := CheckResult{
			Name:      name,
			Status:    StatusHealthy,
			Message:   "connection ok",
			Duration:  time.Since(start),
			Timestamp: start,
		}
		if err != nil {
			result.Status = failed
			result.Message = fmt.Sprintf("ping failed: %v", err)
			log.Warn("Health check failed", zap.String("name", name), zap.Error(err))
		}
		return result
	}
}

func ignoreCtx(p Pinger) func(context.Context) error {
	return func(context.Context) error { return p.Ping() }
}
