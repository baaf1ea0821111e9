// Package health runs dependency probes for the liveness and readiness
// endpoints. Required dependencies (database, upload directory) take the
// service down when they fail; optional ones (result cache, event stream)
// only degrade it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is the health of one dependency or of the whole service.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) worse(than Status) bool {
	rank := map[Status]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}
	return rank[s] > rank[than]
}

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the outcome of one Check.
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Report aggregates every registered check.
type Report struct {
	Service    string                     `json:"service"`
	Status     Status                     `json:"status"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// PingCheck turns a ping-style probe into a Check.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

type registration struct {
	check    Check
	optional bool
}

// Checker holds the registered checks of one service.
type Checker struct {
	service      string
	started      time.Time
	checkTimeout time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	checks map[string]registration
}

// NewChecker returns a Checker for the named service. Each check gets at
// most two seconds.
func NewChecker(service string) *Checker {
	return &Checker{
		service:      service,
		started:      time.Now(),
		checkTimeout: 2 * time.Second,
		logger:       slog.Default().With("component", "health", "service", service),
		checks:       make(map[string]registration),
	}
}

// Register adds a required check.
func (c *Checker) Register(name string, check Check) {
	c.add(name, registration{check: check})
}

// RegisterOptional adds a check whose failure only degrades the service.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.add(name, registration{check: check, optional: true})
}

func (c *Checker) add(name string, r registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = r
}

// Run executes all checks concurrently. The report status is the worst
// component status, with optional components capped at degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, r := range c.checks {
		checks[name] = r
	}
	c.mu.RUnlock()

	report := Report{
		Service:    c.service,
		Status:     StatusUp,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, r := range checks {
		wg.Go(func() {
			result := c.probe(ctx, r)
			if result.Status != StatusUp {
				c.logger.Warn("health check not up", "check", name, "status", result.Status, "message", result.Message)
			}
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			effective := result.Status
			if r.optional && effective == StatusDown {
				effective = StatusDegraded
			}
			if effective.worse(report.Status) {
				report.Status = effective
			}
		})
	}
	wg.Wait()
	return report
}

func (c *Checker) probe(ctx context.Context, r registration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()
	start := time.Now()
	result := r.check(ctx)
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	result.Optional = r.optional
	return result
}

// LiveHandler answers liveness probes; it never touches dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "alive",
			"service": c.service,
			"uptime":  time.Since(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers readiness probes: 200 while up or degraded, 503 once
// a required dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
