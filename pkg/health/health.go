// Package health exposes liveness and readiness probes for the generation
// server.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/pipeline"
)

// Status values reported by checks and by the aggregate.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// ReadinessTimeout bounds a single readiness probe.
const ReadinessTimeout = 5 * time.Second

// HealthCheck is a single named probe.
type HealthCheck interface {
	Name() string
	// Check returns nil when the component is healthy.
	Check(ctx context.Context) error
}

// HealthStatus is the aggregate reported by the readiness endpoint.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// HealthChecker holds the registered checks.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers check, replacing any check with the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every check concurrently. The aggregate is healthy only
// if all checks pass.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			results[i] = ComponentHealth{Status: StatusHealthy, Duration: time.Since(start)}
			if err != nil {
				results[i].Status = StatusUnhealthy
				results[i].Message = err.Error()
			}
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Status: StatusHealthy,
		Checks: make(map[string]ComponentHealth, len(checks)),
	}
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		if results[i].Status != StatusHealthy {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// LivenessHandler answers 200 as long as the process can serve HTTP.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessHandler runs all checks and answers 200 when healthy, 503
// otherwise, with the per-check results as the body.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ReadinessTimeout)
	defer cancel()

	health := hc.CheckHealth(ctx)
	code := http.StatusOK
	if health.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// Register mounts the probes on mux at /health and /ready.
func (hc *HealthChecker) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", hc.LivenessHandler)
	mux.HandleFunc("GET /ready", hc.ReadinessHandler)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// GeneratorHealthCheck runs a tiny generation end to end, proving the
// noise and mesh path works in this process.
type GeneratorHealthCheck struct {
	generator *pipeline.Generator
}

// NewGeneratorHealthCheck creates the smoke check. It uses a 2x2 lattice
// over a 4 sample domain.
func NewGeneratorHealthCheck() (*GeneratorHealthCheck, error) {
	g, err := pipeline.New(config.GeneratorConfig{
		GridSize:    2,
		DomainWidth: 4,
		HeightScale: 1,
		Workers:     1,
	}, pipeline.WithLogger(logging.Nop()))
	if err != nil {
		return nil, err
	}
	return &GeneratorHealthCheck{generator: g}, nil
}

// Name returns the name of this health check.
func (g *GeneratorHealthCheck) Name() string {
	return "generator"
}

// Check runs the smoke generation and verifies its shape.
func (g *GeneratorHealthCheck) Check(ctx context.Context) error {
	res, err := g.generator.Run(ctx)
	if err != nil {
		return fmt.Errorf("smoke generation failed: %w", err)
	}
	if res.Heightfield.Rows() != 4 || res.Mesh == nil || res.Mesh.IsEmpty() {
		return errors.New("smoke generation produced an unexpected result")
	}
	lo, hi := res.Heightfield.Bounds()
	if lo < 0 || hi > 1 {
		return fmt.Errorf("smoke heightfield out of range [%g, %g]", lo, hi)
	}
	return nil
}

// ListenerHealthCheck reports whether the server is accepting connections.
type ListenerHealthCheck struct {
	listenerAddr func() string
}

// NewListenerHealthCheck creates a check around a function returning the
// bound address, or "" when not listening.
func NewListenerHealthCheck(listenerAddr func() string) *ListenerHealthCheck {
	return &ListenerHealthCheck{
		listenerAddr: listenerAddr,
	}
}

// Name returns the name of this health check.
func (n *ListenerHealthCheck) Name() string {
	return "listener"
}

// Check fails when no address is bound.
func (n *ListenerHealthCheck) Check(ctx context.Context) error {
	if n.listenerAddr() == "" {
		return errors.New("listener is not active")
	}
	return nil
}

// MemoryHealthCheck fails when heap usage exceeds a limit. Large grids
// allocate a heightfield and a mesh per request, so this is what trips
// first under load.
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a memory check. A nil getMemoryUsage reads
// runtime.MemStats.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapAllocMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// Name returns the name of this health check.
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check compares current usage against the limit.
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// HeapAllocMB returns the live heap in megabytes.
func HeapAllocMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapAlloc / 1024 / 1024)
}
