// Package coordinator implements the round state machine of the distributed sort.
// This file implements health monitoring for registered worker nodes.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dreamware/torsort/internal/cluster"
)

// HealthStatus is the last known state of a worker node
type HealthStatus string

const (
	StatusUnknown   HealthStatus = "unknown"
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// WorkerHealth tracks the health of a single worker node.
// Protected by HealthMonitor's mutex when accessed.
type WorkerHealth struct {
	LastCheck        time.Time    // Timestamp of the last check attempt
	LastHealthy      time.Time    // Timestamp of the last successful check
	WorkerID         string       // Registered worker ID
	Status           HealthStatus // Current status
	ConsecutiveFails int          // Failed checks since the last success
}

// HealthMonitor periodically checks every registered worker node while a
// run is in progress. A node that fails maxFailures checks in a row is
// marked unhealthy and reported through the OnUnhealthy callback, which the
// coordinator command uses to cancel the run: a round cannot complete
// without every worker, so waiting for the round timeout gains nothing.
//
// Thread-safe: all methods are safe for concurrent access.
type HealthMonitor struct {
	workers     map[string]*WorkerHealth
	httpClient  *http.Client
	checkFunc   func(ctx context.Context, addr string) error
	onUnhealthy func(workerID string)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewHealthMonitor creates a monitor that checks each node's /health
// endpoint every interval. Nodes are marked unhealthy after 3 consecutive
// failures.
//
// Example:
//
//	monitor := NewHealthMonitor(2 * time.Second)
//	monitor.SetOnUnhealthy(func(id string) { cancelRun() })
//	go monitor.Start(ctx, registry.Nodes)
func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		workers:     make(map[string]*WorkerHealth),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnUnhealthy sets the callback invoked once per healthy-to-unhealthy
// transition. It runs on its own goroutine.
func (h *HealthMonitor) SetOnUnhealthy(callback func(workerID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the HTTP health check. Used by tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, addr string) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkFunc = checkFunc
}

// Start runs the monitoring loop in the current goroutine until ctx or the
// monitor itself is canceled. nodeProvider is consulted on every tick, so
// nodes registered later are picked up and removed nodes are forgotten.
func (h *HealthMonitor) Start(ctx context.Context, nodeProvider func() []cluster.NodeInfo) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	h.mu.Lock()
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}
	h.mu.Unlock()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	log.Printf("coordinator: health monitor started with interval %v", h.interval)

	h.checkAll(ctx, nodeProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAll(ctx, nodeProvider())
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to return.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAll(ctx context.Context, nodes []cluster.NodeInfo) {
	current := make(map[string]bool, len(nodes))

	for _, node := range nodes {
		current[node.ID] = true
		h.checkWorker(ctx, node)
	}

	h.mu.Lock()
	for id := range h.workers {
		if !current[id] {
			delete(h.workers, id)
			log.Printf("coordinator: removed worker %s from health monitoring", id)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkWorker(ctx context.Context, node cluster.NodeInfo) {
	h.mu.Lock()
	health, exists := h.workers[node.ID]
	if !exists {
		now := time.Now()
		health = &WorkerHealth{
			WorkerID:    node.ID,
			Status:      StatusUnknown,
			LastCheck:   now,
			LastHealthy: now,
		}
		h.workers[node.ID] = health
	}
	check := h.checkFunc
	h.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	err := check(cctx, node.Addr)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err == nil {
		if health.Status == StatusUnhealthy {
			log.Printf("coordinator: worker %s recovered", node.ID)
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return
	}

	health.ConsecutiveFails++
	log.Printf("coordinator: health check failed for worker %s (attempt %d/%d): %v",
		node.ID, health.ConsecutiveFails, h.maxFailures, err)

	if health.ConsecutiveFails < h.maxFailures || health.Status == StatusUnhealthy {
		return
	}
	health.Status = StatusUnhealthy
	log.Printf("coordinator: worker %s marked unhealthy after %d failures", node.ID, health.ConsecutiveFails)
	if h.onUnhealthy != nil {
		go h.onUnhealthy(node.ID)
	}
}

// defaultHealthCheck performs GET {addr}/health and expects 200.
// addr may be a full URL or host:port.
func (h *HealthMonitor) defaultHealthCheck(ctx context.Context, addr string) error {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// WorkerHealth returns a copy of the health record of a worker, or nil if
// the worker is not being monitored.
func (h *HealthMonitor) WorkerHealth(workerID string) *WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[workerID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// AllWorkerHealth returns copies of every health record keyed by worker ID.
func (h *HealthMonitor) AllWorkerHealth() map[string]*WorkerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*WorkerHealth, len(h.workers))
	for id, health := range h.workers {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether a worker passed its most recent checks.
// Unmonitored workers are not healthy.
func (h *HealthMonitor) IsHealthy(workerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.workers[workerID]
	return exists && health.Status == StatusHealthy
}
