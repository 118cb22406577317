// Package main implements the torsort coordinator command.
//
// The coordinator loads a sequence of signed 32-bit integers from a file,
// sorts it across SORT_WORKERS workers and prints whether the result is
// in order together with the execution time.
//
// Usage:
//
//	coordinator <filename>
//
// Configuration:
//   - SORT_WORKERS: number of workers (default: 4)
//   - SORT_MODE: "local" runs workers as goroutines, "http" waits for node
//     processes to register (default: "local")
//   - COORDINATOR_ADDR: listen address in http mode (default: ":8080")
//   - ROUND_TIMEOUT: bound on each sort or merge round (default: "2m")
//   - REGISTER_TIMEOUT: how long to wait for nodes in http mode (default: "30s")
//   - HEALTH_INTERVAL: node health probe interval in http mode (default: "2s")
//
// Example usage:
//
//	datagen numbers.bin 1000000
//	SORT_WORKERS=8 coordinator numbers.bin
//
//	# with node processes
//	SORT_MODE=http SORT_WORKERS=2 coordinator numbers.bin &
//	NODE_LISTEN=:8081 NODE_ADDR=http://localhost:8081 COORDINATOR_ADDR=http://localhost:8080 node &
//	NODE_LISTEN=:8082 NODE_ADDR=http://localhost:8082 COORDINATOR_ADDR=http://localhost:8080 node &
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/torsort/internal/cluster"
	"github.com/dreamware/torsort/internal/coordinator"
	"github.com/dreamware/torsort/internal/storage"
	"github.com/dreamware/torsort/internal/worker"
)

const usage = "usage: coordinator <filename>"

const (
	modeLocal = "local"
	modeHTTP  = "http"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// config is everything main reads from the command line and environment
type config struct {
	file            string
	mode            string
	addr            string
	workers         int
	roundTimeout    time.Duration
	registerTimeout time.Duration
	healthInterval  time.Duration
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, usage)
		logFatal("coordinator: %v", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		logFatal("coordinator: %v", err)
	}
}

// loadConfig validates the arguments and environment before any work starts
func loadConfig(args []string) (config, error) {
	if len(args) < 1 || args[0] == "" {
		return config{}, errors.New("missing filename")
	}

	cfg := config{
		file: args[0],
		mode: getenv("SORT_MODE", modeLocal),
		addr: getenv("COORDINATOR_ADDR", ":8080"),
	}

	workers, err := strconv.Atoi(getenv("SORT_WORKERS", "4"))
	if err != nil {
		return config{}, fmt.Errorf("SORT_WORKERS: %w", err)
	}
	if workers < 1 {
		return config{}, fmt.Errorf("SORT_WORKERS: at least 1 worker is required, got %d", workers)
	}
	cfg.workers = workers

	if cfg.mode != modeLocal && cfg.mode != modeHTTP {
		return config{}, fmt.Errorf("SORT_MODE: want %q or %q, got %q", modeLocal, modeHTTP, cfg.mode)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ROUND_TIMEOUT", "2m", &cfg.roundTimeout},
		{"REGISTER_TIMEOUT", "30s", &cfg.registerTimeout},
		{"HEALTH_INTERVAL", "2s", &cfg.healthInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenv(d.key, d.def))
		if err != nil {
			return config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if cfg.healthInterval <= 0 {
		return config{}, fmt.Errorf("HEALTH_INTERVAL: must be positive, got %v", cfg.healthInterval)
	}

	return cfg, nil
}

// run loads the input, sorts it in the configured mode and prints the report
func run(ctx context.Context, cfg config, out io.Writer) error {
	seq, err := storage.ReadFile(cfg.file)
	if err != nil {
		return err
	}
	if cfg.workers > len(seq) {
		return fmt.Errorf("%d workers for %d values: %w", cfg.workers, len(seq), storage.ErrInvalidPartition)
	}
	log.Printf("coordinator: loaded %d values from %s", len(seq), cfg.file)

	var report *coordinator.Report
	switch cfg.mode {
	case modeHTTP:
		report, err = runHTTP(ctx, cfg, seq)
	default:
		report, err = runLocal(ctx, cfg, seq)
	}
	if err != nil {
		return err
	}
	return report.Print(out)
}

// runLocal sorts with worker goroutines in this process
func runLocal(ctx context.Context, cfg config, seq []int32) (*coordinator.Report, error) {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.StartPool(pctx, "worker", cfg.workers)
	eps := pool.Endpoints()
	ps := make([]coordinator.Participant, len(eps))
	for i, w := range pool.Workers() {
		ps[i] = coordinator.Participant{Info: cluster.NodeInfo{ID: w.ID}, Endpoint: eps[i]}
	}

	c, err := coordinator.New(seq, ps, coordinator.Config{RoundTimeout: cfg.roundTimeout})
	if err != nil {
		return nil, err
	}
	report, err := c.Run(ctx)
	if err != nil {
		cancel()
		pool.Wait()
		return nil, err
	}
	if err := pool.Wait(); err != nil {
		log.Printf("coordinator: worker pool: %v", err)
	}
	return report, nil
}

// runHTTP serves /register until enough nodes have joined, then sorts over
// their /task endpoints while probing their health.
func runHTTP(ctx context.Context, cfg config, seq []int32) (*coordinator.Report, error) {
	srv := newServer()
	ln, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("coordinator listening on %s", ln.Addr())
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	nodes, err := srv.waitForWorkers(ctx, cfg.workers, cfg.registerTimeout)
	if err != nil {
		return nil, err
	}
	return sortOverHTTP(ctx, cfg, seq, nodes)
}

// sortOverHTTP runs the coordinator against registered nodes. A node that
// fails its health checks cancels the run.
func sortOverHTTP(ctx context.Context, cfg config, seq []int32, nodes []cluster.NodeInfo) (*coordinator.Report, error) {
	if err := verifyNodes(ctx, nodes); err != nil {
		return nil, err
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	monitor := coordinator.NewHealthMonitor(cfg.healthInterval)
	monitor.SetOnUnhealthy(func(workerID string) {
		cancelRun(fmt.Errorf("worker %s is unhealthy", workerID))
	})
	go monitor.Start(runCtx, func() []cluster.NodeInfo { return nodes })
	defer monitor.Stop()

	ps := make([]coordinator.Participant, len(nodes))
	for i, n := range nodes {
		ps[i] = coordinator.Participant{Info: n, Endpoint: cluster.HTTPEndpoint{Addr: n.Addr}}
	}

	c, err := coordinator.New(seq, ps, coordinator.Config{RoundTimeout: cfg.roundTimeout})
	if err != nil {
		return nil, err
	}
	report, err := c.Run(runCtx)
	if err != nil {
		if cause := context.Cause(runCtx); cause != nil && !errors.Is(err, cause) {
			return nil, fmt.Errorf("%w (%v)", err, cause)
		}
		return nil, err
	}
	return report, nil
}

// verifyNodes asks every node for its /info and checks that the address
// answers with the ID it registered under.
func verifyNodes(ctx context.Context, nodes []cluster.NodeInfo) error {
	for _, n := range nodes {
		var info worker.Info
		if err := cluster.GetJSON(ctx, n.Addr+"/info", &info); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		if info.ID != n.ID {
			return fmt.Errorf("node %s: %s answers as %q", n.ID, n.Addr, info.ID)
		}
	}
	return nil
}

// server accepts node registrations in http mode
type server struct {
	registry *coordinator.WorkerRegistry
	joined   chan struct{}
}

func newServer() *server {
	return &server{
		registry: coordinator.NewWorkerRegistry(),
		joined:   make(chan struct{}, 1),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Node.ID == "" || req.Node.Addr == "" {
		http.Error(w, "missing id/addr", http.StatusBadRequest)
		return
	}

	slot, err := s.registry.Register(req.Node)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("coordinator: node %s registered @ %s (slot %d)", req.Node.ID, req.Node.Addr, slot)

	select {
	case s.joined <- struct{}{}:
	default:
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Nodes []cluster.NodeInfo `json:"nodes"`
	}{Nodes: s.registry.Nodes()})
}

// waitForWorkers blocks until n nodes have registered and returns the first
// n in registration order.
func (s *server) waitForWorkers(ctx context.Context, n int, timeout time.Duration) ([]cluster.NodeInfo, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if nodes := s.registry.Nodes(); len(nodes) >= n {
			return nodes[:n], nil
		}
		select {
		case <-s.joined:
		case <-timer.C:
			return nil, fmt.Errorf("%d of %d workers registered after %v", s.registry.Len(), n, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
