// Package main implements the torsort node service, a worker process that
// sorts and merges subsequences on behalf of the coordinator.
//
// The node is a worker in the torsort cluster, responsible for:
//   - Registering with the coordinator
//   - Executing sort, merge, idle and done tasks, one at a time
//   - Responding to health checks
//   - Exiting once the coordinator sends done
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                Node                      │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health       - Health check         │
//	│    /task         - Task delivery        │
//	│    /info         - Worker statistics    │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Worker        - Sort/merge executor  │
//	│    Mailbox       - One task at a time   │
//	│    Registration  - Coordinator link     │
//	└─────────────────────────────────────────┘
//
// Configuration:
//   - NODE_ID: Unique node identifier (default: random UUID)
//   - NODE_LISTEN: Listen address (default: ":8081")
//   - NODE_ADDR: Public address for coordinator (default: "http://127.0.0.1:8081")
//   - COORDINATOR_ADDR: Coordinator URL (required)
//
// Example usage:
//
//	NODE_ID=node-1 \
//	NODE_LISTEN=:8081 \
//	NODE_ADDR=http://localhost:8081 \
//	COORDINATOR_ADDR=http://localhost:8080 \
//	./node
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/torsort/internal/cluster"
	"github.com/dreamware/torsort/internal/worker"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
// This indirection enables test code to intercept fatal errors
// without actually terminating the test process.
var logFatal = log.Fatalf

// Node couples a worker with the mailbox its HTTP handler feeds.
//
// The /task handler is the only producer: every request becomes one
// mailbox exchange, so a second request arriving while a task is still
// running is refused with 409 instead of queueing.
type Node struct {
	Worker  *worker.Worker
	Mailbox *worker.Mailbox
}

// NewNode creates a node with a fresh worker and mailbox. The worker loop
// is not started; see Run.
func NewNode(id string) *Node {
	return &Node{
		Worker:  worker.NewWorker(id),
		Mailbox: worker.NewMailbox(),
	}
}

// Run executes the worker loop until done, a protocol error or ctx ends.
func (n *Node) Run(ctx context.Context) error {
	return n.Worker.Run(ctx, n.Mailbox)
}

// routes builds the node's HTTP API
func (n *Node) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/task", n.handleTask)
	mux.HandleFunc("/info", n.handleInfo)
	return mux
}

// main initializes and runs the node service: it registers with the
// coordinator, serves tasks until the coordinator sends done, then shuts
// down.
//
// Exit codes:
//   - 0: done received, or shutdown via signal
//   - 1: missing required configuration
//   - 1: failed to register with coordinator
//   - 1: the worker loop stopped on a protocol error
func main() {
	nodeID := getenv("NODE_ID", "")
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	listen := getenv("NODE_LISTEN", ":8081")
	public := getenv("NODE_ADDR", "http://127.0.0.1:8081")
	coord := mustGetenv("COORDINATOR_ADDR")

	node := NewNode(nodeID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopErr := make(chan error, 1)
	go func() { loopErr <- node.Run(ctx) }()

	s := &http.Server{
		Addr:              listen,
		Handler:           node.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("node[%s] listening on %s (public %s)", nodeID, listen, public)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	register(ctx, coord, nodeID, public)

	var err error
	select {
	case err = <-loopErr:
	case <-ctx.Done():
		err = <-loopErr
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	// in-flight handlers, including the one that delivered done, finish first
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := s.Shutdown(shutdownCtx); serr != nil {
		log.Printf("node[%s] server shutdown error: %v", nodeID, serr)
	}
	if err != nil {
		logFatal("node[%s] worker stopped: %v", nodeID, err)
		return
	}
	log.Printf("node[%s] stopped", nodeID)
}

// register attempts to register the node with the coordinator, retrying on
// failure to handle coordinator startup delays or temporary network issues.
//
// Retry strategy:
//   - 10 attempts maximum
//   - 400ms delay between attempts
//   - Fatal error if all attempts fail
func register(ctx context.Context, coord, id, addr string) {
	body := cluster.RegisterRequest{Node: cluster.NodeInfo{ID: id, Addr: addr}}
	var lastErr error

	for i := 0; i < 10; i++ {
		lastErr = cluster.PostJSON(ctx, coord+"/register", body, nil)
		if lastErr == nil {
			log.Printf("node[%s] registered with coordinator @ %s", id, coord)
			return
		}
		log.Printf("node[%s] register retry %d: %v", id, i+1, lastErr)
		time.Sleep(400 * time.Millisecond)
	}

	logFatal("failed to register with coordinator: %v", lastErr)
}

// handleTask delivers one task to the worker loop.
//
// Endpoint: POST /task
//
// Response:
//   - 200 OK: Result JSON for sort and merge
//   - 204 No Content: idle and done
//   - 400 Bad Request: body is not a task
//   - 405 Method Not Allowed: not a POST
//   - 409 Conflict: a task is already outstanding
//   - 422 Unprocessable Entity: protocol error; the worker loop has stopped
//   - 503 Service Unavailable: the worker loop is no longer running
func (n *Node) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var task cluster.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	res, err := n.Mailbox.Exchange(r.Context(), task)
	switch {
	case errors.Is(err, worker.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, cluster.ErrProtocol):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// handleInfo returns the worker ID and task counters.
//
// Endpoint: GET /info
func (n *Node) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(n.Worker.Info())
}

// getenv retrieves an environment variable with a default fallback value.
//
// Example:
//
//	listen := getenv("NODE_LISTEN", ":8081")
//	// Returns $NODE_LISTEN if set, otherwise ":8081"
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// mustGetenv retrieves a required environment variable, terminating the
// program if it's not set.
//
// Example:
//
//	coord := mustGetenv("COORDINATOR_ADDR")
//	// Returns $COORDINATOR_ADDR or terminates with error message
func mustGetenv(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	logFatal("missing env %s", k)
	return ""
}
