// Package coordinator implements the round state machine of the distributed sort.
// See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/torsort/internal/cluster"
)

var (
	// ErrUnknownWorker is returned when a worker ID has not been registered
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrAlreadyAssigned is returned when a worker still has an outstanding task
	ErrAlreadyAssigned = errors.New("worker already has an outstanding task")

	// ErrNotAssigned is returned when completing a task that was never assigned
	ErrNotAssigned = errors.New("worker has no outstanding task")
)

// Assignment records the one task a worker currently owes the coordinator.
//
// Subsequences holds the store IDs handed over with the task: one ID for a
// sort, two for a merge, none for idle and done. Ownership of those buffers
// sits with the worker until the assignment completes.
//
// Assignments are immutable once created; the registry returns copies.
type Assignment struct {
	WorkerID     string
	Kind         cluster.TaskKind
	Subsequences []int
	Round        int // 0 for sort and done, merge round index otherwise
}

// WorkerRegistry tracks the workers taking part in a run and the task each
// of them currently owns.
//
// Workers occupy fixed slots in registration order. Slot i receives the i-th
// subsequence in the sort round and the i-th pair in every merge round, so
// the slot order is part of the run's determinism.
//
//	┌─────────────────────────────────────┐
//	│         WorkerRegistry              │
//	├─────────────────────────────────────┤
//	│  workers: slot → NodeInfo           │
//	│  outstanding: workerID → Assignment │
//	│  completed: workerID → task count   │
//	└─────────────────────────────────────┘
//
// At most one assignment exists per worker. Assign fails with
// ErrAlreadyAssigned until the previous one is completed, mirroring the
// single-slot mailbox on the worker side.
//
// Thread Safety: all methods are safe for concurrent use. Per-round fan-out
// goroutines assign and complete tasks in parallel.
type WorkerRegistry struct {
	outstanding map[string]*Assignment
	completed   map[string]int
	workers     []cluster.NodeInfo
	mu          sync.RWMutex
}

// NewWorkerRegistry creates an empty registry.
func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		outstanding: make(map[string]*Assignment),
		completed:   make(map[string]int),
	}
}

// Register adds a worker or updates the address of an existing one.
// Re-registering keeps the worker's slot.
//
// Returns:
//   - slot: position of the worker in the registry
//   - error: if the ID is empty
//
// Example:
//
//	slot, err := registry.Register(cluster.NodeInfo{ID: "node-1", Addr: "http://localhost:8081"})
func (r *WorkerRegistry) Register(node cluster.NodeInfo) (int, error) {
	if node.ID == "" {
		return -1, fmt.Errorf("worker ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.indexOf(node.ID); idx >= 0 {
		r.workers[idx] = node
		return idx, nil
	}
	r.workers = append(r.workers, node)
	return len(r.workers) - 1, nil
}

// Nodes returns the registered workers in slot order.
func (r *WorkerRegistry) Nodes() []cluster.NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.workers)
}

// Len returns the number of registered workers.
func (r *WorkerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// Slot returns the worker registered at slot i.
func (r *WorkerRegistry) Slot(i int) (cluster.NodeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.workers) {
		return cluster.NodeInfo{}, fmt.Errorf("%w: slot %d of %d", ErrUnknownWorker, i, len(r.workers))
	}
	return r.workers[i], nil
}

// Assign records a task handed to a worker.
//
// Parameters:
//   - workerID: registered worker receiving the task
//   - kind: task kind being sent
//   - round: merge round index, 0 outside the merge phase
//   - subsequences: store IDs whose buffers travel with the task
//
// Returns:
//   - ErrUnknownWorker if the worker is not registered
//   - ErrAlreadyAssigned if the worker still owes a result
func (r *WorkerRegistry) Assign(workerID string, kind cluster.TaskKind, round int, subsequences ...int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(workerID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	if prev, ok := r.outstanding[workerID]; ok {
		return fmt.Errorf("%w: %s holds %s (round %d)", ErrAlreadyAssigned, workerID, prev.Kind, prev.Round)
	}

	r.outstanding[workerID] = &Assignment{
		WorkerID:     workerID,
		Kind:         kind,
		Round:        round,
		Subsequences: slices.Clone(subsequences),
	}
	return nil
}

// Complete clears the outstanding assignment of a worker and returns it.
func (r *WorkerRegistry) Complete(workerID string) (*Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.outstanding[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAssigned, workerID)
	}
	delete(r.outstanding, workerID)
	r.completed[workerID]++
	return a, nil
}

// Release drops any outstanding assignment of a worker without counting it
// as completed. Used when an exchange fails and the run is being aborted.
func (r *WorkerRegistry) Release(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outstanding, workerID)
}

// Outstanding returns the assignment a worker currently owns, or nil.
func (r *WorkerRegistry) Outstanding(workerID string) *Assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.outstanding[workerID]
	if !ok {
		return nil
	}
	cp := *a
	cp.Subsequences = slices.Clone(a.Subsequences)
	return &cp
}

// OutstandingCount returns how many workers currently own a task.
func (r *WorkerRegistry) OutstandingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outstanding)
}

// Completed returns how many tasks a worker has completed, idle and done
// included.
func (r *WorkerRegistry) Completed(workerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.completed[workerID]
}

func (r *WorkerRegistry) indexOf(id string) int {
	return slices.IndexFunc(r.workers, func(n cluster.NodeInfo) bool { return n.ID == id })
}
