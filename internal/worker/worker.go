package worker

import (
	"sync/atomic"

	"github.com/dreamware/torsort/internal/cluster"
	"github.com/dreamware/torsort/internal/sorter"
)

// Worker executes sort and merge tasks handed to it by the coordinator.
// It holds no sequence state between tasks.
type Worker struct {
	Stats *TaskStats // Task statistics
	ID    string     // Identifier used in logs and /info
}

// TaskStats tracks task counts
type TaskStats struct {
	Sorts  uint64 `json:"sorts"`  // Number of sort tasks executed
	Merges uint64 `json:"merges"` // Number of merge tasks executed
	Idles  uint64 `json:"idles"`  // Number of idle rounds
	Values uint64 `json:"values"` // Number of values returned in results
}

// Info contains metadata about the worker
type Info struct {
	ID    string    `json:"worker_id"`
	Stats TaskStats `json:"stats"`
}

// NewWorker creates a worker with zeroed statistics
func NewWorker(id string) *Worker {
	return &Worker{
		ID:    id,
		Stats: &TaskStats{},
	}
}

// Execute runs one task.
// Sort tasks are sorted in place, so the result shares the payload buffer.
// Merge tasks return a fresh buffer. Idle and done return a nil result.
func (w *Worker) Execute(task cluster.Task) (*cluster.Result, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}

	switch task.Kind {
	case cluster.TaskSort:
		values := task.Payloads[0].Values
		sorter.Bitonic(values)
		atomic.AddUint64(&w.Stats.Sorts, 1)
		atomic.AddUint64(&w.Stats.Values, uint64(len(values)))
		return &cluster.Result{Payload: cluster.NewPayload(values)}, nil

	case cluster.TaskMerge:
		merged := sorter.Merge(task.Payloads[0].Values, task.Payloads[1].Values)
		atomic.AddUint64(&w.Stats.Merges, 1)
		atomic.AddUint64(&w.Stats.Values, uint64(len(merged)))
		return &cluster.Result{Payload: cluster.NewPayload(merged)}, nil

	case cluster.TaskIdle:
		atomic.AddUint64(&w.Stats.Idles, 1)
	}
	return nil, nil
}

// GetStats returns current task statistics
func (w *Worker) GetStats() TaskStats {
	return TaskStats{
		Sorts:  atomic.LoadUint64(&w.Stats.Sorts),
		Merges: atomic.LoadUint64(&w.Stats.Merges),
		Idles:  atomic.LoadUint64(&w.Stats.Idles),
		Values: atomic.LoadUint64(&w.Stats.Values),
	}
}

// Info returns metadata about the worker
func (w *Worker) Info() Info {
	return Info{ID: w.ID, Stats: w.GetStats()}
}
