package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/torsort/internal/cluster"
	"github.com/dreamware/torsort/internal/sorter"
	"github.com/dreamware/torsort/internal/storage"
)

// ErrNoWorkers is returned by New when no participant is given
var ErrNoWorkers = errors.New("at least one worker is required")

// abortTimeout bounds the done broadcast sent after a failed run
const abortTimeout = 5 * time.Second

// Phase is the coordinator's position in the run
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseDividing   Phase = "dividing"
	PhaseSorting    Phase = "sorting"
	PhaseMerging    Phase = "merging"
	PhaseValidating Phase = "validating"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Config holds the run settings that do not depend on the input
type Config struct {
	// RoundTimeout bounds every sort and merge round. Zero disables it.
	RoundTimeout time.Duration
}

// Participant is one worker taking part in a run
type Participant struct {
	Endpoint cluster.Endpoint
	Info     cluster.NodeInfo
}

// Coordinator drives one distributed sort over a fixed set of workers.
// A Coordinator runs once; create a new one for every input.
type Coordinator struct {
	store     *storage.SequenceStore
	registry  *WorkerRegistry
	endpoints []cluster.Endpoint // indexed by registry slot
	runID     string
	cfg       Config
	mu        sync.RWMutex
	phase     Phase
	round     int
}

// New prepares a run over seq. Workers keep the order given: workers[i]
// sorts the i-th subsequence and merges the i-th pair of every round.
func New(seq []int32, workers []Participant, cfg Config) (*Coordinator, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	registry := NewWorkerRegistry()
	endpoints := make([]cluster.Endpoint, 0, len(workers))
	for _, p := range workers {
		slot, err := registry.Register(p.Info)
		if err != nil {
			return nil, err
		}
		if slot != len(endpoints) {
			return nil, fmt.Errorf("duplicate worker ID %q", p.Info.ID)
		}
		endpoints = append(endpoints, p.Endpoint)
	}

	return &Coordinator{
		store:     storage.NewSequenceStore(seq),
		registry:  registry,
		endpoints: endpoints,
		runID:     uuid.NewString(),
		cfg:       cfg,
		phase:     PhasePending,
	}, nil
}

// Phase returns the current phase and, while merging, the 1-based merge
// round index.
func (c *Coordinator) Phase() (Phase, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase, c.round
}

// RunID identifies this run in logs and reports
func (c *Coordinator) RunID() string {
	return c.runID
}

// Registry exposes the worker registry, mostly for inspection in tests
func (c *Coordinator) Registry() *WorkerRegistry {
	return c.registry
}

// Store exposes the sequence store
func (c *Coordinator) Store() *storage.SequenceStore {
	return c.store
}

func (c *Coordinator) setPhase(p Phase, round int) {
	c.mu.Lock()
	c.phase, c.round = p, round
	c.mu.Unlock()
}

// Run executes the whole sort: divide, one sort round, merge rounds until a
// single subsequence remains, validation, and a done broadcast.
//
// A failed validation is not an error; it is reported through
// Report.Violation. Any exchange error, round timeout or cancellation of
// ctx aborts the run: Run makes a best-effort attempt to send done to
// every worker and returns the error.
func (c *Coordinator) Run(ctx context.Context) (report *Report, err error) {
	start := time.Now()
	n := c.registry.Len()

	defer func() {
		if err != nil {
			c.setPhase(PhaseFailed, 0)
			c.abort()
			report = nil
		}
	}()

	report = &Report{
		RunID:   c.runID,
		Workers: n,
		Values:  c.store.Stats().Values,
	}
	log.Printf("coordinator: run %s: %d values, %d workers", c.runID, report.Values, n)

	c.setPhase(PhaseDividing, 0)
	subs, err := c.store.Partition(n)
	if err != nil {
		return nil, fmt.Errorf("dividing %d values among %d workers: %w", report.Values, n, err)
	}

	c.setPhase(PhaseSorting, 0)
	began := time.Now()
	if err := c.sortRound(ctx, subs); err != nil {
		return nil, err
	}
	report.Rounds = append(report.Rounds, RoundTiming{Phase: PhaseSorting, Duration: time.Since(began)})

	for c.store.Len() > 1 {
		began = time.Now()
		index, err := c.mergeRound(ctx)
		if err != nil {
			return nil, err
		}
		report.Rounds = append(report.Rounds, RoundTiming{Phase: PhaseMerging, Index: index, Duration: time.Since(began)})
	}

	c.setPhase(PhaseValidating, 0)
	final, err := c.store.Finalize()
	if err != nil {
		return nil, err
	}
	report.Final = final.Values
	report.Violation = sorter.FirstViolation(final.Values)
	report.Elapsed = time.Since(start)

	c.setPhase(PhaseDone, 0)
	if err := c.broadcast(ctx, cluster.DoneTask()); err != nil {
		// the result stands; a worker that missed done is the caller's to reap
		log.Printf("coordinator: run %s: done broadcast: %v", c.runID, err)
	}

	log.Printf("coordinator: run %s finished in %v after %d merge rounds", c.runID, report.Elapsed, report.MergeRounds())
	return report, nil
}

// sortRound sends subsequence i to worker i and installs every result.
func (c *Coordinator) sortRound(ctx context.Context, subs []*storage.Subsequence) error {
	rctx, cancel := c.roundContext(ctx)
	defer cancel()

	sorted := make([][]int32, len(subs))
	g, gctx := errgroup.WithContext(rctx)
	for i, sub := range subs {
		g.Go(func() error {
			res, err := c.exchange(gctx, i, cluster.SortTask(sub.Values), sub.ID)
			if err != nil {
				return err
			}
			sorted[i] = res.Payload.Values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sort round: %w", err)
	}

	for i, sub := range subs {
		if err := c.store.MarkSorted(sub.ID, sorted[i]); err != nil {
			return fmt.Errorf("sort round: %w", err)
		}
	}
	return nil
}

// mergeRound sends pair j to worker j and idle to everyone else, then
// installs the merged outputs. It returns the round index.
func (c *Coordinator) mergeRound(ctx context.Context) (int, error) {
	round, err := c.store.PlanRound()
	if err != nil {
		return 0, err
	}
	c.setPhase(PhaseMerging, round.Index)

	rctx, cancel := c.roundContext(ctx)
	defer cancel()

	merged := make([][]int32, len(round.Pairs))
	g, gctx := errgroup.WithContext(rctx)
	for slot := range c.endpoints {
		if slot >= len(round.Pairs) {
			g.Go(func() error {
				_, err := c.exchange(gctx, slot, cluster.IdleTask(round.Index))
				return err
			})
			continue
		}
		p := round.Pairs[slot]
		g.Go(func() error {
			task := cluster.MergeTask(round.Index, p.A.Values, p.B.Values)
			res, err := c.exchange(gctx, slot, task, p.A.ID, p.B.ID)
			if err != nil {
				return err
			}
			merged[slot] = res.Payload.Values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("merge round %d: %w", round.Index, err)
	}

	if err := c.store.ApplyRound(round, merged); err != nil {
		return 0, fmt.Errorf("merge round %d: %w", round.Index, err)
	}
	log.Printf("coordinator: merge round %d: %d pairs, carry=%t, %d active",
		round.Index, len(round.Pairs), round.Carry != nil, c.store.Len())
	return round.Index, nil
}

// exchange delivers one task to the worker in slot and tracks it in the
// registry until the worker has answered.
func (c *Coordinator) exchange(ctx context.Context, slot int, task cluster.Task, subs ...int) (*cluster.Result, error) {
	node, err := c.registry.Slot(slot)
	if err != nil {
		return nil, err
	}
	if err := c.registry.Assign(node.ID, task.Kind, task.Round, subs...); err != nil {
		return nil, err
	}

	res, err := c.endpoints[slot].Exchange(ctx, task)
	if err == nil && task.ExpectsReply() && res == nil {
		err = fmt.Errorf("%w: no result for %s task", cluster.ErrProtocol, task.Kind)
	}
	if err != nil {
		c.registry.Release(node.ID)
		return nil, fmt.Errorf("worker %s: %s task: %w", node.ID, task.Kind, err)
	}

	if _, err := c.registry.Complete(node.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// broadcast sends task to every worker and returns the first failure.
// One worker failing does not stop delivery to the others.
func (c *Coordinator) broadcast(ctx context.Context, task cluster.Task) error {
	var g errgroup.Group
	for slot := range c.endpoints {
		g.Go(func() error {
			_, err := c.exchange(ctx, slot, task)
			return err
		})
	}
	return g.Wait()
}

func (c *Coordinator) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := c.broadcast(ctx, cluster.DoneTask()); err != nil {
		log.Printf("coordinator: run %s: done broadcast after failure: %v", c.runID, err)
	}
}

func (c *Coordinator) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RoundTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.RoundTimeout)
	}
	return context.WithCancel(ctx)
}
