package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/dreamware/torsort/internal/cluster"
)

var (
	// ErrBusy is returned when a task is delivered while another is outstanding
	ErrBusy = errors.New("worker busy")

	// ErrStopped is returned once the worker loop has exited
	ErrStopped = errors.New("worker stopped")
)

type envelope struct {
	task cluster.Task
	seq  uint64
}

type reply struct {
	res *cluster.Result
	err error
	seq uint64
}

// Mailbox is the point-to-point channel between the coordinator and one
// worker loop. It implements cluster.Endpoint, and the node's /task handler
// delivers tasks through it as well.
type Mailbox struct {
	inbox   chan envelope
	outbox  chan reply
	stopped chan struct{}
	err     error // why the loop stopped; written before stopped is closed
	busy    sync.Mutex
	once    sync.Once
	seq     uint64 // protected by busy
}

// NewMailbox creates a mailbox with no loop attached yet
func NewMailbox() *Mailbox {
	return &Mailbox{
		inbox:   make(chan envelope),
		outbox:  make(chan reply, 1),
		stopped: make(chan struct{}),
	}
}

// Exchange delivers task to the worker loop. For sort and merge it waits
// for the result; idle and done return as soon as the loop has taken the
// task. A task that fails validation also waits, so the caller receives
// the protocol error.
func (m *Mailbox) Exchange(ctx context.Context, task cluster.Task) (*cluster.Result, error) {
	if !m.busy.TryLock() {
		return nil, ErrBusy
	}
	defer m.busy.Unlock()

	m.seq++
	seq := m.seq

	select {
	case m.inbox <- envelope{task: task, seq: seq}:
	case <-m.stopped:
		return nil, m.stopErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if task.ExpectsReply() || task.Validate() != nil {
		return m.await(ctx, seq)
	}
	return nil, nil
}

func (m *Mailbox) await(ctx context.Context, seq uint64) (*cluster.Result, error) {
	for {
		select {
		case r := <-m.outbox:
			// replies to exchanges abandoned on cancellation are dropped
			if r.seq == seq {
				return r.res, r.err
			}
		case <-m.stopped:
			select {
			case r := <-m.outbox:
				if r.seq == seq {
					return r.res, r.err
				}
			default:
			}
			return nil, m.stopErr()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Stopped is closed when the worker loop has exited
func (m *Mailbox) Stopped() <-chan struct{} {
	return m.stopped
}

func (m *Mailbox) stop(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.stopped)
	})
}

func (m *Mailbox) stopErr() error {
	if m.err != nil {
		return fmt.Errorf("%w: %v", ErrStopped, m.err)
	}
	return ErrStopped
}

// Run is the worker loop: it takes one task at a time from m, executes it
// and replies when the task kind calls for it. It returns nil after a done
// task, the protocol error after a task it cannot interpret, or the context
// error on cancellation.
func (w *Worker) Run(ctx context.Context, m *Mailbox) (err error) {
	defer func() { m.stop(err) }()

	for {
		var env envelope
		select {
		case env = <-m.inbox:
		case <-ctx.Done():
			return ctx.Err()
		}

		task := env.task
		if task.Kind == cluster.TaskDone && task.Validate() == nil {
			stats := w.GetStats()
			log.Printf("worker[%s] done: %d sorts, %d merges, %d idle rounds",
				w.ID, stats.Sorts, stats.Merges, stats.Idles)
			return nil
		}

		res, err := w.Execute(task)
		if err != nil {
			log.Printf("worker[%s] rejecting task: %v", w.ID, err)
			m.send(ctx, reply{err: err, seq: env.seq})
			return err
		}
		if task.ExpectsReply() {
			if !m.send(ctx, reply{res: res, seq: env.seq}) {
				return ctx.Err()
			}
		}
	}
}

func (m *Mailbox) send(ctx context.Context, r reply) bool {
	select {
	case m.outbox <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
