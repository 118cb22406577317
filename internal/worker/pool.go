package worker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/torsort/internal/cluster"
)

// Pool runs n worker loops as goroutines in the current process, one
// mailbox each. It is the in-process stand-in for n node processes.
type Pool struct {
	group   *errgroup.Group
	workers []*Worker
	boxes   []*Mailbox
}

// StartPool starts n worker loops named "<prefix>-<i>". The loops stop
// after a done task or when ctx is cancelled.
func StartPool(ctx context.Context, prefix string, n int) *Pool {
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool{group: g}

	for i := 0; i < n; i++ {
		w := NewWorker(fmt.Sprintf("%s-%d", prefix, i))
		m := NewMailbox()
		p.workers = append(p.workers, w)
		p.boxes = append(p.boxes, m)
		g.Go(func() error { return w.Run(gctx, m) })
	}
	return p
}

// Endpoints returns the mailboxes as coordinator endpoints, in worker order
func (p *Pool) Endpoints() []cluster.Endpoint {
	eps := make([]cluster.Endpoint, len(p.boxes))
	for i, m := range p.boxes {
		eps[i] = m
	}
	return eps
}

// Workers returns the pool's workers, in order
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Wait blocks until every loop has exited and returns the first error
func (p *Pool) Wait() error {
	return p.group.Wait()
}
