// Package worker implements the worker side of a torsort run: a loop that
// takes one task at a time from its mailbox, sorts or merges the payloads
// and replies.
//
// # Overview
//
// A worker never initiates work. Its whole life is:
//
//	for {
//	    task := receive()
//	    switch task.Kind {
//	    case sort:  reply(Bitonic(payload))
//	    case merge: reply(Merge(a, b))
//	    case idle:  // nothing this round
//	    case done:  return
//	    }
//	}
//
// # Mailbox
//
// Mailbox is the synchronous point-to-point link to one loop. Exchange
// blocks until the loop has taken the task and, for sort and merge, until
// the reply arrives. A second Exchange while one is outstanding fails with
// ErrBusy instead of queueing, because the coordinator must never hand a
// worker two tasks at once.
//
// Payload ownership moves with the task: the loop sorts a sort payload in
// place and returns the same buffer, so the sender must not touch it after
// Exchange.
//
// # Failure
//
// There is no partial-failure tolerance. A task that fails validation is
// answered with the protocol error and the loop exits; every later Exchange
// fails with ErrStopped wrapping that error.
//
// # Deployment
//
// Pool runs N loops as goroutines for single-process runs and tests. The
// node command runs one loop per process and bridges its /task handler to
// the loop through a Mailbox.
package worker
