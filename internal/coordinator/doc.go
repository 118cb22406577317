// Package coordinator implements the control side of torsort's distributed
// bitonic sort: it owns the sequence, hands subsequences to workers, pairs
// sorted results into merge rounds and validates the final sequence.
//
// # Overview
//
// One Coordinator drives one run over a fixed set of workers. Workers are
// reached through cluster.Endpoint, so the same state machine runs against
// in-process mailboxes (worker.Pool) and against node processes over HTTP
// (cluster.HTTPEndpoint).
//
//	┌──────────────────────────────────────┐
//	│            COORDINATOR               │
//	├──────────────────────────────────────┤
//	│  SequenceStore   active list, states │
//	│  WorkerRegistry  slot → worker,      │
//	│                  one task per worker │
//	│  HealthMonitor   /health probes      │
//	│  Report          verdict, timings    │
//	└──────────────────────────────────────┘
//	        │ sort / merge / idle / done
//	        ▼
//	   worker 0 … worker n-1
//
// # Phases
//
//	pending → dividing → sorting → merging(1) → … → merging(r) → validating → done
//	                 └──────────── any failure ────────────┘ → failed
//
// dividing splits the sequence into n contiguous subsequences, n being the
// number of workers. More workers than values is a configuration error.
//
// sorting sends subsequence i to worker i and waits for all of them.
//
// merging(k) pairs the active list at (0,1), (2,3), ... and sends pair j to
// worker j. Every worker without a pair receives idle, so each worker gets
// exactly one message per round. With an odd list the last subsequence is
// carried to the back of the next list without a task. A list of k
// subsequences becomes ⌈k/2⌉, so r = ⌈log2 n⌉ rounds are needed. With a
// single worker the merge loop is skipped.
//
// validating scans the final sequence once. An out-of-order pair is
// reported in Report.Violation; it does not fail the run.
//
// done is sent to every worker once, after validation.
//
// # Failures
//
// Each round runs under Config.RoundTimeout. A worker error, a protocol
// error, a result of the wrong length, a timeout or cancellation of the
// run context fails the run. The coordinator then sends done to every
// worker on a best-effort basis and returns the error. There are no
// retries: a round cannot complete with a missing worker.
//
// The HealthMonitor is wired by the coordinator command in HTTP mode; its
// OnUnhealthy callback cancels the run context.
//
// # Concurrency
//
// Run is called from a single goroutine, which owns all round state. Fan-out
// within a round uses errgroup; the round ends when every exchange has
// returned. The registry, store and monitor are safe for concurrent use.
//
// # See Also
//
//   - internal/storage: sequence store and work divider
//   - internal/cluster: task protocol and endpoints
//   - internal/worker: worker loop, mailbox and local pool
//   - cmd/coordinator: the coordinator command
package coordinator
