// Package cluster defines the messages exchanged between the torsort
// coordinator and its workers, and the HTTP/JSON plumbing that carries them
// between processes.
//
// # Overview
//
// The coordinator drives every worker through a strict request/response
// discipline: each worker receives exactly one Task per round and never
// holds two at once. Tasks form a tagged union:
//
//	kind    payloads   reply
//	sort    1          Result with the sorted payload
//	merge   2          Result with the merged payload
//	idle    0          none (no work this round)
//	done    0          none (the worker may exit)
//
// Every payload is length-framed ({length, values}). A declared length that
// disagrees with the values, an unknown kind or the wrong payload count is
// a protocol error (ErrProtocol), which is fatal to the run.
//
// # Topology
//
//	              ┌──────────────┐
//	              │ Coordinator  │
//	              │  rounds      │
//	              └──────┬───────┘
//	                     │ Endpoint.Exchange
//	      ┌──────────────┼──────────────┐
//	      │              │              │
//	┌─────▼─────┐ ┌─────▼─────┐ ┌─────▼─────┐
//	│ Worker 0  │ │ Worker 1  │ │ Worker 2  │
//	│ POST /task│ │ POST /task│ │ POST /task│
//	└───────────┘ └───────────┘ └───────────┘
//
// Endpoint abstracts one worker. HTTPEndpoint posts tasks to a node's /task
// handler; the worker package provides an in-process Mailbox with the same
// interface, so the coordinator is unaware of where a worker runs.
//
// # Communication Protocol
//
// Node Registration (POST /register on the coordinator):
//   - Nodes announce their ID and public address
//   - The coordinator starts once the configured number of workers joined
//
// Task Exchange (POST /task on the node):
//   - 200 with a Result for sort and merge
//   - 204 for idle and done
//   - 422 for protocol errors, surfaced as ErrProtocol
//   - 409 when a task is already outstanding
//
// Health Checking (GET /health on the node):
//   - Polled by the coordinator during a run; a node that stops answering
//     aborts the run
//
// # Timeouts
//
// Control calls (PostJSON, GetJSON) use a client with a 5s timeout. Task
// exchanges use a client without one and are bounded by the caller's
// context, which the coordinator derives from its per-round deadline.
package cluster
