// Package storage holds the integer sequence being sorted and the evolving
// partition of it into subsequences, together with the binary file codec the
// coordinator loads its input from.
//
// # Overview
//
// A run starts from one immutable Sequence. Partition splits it into N
// contiguous subsequences (one per worker); from then on the store keeps an
// ordered active list that shrinks every merge round until a single
// subsequence is left:
//
//	Sequence [5 3 8 1 9 2 7 4]
//	     │ Partition(4)
//	     ▼
//	[5 3] [8 1] [9 2] [7 4]        unsorted-assigned
//	     │ MarkSorted × 4
//	     ▼
//	[3 5] [1 8] [2 9] [4 7]        sorted-unmerged
//	     │ PlanRound / ApplyRound
//	     ▼
//	[1 3 5 8] [2 4 7 9]            sorted-unmerged
//	     │ PlanRound / ApplyRound
//	     ▼
//	[1 2 3 4 5 7 8 9]              final (after Finalize)
//
// # Subsequence States
//
// Each subsequence in the active list is in exactly one state:
//   - unsorted-assigned: shipped to a worker for sorting
//   - sorted-unmerged: sorted and waiting to be paired
//   - merged-pending: part of a pair handed to a worker for merging
//   - final: the last remaining subsequence, stamped by Finalize
//
// # Invariants
//
// The multiset of values across the active list always equals the multiset
// of the original sequence. The store cannot verify the values a worker
// sends back without keeping a second copy, so it enforces the cheap half:
// every installed result must have exactly the length of the inputs it
// replaces, otherwise ErrLengthMismatch is returned and nothing changes.
//
// # Ownership
//
// A subsequence buffer is owned by whoever holds it. While a subsequence is
// unsorted-assigned or merged-pending the store does not read or write its
// values; the worker that received it may mutate it freely. Installing a
// result replaces the buffer, and the superseded ones are dropped.
//
// # Concurrency
//
// SequenceStore methods are safe for concurrent use (sync.RWMutex), although
// in practice only the coordinator goroutine mutates it.
//
// # File Format
//
// Input files are little-endian 32-bit integers: a count C followed by C
// values. ReadFile/Decode and WriteFile/Encode implement the format.
package storage
