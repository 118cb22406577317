package storage

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

var (
	// ErrSubsequenceNotFound is returned when an ID is not in the active list
	ErrSubsequenceNotFound = errors.New("subsequence not found")

	// ErrLengthMismatch is returned when a result would create or drop values
	ErrLengthMismatch = errors.New("result length mismatch")

	// ErrWrongState is returned when a subsequence is not in the state an
	// operation requires
	ErrWrongState = errors.New("subsequence in wrong state")

	// ErrNotFinal is returned by Finalize while more than one subsequence is active
	ErrNotFinal = errors.New("more than one active subsequence")
)

// State is the lifecycle stage of a subsequence
type State string

const (
	// StateUnsortedAssigned means the subsequence was handed to a worker for sorting
	StateUnsortedAssigned State = "unsorted-assigned"
	// StateSortedUnmerged means the subsequence is sorted and waiting to be paired
	StateSortedUnmerged State = "sorted-unmerged"
	// StateMergedPending means the subsequence is part of an outstanding merge
	StateMergedPending State = "merged-pending"
	// StateFinal means the subsequence is the fully sorted result
	StateFinal State = "final"
)

// Subsequence is one contiguous, owned piece of the sequence
type Subsequence struct {
	Values []int32 // Owned buffer; not touched by the store while assigned
	ID     int     // Store-assigned identifier, never reused
	State  State   // Current lifecycle stage
}

// Len returns the number of values in the subsequence
func (s *Subsequence) Len() int {
	return len(s.Values)
}

// Pair is two adjacent active subsequences scheduled to be merged
type Pair struct {
	A *Subsequence
	B *Subsequence
}

// Round is the merge plan for one pass over the active list.
// Carry is the unpaired last subsequence when the list length is odd.
type Round struct {
	Pairs []Pair
	Carry *Subsequence
	Index int // 1-based merge round number
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Values       int // Length of the original sequence
	Active       int // Number of subsequences in the active list
	MergeRounds  int // Number of merge rounds applied so far
	Replacements int // Number of merge outputs installed so far
}

// SequenceStore owns the original sequence and the active subsequence list.
// All methods are safe for concurrent use.
type SequenceStore struct {
	mu       sync.RWMutex
	sequence []int32
	active   []*Subsequence
	nextID   int
	rounds   int
	replaced int
}

// NewSequenceStore creates a store over seq. The store keeps its own copy,
// so later changes to seq are not observed.
func NewSequenceStore(seq []int32) *SequenceStore {
	return &SequenceStore{
		sequence: slices.Clone(seq),
	}
}

// Sequence returns a copy of the original sequence
func (s *SequenceStore) Sequence() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sequence)
}

// Partition divides the sequence into n subsequences with Divide and makes
// them the active list, each stamped unsorted-assigned. Any previous active
// list is discarded.
func (s *SequenceStore) Partition(n int) ([]*Subsequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts, err := Divide(s.sequence, n)
	if err != nil {
		return nil, err
	}

	s.active = make([]*Subsequence, 0, n)
	s.nextID = 0
	s.rounds = 0
	s.replaced = 0
	for _, part := range parts {
		s.active = append(s.active, &Subsequence{
			ID:     s.nextID,
			Values: part,
			State:  StateUnsortedAssigned,
		})
		s.nextID++
	}
	return slices.Clone(s.active), nil
}

// MarkSorted installs the sorted values for an unsorted-assigned subsequence
// and stamps it sorted-unmerged. The sorted buffer replaces the original one.
func (s *SequenceStore) MarkSorted(id int, sorted []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrSubsequenceNotFound, id)
	}
	sub := s.active[idx]
	if sub.State != StateUnsortedAssigned {
		return fmt.Errorf("%w: subsequence %d is %s", ErrWrongState, id, sub.State)
	}
	if len(sorted) != len(sub.Values) {
		return fmt.Errorf("%w: subsequence %d has %d values, result has %d",
			ErrLengthMismatch, id, len(sub.Values), len(sorted))
	}

	sub.Values = sorted
	sub.State = StateSortedUnmerged
	return nil
}

// PlanRound pairs the active list at positions (0,1), (2,3), ... and stamps
// every paired subsequence merged-pending. With an odd length the last
// subsequence is returned as Carry and keeps its state.
//
// Every active subsequence must be sorted-unmerged.
func (s *SequenceStore) PlanRound() (*Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.active {
		if sub.State != StateSortedUnmerged {
			return nil, fmt.Errorf("%w: subsequence %d is %s", ErrWrongState, sub.ID, sub.State)
		}
	}

	round := &Round{Index: s.rounds + 1}
	for i := 0; i+1 < len(s.active); i += 2 {
		a, b := s.active[i], s.active[i+1]
		a.State = StateMergedPending
		b.State = StateMergedPending
		round.Pairs = append(round.Pairs, Pair{A: a, B: b})
	}
	if len(s.active)%2 == 1 {
		round.Carry = s.active[len(s.active)-1]
	}
	return round, nil
}

// ApplyRound replaces each planned pair with its merged output. merged[i]
// is the result for round.Pairs[i]. The new active list holds the merge
// outputs in pair order followed by the carry, so its length is ⌈k/2⌉.
//
// Lengths are checked for every pair before anything is installed.
func (s *SequenceStore) ApplyRound(round *Round, merged [][]int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(merged) != len(round.Pairs) {
		return fmt.Errorf("%w: %d pairs, %d results", ErrLengthMismatch, len(round.Pairs), len(merged))
	}
	for i, p := range round.Pairs {
		if s.indexOf(p.A.ID) < 0 || s.indexOf(p.B.ID) < 0 {
			return fmt.Errorf("%w: pair %d (%d,%d)", ErrSubsequenceNotFound, i, p.A.ID, p.B.ID)
		}
		if p.A.State != StateMergedPending || p.B.State != StateMergedPending {
			return fmt.Errorf("%w: pair %d (%d,%d) is not pending", ErrWrongState, i, p.A.ID, p.B.ID)
		}
		if want := p.A.Len() + p.B.Len(); len(merged[i]) != want {
			return fmt.Errorf("%w: pair %d (%d,%d) expects %d values, result has %d",
				ErrLengthMismatch, i, p.A.ID, p.B.ID, want, len(merged[i]))
		}
	}

	next := make([]*Subsequence, 0, len(round.Pairs)+1)
	for i, p := range round.Pairs {
		// superseded buffers are released
		p.A.Values, p.B.Values = nil, nil
		next = append(next, &Subsequence{
			ID:     s.nextID,
			Values: merged[i],
			State:  StateSortedUnmerged,
		})
		s.nextID++
	}
	if round.Carry != nil {
		next = append(next, round.Carry)
	}

	s.active = next
	s.rounds++
	s.replaced += len(round.Pairs)
	return nil
}

// Finalize stamps the only remaining subsequence final and returns it.
// Returns ErrNotFinal while more than one subsequence is active.
func (s *SequenceStore) Finalize() (*Subsequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) != 1 {
		return nil, fmt.Errorf("%w: %d active", ErrNotFinal, len(s.active))
	}
	sub := s.active[0]
	if sub.State != StateSortedUnmerged && sub.State != StateFinal {
		return nil, fmt.Errorf("%w: subsequence %d is %s", ErrWrongState, sub.ID, sub.State)
	}
	sub.State = StateFinal
	return sub, nil
}

// Get returns the active subsequence with the given ID
func (s *SequenceStore) Get(id int) (*Subsequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %d", ErrSubsequenceNotFound, id)
	}
	return s.active[idx], nil
}

// Active returns the active list in order. The slice is a copy; the
// subsequences are shared.
func (s *SequenceStore) Active() []*Subsequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.active)
}

// Len returns the length of the active list
func (s *SequenceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Stats returns storage statistics
func (s *SequenceStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		Values:       len(s.sequence),
		Active:       len(s.active),
		MergeRounds:  s.rounds,
		Replacements: s.replaced,
	}
}

func (s *SequenceStore) indexOf(id int) int {
	return slices.IndexFunc(s.active, func(sub *Subsequence) bool { return sub.ID == id })
}
