package coordinator

import (
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/dreamware/torsort/internal/sorter"
)

// RoundTiming is the wall time of one sort or merge round
type RoundTiming struct {
	Phase    Phase
	Index    int // merge round index, 0 for the sort round
	Duration time.Duration
}

// Report is the outcome of a completed run
type Report struct {
	Violation *sorter.Violation // nil when the result is sorted
	RunID     string
	Final     []int32
	Rounds    []RoundTiming // sort round first, then merge rounds in order
	Workers   int
	Values    int
	Elapsed   time.Duration // from the start of the run through validation
}

// OK reports whether the final sequence is non-decreasing
func (r *Report) OK() bool {
	return r.Violation == nil
}

// MergeRounds returns the number of merge rounds the run needed
func (r *Report) MergeRounds() int {
	n := 0
	for _, rt := range r.Rounds {
		if rt.Phase == PhaseMerging {
			n++
		}
	}
	return n
}

// RoundStats returns the mean and standard deviation of the round
// durations in seconds. The deviation is 0 with fewer than two rounds.
func (r *Report) RoundStats() (mean, stddev float64) {
	if len(r.Rounds) == 0 {
		return 0, 0
	}
	secs := make([]float64, len(r.Rounds))
	for i, rt := range r.Rounds {
		secs[i] = rt.Duration.Seconds()
	}
	if len(secs) == 1 {
		return secs[0], 0
	}
	return stat.MeanStdDev(secs, nil)
}

// Print writes the human-readable outcome:
//
//	Everything is OK!
//	Execution time = 0.012345s
//	Rounds = 3 (1 sort, 2 merge), mean 0.004115s, stddev 0.000731s
func (r *Report) Print(w io.Writer) error {
	verdict := "Everything is OK!"
	if r.Violation != nil {
		verdict = r.Violation.String()
	}
	mean, stddev := r.RoundStats()
	_, err := fmt.Fprintf(w, "%s\nExecution time = %.6fs\nRounds = %d (1 sort, %d merge), mean %.6fs, stddev %.6fs\n",
		verdict, r.Elapsed.Seconds(), len(r.Rounds), r.MergeRounds(), mean, stddev)
	return err
}
