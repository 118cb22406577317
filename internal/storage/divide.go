package storage

import (
	"errors"
	"fmt"
)

// ErrInvalidPartition is returned when a sequence cannot be split into the
// requested number of subsequences.
var ErrInvalidPartition = errors.New("invalid partition")

// Divide splits seq into n contiguous subsequences of near-equal length.
//
// Every subsequence has len(seq)/n elements and the first len(seq)%n get
// one extra, so a sequence of 10 split 3 ways yields lengths [4 3 3].
// Concatenating the result in order reproduces seq. Each subsequence is a
// freshly allocated copy, so callers may hand them out independently.
//
// Returns ErrInvalidPartition if n <= 0 or n > len(seq).
func Divide(seq []int32, n int) ([][]int32, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d parts", ErrInvalidPartition, n)
	}
	if n > len(seq) {
		return nil, fmt.Errorf("%w: %d parts for %d values", ErrInvalidPartition, n, len(seq))
	}

	partSize := len(seq) / n
	remainder := len(seq) % n

	parts := make([][]int32, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + partSize
		if i < remainder {
			end++
		}
		part := make([]int32, end-start)
		copy(part, seq[start:end])
		parts[i] = part
		start = end
	}
	return parts, nil
}
