// Package sorter implements the per-worker sorting primitives: a padded
// bitonic sort, a two-way merge and an order check.
package sorter

import (
	"math"

	"github.com/exascience/pargo/parallel"
)

// parallelGrain is the smallest network size whose two halves are sorted
// or merged in separate goroutines. Smaller networks recurse sequentially.
const parallelGrain = 2048

// Bitonic sorts buf in place in ascending order.
//
// The bitonic network only works on power-of-two lengths, so buf is copied
// into a working buffer padded with math.MaxInt32 up to the next power of
// two. The padding always sorts to the end and is dropped when the first
// len(buf) values are copied back.
func Bitonic(buf []int32) {
	n := len(buf)
	if n < 2 {
		return
	}

	size := nextPowerOfTwo(n)
	padded := make([]int32, size)
	copy(padded, buf)
	for i := n; i < size; i++ {
		padded[i] = math.MaxInt32
	}

	bitonicSortRecursive(padded, 0, size, true)

	copy(buf, padded[:n])
}

// nextPowerOfTwo returns the smallest power of two >= n (n >= 1)
func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// bitonicSortRecursive sorts the halves of buf[low:low+count] in opposite
// directions, which makes the whole range bitonic, then merges it.
func bitonicSortRecursive(buf []int32, low, count int, ascending bool) {
	if count <= 1 {
		return
	}
	k := count / 2
	if count >= parallelGrain {
		parallel.Do(
			func() {
				bitonicSortRecursive(buf, low, k, !ascending)
			},
			func() {
				bitonicSortRecursive(buf, low+k, k, ascending)
			},
		)
	} else {
		bitonicSortRecursive(buf, low, k, !ascending)
		bitonicSortRecursive(buf, low+k, k, ascending)
	}
	bitonicMerge(buf, low, count, ascending)
}

// bitonicMerge turns the bitonic range buf[low:low+count] into a sorted one.
func bitonicMerge(buf []int32, low, count int, ascending bool) {
	if count <= 1 {
		return
	}
	k := count / 2
	for i := low; i < low+k; i++ {
		compareAndSwap(buf, i, i+k, ascending)
	}
	if count >= parallelGrain {
		parallel.Do(
			func() {
				bitonicMerge(buf, low, k, ascending)
			},
			func() {
				bitonicMerge(buf, low+k, k, ascending)
			},
		)
		return
	}
	bitonicMerge(buf, low, k, ascending)
	bitonicMerge(buf, low+k, k, ascending)
}

func compareAndSwap(buf []int32, i, j int, ascending bool) {
	if (buf[i] > buf[j]) == ascending {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
