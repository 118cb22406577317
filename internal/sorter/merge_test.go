package sorter

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMerge verifies two-pointer merging of sorted inputs.
func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		a    []int32
		b    []int32
		want []int32
	}{
		{name: "interleaved", a: []int32{3, 5}, b: []int32{1, 8}, want: []int32{1, 3, 5, 8}},
		{name: "disjoint", a: []int32{1, 2}, b: []int32{3, 4}, want: []int32{1, 2, 3, 4}},
		{name: "duplicates across inputs", a: []int32{1, 2, 2}, b: []int32{2, 3}, want: []int32{1, 2, 2, 2, 3}},
		{name: "uneven lengths", a: []int32{0}, b: []int32{-2, -1, 5, 6}, want: []int32{-2, -1, 0, 5, 6}},
		{name: "both empty", a: nil, b: nil, want: []int32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.a, tt.b))
		})
	}
}

// TestMergeWithEmpty checks that merging with an empty input returns the
// other input's values in a fresh buffer.
func TestMergeWithEmpty(t *testing.T) {
	a := []int32{1, 4, 9}

	left := Merge(a, nil)
	right := Merge(nil, a)

	assert.Equal(t, a, left)
	assert.Equal(t, a, right)

	left[0] = 100
	assert.Equal(t, int32(1), a[0], "merge output must not alias its input")
}

// TestMergeStrings exercises the generic path with another ordered type.
func TestMergeStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "b", "c"}, Merge([]string{"a", "b"}, []string{"b", "c"}))
}

// TestMergeRandom compares against a full sort of the concatenation.
func TestMergeRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		a := make([]int32, rng.Intn(40))
		b := make([]int32, rng.Intn(40))
		for i := range a {
			a[i] = rng.Int31n(100)
		}
		for i := range b {
			b[i] = rng.Int31n(100)
		}
		Bitonic(a)
		Bitonic(b)

		got := Merge(a, b)

		require.Len(t, got, len(a)+len(b))
		assert.Equal(t, sortedCopy(append(append([]int32{}, a...), b...)), got)
	}
}
