package sorter

import "golang.org/x/exp/constraints"

// Merge returns a freshly allocated sorted slice holding the values of the
// sorted inputs a and b. On ties the value from a comes first.
func Merge[T constraints.Ordered](a, b []T) []T {
	out := make([]T, len(a)+len(b))

	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out[k] = a[i]
			i++
		} else {
			out[k] = b[j]
			j++
		}
		k++
	}
	k += copy(out[k:], a[i:])
	copy(out[k:], b[j:])

	return out
}
