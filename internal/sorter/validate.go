package sorter

import "fmt"

// Violation is the first adjacent pair found out of order
type Violation struct {
	Index int   // Position of the left value
	Left  int32 // values[Index]
	Right int32 // values[Index+1]
}

func (v Violation) String() string {
	return fmt.Sprintf("Error in position %d between element %d and %d", v.Index, v.Left, v.Right)
}

// FirstViolation scans values once and returns the first i with
// values[i] > values[i+1], or nil if values is non-decreasing.
func FirstViolation(values []int32) *Violation {
	for i := 0; i+1 < len(values); i++ {
		if values[i] > values[i+1] {
			return &Violation{Index: i, Left: values[i], Right: values[i+1]}
		}
	}
	return nil
}
