package blockstream

import bserrors "github.com/tamirms/blockstream/errors"

// SequentialOrder returns the identity fetch order: blocks are fetched in
// consumption order. This is the right choice when no external prefetch
// scheduler is available.
func SequentialOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// ReverseOrder returns a fetch order that reads the sequence back to front.
// Only admissible when the buffer budget covers the whole sequence; mostly
// useful for exercising the reordering machinery, since a real scheduler
// produces orders that minimize stalls for a given buffer budget.
func ReverseOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = n - 1 - i
	}
	return order
}

// validateOrder checks that order is a permutation of [0, n) and that it is
// admissible for a pool of nreadblocks buffers: consumption index i must
// appear among the first i+nreadblocks fetches. The engine issues one new
// read per consumed block, so a later position could never be reached before
// the consumer blocks waiting for index i.
func validateOrder(order []int, n, nreadblocks int) error {
	if len(order) != n {
		return bserrors.ErrInvalidFetchOrder
	}
	seen := make([]bool, n)
	for pos, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return bserrors.ErrInvalidFetchOrder
		}
		seen[idx] = true
		if pos >= idx+nreadblocks {
			return bserrors.ErrUnschedulableOrder
		}
	}
	return nil
}
