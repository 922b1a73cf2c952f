package pipeline

import (
	"fmt"

	"github.com/filetype-ai/magika/magikaerr"
)

// Reorder merges the out-of-order stream of [OrderedResponse] values
// arriving from concurrent workers back into the strictly increasing
// sequence the producer assigned.
//
// It holds a sparse map keyed by order index rather than a
// size-N-up-front slice: the number of
// in-flight responses is bounded by the pipeline's channel capacities, not
// by the total input count.
type Reorder struct {
	next    int
	pending map[int]OrderedResponse
}

// NewReorder constructs a Reorder starting at index 0.
func NewReorder() *Reorder {
	return &Reorder{pending: make(map[int]OrderedResponse)}
}

// Insert records resp and returns every response that can now be drained in
// increasing order, starting from the current expected index.
//
// It is a [magikaerr.ErrInvariant] bug for resp.Order to be less than the
// next expected index (a regression) or to already be pending (a
// duplicate); both can only happen from a bug in the producer/worker
// order-index bookkeeping.
func (r *Reorder) Insert(resp OrderedResponse) ([]OrderedResponse, error) {
	if resp.Order < r.next {
		return nil, &magikaerr.Error{Op: "pipeline.Reorder.Insert", Kind: magikaerr.ErrInvariant, Message: fmt.Sprintf("order %d precedes next expected %d", resp.Order, r.next)}
	}
	if _, dup := r.pending[resp.Order]; dup {
		return nil, &magikaerr.Error{Op: "pipeline.Reorder.Insert", Kind: magikaerr.ErrInvariant, Message: fmt.Sprintf("order %d inserted twice", resp.Order)}
	}
	r.pending[resp.Order] = resp

	var drained []OrderedResponse
	for {
		v, ok := r.pending[r.next]
		if !ok {
			break
		}
		drained = append(drained, v)
		delete(r.pending, r.next)
		r.next++
	}
	return drained, nil
}

// Empty reports whether every inserted response has been drained. The
// collector asserts this is true once its input channel closes.
func (r *Reorder) Empty() bool {
	return len(r.pending) == 0
}

// Pending returns the number of responses held back waiting for earlier
// indices, for diagnostics.
func (r *Reorder) Pending() int {
	return len(r.pending)
}
