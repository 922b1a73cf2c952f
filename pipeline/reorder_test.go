package pipeline

import (
	"math/rand"
	"testing"

	"github.com/filetype-ai/magika/magikaerr"
)

func TestReorderDrainsInOrderArrival(t *testing.T) {
	r := NewReorder()
	for i := 0; i < 3; i++ {
		drained, err := r.Insert(OrderedResponse{Order: i})
		if err != nil {
			t.Fatal(err)
		}
		if len(drained) != 1 || drained[0].Order != i {
			t.Fatalf("inserting %d: drained = %v, want exactly [%d]", i, drained, i)
		}
	}
	if !r.Empty() {
		t.Errorf("Empty() = false, want true")
	}
}

func TestReorderHoldsBackOutOfOrderArrival(t *testing.T) {
	r := NewReorder()

	drained, err := r.Insert(OrderedResponse{Order: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(drained) != 0 {
		t.Fatalf("drained = %v, want none: index 0 hasn't arrived yet", drained)
	}
	if r.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", r.Pending())
	}

	drained, err = r.Insert(OrderedResponse{Order: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(drained) != 1 || drained[0].Order != 0 {
		t.Fatalf("drained = %v, want exactly [0]", drained)
	}

	drained, err = r.Insert(OrderedResponse{Order: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(drained) != 2 || drained[0].Order != 1 || drained[1].Order != 2 {
		t.Fatalf("drained = %v, want [1, 2]: both now-contiguous entries release together", drained)
	}
	if !r.Empty() {
		t.Error("Empty() = false, want true")
	}
}

func TestReorderRejectsRegression(t *testing.T) {
	r := NewReorder()
	if _, err := r.Insert(OrderedResponse{Order: 0}); err != nil {
		t.Fatal(err)
	}
	_, err := r.Insert(OrderedResponse{Order: 0})
	var merr *magikaerr.Error
	if err == nil {
		t.Fatal("expected an error re-inserting an already-drained index")
	}
	if !isInvariantErr(err, &merr) {
		t.Fatalf("got %v, want a magikaerr.ErrInvariant", err)
	}
}

func TestReorderRejectsDuplicatePending(t *testing.T) {
	r := NewReorder()
	if _, err := r.Insert(OrderedResponse{Order: 5}); err != nil {
		t.Fatal(err)
	}
	_, err := r.Insert(OrderedResponse{Order: 5})
	var merr *magikaerr.Error
	if err == nil || !isInvariantErr(err, &merr) {
		t.Fatalf("got %v, want a magikaerr.ErrInvariant", err)
	}
}

func isInvariantErr(err error, target **magikaerr.Error) bool {
	me, ok := err.(*magikaerr.Error)
	if !ok {
		return false
	}
	*target = me
	return me.Kind == magikaerr.ErrInvariant
}

func TestReorderRandomArrivalOrderStillDrainsSequentially(t *testing.T) {
	const n = 200
	order := rand.New(rand.NewSource(1)).Perm(n)

	r := NewReorder()
	var got []int
	for _, idx := range order {
		drained, err := r.Insert(OrderedResponse{Order: idx})
		if err != nil {
			t.Fatalf("inserting %d: %v", idx, err)
		}
		for _, d := range drained {
			got = append(got, d.Order)
		}
	}
	if len(got) != n {
		t.Fatalf("drained %d responses, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d: drain order must be strictly increasing", i, v, i)
		}
	}
}
