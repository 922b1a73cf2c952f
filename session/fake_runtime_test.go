package session

import (
	"context"
	"errors"
	"sync"
)

// fakeRuntime is a hand-written Runtime test double: the one interface here
// is small enough that a mock generator buys nothing over writing it out.
// scoreFor maps a row's first element to the score row to return, so tests
// can drive specific classifications deterministically.
type fakeRuntime struct {
	mu       sync.Mutex
	calls    [][][]int32
	scoreFor func(row []int32) []float32
	runErr   error
	closed   bool
}

func (f *fakeRuntime) Run(ctx context.Context, rows [][]int32) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rows)
	f.mu.Unlock()

	if f.runErr != nil {
		return nil, f.runErr
	}
	out := make([][]float32, len(rows))
	for i, row := range rows {
		out[i] = f.scoreFor(row)
	}
	return out, nil
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRuntime) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errFakeRuntime = errors.New("fake runtime failure")
