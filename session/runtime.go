package session

import "context"

// Runtime is the contract the inference session requires from a model
// execution backend: given a 2-D tensor of shape [batch, features] of
// 32-bit integers, produce a 2-D tensor of shape [batch, num_labels] of
// 32-bit floats. How that tensor is produced is out of scope here: any
// backend satisfying this contract can stand in for the real model.
//
// Implementations must be safe to call concurrently from multiple
// goroutines sharing one Runtime: the batching pipeline's workers all hold
// the same handle.
type Runtime interface {
	// Run executes the model over rows, a batch of equal-length feature
	// rows, and returns one score row per input, length-preserving and in
	// the same order. Run must not retain rows past return.
	Run(ctx context.Context, rows [][]int32) ([][]float32, error)

	// Close releases any resources held by the runtime.
	Close() error
}
