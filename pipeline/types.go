// Package pipeline implements the concurrent batching engine: a
// feature-extraction producer, a pool of inference workers, and a
// result collector that restores input order across the asynchronous
// fan-out.
package pipeline

import (
	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/features"
)

// BatchItem is one input accumulated into a [Batch]: its position in the
// original input sequence, its path (for logging/reporting), and its
// extracted features.
type BatchItem struct {
	Order    int
	Path     string
	Features features.Vector
}

// Batch is a unit of work for an inference worker: an ordered list of
// items, built by the producer and consumed whole by exactly one worker.
// A batch is indivisible on error: a runtime failure marks
// every item in it as errored.
type Batch struct {
	Items []BatchItem
}

// OrderedResponse is a single input's result, tagged with its position in
// the original input sequence so the collector can restore order.
type OrderedResponse struct {
	Order int
	Path  string
	Type  content.FileType
	Err   error
}
