package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/session"
)

// Options configures a pipeline run.
type Options struct {
	// NumWorkers is the size of the inference worker pool. Defaults to 1
	// if <= 0.
	NumWorkers int
	// BatchSize is the number of features accumulated per [Batch] before
	// it's sent for inference. Defaults to 1 if <= 0.
	BatchSize int
	// Recursive expands directories encountered while walking roots.
	Recursive bool
	// Dereference follows symlinks instead of reporting them directly.
	Dereference bool
}

func (o Options) normalize() Options {
	if o.NumWorkers <= 0 {
		o.NumWorkers = 1
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	return o
}

// Run drives the full batching pipeline over roots: a feature-extraction
// producer, a pool of inference workers, and a result collector that
// restores input order, invoking emit once per input strictly in
// increasing order index.
//
// Run blocks until every input has been resolved (or ctx is canceled). The
// first error from any stage cancels the rest and is returned; a per-item
// failure is never one of these errors (it's delivered to emit as an
// OrderedResponse with a non-nil Err instead).
func Run(ctx context.Context, cat *catalog.Catalog, sess *session.Session, roots []string, opts Options, emit func(OrderedResponse)) error {
	opts = opts.normalize()
	reqID := uuid.NewString()
	rlog := log.With().Str("request", reqID).Logger()
	rlog.Info().Int("roots", len(roots)).Int("workers", opts.NumWorkers).Int("batch_size", opts.BatchSize).Msg("pipeline starting")

	batchCh := make(chan Batch, opts.NumWorkers)
	resultCh := make(chan OrderedResponse, opts.NumWorkers*opts.BatchSize)

	g, gctx := errgroup.WithContext(ctx)

	prod := &Producer{Catalog: cat, BatchSize: opts.BatchSize, Recursive: opts.Recursive, Dereference: opts.Dereference}
	g.Go(func() error {
		return prod.Run(gctx, roots, batchCh, resultCh)
	})
	for i := 0; i < opts.NumWorkers; i++ {
		w := &Worker{Session: sess}
		g.Go(func() error {
			return w.Run(gctx, batchCh, resultCh)
		})
	}

	// Once the producer and every worker have finished (successfully or
	// not), there can be no more sends on resultCh: close it so the
	// collector can detect end-of-input.
	closeErr := make(chan error, 1)
	go func() {
		err := g.Wait()
		close(resultCh)
		closeErr <- err
	}()

	collectDone := make(chan error, 1)
	go func() {
		collectDone <- collect(resultCh, emit)
	}()

	pipelineErr := <-closeErr
	collectErr := <-collectDone

	switch {
	case pipelineErr != nil:
		rlog.Error().Err(pipelineErr).Msg("pipeline stage failed")
		return fmt.Errorf("pipeline: %w", pipelineErr)
	case collectErr != nil:
		rlog.Error().Err(collectErr).Msg("collector invariant violated")
		return fmt.Errorf("pipeline: collector: %w", collectErr)
	}
	rlog.Info().Msg("pipeline finished")
	return nil
}

// collect drains resultCh, reordering responses into strictly increasing
// order and invoking emit for each as soon as it can be delivered. It
// returns once resultCh closes, asserting the reorder buffer is empty at
// that point.
func collect(resultCh <-chan OrderedResponse, emit func(OrderedResponse)) error {
	ro := NewReorder()
	for resp := range resultCh {
		drained, err := ro.Insert(resp)
		if err != nil {
			return err
		}
		for _, d := range drained {
			emit(d)
		}
	}
	if !ro.Empty() {
		return fmt.Errorf("collector finished with %d responses never delivered", ro.Pending())
	}
	return nil
}
