package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/features"
	"github.com/filetype-ai/magika/session"
)

// Worker receives batches and runs them through a [session.Session],
// preserving within-batch order when it pushes one [OrderedResponse] per
// input to resultCh. Workers may process batches concurrently with each
// other; responses from different batches may interleave arbitrarily on
// resultCh.
type Worker struct {
	Session *session.Session
}

// Run processes batches from batchCh until it's closed, or ctx is
// canceled. A runtime failure on a batch marks every item in that batch as
// errored rather than aborting the worker: the batch is
// indivisible, which keeps ordering intact and preserves one response per
// input.
func (w *Worker) Run(ctx context.Context, batchCh <-chan Batch, resultCh chan<- OrderedResponse) error {
	for {
		select {
		case b, ok := <-batchCh:
			if !ok {
				return nil
			}
			if err := w.process(ctx, b, resultCh); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Worker) process(ctx context.Context, b Batch, resultCh chan<- OrderedResponse) error {
	vs := make([]features.Vector, len(b.Items))
	for i, it := range b.Items {
		vs[i] = it.Features
	}

	types, err := w.Session.IdentifyFeaturesBatch(ctx, vs)
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(b.Items)).Msg("batch inference failed")
		for _, it := range b.Items {
			if sendErr := sendResult(ctx, resultCh, OrderedResponse{Order: it.Order, Path: it.Path, Err: err}); sendErr != nil {
				return sendErr
			}
		}
		return nil
	}

	for i, it := range b.Items {
		if sendErr := sendResult(ctx, resultCh, OrderedResponse{Order: it.Order, Path: it.Path, Type: types[i]}); sendErr != nil {
			return sendErr
		}
	}
	return nil
}

func sendResult(ctx context.Context, ch chan<- OrderedResponse, resp OrderedResponse) error {
	select {
	case ch <- resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
