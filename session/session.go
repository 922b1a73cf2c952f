// Package session wraps a [Runtime] and a [catalog.Catalog] into the
// inference session the rest of the pipeline drives: single-item and
// batched identification, synchronous and cooperative.
package session

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/features"
	"github.com/filetype-ai/magika/input"
	"github.com/filetype-ai/magika/magikaerr"
	"github.com/filetype-ai/magika/postclassify"
)

// Session is a loaded model plus its catalog. The zero value is not usable;
// construct with [New]. Safe to share across goroutines: no method mutates
// shared state outside of the Runtime's own internal call.
type Session struct {
	cat *catalog.Catalog
	rt  Runtime
}

// New builds a Session from a catalog and a model [Runtime].
func New(cat *catalog.Catalog, rt Runtime) *Session {
	return &Session{cat: cat, rt: rt}
}

// Catalog returns the session's catalog, for callers that need label
// metadata (e.g. a CLI renderer).
func (s *Session) Catalog() *catalog.Catalog { return s.cat }

// Close releases the underlying runtime.
func (s *Session) Close() error { return s.rt.Close() }

// IdentifyFeatures runs the model on a single feature vector and applies
// post-classification.
func (s *Session) IdentifyFeatures(ctx context.Context, v features.Vector) (content.FileType, error) {
	out, err := s.IdentifyFeaturesBatch(ctx, []features.Vector{v})
	if err != nil {
		return content.FileType{}, err
	}
	return out[0], nil
}

// IdentifyFeaturesBatch runs the model over a batch of feature vectors and
// applies post-classification to each row, length-preserving and 1:1 by
// index.
func (s *Session) IdentifyFeaturesBatch(ctx context.Context, vs []features.Vector) ([]content.FileType, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	rows := make([][]int32, len(vs))
	for i, v := range vs {
		rows[i] = []int32(v)
	}
	scores, err := s.rt.Run(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("session: batch of %d: %w", len(vs), err)
	}
	out := make([]content.FileType, len(vs))
	for i, row := range scores {
		inf, err := postclassify.Classify(s.cat, row)
		if err != nil {
			return nil, err
		}
		out[i] = content.Inferred(inf)
	}
	return out, nil
}

// IdentifyContent extracts features from r and dispatches to the model, or
// returns a short-circuit ruling without running the model.
func (s *Session) IdentifyContent(ctx context.Context, r input.ReaderAt) (content.FileType, error) {
	res, err := features.Extract(r, s.cat)
	if err != nil {
		return content.FileType{}, err
	}
	if res.IsRuled() {
		return content.Ruled(res.Ruled, false), nil
	}
	return s.IdentifyFeatures(ctx, res.Vector)
}

// IdentifyFile stats and opens path, then identifies its content. It does
// not perform the symlink/directory rule dispatch; callers
// that need that should use [IdentifyPath].
func (s *Session) IdentifyFile(ctx context.Context, path string) (content.FileType, error) {
	f, err := os.Open(path)
	if err != nil {
		return content.FileType{}, magikaerr.NewIOError("session.IdentifyFile", err)
	}
	defer f.Close()

	ra, err := input.NewFile(f)
	if err != nil {
		return content.FileType{}, err
	}
	return s.IdentifyContent(ctx, ra)
}

// IdentifyPath performs the path-level rule dispatch:
// symlinks (when dereference is disabled) and directories are ruled without
// opening the file; everything else is opened and identified.
func (s *Session) IdentifyPath(ctx context.Context, path string, dereference bool) (content.FileType, error) {
	var fi os.FileInfo
	var err error
	if dereference {
		fi, err = os.Stat(path)
	} else {
		fi, err = os.Lstat(path)
	}
	if err != nil {
		return content.FileType{}, magikaerr.NewIOError("session.IdentifyPath", err)
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return content.Symlink(), nil
	case fi.IsDir():
		return content.Directory(), nil
	default:
		return s.IdentifyFile(ctx, path)
	}
}

// IdentifyContentAsync is the cooperative surface over [IdentifyContent]: it
// runs the extraction and inference on a separate goroutine so the caller's
// own goroutine can continue servicing other work (e.g. a select loop)
// while the read and model call are in flight.
func (s *Session) IdentifyContentAsync(ctx context.Context, r input.AsyncReaderAt) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		ft, err := s.identifyContentFromAsync(ctx, r)
		select {
		case out <- AsyncResult{FileType: ft, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

// AsyncResult is the result delivered on the channel returned by
// [Session.IdentifyContentAsync].
type AsyncResult struct {
	FileType content.FileType
	Err      error
}

func (s *Session) identifyContentFromAsync(ctx context.Context, r input.AsyncReaderAt) (content.FileType, error) {
	// The feature extractor's window reads are independent; issue them
	// through the async adapter sequentially (they're already tiny, fixed
	// counts) and hand the assembled bytes to the synchronous extractor via
	// a small shim.
	shim := &asyncShim{r: r, ctx: ctx}
	res, err := features.Extract(shim, s.cat)
	if err != nil {
		return content.FileType{}, err
	}
	if res.IsRuled() {
		return content.Ruled(res.Ruled, false), nil
	}
	log.Debug().Int("features", len(res.Vector)).Msg("dispatching to model")
	return s.IdentifyFeatures(ctx, res.Vector)
}

// asyncShim adapts an [input.AsyncReaderAt] back to [input.ReaderAt] for
// reuse by the (blocking-shaped) feature extractor, blocking the calling
// goroutine on each window read. This keeps the extractor single-sourced
// while still letting the outer caller suspend on the channel in
// [Session.IdentifyContentAsync].
type asyncShim struct {
	r   input.AsyncReaderAt
	ctx context.Context
}

func (a *asyncShim) Len() int64 { return a.r.Len() }

func (a *asyncShim) ReadAt(buf []byte, off int64) (int, error) {
	return a.r.ReadAtContext(a.ctx, buf, off)
}
