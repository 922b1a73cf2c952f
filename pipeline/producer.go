package pipeline

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/features"
	"github.com/filetype-ai/magika/input"
	"github.com/filetype-ai/magika/magikaerr"
)

// StdinPath is the sentinel path denoting standard input, matching the CLI
// contract.
const StdinPath = "-"

// Producer walks the configured roots, assigning each input a
// monotonically increasing order index, and either resolves it directly
// (symlink, directory, a short-circuit ruling such as an empty input, or a
// stat/open/read error) or accumulates its extracted features into batches
// for the worker pool. Standard input is read whole and then handled like
// any other content.
type Producer struct {
	Catalog     *catalog.Catalog
	BatchSize   int
	Recursive   bool
	Dereference bool

	stdinUsed bool
}

// Run drains roots (processed left to right, with directories expanded
// depth-first in lexicographic child order when Recursive is set),
// emitting either OrderedResponse values for trivial outcomes directly to
// resultCh, or Batch values to batchCh once BatchSize features have
// accumulated. Any partial batch is flushed once roots are exhausted.
//
// Run closes batchCh before returning so workers can detect the end of
// input; it never closes resultCh ([Run] closes it once the producer and
// every worker have returned).
func (p *Producer) Run(ctx context.Context, roots []string, batchCh chan<- Batch, resultCh chan<- OrderedResponse) error {
	defer close(batchCh)

	order := 0
	cur := Batch{Items: make([]BatchItem, 0, p.BatchSize)}

	stack := make([]string, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	flush := func() error {
		if len(cur.Items) == 0 {
			return nil
		}
		select {
		case batchCh <- cur:
		case <-ctx.Done():
			return ctx.Err()
		}
		cur = Batch{Items: make([]BatchItem, 0, p.BatchSize)}
		return nil
	}

	send := func(resp OrderedResponse) error {
		select {
		case resultCh <- resp:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		idx := order
		order++

		if path == StdinPath {
			if p.stdinUsed {
				if err := send(OrderedResponse{Order: idx, Path: path, Err: &magikaerr.Error{Op: "pipeline.Producer", Kind: magikaerr.ErrIO, Message: "stdin provided more than once"}}); err != nil {
					return err
				}
				continue
			}
			p.stdinUsed = true
			buf, err := io.ReadAll(os.Stdin)
			if err != nil {
				if err := send(OrderedResponse{Order: idx, Path: path, Err: magikaerr.NewIOError("pipeline.Producer", err)}); err != nil {
					return err
				}
				continue
			}
			if err := p.classifyOrBatch(idx, path, input.Bytes(buf), &cur, send, flush); err != nil {
				return err
			}
			continue
		}

		var fi os.FileInfo
		var statErr error
		if p.Dereference {
			fi, statErr = os.Stat(path)
		} else {
			fi, statErr = os.Lstat(path)
		}
		if statErr != nil {
			if err := send(OrderedResponse{Order: idx, Path: path, Err: magikaerr.NewIOError("pipeline.Producer", statErr)}); err != nil {
				return err
			}
			continue
		}

		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			if err := send(OrderedResponse{Order: idx, Path: path, Type: content.Symlink()}); err != nil {
				return err
			}
		case fi.IsDir():
			if err := send(OrderedResponse{Order: idx, Path: path, Type: content.Directory()}); err != nil {
				return err
			}
			if p.Recursive {
				children, err := readSortedDir(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("failed to expand directory")
					continue
				}
				for i := len(children) - 1; i >= 0; i-- {
					stack = append(stack, children[i])
				}
			}
		default:
			f, err := os.Open(path)
			if err != nil {
				if err := send(OrderedResponse{Order: idx, Path: path, Err: magikaerr.NewIOError("pipeline.Producer", err)}); err != nil {
					return err
				}
				continue
			}
			ra, err := input.NewFile(f)
			if err != nil {
				f.Close()
				if err := send(OrderedResponse{Order: idx, Path: path, Err: err}); err != nil {
					return err
				}
				continue
			}
			if err := p.classifyOrBatch(idx, path, ra, &cur, send, flush); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}

	return flush()
}

// classifyOrBatch extracts features from r; a short-circuit ruling is sent
// immediately, otherwise the item is appended to cur, flushing and
// resetting cur when it reaches the configured batch size.
func (p *Producer) classifyOrBatch(idx int, path string, r input.ReaderAt, cur *Batch, send func(OrderedResponse) error, flush func() error) error {
	res, err := features.Extract(r, p.Catalog)
	if err != nil {
		return send(OrderedResponse{Order: idx, Path: path, Err: err})
	}
	if res.IsRuled() {
		return send(OrderedResponse{Order: idx, Path: path, Type: content.Ruled(res.Ruled, false)})
	}

	cur.Items = append(cur.Items, BatchItem{Order: idx, Path: path, Features: res.Vector})
	if len(cur.Items) >= p.BatchSize {
		return flush()
	}
	return nil
}

func readSortedDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = path + string(os.PathSeparator) + n
	}
	return out, nil
}
