// Package input defines the positioned-read capability the feature
// extractor and inference session are built over, in both a blocking and a
// cooperative flavor.
//
// Offsets are absolute from the start of the input; reads are independent
// and non-mutating with respect to any logical cursor. Implementations
// backed by a seekable cursor serialize or shadow the cursor per call.
package input

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/filetype-ai/magika/magikaerr"
)

// ReaderAt is the blocking flavor: satisfied by an in-memory byte slice or a
// positioned-file handle. ReadAt must fill buf fully or return
// [magikaerr.ErrShortRead].
type ReaderAt interface {
	// Len reports the total size of the input.
	Len() int64
	// ReadAt fills buf fully from the given absolute offset. It returns
	// ([magikaerr.Error] with Kind [magikaerr.ErrShortRead]) if fewer bytes
	// than len(buf) are available starting at off.
	ReadAt(buf []byte, off int64) (int, error)
}

// AsyncReaderAt is the cooperative flavor: satisfied by any handle offering
// positioned reads that can suspend the calling goroutine without blocking
// an OS thread, or by wrapping a blocking [ReaderAt].
type AsyncReaderAt interface {
	Len() int64
	ReadAtContext(ctx context.Context, buf []byte, off int64) (int, error)
}

// Bytes adapts an in-memory byte slice to [ReaderAt].
type Bytes []byte

// Len implements [ReaderAt].
func (b Bytes) Len() int64 { return int64(len(b)) }

// ReadAt implements [ReaderAt].
func (b Bytes) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, &magikaerr.Error{Op: "input.Bytes.ReadAt", Kind: magikaerr.ErrShortRead, Message: "offset out of range"}
	}
	n := copy(buf, b[off:])
	if n < len(buf) {
		return n, &magikaerr.Error{Op: "input.Bytes.ReadAt", Kind: magikaerr.ErrShortRead, Message: "short read"}
	}
	return n, nil
}

// File adapts an [*os.File] to [ReaderAt].
//
// Reads are issued with [os.File.ReadAt], which is safe to call
// concurrently from multiple goroutines: the kernel-level positioned read
// does not disturb the file's logical seek cursor.
type File struct {
	f    *os.File
	size int64
}

// NewFile stats f and wraps it as a [ReaderAt].
func NewFile(f *os.File) (*File, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, magikaerr.NewIOError("input.NewFile", err)
	}
	return &File{f: f, size: fi.Size()}, nil
}

// Len implements [ReaderAt].
func (f *File) Len() int64 { return f.size }

// ReadAt implements [ReaderAt].
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	n, err := f.f.ReadAt(buf, off)
	switch {
	case err == nil:
		return n, nil
	case err == io.EOF && n == len(buf):
		return n, nil
	case err == io.EOF:
		return n, &magikaerr.Error{Op: "input.File.ReadAt", Kind: magikaerr.ErrShortRead, Inner: err}
	default:
		return n, magikaerr.NewIOError("input.File.ReadAt", err)
	}
}

// FromReaderAt wraps a blocking [ReaderAt] as an [AsyncReaderAt].
//
// Each call runs the underlying ReadAt in its own goroutine and selects on
// ctx.Done so a caller can abandon a slow read without blocking its own
// goroutine. The underlying read is not actually canceled (the stdlib
// offers no portable way to interrupt a ReadAt in flight); the goroutine is
// left to finish and its result discarded.
func FromReaderAt(r ReaderAt) AsyncReaderAt {
	return &wrapped{r: r}
}

type wrapped struct {
	r ReaderAt
}

func (w *wrapped) Len() int64 { return w.r.Len() }

type readResult struct {
	n   int
	err error
}

func (w *wrapped) ReadAtContext(ctx context.Context, buf []byte, off int64) (int, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := w.r.ReadAt(buf, off)
		ch <- readResult{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		return r.n, r.err
	}
}

// Serialized wraps a [ReaderAt] backed by a shared seekable cursor (e.g. one
// built on [io.ReaderAt] implementations that are not safe for concurrent
// use) so concurrent callers don't race on the cursor.
type Serialized struct {
	mu sync.Mutex
	r  ReaderAt
}

// NewSerialized wraps r.
func NewSerialized(r ReaderAt) *Serialized {
	return &Serialized{r: r}
}

// Len implements [ReaderAt].
func (s *Serialized) Len() int64 { return s.r.Len() }

// ReadAt implements [ReaderAt], holding an internal lock for the duration of
// the call.
func (s *Serialized) ReadAt(buf []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.ReadAt(buf, off)
}
