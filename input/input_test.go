package input

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/filetype-ai/magika/magikaerr"
)

func TestBytesReadAt(t *testing.T) {
	b := Bytes("hello world")
	if b.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", b.Len())
	}
	buf := make([]byte, 5)
	if _, err := b.ReadAt(buf, 6); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "world" {
		t.Fatalf("got %q, want %q", buf, "world")
	}
}

func TestBytesReadAtShortReadPastEnd(t *testing.T) {
	b := Bytes("abc")
	buf := make([]byte, 5)
	_, err := b.ReadAt(buf, 0)
	var merr *magikaerr.Error
	if !errors.As(err, &merr) || merr.Kind != magikaerr.ErrShortRead {
		t.Fatalf("got %v, want a magikaerr.ErrShortRead", err)
	}
}

func TestBytesReadAtOffsetOutOfRange(t *testing.T) {
	b := Bytes("abc")
	_, err := b.ReadAt(make([]byte, 1), -1)
	if err == nil {
		t.Fatal("expected an error for a negative offset")
	}
	_, err = b.ReadAt(make([]byte, 1), 10)
	if err == nil {
		t.Fatal("expected an error for an offset beyond the end")
	}
}

func TestBytesReadAtZeroLengthAtEnd(t *testing.T) {
	b := Bytes("abc")
	n, err := b.ReadAt(nil, 3)
	if err != nil || n != 0 {
		t.Fatalf("got (%d, %v), want (0, nil): reading zero bytes exactly at EOF is valid", n, err)
	}
}

func TestFileReadAt(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	if err := os.WriteFile(p, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rf, err := NewFile(f)
	if err != nil {
		t.Fatal(err)
	}
	if rf.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", rf.Len())
	}

	buf := make([]byte, 4)
	if _, err := rf.ReadAt(buf, 3); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "3456" {
		t.Fatalf("got %q, want %q", buf, "3456")
	}
}

func TestFileReadAtShortRead(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	if err := os.WriteFile(p, []byte("01234"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rf, err := NewFile(f)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 10)
	_, err = rf.ReadAt(buf, 0)
	var merr *magikaerr.Error
	if !errors.As(err, &merr) || merr.Kind != magikaerr.ErrShortRead {
		t.Fatalf("got %v, want a magikaerr.ErrShortRead", err)
	}
}

func TestFileReadAtConcurrentCallersDoNotRace(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rf, err := NewFile(f)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		off := int64(g * 16)
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 16)
			if _, err := rf.ReadAt(buf, off); err != nil {
				t.Error(err)
				return
			}
			for i, b := range buf {
				if b != data[int(off)+i] {
					t.Errorf("at offset %d: got %d, want %d", off+int64(i), b, data[int(off)+i])
				}
			}
		}()
	}
	wg.Wait()
}

func TestFromReaderAtDelegates(t *testing.T) {
	r := FromReaderAt(Bytes("hello"))
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}
	buf := make([]byte, 5)
	n, err := r.ReadAtContext(context.Background(), buf, 0)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("got (%d, %q, %v)", n, buf, err)
	}
}

// slowReaderAt blocks until released, letting the test exercise cancellation.
type slowReaderAt struct {
	release chan struct{}
}

func (s *slowReaderAt) Len() int64 { return 1 }
func (s *slowReaderAt) ReadAt(buf []byte, off int64) (int, error) {
	<-s.release
	return copy(buf, []byte{0}), nil
}

func TestFromReaderAtHonorsContextCancellation(t *testing.T) {
	r := FromReaderAt(&slowReaderAt{release: make(chan struct{})})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.ReadAtContext(ctx, make([]byte, 1), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestSerializedSerializesConcurrentReads(t *testing.T) {
	s := NewSerialized(Bytes("0123456789"))
	if s.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", s.Len())
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			buf := make([]byte, 1)
			if _, err := s.ReadAt(buf, off%10); err != nil {
				t.Error(err)
			}
		}(int64(i))
	}
	wg.Wait()
}
