// Package features implements the file-to-feature extractor: a single pass
// over three fixed-size windows of an input (beginning, middle, end) plus
// optional fixed-offset probes, packed into a padded integer vector for the
// model, or a short-circuit ruling when no model run is warranted.
package features

import (
	"bytes"
	"unicode/utf8"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/input"
	"github.com/filetype-ai/magika/magikaerr"
)

// asciiWhitespace is the exact whitespace set stripped from the outer edges
// of the beginning/end windows: space, tab, CR, LF, FF, and VT (0x0B).
const asciiWhitespace = " \t\r\n\f\v"

// Vector is the packed integer vector fed to the model for one input. Its
// length always equals the catalog's [catalog.ModelConfig.FeaturesSize], and
// every element is in [0, 255] or equal to the padding token.
type Vector []int32

// Result is the tagged output of [Extract]: either a [Vector] to run
// through the model, or a short-circuit [content.ContentType] ruling that
// never needs one.
type Result struct {
	Vector Vector
	Ruled  content.ContentType
	ruled  bool
}

// IsRuled reports whether this Result is a short-circuit ruling rather than
// a feature vector.
func (r Result) IsRuled() bool { return r.ruled }

func ruledResult(ct content.ContentType) Result {
	return Result{Ruled: ct, ruled: true}
}

// Extract reads r through cat's model configuration and produces either a
// feature [Vector] or a short-circuit ruling.
//
// Any read error is surfaced as a [magikaerr.Error] with Kind
// [magikaerr.ErrIO]; reads past the end of the input surface as
// [magikaerr.ErrShortRead].
func Extract(r input.ReaderAt, cat *catalog.Catalog) (Result, error) {
	cfg := &cat.Config
	fileLen := r.Len()
	if fileLen == 0 {
		return ruledResult(cat.Empty), nil
	}

	block := min(int64(cfg.BlockSize), fileLen)

	first := make([]byte, block)
	if _, err := r.ReadAt(first, 0); err != nil {
		return Result{}, wrapReadErr("features.Extract", err)
	}
	last := make([]byte, block)
	if _, err := r.ReadAt(last, fileLen-block); err != nil {
		return Result{}, wrapReadErr("features.Extract", err)
	}

	beg := bytes.TrimLeft(first, asciiWhitespace)
	end := bytes.TrimRight(last, asciiWhitespace)

	midLen := min(int64(cfg.MidSize), fileLen)
	midOff := (fileLen - midLen) / 2
	mid := make([]byte, midLen)
	if midLen > 0 {
		if _, err := r.ReadAt(mid, midOff); err != nil {
			return Result{}, wrapReadErr("features.Extract", err)
		}
	}

	out := make(Vector, cfg.FeaturesSize())
	if cfg.PaddingToken != 0 {
		for i := range out {
			out[i] = cfg.PaddingToken
		}
	}

	begBand := out[:cfg.BegSize]
	midBand := out[cfg.BegSize:][:cfg.MidSize]
	endBand := out[cfg.BegSize+cfg.MidSize:][:cfg.EndSize]

	copyFeatures(begBand, beg, alignLeft)
	copyFeatures(midBand, mid, alignCenter)
	copyFeatures(endBand, end, alignRight)

	if cfg.UseOffsetProbes {
		probeStart := cfg.BegSize + cfg.MidSize + cfg.EndSize
		probeBuf := make([]byte, 8)
		for i, off := range catalog.ProbeOffsets {
			band := out[probeStart+i*8 : probeStart+i*8+8]
			if off+8 > fileLen {
				continue // stays fully padded
			}
			if _, err := r.ReadAt(probeBuf, off); err != nil {
				return Result{}, wrapReadErr("features.Extract", err)
			}
			copyFeatures(band, probeBuf, alignLeft)
		}
	}

	idx := cfg.MinFileSizeForDl - 1
	if idx >= 0 && idx < int64(len(out)) && out[idx] == cfg.PaddingToken {
		if utf8.Valid(first) {
			return ruledResult(cat.Txt), nil
		}
		return ruledResult(cat.Unknown), nil
	}

	return Result{Vector: out}, nil
}

func wrapReadErr(op string, err error) error {
	if e, ok := err.(*magikaerr.Error); ok {
		return e
	}
	return magikaerr.NewIOError(op, err)
}

// align selects where within a band a copied source window is placed.
type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

// copyFeatures implements the formal copy rule for packing a trimmed byte
// window into a fixed-size band:
//
//	L = min(len(dst), len(src))
//	dst[(len(dst)-L)*a/2 .. +L] = src[(len(src)-L)*a/2 .. +L]
//
// Integer division rounds toward zero, so for center alignment with an odd
// amount of leftover padding the copied window sits toward the earlier side
// and the extra padding element goes after it.
func copyFeatures(dst []int32, src []byte, a align) {
	l := min(len(dst), len(src))
	if l == 0 {
		return
	}
	dstStart := (len(dst) - l) * int(a) / 2
	srcStart := (len(src) - l) * int(a) / 2
	for i := 0; i < l; i++ {
		dst[dstStart+i] = int32(src[srcStart+i])
	}
}
