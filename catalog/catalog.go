// Package catalog loads the immutable label catalog and model
// configuration the inference pipeline is built from.
//
// Both are generated data: a label configuration source (mapping a label
// string to static [content.TypeInfo] metadata) and a model-config record
// (feature-extraction geometry, thresholds, and the overwrite map). This
// package turns that data into a dense, closed [Catalog] keyed by
// [content.ContentType].
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/magikaerr"
)

// Distinguished label strings used as overwrite sinks and for short-circuit
// rulings. Every model configuration is required to define these.
const (
	LabelEmpty   = "empty"
	LabelText    = "txt"
	LabelUnknown = "unknown"
)

// ProbeOffsets are the fixed byte offsets fixed-offset probes are read from,
// Each probe reads 8 bytes.
var ProbeOffsets = [4]int64{0x8000, 0x8800, 0x9000, 0x9800}

// rawConfig mirrors the wire format of the model-config record.
// Unknown fields are rejected at decode time.
type rawConfig struct {
	BegSize                   int                `json:"beg_size"`
	MidSize                   int                `json:"mid_size"`
	EndSize                   int                `json:"end_size"`
	UseInputsAtOffsets        bool               `json:"use_inputs_at_offsets"`
	MediumConfidenceThreshold float32            `json:"medium_confidence_threshold"`
	MinFileSizeForDl          int64              `json:"min_file_size_for_dl"`
	PaddingToken              int32              `json:"padding_token"`
	BlockSize                 int                `json:"block_size"`
	TargetLabelsSpace         []string           `json:"target_labels_space"`
	Thresholds                map[string]float32 `json:"thresholds"`
	OverwriteMap              map[string]string  `json:"overwrite_map"`
}

// ModelConfig is the runtime parameters of the classifier.
type ModelConfig struct {
	BegSize           int
	MidSize           int
	EndSize           int
	UseOffsetProbes   bool
	BlockSize         int
	MinFileSizeForDl  int64
	PaddingToken      int32
	MediumConfidence  float32
	ModelName         string
}

// FeaturesSize is the required length of an extracted [features.Vector]:
// beg + mid + end, plus 4 probe bands of 8 elements each when enabled.
func (c *ModelConfig) FeaturesSize() int {
	n := c.BegSize + c.MidSize + c.EndSize
	if c.UseOffsetProbes {
		n += 4 * 8
	}
	return n
}

// Catalog is the immutable, dense mapping from [content.ContentType] to its
// static metadata, plus the per-label thresholds and overwrite map,
// generated from the label configuration source and model config.
type Catalog struct {
	Config ModelConfig

	types     []content.TypeInfo
	index     map[string]content.ContentType
	threshold []float32
	overwrite []content.ContentType

	Empty   content.ContentType
	Txt     content.ContentType
	Unknown content.ContentType
}

// Len returns N, the dense label-space size.
func (c *Catalog) Len() int { return len(c.types) }

// TypeInfo returns the static metadata for ct. Panics if ct is out of range,
// which can only happen if the caller fabricates a ContentType rather than
// obtaining one through this Catalog.
func (c *Catalog) TypeInfo(ct content.ContentType) *content.TypeInfo {
	return &c.types[ct]
}

// Threshold returns the per-label confidence threshold for ct.
func (c *Catalog) Threshold(ct content.ContentType) float32 {
	return c.threshold[ct]
}

// Overwrite returns the overwrite-map target for ct. Equal to ct when the
// label is not redirected.
func (c *Catalog) Overwrite(ct content.ContentType) content.ContentType {
	return c.overwrite[ct]
}

// Lookup resolves a label string to its dense ContentType index.
func (c *Catalog) Lookup(label string) (content.ContentType, bool) {
	ct, ok := c.index[label]
	return ct, ok
}

// New builds a Catalog directly from already-decoded data, bypassing
// [Load]'s filesystem layout. Useful for embedding a generated catalog as a
// Go data table, or for constructing fixtures in tests.
//
// types, thresholds, and overwrite must all have the same length, and every
// overwrite entry must be a valid index into types; empty/txt/unknown must
// each be valid indices. New returns a [magikaerr.Error] with Kind
// [magikaerr.ErrConfig] otherwise: every label must be reachable and every
// overwrite target must resolve, or the catalog is not closed.
func New(cfg ModelConfig, types []content.TypeInfo, thresholds []float32, overwrite []content.ContentType, empty, txt, unknown content.ContentType) (*Catalog, error) {
	n := len(types)
	if len(thresholds) != n || len(overwrite) != n {
		return nil, &magikaerr.Error{Op: "catalog.New", Kind: magikaerr.ErrConfig, Message: "types, thresholds, and overwrite must have equal length"}
	}
	for i, ow := range overwrite {
		if int(ow) < 0 || int(ow) >= n {
			return nil, &magikaerr.Error{Op: "catalog.New", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("overwrite[%d] = %d out of range", i, ow)}
		}
	}
	for _, idx := range []content.ContentType{empty, txt, unknown} {
		if int(idx) < 0 || int(idx) >= n {
			return nil, &magikaerr.Error{Op: "catalog.New", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("distinguished label index %d out of range", idx)}
		}
	}

	index := make(map[string]content.ContentType, n)
	for i, ti := range types {
		index[ti.Label] = content.ContentType(i)
	}

	return &Catalog{
		Config:    cfg,
		types:     append([]content.TypeInfo(nil), types...),
		index:     index,
		threshold: append([]float32(nil), thresholds...),
		overwrite: append([]content.ContentType(nil), overwrite...),
		Empty:     empty,
		Txt:       txt,
		Unknown:   unknown,
	}, nil
}

// Load builds a Catalog from an [fs.FS] structured like the upstream
// magika repository's "assets" directory:
//
//	content_types_kb.min.json
//	models/<name>/config.min.json
//
// Unknown JSON fields are rejected; a catalog missing closure over its
// declared label space is a [magikaerr.ErrConfig] error.
func Load(sys fs.FS, name string) (*Catalog, error) {
	log.Debug().Str("model", name).Msg("loading catalog")

	kb, err := loadContentTypesKB(sys)
	if err != nil {
		return nil, err
	}
	raw, err := loadRawConfig(sys, name)
	if err != nil {
		return nil, err
	}

	return build(name, kb, raw)
}

func loadContentTypesKB(sys fs.FS) (map[string]*content.TypeInfo, error) {
	f, err := sys.Open("content_types_kb.min.json")
	if err != nil {
		return nil, magikaerr.NewIOError("catalog.Load", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	kb := make(map[string]*content.TypeInfo)

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("unexpected content_types formatting: %v", tok), Inner: err}
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Inner: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("unexpected content_types formatting: got %T, want string", tok)}
		}
		var ti content.TypeInfo
		if err := dec.Decode(&ti); err != nil {
			return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Inner: err}
		}
		ti.Label = key
		kb[key] = &ti
	}
	return kb, nil
}

func loadRawConfig(sys fs.FS, name string) (*rawConfig, error) {
	p := path.Join("models", name, "config.min.json")
	f, err := sys.Open(p)
	if err != nil {
		return nil, magikaerr.NewIOError("catalog.Load", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, magikaerr.NewIOError("catalog.Load", err)
	}
	dec := json.NewDecoder(&buf)
	dec.DisallowUnknownFields()
	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Inner: err}
	}
	return &raw, nil
}

func build(name string, kb map[string]*content.TypeInfo, raw *rawConfig) (*Catalog, error) {
	// The dense index follows the model config's declared order: the
	// model's output tensor columns are keyed by that order, not a sorted
	// one.
	labels := raw.TargetLabelsSpace

	c := &Catalog{
		Config: ModelConfig{
			BegSize:          raw.BegSize,
			MidSize:          raw.MidSize,
			EndSize:          raw.EndSize,
			UseOffsetProbes:  raw.UseInputsAtOffsets,
			BlockSize:        raw.BlockSize,
			MinFileSizeForDl: raw.MinFileSizeForDl,
			PaddingToken:     raw.PaddingToken,
			MediumConfidence: raw.MediumConfidenceThreshold,
			ModelName:        name,
		},
		types:     make([]content.TypeInfo, len(labels)),
		index:     make(map[string]content.ContentType, len(labels)),
		threshold: make([]float32, len(labels)),
		overwrite: make([]content.ContentType, len(labels)),
	}

	for i, l := range labels {
		ti, ok := kb[l]
		if !ok {
			return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("label %q has no metadata entry", l)}
		}
		c.types[i] = *ti
		c.index[l] = content.ContentType(i)

		th := raw.MediumConfidenceThreshold
		if t, ok := raw.Thresholds[l]; ok {
			th = t
		}
		c.threshold[i] = th
	}

	for i, l := range labels {
		ow := l
		if t, ok := raw.OverwriteMap[l]; ok {
			ow = t
		}
		ct, ok := c.index[ow]
		if !ok {
			return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: fmt.Sprintf("overwrite target %q for label %q not in label space", ow, l)}
		}
		c.overwrite[i] = ct
	}

	var ok bool
	if c.Empty, ok = c.index[LabelEmpty]; !ok {
		return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: "catalog missing distinguished label " + LabelEmpty}
	}
	if c.Txt, ok = c.index[LabelText]; !ok {
		return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: "catalog missing distinguished label " + LabelText}
	}
	if c.Unknown, ok = c.index[LabelUnknown]; !ok {
		return nil, &magikaerr.Error{Op: "catalog.Load", Kind: magikaerr.ErrConfig, Message: "catalog missing distinguished label " + LabelUnknown}
	}

	log.Info().Str("model", name).Int("labels", c.Len()).Msg("catalog loaded")
	return c, nil
}
