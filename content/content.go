// Package content defines the outcome types produced for a single
// identified input: the dense label space, static per-label metadata, and
// the tagged result variants a caller receives.
package content

import "fmt"

// ContentType is a stable, dense index into the label catalog.
//
// Indices are dense from 0, so the zero value is the first label of
// whichever catalog it came from; a ContentType only has meaning relative to
// that catalog. Callers should treat ContentType as opaque and look it up
// through a [github.com/filetype-ai/magika/catalog.Catalog].
type ContentType int

// TypeInfo is the static metadata bundle for one content type, as loaded
// from the label configuration source.
type TypeInfo struct {
	Label       string   // as keyed in the label configuration source
	MimeType    string   `json:"mime_type"`
	Group       string   `json:"group"`
	Description string   `json:"description"`
	Extensions  []string `json:"extensions"`
	IsText      bool     `json:"is_text"`
}

// String implements [fmt.Stringer].
func (t *TypeInfo) String() string {
	return t.MimeType
}

// OverwriteReason records why a model-inferred label was replaced by a
// different final type.
type OverwriteReason int

// Defined overwrite reasons.
const (
	// ReasonNone means the final type equals the inferred type.
	ReasonNone OverwriteReason = iota
	// ReasonLowConfidence means the best score fell below the label's
	// threshold; the final type fell back to Txt or Unknown.
	ReasonLowConfidence
	// ReasonOverwriteMap means the catalog's overwrite map redirected the
	// label to a different, canonical one.
	ReasonOverwriteMap
)

// String implements [fmt.Stringer].
func (r OverwriteReason) String() string {
	switch r {
	case ReasonLowConfidence:
		return "low confidence"
	case ReasonOverwriteMap:
		return "overwrite map"
	default:
		return "none"
	}
}

// InferredType is a model-originated result for one input.
type InferredType struct {
	// Inferred is the raw argmax label before any overwrite logic runs.
	Inferred ContentType
	// Final is the label actually reported. Equal to Inferred when Reason
	// is ReasonNone.
	Final ContentType
	// Reason explains why Final differs from Inferred, if it does.
	Reason OverwriteReason
	// Score is the model's confidence in Inferred, in [0, 1].
	Score float32
}

// Changed reports whether the overwrite/threshold logic altered the
// reported type.
func (t InferredType) Changed() bool {
	return t.Reason != ReasonNone
}

// FileTypeKind tags the variant held by a [FileType].
type FileTypeKind int

// Defined FileType variants.
const (
	KindDirectory FileTypeKind = iota
	KindSymlink
	KindInferred
	KindRuled
)

// String implements [fmt.Stringer].
func (k FileTypeKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindInferred:
		return "inferred"
	case KindRuled:
		return "ruled"
	default:
		return "unknown"
	}
}

// FileType is the outcome for one input: a tagged union over the four
// variants a caller can observe.
//
// Exactly one of the accessor methods below is meaningful, selected by Kind.
type FileType struct {
	Kind FileTypeKind

	inferred InferredType

	// ruled is populated when Kind == KindRuled.
	ruled     ContentType
	overruled bool
}

// Directory constructs the Directory variant.
func Directory() FileType { return FileType{Kind: KindDirectory} }

// Symlink constructs the Symlink variant.
func Symlink() FileType { return FileType{Kind: KindSymlink} }

// Inferred constructs the Inferred variant.
func Inferred(t InferredType) FileType {
	return FileType{Kind: KindInferred, inferred: t}
}

// Ruled constructs the Ruled variant. overruled marks a ruling that took
// precedence over what the model would otherwise have reported (reserved
// for driver-level use; the core never sets it).
func Ruled(ct ContentType, overruled bool) FileType {
	return FileType{Kind: KindRuled, ruled: ct, overruled: overruled}
}

// InferredType returns the held value and true if Kind == KindInferred.
func (f FileType) InferredType() (InferredType, bool) {
	if f.Kind != KindInferred {
		return InferredType{}, false
	}
	return f.inferred, true
}

// Ruling returns the held content type, whether it was an overrule, and
// true if Kind == KindRuled.
func (f FileType) Ruling() (ct ContentType, overruled bool, ok bool) {
	if f.Kind != KindRuled {
		return 0, false, false
	}
	return f.ruled, f.overruled, true
}

// Score returns the reported confidence for this result. A Ruled outcome
// always reports 1.0; Directory and Symlink report 0.
func (f FileType) Score() float32 {
	switch f.Kind {
	case KindInferred:
		return f.inferred.Score
	case KindRuled:
		return 1.0
	default:
		return 0
	}
}

// Label returns the final ContentType this result should be reported as,
// and whether one applies (Directory/Symlink do not have one).
func (f FileType) Label() (ContentType, bool) {
	switch f.Kind {
	case KindInferred:
		return f.inferred.Final, true
	case KindRuled:
		return f.ruled, true
	default:
		return 0, false
	}
}

// String implements [fmt.Stringer] for debugging; production rendering
// belongs to the CLI driver.
func (f FileType) String() string {
	switch f.Kind {
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	case KindInferred:
		return fmt.Sprintf("inferred(%d, score=%.3f)", f.inferred.Final, f.inferred.Score)
	case KindRuled:
		return fmt.Sprintf("ruled(%d, overruled=%t)", f.ruled, f.overruled)
	default:
		return "invalid"
	}
}
