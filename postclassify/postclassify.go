// Package postclassify turns a raw model score vector into an
// [content.InferredType]: argmax, per-label threshold, and overwrite map.
package postclassify

import (
	"fmt"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/content"
	"github.com/filetype-ai/magika/magikaerr"
)

// Classify turns a single score row into a final label: argmax, then
// per-label threshold, then overwrite map.
//
// Tie-breaking for argmax: "best" is only replaced
// by a strictly greater score, so the earliest index among equal maxima
// wins. This is stable with respect to input order and is the documented,
// recommended choice.
func Classify(cat *catalog.Catalog, scores []float32) (content.InferredType, error) {
	if len(scores) != cat.Len() {
		return content.InferredType{}, &magikaerr.Error{
			Op:      "postclassify.Classify",
			Kind:    magikaerr.ErrRuntime,
			Message: fmt.Sprintf("score vector length %d, want %d", len(scores), cat.Len()),
		}
	}

	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}

	raw := content.ContentType(best)
	score := scores[best]
	ow := cat.Overwrite(raw)
	th := cat.Threshold(raw)

	switch {
	case score < th:
		final := cat.Unknown
		if cat.TypeInfo(raw).IsText {
			final = cat.Txt
		}
		return content.InferredType{Inferred: raw, Final: final, Reason: content.ReasonLowConfidence, Score: score}, nil
	case ow != raw:
		return content.InferredType{Inferred: raw, Final: ow, Reason: content.ReasonOverwriteMap, Score: score}, nil
	default:
		return content.InferredType{Inferred: raw, Final: raw, Reason: content.ReasonNone, Score: score}, nil
	}
}
