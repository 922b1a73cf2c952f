package postclassify

import (
	"testing"

	"github.com/filetype-ai/magika/catalog"
	"github.com/filetype-ai/magika/content"
)

func testCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	types := []content.TypeInfo{
		{Label: "empty", MimeType: "inode/x-empty"},
		{Label: "txt", MimeType: "text/plain", IsText: true},
		{Label: "unknown", MimeType: "application/octet-stream"},
		{Label: "shell", MimeType: "text/x-shellscript", IsText: true},
		{Label: "bash", MimeType: "text/x-shellscript", IsText: true}, // redirects to shell
	}
	thresholds := []float32{0.5, 0.5, 0.5, 0.6, 0.6}
	overwrite := []content.ContentType{0, 1, 2, 3, 3} // bash -> shell
	cat, err := catalog.New(catalog.ModelConfig{MediumConfidence: 0.5}, types, thresholds, overwrite, 0, 1, 2)
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	return cat
}

func TestClassifyRejectsWrongLength(t *testing.T) {
	cat := testCatalog(t)
	if _, err := Classify(cat, []float32{0.1, 0.2}); err == nil {
		t.Fatal("expected an error for a mismatched score vector length")
	}
}

func TestClassifyArgmaxTieBreaksToEarlierIndex(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.5, 0.9, 0.9, 0.1, 0.1} // txt (1) and unknown (2) tie at the max
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Inferred != 1 {
		t.Fatalf("argmax = %d, want 1 (earliest of the tied maxima)", got.Inferred)
	}
}

func TestClassifyAboveThresholdNoOverwrite(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.0, 0.9, 0.0, 0.0, 0.0}
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Final != 1 || got.Reason != content.ReasonNone {
		t.Fatalf("got %+v, want Final=1, Reason=None", got)
	}
	if got.Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", got.Score)
	}
}

func TestClassifyBelowThresholdFallsBackToTxtForTextLabels(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.0, 0.0, 0.0, 0.55, 0.0} // shell's threshold is 0.6
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reason != content.ReasonLowConfidence {
		t.Fatalf("Reason = %v, want LowConfidence", got.Reason)
	}
	if got.Final != cat.Txt {
		t.Fatalf("Final = %d, want Txt (%d): shell is a text label", got.Final, cat.Txt)
	}
}

func TestClassifyBelowThresholdFallsBackToUnknownForBinaryLabels(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.0, 0.0, 0.4, 0.0, 0.0} // unknown's own threshold is 0.5
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reason != content.ReasonLowConfidence {
		t.Fatalf("Reason = %v, want LowConfidence", got.Reason)
	}
	if got.Final != cat.Unknown {
		t.Fatalf("Final = %d, want Unknown (%d)", got.Final, cat.Unknown)
	}
}

func TestClassifyOverwriteMapRedirects(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.0, 0.0, 0.0, 0.0, 0.9} // bash argmax, above its own threshold
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Inferred != 4 {
		t.Fatalf("Inferred = %d, want 4 (bash)", got.Inferred)
	}
	if got.Reason != content.ReasonOverwriteMap {
		t.Fatalf("Reason = %v, want OverwriteMap", got.Reason)
	}
	if got.Final != 3 {
		t.Fatalf("Final = %d, want 3 (shell)", got.Final)
	}
}

func TestClassifyThresholdTakesPriorityOverOverwrite(t *testing.T) {
	cat := testCatalog(t)
	scores := []float32{0.0, 0.0, 0.0, 0.0, 0.1} // bash argmax, but below its 0.6 threshold
	got, err := Classify(cat, scores)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reason != content.ReasonLowConfidence {
		t.Fatalf("Reason = %v, want LowConfidence (threshold checked before overwrite)", got.Reason)
	}
}
