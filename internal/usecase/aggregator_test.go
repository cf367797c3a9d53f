package usecase

import (
	"testing"

	"greenroom/internal/domain"
)

func TestAggregatorFilesUnderLiveIndex(t *testing.T) {
	t.Parallel()

	agg := NewEmotionAggregator()

	if got := agg.RecordVisual(domain.VisualEmotionSample{Dominant: "happy"}); got != 0 {
		t.Fatalf("expected index 0, got %d", got)
	}

	agg.Advance(1)

	// A classification dispatched during question 0 but arriving after
	// the boundary files under the question the candidate is on now.
	if got := agg.RecordVisual(domain.VisualEmotionSample{Dominant: "neutral"}); got != 1 {
		t.Fatalf("expected arrival-time index 1, got %d", got)
	}

	if samples := agg.VisualFor(0); len(samples) != 1 || samples[0].Dominant != "happy" {
		t.Fatalf("unexpected samples for question 0: %+v", samples)
	}
	if samples := agg.VisualFor(1); len(samples) != 1 || samples[0].Dominant != "neutral" {
		t.Fatalf("unexpected samples for question 1: %+v", samples)
	}
}

func TestAggregatorVocalOverwriteAndAdvanceClears(t *testing.T) {
	t.Parallel()

	agg := NewEmotionAggregator()

	agg.RecordVocal(domain.VocalEmotionSnapshot{Dominant: "calm"})
	agg.RecordVocal(domain.VocalEmotionSnapshot{Dominant: "excited"})

	snapshot, ok := agg.VocalFor(0)
	if !ok || snapshot.Dominant != "excited" {
		t.Fatalf("expected re-recording to overwrite, got %+v ok=%v", snapshot, ok)
	}

	agg.Advance(1)
	if _, ok := agg.VocalFor(1); ok {
		t.Fatalf("new question must start with an empty vocal slot")
	}

	// The previous question's snapshot is untouched.
	if snapshot, ok := agg.VocalFor(0); !ok || snapshot.Dominant != "excited" {
		t.Fatalf("previous vocal slot lost: %+v ok=%v", snapshot, ok)
	}
}

func TestAggregatorSummaryFlattensInArrivalOrder(t *testing.T) {
	t.Parallel()

	agg := NewEmotionAggregator()

	agg.RecordVisual(domain.VisualEmotionSample{Dominant: "a"})
	agg.Advance(1)
	agg.RecordVisual(domain.VisualEmotionSample{Dominant: "b"})
	agg.RecordVisual(domain.VisualEmotionSample{Dominant: "c"})

	if got := agg.TotalVisual(); got != 3 {
		t.Fatalf("expected 3 samples, got %d", got)
	}

	flat := agg.SnapshotForSummary()
	if len(flat) != 3 {
		t.Fatalf("expected 3 flattened samples, got %d", len(flat))
	}
	want := []string{"a", "b", "c"}
	for i, sample := range flat {
		if sample.Dominant != want[i] {
			t.Fatalf("unexpected order at %d: %q", i, sample.Dominant)
		}
	}
}

func TestAggregatorReset(t *testing.T) {
	t.Parallel()

	agg := NewEmotionAggregator()
	agg.Advance(2)
	agg.RecordVisual(domain.VisualEmotionSample{Dominant: "happy"})
	agg.RecordVocal(domain.VocalEmotionSnapshot{Dominant: "calm"})

	agg.Reset()

	if got := agg.TotalVisual(); got != 0 {
		t.Fatalf("expected empty aggregator, got %d samples", got)
	}
	if _, ok := agg.VocalFor(2); ok {
		t.Fatalf("expected vocal slots cleared")
	}
	if got := agg.RecordVisual(domain.VisualEmotionSample{}); got != 0 {
		t.Fatalf("expected live index back at 0, got %d", got)
	}
}
