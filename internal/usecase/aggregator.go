package usecase

import (
	"sync"

	"greenroom/internal/domain"
)

type emotionChannel string

const (
	channelVisual emotionChannel = "visual"
	channelVocal  emotionChannel = "vocal"
)

// slotKey keys accumulated signal by question index and channel so the
// visual and vocal channels never collide on the same index.
type slotKey struct {
	index   int
	channel emotionChannel
}

// EmotionAggregator accumulates per-question emotion signal. It is pure
// state: no network calls, no device access. The aggregator owns the
// live question-index cell; samples are attributed to the index current
// at the moment a classification result arrives, not the index at frame
// dispatch, so results that straddle a question boundary file under the
// question the candidate is actually on.
type EmotionAggregator struct {
	mu     sync.Mutex
	index  int
	visual map[slotKey][]domain.VisualEmotionSample
	vocal  map[slotKey]domain.VocalEmotionSnapshot
	order  []int // indexes in first-sample order, for summary flattening
}

func NewEmotionAggregator() *EmotionAggregator {
	return &EmotionAggregator{
		visual: make(map[slotKey][]domain.VisualEmotionSample),
		vocal:  make(map[slotKey]domain.VocalEmotionSnapshot),
	}
}

// Advance moves the live index to a new question. The vocal slot for
// the new question starts empty; visual lists persist for the whole
// session because the summary needs the full per-question history.
func (a *EmotionAggregator) Advance(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index = index
	delete(a.vocal, slotKey{index: index, channel: channelVocal})
}

// RecordVisual appends a sample under the question index that is live
// right now and reports which index it was filed under.
func (a *EmotionAggregator) RecordVisual(sample domain.VisualEmotionSample) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := slotKey{index: a.index, channel: channelVisual}
	if len(a.visual[key]) == 0 {
		a.order = append(a.order, a.index)
	}
	a.visual[key] = append(a.visual[key], sample)
	return a.index
}

// RecordVocal overwrites the single vocal slot for the live question;
// re-recording before submission replaces the previous snapshot.
func (a *EmotionAggregator) RecordVocal(snapshot domain.VocalEmotionSnapshot) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vocal[slotKey{index: a.index, channel: channelVocal}] = snapshot
	return a.index
}

// VisualFor returns the samples filed under one question index.
func (a *EmotionAggregator) VisualFor(index int) []domain.VisualEmotionSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	samples := a.visual[slotKey{index: index, channel: channelVisual}]
	out := make([]domain.VisualEmotionSample, len(samples))
	copy(out, samples)
	return out
}

// VocalFor returns the live vocal snapshot for one question, if any.
func (a *EmotionAggregator) VocalFor(index int) (domain.VocalEmotionSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot, ok := a.vocal[slotKey{index: index, channel: channelVocal}]
	return snapshot, ok
}

// TotalVisual reports how many visual samples exist across the session.
func (a *EmotionAggregator) TotalVisual() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, samples := range a.visual {
		total += len(samples)
	}
	return total
}

// SnapshotForSummary flattens all visual lists, index by index in
// first-arrival order, preserving arrival order within each index.
func (a *EmotionAggregator) SnapshotForSummary() []domain.VisualEmotionSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.VisualEmotionSample
	for _, index := range a.order {
		out = append(out, a.visual[slotKey{index: index, channel: channelVisual}]...)
	}
	return out
}

// Reset discards everything; used on restart.
func (a *EmotionAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.index = 0
	a.visual = make(map[slotKey][]domain.VisualEmotionSample)
	a.vocal = make(map[slotKey]domain.VocalEmotionSnapshot)
	a.order = nil
}
