package usecase

import (
	"context"
	"errors"
	"testing"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

func newVoiceController(session *fakeAudioSession, analyzer *fakeAnalyzer, rules ports.TranscriptRules, events *fakeEventSink) *VoiceController {
	return NewVoiceController(
		&fakeAudioCapture{sessions: []ports.AudioSession{session}},
		analyzer,
		rules,
		events,
		VoiceConfig{ChunkSize: 512},
		nil,
	)
}

func TestVoiceStartStopSuccess(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("pcm-data")}}
	analyzer := &fakeAnalyzer{
		transcript: domain.Transcript{Raw: "um hello", Cleaned: "hello"},
		snapshot:   &domain.VocalEmotionSnapshot{Dominant: "calm", Confidence: 75},
		session:    session,
	}
	events := &fakeEventSink{}
	controller := newVoiceController(session, analyzer, &fakeRules{}, events)

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := controller.State(); got != domain.VoiceStateRecording {
		t.Fatalf("expected recording state, got %s", got)
	}

	result, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if result.Transcript != "hello" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
	if result.Snapshot == nil || result.Snapshot.Dominant != "calm" {
		t.Fatalf("unexpected snapshot: %+v", result.Snapshot)
	}

	if analyzer.micHeldAtTranscribe || analyzer.micHeldAtAnalyze {
		t.Fatalf("microphone must be released before any network request")
	}
	if len(analyzer.lastClip) < 44 {
		t.Fatalf("expected WAV-wrapped clip, got %d bytes", len(analyzer.lastClip))
	}
	if string(analyzer.lastClip[:4]) != "RIFF" {
		t.Fatalf("clip is not WAV-wrapped: %q", analyzer.lastClip[:4])
	}

	if got := controller.State(); got != domain.VoiceStateIdle {
		t.Fatalf("expected idle state after stop, got %s", got)
	}

	voices := events.snapshotVoices()
	if len(voices) < 3 {
		t.Fatalf("expected recording/transcribing/idle transitions, got %+v", voices)
	}
	if voices[0].reason != domain.ReasonRecordingStarted {
		t.Fatalf("unexpected first voice reason: %s", voices[0].reason)
	}
	if voices[1].reason != domain.ReasonTranscribing {
		t.Fatalf("unexpected second voice reason: %s", voices[1].reason)
	}
	if voices[len(voices)-1].reason != domain.ReasonTranscriptReady {
		t.Fatalf("unexpected final voice reason: %s", voices[len(voices)-1].reason)
	}
}

func TestVoiceStopEmotionFailureIsSilent(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}}
	analyzer := &fakeAnalyzer{
		transcript:  domain.Transcript{Cleaned: "answer text"},
		snapshotErr: errors.New("audio service down"),
		session:     session,
	}
	events := &fakeEventSink{}
	controller := newVoiceController(session, analyzer, &fakeRules{}, events)

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("emotion failure must not fail the stop: %v", err)
	}
	if result.Transcript != "answer text" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
	if result.Snapshot != nil {
		t.Fatalf("expected no snapshot, got %+v", result.Snapshot)
	}
	if errs := events.snapshotErrors(); len(errs) != 0 {
		t.Fatalf("emotion failure must stay silent, got %+v", errs)
	}
}

func TestVoiceStopTranscriptionFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}}
	analyzer := &fakeAnalyzer{
		transcriptErr: errors.New("transcriber down"),
		snapshot:      &domain.VocalEmotionSnapshot{Dominant: "tense"},
		session:       session,
	}
	events := &fakeEventSink{}
	controller := newVoiceController(session, analyzer, &fakeRules{}, events)

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := controller.Stop(context.Background())
	if err == nil {
		t.Fatalf("expected transcription error")
	}
	if result.Snapshot == nil || result.Snapshot.Dominant != "tense" {
		t.Fatalf("snapshot must survive a transcription failure: %+v", result.Snapshot)
	}
	if !session.stopped() {
		t.Fatalf("microphone must be released even on failure")
	}
}

func TestVoiceStopNoAudioCaptured(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{} // EOF immediately, zero bytes
	analyzer := &fakeAnalyzer{session: session}
	controller := newVoiceController(session, analyzer, &fakeRules{}, &fakeEventSink{})

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, err := controller.Stop(context.Background())
	if !errors.Is(err, ErrNoAudioCaught) {
		t.Fatalf("expected ErrNoAudioCaught, got %v", err)
	}
	if analyzer.transcribeCalls != 0 || analyzer.analyzeCalls != 0 {
		t.Fatalf("empty clip must not trigger network requests")
	}
}

func TestVoiceStopWithoutStart(t *testing.T) {
	t.Parallel()

	controller := newVoiceController(&fakeAudioSession{}, &fakeAnalyzer{}, &fakeRules{}, &fakeEventSink{})
	_, err := controller.Stop(context.Background())
	if !errors.Is(err, ErrNoRecording) {
		t.Fatalf("expected ErrNoRecording, got %v", err)
	}
}

func TestVoiceAbortDiscardsWithoutRequests(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}}
	analyzer := &fakeAnalyzer{session: session}
	controller := newVoiceController(session, analyzer, &fakeRules{}, &fakeEventSink{})

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := controller.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if !session.stopped() {
		t.Fatalf("abort must release the microphone")
	}
	if analyzer.transcribeCalls != 0 || analyzer.analyzeCalls != 0 {
		t.Fatalf("abort must not issue network requests")
	}
	if got := controller.State(); got != domain.VoiceStateIdle {
		t.Fatalf("expected idle after abort, got %s", got)
	}
}

func TestVoiceStartOverActiveRecordingDiscardsPrevious(t *testing.T) {
	t.Parallel()

	first := &fakeAudioSession{chunks: [][]byte{[]byte("one")}}
	second := &fakeAudioSession{chunks: [][]byte{[]byte("two")}}
	analyzer := &fakeAnalyzer{
		transcript: domain.Transcript{Cleaned: "second take"},
		session:    second,
	}
	controller := NewVoiceController(
		&fakeAudioCapture{sessions: []ports.AudioSession{first, second}},
		analyzer,
		&fakeRules{},
		&fakeEventSink{},
		VoiceConfig{ChunkSize: 512},
		nil,
	)

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !first.stopped() {
		t.Fatalf("previous recording must be released on re-start")
	}

	result, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.Transcript != "second take" {
		t.Fatalf("unexpected transcript: %q", result.Transcript)
	}
}

func TestVoiceMicrophoneDenied(t *testing.T) {
	t.Parallel()

	controller := NewVoiceController(
		&fakeAudioCapture{err: errors.New("device busy")},
		&fakeAnalyzer{},
		&fakeRules{},
		&fakeEventSink{},
		VoiceConfig{},
		nil,
	)

	if err := controller.Start(context.Background()); err == nil {
		t.Fatalf("expected microphone acquisition error")
	}
	if got := controller.State(); got != domain.VoiceStateIdle {
		t.Fatalf("expected idle after denial, got %s", got)
	}
}

func TestVoiceRulesFailureFallsBackToRawText(t *testing.T) {
	t.Parallel()

	session := &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}}
	analyzer := &fakeAnalyzer{
		transcript: domain.Transcript{Cleaned: "hello world"},
		session:    session,
	}
	controller := newVoiceController(session, analyzer, &fakeRules{err: errors.New("bad rule")}, &fakeEventSink{})

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	result, err := controller.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if result.Transcript != "hello world" {
		t.Fatalf("expected untransformed text on rules failure, got %q", result.Transcript)
	}
}
