package usecase

import (
	"context"
	"errors"
	"io"
	"sync"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

type fakeQuestionSource struct {
	questions []domain.Question
	err       error

	mu     sync.Mutex
	params []ports.InterviewParams
}

func (f *fakeQuestionSource) GenerateQuestions(_ context.Context, params ports.InterviewParams) ([]domain.Question, error) {
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

type fakeCaptureFactory struct {
	contexts []*fakeCaptureContext
	err      error
	calls    int
}

func (f *fakeCaptureFactory) Start(_ context.Context) (ports.CaptureContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.contexts) {
		return nil, errors.New("no capture context configured")
	}
	cc := f.contexts[f.calls]
	f.calls++
	return cc, nil
}

type fakeCaptureContext struct {
	token    string
	messages chan domain.ContextMessage

	mu         sync.Mutex
	closed     bool
	closeCalls int
}

func newFakeCaptureContext() *fakeCaptureContext {
	return &fakeCaptureContext{
		token:    "test-token",
		messages: make(chan domain.ContextMessage, 16),
	}
}

func (f *fakeCaptureContext) Messages() <-chan domain.ContextMessage { return f.messages }

func (f *fakeCaptureContext) Token() string { return f.token }

func (f *fakeCaptureContext) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *fakeCaptureContext) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeSummarizer struct {
	summary *domain.EmotionSummary
	err     error

	mu      sync.Mutex
	calls   int
	history []domain.VisualEmotionSample
}

func (f *fakeSummarizer) SummarizeEmotions(_ context.Context, history []domain.VisualEmotionSample) (*domain.EmotionSummary, error) {
	f.mu.Lock()
	f.calls++
	f.history = history
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResultsSink struct {
	err error

	mu      sync.Mutex
	calls   int
	results domain.Results
}

func (f *fakeResultsSink) SubmitResults(_ context.Context, results domain.Results) error {
	f.mu.Lock()
	f.calls++
	f.results = results
	f.mu.Unlock()
	return f.err
}

type phaseEvent struct {
	phase  domain.Phase
	reason domain.SessionReason
}

type voiceEvent struct {
	state  domain.VoiceState
	reason domain.SessionReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type fakeEventSink struct {
	mu sync.Mutex

	phases     []phaseEvent
	progresses []domain.Progress
	voices     []voiceEvent
	elapsed    []int
	drafts     []string
	visuals    []int
	vocals     []int
	errors     []errEvent

	onPhase func(domain.Phase, domain.SessionReason)
}

func (f *fakeEventSink) PhaseChanged(phase domain.Phase, reason domain.SessionReason) {
	f.mu.Lock()
	f.phases = append(f.phases, phaseEvent{phase: phase, reason: reason})
	hook := f.onPhase
	f.mu.Unlock()
	if hook != nil {
		hook(phase, reason)
	}
}

func (f *fakeEventSink) ProgressChanged(progress domain.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progresses = append(f.progresses, progress)
}

func (f *fakeEventSink) VoiceStateChanged(state domain.VoiceState, reason domain.SessionReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voices = append(f.voices, voiceEvent{state: state, reason: reason})
}

func (f *fakeEventSink) RecordingElapsed(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elapsed = append(f.elapsed, seconds)
}

func (f *fakeEventSink) DraftChanged(_ int, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, text)
}

func (f *fakeEventSink) VisualSample(index int, _ domain.VisualEmotionSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visuals = append(f.visuals, index)
}

func (f *fakeEventSink) VocalSnapshot(index int, _ domain.VocalEmotionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vocals = append(f.vocals, index)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotPhases() []phaseEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]phaseEvent, len(f.phases))
	copy(out, f.phases)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) snapshotVoices() []voiceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]voiceEvent, len(f.voices))
	copy(out, f.voices)
	return out
}

type fakeAudioCapture struct {
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls > 0
}

// fakeAnalyzer records whether the microphone session had been stopped
// by the time each request went out.
type fakeAnalyzer struct {
	transcript    domain.Transcript
	transcriptErr error
	snapshot      *domain.VocalEmotionSnapshot
	snapshotErr   error

	session *fakeAudioSession

	mu                  sync.Mutex
	transcribeCalls     int
	analyzeCalls        int
	micHeldAtTranscribe bool
	micHeldAtAnalyze    bool
	lastClip            []byte
}

func (f *fakeAnalyzer) Transcribe(_ context.Context, wav []byte) (domain.Transcript, error) {
	f.mu.Lock()
	f.transcribeCalls++
	f.lastClip = wav
	if f.session != nil && !f.session.stopped() {
		f.micHeldAtTranscribe = true
	}
	f.mu.Unlock()
	if f.transcriptErr != nil {
		return domain.Transcript{}, f.transcriptErr
	}
	return f.transcript, nil
}

func (f *fakeAnalyzer) AnalyzeAudio(_ context.Context, _ []byte) (*domain.VocalEmotionSnapshot, error) {
	f.mu.Lock()
	f.analyzeCalls++
	if f.session != nil && !f.session.stopped() {
		f.micHeldAtAnalyze = true
	}
	f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.snapshot, nil
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}
