package ports

import (
	"context"
	"io"

	"greenroom/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live microphone capture. Stop halts buffering and
// releases the device synchronously; it is safe to call more than once.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// CaptureContext is an isolated execution scope that exclusively owns
// the camera. Messages is the only channel of communication from the
// context; it closes when the context dies. Close is the one and only
// mechanism that releases the camera device.
type CaptureContext interface {
	Messages() <-chan domain.ContextMessage
	Token() string
	Close() error
}

// CaptureContextFactory spawns isolated capture contexts.
type CaptureContextFactory interface {
	Start(ctx context.Context) (CaptureContext, error)
}

// FrameClassifier classifies one encoded camera frame. A nil sample
// with nil error means no face was found or the classifier declined;
// callers treat that as a normal, silent outcome.
type FrameClassifier interface {
	ClassifyFrame(ctx context.Context, jpeg []byte) (*domain.VisualEmotionSample, error)
}

// AudioAnalyzer covers the two independent audio operations. Neither
// retries; each failure is isolated to its own call.
type AudioAnalyzer interface {
	Transcribe(ctx context.Context, wav []byte) (domain.Transcript, error)
	AnalyzeAudio(ctx context.Context, wav []byte) (*domain.VocalEmotionSnapshot, error)
}

// EmotionSummarizer produces the session-level summary from the full
// ordered visual-sample history.
type EmotionSummarizer interface {
	SummarizeEmotions(ctx context.Context, history []domain.VisualEmotionSample) (*domain.EmotionSummary, error)
}

// InterviewParams are the confirmed inputs collected in the start phase.
type InterviewParams struct {
	Kind           domain.QuestionCategory
	QuestionCount  int
	SourceMaterial string // resume / job description text
}

// QuestionSource supplies the ordered question sequence.
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, params InterviewParams) ([]domain.Question, error)
}

// ResultsSink receives the final transcript; best effort only.
type ResultsSink interface {
	SubmitResults(ctx context.Context, results domain.Results) error
}

// TranscriptRules transforms transcripts using deterministic rules.
type TranscriptRules interface {
	Apply(text string) (string, error)
}

// EventSink emits backend state and signal to the UI.
type EventSink interface {
	PhaseChanged(phase domain.Phase, reason domain.SessionReason)
	ProgressChanged(progress domain.Progress)
	VoiceStateChanged(state domain.VoiceState, reason domain.SessionReason)
	RecordingElapsed(seconds int)
	DraftChanged(index int, text string)
	VisualSample(index int, sample domain.VisualEmotionSample)
	VocalSnapshot(index int, snapshot domain.VocalEmotionSnapshot)
	SessionError(code domain.ErrorCode, detail string)
}
