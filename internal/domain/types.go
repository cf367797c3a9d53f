package domain

import "time"

// Phase models the interview lifecycle. Transitions are monotonic
// (start -> session -> results); the only backward edge is an explicit
// restart that discards the session.
type Phase string

const (
	PhaseStart   Phase = "start"
	PhaseSession Phase = "session"
	PhaseResults Phase = "results"
)

// QuestionCategory classifies a generated question.
type QuestionCategory string

const (
	QuestionTechnical  QuestionCategory = "technical"
	QuestionBehavioral QuestionCategory = "behavioral"
)

// Question is immutable once generated by the question service.
type Question struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Category QuestionCategory `json:"category"`
}

// Response is the candidate's answer for one question index, created on
// submission and immutable thereafter.
type Response struct {
	Text           string `json:"text"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// VisualEmotionSample is one classified camera frame.
type VisualEmotionSample struct {
	CapturedAt time.Time          `json:"capturedAt"`
	Dominant   string             `json:"dominant"`
	Confidence float64            `json:"confidence"` // 0-100
	Scores     map[string]float64 `json:"scores"`
}

// AudioFeatures is the optional acoustic bundle returned alongside a
// vocal emotion classification. Fields are displayed only when present.
type AudioFeatures struct {
	EnergyMean      float64 `json:"energyMean,omitempty"`
	TempoBPM        float64 `json:"tempoBpm,omitempty"`
	MeanPitchHz     float64 `json:"meanPitchHz,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	ByteSize        int     `json:"byteSize,omitempty"`
}

// VocalEmotionSnapshot is one classified audio answer. At most one live
// snapshot per question; re-recording before submission overwrites it.
type VocalEmotionSnapshot struct {
	Dominant   string        `json:"dominant"`
	Confidence float64       `json:"confidence"` // 0-100
	Features   AudioFeatures `json:"features"`
}

// Transcript carries the raw and cleaned text variants of one clip.
type Transcript struct {
	Raw     string `json:"raw"`
	Cleaned string `json:"cleaned"`
}

// EmotionSummary is the session-level aggregate derived from all visual
// samples, requested at most once at completion.
type EmotionSummary struct {
	Dominant      string             `json:"dominant"`
	Distribution  map[string]float64 `json:"distribution"` // label -> percent
	DetectionRate float64            `json:"detectionRate"`
	TotalFrames   int                `json:"totalFrames"`
}

// ContextMessageKind discriminates messages from the capture agent.
type ContextMessageKind string

const (
	ContextMessageEmotion      ContextMessageKind = "emotion"
	ContextMessageCaptureError ContextMessageKind = "capture_error"
)

// ContextMessage is the single message type crossing the host/agent
// boundary. Token must match the token the host issued at spawn time;
// messages with a foreign token are dropped.
type ContextMessage struct {
	Kind    ContextMessageKind   `json:"kind"`
	Token   string               `json:"token"`
	Emotion *VisualEmotionSample `json:"emotion,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// VoiceState models the per-answer recording lifecycle.
type VoiceState string

const (
	VoiceStateIdle         VoiceState = "idle"
	VoiceStateRecording    VoiceState = "recording"
	VoiceStateTranscribing VoiceState = "transcribing"
)

// SessionReason provides a structured reason for state change events.
type SessionReason string

const (
	ReasonAppReady           SessionReason = "app_ready"
	ReasonInterviewStarted   SessionReason = "interview_started"
	ReasonQuestionAdvanced   SessionReason = "question_advanced"
	ReasonInterviewCompleted SessionReason = "interview_completed"
	ReasonInterviewRestarted SessionReason = "interview_restarted"
	ReasonRecordingStarted   SessionReason = "recording_started"
	ReasonTranscribing       SessionReason = "transcribing"
	ReasonTranscriptReady    SessionReason = "transcript_ready"
	ReasonRecordingDiscarded SessionReason = "recording_discarded"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeQuestions     ErrorCode = "questions"
	ErrorCodeCamera        ErrorCode = "camera"
	ErrorCodeMicrophone    ErrorCode = "microphone"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeSubmission    ErrorCode = "submission"
)

// Progress summarizes the active session for the surface.
type Progress struct {
	Phase          Phase  `json:"phase"`
	QuestionIndex  int    `json:"questionIndex"`
	QuestionTotal  int    `json:"questionTotal"`
	Percent        int    `json:"percent"`
	IsLastQuestion bool   `json:"isLastQuestion"`
	Question       string `json:"question,omitempty"`
}

// Results is handed to the surface once the session completes.
type Results struct {
	SessionID string           `json:"sessionId"`
	Questions []Question       `json:"questions"`
	Responses map[int]Response `json:"responses"`
	Summary   *EmotionSummary  `json:"summary,omitempty"`
}
