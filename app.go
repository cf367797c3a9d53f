package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"greenroom/internal/bootstrap"
	"greenroom/internal/config"
	"greenroom/internal/domain"
	"greenroom/internal/ports"
	"greenroom/internal/usecase"
)

const (
	eventPhase    = "greenroom:phase"
	eventProgress = "greenroom:progress"
	eventVoice    = "greenroom:voice"
	eventElapsed  = "greenroom:elapsed"
	eventDraft    = "greenroom:draft"
	eventVisual   = "greenroom:visual"
	eventVocal    = "greenroom:vocal"
	eventError    = "greenroom:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	interview *usecase.InterviewController
	voice     *usecase.VoiceController
	cfg       config.Config
	bootErr   error

	mu      sync.Mutex
	shownAt time.Time
}

// Status is the combined snapshot the UI polls on mount.
type Status struct {
	Phase    domain.Phase      `json:"phase"`
	Voice    domain.VoiceState `json:"voice"`
	Progress domain.Progress   `json:"progress"`
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.interview = services.Interview
	a.voice = services.Voice
	a.PhaseChanged(domain.PhaseStart, domain.ReasonAppReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.voice != nil {
		if err := a.voice.Abort(); err != nil && !errors.Is(err, usecase.ErrNoRecording) {
			a.SessionError(domain.ErrorCodeMicrophone, err.Error())
		}
	}
	if a.interview != nil {
		a.interview.Teardown()
	}
}

// BeginInterview validates the start-phase inputs and opens a session.
func (a *App) BeginInterview(kind string, questionCount int, source string) (domain.Progress, error) {
	if err := a.requireReady(); err != nil {
		return domain.Progress{}, err
	}

	progress, err := a.interview.Begin(a.ctx, ports.InterviewParams{
		Kind:           domain.QuestionCategory(kind),
		QuestionCount:  questionCount,
		SourceMaterial: source,
	})
	if err != nil {
		return domain.Progress{}, err
	}

	a.markQuestionShown()
	return progress, nil
}

// UpdateDraft stores the working answer text for the current question.
func (a *App) UpdateDraft(index int, text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.interview.UpdateDraft(index, text)
	return nil
}

// SubmitResponse records the answer and advances, or completes the
// interview on the last question. Submission is refused while a voice
// answer is still being transcribed.
func (a *App) SubmitResponse(text string) (domain.Progress, error) {
	if err := a.requireReady(); err != nil {
		return domain.Progress{}, err
	}
	if a.voice.State() == domain.VoiceStateTranscribing {
		return domain.Progress{}, errors.New("transcription in progress")
	}

	progress, err := a.interview.Submit(a.ctx, text, a.questionElapsed())
	if err != nil {
		return domain.Progress{}, err
	}

	a.markQuestionShown()
	return progress, nil
}

// StartVoiceAnswer acquires the microphone for the current question.
// Failure is surfaced but never blocks typing the answer instead.
func (a *App) StartVoiceAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.voice.Start(a.ctx); err != nil {
		a.SessionError(domain.ErrorCodeMicrophone, err.Error())
		return err
	}
	return nil
}

// StopVoiceAnswer releases the microphone, waits for analysis, and
// appends the cleaned transcript to the current draft. The vocal
// emotion reading, when present, is recorded even if transcription
// failed.
func (a *App) StopVoiceAnswer() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	result, err := a.voice.Stop(a.ctx)
	if result.Snapshot != nil {
		index := a.interview.RecordVocal(*result.Snapshot)
		a.VocalSnapshot(index, *result.Snapshot)
	}
	if err != nil {
		if errors.Is(err, usecase.ErrNoAudioCaught) {
			return a.currentDraft(), nil
		}
		if !errors.Is(err, usecase.ErrNoRecording) {
			a.SessionError(domain.ErrorCodeTranscription, err.Error())
		}
		return a.currentDraft(), err
	}

	index, combined := a.interview.AppendTranscript(result.Transcript)
	a.DraftChanged(index, combined)
	return combined, nil
}

// AbortVoiceAnswer discards an in-progress recording.
func (a *App) AbortVoiceAnswer() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.voice.Abort(); err != nil {
		if errors.Is(err, usecase.ErrNoRecording) {
			return nil
		}
		a.SessionError(domain.ErrorCodeMicrophone, err.Error())
		return err
	}
	return nil
}

// RestartInterview tears the session down and returns to the start phase.
func (a *App) RestartInterview() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.voice.Abort(); err != nil && !errors.Is(err, usecase.ErrNoRecording) {
		a.SessionError(domain.ErrorCodeMicrophone, err.Error())
	}
	return a.interview.Restart()
}

// GetStatus returns the current phase, voice state, and progress.
func (a *App) GetStatus() Status {
	if a.interview == nil {
		return Status{Phase: domain.PhaseStart, Voice: domain.VoiceStateIdle}
	}
	return Status{
		Phase:    a.interview.Phase(),
		Voice:    a.voice.State(),
		Progress: a.interview.Progress(),
	}
}

// GetResults returns the final session record once the interview is over.
func (a *App) GetResults() (domain.Results, error) {
	if err := a.requireReady(); err != nil {
		return domain.Results{}, err
	}
	return a.interview.Results()
}

// CopyTranscript places text on the system clipboard.
func (a *App) CopyTranscript(text string) error {
	if a.ctx == nil {
		return fmt.Errorf("application is not initialized")
	}
	return runtime.ClipboardSetText(a.ctx, text)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"analyzerURL":   a.cfg.Services.AnalyzerURL,
		"audioURL":      a.cfg.Services.AudioURL,
		"questionURL":   a.cfg.Services.QuestionURL,
		"rulesFile":     a.cfg.Rules.Path,
		"audioInput":    a.cfg.Audio.InputDevice,
		"videoInput":    a.cfg.Video.InputDevice,
		"questionCount": strconv.Itoa(a.cfg.Session.DefaultQuestionCount),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.interview == nil || a.voice == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) markQuestionShown() {
	a.mu.Lock()
	a.shownAt = time.Now()
	a.mu.Unlock()
}

func (a *App) questionElapsed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shownAt.IsZero() {
		return 0
	}
	return int(time.Since(a.shownAt).Seconds())
}

func (a *App) currentDraft() string {
	progress := a.interview.Progress()
	return a.interview.Draft(progress.QuestionIndex)
}

// PhaseChanged emits interview lifecycle updates to the frontend.
func (a *App) PhaseChanged(phase domain.Phase, reason domain.SessionReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPhase, map[string]string{
		"phase":   string(phase),
		"reason":  string(reason),
		"message": reasonMessage(reason),
	})
}

// ProgressChanged emits the question counter and completion percent.
func (a *App) ProgressChanged(progress domain.Progress) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, progress)
}

// VoiceStateChanged emits per-answer recording lifecycle updates.
func (a *App) VoiceStateChanged(state domain.VoiceState, reason domain.SessionReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventVoice, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": reasonMessage(reason),
	})
}

// RecordingElapsed emits the running recording timer, once per second.
func (a *App) RecordingElapsed(seconds int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventElapsed, map[string]int{"seconds": seconds})
}

// DraftChanged emits the merged draft after a transcript lands.
func (a *App) DraftChanged(index int, text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventDraft, map[string]any{
		"index": index,
		"text":  text,
	})
}

// VisualSample emits one classified camera frame result.
func (a *App) VisualSample(index int, sample domain.VisualEmotionSample) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventVisual, map[string]any{
		"index":  index,
		"sample": sample,
	})
}

// VocalSnapshot emits the vocal emotion reading for one answer.
func (a *App) VocalSnapshot(index int, snapshot domain.VocalEmotionSnapshot) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventVocal, map[string]any{
		"index":    index,
		"snapshot": snapshot,
	})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func reasonMessage(reason domain.SessionReason) string {
	switch reason {
	case domain.ReasonAppReady:
		return "Ready"
	case domain.ReasonInterviewStarted:
		return "Interview started"
	case domain.ReasonQuestionAdvanced:
		return "Next question"
	case domain.ReasonInterviewCompleted:
		return "Interview complete"
	case domain.ReasonInterviewRestarted:
		return "Interview restarted"
	case domain.ReasonRecordingStarted:
		return "Recording"
	case domain.ReasonTranscribing:
		return "Recording stopped. Transcribing..."
	case domain.ReasonTranscriptReady:
		return "Transcript added to your answer"
	case domain.ReasonRecordingDiscarded:
		return "Recording discarded"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeQuestions:
		return "Could not generate interview questions"
	case domain.ErrorCodeCamera:
		return "Camera unavailable; continuing without emotion tracking"
	case domain.ErrorCodeMicrophone:
		return "Microphone issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeSubmission:
		return "Could not submit results"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
