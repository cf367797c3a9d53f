package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

var (
	ErrNoSession       = errors.New("no active interview session")
	ErrSessionActive   = errors.New("an interview session is already active")
	ErrSourceTooShort  = errors.New("source material is too short")
	ErrEmptyResponse   = errors.New("response text is empty")
	ErrNotInResults    = errors.New("interview has not completed")
	ErrAlreadyComplete = errors.New("interview already completed")
)

// Config controls interview session behavior.
type Config struct {
	MinSourceChars       int
	DefaultQuestionCount int
	MaxQuestionCount     int
	TeardownGrace        time.Duration
	SummaryTimeout       time.Duration
	HandoffTimeout       time.Duration
}

// InterviewController drives the session state machine:
// start -> session -> results, with restart as the only backward edge.
// It owns the one active interviewSession and the ordering guarantee
// that capture teardown is signalled before the results phase is
// entered.
type InterviewController struct {
	questions  ports.QuestionSource
	capture    ports.CaptureContextFactory
	summarizer ports.EmotionSummarizer
	handoff    ports.ResultsSink
	aggregator *EmotionAggregator
	events     ports.EventSink
	cfg        Config
	log        *logrus.Logger

	mu         sync.Mutex
	phase      domain.Phase
	session    *interviewSession
	drafts     map[int]string
	beginning  bool
	completing bool
	results    *domain.Results
}

func NewInterviewController(
	questions ports.QuestionSource,
	capture ports.CaptureContextFactory,
	summarizer ports.EmotionSummarizer,
	handoff ports.ResultsSink,
	aggregator *EmotionAggregator,
	events ports.EventSink,
	cfg Config,
	log *logrus.Logger,
) *InterviewController {
	if cfg.MinSourceChars <= 0 {
		cfg.MinSourceChars = 80
	}
	if cfg.DefaultQuestionCount <= 0 {
		cfg.DefaultQuestionCount = 5
	}
	if cfg.MaxQuestionCount <= 0 {
		cfg.MaxQuestionCount = 20
	}
	if cfg.TeardownGrace <= 0 {
		cfg.TeardownGrace = 750 * time.Millisecond
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 10 * time.Second
	}
	if cfg.HandoffTimeout <= 0 {
		cfg.HandoffTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &InterviewController{
		questions:  questions,
		capture:    capture,
		summarizer: summarizer,
		handoff:    handoff,
		aggregator: aggregator,
		events:     events,
		cfg:        cfg,
		log:        log,
		phase:      domain.PhaseStart,
		drafts:     make(map[int]string),
	}
}

// Begin validates the confirmed parameters, fetches the question
// sequence, starts the capture context, and transitions start->session.
// Missing source material fails fast with no transition. Camera denial
// is non-fatal: the session still starts, text-only.
func (c *InterviewController) Begin(ctx context.Context, params ports.InterviewParams) (domain.Progress, error) {
	c.mu.Lock()
	if c.phase != domain.PhaseStart || c.beginning {
		c.mu.Unlock()
		return domain.Progress{}, ErrSessionActive
	}
	c.beginning = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.beginning = false
		c.mu.Unlock()
	}()

	if len(strings.TrimSpace(params.SourceMaterial)) < c.cfg.MinSourceChars {
		return domain.Progress{}, fmt.Errorf("%w: need at least %d characters", ErrSourceTooShort, c.cfg.MinSourceChars)
	}
	if params.QuestionCount <= 0 {
		params.QuestionCount = c.cfg.DefaultQuestionCount
	}
	if params.QuestionCount > c.cfg.MaxQuestionCount {
		params.QuestionCount = c.cfg.MaxQuestionCount
	}
	if params.Kind == "" {
		params.Kind = domain.QuestionTechnical
	}

	questions, err := c.questions.GenerateQuestions(ctx, params)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeQuestions, err.Error())
		return domain.Progress{}, fmt.Errorf("generate questions: %w", err)
	}

	session := &interviewSession{
		id:        uuid.NewString(),
		questions: questions,
		responses: make(map[int]domain.Response),
		msgsDone:  make(chan struct{}),
	}

	captureCtx, err := c.capture.Start(ctx)
	if err != nil {
		// Text-only mode: the interview proceeds without visual signal.
		c.log.WithError(err).Warn("capture context unavailable")
		c.events.SessionError(domain.ErrorCodeCamera, err.Error())
		close(session.msgsDone)
	} else {
		session.capture = captureCtx
		go c.consumeContextMessages(session)
	}

	c.aggregator.Reset()

	c.mu.Lock()
	c.session = session
	c.phase = domain.PhaseSession
	c.drafts = make(map[int]string)
	c.results = nil
	progress := session.progress(c.phase)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"session_id": session.id,
		"questions":  len(questions),
		"kind":       params.Kind,
	}).Info("interview session started")

	c.events.PhaseChanged(domain.PhaseSession, domain.ReasonInterviewStarted)
	c.events.ProgressChanged(progress)
	return progress, nil
}

// consumeContextMessages relays capture-context signal for the lifetime
// of one session. Visual samples are attributed through the
// aggregator's live index cell at arrival time.
func (c *InterviewController) consumeContextMessages(session *interviewSession) {
	defer close(session.msgsDone)
	for msg := range session.capture.Messages() {
		switch msg.Kind {
		case domain.ContextMessageEmotion:
			if msg.Emotion == nil {
				continue
			}
			index := c.aggregator.RecordVisual(*msg.Emotion)
			c.events.VisualSample(index, *msg.Emotion)
		case domain.ContextMessageCaptureError:
			// Reported one level up and no further; never retried.
			c.events.SessionError(domain.ErrorCodeCamera, msg.Error)
		}
	}
}

// Submit records the response for the current question. Non-terminal
// submissions advance the index by exactly one; the terminal submission
// runs the completion sequence and flips the phase to results only
// after capture teardown has been signalled.
func (c *InterviewController) Submit(ctx context.Context, text string, elapsedSeconds int) (domain.Progress, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Progress{}, ErrEmptyResponse
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	c.mu.Lock()
	if c.phase != domain.PhaseSession || c.session == nil {
		c.mu.Unlock()
		return domain.Progress{}, ErrNoSession
	}
	if c.completing {
		c.mu.Unlock()
		return domain.Progress{}, ErrAlreadyComplete
	}
	session := c.session
	session.responses[session.index] = domain.Response{Text: trimmed, ElapsedSeconds: elapsedSeconds}
	delete(c.drafts, session.index)

	if !session.isLastQuestion() {
		session.index++
		c.aggregator.Advance(session.index)
		progress := session.progress(c.phase)
		c.mu.Unlock()

		c.events.ProgressChanged(progress)
		return progress, nil
	}

	c.completing = true
	c.mu.Unlock()

	c.complete(ctx, session)

	c.mu.Lock()
	if c.session != session {
		// Restarted while completing; the restart already won.
		c.mu.Unlock()
		return domain.Progress{}, ErrNoSession
	}
	c.phase = domain.PhaseResults
	progress := session.progress(c.phase)
	c.mu.Unlock()

	c.events.PhaseChanged(domain.PhaseResults, domain.ReasonInterviewCompleted)
	c.events.ProgressChanged(progress)
	return progress, nil
}

// complete runs the teardown sequence for the terminal submission:
// (1) signal the capture context to stop, waiting no longer than the
// grace delay for its acknowledgment; (2) one best-effort summary
// request, only if any visual sample exists; (3) best-effort results
// handoff. Nothing in here can prevent reaching the results phase.
func (c *InterviewController) complete(ctx context.Context, session *interviewSession) {
	if session.capture != nil {
		closed := make(chan struct{})
		go func() {
			_ = session.capture.Close()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(c.cfg.TeardownGrace):
			// Fire-and-forget past the grace delay; the process kill
			// still releases the device in the background.
		}
	}

	if c.cfg.SummaryTimeout > 0 && c.aggregator.TotalVisual() > 0 {
		summaryCtx, cancel := context.WithTimeout(ctx, c.cfg.SummaryTimeout)
		summary, err := c.summarizer.SummarizeEmotions(summaryCtx, c.aggregator.SnapshotForSummary())
		cancel()
		if err != nil {
			c.log.WithError(err).Warn("emotion summary failed")
		} else {
			session.summary = summary
		}
	}

	if c.handoff != nil {
		handoffCtx, cancel := context.WithTimeout(ctx, c.cfg.HandoffTimeout)
		if err := c.handoff.SubmitResults(handoffCtx, c.buildResults(session)); err != nil {
			c.log.WithError(err).Warn("results handoff failed")
		}
		cancel()
	}

	c.mu.Lock()
	if c.session == session {
		results := c.buildResults(session)
		c.results = &results
	}
	c.mu.Unlock()
}

func (c *InterviewController) buildResults(session *interviewSession) domain.Results {
	responses := make(map[int]domain.Response, len(session.responses))
	for i, r := range session.responses {
		responses[i] = r
	}
	return domain.Results{
		SessionID: session.id,
		Questions: session.questions,
		Responses: responses,
		Summary:   session.summary,
	}
}

// Restart discards the session unconditionally and returns to start.
// Any live capture is torn down before the phase flips.
func (c *InterviewController) Restart() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.phase = domain.PhaseStart
	c.drafts = make(map[int]string)
	c.results = nil
	c.completing = false
	c.mu.Unlock()

	if session != nil {
		if session.capture != nil {
			_ = session.capture.Close()
		}
		<-session.msgsDone
	}
	c.aggregator.Reset()

	c.events.PhaseChanged(domain.PhaseStart, domain.ReasonInterviewRestarted)
	return nil
}

// Teardown releases capture resources without changing phase; it backs
// the shutdown path so device release never depends on reaching the
// terminal question.
func (c *InterviewController) Teardown() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil || session.capture == nil {
		return
	}
	_ = session.capture.Close()
	<-session.msgsDone
}

// UpdateDraft stores the working answer text for a question index.
func (c *InterviewController) UpdateDraft(index int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drafts[index] = text
}

// Draft returns the stored working text for a question index.
func (c *InterviewController) Draft(index int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drafts[index]
}

// AppendTranscript appends transcribed text to the current question's
// draft, preserving anything already typed, and reports the index and
// combined text.
func (c *InterviewController) AppendTranscript(text string) (int, string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	index := 0
	if c.session != nil {
		index = c.session.index
	}
	if text == "" {
		return index, c.drafts[index]
	}
	existing := strings.TrimSpace(c.drafts[index])
	if existing == "" {
		c.drafts[index] = text
	} else {
		c.drafts[index] = existing + " " + text
	}
	return index, c.drafts[index]
}

// RecordVocal files a vocal snapshot under the current question.
func (c *InterviewController) RecordVocal(snapshot domain.VocalEmotionSnapshot) int {
	return c.aggregator.RecordVocal(snapshot)
}

// VocalFor exposes the live vocal snapshot for display.
func (c *InterviewController) VocalFor(index int) (domain.VocalEmotionSnapshot, bool) {
	return c.aggregator.VocalFor(index)
}

// Phase returns the current lifecycle phase.
func (c *InterviewController) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Progress summarizes the active session for the surface.
func (c *InterviewController) Progress() domain.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.Progress{Phase: c.phase}
	}
	return c.session.progress(c.phase)
}

// Results returns the completed interview. Only valid in the results
// phase.
func (c *InterviewController) Results() (domain.Results, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseResults || c.results == nil {
		return domain.Results{}, ErrNotInResults
	}
	return *c.results, nil
}
