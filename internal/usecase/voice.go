package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"greenroom/internal/audio"
	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

var (
	ErrNoRecording   = errors.New("no active voice recording")
	ErrNoAudioCaught = errors.New("no audio captured")
)

// VoiceConfig controls per-answer voice capture.
type VoiceConfig struct {
	Audio     ports.AudioConfig
	ChunkSize int
}

// VoiceResult is returned once a stopped recording has been analyzed.
// Snapshot may be present even when transcription failed; the two
// requests have independent failure boundaries.
type VoiceResult struct {
	Transcript     string
	Snapshot       *domain.VocalEmotionSnapshot
	ElapsedSeconds int
}

// VoiceController owns the microphone for the duration of one answer.
// The device is never held across question boundaries: Stop releases it
// synchronously, strictly before any network request is issued.
type VoiceController struct {
	capture  ports.AudioCapture
	analyzer ports.AudioAnalyzer
	rules    ports.TranscriptRules
	events   ports.EventSink
	cfg      VoiceConfig
	log      *logrus.Logger

	mu           sync.Mutex
	current      *voiceRecording
	transcribing bool
}

type voiceRecording struct {
	cancel   func()
	session  ports.AudioSession
	started  time.Time
	pcm      *clipBuffer
	pumpDone chan struct{}
	tickStop chan struct{}
}

func NewVoiceController(
	capture ports.AudioCapture,
	analyzer ports.AudioAnalyzer,
	rules ports.TranscriptRules,
	events ports.EventSink,
	cfg VoiceConfig,
	log *logrus.Logger,
) *VoiceController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if log == nil {
		log = logrus.New()
	}
	return &VoiceController{
		capture:  capture,
		analyzer: analyzer,
		rules:    rules,
		events:   events,
		cfg:      cfg,
		log:      log,
	}
}

// Start acquires the microphone and begins buffering audio. Starting
// over an active recording discards the previous one.
func (c *VoiceController) Start(ctx context.Context) error {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()
	if previous != nil {
		c.discard(previous)
	}

	recordCtx, cancel := context.WithCancel(ctx)
	session, err := c.capture.Start(recordCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		return fmt.Errorf("acquire microphone: %w", err)
	}

	rec := &voiceRecording{
		cancel:   cancel,
		session:  session,
		started:  time.Now(),
		pcm:      &clipBuffer{},
		pumpDone: make(chan struct{}),
		tickStop: make(chan struct{}),
	}

	c.mu.Lock()
	c.current = rec
	c.mu.Unlock()

	go pumpClip(session, rec.pcm, c.cfg.ChunkSize, c.log, rec.pumpDone)
	go c.tickElapsed(rec)

	c.events.VoiceStateChanged(domain.VoiceStateRecording, domain.ReasonRecordingStarted)
	return nil
}

// Stop halts buffering, releases the microphone immediately, and then
// dispatches the clip as two concurrent requests: transcription and
// vocal emotion. A failed emotion call degrades silently; a failed
// transcription is returned as the error, with any snapshot still
// attached to the result.
func (c *VoiceController) Stop(ctx context.Context) (VoiceResult, error) {
	rec, err := c.take()
	if err != nil {
		return VoiceResult{}, err
	}

	// Device release first. Nothing below touches the microphone.
	stopErr := rec.session.Stop()
	close(rec.tickStop)
	<-rec.pumpDone
	rec.cancel()
	if stopErr != nil {
		c.log.WithError(stopErr).Warn("microphone did not stop cleanly")
	}

	elapsed := int(time.Since(rec.started).Seconds())
	pcm := rec.pcm.Bytes()
	if len(pcm) == 0 {
		c.events.VoiceStateChanged(domain.VoiceStateIdle, domain.ReasonRecordingDiscarded)
		return VoiceResult{}, ErrNoAudioCaught
	}

	c.setTranscribing(true)
	defer c.setTranscribing(false)
	c.events.VoiceStateChanged(domain.VoiceStateTranscribing, domain.ReasonTranscribing)
	clip := audio.WrapWAV(pcm, c.cfg.Audio.SampleRate, c.cfg.Audio.Channels)

	var (
		wg            sync.WaitGroup
		transcript    domain.Transcript
		transcriptErr error
		snapshot      *domain.VocalEmotionSnapshot
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		transcript, transcriptErr = c.analyzer.Transcribe(ctx, clip)
	}()
	go func() {
		defer wg.Done()
		snap, err := c.analyzer.AnalyzeAudio(ctx, clip)
		if err != nil {
			// Silent degradation: no vocal reading for this question,
			// text entry stays usable.
			c.log.WithError(err).Debug("vocal emotion analysis failed")
			return
		}
		snapshot = snap
	}()
	wg.Wait()

	result := VoiceResult{Snapshot: snapshot, ElapsedSeconds: elapsed}
	if transcriptErr != nil {
		c.events.VoiceStateChanged(domain.VoiceStateIdle, domain.ReasonRecordingDiscarded)
		return result, fmt.Errorf("transcription failed: %w", transcriptErr)
	}

	result.Transcript = c.tidy(pickTranscript(transcript))
	c.events.VoiceStateChanged(domain.VoiceStateIdle, domain.ReasonTranscriptReady)
	return result, nil
}

// Abort discards an in-progress recording without any network call.
func (c *VoiceController) Abort() error {
	rec, err := c.take()
	if err != nil {
		return err
	}
	c.discard(rec)
	c.events.VoiceStateChanged(domain.VoiceStateIdle, domain.ReasonRecordingDiscarded)
	return nil
}

// State reports the recording lifecycle state.
func (c *VoiceController) State() domain.VoiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcribing {
		return domain.VoiceStateTranscribing
	}
	if c.current == nil {
		return domain.VoiceStateIdle
	}
	return domain.VoiceStateRecording
}

func (c *VoiceController) setTranscribing(v bool) {
	c.mu.Lock()
	c.transcribing = v
	c.mu.Unlock()
}

func (c *VoiceController) take() (*voiceRecording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNoRecording
	}
	rec := c.current
	c.current = nil
	return rec, nil
}

func (c *VoiceController) discard(rec *voiceRecording) {
	_ = rec.session.Stop()
	close(rec.tickStop)
	<-rec.pumpDone
	rec.cancel()
}

func (c *VoiceController) tickElapsed(rec *voiceRecording) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rec.tickStop:
			return
		case <-ticker.C:
			c.events.RecordingElapsed(int(time.Since(rec.started).Seconds()))
		}
	}
}

func (c *VoiceController) tidy(text string) string {
	if c.rules == nil {
		return text
	}
	tidied, err := c.rules.Apply(text)
	if err != nil {
		c.log.WithError(err).Warn("transcript rules failed, using raw text")
		return text
	}
	return tidied
}

// pickTranscript prefers the service's cleaned variant.
func pickTranscript(t domain.Transcript) string {
	if t.Cleaned != "" {
		return t.Cleaned
	}
	return t.Raw
}

// clipBuffer is a mutex-guarded PCM accumulator shared between the pump
// goroutine and Stop.
type clipBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *clipBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
}

func (b *clipBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

func pumpClip(session ports.AudioSession, buf *clipBuffer, chunkSize int, log *logrus.Logger, done chan struct{}) {
	defer close(done)
	chunk := make([]byte, chunkSize)
	for {
		n, err := session.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				// Reads error out once Stop closes the pipe; anything
				// else is still not worth failing the answer over.
				log.WithError(err).Debug("microphone read ended")
			}
			return
		}
	}
}
