package capture

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

// MessageSender delivers one-way context messages to the host.
type MessageSender interface {
	Send(msg domain.ContextMessage) error
	Close() error
}

// DialHost connects the agent back to the host callback. The origin
// token rides in the callback query string; it is echoed in every
// message so the host can verify provenance.
func DialHost(ctx context.Context, callbackURL string) (MessageSender, string, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, "", err
	}
	token := parsed.Query().Get("token")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, callbackURL, nil)
	if err != nil {
		return nil, "", err
	}
	return &wsSender{conn: conn}, token, nil
}

type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) Send(msg domain.ContextMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *wsSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// AgentConfig wires one capture-and-classify loop.
type AgentConfig struct {
	Token      string
	Interval   time.Duration
	Frames     FrameSource
	Classifier ports.FrameClassifier
	Sender     MessageSender
	Log        *logrus.Logger
}

// RunAgentLoop drives the capture cycle until the context is
// cancelled. Each tick takes the newest frame and classifies it unless
// a previous classification is still outstanding: the awaiting flag is
// the backpressure mechanism, there is never a second request in
// flight. Classification failures and no-face results stay silent; the
// loop simply retries on the next tick.
func RunAgentLoop(ctx context.Context, cfg AgentConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	results := make(chan *domain.VisualEmotionSample, 1)
	awaiting := false

	for {
		select {
		case <-ctx.Done():
			if awaiting {
				// Let the in-flight classification unwind; its result
				// is discarded.
				<-results
			}
			return nil

		case <-ticker.C:
			if awaiting {
				continue
			}
			frame, ok := cfg.Frames.Latest()
			if !ok {
				continue
			}
			awaiting = true
			go func(frame []byte) {
				sample, err := cfg.Classifier.ClassifyFrame(ctx, frame)
				if err != nil {
					log.WithError(err).Debug("frame classification failed")
					sample = nil
				}
				results <- sample
			}(frame)

		case sample := <-results:
			awaiting = false
			if sample == nil {
				continue
			}
			err := cfg.Sender.Send(domain.ContextMessage{
				Kind:    domain.ContextMessageEmotion,
				Token:   cfg.Token,
				Emotion: sample,
			})
			if err != nil {
				return err
			}
		}
	}
}

// ReportCaptureError sends a single capture-error notice upward; used
// when the device cannot be acquired at all.
func ReportCaptureError(sender MessageSender, token, detail string) {
	_ = sender.Send(domain.ContextMessage{
		Kind:  domain.ContextMessageCaptureError,
		Token: token,
		Error: detail,
	})
}
