// Package capture implements the isolated capture context: a child
// process that exclusively owns the camera and talks to the host only
// through one-way websocket messages. Destroying the process is the
// sole mechanism that releases the device.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

// FactoryConfig describes how capture agent processes are spawned.
type FactoryConfig struct {
	AgentCommand string
	AnalyzerURL  string
	Interval     time.Duration
	Video        VideoConfig
}

// Factory spawns one isolated capture context per interview session.
type Factory struct {
	cfg FactoryConfig
	log *logrus.Logger
}

func NewFactory(cfg FactoryConfig, log *logrus.Logger) *Factory {
	if cfg.AgentCommand == "" {
		cfg.AgentCommand = "greenroom-agent"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.New()
	}
	return &Factory{cfg: cfg, log: log}
}

// Start allocates a loopback listener, mints a fresh origin token, and
// launches the agent with a callback URL carrying that token. Messages
// whose token does not match are dropped before they reach the caller.
func (f *Factory) Start(ctx context.Context) (ports.CaptureContext, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("allocate agent listener: %w", err)
	}

	hc := &hostContext{
		token:    uuid.NewString(),
		messages: make(chan domain.ContextMessage, 64),
		listener: listener,
		log:      f.log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/messages", hc.handleAgent)
	hc.server = &http.Server{Handler: mux}
	go func() { _ = hc.server.Serve(listener) }()

	callback := fmt.Sprintf("ws://%s/messages?token=%s", listener.Addr(), hc.token)
	args := []string{
		"--callback", callback,
		"--analyzer-url", f.cfg.AnalyzerURL,
		"--interval-ms", strconv.Itoa(int(f.cfg.Interval / time.Millisecond)),
	}
	if f.cfg.Video.FFmpegCommand != "" {
		args = append(args, "--ffmpeg", f.cfg.Video.FFmpegCommand)
	}
	if f.cfg.Video.InputFormat != "" {
		args = append(args, "--video-format", f.cfg.Video.InputFormat)
	}
	if f.cfg.Video.InputDevice != "" {
		args = append(args, "--video-device", f.cfg.Video.InputDevice)
	}

	cmd := exec.Command(f.cfg.AgentCommand, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = hc.server.Close()
		return nil, fmt.Errorf("start capture agent: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()
	hc.process = cmd.Process
	hc.waitErr = waitErr

	return hc, nil
}

type hostContext struct {
	token    string
	messages chan domain.ContextMessage

	listener net.Listener
	server   *http.Server
	process  *os.Process
	waitErr  <-chan error
	log      *logrus.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	sealed   bool
	handlers sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func (h *hostContext) Messages() <-chan domain.ContextMessage { return h.messages }

func (h *hostContext) Token() string { return h.token }

var upgrader = websocket.Upgrader{
	// The listener is loopback-only and the token is the trust check.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (h *hostContext) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != h.token {
		http.Error(w, "unknown capture context", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	if h.sealed || h.conn != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conn = conn
	h.handlers.Add(1)
	h.mu.Unlock()
	defer h.handlers.Done()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg domain.ContextMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.WithError(err).Debug("discarding malformed context message")
			continue
		}
		if msg.Token != h.token {
			h.log.Debug("discarding context message with foreign token")
			continue
		}
		h.emit(msg)
	}
}

func (h *hostContext) emit(msg domain.ContextMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return
	}
	select {
	case h.messages <- msg:
	default:
		// Drop rather than block: the capture side-channel must never
		// stall the question loop.
	}
}

// Close tears the context down: the agent process is interrupted (then
// killed after a bounded wait), the listener shuts, and the message
// channel closes once no handler goroutine remains. Device release is
// tied to process death and nothing else.
func (h *hostContext) Close() error {
	h.closeOnce.Do(func() {
		if h.process != nil {
			_ = h.process.Signal(os.Interrupt)
			select {
			case err := <-h.waitErr:
				h.closeErr = ignoreExit(err)
			case <-time.After(1500 * time.Millisecond):
				_ = h.process.Kill()
				err, ok := <-h.waitErr
				if ok {
					h.closeErr = ignoreExit(err)
				}
			}
		}

		h.mu.Lock()
		if h.conn != nil {
			_ = h.conn.Close()
		}
		h.mu.Unlock()
		_ = h.server.Close()

		h.handlers.Wait()

		h.mu.Lock()
		h.sealed = true
		close(h.messages)
		h.mu.Unlock()
	})
	return h.closeErr
}
