package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// VideoConfig describes how the camera should be captured.
type VideoConfig struct {
	FFmpegCommand string
	InputFormat   string
	InputDevice   string
	FrameSize     string
	FramesPerSec  int
}

// FrameSource hands out the most recent camera frame. Implementations
// own the underlying device; Close releases it.
type FrameSource interface {
	Latest() ([]byte, bool)
	Close() error
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// OpenCamera acquires the camera through a long-lived ffmpeg MJPEG pipe
// and keeps only the newest decoded frame. The device stays held until
// Close kills the process.
func OpenCamera(ctx context.Context, cfg VideoConfig) (FrameSource, error) {
	if cfg.FFmpegCommand == "" {
		cfg.FFmpegCommand = "ffmpeg"
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "v4l2"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "/dev/video0"
	}
	if cfg.FrameSize == "" {
		cfg.FrameSize = "640x480"
	}
	if cfg.FramesPerSec <= 0 {
		cfg.FramesPerSec = 4
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-video_size", cfg.FrameSize,
		"-i", cfg.InputDevice,
		"-vf", "fps=" + strconv.Itoa(cfg.FramesPerSec),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}

	cmd := exec.CommandContext(ctx, cfg.FFmpegCommand, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A denied or busy device exits immediately; surface that as an
	// acquisition failure rather than an empty stream.
	select {
	case err := <-waitErr:
		detail := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("camera unavailable: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("camera unavailable: ffmpeg exited at startup: %s", detail)
	case <-time.After(250 * time.Millisecond):
	}

	stream := &cameraStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}
	go stream.readFrames()
	return stream, nil
}

type cameraStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	mu     sync.Mutex
	latest []byte

	closeOnce sync.Once
	closeErr  error
}

func (s *cameraStream) Latest() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, false
	}
	return s.latest, true
}

// Close interrupts the camera process and waits for it to exit. The
// device is free once Close returns; there is no softer stop.
func (s *cameraStream) Close() error {
	s.closeOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.closeErr = ignoreExit(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.closeErr = ignoreExit(err)
			}
		}

		_ = s.stdout.Close()

		if s.closeErr != nil && s.stderr.Len() > 0 {
			s.closeErr = fmt.Errorf("%w: %s", s.closeErr, bytes.TrimSpace(s.stderr.Bytes()))
		}
	})
	return s.closeErr
}

func (s *cameraStream) readFrames() {
	buf := make([]byte, 32*1024)
	var pending []byte
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				frame, rest, ok := nextJPEGFrame(pending)
				if !ok {
					pending = rest
					break
				}
				pending = rest
				s.mu.Lock()
				s.latest = frame
				s.mu.Unlock()
			}
		}
		if err != nil {
			return
		}
	}
}

// nextJPEGFrame splits one complete SOI..EOI frame off the front of the
// buffer. When no complete frame is present it returns the trimmed
// remainder to keep.
func nextJPEGFrame(data []byte) (frame, rest []byte, ok bool) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		// Keep the final byte in case it is half of a split marker.
		if len(data) > 1 {
			return nil, data[len(data)-1:], false
		}
		return nil, data, false
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		return nil, data[start:], false
	}
	stop := start + 2 + end + 2
	frame = append([]byte(nil), data[start:stop]...)
	return frame, data[stop:], true
}

func ignoreExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
