// Command captureagent is the isolated camera process. The host spawns
// one per interview session; it owns the camera device exclusively,
// classifies frames against the analyzer service, and reports results
// over the callback websocket. It never touches the host process state:
// killing it is always safe and always releases the camera.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"greenroom/internal/capture"
	"greenroom/internal/classifier"
)

type agentFlags struct {
	callback    string
	analyzerURL string
	intervalMS  int
	ffmpeg      string
	videoFormat string
	videoDevice string
	frameSize   string
	fps         int
	logLevel    string
}

func main() {
	flags := agentFlags{}

	root := &cobra.Command{
		Use:           "greenroom-agent",
		Short:         "Isolated camera capture and emotion classification loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	root.Flags().StringVar(&flags.callback, "callback", "", "host callback websocket URL (required)")
	root.Flags().StringVar(&flags.analyzerURL, "analyzer-url", "", "emotion analyzer base URL (required)")
	root.Flags().IntVar(&flags.intervalMS, "interval-ms", 500, "capture interval in milliseconds")
	root.Flags().StringVar(&flags.ffmpeg, "ffmpeg", "ffmpeg", "ffmpeg command")
	root.Flags().StringVar(&flags.videoFormat, "video-format", "v4l2", "camera input format")
	root.Flags().StringVar(&flags.videoDevice, "video-device", "/dev/video0", "camera input device")
	root.Flags().StringVar(&flags.frameSize, "frame-size", "640x480", "capture frame size")
	root.Flags().IntVar(&flags.fps, "fps", 4, "camera frames per second")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level")
	_ = root.MarkFlagRequired("callback")
	_ = root.MarkFlagRequired("analyzer-url")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags agentFlags) error {
	log := logrus.New()
	if parsed, err := logrus.ParseLevel(flags.logLevel); err == nil {
		log.SetLevel(parsed)
	}

	sender, token, err := capture.DialHost(ctx, flags.callback)
	if err != nil {
		return fmt.Errorf("dial host callback: %w", err)
	}
	defer sender.Close()

	frames, err := capture.OpenCamera(ctx, capture.VideoConfig{
		FFmpegCommand: flags.ffmpeg,
		InputFormat:   flags.videoFormat,
		InputDevice:   flags.videoDevice,
		FrameSize:     flags.frameSize,
		FramesPerSec:  flags.fps,
	})
	if err != nil {
		capture.ReportCaptureError(sender, token, err.Error())
		return fmt.Errorf("open camera: %w", err)
	}
	defer frames.Close()

	client := classifier.NewClient(classifier.Config{
		AnalyzerBaseURL: flags.analyzerURL,
	})

	return capture.RunAgentLoop(ctx, capture.AgentConfig{
		Token:      token,
		Interval:   time.Duration(flags.intervalMS) * time.Millisecond,
		Frames:     frames,
		Classifier: client,
		Sender:     sender,
		Log:        log,
	})
}
