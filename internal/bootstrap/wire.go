// Package bootstrap assembles the runtime dependency graph.
package bootstrap

import (
	"time"

	"github.com/sirupsen/logrus"

	"greenroom/internal/audio"
	"greenroom/internal/capture"
	"greenroom/internal/classifier"
	"greenroom/internal/config"
	"greenroom/internal/ports"
	"greenroom/internal/rules"
	"greenroom/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Interview *usecase.InterviewController
	Voice     *usecase.VoiceController
	Config    config.Config
	Log       *logrus.Logger
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	log := newLogger(cfg.Log.Level)

	rulesEngine, err := rules.NewEngine(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	client := classifier.NewClient(classifier.Config{
		AnalyzerBaseURL: cfg.Services.AnalyzerURL,
		AudioBaseURL:    cfg.Services.AudioURL,
		QuestionBaseURL: cfg.Services.QuestionURL,
		Timeout:         time.Duration(cfg.Services.TimeoutSeconds) * time.Second,
	})

	captureFactory := capture.NewFactory(capture.FactoryConfig{
		AgentCommand: cfg.Video.AgentCommand,
		AnalyzerURL:  cfg.Services.AnalyzerURL,
		Interval:     time.Duration(cfg.Video.IntervalMS) * time.Millisecond,
		Video: capture.VideoConfig{
			FFmpegCommand: cfg.Video.FFmpegCommand,
			InputFormat:   cfg.Video.InputFormat,
			InputDevice:   cfg.Video.InputDevice,
			FrameSize:     cfg.Video.FrameSize,
			FramesPerSec:  cfg.Video.FramesPerSec,
		},
	}, log)

	aggregator := usecase.NewEmotionAggregator()

	interview := usecase.NewInterviewController(
		client,
		captureFactory,
		client,
		client,
		aggregator,
		eventSink,
		usecase.Config{
			MinSourceChars:       cfg.Session.MinSourceChars,
			DefaultQuestionCount: cfg.Session.DefaultQuestionCount,
			MaxQuestionCount:     cfg.Session.MaxQuestionCount,
			TeardownGrace:        cfg.Session.TeardownGrace(),
			SummaryTimeout:       cfg.Session.SummaryTimeout(),
			HandoffTimeout:       cfg.Session.HandoffTimeout(),
		},
		log,
	)

	voice := usecase.NewVoiceController(
		audio.NewMicCapture(cfg.Audio.RecorderCommand),
		client,
		rulesEngine,
		eventSink,
		usecase.VoiceConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Session.AudioChunkSize,
		},
		log,
	)

	return Services{Interview: interview, Voice: voice, Config: cfg, Log: log}, nil
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
