// Package config resolves runtime configuration from an optional YAML
// file layered under environment variables. A .env file, if present, is
// loaded first. Every endpoint and knob is explicit here; components
// receive configuration at construction and keep no global state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the application.
type Config struct {
	Services ServicesConfig `yaml:"services"`
	Audio    AudioConfig    `yaml:"audio"`
	Video    VideoConfig    `yaml:"video"`
	Rules    RulesConfig    `yaml:"rules"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

type ServicesConfig struct {
	AnalyzerURL    string `yaml:"analyzer_url"`
	AudioURL       string `yaml:"audio_url"`
	QuestionURL    string `yaml:"question_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type VideoConfig struct {
	AgentCommand  string `yaml:"agent_command"`
	FFmpegCommand string `yaml:"ffmpeg_command"`
	InputFormat   string `yaml:"input_format"`
	InputDevice   string `yaml:"input_device"`
	FrameSize     string `yaml:"frame_size"`
	FramesPerSec  int    `yaml:"frames_per_sec"`
	IntervalMS    int    `yaml:"interval_ms"`
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type SessionConfig struct {
	MinSourceChars       int `yaml:"min_source_chars"`
	DefaultQuestionCount int `yaml:"default_question_count"`
	MaxQuestionCount     int `yaml:"max_question_count"`
	TeardownGraceMS      int `yaml:"teardown_grace_ms"`
	SummaryTimeoutMS     int `yaml:"summary_timeout_ms"`
	HandoffTimeoutMS     int `yaml:"handoff_timeout_ms"`
	AudioChunkSize       int `yaml:"audio_chunk_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func (s SessionConfig) TeardownGrace() time.Duration {
	return time.Duration(s.TeardownGraceMS) * time.Millisecond
}

func (s SessionConfig) SummaryTimeout() time.Duration {
	return time.Duration(s.SummaryTimeoutMS) * time.Millisecond
}

func (s SessionConfig) HandoffTimeout() time.Duration {
	return time.Duration(s.HandoffTimeoutMS) * time.Millisecond
}

// Load resolves configuration: defaults, then the YAML file (if one
// exists), then environment variables on top.
func Load() (Config, error) {
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := defaults(home)

	path := strings.TrimSpace(os.Getenv("GREENROOM_CONFIG_FILE"))
	if path == "" {
		path = firstExisting(filepath.Join(home, ".config", "greenroom", "config.yaml"))
	}
	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	clamp(&cfg)
	return cfg, nil
}

func defaults(home string) Config {
	return Config{
		Services: ServicesConfig{
			AnalyzerURL:    "http://localhost:8002",
			AudioURL:       "http://localhost:8003",
			QuestionURL:    "http://localhost:8001",
			TimeoutSeconds: 30,
		},
		Audio: AudioConfig{
			RecorderCommand: "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			SampleRate:      16000,
			Channels:        1,
		},
		Video: VideoConfig{
			AgentCommand:  "greenroom-agent",
			FFmpegCommand: "ffmpeg",
			InputFormat:   "v4l2",
			InputDevice:   "/dev/video0",
			FrameSize:     "640x480",
			FramesPerSec:  4,
			IntervalMS:    500,
		},
		Rules: RulesConfig{
			Path:           firstExisting(filepath.Join(home, ".config", "greenroom", "transcript.rules")),
			IterationLimit: 30,
		},
		Session: SessionConfig{
			MinSourceChars:       80,
			DefaultQuestionCount: 5,
			MaxQuestionCount:     20,
			TeardownGraceMS:      750,
			SummaryTimeoutMS:     10000,
			HandoffTimeoutMS:     10000,
			AudioChunkSize:       4096,
		},
		Log: LogConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	cfg.Services.AnalyzerURL = envOrDefault("GREENROOM_ANALYZER_URL", cfg.Services.AnalyzerURL)
	cfg.Services.AudioURL = envOrDefault("GREENROOM_AUDIO_URL", cfg.Services.AudioURL)
	cfg.Services.QuestionURL = envOrDefault("GREENROOM_QUESTION_URL", cfg.Services.QuestionURL)
	cfg.Services.TimeoutSeconds = envOrDefaultInt("GREENROOM_SERVICE_TIMEOUT_SECONDS", cfg.Services.TimeoutSeconds)

	cfg.Audio.RecorderCommand = envOrDefault("GREENROOM_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("GREENROOM_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("GREENROOM_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleRate = envOrDefaultInt("GREENROOM_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("GREENROOM_CHANNELS", cfg.Audio.Channels)

	cfg.Video.AgentCommand = envOrDefault("GREENROOM_AGENT_COMMAND", cfg.Video.AgentCommand)
	cfg.Video.FFmpegCommand = envOrDefault("GREENROOM_VIDEO_FFMPEG_COMMAND", cfg.Video.FFmpegCommand)
	cfg.Video.InputFormat = envOrDefault("GREENROOM_VIDEO_INPUT_FORMAT", cfg.Video.InputFormat)
	cfg.Video.InputDevice = envOrDefault("GREENROOM_VIDEO_INPUT_DEVICE", cfg.Video.InputDevice)
	cfg.Video.FrameSize = envOrDefault("GREENROOM_VIDEO_FRAME_SIZE", cfg.Video.FrameSize)
	cfg.Video.FramesPerSec = envOrDefaultInt("GREENROOM_VIDEO_FPS", cfg.Video.FramesPerSec)
	cfg.Video.IntervalMS = envOrDefaultInt("GREENROOM_CAPTURE_INTERVAL_MS", cfg.Video.IntervalMS)

	cfg.Rules.Path = envOrDefault("GREENROOM_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("GREENROOM_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	cfg.Session.MinSourceChars = envOrDefaultInt("GREENROOM_MIN_SOURCE_CHARS", cfg.Session.MinSourceChars)
	cfg.Session.DefaultQuestionCount = envOrDefaultInt("GREENROOM_DEFAULT_QUESTION_COUNT", cfg.Session.DefaultQuestionCount)
	cfg.Session.MaxQuestionCount = envOrDefaultInt("GREENROOM_MAX_QUESTION_COUNT", cfg.Session.MaxQuestionCount)
	cfg.Session.TeardownGraceMS = envOrDefaultInt("GREENROOM_TEARDOWN_GRACE_MS", cfg.Session.TeardownGraceMS)
	cfg.Session.SummaryTimeoutMS = envOrDefaultInt("GREENROOM_SUMMARY_TIMEOUT_MS", cfg.Session.SummaryTimeoutMS)
	cfg.Session.HandoffTimeoutMS = envOrDefaultInt("GREENROOM_HANDOFF_TIMEOUT_MS", cfg.Session.HandoffTimeoutMS)
	cfg.Session.AudioChunkSize = envOrDefaultInt("GREENROOM_AUDIO_CHUNK_SIZE", cfg.Session.AudioChunkSize)

	cfg.Log.Level = envOrDefault("GREENROOM_LOG_LEVEL", cfg.Log.Level)
}

func clamp(cfg *Config) {
	if cfg.Services.TimeoutSeconds <= 0 {
		cfg.Services.TimeoutSeconds = 30
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Video.IntervalMS <= 0 {
		cfg.Video.IntervalMS = 500
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.AudioChunkSize < 256 {
		cfg.Session.AudioChunkSize = 4096
	}
	if cfg.Session.MinSourceChars <= 0 {
		cfg.Session.MinSourceChars = 80
	}
	if cfg.Session.MaxQuestionCount < cfg.Session.DefaultQuestionCount {
		cfg.Session.MaxQuestionCount = cfg.Session.DefaultQuestionCount
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
