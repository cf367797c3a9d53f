// Package classifier wraps the external media analysis services. Every
// operation is a single request/response with no retry; callers decide
// whether a failure is user-visible or silently degrades.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"greenroom/internal/domain"
	"greenroom/internal/ports"
)

// Config points the client at the collaborator services. All endpoints
// are explicit construction-time configuration.
type Config struct {
	AnalyzerBaseURL string // frame emotion, transcription, summary, results
	AudioBaseURL    string // vocal emotion + acoustic metrics
	QuestionBaseURL string // question generation
	Timeout         time.Duration
}

// Client implements the media classifier ports over HTTP.
type Client struct {
	cfg Config
	c   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.AnalyzerBaseURL = strings.TrimRight(cfg.AnalyzerBaseURL, "/")
	cfg.AudioBaseURL = strings.TrimRight(cfg.AudioBaseURL, "/")
	cfg.QuestionBaseURL = strings.TrimRight(cfg.QuestionBaseURL, "/")
	return &Client{cfg: cfg, c: &http.Client{Timeout: cfg.Timeout}}
}

type frameResponse struct {
	Success         bool               `json:"success"`
	DominantEmotion string             `json:"dominant_emotion"`
	Confidence      float64            `json:"confidence"`
	AllEmotions     map[string]float64 `json:"all_emotions"`
	Error           string             `json:"error"`
}

// ClassifyFrame sends one encoded JPEG for emotion classification.
// A success=false response (no face detected, classifier declined) is a
// normal outcome and yields a nil sample with nil error.
func (cl *Client) ClassifyFrame(ctx context.Context, jpeg []byte) (*domain.VisualEmotionSample, error) {
	var out frameResponse
	if err := cl.postFile(ctx, cl.cfg.AnalyzerBaseURL+"/analyze-emotion", "frame.jpg", jpeg, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, nil
	}
	return &domain.VisualEmotionSample{
		CapturedAt: time.Now().UTC(),
		Dominant:   out.DominantEmotion,
		Confidence: out.Confidence,
		Scores:     out.AllEmotions,
	}, nil
}

type transcribeResponse struct {
	Success       bool `json:"success"`
	Transcription struct {
		RawText     string `json:"raw_text"`
		CleanedText string `json:"cleaned_text"`
	} `json:"transcription"`
	Error string `json:"error"`
}

// Transcribe converts one WAV clip to text. Absence of both text
// variants is treated as failure.
func (cl *Client) Transcribe(ctx context.Context, wav []byte) (domain.Transcript, error) {
	var out transcribeResponse
	if err := cl.postFile(ctx, cl.cfg.AnalyzerBaseURL+"/transcribe", "answer.wav", wav, &out); err != nil {
		return domain.Transcript{}, err
	}
	raw := strings.TrimSpace(out.Transcription.RawText)
	cleaned := strings.TrimSpace(out.Transcription.CleanedText)
	if !out.Success || (raw == "" && cleaned == "") {
		if out.Error != "" {
			return domain.Transcript{}, fmt.Errorf("transcription failed: %s", out.Error)
		}
		return domain.Transcript{}, errors.New("transcription returned no text")
	}
	return domain.Transcript{Raw: raw, Cleaned: cleaned}, nil
}

type audioResponse struct {
	Emotion      string  `json:"emotion"`
	Confidence   float64 `json:"confidence"` // native 0.0-1.0 scale
	AudioMetrics struct {
		EnergyMean      float64 `json:"energy_mean"`
		TempoBPM        float64 `json:"tempo_bpm"`
		MeanPitchHz     float64 `json:"mean_pitch_hz"`
		DurationSeconds float64 `json:"duration_seconds"`
		FileSizeBytes   int     `json:"file_size_bytes"`
	} `json:"audio_metrics"`
}

// AnalyzeAudio classifies vocal emotion for one WAV clip. Confidence is
// rescaled from the service's 0.0-1.0 range to 0-100.
func (cl *Client) AnalyzeAudio(ctx context.Context, wav []byte) (*domain.VocalEmotionSnapshot, error) {
	var out audioResponse
	if err := cl.postFile(ctx, cl.cfg.AudioBaseURL+"/analyze-audio", "answer.wav", wav, &out); err != nil {
		return nil, err
	}
	if out.Emotion == "" {
		return nil, errors.New("audio analysis returned no emotion")
	}
	return &domain.VocalEmotionSnapshot{
		Dominant:   out.Emotion,
		Confidence: out.Confidence * 100,
		Features: domain.AudioFeatures{
			EnergyMean:      out.AudioMetrics.EnergyMean,
			TempoBPM:        out.AudioMetrics.TempoBPM,
			MeanPitchHz:     out.AudioMetrics.MeanPitchHz,
			DurationSeconds: out.AudioMetrics.DurationSeconds,
			ByteSize:        out.AudioMetrics.FileSizeBytes,
		},
	}, nil
}

type summaryRecord struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Confidence      float64            `json:"confidence"`
	AllEmotions     map[string]float64 `json:"all_emotions"`
	Timestamp       time.Time          `json:"timestamp"`
}

type summaryResponse struct {
	Success bool `json:"success"`
	Summary struct {
		DominantEmotion     string             `json:"dominant_emotion"`
		EmotionDistribution map[string]float64 `json:"emotion_distribution"`
		DetectionRate       float64            `json:"detection_rate"`
		TotalFrames         int                `json:"total_frames"`
	} `json:"summary"`
	Error string `json:"error"`
}

// SummarizeEmotions sends the full ordered visual-sample history and
// returns the session-level aggregate.
func (cl *Client) SummarizeEmotions(ctx context.Context, history []domain.VisualEmotionSample) (*domain.EmotionSummary, error) {
	records := make([]summaryRecord, 0, len(history))
	for _, sample := range history {
		records = append(records, summaryRecord{
			DominantEmotion: sample.Dominant,
			Confidence:      sample.Confidence,
			AllEmotions:     sample.Scores,
			Timestamp:       sample.CapturedAt,
		})
	}

	var out summaryResponse
	err := cl.postJSON(ctx, cl.cfg.AnalyzerBaseURL+"/emotion-summary",
		map[string]any{"emotion_history": records}, &out)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("summary failed: %s", out.Error)
	}
	return &domain.EmotionSummary{
		Dominant:      out.Summary.DominantEmotion,
		Distribution:  out.Summary.EmotionDistribution,
		DetectionRate: out.Summary.DetectionRate,
		TotalFrames:   out.Summary.TotalFrames,
	}, nil
}

type questionsResponse struct {
	Questions []domain.Question `json:"questions"`
}

// GenerateQuestions fetches the ordered question sequence for the
// confirmed interview parameters.
func (cl *Client) GenerateQuestions(ctx context.Context, params ports.InterviewParams) ([]domain.Question, error) {
	var out questionsResponse
	err := cl.postJSON(ctx, cl.cfg.QuestionBaseURL+"/generate-questions", map[string]any{
		"type":            string(params.Kind),
		"count":           params.QuestionCount,
		"source_material": params.SourceMaterial,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Questions) == 0 {
		return nil, errors.New("question service returned no questions")
	}
	return out.Questions, nil
}

// SubmitResults hands the final transcript to the platform. The caller
// treats failure as non-blocking.
func (cl *Client) SubmitResults(ctx context.Context, results domain.Results) error {
	type qaItem struct {
		QuestionText string `json:"question_text"`
		ResponseText string `json:"response_text"`
	}
	items := make([]qaItem, 0, len(results.Questions))
	for i, q := range results.Questions {
		items = append(items, qaItem{QuestionText: q.Text, ResponseText: results.Responses[i].Text})
	}
	return cl.postJSON(ctx, cl.cfg.AnalyzerBaseURL+"/analyze", map[string]any{"items": items}, &struct{}{})
}

func (cl *Client) postFile(ctx context.Context, url, filename string, payload []byte, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(payload); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return cl.do(req, out)
}

func (cl *Client) postJSON(ctx context.Context, url string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return cl.do(req, out)
}

func (cl *Client) do(req *http.Request, out any) error {
	resp, err := cl.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
