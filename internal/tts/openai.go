package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Voice   string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

// OpenAI calls the /audio/speech endpoint and asks for WAV output.
type OpenAI struct {
	apiKey  string
	baseURL string
	voice   string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		apiKey:  opts.APIKey,
		baseURL: base,
		voice:   opts.Voice,
		model:   opts.Model,
		client:  client,
		logger:  logger,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

type speechRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

func (o *OpenAI) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, Permanent(ErrEmptyText)
	}

	body := speechRequest{
		Model:          firstNonEmpty(req.Model, o.model, "tts-1"),
		Voice:          firstNonEmpty(req.Voice, o.voice, "onyx"),
		Input:          req.Text,
		ResponseFormat: "wav",
		Speed:          req.Speed,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Permanent(fmt.Errorf("openai: encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, Permanent(fmt.Errorf("openai: build request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	o.logger.Debug("openai synthesize", "chars", len(req.Text), "voice", body.Voice, "model", body.Model)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if permanentStatus(resp.StatusCode) {
			return nil, Permanent(err)
		}
		return nil, err
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai: empty audio response")
	}

	return audio, nil
}

// permanentStatus reports 4xx responses other than timeouts and rate limits.
func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}

	return code >= 400 && code < 500
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
