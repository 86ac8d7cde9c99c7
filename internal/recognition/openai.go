package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI transcribes through the OpenAI audio transcription API
type OpenAI struct {
	client   oai.Client
	model    oai.AudioModel
	language string
}

type openAIConfig struct {
	baseURL    string
	model      string
	language   string
	timeout    time.Duration
	maxRetries int
}

// OpenAIOption configures the OpenAI backend
type OpenAIOption func(*openAIConfig)

// WithOpenAIBaseURL points the client at a compatible server
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel overrides the default whisper-1 model
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.model = model
	}
}

// WithOpenAILanguage sets the ISO-639-1 language hint
func WithOpenAILanguage(lang string) OpenAIOption {
	return func(c *openAIConfig) {
		c.language = lang
	}
}

// WithOpenAITimeout bounds each request
func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// WithOpenAIMaxRetries sets the client's retry budget
func WithOpenAIMaxRetries(n int) OpenAIOption {
	return func(c *openAIConfig) {
		c.maxRetries = n
	}
}

// NewOpenAI creates an OpenAI backend
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}

	cfg := &openAIConfig{
		model:      string(oai.AudioModelWhisper1),
		maxRetries: 2,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &OpenAI{
		client:   oai.NewClient(reqOpts...),
		model:    oai.AudioModel(cfg.model),
		language: cfg.language,
	}, nil
}

// Name returns the backend name
func (o *OpenAI) Name() string {
	return "openai"
}

// Transcribe uploads the WAV stream
func (o *OpenAI) Transcribe(ctx context.Context, wav io.Reader) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(wav, "utterance.wav", "audio/wav"),
		Model: o.model,
	}
	if o.language != "" {
		params.Language = oai.String(o.language)
	}

	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Close is a no-op
func (o *OpenAI) Close() error {
	return nil
}
