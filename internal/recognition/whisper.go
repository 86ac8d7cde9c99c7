package recognition

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
)

// WhisperServer talks to a whisper.cpp server's /inference endpoint
type WhisperServer struct {
	serverURL  string
	language   string
	model      string
	httpClient *http.Client
}

// WhisperOption configures a WhisperServer
type WhisperOption func(*WhisperServer)

// WithWhisperLanguage sets the language hint
func WithWhisperLanguage(lang string) WhisperOption {
	return func(w *WhisperServer) {
		w.language = lang
	}
}

// WithWhisperModel sets the model hint
func WithWhisperModel(model string) WhisperOption {
	return func(w *WhisperServer) {
		w.model = model
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) WhisperOption {
	return func(w *WhisperServer) {
		w.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) WhisperOption {
	return func(w *WhisperServer) {
		w.httpClient = &http.Client{Timeout: d}
	}
}

// NewWhisperServer creates a client for the server at serverURL
// (e.g. "http://localhost:8080"). Without WithTimeout requests are bounded
// only by the caller's context.
func NewWhisperServer(serverURL string, opts ...WhisperOption) (*WhisperServer, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	w := &WhisperServer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Name returns the backend name
func (w *WhisperServer) Name() string {
	return "whisper"
}

// Transcribe uploads the WAV stream as multipart form data
func (w *WhisperServer) Transcribe(ctx context.Context, wav io.Reader) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	if w.language != "" {
		if err := mw.WriteField("language", w.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if w.model != "" {
		if err := mw.WriteField("model", w.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("whisper: write format field: %w", err)
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: %s", result.Error)
	}

	return strings.TrimSpace(result.Text), nil
}

// Close is a no-op
func (w *WhisperServer) Close() error {
	return nil
}
