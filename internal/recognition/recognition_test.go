package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yok-tottii/echocap/internal/audio"
)

type fakeRecognizer struct {
	name  string
	text  string
	err   error
	calls int
	got   []byte
}

func (f *fakeRecognizer) Name() string { return f.name }

func (f *fakeRecognizer) Transcribe(ctx context.Context, wav io.Reader) (string, error) {
	f.calls++
	data, err := io.ReadAll(wav)
	if err != nil {
		return "", err
	}
	f.got = data
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeRecognizer) Close() error { return nil }

func writeTone(t *testing.T, ms int) string {
	t.Helper()
	samples := make([]int16, SampleRate*ms/1000)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 4000
		} else {
			samples[i] = -4000
		}
	}
	path := filepath.Join(t.TempDir(), "output_1.wav")
	if err := audio.WriteWAV(path, samples, SampleRate); err != nil {
		t.Fatalf("Failed to write wav: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Language != "en" {
		t.Errorf("Expected default language 'en', got '%s'", config.Language)
	}
	if config.Calibration != 500*time.Millisecond {
		t.Errorf("Expected calibration 500ms, got %v", config.Calibration)
	}
}

func TestResult_Transcript(t *testing.T) {
	ok := Result{Text: "hello"}
	if ok.Transcript() != "hello" {
		t.Errorf("Expected 'hello', got '%s'", ok.Transcript())
	}

	failed := Result{Text: "ignored", Err: errors.New("boom")}
	if failed.Transcript() != "[Error: boom]" {
		t.Errorf("Expected '[Error: boom]', got '%s'", failed.Transcript())
	}
	if failed.OK() {
		t.Error("Expected failed result to report not OK")
	}
}

func TestTranscribeFile(t *testing.T) {
	path := writeTone(t, 800)
	fake := &fakeRecognizer{name: "fake", text: "hello world"}

	tr := NewTranscriber(fake, DefaultConfig())
	res := tr.TranscribeFile(context.Background(), path)

	if res.Err != nil {
		t.Fatalf("Expected no error, got %v", res.Err)
	}
	if res.Text != "hello world" {
		t.Errorf("Expected 'hello world', got '%s'", res.Text)
	}
	if res.Backend != "fake" {
		t.Errorf("Expected backend 'fake', got '%s'", res.Backend)
	}
	if res.Audio != 800*time.Millisecond {
		t.Errorf("Expected audio duration 800ms, got %v", res.Audio)
	}
	if !strings.HasPrefix(string(fake.got), "RIFF") {
		t.Error("Expected the recognizer to receive a WAV stream")
	}
}

func TestTranscribeFile_BackendError(t *testing.T) {
	path := writeTone(t, 200)
	fake := &fakeRecognizer{name: "fake", err: errors.New("service unavailable")}

	res := NewTranscriber(fake, DefaultConfig()).TranscribeFile(context.Background(), path)

	if res.Err == nil {
		t.Fatal("Expected error result")
	}
	if res.Transcript() != "[Error: service unavailable]" {
		t.Errorf("Expected error marker, got '%s'", res.Transcript())
	}
}

func TestTranscribeFile_MissingFile(t *testing.T) {
	fake := &fakeRecognizer{name: "fake", text: "x"}

	res := NewTranscriber(fake, DefaultConfig()).TranscribeFile(context.Background(), "/nonexistent/output_1.wav")

	if res.Err == nil {
		t.Error("Expected error for missing file")
	}
	if fake.calls != 0 {
		t.Errorf("Expected recognizer not to be called, got %d calls", fake.calls)
	}
}

func TestCalibrate(t *testing.T) {
	samples := make([]int16, SampleRate)
	for i := SampleRate / 2; i < len(samples); i++ {
		samples[i] = 16000
	}

	quiet := Calibrate(samples, SampleRate, 500*time.Millisecond)
	if quiet != audio.SilenceDBFS {
		t.Errorf("Expected silent noise floor, got %v", quiet)
	}

	whole := Calibrate(samples, SampleRate, 2*time.Second)
	if whole <= -20 {
		t.Errorf("Expected loud floor when window exceeds clip, got %v", whole)
	}
}

func TestNewWhisperServer_EmptyURL(t *testing.T) {
	if _, err := NewWhisperServer(""); err == nil {
		t.Error("Expected error for empty URL")
	}
}

func TestNewWhisperServer_Timeout(t *testing.T) {
	w, err := NewWhisperServer("http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	if w.httpClient.Timeout != 0 {
		t.Errorf("Expected no default client timeout, got %v", w.httpClient.Timeout)
	}

	w, err = NewWhisperServer("http://localhost:8080", WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if w.httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", w.httpClient.Timeout)
	}
}

func TestWhisperServer_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/inference" {
			t.Errorf("Expected /inference, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		if lang := r.FormValue("language"); lang != "en" {
			t.Errorf("Expected language 'en', got '%s'", lang)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file field: %v", err)
		} else {
			file.Close()
			if header.Filename != "audio.wav" {
				t.Errorf("Expected filename audio.wav, got %s", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": " hello there \n"})
	}))
	defer srv.Close()

	ws, err := NewWhisperServer(srv.URL+"/", WithWhisperLanguage("en"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	text, err := ws.Transcribe(context.Background(), strings.NewReader("RIFF...."))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "hello there" {
		t.Errorf("Expected 'hello there', got '%s'", text)
	}
}

func TestWhisperServer_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ws, _ := NewWhisperServer(srv.URL)
	_, err := ws.Transcribe(context.Background(), strings.NewReader("RIFF"))
	if err == nil {
		t.Fatal("Expected error for HTTP 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected status code in error, got %v", err)
	}
}

func TestWhisperServer_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer srv.Close()

	ws, _ := NewWhisperServer(srv.URL)
	if _, err := ws.Transcribe(context.Background(), strings.NewReader("RIFF")); err == nil {
		t.Error("Expected error when server reports one")
	}
}

func TestNewOpenAI_EmptyKey(t *testing.T) {
	if _, err := NewOpenAI(""); err == nil {
		t.Error("Expected error for empty API key")
	}
}

func TestOpenAI_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected bearer token, got '%s'", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("Expected model whisper-1, got '%s'", model)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "from openai"})
	}))
	defer srv.Close()

	oa, err := NewOpenAI("test-key", WithOpenAIBaseURL(srv.URL), WithOpenAIMaxRetries(0))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	text, err := oa.Transcribe(context.Background(), strings.NewReader("RIFF...."))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "from openai" {
		t.Errorf("Expected 'from openai', got '%s'", text)
	}
}

func TestFallback(t *testing.T) {
	first := &fakeRecognizer{name: "a", err: errors.New("down")}
	second := &fakeRecognizer{name: "b", text: "ok"}

	fb, err := NewFallback(first, second)
	if err != nil {
		t.Fatalf("Failed to create fallback: %v", err)
	}

	text, err := fb.Transcribe(context.Background(), strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "ok" {
		t.Errorf("Expected 'ok', got '%s'", text)
	}
	if string(second.got) != "payload" {
		t.Errorf("Expected second backend to receive the full payload, got '%s'", second.got)
	}
	if fb.Name() != "a,b" {
		t.Errorf("Expected name 'a,b', got '%s'", fb.Name())
	}
}

func TestFallback_AllFailed(t *testing.T) {
	last := errors.New("second down")
	fb, _ := NewFallback(
		&fakeRecognizer{name: "a", err: errors.New("first down")},
		&fakeRecognizer{name: "b", err: last},
	)

	_, err := fb.Transcribe(context.Background(), strings.NewReader("payload"))
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("Expected ErrAllFailed, got %v", err)
	}
	if !errors.Is(err, last) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
}

func TestNewFallback_Empty(t *testing.T) {
	if _, err := NewFallback(); err == nil {
		t.Error("Expected error for empty fallback")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantName string
		wantErr  bool
	}{
		{"whisper", Options{Backend: BackendWhisper, WhisperURL: "http://localhost:8080"}, "whisper", false},
		{"openai", Options{Backend: BackendOpenAI, OpenAIAPIKey: "k"}, "openai", false},
		{"chain", Options{Backend: BackendWhisper, WhisperURL: "http://x", Fallback: []string{BackendOpenAI, BackendWhisper}, OpenAIAPIKey: "k"}, "whisper,openai", false},
		{"unknown", Options{Backend: "vosk"}, "", true},
		{"none", Options{}, "", true},
		{"openai without key", Options{Backend: BackendOpenAI}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if r.Name() != tt.wantName {
				t.Errorf("Expected name '%s', got '%s'", tt.wantName, r.Name())
			}
		})
	}
}
