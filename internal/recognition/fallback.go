package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrAllFailed is returned when every backend of a Fallback fails
var ErrAllFailed = errors.New("all recognizers failed")

// Fallback tries recognizers in order and returns the first success
type Fallback struct {
	recognizers []Recognizer
}

// NewFallback creates a Fallback over the given recognizers
func NewFallback(recognizers ...Recognizer) (*Fallback, error) {
	if len(recognizers) == 0 {
		return nil, errors.New("fallback: at least one recognizer is required")
	}
	return &Fallback{recognizers: recognizers}, nil
}

// Name joins the backend names
func (f *Fallback) Name() string {
	names := make([]string, len(f.recognizers))
	for i, r := range f.recognizers {
		names[i] = r.Name()
	}
	return strings.Join(names, ",")
}

// Transcribe buffers the WAV stream so each backend reads it from the start
func (f *Fallback) Transcribe(ctx context.Context, wav io.Reader) (string, error) {
	data, err := io.ReadAll(wav)
	if err != nil {
		return "", fmt.Errorf("fallback: read wav: %w", err)
	}

	var lastErr error
	for _, r := range f.recognizers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := r.Transcribe(ctx, strings.NewReader(string(data)))
		if err == nil {
			return text, nil
		}
		slog.Warn("recognizer failed, trying next", "backend", r.Name(), "err", err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// Close closes every backend
func (f *Fallback) Close() error {
	var errs []error
	for _, r := range f.recognizers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
