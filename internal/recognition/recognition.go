// Package recognition turns recorded utterances into text using an external
// speech-to-text service.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/yok-tottii/echocap/internal/audio"
)

// SampleRate is the rate utterances are exported at for transcription
const SampleRate = 16000

// ErrEmptyAudio is returned for utterances without samples
var ErrEmptyAudio = errors.New("empty audio")

// Recognizer is a speech-to-text backend. Transcribe receives a 16kHz mono
// 16-bit WAV stream.
type Recognizer interface {
	Name() string
	Transcribe(ctx context.Context, wav io.Reader) (string, error)
	Close() error
}

// Config holds transcription configuration
type Config struct {
	Language    string
	Calibration time.Duration // leading window measured as the ambient noise floor
	Timeout     time.Duration // 0 disables the per-utterance deadline
}

// DefaultConfig returns the default transcription configuration
func DefaultConfig() Config {
	return Config{
		Language:    "en",
		Calibration: 500 * time.Millisecond,
		Timeout:     0,
	}
}

// Result is the outcome of one transcription. A failed transcription still
// yields a transcript: the bracketed error marker.
type Result struct {
	Text           string
	Err            error
	Backend        string
	NoiseFloorDBFS float64
	Audio          time.Duration
	Elapsed        time.Duration
}

// OK reports whether the backend produced text
func (r Result) OK() bool {
	return r.Err == nil
}

// Transcript returns the text to persist
func (r Result) Transcript() string {
	if r.Err != nil {
		return ErrorMarker(r.Err)
	}
	return r.Text
}

// ErrorMarker formats a failure as a transcript placeholder
func ErrorMarker(err error) string {
	return fmt.Sprintf("[Error: %v]", err)
}

// Transcriber calibrates and transcribes exported utterances
type Transcriber struct {
	recognizer Recognizer
	config     Config
}

// NewTranscriber wraps a recognizer
func NewTranscriber(r Recognizer, config Config) *Transcriber {
	return &Transcriber{recognizer: r, config: config}
}

// Backend returns the recognizer name
func (t *Transcriber) Backend() string {
	return t.recognizer.Name()
}

// TranscribeFile transcribes a 16kHz mono WAV file. It never fails: errors
// are carried in the Result.
func (t *Transcriber) TranscribeFile(ctx context.Context, wavPath string) Result {
	start := time.Now()
	res := Result{Backend: t.recognizer.Name()}

	pcm, err := audio.ReadWAV(wavPath)
	if err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}
	if len(pcm.Samples) == 0 {
		res.Err = ErrEmptyAudio
		res.Elapsed = time.Since(start)
		return res
	}

	res.Audio = time.Duration(pcm.Frames()) * time.Second / time.Duration(pcm.SampleRate)
	res.NoiseFloorDBFS = Calibrate(pcm.Samples, pcm.SampleRate, t.config.Calibration)

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	f, err := os.Open(wavPath)
	if err != nil {
		res.Err = fmt.Errorf("failed to open wav file: %w", err)
		res.Elapsed = time.Since(start)
		return res
	}
	defer f.Close()

	text, err := t.recognizer.Transcribe(ctx, f)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Err = err
		slog.Warn("transcription failed", "backend", res.Backend, "err", err, "elapsed", res.Elapsed)
		return res
	}
	res.Text = text
	return res
}

// Close releases the recognizer
func (t *Transcriber) Close() error {
	return t.recognizer.Close()
}

// Calibrate measures the loudness of the leading window
func Calibrate(samples []int16, sampleRate int, window time.Duration) float64 {
	n := int(int64(sampleRate) * int64(window) / int64(time.Second))
	if n <= 0 || n > len(samples) {
		n = len(samples)
	}
	return audio.DBFS(samples[:n])
}
