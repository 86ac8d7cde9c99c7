// Package playback renders stored utterances on a virtual output device so
// they can be fed back into another application as microphone input.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/observe"
)

// ErrNoDevice is returned when no output device matches the configured name
var ErrNoDevice = errors.New("playback device not found")

// Config holds playback configuration
type Config struct {
	// DeviceName is a case-insensitive substring of the output device name
	DeviceName string
}

// DefaultConfig targets the VB-Audio virtual cable
func DefaultConfig() Config {
	return Config{
		DeviceName: "CABLE Input",
	}
}

// Output locates output devices and plays float32 samples on them
type Output interface {
	Lookup(match string) (audio.Device, error)
	Render(dev audio.Device, samples []float32, channels, sampleRate int) error
}

// Service plays WAV files on the configured output device. Each playback
// runs on its own goroutine.
type Service struct {
	config  Config
	output  Output
	metrics *observe.Metrics

	active atomic.Int32
	wg     sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithOutput replaces the PortAudio output
func WithOutput(o Output) Option {
	return func(s *Service) {
		s.output = o
	}
}

// WithMetrics counts playbacks
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a playback service
func New(config Config, opts ...Option) *Service {
	s := &Service{
		config: config,
		output: PortAudioOutput{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Play decodes path and starts rendering it. Decode failures and a missing
// device are returned; render failures are logged.
func (s *Service) Play(path string) error {
	pcm, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}

	dev, err := s.output.Lookup(s.config.DeviceName)
	if err != nil {
		slog.Warn("playback device not found", "device", s.config.DeviceName, "err", err)
		return err
	}

	samples := audio.Int16ToFloat32(pcm.Samples)
	channels := pcm.Channels
	if channels <= 0 {
		channels = 1
	}

	s.active.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Add(-1)

		if err := s.output.Render(dev, samples, channels, pcm.SampleRate); err != nil {
			slog.Error("playback failed", "path", path, "device", dev.Name, "err", err)
			return
		}
		slog.Info("played utterance", "path", path, "device", dev.Name)
	}()
	return nil
}

// PlayRecord plays a file and records the outcome against list
func (s *Service) PlayRecord(ctx context.Context, list, path string) error {
	err := s.Play(path)
	if s.metrics != nil {
		status := "playing"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordPlayback(ctx, list, status)
	}
	return err
}

// Busy reports whether any playback is in progress
func (s *Service) Busy() bool {
	return s.active.Load() > 0
}

// Wait blocks until every started playback has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// FindOutput returns the first output-capable device whose name contains
// match, case-insensitively
func FindOutput(devices []audio.Device, match string) (audio.Device, error) {
	needle := strings.ToLower(strings.TrimSpace(match))
	if needle == "" {
		return audio.Device{}, fmt.Errorf("%w: empty device name", ErrNoDevice)
	}
	for _, d := range devices {
		if d.Outputs > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return audio.Device{}, fmt.Errorf("%w: no output device contains %q", ErrNoDevice, match)
}
