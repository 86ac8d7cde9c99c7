// Package vad classifies fixed-size PCM frames as speech or non-speech.
package vad

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when a classifier kind is not available in
// this build
var ErrUnsupported = errors.New("vad: classifier not supported in this build")

// Kind selects a classifier implementation
type Kind string

const (
	// KindWebRTC uses the WebRTC voice activity detector (requires cgo)
	KindWebRTC Kind = "webrtc"
	// KindEnergy uses a loudness threshold with hysteresis
	KindEnergy Kind = "energy"
	// KindAuto prefers WebRTC and falls back to energy
	KindAuto Kind = "auto"
)

// Classifier decides whether one frame contains speech.
// Implementations are not safe for concurrent use.
type Classifier interface {
	IsSpeech(frame []int16, sampleRate int) (bool, error)
}

// Config holds classifier configuration
type Config struct {
	Kind Kind
	// Mode is the WebRTC aggressiveness, 0 (least) to 3 (most)
	Mode int
	// StartDBFS and StopDBFS bound the energy classifier's hysteresis
	StartDBFS float64
	StopDBFS  float64
}

// DefaultConfig returns the default classifier configuration
func DefaultConfig() Config {
	return Config{
		Kind:      KindAuto,
		Mode:      1,
		StartDBFS: -40,
		StopDBFS:  -48,
	}
}

// New builds the classifier selected by cfg
func New(cfg Config) (Classifier, error) {
	switch cfg.Kind {
	case KindWebRTC:
		c, err := NewWebRTC(cfg.Mode)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindEnergy:
		return NewEnergy(cfg.StartDBFS, cfg.StopDBFS), nil
	case KindAuto, "":
		c, err := NewWebRTC(cfg.Mode)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return NewEnergy(cfg.StartDBFS, cfg.StopDBFS), nil
	default:
		return nil, fmt.Errorf("vad: unknown kind %q", cfg.Kind)
	}
}
