package audio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when no loopback capture device matches
// the current default output device
var ErrDeviceUnavailable = errors.New("no matching loopback capture device")

// Device represents an audio device known to the host
type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	HostAPI   string `json:"host_api"`
	Inputs    int    `json:"inputs"`
	Outputs   int    `json:"outputs"`
	IsDefault bool   `json:"is_default"` // default output device
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// CaptureConfig holds loopback capture configuration
type CaptureConfig struct {
	// DeviceMatch overrides loopback discovery with a case-insensitive
	// substring of the capture device name. Empty means "follow the
	// default output device".
	DeviceMatch   string
	SampleRate    int
	FrameDuration time.Duration
	Latency       LatencyMode
}

// DefaultCaptureConfig returns the default capture configuration
// Sample rate: 48kHz, frames of 20ms, mono
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:    48000,
		FrameDuration: 20 * time.Millisecond,
		Latency:       HighStability,
	}
}

// FrameSize returns the number of samples in one frame
func (c CaptureConfig) FrameSize() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// FrameReader yields fixed-size mono int16 frames from a capture device.
// ReadFrame blocks until a full frame is available.
type FrameReader interface {
	ReadFrame() ([]int16, error)
	Close() error
}
