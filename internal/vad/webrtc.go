//go:build cgo

package vad

import (
	"fmt"

	"github.com/maxhawkins/go-webrtcvad"
	"github.com/yok-tottii/echocap/internal/audio"
)

// WebRTC wraps the WebRTC voice activity detector
type WebRTC struct {
	vad *webrtcvad.VAD
}

// NewWebRTC creates a WebRTC classifier with the given aggressiveness
func NewWebRTC(mode int) (*WebRTC, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("vad: mode %d out of range 0-3", mode)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: failed to create webrtc vad: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: failed to set mode: %w", err)
	}

	return &WebRTC{vad: v}, nil
}

// IsSpeech classifies one 10, 20 or 30 ms frame
func (w *WebRTC) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	if !w.vad.ValidRateAndFrameLength(sampleRate, len(frame)) {
		return false, fmt.Errorf("vad: invalid frame of %d samples at %d Hz", len(frame), sampleRate)
	}
	return w.vad.Process(sampleRate, audio.Int16ToBytes(frame))
}
