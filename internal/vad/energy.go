package vad

import "github.com/yok-tottii/echocap/internal/audio"

// Energy is a pure-Go classifier based on frame loudness.
// Uses hysteresis to avoid flickering around a single threshold.
type Energy struct {
	startDBFS float64 // level to enter speech
	stopDBFS  float64 // level to leave speech
	inSpeech  bool
}

// NewEnergy returns an energy classifier. stop is clamped to start.
func NewEnergy(start, stop float64) *Energy {
	if stop > start {
		stop = start
	}
	return &Energy{startDBFS: start, stopDBFS: stop}
}

// IsSpeech reports whether the frame is loud enough to count as speech
func (e *Energy) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	level := audio.DBFS(frame)
	if e.inSpeech {
		e.inSpeech = level >= e.stopDBFS
	} else {
		e.inSpeech = level >= e.startDBFS
	}
	return e.inSpeech, nil
}

// Reset clears internal state
func (e *Energy) Reset() {
	e.inSpeech = false
}
