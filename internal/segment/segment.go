// Package segment turns a classified frame stream into utterance segments.
package segment

import (
	"time"
)

// State represents the segmenter state
type State int

const (
	// Idle means the buffer is empty
	Idle State = iota
	// Accumulating means speech has been buffered and the silence timer runs
	Accumulating
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Accumulating:
		return "Accumulating"
	default:
		return "Unknown"
	}
}

// Config holds segmentation configuration
type Config struct {
	SampleRate       int
	FrameDuration    time.Duration
	SilenceThreshold time.Duration // finalize once trailing silence exceeds this
}

// DefaultConfig returns the default segmentation configuration
func DefaultConfig() Config {
	return Config{
		SampleRate:       48000,
		FrameDuration:    20 * time.Millisecond,
		SilenceThreshold: 500 * time.Millisecond,
	}
}

// Segment is one finalized utterance. Samples hold only speech frames.
type Segment struct {
	Samples    []int16
	SampleRate int
	Frames     int
}

// Duration returns the playing time of the segment
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Engine buffers speech frames and finalizes a segment when trailing
// silence exceeds the threshold. Not safe for concurrent use; the capture
// loop is its only caller.
type Engine struct {
	config  Config
	state   State
	buffer  []int16
	frames  int
	silence time.Duration
}

// New creates a segmentation engine
func New(config Config) *Engine {
	return &Engine{
		config: config,
		state:  Idle,
	}
}

// Push feeds one classified frame. It returns the finalized segment and
// true when this frame closed an utterance.
func (e *Engine) Push(frame []int16, speech bool) (Segment, bool) {
	if speech {
		e.silence = 0
		e.buffer = append(e.buffer, frame...)
		e.frames++
		e.state = Accumulating
		return Segment{}, false
	}

	if e.state == Idle {
		return Segment{}, false
	}

	e.silence += e.config.FrameDuration
	if e.silence <= e.config.SilenceThreshold {
		return Segment{}, false
	}

	seg := Segment{
		Samples:    e.buffer,
		SampleRate: e.config.SampleRate,
		Frames:     e.frames,
	}
	e.Reset()
	return seg, true
}

// Reset drops any buffered audio and returns to Idle
func (e *Engine) Reset() {
	e.buffer = nil
	e.frames = 0
	e.silence = 0
	e.state = Idle
}

// State returns the current state
func (e *Engine) State() State {
	return e.state
}

// Recording reports whether an utterance is being assembled
func (e *Engine) Recording() bool {
	return e.state == Accumulating
}

// Silence returns the trailing silence accumulated so far
func (e *Engine) Silence() time.Duration {
	return e.silence
}
