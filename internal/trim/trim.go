// Package trim removes leading and trailing silence from PCM segments.
package trim

import (
	"math"
	"time"
)

// Range is a half-open interval [Start, End) in milliseconds
type Range struct {
	Start int
	End   int
}

// Config holds silence detection parameters
type Config struct {
	ThresholdDBFS float64       // windows quieter than this are silent
	MinSilence    time.Duration // shortest span that counts as silence
	SeekStep      time.Duration // window stride
}

// DefaultConfig returns -50 dBFS, 100ms minimum silence, 1ms step
func DefaultConfig() Config {
	return Config{
		ThresholdDBFS: -50,
		MinSilence:    100 * time.Millisecond,
		SeekStep:      time.Millisecond,
	}
}

// window gives O(1) RMS over millisecond slices via prefix sums
type window struct {
	prefix       []float64
	samplesPerMs float64
	lengthMs     int
}

func newWindow(samples []int16, rate int) *window {
	prefix := make([]float64, len(samples)+1)
	for i, s := range samples {
		v := float64(s)
		prefix[i+1] = prefix[i] + v*v
	}
	return &window{
		prefix:       prefix,
		samplesPerMs: float64(rate) / 1000,
		lengthMs:     int(math.Round(float64(len(samples)) * 1000 / float64(rate))),
	}
}

func (w *window) index(ms int) int {
	i := int(float64(ms) * w.samplesPerMs)
	if i > len(w.prefix)-1 {
		i = len(w.prefix) - 1
	}
	return i
}

func (w *window) rms(startMs, endMs int) float64 {
	a, b := w.index(startMs), w.index(endMs)
	if b <= a {
		return 0
	}
	return math.Sqrt((w.prefix[b] - w.prefix[a]) / float64(b-a))
}

func thresholdAmplitude(dbfs float64) float64 {
	return math.Pow(10, dbfs/20) * 32768
}

// DetectSilence returns the silent ranges of the segment, in milliseconds
func DetectSilence(samples []int16, rate int, cfg Config) []Range {
	if rate <= 0 || len(samples) == 0 {
		return nil
	}
	w := newWindow(samples, rate)
	minMs := int(cfg.MinSilence / time.Millisecond)
	step := int(cfg.SeekStep / time.Millisecond)
	if minMs <= 0 || step <= 0 || w.lengthMs < minMs {
		return nil
	}
	thresh := thresholdAmplitude(cfg.ThresholdDBFS)

	last := w.lengthMs - minMs
	var starts []int
	for i := 0; i <= last; i += step {
		if w.rms(i, i+minMs) <= thresh {
			starts = append(starts, i)
		}
	}
	if last%step != 0 && w.rms(last, last+minMs) <= thresh {
		starts = append(starts, last)
	}
	if len(starts) == 0 {
		return nil
	}

	var ranges []Range
	prev := starts[0]
	current := prev
	for _, s := range starts[1:] {
		continuous := s == prev+step
		gap := s > prev+minMs
		if !continuous && gap {
			ranges = append(ranges, Range{Start: current, End: prev + minMs})
			current = s
		}
		prev = s
	}
	ranges = append(ranges, Range{Start: current, End: prev + minMs})
	return ranges
}

// DetectNonsilent returns the ranges between silent ranges, in milliseconds.
// A segment shorter than the minimum silence cannot hold a silent range and
// is returned whole, whatever its level.
func DetectNonsilent(samples []int16, rate int, cfg Config) []Range {
	if rate <= 0 || len(samples) == 0 {
		return nil
	}
	w := newWindow(samples, rate)
	if w.lengthMs < int(cfg.MinSilence/time.Millisecond) {
		return []Range{{Start: 0, End: w.lengthMs}}
	}

	silent := DetectSilence(samples, rate, cfg)
	if len(silent) == 0 {
		return []Range{{Start: 0, End: w.lengthMs}}
	}
	if silent[0].Start == 0 && silent[0].End >= w.lengthMs {
		return nil
	}

	var out []Range
	prevEnd := 0
	for _, r := range silent {
		out = append(out, Range{Start: prevEnd, End: r.Start})
		prevEnd = r.End
	}
	if silent[len(silent)-1].End < w.lengthMs {
		out = append(out, Range{Start: prevEnd, End: w.lengthMs})
	}
	if len(out) > 0 && out[0].Start == 0 && out[0].End == 0 {
		out = out[1:]
	}
	return out
}

// Trim slices the segment to [first nonsilent start, last nonsilent end].
// An empty result means the whole segment is silence.
func Trim(samples []int16, rate int, cfg Config) []int16 {
	ranges := DetectNonsilent(samples, rate, cfg)
	if len(ranges) == 0 {
		return nil
	}
	w := newWindow(samples, rate)
	start := w.index(ranges[0].Start)
	end := w.index(ranges[len(ranges)-1].End)
	if end <= start {
		return nil
	}
	return samples[start:end]
}
