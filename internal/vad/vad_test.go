package vad

import (
	"errors"
	"testing"
)

func tone(n int, amp int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = amp
		} else {
			frame[i] = -amp
		}
	}
	return frame
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Kind != KindAuto {
		t.Errorf("Expected kind auto, got %q", config.Kind)
	}

	if config.Mode != 1 {
		t.Errorf("Expected mode 1, got %d", config.Mode)
	}

	if config.StopDBFS > config.StartDBFS {
		t.Errorf("Expected stop threshold <= start threshold, got %v > %v", config.StopDBFS, config.StartDBFS)
	}
}

func TestEnergy_Hysteresis(t *testing.T) {
	e := NewEnergy(-40, -48)

	loud := tone(960, 8000)  // about -12 dBFS
	mid := tone(960, 200)    // about -44 dBFS
	silent := make([]int16, 960)

	steps := []struct {
		name  string
		frame []int16
		want  bool
	}{
		{"silent stays idle", silent, false},
		{"mid does not start", mid, false},
		{"loud starts", loud, true},
		{"mid holds", mid, true},
		{"silent stops", silent, false},
		{"mid still idle", mid, false},
	}

	for _, step := range steps {
		got, err := e.IsSpeech(step.frame, 48000)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", step.name, err)
		}
		if got != step.want {
			t.Errorf("%s: expected %v, got %v", step.name, step.want, got)
		}
	}

	e.Reset()
	if got, _ := e.IsSpeech(mid, 48000); got {
		t.Error("Expected reset classifier to be idle")
	}
}

func TestNewEnergy_ClampsStop(t *testing.T) {
	e := NewEnergy(-40, -30)
	if e.stopDBFS != -40 {
		t.Errorf("Expected stop clamped to -40, got %v", e.stopDBFS)
	}
}

func TestNew(t *testing.T) {
	c, err := New(Config{Kind: KindEnergy, StartDBFS: -40, StopDBFS: -48})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*Energy); !ok {
		t.Errorf("Expected *Energy, got %T", c)
	}

	if _, err := New(Config{Kind: "bogus"}); err == nil {
		t.Error("Expected error for unknown kind")
	}

	auto, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New(auto) failed: %v", err)
	}
	if auto == nil {
		t.Fatal("Expected a classifier")
	}
}

func TestWebRTC(t *testing.T) {
	w, err := NewWebRTC(1)
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("WebRTC VAD not available: %v", err)
	}
	if err != nil {
		t.Fatalf("NewWebRTC failed: %v", err)
	}

	speech, err := w.IsSpeech(make([]int16, 960), 48000)
	if err != nil {
		t.Fatalf("IsSpeech failed: %v", err)
	}
	if speech {
		t.Error("Expected digital silence to be non-speech")
	}

	if _, err := w.IsSpeech(make([]int16, 100), 48000); err == nil {
		t.Error("Expected error for invalid frame length")
	}

	if _, err := NewWebRTC(7); err == nil {
		t.Error("Expected error for out of range mode")
	}
}
