package tray

import (
	"bytes"
	"image/png"
	"sync"
	"testing"
)

func TestNewManager(t *testing.T) {
	toggled := false
	opened := false
	quit := false

	manager := NewManager(Config{
		OnToggle: func() { toggled = true },
		OnOpenUI: func() { opened = true },
		OnQuit:   func() { quit = true },
	})

	if manager == nil {
		t.Fatal("Expected manager to be created")
	}
	if manager.State() != StateIdle {
		t.Errorf("Expected initial state to be StateIdle, got %v", manager.State())
	}

	manager.onToggle()
	manager.onOpenUI()
	manager.onQuit()
	if !toggled || !opened || !quit {
		t.Errorf("Expected all callbacks called, got toggle=%v open=%v quit=%v", toggled, opened, quit)
	}
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		listening, recording, processing bool
		expected                         State
	}{
		{false, false, false, StateIdle},
		{false, true, true, StateIdle},
		{true, false, false, StateListening},
		{true, true, false, StateRecording},
		{true, true, true, StateProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			if got := StateFor(tt.listening, tt.recording, tt.processing); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestTooltip(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "echocap - Idle",
		StateListening: "echocap - Listening",
		StateRecording: "echocap - Recording",
		State(9):       "echocap - Unknown",
	}
	for state, expected := range tests {
		if got := Tooltip(state); got != expected {
			t.Errorf("Expected %q, got %q", expected, got)
		}
	}
}

func TestSetStateBeforeReady(t *testing.T) {
	manager := NewManager(Config{})

	// without a running tray only the stored state changes
	for _, s := range []State{StateListening, StateRecording, StateProcessing, StateIdle} {
		manager.SetState(s)
		if manager.State() != s {
			t.Errorf("Expected state %v, got %v", s, manager.State())
		}
	}
}

func TestIcons(t *testing.T) {
	manager := NewManager(Config{})

	seen := make(map[string]State)
	for state := range stateColors {
		icon := manager.icons[state]
		if len(icon) == 0 {
			t.Fatalf("Expected icon for %v", state)
		}
		img, err := png.Decode(bytes.NewReader(icon))
		if err != nil {
			t.Fatalf("Icon for %v is not a PNG: %v", state, err)
		}
		if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
			t.Errorf("Expected 32x32 icon, got %v", img.Bounds())
		}
		if other, dup := seen[string(icon)]; dup {
			t.Errorf("Icons for %v and %v are identical", state, other)
		}
		seen[string(icon)] = state
	}
}

func TestConcurrentStateUpdates(t *testing.T) {
	manager := NewManager(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			manager.SetState(State(i % 4))
			_ = manager.State()
		}(i)
	}
	wg.Wait()
}
