package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
)

// State represents what the capture loop is doing
type State int

const (
	StateIdle State = iota
	StateListening
	StateRecording
	StateProcessing
)

// String returns the tooltip label of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateRecording:
		return "Recording"
	case StateProcessing:
		return "Processing"
	default:
		return "Unknown"
	}
}

// StateFor maps capture flags to a tray state
func StateFor(listening, recording, processing bool) State {
	switch {
	case !listening:
		return StateIdle
	case processing:
		return StateProcessing
	case recording:
		return StateRecording
	default:
		return StateListening
	}
}

var stateColors = map[State]color.RGBA{
	StateIdle:       {0x9e, 0x9e, 0x9e, 0xff},
	StateListening:  {0x4c, 0xaf, 0x50, 0xff},
	StateRecording:  {0xe5, 0x39, 0x35, 0xff},
	StateProcessing: {0xf1, 0x9e, 0x39, 0xff},
}

// Manager manages the system tray icon and menu
type Manager struct {
	stateMutex sync.RWMutex
	state      State
	ready      bool

	onReadyCallback func()
	onToggle        func()
	onOpenUI        func()
	onQuit          func()

	menuToggle *systray.MenuItem
	menuOpenUI *systray.MenuItem
	menuQuit   *systray.MenuItem

	icons map[State][]byte
}

// Config holds tray manager configuration
type Config struct {
	OnReady  func() // called once the tray is up
	OnToggle func() // start or stop listening
	OnOpenUI func()
	OnQuit   func()
}

// NewManager creates a new tray manager
func NewManager(config Config) *Manager {
	m := &Manager{
		state:           StateIdle,
		onReadyCallback: config.OnReady,
		onToggle:        config.OnToggle,
		onOpenUI:        config.OnOpenUI,
		onQuit:          config.OnQuit,
		icons:           make(map[State][]byte),
	}
	for state, c := range stateColors {
		m.icons[state] = renderIcon(c)
	}
	return m
}

// Run starts the system tray (blocking call)
func (m *Manager) Run() {
	systray.Run(m.onReady, m.onExit)
}

func (m *Manager) onReady() {
	m.menuToggle = systray.AddMenuItem("Start listening", "Start or stop capturing the audio output")
	m.menuOpenUI = systray.AddMenuItem("Open UI", "Open the recordings page")
	systray.AddSeparator()
	m.menuQuit = systray.AddMenuItem("Quit", "Quit echocap")

	m.stateMutex.Lock()
	m.ready = true
	m.apply()
	m.stateMutex.Unlock()

	go m.handleMenuEvents()

	if m.onReadyCallback != nil {
		m.onReadyCallback()
	}
}

func (m *Manager) onExit() {
	slog.Debug("tray exited")
}

func (m *Manager) handleMenuEvents() {
	for {
		select {
		case <-m.menuToggle.ClickedCh:
			if m.onToggle != nil {
				m.onToggle()
			}
		case <-m.menuOpenUI.ClickedCh:
			if m.onOpenUI != nil {
				m.onOpenUI()
			}
		case <-m.menuQuit.ClickedCh:
			if m.onQuit != nil {
				m.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

// SetState updates the icon, tooltip and toggle label
func (m *Manager) SetState(state State) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()

	if m.state == state {
		return
	}
	m.state = state
	m.apply()
}

// State returns the state last set
func (m *Manager) State() State {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// apply pushes the state to the tray; stateMutex must be held
func (m *Manager) apply() {
	if !m.ready {
		return
	}
	systray.SetIcon(m.icons[m.state])
	systray.SetTooltip(Tooltip(m.state))
	if m.state == StateIdle {
		m.menuToggle.SetTitle("Start listening")
	} else {
		m.menuToggle.SetTitle("Stop listening")
	}
}

// Tooltip returns the tooltip shown for state
func Tooltip(state State) string {
	return "echocap - " + state.String()
}

// Quit quits the system tray
func (m *Manager) Quit() {
	systray.Quit()
}

// renderIcon draws a filled 32x32 circle of color c
func renderIcon(c color.RGBA) []byte {
	const size = 32
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	center := float64(size-1) / 2
	radius := float64(size)/2 - 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		slog.Warn("failed to render tray icon", "err", err)
		return nil
	}
	return buf.Bytes()
}
