package clipboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-vgo/robotgo"
)

// ErrEmpty is returned when there is no text to copy
var ErrEmpty = errors.New("nothing to copy")

// Backend reads and writes the system clipboard
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type robotgoBackend struct{}

func (robotgoBackend) ReadAll() (string, error) { return robotgo.ReadAll() }

func (robotgoBackend) WriteAll(text string) error { return robotgo.WriteAll(text) }

// Manager serializes clipboard writes
type Manager struct {
	mu      sync.Mutex
	backend Backend
}

// NewManager creates a manager using the system clipboard
func NewManager() *Manager {
	return NewWithBackend(robotgoBackend{})
}

// NewWithBackend creates a manager on a custom backend
func NewWithBackend(b Backend) *Manager {
	return &Manager{backend: b}
}

// Copy places text on the clipboard. Surrounding whitespace is dropped
// and line endings follow the host convention.
func (m *Manager) Copy(text string) error {
	text = Prepare(text, lineEnding)
	if text == "" {
		return ErrEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.backend.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Content returns the current clipboard text
func (m *Manager) Content() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	content, err := m.backend.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return content, nil
}

// Prepare trims text and rewrites its line endings to eol
func Prepare(text, eol string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if eol != "\n" {
		text = strings.ReplaceAll(text, "\n", eol)
	}
	return text
}
