package notification

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gen2brain/beeep"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification; it also plays the alert sound
	TypeError NotificationType = "error"
)

// maxBodyRunes bounds transcript previews in the notification body
const maxBodyRunes = 120

// Notification represents one desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// Sender delivers a notification to the desktop
type Sender func(n *Notification) error

// beeepSender shows notifications with beeep; errors use Alert for the sound
func beeepSender(n *Notification) error {
	if n.Type == TypeError {
		return beeep.Alert(n.Title, n.Message, "")
	}
	return beeep.Notify(n.Title, n.Message, "")
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName string
	enabled atomic.Bool
	send    Sender
}

// NewNotificationManager creates a manager sending through beeep
func NewNotificationManager(appName string) *NotificationManager {
	return NewWithSender(appName, beeepSender)
}

// NewWithSender creates a manager with a custom delivery function
func NewWithSender(appName string, send Sender) *NotificationManager {
	nm := &NotificationManager{appName: appName, send: send}
	nm.enabled.Store(true)
	return nm
}

// SetEnabled turns delivery on or off
func (nm *NotificationManager) SetEnabled(enabled bool) {
	nm.enabled.Store(enabled)
}

// Enabled reports whether notifications are delivered
func (nm *NotificationManager) Enabled() bool {
	return nm.enabled.Load()
}

// Send delivers a notification unless notifications are disabled
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return errors.New("notification cannot be nil")
	}
	if !nm.enabled.Load() {
		return nil
	}
	if notification.Title == "" {
		notification.Title = nm.appName
	}
	if err := nm.send(notification); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (nm *NotificationManager) sendType(t NotificationType, message string) error {
	return nm.Send(&Notification{Title: nm.appName, Message: message, Type: t})
}

// ListeningStarted announces that audio capture began
func (nm *NotificationManager) ListeningStarted() error {
	return nm.sendType(TypeInfo, "Listening to the audio output")
}

// ListeningStopped announces that audio capture ended
func (nm *NotificationManager) ListeningStopped() error {
	return nm.sendType(TypeInfo, "Listening stopped")
}

// UtteranceSaved shows a preview of a persisted transcript
func (nm *NotificationManager) UtteranceSaved(text string) error {
	return nm.sendType(TypeInfo, Preview(text))
}

// TranscriptionFailed reports a failed transcription; the audio is kept
func (nm *NotificationManager) TranscriptionFailed(reason string) error {
	message := "Transcription failed, audio was kept"
	if reason != "" {
		message += ": " + reason
	}
	return nm.sendType(TypeWarning, message)
}

// DeviceNotFound reports a missing capture device
func (nm *NotificationManager) DeviceNotFound() error {
	return nm.sendType(TypeError, "No loopback capture device found for the default output")
}

// PlaybackDeviceNotFound reports a missing virtual output device
func (nm *NotificationManager) PlaybackDeviceNotFound(name string) error {
	return nm.sendType(TypeError, fmt.Sprintf("Playback device %q not found", name))
}

// Preview shortens text to a single notification line
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= maxBodyRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBodyRunes-1]) + "…"
}
