package notification

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

type recorder struct {
	sent []Notification
	err  error
}

func (r *recorder) send(n *Notification) error {
	r.sent = append(r.sent, *n)
	return r.err
}

func TestNewNotificationManager(t *testing.T) {
	nm := NewNotificationManager("TestApp")

	if nm == nil {
		t.Fatal("Expected notification manager to be created")
	}
	if nm.appName != "TestApp" {
		t.Errorf("Expected appName to be TestApp, got %s", nm.appName)
	}
	if !nm.Enabled() {
		t.Error("Expected notifications enabled by default")
	}
}

func TestSendNil(t *testing.T) {
	nm := NewWithSender("TestApp", (&recorder{}).send)
	if err := nm.Send(nil); err == nil {
		t.Error("Expected error for nil notification")
	}
}

func TestMessages(t *testing.T) {
	r := &recorder{}
	nm := NewWithSender("echocap", r.send)

	nm.ListeningStarted()
	nm.UtteranceSaved("hello world")
	nm.TranscriptionFailed("timeout")
	nm.PlaybackDeviceNotFound("CABLE Input")

	if len(r.sent) != 4 {
		t.Fatalf("Expected 4 notifications, got %d", len(r.sent))
	}
	for _, n := range r.sent {
		if n.Title != "echocap" {
			t.Errorf("Expected title echocap, got %s", n.Title)
		}
	}
	if r.sent[1].Message != "hello world" || r.sent[1].Type != TypeInfo {
		t.Errorf("Unexpected transcript notification %+v", r.sent[1])
	}
	if !strings.HasSuffix(r.sent[2].Message, ": timeout") || r.sent[2].Type != TypeWarning {
		t.Errorf("Unexpected failure notification %+v", r.sent[2])
	}
	if !strings.Contains(r.sent[3].Message, "CABLE Input") || r.sent[3].Type != TypeError {
		t.Errorf("Unexpected device notification %+v", r.sent[3])
	}
}

func TestDisabled(t *testing.T) {
	r := &recorder{}
	nm := NewWithSender("echocap", r.send)
	nm.SetEnabled(false)

	if err := nm.ListeningStopped(); err != nil {
		t.Errorf("Expected nil error while disabled, got %v", err)
	}
	if len(r.sent) != 0 {
		t.Errorf("Expected nothing sent while disabled, got %d", len(r.sent))
	}
}

func TestSendError(t *testing.T) {
	r := &recorder{err: errors.New("no display")}
	nm := NewWithSender("echocap", r.send)

	err := nm.DeviceNotFound()
	if err == nil || !strings.Contains(err.Error(), "no display") {
		t.Errorf("Expected wrapped sender error, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	short := "short transcript"
	if Preview(short) != short {
		t.Errorf("Expected short text unchanged, got %q", Preview(short))
	}

	long := strings.Repeat("ä", 300)
	got := Preview(long)
	if utf8.RuneCountInString(got) != maxBodyRunes {
		t.Errorf("Expected %d runes, got %d", maxBodyRunes, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Expected ellipsis, got %q", got)
	}
}
