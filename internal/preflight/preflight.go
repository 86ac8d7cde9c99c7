// Package preflight checks the environment echocap depends on before the
// capture loop starts: the data directory, the loopback and playback
// devices, the MP3 encoder and the transcription backend.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/playback"
)

// Status is the outcome of one check
type Status int

const (
	// StatusOK means the dependency is usable
	StatusOK Status = iota
	// StatusWarning means a feature degrades but capture still works
	StatusWarning
	// StatusFailed means capture cannot run
	StatusFailed
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Check is one named result
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Report collects all checks in a fixed order
type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether no check failed
func (r Report) OK() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Failed returns the failed checks
func (r Report) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			out = append(out, c)
		}
	}
	return out
}

// Checker holds what the checks inspect. Nil hooks skip their check.
type Checker struct {
	DataDir        string
	CaptureMatch   string
	PlaybackDevice string
	WhisperURL     string // empty when the whisper backend is unused
	OpenAIKey      bool
	UsesOpenAI     bool
	Encoder        *audio.FFmpegEncoder

	ListDevices func() ([]audio.Device, error)
	HTTPClient  *http.Client
}

// Run executes every check concurrently and returns them in a stable order
func (c *Checker) Run(ctx context.Context) Report {
	checks := []func(context.Context) []Check{
		c.checkDataDir,
		c.checkDevices,
		c.checkEncoder,
		c.checkTranscriber,
	}

	results := make([][]Check, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(gctx)
			return nil
		})
	}
	g.Wait()

	var report Report
	for _, r := range results {
		report.Checks = append(report.Checks, r...)
	}
	return report
}

func (c *Checker) checkDataDir(ctx context.Context) []Check {
	check := Check{Name: "data directory", Detail: c.DataDir}
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		check.Status = StatusFailed
		check.Detail = err.Error()
		return []Check{check}
	}
	f, err := os.CreateTemp(c.DataDir, ".preflight-*")
	if err != nil {
		check.Status = StatusFailed
		check.Detail = fmt.Sprintf("not writable: %v", err)
		return []Check{check}
	}
	f.Close()
	os.Remove(f.Name())
	return []Check{check}
}

func (c *Checker) checkDevices(ctx context.Context) []Check {
	if c.ListDevices == nil {
		return nil
	}
	capture := Check{Name: "capture device"}
	play := Check{Name: "playback device"}

	devices, err := c.ListDevices()
	if err != nil {
		capture.Status, capture.Detail = StatusFailed, err.Error()
		play.Status, play.Detail = StatusWarning, err.Error()
		return []Check{capture, play}
	}

	defaultOutput := ""
	for _, d := range devices {
		if d.IsDefault && d.Outputs > 0 {
			defaultOutput = d.Name
			break
		}
	}
	if dev, err := audio.FindLoopback(devices, defaultOutput, c.CaptureMatch); err != nil {
		capture.Status, capture.Detail = StatusFailed, err.Error()
	} else {
		capture.Detail = dev.Name
	}

	if dev, err := playback.FindOutput(devices, c.PlaybackDevice); err != nil {
		play.Status, play.Detail = StatusWarning, err.Error()
	} else {
		play.Detail = dev.Name
	}
	return []Check{capture, play}
}

func (c *Checker) checkEncoder(ctx context.Context) []Check {
	if c.Encoder == nil {
		return nil
	}
	check := Check{Name: "mp3 encoder", Detail: c.Encoder.Path}
	if !c.Encoder.Available() {
		check.Status = StatusWarning
		check.Detail = fmt.Sprintf("%s not found, utterances are kept as WAV only", c.Encoder.Path)
	}
	return []Check{check}
}

func (c *Checker) checkTranscriber(ctx context.Context) []Check {
	var out []Check

	if c.WhisperURL != "" {
		check := Check{Name: "whisper server", Detail: c.WhisperURL}
		if err := c.ping(ctx, c.WhisperURL); err != nil {
			check.Status = StatusWarning
			check.Detail = fmt.Sprintf("unreachable, transcripts will hold an error marker: %v", err)
		}
		out = append(out, check)
	}

	if c.UsesOpenAI {
		check := Check{Name: "openai api key", Detail: "set"}
		if !c.OpenAIKey {
			check.Status = StatusWarning
			check.Detail = "missing"
		}
		out = append(out, check)
	}
	return out
}

// ping treats any HTTP response as reachable
func (c *Checker) ping(ctx context.Context, url string) error {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
