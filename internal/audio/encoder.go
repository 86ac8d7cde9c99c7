package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Encoder converts a WAV file into a compressed encoding
type Encoder interface {
	Encode(ctx context.Context, wavPath, dstPath string) error
}

// FFmpegEncoder produces MP3 files by running an external ffmpeg binary
type FFmpegEncoder struct {
	Path    string // ffmpeg executable, looked up on PATH when empty
	Bitrate int    // kbit/s
}

// NewFFmpegEncoder returns an encoder with the given binary and bitrate
func NewFFmpegEncoder(path string, bitrate int) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	if bitrate <= 0 {
		bitrate = 128
	}
	return &FFmpegEncoder{Path: path, Bitrate: bitrate}
}

// Available reports whether the ffmpeg binary can be found
func (e *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(e.Path)
	return err == nil
}

// Args returns the ffmpeg command line for one conversion
func (e *FFmpegEncoder) Args(wavPath, dstPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", wavPath,
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", e.Bitrate),
		dstPath,
	}
}

// Encode runs ffmpeg and reports its stderr on failure
func (e *FFmpegEncoder) Encode(ctx context.Context, wavPath, dstPath string) error {
	cmd := exec.CommandContext(ctx, e.Path, e.Args(wavPath, dstPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg failed: %w", err)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return nil
}
