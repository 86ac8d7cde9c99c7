package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/logger"
	"github.com/yok-tottii/echocap/internal/playback"
	"github.com/yok-tottii/echocap/internal/recognition"
	"github.com/yok-tottii/echocap/internal/segment"
	"github.com/yok-tottii/echocap/internal/trim"
	"github.com/yok-tottii/echocap/internal/vad"
)

// APIKeyEnv supplies the OpenAI key when the file leaves it empty
const APIKeyEnv = "OPENAI_API_KEY"

// Config holds application configuration
type Config struct {
	DataDir       string            `json:"data_dir" yaml:"data_dir"`
	Capture       CaptureConfig     `json:"capture" yaml:"capture"`
	Segment       SegmentConfig     `json:"segment" yaml:"segment"`
	Trim          TrimConfig        `json:"trim" yaml:"trim"`
	Transcriber   TranscriberConfig `json:"transcriber" yaml:"transcriber"`
	Encoder       EncoderConfig     `json:"encoder" yaml:"encoder"`
	Playback      PlaybackConfig    `json:"playback" yaml:"playback"`
	Server        ServerConfig      `json:"server" yaml:"server"`
	Hotkey        HotkeyConfig      `json:"hotkey" yaml:"hotkey"`
	Log           LogConfig         `json:"log" yaml:"log"`
	Notifications bool              `json:"notifications" yaml:"notifications"`

	keyFromEnv bool
	mu         sync.RWMutex
}

// CaptureConfig selects the loopback device and frame format
type CaptureConfig struct {
	DeviceMatch string `json:"device_match" yaml:"device_match"` // empty follows the default output
	SampleRate  int    `json:"sample_rate" yaml:"sample_rate"`
	FrameMs     int    `json:"frame_ms" yaml:"frame_ms"`
	VAD         string `json:"vad" yaml:"vad"`           // "auto", "webrtc" or "energy"
	VADMode     int    `json:"vad_mode" yaml:"vad_mode"` // webrtc aggressiveness 0-3
}

// SegmentConfig holds the utterance boundary settings
type SegmentConfig struct {
	SilenceMs int `json:"silence_ms" yaml:"silence_ms"`
}

// TrimConfig holds the silence trimming settings
type TrimConfig struct {
	ThresholdDBFS float64 `json:"threshold_dbfs" yaml:"threshold_dbfs"`
	MinSilenceMs  int     `json:"min_silence_ms" yaml:"min_silence_ms"`
}

// TranscriberConfig selects the speech-to-text backends
type TranscriberConfig struct {
	Backend      string   `json:"backend" yaml:"backend"`
	Fallback     []string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	WhisperURL   string   `json:"whisper_url" yaml:"whisper_url"`
	OpenAIAPIKey string   `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIModel  string   `json:"openai_model" yaml:"openai_model"`
	Language     string   `json:"language" yaml:"language"`
	TimeoutS     int      `json:"timeout_s" yaml:"timeout_s"` // 0 disables the deadline
}

// EncoderConfig configures MP3 export
type EncoderConfig struct {
	FFmpegPath string `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	MP3Bitrate int    `json:"mp3_bitrate" yaml:"mp3_bitrate"` // kbit/s
}

// PlaybackConfig names the virtual output device
type PlaybackConfig struct {
	DeviceName string `json:"device_name" yaml:"device_name"`
}

// ServerConfig holds the control surface settings
type ServerConfig struct {
	Port int `json:"port" yaml:"port"`
}

// HotkeyConfig holds hotkey configuration
type HotkeyConfig struct {
	Ctrl  bool   `json:"ctrl" yaml:"ctrl"`
	Shift bool   `json:"shift" yaml:"shift"`
	Alt   bool   `json:"alt" yaml:"alt"`
	Key   string `json:"key" yaml:"key"` // e.g. "L", "Space", "F9"
}

// LogConfig holds logger settings
type LogConfig struct {
	Level         string `json:"level" yaml:"level"`
	Dir           string `json:"dir" yaml:"dir"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "~/echocap",
		Capture: CaptureConfig{
			SampleRate: 48000,
			FrameMs:    20,
			VAD:        string(vad.KindAuto),
			VADMode:    1,
		},
		Segment: SegmentConfig{SilenceMs: 500},
		Trim: TrimConfig{
			ThresholdDBFS: -50,
			MinSilenceMs:  100,
		},
		Transcriber: TranscriberConfig{
			Backend:     recognition.BackendWhisper,
			WhisperURL:  "http://127.0.0.1:8080",
			OpenAIModel: "whisper-1",
			Language:    "en",
			TimeoutS:    30,
		},
		Encoder: EncoderConfig{
			FFmpegPath: "ffmpeg",
			MP3Bitrate: 128,
		},
		Playback: PlaybackConfig{DeviceName: "CABLE Input"},
		Server:   ServerConfig{Port: 5000},
		Hotkey: HotkeyConfig{
			Ctrl:  true,
			Shift: true,
			Key:   "L",
		},
		Log: LogConfig{
			Level:         "info",
			Dir:           "~/echocap/logs",
			RetentionDays: 7,
		},
		Notifications: true,
	}
}

// Load loads configuration from path. JSON and YAML are told apart by
// extension; fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		config.applyEnv()
		return config, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if c.Transcriber.OpenAIAPIKey != "" {
		return
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.Transcriber.OpenAIAPIKey = key
		c.keyFromEnv = true
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Save saves configuration to path in the format its extension names.
// A key taken from the environment is not written back.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Config{}
	out.copyFrom(c)
	if c.keyFromEnv {
		out.Transcriber.OpenAIAPIKey = ""
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir, _ = os.UserHomeDir()
	}
	return filepath.Join(dir, "echocap", "config.json")
}

// Update applies the settings accepted by the control surface. The change
// is validated as a whole and discarded if any value is invalid.
func (c *Config) Update(updates map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := &Config{}
	next.copyFrom(c)

	for key, value := range updates {
		switch key {
		case "notifications":
			if v, ok := value.(bool); ok {
				next.Notifications = v
			}
		case "capture":
			if v, ok := value.(map[string]any); ok {
				setString(v, "device_match", &next.Capture.DeviceMatch)
				setString(v, "vad", &next.Capture.VAD)
				setInt(v, "vad_mode", &next.Capture.VADMode)
			}
		case "segment":
			if v, ok := value.(map[string]any); ok {
				setInt(v, "silence_ms", &next.Segment.SilenceMs)
			}
		case "trim":
			if v, ok := value.(map[string]any); ok {
				if f, ok := v["threshold_dbfs"].(float64); ok {
					next.Trim.ThresholdDBFS = f
				}
				setInt(v, "min_silence_ms", &next.Trim.MinSilenceMs)
			}
		case "transcriber":
			if v, ok := value.(map[string]any); ok {
				setString(v, "backend", &next.Transcriber.Backend)
				setString(v, "whisper_url", &next.Transcriber.WhisperURL)
				setString(v, "openai_model", &next.Transcriber.OpenAIModel)
				setString(v, "language", &next.Transcriber.Language)
				setInt(v, "timeout_s", &next.Transcriber.TimeoutS)
			}
		case "playback":
			if v, ok := value.(map[string]any); ok {
				setString(v, "device_name", &next.Playback.DeviceName)
			}
		case "hotkey":
			if v, ok := value.(map[string]any); ok {
				if ctrl, ok := v["ctrl"].(bool); ok {
					next.Hotkey.Ctrl = ctrl
				}
				if shift, ok := v["shift"].(bool); ok {
					next.Hotkey.Shift = shift
				}
				if alt, ok := v["alt"].(bool); ok {
					next.Hotkey.Alt = alt
				}
				setString(v, "key", &next.Hotkey.Key)
			}
		case "log":
			if v, ok := value.(map[string]any); ok {
				setString(v, "level", &next.Log.Level)
			}
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}

	if err := next.validate(); err != nil {
		return err
	}
	c.copyFrom(next)
	return nil
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok {
		*dst = v
	}
}

// JSON numbers decode as float64
func setInt(m map[string]any, key string, dst *int) {
	if v, ok := m[key].(float64); ok {
		*dst = int(v)
	}
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Config{}
	out.copyFrom(c)
	return out
}

// copyFrom copies every setting of src; the caller holds the locks it needs
func (c *Config) copyFrom(src *Config) {
	c.DataDir = src.DataDir
	c.Capture = src.Capture
	c.Segment = src.Segment
	c.Trim = src.Trim
	c.Transcriber = src.Transcriber
	c.Transcriber.Fallback = slices.Clone(src.Transcriber.Fallback)
	c.Encoder = src.Encoder
	c.Playback = src.Playback
	c.Server = src.Server
	c.Hotkey = src.Hotkey
	c.Log = src.Log
	c.Notifications = src.Notifications
	c.keyFromEnv = src.keyFromEnv
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/")), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// DataPath returns the expanded data root
func (c *Config) DataPath() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandPath(c.DataDir)
}

// Validate validates all configuration fields and reports every problem
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validate()
}

func (c *Config) validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir cannot be empty"))
	}

	if c.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.Capture.SampleRate))
	}
	switch c.Capture.FrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("capture.frame_ms %d must be 10, 20 or 30", c.Capture.FrameMs))
	}
	switch vad.Kind(c.Capture.VAD) {
	case vad.KindAuto, vad.KindWebRTC, vad.KindEnergy:
	default:
		errs = append(errs, fmt.Errorf("capture.vad %q must be auto, webrtc or energy", c.Capture.VAD))
	}
	if c.Capture.VADMode < 0 || c.Capture.VADMode > 3 {
		errs = append(errs, fmt.Errorf("capture.vad_mode %d must be between 0 and 3", c.Capture.VADMode))
	}

	if c.Segment.SilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("segment.silence_ms %d must be positive", c.Segment.SilenceMs))
	}
	if c.Trim.ThresholdDBFS >= 0 {
		errs = append(errs, fmt.Errorf("trim.threshold_dbfs %v must be negative", c.Trim.ThresholdDBFS))
	}
	if c.Trim.MinSilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("trim.min_silence_ms %d must be positive", c.Trim.MinSilenceMs))
	}

	backends := append([]string{c.Transcriber.Backend}, c.Transcriber.Fallback...)
	for _, name := range backends {
		switch name {
		case recognition.BackendWhisper:
			if c.Transcriber.WhisperURL == "" {
				errs = append(errs, errors.New("transcriber.whisper_url is required for the whisper backend"))
			}
		case recognition.BackendOpenAI:
			if c.Transcriber.OpenAIAPIKey == "" {
				errs = append(errs, fmt.Errorf("transcriber.openai_api_key (or %s) is required for the openai backend", APIKeyEnv))
			}
		default:
			errs = append(errs, fmt.Errorf("transcriber backend %q must be whisper or openai", name))
		}
	}
	if c.Transcriber.Language == "" {
		errs = append(errs, errors.New("transcriber.language cannot be empty"))
	}
	if c.Transcriber.TimeoutS < 0 {
		errs = append(errs, fmt.Errorf("transcriber.timeout_s %d cannot be negative", c.Transcriber.TimeoutS))
	}

	if c.Encoder.MP3Bitrate < 32 || c.Encoder.MP3Bitrate > 320 {
		errs = append(errs, fmt.Errorf("encoder.mp3_bitrate %d must be between 32 and 320", c.Encoder.MP3Bitrate))
	}
	if c.Playback.DeviceName == "" {
		errs = append(errs, errors.New("playback.device_name cannot be empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d must be between 1 and 65535", c.Server.Port))
	}
	if c.Hotkey.Key == "" {
		errs = append(errs, errors.New("hotkey.key cannot be empty"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("log.retention_days %d cannot be negative", c.Log.RetentionDays))
	}

	return errors.Join(errs...)
}

// CaptureOptions converts the capture section for audio.OpenLoopback
func (c *Config) CaptureOptions() audio.CaptureConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cc := audio.DefaultCaptureConfig()
	cc.DeviceMatch = c.Capture.DeviceMatch
	cc.SampleRate = c.Capture.SampleRate
	cc.FrameDuration = time.Duration(c.Capture.FrameMs) * time.Millisecond
	return cc
}

// VADOptions converts the classifier settings
func (c *Config) VADOptions() vad.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vc := vad.DefaultConfig()
	vc.Kind = vad.Kind(c.Capture.VAD)
	vc.Mode = c.Capture.VADMode
	return vc
}

// SegmentOptions converts the segmentation settings
func (c *Config) SegmentOptions() segment.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return segment.Config{
		SampleRate:       c.Capture.SampleRate,
		FrameDuration:    time.Duration(c.Capture.FrameMs) * time.Millisecond,
		SilenceThreshold: time.Duration(c.Segment.SilenceMs) * time.Millisecond,
	}
}

// TrimOptions converts the trimming settings
func (c *Config) TrimOptions() trim.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tc := trim.DefaultConfig()
	tc.ThresholdDBFS = c.Trim.ThresholdDBFS
	tc.MinSilence = time.Duration(c.Trim.MinSilenceMs) * time.Millisecond
	return tc
}

// RecognitionOptions converts the transcriber section for recognition.New
func (c *Config) RecognitionOptions() recognition.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := c.Transcriber
	return recognition.Options{
		Backend:      t.Backend,
		Fallback:     slices.Clone(t.Fallback),
		WhisperURL:   t.WhisperURL,
		OpenAIAPIKey: t.OpenAIAPIKey,
		OpenAIModel:  t.OpenAIModel,
		Language:     t.Language,
		Timeout:      time.Duration(t.TimeoutS) * time.Second,
	}
}

// TranscribeOptions converts the per-utterance transcription settings
func (c *Config) TranscribeOptions() recognition.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rc := recognition.DefaultConfig()
	rc.Language = c.Transcriber.Language
	rc.Timeout = time.Duration(c.Transcriber.TimeoutS) * time.Second
	return rc
}

// PlaybackOptions converts the playback section
func (c *Config) PlaybackOptions() playback.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return playback.Config{DeviceName: c.Playback.DeviceName}
}

// LoggerOptions converts the log section
func (c *Config) LoggerOptions() (logger.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lc := logger.DefaultConfig()
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return lc, err
	}
	dir, err := ExpandPath(c.Log.Dir)
	if err != nil {
		return lc, err
	}
	lc.Level = level
	if dir != "" {
		lc.LogDir = dir
	}
	lc.RetentionDays = c.Log.RetentionDays
	return lc, nil
}
