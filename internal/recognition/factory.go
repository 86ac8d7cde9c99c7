package recognition

import (
	"fmt"
	"time"
)

// Backend names accepted by New
const (
	BackendWhisper = "whisper"
	BackendOpenAI  = "openai"
)

// Options selects and configures recognizer backends
type Options struct {
	Backend      string
	Fallback     []string // tried in order after Backend
	WhisperURL   string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	Language     string
	Timeout      time.Duration
}

// New builds the recognizer chain described by opts. A single backend is
// returned unwrapped.
func New(opts Options) (Recognizer, error) {
	names := append([]string{opts.Backend}, opts.Fallback...)

	var chain []Recognizer
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		r, err := newBackend(name, opts)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
	}

	switch len(chain) {
	case 0:
		return nil, fmt.Errorf("no recognizer backend configured")
	case 1:
		return chain[0], nil
	default:
		return NewFallback(chain...)
	}
}

func newBackend(name string, opts Options) (Recognizer, error) {
	switch name {
	case BackendWhisper:
		wopts := []WhisperOption{WithWhisperLanguage(opts.Language)}
		if opts.Timeout > 0 {
			wopts = append(wopts, WithTimeout(opts.Timeout))
		}
		return NewWhisperServer(opts.WhisperURL, wopts...)
	case BackendOpenAI:
		oopts := []OpenAIOption{WithOpenAILanguage(opts.Language)}
		if opts.OpenAIModel != "" {
			oopts = append(oopts, WithOpenAIModel(opts.OpenAIModel))
		}
		if opts.OpenAIURL != "" {
			oopts = append(oopts, WithOpenAIBaseURL(opts.OpenAIURL))
		}
		if opts.Timeout > 0 {
			oopts = append(oopts, WithOpenAITimeout(opts.Timeout))
		}
		return NewOpenAI(opts.OpenAIAPIKey, oopts...)
	default:
		return nil, fmt.Errorf("unknown recognizer backend: %s", name)
	}
}
