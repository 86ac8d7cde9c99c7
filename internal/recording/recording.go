package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/observe"
	"github.com/yok-tottii/echocap/internal/recognition"
	"github.com/yok-tottii/echocap/internal/segment"
	"github.com/yok-tottii/echocap/internal/store"
	"github.com/yok-tottii/echocap/internal/trim"
	"github.com/yok-tottii/echocap/internal/vad"
)

// State represents the current capture state
type State int

const (
	// Stopped means the capture loop is not running
	Stopped State = iota
	// Listening means frames are being classified but no speech is buffered
	Listening
	// Recording means speech is being buffered
	Recording
	// Processing means a segment is being finalized
	Processing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Listening:
		return "Listening"
	case Recording:
		return "Recording"
	case Processing:
		return "Processing"
	default:
		return "Unknown"
	}
}

var (
	// ErrAlreadyListening is returned by Start while the loop runs
	ErrAlreadyListening = errors.New("already listening")
	// ErrNotListening is returned by Stop while the loop is stopped
	ErrNotListening = errors.New("not listening")
)

// Opener opens the frame source when listening starts
type Opener func() (audio.FrameReader, error)

// Transcriber converts a stored WAV file into a transcription result
type Transcriber interface {
	TranscribeFile(ctx context.Context, wavPath string) recognition.Result
}

// Config holds pipeline configuration
type Config struct {
	Segment    segment.Config
	Trim       trim.Config
	ExportRate int // WAV rate handed to the transcriber
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Segment:    segment.DefaultConfig(),
		Trim:       trim.DefaultConfig(),
		ExportRate: recognition.SampleRate,
	}
}

// Event describes one persisted utterance
type Event struct {
	Record store.Record
	Result recognition.Result
}

// Pipeline runs the capture loop: frames are classified, grouped into
// segments, trimmed, exported, transcribed and appended to the session
type Pipeline struct {
	config      Config
	open        Opener
	classifier  vad.Classifier
	transcriber Transcriber
	encoder     audio.Encoder
	store       *store.Store
	metrics     *observe.Metrics
	now         func() time.Time
	onRecord    func(Event)

	listening  atomic.Bool
	recording  atomic.Bool
	processing atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	source   audio.FrameReader
	engine   *segment.Engine
	finalize sync.Mutex

	tsMu   sync.Mutex
	lastTS int64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithEncoder enables MP3 export
func WithEncoder(e audio.Encoder) Option {
	return func(p *Pipeline) {
		p.encoder = e
	}
}

// WithMetrics records pipeline metrics
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock replaces time.Now for timestamp assignment
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithRecordHook is called after each utterance is persisted
func WithRecordHook(fn func(Event)) Option {
	return func(p *Pipeline) {
		p.onRecord = fn
	}
}

// New creates a pipeline appending to st's session recordings
func New(config Config, open Opener, classifier vad.Classifier, transcriber Transcriber, st *store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		config:      config,
		open:        open,
		classifier:  classifier,
		transcriber: transcriber,
		store:       st,
		now:         time.Now,
		engine:      segment.New(config.Segment),
		lastTS:      st.Recordings().Latest(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start opens the frame source and starts the capture loop
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listening.Load() {
		return ErrAlreadyListening
	}

	source, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.source = source
	p.cancel = cancel
	p.done = make(chan struct{})
	p.engine.Reset()
	p.listening.Store(true)

	go p.run(ctx, source, p.done)

	slog.Info("listening started")
	return nil
}

// Stop ends the capture loop after the current frame. A segment being
// finalized is completed; buffered speech that was not finalized is dropped.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.listening.Load() {
		return ErrNotListening
	}

	p.listening.Store(false)
	p.cancel()
	<-p.done

	err := p.source.Close()
	p.source = nil
	p.recording.Store(false)

	slog.Info("listening stopped")
	if err != nil {
		return fmt.Errorf("failed to close frame source: %w", err)
	}
	return nil
}

// Toggle starts or stops listening
func (p *Pipeline) Toggle(ctx context.Context) error {
	if p.Listening() {
		return p.Stop()
	}
	return p.Start(ctx)
}

// Listening reports whether the capture loop runs
func (p *Pipeline) Listening() bool {
	return p.listening.Load()
}

// Recording reports whether speech is buffered or being finalized
func (p *Pipeline) Recording() bool {
	return p.recording.Load()
}

// State returns the current capture state
func (p *Pipeline) State() State {
	switch {
	case !p.listening.Load():
		return Stopped
	case p.processing.Load():
		return Processing
	case p.recording.Load():
		return Recording
	default:
		return Listening
	}
}

// Status snapshots the flags and both collections
func (p *Pipeline) Status() store.Status {
	return p.store.Status(p.Listening(), p.Recording())
}

// Wait blocks until the capture loop exits
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Pipeline) run(ctx context.Context, source audio.FrameReader, done chan struct{}) {
	defer close(done)
	defer logOverflows(source)

	rate := p.config.Segment.SampleRate
	for {
		frame, err := source.ReadFrame()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				slog.Warn("frame source closed, capture loop exiting")
				p.listening.Store(false)
				return
			}
			slog.Warn("failed to read frame", "err", err)
			if p.metrics != nil {
				p.metrics.FrameErrors.Add(ctx, 1)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.Segment.FrameDuration):
			}
			continue
		}

		speech, err := p.classifier.IsSpeech(frame, rate)
		if err != nil {
			slog.Debug("classifier rejected frame", "err", err)
			speech = false
		}

		seg, ok := p.engine.Push(frame, speech)
		if p.engine.Recording() && !p.recording.Load() {
			p.recording.Store(true)
			slog.Debug("speech detected, recording")
		}
		if !ok {
			continue
		}

		// runs on the capture goroutine; frames arriving meanwhile are not read
		p.finalizeSegment(context.WithoutCancel(ctx), seg)
		p.recording.Store(false)
	}
}

func logOverflows(source audio.FrameReader) {
	counter, ok := source.(interface{ Overflows() int })
	if !ok {
		return
	}
	if n := counter.Overflows(); n > 0 {
		slog.Info("capture input overflowed", "count", n)
	}
}

// Finalize processes a segment as the capture loop would. It is exported for
// callers that feed segments from another source.
func (p *Pipeline) Finalize(ctx context.Context, seg segment.Segment) (store.Record, bool) {
	return p.finalizeSegment(ctx, seg)
}

func (p *Pipeline) finalizeSegment(ctx context.Context, seg segment.Segment) (store.Record, bool) {
	p.finalize.Lock()
	defer p.finalize.Unlock()

	p.processing.Store(true)
	defer p.processing.Store(false)

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.FinalizeDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	trimmed := trim.Trim(seg.Samples, seg.SampleRate, p.config.Trim)
	if len(trimmed) == 0 {
		slog.Debug("segment empty after trimming, discarded", "frames", seg.Frames)
		if p.metrics != nil {
			p.metrics.SegmentsDiscarded.Add(ctx, 1)
		}
		return store.Record{}, false
	}

	ts := p.nextTimestamp()
	dir := p.store.Recordings().Dir()
	rec := store.Record{
		Timestamp:   ts,
		WavFilename: store.WavName(ts),
	}

	wavPath := p.store.Recordings().Path(rec.WavFilename)
	exported := audio.ResampleMono16(trimmed, seg.SampleRate, p.config.ExportRate)
	if err := audio.WriteWAV(wavPath, exported, p.config.ExportRate); err != nil {
		slog.Error("failed to write utterance wav", "path", wavPath, "err", err)
		return store.Record{}, false
	}

	res := p.transcriber.TranscribeFile(ctx, wavPath)
	rec.Text = res.Transcript()
	if res.Err != nil {
		if p.metrics != nil {
			p.metrics.RecordTranscriptionError(ctx, res.Backend)
		}
	} else {
		slog.Info("transcribed utterance", "timestamp", ts, "text", res.Text, "elapsed", res.Elapsed)
	}
	if p.metrics != nil {
		p.metrics.TranscriptionDuration.Record(ctx, res.Elapsed.Seconds())
	}

	if name, err := p.exportMP3(ctx, dir, ts, trimmed, seg.SampleRate); err != nil {
		slog.Warn("mp3 export failed, keeping wav only", "timestamp", ts, "err", err)
	} else {
		rec.MP3Filename = name
	}

	p.store.Recordings().Append(rec)

	if p.metrics != nil {
		p.metrics.SegmentsFinalized.Add(ctx, 1)
		p.metrics.UtteranceDuration.Record(ctx, audio.Duration(len(trimmed), seg.SampleRate))
	}
	if p.onRecord != nil {
		p.onRecord(Event{Record: rec, Result: res})
	}
	return rec, true
}

// exportMP3 encodes the full-rate trimmed audio next to the WAV
func (p *Pipeline) exportMP3(ctx context.Context, dir string, ts int64, pcm []int16, rate int) (string, error) {
	if p.encoder == nil {
		return "", errors.New("no mp3 encoder configured")
	}

	src, err := os.CreateTemp(dir, "encode-*.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create encoder input: %w", err)
	}
	srcPath := src.Name()
	src.Close()
	defer os.Remove(srcPath)

	if err := audio.WriteWAV(srcPath, pcm, rate); err != nil {
		return "", err
	}

	name := store.MP3Name(ts)
	if err := p.encoder.Encode(ctx, srcPath, p.store.Recordings().Path(name)); err != nil {
		return "", err
	}
	return name, nil
}

// nextTimestamp returns the current unix second, bumped past the last one
// handed out so timestamps stay unique within the session
func (p *Pipeline) nextTimestamp() int64 {
	p.tsMu.Lock()
	defer p.tsMu.Unlock()

	ts := p.now().Unix()
	if ts <= p.lastTS {
		ts = p.lastTS + 1
	}
	p.lastTS = ts
	return ts
}
