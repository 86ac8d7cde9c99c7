package recording

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/recognition"
	"github.com/yok-tottii/echocap/internal/segment"
	"github.com/yok-tottii/echocap/internal/store"
)

const (
	rate      = 48000
	frameSize = 960
)

func toneFrame(amp int16) []int16 {
	f := make([]int16, frameSize)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

// scriptedSource plays back frames, then yields silence until closed
type scriptedSource struct {
	mu     sync.Mutex
	frames [][]int16
	pos    int
	closed bool
}

func (s *scriptedSource) ReadFrame() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, os.ErrClosed
	}
	if s.pos < len(s.frames) {
		f := s.frames[s.pos]
		s.pos++
		return f, nil
	}
	time.Sleep(time.Millisecond)
	return make([]int16, frameSize), nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// amplitudeClassifier treats any non-zero first sample as speech
type amplitudeClassifier struct{}

func (amplitudeClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	return len(frame) > 0 && frame[0] != 0, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	paths []string
}

func (f *fakeTranscriber) TranscribeFile(ctx context.Context, wavPath string) recognition.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, wavPath)
	return recognition.Result{Text: f.text, Err: f.err, Backend: "fake"}
}

type fakeEncoder struct {
	err error
}

func (e *fakeEncoder) Encode(ctx context.Context, wavPath, dstPath string) error {
	if e.err != nil {
		return e.err
	}
	if _, err := audio.ReadWAV(wavPath); err != nil {
		return err
	}
	return os.WriteFile(dstPath, []byte("mp3"), 0644)
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return st
}

func speechSegment(frames int) segment.Segment {
	var samples []int16
	for i := 0; i < frames; i++ {
		samples = append(samples, toneFrame(8000)...)
	}
	return segment.Segment{Samples: samples, SampleRate: rate, Frames: frames}
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Stopped, "Stopped"},
		{Listening, "Listening"},
		{Recording, "Recording"},
		{Processing, "Processing"},
		{State(42), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.ExportRate != 16000 {
		t.Errorf("Expected export rate 16000, got %d", config.ExportRate)
	}
	if config.Segment.SilenceThreshold != 500*time.Millisecond {
		t.Errorf("Expected silence threshold 500ms, got %v", config.Segment.SilenceThreshold)
	}
}

func TestFinalize_PersistsUtterance(t *testing.T) {
	st := newStore(t)
	tr := &fakeTranscriber{text: "hello world"}
	p := New(DefaultConfig(), nil, amplitudeClassifier{}, tr, st,
		WithEncoder(&fakeEncoder{}),
		WithClock(fixedClock(1700000100)),
	)

	rec, ok := p.Finalize(context.Background(), speechSegment(10))
	if !ok {
		t.Fatal("Expected segment to be persisted")
	}

	want := store.Record{
		Timestamp:   1700000100,
		WavFilename: "output_1700000100.wav",
		MP3Filename: "output_1700000100.mp3",
		Text:        "hello world",
	}
	if rec != want {
		t.Errorf("Expected %+v, got %+v", want, rec)
	}

	got, ok := st.Recordings().Get(1700000100)
	if !ok || got != want {
		t.Errorf("Expected record in session, got %+v", got)
	}

	pcm, err := audio.ReadWAV(st.Recordings().Path(rec.WavFilename))
	if err != nil {
		t.Fatalf("Failed to read exported wav: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 {
		t.Errorf("Expected 16kHz mono, got %d Hz %d ch", pcm.SampleRate, pcm.Channels)
	}
	if len(pcm.Samples) != 3200 {
		t.Errorf("Expected 200ms at 16kHz (3200 samples), got %d", len(pcm.Samples))
	}
	if _, err := os.Stat(st.Recordings().Path(rec.MP3Filename)); err != nil {
		t.Errorf("Expected mp3 file: %v", err)
	}

	entries, _ := os.ReadDir(st.Recordings().Dir())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "encode-") {
			t.Errorf("Expected encoder input to be removed, found %s", e.Name())
		}
	}
}

func TestFinalize_SilentSegmentDiscarded(t *testing.T) {
	st := newStore(t)
	tr := &fakeTranscriber{text: "never"}
	p := New(DefaultConfig(), nil, amplitudeClassifier{}, tr, st)

	quiet := segment.Segment{Samples: make([]int16, 10*frameSize), SampleRate: rate, Frames: 10}
	if _, ok := p.Finalize(context.Background(), quiet); ok {
		t.Error("Expected silent segment to be discarded")
	}
	if st.Recordings().Len() != 0 {
		t.Errorf("Expected zero records, got %d", st.Recordings().Len())
	}
	if len(tr.paths) != 0 {
		t.Errorf("Expected no transcription, got %d", len(tr.paths))
	}
}

func TestFinalize_TranscriptionError(t *testing.T) {
	st := newStore(t)
	tr := &fakeTranscriber{err: errors.New("request timed out")}

	var events []Event
	p := New(DefaultConfig(), nil, amplitudeClassifier{}, tr, st,
		WithEncoder(&fakeEncoder{}),
		WithRecordHook(func(e Event) { events = append(events, e) }),
	)

	rec, ok := p.Finalize(context.Background(), speechSegment(5))
	if !ok {
		t.Fatal("Expected failed transcription to still be persisted")
	}
	if rec.Text != "[Error: request timed out]" {
		t.Errorf("Expected error marker, got '%s'", rec.Text)
	}
	if len(events) != 1 || events[0].Result.OK() {
		t.Errorf("Expected one failed event, got %+v", events)
	}
}

func TestFinalize_EncoderFailureKeepsWav(t *testing.T) {
	st := newStore(t)
	p := New(DefaultConfig(), nil, amplitudeClassifier{}, &fakeTranscriber{text: "x"}, st,
		WithEncoder(&fakeEncoder{err: errors.New("ffmpeg not found")}),
	)

	rec, ok := p.Finalize(context.Background(), speechSegment(5))
	if !ok {
		t.Fatal("Expected record despite encoder failure")
	}
	if rec.MP3Filename != "" {
		t.Errorf("Expected no mp3 filename, got '%s'", rec.MP3Filename)
	}
	if _, err := os.Stat(st.Recordings().Path(rec.WavFilename)); err != nil {
		t.Errorf("Expected wav file: %v", err)
	}
}

func TestFinalize_UniqueTimestamps(t *testing.T) {
	st := newStore(t)
	p := New(DefaultConfig(), nil, amplitudeClassifier{}, &fakeTranscriber{text: "x"}, st,
		WithClock(fixedClock(1700000200)),
	)

	for i := 0; i < 3; i++ {
		if _, ok := p.Finalize(context.Background(), speechSegment(5)); !ok {
			t.Fatalf("Finalize %d failed", i)
		}
	}

	list := st.Recordings().List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(list))
	}
	for i, want := range []int64{1700000202, 1700000201, 1700000200} {
		if list[i].Timestamp != want {
			t.Errorf("Record %d: expected timestamp %d, got %d", i, want, list[i].Timestamp)
		}
	}
}

func TestPipeline_CapturesOneUtterance(t *testing.T) {
	st := newStore(t)

	var frames [][]int16
	for i := 0; i < 10; i++ {
		frames = append(frames, toneFrame(8000))
	}
	for i := 0; i < 30; i++ {
		frames = append(frames, make([]int16, frameSize))
	}
	source := &scriptedSource{frames: frames}

	persisted := make(chan Event, 4)
	p := New(DefaultConfig(),
		func() (audio.FrameReader, error) { return source, nil },
		amplitudeClassifier{},
		&fakeTranscriber{text: "captured"},
		st,
		WithRecordHook(func(e Event) { persisted <- e }),
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if !p.Listening() {
		t.Error("Expected listening after Start")
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyListening) {
		t.Errorf("Expected ErrAlreadyListening, got %v", err)
	}

	select {
	case e := <-persisted:
		if e.Record.Text != "captured" {
			t.Errorf("Expected text 'captured', got '%s'", e.Record.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for utterance")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
	if p.Listening() || p.Recording() {
		t.Error("Expected flags cleared after Stop")
	}
	if p.State() != Stopped {
		t.Errorf("Expected Stopped, got %s", p.State())
	}
	if !source.closed {
		t.Error("Expected source closed after Stop")
	}
	if st.Recordings().Len() != 1 {
		t.Errorf("Expected exactly one record, got %d", st.Recordings().Len())
	}
	if err := p.Stop(); !errors.Is(err, ErrNotListening) {
		t.Errorf("Expected ErrNotListening, got %v", err)
	}
}

func TestPipeline_OpenFailure(t *testing.T) {
	st := newStore(t)
	p := New(DefaultConfig(),
		func() (audio.FrameReader, error) { return nil, audio.ErrDeviceUnavailable },
		amplitudeClassifier{}, &fakeTranscriber{}, st,
	)

	err := p.Start(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if p.Listening() {
		t.Error("Expected not listening after failed Start")
	}
}

func TestPipeline_Toggle(t *testing.T) {
	st := newStore(t)
	p := New(DefaultConfig(),
		func() (audio.FrameReader, error) { return &scriptedSource{}, nil },
		amplitudeClassifier{}, &fakeTranscriber{}, st,
	)

	if err := p.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle on failed: %v", err)
	}
	if !p.Listening() {
		t.Error("Expected listening after first toggle")
	}
	if err := p.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle off failed: %v", err)
	}
	if p.Listening() {
		t.Error("Expected stopped after second toggle")
	}

	status := p.Status()
	if status.IsListening || status.IsRecording {
		t.Errorf("Expected idle status, got %+v", status)
	}
}
