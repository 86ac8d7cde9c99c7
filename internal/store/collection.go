package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
)

// Record is one persisted utterance
type Record struct {
	Timestamp   int64  `json:"timestamp"`
	WavFilename string `json:"wav_filename"`
	MP3Filename string `json:"mp3_filename"`
	Text        string `json:"text"`
	Name        string `json:"name"`
}

var audioFilePattern = regexp.MustCompile(`^output_(\d+)\.(wav|mp3)$`)

// WavName returns the WAV basename for a timestamp
func WavName(ts int64) string {
	return fmt.Sprintf("output_%d.wav", ts)
}

// MP3Name returns the MP3 basename for a timestamp
func MP3Name(ts int64) string {
	return fmt.Sprintf("output_%d.mp3", ts)
}

// ParseAudioName extracts the timestamp from output_<ts>.wav|mp3
func ParseAudioName(name string) (int64, string, bool) {
	m := audioFilePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return ts, m[2], true
}

// Collection is a directory of audio files plus its JSON manifest
type Collection struct {
	mu       *sync.Mutex
	kind     ListType
	dir      string
	manifest string
	records  map[int64]Record
}

func newCollection(mu *sync.Mutex, kind ListType, dir, manifest string) *Collection {
	return &Collection{
		mu:       mu,
		kind:     kind,
		dir:      dir,
		manifest: filepath.Join(dir, manifest),
		records:  make(map[int64]Record),
	}
}

// Kind returns the collection name
func (c *Collection) Kind() ListType {
	return c.kind
}

// Dir returns the collection directory
func (c *Collection) Dir() string {
	return c.dir
}

// ManifestPath returns the JSON manifest path
func (c *Collection) ManifestPath() string {
	return c.manifest
}

// Path joins a stored basename with the collection directory
func (c *Collection) Path(name string) string {
	return c.path(name)
}

func (c *Collection) path(name string) string {
	return filepath.Join(c.dir, filepath.Base(name))
}

// Append adds a record, replacing any record with the same timestamp, and
// persists the manifest
func (c *Collection) Append(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.put(rec)
	c.save()
}

// UpdateName sets the label of a record and persists the manifest
func (c *Collection) UpdateName(ts int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[ts]
	if !ok {
		return ErrNotFound
	}
	rec.Name = NormalizeName(name)
	c.records[ts] = rec
	c.save()
	slog.Info("record renamed", "list", c.kind, "timestamp", ts, "name", rec.Name)
	return nil
}

// Get returns the record with the given timestamp
func (c *Collection) Get(ts int64) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.get(ts)
}

// List returns a copy of all records, newest first
func (c *Collection) List() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.list()
}

// Len returns the number of records
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.records)
}

// Latest returns the newest timestamp, or 0 when empty
func (c *Collection) Latest() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest int64
	for ts := range c.records {
		if ts > latest {
			latest = ts
		}
	}
	return latest
}

// Load reads the manifest, adds stub records for audio files it does not
// mention and writes the reconciled manifest back
func (c *Collection) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := readManifest(c.manifest)
	if err != nil {
		return err
	}

	c.records = make(map[int64]Record, len(records))
	for _, rec := range records {
		rec.WavFilename = baseName(rec.WavFilename)
		rec.MP3Filename = baseName(rec.MP3Filename)
		c.records[rec.Timestamp] = rec
	}

	added := c.reconcile()
	for _, rec := range c.records {
		if rec.WavFilename == "" {
			continue
		}
		if _, err := os.Stat(c.path(rec.WavFilename)); err != nil {
			slog.Warn("audio file missing for record", "list", c.kind, "timestamp", rec.Timestamp, "file", rec.WavFilename)
		}
	}

	slog.Info("collection loaded", "list", c.kind, "dir", c.dir, "records", len(c.records), "recovered", added)
	c.save()
	return nil
}

// Save writes the manifest. Failures are logged and the in-memory state
// stays authoritative.
func (c *Collection) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.save()
}

func (c *Collection) get(ts int64) (Record, bool) {
	rec, ok := c.records[ts]
	return rec, ok
}

func (c *Collection) put(rec Record) {
	rec.WavFilename = baseName(rec.WavFilename)
	rec.MP3Filename = baseName(rec.MP3Filename)
	c.records[rec.Timestamp] = rec
}

func (c *Collection) list() []Record {
	out := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out
}

// reconcile synthesizes records for orphan output_<ts> files
func (c *Collection) reconcile() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		slog.Warn("failed to list collection directory", "dir", c.dir, "err", err)
		return 0
	}

	orphans := make(map[int64]Record)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ext, ok := ParseAudioName(e.Name())
		if !ok {
			continue
		}
		if _, known := c.records[ts]; known {
			continue
		}
		rec := orphans[ts]
		rec.Timestamp = ts
		switch ext {
		case "wav":
			rec.WavFilename = e.Name()
		case "mp3":
			rec.MP3Filename = e.Name()
		}
		orphans[ts] = rec
	}

	for ts, rec := range orphans {
		c.records[ts] = rec
	}
	return len(orphans)
}

func (c *Collection) save() error {
	err := writeManifest(c.manifest, c.list())
	if err != nil {
		slog.Warn("failed to save manifest", "list", c.kind, "path", c.manifest, "err", err)
	}
	return err
}

func baseName(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

func lockPath(manifest string) string {
	return manifest + ".lock"
}

// readManifest returns the records in path. A missing manifest is empty.
func readManifest(path string) ([]Record, error) {
	lock := flock.New(lockPath(path))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("manifest is corrupt, rebuilding from directory", "path", path, "err", err)
		return nil, nil
	}
	return records, nil
}

// writeManifest atomically replaces path with records
func writeManifest(path string, records []Record) error {
	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
