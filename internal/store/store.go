// Package store persists transcribed utterances.
//
// A Store owns two collections: the recordings of the current capture
// session and the favorites shared across sessions. Each collection is a
// directory holding output_<ts>.wav / output_<ts>.mp3 files and a JSON
// manifest. Both collections are guarded by the Store's single mutex;
// unexported helpers expect it to be held.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ListType names a collection
type ListType string

const (
	Recordings ListType = "recordings"
	Favorites  ListType = "favorites"
)

const (
	// FavoritesDir is the favorites directory under the data root
	FavoritesDir = "favorites"
	// SessionPrefix prefixes session directory names
	SessionPrefix = "session_"

	recordingsManifest = "recordings.json"
	favoritesManifest  = "favorites.json"
)

var (
	// ErrNotFound is returned for unknown record timestamps
	ErrNotFound = errors.New("record not found")
	// ErrUnknownList is returned for list names other than recordings/favorites
	ErrUnknownList = errors.New("unknown list type")
)

// ParseListType validates a list name
func ParseListType(s string) (ListType, error) {
	switch ListType(s) {
	case Recordings, Favorites:
		return ListType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownList, s)
	}
}

// Status is a snapshot of the capture flags and both collections
type Status struct {
	IsListening bool     `json:"is_listening"`
	IsRecording bool     `json:"is_recording"`
	Recordings  []Record `json:"recordings"`
	Favorites   []Record `json:"favorites"`
}

// Store owns the session recordings and the favorites
type Store struct {
	mu         sync.Mutex
	root       string
	recordings *Collection
	favorites  *Collection
}

// SessionName returns the directory name of a session started at t
func SessionName(t time.Time) string {
	return fmt.Sprintf("%s%d", SessionPrefix, t.Unix())
}

// Open creates a new session directory under root and loads both
// collections
func Open(root string, now time.Time) (*Store, error) {
	return OpenSession(root, filepath.Join(root, SessionName(now)))
}

// OpenSession loads an existing (or new) session directory together with
// the favorites under root
func OpenSession(root, sessionDir string) (*Store, error) {
	favDir := filepath.Join(root, FavoritesDir)
	for _, dir := range []string{sessionDir, favDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	s := &Store{root: root}
	s.recordings = newCollection(&s.mu, Recordings, sessionDir, recordingsManifest)
	s.favorites = newCollection(&s.mu, Favorites, favDir, favoritesManifest)

	if err := s.recordings.Load(); err != nil {
		return nil, err
	}
	if err := s.favorites.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Sessions returns the session directories under root, newest first
func Sessions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}

	type session struct {
		path  string
		start int64
	}
	var found []session
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), SessionPrefix) {
			continue
		}
		start, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), SessionPrefix), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, session{path: filepath.Join(root, e.Name()), start: start})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start > found[j].start })

	out := make([]string, len(found))
	for i, s := range found {
		out[i] = s.path
	}
	return out, nil
}

// Root returns the data root
func (s *Store) Root() string {
	return s.root
}

// Recordings returns the session collection
func (s *Store) Recordings() *Collection {
	return s.recordings
}

// Favorites returns the favorites collection
func (s *Store) Favorites() *Collection {
	return s.favorites
}

// Collection returns the collection named by list
func (s *Store) Collection(list ListType) (*Collection, error) {
	switch list {
	case Recordings:
		return s.recordings, nil
	case Favorites:
		return s.favorites, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, list)
	}
}

// UpdateName renames a record in the given collection
func (s *Store) UpdateName(list ListType, ts int64, name string) error {
	c, err := s.Collection(list)
	if err != nil {
		return err
	}
	return c.UpdateName(ts, name)
}

// PromoteToFavorite copies a session recording and its audio files into
// the favorites. Promoting an existing favorite is a no-op.
func (s *Store) PromoteToFavorite(ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordings.get(ts)
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.favorites.get(ts); ok {
		slog.Debug("recording already in favorites", "timestamp", ts)
		return nil
	}

	var copied []string
	for _, name := range []string{rec.WavFilename, rec.MP3Filename} {
		if name == "" {
			continue
		}
		src := s.recordings.path(name)
		dst := s.favorites.path(name)
		if err := copyFile(src, dst); err != nil {
			// a leftover file would come back as a stub favorite on the next load
			removeAll(append(copied, dst))
			return fmt.Errorf("failed to copy %s to favorites: %w", name, err)
		}
		copied = append(copied, dst)
	}

	s.favorites.put(rec)
	s.favorites.save()
	slog.Info("recording added to favorites", "timestamp", ts)
	return nil
}

// Status snapshots both collections in descending timestamp order
func (s *Store) Status(listening, recording bool) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		IsListening: listening,
		IsRecording: recording,
		Recordings:  s.recordings.list(),
		Favorites:   s.favorites.list(),
	}
}

// NormalizeName trims and NFC-normalizes a user label
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func removeAll(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove partial favorite file", "path", p, "err", err)
		}
	}
}

// copyFile copies src to dst preserving the modification time
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
