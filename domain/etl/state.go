package etl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kinohub/moviesearch/pkg/logger"
)

// timeLayouts accepted when parsing watermark values. The store itself writes
// RFC 3339; the zone-less layout keeps state files produced by earlier
// deployments readable.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// State persists per-table watermarks in a single JSON file. The whole map is
// rewritten on every Set via a temp file and rename, so a crash mid-write
// never leaves a truncated file behind.
//
// The file is process-exclusive: exactly one coordinator may own it.
type State struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	data map[string]time.Time
}

// NewState loads the state file at path. A missing file starts empty; a file
// that exists but cannot be parsed is a hard error, the store refuses to
// overwrite potentially valid watermarks.
func NewState(path string, log *slog.Logger) (*State, error) {
	s := &State{
		path: path,
		log:  log.With(logger.Scope("etl.state")),
		data: make(map[string]time.Time),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("state file does not exist, starting fresh", slog.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}

	for key, value := range values {
		ts, err := parseWatermark(value)
		if err != nil {
			return fmt.Errorf("parse state file %s: key %q: %w", s.path, key, err)
		}
		s.data[key] = ts
	}

	s.log.Debug("state loaded", slog.String("path", s.path), slog.Int("keys", len(s.data)))
	return nil
}

func parseWatermark(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// Get returns the watermark stored under key, or nil when the key is absent.
func (s *State) Get(key string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.data[key]
	if !ok {
		return nil
	}
	return &ts
}

// Set stores ts under key, or removes the key when ts is nil, then rewrites
// the whole file.
func (s *State) Set(key string, ts *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts == nil {
		delete(s.data, key)
	} else {
		s.data[key] = *ts
	}
	return s.save()
}

// save writes the map as indented JSON to a temp file, then renames it over
// the real path. Caller holds s.mu.
func (s *State) save() error {
	values := make(map[string]string, len(s.data))
	for key, ts := range s.data {
		values[key] = ts.Format(time.RFC3339Nano)
	}

	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file %s: %w", s.path, err)
	}

	s.log.Debug("state saved", slog.String("path", s.path), slog.Int("keys", len(values)))
	return nil
}

// Keys returns the stored watermark keys, for diagnostics.
func (s *State) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys
}
