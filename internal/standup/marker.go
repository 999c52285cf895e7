package standup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// MarkerStore is a persisted check-then-set store with per-key expiry. The
// once-per-month dedup lives here rather than in memory so it survives
// process restarts.
type MarkerStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
}

// FileMarkerStore keeps markers in a small JSON document on disk, written
// atomically via temp file and rename.
type FileMarkerStore struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewFileMarkerStore returns a file-backed marker store.
func NewFileMarkerStore(path string, logger zerolog.Logger) *FileMarkerStore {
	return &FileMarkerStore{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// Exists reports whether an unexpired marker is present for the key.
func (s *FileMarkerStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	markers, err := s.load()
	if err != nil {
		return false, err
	}
	expiry, ok := markers[key]
	if !ok {
		return false, nil
	}
	return s.now().Before(expiry), nil
}

// Set stores a marker expiring after ttl, pruning expired entries.
func (s *FileMarkerStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markers, err := s.load()
	if err != nil {
		return err
	}

	now := s.now()
	for existing, expiry := range markers {
		if !now.Before(expiry) {
			delete(markers, existing)
		}
	}
	markers[key] = now.Add(ttl)

	return s.save(markers)
}

func (s *FileMarkerStore) load() (map[string]time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]time.Time{}, nil
		}
		return nil, err
	}

	var markers map[string]time.Time
	if err := json.Unmarshal(data, &markers); err != nil {
		s.logger.Warn().Str("path", s.path).Err(err).Msg("marker file corrupt, starting fresh")
		return map[string]time.Time{}, nil
	}
	if markers == nil {
		markers = map[string]time.Time{}
	}
	return markers, nil
}

func (s *FileMarkerStore) save(markers map[string]time.Time) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".markers-*.json")
	if err != nil {
		return err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if err := json.NewEncoder(tempFile).Encode(markers); err != nil {
		_ = tempFile.Close()
		cleanup()
		return err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tempFile.Name(), s.path); err != nil {
		cleanup()
		return err
	}
	return nil
}
