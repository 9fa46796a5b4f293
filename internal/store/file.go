package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valpere/cvtran/internal"
)

const indexFile = "index.json"

type indexEntry struct {
	Timestamp int64  `json:"timestamp"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
}

// FileStore keeps one payload file per fingerprint plus index.json mapping
// fingerprint to {timestamp, language, filename}. The index is the source
// of truth for expiry. Writes and index read-modify-write cycles are
// serialized by a mutex and files are replaced atomically, so concurrent
// stores never drop each other's entries.
type FileStore struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	mu        sync.Mutex
}

func NewFileStore(dir string, retention time.Duration) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory: %v", internal.ErrCacheIO, err)
	}
	return &FileStore{dir: dir, retention: retention, now: time.Now}, nil
}

func (s *FileStore) Lookup(ctx context.Context, fingerprint string) (json.RawMessage, bool, error) {
	if err := checkFingerprint(fingerprint); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	index, err := s.readIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}

	entry, ok := index[fingerprint]
	if !ok || expired(time.UnixMilli(entry.Timestamp), s.now(), s.retention) {
		return nil, false, nil
	}

	data, err := os.ReadFile(filepath.Join(s.dir, entry.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read payload: %v", internal.ErrCacheIO, err)
	}
	if !json.Valid(data) {
		return nil, false, fmt.Errorf("%w: corrupt payload %s", internal.ErrCacheIO, entry.Filename)
	}
	return json.RawMessage(data), true, nil
}

func (s *FileStore) Store(ctx context.Context, fingerprint, targetLang string, doc json.RawMessage) error {
	if err := checkFingerprint(fingerprint); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filename := fingerprint + ".json"
	if err := writeFileAtomic(filepath.Join(s.dir, filename), doc, 0o644); err != nil {
		return fmt.Errorf("%w: write payload: %v", internal.ErrCacheIO, err)
	}

	index, err := s.readIndex()
	if err != nil {
		return err
	}
	index[fingerprint] = indexEntry{
		Timestamp: s.now().UnixMilli(),
		Language:  CanonicalLanguage(targetLang),
		Filename:  filename,
	}
	return s.writeIndex(index)
}

// Clear removes the indexed payloads, the index, unindexed payloads left
// by earlier failed writes and leftover temp files. Other files in the
// directory are not touched. It returns the number of translations removed.
func (s *FileStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range index {
		if err := s.remove(entry.Filename); err != nil {
			return removed, err
		}
		removed++
	}
	if err := s.remove(indexFile); err != nil {
		return removed, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return removed, fmt.Errorf("%w: list cache directory: %v", internal.ErrCacheIO, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		switch {
		case isPayloadName(name):
			removed++
		case strings.HasPrefix(name, tempPrefix):
		default:
			continue
		}
		if err := s.remove(name); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *FileStore) remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", internal.ErrCacheIO, name, err)
	}
	return nil
}

// isPayloadName reports whether name has the form <sha256 hex>.json.
func isPayloadName(name string) bool {
	fp, ok := strings.CutSuffix(name, ".json")
	if !ok || len(fp) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(fp)
	return err == nil
}

func (s *FileStore) Stats(ctx context.Context) (*CacheStats, error) {
	s.mu.Lock()
	index, err := s.readIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stats := &CacheStats{Languages: map[string]int{}}
	for _, entry := range index {
		stats.TotalTranslations++
		stats.Languages[entry.Language]++
		if info, err := os.Stat(filepath.Join(s.dir, entry.Filename)); err == nil {
			stats.CacheSizeBytes += info.Size()
		}
	}
	return stats, nil
}

func (s *FileStore) Close() error {
	return nil
}

// readIndex must be called with s.mu held. A missing index is empty.
func (s *FileStore) readIndex() (map[string]indexEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]indexEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read index: %v", internal.ErrCacheIO, err)
	}

	index := map[string]indexEntry{}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: decode index: %v", internal.ErrCacheIO, err)
	}
	return index, nil
}

// writeIndex must be called with s.mu held.
func (s *FileStore) writeIndex(index map[string]indexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", internal.ErrCacheIO, err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, indexFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: write index: %v", internal.ErrCacheIO, err)
	}
	return nil
}

func checkFingerprint(fp string) error {
	if fp == "" || fp == strings.TrimSuffix(indexFile, ".json") || strings.ContainsAny(fp, `/\.`) {
		return fmt.Errorf("%w: invalid fingerprint %q", internal.ErrCacheIO, fp)
	}
	return nil
}
