package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/observability"
)

const (
	artifactPrefix = "tts-"
	artifactExt    = ".mp3"
)

// Artifact is a persisted track
type Artifact struct {
	Name string
	Path string
	URL  string
	Size int
}

// RetentionStore writes tracks to a public directory and keeps only the
// most recent limit of them, ordered by modification time.
type RetentionStore struct {
	dir       string
	urlPrefix string
	limit     int
	now       func() time.Time
	logger    zerolog.Logger

	mu sync.Mutex // serializes save+evict across runs
}

// NewRetentionStore creates a store rooted at dir
func NewRetentionStore(dir, urlPrefix string, limit int) *RetentionStore {
	if limit < 1 {
		limit = 1
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &RetentionStore{
		dir:       dir,
		urlPrefix: urlPrefix,
		limit:     limit,
		now:       time.Now,
		logger:    observability.WithComponent("retention_store"),
	}
}

// Dir returns the directory artifacts are written to
func (s *RetentionStore) Dir() string {
	return s.dir
}

// Save writes data as a new artifact and evicts the oldest beyond the limit
func (s *RetentionStore) Save(data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("refusing to store empty artifact")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	name := fmt.Sprintf("%s%d-%s%s", artifactPrefix, s.now().UnixMilli(), uuid.NewString()[:8], artifactExt)
	final := filepath.Join(s.dir, name)

	// Write to a hidden temp file first so the file server never sees a partial artifact
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to publish artifact: %w", err)
	}

	retained, evicted, err := s.evict(name)
	if err != nil {
		// The artifact is already published; eviction catches up on the next save
		s.logger.Warn().Err(err).Msg("Retention eviction failed")
	}
	observability.RecordRetention(retained, evicted)

	s.logger.Info().
		Str("artifact", name).
		Int("bytes", len(data)).
		Int("evicted", evicted).
		Msg("Artifact stored")

	return &Artifact{
		Name: name,
		Path: final,
		URL:  path.Join(s.urlPrefix, name),
		Size: len(data),
	}, nil
}

// List returns artifact names, newest first
func (s *RetentionStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.scan()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

type storedFile struct {
	name    string
	modTime time.Time
}

// scan lists artifacts sorted newest first
func (s *RetentionStore) scan() ([]storedFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output dir: %w", err)
	}

	files := make([]storedFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), artifactPrefix) || !strings.HasSuffix(e.Name(), artifactExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed concurrently
			continue
		}
		files = append(files, storedFile{name: e.Name(), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].name > files[j].name
		}
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// evict removes the oldest artifacts beyond the limit, never keep
func (s *RetentionStore) evict(keep string) (retained, evicted int, err error) {
	files, err := s.scan()
	if err != nil {
		return 0, 0, err
	}

	kept := 0
	for _, f := range files {
		if f.name == keep {
			retained++
			continue
		}
		if kept < s.limit-1 {
			kept++
			continue
		}
		if rmErr := os.Remove(filepath.Join(s.dir, f.name)); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to evict %s: %w", f.name, rmErr)
			kept++
			continue
		}
		evicted++
	}
	return retained + kept, evicted, err
}
