// Package search keeps a Bleve index of directory users for prefix and fuzzy lookup.
// The index is a cache over the store and can be rebuilt at any time.
package search

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/dseinapp/dsein-server/internal/domain"
)

// mappingVersion changes whenever buildIndexMapping does. An on-disk index
// stamped with another version is discarded at open.
const mappingVersion = "1"

const (
	indexDirName  = "users.bleve"
	stampFileName = "users.version"
	batchSize     = 500
)

// Options configures the search index.
type Options struct {
	DataPath string       // Directory holding the index; ignored when InMemory
	InMemory bool         // Keep the index in memory only
	Logger   *slog.Logger // Defaults to a discarding logger
}

// SearchIndex is safe for concurrent use. Writers and readers share the read
// lock; Rebuild swaps the underlying index under the write lock.
type SearchIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	dir    string // empty for in-memory indexes
	logger *slog.Logger
}

// NewSearchIndex opens the index under opts.DataPath, creating it when it is
// missing, unreadable or built with an older mapping.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &SearchIndex{logger: logger}
	if !opts.InMemory {
		if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create search dir: %w", err)
		}
		s.dir = opts.DataPath
	}

	index, err := s.open()
	if err != nil {
		return nil, err
	}
	s.index = index
	return s, nil
}

func (s *SearchIndex) indexPath() string { return filepath.Join(s.dir, indexDirName) }
func (s *SearchIndex) stampPath() string { return filepath.Join(s.dir, stampFileName) }

// open reuses a compatible on-disk index or creates a fresh one.
func (s *SearchIndex) open() (bleve.Index, error) {
	if s.dir == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return index, nil
	}

	if _, err := os.Stat(s.indexPath()); err == nil {
		stamp, _ := os.ReadFile(s.stampPath())
		if string(stamp) == mappingVersion {
			index, err := bleve.Open(s.indexPath())
			if err == nil {
				s.logger.Info("opened search index", "path", s.indexPath())
				return index, nil
			}
			s.logger.Warn("search index unreadable, recreating", "path", s.indexPath(), "error", err)
		} else {
			s.logger.Info("search mapping changed, recreating",
				"old_version", string(stamp), "new_version", mappingVersion)
		}
	}
	return s.create()
}

// create replaces whatever is on disk with an empty index.
func (s *SearchIndex) create() (bleve.Index, error) {
	if err := os.RemoveAll(s.indexPath()); err != nil {
		return nil, fmt.Errorf("remove old index: %w", err)
	}
	index, err := bleve.New(s.indexPath(), buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := os.WriteFile(s.stampPath(), []byte(mappingVersion), 0o644); err != nil {
		s.logger.Warn("failed to stamp search index", "error", err)
	}
	s.logger.Info("created search index", "path", s.indexPath(), "mapping_version", mappingVersion)
	return index, nil
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexUser adds or replaces the document for u.
func (s *SearchIndex) IndexUser(u *domain.User) error {
	doc := NewUserDocument(u)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexUsers upserts users in batches.
func (s *SearchIndex) IndexUsers(users []*domain.User) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for start := 0; start < len(users); start += batchSize {
		chunk := users[start:min(start+batchSize, len(users))]

		batch := s.index.NewBatch()
		for _, u := range chunk {
			doc := NewUserDocument(u)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch at %d: %w", start, err)
		}
	}
	return nil
}

// DeleteUser removes a user document. Unknown ids are not an error.
func (s *SearchIndex) DeleteUser(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// DocumentCount returns the number of indexed users.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild replaces the index with an empty one. It blocks every other call
// while it runs.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closeErr := s.index.Close()

	var (
		index bleve.Index
		err   error
	)
	if s.dir == "" {
		index, err = bleve.NewMemOnly(buildIndexMapping())
	} else {
		index, err = s.create()
	}
	if err != nil {
		return errors.Join(closeErr, fmt.Errorf("recreate index: %w", err))
	}

	s.index = index
	if closeErr != nil {
		s.logger.Warn("closing old search index failed", "error", closeErr)
	}
	return nil
}
