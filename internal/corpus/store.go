package corpus

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/storage"
)

// ErrDocumentLocked is returned when another run holds a work's document.
var ErrDocumentLocked = errors.New("document is locked by another run")

// ErrInvalidID is returned for work ids that could name a path outside the
// document directory.
var ErrInvalidID = errors.New("invalid work id")

const documentExt = ".json"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidID reports whether id may name a document. Ids are limited to ASCII
// letters, digits, underscores and hyphens.
func ValidID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}

// Store reads and writes work documents in one directory. Writes replace the
// previous snapshot atomically and may be mirrored to a second provider.
type Store struct {
	dir    string
	local  *storage.LocalProvider
	mirror storage.Provider
	logger *zap.Logger
}

// NewStore prepares dir for documents. mirror may be nil.
func NewStore(dir string, mirror storage.Provider, logger *zap.Logger) (*Store, error) {
	local, err := storage.NewLocalProvider(dir)
	if err != nil {
		return nil, fmt.Errorf("open document directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, local: local, mirror: mirror, logger: logger}, nil
}

// Dir returns the document directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the document path for a work id. The id is not checked;
// Load, Lock and Save reject ids that fail ValidID.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+documentExt)
}

// Load reads the document for id. A missing document returns (nil, nil).
// Fields outside the Work schema are ignored and not kept by a later Save.
func (s *Store) Load(id string) (*Work, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	var w Work
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	return &w, nil
}

// Lock takes the exclusive per-work lock without blocking. The returned
// function releases it.
func (s *Store) Lock(id string) (func() error, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	lock := flock.New(s.Path(id) + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock document %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrDocumentLocked)
	}
	return lock.Unlock, nil
}

// Save writes w when its encoding differs from the document on disk and
// reports whether a write happened. A failed write leaves the previous
// snapshot in place. Mirror failures are logged, not returned.
func (s *Store) Save(ctx context.Context, w *Work) (bool, error) {
	if err := ValidID(w.ID); err != nil {
		return false, err
	}
	data, err := Encode(w)
	if err != nil {
		return false, err
	}
	name := w.ID + documentExt
	if current, err := os.ReadFile(s.Path(w.ID)); err == nil && sha256.Sum256(current) == sha256.Sum256(data) {
		s.logger.Debug("document unchanged", zap.String("work", w.ID))
		return false, nil
	}
	if err := s.local.Save(ctx, name, data); err != nil {
		return false, fmt.Errorf("persist document %s: %w", w.ID, err)
	}
	if s.mirror != nil {
		if err := s.mirror.Save(ctx, name, data); err != nil {
			s.logger.Warn("mirror snapshot failed", zap.String("work", w.ID), zap.Error(err))
		}
	}
	return true, nil
}

// List returns the ids of every document in the directory, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, documentExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, documentExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// Encode renders w as two-space indented JSON without escaping non-ASCII or HTML characters.
// Only Work schema fields are written.
func Encode(w *Work) ([]byte, error) {
	out := *w
	out.Chapters = slices.Clone(w.Chapters)
	if out.Chapters == nil {
		out.Chapters = []*Chapter{}
	}
	for i, ch := range out.Chapters {
		if ch.Passages == nil {
			cp := *ch
			cp.Passages = []Passage{}
			out.Chapters[i] = &cp
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encode document %s: %w", w.ID, err)
	}
	return buf.Bytes(), nil
}
