// Package docstore is the upload boundary for source documents. It
// validates format and size, then persists content next to its handle.
package docstore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avetrov/examforge/internal/model"
	"github.com/avetrov/examforge/internal/store"
)

var (
	// ErrUnsupportedFormat is returned for any non-PDF upload.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrTooLarge is returned when the upload exceeds the size ceiling.
	ErrTooLarge = errors.New("document too large")
)

// DefaultMaxUploadBytes is the default size ceiling (10 MB).
const DefaultMaxUploadBytes = 10 << 20

const pdfMIME = "application/pdf"

// Store validates and persists uploaded documents.
type Store struct {
	st       *store.Store
	maxBytes int64
}

// New creates a document store with the given size ceiling. A zero or
// negative ceiling falls back to DefaultMaxUploadBytes.
func New(st *store.Store, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Store{st: st, maxBytes: maxBytes}
}

// Put validates the upload and returns the stored handle.
func (s *Store) Put(owner *model.Identity, name, mime string, content []byte) (*model.DocumentHandle, error) {
	if mime != pdfMIME {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	if int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds ceiling of %d", ErrTooLarge, len(content), s.maxBytes)
	}

	doc := &model.DocumentHandle{
		ID:         uuid.NewString(),
		OwnerID:    owner.ID,
		Name:       name,
		SizeBytes:  int64(len(content)),
		MIME:       mime,
		UploadedAt: time.Now(),
	}
	if err := s.st.PutDocument(*doc, content); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	return doc, nil
}

// Get returns a stored handle, or nil when the id is unknown.
func (s *Store) Get(id string) (*model.DocumentHandle, error) {
	return s.st.GetDocument(id)
}

// Content returns the raw bytes of a stored document.
func (s *Store) Content(id string) ([]byte, error) {
	content, err := s.st.GetDocumentContent(id)
	if err != nil {
		return nil, err
	}
	if content == nil {
		slog.Warn("document content missing", "id", id)
	}
	return content, nil
}
