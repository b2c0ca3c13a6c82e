package store

import (
	"database/sql"
	"log/slog"

	"github.com/avetrov/examforge/internal/model"
)

// PutDocument stores a document handle together with its content.
func (s *Store) PutDocument(doc model.DocumentHandle, content []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO documents (id, owner_id, name, size_bytes, mime, content, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, doc.Name, doc.SizeBytes, doc.MIME, content, doc.UploadedAt,
	)
	if err != nil {
		slog.Error("failed to store document", "name", doc.Name, "error", err)
		return err
	}
	slog.Info("stored document", "id", doc.ID, "name", doc.Name, "size_bytes", doc.SizeBytes)
	return nil
}

// GetDocument returns a document handle by id, or nil.
func (s *Store) GetDocument(id string) (*model.DocumentHandle, error) {
	var doc model.DocumentHandle
	err := s.db.QueryRow(
		`SELECT id, owner_id, name, size_bytes, mime, uploaded_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.SizeBytes, &doc.MIME, &doc.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentContent returns the raw bytes of a stored document, or nil.
func (s *Store) GetDocumentContent(id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRow(`SELECT content FROM documents WHERE id = ?`, id).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return content, err
}
