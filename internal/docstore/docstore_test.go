package docstore

import (
	"bytes"
	"errors"
	"testing"

	"github.com/avetrov/examforge/internal/model"
	"github.com/avetrov/examforge/internal/store"
)

func newTestDocstore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, maxBytes)
}

var testOwner = &model.Identity{ID: "t1", Email: "alice@example.com", Role: model.RoleTeacher}

func TestPutAndGet(t *testing.T) {
	docs := newTestDocstore(t, 0)

	content := bytes.Repeat([]byte("x"), 2<<20)
	doc, err := docs.Put(testOwner, "notes.pdf", "application/pdf", content)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if doc.ID == "" {
		t.Error("expected generated document id")
	}
	if doc.SizeBytes != int64(len(content)) {
		t.Errorf("size = %d, want %d", doc.SizeBytes, len(content))
	}

	got, err := docs.Get(doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != "notes.pdf" {
		t.Errorf("Get returned %+v", got)
	}

	gotContent, err := docs.Content(doc.ID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if !bytes.Equal(gotContent, content) {
		t.Error("content mismatch")
	}
}

func TestRejectsNonPDF(t *testing.T) {
	docs := newTestDocstore(t, 0)

	_, err := docs.Put(testOwner, "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", []byte("data"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRejectsOversized(t *testing.T) {
	docs := newTestDocstore(t, 0)

	// 10 MB default ceiling: 15 MB must be rejected, and nothing stored.
	content := bytes.Repeat([]byte("x"), 15<<20)
	_, err := docs.Put(testOwner, "big.pdf", "application/pdf", content)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestCustomCeiling(t *testing.T) {
	docs := newTestDocstore(t, 1024)

	if _, err := docs.Put(testOwner, "small.pdf", "application/pdf", make([]byte, 1024)); err != nil {
		t.Fatalf("Put at ceiling: %v", err)
	}
	if _, err := docs.Put(testOwner, "big.pdf", "application/pdf", make([]byte, 1025)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge above ceiling, got %v", err)
	}
}

func TestUnknownDocument(t *testing.T) {
	docs := newTestDocstore(t, 0)

	doc, err := docs.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for unknown id, got %+v", doc)
	}
}
