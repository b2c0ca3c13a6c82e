package generator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/avetrov/examforge/internal/docstore"
	"github.com/avetrov/examforge/internal/model"
)

// maxSegmentChars bounds a single segment; long pages are split on
// paragraph boundaries so cancellation checks stay frequent.
const maxSegmentChars = 2000

// PDFExtractor reads stored PDF documents page by page.
type PDFExtractor struct {
	docs *docstore.Store
}

func NewPDFExtractor(docs *docstore.Store) *PDFExtractor {
	return &PDFExtractor{docs: docs}
}

func (e *PDFExtractor) Extract(ctx context.Context, doc *model.DocumentHandle) ([]Segment, error) {
	content, err := e.docs.Content(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnreadableDocument)
	}

	pages, err := readPDFPages(content)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	for _, text := range pages {
		for _, chunk := range splitChunks(text) {
			segments = append(segments, Segment{Index: len(segments), Text: chunk})
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no extractable text", ErrUnreadableDocument)
	}
	return segments, nil
}

func readPDFPages(content []byte) (pages []string, err error) {
	// The pdf parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrUnreadableDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// splitChunks breaks page text into bounded segments at paragraph
// boundaries, falling back to a hard split for monolithic text.
func splitChunks(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxSegmentChars {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxSegmentChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		for current.Len() > maxSegmentChars {
			s := current.String()
			chunks = append(chunks, s[:maxSegmentChars])
			current.Reset()
			current.WriteString(strings.TrimSpace(s[maxSegmentChars:]))
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "among": true,
	"because": true, "been": true, "before": true, "being": true, "between": true,
	"could": true, "during": true, "every": true, "first": true, "from": true,
	"having": true, "into": true, "more": true, "most": true, "other": true,
	"over": true, "same": true, "should": true, "since": true, "some": true,
	"such": true, "than": true, "that": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"those": true, "through": true, "under": true, "very": true, "were": true,
	"when": true, "where": true, "which": true, "while": true, "will": true,
	"with": true, "within": true, "without": true, "would": true, "your": true,
}

// extractConcepts pulls candidate (term, statement) pairs from a segment.
// A statement is a sentence of reasonable length; its term is the most
// significant word, preferring longer non-stopword tokens.
func extractConcepts(seg Segment) []Concept {
	var concepts []Concept
	for _, sentence := range splitSentences(seg.Text) {
		words := strings.Fields(sentence)
		if len(words) < 4 || len(words) > 60 {
			continue
		}
		term := pickTerm(words)
		if term == "" {
			continue
		}
		concepts = append(concepts, Concept{
			Term:      term,
			Statement: sentence,
			Segment:   seg.Index,
		})
	}
	return concepts
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func pickTerm(words []string) string {
	best := ""
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(w) < 5 || stopwords[strings.ToLower(w)] {
			continue
		}
		if len(w) > len(best) {
			best = w
		}
	}
	return best
}
