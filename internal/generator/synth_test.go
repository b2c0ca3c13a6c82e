package generator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/avetrov/examforge/internal/model"
)

func testConcepts() []Concept {
	return []Concept{
		{Term: "mitochondria", Statement: "The mitochondria produces chemical energy for the cell.", Segment: 0},
		{Term: "photosynthesis", Statement: "Photosynthesis converts sunlight into glucose molecules.", Segment: 0},
		{Term: "ribosome", Statement: "Every ribosome assembles proteins from amino acids.", Segment: 1},
	}
}

func TestHeuristicSynthesizeCountAndValidity(t *testing.T) {
	h := NewHeuristicSynthesizer()

	for _, count := range []int{1, 3, 10} {
		mcqs, err := h.Synthesize(context.Background(), testConcepts(), count)
		if err != nil {
			t.Fatalf("Synthesize(%d): %v", count, err)
		}
		if len(mcqs) != count {
			t.Fatalf("got %d questions, want %d", len(mcqs), count)
		}
		for i, q := range mcqs {
			if !q.Valid() {
				t.Errorf("question %d invalid: %+v", i, q)
			}
			if q.Options[q.CorrectIndex] == "" {
				t.Errorf("question %d has empty correct option", i)
			}
		}
	}
}

func TestHeuristicSynthesizeNoConcepts(t *testing.T) {
	h := NewHeuristicSynthesizer()
	if _, err := h.Synthesize(context.Background(), nil, 3); !errors.Is(err, ErrUnreadableDocument) {
		t.Errorf("expected ErrUnreadableDocument, got %v", err)
	}
}

func TestHeuristicDeterminism(t *testing.T) {
	first := heuristicQuestions(testConcepts(), 6, 0)
	second := heuristicQuestions(testConcepts(), 6, 0)
	if !reflect.DeepEqual(first, second) {
		t.Error("heuristic output must be deterministic for the same input")
	}
}

func TestCorrectSlotRotates(t *testing.T) {
	mcqs := heuristicQuestions(testConcepts(), 8, 0)

	slots := make(map[int]bool)
	for _, q := range mcqs {
		slots[q.CorrectIndex] = true
	}
	if len(slots) < 2 {
		t.Errorf("correct answers all land in the same slot: %v", slots)
	}
}

func TestCorrectOptionMatchesTerm(t *testing.T) {
	concepts := testConcepts()
	mcqs := heuristicQuestions(concepts, len(concepts), 0)
	for i, q := range mcqs {
		if q.Options[q.CorrectIndex] != concepts[i].Term {
			t.Errorf("question %d: correct option %q, want term %q", i, q.Options[q.CorrectIndex], concepts[i].Term)
		}
	}
}

func TestBlankTerm(t *testing.T) {
	got := blankTerm("The Mitochondria produces energy.", "mitochondria")
	want := "The ____ produces energy."
	if got != want {
		t.Errorf("blankTerm = %q, want %q", got, want)
	}

	// Missing term leaves the statement untouched.
	stmt := "No such term here."
	if got := blankTerm(stmt, "ribosome"); got != stmt {
		t.Errorf("blankTerm on absent term = %q, want original", got)
	}
}

func TestBuildOptionsFillsFromFillers(t *testing.T) {
	// A single known term forces filler distractors.
	options := buildOptions("mitochondria", []string{"mitochondria"}, 0)
	if len(options) != model.NumOptions {
		t.Fatalf("got %d options, want %d", len(options), model.NumOptions)
	}
	seen := make(map[string]bool)
	for _, opt := range options {
		if opt == "" {
			t.Error("empty option")
		}
		if seen[opt] {
			t.Errorf("duplicate option %q", opt)
		}
		seen[opt] = true
	}
	if !seen["mitochondria"] {
		t.Error("correct term missing from options")
	}
}
