package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/avetrov/examforge/internal/model"
)

// HeuristicSynthesizer builds fill-in-the-blank questions directly from
// extracted concepts, with no external calls. Output is deterministic for
// a given concept sequence, so tests never depend on randomness.
type HeuristicSynthesizer struct{}

func NewHeuristicSynthesizer() *HeuristicSynthesizer {
	return &HeuristicSynthesizer{}
}

func (h *HeuristicSynthesizer) Synthesize(_ context.Context, concepts []Concept, count int) ([]model.MCQ, error) {
	if len(concepts) == 0 {
		return nil, fmt.Errorf("%w: no concepts to synthesize from", ErrUnreadableDocument)
	}
	return heuristicQuestions(concepts, count, 0), nil
}

// Fixed distractor fillers for documents too thin to supply three
// plausible terms of their own.
var fillerOptions = []string{
	"None of the above",
	"All of the above",
	"Not stated in the document",
	"Cannot be determined",
	"No single term applies",
	"The document does not say",
}

var questionTemplates = []string{
	"Which term completes the passage: %q?",
	"According to the document, which term fits: %q?",
	"Fill in the blank: %q",
}

// heuristicQuestions produces exactly count questions, cycling and
// paraphrasing concepts when the document yields fewer distinct ones than
// requested. offset shifts template and distractor choices so top-up
// questions differ from an earlier synthesis pass.
func heuristicQuestions(concepts []Concept, count, offset int) []model.MCQ {
	terms := distinctTerms(concepts)

	mcqs := make([]model.MCQ, 0, count)
	for i := 0; i < count; i++ {
		n := i + offset
		c := concepts[n%len(concepts)]
		cycle := n / len(concepts)

		template := questionTemplates[cycle%len(questionTemplates)]
		question := fmt.Sprintf(template, blankTerm(c.Statement, c.Term))

		options := buildOptions(c.Term, terms, n)
		correct := 0
		for idx, opt := range options {
			if opt == c.Term {
				correct = idx
				break
			}
		}

		mcqs = append(mcqs, model.MCQ{
			ID:           i + 1,
			Question:     question,
			Options:      options,
			CorrectIndex: correct,
		})
	}
	return mcqs
}

func distinctTerms(concepts []Concept) []string {
	seen := make(map[string]bool, len(concepts))
	var terms []string
	for _, c := range concepts {
		if !seen[c.Term] {
			seen[c.Term] = true
			terms = append(terms, c.Term)
		}
	}
	return terms
}

// blankTerm replaces the first occurrence of term in the statement with a
// blank, case-insensitively.
func blankTerm(statement, term string) string {
	idx := strings.Index(strings.ToLower(statement), strings.ToLower(term))
	if idx < 0 {
		return statement
	}
	return statement[:idx] + "____" + statement[idx+len(term):]
}

// buildOptions assembles four distinct options including the correct term.
// The correct answer's slot rotates with n so keys are not all alike.
func buildOptions(correct string, terms []string, n int) []string {
	distractors := make([]string, 0, model.NumOptions-1)
	for step := 1; step <= len(terms) && len(distractors) < model.NumOptions-1; step++ {
		candidate := terms[(n+step)%len(terms)]
		if candidate == correct || contains(distractors, candidate) {
			continue
		}
		distractors = append(distractors, candidate)
	}
	for f := 0; len(distractors) < model.NumOptions-1; f++ {
		candidate := fillerOptions[f%len(fillerOptions)]
		if candidate == correct || contains(distractors, candidate) {
			continue
		}
		distractors = append(distractors, candidate)
	}

	slot := n % model.NumOptions
	options := make([]string, 0, model.NumOptions)
	options = append(options, distractors[:slot]...)
	options = append(options, correct)
	options = append(options, distractors[slot:]...)
	return options
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
