// Package scoring computes exam results. Score is a pure function: it
// reads its inputs, writes nothing, and is safe to call repeatedly.
package scoring

import (
	"math"

	"github.com/avetrov/examforge/internal/model"
)

// Unanswered marks a question absent from the submission's answer set.
const Unanswered = -1

// Score maps a submission against the exam's key. Questions without an
// answer count as incorrect. Percent is rounded to the nearest integer.
func Score(exam *model.Exam, sub *model.Submission) model.Result {
	perQuestion := make([]model.QuestionResult, 0, len(exam.Questions))
	correct := 0
	for _, q := range exam.Questions {
		selected, answered := sub.Answers[q.ID]
		if !answered {
			selected = Unanswered
		}
		isCorrect := answered && selected == q.CorrectIndex
		if isCorrect {
			correct++
		}
		perQuestion = append(perQuestion, model.QuestionResult{
			QuestionID: q.ID,
			Selected:   selected,
			Correct:    q.CorrectIndex,
			IsCorrect:  isCorrect,
		})
	}

	percent := 0
	if len(exam.Questions) > 0 {
		percent = int(math.Round(100 * float64(correct) / float64(len(exam.Questions))))
	}
	return model.Result{Percent: percent, PerQuestion: perQuestion}
}
