package model

import (
	"context"
	"time"
)

// Role is the access level an identity is bound to for its whole lifetime.
type Role string

const (
	// RoleTeacher can upload documents, generate questions, and author exams.
	RoleTeacher Role = "teacher"
	// RoleStudent can take published exams and view graded results.
	RoleStudent Role = "student"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return r == RoleTeacher || r == RoleStudent
}

// Identity is the authenticated user of the current session.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthSession is a durable session token bound to an identity.
type AuthSession struct {
	Token      string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// DocumentHandle describes an uploaded source document. The content itself
// is stored separately and never mutated once written.
type DocumentHandle struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	MIME       string    `json:"mime"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// NumOptions is the fixed number of choices per question.
const NumOptions = 4

// MCQ is a single multiple-choice question. IDs are unique within an exam
// and define the stable question order.
type MCQ struct {
	ID           int      `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// Valid checks the structural invariants: exactly four distinct non-empty
// options and a correct index pointing at one of them.
func (q MCQ) Valid() bool {
	if q.Question == "" || len(q.Options) != NumOptions {
		return false
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= NumOptions {
		return false
	}
	seen := make(map[string]bool, NumOptions)
	for _, opt := range q.Options {
		if opt == "" || seen[opt] {
			return false
		}
		seen[opt] = true
	}
	return true
}

// PairStatus is the lifecycle status of one (exam, student) pair.
type PairStatus string

const (
	StatusUpcoming  PairStatus = "upcoming"
	StatusAvailable PairStatus = "available"
	StatusSubmitted PairStatus = "submitted"
	// StatusMissed marks a pair the teacher closed before the student
	// submitted. It scores as an empty submission.
	StatusMissed PairStatus = "missed"
	StatusGraded PairStatus = "graded"
)

// ListFilter selects which pair statuses a student listing includes.
type ListFilter string

const (
	FilterAvailable ListFilter = "available"
	FilterUpcoming  ListFilter = "upcoming"
	// FilterCompleted matches submitted, missed, and graded pairs.
	FilterCompleted ListFilter = "completed"
)

// Exam is a timed collection of MCQs owned by one teacher identity.
// A nil PublishedAt means the exam is still a draft.
type Exam struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Questions       []MCQ      `json:"questions"`
	Deadline        time.Time  `json:"deadline"`
	DurationMinutes int        `json:"duration_minutes"`
	AvailableFrom   time.Time  `json:"available_from"`
	CreatedAt       time.Time  `json:"created_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Published reports whether the exam has left the draft stage.
func (e *Exam) Published() bool { return e.PublishedAt != nil }

// Closed reports whether the teacher has closed submissions.
func (e *Exam) Closed() bool { return e.ClosedAt != nil }

// Question returns the question with the given id.
func (e *Exam) Question(id int) (MCQ, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return MCQ{}, false
}

// Submission is a student's one-time answer set for an exam. Answers map
// question ids to selected option indices; unanswered questions are absent.
type Submission struct {
	ExamID      string      `json:"exam_id"`
	StudentID   string      `json:"student_id"`
	Answers     map[int]int `json:"answers"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Status      PairStatus  `json:"status"`
	Score       *int        `json:"score,omitempty"`
	GradedAt    *time.Time  `json:"graded_at,omitempty"`
}

// QuestionResult is the per-question outcome of scoring one submission.
// Selected is -1 when the question was left unanswered.
type QuestionResult struct {
	QuestionID int  `json:"question_id"`
	Selected   int  `json:"selected"`
	Correct    int  `json:"correct"`
	IsCorrect  bool `json:"is_correct"`
}

// Result is the scored outcome of a submission.
type Result struct {
	Percent     int              `json:"percent"`
	PerQuestion []QuestionResult `json:"per_question"`
}

// ExamListing pairs an exam with its status for one student.
type ExamListing struct {
	Exam   Exam       `json:"exam"`
	Status PairStatus `json:"status"`
}

// ExamSummary is the owner's aggregate view of one exam.
type ExamSummary struct {
	Exam           Exam `json:"exam"`
	Submitted      int  `json:"submitted"`
	Missed         int  `json:"missed"`
	Graded         int  `json:"graded"`
	AveragePercent int  `json:"average_percent"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the authenticated identity in the request context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*Identity)
	return id
}
