// Package exam owns the lifecycle of exams: drafting, publication,
// submission intake, closing, and grading. Transitions for one
// (exam, student) pair are serialized; pairs are independent.
package exam

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avetrov/examforge/internal/model"
	"github.com/avetrov/examforge/internal/scoring"
	"github.com/avetrov/examforge/internal/session"
	"github.com/avetrov/examforge/internal/store"
)

var (
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	// ErrEmptyQuestionSet rejects publishing an exam without questions.
	ErrEmptyQuestionSet = errors.New("exam has no questions")
	// ErrInvalidQuestion rejects a question violating the MCQ invariants.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrAnswerKeyMismatch rejects answers referencing unknown questions
	// or out-of-range option indices.
	ErrAnswerKeyMismatch = errors.New("answers do not match the exam's question set")
	// ErrNotAvailable rejects an operation on a pair that is not Available.
	ErrNotAvailable = errors.New("exam not available")
	// ErrAlreadySubmitted rejects a second submission for the same pair.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrNotSubmitted rejects grading a pair that has not submitted.
	ErrNotSubmitted = errors.New("not submitted")
	// ErrAlreadyGraded rejects re-grading: grading is a one-way commit.
	ErrAlreadyGraded = errors.New("already graded")
	// ErrNotGraded rejects a result view before grading.
	ErrNotGraded = errors.New("not graded yet")
	// ErrNotDraft rejects question edits after publication.
	ErrNotDraft = errors.New("exam already published")
	// ErrAlreadyPublished rejects a second publish.
	ErrAlreadyPublished = errors.New("already published")
	// ErrNotPublished rejects closing a draft.
	ErrNotPublished = errors.New("not published")
	// ErrAlreadyClosed rejects a second close.
	ErrAlreadyClosed = errors.New("already closed")
)

// Manager coordinates all exam state changes through the store.
type Manager struct {
	store    *store.Store
	sessions *session.Manager

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

func New(st *store.Store, sessions *session.Manager) *Manager {
	return &Manager{
		store:    st,
		sessions: sessions,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}
}

// pairLock returns the mutex serializing transitions for one pair.
func (m *Manager) pairLock(examID, studentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := examID + "|" + studentID
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// statusFor derives the pair status. With no submission recorded, a
// published exam is Upcoming until its opening time, Available after it,
// and Missed once the teacher closes submissions.
func (m *Manager) statusFor(e *model.Exam, sub *model.Submission) model.PairStatus {
	if sub != nil {
		return sub.Status
	}
	if e.Closed() {
		return model.StatusMissed
	}
	if m.now().Before(e.AvailableFrom) {
		return model.StatusUpcoming
	}
	return model.StatusAvailable
}

// CreateDraft persists a new unpublished exam owned by the current teacher.
// Question ids are assigned sequentially from 1 in the given order.
func (m *Manager) CreateDraft(title, description string, questions []model.MCQ, deadline time.Time, durationMinutes int, availableFrom time.Time) (*model.Exam, error) {
	teacher, err := m.sessions.RequireRole(model.RoleTeacher)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, fmt.Errorf("%w: empty title", ErrInvalidQuestion)
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidQuestion)
	}

	numbered := make([]model.MCQ, len(questions))
	for i, q := range questions {
		q.ID = i + 1
		if !q.Valid() {
			return nil, fmt.Errorf("%w: question %d", ErrInvalidQuestion, q.ID)
		}
		numbered[i] = q
	}

	e := &model.Exam{
		ID:              uuid.NewString(),
		OwnerID:         teacher.ID,
		Title:           title,
		Description:     description,
		Questions:       numbered,
		Deadline:        deadline,
		DurationMinutes: durationMinutes,
		AvailableFrom:   availableFrom,
		CreatedAt:       m.now(),
	}
	if err := m.store.CreateExam(*e); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	slog.Info("created draft exam", "id", e.ID, "title", title, "questions", len(numbered))
	return e, nil
}

// ownedExam loads an exam and verifies the current teacher owns it.
func (m *Manager) ownedExam(examID string) (*model.Exam, error) {
	teacher, err := m.sessions.RequireRole(model.RoleTeacher)
	if err != nil {
		return nil, err
	}
	e, err := m.store.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e == nil {
		return nil, ErrExamNotFound
	}
	if e.OwnerID != teacher.ID {
		return nil, session.ErrUnauthorized
	}
	return e, nil
}

// ReplaceQuestion swaps one MCQ in place on a draft exam.
func (m *Manager) ReplaceQuestion(examID string, q model.MCQ) error {
	e, err := m.ownedExam(examID)
	if err != nil {
		return err
	}
	if e.Published() {
		return ErrNotDraft
	}
	if !q.Valid() {
		return fmt.Errorf("%w: question %d", ErrInvalidQuestion, q.ID)
	}
	if err := m.store.ReplaceQuestion(examID, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("replace question: %w", err)
	}
	return nil
}

// RemoveQuestion deletes one MCQ from a draft exam.
func (m *Manager) RemoveQuestion(examID string, questionID int) error {
	e, err := m.ownedExam(examID)
	if err != nil {
		return err
	}
	if e.Published() {
		return ErrNotDraft
	}
	if err := m.store.DeleteQuestion(examID, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// Publish makes a draft exam visible to students. Exams with no opening
// time open immediately at publication.
func (m *Manager) Publish(examID string) (*model.Exam, error) {
	e, err := m.ownedExam(examID)
	if err != nil {
		return nil, err
	}
	if e.Published() {
		return nil, ErrAlreadyPublished
	}
	if len(e.Questions) == 0 {
		return nil, ErrEmptyQuestionSet
	}

	publishedAt := m.now()
	availableFrom := e.AvailableFrom
	if availableFrom.IsZero() {
		availableFrom = publishedAt
	}
	if err := m.store.MarkPublished(examID, publishedAt, availableFrom); err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	e.PublishedAt = &publishedAt
	e.AvailableFrom = availableFrom
	slog.Info("published exam", "id", e.ID, "title", e.Title, "available_from", availableFrom)
	return e, nil
}

// Close stops submission intake for good. Pairs that never submitted
// derive the Missed status from here on and grade to zero.
func (m *Manager) Close(examID string) error {
	e, err := m.ownedExam(examID)
	if err != nil {
		return err
	}
	if !e.Published() {
		return ErrNotPublished
	}
	if e.Closed() {
		return ErrAlreadyClosed
	}
	if err := m.store.MarkClosed(examID, m.now()); err != nil {
		return fmt.Errorf("mark closed: %w", err)
	}
	slog.Info("closed exam", "id", e.ID, "title", e.Title)
	return nil
}

// ListForStudent returns published exams matching the filter for the
// current student, ordered by deadline ascending.
func (m *Manager) ListForStudent(filter model.ListFilter) ([]model.ExamListing, error) {
	student, err := m.sessions.RequireRole(model.RoleStudent)
	if err != nil {
		return nil, err
	}
	exams, err := m.store.ListPublishedExams()
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	var listings []model.ExamListing
	for _, e := range exams {
		sub, err := m.store.GetSubmission(e.ID, student.ID)
		if err != nil {
			return nil, fmt.Errorf("get submission: %w", err)
		}
		status := m.statusFor(&e, sub)
		if !filterMatches(filter, status) {
			continue
		}
		listings = append(listings, model.ExamListing{Exam: e, Status: status})
	}
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].Exam.Deadline.Before(listings[j].Exam.Deadline)
	})
	return listings, nil
}

func filterMatches(filter model.ListFilter, status model.PairStatus) bool {
	switch filter {
	case model.FilterAvailable:
		return status == model.StatusAvailable
	case model.FilterUpcoming:
		return status == model.StatusUpcoming
	case model.FilterCompleted:
		return status == model.StatusSubmitted || status == model.StatusGraded || status == model.StatusMissed
	default:
		return true
	}
}

// StartAttempt checks that the current student may begin the exam now.
// Nothing is persisted until submission.
func (m *Manager) StartAttempt(examID string) (*model.Exam, error) {
	student, err := m.sessions.RequireRole(model.RoleStudent)
	if err != nil {
		return nil, err
	}
	e, err := m.store.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e == nil || !e.Published() {
		return nil, ErrExamNotFound
	}
	sub, err := m.store.GetSubmission(examID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if m.statusFor(e, sub) != model.StatusAvailable {
		return nil, ErrNotAvailable
	}
	return e, nil
}

// Submit records the current student's one-time answer set and moves the
// pair to Submitted.
func (m *Manager) Submit(examID string, answers map[int]int) (*model.Submission, error) {
	student, err := m.sessions.RequireRole(model.RoleStudent)
	if err != nil {
		return nil, err
	}

	lock := m.pairLock(examID, student.ID)
	lock.Lock()
	defer lock.Unlock()

	e, err := m.store.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e == nil || !e.Published() {
		return nil, ErrExamNotFound
	}
	existing, err := m.store.GetSubmission(examID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadySubmitted
	}
	if m.statusFor(e, nil) != model.StatusAvailable {
		return nil, ErrNotAvailable
	}

	for qid, selected := range answers {
		if _, ok := e.Question(qid); !ok {
			return nil, fmt.Errorf("%w: unknown question %d", ErrAnswerKeyMismatch, qid)
		}
		if selected < 0 || selected >= model.NumOptions {
			return nil, fmt.Errorf("%w: option %d out of range for question %d", ErrAnswerKeyMismatch, selected, qid)
		}
	}

	sub := &model.Submission{
		ExamID:      examID,
		StudentID:   student.ID,
		Answers:     answers,
		SubmittedAt: m.now(),
		Status:      model.StatusSubmitted,
	}
	// The insert re-checks closed_at so a close committed after the exam
	// read above cannot race a submission onto a closed exam.
	if err := m.store.CreateSubmissionIfOpen(*sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotAvailable
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}
	slog.Info("submission recorded", "exam", examID, "student", student.ID, "answered", len(answers))
	return sub, nil
}

// Grade scores one pair's submission and moves it to Graded. Grading is a
// one-way commit; a missed pair on a closed exam grades as an empty
// submission scoring zero.
func (m *Manager) Grade(examID, studentID string) (*model.Result, error) {
	e, err := m.ownedExam(examID)
	if err != nil {
		return nil, err
	}

	lock := m.pairLock(examID, studentID)
	lock.Lock()
	defer lock.Unlock()

	sub, err := m.store.GetSubmission(examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub == nil {
		if !e.Closed() {
			return nil, ErrNotSubmitted
		}
		sub = &model.Submission{
			ExamID:      examID,
			StudentID:   studentID,
			Answers:     map[int]int{},
			SubmittedAt: *e.ClosedAt,
			Status:      model.StatusMissed,
		}
		if err := m.store.CreateSubmission(*sub); err != nil {
			return nil, fmt.Errorf("record missed submission: %w", err)
		}
	}
	switch sub.Status {
	case model.StatusGraded:
		return nil, ErrAlreadyGraded
	case model.StatusSubmitted, model.StatusMissed:
	default:
		return nil, ErrNotSubmitted
	}

	result := scoring.Score(e, sub)
	if err := m.store.SetSubmissionScore(examID, studentID, result.Percent, m.now()); err != nil {
		return nil, fmt.Errorf("store score: %w", err)
	}
	slog.Info("graded submission", "exam", examID, "student", studentID, "percent", result.Percent)
	return &result, nil
}

// Result returns the current student's graded result for an exam.
func (m *Manager) Result(examID string) (*model.Result, error) {
	student, err := m.sessions.RequireRole(model.RoleStudent)
	if err != nil {
		return nil, err
	}
	e, err := m.store.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if e == nil || !e.Published() {
		return nil, ErrExamNotFound
	}
	sub, err := m.store.GetSubmission(examID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub == nil {
		return nil, ErrNotSubmitted
	}
	if sub.Status != model.StatusGraded {
		return nil, ErrNotGraded
	}
	result := scoring.Score(e, sub)
	return &result, nil
}

// ListForOwner returns the current teacher's exams with submission
// aggregates, newest first.
func (m *Manager) ListForOwner() ([]model.ExamSummary, error) {
	teacher, err := m.sessions.RequireRole(model.RoleTeacher)
	if err != nil {
		return nil, err
	}
	exams, err := m.store.ListExamsByOwner(teacher.ID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	summaries := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		subs, err := m.store.ListSubmissionsForExam(e.ID)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		summary := model.ExamSummary{Exam: e}
		gradedTotal := 0
		for _, sub := range subs {
			switch sub.Status {
			case model.StatusMissed:
				summary.Missed++
			case model.StatusSubmitted:
				summary.Submitted++
			case model.StatusGraded:
				summary.Submitted++
				summary.Graded++
				if sub.Score != nil {
					gradedTotal += *sub.Score
				}
			}
		}
		if summary.Graded > 0 {
			summary.AveragePercent = int(math.Round(float64(gradedTotal) / float64(summary.Graded)))
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
