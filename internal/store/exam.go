package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avetrov/examforge/internal/model"
)

// CreateExam inserts an exam and its question set in one transaction.
func (s *Store) CreateExam(e model.Exam) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exams (id, owner_id, title, description, deadline, duration_minutes, available_from, created_at, published_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, e.Title, e.Description, e.Deadline, e.DurationMinutes,
		e.AvailableFrom, e.CreatedAt, e.PublishedAt, e.ClosedAt,
	)
	if err != nil {
		return err
	}

	for pos, q := range e.Questions {
		if err := insertQuestion(tx, e.ID, pos, q); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertQuestion(tx *sql.Tx, examID string, position int, q model.MCQ) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO questions (exam_id, id, position, question, options, correct_index)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		examID, q.ID, position, q.Question, string(opts), q.CorrectIndex,
	)
	return err
}

// GetExam returns an exam with its questions in stable order, or nil.
func (s *Store) GetExam(id string) (*model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, owner_id, title, description, deadline, duration_minutes, available_from, created_at, published_at, closed_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Deadline, &e.DurationMinutes,
		&e.AvailableFrom, &e.CreatedAt, &e.PublishedAt, &e.ClosedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.Questions, err = s.examQuestions(id); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) examQuestions(examID string) ([]model.MCQ, error) {
	rows, err := s.db.Query(
		`SELECT id, question, options, correct_index FROM questions WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.MCQ
	for rows.Next() {
		var q model.MCQ
		var opts string
		if err := rows.Scan(&q.ID, &q.Question, &opts, &q.CorrectIndex); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options for question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceQuestion swaps one question in place, keeping its id and position.
func (s *Store) ReplaceQuestion(examID string, q model.MCQ) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE questions SET question = ?, options = ?, correct_index = ? WHERE exam_id = ? AND id = ?`,
		q.Question, string(opts), q.CorrectIndex, examID, q.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteQuestion removes one question from a draft exam.
func (s *Store) DeleteQuestion(examID string, questionID int) error {
	res, err := s.db.Exec(`DELETE FROM questions WHERE exam_id = ? AND id = ?`, examID, questionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPublished records the publication time and the effective opening time.
func (s *Store) MarkPublished(examID string, publishedAt, availableFrom time.Time) error {
	_, err := s.db.Exec(
		`UPDATE exams SET published_at = ?, available_from = ? WHERE id = ?`,
		publishedAt, availableFrom, examID,
	)
	return err
}

// MarkClosed records the close time.
func (s *Store) MarkClosed(examID string, closedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE exams SET closed_at = ? WHERE id = ?`, closedAt, examID)
	return err
}

// ListExamsByOwner returns all exams of one teacher, newest first.
func (s *Store) ListExamsByOwner(ownerID string) ([]model.Exam, error) {
	return s.listExams(`SELECT id FROM exams WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
}

// ListPublishedExams returns every published exam ordered by deadline.
func (s *Store) ListPublishedExams() ([]model.Exam, error) {
	return s.listExams(`SELECT id FROM exams WHERE published_at IS NOT NULL ORDER BY deadline, id`)
}

func (s *Store) listExams(query string, args ...any) ([]model.Exam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var exams []model.Exam
	for _, id := range ids {
		e, err := s.GetExam(id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			exams = append(exams, *e)
		}
	}
	return exams, nil
}

// CreateSubmission records a student's one-time answer set.
func (s *Store) CreateSubmission(sub model.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO submissions (exam_id, student_id, answers, submitted_at, status, score, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ExamID, sub.StudentID, string(answers), sub.SubmittedAt, sub.Status, sub.Score, sub.GradedAt,
	)
	return err
}

// CreateSubmissionIfOpen inserts a submission only while the exam is still
// accepting them. The closed check and the insert are one statement, so a
// concurrent close cannot slip between them. Returns sql.ErrNoRows when the
// exam was already closed.
func (s *Store) CreateSubmissionIfOpen(sub model.Submission) error {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO submissions (exam_id, student_id, answers, submitted_at, status, score, graded_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM exams WHERE id = ? AND closed_at IS NULL)`,
		sub.ExamID, sub.StudentID, string(answers), sub.SubmittedAt, sub.Status, sub.Score, sub.GradedAt,
		sub.ExamID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSubmission returns the submission for one (exam, student) pair, or nil.
func (s *Store) GetSubmission(examID, studentID string) (*model.Submission, error) {
	row := s.db.QueryRow(
		`SELECT exam_id, student_id, answers, submitted_at, status, score, graded_at
		 FROM submissions WHERE exam_id = ? AND student_id = ?`, examID, studentID,
	)
	sub, err := scanSubmission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubmissionsForExam returns all submissions for an exam.
func (s *Store) ListSubmissionsForExam(examID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT exam_id, student_id, answers, submitted_at, status, score, graded_at
		 FROM submissions WHERE exam_id = ? ORDER BY student_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var answers string
	err := row.Scan(&sub.ExamID, &sub.StudentID, &answers, &sub.SubmittedAt, &sub.Status, &sub.Score, &sub.GradedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &sub, nil
}

// SetSubmissionScore commits a grade for one pair and marks it graded.
func (s *Store) SetSubmissionScore(examID, studentID string, score int, gradedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE submissions SET score = ?, graded_at = ?, status = ? WHERE exam_id = ? AND student_id = ?`,
		score, gradedAt, model.StatusGraded, examID, studentID,
	)
	return err
}
