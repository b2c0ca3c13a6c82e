package model

import "time"

// GradebookExport is the top-level JSON structure for the export subcommand.
type GradebookExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Exams      []ExamReport `json:"exams"`
}

// ExamReport holds one exam's aggregate data plus every student row.
type ExamReport struct {
	ExamID         string       `json:"exam_id"`
	Title          string       `json:"title"`
	OwnerID        string       `json:"owner_id"`
	Deadline       time.Time    `json:"deadline"`
	QuestionCount  int          `json:"question_count"`
	Submitted      int          `json:"submitted"`
	Missed         int          `json:"missed"`
	Graded         int          `json:"graded"`
	AveragePercent int          `json:"average_percent"`
	Students       []StudentRow `json:"students"`
}

// StudentRow is one student's outcome on one exam.
type StudentRow struct {
	StudentID   string     `json:"student_id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Status      PairStatus `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Answered    int        `json:"answered"`
	Score       *int       `json:"score,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}
