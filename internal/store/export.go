package store

import (
	"fmt"
	"math"

	"github.com/avetrov/examforge/internal/model"
)

// ExportGradebook builds export-ready reports for every exam in the store.
func (s *Store) ExportGradebook() ([]model.ExamReport, error) {
	rows, err := s.db.Query(`SELECT id FROM exams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
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

	var reports []model.ExamReport
	for _, id := range ids {
		exam, err := s.GetExam(id)
		if err != nil {
			return nil, fmt.Errorf("get exam %s: %w", id, err)
		}
		subs, err := s.ListSubmissionsForExam(id)
		if err != nil {
			return nil, fmt.Errorf("list submissions for %s: %w", id, err)
		}

		report := model.ExamReport{
			ExamID:        exam.ID,
			Title:         exam.Title,
			OwnerID:       exam.OwnerID,
			Deadline:      exam.Deadline,
			QuestionCount: len(exam.Questions),
		}

		var gradedTotal int
		for _, sub := range subs {
			student, err := s.GetIdentity(sub.StudentID)
			if err != nil {
				return nil, fmt.Errorf("get identity %s: %w", sub.StudentID, err)
			}
			row := model.StudentRow{
				StudentID:   sub.StudentID,
				Status:      sub.Status,
				SubmittedAt: sub.SubmittedAt,
				Answered:    len(sub.Answers),
				Score:       sub.Score,
				GradedAt:    sub.GradedAt,
			}
			if student != nil {
				row.DisplayName = student.DisplayName
				row.Email = student.Email
			}
			report.Students = append(report.Students, row)

			switch sub.Status {
			case model.StatusMissed:
				report.Missed++
			case model.StatusSubmitted:
				report.Submitted++
			case model.StatusGraded:
				report.Submitted++
				report.Graded++
				if sub.Score != nil {
					gradedTotal += *sub.Score
				}
			}
		}
		if report.Graded > 0 {
			report.AveragePercent = int(math.Round(float64(gradedTotal) / float64(report.Graded)))
		}
		reports = append(reports, report)
	}

	return reports, nil
}
