package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avetrov/examforge/internal/model"
)

// handleListExams serves both roles: teachers get their own exams with
// submission aggregates, students get published exams filtered by the
// optional ?filter= query (available, upcoming, completed).
func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	identity := model.IdentityFromContext(r.Context())
	if identity != nil && identity.Role == model.RoleTeacher {
		summaries, err := h.exams.ListForOwner()
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"exams": summaries})
		return
	}

	filter := model.ListFilter(r.URL.Query().Get("filter"))
	listings, err := h.exams.ListForStudent(filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if listings == nil {
		listings = []model.ExamListing{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"exams": listings})
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	e, err := h.exams.StartAttempt(chi.URLParam(r, "examID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	// Students see the questions without the answer key.
	respondJSON(w, http.StatusOK, attemptView(e))
}

type attemptQuestion struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type attemptBody struct {
	ExamID          string            `json:"exam_id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	DurationMinutes int               `json:"duration_minutes"`
	Questions       []attemptQuestion `json:"questions"`
}

func attemptView(e *model.Exam) attemptBody {
	body := attemptBody{
		ExamID:          e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		Questions:       make([]attemptQuestion, 0, len(e.Questions)),
	}
	for _, q := range e.Questions {
		body.Questions = append(body.Questions, attemptQuestion{
			ID:       q.ID,
			Question: q.Question,
			Options:  q.Options,
		})
	}
	return body
}

type submitRequest struct {
	Answers map[int]int `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r)
		return
	}
	if req.Answers == nil {
		req.Answers = map[int]int{}
	}
	sub, err := h.exams.Submit(chi.URLParam(r, "examID"), req.Answers)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.exams.Result(chi.URLParam(r, "examID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
