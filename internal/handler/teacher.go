package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avetrov/examforge/internal/generator"
	"github.com/avetrov/examforge/internal/model"
)

var (
	errDocumentNotFound = errors.New("document not found")
	errJobNotFound      = errors.New("generation job not found")
)

// defaultQuestionCount is used when a generation request omits the count.
const defaultQuestionCount = 5

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	teacher, err := h.sessions.RequireRole(model.RoleTeacher)
	if err != nil {
		respondError(w, r, err)
		return
	}

	// One extra KB so an oversized body reaches the docstore check instead
	// of failing as a bare read error.
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+1024)
	file, header, err := r.FormFile("document")
	if err != nil {
		badRequest(w, r)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, err)
		return
	}
	mime := header.Header.Get("Content-Type")

	doc, err := h.docs.Put(teacher, header.Filename, mime, content)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

type generateRequest struct {
	DocumentID string `json:"document_id"`
	Count      int    `json:"count"`
}

type jobStatus struct {
	JobID       string             `json:"job_id"`
	DocumentID  string             `json:"document_id"`
	TargetCount int                `json:"target_count"`
	State       generator.JobState `json:"state"`
	Progress    float64            `json:"progress"`
	Questions   []model.MCQ        `json:"questions,omitempty"`
	Code        string             `json:"code,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func statusOf(job *generator.Job) jobStatus {
	st := jobStatus{
		JobID:       job.ID,
		DocumentID:  job.DocumentID,
		TargetCount: job.TargetCount,
		State:       job.State(),
		Progress:    job.Progress(),
	}
	mcqs, err := job.Result()
	switch {
	case err != nil:
		_, st.Code = classify(err)
		st.Error = err.Error()
	case st.State == generator.StateCompleted:
		st.Questions = mcqs
	}
	return st
}

func (h *Handler) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.RequireRole(model.RoleTeacher); err != nil {
		respondError(w, r, err)
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r)
		return
	}
	if req.Count == 0 {
		req.Count = defaultQuestionCount
	}

	doc, err := h.docs.Get(req.DocumentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if doc == nil {
		respondError(w, r, errDocumentNotFound)
		return
	}

	// The job must outlive this request; polling happens on later requests.
	job, err := h.generator.Start(context.Background(), doc, req.Count, nil)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.trackJob(job)
	respondJSON(w, http.StatusAccepted, statusOf(job))
}

func (h *Handler) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	job := h.job(chi.URLParam(r, "jobID"))
	if job == nil {
		respondError(w, r, errJobNotFound)
		return
	}
	respondJSON(w, http.StatusOK, statusOf(job))
}

func (h *Handler) handleCancelGeneration(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.RequireRole(model.RoleTeacher); err != nil {
		respondError(w, r, err)
		return
	}
	job := h.job(chi.URLParam(r, "jobID"))
	if job == nil {
		respondError(w, r, errJobNotFound)
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusAccepted, statusOf(job))
}

type createExamRequest struct {
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Questions       []model.MCQ `json:"questions"`
	Deadline        time.Time   `json:"deadline"`
	DurationMinutes int         `json:"duration_minutes"`
	AvailableFrom   time.Time   `json:"available_from"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r)
		return
	}
	e, err := h.exams.CreateDraft(req.Title, req.Description, req.Questions, req.Deadline, req.DurationMinutes, req.AvailableFrom)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}

func questionIDParam(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "questionID"))
	return id, err == nil
}

func (h *Handler) handleReplaceQuestion(w http.ResponseWriter, r *http.Request) {
	qid, ok := questionIDParam(r)
	if !ok {
		badRequest(w, r)
		return
	}
	var q model.MCQ
	if err := decodeJSON(r, &q); err != nil {
		badRequest(w, r)
		return
	}
	q.ID = qid
	if err := h.exams.ReplaceQuestion(chi.URLParam(r, "examID"), q); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (h *Handler) handleRemoveQuestion(w http.ResponseWriter, r *http.Request) {
	qid, ok := questionIDParam(r)
	if !ok {
		badRequest(w, r)
		return
	}
	if err := h.exams.RemoveQuestion(chi.URLParam(r, "examID"), qid); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePublishExam(w http.ResponseWriter, r *http.Request) {
	e, err := h.exams.Publish(chi.URLParam(r, "examID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCloseExam(w http.ResponseWriter, r *http.Request) {
	if err := h.exams.Close(chi.URLParam(r, "examID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	result, err := h.exams.Grade(chi.URLParam(r, "examID"), chi.URLParam(r, "studentID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
