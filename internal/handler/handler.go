// Package handler exposes the JSON API over chi. Handlers translate
// between HTTP and the domain managers; domain errors map to status
// codes and localized messages here and nowhere else.
package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/avetrov/examforge/internal/docstore"
	"github.com/avetrov/examforge/internal/exam"
	"github.com/avetrov/examforge/internal/generator"
	"github.com/avetrov/examforge/internal/i18n"
	"github.com/avetrov/examforge/internal/session"
	"github.com/avetrov/examforge/internal/store"
)

// Config carries handler-level settings.
type Config struct {
	// MaxUploadBytes bounds multipart request bodies.
	MaxUploadBytes int64
	// SecureCookies marks the session cookie Secure for TLS deployments.
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	docs      *docstore.Store
	sessions  *session.Manager
	exams     *exam.Manager
	generator *generator.Manager
	config    Config

	jobMu sync.Mutex
	jobs  map[string]*generator.Job
}

// New creates a new Handler.
func New(s *store.Store, docs *docstore.Store, sessions *session.Manager, exams *exam.Manager, gen *generator.Manager, cfg Config) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = docstore.DefaultMaxUploadBytes
	}
	return &Handler{
		store:     s,
		docs:      docs,
		sessions:  sessions,
		exams:     exams,
		generator: gen,
		config:    cfg,
		jobs:      make(map[string]*generator.Job),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/signup", h.handleSignup)
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireSession)

		r.Post("/api/logout", h.handleLogout)
		r.Get("/api/me", h.handleMe)

		r.Post("/api/documents", h.handleUploadDocument)
		r.Post("/api/generate", h.handleStartGeneration)
		r.Get("/api/generate/{jobID}", h.handleGenerationStatus)
		r.Post("/api/generate/{jobID}/cancel", h.handleCancelGeneration)

		r.Get("/api/exams", h.handleListExams)
		r.Post("/api/exams", h.handleCreateExam)
		r.Put("/api/exams/{examID}/questions/{questionID}", h.handleReplaceQuestion)
		r.Delete("/api/exams/{examID}/questions/{questionID}", h.handleRemoveQuestion)
		r.Post("/api/exams/{examID}/publish", h.handlePublishExam)
		r.Post("/api/exams/{examID}/close", h.handleCloseExam)
		r.Post("/api/exams/{examID}/grade/{studentID}", h.handleGrade)

		r.Post("/api/exams/{examID}/start", h.handleStartAttempt)
		r.Post("/api/exams/{examID}/submissions", h.handleSubmit)
		r.Get("/api/exams/{examID}/result", h.handleResult)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError maps a domain error to an HTTP status and localized body.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorBody{Error: i18n.T(r.Context(), msgID), Code: msgID})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "LoginError"
	case errors.Is(err, session.ErrEmailTaken):
		return http.StatusConflict, "EmailTaken"
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusForbidden, "Unauthorized"
	case errors.Is(err, docstore.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "UnsupportedFormat"
	case errors.Is(err, docstore.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "DocumentTooLarge"
	case errors.Is(err, generator.ErrUnreadableDocument):
		return http.StatusUnprocessableEntity, "UnreadableDocument"
	case errors.Is(err, generator.ErrInvalidCount):
		return http.StatusBadRequest, "InvalidCount"
	case errors.Is(err, generator.ErrAlreadyRunning):
		return http.StatusConflict, "GenerationAlreadyRunning"
	case errors.Is(err, generator.ErrTimeout):
		return http.StatusGatewayTimeout, "GenerationTimeout"
	case errors.Is(err, generator.ErrCancelled):
		return http.StatusConflict, "GenerationCancelled"
	case errors.Is(err, exam.ErrExamNotFound):
		return http.StatusNotFound, "ExamNotFound"
	case errors.Is(err, exam.ErrQuestionNotFound):
		return http.StatusNotFound, "QuestionNotFound"
	case errors.Is(err, exam.ErrInvalidQuestion):
		return http.StatusBadRequest, "InvalidQuestion"
	case errors.Is(err, exam.ErrEmptyQuestionSet):
		return http.StatusBadRequest, "EmptyQuestionSet"
	case errors.Is(err, exam.ErrNotDraft):
		return http.StatusConflict, "NotDraft"
	case errors.Is(err, exam.ErrAlreadyPublished):
		return http.StatusConflict, "AlreadyPublished"
	case errors.Is(err, exam.ErrNotPublished):
		return http.StatusConflict, "NotPublished"
	case errors.Is(err, exam.ErrAlreadyClosed):
		return http.StatusConflict, "AlreadyClosed"
	case errors.Is(err, exam.ErrNotAvailable):
		return http.StatusConflict, "NotAvailable"
	case errors.Is(err, exam.ErrAlreadySubmitted):
		return http.StatusConflict, "AlreadySubmitted"
	case errors.Is(err, exam.ErrAnswerKeyMismatch):
		return http.StatusBadRequest, "AnswerKeyMismatch"
	case errors.Is(err, exam.ErrNotSubmitted):
		return http.StatusConflict, "NotSubmitted"
	case errors.Is(err, exam.ErrAlreadyGraded):
		return http.StatusConflict, "AlreadyGraded"
	case errors.Is(err, exam.ErrNotGraded):
		return http.StatusConflict, "NotGraded"
	case errors.Is(err, errDocumentNotFound):
		return http.StatusNotFound, "DocumentNotFound"
	case errors.Is(err, errJobNotFound):
		return http.StatusNotFound, "JobNotFound"
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "ExamNotFound"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusBadRequest, errorBody{
		Error: i18n.T(r.Context(), "InvalidRequest"),
		Code:  "InvalidRequest",
	})
}

// trackJob registers a running job under its id for later status polls.
func (h *Handler) trackJob(job *generator.Job) {
	h.jobMu.Lock()
	defer h.jobMu.Unlock()
	h.jobs[job.ID] = job
}

func (h *Handler) job(id string) *generator.Job {
	h.jobMu.Lock()
	defer h.jobMu.Unlock()
	return h.jobs[id]
}
