package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/autograder/internal/grading"
	appI18n "github.com/pavelanni/autograder/internal/i18n"
	"github.com/pavelanni/autograder/internal/model"
	"github.com/pavelanni/autograder/internal/review"
	"github.com/pavelanni/autograder/internal/store"
)

const maxBodyBytes = 1 << 20

// Config holds HTTP-level settings.
type Config struct {
	// Lang is the fallback language when a request has no usable Accept-Language.
	Lang string
	// Gatherer serves /metrics. Nil means the default Prometheus gatherer.
	Gatherer prometheus.Gatherer
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	grader *grading.Orchestrator
	queue  *review.Queue
	config Config
}

// New creates a new Handler.
func New(s *store.Store, g *grading.Orchestrator, q *review.Queue, cfg Config) *Handler {
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{store: s, grader: g, queue: q, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(h.config.Lang))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.config.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Post("/evaluations/{evaluationID}/attempts", h.handleCreateAttempt)
		r.Get("/attempts/{attemptID}", h.handleGetAttempt)
		r.Put("/attempts/{attemptID}/responses/{questionID}", h.handleSaveAnswer)
		r.Post("/attempts/{attemptID}/submit", h.handleSubmit)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))

			r.Get("/review/evaluations/{evaluationID}/pending", h.handlePending)
			r.Get("/review/evaluations/{evaluationID}/stats", h.handleStats)
			r.Get("/review/attempts/{attemptID}", h.handleReviewDetail)
			r.Post("/review/attempts/{attemptID}/confirm", h.handleConfirm)
			r.Post("/review/attempts/{attemptID}/adjust", h.handleAdjust)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Use(requireRole(model.UserRoleAdmin))

			r.Get("/admin/users", h.handleListUsers)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/active", h.handleSetUserActive)
			r.Get("/admin/evaluations", h.handleListEvaluations)
			r.Post("/admin/evaluations", h.handleUploadEvaluation)
			r.Get("/admin/evaluations/{evaluationID}/export", h.handleExport)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCreateAttempt(w http.ResponseWriter, r *http.Request) {
	evalID, err := urlID(r, "evaluationID")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		StudentID int64 `json:"student_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.store.GetStudent(r.Context(), body.StudentID); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.store.CreateAttempt(r.Context(), evalID, body.StudentID)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("attempt started", "attempt_id", a.ID, "evaluation_id", evalID, "student_id", body.StudentID)
	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.store.LoadAttempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	attemptID, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	questionID, err := urlID(r, "questionID")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.SaveAnswer(r.Context(), attemptID, questionID, body.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.grader.Submit(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	evalID, err := urlID(r, "evaluationID")
	if err != nil {
		writeError(w, err)
		return
	}
	f := model.PendingFilter{
		Priority: model.Priority(r.URL.Query().Get("priority")),
		Search:   r.URL.Query().Get("search"),
	}
	list, err := h.queue.ListPending(r.Context(), evalID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	evalID, err := urlID(r, "evaluationID")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.store.GetEvaluation(r.Context(), evalID); err != nil {
		writeError(w, err)
		return
	}
	st, err := h.queue.Stats(r.Context(), evalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleReviewDetail(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.queue.GetDetail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	user := model.UserFromContext(r.Context())
	if err := h.queue.Confirm(r.Context(), id, user.ID, body.Comment); err != nil {
		writeError(w, err)
		return
	}
	h.writeAttempt(w, r, id)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "attemptID")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Adjustments []model.Override `json:"adjustments"`
		Comment     string           `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if len(body.Adjustments) == 0 {
		writeError(w, badRequest("adjustments must not be empty"))
		return
	}

	user := model.UserFromContext(r.Context())
	if err := h.queue.Adjust(r.Context(), id, user.ID, body.Adjustments, body.Comment); err != nil {
		writeError(w, err)
		return
	}
	h.writeAttempt(w, r, id)
}

// writeAttempt responds with the current state of an attempt after a write.
func (h *Handler) writeAttempt(w http.ResponseWriter, r *http.Request, id int64) {
	a, err := h.store.LoadAttempt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// errBadRequest marks malformed client input.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s", name)
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, review.ErrInvalidFilter), errors.Is(err, store.ErrInvalidImport):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyGraded), errors.Is(err, model.ErrNotSubmitted), errors.Is(err, model.ErrNotInProgress):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidPoints):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// expiresAt is the expiry reported for a token issued now.
func expiresAt() time.Time {
	return time.Now().Add(store.AuthTokenTTL).UTC()
}
