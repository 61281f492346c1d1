package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/autograder/internal/model"
)

const maxUploadBytes = 10 << 20

// userView is the public shape of a user; it never carries the password hash.
type userView struct {
	ID          int64          `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Role        model.UserRole `json:"role"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
}

func viewUser(u model.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		Active:      u.Active,
		CreatedAt:   u.CreatedAt,
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username    string         `json:"username"`
		DisplayName string         `json:"display_name"`
		Password    string         `json:"password"`
		Role        model.UserRole `json:"role"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		writeError(w, badRequest("username and password required"))
		return
	}
	switch body.Role {
	case "":
		body.Role = model.UserRoleTeacher
	case model.UserRoleTeacher, model.UserRoleAdmin:
	default:
		writeError(w, badRequest("unknown role %q", body.Role))
		return
	}
	if body.DisplayName == "" {
		body.DisplayName = body.Username
	}

	existing, err := h.store.GetUserByUsername(r.Context(), body.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "username already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, err)
		return
	}

	u := model.User{
		Username:     body.Username,
		DisplayName:  body.DisplayName,
		PasswordHash: string(hash),
		Role:         body.Role,
		Active:       true,
	}
	u.ID, err = h.store.CreateUser(r.Context(), u)
	if err != nil {
		slog.Error("failed to create user", "error", err)
		writeError(w, err)
		return
	}
	slog.Info("user created", "user_id", u.ID, "username", u.Username, "role", u.Role)
	writeJSON(w, http.StatusCreated, viewUser(u))
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "userID")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id && !body.Active {
		writeError(w, badRequest("cannot deactivate yourself"))
		return
	}

	if err := h.store.SetUserActive(r.Context(), id, body.Active); err != nil {
		slog.Error("failed to set user active", "id", id, "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListEvaluations(w http.ResponseWriter, r *http.Request) {
	evals, err := h.store.ListEvaluations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if evals == nil {
		evals = []model.Evaluation{}
	}
	writeJSON(w, http.StatusOK, evals)
}

func (h *Handler) handleUploadEvaluation(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, badRequest("failed to read body"))
		return
	}

	id, duplicate, err := h.store.ImportEvaluationJSON(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"evaluation_id": id, "duplicate": duplicate})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "evaluationID")
	if err != nil {
		writeError(w, err)
		return
	}
	exp, err := h.store.ExportEvaluation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
