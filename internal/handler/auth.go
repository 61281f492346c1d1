package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/autograder/internal/model"
)

// authenticate resolves the request's credentials: a bearer token issued by
// /api/login, or HTTP basic auth. It returns nil for anything else.
func (h *Handler) authenticate(r *http.Request) (*model.User, error) {
	ctx := r.Context()
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		sess, err := h.store.GetAuthSession(ctx, token)
		if err != nil || sess == nil {
			return nil, err
		}
		return h.store.GetUserByID(ctx, sess.UserID)
	}
	if username, password, ok := r.BasicAuth(); ok {
		return h.checkPassword(ctx, username, password)
	}
	return nil, nil
}

// checkPassword returns the active user matching the credentials, or nil.
func (h *Handler) checkPassword(ctx context.Context, username, password string) (*model.User, error) {
	user, err := h.store.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return user, nil
}

// requireAuth is middleware that rejects requests without an active user.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.authenticate(r)
		if err != nil {
			slog.Error("failed to authenticate request", "error", err)
		}
		if user == nil || !user.Active {
			w.Header().Set("WWW-Authenticate", `Basic realm="autograder"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		})
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.checkPassword(r.Context(), body.Username, body.Password)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		writeError(w, err)
		return
	}
	if user == nil || !user.Active {
		slog.Warn("login failed", "username", body.Username)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid username or password"})
		return
	}

	token, err := h.store.CreateAuthSession(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		writeError(w, err)
		return
	}
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt(),
		"user":       viewUser(*user),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		if err := h.store.DeleteAuthSession(r.Context(), token); err != nil {
			slog.Error("failed to delete auth session", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
