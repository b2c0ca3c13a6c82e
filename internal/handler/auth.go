package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/avetrov/examforge/internal/i18n"
	"github.com/avetrov/examforge/internal/model"
)

const sessionCookie = "session"

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireSession guards routes behind the session cookie. The cookie must
// match the live session token and an identity must be logged in.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" || cookie.Value != h.sessions.Token() {
			respondJSON(w, http.StatusUnauthorized, errorBody{
				Error: i18n.T(r.Context(), "NotLoggedIn"),
				Code:  "NotLoggedIn",
			})
			return
		}
		identity := h.sessions.Current()
		if identity == nil {
			respondJSON(w, http.StatusUnauthorized, errorBody{
				Error: i18n.T(r.Context(), "NotLoggedIn"),
				Code:  "NotLoggedIn",
			})
			return
		}
		ctx := model.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type signupRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r)
		return
	}
	identity, err := h.sessions.Signup(req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setSessionCookie(w, h.sessions.Token())
	respondJSON(w, http.StatusCreated, identity)
}

type loginRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r)
		return
	}
	identity, err := h.sessions.Login(req.Email, req.Password, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setSessionCookie(w, h.sessions.Token())
	respondJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	if err := h.sessions.Logout(); err != nil {
		respondError(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := model.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, r, errors.New("no identity in context"))
		return
	}
	respondJSON(w, http.StatusOK, identity)
}
