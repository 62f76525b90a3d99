package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/viridial/authcore"
	"github.com/viridial/authcore/middleware"
)

const maxJSONBodyBytes = 1 << 16

type handlers struct {
	engine *authcore.Engine
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type attemptsResponse struct {
	Identifier string `json:"identifier"`
	Attempts   int64  `json:"attempts"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteError(w, r, authcore.ErrInvalidRequest)
		return false
	}
	return true
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	res, err := h.engine.SignUp(r.Context(), authcore.SignUpRequest{
		Identifier:  body.Email,
		Secret:      body.Password,
		DisplayName: strings.TrimSpace(body.Name),
		Locale:      strings.TrimSpace(body.Locale),
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Email == "" || body.Password == "" {
		middleware.WriteError(w, r, authcore.ErrInvalidRequest)
		return
	}

	res, err := h.engine.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	pair, err := h.engine.Rotate(r.Context(), strings.TrimSpace(body.RefreshToken))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.Revoke(r.Context(), strings.TrimSpace(body.RefreshToken)); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.VerifyEmail(r.Context(), strings.TrimSpace(body.Token)); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	var body resendRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.engine.ResendVerification(r.Context(), body.Email); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, authcore.ErrInvalidToken)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, id)
}

func (h *handlers) loginAttempts(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	n, err := h.engine.LoginAttempts(r.Context(), identifier)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, attemptsResponse{Identifier: identifier, Attempts: n})
}

func (h *handlers) unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.UnlockAccount(r.Context(), chi.URLParam(r, "identifier")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	if !status.Available {
		code = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, code, status)
}
