package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
)

const (
	maxBodyBytes   = 1 << 20
	minPasswordLen = 8
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// decodeCredentials reads a credentials body and normalizes the email.
func decodeCredentials(w http.ResponseWriter, r *http.Request, register bool) (credentials, error) {
	var c credentials
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return c, errors.New("invalid request body")
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.DisplayName = strings.TrimSpace(c.DisplayName)
	if c.Email == "" || c.Password == "" || (register && c.DisplayName == "") {
		if register {
			return c, errors.New("email, password, and displayName are required")
		}
		return c, errors.New("email and password are required")
	}
	if register {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return c, fmt.Errorf("invalid email %q", c.Email)
		}
		if len(c.Password) < minPasswordLen {
			return c, fmt.Errorf("password must be at least %d characters", minPasswordLen)
		}
	}
	return c, nil
}

// Register handles POST /auth/register and answers with an AuthResult.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r, true)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := h.service.Register(r.Context(), c.Email, c.Password, c.DisplayName)
	if err != nil {
		h.writeError(w, "register", err)
		return
	}
	WriteJSON(w, http.StatusCreated, result)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r, false)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	result, err := h.service.Login(r.Context(), c.Email, c.Password)
	if err != nil {
		h.writeError(w, "login", err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Me handles GET /api/me for an authenticated request.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, "me", err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) writeError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		WriteJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
	case errors.Is(err, ErrInvalidCredentials):
		WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrUserNotFound):
		WriteJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
	default:
		slog.Error(action+" failed", "error", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// WriteJSON encodes data as the response body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}
