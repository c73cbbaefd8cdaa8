package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/p-n-ai/pai-progress/internal/auth"
	"github.com/p-n-ai/pai-progress/internal/dashboard"
)

const avatarBaseURL = "https://ui-avatars.com/api/"

// sessionView is the client-facing form of a session. Tokens stay on the server.
type sessionView struct {
	Loading   bool       `json:"loading"`
	SignedIn  bool       `json:"signed_in"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newSessionView(s *auth.Session, loading bool) sessionView {
	v := sessionView{Loading: loading}
	if s == nil {
		return v
	}
	v.SignedIn = true
	v.UserID = s.User.ID
	v.Email = s.User.Email
	if exp := s.Expiry(); !exp.IsZero() {
		exp = exp.UTC()
		v.ExpiresAt = &exp
	}
	return v
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
	Major        string `json:"major"`
	CurrentCycle int    `json:"current_cycle"`
}

type registerResponse struct {
	sessionView
	ConfirmationPending bool   `json:"confirmation_pending"`
	Message             string `json:"message,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newSessionView(s.sessions.Current(), s.sessions.Loading()))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, "login", &req) {
		return
	}

	sess, err := s.sessions.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess, false))
}

// handleRegister creates the account, then the student profile for it. A
// profile failure is reported even though the account exists.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeBody(w, r, "register", &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	metadata := map[string]any{
		"full_name":     req.FullName,
		"major":         req.Major,
		"current_cycle": req.CurrentCycle,
	}
	res, err := s.sessions.SignUp(r.Context(), email, req.Password, metadata)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	profile := dashboard.Profile{
		ID:           res.User.ID,
		FullName:     req.FullName,
		Major:        req.Major,
		CurrentCycle: req.CurrentCycle,
		AvatarURL:    avatarURL(req.FullName),
		Email:        email,
		Role:         dashboard.RoleStudent,
	}
	if !s.dash.CreateProfile(r.Context(), profile) {
		writeError(w, r, http.StatusBadGateway, msgProfileCreateFailed)
		return
	}

	resp := registerResponse{
		sessionView:         newSessionView(res.Session, false),
		ConfirmationPending: res.ConfirmationPending(),
	}
	if resp.ConfirmationPending {
		resp.Message = printerFor(r).Sprintf(msgConfirmationPending)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleLogout always ends the local session. A failed remote sign out is
// only logged.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.SignOut(r.Context()); err != nil {
		slog.Warn("sign out did not reach the auth service", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *auth.APIError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		writeError(w, r, http.StatusForbidden, msgEmailNotConfirmed)
	case errors.Is(err, auth.ErrUserExists):
		writeError(w, r, http.StatusConflict, msgUserExists)
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		writeError(w, r, http.StatusBadRequest, msgInvalidRequest, apiErr.Message)
	default:
		slog.Error("auth request failed", "error", err)
		writeError(w, r, http.StatusBadGateway, msgAuthUnavailable)
	}
}

func avatarURL(fullName string) string {
	q := url.Values{}
	q.Set("name", fullName)
	q.Set("background", "random")
	return avatarBaseURL + "?" + q.Encode()
}
