package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/baswilson/navsite/internal/auth"
	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/notify"
	"github.com/baswilson/navsite/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type userRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type tokenResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	Token     string  `json:"token"`
	ExpiresIn string  `json:"expiresIn"`
	ExpiresAt string  `json:"expiresAt"`
	User      userRef `json:"user"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, u *users.User, remember bool, message string) {
	token, expires, err := s.issuer.Issue(u.ID, u.Username, remember)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	expiresIn := "7d"
	if remember {
		expiresIn = "30d"
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Success:   true,
		Message:   message,
		Token:     token,
		ExpiresIn: expiresIn,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		User:      userRef{ID: u.ID, Username: u.Username},
	})
}

// clientIP returns the caller address without the port. RealIP has already
// applied X-Forwarded-For.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.users.Authenticate(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Int64("user_id", u.ID).Msg("login")
	s.issueToken(w, r, u, req.Remember, "login successful")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.users.Create(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if errors.Is(err, database.ErrConstraint) {
		writeError(w, http.StatusConflict, "username already exists")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.changed(r.Context(), notify.EntityUsers)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":  "registered",
		"id":       u.ID,
		"username": u.Username,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	invalid := func(msg string) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"valid": false, "error": msg})
	}

	token, err := auth.BearerToken(r)
	if err != nil {
		invalid(err.Error())
		return
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		invalid(auth.ErrInvalidToken.Error())
		return
	}
	u, err := s.users.GetByID(r.Context(), claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		invalid("user no longer exists")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":     true,
		"user":      userRef{ID: u.ID, Username: u.Username},
		"expiresAt": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.FromContext(r.Context())
	u, err := s.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.issueToken(w, r, u, false, "token refreshed")
}

// handleLogout exists for the client's benefit. Tokens are stateless and
// simply expire.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "old and new password are required")
		return
	}

	claims, _ := auth.FromContext(r.Context())
	if err := s.users.ChangePassword(r.Context(), claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (s *Server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := users.ValidateUsername(username); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"available": false, "error": err.Error()})
		return
	}
	taken, err := s.users.Exists(r.Context(), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg := "username is available"
	if taken {
		msg = "username is taken"
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": !taken, "message": msg})
}
