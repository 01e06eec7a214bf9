package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/baswilson/navsite/internal/ads"
	"github.com/baswilson/navsite/internal/auth"
	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

var errBadID = errors.New("invalid id")

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain and database errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, users.ErrWrongPassword),
		errors.Is(err, users.ErrInvalidUsername),
		errors.Is(err, users.ErrInvalidPassword),
		errors.Is(err, users.ErrNoChanges),
		errors.Is(err, ads.ErrNoChanges),
		errors.Is(err, errBadID):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrConstraint):
		return http.StatusConflict
	case errors.Is(err, database.ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Server side failures are logged, and in
// production their message is replaced with a generic one.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	var nf *database.NotFoundError
	if errors.As(err, &nf) {
		msg = nf.Entity + " not found"
	}
	if status == http.StatusConflict {
		msg = "conflicts with an existing record"
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if s.config.IsProduction() {
			msg = http.StatusText(status)
		}
	}
	writeError(w, status, msg)
}

// decode reads a JSON body into v
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// idParam parses a positive integer URL parameter
func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadID, chi.URLParam(r, name))
	}
	return id, nil
}

// queryInt returns the integer query parameter name, or 0 when absent or bad
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}
