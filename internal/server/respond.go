package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/valpere/doktran/internal"
	"github.com/valpere/doktran/internal/auth"
	"github.com/valpere/doktran/internal/blob"
	"github.com/valpere/doktran/internal/extract"
	"github.com/valpere/doktran/internal/orchestrator"
	"github.com/valpere/doktran/internal/speech"
	"github.com/valpere/doktran/internal/spreadsheet"
	"github.com/valpere/doktran/internal/store"
)

// errBadRequest wraps request validation failures.
var errBadRequest = errors.New("bad request")

// decodeJSON decodes the request body into v. Oversized bodies keep their
// *http.MaxBytesError so they map to 413.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
}

func jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResponse(w, map[string]string{"error": msg}, status)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	var providerErr *orchestrator.ProviderError
	var missingCols *spreadsheet.MissingColumnsError

	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, internal.ErrEmptyText),
		errors.Is(err, orchestrator.ErrInvalidJob),
		errors.Is(err, orchestrator.ErrUnknownService),
		errors.Is(err, store.ErrInvalid),
		errors.Is(err, extract.ErrInvalidDocument),
		errors.Is(err, spreadsheet.ErrInvalidWorkbook),
		errors.Is(err, spreadsheet.ErrNoColumns),
		errors.Is(err, speech.ErrUnsupportedFormat),
		errors.As(err, &missingCols):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, extract.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("Request error")
	}
	jsonError(w, err.Error(), status)
}
