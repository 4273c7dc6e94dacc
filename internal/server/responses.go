package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sifterhq/sifter/internal/auth"
	"github.com/sifterhq/sifter/internal/store"
	"github.com/sifterhq/sifter/internal/usage"
)

// errValidation marks request-body failures, surfaced as 400.
var errValidation = errors.New("invalid request")

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeError maps the failure taxonomy onto wire statuses. Unrecognized
// errors are 500s with a generic body so internals never leak to callers.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, auth.ErrMissingCredential),
		errors.Is(err, auth.ErrMalformedCredential),
		errors.Is(err, auth.ErrInvalidCredential):
		status = http.StatusUnauthorized

	case errors.Is(err, auth.ErrInsufficientRole),
		errors.Is(err, auth.ErrCapabilityNotLicensed):
		status = http.StatusForbidden

	case errors.Is(err, errValidation):
		status = http.StatusBadRequest

	case errors.Is(err, store.ErrOrganizationAlreadyExists),
		errors.Is(err, store.ErrUserAlreadyExists),
		errors.Is(err, store.ErrUserLimitReached),
		errors.Is(err, usage.ErrCounterConflict):
		status = http.StatusConflict
	}

	detail := err.Error()
	if status == http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		detail = "internal server error"
	}

	writeJSON(w, status, errorBody{Detail: detail})
}

// decodeJSON parses the request body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return validationf("malformed json body: %v", err)
	}
	return nil
}
