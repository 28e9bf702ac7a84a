package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/access"
	"github.com/local/flipbook/internal/flipbook"
	"github.com/local/flipbook/internal/intake"
	"github.com/local/flipbook/internal/pagination"
	"github.com/local/flipbook/internal/rasterizer"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

var (
	// errPageNotFound is returned for page indices outside the current PageSet.
	errPageNotFound = errors.New("page not found")
	errNoLogo       = errors.New("no logo set")
)

type errorResp struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResp{Error: err.Error()}
	if reason := intake.Reason(err); reason != "io" {
		resp.Reason = reason
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		oversize *intake.OversizeInputError
		tooMany  *intake.TooManyPagesError
		fetch    *intake.FetchError
	)
	switch {
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, flipbook.ErrNotFound), errors.Is(err, errPageNotFound), errors.Is(err, errNoLogo), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &oversize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, intake.ErrNotPDF), errors.Is(err, intake.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &tooMany):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fetch):
		return http.StatusBadGateway
	case errors.Is(err, errBadRequest),
		errors.Is(err, intake.ErrEmpty),
		errors.Is(err, intake.ErrUnsupportedSource),
		errors.Is(err, intake.ErrLocalDisabled),
		errors.Is(err, intake.ErrBlockedHost),
		errors.Is(err, rasterizer.ErrInvalidOption),
		errors.Is(err, pagination.ErrInvalidStep),
		errors.Is(err, flipbook.ErrInvalidColor),
		errors.Is(err, flipbook.ErrInvalidEffect),
		errors.Is(err, flipbook.ErrInvalidLogo):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
