package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
)

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorPayload{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	writeError(w, r, status, code, err.Error())
}

func mapDomainError(err error) (int, string) {
	var (
		fetchErr  *domain.FetchError
		configErr *domain.ConfigError
	)

	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "upstream_unavailable"
	case errors.As(err, &configErr):
		return http.StatusBadRequest, "invalid_config"
	case errors.Is(err, domain.ErrMissingExtension),
		errors.Is(err, pricesync.ErrNoExtensions),
		errors.Is(err, importer.ErrNothingToImport):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
