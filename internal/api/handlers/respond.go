package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zatekoja/bpcare/internal/api/middleware"
	"github.com/zatekoja/bpcare/internal/domain/entities"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/bpcare/pkg/errors"
)

const defaultRequestTimeout = 30 * time.Second

// maxBodyBytes bounds request payloads; the largest legitimate body is a
// modified medication list.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, errorResponse{Error: message})
}

// statusFor maps an application error type to its HTTP status
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeForbidden:
		return http.StatusForbidden
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict, apperrors.ErrorTypeNotPending:
		return http.StatusConflict
	case apperrors.ErrorTypeInsufficientData:
		return http.StatusUnprocessableEntity
	case apperrors.ErrorTypeQuotaExceeded, apperrors.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrorTypeGenerationFailed:
		return http.StatusBadGateway
	case apperrors.ErrorTypeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError renders err. Internal failures are logged and their
// message is replaced so storage details do not leak to clients.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		respondWithJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timed out", Code: "TIMEOUT"})
		return
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		respondWithJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: string(apperrors.ErrorTypeInternal)})
		return
	}

	status := statusFor(appErr.Type)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if appErr.Type == apperrors.ErrorTypeInternal || appErr.Type == apperrors.ErrorTypeExternal {
			message = "internal server error"
		}
	}

	if appErr.Type == apperrors.ErrorTypeRateLimited {
		if secs, ok := appErr.Details["retryAfterSeconds"].(int); ok && secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	respondWithJSON(w, status, errorResponse{
		Error:   message,
		Code:    string(appErr.Type),
		Details: appErr.Details,
	})
}

// decodeJSON reads a JSON body into dst. An empty body is allowed when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	respondWithError(w, http.StatusBadRequest, "invalid request payload")
	return false
}

// requirePrincipal returns the caller and checks its role when one is given
func requirePrincipal(w http.ResponseWriter, r *http.Request, role entities.UserRole) (entities.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Code: string(apperrors.ErrorTypeUnauthorized)})
		return entities.Principal{}, false
	}
	if role != "" && principal.Role != role {
		respondWithJSON(w, http.StatusForbidden, errorResponse{
			Error: "only " + string(role) + "s may call this endpoint",
			Code:  string(apperrors.ErrorTypeForbidden),
		})
		return entities.Principal{}, false
	}
	return principal, true
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(name + " must be an integer")
	}
	return v, nil
}
