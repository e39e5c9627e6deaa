package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/clinicalorders/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// statusFor maps an AppError type onto an HTTP status.
func statusFor(errType apperrors.ErrorType) int {
	switch errType {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeModelUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeMalformedModelResponse, apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err with the status of its AppError type. Internal
// details are logged, not returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	errType := apperrors.TypeOf(err)
	status := statusFor(errType)

	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	message := "internal server error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && errType != apperrors.ErrorTypeInternal {
		message = appErr.Message
	}
	if errType == "" {
		errType = apperrors.ErrorTypeInternal
	}

	respondWithJSON(w, status, map[string]string{
		"error": message,
		"code":  string(errType),
	})
}
