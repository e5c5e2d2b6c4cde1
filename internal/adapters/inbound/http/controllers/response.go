package controllers

import (
	"encoding/json"
	"net/http"

	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAppError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status := http.StatusInternalServerError
	switch appErr.Type {
	case apperrors.TypeValidation:
		status = http.StatusBadRequest
	case apperrors.TypeNotFound:
		status = http.StatusNotFound
	case apperrors.TypeConflict:
		status = http.StatusConflict
	case apperrors.TypeUnavailable:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{
		Error: errorEnvelope{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

func logRequestError(logger zerolog.Logger, r *http.Request, route string, appErr *apperrors.AppError) {
	event := logger.Warn()
	if appErr.Type == apperrors.TypeInternal || appErr.Type == apperrors.TypeUnavailable {
		event = logger.Error()
	}
	event.
		Str("path", route).
		Str("method", r.Method).
		Str("code", appErr.Code).
		Msg(appErr.Message)
}
