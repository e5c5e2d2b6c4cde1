package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/rs/zerolog"
)

type DepositsController struct {
	useCase portsin.ListUserDepositsUseCase
	logger  zerolog.Logger
}

func NewDepositsController(useCase portsin.ListUserDepositsUseCase, logger zerolog.Logger) *DepositsController {
	return &DepositsController{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *DepositsController) ListUserDeposits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeAppError(w, apperrors.NewValidation(
				"invalid_request",
				"limit must be an integer",
				map[string]any{"field": "limit"},
			))
			return
		}
		limit = parsed
	}

	output, appErr := c.useCase.Execute(r.Context(), dto.ListUserDepositsQuery{
		UserID: r.PathValue("user_id"),
		Limit:  limit,
	})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/users/{user_id}/deposits", appErr)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output)
}
