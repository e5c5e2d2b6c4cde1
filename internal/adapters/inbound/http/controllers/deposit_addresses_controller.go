package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/rs/zerolog"
)

type DepositAddressesController struct {
	useCase portsin.GetOrCreateDepositAddressUseCase
	logger  zerolog.Logger
}

type depositAddressPayload struct {
	UserID string `json:"user_id"`
	Chain  string `json:"chain"`
}

func NewDepositAddressesController(
	useCase portsin.GetOrCreateDepositAddressUseCase,
	logger zerolog.Logger,
) *DepositAddressesController {
	return &DepositAddressesController{
		useCase: useCase,
		logger:  logger,
	}
}

// CreateDepositAddress returns 201 for a new binding and 200 when the user
// already had an address on the chain.
func (c *DepositAddressesController) CreateDepositAddress(w http.ResponseWriter, r *http.Request) {
	payload, appErr := parseDepositAddressPayload(r.Body)
	if appErr != nil {
		writeAppError(w, appErr)
		return
	}

	output, appErr := c.useCase.Execute(r.Context(), dto.GetOrCreateDepositAddressCommand{
		UserID:          payload.UserID,
		Chain:           payload.Chain,
		CreateIfMissing: true,
	})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/deposit-addresses", appErr)
		writeAppError(w, appErr)
		return
	}

	if !output.Created {
		writeJSON(w, http.StatusOK, output.Resource)
		return
	}
	writeJSON(w, http.StatusCreated, output.Resource)
}

func (c *DepositAddressesController) GetDepositAddress(w http.ResponseWriter, r *http.Request) {
	output, appErr := c.useCase.Execute(r.Context(), dto.GetOrCreateDepositAddressCommand{
		UserID: r.PathValue("user_id"),
		Chain:  r.PathValue("chain"),
	})
	if appErr != nil {
		logRequestError(c.logger, r, "/v1/users/{user_id}/deposit-addresses/{chain}", appErr)
		writeAppError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, output.Resource)
}

func parseDepositAddressPayload(body io.Reader) (depositAddressPayload, *apperrors.AppError) {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	payload := depositAddressPayload{}
	if err := decoder.Decode(&payload); err != nil {
		return depositAddressPayload{}, apperrors.NewValidation(
			"invalid_request",
			"request body must be valid JSON",
			map[string]any{"error": err.Error()},
		)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return depositAddressPayload{}, apperrors.NewValidation(
			"invalid_request",
			"request body must contain a single JSON object",
			nil,
		)
	}

	return payload, nil
}
