package handler

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

// fieldError reports a malformed request field.
func fieldError(msg string) error {
	return &domain.ValidationError{Message: msg}
}

// mapError maps domain errors to HTTP responses.
func mapError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	WriteJSON(w, status, body)
}

// classify returns the status code and body an error is reported with.
func classify(err error) (int, errorResponse) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, errorResponse{Error: "validation_error", Message: validationErr.Message}
	}

	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return http.StatusForbidden, errorResponse{Error: authErr.Kind.Error(), Message: err.Error()}
	}

	var callErr *domain.CallError
	if errors.As(err, &callErr) {
		body := errorResponse{Error: domain.ErrCallFailed.Error(), Message: err.Error()}
		if len(callErr.Payload) > 0 {
			body.Data = hexutil.Encode(callErr.Payload)
		}
		return http.StatusBadGateway, body
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrUnknownToken):
		status, code = http.StatusNotFound, "unknown_token"
	case errors.Is(err, domain.ErrPaused):
		status, code = http.StatusLocked, "paused"
	case errors.Is(err, domain.ErrPriceUnavailable):
		status, code = http.StatusServiceUnavailable, "price_unavailable"
	case errors.Is(err, domain.ErrOrderNotOpen):
		status, code = http.StatusConflict, "order_not_open"
	case errors.Is(err, domain.ErrOrderExpired):
		status, code = http.StatusConflict, "order_expired"
	case errors.Is(err, domain.ErrConditionNotMet):
		status, code = http.StatusConflict, "condition_not_met"
	case errors.Is(err, domain.ErrTriggerNotApplicable):
		status, code = http.StatusConflict, "trigger_not_applicable"
	case errors.Is(err, domain.ErrSlippage):
		status, code = http.StatusConflict, "slippage_exceeded"
	case errors.Is(err, domain.ErrTransferFailed):
		status, code = http.StatusConflict, "transfer_failed"
	case errors.Is(err, domain.ErrReentrancy):
		status, code = http.StatusConflict, "reentrancy"
	default:
		return status, errorResponse{Error: code, Message: "An unexpected error occurred"}
	}
	return status, errorResponse{Error: code, Message: err.Error()}
}
