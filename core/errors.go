package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DeliveryErrorBadInput              = "MAILROOM_BAD_INPUT"
	DeliveryErrorIneligibleState       = "MAILROOM_INELIGIBLE_STATE"
	DeliveryErrorInvalidEmail          = "MAILROOM_INVALID_EMAIL"
	DeliveryErrorUnknownProvider       = "MAILROOM_UNKNOWN_PROVIDER"
	DeliveryErrorMisconfiguredProvider = "MAILROOM_MISCONFIGURED_PROVIDER"
	DeliveryErrorProxyUnavailable      = "MAILROOM_PROXY_UNAVAILABLE"
	DeliveryErrorTransportFailure      = "MAILROOM_TRANSPORT_FAILURE"
	DeliveryErrorRecordNotFound        = "MAILROOM_RECORD_NOT_FOUND"
	DeliveryErrorInternal              = "MAILROOM_INTERNAL_ERROR"
)

func deliveryErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureDeliveryErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrIneligibleState):
		return newDeliveryError(err.Error(), goerrors.CategoryConflict, DeliveryErrorIneligibleState)
	case errors.Is(err, ErrInvalidEmail):
		return newDeliveryError(err.Error(), goerrors.CategoryValidation, DeliveryErrorInvalidEmail)
	case errors.Is(err, ErrUnknownProvider):
		return newDeliveryError(err.Error(), goerrors.CategoryNotFound, DeliveryErrorUnknownProvider)
	case errors.Is(err, ErrMisconfiguredProvider):
		return newDeliveryError(err.Error(), goerrors.CategoryBadInput, DeliveryErrorMisconfiguredProvider)
	case errors.Is(err, ErrProxyUnavailable):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorProxyUnavailable)
	case errors.Is(err, ErrTransportFailure):
		return newDeliveryError(err.Error(), goerrors.CategoryOperation, DeliveryErrorTransportFailure)
	case errors.Is(err, ErrRecordNotFound):
		return newDeliveryError(err.Error(), goerrors.CategoryNotFound, DeliveryErrorRecordNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newDeliveryError(err.Error(), goerrors.CategoryBadInput, DeliveryErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDeliveryErrorEnvelope(mapped)
}

func newDeliveryError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureDeliveryErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureDeliveryErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = deliveryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultDeliveryTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultDeliveryTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return DeliveryErrorBadInput
	case goerrors.CategoryNotFound:
		return DeliveryErrorRecordNotFound
	case goerrors.CategoryConflict:
		return DeliveryErrorIneligibleState
	case goerrors.CategoryOperation:
		return DeliveryErrorTransportFailure
	default:
		return DeliveryErrorInternal
	}
}

func deliveryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
