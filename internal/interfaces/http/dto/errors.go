package dto

import (
	"errors"
	"net/http"

	"github.com/feeledger/backend/internal/domain/shared"
)

// Codes produced by the HTTP layer itself. Domain errors keep their own codes.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeInvalidID       = "INVALID_ID"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
)

// KindInternal is reported for errors that carry no domain kind
const KindInternal = "INTERNAL_ERROR"

var kindStatus = map[shared.ErrorKind]int{
	shared.KindValidation:          http.StatusBadRequest,
	shared.KindConfiguration:       http.StatusUnprocessableEntity,
	shared.KindDuplicateInvoice:    http.StatusConflict,
	shared.KindPeriodAlreadyClosed: http.StatusConflict,
	shared.KindOverpaymentRejected: http.StatusConflict,
	shared.KindConflict:            http.StatusConflict,
	shared.KindNotFound:            http.StatusNotFound,
	shared.KindStorage:             http.StatusServiceUnavailable,
}

// StatusForKind returns the HTTP status for an error kind, 500 when unknown
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryableStatus reports whether a client may retry a request answered with status
func IsRetryableStatus(status int) bool {
	return status == http.StatusConflict || status == http.StatusServiceUnavailable
}

// ErrorResponseFor converts err into a status code and response body.
// Storage causes and unknown errors never reach the client verbatim.
func ErrorResponseFor(err error, requestID string) (int, Response) {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError,
			NewErrorResponseWithRequestID(KindInternal, ErrCodeInternal, "An unexpected error occurred", requestID)
	}
	status := StatusForKind(de.Kind)
	resp := NewErrorResponseWithRequestID(string(de.Kind), de.Code, de.Message, requestID)
	if de.Kind != shared.KindStorage {
		resp.Error.Details = de.Details
	}
	return status, resp
}
