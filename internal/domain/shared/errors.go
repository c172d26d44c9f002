package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError. Callers decide retry and surfacing
// behavior from the kind, never from the message.
type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION_ERROR"
	KindConfiguration       ErrorKind = "CONFIGURATION_ERROR"
	KindDuplicateInvoice    ErrorKind = "DUPLICATE_INVOICE"
	KindPeriodAlreadyClosed ErrorKind = "PERIOD_ALREADY_CLOSED"
	KindOverpaymentRejected ErrorKind = "OVERPAYMENT_REJECTED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindConflict            ErrorKind = "CONFLICT"
	KindStorage             ErrorKind = "STORAGE_ERROR"
)

// Retryable reports whether a caller may retry an operation that failed with this kind.
func (k ErrorKind) Retryable() bool {
	return k == KindStorage || k == KindConflict
}

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind      `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// NewDomainError creates a new validation-kind domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for bad caller input
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(code, message)
}

// NewConfigurationError creates an error for an ambiguous or missing catalog rule
func NewConfigurationError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindConfiguration,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates an error for an unknown resource id
func NewNotFoundError(resource, id string) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %s not found", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewDuplicateInvoiceError reports an existing non-void invoice for the same student and period
func NewDuplicateInvoiceError(studentID, period string) *DomainError {
	return &DomainError{
		Kind:    KindDuplicateInvoice,
		Code:    "DUPLICATE_INVOICE",
		Message: fmt.Sprintf("invoice already exists for student %s in period %s", studentID, period),
		Details: map[string]any{"student_id": studentID, "billing_period": period},
	}
}

// NewPeriodAlreadyClosedError reports a second close of the same period
func NewPeriodAlreadyClosedError(period string) *DomainError {
	return &DomainError{
		Kind:    KindPeriodAlreadyClosed,
		Code:    "PERIOD_ALREADY_CLOSED",
		Message: fmt.Sprintf("billing period %s is already closed", period),
		Details: map[string]any{"billing_period": period},
	}
}

// NewOverpaymentRejectedError reports an excess the policy does not allow to carry as credit
func NewOverpaymentRejectedError(excessMinor int64, currency string) *DomainError {
	return &DomainError{
		Kind:    KindOverpaymentRejected,
		Code:    "OVERPAYMENT_REJECTED",
		Message: "payment exceeds outstanding dues and credit carry is disabled",
		Details: map[string]any{"excess_minor": excessMinor, "currency": currency},
	}
}

// NewConflictError reports a concurrent modification or an unavailable lease
func NewConflictError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
	}
}

// NewStorageError wraps a transient storage failure
func NewStorageError(op string, err error) *DomainError {
	return &DomainError{
		Kind:    KindStorage,
		Code:    "STORAGE_ERROR",
		Message: "storage operation failed: " + op,
		Err:     err,
	}
}

// KindOf returns the kind of the first DomainError in err's chain, or "" when there is none
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrLeaseNotObtained    = NewConflictError("LEASE_NOT_OBTAINED", "Student ledger is busy, retry later")
)
