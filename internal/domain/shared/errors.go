package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a DomainError for propagation decisions
type ErrorKind string

const (
	// KindValidation marks malformed input rejected before any event is produced
	KindValidation ErrorKind = "VALIDATION"
	// KindInvariant marks a state-dependent business rule that blocks a transition
	KindInvariant ErrorKind = "INVARIANT"
	// KindConflict marks an optimistic concurrency version mismatch
	KindConflict ErrorKind = "CONFLICT"
	// KindNotFound marks a missing aggregate or read row
	KindNotFound ErrorKind = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind         `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

// Is matches domain errors by code so that sentinel comparisons survive
// WithDetail copies.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of the error carrying an extra key/value detail
func (e *DomainError) WithDetail(key, value string) *DomainError {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// NewDomainError creates a new invariant-kind domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindInvariant,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a domain error for malformed input
func NewValidationError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewInvariantError creates a domain error for a violated business rule
func NewInvariantError(code, message string) *DomainError {
	return NewDomainError(code, message)
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = &DomainError{Kind: KindConflict, Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process"}
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrTenantMismatch      = NewDomainError("TENANT_MISMATCH", "Resource belongs to a different tenant")
	ErrCurrencyMismatch    = NewValidationError("CURRENCY_MISMATCH", "Currencies do not match")
	ErrUnbalancedEntry     = NewDomainError("UNBALANCED_ENTRY", "Total debits do not equal total credits")
	ErrClosedPeriod        = NewDomainError("CLOSED_PERIOD", "Accounting period is closed")
	ErrOverpayment         = NewDomainError("OVERPAYMENT", "Payment exceeds remaining balance")
)

func kindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsValidation reports whether err is a validation-kind domain error
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// IsInvariant reports whether err is an invariant-kind domain error
func IsInvariant(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindInvariant
}

// IsConflict reports whether err is a concurrency conflict
func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

// IsNotFound reports whether err is a not-found domain error
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}
