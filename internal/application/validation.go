// Package application holds concerns shared by every application service:
// command validation and the uniform command result.
package application

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidCommand is returned when a command payload fails validation
var ErrInvalidCommand = shared.NewValidationError("INVALID_COMMAND", "Command validation failed")

// Validator checks command payloads before any aggregate is loaded
type Validator struct {
	validate *validator.Validate
}

var (
	defaultValidator     *Validator
	defaultValidatorOnce sync.Once
)

// DefaultValidator returns the process-wide validator
func DefaultValidator() *Validator {
	defaultValidatorOnce.Do(func() {
		defaultValidator = NewValidator()
	})
	return defaultValidator
}

// NewValidator creates a validator that reports fields by their JSON names
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	// uuid-backed ids are arrays, so "required" alone cannot see the zero value
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		switch id := field.Interface().(type) {
		case uuid.UUID:
			if id != uuid.Nil {
				return id.String()
			}
		case zeroer:
			if !id.IsZero() {
				return id.String()
			}
		}
		return ""
	},
		uuid.UUID{},
		valueobject.TenantID{},
		valueobject.AccountID{},
		valueobject.InvoiceID{},
		valueobject.PaymentID{},
		valueobject.JournalID{},
		valueobject.PartyID{},
	)
	// amounts are compared with gt/gte as plain numbers
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{validate: v}
}

type zeroer interface {
	IsZero() bool
	String() string
}

// Struct validates a command. The returned error is a validation-kind
// DomainError with one detail per failing field.
func (v *Validator) Struct(cmd any) error {
	err := v.validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ErrInvalidCommand.WithDetail("error", err.Error())
	}

	sort.Slice(fieldErrors, func(i, j int) bool {
		return fieldErrors[i].Namespace() < fieldErrors[j].Namespace()
	})
	out := ErrInvalidCommand
	for _, fe := range fieldErrors {
		out = out.WithDetail(fieldPath(fe), validationMessage(fe))
	}
	return out
}

// fieldPath drops the struct name from the namespace: CreateInvoice.lines[0].description -> lines[0].description
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "dive":
		return "Invalid item"
	default:
		return "Invalid value"
	}
}

// CommandResult is returned by every command entry point
type CommandResult struct {
	AggregateID uuid.UUID `json:"aggregate_id"`
	Version     int64     `json:"version"`
	EventCount  int       `json:"event_count"`
}

// ResultOf reports an aggregate's id and version after a save, counting the
// events the command produced
func ResultOf(agg shared.AggregateRoot, eventCount int) CommandResult {
	return CommandResult{
		AggregateID: agg.AggregateID(),
		Version:     agg.Version(),
		EventCount:  eventCount,
	}
}
