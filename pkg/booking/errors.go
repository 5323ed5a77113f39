package booking

import (
	"errors"
	"fmt"
	"strings"
)

// Taxonomy roots. Every domain sentinel wraps exactly one of them.
var (
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("system not configured")
	ErrNotFound      = errors.New("not found")
)

// Domain-level error values returned by the booking service.
var (
	ErrInvalidCourtID          = newKindError(ErrValidation, "invalid court id")
	ErrInvalidPayerID          = newKindError(ErrValidation, "invalid payer id")
	ErrInvalidPaymentID        = newKindError(ErrValidation, "invalid payment id")
	ErrInvalidSlotID           = newKindError(ErrValidation, "invalid slot id")
	ErrInvalidReservationID    = newKindError(ErrValidation, "invalid reservation id")
	ErrInvalidDate             = newKindError(ErrValidation, "invalid date")
	ErrInvalidTimeOfDay        = newKindError(ErrValidation, "invalid time of day")
	ErrInvalidInterval         = newKindError(ErrValidation, "invalid interval")
	ErrOutsideOperatingHours   = newKindError(ErrValidation, "interval outside operating hours")
	ErrSlotInPast              = newKindError(ErrValidation, "slot is in the past")
	ErrEmptySlots              = newKindError(ErrValidation, "no slots requested")
	ErrDuplicateSlot           = newKindError(ErrValidation, "duplicate slot in request")
	ErrOverlappingRequest      = newKindError(ErrValidation, "requested slots overlap each other")
	ErrInvalidAmountCents      = newKindError(ErrValidation, "invalid amount cents")
	ErrAmountMismatch          = newKindError(ErrValidation, "declared amount does not match computed total")
	ErrUnknownPaymentMethod    = newKindError(ErrValidation, "unknown payment method")
	ErrProofRequired           = newKindError(ErrValidation, "payment method requires proof reference")
	ErrInvalidPaymentStatus    = newKindError(ErrValidation, "invalid payment status")
	ErrInvalidReservationState = newKindError(ErrValidation, "invalid reservation status")
	ErrInvalidMetadataJSON     = newKindError(ErrValidation, "invalid metadata json")
	ErrSlotConflict            = newKindError(ErrConflict, "slot already booked")
	ErrUnknownCourt            = newKindError(ErrNotFound, "unknown court")
	ErrExchangeRateUnavailable = newKindError(ErrConfiguration, "exchange rate unavailable")
	ErrInvalidExchangeRate     = newKindError(ErrConfiguration, "invalid exchange rate")
	ErrInvalidCourtRecord      = newKindError(ErrConfiguration, "invalid court record")
	ErrInvalidServiceConfig    = newKindError(ErrConfiguration, "invalid service config")
	ErrInvalidPaymentPolicy    = newKindError(ErrConfiguration, "invalid payment method policy")
)

type kindError struct {
	kind    error
	message string
}

func newKindError(kind error, message string) error {
	return &kindError{kind: kind, message: message}
}

func (err *kindError) Error() string {
	return err.message
}

func (err *kindError) Unwrap() error {
	return err.kind
}

// ErrorKind is the coarse failure class used by transports to pick a response.
type ErrorKind string

const (
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConflict      ErrorKind = "conflict"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindSystem        ErrorKind = "system"
)

// Classify maps an error onto its taxonomy kind. Unknown errors are system errors.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	default:
		return ErrorKindSystem
	}
}

// SlotConflictError names the requested intervals that overlap occupied slots.
type SlotConflictError struct {
	Intervals []Interval
}

// Error renders "<start>-<end> already booked" for every conflicting interval.
func (conflictError SlotConflictError) Error() string {
	if len(conflictError.Intervals) == 0 {
		return ErrSlotConflict.Error()
	}
	labels := make([]string, 0, len(conflictError.Intervals))
	for _, interval := range conflictError.Intervals {
		labels = append(labels, interval.String())
	}
	return strings.Join(labels, ", ") + " already booked"
}

// Unwrap returns ErrSlotConflict.
func (conflictError SlotConflictError) Unwrap() error {
	return ErrSlotConflict
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
