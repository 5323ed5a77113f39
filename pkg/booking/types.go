package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AmountCents is an integer currency amount in cents.
type AmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmountCents)
	}
	return AmountCents(raw), nil
}

// AmountCentsFromDecimal converts a decimal currency value, rounding to the nearest cent.
func AmountCentsFromDecimal(raw float64) (AmountCents, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: not a number", ErrInvalidAmountCents)
	}
	return NewAmountCents(int64(math.Round(raw * 100)))
}

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Decimal returns the amount in currency units.
func (amount AmountCents) Decimal() float64 {
	return float64(amount) / 100
}

// CourtID identifies a bookable court.
type CourtID struct {
	value string
}

// PayerID identifies the authenticated user paying for a booking.
type PayerID struct {
	value string
}

// PaymentID identifies a payment row.
type PaymentID struct {
	value string
}

// SlotID identifies a materialized slot row.
type SlotID struct {
	value string
}

// ReservationID identifies a reservation row.
type ReservationID struct {
	value string
}

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	return trimmed, nil
}

// NewCourtID validates and normalizes a court id.
func NewCourtID(raw string) (CourtID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidCourtID)
	if err != nil {
		return CourtID{}, err
	}
	return CourtID{value: value}, nil
}

// String returns the normalized identifier.
func (id CourtID) String() string {
	return id.value
}

// NewPayerID validates and normalizes a payer id.
func NewPayerID(raw string) (PayerID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidPayerID)
	if err != nil {
		return PayerID{}, err
	}
	return PayerID{value: value}, nil
}

// String returns the normalized identifier.
func (id PayerID) String() string {
	return id.value
}

// NewPaymentID validates and normalizes a payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidPaymentID)
	if err != nil {
		return PaymentID{}, err
	}
	return PaymentID{value: value}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// NewSlotID validates and normalizes a slot id.
func NewSlotID(raw string) (SlotID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidSlotID)
	if err != nil {
		return SlotID{}, err
	}
	return SlotID{value: value}, nil
}

// String returns the normalized identifier.
func (id SlotID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidReservationID)
	if err != nil {
		return ReservationID{}, err
	}
	return ReservationID{value: value}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// MetadataJSON stores arbitrary payment metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// ExchangeRate is the currency conversion snapshot attached to a payment.
type ExchangeRate struct {
	value float64
}

// NewExchangeRate validates a strictly positive rate.
func NewExchangeRate(raw float64) (ExchangeRate, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw <= 0 {
		return ExchangeRate{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidExchangeRate)
	}
	return ExchangeRate{value: raw}, nil
}

// Float64 returns the raw rate.
func (rate ExchangeRate) Float64() float64 {
	return rate.value
}

// ProofReference points at a stored payment proof. The zero value means no proof.
type ProofReference struct {
	value string
}

// NewProofReference normalizes a proof reference; blank input yields the zero value.
func NewProofReference(raw string) ProofReference {
	return ProofReference{value: strings.TrimSpace(raw)}
}

// String returns the stored reference.
func (proof ProofReference) String() string {
	return proof.value
}

// IsZero reports whether no proof was supplied.
func (proof ProofReference) IsZero() bool {
	return proof.value == ""
}

// PaymentStatus defines the settlement lifecycle of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusRejected  PaymentStatus = "rejected"
)

// ParsePaymentStatus validates a stored payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch status := PaymentStatus(strings.TrimSpace(raw)); status {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusRejected:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentStatus, raw)
	}
}

// String returns the status label.
func (status PaymentStatus) String() string {
	return string(status)
}

// ReservationStatus defines reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus validates a stored reservation status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	switch status := ReservationStatus(strings.TrimSpace(raw)); status {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidReservationState, raw)
	}
}

// String returns the status label.
func (status ReservationStatus) String() string {
	return string(status)
}

// SlotState is the occupancy state of a materialized slot.
type SlotState string

const (
	SlotStateAvailable SlotState = "available"
	SlotStateOccupied  SlotState = "occupied"
)

// String returns the state label.
func (state SlotState) String() string {
	return string(state)
}

// Court is a bookable resource. Read-only to the booking engine.
type Court struct {
	ID         CourtID
	Name       string
	Image      string
	HourlyRate AmountCents
}

// Payment is the funding record written once per booking attempt.
type Payment struct {
	ID           PaymentID
	PayerID      PayerID
	Amount       AmountCents
	Method       PaymentMethod
	Proof        ProofReference
	Status       PaymentStatus
	ExchangeRate ExchangeRate
	Metadata     MetadataJSON
	CreatedAt    time.Time
}

// Slot is a materialized interval on a court and date.
type Slot struct {
	ID        SlotID
	CourtID   CourtID
	Date      Date
	Interval  Interval
	State     SlotState
	CreatedAt time.Time
}

// Reservation links a payer to one slot and the payment funding it.
type Reservation struct {
	ID        ReservationID
	PayerID   PayerID
	SlotID    SlotID
	PaymentID PaymentID
	Status    ReservationStatus
	CreatedAt time.Time
}

// ReservationView is the joined read model returned to a payer.
type ReservationView struct {
	ReservationID ReservationID
	Status        ReservationStatus
	Date          Date
	Interval      Interval
	CourtName     string
	CourtImage    string
	PaymentStatus PaymentStatus
	Temporal      TemporalTag
}

// TemporalTag says whether a reservation's slot has already ended.
type TemporalTag string

const (
	TemporalPast   TemporalTag = "past"
	TemporalFuture TemporalTag = "future"
)

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	Ping(ctx context.Context) error
	GetCourt(ctx context.Context, courtID CourtID) (Court, error)
	// LockCourt reads the court and holds a write lock on it until the transaction ends.
	LockCourt(ctx context.Context, courtID CourtID) (Court, error)
	ListCourts(ctx context.Context) ([]Court, error)
	ListOccupied(ctx context.Context, courtID CourtID, date Date) ([]Interval, error)
	GetExchangeRate(ctx context.Context) (ExchangeRate, error)
	InsertPayment(ctx context.Context, payment Payment) error
	InsertSlot(ctx context.Context, slot Slot) error
	InsertReservation(ctx context.Context, reservation Reservation) error
	// ListPayerReservations returns the payer's reservations on or after fromDate.
	ListPayerReservations(ctx context.Context, payerID PayerID, fromDate Date) ([]ReservationView, error)
}
