package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Service contains the slot-booking logic over a Store.
type Service struct {
	store         Store
	nowFn         func() time.Time
	location      *time.Location
	template      SlotTemplate
	paymentPolicy PaymentMethodPolicy
	proofBaseURL  string
	newID         func() string
	logger        OperationLogger
	publisher     EventPublisher
}

// BookingRequest is a validated-shape request to book slots on one court and date.
type BookingRequest struct {
	PayerID       PayerID
	CourtID       CourtID
	Date          Date
	Intervals     []Interval
	PaymentMethod string
	Proof         ProofReference
	DeclaredTotal AmountCents
}

// Receipt describes a committed booking.
type Receipt struct {
	PaymentID      PaymentID
	PayerID        PayerID
	CourtID        CourtID
	Date           Date
	Intervals      []Interval
	ReservationIDs []ReservationID
	Amount         AmountCents
	Method         PaymentMethod
	ExchangeRate   ExchangeRate
	Proof          ProofReference
	ProofURL       string
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:         store,
		nowFn:         now,
		location:      time.UTC,
		template:      DefaultSlotTemplate(),
		paymentPolicy: DefaultPaymentMethodPolicy(),
		newID:         uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Template returns the operating-hours template in effect.
func (service *Service) Template() SlotTemplate {
	return service.template
}

// Courts lists the bookable courts.
func (service *Service) Courts(ctx context.Context) ([]Court, error) {
	return service.store.ListCourts(ctx)
}

// Court returns one court by id.
func (service *Service) Court(ctx context.Context, courtID CourtID) (Court, error) {
	return service.store.GetCourt(ctx, courtID)
}

// OccupiedIntervals returns the occupied intervals for a court and date.
func (service *Service) OccupiedIntervals(ctx context.Context, courtID CourtID, date Date) ([]Interval, error) {
	return service.store.ListOccupied(ctx, courtID, date)
}

// HasConflict reports whether requested overlaps an occupied interval.
func (service *Service) HasConflict(ctx context.Context, courtID CourtID, date Date, requested Interval) (bool, error) {
	occupied, err := service.OccupiedIntervals(ctx, courtID, date)
	if err != nil {
		return false, err
	}
	_, conflict := FindConflict(occupied, requested)
	return conflict, nil
}

// AvailableSlots lists bookable slots for a court and date, earliest first.
// The result is advisory; Book re-checks under a transaction.
func (service *Service) AvailableSlots(ctx context.Context, courtID CourtID, date Date) ([]Interval, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if _, err := service.store.GetCourt(ctx, courtID); err != nil {
		return nil, err
	}
	occupied, err := service.OccupiedIntervals(ctx, courtID, date)
	if err != nil {
		return nil, err
	}
	return ResolveAvailable(service.template.Candidates(), occupied, date, service.now()), nil
}

// Book atomically re-checks conflicts, records the payment and materializes
// every requested slot with its reservation. Nothing is written on failure.
func (service *Service) Book(ctx context.Context, request BookingRequest) (Receipt, error) {
	receipt, operationError := service.book(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation: operationBook,
		PayerID:   request.PayerID,
		CourtID:   request.CourtID,
		Date:      request.Date,
		PaymentID: receipt.PaymentID,
		Intervals: request.Intervals,
		Amount:    receipt.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Receipt{}, operationError
	}
	if service.publisher != nil {
		publishError := service.publisher.PublishReservationCreated(ctx, receipt)
		if publishError != nil {
			service.logOperation(ctx, OperationLog{
				Operation: operationPublish,
				PayerID:   receipt.PayerID,
				CourtID:   receipt.CourtID,
				Date:      receipt.Date,
				PaymentID: receipt.PaymentID,
				Intervals: receipt.Intervals,
				Amount:    receipt.Amount,
				Error:     publishError,
			})
		}
	}
	return receipt, nil
}

func (service *Service) book(ctx context.Context, request BookingRequest) (Receipt, error) {
	now := service.now()
	method, err := service.validateRequest(request, now)
	if err != nil {
		return Receipt{}, err
	}
	court, err := service.store.GetCourt(ctx, request.CourtID)
	if err != nil {
		return Receipt{}, err
	}
	total, err := QuoteTotal(court.HourlyRate, len(request.Intervals))
	if err != nil {
		return Receipt{}, err
	}
	if err := ensureDeclaredTotal(request.DeclaredTotal, total); err != nil {
		return Receipt{}, err
	}
	metadata, err := bookingMetadata(request)
	if err != nil {
		return Receipt{}, err
	}
	proofURL, err := service.proofURL(request.Proof)
	if err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{
		PayerID:   request.PayerID,
		CourtID:   request.CourtID,
		Date:      request.Date,
		Intervals: append([]Interval(nil), request.Intervals...),
		Amount:    total,
		Method:    method,
		Proof:     request.Proof,
		ProofURL:  proofURL,
	}
	transactionError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.LockCourt(ctx, request.CourtID); err != nil {
			return err
		}
		occupied, err := transactionStore.ListOccupied(ctx, request.CourtID, request.Date)
		if err != nil {
			return err
		}
		var conflicting []Interval
		for _, interval := range request.Intervals {
			if _, conflict := FindConflict(occupied, interval); conflict {
				conflicting = append(conflicting, interval)
			}
		}
		if len(conflicting) > 0 {
			return SlotConflictError{Intervals: conflicting}
		}
		exchangeRate, err := transactionStore.GetExchangeRate(ctx)
		if err != nil {
			return err
		}
		paymentID, err := NewPaymentID(service.newID())
		if err != nil {
			return err
		}
		payment := Payment{
			ID:           paymentID,
			PayerID:      request.PayerID,
			Amount:       total,
			Method:       method,
			Proof:        request.Proof,
			Status:       PaymentStatusPending,
			ExchangeRate: exchangeRate,
			Metadata:     metadata,
			CreatedAt:    now,
		}
		if err := transactionStore.InsertPayment(ctx, payment); err != nil {
			return err
		}
		reservationIDs := make([]ReservationID, 0, len(request.Intervals))
		for _, interval := range request.Intervals {
			slotID, err := NewSlotID(service.newID())
			if err != nil {
				return err
			}
			slot := Slot{
				ID:        slotID,
				CourtID:   request.CourtID,
				Date:      request.Date,
				Interval:  interval,
				State:     SlotStateOccupied,
				CreatedAt: now,
			}
			if err := transactionStore.InsertSlot(ctx, slot); err != nil {
				return err
			}
			reservationID, err := NewReservationID(service.newID())
			if err != nil {
				return err
			}
			reservation := Reservation{
				ID:        reservationID,
				PayerID:   request.PayerID,
				SlotID:    slotID,
				PaymentID: paymentID,
				Status:    ReservationStatusPending,
				CreatedAt: now,
			}
			if err := transactionStore.InsertReservation(ctx, reservation); err != nil {
				return err
			}
			reservationIDs = append(reservationIDs, reservationID)
		}
		receipt.PaymentID = paymentID
		receipt.ExchangeRate = exchangeRate
		receipt.ReservationIDs = reservationIDs
		return nil
	})
	if transactionError != nil {
		return Receipt{}, nameConflictingIntervals(transactionError, request.Intervals)
	}
	return receipt, nil
}

// nameConflictingIntervals attributes an anonymous store conflict, such as a
// serialization failure or a unique-key race, to the requested intervals.
func nameConflictingIntervals(err error, requested []Interval) error {
	if !errors.Is(err, ErrSlotConflict) {
		return err
	}
	var conflictError SlotConflictError
	if errors.As(err, &conflictError) && len(conflictError.Intervals) > 0 {
		return err
	}
	return SlotConflictError{Intervals: append([]Interval(nil), requested...)}
}

// PayerReservations returns the payer's upcoming reservations ordered by date and start.
// Reservations whose slot has ended are retired from the view.
func (service *Service) PayerReservations(ctx context.Context, payerID PayerID) ([]ReservationView, error) {
	if payerID.String() == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidPayerID)
	}
	now := service.now()
	today := DateOf(now)
	current := TimeOfDayOf(now)
	rows, err := service.store.ListPayerReservations(ctx, payerID, today)
	if err != nil {
		return nil, err
	}
	visible := make([]ReservationView, 0, len(rows))
	for _, row := range rows {
		if slotEnded(row.Date, row.Interval, today, current) {
			continue
		}
		if row.Status == ReservationStatusCancelled && row.Date.Before(today) {
			continue
		}
		row.Temporal = TemporalTagFor(row.Date, row.Interval, now)
		visible = append(visible, row)
	}
	sort.SliceStable(visible, func(left, right int) bool {
		if !visible[left].Date.Equal(visible[right].Date) {
			return visible[left].Date.Before(visible[right].Date)
		}
		return visible[left].Interval.Start < visible[right].Interval.Start
	})
	return visible, nil
}

// TemporalTagFor classifies a slot relative to the given moment.
func TemporalTagFor(date Date, interval Interval, now time.Time) TemporalTag {
	if slotEnded(date, interval, DateOf(now), TimeOfDayOf(now)) {
		return TemporalPast
	}
	return TemporalFuture
}

func slotEnded(date Date, interval Interval, today Date, current TimeOfDay) bool {
	if date.Before(today) {
		return true
	}
	return date.Equal(today) && interval.End <= current
}

func (service *Service) validateRequest(request BookingRequest, now time.Time) (PaymentMethod, error) {
	if request.PayerID.String() == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidPayerID)
	}
	if request.CourtID.String() == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidCourtID)
	}
	if request.Date.IsZero() {
		return "", fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if len(request.Intervals) == 0 {
		return "", ErrEmptySlots
	}
	today := DateOf(now)
	current := TimeOfDayOf(now)
	for index, interval := range request.Intervals {
		if interval.Start >= interval.End {
			return "", fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
		}
		if !service.template.Contains(interval) {
			return "", fmt.Errorf("%w: %s not within %s-%s", ErrOutsideOperatingHours, interval, service.template.Opening(), service.template.Closing())
		}
		if request.Date.Before(today) || (request.Date.Equal(today) && interval.Start <= current) {
			return "", fmt.Errorf("%w: %s %s", ErrSlotInPast, request.Date, interval)
		}
		for _, earlier := range request.Intervals[:index] {
			if earlier == interval {
				return "", fmt.Errorf("%w: %s", ErrDuplicateSlot, interval)
			}
			if earlier.Overlaps(interval) {
				return "", fmt.Errorf("%w: %s and %s", ErrOverlappingRequest, earlier, interval)
			}
		}
	}
	return service.paymentPolicy.Resolve(request.PaymentMethod, request.Proof)
}

func (service *Service) proofURL(proof ProofReference) (string, error) {
	if proof.IsZero() || service.proofBaseURL == "" {
		return "", nil
	}
	proofURL, err := url.JoinPath(service.proofBaseURL, proof.String())
	if err != nil {
		return "", fmt.Errorf("%w: proof base url: %v", ErrInvalidServiceConfig, err)
	}
	return proofURL, nil
}

func (service *Service) now() time.Time {
	return service.nowFn().In(service.location)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func bookingMetadata(request BookingRequest) (MetadataJSON, error) {
	labels := make([]string, 0, len(request.Intervals))
	for _, interval := range request.Intervals {
		labels = append(labels, interval.String())
	}
	raw, err := json.Marshal(map[string]any{
		metadataKeyCourtID: request.CourtID.String(),
		metadataKeyDate:    request.Date.String(),
		metadataKeySlots:   labels,
	})
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	return NewMetadataJSON(string(raw))
}
