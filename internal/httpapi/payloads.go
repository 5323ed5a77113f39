package httpapi

import (
	"fmt"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
)

type slotPayload struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type reservationRequest struct {
	ResourceID     string        `json:"resource_id"`
	Date           string        `json:"date"`
	Slots          []slotPayload `json:"slots"`
	Amount         *float64      `json:"amount"`
	PaymentMethod  string        `json:"payment_method"`
	ProofReference string        `json:"proof_reference"`
}

func (request reservationRequest) toBookingRequest(payerID booking.PayerID) (booking.BookingRequest, error) {
	courtID, err := booking.NewCourtID(request.ResourceID)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	date, err := booking.ParseDate(request.Date)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	if request.Amount == nil {
		return booking.BookingRequest{}, fmt.Errorf("%w: amount is required", booking.ErrInvalidAmountCents)
	}
	declared, err := booking.AmountCentsFromDecimal(*request.Amount)
	if err != nil {
		return booking.BookingRequest{}, err
	}
	intervals := make([]booking.Interval, 0, len(request.Slots))
	for _, slot := range request.Slots {
		interval, err := booking.ParseInterval(slot.StartTime, slot.EndTime)
		if err != nil {
			return booking.BookingRequest{}, err
		}
		intervals = append(intervals, interval)
	}
	return booking.BookingRequest{
		PayerID:       payerID,
		CourtID:       courtID,
		Date:          date,
		Intervals:     intervals,
		PaymentMethod: request.PaymentMethod,
		Proof:         booking.NewProofReference(request.ProofReference),
		DeclaredTotal: declared,
	}, nil
}

type receiptPayload struct {
	PaymentID  string `json:"payment_id"`
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	ProofURL   string `json:"proof_url,omitempty"`
}

func newReceiptPayload(receipt booking.Receipt) receiptPayload {
	return receiptPayload{
		PaymentID:  receipt.PaymentID.String(),
		ResourceID: receipt.CourtID.String(),
		Date:       receipt.Date.String(),
		ProofURL:   receipt.ProofURL,
	}
}

type courtPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Image        string  `json:"image"`
	PricePerHour float64 `json:"price_per_hour"`
}

func newCourtPayload(court booking.Court) courtPayload {
	return courtPayload{
		ID:           court.ID.String(),
		Name:         court.Name,
		Image:        court.Image,
		PricePerHour: court.HourlyRate.Decimal(),
	}
}

func newSlotPayloads(intervals []booking.Interval) []slotPayload {
	payload := make([]slotPayload, 0, len(intervals))
	for _, interval := range intervals {
		payload = append(payload, slotPayload{StartTime: interval.Start.String(), EndTime: interval.End.String()})
	}
	return payload
}

type reservationViewPayload struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Date          string `json:"date"`
	DateFormatted string `json:"date_formatted"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	CourtName     string `json:"court_name"`
	CourtImage    string `json:"court_image"`
	PaymentStatus string `json:"payment_status"`
	Temporal      string `json:"temporal"`
}

func newReservationViewPayload(view booking.ReservationView) reservationViewPayload {
	return reservationViewPayload{
		ID:            view.ReservationID.String(),
		Status:        view.Status.String(),
		Date:          view.Date.String(),
		DateFormatted: view.Date.Display(),
		StartTime:     view.Interval.Start.String(),
		EndTime:       view.Interval.End.String(),
		CourtName:     view.CourtName,
		CourtImage:    view.CourtImage,
		PaymentStatus: view.PaymentStatus.String(),
		Temporal:      string(view.Temporal),
	}
}
