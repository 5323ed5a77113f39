package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// RoutingKeyReservationCreated is the topic used for committed bookings.
	RoutingKeyReservationCreated = "reservation.created"

	exchangeKindTopic   = "topic"
	contentTypeJSON     = "application/json"
	defaultExchangeName = "courtbook.events"
)

var ErrInvalidPublisherConfig = errors.New("events: invalid publisher config")

// Channel is the subset of *amqp.Channel used by Publisher.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits booking events on a topic exchange.
type Publisher struct {
	channel    Channel
	connection *amqp.Connection
	exchange   string
	nowFn      func() time.Time
}

// ReservationCreated is the JSON body of a reservation.created message.
type ReservationCreated struct {
	PaymentID      string         `json:"payment_id"`
	PayerID        string         `json:"payer_id"`
	CourtID        string         `json:"court_id"`
	Date           string         `json:"date"`
	Slots          []SlotInterval `json:"slots"`
	ReservationIDs []string       `json:"reservation_ids"`
	AmountCents    int64          `json:"amount_cents"`
	Method         string         `json:"method"`
	ExchangeRate   float64        `json:"exchange_rate"`
	ProofURL       string         `json:"proof_url,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// SlotInterval is one booked interval in an event payload.
type SlotInterval struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url string, exchange string) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: broker url is required", ErrInvalidPublisherConfig)
	}
	exchange = exchangeOrDefault(exchange)
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	publisher, err := NewPublisher(channel, exchange, time.Now)
	if err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, err
	}
	publisher.connection = connection
	return publisher, nil
}

// NewPublisher wraps an already declared channel.
func NewPublisher(channel Channel, exchange string, now func() time.Time) (*Publisher, error) {
	if channel == nil {
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidPublisherConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock is required", ErrInvalidPublisherConfig)
	}
	return &Publisher{channel: channel, exchange: exchangeOrDefault(exchange), nowFn: now}, nil
}

// PublishReservationCreated implements booking.EventPublisher.
func (publisher *Publisher) PublishReservationCreated(ctx context.Context, receipt booking.Receipt) error {
	occurredAt := publisher.nowFn().UTC()
	body, err := json.Marshal(NewReservationCreated(receipt, occurredAt))
	if err != nil {
		return fmt.Errorf("encode reservation created: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    receipt.PaymentID.String(),
		Timestamp:    occurredAt,
		Type:         RoutingKeyReservationCreated,
		Body:         body,
	}
	if err := publisher.channel.PublishWithContext(ctx, publisher.exchange, RoutingKeyReservationCreated, false, false, message); err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeyReservationCreated, err)
	}
	return nil
}

// Close releases the channel and, when owned, the connection.
func (publisher *Publisher) Close() error {
	var closeErr error
	if publisher.channel != nil {
		closeErr = publisher.channel.Close()
	}
	if publisher.connection != nil {
		if err := publisher.connection.Close(); err != nil {
			return err
		}
	}
	return closeErr
}

// NewReservationCreated converts a receipt into its wire payload.
func NewReservationCreated(receipt booking.Receipt, occurredAt time.Time) ReservationCreated {
	slots := make([]SlotInterval, 0, len(receipt.Intervals))
	for _, interval := range receipt.Intervals {
		slots = append(slots, SlotInterval{StartTime: interval.Start.String(), EndTime: interval.End.String()})
	}
	reservationIDs := make([]string, 0, len(receipt.ReservationIDs))
	for _, reservationID := range receipt.ReservationIDs {
		reservationIDs = append(reservationIDs, reservationID.String())
	}
	return ReservationCreated{
		PaymentID:      receipt.PaymentID.String(),
		PayerID:        receipt.PayerID.String(),
		CourtID:        receipt.CourtID.String(),
		Date:           receipt.Date.String(),
		Slots:          slots,
		ReservationIDs: reservationIDs,
		AmountCents:    receipt.Amount.Int64(),
		Method:         receipt.Method.String(),
		ExchangeRate:   receipt.ExchangeRate.Float64(),
		ProofURL:       receipt.ProofURL,
		OccurredAt:     occurredAt,
	}
}

func exchangeOrDefault(exchange string) string {
	if trimmed := strings.TrimSpace(exchange); trimmed != "" {
		return trimmed
	}
	return defaultExchangeName
}
