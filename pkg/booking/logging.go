package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation string
	PayerID   PayerID
	CourtID   CourtID
	Date      Date
	PaymentID PaymentID
	Intervals []Interval
	Amount    AmountCents
	Status    string
	Error     error
}

// EventPublisher receives committed bookings for downstream consumers.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, receipt Receipt) error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventPublisher wires a publisher invoked after each committed booking.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		service.publisher = publisher
	}
}

// WithLocation sets the zone used to derive "today" and "now".
func WithLocation(location *time.Location) ServiceOption {
	return func(service *Service) {
		if location != nil {
			service.location = location
		}
	}
}

// WithSlotTemplate overrides the operating-hours template.
func WithSlotTemplate(template SlotTemplate) ServiceOption {
	return func(service *Service) {
		service.template = template
	}
}

// WithPaymentMethodPolicy overrides the accepted payment methods.
func WithPaymentMethodPolicy(policy PaymentMethodPolicy) ServiceOption {
	return func(service *Service) {
		service.paymentPolicy = policy
	}
}

// WithProofBaseURL sets the public prefix used to derive proof URLs.
func WithProofBaseURL(baseURL string) ServiceOption {
	return func(service *Service) {
		service.proofBaseURL = baseURL
	}
}

// WithIDGenerator replaces the uuid generator for new rows.
func WithIDGenerator(generator func() string) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.newID = generator
		}
	}
}
