package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Court mirrors the courts table. The booking engine only reads it.
type Court struct {
	CourtID           string    `gorm:"column:id;type:varchar(64);primaryKey"`
	Name              string    `gorm:"not null"`
	Image             string    `gorm:"not null;default:''"`
	PricePerHourCents int64     `gorm:"not null"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (Court) TableName() string { return "courts" }

// ExchangeRate mirrors the single-row exchange_rates table.
type ExchangeRate struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Rate      float64   `gorm:"type:numeric(14,4);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ExchangeRate) TableName() string { return "exchange_rates" }

// Payment mirrors the payments table.
type Payment struct {
	PaymentID      string         `gorm:"column:id;type:uuid;primaryKey"`
	PayerID        string         `gorm:"not null;index:idx_payments_payer"`
	AmountCents    int64          `gorm:"not null"`
	Method         string         `gorm:"type:varchar(32);not null"`
	ProofReference *string        `gorm:""`
	Status         string         `gorm:"type:varchar(16);not null"`
	ExchangeRate   float64        `gorm:"type:numeric(14,4);not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// Slot mirrors the slots table. At most one occupied row exists per court, date and start.
type Slot struct {
	SlotID    string    `gorm:"column:id;type:uuid;primaryKey"`
	CourtID   string    `gorm:"type:varchar(64);not null;index:idx_slots_court_date,priority:1;uniqueIndex:uniq_slots_occupied,priority:1,where:state = 'occupied'"`
	SlotDate  string    `gorm:"type:varchar(10);not null;index:idx_slots_court_date,priority:2;uniqueIndex:uniq_slots_occupied,priority:2"`
	StartTime string    `gorm:"type:varchar(8);not null;uniqueIndex:uniq_slots_occupied,priority:3"`
	EndTime   string    `gorm:"type:varchar(8);not null"`
	State     string    `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Slot) TableName() string { return "slots" }

func (slot *Slot) BeforeCreate(tx *gorm.DB) error {
	if slot.SlotID == "" {
		slot.SlotID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table.
type Reservation struct {
	ReservationID string    `gorm:"column:id;type:uuid;primaryKey"`
	PayerID       string    `gorm:"not null;index:idx_reservations_payer"`
	SlotID        string    `gorm:"type:uuid;not null;uniqueIndex:uniq_reservations_slot"`
	PaymentID     string    `gorm:"type:uuid;not null;index:idx_reservations_payment"`
	Status        string    `gorm:"type:varchar(16);not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

func (reservation *Reservation) BeforeCreate(tx *gorm.DB) error {
	if reservation.ReservationID == "" {
		reservation.ReservationID = uuid.NewString()
	}
	return nil
}

// Models lists every table managed by this store, in dependency order.
func Models() []any {
	return []any{&Court{}, &ExchangeRate{}, &Payment{}, &Slot{}, &Reservation{}}
}

type reservationViewRow struct {
	ReservationID string
	Status        string
	SlotDate      string
	StartTime     string
	EndTime       string
	CourtName     string
	CourtImage    string
	PaymentStatus string
}
