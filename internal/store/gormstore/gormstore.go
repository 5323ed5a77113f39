package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	exchangeRateRowID          = 1
	defaultMetadataJSON        = "{}"
	pgUniqueViolationCode      = "23505"
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	sqliteConstraintCode       = 19
	errorOperationStore        = "store"
	errorSubjectCourt          = "court"
	errorSubjectExchangeRate   = "exchange_rate"
	errorSubjectPayment        = "payment"
	errorSubjectSlot           = "slot"
	errorSubjectReservation    = "reservation"
	errorSubjectTransaction    = "transaction"
	errorSubjectConnection     = "connection"
	errorCodeGet               = "get"
	errorCodeLock              = "lock"
	errorCodeList              = "list"
	errorCodeInsert            = "insert"
	errorCodeDuplicate         = "duplicate"
	errorCodeInvalid           = "invalid"
	errorCodeSave              = "save"
	errorCodeSerialization     = "serialization"
	errorCodePing              = "ping"
)

// Option customizes a Store.
type Option func(*Store)

// WithTxOptions sets the isolation used by WithTx. Postgres deployments pass
// sql.LevelSerializable; sqlite serializes writers on its own.
func WithTxOptions(options *sql.TxOptions) Option {
	return func(store *Store) {
		store.txOptions = options
	}
}

// Store implements booking.Store using GORM.
type Store struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db}
	for _, option := range options {
		option(store)
	}
	return store
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	var txOptions []*sql.TxOptions
	if store.txOptions != nil {
		txOptions = append(txOptions, store.txOptions)
	}
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, txOptions: store.txOptions})
	}, txOptions...)
	if isSerializationFailure(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeSerialization, booking.SlotConflictError{})
	}
	return err
}

func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	return nil
}

func (store *Store) GetCourt(ctx context.Context, courtID booking.CourtID) (booking.Court, error) {
	return store.findCourt(store.db.WithContext(ctx), courtID, errorCodeGet)
}

// LockCourt takes a row lock on the court so concurrent bookings for it serialize.
func (store *Store) LockCourt(ctx context.Context, courtID booking.CourtID) (booking.Court, error) {
	return store.findCourt(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), courtID, errorCodeLock)
}

func (store *Store) findCourt(query *gorm.DB, courtID booking.CourtID, code string) (booking.Court, error) {
	var model Court
	err := query.Where("id = ?", courtID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.Court{}, wrapStoreError(errorSubjectCourt, code, booking.ErrUnknownCourt)
		}
		return booking.Court{}, wrapStoreError(errorSubjectCourt, code, err)
	}
	court, err := mapCourt(model)
	if err != nil {
		return booking.Court{}, wrapStoreError(errorSubjectCourt, errorCodeInvalid, err)
	}
	return court, nil
}

func (store *Store) ListCourts(ctx context.Context) ([]booking.Court, error) {
	var rows []Court
	if err := store.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCourt, errorCodeList, err)
	}
	courts := make([]booking.Court, 0, len(rows))
	for _, row := range rows {
		court, err := mapCourt(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCourt, errorCodeInvalid, err)
		}
		courts = append(courts, court)
	}
	return courts, nil
}

func (store *Store) ListOccupied(ctx context.Context, courtID booking.CourtID, date booking.Date) ([]booking.Interval, error) {
	var rows []Slot
	err := store.db.WithContext(ctx).
		Where("court_id = ? AND slot_date = ? AND state = ?", courtID.String(), date.String(), booking.SlotStateOccupied.String()).
		Order("start_time").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	occupied := make([]booking.Interval, 0, len(rows))
	for _, row := range rows {
		interval, err := booking.ParseInterval(row.StartTime, row.EndTime)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		occupied = append(occupied, interval)
	}
	return occupied, nil
}

func (store *Store) GetExchangeRate(ctx context.Context) (booking.ExchangeRate, error) {
	var model ExchangeRate
	err := store.db.WithContext(ctx).Where("id = ?", exchangeRateRowID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeGet, booking.ErrExchangeRateUnavailable)
		}
		return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeGet, err)
	}
	rate, err := booking.NewExchangeRate(model.Rate)
	if err != nil {
		return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeInvalid, err)
	}
	return rate, nil
}

func (store *Store) InsertPayment(ctx context.Context, payment booking.Payment) error {
	var proofReference *string
	if !payment.Proof.IsZero() {
		value := payment.Proof.String()
		proofReference = &value
	}
	model := Payment{
		PaymentID:      payment.ID.String(),
		PayerID:        payment.PayerID.String(),
		AmountCents:    payment.Amount.Int64(),
		Method:         payment.Method.String(),
		ProofReference: proofReference,
		Status:         payment.Status.String(),
		ExchangeRate:   payment.ExchangeRate.Float64(),
		Metadata:       datatypesJSON(payment.Metadata.String()),
		CreatedAt:      utcOrNow(payment.CreatedAt),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertSlot(ctx context.Context, slot booking.Slot) error {
	model := Slot{
		SlotID:    slot.ID.String(),
		CourtID:   slot.CourtID.String(),
		SlotDate:  slot.Date.String(),
		StartTime: slot.Interval.Start.String(),
		EndTime:   slot.Interval.End.String(),
		State:     slot.State.String(),
		CreatedAt: utcOrNow(slot.CreatedAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSlot, errorCodeDuplicate, booking.SlotConflictError{Intervals: []booking.Interval{slot.Interval}})
	}
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertReservation(ctx context.Context, reservation booking.Reservation) error {
	createdAt := utcOrNow(reservation.CreatedAt)
	model := Reservation{
		ReservationID: reservation.ID.String(),
		PayerID:       reservation.PayerID.String(),
		SlotID:        reservation.SlotID.String(),
		PaymentID:     reservation.PaymentID.String(),
		Status:        reservation.Status.String(),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrSlotConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListPayerReservations(ctx context.Context, payerID booking.PayerID, fromDate booking.Date) ([]booking.ReservationView, error) {
	var rows []reservationViewRow
	err := store.db.WithContext(ctx).
		Table("reservations AS r").
		Select("r.id AS reservation_id, r.status AS status, s.slot_date AS slot_date, s.start_time AS start_time, s.end_time AS end_time, c.name AS court_name, c.image AS court_image, COALESCE(p.status, '') AS payment_status").
		Joins("JOIN slots s ON s.id = r.slot_id").
		Joins("JOIN courts c ON c.id = s.court_id").
		Joins("LEFT JOIN payments p ON p.id = r.payment_id").
		Where("r.payer_id = ? AND s.slot_date >= ?", payerID.String(), fromDate.String()).
		Order("s.slot_date, s.start_time").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	views := make([]booking.ReservationView, 0, len(rows))
	for _, row := range rows {
		view, err := mapReservationView(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		views = append(views, view)
	}
	return views, nil
}

// SaveCourt inserts or updates a court in the catalog.
func (store *Store) SaveCourt(ctx context.Context, court booking.Court) error {
	model := Court{
		CourtID:           court.ID.String(),
		Name:              court.Name,
		Image:             court.Image,
		PricePerHourCents: court.HourlyRate.Int64(),
		CreatedAt:         time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "image", "price_per_hour_cents"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectCourt, errorCodeSave, err)
	}
	return nil
}

// SaveExchangeRate replaces the configured exchange rate.
func (store *Store) SaveExchangeRate(ctx context.Context, rate booking.ExchangeRate) error {
	model := ExchangeRate{ID: exchangeRateRowID, Rate: rate.Float64(), UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectExchangeRate, errorCodeSave, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapCourt(model Court) (booking.Court, error) {
	courtID, err := booking.NewCourtID(model.CourtID)
	if err != nil {
		return booking.Court{}, err
	}
	hourlyRate, err := booking.NewAmountCents(model.PricePerHourCents)
	if err != nil {
		return booking.Court{}, errors.Join(booking.ErrInvalidCourtRecord, err)
	}
	return booking.Court{ID: courtID, Name: model.Name, Image: model.Image, HourlyRate: hourlyRate}, nil
}

func mapReservationView(row reservationViewRow) (booking.ReservationView, error) {
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.ReservationView{}, err
	}
	status, err := booking.ParseReservationStatus(row.Status)
	if err != nil {
		return booking.ReservationView{}, err
	}
	date, err := booking.ParseDate(row.SlotDate)
	if err != nil {
		return booking.ReservationView{}, err
	}
	interval, err := booking.ParseInterval(row.StartTime, row.EndTime)
	if err != nil {
		return booking.ReservationView{}, err
	}
	view := booking.ReservationView{
		ReservationID: reservationID,
		Status:        status,
		Date:          date,
		Interval:      interval,
		CourtName:     row.CourtName,
		CourtImage:    row.CourtImage,
	}
	if row.PaymentStatus != "" {
		paymentStatus, err := booking.ParsePaymentStatus(row.PaymentStatus)
		if err != nil {
			return booking.ReservationView{}, err
		}
		view.PaymentStatus = paymentStatus
	}
	return view, nil
}

func utcOrNow(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}
