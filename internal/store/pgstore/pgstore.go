package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	exchangeRateRowID          = 1
	pgUniqueViolationCode      = "23505"
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	errorOperationStore        = "store"
	errorSubjectCourt          = "court"
	errorSubjectExchangeRate   = "exchange_rate"
	errorSubjectPayment        = "payment"
	errorSubjectSlot           = "slot"
	errorSubjectReservation    = "reservation"
	errorSubjectTransaction    = "transaction"
	errorSubjectConnection     = "connection"
	errorCodeBegin             = "begin"
	errorCodeCommit            = "commit"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeLock              = "lock"
	errorCodePing              = "ping"
	errorCodeSerialization     = "serialization"

	sqlSelectCourt = `
		select id, name, image, price_per_hour_cents
		from courts
		where id = $1
	`

	sqlLockCourt = sqlSelectCourt + `for update`

	sqlListCourts = `
		select id, name, image, price_per_hour_cents
		from courts
		order by name, id
	`

	sqlListOccupied = `
		select start_time, end_time
		from slots
		where court_id = $1 and slot_date = $2 and state = 'occupied'
		order by start_time
	`

	sqlSelectExchangeRate = `
		select rate::float8 from exchange_rates where id = $1
	`

	sqlInsertPayment = `
		insert into payments(
			id, payer_id, amount_cents, method, proof_reference, status, exchange_rate, metadata, created_at
		)
		values(
			$1::uuid, $2, $3, $4,
			nullif($5,''), $6, $7,
			coalesce(nullif($8,''),'{}')::jsonb,
			$9
		)
	`

	sqlInsertSlot = `
		insert into slots(id, court_id, slot_date, start_time, end_time, state, created_at)
		values ($1::uuid, $2, $3, $4, $5, $6, $7)
	`

	sqlInsertReservation = `
		insert into reservations(id, payer_id, slot_id, payment_id, status, created_at, updated_at)
		values ($1::uuid, $2, $3::uuid, $4::uuid, $5, $6, $6)
	`

	sqlListPayerReservations = `
		select
			r.id::text,
			r.status,
			s.slot_date,
			s.start_time,
			s.end_time,
			c.name,
			c.image,
			coalesce(p.status, '')
		from reservations r
		join slots s on s.id = r.slot_id
		join courts c on c.id = s.court_id
		left join payments p on p.id = r.payment_id
		where r.payer_id = $1 and s.slot_date >= $2
		order by s.slot_date, s.start_time
	`
)

// queryer is the subset shared by *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements booking.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements booking.Store for an active serializable transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

type queries struct {
	db queryer
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		if isSerializationFailure(err) {
			return wrapStoreError(errorSubjectTransaction, errorCodeSerialization, booking.SlotConflictError{})
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return wrapStoreError(errorSubjectTransaction, errorCodeSerialization, booking.SlotConflictError{})
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) Ping(ctx context.Context) error {
	if err := store.pool.Ping(ctx); err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) Ping(ctx context.Context) error {
	if err := store.tx.Conn().Ping(ctx); err != nil {
		return wrapStoreError(errorSubjectConnection, errorCodePing, err)
	}
	return nil
}

func (store queries) GetCourt(ctx context.Context, courtID booking.CourtID) (booking.Court, error) {
	return store.selectCourt(ctx, sqlSelectCourt, courtID, errorCodeGet)
}

func (store queries) LockCourt(ctx context.Context, courtID booking.CourtID) (booking.Court, error) {
	return store.selectCourt(ctx, sqlLockCourt, courtID, errorCodeLock)
}

func (store queries) selectCourt(ctx context.Context, query string, courtID booking.CourtID, code string) (booking.Court, error) {
	court, err := scanCourt(store.db.QueryRow(ctx, query, courtID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Court{}, wrapStoreError(errorSubjectCourt, code, booking.ErrUnknownCourt)
		}
		return booking.Court{}, wrapStoreError(errorSubjectCourt, code, err)
	}
	return court, nil
}

func (store queries) ListCourts(ctx context.Context) ([]booking.Court, error) {
	rows, err := store.db.Query(ctx, sqlListCourts)
	if err != nil {
		return nil, wrapStoreError(errorSubjectCourt, errorCodeList, err)
	}
	defer rows.Close()
	var courts []booking.Court
	for rows.Next() {
		court, err := scanCourt(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCourt, errorCodeInvalid, err)
		}
		courts = append(courts, court)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCourt, errorCodeList, err)
	}
	return courts, nil
}

func (store queries) ListOccupied(ctx context.Context, courtID booking.CourtID, date booking.Date) ([]booking.Interval, error) {
	rows, err := store.db.Query(ctx, sqlListOccupied, courtID.String(), date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	defer rows.Close()
	var occupied []booking.Interval
	for rows.Next() {
		var startValue, endValue string
		if err := rows.Scan(&startValue, &endValue); err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
		}
		interval, err := booking.ParseInterval(startValue, endValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSlot, errorCodeInvalid, err)
		}
		occupied = append(occupied, interval)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectSlot, errorCodeList, err)
	}
	return occupied, nil
}

func (store queries) GetExchangeRate(ctx context.Context) (booking.ExchangeRate, error) {
	var rateValue float64
	err := store.db.QueryRow(ctx, sqlSelectExchangeRate, exchangeRateRowID).Scan(&rateValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeGet, booking.ErrExchangeRateUnavailable)
		}
		return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeGet, err)
	}
	rate, err := booking.NewExchangeRate(rateValue)
	if err != nil {
		return booking.ExchangeRate{}, wrapStoreError(errorSubjectExchangeRate, errorCodeInvalid, err)
	}
	return rate, nil
}

func (store queries) InsertPayment(ctx context.Context, payment booking.Payment) error {
	_, err := store.db.Exec(ctx, sqlInsertPayment,
		payment.ID.String(),
		payment.PayerID.String(),
		payment.Amount.Int64(),
		payment.Method.String(),
		payment.Proof.String(),
		payment.Status.String(),
		payment.ExchangeRate.Float64(),
		payment.Metadata.String(),
		payment.CreatedAt.UTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return nil
}

func (store queries) InsertSlot(ctx context.Context, slot booking.Slot) error {
	_, err := store.db.Exec(ctx, sqlInsertSlot,
		slot.ID.String(),
		slot.CourtID.String(),
		slot.Date.String(),
		slot.Interval.Start.String(),
		slot.Interval.End.String(),
		slot.State.String(),
		slot.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSlot, errorCodeDuplicate, booking.SlotConflictError{Intervals: []booking.Interval{slot.Interval}})
	}
	if err != nil {
		return wrapStoreError(errorSubjectSlot, errorCodeInsert, err)
	}
	return nil
}

func (store queries) InsertReservation(ctx context.Context, reservation booking.Reservation) error {
	_, err := store.db.Exec(ctx, sqlInsertReservation,
		reservation.ID.String(),
		reservation.PayerID.String(),
		reservation.SlotID.String(),
		reservation.PaymentID.String(),
		reservation.Status.String(),
		reservation.CreatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrSlotConflict)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeInsert, err)
	}
	return nil
}

func (store queries) ListPayerReservations(ctx context.Context, payerID booking.PayerID, fromDate booking.Date) ([]booking.ReservationView, error) {
	rows, err := store.db.Query(ctx, sqlListPayerReservations, payerID.String(), fromDate.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	var views []booking.ReservationView
	for rows.Next() {
		view, err := scanReservationView(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return views, nil
}

func scanCourt(row pgx.Row) (booking.Court, error) {
	var (
		idValue    string
		name       string
		image      string
		priceValue int64
	)
	if err := row.Scan(&idValue, &name, &image, &priceValue); err != nil {
		return booking.Court{}, err
	}
	courtID, err := booking.NewCourtID(idValue)
	if err != nil {
		return booking.Court{}, err
	}
	hourlyRate, err := booking.NewAmountCents(priceValue)
	if err != nil {
		return booking.Court{}, errors.Join(booking.ErrInvalidCourtRecord, err)
	}
	return booking.Court{ID: courtID, Name: name, Image: image, HourlyRate: hourlyRate}, nil
}

func scanReservationView(row pgx.Row) (booking.ReservationView, error) {
	var (
		idValue            string
		statusValue        string
		dateValue          string
		startValue         string
		endValue           string
		courtName          string
		courtImage         string
		paymentStatusValue string
	)
	if err := row.Scan(&idValue, &statusValue, &dateValue, &startValue, &endValue, &courtName, &courtImage, &paymentStatusValue); err != nil {
		return booking.ReservationView{}, err
	}
	reservationID, err := booking.NewReservationID(idValue)
	if err != nil {
		return booking.ReservationView{}, err
	}
	status, err := booking.ParseReservationStatus(statusValue)
	if err != nil {
		return booking.ReservationView{}, err
	}
	date, err := booking.ParseDate(dateValue)
	if err != nil {
		return booking.ReservationView{}, err
	}
	interval, err := booking.ParseInterval(startValue, endValue)
	if err != nil {
		return booking.ReservationView{}, err
	}
	view := booking.ReservationView{
		ReservationID: reservationID,
		Status:        status,
		Date:          date,
		Interval:      interval,
		CourtName:     courtName,
		CourtImage:    courtImage,
	}
	if paymentStatusValue != "" {
		paymentStatus, err := booking.ParsePaymentStatus(paymentStatusValue)
		if err != nil {
			return booking.ReservationView{}, err
		}
		view.PaymentStatus = paymentStatus
	}
	return view, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
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
