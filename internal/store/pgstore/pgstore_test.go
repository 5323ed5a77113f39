package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/courtbook/internal/schema"
	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresURLEnv = "COURTBOOK_TEST_POSTGRES_URL"

var (
	_ booking.Store = (*Store)(nil)
	_ booking.Store = (*TxStore)(nil)
)

func TestUniqueViolationDetection(test *testing.T) {
	test.Parallel()
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolationCode})
	if !isUniqueViolation(unique) {
		test.Fatalf("expected unique violation to be detected")
	}
	if isUniqueViolation(errors.New("plain")) || isUniqueViolation(nil) {
		test.Fatalf("expected plain errors to be ignored")
	}
	for _, code := range []string{pgSerializationFailureCode, pgDeadlockDetectedCode} {
		if !isSerializationFailure(&pgconn.PgError{Code: code}) {
			test.Fatalf("expected %s to be a serialization failure", code)
		}
	}
	if isSerializationFailure(&pgconn.PgError{Code: pgUniqueViolationCode}) {
		test.Fatalf("expected unique violation not to be a serialization failure")
	}
}

func TestPostgresConcurrentBookingsYieldSingleWinner(test *testing.T) {
	store, pool := newPostgresStore(test)
	courtID := seedCourt(test, pool)
	service, err := booking.NewService(store, func() time.Time {
		return time.Date(2025, time.June, 10, 14, 5, 0, 0, time.UTC)
	})
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	date, err := booking.ParseDate("2025-06-11")
	if err != nil {
		test.Fatalf("date: %v", err)
	}
	interval, err := booking.ParseInterval("18:00", "19:00")
	if err != nil {
		test.Fatalf("interval: %v", err)
	}

	const attempts = 6
	requests := make([]booking.BookingRequest, 0, attempts)
	for attempt := 0; attempt < attempts; attempt++ {
		payerID, err := booking.NewPayerID(fmt.Sprintf("payer-%d", attempt))
		if err != nil {
			test.Fatalf("payer id: %v", err)
		}
		requests = append(requests, booking.BookingRequest{
			PayerID:       payerID,
			CourtID:       courtID,
			Date:          date,
			Intervals:     []booking.Interval{interval},
			PaymentMethod: "efectivo",
			DeclaredTotal: 1500,
		})
	}

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		successes int
		failures  []error
	)
	for _, request := range requests {
		waitGroup.Add(1)
		go func(request booking.BookingRequest) {
			defer waitGroup.Done()
			_, err := service.Book(context.Background(), request)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, booking.ErrSlotConflict):
			default:
				failures = append(failures, err)
			}
		}(request)
	}
	waitGroup.Wait()

	if len(failures) != 0 {
		test.Fatalf("unexpected failures: %v", failures)
	}
	if successes != 1 {
		test.Fatalf("expected exactly one booking, got %d", successes)
	}
	occupied, err := store.ListOccupied(context.Background(), courtID, date)
	if err != nil {
		test.Fatalf("list occupied: %v", err)
	}
	if len(occupied) != 1 {
		test.Fatalf("expected one occupied slot, got %v", occupied)
	}
}

func newPostgresStore(test *testing.T) (*Store, *pgxpool.Pool) {
	test.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		test.Skipf("%s not set", postgresURLEnv)
	}
	if err := schema.Apply(databaseURL, schema.DirectionUp); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		test.Fatalf("pool: %v", err)
	}
	test.Cleanup(pool.Close)
	if _, err := pool.Exec(context.Background(), `
		insert into exchange_rates(id, rate) values (1, 36.5)
		on conflict (id) do update set rate = excluded.rate
	`); err != nil {
		test.Fatalf("seed exchange rate: %v", err)
	}
	return New(pool), pool
}

func seedCourt(test *testing.T, pool *pgxpool.Pool) booking.CourtID {
	test.Helper()
	raw := "court-" + uuid.NewString()
	if _, err := pool.Exec(context.Background(), `
		insert into courts(id, name, image, price_per_hour_cents) values ($1, $2, '', 1500)
	`, raw, "Cancha "+raw); err != nil {
		test.Fatalf("seed court: %v", err)
	}
	courtID, err := booking.NewCourtID(raw)
	if err != nil {
		test.Fatalf("court id: %v", err)
	}
	return courtID
}
