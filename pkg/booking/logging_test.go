package booking

import (
	"context"
	"errors"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

type recorderPublisher struct {
	receipts []Receipt
	err      error
}

func (publisher *recorderPublisher) PublishReservationCreated(_ context.Context, receipt Receipt) error {
	publisher.receipts = append(publisher.receipts, receipt)
	return publisher.err
}

func TestServiceLogsBookOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	request := bookingRequest(test, tomorrowValue, "efectivo", "", 1500, "09:00", "10:00")

	receipt, err := service.Book(context.Background(), request)
	if err != nil {
		test.Fatalf("book: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationBook || entry.PayerID != request.PayerID || entry.CourtID != request.CourtID || entry.PaymentID != receipt.PaymentID {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Amount != 1500 || len(entry.Intervals) != 1 {
		test.Fatalf("unexpected log payload: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.occupy(test, tomorrowValue, "09:00", "10:00")
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	request := bookingRequest(test, tomorrowValue, "efectivo", "", 1500, "09:00", "10:00")

	if _, err := service.Book(context.Background(), request); err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || !errors.Is(logger.entries[0].Error, ErrSlotConflict) {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
}

func TestServicePublishesCommittedBooking(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	publisher := &recorderPublisher{}
	service := mustNewService(test, store, WithEventPublisher(publisher))
	request := bookingRequest(test, tomorrowValue, "efectivo", "", 1500, "09:00", "10:00")

	receipt, err := service.Book(context.Background(), request)
	if err != nil {
		test.Fatalf("book: %v", err)
	}
	if len(publisher.receipts) != 1 || publisher.receipts[0].PaymentID != receipt.PaymentID {
		test.Fatalf("expected published receipt, got %+v", publisher.receipts)
	}
}

func TestServiceSkipsPublishOnFailure(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	publisher := &recorderPublisher{}
	service := mustNewService(test, store, WithEventPublisher(publisher))
	request := bookingRequest(test, tomorrowValue, "efectivo", "", 999, "09:00", "10:00")

	if _, err := service.Book(context.Background(), request); !errors.Is(err, ErrAmountMismatch) {
		test.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
	if len(publisher.receipts) != 0 {
		test.Fatalf("expected no published receipts, got %d", len(publisher.receipts))
	}
}

func TestServiceLogsPublishFailureWithoutFailingBooking(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	publisher := &recorderPublisher{err: errors.New("broker down")}
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithEventPublisher(publisher), WithOperationLogger(logger))
	request := bookingRequest(test, tomorrowValue, "efectivo", "", 1500, "09:00", "10:00")

	if _, err := service.Book(context.Background(), request); err != nil {
		test.Fatalf("book: %v", err)
	}
	if len(store.reservations) != 1 {
		test.Fatalf("expected committed reservation, got %d", len(store.reservations))
	}
	if len(logger.entries) != 2 {
		test.Fatalf("expected book and publish log entries, got %d", len(logger.entries))
	}
	publishEntry := logger.entries[1]
	if publishEntry.Operation != operationPublish || publishEntry.Status != operationStatusError {
		test.Fatalf("unexpected publish log entry: %+v", publishEntry)
	}
}
