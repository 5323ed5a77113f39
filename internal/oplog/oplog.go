package oplog

import (
	"context"
	"strings"

	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logMessage = "booking operation"

// Logger writes booking operation entries as structured zap records.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger. A nil zap logger yields a no-op Logger.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation implements booking.OperationLogger.
func (operationLogger *Logger) LogOperation(ctx context.Context, entry booking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("payer_id", entry.PayerID.String()),
		zap.String("court_id", entry.CourtID.String()),
	}
	if !entry.Date.IsZero() {
		fields = append(fields, zap.String("date", entry.Date.String()))
	}
	if paymentID := entry.PaymentID.String(); paymentID != "" {
		fields = append(fields, zap.String("payment_id", paymentID))
	}
	if len(entry.Intervals) > 0 {
		fields = append(fields, zap.String("slots", intervalLabels(entry.Intervals)))
	}
	if entry.Amount > 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	level := zapcore.InfoLevel
	if entry.Error != nil {
		fields = append(fields,
			zap.Error(entry.Error),
			zap.String("error_kind", string(booking.Classify(entry.Error))),
		)
		level = levelFor(entry.Error)
	}
	operationLogger.logger.Log(level, logMessage, fields...)
}

// Client-caused failures are warnings; everything else is an error.
func levelFor(err error) zapcore.Level {
	switch booking.Classify(err) {
	case booking.ErrorKindValidation, booking.ErrorKindConflict, booking.ErrorKindNotFound:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func intervalLabels(intervals []booking.Interval) string {
	labels := make([]string, 0, len(intervals))
	for _, interval := range intervals {
		labels = append(labels, interval.String())
	}
	return strings.Join(labels, ",")
}
