package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/courtbook/internal/session"
	"github.com/MarkoPoloResearchLab/courtbook/pkg/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeUnauthorized   = "unauthorized"
	errorCodeInvalidPayload = "invalid_payload"
	errorCodeUnavailable    = "unavailable"

	messageMissingSession = "missing session"
	messageInternal       = "internal error"
	messageNotConfigured  = "system not configured"
)

type httpHandler struct {
	logger  *zap.Logger
	service *booking.Service
	pinger  Pinger
	cfg     Config
}

func (handler *httpHandler) handleHealth(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.pinger.Ping(requestCtx); err != nil {
		handler.logger.Error("store ping failed", zap.Error(err))
		ctx.JSON(http.StatusServiceUnavailable, errorResponse(errorCodeUnavailable, "store unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleListCourts(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	courts, err := handler.service.Courts(requestCtx)
	if err != nil {
		handler.respondError(ctx, "list courts", err)
		return
	}
	payload := make([]courtPayload, 0, len(courts))
	for _, court := range courts {
		payload = append(payload, newCourtPayload(court))
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) handleGetCourt(ctx *gin.Context) {
	courtID, err := booking.NewCourtID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, "get court", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	court, err := handler.service.Court(requestCtx, courtID)
	if err != nil {
		handler.respondError(ctx, "get court", err)
		return
	}
	ctx.JSON(http.StatusOK, newCourtPayload(court))
}

func (handler *httpHandler) handleAvailableSlots(ctx *gin.Context) {
	courtID, err := booking.NewCourtID(ctx.Query("resource"))
	if err != nil {
		handler.respondError(ctx, "available slots", err)
		return
	}
	date, err := booking.ParseDate(ctx.Query("date"))
	if err != nil {
		handler.respondError(ctx, "available slots", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	intervals, err := handler.service.AvailableSlots(requestCtx, courtID, date)
	if err != nil {
		handler.respondError(ctx, "available slots", err)
		return
	}
	ctx.JSON(http.StatusOK, newSlotPayloads(intervals))
}

func (handler *httpHandler) handleCreateReservation(ctx *gin.Context) {
	payerID, ok := session.PayerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, messageMissingSession))
		return
	}
	var request reservationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	bookingRequest, err := request.toBookingRequest(payerID)
	if err != nil {
		handler.respondError(ctx, "create reservation", err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	receipt, err := handler.service.Book(requestCtx, bookingRequest)
	if err != nil {
		handler.respondError(ctx, "create reservation", err)
		return
	}
	ctx.JSON(http.StatusCreated, newReceiptPayload(receipt))
}

func (handler *httpHandler) handleMyReservations(ctx *gin.Context) {
	payerID, ok := session.PayerFrom(ctx)
	if !ok {
		ctx.JSON(http.StatusOK, []reservationViewPayload{})
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	views, err := handler.service.PayerReservations(requestCtx, payerID)
	if err != nil {
		handler.respondError(ctx, "my reservations", err)
		return
	}
	payload := make([]reservationViewPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, newReservationViewPayload(view))
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// respondError maps the booking error taxonomy onto HTTP statuses.
func (handler *httpHandler) respondError(ctx *gin.Context, action string, err error) {
	kind := booking.Classify(err)
	switch kind {
	case booking.ErrorKindValidation:
		ctx.JSON(http.StatusBadRequest, errorResponse(string(kind), err.Error()))
	case booking.ErrorKindConflict:
		var conflictError booking.SlotConflictError
		message := booking.ErrSlotConflict.Error()
		if errors.As(err, &conflictError) {
			message = conflictError.Error()
		}
		ctx.JSON(http.StatusConflict, errorResponse(string(kind), message))
	case booking.ErrorKindNotFound:
		ctx.JSON(http.StatusNotFound, errorResponse(string(kind), err.Error()))
	case booking.ErrorKindConfiguration:
		handler.logger.Error(action+" failed", zap.String("error_kind", string(kind)), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(string(kind), messageNotConfigured))
	default:
		handler.logger.Error(action+" failed", zap.String("error_kind", string(booking.ErrorKindSystem)), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(string(booking.ErrorKindSystem), messageInternal))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": message,
		"code":  code,
	}
}
