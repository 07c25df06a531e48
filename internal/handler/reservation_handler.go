package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ReservationHandler handles reservation attendance requests
type ReservationHandler struct {
	reserveService service.ReserveService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reserveService service.ReserveService) *ReservationHandler {
	return &ReservationHandler{reserveService: reserveService}
}

// CheckIn handles PUT /reservations/:id/checkedIn
func (h *ReservationHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.check_in")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", c.Param("id")))

	res, err := h.reserveService.CheckIn(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

// Attend handles PUT /reservations/:id/attended
func (h *ReservationHandler) Attend(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.reservation.attend")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", c.Param("id")))

	res, err := h.reserveService.Attend(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
