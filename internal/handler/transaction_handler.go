package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TransactionHandler handles transaction HTTP requests
type TransactionHandler struct {
	transactionService service.TransactionService
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// StartReserve handles POST /transactions/reserve/start
func (h *TransactionHandler) StartReserve(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.transaction.start_reserve")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.StartReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}
	if req.Agent.ID == "" {
		req.Agent.ID = c.GetString(middleware.ContextKeyAgentID)
	}

	span.SetAttributes(
		attribute.String("event_id", req.EventID),
		attribute.Int("seats", len(req.AcceptedOffers)),
	)

	tx, err := h.transactionService.StartReserve(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("transaction_id", tx.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, tx)
}

// StartCancelReservation handles POST /transactions/cancelReservation/start
func (h *TransactionHandler) StartCancelReservation(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.transaction.start_cancel_reservation")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.StartCancelReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}
	if req.Agent.ID == "" {
		req.Agent.ID = c.GetString(middleware.ContextKeyAgentID)
	}

	span.SetAttributes(attribute.String("reserve_transaction_id", req.ReserveTransactionID))

	tx, err := h.transactionService.StartCancelReservation(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Created(c, tx)
}

// Confirm handles PUT /transactions/{typeOf}/:id/confirm
func (h *TransactionHandler) Confirm(typeOf domain.TransactionType) gin.HandlerFunc {
	return h.transition("handler.transaction.confirm", typeOf, h.transactionService.Confirm)
}

// Cancel handles PUT /transactions/{typeOf}/:id/cancel
func (h *TransactionHandler) Cancel(typeOf domain.TransactionType) gin.HandlerFunc {
	return h.transition("handler.transaction.cancel", typeOf, h.transactionService.Cancel)
}

// Get handles GET /transactions/{typeOf}/:id
func (h *TransactionHandler) Get(typeOf domain.TransactionType) gin.HandlerFunc {
	return h.transition("handler.transaction.get", typeOf, h.transactionService.FindByID)
}

// ExportTasks handles POST /admin/transactions/{typeOf}/:id/tasks/export
func (h *TransactionHandler) ExportTasks(typeOf domain.TransactionType) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.transaction.export_tasks")
		defer span.End()

		id := c.Param("id")
		span.SetAttributes(attribute.String("transaction_id", id))

		tasks, err := h.transactionService.ExportTasksByID(ctx, typeOf, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			handleError(c, err)
			return
		}

		resp := dto.ExportTasksResponse{TransactionID: id, TaskIDs: make([]string, 0, len(tasks))}
		for _, task := range tasks {
			resp.TaskIDs = append(resp.TaskIDs, task.ID)
		}
		response.Success(c, resp)
	}
}

type transitionFunc func(ctx context.Context, typeOf domain.TransactionType, id string) (*domain.Transaction, error)

func (h *TransactionHandler) transition(spanName string, typeOf domain.TransactionType, fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), spanName)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		id := c.Param("id")
		span.SetAttributes(
			attribute.String("transaction_id", id),
			attribute.String("type_of", typeOf.String()),
		)

		tx, err := fn(ctx, typeOf, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			handleError(c, err)
			return
		}

		span.SetStatus(codes.Ok, "")
		response.Success(c, tx)
	}
}
