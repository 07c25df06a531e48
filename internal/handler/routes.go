package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
)

// transactionPaths maps URL segments to transaction types
var transactionPaths = map[string]domain.TransactionType{
	"reserve":           domain.TransactionTypeReserve,
	"cancelReservation": domain.TransactionTypeCancelReservation,
}

// RegisterRoutes mounts the transaction, reservation and admin routes on an /api/v1 group.
// startMiddleware wraps the start endpoints, e.g. with idempotent replay.
func RegisterRoutes(v1 *gin.RouterGroup, transactions *TransactionHandler, reservations *ReservationHandler, startMiddleware ...gin.HandlerFunc) {
	for path, typeOf := range transactionPaths {
		group := v1.Group("/transactions/" + path)
		switch typeOf {
		case domain.TransactionTypeReserve:
			group.POST("/start", chain(startMiddleware, transactions.StartReserve)...)
		case domain.TransactionTypeCancelReservation:
			group.POST("/start", chain(startMiddleware, transactions.StartCancelReservation)...)
		}
		group.GET("/:id", transactions.Get(typeOf))
		group.PUT("/:id/confirm", transactions.Confirm(typeOf))
		group.PUT("/:id/cancel", transactions.Cancel(typeOf))

		v1.POST("/admin/transactions/"+path+"/:id/tasks/export", transactions.ExportTasks(typeOf))
	}

	v1.PUT("/reservations/:id/checkedIn", reservations.CheckIn)
	v1.PUT("/reservations/:id/attended", reservations.Attend)
}

func chain(middleware []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(middleware)+1)
	handlers = append(handlers, middleware...)
	return append(handlers, h)
}
