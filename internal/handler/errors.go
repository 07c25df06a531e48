package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case domain.IsArgumentError(err):
		response.BadRequest(c, err.Error())
	case domain.IsConflictError(err):
		response.Conflict(c, err.Error())
	case domain.IsServiceUnavailableError(err):
		response.ServiceUnavailable(c, err.Error())
	case domain.IsNotImplementedError(err):
		response.NotImplemented(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
