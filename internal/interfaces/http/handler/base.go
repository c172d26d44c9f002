package handler

import (
	"net/http"

	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/infrastructure/logger"
	"github.com/feeledger/backend/internal/interfaces/http/dto"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	if page < 1 {
		page = 1
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 response for a request that could not be bound
func (h *BaseHandler) BadRequest(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleError maps err to its HTTP status. Errors that are not domain
// errors are logged and answered with a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, body := dto.ErrorResponseFor(err, middleware.GetRequestID(c))
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("Request failed",
			zap.String("kind", string(shared.KindOf(err))),
			zap.Error(err))
	}
	c.JSON(status, body)
}

// actor is the caller recorded on every write
func (h *BaseHandler) actor(c *gin.Context) string {
	return middleware.GetActor(c)
}

// parseUUIDParam reads a path parameter as a UUID, answering 400 when it is not one
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
			string(shared.KindValidation), dto.ErrCodeInvalidID,
			"Invalid "+name+" format", middleware.GetRequestID(c)))
		return uuid.Nil, false
	}
	return id, true
}
