// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkcore/internal/core/apperror"
	"parkcore/internal/core/tx"
	"parkcore/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request.
// Actual JSON response is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Result renders a transaction result as the standard envelope.
// Both outcomes carry the transaction id; the failure path also
// registers the error so the request log records it.
func (h *BaseHandler) Result(c *gin.Context, res tx.Result, successStatus int) {
	env := dto.FromResult(res)
	if res.Success {
		c.JSON(successStatus, env)
		return
	}

	_ = c.Error(res.Err)
	c.JSON(apperror.GetHTTPStatus(res.Err), env)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
