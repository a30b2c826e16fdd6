// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"parkcore/internal/core/apperror"
	"parkcore/internal/core/tx"
)

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the uniform response for transactional operations. Every
// outcome carries the transaction id and duration for correlation with
// server logs.
type Envelope struct {
	Success       bool           `json:"success"`
	Data          any            `json:"data,omitempty"`
	Error         *ErrorResponse `json:"error,omitempty"`
	TransactionID string         `json:"transactionId"`
	DurationMS    int64          `json:"durationMs"`
}

// FromResult converts a transaction result into the response envelope.
func FromResult(res tx.Result) Envelope {
	env := Envelope{
		Success:       res.Success,
		TransactionID: res.TxID.String(),
		DurationMS:    res.Duration.Milliseconds(),
	}
	if res.Success {
		env.Data = res.Data
		return env
	}

	if appErr, ok := apperror.AsAppError(res.Err); ok {
		env.Error = &ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	} else {
		env.Error = &ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
		}
	}
	return env
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
