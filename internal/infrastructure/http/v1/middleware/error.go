package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		var body dto.ErrorResponse

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil || appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"message", appErr.Message,
					"details", appErr.Details,
					"cause", appErr.Err,
				)
			}
			status = appErr.HTTPStatus
			body = dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
			if appErr.Code == apperror.CodeInternal {
				// Never leak the cause of an internal error.
				body.Details = map[string]any{"request_id": c.GetString("request_id")}
			}
		} else {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			body = dto.ErrorResponse{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
				Details: map[string]any{"request_id": c.GetString("request_id")},
			}
		}

		failIdempotency(c, status, body)
		c.JSON(status, body)
	}
}

// failIdempotency settles the key of a failed request (best-effort).
// Deterministic rejections are stored for replay; conflicts and server errors
// release the key so a retry runs the operation again.
func failIdempotency(c *gin.Context, status int, body dto.ErrorResponse) {
	key := c.GetString(ContextKeyIdempotencyKey)
	if key == "" {
		return
	}
	store, ok := c.Get(ContextKeyIdempotencyStore)
	if !ok {
		return
	}
	s, ok := store.(idempotency.Store)
	if !ok || s == nil {
		return
	}

	ctx := c.Request.Context()
	if retryable(status, body.Code) {
		if err := s.Release(ctx, key); err != nil {
			logger.Warn(ctx, "idempotency key not released", "key", key, "error", err)
		}
		return
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := s.Fail(ctx, key, status, "application/json", payload); err != nil {
		logger.Warn(ctx, "idempotency fail not recorded", "key", key, "error", err)
	}
}

// retryable reports whether the same request may succeed when sent again.
func retryable(status int, code string) bool {
	return status >= http.StatusInternalServerError || code == apperror.CodeConcurrentModification
}
