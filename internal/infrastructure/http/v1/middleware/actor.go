package middleware

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
)

// HeaderActorID carries the id of the user performing the request.
// Authentication happens upstream; the id is recorded on ledger transactions as-is.
const HeaderActorID = "X-Actor-ID"

// Actor puts the caller's actor id into the request context.
// Requests without the header are anonymous.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderActorID)
		if raw == "" {
			c.Next()
			return
		}

		actorID, err := id.Parse(raw)
		if err != nil || id.IsNil(actorID) {
			_ = c.Error(apperror.NewValidation("invalid actor id").WithDetail("header", HeaderActorID))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actorID))
		c.Next()
	}
}
