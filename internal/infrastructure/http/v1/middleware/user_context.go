package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "stockledger/internal/core/context"
)

// HeaderUserID carries the authenticated user, set by the upstream gateway.
const HeaderUserID = "X-User-ID"

// UserContext puts the forwarded user id into the request context, where the
// domain layer reads it as createdBy / countedBy / approvedBy.
// Requests without the header run as the system actor.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: uid})
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", uid)
		}
		c.Next()
	}
}
