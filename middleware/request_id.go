package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kvfeed/kvfeed/utils"
)

// RequestID tags every request with an id, honoring one supplied by an
// upstream proxy, and echoes it on the response so log lines and client
// reports can be matched up.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set(utils.RequestIDKey, id)
		ctx.Header("X-Request-Id", id)
		ctx.Next()
	}
}
