package utils

import "github.com/gin-gonic/gin"

// Error writes an error response. The wire contract for this service is
// plain-text error bodies, not a JSON envelope.
func Error(ctx *gin.Context, status int, message string) {
	ctx.String(status, message)
}
