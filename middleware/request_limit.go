package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"document-chat-platform/utils"
)

// RequestSizeLimit rejects request bodies larger than maxSize before
// any handler reads them. Uploads are additionally checked against the
// configured document size limit by the loader.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size": maxSize,
					"received": c.Request.ContentLength,
				})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
