package http

import "github.com/gin-gonic/gin"

// ErrorResponse writes a uniform error body.
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// SuccessResponse writes data as-is with the given status.
func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}
