package handlers

import "github.com/gin-gonic/gin"

// getUserID returns the authenticated user ID from the request context.
func getUserID(c *gin.Context) uint64 {
	v, exists := c.Get("userID")
	if !exists {
		return 0
	}
	id, ok := v.(uint64)
	if !ok {
		return 0
	}
	return id
}
