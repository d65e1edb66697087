package server

import (
	"errors"
	"net/http"
	"time"

	"craftbid/services/auction/helpers"
	"craftbid/utils"

	"github.com/gin-gonic/gin"
)

var errAdminOnly = errors.New("admin role required")

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if user := c.GetHeader(helpers.HeaderUserID); user != "" {
		fields["user_id"] = user
	}
	utils.Info("HTTP Request", fields)
}

// RequireAdmin rejects requests whose caller is not an administrator
func RequireAdmin(c *gin.Context) {
	actor := helpers.ActorFrom(c)
	if !actor.Admin {
		utils.JSONError(c, http.StatusForbidden, errAdminOnly, "FORBIDDEN", "operation not permitted")
		utils.Warn("RequireAdmin: request rejected", map[string]any{
			"path":    c.Request.URL.Path,
			"user_id": actor.UserID,
		})
		c.Abort()
		return
	}
	c.Next()
}
