package httpapi

import "github.com/gin-gonic/gin"

// Ping handles GET /ping. It is the target of the keep-alive prober's
// self-request and of any external uptime monitor; it carries no
// dependency checks (that's /health/ready's job).
func Ping(c *gin.Context) {
	c.String(200, "pong")
}
