package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var corsAllowHeaders = strings.Join([]string{"Content-Type", HeaderUserID, HeaderAPIKeyID, HeaderAdminToken}, ", ")

// CORS 按逗号分隔的来源白名单设置跨域头；空或 "*" 表示任意来源
// Identity travels in custom headers rather than cookies, so credentials are
// never allowed. Only real preflights (OPTIONS carrying
// Access-Control-Request-Method) are answered here.
func CORS(allowedOrigins string) gin.HandlerFunc {
	anyOrigin := false
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			anyOrigin = true
		default:
			origins[o] = true
		}
	}
	if len(origins) == 0 {
		anyOrigin = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		c.Header("Vary", "Origin")
		if !anyOrigin && !origins[origin] {
			c.Next()
			return
		}
		if anyOrigin {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
		}

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
			c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
			c.Header("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
