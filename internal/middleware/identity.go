package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID     = "X-User-ID"
	HeaderAPIKeyID   = "X-Api-Key-ID"
	HeaderAdminToken = "X-Admin-Token"

	ContextKeyUserID   = "user_id"
	ContextKeyAPIKeyID = "api_key_id"
)

// IdentityMiddleware 读取上游认证层注入的用户标识
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderUserID + " header"})
			c.Abort()
			return
		}
		c.Set(ContextKeyUserID, userID)
		if keyID := strings.TrimSpace(c.GetHeader(HeaderAPIKeyID)); keyID != "" {
			c.Set(ContextKeyAPIKeyID, keyID)
		}
		c.Next()
	}
}

// AdminMiddleware 校验运维令牌；未配置令牌时管理接口不可用
func AdminMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin api disabled"})
			c.Abort()
			return
		}
		got := c.GetHeader(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin token required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(ContextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetAPIKeyID(c *gin.Context) string {
	keyID, _ := c.Get(ContextKeyAPIKeyID)
	if id, ok := keyID.(string); ok {
		return id
	}
	return ""
}
