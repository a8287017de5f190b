package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/auth"
)

// ContextKeyUserID is the gin context key holding the caller identity.
const ContextKeyUserID = "userID"

// Authenticate resolves the caller identity or rejects the request.
func Authenticate(a auth.Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := a.Auth(c.Request)
		if err != nil {
			log.Debug("request auth failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Set(ContextKeyUserID, uid)
		c.Next()
	}
}

// GetUserID returns the authenticated caller identity.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
