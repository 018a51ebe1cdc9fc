package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"recall/internal/auth"
)

const (
	// SessionCookie carries the session token for browser clients.
	SessionCookie = "recall_session"

	sessionMaxAge = 7 * 24 * 60 * 60
	ownerKey      = "recall.owner"
)

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Debug("Request served")
		}
	}
}

// requireSession resolves the caller's session and stores the owner id on the context.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		session, err := s.identity.Session(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				abortWithError(c, http.StatusUnauthorized, "Authentication required")
				return
			}
			s.log.WithError(err).Error("Session lookup failed")
			abortWithError(c, http.StatusBadGateway, "Could not verify session")
			return
		}

		c.Set(ownerKey, session.UserID)
		c.Next()
	}
}

func sessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

func owner(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}
