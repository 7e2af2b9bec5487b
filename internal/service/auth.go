package service

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthService guards the trigger API with a single static bearer token.
// Callers are other backend services, not humans, so there is no session or
// login flow; rotation is a config change and a restart.
type AuthService struct {
	logger *zap.Logger
	token  string
}

func NewAuthService(logger *zap.Logger, token string) *AuthService {
	return &AuthService{
		logger: logger,
		token:  token,
	}
}

// ValidateToken reports whether the presented token matches the configured
// one. An empty configured token never matches, so a deployment without a
// token locks the API instead of leaving it open.
func (a *AuthService) ValidateToken(token string) bool {
	if a.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1
}

// AuthMiddleware rejects any request that does not carry the configured
// bearer token before the handler runs.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || !a.ValidateToken(token) {
			a.logger.Warn("Rejected unauthenticated request",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authentication required",
			})
			return
		}

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
