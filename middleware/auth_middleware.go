package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bahr/analytics/utils"
)

const (
	ContextOperatorID    = "operator_id"
	ContextOperatorEmail = "operator_email"
)

// AuthRequired admits requests carrying the static X-API-KEY or a valid
// operator JWT from the token cookie or an Authorization bearer header.
// An empty apiKey disables the static key.
func AuthRequired(tokens *utils.TokenIssuer, apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey != "" {
			if key := c.GetHeader("X-API-KEY"); key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
				c.Next()
				return
			}
		}

		tokenString, err := c.Cookie(utils.TokenCookie)
		if err != nil || tokenString == "" {
			tokenString = bearerToken(c.GetHeader("Authorization"))
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}
		if tokens == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		claims, err := tokens.Validate(tokenString)
		if err != nil {
			log.Printf("AuthRequired: Invalid JWT token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ContextOperatorID, claims.OperatorID)
		c.Set(ContextOperatorEmail, claims.Email)
		c.Next()
	}
}

// bearerToken returns the credentials of a "Bearer <token>" header, or "".
func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
