package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/suPer8Hu/ai-relay/internal/common"
)

const SubjectKey = "subject"

// AuthRequired accepts an HS256 bearer token signed with secret and stores
// its subject under SubjectKey.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(auth, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			common.AbortFail(c, http.StatusUnauthorized, 40100, "missing bearer token")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			common.AbortFail(c, http.StatusUnauthorized, 40101, "invalid token")
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Next()
	}
}
