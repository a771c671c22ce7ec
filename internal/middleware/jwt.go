package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quizroom/internal/handlers/dto"
	"quizroom/pkg/jwt"
)

// JWTAuth validates the Bearer token locally and stores the caller's
// identity on the request context. The raw token is kept as well because
// host-privileged operations re-verify it at the service layer.
func JWTAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Authorization header is required",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := jwt.ValidateToken(parts[1], jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   http.StatusText(http.StatusUnauthorized),
				Message: "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("display_name", claims.DisplayName)
		c.Set("token", parts[1])

		c.Next()
	}
}
