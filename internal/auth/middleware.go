package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
)

// UserKey is where the middlewares store the authenticated username.
const UserKey = "auth_user"

// GinAuth rejects unauthenticated requests with 401.
func (a *Authenticator) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil {
			c.Next()
			return
		}
		user, err := a.Authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Basic realm="warden"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": err.Error(),
			})
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

// EchoAuth is GinAuth for echo.
func (a *Authenticator) EchoAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a == nil {
				return next(c)
			}
			user, err := a.Authenticate(c.Request())
			if err != nil {
				c.Response().Header().Set("WWW-Authenticate", `Basic realm="warden"`)
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "authentication_failed",
					"message": err.Error(),
				})
			}
			c.Set(UserKey, user)
			return next(c)
		}
	}
}
