package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: group.Use(JWTMiddleware(secret), RequireRoles(RoleMember, RoleAdmin))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := Role(c)
			if role == "" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "role missing"})
			}

			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
	}
}
