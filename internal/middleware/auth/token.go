package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/service"
)

const (
	userContextKey  = "user"
	tokenContextKey = "accessToken"
)

// TokenMiddleware guards routes behind bearer-token authentication and,
// optionally, behind the administrator check.
type TokenMiddleware struct {
	Auth       *service.AuthService
	AdminEmail string
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (t *TokenMiddleware) RequireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c)
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		user, err := t.Auth.VerifyAccess(c.Request().Context(), raw)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired access token")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		}

		c.Set(userContextKey, user)
		c.Set(tokenContextKey, raw)
		return next(c)
	}
}

// AdminOnly must run after RequireToken. Administrator status means the
// authenticated user owns the configured admin address.
func (t *TokenMiddleware) AdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := CurrentUser(c)
		if user == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}
		if t.AdminEmail == "" || user.Email != t.AdminEmail {
			return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
		}
		return next(c)
	}
}

func CurrentUser(c echo.Context) *models.User {
	if u, ok := c.Get(userContextKey).(*models.User); ok {
		return u
	}
	return nil
}

func AccessToken(c echo.Context) string {
	if s, ok := c.Get(tokenContextKey).(string); ok {
		return s
	}
	return ""
}
