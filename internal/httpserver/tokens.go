package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/config"
	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/logging"
	authmw "github.com/avolkov/market-api/internal/middleware/auth"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/service"
)

// refreshCookiePath scopes the refresh cookie to the token-refresh
// endpoint only; no other route ever sees the refresh secret.
const refreshCookiePath = "/api/v1/tokens"

const refreshCookieName = "refresh_token"

type TokenHandler struct {
	Auth     *service.AuthService
	Cfg      *config.Config
	Producer *events.Producer
}

type tokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (h *TokenHandler) setRefreshCookie(c echo.Context, value string, exp time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *TokenHandler) tokenResponse(c echo.Context, status int, token *models.Token) error {
	if h.Cfg.RefreshTokenInCookie {
		h.setRefreshCookie(c, token.RefreshToken, token.RefreshExpiration)
	}

	body := echo.Map{"access_token": token.AccessToken}
	if h.Cfg.RefreshTokenInBody {
		body["refresh_token"] = token.RefreshToken
	}
	return c.JSON(status, body)
}

// Create issues a token pair for HTTP Basic credentials.
func (h *TokenHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tokens.create")

	username, password, ok := c.Request().BasicAuth()
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "basic credentials required")
	}

	user, err := h.Auth.Authenticate(ctx, username, password)
	if err != nil {
		l.Warn("login_failed", "username", username)
		return toHTTPError(err)
	}

	token, err := h.Auth.IssueToken(ctx, user)
	if err != nil {
		l.Error("issue_token_error", "error", err)
		return toHTTPError(err)
	}

	h.publish(ctx, fmt.Sprint(user.ID), map[string]interface{}{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("token_issued", "user_id", user.ID)
	return h.tokenResponse(c, http.StatusCreated, token)
}

// Refresh rotates a token pair. The refresh secret comes from the body
// or from the scoped cookie; the access secret always from the body.
func (h *TokenHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "tokens.refresh")

	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		if ck, err := c.Cookie(refreshCookieName); err == nil {
			refreshToken = ck.Value
		}
	}
	if req.AccessToken == "" || refreshToken == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	token, err := h.Auth.Refresh(ctx, refreshToken, req.AccessToken)
	if err != nil {
		l.Warn("refresh_failed")
		return toHTTPError(err)
	}

	l.Info("token_rotated", "user_id", token.UserID)
	return h.tokenResponse(c, http.StatusOK, token)
}

// Revoke expires the access token used to authenticate this request.
func (h *TokenHandler) Revoke(c echo.Context) error {
	ctx := c.Request().Context()

	accessToken := authmw.AccessToken(c)
	if accessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provide access token")
	}
	if err := h.Auth.Revoke(ctx, accessToken); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TokenHandler) publish(ctx context.Context, key string, event map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Producer.Publish(pubCtx, events.TopicUserEvents, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "error", err)
	}
}
