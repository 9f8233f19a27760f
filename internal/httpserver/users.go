package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/config"
	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/hash"
	"github.com/avolkov/market-api/internal/logging"
	authmw "github.com/avolkov/market-api/internal/middleware/auth"
	"github.com/avolkov/market-api/internal/repo"
	"github.com/avolkov/market-api/internal/service"
	"github.com/avolkov/market-api/internal/util"
)

type UserHandler struct {
	Auth     *service.AuthService
	Repo     *repo.GormRepo
	Cfg      *config.Config
	Producer *events.Producer
}

func (h *UserHandler) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.register")

	var req struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Auth.Register(ctx, req.Username, req.Name, req.Email, req.Password)
	if err != nil {
		return toHTTPError(err)
	}

	h.publish(ctx, fmt.Sprint(user.ID), map[string]interface{}{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("user_registered", "user_id", user.ID)
	return c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) GetByUsername(c echo.Context) error {
	user, err := h.Repo.GetUserByUsername(c.Request().Context(), c.Param("username"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) List(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("per_page"), h.Cfg.UsersPerPage)
	offset, limit := util.Calculate(page, size)

	users, total, err := h.Repo.ListUsers(c.Request().Context(), offset, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data": users,
		"pagination": echo.Map{
			"page":     page,
			"per_page": limit,
			"total":    total,
		},
	})
}

func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, authmw.CurrentUser(c))
}

// UpdateMe edits the authenticated user. Absent fields stay untouched;
// a password update replaces the stored hash.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	user := authmw.CurrentUser(c)

	var req struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Password != nil {
		pwHash, err := hash.HashPassword(*req.Password)
		if err != nil {
			return toHTTPError(err)
		}
		user.PasswordHash = pwHash
	}

	if err := h.Repo.UpdateUser(ctx, user); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) publish(ctx context.Context, key string, event map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Producer.Publish(pubCtx, events.TopicUserEvents, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
