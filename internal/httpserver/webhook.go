package httpserver

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/service"
)

// signatureHeader carries the provider's webhook signature.
const signatureHeader = "Stripe-Signature"

type WebhookHandler struct {
	Svc *service.WebhookService
}

// HandleEvent acknowledges provider notifications. The response carries
// no detail about why a rejected event failed verification.
func (h *WebhookHandler) HandleEvent(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad request")
	}

	if err := h.Svc.HandleEvent(c.Request().Context(), payload, c.Request().Header.Get(signatureHeader)); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
