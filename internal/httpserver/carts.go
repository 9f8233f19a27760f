package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/logging"
	authmw "github.com/avolkov/market-api/internal/middleware/auth"
	"github.com/avolkov/market-api/internal/service"
)

type CartHandler struct {
	Svc *service.CartService
}

func (h *CartHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	user := authmw.CurrentUser(c)

	cart, err := h.Svc.Create(ctx, user.ID)
	if err != nil {
		return toHTTPError(err)
	}

	logging.FromContext(ctx).Info("cart_created", "cart_id", cart.ID, "user_id", user.ID)
	return c.JSON(http.StatusCreated, cart)
}

func (h *CartHandler) Get(c echo.Context) error {
	cartID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	cart, err := h.Svc.Get(c.Request().Context(), cartID, authmw.CurrentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) AddProduct(c echo.Context) error {
	cartID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	productID, err := paramID(c, "product_id")
	if err != nil {
		return err
	}

	cart, err := h.Svc.AddItem(c.Request().Context(), cartID, productID, authmw.CurrentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, cart)
}

func (h *CartHandler) RemoveProduct(c echo.Context) error {
	cartID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	productID, err := paramID(c, "product_id")
	if err != nil {
		return err
	}

	if err := h.Svc.RemoveItem(c.Request().Context(), cartID, productID, authmw.CurrentUser(c).ID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout opens a payment session and echoes the provider's redirect
// URL. The cart stays "ready to pay" until the completion webhook.
func (h *CartHandler) Checkout(c echo.Context) error {
	ctx := c.Request().Context()

	cartID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	url, err := h.Svc.CheckoutCart(ctx, cartID, authmw.CurrentUser(c).ID)
	if err != nil {
		return toHTTPError(err)
	}

	logging.FromContext(ctx).Info("checkout_session_created", "cart_id", cartID)
	return c.JSON(http.StatusOK, echo.Map{"url": url})
}
