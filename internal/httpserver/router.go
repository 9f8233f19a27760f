package httpserver

import (
	"github.com/labstack/echo/v4"

	authmw "github.com/avolkov/market-api/internal/middleware/auth"
)

type Deps struct {
	Tokens   *TokenHandler
	Users    *UserHandler
	Products *ProductHandler
	Carts    *CartHandler
	Webhook  *WebhookHandler
	AuthMW   *authmw.TokenMiddleware
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/users", d.Users.Register)
	v1.POST("/tokens", d.Tokens.Create)
	v1.PUT("/tokens", d.Tokens.Refresh)
	v1.DELETE("/tokens", d.Tokens.Revoke, d.AuthMW.RequireToken)

	v1.POST("/event", d.Webhook.HandleEvent)

	users := v1.Group("", d.AuthMW.RequireToken)
	users.GET("/users", d.Users.List)
	users.GET("/users/:username", d.Users.GetByUsername)
	users.GET("/me", d.Users.Me)
	users.PUT("/me", d.Users.UpdateMe)

	admin := v1.Group("/admin", d.AuthMW.RequireToken, d.AuthMW.AdminOnly)
	admin.POST("/products", d.Products.Create)
	admin.PUT("/products/:id", d.Products.Update)
	admin.DELETE("/products/:id", d.Products.Delete)
	admin.POST("/categories", d.Products.CreateCategory)
	admin.PUT("/categories/:id", d.Products.UpdateCategory)
	admin.DELETE("/categories/:id", d.Products.DeleteCategory)

	catalog := v1.Group("", d.AuthMW.RequireToken)
	catalog.GET("/products/:id", d.Products.Get)
	catalog.GET("/category/:category_id/products", d.Products.ListByCategory)
	catalog.GET("/search", d.Products.Search)

	carts := v1.Group("/carts", d.AuthMW.RequireToken)
	carts.POST("", d.Carts.Create)
	carts.GET("/:id", d.Carts.Get)
	carts.POST("/:id/products/:product_id", d.Carts.AddProduct)
	carts.DELETE("/:id/products/:product_id", d.Carts.RemoveProduct)
	carts.POST("/:id/checkout", d.Carts.Checkout)
}
