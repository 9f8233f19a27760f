package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/labstack/echo/v4"

	"github.com/avolkov/market-api/internal/config"
	"github.com/avolkov/market-api/internal/events"
	"github.com/avolkov/market-api/internal/logging"
	"github.com/avolkov/market-api/internal/models"
	"github.com/avolkov/market-api/internal/repo"
	"github.com/avolkov/market-api/internal/search"
	"github.com/avolkov/market-api/internal/util"
)

type ProductHandler struct {
	Repo     *repo.GormRepo
	Cfg      *config.Config
	Producer *events.Producer
	ES       *elasticsearch.Client
	Index    string
}

type productRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CategoryID  uint    `json:"category_id"`
}

func (h *ProductHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" || req.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "name required and price must be non-negative")
	}
	if _, err := h.Repo.GetCategory(ctx, req.CategoryID); err != nil {
		return toHTTPError(err)
	}

	product := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		CategoryID:  req.CategoryID,
	}
	if err := h.Repo.CreateProduct(ctx, &product); err != nil {
		return toHTTPError(err)
	}

	h.index(ctx, &product)
	h.publish(ctx, fmt.Sprint(product.ID), map[string]interface{}{
		"type":       "product_created",
		"product_id": product.ID,
		"name":       product.Name,
	})

	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.Repo.GetProduct(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.Repo.GetProduct(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}

	var req struct {
		Name        *string  `json:"name"`
		Description *string  `json:"description"`
		Price       *float64 `json:"price"`
		CategoryID  *uint    `json:"category_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "price must be non-negative")
		}
		product.Price = *req.Price
	}
	if req.CategoryID != nil {
		if _, err := h.Repo.GetCategory(ctx, *req.CategoryID); err != nil {
			return toHTTPError(err)
		}
		product.CategoryID = *req.CategoryID
	}

	if err := h.Repo.UpdateProduct(ctx, product); err != nil {
		return toHTTPError(err)
	}

	h.index(ctx, product)
	h.publish(ctx, fmt.Sprint(product.ID), map[string]interface{}{
		"type":       "product_updated",
		"product_id": product.ID,
		"name":       product.Name,
	})

	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Repo.DeleteProduct(ctx, id); err != nil {
		return toHTTPError(err)
	}

	if h.ES != nil {
		if err := search.DeleteProduct(ctx, h.ES, h.Index, id); err != nil {
			logging.FromContext(ctx).Warn("search_delete_error", "product_id", id, "error", err)
		}
	}
	h.publish(ctx, fmt.Sprint(id), map[string]interface{}{
		"type":       "product_deleted",
		"product_id": id,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) ListByCategory(c echo.Context) error {
	ctx := c.Request().Context()

	categoryID, err := paramID(c, "category_id")
	if err != nil {
		return err
	}
	if _, err := h.Repo.GetCategory(ctx, categoryID); err != nil {
		return toHTTPError(err)
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("per_page"), h.Cfg.ProductsPerPage)
	offset, limit := util.Calculate(page, size)

	products, total, err := h.Repo.ListProductsByCategory(ctx, categoryID, offset, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data": products,
		"pagination": echo.Map{
			"page":     page,
			"per_page": limit,
			"total":    total,
		},
	})
}

func (h *ProductHandler) Search(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	if h.ES == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search unavailable")
	}

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("per_page"), h.Cfg.ProductsPerPage)
	from, limit := util.Calculate(page, size)

	total, products, err := search.Search(c.Request().Context(), h.ES, h.Index, q, from, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "products": products})
}

func (h *ProductHandler) CreateCategory(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}

	category := models.ProductCategory{Name: req.Name}
	if err := h.Repo.CreateCategory(c.Request().Context(), &category); err != nil {
		if errors.Is(err, repo.ErrCategoryAlreadyExists) {
			return echo.NewHTTPError(http.StatusConflict, "category already exists")
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, category)
}

func (h *ProductHandler) UpdateCategory(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	category, err := h.Repo.GetCategory(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}

	category.Name = req.Name
	if err := h.Repo.UpdateCategory(ctx, category); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, category)
}

func (h *ProductHandler) DeleteCategory(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Repo.DeleteCategory(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) index(ctx context.Context, p *models.Product) {
	if h.ES == nil {
		return
	}
	if err := search.IndexProduct(ctx, h.ES, h.Index, p); err != nil {
		logging.FromContext(ctx).Warn("search_index_error", "product_id", p.ID, "error", err)
	}
}

func (h *ProductHandler) publish(ctx context.Context, key string, event map[string]interface{}) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.Producer.Publish(pubCtx, events.TopicProductEvents, key, event); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "error", err)
	}
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}
