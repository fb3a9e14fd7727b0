package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/store"
)

type CategoryStore interface {
	ListCategories(ctx context.Context) ([]store.Category, error)
	CreateCategory(ctx context.Context, title string) (store.Category, error)
}

// CategoriesHandler lists the routing categories the widget offers. Listing
// is public; creation is admin only.
type CategoriesHandler struct {
	categories CategoryStore
	logger     *slog.Logger
}

func NewCategoriesHandler(log *slog.Logger, categories CategoryStore) *CategoriesHandler {
	return &CategoriesHandler{
		categories: categories,
		logger:     log.With(slog.String("handler", "categories")),
	}
}

func (h *CategoriesHandler) Register(e *echo.Echo) {
	e.GET("/api/v1/categories", h.List)
	e.POST("/api/v1/categories", h.Create)
}

func (h *CategoriesHandler) List(c echo.Context) error {
	categories, err := h.categories.ListCategories(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": categories})
}

type createCategoryRequest struct {
	Title string `json:"title" validate:"required"`
}

func (h *CategoriesHandler) Create(c echo.Context) error {
	var req createCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	category, err := h.categories.CreateCategory(c.Request().Context(), req.Title)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, category)
}
