package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/routing"
	"github.com/chatrelay/chatrelay/internal/store"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// mapError translates service errors to HTTP errors.
func mapError(err error) error {
	switch {
	case store.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, routing.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, routing.ErrNoAgentsAvailable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
