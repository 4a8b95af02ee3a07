package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-presence/internal/presence"
	"github.com/iliyamo/gate-presence/internal/repository"
	"github.com/iliyamo/gate-presence/internal/token"
)

// retryAfterSeconds is the hint given to clients on infrastructure faults.
const retryAfterSeconds = "1"

// writeError maps domain errors to HTTP responses.  Anything unrecognised is
// an infrastructure fault: logged, and answered with 503 so scanners retry.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, presence.ErrInvalidRequest),
		errors.Is(err, presence.ErrInvalidDirection),
		errors.Is(err, presence.ErrMissingToken):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, token.ErrExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token_expired"})
	case errors.Is(err, token.ErrReplay):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token_replayed"})
	case errors.Is(err, token.ErrSignature):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
	case errors.Is(err, token.ErrUntrustedDevice):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "untrusted_device"})
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	c.Response().Header().Set("Retry-After", retryAfterSeconds)
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
}
