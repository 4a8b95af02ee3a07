package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/gate-presence/internal/middleware"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/repository"
)

// GuardAdmin is the subset of the guard used by staff endpoints.
type GuardAdmin interface {
	State(ctx context.Context, ticketID string) (model.GuardState, error)
	Reset(ctx context.Context, ticketID string) error
}

// TicketHandler serves staff views of one ticket.
type TicketHandler struct {
	Tickets repository.TicketStore
	History repository.ScanLogStore
	Guard   GuardAdmin
	Limit   int
	Now     func() time.Time
}

const defaultHistoryWindow = 24 * time.Hour

func (h *TicketHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// parseSince accepts RFC 3339 or unix milliseconds.
func parseSince(v string, now time.Time) (time.Time, bool) {
	if v == "" {
		return now.Add(-defaultHistoryWindow), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// Scans handles GET /v1/tickets/:id/scans.
func (h *TicketHandler) Scans(c echo.Context) error {
	id := c.Param("id")
	since, ok := parseSince(c.QueryParam("since"), h.now())
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "since must be RFC 3339 or unix milliseconds"})
	}
	ctx := c.Request().Context()
	if _, err := h.Tickets.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	limit := h.Limit
	if limit <= 0 {
		limit = 100
	}
	items, err := h.History.ListSince(ctx, id, since, limit)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []model.ScanLogEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket_id": id, "items": items})
}

type guardResp struct {
	TicketID     string     `json:"ticket_id"`
	FailCount    uint       `json:"fail_count"`
	Blocked      bool       `json:"blocked"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	LastFailAt   *time.Time `json:"last_fail_at,omitempty"`
}

// GuardState handles GET /v1/tickets/:id/guard.
func (h *TicketHandler) GuardState(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Tickets.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	st, err := h.Guard.State(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, guardResp{
		TicketID:     id,
		FailCount:    st.FailCount,
		Blocked:      st.Blocked(h.now()),
		BlockedUntil: st.BlockedUntil,
		Reason:       string(st.Reason),
		LastFailAt:   st.LastFailAt,
	})
}

// Unblock handles POST /v1/tickets/:id/unblock.
func (h *TicketHandler) Unblock(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if _, err := h.Tickets.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	if err := h.Guard.Reset(ctx, id); err != nil {
		return writeError(c, err)
	}
	c.Logger().Warnj(log.JSON{"event": "guard_reset", "ticket_id": id, "by": middleware.UserID(c)})
	return c.NoContent(http.StatusNoContent)
}
