package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-presence/internal/middleware"
	"github.com/iliyamo/gate-presence/internal/model"
	"github.com/iliyamo/gate-presence/internal/presence"
)

// Scanner is the presence orchestrator as seen by the HTTP layer.
type Scanner interface {
	Scan(ctx context.Context, req presence.ScanRequest) (presence.Result, error)
	ScanByToken(ctx context.Context, req presence.TokenScanRequest) (presence.Result, error)
}

type ScanHandler struct {
	Presence Scanner
	Timeout  time.Duration
}

// ----- DTOs -----

type ticketPart struct {
	ID     string              `json:"id"`
	Event  string              `json:"event_id"`
	Seat   string              `json:"seat_id,omitempty"`
	State  model.PresenceState `json:"state"`
	Update time.Time           `json:"updated_at"`
}

type logPart struct {
	ID        string              `json:"id"`
	Direction model.PresenceState `json:"direction"`
	Gate      string              `json:"gate"`
	At        time.Time           `json:"created_at"`
}

// scanResp deliberately omits the internal reason.
type scanResp struct {
	Verdict model.Verdict `json:"verdict"`
	Ticket  ticketPart    `json:"ticket"`
	Log     logPart       `json:"log"`
}

func toScanResp(r presence.Result) scanResp {
	return scanResp{
		Verdict: r.Verdict,
		Ticket: ticketPart{
			ID:     r.Ticket.ID,
			Event:  r.Ticket.EventID,
			Seat:   r.Ticket.SeatID,
			State:  r.Ticket.CurrentState,
			Update: r.Ticket.UpdatedAt,
		},
		Log: logPart{ID: r.Log.ID, Direction: r.Log.Direction, Gate: r.Log.Gate, At: r.Log.CreatedAt},
	}
}

func (h *ScanHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// Scan handles POST /v1/scan.
func (h *ScanHandler) Scan(c echo.Context) error {
	var req presence.ScanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	req.Direction = model.PresenceState(strings.ToUpper(strings.TrimSpace(string(req.Direction))))
	if req.Gate == "" && c.Request().Header.Get(middleware.GateHeader) != "" {
		req.Gate = middleware.GateID(c)
	}
	req.ByUserID = middleware.UserID(c)

	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.Presence.Scan(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toScanResp(res))
}

// ScanByToken handles POST /v1/scan/token.
func (h *ScanHandler) ScanByToken(c echo.Context) error {
	var req presence.TokenScanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Gate == "" && c.Request().Header.Get(middleware.GateHeader) != "" {
		req.Gate = middleware.GateID(c)
	}
	req.ByUserID = middleware.UserID(c)

	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.Presence.ScanByToken(ctx, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toScanResp(res))
}
