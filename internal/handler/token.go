package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-presence/internal/token"
)

// TokenIssuer is the token service as seen by the HTTP layer.
type TokenIssuer interface {
	Issue(ctx context.Context, ticketID, fingerprint string) (token.Issued, error)
	KeySet(ctx context.Context) ([]token.PublicKey, error)
}

type TokenHandler struct {
	Tokens TokenIssuer
}

type issueReq struct {
	TicketID          string `json:"ticket_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type issueResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"`
}

// Issue handles POST /v1/tokens.
func (h *TokenHandler) Issue(c echo.Context) error {
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if req.TicketID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()
	out, err := h.Tokens.Issue(ctx, req.TicketID, strings.TrimSpace(req.DeviceFingerprint))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, issueResp{Token: out.Token, ExpiresAt: out.ExpiresAt, Nonce: out.Nonce})
}

// Keys handles GET /v1/tokens/keys.
func (h *TokenHandler) Keys(c echo.Context) error {
	set, err := h.Tokens.KeySet(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, token.ToJWKS(set))
}
