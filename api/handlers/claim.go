package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vekjja/espwifi-broker/internal/logger"
	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
	"github.com/vekjja/espwifi-broker/internal/ws"
)

// ClaimRejectedMessage is the plain body of a failed redemption. It does
// not say whether the code was unknown, expired or for another tunnel.
const ClaimRejectedMessage = "invalid or expired claim code"

// ClaimHandler handles claim code redemption.
type ClaimHandler struct {
	svc *ws.Service
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(svc *ws.Service) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

// ClaimRequest is the body of POST /api/claim.
type ClaimRequest struct {
	Code   string `json:"code"`
	Tunnel string `json:"tunnel"`
}

// ClaimResponse is returned on a successful redemption.
type ClaimResponse struct {
	OK       bool   `json:"ok"`
	Code     string `json:"code"`
	DeviceID string `json:"device_id"`
	Tunnel   string `json:"tunnel"`
	UIURL    string `json:"ui_ws_url"`
	Token    string `json:"token"`
	// UIURLWithToken is UIURL with the token embedded as a query parameter.
	UIURLWithToken string `json:"ui_ws_token"`
}

// RegisterRoutes registers the claim routes.
func (h *ClaimHandler) RegisterRoutes(rg *gin.RouterGroup) {
	claim := rg.Group("/claim", NoStore())
	claim.POST("", h.Redeem)
	claim.OPTIONS("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

// Redeem handles POST /api/claim.
func (h *ClaimHandler) Redeem(c *gin.Context) {
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}

	code, err := model.NormalizeClaim(req.Code)
	if err == nil && code == "" {
		err = model.ErrInvalidClaim
	}
	if err != nil {
		c.String(http.StatusNotFound, ClaimRejectedMessage)
		return
	}

	entry, err := h.svc.RedeemClaim(code, req.Tunnel)
	if err != nil {
		if model.IsClaimRejection(err) {
			logger.FromContext(c.Request.Context()).WithError(err).Info("claim rejected")
			c.String(http.StatusNotFound, ClaimRejectedMessage)
			return
		}
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to redeem claim: "+err.Error())
		return
	}

	key := entry.Key()
	uiURL := publicurl.UIURL(h.svc.URLs().Base(c.Request), key)
	withToken := uiURL
	if entry.Secret != "" {
		withToken = publicurl.WithToken(uiURL, entry.Secret)
	}

	c.JSON(http.StatusOK, ClaimResponse{
		OK:             true,
		Code:           code,
		DeviceID:       entry.DeviceID,
		Tunnel:         entry.Tunnel,
		UIURL:          uiURL,
		Token:          entry.Secret,
		UIURLWithToken: withToken,
	})
}
