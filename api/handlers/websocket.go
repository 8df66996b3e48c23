package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/ws"
)

// WebSocketHandler handles device and UI upgrade requests.
type WebSocketHandler struct {
	svc *ws.Service
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(svc *ws.Service) *WebSocketHandler {
	return &WebSocketHandler{svc: svc}
}

// RegisterRoutes registers the upgrade routes.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws/device/:deviceID", h.Device)
	r.GET("/ws/ui/:deviceID", h.UI)
}

// Device handles GET /ws/device/:deviceID.
func (h *WebSocketHandler) Device(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}
	code, err := model.NormalizeClaim(c.Query("claim"))
	if err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	bearer := bearerToken(c.Request)
	global := bearer
	if global == "" {
		global = c.Query("device_auth")
	}
	if err := h.svc.AuthorizeDevice(global); err != nil {
		sendError(c, http.StatusUnauthorized, CodeUnauthorized, "device credential required")
		return
	}

	// With a global credential in the bearer slot, the device secret can
	// only travel as a query parameter.
	secret := c.Query("token")
	if secret == "" && !h.svc.DeviceAuthRequired() {
		secret = bearer
	}

	err = h.svc.ServeDevice(c.Writer, c.Request, ws.DeviceRequest{
		Key:      key,
		Claim:    code,
		Announce: c.Query("announce") == "1",
		Secret:   secret,
	})
	if err != nil {
		_ = c.Error(err)
	}
}

// UI handles GET /ws/ui/:deviceID.
func (h *WebSocketHandler) UI(c *gin.Context) {
	key, ok := bindKey(c)
	if !ok {
		return
	}

	credential := bearerToken(c.Request)
	if credential == "" {
		credential = c.Query("token")
	}

	err := h.svc.ServeUI(c.Writer, c.Request, ws.UIRequest{
		Key:        key,
		Credential: credential,
	})
	if err != nil {
		_ = c.Error(err)
	}
}

// bindKey validates the device id and tunnel of an upgrade request and
// writes a 400 when they are malformed.
func bindKey(c *gin.Context) (model.Key, bool) {
	tunnel := c.Query("tunnel")
	if tunnel == "" {
		tunnel = c.Query("channel")
	}
	key, err := model.NewKey(c.Param("deviceID"), tunnel)
	if err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return model.Key{}, false
	}
	return key, true
}

// bearerToken returns the credential of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
