package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
	"github.com/vekjja/espwifi-broker/internal/repository"
	"github.com/vekjja/espwifi-broker/internal/ws"
)

// EventLister reads recent journal events.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]model.Event, error)
}

// DeviceHandler serves discovery and diagnostics endpoints.
type DeviceHandler struct {
	svc    *ws.Service
	events EventLister
}

// NewDeviceHandler creates a new DeviceHandler. events may be nil when no
// journal store is configured.
func NewDeviceHandler(svc *ws.Service, events EventLister) *DeviceHandler {
	return &DeviceHandler{svc: svc, events: events}
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	DeviceID string `json:"device_id"`
	Tunnel   string `json:"tunnel"`
}

// RegisterResponse describes where a device and its UIs should connect.
type RegisterResponse struct {
	OK        bool   `json:"ok"`
	DeviceID  string `json:"device_id"`
	Tunnel    string `json:"tunnel"`
	UIURL     string `json:"ui_ws_url"`
	DeviceURL string `json:"device_ws_url"`
	Connected bool   `json:"connected"`
}

// RegisterRoutes registers the discovery routes.
func (h *DeviceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.GET("/devices", h.List)
	rg.GET("/events", h.Events)
}

// Register handles POST /api/register. It computes URLs only and never
// creates a session.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, "Invalid request body: "+err.Error())
		return
	}
	key, err := model.NewKey(req.DeviceID, req.Tunnel)
	if err != nil {
		sendError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}

	base := h.svc.URLs().Base(c.Request)
	c.JSON(http.StatusOK, RegisterResponse{
		OK:        true,
		DeviceID:  key.DeviceID,
		Tunnel:    key.Tunnel,
		UIURL:     publicurl.UIURL(base, key),
		DeviceURL: publicurl.DeviceURL(base, key),
		Connected: h.svc.Hub().Get(key) != nil,
	})
}

// List handles GET /api/devices.
func (h *DeviceHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Hub().Snapshot(h.svc.URLs().Base(c.Request)))
}

// Events handles GET /api/events.
func (h *DeviceHandler) Events(c *gin.Context) {
	if h.events == nil {
		sendError(c, http.StatusNotFound, CodeNotFound, "Event journal is not enabled")
		return
	}

	limit := repository.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > repository.MaxRecentLimit {
			sendError(c, http.StatusBadRequest, CodeValidation,
				"limit must be an integer between 1 and "+strconv.Itoa(repository.MaxRecentLimit))
			return
		}
		limit = n
	}

	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, CodeInternal, "Failed to list events: "+err.Error())
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, events)
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
