package ws

// Event types sent to devices.
const (
	EventRegistered     = "registered"
	EventUIConnected    = "ui_connected"
	EventUIDisconnected = "ui_disconnected"
)

// Close reasons.
const (
	ReasonReplaced           = "replaced by new device connection"
	ReasonUnauthorized       = "unauthorized"
	ReasonDeviceOffline      = "device not connected"
	ReasonDeviceDisconnected = "device disconnected"
	ReasonShutdown           = "server shutting down"
	ReasonDeviceWriteFailed  = "device write failed"
)

// controlEvent is a bare {"type": ...} notification.
type controlEvent struct {
	Type string `json:"type"`
}

// registeredEvent is sent to a device that connected with announce=1.
type registeredEvent struct {
	Type            string `json:"type"`
	DeviceID        string `json:"device_id"`
	Tunnel          string `json:"tunnel"`
	UIURL           string `json:"ui_ws_url"`
	DeviceURL       string `json:"device_ws_url"`
	UITokenRequired bool   `json:"ui_token_required"`
}
