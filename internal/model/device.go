package model

import "time"

// DeviceSnapshot is the diagnostic view of one live device session.
type DeviceSnapshot struct {
	DeviceID    string    `json:"device_id"`
	Tunnel      string    `json:"tunnel"`
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
	UIClients   int       `json:"ui_clients"`
	UIURL       string    `json:"ui_ws_url"`
	DeviceURL   string    `json:"device_ws_url"`
}

// EventType names a lifecycle event recorded in the journal.
type EventType string

const (
	EventDeviceConnected    EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventDeviceReplaced     EventType = "device_replaced"
	EventUIAttached         EventType = "ui_attached"
	EventUIDetached         EventType = "ui_detached"
	EventUIRejected         EventType = "ui_rejected"
	EventClaimRegistered    EventType = "claim_registered"
	EventClaimRedeemed      EventType = "claim_redeemed"
	EventClaimRejected      EventType = "claim_rejected"
)

// Event is a lifecycle record. It never carries credentials.
type Event struct {
	ID       int64     `json:"id,omitempty"`
	Type     EventType `json:"type"`
	DeviceID string    `json:"device_id,omitempty"`
	Tunnel   string    `json:"tunnel,omitempty"`
	ConnID   string    `json:"conn_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}
