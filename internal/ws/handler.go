package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vekjja/espwifi-broker/internal/logger"
	"github.com/vekjja/espwifi-broker/internal/model"
	"github.com/vekjja/espwifi-broker/internal/publicurl"
)

// DeviceRequest is a validated device connection attempt.
type DeviceRequest struct {
	Key      model.Key
	Claim    string
	Announce bool
	Secret   string
}

// UIRequest is a validated UI connection attempt.
type UIRequest struct {
	Key        model.Key
	Credential string
}

// ServeDevice upgrades the request and runs the device session until its
// transport fails or it is replaced. Identity format and the global device
// credential must already be checked. The returned error is non-nil only
// when the upgrade itself failed, in which case a response was written.
func (s *Service) ServeDevice(w http.ResponseWriter, r *http.Request, req DeviceRequest) error {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	log, connID := logger.ForConnection("device", req.Key.DeviceID, req.Key.Tunnel)
	conn := newConn(wsConn, s.cfg.WriteWait)
	d := newDeviceSession(connID, req.Key, conn, req.Secret, s.cfg.QueueDepth, log, s.cfg.Now)

	if prev := s.hub.Put(req.Key, d); prev != nil {
		log.WithField("replaced_conn_id", prev.ID()).Info("device session replaced")
		prev.Close(websocket.ClosePolicyViolation, ReasonReplaced)
		s.record(model.EventDeviceReplaced, req.Key, prev.ID(), "replaced by "+connID)
	}
	log.WithField("secret", req.Secret != "").Info("device connected")
	s.record(model.EventDeviceConnected, req.Key, connID, "")

	if req.Announce {
		base := s.urls.Base(r)
		err := conn.WriteEvent(registeredEvent{
			Type:            EventRegistered,
			DeviceID:        req.Key.DeviceID,
			Tunnel:          req.Key.Tunnel,
			UIURL:           publicurl.UIURL(base, req.Key),
			DeviceURL:       publicurl.DeviceURL(base, req.Key),
			UITokenRequired: s.UITokenRequired(req.Secret),
		})
		if err != nil {
			log.WithError(err).Warn("failed to announce registration")
		}
	}

	if req.Claim != "" && req.Secret != "" {
		e := s.claims.Register(req.Claim, req.Key, req.Secret)
		log.WithField("expires_at", e.ExpiresAt).Info("claim code registered")
		s.record(model.EventClaimRegistered, req.Key, connID, "")
	}

	go d.dispatchLoop(s.cfg.PingPeriod)

	readErr := d.readLoop(s.cfg.MaxFrameBytes, s.cfg.PongWait)
	code, reason := closeCodeFor(readErr)
	d.Close(code, reason)
	s.hub.RemoveIfCurrent(req.Key, d)

	detail := readErr.Error()
	if werr := d.WriteErr(); werr != nil {
		detail = ReasonDeviceWriteFailed + ": " + werr.Error()
	}
	log.WithError(readErr).WithFields(logrus.Fields{
		"dropped_frames": d.Dropped(),
		"cause":          detail,
	}).Info("device disconnected")
	s.record(model.EventDeviceDisconnected, req.Key, connID, detail)
	return nil
}

// ServeUI upgrades the request and attaches it to the live device session
// for the key. A missing device or a wrong credential is reported as a
// close frame after the upgrade so browsers can read the reason.
func (s *Service) ServeUI(w http.ResponseWriter, r *http.Request, req UIRequest) error {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	log, connID := logger.ForConnection("ui", req.Key.DeviceID, req.Key.Tunnel)
	conn := newConn(wsConn, s.cfg.WriteWait)

	d := s.hub.Get(req.Key)
	if d == nil {
		log.Info("ui rejected: device not connected")
		s.record(model.EventUIRejected, req.Key, connID, model.ErrDeviceOffline.Error())
		conn.Close(websocket.CloseTryAgainLater, ReasonDeviceOffline)
		return nil
	}
	if err := s.authorizeUI(d, req.Credential); err != nil {
		log.Info("ui rejected: unauthorized")
		s.record(model.EventUIRejected, req.Key, connID, err.Error())
		conn.Close(websocket.ClosePolicyViolation, ReasonUnauthorized)
		return nil
	}

	ui := newUISession(connID, conn, s.cfg.QueueDepth, log)
	first, ok := d.attach(ui)
	if !ok {
		conn.Close(websocket.CloseTryAgainLater, ReasonDeviceOffline)
		return nil
	}
	log.WithField("first", first).Info("ui attached")
	s.record(model.EventUIAttached, req.Key, connID, "")

	go ui.writeLoop()
	readErr := ui.relayTo(d, s.cfg.MaxFrameBytes, s.cfg.PongWait)

	// Closing the transport first releases a writeLoop blocked on it.
	code, reason := closeCodeFor(readErr)
	conn.Close(code, reason)
	ui.stop()
	last := d.detach(ui)

	log.WithError(readErr).WithFields(logrus.Fields{
		"last":           last,
		"dropped_frames": ui.Dropped(),
	}).Info("ui detached")
	s.record(model.EventUIDetached, req.Key, connID, "")
	return nil
}
