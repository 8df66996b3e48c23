package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vekjja/espwifi-broker/internal/model"
)

// frame is one device message waiting to be fanned out.
type frame struct {
	messageType int
	data        []byte
}

// DeviceSession is one device's control connection and the UI sessions
// attached to it. It is owned by the Hub entry for its key.
type DeviceSession struct {
	id     string
	key    model.Key
	conn   *Conn
	secret string
	log    *logrus.Entry
	now    func() time.Time

	connectedAt time.Time
	lastSeen    atomic.Int64
	dropped     atomic.Int64

	mu     sync.RWMutex
	uis    map[*UISession]struct{}
	closed atomic.Bool

	writeErr atomic.Pointer[error]

	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newDeviceSession(id string, key model.Key, conn *Conn, secret string, queueDepth int, log *logrus.Entry, now func() time.Time) *DeviceSession {
	t := now()
	d := &DeviceSession{
		id:          id,
		key:         key,
		conn:        conn,
		secret:      secret,
		log:         log,
		now:         now,
		connectedAt: t,
		uis:         make(map[*UISession]struct{}),
		frames:      make(chan frame, queueDepth),
		done:        make(chan struct{}),
	}
	d.lastSeen.Store(t.UnixNano())
	return d
}

// ID returns the connection id.
func (d *DeviceSession) ID() string { return d.id }

// Key returns the session key.
func (d *DeviceSession) Key() model.Key { return d.key }

// ConnectedAt returns when the session was created.
func (d *DeviceSession) ConnectedAt() time.Time { return d.connectedAt }

// LastSeen returns the time of the last inbound frame or heartbeat.
func (d *DeviceSession) LastSeen() time.Time {
	return time.Unix(0, d.lastSeen.Load())
}

// Dropped returns how many device frames were dropped on a full queue.
func (d *DeviceSession) Dropped() int64 { return d.dropped.Load() }

// Done is closed when the session is torn down.
func (d *DeviceSession) Done() <-chan struct{} { return d.done }

// IsClosed reports whether the session was torn down.
func (d *DeviceSession) IsClosed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// UICount returns the number of attached UI sessions.
func (d *DeviceSession) UICount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.uis)
}

// touch advances lastSeen without ever moving it backwards.
func (d *DeviceSession) touch() {
	t := d.now().UnixNano()
	for {
		prev := d.lastSeen.Load()
		if t <= prev || d.lastSeen.CompareAndSwap(prev, t) {
			return
		}
	}
}

// attach adds ui. first reports an empty-to-non-empty transition, in which
// case the device has been sent ui_connected. ok is false once the session
// is closed.
func (d *DeviceSession) attach(ui *UISession) (first, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return false, false
	}
	if _, exists := d.uis[ui]; exists {
		return false, true
	}
	d.uis[ui] = struct{}{}
	first = len(d.uis) == 1
	if first {
		d.notify(EventUIConnected)
	}
	return first, true
}

// detach removes ui. last reports a non-empty-to-empty transition, in
// which case the device has been sent ui_disconnected.
func (d *DeviceSession) detach(ui *UISession) (last bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.uis[ui]; !exists {
		return false
	}
	delete(d.uis, ui)
	last = len(d.uis) == 0
	if last && !d.closed.Load() {
		d.notify(EventUIDisconnected)
	}
	return last
}

// notify sends a control event to the device. Callers hold d.mu so edge
// notifications reach the device in transition order.
func (d *DeviceSession) notify(eventType string) {
	if d.conn == nil {
		return
	}
	if err := d.conn.WriteEvent(controlEvent{Type: eventType}); err != nil {
		d.log.WithError(err).WithField("event", eventType).Debug("failed to notify device")
	}
}

// enqueue hands a device frame to the dispatch loop without blocking.
func (d *DeviceSession) enqueue(f frame) bool {
	select {
	case d.frames <- f:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// broadcast queues f on every attached UI session. It never blocks; a UI
// whose queue is full misses the frame.
func (d *DeviceSession) broadcast(f frame) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for ui := range d.uis {
		if !ui.send(f) {
			ui.log.WithField("bytes", len(f.data)).Debug("ui queue full, dropped device frame")
		}
	}
}

// heartbeat pings the device and asks every attached UI session to ping
// its own peer, so a stalled UI delays only itself.
func (d *DeviceSession) heartbeat() {
	if err := d.conn.Ping(); err != nil {
		d.log.WithError(err).Debug("device ping failed")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for ui := range d.uis {
		ui.ping()
	}
}

// failWrite tears the session down after a write to the device transport
// failed while relaying a frame from the UI session uiID.
func (d *DeviceSession) failWrite(err error, uiID string) {
	if d.IsClosed() {
		return
	}
	d.writeErr.CompareAndSwap(nil, &err)
	d.log.WithError(err).WithField("ui_conn_id", uiID).Warn("device write failed")
	d.Close(websocket.CloseInternalServerErr, ReasonDeviceWriteFailed)
}

// WriteErr returns the device write error that tore the session down, if any.
func (d *DeviceSession) WriteErr() error {
	if p := d.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// readLoop reads device frames until the transport fails.
func (d *DeviceSession) readLoop(maxFrameBytes int64, pongWait time.Duration) error {
	d.conn.prepareRead(maxFrameBytes, pongWait, d.touch)

	for {
		mt, data, err := d.conn.Read(pongWait)
		if err != nil {
			return err
		}
		d.touch()
		if !d.enqueue(frame{messageType: mt, data: data}) {
			d.log.WithField("bytes", len(data)).Debug("queue full, dropped device frame")
		}
	}
}

// dispatchLoop forwards queued frames to UI sessions and sends heartbeats
// until the session is torn down.
func (d *DeviceSession) dispatchLoop(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case f := <-d.frames:
			d.broadcast(f)
		case <-ticker.C:
			d.heartbeat()
		}
	}
}

// Close tears the session down: the device receives a close frame with
// code and reason and every attached UI session is closed. Only the first
// call has an effect.
//
// The device transport is closed before d.mu is taken: an edge
// notification blocked on a stalled device holds d.mu until that transport
// is closed.
func (d *DeviceSession) Close(code int, reason string) {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		if d.conn != nil {
			d.conn.Close(code, reason)
		}

		d.mu.Lock()
		uis := make([]*UISession, 0, len(d.uis))
		for ui := range d.uis {
			uis = append(uis, ui)
		}
		d.uis = make(map[*UISession]struct{})
		d.mu.Unlock()

		// A UI with a blocked write waits up to the write wait for its close
		// frame; close them together so teardown costs that wait once.
		var wg sync.WaitGroup
		for _, ui := range uis {
			if ui.conn == nil {
				continue
			}
			wg.Add(1)
			go func(ui *UISession) {
				defer wg.Done()
				ui.conn.Close(websocket.CloseTryAgainLater, ReasonDeviceDisconnected)
			}(ui)
		}
		wg.Wait()
	})
}
