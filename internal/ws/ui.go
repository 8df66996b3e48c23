package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// UISession is a dashboard connection attached to one DeviceSession.
// Device frames reach it through its own bounded queue, so one stalled UI
// never holds up the device or its other UIs.
type UISession struct {
	id   string
	conn *Conn
	log  *logrus.Entry

	out      chan frame
	pings    chan struct{}
	dropped  atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

func newUISession(id string, conn *Conn, queueDepth int, log *logrus.Entry) *UISession {
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	return &UISession{
		id:    id,
		conn:  conn,
		log:   log,
		out:   make(chan frame, queueDepth),
		pings: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// ID returns the connection id.
func (u *UISession) ID() string { return u.id }

// Dropped returns how many device frames this UI missed on a full queue.
func (u *UISession) Dropped() int64 { return u.dropped.Load() }

// send queues f without blocking. When the queue is full f is dropped.
func (u *UISession) send(f frame) bool {
	select {
	case u.out <- f:
		return true
	default:
		u.dropped.Add(1)
		return false
	}
}

// ping asks writeLoop to send a heartbeat ping. A ping already pending
// is not doubled.
func (u *UISession) ping() {
	select {
	case u.pings <- struct{}{}:
	default:
	}
}

// writeLoop writes queued device frames and heartbeat pings until the
// session stops or a write fails. A failed write closes the transport,
// which ends relayTo.
func (u *UISession) writeLoop() {
	for {
		select {
		case <-u.done:
			return
		case f := <-u.out:
			if err := u.conn.WriteFrame(f.messageType, f.data); err != nil {
				u.log.WithError(err).Debug("ui write failed")
				u.conn.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-u.pings:
			if err := u.conn.Ping(); err != nil {
				u.log.WithError(err).Debug("ui ping failed")
			}
		}
	}
}

// stop ends writeLoop. The transport must already be closed so a blocked
// write has returned.
func (u *UISession) stop() {
	u.stopOnce.Do(func() { close(u.done) })
}

// relayTo forwards every frame this UI sends to the device, in order,
// until either transport fails. It returns the error that ended the loop.
func (u *UISession) relayTo(d *DeviceSession, maxFrameBytes int64, pongWait time.Duration) error {
	u.conn.prepareRead(maxFrameBytes, pongWait, func() {})

	for {
		mt, data, err := u.conn.Read(pongWait)
		if err != nil {
			return err
		}
		if err := d.conn.WriteFrame(mt, data); err != nil {
			d.failWrite(err, u.id)
			return err
		}
	}
}
