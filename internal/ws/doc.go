// Package ws relays opaque WebSocket frames between one device session and
// any number of UI sessions attached to it.
//
// The package implements:
//   - Hub: the registry from (device id, tunnel) to the single live DeviceSession
//   - DeviceSession: one device control connection and its attached UI sessions
//   - UISession: one dashboard connection attached to a DeviceSession
//   - Service: upgrade handling, credential gating, claim registration and teardown
//
// Every transport has exactly one reader goroutine and serializes writes
// through its own lock. Device frames pass through a small bounded queue
// to the session's dispatch loop, which hands each frame to a bounded
// queue per UI session drained by that UI's writer goroutine. A full queue
// drops the newest frame, so neither the device reader nor the dispatch
// loop ever waits on a slow UI.
//
// Teardown closes transports before taking session locks. Closing a
// transport is what releases a writer blocked on a stalled peer.
//
// Close codes seen by clients:
//   - 1008 policy violation: bad credential, or replaced by a newer device connection
//   - 1013 try again later: no device connected for the key
//   - 1009 message too big: inbound frame over the size ceiling
//   - 1011 internal error: a write to that peer failed
package ws
