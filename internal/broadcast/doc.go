// Package broadcast owns the live websocket sessions.
//
// The Registry admits sessions up to a fixed capacity and removes them exactly
// once. The Broadcaster encodes a message once and fans it out to a point-in-time
// copy of the live set; sessions whose send fails are removed after the pass.
// Each Channel serializes its own writes, so the registry lock is never held
// across network I/O.
package broadcast
