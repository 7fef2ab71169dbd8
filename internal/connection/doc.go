// Package connection owns the WebSocket to a WSX channel.
//
// A Client wraps one gorilla/websocket connection with a read loop, ping
// keepalive, stale detection and a rate-limited writer. A Manager keeps a
// Client open, decodes incoming frames into envelopes and redials with
// exponential backoff after the server closes the socket. Closes initiated
// by the client itself are never redialed.
package connection
