// Package router delivers unsolicited WSX messages to handlers off the
// socket's read loop.
//
// The read loop enqueues into a GrowableBuffer that never drops; a single
// Dispatcher goroutine drains it and fans every delivery out to the
// registered handlers in order.
package router
