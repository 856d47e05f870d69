// Package void groups the presence relay: shared objects, the room
// coordinator, its wire protocol, durable storage and the HTTP transport.
package void
