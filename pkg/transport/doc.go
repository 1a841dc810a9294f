// Package transport carries data-server calls over TCP.
//
// A Server exposes any connection.DeviceConnection (usually the simulator)
// to remote clients. A Client implements connection.DeviceConnection on top
// of it, so a parameter tree built against a Client behaves exactly like one
// built against an in-process connection.
//
//	┌────────────────────────────────┐
//	│   wire.Request / wire.Response │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│              TCP               │
//	└────────────────────────────────┘
//
// The first request on every connection is a hello exchanging LabOne
// versions. Requests carry a message ID and responses may arrive in any
// order. Dialing retries with exponential backoff, and a client can re-dial
// on its own after the connection drops.
package transport
