// Package httpapi serves the parameter trees of a session over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /devices
//	GET  /devices/{serial}/tree?path=&values=&depth=
//	GET  /devices/{serial}/snapshot?update=&path=
//	GET  /devices/{serial}/nodes/*
//	PUT  /devices/{serial}/nodes/*   body {"value": ...}
//
// Node paths below /nodes/ are device-relative and accept both slash and
// attribute syntax ("sigouts/0/on", "sigouts[0].on"). Every device route
// is rate limited; /health and /metrics are not.
package httpapi
