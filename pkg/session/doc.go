// Package session manages data server sessions and the devices and modules
// reached through them.
//
// A Registry hands out one Session per data server address. A Session
// connects devices, validates their type and builds each device's
// parameter tree once, together with the device's Snapshot Cache:
//
//	reg := session.NewRegistry(dial, session.Config{})
//	s, err := reg.Open(ctx, "localhost", 0, session.OpenOptions{})
//	dev, err := s.ConnectDevice(ctx, "DEV8000", session.ConnectOptions{})
//	on, err := dev.Lookup("sigouts[0].on")
//
// Session-level nodes ("/zi/...") and modules ("/daq/...") are built the
// same way with their own caches.
package session
