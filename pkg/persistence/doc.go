// Package persistence keeps zictl client state between runs.
//
// The state file remembers data servers the client has talked to or found
// through discovery, together with the devices last seen behind each one.
// Commands fall back to the most recently used server when no address is
// given.
package persistence
