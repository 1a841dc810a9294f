// Package connection defines the data-server connection a device tree is
// built on, plus the pieces that keep one alive.
//
// This package provides:
//   - DeviceConnection, the get/set/list/bulk-get surface of a data server
//   - optional capabilities (subscriptions, polling, sync, device connect, modules)
//   - an in-memory Simulator loaded from nodetree fixtures
//   - a reconnect Manager driven by an exponential backoff policy
//
// # Bulk Reads
//
// GetBulk returns one entry per matched node. Two value shapes exist in the
// wild and consumers must accept both:
//
//	{"timestamp": ts, "value": [v, ...]}   current data servers
//	[v, ...]                               older data servers
//
// # Reconnection Strategy
//
// After a lost connection the Manager re-dials with exponential backoff:
//
//  1. Initial delay: 500 milliseconds
//  2. Exponential increase by a factor of 2
//  3. Maximum delay: 30 seconds
//  4. Randomization of +/-25% per delay
//  5. Reset on successful reconnection
package connection
