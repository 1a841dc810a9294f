// Package archive stores device snapshots in a bbolt database.
//
// Each device has its own bucket named "snapshots_<serial>". Keys are the
// big-endian UnixNano of the snapshot time, so cursor order is time order.
// Values are CBOR-encoded Records.
package archive
