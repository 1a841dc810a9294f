// Package snapshot batches the parameter reads of a snapshot into one bulk
// read per device.
//
// A Cache belongs to one device, module or session connection and is
// attached to every node of the tree built for it. The outermost snapshot
// scope fetches everything below its path with a single GetBulk; nested
// scopes reuse that batch. Parameters found in the batch are served from
// it and stamped with the batch start time; the rest fall back to an
// individual get. Leaving the outermost scope drops the batch, so values
// never leak into later reads.
//
//	cache := snapshot.New(conn, snapshot.Config{Prefix: "dev1234"})
//	root := model.NewContainer("dev1234", "", cache)
//	// ... build the tree ...
//	snap, err := root.Snapshot(ctx, true) // one GetBulk("/dev1234/*")
package snapshot
