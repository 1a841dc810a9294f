// Package model implements the parameter tree a device's nodetree is
// mirrored into.
//
// # Tree Structure
//
// The tree is a tagged variant with three kinds of node:
//
//	Container     named grouping of parameters, containers and lists
//	IndexedList   ordered, sealable list of containers ("sigouts0", "sigouts1")
//	Parameter     leaf wrapping one device node with optional get/set
//
// A device tree looks like:
//
//	dev1234 (Container)
//	├── sigouts (IndexedList)
//	│   ├── sigouts0 (Container)
//	│   │   ├── on (Parameter)
//	│   │   ├── enables0 (Parameter)
//	│   │   └── enables1 (Parameter)
//	│   └── sigouts1 (Container)
//	└── system (Container)
//	    └── fwrevision (Parameter)
//
// # Access
//
// A parameter is readable only when it was built with a getter and writable
// only when it was built with a setter. Calling Get or Set on a parameter
// without the capability returns ErrNotReadable or ErrNotWritable.
//
// # Snapshots
//
// Containers, lists and parameters produce Snapshot values. When a Batcher is
// attached, a snapshot with update=true opens a batch scope so all parameter
// reads below it are served from one bulk read.
package model
