// Package nodetree describes a device's node metadata and restructures it.
//
// A data server reports its nodes as a flat mapping from slash-delimited path
// to metadata:
//
//	/dev1234/sigouts/0/on -> {Node, Description, Properties, Type, Unit}
//
// This package parses that metadata into Descriptor values, normalizes paths
// into (name | index) segments and groups descriptors by shared prefix into a
// nested Tree:
//
//	sigouts
//	├── 0
//	│   └── on   (Descriptor)
//	└── 1
//	    └── on   (Descriptor)
//
// At every level of a Tree the keys are either all indices or all names; the
// builder package relies on that to decide between lists and flat parameters.
//
// # Path Normalization
//
// String segments are case-folded, purely decimal segments become indices and
// a trailing digit run is split off into its own index segment ("in0" becomes
// "in", 0). A short list of literal names that merely end in a digit
// ("tamp0", "tamp1") is exempt.
package nodetree
