// Package builder mirrors a device nodetree into a parameter tree.
//
// The builder walks a nodetree.Tree level by level:
//
//	enumerated level, all children terminal   -> flat parameters "{key}{i}"
//	enumerated level, children are branches   -> sealed IndexedList of "{key}{i}" containers
//	named terminal                            -> parameter "{key}"
//	named branch                              -> container "{key}", recursed into
//
// Each parameter reads and writes its node through the connection, gated by
// the node's Read and Write properties. A node that cannot be attached is
// logged and skipped; the rest of the tree is still built.
package builder
