// Package srptable implements a separate-chaining hash table whose bucket and
// chain links are self-relative references, so a table image can be mapped at
// any base address and used without fix-up.
//
// # Image Layout
//
//	+0   tableSize      u32  bucket count, prime; also the node capacity
//	+4   numberOfNodes  u32  live entries
//	+8   entrySize      u32  caller payload bytes per node
//	+12  nodeSize       u32  align8(entrySize + 4)
//	+16  flags          u32  node pool flags
//	+20  nodes          Ref  bucket array
//	+24  nodePool       Ref  arena.Slab holding the nodes
//	+28  reserved       u32
//	+32  buckets        tableSize × Ref, padded to 8
//	...  node pool      arena.Slab of tableSize nodes
//
// A node is the caller's entry followed by the chain-next Ref in its last four
// bytes. Hashing and equality come from a Strategy, so one table layout backs
// every directory kind.
//
// # Usage
//
//	t, err := srptable.NewInRegion(buf, off, size, 16, strategy)
//	entry, inserted, err := t.Add(key)
//	if inserted {
//	    // fill t.EntryBytes(entry)
//	}
package srptable
