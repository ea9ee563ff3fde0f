// Package interndir is a two-tier intern directory for byte strings.
//
// Every byte string a managed runtime interns gets one canonical copy. The
// local tier is a process-private, capacity-bounded LRU keyed by owner and
// bytes. The shared tier is a relocatable hash table living in a memory
// region that several processes map, each at its own base address; all of
// its links are self-relative, so attaching needs no fix-up.
//
// # Quick Start
//
// One process formats a region, the others attach to it:
//
//	region := &interndir.Region{Addr: base, Data: mapped}
//	dir, _ := interndir.NewSharedDirectory(region, 0, dirSize)
//	heap, _ := interndir.NewPayloadHeap(region, dirSize, heapSize)
//
//	c, _ := interndir.New(interndir.Config{LocalCapacity: 4096, Shared: dir})
//
//	p, _ := heap.Put([]byte("java/lang/Object"))
//	e, _ := c.Intern(p, loader, true)
//	e = c.MarkUsed(e)
//
//	hit, ok := c.Lookup(interndir.Query{
//	    Data:  []byte("java/lang/Object"),
//	    Owner: loader,
//	    Reach: interndir.FullyReachable,
//	})
//
// # Promotion
//
// Each MarkUsed adds 2 + len(data), rounded up to even, to an entry's
// weight. A local entry whose payload lives in the shared region moves to the
// shared tier once its weight exceeds the promotion threshold or the weight
// of the shared tail. Shared entries never move back.
//
// # Concurrency
//
// Nothing here locks. Readers in many processes may walk a shared directory
// at once; any mutation needs the host's exclusivity. The local tier is
// guarded by the host as well.
package interndir
