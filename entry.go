package interndir

// localKey is the local tier key: the owner is part of an entry's identity.
type localKey struct {
	owner Owner
	data  string
}

type localEntry struct {
	key     localKey
	payload Payload
	weight  uint16
	durable bool
	live    bool
}

// Entry is a handle to an interned byte string in either tier. The zero
// Entry is invalid. Handles are invalidated by any operation that removes
// or moves the entry; MarkUsed returns the handle to use afterwards.
type Entry struct {
	local *localEntry
	dir   *SharedDirectory
	node  int
}

// Valid reports whether the handle still refers to an entry.
func (e Entry) Valid() bool {
	switch {
	case e.local != nil:
		return e.local.live
	case e.dir != nil:
		return e.dir.live(e.node)
	default:
		return false
	}
}

// Tier returns the tier holding the entry.
func (e Entry) Tier() Tier {
	if e.dir != nil {
		return TierShared
	}
	return TierLocal
}

// Payload returns the canonical copy.
func (e Entry) Payload() Payload {
	switch {
	case e.local != nil:
		return e.local.payload
	case e.dir != nil:
		return e.dir.payload(e.node)
	default:
		return Payload{}
	}
}

// Data returns the interned bytes.
func (e Entry) Data() []byte {
	return e.Payload().Data
}

// Owner returns the owner a local entry was interned under. Shared entries
// have no owner.
func (e Entry) Owner() Owner {
	if e.local != nil {
		return e.local.key.owner
	}
	return 0
}

// Weight returns the accumulated usage weight.
func (e Entry) Weight() uint16 {
	switch {
	case e.local != nil:
		return e.local.weight
	case e.dir != nil:
		return e.dir.weight(e.node)
	default:
		return 0
	}
}

// Durable reports whether the payload lives in the shared region.
func (e Entry) Durable() bool {
	switch {
	case e.local != nil:
		return e.local.durable
	case e.dir != nil:
		return e.dir.flags(e.node)&flagDurable != 0
	default:
		return false
	}
}
