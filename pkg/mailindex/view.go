package mailindex

// Guard ties a view to the lock generation it was minted under. Any method
// on RecordView/HeaderView checks the guard before touching the mapping,
// since a concurrent lock release and reacquire can remap (or truncate)
// the underlying memory out from under a stale pointer — something the
// raw-pointer original left to caller discipline.
type Guard struct {
	idx        *Index
	generation uint64
}

func (g Guard) valid() bool {
	return g.idx != nil && g.idx.lock.generation == g.generation
}

func newGuard(idx *Index) Guard {
	return Guard{idx: idx, generation: idx.lock.generation}
}

// RecordView is a snapshot of one record slot plus the generation it was
// read under. Index returns RecordViews from its lookup methods instead of
// *Record so a caller holding one across a lock transition gets
// ErrStaleView instead of reading garbage or another message's data.
type RecordView struct {
	guard Guard
	index uint32
	seq   uint32
	rec   Record
}

// Get returns the record this view refers to, or ErrStaleView if the
// handle's lock generation has advanced since the view was created.
func (v RecordView) Get() (Record, error) {
	if !v.guard.valid() {
		return Record{}, ErrStaleView
	}
	return v.rec, nil
}

// Seq returns the sequence number this view was resolved at.
func (v RecordView) Seq() uint32 { return v.seq }

// Refresh re-reads the record at this view's slot under the current
// generation, returning a fresh view. Used after an operation that may
// have moved record contents without moving the slot (e.g. an in-place
// flag update).
func (v RecordView) Refresh() (RecordView, error) {
	if v.guard.idx == nil {
		return RecordView{}, ErrStaleView
	}
	idx := v.guard.idx
	if !idx.lock.validReadState() {
		return RecordView{}, ErrClosed
	}
	rec := idx.region.recordAt(v.index)
	return RecordView{guard: newGuard(idx), index: v.index, seq: v.seq, rec: rec}, nil
}

// HeaderView is a snapshot of the header plus the generation it was read
// under.
type HeaderView struct {
	guard Guard
	hdr   Header
}

// Get returns the header this view refers to, or ErrStaleView if stale.
func (v HeaderView) Get() (Header, error) {
	if !v.guard.valid() {
		return Header{}, ErrStaleView
	}
	return v.hdr, nil
}
