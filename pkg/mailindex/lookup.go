package mailindex

import (
	"context"

	"github.com/marmos91/mailidx/internal/telemetry"
)

// lastLookupCursor remembers the last resolved (record slot, sequence)
// pair so repeated sequential access - the common case for a client
// paging through a mailbox - doesn't re-walk from the start of the hole
// run every time.
type lastLookupCursor struct {
	slot uint32
	seq  uint32
}

// Lookup resolves a sequence number to a RecordView, implementing the
// mmap manager's lookup algorithm: fast-path a repeated cursor hit, fall
// back to O(1) arithmetic before the first hole, and otherwise walk
// forward from the cursor or from the end of the tracked hole run.
func (idx *Index) Lookup(ctx context.Context, seq uint32) (RecordView, error) {
	if err := idx.requireReadable(); err != nil {
		return RecordView{}, err
	}

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanLookup, idx.mailboxPath(), idx.savedIndexID, telemetry.Seq(seq))
	defer span.End()

	if idx.lastLookup != nil && idx.lastLookup.seq == seq {
		rec := idx.region.recordAt(idx.lastLookup.slot)
		if rec.UID != 0 {
			return idx.viewFor(idx.lastLookup.slot, seq, rec), nil
		}
	}

	count := idx.region.recordCount()
	if seq == 0 || seq > count {
		return RecordView{}, ErrNotFound
	}
	naiveSlot := seq - 1

	h := idx.region.header()

	if h.FirstHolePosition == 0 || slotToHolePosition(naiveSlot) < h.FirstHolePosition {
		rec := idx.region.recordAt(naiveSlot)
		if rec.UID == 0 {
			h.Flags |= FlagRebuild
			idx.region.writeHeader(h)
			telemetry.RecordError(ctx, ErrCorrupted)
			return RecordView{}, ErrCorrupted
		}
		idx.lastLookup = &lastLookupCursor{slot: naiveSlot, seq: seq}
		return idx.viewFor(naiveSlot, seq, rec), nil
	}

	var startSlot, startSeq uint32
	if idx.lastLookup != nil && seq > idx.lastLookup.seq {
		startSlot = idx.lastLookup.slot + 1
		startSeq = idx.lastLookup.seq
	} else {
		startSlot = holePositionToSlot(h.FirstHolePosition) + h.FirstHoleRecords
		startSeq = holePositionToSlot(h.FirstHolePosition)
	}

	for slot := startSlot; slot < count; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.UID == 0 {
			continue
		}
		startSeq++
		if startSeq == seq {
			idx.lastLookup = &lastLookupCursor{slot: slot, seq: seq}
			return idx.viewFor(slot, seq, rec), nil
		}
	}

	return RecordView{}, ErrNotFound
}

// Next returns the first live record after the one v refers to, or
// ErrNotFound at end of file.
func (idx *Index) Next(ctx context.Context, v RecordView) (RecordView, error) {
	if err := idx.requireReadable(); err != nil {
		return RecordView{}, err
	}

	_, span := telemetry.StartIndexSpan(ctx, telemetry.SpanNextRecord, idx.mailboxPath(), idx.savedIndexID)
	defer span.End()

	if !v.guard.valid() {
		return RecordView{}, ErrStaleView
	}

	count := idx.region.recordCount()
	seq := v.seq

	for slot := v.index + 1; slot < count; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.UID == 0 {
			continue
		}
		seq++
		idx.lastLookup = &lastLookupCursor{slot: slot, seq: seq}
		return idx.viewFor(slot, seq, rec), nil
	}

	return RecordView{}, ErrNotFound
}

// GetSequence resolves a RecordView back to its sequence number.
func (idx *Index) GetSequence(ctx context.Context, v RecordView) (uint32, error) {
	if err := idx.requireReadable(); err != nil {
		return 0, err
	}

	_, span := telemetry.StartIndexSpan(ctx, telemetry.SpanGetSequence, idx.mailboxPath(), idx.savedIndexID)
	defer span.End()

	if !v.guard.valid() {
		return 0, ErrStaleView
	}

	if idx.lastLookup != nil && idx.lastLookup.slot == v.index {
		return idx.lastLookup.seq, nil
	}

	h := idx.region.header()
	pos := slotToHolePosition(v.index)

	if h.FirstHolePosition == 0 || pos < h.FirstHolePosition {
		return v.index + 1, nil
	}

	startSlot := holePositionToSlot(h.FirstHolePosition) + h.FirstHoleRecords
	seq := holePositionToSlot(h.FirstHolePosition)
	for slot := startSlot; slot <= v.index; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.UID == 0 {
			continue
		}
		seq++
	}

	return seq, nil
}

// LookupUIDRange returns the first live record whose UID falls in
// [first, last], probing the hash collaborator for a short prefix of the
// range before falling back to a linear scan.
func (idx *Index) LookupUIDRange(ctx context.Context, first, last uint32) (RecordView, error) {
	if err := idx.requireReadable(); err != nil {
		return RecordView{}, err
	}

	_, span := telemetry.StartIndexSpan(ctx, telemetry.SpanLookupUIDRange, idx.mailboxPath(), idx.savedIndexID,
		telemetry.UIDRange(first, last)...)
	defer span.End()

	if idx.hash != nil {
		probeCount := last - first + 1
		if probeCount > 5 {
			probeCount = 5
		}
		for uid := first; uid < first+probeCount; uid++ {
			off, ok, err := idx.hash.Lookup(ctx, uid)
			if err != nil {
				return RecordView{}, err
			}
			if !ok {
				continue
			}
			slot := uint32((off - headerSize) / recordSize)
			rec := idx.region.recordAt(slot)
			if rec.UID == uid {
				seq, err := idx.GetSequence(ctx, idx.viewFor(slot, 0, rec))
				if err != nil {
					return RecordView{}, err
				}
				return idx.viewFor(slot, seq, rec), nil
			}
		}
	}

	count := idx.region.recordCount()
	seq := uint32(0)
	for slot := uint32(0); slot < count; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.UID == 0 {
			continue
		}
		seq++
		if rec.UID > last {
			break
		}
		if rec.UID >= first {
			return idx.viewFor(slot, seq, rec), nil
		}
	}

	return RecordView{}, ErrNotFound
}

// viewFor constructs a RecordView under the handle's current generation.
func (idx *Index) viewFor(slot, seq uint32, rec Record) RecordView {
	return RecordView{guard: newGuard(idx), index: slot, seq: seq, rec: rec}
}
