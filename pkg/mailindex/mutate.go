package mailindex

import (
	"context"
	"fmt"

	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/internal/telemetry"
)

// Append assigns rec the next UID, writes it to the end of the record
// array, and updates the hash store and live counters. Requires EXCLUSIVE.
func (idx *Index) Append(ctx context.Context, rec Record) (RecordView, error) {
	if idx.lock.state != Exclusive {
		return RecordView{}, fmt.Errorf("mailindex: append requires EXCLUSIVE lock")
	}

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanAppend, idx.mailboxPath(), idx.savedIndexID)
	defer span.End()

	h := idx.region.header()

	rec.UID = h.NextUID
	h.NextUID++

	if err := idx.region.appendRecord(rec); err != nil {
		telemetry.RecordError(ctx, err)
		return RecordView{}, err
	}

	slot := idx.region.recordCount() - 1
	offset := uint64(headerSize) + uint64(slot)*uint64(recordSize)

	if idx.hash != nil {
		if err := idx.hash.Update(ctx, rec.UID, offset); err != nil {
			telemetry.RecordError(ctx, err)
			return RecordView{}, err
		}
	}

	h.MessagesCount++
	applyFlagChanges(&h, rec.UID, 0, rec.MsgFlags)
	idx.region.writeHeader(h)

	seq, err := idx.GetSequence(ctx, idx.viewFor(slot, 0, rec))
	if err != nil {
		return RecordView{}, err
	}

	idx.lastLookup = &lastLookupCursor{slot: slot, seq: seq}

	logger.InfoCtx(ctx, "record appended",
		logger.Mailbox(idx.mailboxPath()),
		logger.UID(rec.UID),
		logger.Seq(seq))

	idx.reportCounts(h)

	return idx.viewFor(slot, seq, rec), nil
}

// Expunge removes the record v refers to: it is cleared to a hole, its
// hash entry is dropped, and (when seq != 0) an expunge event is appended
// to the modify log. Requires EXCLUSIVE.
func (idx *Index) Expunge(ctx context.Context, v RecordView, external bool) error {
	if idx.lock.state != Exclusive {
		return fmt.Errorf("mailindex: expunge requires EXCLUSIVE lock")
	}
	if !v.guard.valid() {
		return ErrStaleView
	}

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanExpunge, idx.mailboxPath(), idx.savedIndexID,
		telemetry.Seq(v.seq), telemetry.UID(v.rec.UID))
	defer span.End()

	rec := idx.region.recordAt(v.index)
	if rec.expunged() {
		return ErrNotFound
	}

	if v.seq != 0 && idx.modifyLog != nil {
		if err := idx.modifyLog.AddExpunge(ctx, v.seq, rec.UID, external); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	if idx.hash != nil {
		if err := idx.hash.Update(ctx, rec.UID, 0); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	expungedUID, expungedFlags := rec.UID, rec.MsgFlags
	rec.UID = 0
	rec.MsgFlags = 0
	idx.region.writeRecordAt(v.index, rec)

	if idx.lastLookup != nil {
		switch {
		case idx.lastLookup.seq == v.seq:
			idx.lastLookup = nil
		case idx.lastLookup.seq > v.seq:
			idx.lastLookup.seq--
		}
	}

	h := idx.region.header()
	p := slotToHolePosition(v.index)
	updateHolesOnExpunge(&h, p)

	h.MessagesCount--
	applyFlagChanges(&h, expungedUID, expungedFlags, 0)

	if h.MessagesCount == 0 {
		if err := idx.region.file.Truncate(headerSize); err != nil {
			return fmt.Errorf("mailindex: truncate empty index: %w", err)
		}
		idx.region.markDirty()
		resetHoles(&h)
		if idx.data != nil {
			if err := idx.data.Reset(ctx); err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}
		}
	} else if idx.data != nil {
		if err := idx.data.AddDeletedSpace(ctx, rec.DataSize); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	idx.region.writeHeader(h)

	logger.InfoCtx(ctx, "record expunged",
		logger.Mailbox(idx.mailboxPath()),
		logger.UID(expungedUID),
		logger.Seq(v.seq))

	idx.reportCounts(h)

	return nil
}

// UpdateFlags applies newFlags to the record v refers to, updating
// counters and appending a flag-change event to the modify log. A no-op
// if newFlags equals the record's current flags. Requires EXCLUSIVE.
func (idx *Index) UpdateFlags(ctx context.Context, v RecordView, newFlags uint32, external bool) error {
	if idx.lock.state != Exclusive {
		return fmt.Errorf("mailindex: update_flags requires EXCLUSIVE lock")
	}
	if !v.guard.valid() {
		return ErrStaleView
	}

	rec := idx.region.recordAt(v.index)
	if rec.expunged() {
		return ErrNotFound
	}
	if rec.MsgFlags == newFlags {
		return nil
	}

	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanUpdateFlags, idx.mailboxPath(), idx.savedIndexID,
		telemetry.Seq(v.seq), telemetry.UID(rec.UID))
	defer span.End()

	h := idx.region.header()
	applyFlagChanges(&h, rec.UID, rec.MsgFlags, newFlags)
	idx.region.writeHeader(h)

	rec.MsgFlags = newFlags
	idx.region.writeRecordAt(v.index, rec)

	if idx.modifyLog != nil {
		if err := idx.modifyLog.AddFlags(ctx, v.seq, rec.UID, external); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	idx.reportCounts(h)

	return nil
}
