package mailindex

import (
	"context"
	"fmt"
)

// compress removes holes from the record array: live records are
// rewritten contiguously from the start of the file, the file is
// truncated to drop the trailing slack, hole tracking is cleared, and the
// hash store is rebuilt since every surviving record's byte offset moved.
// Requires EXCLUSIVE.
func (idx *Index) compress(ctx context.Context) error {
	if idx.lock.state != Exclusive && idx.lock.state != RebuildingPromoted {
		return fmt.Errorf("mailindex: compress requires EXCLUSIVE lock")
	}

	count := idx.region.recordCount()

	write := uint32(0)
	for read := uint32(0); read < count; read++ {
		rec := idx.region.recordAt(read)
		if rec.expunged() {
			continue
		}
		if write != read {
			idx.region.writeRecordAt(write, rec)
		}
		write++
	}

	newLength := int64(headerSize) + int64(write)*int64(recordSize)
	if err := idx.region.file.Truncate(newLength); err != nil {
		return fmt.Errorf("mailindex: truncate during compress: %w", err)
	}
	idx.region.markDirty()
	if err := idx.region.refresh(); err != nil {
		return err
	}

	h := idx.region.header()
	resetHoles(&h)
	h.Flags &^= FlagCompress
	idx.region.writeHeader(h)

	idx.lastLookup = nil

	if idx.hash != nil {
		if err := idx.hash.Rebuild(ctx, idx); err != nil {
			return err
		}
	}

	return nil
}
