package mailindex

import (
	"context"
	"fmt"

	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/internal/telemetry"
)

// Recovery step names, used for logging, tracing, and metrics.
const (
	stepRebuild      = "rebuild"
	stepFsck         = "fsck"
	stepCompress     = "compress"
	stepRebuildHash  = "rebuild_hash"
	stepCacheFields  = "cache_fields"
	stepCompressData = "compress_data"
)

// runRecoveryDriver runs recovery steps 3-8 of the open pipeline in
// order, each conditioned on its header flag. Steps 1-2 (opening the
// data/hash/modify-log collaborators) happen in openCollaborators before
// this is called. Every step is fatal for the open on failure. Requires
// EXCLUSIVE.
func (idx *Index) runRecoveryDriver(ctx context.Context) error {
	if idx.lock.state != Exclusive && idx.lock.state != RebuildingPromoted {
		return fmt.Errorf("mailindex: recovery driver requires EXCLUSIVE lock")
	}

	h := idx.region.header()

	if h.Flags&FlagRebuild != 0 {
		if err := idx.runRecoveryStep(ctx, stepRebuild, func() error {
			if err := idx.backend.Rebuild(ctx, idx); err != nil {
				return err
			}
			if idx.hash != nil {
				if err := idx.hash.Rebuild(ctx, idx); err != nil {
					return err
				}
			}
			h := idx.region.header()
			h.Flags &^= FlagRebuild
			idx.region.writeHeader(h)
			return nil
		}); err != nil {
			return err
		}
		h = idx.region.header()
	}

	if h.Flags&FlagFSCK != 0 {
		if err := idx.runRecoveryStep(ctx, stepFsck, func() error {
			if err := idx.backend.Fsck(ctx, idx); err != nil {
				return err
			}
			h := idx.region.header()
			h.Flags &^= FlagFSCK
			idx.region.writeHeader(h)
			return nil
		}); err != nil {
			return err
		}
		h = idx.region.header()
	}

	if h.Flags&FlagCompress != 0 {
		if err := idx.runRecoveryStep(ctx, stepCompress, func() error {
			return idx.compress(ctx)
		}); err != nil {
			return err
		}
		h = idx.region.header()
	}

	if h.Flags&FlagRebuildHash != 0 {
		if err := idx.runRecoveryStep(ctx, stepRebuildHash, func() error {
			if idx.hash == nil {
				return nil
			}
			if err := idx.hash.Rebuild(ctx, idx); err != nil {
				return err
			}
			h := idx.region.header()
			h.Flags &^= FlagRebuildHash
			idx.region.writeHeader(h)
			return nil
		}); err != nil {
			return err
		}
		h = idx.region.header()
	}

	if h.Flags&FlagCacheFields != 0 {
		if err := idx.runRecoveryStep(ctx, stepCacheFields, func() error {
			return idx.updateCache(ctx)
		}); err != nil {
			return err
		}
		h = idx.region.header()
	}

	if h.Flags&FlagCompressData != 0 {
		if err := idx.runRecoveryStep(ctx, stepCompressData, func() error {
			return idx.compressData(ctx)
		}); err != nil {
			return err
		}
	}

	return nil
}

func (idx *Index) runRecoveryStep(ctx context.Context, step string, fn func() error) error {
	ctx, span := telemetry.StartRecoverySpan(ctx, spanForStep(step), idx.mailboxPath(), step)
	defer span.End()

	if err := fn(); err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "recovery step failed", logger.Op(step), logger.Mailbox(idx.mailboxPath()), logger.Err(err))
		return fmt.Errorf("mailindex: recovery step %s: %w", step, err)
	}

	if idx.metrics != nil {
		idx.metrics.IncRecoveryStep(idx.mailboxPath(), step)
	}

	logger.InfoCtx(ctx, "recovery step completed", logger.Op(step), logger.Mailbox(idx.mailboxPath()))

	return nil
}

func spanForStep(step string) string {
	switch step {
	case stepRebuild:
		return telemetry.SpanRecoveryRebuild
	case stepFsck:
		return telemetry.SpanRecoveryFsck
	case stepRebuildHash:
		return telemetry.SpanRecoveryRebuildHash
	case stepCacheFields:
		return telemetry.SpanRecoveryCacheFields
	default:
		return "recovery." + step
	}
}

// updateCache materializes newly requested cache fields onto existing
// records by asking the backend to supply them, so appends after this
// point don't have to special-case older records. A field the backend
// cannot supply for a record requests a rebuild instead of silently
// leaving the record under-cached.
func (idx *Index) updateCache(ctx context.Context) error {
	h := idx.region.header()
	count := idx.region.recordCount()

	for slot := uint32(0); slot < count; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.expunged() {
			continue
		}

		missing := h.CacheFields &^ rec.CachedFields
		if missing == 0 {
			continue
		}

		if idx.data == nil {
			continue
		}

		ok, err := idx.data.RecordVerify(ctx, rec)
		if err != nil {
			return err
		}
		if !ok {
			h := idx.region.header()
			h.Flags |= FlagRebuild
			idx.region.writeHeader(h)
			return fmt.Errorf("%w: record uid %d missing a field it claims to cache", ErrCorrupted, rec.UID)
		}

		rec.CachedFields |= missing
		idx.region.writeRecordAt(slot, rec)
	}

	h = idx.region.header()
	h.Flags &^= FlagCacheFields
	idx.region.writeHeader(h)

	return nil
}

// compressData syncs the data file collaborator and clears
// COMPRESS_DATA. It does not reclaim the space freed by expunges: no data
// is moved and no record's data position changes. It runs after
// updateCache in the recovery driver.
func (idx *Index) compressData(ctx context.Context) error {
	if idx.data != nil {
		if err := idx.data.SyncFile(ctx); err != nil {
			return err
		}
	}

	h := idx.region.header()
	h.Flags &^= FlagCompressData
	idx.region.writeHeader(h)

	return nil
}
