// Package mailindex implements a single-writer, memory-mapped,
// crash-recoverable mail index: a fixed-size record array with a small
// header, suitable for storing per-message flags and cache metadata
// alongside a mailbox without touching the mailbox's own storage format.
package mailindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/pkg/metrics"
)

// Index is a handle onto one open index file. It is not safe for
// concurrent use by multiple goroutines; the engine's scheduling model is
// single-threaded per process, matching the source's reentrancy model.
type Index struct {
	mu sync.Mutex

	dir    string
	prefix string

	region *mmapRegion
	lock   *lockManager

	savedIndexID uint32
	lastLookup   *lastLookupCursor

	hash      HashStore
	data      DataStore
	modifyLog ModifyLog
	backend   Backend

	metrics metrics.IndexMetrics

	// inconsistent mirrors lock.state == Poisoned for quick checks from
	// call sites that never otherwise touch the lock manager.
	inconsistent bool

	// lastErr is the most recent error returned by SetLock.
	lastErr error

	closed bool
}

// mailboxPath returns the path used to tag logs, traces, and metrics for
// this handle: the index file's own path, since the mailbox it describes
// is identified the same way the index it backs is.
func (idx *Index) mailboxPath() string {
	return filepath.Join(idx.dir, idx.prefix)
}

// LastError returns the most recent error returned by SetLock on this
// handle, or nil. Errors from other operations are not recorded here.
func (idx *Index) LastError() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lastErr
}

// IsInconsistent reports whether the handle has been poisoned by a
// cross-process rebuild. Only Close is valid afterward.
func (idx *Index) IsInconsistent() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.inconsistent
}

// SetLock drives the lock manager to the requested state.
func (idx *Index) SetLock(ctx context.Context, want LockState) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}

	err := idx.lock.setLock(ctx, idx, want)
	if err != nil {
		idx.lastErr = err
		if errorIsInconsistent(err) {
			idx.inconsistent = true
		}
	}
	return err
}

func errorIsInconsistent(err error) bool {
	return IsInconsistencyError(err)
}

// requireReadable fails fast if the handle cannot currently serve reads:
// closed, poisoned, or not holding at least SHARED.
func (idx *Index) requireReadable() error {
	if idx.closed {
		return ErrClosed
	}
	if idx.inconsistent {
		return ErrInconsistent
	}
	if !idx.lock.validReadState() {
		return fmt.Errorf("mailindex: operation requires a lock to be held")
	}
	return nil
}

// backendSync invokes the backend's Sync hook, used on UNLOCK -> non-UNLOCK
// transitions before the OS lock is actually acquired.
func (idx *Index) backendSync(ctx context.Context) error {
	if idx.backend == nil {
		return nil
	}
	return idx.backend.Sync(ctx, idx)
}

// flushOnUnlock implements the EXCLUSIVE -> * release sequence: clear
// FSCK, flush any deferred bits that were set while already EXCLUSIVE,
// sync every collaborator, and durably persist the index mapping.
func (idx *Index) flushOnUnlock(ctx context.Context) error {
	h := idx.region.header()
	h.Flags &^= FlagFSCK
	h.Flags |= idx.lock.deferredFlags
	h.CacheFields |= idx.lock.deferredCacheFields
	idx.lock.deferredFlags = 0
	idx.lock.deferredCacheFields = 0
	idx.region.writeHeader(h)

	if err := idx.region.msync(false); err != nil {
		return err
	}

	if idx.data != nil {
		if err := idx.data.SyncFile(ctx); err != nil {
			return err
		}
	}
	if idx.hash != nil {
		if err := idx.hash.SyncFile(ctx); err != nil {
			return err
		}
	}
	if idx.modifyLog != nil {
		if err := idx.modifyLog.SyncFile(ctx); err != nil {
			return err
		}
	}

	fileSyncStamp := time.Now()
	if err := os.Chtimes(idx.mailboxPath(), fileSyncStamp, fileSyncStamp); err != nil {
		return fmt.Errorf("mailindex: set index file mtime: %w", err)
	}

	if err := idx.region.file.Sync(); err != nil {
		return fmt.Errorf("mailindex: fsync index file: %w", err)
	}

	return nil
}

// maybeRunRecovery checks the live header for REBUILD after acquiring
// want and, if set, drops a SHARED lock, runs the recovery driver under
// EXCLUSIVE, and re-acquires the originally requested state.
func (idx *Index) maybeRunRecovery(ctx context.Context, want LockState) error {
	h := idx.region.header()
	if h.Flags&FlagRebuild == 0 {
		return nil
	}
	if want == RebuildingPromoted {
		// already mid-recovery; avoid infinite recursion
		return nil
	}

	if want == Shared {
		if err := idx.lock.setLock(ctx, idx, Unlocked); err != nil {
			return err
		}
		if err := idx.lock.setLock(ctx, idx, Exclusive); err != nil {
			return err
		}
	}

	if err := idx.runRecoveryDriver(ctx); err != nil {
		return err
	}

	if want == Shared {
		if err := idx.lock.setLock(ctx, idx, Unlocked); err != nil {
			return err
		}
		return idx.lock.setLock(ctx, idx, Shared)
	}

	return nil
}

// Header returns a snapshot of the current header. Callers must hold at
// least SHARED.
func (idx *Index) Header(ctx context.Context) (HeaderView, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.requireReadable(); err != nil {
		return HeaderView{}, err
	}

	return HeaderView{guard: newGuard(idx), hdr: idx.region.header()}, nil
}

// RecordCount returns the number of slots in the record array, including
// expunged slots. Callers must hold at least SHARED.
func (idx *Index) RecordCount(ctx context.Context) (uint32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.requireReadable(); err != nil {
		return 0, err
	}

	return idx.region.recordCount(), nil
}

// WalkRecords calls fn once for every live (non-expunged) record in slot
// order, passing its UID and its byte offset within the index file. Hash
// store implementations use this to repopulate themselves during Rebuild
// without needing to know the index file's internal layout.
func (idx *Index) WalkRecords(fn func(uid uint32, offset uint64) error) error {
	count := idx.region.recordCount()
	for slot := uint32(0); slot < count; slot++ {
		rec := idx.region.recordAt(slot)
		if rec.expunged() {
			continue
		}
		offset := uint64(headerSize) + uint64(slot)*uint64(recordSize)
		if err := fn(rec.UID, offset); err != nil {
			return err
		}
	}
	return nil
}

// reportCounts pushes the header's live message counters to metrics, if
// metrics are enabled for this handle.
func (idx *Index) reportCounts(h Header) {
	if idx.metrics == nil {
		return
	}
	idx.metrics.SetMessageCounts(idx.mailboxPath(), h.MessagesCount, h.SeenMessagesCount, h.DeletedMessagesCount)
}

// Close releases the advisory lock (if held), unmaps the index file, and
// closes every collaborator's file handles.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if idx.lock.state != Unlocked && idx.lock.state != Poisoned {
		record(idx.lock.setLock(context.Background(), idx, Unlocked))
	}

	record(idx.region.unmap())
	record(idx.region.file.Close())

	if idx.data != nil {
		record(idx.data.Close())
	}
	if idx.hash != nil {
		record(idx.hash.Close())
	}
	if idx.modifyLog != nil {
		record(idx.modifyLog.Close())
	}

	logger.Info("index closed", logger.Mailbox(idx.mailboxPath()))

	return firstErr
}
