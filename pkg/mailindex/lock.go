package mailindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/marmos91/mailidx/internal/logger"
	"github.com/marmos91/mailidx/internal/telemetry"
)

// LockState is the logical state of an index handle's advisory lock.
type LockState int

const (
	// Unlocked is the state after Open and after every UNLOCK transition.
	Unlocked LockState = iota
	// Shared permits lookups but no mutation.
	Shared
	// Exclusive permits mutation; only one handle across all processes
	// holds it at a time.
	Exclusive
	// Syncing is a transient state entered on UNLOCK -> non-UNLOCK before
	// the backend's sync hook runs, mirroring the recursive set_lock call
	// the source makes for that transition.
	Syncing
	// RebuildingPromoted is accepted as a readable state by the lock and
	// recovery checks, and acquireOS maps it to a read lock, but the lock
	// manager never enters it: a SHARED request that finds REBUILD set
	// goes through UNLOCK and EXCLUSIVE instead (see maybeRunRecovery).
	RebuildingPromoted
	// Poisoned is entered once indexid mismatches the handle's saved
	// value. Only Close is valid afterward.
	Poisoned
)

func (s LockState) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	case Syncing:
		return "syncing"
	case RebuildingPromoted:
		return "rebuilding_promoted"
	case Poisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// ErrLockWouldBlock is returned by tryLock when the advisory lock is held
// by another process.
var ErrLockWouldBlock = errors.New("mailindex: lock would block")

// lockManager owns the whole-file advisory lock on the index fd and the
// logical state machine layered on top of it. It never holds a partial
// range: the spec calls for whole-file locking, matching the simplest and
// most portable fcntl usage.
type lockManager struct {
	file  *os.File
	state LockState

	// generation increments on every successful acquire, invalidating any
	// RecordView/HeaderView minted under a previous generation.
	generation uint64

	// deferred set_flags/set_cache_fields bits accumulated under SHARED
	// that must be promoted to EXCLUSIVE and applied before unlocking.
	deferredFlags       uint32
	deferredCacheFields uint32
}

func newLockManager(f *os.File) *lockManager {
	return &lockManager{file: f, state: Unlocked}
}

// validReadState reports whether the handle currently holds a lock state
// that permits reading through the mapping.
func (lm *lockManager) validReadState() bool {
	return lm.state == Shared || lm.state == Exclusive || lm.state == RebuildingPromoted
}

// setLock performs the blocking transition to want, applying the rules in
// the lock manager's state table: SHARED cannot go straight to EXCLUSIVE,
// UNLOCK to any locked state first calls sync, and any acquire refreshes
// the mmap and checks indexid consistency.
//
// idx is the owning Index; setLock calls back into it for the mmap
// refresh, indexid check, backend sync hook, and deferred-flag flush so
// this file stays focused on the lock state machine itself.
func (lm *lockManager) setLock(ctx context.Context, idx *Index, want LockState) error {
	if lm.state == Poisoned {
		return ErrInconsistent
	}

	if lm.state == Shared && want == Exclusive {
		return fmt.Errorf("%w: SHARED to EXCLUSIVE requires an intermediate UNLOCK", ErrLockOrder)
	}

	if lm.state == want {
		return nil
	}

	mailbox := idx.mailboxPath()
	start := time.Now()
	ctx, span := telemetry.StartIndexSpan(ctx, telemetry.SpanSetLock, mailbox, idx.savedIndexID,
		telemetry.LockState(want.String()))
	defer span.End()

	if lm.state == Unlocked && want != Unlocked {
		lm.state = Syncing
		if err := idx.backendSync(ctx); err != nil {
			lm.state = Unlocked
			telemetry.RecordError(ctx, err)
			return fmt.Errorf("mailindex: backend sync before lock: %w", err)
		}
	}

	if err := lm.acquireOS(want); err != nil {
		lm.state = Unlocked
		telemetry.RecordError(ctx, err)
		return err
	}

	previous := lm.state
	lm.state = want

	if want != Unlocked {
		if err := idx.region.refresh(); err != nil {
			lm.state = previous
			_ = lm.acquireOS(Unlocked)
			telemetry.RecordError(ctx, err)
			return err
		}

		if idx.region.header().IndexID != idx.savedIndexID {
			lm.state = Poisoned
			telemetry.RecordError(ctx, ErrInconsistent)
			return ErrInconsistent
		}

		lm.generation++
		idx.lastLookup = nil
	}

	if want == Exclusive {
		h := idx.region.header()
		h.Flags |= FlagFSCK
		idx.region.writeHeader(h)
		if err := idx.region.msync(true); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	if want == Unlocked {
		idx.lastLookup = nil

		if previous == Exclusive {
			if err := idx.flushOnUnlock(ctx); err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}
		}

		if previous == Shared && (lm.deferredFlags != 0 || lm.deferredCacheFields != 0) {
			if err := lm.promoteAndFlush(ctx, idx); err != nil {
				telemetry.RecordError(ctx, err)
				return err
			}
		}
	}

	if want != Unlocked {
		if err := idx.maybeRunRecovery(ctx, want); err != nil {
			telemetry.RecordError(ctx, err)
			return err
		}
	}

	logger.InfoCtx(ctx, "lock state transition",
		logger.Mailbox(mailbox),
		logger.LockState(want.String()),
		logger.LockWaitMs(float64(time.Since(start).Milliseconds())))

	if idx.metrics != nil {
		idx.metrics.ObserveLockWait(mailbox, want.String(), time.Since(start))
	}

	return nil
}

// promoteAndFlush implements the single-retry SHARED -> UNLOCK promotion:
// accumulated deferred flag/cache-field bits are applied under EXCLUSIVE
// before the handle actually goes unlocked.
func (lm *lockManager) promoteAndFlush(ctx context.Context, idx *Index) error {
	if err := lm.setLock(ctx, idx, Exclusive); err != nil {
		return err
	}

	h := idx.region.header()
	h.Flags |= lm.deferredFlags
	h.CacheFields |= lm.deferredCacheFields
	idx.region.writeHeader(h)
	lm.deferredFlags = 0
	lm.deferredCacheFields = 0

	return lm.setLock(ctx, idx, Unlocked)
}

// acquireOS performs the whole-file fcntl transition for want, blocking
// with F_SETLKW and retrying on EINTR.
func (lm *lockManager) acquireOS(want LockState) error {
	var lockType int16

	switch want {
	case Unlocked:
		lockType = syscall.F_UNLCK
	case Shared, RebuildingPromoted:
		lockType = syscall.F_RDLCK
	case Exclusive:
		lockType = syscall.F_WRLCK
	default:
		return fmt.Errorf("mailindex: cannot acquire OS lock for state %s", want)
	}

	flock := &syscall.Flock_t{
		Type:   lockType,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0, // whole file
	}

	for {
		err := syscall.FcntlFlock(lm.file.Fd(), syscall.F_SETLKW, flock)
		if err == nil {
			return nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return fmt.Errorf("mailindex: fcntl lock: %w", err)
	}
}

// tryLock attempts a non-blocking transition, returning ErrLockWouldBlock
// if the lock is currently held elsewhere.
func (lm *lockManager) tryLock(want LockState) error {
	var lockType int16
	switch want {
	case Shared:
		lockType = syscall.F_RDLCK
	case Exclusive:
		lockType = syscall.F_WRLCK
	default:
		return fmt.Errorf("mailindex: tryLock only supports SHARED/EXCLUSIVE")
	}

	flock := &syscall.Flock_t{
		Type:   lockType,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}

	if err := syscall.FcntlFlock(lm.file.Fd(), syscall.F_SETLK, flock); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EACCES) {
			return ErrLockWouldBlock
		}
		return fmt.Errorf("mailindex: fcntl try-lock: %w", err)
	}

	lm.state = want
	return nil
}
