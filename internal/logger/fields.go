package logger

import "log/slog"

// Standard field keys for structured logging across the index engine.
// Use these keys consistently so log aggregation and querying stay uniform
// across the mmap manager, lock manager, lookup/mutation engines, and the
// recovery driver.
const (
	// ------------------------------------------------------------------
	// Distributed tracing
	// ------------------------------------------------------------------
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ------------------------------------------------------------------
	// Index identity
	// ------------------------------------------------------------------
	KeyMailbox = "mailbox"   // mailbox path the index belongs to
	KeyIndexID = "index_id"  // header.indexid
	KeyPrefix  = "prefix"    // index file prefix
	KeyDir     = "dir"       // index directory
	KeyOp      = "operation" // append, expunge, update_flags, lookup, set_lock, ...

	// ------------------------------------------------------------------
	// Lock manager
	// ------------------------------------------------------------------
	KeyLockState   = "lock_state"   // unlocked, shared, exclusive
	KeyLockWaitMs  = "lock_wait_ms" // time spent blocked acquiring the lock
	KeyLockOrdinal = "lock_seq"     // monotonically increasing lock-acquire counter

	// ------------------------------------------------------------------
	// Record / sequence addressing
	// ------------------------------------------------------------------
	KeySeq         = "seq"
	KeyUID         = "uid"
	KeyUIDFirst    = "uid_first"
	KeyUIDLast     = "uid_last"
	KeyRecordCount = "record_count"

	// ------------------------------------------------------------------
	// Holes and compaction
	// ------------------------------------------------------------------
	KeyHolePosition = "hole_position"
	KeyHoleRecords  = "hole_records"

	// ------------------------------------------------------------------
	// Recovery
	// ------------------------------------------------------------------
	KeyRecoveryStep = "recovery_step" // rebuild, fsck, compress, rebuild_hash, cache_fields, compress_data
	KeyHeaderFlags  = "header_flags"

	// ------------------------------------------------------------------
	// Generic operation metadata
	// ------------------------------------------------------------------
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyBytes      = "bytes"
)

// Mailbox returns a slog.Attr for the mailbox path.
func Mailbox(path string) slog.Attr { return slog.String(KeyMailbox, path) }

// IndexID returns a slog.Attr for the header indexid.
func IndexID(id uint32) slog.Attr { return slog.Uint64(KeyIndexID, uint64(id)) }

// Op returns a slog.Attr for the operation name.
func Op(name string) slog.Attr { return slog.String(KeyOp, name) }

// LockState returns a slog.Attr for the current lock state.
func LockState(state string) slog.Attr { return slog.String(KeyLockState, state) }

// LockWaitMs returns a slog.Attr for time spent waiting on a lock.
func LockWaitMs(ms float64) slog.Attr { return slog.Float64(KeyLockWaitMs, ms) }

// Seq returns a slog.Attr for a sequence number.
func Seq(seq uint32) slog.Attr { return slog.Uint64(KeySeq, uint64(seq)) }

// UID returns a slog.Attr for a message UID.
func UID(uid uint32) slog.Attr { return slog.Uint64(KeyUID, uint64(uid)) }

// UIDRange returns slog.Attrs for a UID range.
func UIDRange(first, last uint32) []slog.Attr {
	return []slog.Attr{
		slog.Uint64(KeyUIDFirst, uint64(first)),
		slog.Uint64(KeyUIDLast, uint64(last)),
	}
}

// RecordCount returns a slog.Attr for a record count.
func RecordCount(n uint32) slog.Attr { return slog.Uint64(KeyRecordCount, uint64(n)) }

// HolePosition returns a slog.Attr for a hole's byte offset.
func HolePosition(pos uint64) slog.Attr { return slog.Uint64(KeyHolePosition, pos) }

// HoleRecords returns a slog.Attr for a hole run's record count.
func HoleRecords(n uint32) slog.Attr { return slog.Uint64(KeyHoleRecords, uint64(n)) }

// RecoveryStep returns a slog.Attr naming the recovery step in progress.
func RecoveryStep(step string) slog.Attr { return slog.String(KeyRecoveryStep, step) }

// HeaderFlags returns a slog.Attr for the raw header flags bitset.
func HeaderFlags(flags uint32) slog.Attr { return slog.Uint64(KeyHeaderFlags, uint64(flags)) }

// DurationMs returns a slog.Attr for an operation duration.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int64) slog.Attr { return slog.Int64(KeyBytes, n) }
