package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for index operations. Kept in step with the field keys
// in internal/logger/fields.go so a trace and its surrounding log lines
// use the same names.
const (
	AttrMailbox = "mailbox"
	AttrIndexID = "index_id"
	AttrOp      = "operation"

	AttrLockState  = "lock_state"
	AttrLockWaitMs = "lock_wait_ms"

	AttrSeq      = "seq"
	AttrUID      = "uid"
	AttrUIDFirst = "uid_first"
	AttrUIDLast  = "uid_last"

	AttrHolePosition = "hole_position"
	AttrHoleRecords  = "hole_records"

	AttrRecoveryStep = "recovery_step"
	AttrHeaderFlags  = "header_flags"
)

// Span names. Format: <component>.<operation>.
const (
	SpanSetLock = "lock.set_lock"

	SpanAppend       = "mutate.append"
	SpanExpunge      = "mutate.expunge"
	SpanUpdateFlags  = "mutate.update_flags"
	SpanCompress     = "mutate.compress"
	SpanCompressData = "mutate.compress_data"

	SpanLookup         = "lookup.lookup"
	SpanLookupUIDRange = "lookup.lookup_uid_range"
	SpanGetSequence    = "lookup.get_sequence"
	SpanNextRecord     = "lookup.next"

	SpanOpen         = "index.open"
	SpanCreate       = "index.create"
	SpanOpenOrCreate = "index.open_or_create"

	SpanRecoveryRebuild     = "recovery.rebuild"
	SpanRecoveryFsck        = "recovery.fsck"
	SpanRecoveryRebuildHash = "recovery.rebuild_hash"
	SpanRecoveryCacheFields = "recovery.cache_fields"
)

// Mailbox returns an attribute for the mailbox path.
func Mailbox(path string) attribute.KeyValue {
	return attribute.String(AttrMailbox, path)
}

// IndexID returns an attribute for the header indexid.
func IndexID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrIndexID, int64(id))
}

// Op returns an attribute for the operation name.
func Op(name string) attribute.KeyValue {
	return attribute.String(AttrOp, name)
}

// LockState returns an attribute for the lock manager's current state.
func LockState(state string) attribute.KeyValue {
	return attribute.String(AttrLockState, state)
}

// LockWaitMs returns an attribute for time spent blocked acquiring a lock.
func LockWaitMs(ms float64) attribute.KeyValue {
	return attribute.Float64(AttrLockWaitMs, ms)
}

// Seq returns an attribute for a sequence number.
func Seq(seq uint32) attribute.KeyValue {
	return attribute.Int64(AttrSeq, int64(seq))
}

// UID returns an attribute for a message UID.
func UID(uid uint32) attribute.KeyValue {
	return attribute.Int64(AttrUID, int64(uid))
}

// UIDRange returns attributes for a UID range.
func UIDRange(first, last uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrUIDFirst, int64(first)),
		attribute.Int64(AttrUIDLast, int64(last)),
	}
}

// HolePosition returns an attribute for a hole's byte offset.
func HolePosition(pos uint64) attribute.KeyValue {
	return attribute.Int64(AttrHolePosition, int64(pos))
}

// HoleRecords returns an attribute for a hole run's record count.
func HoleRecords(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrHoleRecords, int64(n))
}

// RecoveryStep returns an attribute naming the recovery step in progress.
func RecoveryStep(step string) attribute.KeyValue {
	return attribute.String(AttrRecoveryStep, step)
}

// HeaderFlags returns an attribute for the raw header flags bitset.
func HeaderFlags(flags uint32) attribute.KeyValue {
	return attribute.Int64(AttrHeaderFlags, int64(flags))
}

// StartIndexSpan starts a span for an index operation, tagging it with
// the mailbox and index id so traces can be filtered per index file.
func StartIndexSpan(ctx context.Context, spanName, mailbox string, indexID uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Mailbox(mailbox),
		IndexID(indexID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartRecoverySpan starts a span for one step of the recovery driver.
func StartRecoverySpan(ctx context.Context, spanName, mailbox string, step string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Mailbox(mailbox),
		RecoveryStep(step),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}
