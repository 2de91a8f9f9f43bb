package mailindex

import "errors"

// Sentinel errors returned by index operations. Use errors.Is to test for
// them; Index.LastError additionally reports the most recent error returned
// by SetLock.
var (
	// ErrIncompatibleFormat is returned when a file's compat tuple or
	// version does not match this build's. The open fails outright; it is
	// never retried.
	ErrIncompatibleFormat = errors.New("mailindex: incompatible file format")

	// ErrCorrupted is returned when the on-disk layout violates an
	// invariant (an index file shorter than its header, stale hole
	// metadata, a record missing a field it claims to cache). For stale
	// hole metadata and a missing cached field it also sets REBUILD in the
	// header so the next open triggers a full rebuild.
	ErrCorrupted = errors.New("mailindex: corrupted index")

	// ErrInconsistent is returned once a handle's cached indexid no longer
	// matches the on-disk indexid, meaning another process rebuilt the
	// index underneath it. The handle is poisoned; only Close is valid
	// afterward.
	ErrInconsistent = errors.New("mailindex: index rebuilt by another process")

	// ErrLockOrder is returned for a forbidden lock transition, such as
	// SHARED directly to EXCLUSIVE.
	ErrLockOrder = errors.New("mailindex: invalid lock transition")

	// ErrClosed is returned by any operation on a closed handle.
	ErrClosed = errors.New("mailindex: index closed")

	// ErrNotFound is returned by lookups that find no matching record.
	ErrNotFound = errors.New("mailindex: record not found")

	// ErrStaleView is returned when a RecordView or HeaderView is used
	// after the lock generation that produced it has advanced.
	ErrStaleView = errors.New("mailindex: view is stale")
)

// IsInconsistencyError reports whether err is or wraps ErrInconsistent,
// mirroring the source's is_inconsistency_error predicate for callers
// that branch on the poisoned state specifically.
func IsInconsistencyError(err error) bool {
	return errors.Is(err, ErrInconsistent)
}
