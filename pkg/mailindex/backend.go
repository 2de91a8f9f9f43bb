package mailindex

import "context"

// Backend is the mailbox-specific hook set an Index calls into around lock
// transitions and recovery. A mailbox implementation supplies one so the
// index engine never has to know mailbox storage details: it only needs to
// reconcile against it and tell it when something needs rebuilding.
type Backend interface {
	// Rebuild reconstructs the index's record array and header counters
	// from the mailbox's authoritative state. Called when REBUILD is set.
	Rebuild(ctx context.Context, idx *Index) error

	// Sync reconciles the index with the mailbox (e.g. picking up new
	// messages) before a lock is granted from the unlocked state, and once
	// more at open after the recovery driver has run. Releasing EXCLUSIVE
	// does not call it.
	Sync(ctx context.Context, idx *Index) error

	// Fsck performs a lighter consistency check than Rebuild, invoked
	// when FSCK is set.
	Fsck(ctx context.Context, idx *Index) error
}

// NullBackend is a Backend that treats the index as already consistent.
// Useful for tests and for indexes whose records are only ever produced
// by Append/Expunge/UpdateFlags directly, with no external mailbox to
// reconcile against.
type NullBackend struct{}

func (NullBackend) Rebuild(ctx context.Context, idx *Index) error { return nil }
func (NullBackend) Sync(ctx context.Context, idx *Index) error    { return nil }
func (NullBackend) Fsck(ctx context.Context, idx *Index) error    { return nil }

var _ Backend = NullBackend{}
