package mailindex

import "context"

// HashStore is the persistent uid -> file_offset_of_record_in_index
// mapping used to accelerate LookupUIDRange. Implementations may return
// !ok for any uid (a hash miss is always safe - callers fall back to a
// linear scan), but must never return a stale offset for a uid they do
// report as found.
type HashStore interface {
	// Lookup returns the last known byte offset of uid's record within
	// the index file, or ok=false on a miss.
	Lookup(ctx context.Context, uid uint32) (offset uint64, ok bool, err error)

	// Update records uid's offset. offset == 0 means "delete".
	Update(ctx context.Context, uid uint32, offset uint64) error

	// Rebuild repopulates the store by walking the live index, discarding
	// whatever state existed before.
	Rebuild(ctx context.Context, idx *Index) error

	// SyncFile durably persists pending writes.
	SyncFile(ctx context.Context) error

	Close() error
}

// DataStore is the variable-length cached-field store addressed by the
// (data_position, data_size) pair carried on an index Record.
type DataStore interface {
	// Lookup returns the bytes cached for field on rec.
	Lookup(ctx context.Context, rec Record, field uint32) ([]byte, error)

	// RecordVerify reports whether rec's cached data is still consistent
	// with what the data file holds at rec's recorded position.
	RecordVerify(ctx context.Context, rec Record) (bool, error)

	// AddDeletedSpace tracks n freed bytes left behind by an expunge.
	// compress_data does not read the total.
	AddDeletedSpace(ctx context.Context, n uint32) error

	// Reset discards all cached data, used when the index truncates back
	// to an empty record array.
	Reset(ctx context.Context) error

	SyncFile(ctx context.Context) error

	Close() error
}

// ModifyLog is the append-only record of expunge and flag-change events
// used for cross-process change notification.
type ModifyLog interface {
	AddExpunge(ctx context.Context, seq, uid uint32, external bool) error
	AddFlags(ctx context.Context, seq, uid uint32, external bool) error
	SyncFile(ctx context.Context) error
	Close() error
}
