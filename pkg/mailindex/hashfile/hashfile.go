// Package hashfile implements the mail index's uid -> file_offset hash
// collaborator on top of badger, giving LookupUIDRange an O(1)-ish probe
// before it falls back to a linear scan.
package hashfile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/mailidx/pkg/mailindex"
)

// Store is a badger-backed implementation of mailindex.HashStore. It only
// imports mailindex for the *Index type Rebuild walks; mailindex itself
// never imports hashfile, so there is no cycle - callers wire Store in
// through mailindex.Collaborators.OpenHash.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the hash database under
// <dir>/<prefix>.hash.db.
func Open(dir, prefix string) (*Store, error) {
	path := filepath.Join(dir, prefix+".hash.db")

	opts := badger.DefaultOptions(path).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("hashfile: open %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

func keyFor(uid uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uid)
	return buf
}

// Lookup returns the last known byte offset of uid's record, or ok=false
// on a miss. A miss is always safe for the caller to treat as "unknown";
// it never means "does not exist".
func (s *Store) Lookup(ctx context.Context, uid uint32) (uint64, bool, error) {
	var offset uint64
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFor(uid))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("hashfile: corrupt value for uid %d", uid)
			}
			offset = binary.BigEndian.Uint64(val)
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("hashfile: lookup uid %d: %w", uid, err)
	}

	return offset, found, nil
}

// Update records uid's offset, or deletes the entry when offset == 0.
func (s *Store) Update(ctx context.Context, uid uint32, offset uint64) error {
	if offset == 0 {
		err := s.db.Update(func(txn *badger.Txn) error {
			err := txn.Delete(keyFor(uid))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("hashfile: delete uid %d: %w", uid, err)
		}
		return nil
	}

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, offset)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyFor(uid), val)
	})
	if err != nil {
		return fmt.Errorf("hashfile: update uid %d: %w", uid, err)
	}

	return nil
}

// Rebuild discards all entries and repopulates the store from idx's live
// records.
func (s *Store) Rebuild(ctx context.Context, idx *mailindex.Index) error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("hashfile: drop all: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return idx.WalkRecords(func(uid uint32, offset uint64) error {
			val := make([]byte, 8)
			binary.BigEndian.PutUint64(val, offset)
			return txn.Set(keyFor(uid), val)
		})
	})
}

// SyncFile forces badger's value log and LSM tree to disk.
func (s *Store) SyncFile(ctx context.Context) error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("hashfile: sync: %w", err)
	}
	return nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}
