// Package datafile implements the mail index's cached-field data store: an
// append-only file holding the variable-length bodies (envelope headers,
// parsed bodystructure, and similar) that records reference by
// (DataPosition, DataSize) rather than carrying inline.
package datafile

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/marmos91/mailidx/pkg/mailindex"
)

const (
	magic        = "MIDF"
	version      = uint16(1)
	headerSize   = 32
	initialSize  = 1 << 20 // 1MiB
	growthFactor = 2
)

// fileHeader is the on-disk header of the data file.
type fileHeader struct {
	Magic      [4]byte
	Version    uint16
	_          [2]byte // padding
	NextOffset uint64
	DeletedN   uint64
}

// Store is a growable, mmap-backed implementation of mailindex.DataStore.
// Every AddDeletedSpace call just tracks freed bytes; nothing reclaims
// them: compress_data only syncs this file, and compress rewrites the
// index's own record array, not this file's body bytes.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
	data []byte
	size uint64
}

// Open opens (creating if necessary) the data file under
// <dir>/<prefix>.data.
func Open(dir, prefix string) (*Store, error) {
	path := filepath.Join(dir, prefix+".data")

	s := &Store{path: path}

	if _, err := os.Stat(path); err == nil {
		if err := s.openExisting(); err != nil {
			return nil, err
		}
		return s, nil
	}

	if err := s.createNew(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createNew() error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("datafile: create %s: %w", s.path, err)
	}

	if err := f.Truncate(initialSize); err != nil {
		f.Close()
		return fmt.Errorf("datafile: truncate: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, initialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("datafile: mmap: %w", err)
	}

	s.file = f
	s.data = data
	s.size = initialSize

	s.writeHeader(fileHeader{NextOffset: headerSize})

	return nil
}

func (s *Store) openExisting() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("datafile: open %s: %w", s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("datafile: stat: %w", err)
	}

	size := uint64(info.Size())
	if size < headerSize {
		f.Close()
		return fmt.Errorf("%w: data file shorter than header", mailindex.ErrCorrupted)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("datafile: mmap: %w", err)
	}

	s.file = f
	s.data = data
	s.size = size

	h := s.readHeader()
	if string(h.Magic[:]) != magic {
		unix.Munmap(data)
		f.Close()
		return fmt.Errorf("%w: bad data file magic", mailindex.ErrCorrupted)
	}
	if h.Version != version {
		unix.Munmap(data)
		f.Close()
		return fmt.Errorf("%w: data file version %d unsupported", mailindex.ErrIncompatibleFormat, h.Version)
	}

	return nil
}

func (s *Store) readHeader() fileHeader {
	var h fileHeader
	copy(h.Magic[:], s.data[0:4])
	h.Version = binary.LittleEndian.Uint16(s.data[4:6])
	h.NextOffset = binary.LittleEndian.Uint64(s.data[8:16])
	h.DeletedN = binary.LittleEndian.Uint64(s.data[16:24])
	return h
}

func (s *Store) writeHeader(h fileHeader) {
	copy(s.data[0:4], []byte(magic))
	binary.LittleEndian.PutUint16(s.data[4:6], version)
	binary.LittleEndian.PutUint64(s.data[8:16], h.NextOffset)
	binary.LittleEndian.PutUint64(s.data[16:24], h.DeletedN)
}

// ensureSpace grows the mmap region (doubling) until NextOffset+n fits.
func (s *Store) ensureSpace(n uint64) error {
	h := s.readHeader()
	if h.NextOffset+n <= s.size {
		return nil
	}

	newSize := s.size
	for h.NextOffset+n > newSize {
		newSize *= growthFactor
	}

	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("datafile: munmap during growth: %w", err)
	}
	if err := s.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("datafile: truncate during growth: %w", err)
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("datafile: remap during growth: %w", err)
	}

	s.data = data
	s.size = newSize

	return nil
}

// Append writes body and returns the (position, size) pair a Record should
// carry to look it back up later.
func (s *Store) Append(body []byte) (position uint64, size uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSpace(uint64(len(body))); err != nil {
		return 0, 0, err
	}

	h := s.readHeader()
	pos := h.NextOffset
	copy(s.data[pos:pos+uint64(len(body))], body)

	h.NextOffset += uint64(len(body))
	s.writeHeader(h)

	return pos, uint32(len(body)), nil
}

// Lookup returns the bytes cached for rec. field is accepted for interface
// symmetry with a per-field store, but this format concatenates every
// cached field for a record into one body at DataPosition/DataSize, so the
// whole body is returned regardless of which bit field names.
func (s *Store) Lookup(ctx context.Context, rec mailindex.Record, field uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CachedFields&field == 0 {
		return nil, mailindex.ErrNotFound
	}

	end := rec.DataPosition + uint64(rec.DataSize)
	if end > s.size {
		return nil, fmt.Errorf("%w: record data range exceeds data file size", mailindex.ErrCorrupted)
	}

	out := make([]byte, rec.DataSize)
	copy(out, s.data[rec.DataPosition:end])
	return out, nil
}

// RecordVerify reports whether rec's recorded data range still lies within
// the file. It does not reparse the cached bytes: that is left to whatever
// consumer calls Lookup, since this store doesn't know the field format.
func (s *Store) RecordVerify(ctx context.Context, rec mailindex.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.DataSize == 0 {
		return true, nil
	}
	return rec.DataPosition+uint64(rec.DataSize) <= s.size, nil
}

// AddDeletedSpace records n freed bytes left behind by an expunge.
func (s *Store) AddDeletedSpace(ctx context.Context, n uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.readHeader()
	h.DeletedN += uint64(n)
	s.writeHeader(h)
	return nil
}

// Reset truncates the file back to an empty, freshly-initialized state,
// used when the index's record array itself goes back to zero messages.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("datafile: munmap during reset: %w", err)
	}
	if err := s.file.Truncate(initialSize); err != nil {
		return fmt.Errorf("datafile: truncate during reset: %w", err)
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, initialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("datafile: remap during reset: %w", err)
	}

	s.data = data
	s.size = initialSize
	s.writeHeader(fileHeader{NextOffset: headerSize})

	return nil
}

// SyncFile forces the mmap'd pages to disk.
func (s *Store) SyncFile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("datafile: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("datafile: munmap: %w", err)
	}
	return s.file.Close()
}
