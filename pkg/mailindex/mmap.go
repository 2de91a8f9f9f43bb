package mailindex

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegion holds the memory-mapped view of an index file: a 64-byte
// Header followed by a flat array of fixed-size Records. It tracks the
// same (base, length, dirty) triple the lock manager drives refreshes
// from.
type mmapRegion struct {
	file   *os.File
	base   []byte
	length int64
	dirty  bool
}

// newMmapRegion wraps an already-open file descriptor. The caller must
// call refresh() before the region is usable.
func newMmapRegion(f *os.File) *mmapRegion {
	return &mmapRegion{file: f, dirty: true}
}

// refresh implements the mmap manager's refresh algorithm: rebind the
// existing mapping if nothing changed, otherwise remap the whole file,
// failing on a too-short file and silently truncating a partial tail left
// by an interrupted append.
func (m *mmapRegion) refresh() error {
	if !m.dirty && m.base != nil {
		return nil
	}

	if err := m.unmap(); err != nil {
		return err
	}

	info, err := m.file.Stat()
	if err != nil {
		return fmt.Errorf("mailindex: stat index file: %w", err)
	}

	length := info.Size()
	if length < headerSize {
		return fmt.Errorf("%w: index file shorter than header", ErrCorrupted)
	}

	if tail := (length - headerSize) % recordSize; tail != 0 {
		length -= tail
		if err := m.file.Truncate(length); err != nil {
			return fmt.Errorf("mailindex: truncate partial tail: %w", err)
		}
	}

	base, err := unix.Mmap(int(m.file.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mailindex: mmap: %w", err)
	}

	m.base = base
	m.length = length
	m.dirty = false

	return nil
}

// markDirty flags the region for remapping on the next refresh, used
// whenever an append extends the underlying file past the current mapping.
func (m *mmapRegion) markDirty() {
	m.dirty = true
}

// header returns the decoded header from the live mapping. Callers must
// have called refresh() first.
func (m *mmapRegion) header() Header {
	return decodeHeader(m.base[:headerSize])
}

// writeHeader encodes h into the live mapping.
func (m *mmapRegion) writeHeader(h Header) {
	encodeHeader(m.base[:headerSize], h)
}

// recordCount returns the number of fixed-size record slots currently
// mapped, including holes.
func (m *mmapRegion) recordCount() uint32 {
	return uint32((m.length - headerSize) / recordSize)
}

// recordAt decodes the record at the given zero-based slot index.
func (m *mmapRegion) recordAt(index uint32) Record {
	off := headerSize + int64(index)*recordSize
	return decodeRecord(m.base[off : off+recordSize])
}

// writeRecordAt encodes r into the given zero-based slot index.
func (m *mmapRegion) writeRecordAt(index uint32, r Record) {
	off := headerSize + int64(index)*recordSize
	encodeRecord(m.base[off:off+recordSize], r)
}

// msync flushes the live mapping to disk. async uses MS_ASYNC (schedules
// the writeback); otherwise MS_SYNC blocks until the pages are on disk.
func (m *mmapRegion) msync(async bool) error {
	if m.base == nil {
		return nil
	}

	flag := unix.MS_SYNC
	if async {
		flag = unix.MS_ASYNC
	}

	if err := unix.Msync(m.base, flag); err != nil {
		return fmt.Errorf("mailindex: msync: %w", err)
	}

	return nil
}

// unmap releases the current mapping, if any.
func (m *mmapRegion) unmap() error {
	if m.base == nil {
		return nil
	}

	if err := unix.Munmap(m.base); err != nil {
		return fmt.Errorf("mailindex: munmap: %w", err)
	}

	m.base = nil

	return nil
}

// appendRecord grows the file by one record slot, marks the region dirty
// and remaps it right away, then writes r into the new slot. The caller
// must hold the exclusive lock.
func (m *mmapRegion) appendRecord(r Record) error {
	newLength := m.length + recordSize

	if err := m.file.Truncate(newLength); err != nil {
		return fmt.Errorf("mailindex: extend index file: %w", err)
	}

	m.markDirty()

	if err := m.refresh(); err != nil {
		return err
	}

	m.writeRecordAt(m.recordCount()-1, r)

	return nil
}
