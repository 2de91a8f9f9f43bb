// Package modifylog implements the mail index's append-only change log:
// every expunge and flag update is recorded here so a second process
// holding the index open can learn what changed without re-scanning the
// whole record array.
package modifylog

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
	magic       = "MILG"
	version     = uint16(1)
	headerSize  = 32
	entrySize   = 16 // type(1) + external(1) + pad(2) + seq(4) + uid(4) + reserved(4)
	initialSize = headerSize + entrySize*256

	entryExpunge uint8 = 0
	entryFlags   uint8 = 1
)

// Entry is one decoded record from the log.
type Entry struct {
	Type     uint8
	External bool
	Seq      uint32
	UID      uint32
}

// Log is an mmap-backed implementation of mailindex.ModifyLog.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	data []byte
	size uint64
}

// Open opens (creating if necessary) the modify log under
// <dir>/<prefix>.log.
func Open(dir, prefix string) (*Log, error) {
	path := filepath.Join(dir, prefix+".log")

	l := &Log{path: path}

	if _, err := os.Stat(path); err == nil {
		if err := l.openExisting(); err != nil {
			return nil, err
		}
		return l, nil
	}

	if err := l.createNew(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) createNew() error {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("modifylog: create %s: %w", l.path, err)
	}

	if err := f.Truncate(initialSize); err != nil {
		f.Close()
		return fmt.Errorf("modifylog: truncate: %w", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, initialSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("modifylog: mmap: %w", err)
	}

	l.file = f
	l.data = data
	l.size = initialSize

	l.writeHeader(headerSize, 0)

	return nil
}

func (l *Log) openExisting() error {
	f, err := os.OpenFile(l.path, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("modifylog: open %s: %w", l.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("modifylog: stat: %w", err)
	}

	size := uint64(info.Size())
	if size < headerSize {
		f.Close()
		return fmt.Errorf("%w: modify log shorter than header", mailindex.ErrCorrupted)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return fmt.Errorf("modifylog: mmap: %w", err)
	}

	l.file = f
	l.data = data
	l.size = size

	if string(data[0:4]) != magic {
		unix.Munmap(data)
		f.Close()
		return fmt.Errorf("%w: bad modify log magic", mailindex.ErrCorrupted)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != version {
		unix.Munmap(data)
		f.Close()
		return fmt.Errorf("%w: modify log version %d unsupported", mailindex.ErrIncompatibleFormat, v)
	}

	return nil
}

func (l *Log) writeHeader(next, count uint64) {
	copy(l.data[0:4], []byte(magic))
	binary.LittleEndian.PutUint16(l.data[4:6], version)
	binary.LittleEndian.PutUint64(l.data[8:16], next)
	binary.LittleEndian.PutUint64(l.data[16:24], count)
}

func (l *Log) nextOffset() uint64 {
	return binary.LittleEndian.Uint64(l.data[8:16])
}

func (l *Log) entryCount() uint64 {
	return binary.LittleEndian.Uint64(l.data[16:24])
}

func (l *Log) ensureSpace(n uint64) error {
	next := l.nextOffset()
	if next+n <= l.size {
		return nil
	}

	newSize := l.size
	for next+n > newSize {
		newSize *= 2
	}

	if err := unix.Munmap(l.data); err != nil {
		return fmt.Errorf("modifylog: munmap during growth: %w", err)
	}
	if err := l.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("modifylog: truncate during growth: %w", err)
	}
	data, err := unix.Mmap(int(l.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("modifylog: remap during growth: %w", err)
	}

	l.data = data
	l.size = newSize

	return nil
}

func (l *Log) append(entryType uint8, seq, uid uint32, external bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureSpace(entrySize); err != nil {
		return err
	}

	off := l.nextOffset()
	buf := l.data[off : off+entrySize]

	buf[0] = entryType
	if external {
		buf[1] = 1
	} else {
		buf[1] = 0
	}
	binary.LittleEndian.PutUint32(buf[4:8], seq)
	binary.LittleEndian.PutUint32(buf[8:12], uid)

	l.writeHeader(off+entrySize, l.entryCount()+1)

	return nil
}

// AddExpunge appends an expunge event.
func (l *Log) AddExpunge(ctx context.Context, seq, uid uint32, external bool) error {
	return l.append(entryExpunge, seq, uid, external)
}

// AddFlags appends a flag-change event.
func (l *Log) AddFlags(ctx context.Context, seq, uid uint32, external bool) error {
	return l.append(entryFlags, seq, uid, external)
}

// Entries decodes every record currently in the log, in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.entryCount()
	out := make([]Entry, 0, count)

	for i := uint64(0); i < count; i++ {
		off := headerSize + i*entrySize
		buf := l.data[off : off+entrySize]
		out = append(out, Entry{
			Type:     buf[0],
			External: buf[1] != 0,
			Seq:      binary.LittleEndian.Uint32(buf[4:8]),
			UID:      binary.LittleEndian.Uint32(buf[8:12]),
		})
	}

	return out
}

// SyncFile forces the mmap'd pages to disk.
func (l *Log) SyncFile(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := unix.Msync(l.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("modifylog: msync: %w", err)
	}
	return nil
}

// Close unmaps and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := unix.Munmap(l.data); err != nil {
		return fmt.Errorf("modifylog: munmap: %w", err)
	}
	return l.file.Close()
}
