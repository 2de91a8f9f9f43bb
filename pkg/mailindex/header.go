package mailindex

import (
	"encoding/binary"
	"unsafe"
)

// FormatVersion is this build's MAIL_INDEX_VERSION. Files written by a
// different version fail open with ErrIncompatibleFormat.
const FormatVersion uint32 = 1

// compatFlagsByte is a build-time constant identifying the record layout
// variant. Bump it whenever Record's on-disk shape changes in a way that
// isn't covered by Version alone.
const compatFlagsByte byte = 1

// Native integer widths folded into compat_data, the same way the source
// embeds sizeof(unsigned int)/sizeof(time_t)/sizeof(off_t). Go has no
// platform-varying "unsigned int", so this build stands in uint32 for it;
// time_t and off_t stand in as the 64-bit types this engine's records use.
var (
	compatUintSize = byte(unsafe.Sizeof(uint32(0)))
	compatTimeSize = byte(unsafe.Sizeof(int64(0)))
	compatOffSize  = byte(unsafe.Sizeof(int64(0)))
)

// Header flag bits. Order is public ABI: do not renumber.
const (
	FlagRebuild uint32 = 1 << iota
	FlagFSCK
	FlagCompress
	FlagRebuildHash
	FlagCacheFields
	FlagCompressData
)

// Cache field bits, recorded in Header.CacheFields and Record.CachedFields.
const (
	CacheEnvelope uint32 = 1 << iota
	CacheBodyStructure
	CacheReceivedDate
	CacheSentDate
	CacheMessageSize
)

// headerSize is the fixed on-disk byte length of Header.
const headerSize = 64

// Header is the single fixed-offset struct at the start of the index file.
type Header struct {
	CompatFlagsByte byte
	CompatUintSize  byte
	CompatTimeSize  byte
	CompatOffSize   byte

	Version uint32
	IndexID uint32
	Flags   uint32

	CacheFields uint32
	UIDValidity uint32
	NextUID     uint32

	LastNonrecentUID uint32

	MessagesCount        uint32
	SeenMessagesCount    uint32
	DeletedMessagesCount uint32

	FirstUnseenUIDLowwater  uint32
	FirstDeletedUIDLowwater uint32

	FirstHolePosition uint64
	FirstHoleRecords  uint32
}

// newHeader returns an initialized header for a freshly created index.
// Create passes the creation-time wall clock seconds as uidValidity and
// newIndexID's UUID-folded value as indexID; next_uid starts at 1.
func newHeader(uidValidity, indexID uint32) Header {
	return Header{
		CompatFlagsByte: compatFlagsByte,
		CompatUintSize:  compatUintSize,
		CompatTimeSize:  compatTimeSize,
		CompatOffSize:   compatOffSize,
		Version:         FormatVersion,
		IndexID:         indexID,
		UIDValidity:     uidValidity,
		NextUID:         1,
	}
}

// compatible reports whether h's compat tuple and version match this build's.
func (h Header) compatible() bool {
	return h.CompatFlagsByte == compatFlagsByte &&
		h.CompatUintSize == compatUintSize &&
		h.CompatTimeSize == compatTimeSize &&
		h.CompatOffSize == compatOffSize &&
		h.Version == FormatVersion
}

// encodeHeader writes h into buf[:headerSize] in little-endian byte order.
func encodeHeader(buf []byte, h Header) {
	_ = buf[:headerSize]

	buf[0] = h.CompatFlagsByte
	buf[1] = h.CompatUintSize
	buf[2] = h.CompatTimeSize
	buf[3] = h.CompatOffSize

	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.IndexID)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)

	binary.LittleEndian.PutUint32(buf[16:20], h.CacheFields)
	binary.LittleEndian.PutUint32(buf[20:24], h.UIDValidity)
	binary.LittleEndian.PutUint32(buf[24:28], h.NextUID)

	binary.LittleEndian.PutUint32(buf[28:32], h.LastNonrecentUID)

	binary.LittleEndian.PutUint32(buf[32:36], h.MessagesCount)
	binary.LittleEndian.PutUint32(buf[36:40], h.SeenMessagesCount)
	binary.LittleEndian.PutUint32(buf[40:44], h.DeletedMessagesCount)

	binary.LittleEndian.PutUint32(buf[44:48], h.FirstUnseenUIDLowwater)
	binary.LittleEndian.PutUint32(buf[48:52], h.FirstDeletedUIDLowwater)

	binary.LittleEndian.PutUint64(buf[52:60], h.FirstHolePosition)
	binary.LittleEndian.PutUint32(buf[60:64], h.FirstHoleRecords)
}

// decodeHeader reads a Header from buf[:headerSize].
func decodeHeader(buf []byte) Header {
	_ = buf[:headerSize]

	return Header{
		CompatFlagsByte: buf[0],
		CompatUintSize:  buf[1],
		CompatTimeSize:  buf[2],
		CompatOffSize:   buf[3],

		Version: binary.LittleEndian.Uint32(buf[4:8]),
		IndexID: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:   binary.LittleEndian.Uint32(buf[12:16]),

		CacheFields: binary.LittleEndian.Uint32(buf[16:20]),
		UIDValidity: binary.LittleEndian.Uint32(buf[20:24]),
		NextUID:     binary.LittleEndian.Uint32(buf[24:28]),

		LastNonrecentUID: binary.LittleEndian.Uint32(buf[28:32]),

		MessagesCount:        binary.LittleEndian.Uint32(buf[32:36]),
		SeenMessagesCount:    binary.LittleEndian.Uint32(buf[36:40]),
		DeletedMessagesCount: binary.LittleEndian.Uint32(buf[40:44]),

		FirstUnseenUIDLowwater:  binary.LittleEndian.Uint32(buf[44:48]),
		FirstDeletedUIDLowwater: binary.LittleEndian.Uint32(buf[48:52]),

		FirstHolePosition: binary.LittleEndian.Uint64(buf[52:60]),
		FirstHoleRecords:  binary.LittleEndian.Uint32(buf[60:64]),
	}
}
