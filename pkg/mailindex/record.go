package mailindex

import "encoding/binary"

// MsgFlag bits, stored in Record.MsgFlags.
const (
	FlagSeen uint32 = 1 << iota
	FlagDeleted
	FlagAnswered
	FlagFlagged
	FlagDraft
	FlagRecent
)

// recordSize is the fixed on-disk byte length of Record.
const recordSize = 24

// Record is one fixed-size entry in the index's record array. A Record
// with UID == 0 is an expunged slot (a hole): its byte range is live disk
// space but carries no message.
type Record struct {
	UID          uint32
	MsgFlags     uint32
	CachedFields uint32
	DataSize     uint32
	DataPosition uint64
}

// expunged reports whether r is a hole left behind by an expunge.
func (r Record) expunged() bool {
	return r.UID == 0
}

// hasCachedField reports whether field is recorded as present in the
// collaborator data file for this record.
func (r Record) hasCachedField(field uint32) bool {
	return r.CachedFields&field != 0
}

// encodeRecord writes r into buf[:recordSize] in little-endian byte order.
func encodeRecord(buf []byte, r Record) {
	_ = buf[:recordSize]

	binary.LittleEndian.PutUint32(buf[0:4], r.UID)
	binary.LittleEndian.PutUint32(buf[4:8], r.MsgFlags)
	binary.LittleEndian.PutUint32(buf[8:12], r.CachedFields)
	binary.LittleEndian.PutUint32(buf[12:16], r.DataSize)
	binary.LittleEndian.PutUint64(buf[16:24], r.DataPosition)
}

// decodeRecord reads a Record from buf[:recordSize].
func decodeRecord(buf []byte) Record {
	_ = buf[:recordSize]

	return Record{
		UID:          binary.LittleEndian.Uint32(buf[0:4]),
		MsgFlags:     binary.LittleEndian.Uint32(buf[4:8]),
		CachedFields: binary.LittleEndian.Uint32(buf[8:12]),
		DataSize:     binary.LittleEndian.Uint32(buf[12:16]),
		DataPosition: binary.LittleEndian.Uint64(buf[16:24]),
	}
}

// flagChanges computes the set of flags turned on and off between old and
// new, used to drive lowwater-mark and counter maintenance on an update.
func flagChanges(old, new uint32) (turnedOn, turnedOff uint32) {
	turnedOn = new &^ old
	turnedOff = old &^ new
	return turnedOn, turnedOff
}
