package translog

import (
	"encoding/binary"
	"fmt"
)

// recordHeaderSize is the length prefix in front of every record.
const recordHeaderSize = 4

// Pack appends record to dst with a 4-byte big-endian length prefix.
func Pack(dst, record []byte) []byte {
	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(record)))
	dst = append(dst, hdr[:]...)
	return append(dst, record...)
}

// Unpack splits a buffer produced by repeated Pack calls. The buffer must
// hold only complete records.
func Unpack(buf []byte) ([][]byte, error) {
	var records [][]byte
	for len(buf) > 0 {
		if len(buf) < recordHeaderSize {
			return records, fmt.Errorf("truncated record header: %d bytes left", len(buf))
		}
		n := binary.BigEndian.Uint32(buf[:recordHeaderSize])
		buf = buf[recordHeaderSize:]
		if uint64(len(buf)) < uint64(n) {
			return records, fmt.Errorf("truncated record: want %d bytes, have %d", n, len(buf))
		}
		records = append(records, buf[:n:n])
		buf = buf[n:]
	}
	return records, nil
}
