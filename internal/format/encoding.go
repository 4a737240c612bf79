package format

import "encoding/binary"

// Binary encoding utilities for heap words.
//
// Words are stored little-endian regardless of host order so the arena layout
// is identical on every platform and can be dumped and compared in tests.

// PutWord writes a 64-bit word at the specified offset.
func PutWord(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+WordSize], v)
}

// ReadWord reads a 64-bit word at the specified offset.
func ReadWord(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+WordSize])
}

// ReadWordChecked reads a word at off, returning ErrTruncated when the word
// does not fit in b.
func ReadWordChecked(b []byte, off int) (uint64, error) {
	if off < 0 || off > len(b)-WordSize {
		return 0, ErrTruncated
	}
	return ReadWord(b, off), nil
}
