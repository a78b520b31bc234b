// Package bitbuf provides bit-precise cursors over in-memory byte buffers.
//
// A Reader tracks a read position counted in bits rather than bytes, which is
// what the Common Trace Format needs: integers of any width between 1 and 64
// bits are packed back to back with no padding unless a declaration asks for
// alignment.
//
// # Bit Numbering
//
// Bits inside a declared width are laid out according to the byte order:
//
//   - BigEndian: bits are numbered from the most significant bit of each byte.
//     The first bit consumed is the most significant bit of the value.
//   - LittleEndian: bits are numbered from the least significant bit of each
//     byte. The first bit consumed is the least significant bit of the value.
//
// For byte-aligned reads of 8, 16, 32 or 64 bits both rules reduce to the usual
// encoding/binary byte orders, and the Reader takes that fast path.
//
// # Usage
//
//	r := bitbuf.NewReader([]byte{0x80, 0x00, 0x00, 0x42}, bitbuf.BigEndian)
//	id, _ := r.ReadUnsigned(5)  // 16
//	ts, _ := r.ReadUnsigned(27) // 0x42
//
// A Writer produces buffers using the same numbering and is the inverse of the
// Reader for every width and byte order.
//
// # Errors
//
// Reads that need more bits than remain fail with ErrBufferUnderflow and leave
// the position untouched. Nothing in this package panics on short input.
//
// # Thread Safety
//
// Readers and Writers carry mutable position state and must not be shared
// between goroutines. The underlying buffer is never modified by a Reader.
package bitbuf
