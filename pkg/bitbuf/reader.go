package bitbuf

import (
	"github.com/cockroachdb/errors"
)

// MaxWidth is the widest value a single read or write may transfer
const MaxWidth = 64

var (
	// ErrBufferUnderflow is returned when fewer bits remain than a read needs
	ErrBufferUnderflow = errors.New("buffer underflow")

	// ErrInvalidWidth is returned for widths outside 1..64
	ErrInvalidWidth = errors.New("invalid bit width")

	// ErrInvalidAlignment is returned for alignments that are not a power of two
	ErrInvalidAlignment = errors.New("invalid alignment")
)

// Reader is a bit-precise cursor over an in-memory byte buffer
type Reader struct {
	buf   []byte
	pos   int // position in bits
	order ByteOrder
}

// NewReader creates a reader positioned at bit 0 of buf
func NewReader(buf []byte, order ByteOrder) *Reader {
	return &Reader{buf: buf, order: order}
}

// Bytes returns the buffer the reader consumes
func (r *Reader) Bytes() []byte {
	return r.buf
}

// ByteOrder returns the default order used by ReadUnsigned and ReadSigned
func (r *Reader) ByteOrder() ByteOrder {
	return r.order
}

// SetByteOrder changes the default byte order for later reads
func (r *Reader) SetByteOrder(order ByteOrder) {
	r.order = order
}

// Position returns the current position in bits
func (r *Reader) Position() int {
	return r.pos
}

// SetPosition moves the cursor to an absolute bit position
func (r *Reader) SetPosition(pos int) error {
	if pos < 0 || pos > r.Len() {
		return errors.Wrapf(ErrBufferUnderflow, "position %d outside buffer of %d bits", pos, r.Len())
	}
	r.pos = pos
	return nil
}

// Len returns the size of the buffer in bits
func (r *Reader) Len() int {
	return len(r.buf) * 8
}

// Remaining returns the number of unread bits
func (r *Reader) Remaining() int {
	return r.Len() - r.pos
}

// Skip advances the cursor by n bits
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Remaining() {
		return errors.Wrapf(ErrBufferUnderflow, "skip %d bits at position %d, %d remaining", n, r.pos, r.Remaining())
	}
	r.pos += n
	return nil
}

// Align advances the cursor to the next multiple of bits. Alignments of 0 or 1
// are no-ops.
func (r *Reader) Align(bits int) error {
	if bits <= 1 {
		return nil
	}
	if bits&(bits-1) != 0 {
		return errors.Wrapf(ErrInvalidAlignment, "alignment %d", bits)
	}
	aligned := AlignUp(r.pos, bits)
	if aligned > r.Len() {
		return errors.Wrapf(ErrBufferUnderflow, "align to %d bits at position %d, %d remaining", bits, r.pos, r.Remaining())
	}
	r.pos = aligned
	return nil
}

// ReadUnsigned reads width bits in the reader's byte order
func (r *Reader) ReadUnsigned(width int) (uint64, error) {
	return r.ReadUnsignedOrder(width, r.order)
}

// ReadSigned reads width bits in the reader's byte order and sign extends the
// most significant bit.
func (r *Reader) ReadSigned(width int) (int64, error) {
	return r.ReadSignedOrder(width, r.order)
}

// ReadRaw returns the next width bits as an uninterpreted bit pattern
func (r *Reader) ReadRaw(width int) (uint64, error) {
	return r.ReadUnsignedOrder(width, r.order)
}

// ReadSignedOrder is ReadSigned with an explicit byte order
func (r *Reader) ReadSignedOrder(width int, order ByteOrder) (int64, error) {
	v, err := r.ReadUnsignedOrder(width, order)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, width), nil
}

// ReadUnsignedOrder is ReadUnsigned with an explicit byte order
func (r *Reader) ReadUnsignedOrder(width int, order ByteOrder) (uint64, error) {
	if width < 1 || width > MaxWidth {
		return 0, errors.Wrapf(ErrInvalidWidth, "width %d", width)
	}
	if width > r.Remaining() {
		return 0, errors.Wrapf(ErrBufferUnderflow, "read %d bits at position %d, %d remaining", width, r.pos, r.Remaining())
	}

	// Byte-aligned reads of exact byte widths go through encoding/binary.
	if r.pos&7 == 0 {
		off := r.pos >> 3
		bo := order.Binary()
		switch width {
		case 8:
			r.pos += 8
			return uint64(r.buf[off]), nil
		case 16:
			r.pos += 16
			return uint64(bo.Uint16(r.buf[off:])), nil
		case 32:
			r.pos += 32
			return uint64(bo.Uint32(r.buf[off:])), nil
		case 64:
			r.pos += 64
			return bo.Uint64(r.buf[off:]), nil
		}
	}

	var v uint64
	if order == LittleEndian {
		v = r.readLE(width)
	} else {
		v = r.readBE(width)
	}
	r.pos += width
	return v, nil
}

// readBE gathers width bits most significant first. Each step takes as many
// bits as are left in the current byte.
func (r *Reader) readBE(width int) uint64 {
	var v uint64
	pos := r.pos
	for width > 0 {
		avail := 8 - pos&7
		n := min(avail, width)
		chunk := (uint64(r.buf[pos>>3]) >> (avail - n)) & (1<<n - 1)
		v = v<<n | chunk
		pos += n
		width -= n
	}
	return v
}

// readLE gathers width bits least significant first.
func (r *Reader) readLE(width int) uint64 {
	var v uint64
	pos, shift := r.pos, 0
	for shift < width {
		off := pos & 7
		n := min(8-off, width-shift)
		chunk := (uint64(r.buf[pos>>3]) >> off) & (1<<n - 1)
		v |= chunk << shift
		pos += n
		shift += n
	}
	return v
}

// ReadBytes reads n whole bytes. The cursor must be byte aligned.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.pos&7 != 0 {
		return nil, errors.Wrapf(ErrInvalidAlignment, "byte read at unaligned position %d", r.pos)
	}
	if n < 0 || n*8 > r.Remaining() {
		return nil, errors.Wrapf(ErrBufferUnderflow, "read %d bytes at position %d, %d bits remaining", n, r.pos, r.Remaining())
	}
	off := r.pos >> 3
	r.pos += n * 8
	return r.buf[off : off+n], nil
}

// SignExtend interprets the low width bits of v as a two's complement value
func SignExtend(v uint64, width int) int64 {
	if width >= 64 {
		return int64(v)
	}
	shift := uint(64 - width)
	return int64(v<<shift) >> shift
}

// AlignUp rounds pos up to the next multiple of align
func AlignUp(pos, align int) int {
	if align <= 1 {
		return pos
	}
	return (pos + align - 1) / align * align
}
