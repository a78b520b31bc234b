package bitbuf

import (
	"github.com/cockroachdb/errors"
)

// ErrValueOverflow is returned when a value does not fit the requested width
var ErrValueOverflow = errors.New("value does not fit in width")

// Writer appends bit fields to a growing byte buffer using the same bit
// numbering as Reader. Unused bits of the last byte are zero.
type Writer struct {
	buf   []byte
	pos   int
	order ByteOrder
}

// NewWriter creates an empty writer with the given default byte order
func NewWriter(order ByteOrder) *Writer {
	return &Writer{buf: make([]byte, 0, 32), order: order}
}

// Bytes returns the encoded bytes, padded with zero bits to a whole byte
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Position returns the number of bits written so far
func (w *Writer) Position() int {
	return w.pos
}

// ByteOrder returns the default order of the writer
func (w *Writer) ByteOrder() ByteOrder {
	return w.order
}

// Align pads with zero bits up to the next multiple of bits
func (w *Writer) Align(bits int) error {
	if bits <= 1 {
		return nil
	}
	if bits&(bits-1) != 0 {
		return errors.Wrapf(ErrInvalidAlignment, "alignment %d", bits)
	}
	w.grow(AlignUp(w.pos, bits))
	return nil
}

// WriteUnsigned writes the low width bits of v in the writer's byte order
func (w *Writer) WriteUnsigned(width int, v uint64) error {
	return w.WriteUnsignedOrder(width, v, w.order)
}

// WriteSigned writes v as a width-bit two's complement value
func (w *Writer) WriteSigned(width int, v int64) error {
	return w.WriteSignedOrder(width, v, w.order)
}

// WriteSignedOrder is WriteSigned with an explicit byte order
func (w *Writer) WriteSignedOrder(width int, v int64, order ByteOrder) error {
	if width < 1 || width > MaxWidth {
		return errors.Wrapf(ErrInvalidWidth, "width %d", width)
	}
	if width < 64 {
		lo, hi := -(int64(1) << (width - 1)), int64(1)<<(width-1)-1
		if v < lo || v > hi {
			return errors.Wrapf(ErrValueOverflow, "%d in %d signed bits", v, width)
		}
	}
	return w.WriteUnsignedOrder(width, uint64(v)&mask(width), order)
}

// WriteUnsignedOrder is WriteUnsigned with an explicit byte order
func (w *Writer) WriteUnsignedOrder(width int, v uint64, order ByteOrder) error {
	if width < 1 || width > MaxWidth {
		return errors.Wrapf(ErrInvalidWidth, "width %d", width)
	}
	if v&^mask(width) != 0 {
		return errors.Wrapf(ErrValueOverflow, "%d in %d unsigned bits", v, width)
	}
	start := w.pos
	w.grow(start + width)

	pos := start
	if order == LittleEndian {
		for shift := 0; shift < width; {
			off := pos & 7
			n := min(8-off, width-shift)
			w.buf[pos>>3] |= byte(((v >> shift) & (1<<n - 1)) << off)
			pos += n
			shift += n
		}
		return nil
	}
	for left := width; left > 0; {
		avail := 8 - pos&7
		n := min(avail, left)
		w.buf[pos>>3] |= byte(((v >> (left - n)) & (1<<n - 1)) << (avail - n))
		pos += n
		left -= n
	}
	return nil
}

// WriteBytes aligns to a byte boundary and appends p
func (w *Writer) WriteBytes(p []byte) {
	w.grow(AlignUp(w.pos, 8))
	w.buf = append(w.buf, p...)
	w.pos += len(p) * 8
}

// grow extends the buffer with zero bytes so that bit pos-1 exists, and moves
// the cursor to pos.
func (w *Writer) grow(pos int) {
	need := (pos + 7) / 8
	for len(w.buf) < need {
		w.buf = append(w.buf, 0)
	}
	w.pos = pos
}

func mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<width - 1
}
