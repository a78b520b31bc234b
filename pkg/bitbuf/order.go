package bitbuf

import (
	"encoding/binary"
	"strings"

	"github.com/cockroachdb/errors"
)

// ByteOrder selects how bits of a value are laid out in the byte stream
type ByteOrder uint8

const (
	// BigEndian numbers bits from the most significant bit of each byte
	BigEndian ByteOrder = iota
	// LittleEndian numbers bits from the least significant bit of each byte
	LittleEndian
)

// String implements fmt.Stringer.
func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "be"
	case LittleEndian:
		return "le"
	}
	return "ByteOrder(invalid)"
}

// Valid reports whether o is one of the declared byte orders
func (o ByteOrder) Valid() bool {
	return o == BigEndian || o == LittleEndian
}

// Binary returns the encoding/binary equivalent of o
func (o ByteOrder) Binary() binary.ByteOrder {
	if o == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// ParseByteOrder accepts "be", "big", "big_endian", "network", "le", "little"
// and "little_endian" in any case.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "be", "big", "big_endian", "big-endian", "network":
		return BigEndian, nil
	case "le", "little", "little_endian", "little-endian":
		return LittleEndian, nil
	}
	return 0, errors.Newf("unknown byte order %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o ByteOrder) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, errors.Newf("invalid byte order %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *ByteOrder) UnmarshalText(text []byte) error {
	v, err := ParseByteOrder(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
