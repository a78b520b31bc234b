package ctf

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// Encoding is the character encoding attached to integers and strings
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingUTF8
	EncodingASCII
)

// String implements fmt.Stringer.
func (e Encoding) String() string {
	switch e {
	case EncodingUTF8:
		return "UTF8"
	case EncodingASCII:
		return "ASCII"
	}
	return "none"
}

// IntegerDeclaration describes an integer of 1 to 64 bits
type IntegerDeclaration struct {
	width     int
	signed    bool
	base      int
	order     bitbuf.ByteOrder
	alignment int
	encoding  Encoding
	clock     string
}

// IntegerOption configures optional integer attributes
type IntegerOption func(*IntegerDeclaration)

// WithEncoding marks the integer as a character of the given encoding
func WithEncoding(enc Encoding) IntegerOption {
	return func(d *IntegerDeclaration) { d.encoding = enc }
}

// WithClock maps the integer to a named trace clock
func WithClock(name string) IntegerOption {
	return func(d *IntegerDeclaration) { d.clock = name }
}

// NewIntegerDeclaration validates and creates an integer declaration. The base
// only affects formatting.
func NewIntegerDeclaration(width int, signed bool, base int, order bitbuf.ByteOrder, alignment int, opts ...IntegerOption) (*IntegerDeclaration, error) {
	if width < 1 || width > bitbuf.MaxWidth {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "integer width %d outside 1..64", width)
	}
	switch base {
	case 2, 8, 10, 16:
	default:
		return nil, errors.Wrapf(ErrInvalidDeclaration, "integer base %d", base)
	}
	if !order.Valid() {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "integer byte order %d", order)
	}
	if !validAlignment(alignment) {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "integer alignment %d", alignment)
	}
	d := &IntegerDeclaration{
		width:     width,
		signed:    signed,
		base:      base,
		order:     order,
		alignment: alignment,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// mustInteger is used for the package's own fixed declarations
func mustInteger(width int, signed bool, base int, order bitbuf.ByteOrder, alignment int) *IntegerDeclaration {
	d, err := NewIntegerDeclaration(width, signed, base, order, alignment)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *IntegerDeclaration) Kind() Kind                  { return KindInteger }
func (d *IntegerDeclaration) Alignment() int              { return d.alignment }
func (d *IntegerDeclaration) MaximumSize() int            { return d.width }
func (d *IntegerDeclaration) Width() int                  { return d.width }
func (d *IntegerDeclaration) Signed() bool                { return d.signed }
func (d *IntegerDeclaration) Base() int                   { return d.base }
func (d *IntegerDeclaration) ByteOrder() bitbuf.ByteOrder { return d.order }
func (d *IntegerDeclaration) Encoding() Encoding          { return d.encoding }
func (d *IntegerDeclaration) Clock() string               { return d.clock }

// IsCharacter reports whether the integer is an 8-bit character
func (d *IntegerDeclaration) IsCharacter() bool {
	return d.width == 8 && d.encoding != EncodingNone
}

// MaxValue returns the largest representable value. For signed integers it is
// the positive limit.
func (d *IntegerDeclaration) MaxValue() uint64 {
	if d.signed {
		return uint64(1)<<(d.width-1) - 1
	}
	if d.width == 64 {
		return ^uint64(0)
	}
	return uint64(1)<<d.width - 1
}

// MinValue returns the smallest representable value
func (d *IntegerDeclaration) MinValue() int64 {
	if !d.signed {
		return 0
	}
	return -(int64(1) << (d.width - 1))
}

// CreateDefinition implements Declaration.
func (d *IntegerDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	return d.read(scope, fieldName, r)
}

func (d *IntegerDeclaration) read(scope Scope, fieldName string, r *bitbuf.Reader) (*IntegerDefinition, error) {
	if err := alignRead(r, d); err != nil {
		return nil, err
	}
	raw, err := r.ReadUnsignedOrder(d.width, d.order)
	if err != nil {
		return nil, err
	}
	return &IntegerDefinition{definition: definition{scope, fieldName}, decl: d, raw: raw}, nil
}

func (d *IntegerDeclaration) String() string {
	sign := "u"
	if d.signed {
		sign = "s"
	}
	return fmt.Sprintf("integer<%s%d %v align=%d base=%d>", sign, d.width, d.order, d.alignment, d.base)
}

// IntegerDefinition is a decoded integer. The raw bits are kept unsigned so a
// 64-bit unsigned value never overflows.
type IntegerDefinition struct {
	definition
	decl *IntegerDeclaration
	raw  uint64
}

// NewIntegerDefinition wraps an already known value, for scopes assembled by
// callers.
func NewIntegerDefinition(decl *IntegerDeclaration, scope Scope, fieldName string, raw uint64) *IntegerDefinition {
	return &IntegerDefinition{definition: definition{scope, fieldName}, decl: decl, raw: raw}
}

func (d *IntegerDefinition) Declaration() Declaration { return d.decl }

// IntegerDeclaration returns the typed declaration
func (d *IntegerDefinition) IntegerDeclaration() *IntegerDeclaration { return d.decl }

// Uint64 returns the value as unsigned bits
func (d *IntegerDefinition) Uint64() uint64 { return d.raw }

// Int64 returns the value sign extended when the declaration is signed
func (d *IntegerDefinition) Int64() int64 {
	if d.decl.signed {
		return bitbuf.SignExtend(d.raw, d.decl.width)
	}
	return int64(d.raw)
}

// Value returns int64 for signed and uint64 for unsigned integers.
func (d *IntegerDefinition) Value() any {
	if d.decl.signed {
		return d.Int64()
	}
	return d.raw
}

func (d *IntegerDefinition) String() string {
	return formatInteger(d.raw, d.decl)
}

func formatInteger(raw uint64, decl *IntegerDeclaration) string {
	switch decl.base {
	case 2:
		return "0b" + strconv.FormatUint(raw, 2)
	case 8:
		return "0" + strconv.FormatUint(raw, 8)
	case 16:
		return "0x" + strconv.FormatUint(raw, 16)
	}
	if decl.signed {
		return strconv.FormatInt(bitbuf.SignExtend(raw, decl.width), 10)
	}
	return strconv.FormatUint(raw, 10)
}
