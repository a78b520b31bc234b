package ctf

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// FloatDeclaration describes a binary floating point value with a sign bit,
// exponentBits of biased exponent and mantissaBits of fraction.
type FloatDeclaration struct {
	exponent  int
	mantissa  int
	order     bitbuf.ByteOrder
	alignment int
}

// NewFloatDeclaration creates a float declaration. The total width,
// 1 + exponent + mantissa, must not exceed 64 bits.
func NewFloatDeclaration(exponent, mantissa int, order bitbuf.ByteOrder, alignment int) (*FloatDeclaration, error) {
	if exponent < 1 || mantissa < 1 || 1+exponent+mantissa > bitbuf.MaxWidth {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "float exponent %d mantissa %d", exponent, mantissa)
	}
	if !order.Valid() {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "float byte order %d", order)
	}
	if !validAlignment(alignment) {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "float alignment %d", alignment)
	}
	return &FloatDeclaration{exponent: exponent, mantissa: mantissa, order: order, alignment: alignment}, nil
}

func (d *FloatDeclaration) Kind() Kind                  { return KindFloat }
func (d *FloatDeclaration) Alignment() int              { return d.alignment }
func (d *FloatDeclaration) MaximumSize() int            { return d.Width() }
func (d *FloatDeclaration) Exponent() int               { return d.exponent }
func (d *FloatDeclaration) Mantissa() int               { return d.mantissa }
func (d *FloatDeclaration) ByteOrder() bitbuf.ByteOrder { return d.order }

// Width returns the encoded size in bits, sign included
func (d *FloatDeclaration) Width() int {
	return 1 + d.exponent + d.mantissa
}

// CreateDefinition implements Declaration. Only 32 and 64 bit layouts are
// reconstructed; any other total width is consumed and decodes to NaN.
func (d *FloatDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	if err := alignRead(r, d); err != nil {
		return nil, err
	}
	raw, err := r.ReadUnsignedOrder(d.Width(), d.order)
	if err != nil {
		return nil, err
	}
	value := math.NaN()
	if w := d.Width(); w == 32 || w == 64 {
		value = FloatFromBits(raw, d.exponent, d.mantissa)
	}
	return &FloatDefinition{definition: definition{scope, fieldName}, decl: d, value: value}, nil
}

func (d *FloatDeclaration) String() string {
	return fmt.Sprintf("floating_point<exp=%d mant=%d %v align=%d>", d.exponent, d.mantissa, d.order, d.alignment)
}

// FloatFromBits applies IEEE 754 reconstruction generalized to any exponent
// and mantissa width. The sign bit sits just above the exponent.
func FloatFromBits(raw uint64, exponent, mantissa int) float64 {
	expMax := uint64(1)<<exponent - 1
	bias := int(expMax >> 1)

	neg := (raw>>(exponent+mantissa))&1 == 1
	e := (raw >> mantissa) & expMax
	m := raw & (uint64(1)<<mantissa - 1)

	var v float64
	switch {
	case e == expMax && m == 0:
		v = math.Inf(1)
	case e == expMax:
		return math.NaN()
	case e == 0:
		// zero and subnormals: m/2^M * 2^(1-bias)
		v = math.Ldexp(float64(m), 1-bias-mantissa)
	default:
		v = math.Ldexp(float64(m|uint64(1)<<mantissa), int(e)-bias-mantissa)
	}
	if neg {
		return -v
	}
	return v
}

// FloatToBits is the inverse of FloatFromBits, rounding the fraction to
// nearest even. Values too large for the exponent become infinities.
func FloatToBits(v float64, exponent, mantissa int) uint64 {
	expMax := uint64(1)<<exponent - 1
	bias := int(expMax >> 1)
	signShift := exponent + mantissa

	var sign uint64
	if math.Signbit(v) {
		sign = 1 << signShift
		v = -v
	}
	switch {
	case math.IsNaN(v):
		return expMax<<mantissa | uint64(1)<<(mantissa-1)
	case math.IsInf(v, 0):
		return sign | expMax<<mantissa
	case v == 0:
		return sign
	}

	frac, exp := math.Frexp(v) // v = frac * 2^exp, frac in [0.5, 1)
	e := exp - 1 + bias
	if e <= 0 {
		m := uint64(math.RoundToEven(math.Ldexp(v, mantissa+bias-1)))
		return sign | m
	}
	m := uint64(math.RoundToEven(math.Ldexp(2*frac-1, mantissa)))
	bits := uint64(e)<<mantissa + m // a rounding carry bumps the exponent
	if bits>>mantissa >= expMax {
		return sign | expMax<<mantissa
	}
	return sign | bits
}

// FloatDefinition is a decoded floating point value
type FloatDefinition struct {
	definition
	decl  *FloatDeclaration
	value float64
}

func (d *FloatDefinition) Declaration() Declaration { return d.decl }
func (d *FloatDefinition) Float64() float64         { return d.value }
func (d *FloatDefinition) Value() any               { return d.value }

func (d *FloatDefinition) String() string {
	return strconv.FormatFloat(d.value, 'g', -1, 64)
}
