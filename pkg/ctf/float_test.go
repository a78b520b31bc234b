package ctf

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFloat(t *testing.T, exponent, mantissa int, buf []byte) (float64, int) {
	t.Helper()
	decl, err := NewFloatDeclaration(exponent, mantissa, bitbuf.BigEndian, 8)
	require.NoError(t, err)
	r := bitbuf.NewReader(buf, bitbuf.BigEndian)
	def, err := decl.CreateDefinition(nil, "f", r)
	require.NoError(t, err)
	return def.(*FloatDefinition).Float64(), r.Position()
}

func TestFloatTwoAtEveryThirtyTwoBitSplit(t *testing.T) {
	splits := [][2]int{{8, 23}, {9, 22}, {10, 21}, {11, 20}, {15, 16}}
	for _, s := range splits {
		v, pos := decodeFloat(t, s[0], s[1], []byte{0x40, 0, 0, 0})
		assert.Equal(t, 2.0, v, "split %v", s)
		assert.Equal(t, 32, pos)

		v, _ = decodeFloat(t, s[0], s[1], []byte{0xC0, 0, 0, 0})
		assert.Equal(t, -2.0, v, "split %v", s)
	}
}

func TestFloatNonStandardWidthIsNaN(t *testing.T) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, 0x4000000000000000)
	v, pos := decodeFloat(t, 12, 32, buf)
	assert.True(t, math.IsNaN(v))
	assert.Equal(t, 45, pos)
}

func TestFloatMatchesIEEE754(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		bits32 := rnd.Uint32()
		buf := binary.BigEndian.AppendUint32(nil, bits32)
		v, _ := decodeFloat(t, 8, 23, buf)
		want := float64(math.Float32frombits(bits32))
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(v))
			continue
		}
		assert.Equal(t, want, v, "bits %#x", bits32)

		bits64 := rnd.Uint64()
		buf = binary.BigEndian.AppendUint64(nil, bits64)
		v, _ = decodeFloat(t, 11, 52, buf)
		want = math.Float64frombits(bits64)
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(v))
			continue
		}
		assert.Equal(t, want, v, "bits %#x", bits64)
	}
}

func TestFloatSpecialValues(t *testing.T) {
	tests := []struct {
		name string
		bits uint32
		want float64
	}{
		{"zero", 0x00000000, 0},
		{"negative zero", 0x80000000, math.Copysign(0, -1)},
		{"smallest subnormal", 0x00000001, float64(math.Float32frombits(1))},
		{"infinity", 0x7F800000, math.Inf(1)},
		{"negative infinity", 0xFF800000, math.Inf(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, _ := decodeFloat(t, 8, 23, binary.BigEndian.AppendUint32(nil, tc.bits))
			assert.Equal(t, tc.want, v)
			assert.Equal(t, math.Signbit(tc.want), math.Signbit(v))
		})
	}
	v, _ := decodeFloat(t, 8, 23, binary.BigEndian.AppendUint32(nil, 0x7FC00000))
	assert.True(t, math.IsNaN(v))
}

func TestFloatToBits(t *testing.T) {
	values := []float64{1.5, -0.1, 3.4e38, 1e-40, 0, math.Copysign(0, -1), math.Inf(-1), 123456.789}
	for _, v := range values {
		assert.Equal(t, uint64(math.Float32bits(float32(v))), FloatToBits(v, 8, 23), "value %v", v)
		assert.Equal(t, math.Float64bits(v), FloatToBits(v, 11, 52), "value %v", v)
	}
	assert.Equal(t, uint64(0x7F800000), FloatToBits(1e39, 8, 23))
	assert.Equal(t, uint64(0xFF800000), FloatToBits(-1e39, 8, 23))
	assert.True(t, math.IsNaN(FloatFromBits(FloatToBits(math.NaN(), 8, 23), 8, 23)))
}

func TestFloatLittleEndian(t *testing.T) {
	decl, err := NewFloatDeclaration(8, 23, bitbuf.LittleEndian, 32)
	require.NoError(t, err)
	buf := binary.LittleEndian.AppendUint32(nil, math.Float32bits(-6.25))
	def, err := decl.CreateDefinition(nil, "f", bitbuf.NewReader(buf, bitbuf.LittleEndian))
	require.NoError(t, err)
	assert.Equal(t, -6.25, def.Value())
	assert.Equal(t, "-6.25", def.String())
}

func TestNewFloatDeclarationRejects(t *testing.T) {
	_, err := NewFloatDeclaration(12, 52, bitbuf.BigEndian, 8)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
	_, err = NewFloatDeclaration(0, 23, bitbuf.BigEndian, 8)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}
