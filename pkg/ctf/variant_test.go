package ctf

import (
	"testing"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTaggedStruct declares
//
//	struct { enum : uint8 { INT = 0, STR = 1, LOST = 2, ORPHAN = 3 } kind; variant <kind> { int16 INT; string STR; } value; }
func newTaggedStruct(t *testing.T, tag string) *StructDeclaration {
	t.Helper()
	kind := newTestEnum(t, newTestInteger(t, 8, false, 8),
		Range{0, 0, "INT"},
		Range{1, 1, "STR"},
		Range{3, 3, "ORPHAN"},
	)
	v, err := NewVariantDeclaration(tag)
	require.NoError(t, err)
	require.NoError(t, v.AddBranch("INT", newTestInteger(t, 16, true, 8)))
	require.NoError(t, v.AddBranch("STR", NewStringDeclaration(EncodingUTF8)))
	return newTestStruct(t, 8, Field{"kind", kind}, Field{"value", v})
}

func TestVariantSelectsBranch(t *testing.T) {
	s := newTaggedStruct(t, "kind")

	def, err := s.CreateDefinition(nil, "", bitbuf.NewReader([]byte{0, 0xFF, 0xFE}, bitbuf.BigEndian))
	require.NoError(t, err)
	v := def.(*StructDefinition).Field("value").(*VariantDefinition)
	assert.Equal(t, "INT", v.Branch())
	assert.Equal(t, int64(-2), v.Current().Value())
	assert.Equal(t, map[string]any{"INT": int64(-2)}, v.Value())
	assert.Equal(t, "value.INT", v.Current().Path())

	r := bitbuf.NewReader([]byte{1, 'h', 'i', 0}, bitbuf.BigEndian)
	def, err = s.CreateDefinition(nil, "", r)
	require.NoError(t, err)
	v = def.(*StructDefinition).Field("value").(*VariantDefinition)
	assert.Equal(t, "hi", v.Current().Value())
	assert.Equal(t, 32, r.Position())
	assert.Same(t, v.Current(), def.(*StructDefinition).Lookup("value.STR"))
}

func TestVariantErrors(t *testing.T) {
	t.Run("no branch for label", func(t *testing.T) {
		_, err := newTaggedStruct(t, "kind").CreateDefinition(nil, "", bitbuf.NewReader([]byte{3, 0, 0}, bitbuf.BigEndian))
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})
	t.Run("value without label", func(t *testing.T) {
		_, err := newTaggedStruct(t, "kind").CreateDefinition(nil, "", bitbuf.NewReader([]byte{2, 0, 0}, bitbuf.BigEndian))
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})
	t.Run("tag missing", func(t *testing.T) {
		_, err := newTaggedStruct(t, "other").CreateDefinition(nil, "", bitbuf.NewReader([]byte{0, 0, 0}, bitbuf.BigEndian))
		assert.ErrorIs(t, err, ErrUnresolvedTag)
	})
	t.Run("tag not an enum", func(t *testing.T) {
		v, err := NewVariantDeclaration("n")
		require.NoError(t, err)
		require.NoError(t, v.AddBranch("A", newTestInteger(t, 8, false, 8)))
		s := newTestStruct(t, 8, Field{"n", newTestInteger(t, 8, false, 8)}, Field{"v", v})
		_, err = s.CreateDefinition(nil, "", bitbuf.NewReader([]byte{0, 0}, bitbuf.BigEndian))
		assert.ErrorIs(t, err, ErrUnresolvedTag)
	})
	t.Run("no scope", func(t *testing.T) {
		v, err := NewVariantDeclaration("kind")
		require.NoError(t, err)
		def, err := v.CreateDefinition(nil, "v", bitbuf.NewReader([]byte{0}, bitbuf.BigEndian))
		assert.Nil(t, def)
		assert.ErrorIs(t, err, ErrUnresolvedTag)
	})
	t.Run("underflow in branch", func(t *testing.T) {
		_, err := newTaggedStruct(t, "kind").CreateDefinition(nil, "", bitbuf.NewReader([]byte{0, 0xFF}, bitbuf.BigEndian))
		assert.ErrorIs(t, err, bitbuf.ErrBufferUnderflow)
	})
}

func TestVariantTagInAncestor(t *testing.T) {
	kind := newTestEnum(t, newTestInteger(t, 8, false, 8), Range{0, 0, "A"}, Range{1, 1, "B"})
	v, err := NewVariantDeclaration("header.kind")
	require.NoError(t, err)
	require.NoError(t, v.AddBranch("A", newTestInteger(t, 8, false, 8)))
	require.NoError(t, v.AddBranch("B", newTestInteger(t, 16, false, 8)))

	header := newTestStruct(t, 8, Field{"kind", kind})
	payload := newTestStruct(t, 8, Field{"v", v})
	event := newTestStruct(t, 8, Field{"header", header}, Field{"payload", payload})

	def, err := event.CreateDefinition(nil, "", bitbuf.NewReader([]byte{1, 0x01, 0x02}, bitbuf.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102), def.(*StructDefinition).Lookup("payload.v.B").Value())
}

func TestVariantDeclaration(t *testing.T) {
	v, err := NewVariantDeclaration("tag")
	require.NoError(t, err)
	require.NoError(t, v.AddBranch("a", newTestInteger(t, 3, false, 1)))
	require.NoError(t, v.AddBranch("b", newTestInteger(t, 32, false, 32)))
	assert.ErrorIs(t, v.AddBranch("a", newTestInteger(t, 8, false, 8)), ErrDuplicateField)

	assert.Equal(t, 1, v.Alignment())
	assert.Equal(t, 32, v.MaximumSize())
	assert.Nil(t, v.Branch("c"))
	assert.Len(t, v.Branches(), 2)

	_, err = NewVariantDeclaration("")
	assert.ErrorIs(t, err, ErrInvalidDeclaration)
}
