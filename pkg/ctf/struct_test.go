package ctf

import (
	"testing"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStruct(t *testing.T, align int, fields ...Field) *StructDeclaration {
	t.Helper()
	s, err := NewStructDeclaration(align)
	require.NoError(t, err)
	for _, f := range fields {
		require.NoError(t, s.AddField(f.Name, f.Declaration))
	}
	return s
}

func TestStructDecodesFieldsInOrder(t *testing.T) {
	s := newTestStruct(t, 1,
		Field{"a", newTestInteger(t, 3, false, 1)},
		Field{"b", newTestInteger(t, 5, false, 1)},
		Field{"c", newTestInteger(t, 16, false, 8)},
	)
	// 101 00110 | 0x1234
	r := bitbuf.NewReader([]byte{0xA6, 0x12, 0x34}, bitbuf.BigEndian)
	def, err := s.CreateDefinition(nil, "payload", r)
	require.NoError(t, err)
	assert.Equal(t, 24, r.Position())

	st := def.(*StructDefinition)
	assert.Equal(t, map[string]any{"a": uint64(5), "b": uint64(6), "c": uint64(0x1234)}, st.Value())
	assert.Equal(t, "{ a = 5, b = 6, c = 4660 }", st.String())
	assert.Equal(t, "payload.c", st.Field("c").Path())
	require.Len(t, st.Fields(), 3)
}

func TestStructAlignment(t *testing.T) {
	s := newTestStruct(t, 1, Field{"a", newTestInteger(t, 1, false, 1)})
	assert.Equal(t, 1, s.Alignment())
	require.NoError(t, s.AddField("b", newTestInteger(t, 32, false, 32)))
	assert.Equal(t, 32, s.Alignment())
	assert.Equal(t, 1, s.DeclaredAlignment())

	// a(1) pad(31) b(32)
	assert.Equal(t, 64, s.MaximumSize())

	r := bitbuf.NewReader(make([]byte, 12), bitbuf.BigEndian)
	require.NoError(t, r.Skip(3))
	_, err := s.CreateDefinition(nil, "", r)
	require.NoError(t, err)
	assert.Equal(t, 96, r.Position())
}

func TestStructDuplicateField(t *testing.T) {
	s := newTestStruct(t, 8, Field{"a", newTestInteger(t, 8, false, 8)})
	assert.ErrorIs(t, s.AddField("a", newTestInteger(t, 8, false, 8)), ErrDuplicateField)
	assert.ErrorIs(t, s.AddField("", newTestInteger(t, 8, false, 8)), ErrInvalidDeclaration)
	assert.Len(t, s.Fields(), 1)
	assert.Nil(t, s.Field("missing"))
}

func TestStructUnboundedSize(t *testing.T) {
	s := newTestStruct(t, 8,
		Field{"name", NewStringDeclaration(EncodingUTF8)},
		Field{"n", newTestInteger(t, 8, false, 8)},
	)
	assert.Equal(t, UnboundedSize, s.MaximumSize())
}

func TestStructLookup(t *testing.T) {
	inner := newTestStruct(t, 8, Field{"_len", newTestInteger(t, 8, false, 8)})
	outer := newTestStruct(t, 8,
		Field{"ctx", inner},
		Field{"x", newTestInteger(t, 8, false, 8)},
	)
	def, err := outer.CreateDefinition(nil, "event", bitbuf.NewReader([]byte{3, 4}, bitbuf.BigEndian))
	require.NoError(t, err)
	st := def.(*StructDefinition)

	assert.Equal(t, uint64(4), st.Lookup("x").Value())
	assert.Equal(t, uint64(3), st.Lookup("ctx.len").Value(), "underscore prefix")
	assert.Equal(t, uint64(3), st.Lookup("ctx._len").Value())
	assert.Nil(t, st.Lookup("ctx.missing"))
	assert.Nil(t, st.Lookup(""))

	ctx := st.Field("ctx").(*StructDefinition)
	assert.Equal(t, uint64(4), ctx.Lookup("x").Value(), "parent scope")
	assert.Equal(t, "event.ctx", ctx.ScopePath())
}

func TestRootScope(t *testing.T) {
	packet := newTestStruct(t, 8, Field{"cpu_id", newTestInteger(t, 8, false, 8)})
	ctx, err := packet.CreateDefinition(nil, "", bitbuf.NewReader([]byte{2}, bitbuf.BigEndian))
	require.NoError(t, err)

	root := NewRootScope("trace", map[string]Definition{"stream.packet.context": ctx})
	assert.Equal(t, uint64(2), root.Lookup("stream.packet.context.cpu_id").Value())
	assert.Same(t, ctx, root.Lookup("stream.packet.context"))
	assert.Nil(t, root.Lookup("stream.event.header"))

	ev := newTestStruct(t, 8, Field{"x", newTestInteger(t, 8, false, 8)})
	def, err := ev.CreateDefinition(root, "event", bitbuf.NewReader([]byte{9}, bitbuf.BigEndian))
	require.NoError(t, err)
	st := def.(*StructDefinition)
	assert.Equal(t, "trace.event", st.Path())
	assert.Equal(t, uint64(2), st.Lookup("stream.packet.context.cpu_id").Value())
}
