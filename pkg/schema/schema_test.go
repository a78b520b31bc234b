package schema

import (
	"math"
	"strings"
	"testing"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/codec"
	"github.com/ssargent/bitctf/pkg/ctf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSchedSwitch(t *testing.T, opts ...Option) *ctf.StructDeclaration {
	t.Helper()
	doc, err := LoadFile("testdata/sched_switch.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sched_switch", doc.Name)

	decl, err := Compile(doc, opts...)
	require.NoError(t, err)
	root, ok := decl.(*ctf.StructDeclaration)
	require.True(t, ok, "root is %T", decl)
	return root
}

func schedSwitchValue() map[string]any {
	return map[string]any{
		"header":     map[string]any{"id": uint64(16), "timestamp": uint64(0x42)},
		"prev_comm":  "bash",
		"prev_tid":   int64(42),
		"prev_prio":  int64(-20),
		"prev_state": "TASK_INTERRUPTIBLE",
		"next_tid":   int64(7),
		"nr_args":    uint64(2),
		"args":       []any{uint64(1), uint64(math.MaxUint64)},
		"reason":     "preempt",
	}
}

func TestCompileReplacesHeaderShape(t *testing.T) {
	root := loadSchedSwitch(t)

	header := root.Field("header")
	assert.Same(t, ctf.CompactEventHeader(bitbuf.BigEndian), header)
	assert.Equal(t, []HeaderMatch{{Path: "header", Kind: ctf.HeaderCompact, Specialized: true}}, FindEventHeaders(root))

	generic := loadSchedSwitch(t, WithGenericHeaders())
	s, ok := generic.Field("header").(*ctf.StructDeclaration)
	require.True(t, ok)
	assert.True(t, ctf.IsCompactEventHeader(s))
	assert.False(t, ctf.IsLargeEventHeader(s))
	assert.Equal(t, []HeaderMatch{{Path: "header", Kind: ctf.HeaderCompact}}, FindEventHeaders(generic))
}

func TestCompiledSchemaDecodes(t *testing.T) {
	root := loadSchedSwitch(t)
	in := schedSwitchValue()

	buf, err := codec.Encode(root, in)
	require.NoError(t, err)

	def, err := root.CreateDefinition(nil, "", bitbuf.NewReader(buf, bitbuf.BigEndian))
	require.NoError(t, err)
	assert.Equal(t, in, def.Value())

	// the same bytes through the generic tree
	generic := loadSchedSwitch(t, WithGenericHeaders())
	gdef, err := generic.CreateDefinition(nil, "", bitbuf.NewReader(buf, bitbuf.BigEndian))
	require.NoError(t, err)

	got := gdef.Value().(map[string]any)
	assert.Equal(t, map[string]any{
		"id": "compact",
		"v":  map[string]any{"compact": map[string]any{"timestamp": uint64(0x42)}},
	}, got["header"])
	assert.Equal(t, in["prev_comm"], got["prev_comm"])
	assert.Equal(t, in["args"], got["args"])

	id, ok := gdef.(ctf.Scope).Lookup("header.id").(*ctf.EnumDefinition)
	require.True(t, ok)
	assert.Equal(t, uint64(16), id.Integer().Uint64())
}

func TestCompileSharesTypeAliases(t *testing.T) {
	root := loadSchedSwitch(t, WithGenericHeaders())
	seq, ok := root.Field("args").(*ctf.SequenceDeclaration)
	require.True(t, ok)
	assert.Equal(t, 8, seq.MaxLength())
	assert.Equal(t, "nr_args", seq.LengthField())

	v := root.Field("header").(*ctf.StructDeclaration).Field("v").(*ctf.VariantDeclaration)
	ext := v.Branch("extended").(*ctf.StructDeclaration)
	assert.Same(t, seq.Element(), ext.Field("timestamp"))
}

func TestCompileOptions(t *testing.T) {
	doc, err := LoadBytes([]byte(`
name: limits
root:
  type: struct
  fields:
    - name: n
      type: integer
      size: 8
    - name: items
      type: sequence
      length_field: n
      element:
        type: integer
        size: 8
`))
	require.NoError(t, err)

	decl, err := Compile(doc, WithMaxSequence(4))
	require.NoError(t, err)
	seq := decl.(*ctf.StructDeclaration).Field("items").(*ctf.SequenceDeclaration)
	assert.Equal(t, 4, seq.MaxLength())

	decl, err = Compile(doc)
	require.NoError(t, err)
	seq = decl.(*ctf.StructDeclaration).Field("items").(*ctf.SequenceDeclaration)
	assert.Equal(t, ctf.MaxSequenceLength, seq.MaxLength())

	_, err = Compile(doc, WithMaxSequence(0))
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestCompileDefaults(t *testing.T) {
	doc, err := LoadBytes([]byte(`
name: defaults
byte_order: le
root:
  type: struct
  fields:
    - name: bits
      type: integer
      size: 3
    - name: word
      type: integer
      size: 16
      base: 16
    - name: half
      type: float
      exponent: 5
      mantissa: 10
`))
	require.NoError(t, err)
	decl, err := Compile(doc)
	require.NoError(t, err)
	s := decl.(*ctf.StructDeclaration)

	bits := s.Field("bits").(*ctf.IntegerDeclaration)
	assert.Equal(t, 1, bits.Alignment())
	assert.Equal(t, bitbuf.LittleEndian, bits.ByteOrder())
	assert.Equal(t, 10, bits.Base())

	word := s.Field("word").(*ctf.IntegerDeclaration)
	assert.Equal(t, 8, word.Alignment())
	assert.Equal(t, 16, word.Base())

	half := s.Field("half").(*ctf.FloatDeclaration)
	assert.Equal(t, 16, half.Width())
	assert.Equal(t, 8, half.Alignment())
	assert.Equal(t, 1, s.DeclaredAlignment())
}

func TestDescribeRoundTrip(t *testing.T) {
	for _, opts := range [][]Option{nil, {WithGenericHeaders()}} {
		root := loadSchedSwitch(t, opts...)
		node, err := Describe(root)
		require.NoError(t, err)

		data, err := (&Document{Name: "copy", Root: node}).Marshal()
		require.NoError(t, err)
		doc, err := LoadBytes(data)
		require.NoError(t, err)
		again, err := Compile(doc, opts...)
		require.NoError(t, err)

		node2, err := Describe(again)
		require.NoError(t, err)
		assert.Equal(t, node, node2)
		assert.Equal(t, root.String(), again.String())
	}
}

func TestDescribeUnsignedBounds(t *testing.T) {
	doc, err := LoadBytes([]byte(`
name: wide
root:
  type: enum
  container:
    type: integer
    size: 64
  mappings:
    - label: top
      low: 0x8000000000000000
      high: 18446744073709551615
`))
	require.NoError(t, err)
	decl, err := Compile(doc)
	require.NoError(t, err)
	enum := decl.(*ctf.EnumDeclaration)
	label, ok := enum.Lookup(math.MaxUint64)
	assert.True(t, ok)
	assert.Equal(t, "top", label)

	node, err := Describe(enum)
	require.NoError(t, err)
	data, err := (&Document{Name: "wide", Root: node}).Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "18446744073709551615")
	assert.Contains(t, string(data), "9223372036854775808")
}

func TestCanonicalHeader(t *testing.T) {
	for _, kind := range []ctf.HeaderKind{ctf.HeaderCompact, ctf.HeaderLarge} {
		t.Run(kind.String(), func(t *testing.T) {
			doc, err := CanonicalHeader(kind)
			require.NoError(t, err)
			data, err := doc.Marshal()
			require.NoError(t, err)

			loaded, err := LoadBytes(data)
			require.NoError(t, err)

			fast, err := Compile(loaded)
			require.NoError(t, err)
			assert.Same(t, ctf.GetEventHeader(kind, bitbuf.BigEndian), fast)

			generic, err := Compile(loaded, WithGenericHeaders())
			require.NoError(t, err)
			h, ok := ctf.ClassifyEventHeader(generic.(*ctf.StructDeclaration))
			require.True(t, ok)
			assert.Equal(t, kind, h.HeaderKind())
			assert.Equal(t, fast.MaximumSize(), generic.MaximumSize())
		})
	}
}

func TestFindEventHeadersNested(t *testing.T) {
	doc, err := LoadBytes([]byte(`
name: stream
root:
  type: struct
  fields:
    - name: kind
      type: enum
      container: {type: integer, size: 8}
      mappings:
        - {label: small, value: 0}
        - {label: big, value: 1}
    - name: body
      type: variant
      tag: kind
      branches:
        - name: small
          type: event_header
          header: compact
        - name: big
          type: array
          length: 2
          element:
            type: event_header
            header: large
            byte_order: le
`))
	require.NoError(t, err)
	decl, err := Compile(doc)
	require.NoError(t, err)

	assert.Equal(t, []HeaderMatch{
		{Path: "body.small", Kind: ctf.HeaderCompact, Specialized: true},
		{Path: "body.big[]", Kind: ctf.HeaderLarge, Specialized: true},
	}, FindEventHeaders(decl))

	arr := decl.(*ctf.StructDeclaration).Field("body").(*ctf.VariantDeclaration).Branch("big").(*ctf.ArrayDeclaration)
	assert.Same(t, ctf.LargeEventHeader(bitbuf.LittleEndian), arr.Element())
}

func TestLoadAndCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty document", ""},
		{"missing root", "name: x"},
		{"unknown key", "root: {type: integer, size: 8, bogus: 1}"},
		{"missing type", "root: {size: 8}"},
		{"unknown type", "root: {type: nope}"},
		{"self reference", "types: {a: {type: a}}\nroot: {type: a}"},
		{"integer without size", "root: {type: integer}"},
		{"integer base", "root: {type: integer, size: 8, base: 7}"},
		{"bad byte order", "root: {type: integer, size: 8, byte_order: middle}"},
		{"bad document byte order", "byte_order: middle\nroot: {type: string}"},
		{"bad encoding", "root: {type: string, encoding: ebcdic}"},
		{"float too wide", "root: {type: float, exponent: 11, mantissa: 60}"},
		{"enum without container", "root: {type: enum}"},
		{"enum over string", "root: {type: enum, container: {type: string}}"},
		{"mapping without bounds", "root: {type: enum, container: {type: integer, size: 8}, mappings: [{label: a}]}"},
		{"mapping value and low", "root: {type: enum, container: {type: integer, size: 8}, mappings: [{label: a, value: 1, low: 1}]}"},
		{"mapping inverted", "root: {type: enum, container: {type: integer, size: 8}, mappings: [{label: a, low: 3, high: 1}]}"},
		{"mapping not a number", "root: {type: enum, container: {type: integer, size: 8}, mappings: [{label: a, value: x}]}"},
		{"field without name", "root: {type: struct, fields: [{type: string}]}"},
		{"duplicate field", "root: {type: struct, fields: [{name: a, type: string}, {name: a, type: string}]}"},
		{"struct alignment", "root: {type: struct, align: 3}"},
		{"variant without tag", "root: {type: variant, branches: [{name: a, type: string}]}"},
		{"branch without name", "root: {type: variant, tag: t, branches: [{type: string}]}"},
		{"array without element", "root: {type: array, length: 2}"},
		{"sequence without length field", "root: {type: sequence, element: {type: string}}"},
		{"header kind", "root: {type: event_header, header: huge}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := Load(strings.NewReader(tc.yaml))
			if err == nil {
				_, err = Compile(doc)
			}
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}
