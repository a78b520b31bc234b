package ctf

import (
	"testing"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerLayout describes a candidate header struct. canonicalLayout returns
// the shape the recognizers accept; tests mutate one knob at a time.
type headerLayout struct {
	structAlign int
	fieldNames  [2]string
	swapFields  bool

	idWidth  int
	idAlign  int
	idSigned bool
	idBase   int
	idOrder  bitbuf.ByteOrder
	idPlain  bool // plain integer instead of an enum
	ranges   []Range

	tag      string
	branches []string

	tsWidth   int
	tsAlign   int
	tsFloat   bool
	extFields []string
	extWidths []int
}

func canonicalLayout(kind HeaderKind) headerLayout {
	s := headerShapes[kind]
	top := int64(s.sentinel())
	return headerLayout{
		structAlign: 8,
		fieldNames:  [2]string{"id", "v"},
		idWidth:     s.idWidth,
		idAlign:     s.idAlign,
		idBase:      10,
		idOrder:     bitbuf.BigEndian,
		ranges:      []Range{{0, top - 1, "compact"}, {top, top, "extended"}},
		tag:         "id",
		branches:    []string{"compact", "extended"},
		tsWidth:     s.tsWidth,
		tsAlign:     s.tsAlign,
		extFields:   []string{"id", "timestamp"},
		extWidths:   []int{32, 64},
	}
}

func (l headerLayout) build(t *testing.T) *StructDeclaration {
	t.Helper()
	be := bitbuf.BigEndian

	idInt, err := NewIntegerDeclaration(l.idWidth, l.idSigned, l.idBase, l.idOrder, l.idAlign)
	require.NoError(t, err)
	var id Declaration = idInt
	if !l.idPlain {
		enum, err := NewEnumDeclaration(idInt)
		require.NoError(t, err)
		for _, r := range l.ranges {
			require.NoError(t, enum.Add(r.Low, r.High, r.Label))
		}
		id = enum
	}

	compact, err := NewStructDeclaration(l.tsAlign)
	require.NoError(t, err)
	var ts Declaration
	if l.tsFloat {
		ts, err = NewFloatDeclaration(8, l.tsWidth-9, be, l.tsAlign)
	} else {
		ts, err = NewIntegerDeclaration(l.tsWidth, false, 10, be, l.tsAlign)
	}
	require.NoError(t, err)
	require.NoError(t, compact.AddField("timestamp", ts))

	extended, err := NewStructDeclaration(8)
	require.NoError(t, err)
	for i, name := range l.extFields {
		f, err := NewIntegerDeclaration(l.extWidths[i], false, 10, be, 8)
		require.NoError(t, err)
		require.NoError(t, extended.AddField(name, f))
	}

	v, err := NewVariantDeclaration(l.tag)
	require.NoError(t, err)
	for _, name := range l.branches {
		branch := Declaration(compact)
		if name != "compact" {
			branch = extended
		}
		require.NoError(t, v.AddBranch(name, branch))
	}

	s, err := NewStructDeclaration(l.structAlign)
	require.NoError(t, err)
	fields := []Field{{l.fieldNames[0], id}, {l.fieldNames[1], v}}
	if l.swapFields {
		fields[0], fields[1] = fields[1], fields[0]
	}
	for _, f := range fields {
		require.NoError(t, s.AddField(f.Name, f.Declaration))
	}
	return s
}

func TestRecognizersAcceptCanonicalShapes(t *testing.T) {
	compact := canonicalLayout(HeaderCompact).build(t)
	large := canonicalLayout(HeaderLarge).build(t)

	assert.True(t, IsCompactEventHeader(compact))
	assert.False(t, IsLargeEventHeader(compact))
	assert.True(t, IsLargeEventHeader(large))
	assert.False(t, IsCompactEventHeader(large))

	built, err := NewEventHeaderStruct(HeaderCompact)
	require.NoError(t, err)
	assert.True(t, IsCompactEventHeader(built))
	built, err = NewEventHeaderStruct(HeaderLarge)
	require.NoError(t, err)
	assert.True(t, IsLargeEventHeader(built))

	decl, ok := ClassifyEventHeader(compact)
	assert.True(t, ok)
	assert.Same(t, CompactEventHeader(bitbuf.BigEndian), decl)
	decl, ok = ClassifyEventHeader(large)
	assert.True(t, ok)
	assert.Same(t, LargeEventHeader(bitbuf.BigEndian), decl)
}

func TestRecognizersRejectDeviations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *headerLayout)
	}{
		{"mislabeled range", func(l *headerLayout) { l.ranges[0].Label = "compat" }},
		{"missing range", func(l *headerLayout) { l.ranges = l.ranges[:1] }},
		{"extra range", func(l *headerLayout) {
			l.ranges = append(l.ranges, Range{l.ranges[1].Low, l.ranges[1].High, "again"})
		}},
		{"gap in ranges", func(l *headerLayout) { l.ranges[0].High-- }},
		{"misaligned enum", func(l *headerLayout) { l.idAlign = 16 }},
		{"signed enum", func(l *headerLayout) { l.idSigned = true }},
		{"hex enum", func(l *headerLayout) { l.idBase = 16 }},
		{"little endian enum", func(l *headerLayout) { l.idOrder = bitbuf.LittleEndian }},
		{"wider enum", func(l *headerLayout) { l.idWidth++ }},
		{"id not an enum", func(l *headerLayout) { l.idPlain = true }},
		{"timestamp is a float", func(l *headerLayout) { l.tsFloat = true }},
		{"wrong timestamp width", func(l *headerLayout) { l.tsWidth-- }},
		{"extra branch", func(l *headerLayout) { l.branches = append(l.branches, "other") }},
		{"renamed branch", func(l *headerLayout) { l.branches[1] = "ext" }},
		{"missing branch", func(l *headerLayout) { l.branches = l.branches[:1] }},
		{"wrong tag", func(l *headerLayout) { l.tag = "event_id" }},
		{"renamed field", func(l *headerLayout) { l.fieldNames[1] = "payload" }},
		{"swapped fields", func(l *headerLayout) { l.swapFields = true }},
		{"extended fields reordered", func(l *headerLayout) {
			l.extFields = []string{"timestamp", "id"}
			l.extWidths = []int{64, 32}
		}},
		{"extended id too narrow", func(l *headerLayout) { l.extWidths = []int{16, 64} }},
		{"extra extended field", func(l *headerLayout) {
			l.extFields = append(l.extFields, "cpu")
			l.extWidths = append(l.extWidths, 8)
		}},
		{"struct over aligned", func(l *headerLayout) { l.structAlign = 64 }},
	}
	for _, kind := range []HeaderKind{HeaderCompact, HeaderLarge} {
		match := IsCompactEventHeader
		if kind == HeaderLarge {
			match = IsLargeEventHeader
		}
		for _, tc := range tests {
			t.Run(kind.String()+"/"+tc.name, func(t *testing.T) {
				l := canonicalLayout(kind)
				tc.mutate(&l)
				s := l.build(t)
				assert.False(t, match(s))
				_, ok := ClassifyEventHeader(s)
				assert.False(t, ok)
			})
		}
	}
}

func TestRecognizersNil(t *testing.T) {
	assert.False(t, IsCompactEventHeader(nil))
	assert.False(t, IsLargeEventHeader(nil))
	_, ok := ClassifyEventHeader(nil)
	assert.False(t, ok)
}
