package ctf

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// IsCompactEventHeader reports whether s is exactly the canonical compact
// event header:
//
//	struct {
//		enum : integer { size = 5; align = 1; } { compact = 0 ... 30, extended = 31 } id;
//		variant <id> {
//			struct { integer { size = 27; align = 1; } timestamp; } compact;
//			struct { uint32_t id; uint64_t timestamp; } extended;
//		} v;
//	} align(8)
//
// Every integer must be unsigned, big endian and base 10. Any other shape
// reports false and must be decoded generically.
func IsCompactEventHeader(s *StructDeclaration) bool {
	return matchEventHeader(s, headerShapes[HeaderCompact])
}

// IsLargeEventHeader is IsCompactEventHeader for the 16-bit id and 32-bit
// timestamp layout, where every field is byte aligned.
func IsLargeEventHeader(s *StructDeclaration) bool {
	return matchEventHeader(s, headerShapes[HeaderLarge])
}

// ClassifyEventHeader returns the big endian fast-path decoder matching s.
func ClassifyEventHeader(s *StructDeclaration) (*EventHeaderDeclaration, bool) {
	switch {
	case IsCompactEventHeader(s):
		return CompactEventHeader(bitbuf.BigEndian), true
	case IsLargeEventHeader(s):
		return LargeEventHeader(bitbuf.BigEndian), true
	}
	return nil, false
}

func matchEventHeader(s *StructDeclaration, shape headerShape) bool {
	if s == nil || s.Alignment() != headerAlignment || len(s.fields) != 2 {
		return false
	}
	id, v := s.fields[0], s.fields[1]
	if id.Name != "id" || v.Name != "v" {
		return false
	}
	return matchDiscriminant(id.Declaration, shape) && matchBranches(v.Declaration, shape)
}

// matchDiscriminant checks the id enum: two ranges partitioning the container
// at the sentinel.
func matchDiscriminant(d Declaration, shape headerShape) bool {
	enum, ok := d.(*EnumDeclaration)
	if !ok || !matchInteger(enum.container, shape.idWidth, shape.idAlign) {
		return false
	}
	if len(enum.ranges) != 2 {
		return false
	}
	sentinel := int64(shape.sentinel())
	compact, extended := enum.ranges[0], enum.ranges[1]
	if compact.Label == "extended" {
		compact, extended = extended, compact
	}
	return compact.Label == "compact" && compact.Low == 0 && compact.High == sentinel-1 &&
		extended.Label == "extended" && extended.Low == sentinel && extended.High == sentinel
}

func matchBranches(d Declaration, shape headerShape) bool {
	variant, ok := d.(*VariantDeclaration)
	if !ok || variant.tag != "id" || len(variant.branches) != 2 {
		return false
	}
	compact, extended := variant.Branch("compact"), variant.Branch("extended")
	if compact == nil || extended == nil {
		return false
	}
	return matchFields(compact, shape.tsAlign, []expectedField{{"timestamp", shape.tsWidth, shape.tsAlign}}) &&
		matchFields(extended, headerAlignment, []expectedField{
			{"id", extendedIDWidth, headerAlignment},
			{"timestamp", extendedTimestampWidth, headerAlignment},
		})
}

type expectedField struct {
	name  string
	width int
	align int
}

func matchFields(d Declaration, align int, want []expectedField) bool {
	s, ok := d.(*StructDeclaration)
	if !ok || s.Alignment() != align || len(s.fields) != len(want) {
		return false
	}
	for i, w := range want {
		f := s.fields[i]
		if f.Name != w.name {
			return false
		}
		integer, ok := f.Declaration.(*IntegerDeclaration)
		if !ok || !matchInteger(integer, w.width, w.align) {
			return false
		}
	}
	return true
}

func matchInteger(i *IntegerDeclaration, width, align int) bool {
	return i != nil &&
		i.width == width &&
		i.alignment == align &&
		!i.signed &&
		i.order == bitbuf.BigEndian &&
		i.base == 10
}

// NewEventHeaderStruct builds the generic struct, enum and variant tree of a
// canonical header. Decoding it yields the same id and timestamp as the
// matching EventHeaderDeclaration.
func NewEventHeaderStruct(kind HeaderKind) (*StructDeclaration, error) {
	if kind != HeaderCompact && kind != HeaderLarge {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "header kind %d", kind)
	}
	shape := headerShapes[kind]
	be := bitbuf.BigEndian

	container, err := NewIntegerDeclaration(shape.idWidth, false, 10, be, shape.idAlign)
	if err != nil {
		return nil, err
	}
	id, err := NewEnumDeclaration(container)
	if err != nil {
		return nil, err
	}
	sentinel := int64(shape.sentinel())
	if err := id.Add(0, sentinel-1, "compact"); err != nil {
		return nil, err
	}
	if err := id.Add(sentinel, sentinel, "extended"); err != nil {
		return nil, err
	}

	compact, err := NewStructDeclaration(shape.tsAlign)
	if err != nil {
		return nil, err
	}
	ts, err := NewIntegerDeclaration(shape.tsWidth, false, 10, be, shape.tsAlign)
	if err != nil {
		return nil, err
	}
	if err := compact.AddField("timestamp", ts); err != nil {
		return nil, err
	}

	extended, err := NewStructDeclaration(headerAlignment)
	if err != nil {
		return nil, err
	}
	if err := extended.AddField("id", mustInteger(extendedIDWidth, false, 10, be, headerAlignment)); err != nil {
		return nil, err
	}
	if err := extended.AddField("timestamp", mustInteger(extendedTimestampWidth, false, 10, be, headerAlignment)); err != nil {
		return nil, err
	}

	v, err := NewVariantDeclaration("id")
	if err != nil {
		return nil, err
	}
	if err := v.AddBranch("compact", compact); err != nil {
		return nil, err
	}
	if err := v.AddBranch("extended", extended); err != nil {
		return nil, err
	}

	header, err := NewStructDeclaration(headerAlignment)
	if err != nil {
		return nil, err
	}
	if err := header.AddField("id", id); err != nil {
		return nil, err
	}
	if err := header.AddField("v", v); err != nil {
		return nil, err
	}
	return header, nil
}
