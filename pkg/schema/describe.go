package schema

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/ctf"
)

// Describe returns the node that compiles back to decl. Every scalar carries
// an explicit byte order and alignment.
func Describe(decl ctf.Declaration) (*Node, error) {
	switch d := decl.(type) {
	case *ctf.IntegerDeclaration:
		return describeInteger(d), nil
	case *ctf.FloatDeclaration:
		return &Node{
			Type:      TypeFloat,
			Exponent:  d.Exponent(),
			Mantissa:  d.Mantissa(),
			Align:     d.Alignment(),
			ByteOrder: d.ByteOrder().String(),
		}, nil
	case *ctf.StringDeclaration:
		return &Node{Type: TypeString, Encoding: encodingName(d.Encoding())}, nil
	case *ctf.EnumDeclaration:
		n := &Node{Type: TypeEnum, Container: describeInteger(d.Container())}
		for _, r := range d.Ranges() {
			m := Mapping{Label: r.Label, Low: bound(r.Low, d.Container())}
			if r.High != r.Low {
				m.High = bound(r.High, d.Container())
			}
			n.Mappings = append(n.Mappings, m)
		}
		return n, nil
	case *ctf.StructDeclaration:
		n := &Node{Type: TypeStruct, Align: d.DeclaredAlignment()}
		for _, f := range d.Fields() {
			child, err := describeNamed(f)
			if err != nil {
				return nil, err
			}
			n.Fields = append(n.Fields, child)
		}
		return n, nil
	case *ctf.VariantDeclaration:
		n := &Node{Type: TypeVariant, Tag: d.Tag()}
		for _, b := range d.Branches() {
			child, err := describeNamed(b)
			if err != nil {
				return nil, err
			}
			n.Branches = append(n.Branches, child)
		}
		return n, nil
	case *ctf.ArrayDeclaration:
		el, err := Describe(d.Element())
		if err != nil {
			return nil, err
		}
		return &Node{Type: TypeArray, Element: el, Length: d.Length()}, nil
	case *ctf.SequenceDeclaration:
		el, err := Describe(d.Element())
		if err != nil {
			return nil, err
		}
		return &Node{Type: TypeSequence, Element: el, LengthField: d.LengthField(), MaxLength: d.MaxLength()}, nil
	case *ctf.EventHeaderDeclaration:
		return &Node{Type: TypeEventHeader, Header: d.HeaderKind().String(), ByteOrder: d.ByteOrder().String()}, nil
	}
	return nil, errors.Newf("cannot describe %T", decl)
}

func describeNamed(f ctf.Field) (*Node, error) {
	n, err := Describe(f.Declaration)
	if err != nil {
		return nil, err
	}
	n.Name = f.Name
	return n, nil
}

func describeInteger(d *ctf.IntegerDeclaration) *Node {
	n := &Node{
		Type:      TypeInteger,
		Size:      d.Width(),
		Align:     d.Alignment(),
		Signed:    d.Signed(),
		Base:      d.Base(),
		ByteOrder: d.ByteOrder().String(),
		Clock:     d.Clock(),
	}
	if d.Encoding() != ctf.EncodingNone {
		n.Encoding = encodingName(d.Encoding())
	}
	return n
}

func bound(v int64, container *ctf.IntegerDeclaration) *Bound {
	if container.Signed() {
		return SignedBound(v)
	}
	return UnsignedBound(uint64(v))
}

func encodingName(e ctf.Encoding) string {
	return strings.ToLower(e.String())
}
