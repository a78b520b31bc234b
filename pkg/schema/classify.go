package schema

import (
	"strconv"

	"github.com/ssargent/bitctf/pkg/ctf"
)

// HeaderMatch is an event header found in a declaration tree
type HeaderMatch struct {
	Path string         `json:"path" yaml:"path"`
	Kind ctf.HeaderKind `json:"kind" yaml:"kind"`
	// Specialized is false for a generic struct that has the header shape
	Specialized bool `json:"specialized" yaml:"specialized"`
}

// FindEventHeaders walks decl and reports every event header declaration and
// every struct recognized as one, outermost first. Matched structs are not
// descended into.
func FindEventHeaders(decl ctf.Declaration) []HeaderMatch {
	var out []HeaderMatch
	walkHeaders(decl, "", &out)
	return out
}

func walkHeaders(decl ctf.Declaration, path string, out *[]HeaderMatch) {
	switch d := decl.(type) {
	case *ctf.EventHeaderDeclaration:
		*out = append(*out, HeaderMatch{Path: path, Kind: d.HeaderKind(), Specialized: true})
	case *ctf.StructDeclaration:
		if h, ok := ctf.ClassifyEventHeader(d); ok {
			*out = append(*out, HeaderMatch{Path: path, Kind: h.HeaderKind()})
			return
		}
		for _, f := range d.Fields() {
			walkHeaders(f.Declaration, child(path, f.Name), out)
		}
	case *ctf.VariantDeclaration:
		for _, b := range d.Branches() {
			walkHeaders(b.Declaration, child(path, b.Name), out)
		}
	case *ctf.ArrayDeclaration:
		walkHeaders(d.Element(), path+"[]", out)
	case *ctf.SequenceDeclaration:
		walkHeaders(d.Element(), path+"[]", out)
	}
}

func child(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// CanonicalHeader returns the document describing the generic declaration
// tree of an event header of the given kind
func CanonicalHeader(kind ctf.HeaderKind) (*Document, error) {
	s, err := ctf.NewEventHeaderStruct(kind)
	if err != nil {
		return nil, err
	}
	root, err := Describe(s)
	if err != nil {
		return nil, err
	}
	return &Document{
		Name:        kind.String() + "_event_header",
		Description: "canonical " + kind.String() + " event header, " + strconv.Itoa(s.MaximumSize()) + " bits at most",
		Root:        root,
	}, nil
}
