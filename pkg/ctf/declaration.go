package ctf

import (
	"math"
	"strings"

	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// Kind identifies the concrete type behind a Declaration
type Kind int

const (
	KindInteger Kind = iota + 1
	KindFloat
	KindString
	KindEnum
	KindStruct
	KindVariant
	KindArray
	KindSequence
	KindEventHeader
)

var kindNames = [...]string{
	KindInteger:     "integer",
	KindFloat:       "float",
	KindString:      "string",
	KindEnum:        "enum",
	KindStruct:      "struct",
	KindVariant:     "variant",
	KindArray:       "array",
	KindSequence:    "sequence",
	KindEventHeader: "event_header",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(invalid)"
}

// UnboundedSize is the maximum size reported by declarations whose encoded
// length depends on the data (strings, sequences).
const UnboundedSize = math.MaxInt32

// Declaration is an immutable schema node. A single declaration tree is shared
// by every event decoded from a trace.
type Declaration interface {
	// Kind returns the declaration type.
	Kind() Kind

	// Alignment returns the alignment in bits applied before decoding.
	Alignment() int

	// MaximumSize returns the worst-case encoded size in bits.
	MaximumSize() int

	// CreateDefinition decodes one value from r. The scope is the enclosing
	// definition used to resolve variant tags and sequence lengths; it may be
	// nil for a root declaration.
	CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error)

	String() string
}

// Definition is a decoded value. Definitions are created once per decode call
// and never modified afterwards.
type Definition interface {
	// Declaration returns the schema node this value was decoded with.
	Declaration() Declaration

	// FieldName returns the name of the field in its parent.
	FieldName() string

	// Path returns the dotted path of the field from the root scope.
	Path() string

	// Value returns the decoded value as a plain Go value: uint64 or int64 for
	// integers, float64, string, map[string]any for structs, []any for arrays.
	Value() any

	String() string
}

// definition carries the fields shared by every Definition
type definition struct {
	scope     Scope
	fieldName string
}

func (d definition) FieldName() string {
	return d.fieldName
}

// Scope returns the enclosing scope, nil at the root
func (d definition) Scope() Scope {
	return d.scope
}

func (d definition) Path() string {
	if d.scope == nil {
		return d.fieldName
	}
	return joinPath(d.scope.ScopePath(), d.fieldName)
}

func joinPath(parent, name string) string {
	switch {
	case parent == "":
		return name
	case name == "":
		return parent
	}
	return parent + "." + name
}

// alignRead moves r to the declaration's alignment
func alignRead(r *bitbuf.Reader, d Declaration) error {
	return r.Align(d.Alignment())
}

func validAlignment(align int) bool {
	return align >= 1 && align&(align-1) == 0
}

// endOffset returns the worst-case bit offset after decoding d starting at
// offset. Variants are evaluated per branch since each branch aligns itself.
func endOffset(offset int, d Declaration) int {
	switch decl := d.(type) {
	case *VariantDeclaration:
		end := offset
		for _, b := range decl.branches {
			end = max(end, endOffset(offset, b.Declaration))
		}
		return end
	case *StructDeclaration:
		pos := bitbuf.AlignUp(offset, decl.Alignment())
		for _, f := range decl.fields {
			pos = endOffset(pos, f.Declaration)
			if pos >= UnboundedSize {
				return UnboundedSize
			}
		}
		return pos
	}
	size := d.MaximumSize()
	if size >= UnboundedSize {
		return UnboundedSize
	}
	return min(bitbuf.AlignUp(offset, d.Alignment())+size, UnboundedSize)
}

// Field is a named member of a struct or variant
type Field struct {
	Name        string
	Declaration Declaration
}

func formatFields(kind string, fields []Field) string {
	var b strings.Builder
	b.WriteString(kind)
	b.WriteString(" { ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Declaration.String())
		b.WriteByte(' ')
		b.WriteString(f.Name)
	}
	b.WriteString(" }")
	return b.String()
}
