package ctf

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// StructDeclaration is an ordered list of named fields
type StructDeclaration struct {
	declared  int
	alignment int
	fields    []Field
	index     map[string]int
}

// NewStructDeclaration creates an empty struct with a minimum alignment. The
// effective alignment grows to the largest field alignment as fields are
// added.
func NewStructDeclaration(alignment int) (*StructDeclaration, error) {
	if !validAlignment(alignment) {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "struct alignment %d", alignment)
	}
	return &StructDeclaration{
		declared:  alignment,
		alignment: alignment,
		index:     make(map[string]int),
	}, nil
}

// AddField appends a field. Names must be unique within the struct.
func (d *StructDeclaration) AddField(name string, decl Declaration) error {
	if name == "" || decl == nil {
		return errors.Wrap(ErrInvalidDeclaration, "struct field needs a name and a declaration")
	}
	if _, ok := d.index[name]; ok {
		return errors.Wrapf(ErrDuplicateField, "struct field %q", name)
	}
	d.index[name] = len(d.fields)
	d.fields = append(d.fields, Field{Name: name, Declaration: decl})
	d.alignment = max(d.alignment, decl.Alignment())
	return nil
}

// Field returns the declaration of the named field, nil if absent
func (d *StructDeclaration) Field(name string) Declaration {
	i, ok := d.index[name]
	if !ok {
		return nil
	}
	return d.fields[i].Declaration
}

// Fields returns a copy of the fields in declaration order
func (d *StructDeclaration) Fields() []Field {
	return append([]Field(nil), d.fields...)
}

// DeclaredAlignment returns the alignment requested at construction
func (d *StructDeclaration) DeclaredAlignment() int { return d.declared }

func (d *StructDeclaration) Kind() Kind     { return KindStruct }
func (d *StructDeclaration) Alignment() int { return d.alignment }

// MaximumSize returns the worst-case size including padding between fields
func (d *StructDeclaration) MaximumSize() int {
	return endOffset(0, d)
}

// CreateDefinition implements Declaration. Fields are decoded in order and
// each is visible to the fields after it.
func (d *StructDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	if err := alignRead(r, d); err != nil {
		return nil, err
	}
	def := &StructDefinition{
		definition: definition{scope, fieldName},
		decl:       d,
		fields:     make([]Definition, 0, len(d.fields)),
	}
	for _, f := range d.fields {
		child, err := f.Declaration.CreateDefinition(def, f.Name, r)
		if err != nil {
			return nil, err
		}
		def.fields = append(def.fields, child)
	}
	return def, nil
}

func (d *StructDeclaration) String() string {
	return formatFields("struct", d.fields)
}

// StructDefinition is a decoded struct. It is the scope of its fields.
type StructDefinition struct {
	definition
	decl   *StructDeclaration
	fields []Definition
}

func (d *StructDefinition) Declaration() Declaration { return d.decl }

// StructDeclaration returns the typed declaration
func (d *StructDefinition) StructDeclaration() *StructDeclaration { return d.decl }

// Fields returns the decoded fields in order
func (d *StructDefinition) Fields() []Definition {
	return append([]Definition(nil), d.fields...)
}

// Field returns the decoded field with the given name
func (d *StructDefinition) Field(name string) Definition {
	for _, f := range d.fields {
		if f.FieldName() == name {
			return f
		}
	}
	return nil
}

// ScopePath implements Scope.
func (d *StructDefinition) ScopePath() string { return d.Path() }

// Lookup implements Scope.
func (d *StructDefinition) Lookup(path string) Definition {
	if def := d.lookupLocal(path); def != nil {
		return def
	}
	if d.scope != nil {
		return d.scope.Lookup(path)
	}
	return nil
}

func (d *StructDefinition) lookupLocal(path string) Definition {
	return lookupChildren(path, d.Field)
}

// Value returns the fields as a map keyed by field name
func (d *StructDefinition) Value() any {
	out := make(map[string]any, len(d.fields))
	for _, f := range d.fields {
		out[f.FieldName()] = f.Value()
	}
	return out
}

func (d *StructDefinition) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	for i, f := range d.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.FieldName())
		b.WriteString(" = ")
		b.WriteString(f.String())
	}
	b.WriteString(" }")
	return b.String()
}
