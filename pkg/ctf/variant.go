package ctf

import (
	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// VariantDeclaration is a tagged union. The tag names an enum decoded earlier
// in an enclosing scope; its label selects the branch.
type VariantDeclaration struct {
	tag      string
	branches []Field
	index    map[string]int
}

// NewVariantDeclaration creates a variant selected by the enum at tag
func NewVariantDeclaration(tag string) (*VariantDeclaration, error) {
	if tag == "" {
		return nil, errors.Wrap(ErrInvalidDeclaration, "variant without tag")
	}
	return &VariantDeclaration{tag: tag, index: make(map[string]int)}, nil
}

// AddBranch registers the declaration decoded when the tag label is name
func (d *VariantDeclaration) AddBranch(name string, decl Declaration) error {
	if name == "" || decl == nil {
		return errors.Wrap(ErrInvalidDeclaration, "variant branch needs a name and a declaration")
	}
	if _, ok := d.index[name]; ok {
		return errors.Wrapf(ErrDuplicateField, "variant branch %q", name)
	}
	d.index[name] = len(d.branches)
	d.branches = append(d.branches, Field{Name: name, Declaration: decl})
	return nil
}

// Tag returns the scope path of the selecting enum
func (d *VariantDeclaration) Tag() string { return d.tag }

// Branch returns the declaration for label, nil if absent
func (d *VariantDeclaration) Branch(label string) Declaration {
	i, ok := d.index[label]
	if !ok {
		return nil
	}
	return d.branches[i].Declaration
}

// Branches returns a copy of the branches in insertion order
func (d *VariantDeclaration) Branches() []Field {
	return append([]Field(nil), d.branches...)
}

func (d *VariantDeclaration) Kind() Kind { return KindVariant }

// Alignment is 1; the selected branch applies its own alignment.
func (d *VariantDeclaration) Alignment() int { return 1 }

// MaximumSize returns the size of the largest branch decoded from offset 0
func (d *VariantDeclaration) MaximumSize() int {
	return endOffset(0, d)
}

// CreateDefinition implements Declaration. It fails with ErrUnresolvedTag
// when no enum is found at the tag path and with ErrUnknownLabel when the tag
// value selects no branch.
func (d *VariantDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	var found Definition
	if scope != nil {
		found = scope.Lookup(d.tag)
	}
	tag, ok := found.(*EnumDefinition)
	if !ok {
		return nil, errors.Wrapf(ErrUnresolvedTag, "variant %q tag %q", fieldName, d.tag)
	}
	label, ok := tag.Label()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLabel, "variant %q tag %q value %s has no label", fieldName, d.tag, tag.Integer())
	}
	branch := d.Branch(label)
	if branch == nil {
		return nil, errors.Wrapf(ErrUnknownLabel, "variant %q has no branch %q", fieldName, label)
	}
	def := &VariantDefinition{
		definition: definition{scope, fieldName},
		decl:       d,
		tag:        tag,
		branch:     label,
	}
	current, err := branch.CreateDefinition(def, label, r)
	if err != nil {
		return nil, err
	}
	def.current = current
	return def, nil
}

func (d *VariantDeclaration) String() string {
	return formatFields("variant <"+d.tag+">", d.branches)
}

// VariantDefinition is a decoded variant holding the selected branch
type VariantDefinition struct {
	definition
	decl    *VariantDeclaration
	tag     *EnumDefinition
	branch  string
	current Definition
}

func (d *VariantDefinition) Declaration() Declaration { return d.decl }

// VariantDeclaration returns the typed declaration
func (d *VariantDefinition) VariantDeclaration() *VariantDeclaration { return d.decl }

// Tag returns the enum definition that selected the branch
func (d *VariantDefinition) Tag() *EnumDefinition { return d.tag }

// Branch returns the selected branch name
func (d *VariantDefinition) Branch() string { return d.branch }

// Current returns the decoded branch
func (d *VariantDefinition) Current() Definition { return d.current }

// ScopePath implements Scope.
func (d *VariantDefinition) ScopePath() string { return d.Path() }

// Lookup implements Scope.
func (d *VariantDefinition) Lookup(path string) Definition {
	if def := d.lookupLocal(path); def != nil {
		return def
	}
	if d.scope != nil {
		return d.scope.Lookup(path)
	}
	return nil
}

// lookupLocal resolves the branch by name, then the branch's own fields so
// "v.timestamp" works without naming the branch.
func (d *VariantDefinition) lookupLocal(path string) Definition {
	if d.current == nil {
		return nil
	}
	if def := lookupChildren(path, func(name string) Definition {
		if name == d.branch {
			return d.current
		}
		return nil
	}); def != nil {
		return def
	}
	if s, ok := d.current.(localScope); ok {
		return s.lookupLocal(path)
	}
	return nil
}

// Value returns a single-entry map from branch name to branch value
func (d *VariantDefinition) Value() any {
	if d.current == nil {
		return nil
	}
	return map[string]any{d.branch: d.current.Value()}
}

func (d *VariantDefinition) String() string {
	if d.current == nil {
		return "{ }"
	}
	return "{ " + d.branch + " = " + d.current.String() + " }"
}
