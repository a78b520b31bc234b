package ctf

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// Range is an inclusive interval of container values mapped to a label. For
// unsigned containers Low and High hold the uint64 bit pattern.
type Range struct {
	Low   int64
	High  int64
	Label string
}

// EnumDeclaration maps the values of an integer container to labels
type EnumDeclaration struct {
	container *IntegerDeclaration
	ranges    []Range
}

// NewEnumDeclaration creates an enum over the given integer container
func NewEnumDeclaration(container *IntegerDeclaration) (*EnumDeclaration, error) {
	if container == nil {
		return nil, errors.Wrap(ErrInvalidDeclaration, "enum without container")
	}
	return &EnumDeclaration{container: container}, nil
}

// Add appends a range. Ranges are matched in insertion order.
func (d *EnumDeclaration) Add(low, high int64, label string) error {
	if label == "" {
		return errors.Wrap(ErrInvalidDeclaration, "enum range without label")
	}
	if d.less(high, low) {
		return errors.Wrapf(ErrInvalidDeclaration, "enum range %q low %d above high %d", label, low, high)
	}
	d.ranges = append(d.ranges, Range{Low: low, High: high, Label: label})
	return nil
}

func (d *EnumDeclaration) less(a, b int64) bool {
	if d.container.signed {
		return a < b
	}
	return uint64(a) < uint64(b)
}

func (d *EnumDeclaration) contains(r Range, raw uint64) bool {
	if d.container.signed {
		v := bitbuf.SignExtend(raw, d.container.width)
		return r.Low <= v && v <= r.High
	}
	return uint64(r.Low) <= raw && raw <= uint64(r.High)
}

// Container returns the underlying integer declaration
func (d *EnumDeclaration) Container() *IntegerDeclaration { return d.container }

// Ranges returns a copy of the ranges in insertion order
func (d *EnumDeclaration) Ranges() []Range {
	return append([]Range(nil), d.ranges...)
}

// Lookup returns the label of the first range containing raw.
func (d *EnumDeclaration) Lookup(raw uint64) (string, bool) {
	for _, r := range d.ranges {
		if d.contains(r, raw) {
			return r.Label, true
		}
	}
	return "", false
}

// Query returns every range carrying label
func (d *EnumDeclaration) Query(label string) []Range {
	var out []Range
	for _, r := range d.ranges {
		if r.Label == label {
			out = append(out, r)
		}
	}
	return out
}

// Labels returns the distinct labels in first-seen order
func (d *EnumDeclaration) Labels() []string {
	seen := make(map[string]struct{}, len(d.ranges))
	out := make([]string, 0, len(d.ranges))
	for _, r := range d.ranges {
		if _, ok := seen[r.Label]; ok {
			continue
		}
		seen[r.Label] = struct{}{}
		out = append(out, r.Label)
	}
	return out
}

func (d *EnumDeclaration) Kind() Kind       { return KindEnum }
func (d *EnumDeclaration) Alignment() int   { return d.container.alignment }
func (d *EnumDeclaration) MaximumSize() int { return d.container.width }

// CreateDefinition implements Declaration. A value without a label is decoded
// normally; Label reports it.
func (d *EnumDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	value, err := d.container.read(scope, fieldName, r)
	if err != nil {
		return nil, err
	}
	label, ok := d.Lookup(value.raw)
	return &EnumDefinition{
		definition: definition{scope, fieldName},
		decl:       d,
		value:      value,
		label:      label,
		labeled:    ok,
	}, nil
}

func (d *EnumDeclaration) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "enum : %s {", d.container)
	for i, r := range d.ranges {
		if i > 0 {
			b.WriteByte(',')
		}
		if r.Low == r.High {
			fmt.Fprintf(&b, " %s = %s", r.Label, d.formatBound(r.Low))
			continue
		}
		fmt.Fprintf(&b, " %s = %s ... %s", r.Label, d.formatBound(r.Low), d.formatBound(r.High))
	}
	b.WriteString(" }")
	return b.String()
}

func (d *EnumDeclaration) formatBound(v int64) string {
	if d.container.signed {
		return fmt.Sprint(v)
	}
	return fmt.Sprint(uint64(v))
}

// EnumDefinition is a decoded enum value
type EnumDefinition struct {
	definition
	decl    *EnumDeclaration
	value   *IntegerDefinition
	label   string
	labeled bool
}

func (d *EnumDefinition) Declaration() Declaration { return d.decl }

// EnumDeclaration returns the typed declaration
func (d *EnumDefinition) EnumDeclaration() *EnumDeclaration { return d.decl }

// Integer returns the decoded container value
func (d *EnumDefinition) Integer() *IntegerDefinition { return d.value }

// Label returns the matched label; ok is false when no range holds the value.
func (d *EnumDefinition) Label() (string, bool) { return d.label, d.labeled }

// Value returns the label, or the numeric value when unlabeled
func (d *EnumDefinition) Value() any {
	if d.labeled {
		return d.label
	}
	return d.value.Value()
}

func (d *EnumDefinition) String() string {
	if !d.labeled {
		return "{ value = " + d.value.String() + ", label = null }"
	}
	return "{ value = " + d.value.String() + ", label = " + d.label + " }"
}
