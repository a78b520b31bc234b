package ctf

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// MaxSequenceLength is the default bound on a decoded sequence length. A
// corrupt length field would otherwise drive an unbounded allocation.
const MaxSequenceLength = 1_000_000

// ArrayDeclaration is a fixed number of elements of one declaration
type ArrayDeclaration struct {
	element Declaration
	length  int
}

// NewArrayDeclaration creates an array of length elements
func NewArrayDeclaration(element Declaration, length int) (*ArrayDeclaration, error) {
	if element == nil || length < 0 {
		return nil, errors.Wrapf(ErrInvalidDeclaration, "array of %d elements", length)
	}
	return &ArrayDeclaration{element: element, length: length}, nil
}

func (d *ArrayDeclaration) Kind() Kind           { return KindArray }
func (d *ArrayDeclaration) Alignment() int       { return d.element.Alignment() }
func (d *ArrayDeclaration) Element() Declaration { return d.element }
func (d *ArrayDeclaration) Length() int          { return d.length }

// MaximumSize walks the elements so per-element padding is counted
func (d *ArrayDeclaration) MaximumSize() int {
	pos := 0
	for i := 0; i < d.length; i++ {
		pos = endOffset(pos, d.element)
		if pos >= UnboundedSize {
			return UnboundedSize
		}
	}
	return pos
}

// CreateDefinition implements Declaration.
func (d *ArrayDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	if err := alignRead(r, d); err != nil {
		return nil, err
	}
	return readElements(scope, fieldName, d, d.element, d.length, r)
}

func (d *ArrayDeclaration) String() string {
	return d.element.String() + "[" + strconv.Itoa(d.length) + "]"
}

// SequenceDeclaration is a variable number of elements whose count is an
// integer decoded earlier in an enclosing scope
type SequenceDeclaration struct {
	element     Declaration
	lengthField string
	limit       int
}

// SequenceOption configures a sequence declaration
type SequenceOption func(*SequenceDeclaration)

// WithMaxLength overrides MaxSequenceLength for one sequence
func WithMaxLength(n int) SequenceOption {
	return func(d *SequenceDeclaration) {
		if n > 0 {
			d.limit = n
		}
	}
}

// NewSequenceDeclaration creates a sequence sized by the integer at lengthField
func NewSequenceDeclaration(element Declaration, lengthField string, opts ...SequenceOption) (*SequenceDeclaration, error) {
	if element == nil || lengthField == "" {
		return nil, errors.Wrap(ErrInvalidDeclaration, "sequence needs an element and a length field")
	}
	d := &SequenceDeclaration{element: element, lengthField: lengthField, limit: MaxSequenceLength}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *SequenceDeclaration) Kind() Kind           { return KindSequence }
func (d *SequenceDeclaration) Alignment() int       { return d.element.Alignment() }
func (d *SequenceDeclaration) MaximumSize() int     { return UnboundedSize }
func (d *SequenceDeclaration) Element() Declaration { return d.element }
func (d *SequenceDeclaration) LengthField() string  { return d.lengthField }
func (d *SequenceDeclaration) MaxLength() int       { return d.limit }

// CreateDefinition implements Declaration.
func (d *SequenceDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	var found Definition
	if scope != nil {
		found = scope.Lookup(d.lengthField)
	}
	length, ok := found.(*IntegerDefinition)
	if !ok {
		return nil, errors.Wrapf(ErrUnresolvedLength, "sequence %q length %q", fieldName, d.lengthField)
	}
	if length.decl.signed && length.Int64() < 0 {
		return nil, errors.Wrapf(ErrUnresolvedLength, "sequence %q negative length %d", fieldName, length.Int64())
	}
	if length.Uint64() > uint64(d.limit) {
		return nil, errors.Wrapf(ErrSequenceTooLong, "sequence %q length %d above %d", fieldName, length.Uint64(), d.limit)
	}
	if err := alignRead(r, d); err != nil {
		return nil, err
	}
	return readElements(scope, fieldName, d, d.element, int(length.Uint64()), r)
}

func (d *SequenceDeclaration) String() string {
	return d.element.String() + "[" + d.lengthField + "]"
}

func readElements(scope Scope, fieldName string, decl, element Declaration, n int, r *bitbuf.Reader) (*ArrayDefinition, error) {
	def := &ArrayDefinition{
		definition: definition{scope, fieldName},
		decl:       decl,
		element:    element,
	}
	// scalar elements need at least one bit each; refuse before allocating
	if isScalar(element) && n > r.Remaining() {
		return nil, errors.Wrapf(bitbuf.ErrBufferUnderflow, "%d elements with %d bits remaining", n, r.Remaining())
	}
	def.elements = make([]Definition, 0, n)
	for i := 0; i < n; i++ {
		el, err := element.CreateDefinition(def, fieldName+"["+strconv.Itoa(i)+"]", r)
		if err != nil {
			return nil, err
		}
		def.elements = append(def.elements, el)
	}
	return def, nil
}

func isScalar(d Declaration) bool {
	switch d.Kind() {
	case KindInteger, KindFloat, KindEnum, KindString:
		return true
	}
	return false
}

// ArrayDefinition is a decoded array or sequence
type ArrayDefinition struct {
	definition
	decl     Declaration
	element  Declaration
	elements []Definition
}

func (d *ArrayDefinition) Declaration() Declaration { return d.decl }

// Elements returns the decoded elements in order
func (d *ArrayDefinition) Elements() []Definition {
	return append([]Definition(nil), d.elements...)
}

// Len returns the number of decoded elements
func (d *ArrayDefinition) Len() int { return len(d.elements) }

// IsText reports whether the elements are 8-bit encoded characters
func (d *ArrayDefinition) IsText() bool {
	i, ok := d.element.(*IntegerDeclaration)
	return ok && i.IsCharacter()
}

// Text returns character elements as a string cut at the first NUL
func (d *ArrayDefinition) Text() string {
	raw := make([]byte, 0, len(d.elements))
	for _, el := range d.elements {
		i, ok := el.(*IntegerDefinition)
		if !ok || i.raw == 0 {
			break
		}
		raw = append(raw, byte(i.raw))
	}
	enc := EncodingUTF8
	if i, ok := d.element.(*IntegerDeclaration); ok && i.encoding == EncodingASCII {
		enc = EncodingASCII
	}
	return decodeText(raw, enc)
}

// ScopePath implements Scope. Elements carry the array name themselves.
func (d *ArrayDefinition) ScopePath() string {
	if d.scope == nil {
		return ""
	}
	return d.scope.ScopePath()
}

// Lookup implements Scope.
func (d *ArrayDefinition) Lookup(path string) Definition {
	if def := d.lookupLocal(path); def != nil {
		return def
	}
	if d.scope != nil {
		return d.scope.Lookup(path)
	}
	return nil
}

func (d *ArrayDefinition) lookupLocal(path string) Definition {
	return lookupChildren(path, func(name string) Definition {
		for _, el := range d.elements {
			if el.FieldName() == name {
				return el
			}
		}
		return nil
	})
}

// Value returns the text for character arrays and the element values otherwise
func (d *ArrayDefinition) Value() any {
	if d.IsText() {
		return d.Text()
	}
	out := make([]any, len(d.elements))
	for i, el := range d.elements {
		out[i] = el.Value()
	}
	return out
}

func (d *ArrayDefinition) String() string {
	if d.IsText() {
		return strconv.Quote(d.Text())
	}
	var b strings.Builder
	b.WriteString("[ ")
	for i, el := range d.elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(el.String())
	}
	b.WriteString(" ]")
	return b.String()
}
