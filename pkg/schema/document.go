package schema

import (
	"bytes"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSchema is returned for documents that do not describe a valid
// declaration tree
var ErrInvalidSchema = errors.New("invalid schema")

// Document is a declaration tree in YAML form
type Document struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	ByteOrder   bitbuf.ByteOrder `yaml:"byte_order"`
	Types       map[string]*Node `yaml:"types,omitempty"`
	Root        *Node            `yaml:"root"`
}

// Node describes one declaration. Type is one of the declaration kinds or
// the name of an entry in Document.Types.
type Node struct {
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type"`

	// integer, float, enum container
	Size      int    `yaml:"size,omitempty"`
	Align     int    `yaml:"align,omitempty"`
	Signed    bool   `yaml:"signed,omitempty"`
	Base      int    `yaml:"base,omitempty"`
	ByteOrder string `yaml:"byte_order,omitempty"`
	Encoding  string `yaml:"encoding,omitempty"`
	Clock     string `yaml:"clock,omitempty"`
	Exponent  int    `yaml:"exponent,omitempty"`
	Mantissa  int    `yaml:"mantissa,omitempty"`

	// enum
	Container *Node     `yaml:"container,omitempty"`
	Mappings  []Mapping `yaml:"mappings,omitempty"`

	// struct
	Fields []*Node `yaml:"fields,omitempty"`

	// variant
	Tag      string  `yaml:"tag,omitempty"`
	Branches []*Node `yaml:"branches,omitempty"`

	// array, sequence
	Element     *Node  `yaml:"element,omitempty"`
	Length      int    `yaml:"length,omitempty"`
	LengthField string `yaml:"length_field,omitempty"`
	MaxLength   int    `yaml:"max_length,omitempty"`

	// event_header: compact or large
	Header string `yaml:"header,omitempty"`
}

// Mapping is an enum range. Value is shorthand for Low == High.
type Mapping struct {
	Label string `yaml:"label"`
	Value *Bound `yaml:"value,omitempty"`
	Low   *Bound `yaml:"low,omitempty"`
	High  *Bound `yaml:"high,omitempty"`
}

// Bound is an enum range bound. Unsigned bounds above math.MaxInt64 keep
// their bit pattern in the int64.
type Bound struct {
	v        int64
	unsigned bool
}

// SignedBound returns a bound holding v
func SignedBound(v int64) *Bound { return &Bound{v: v} }

// UnsignedBound returns a bound holding v
func UnsignedBound(v uint64) *Bound { return &Bound{v: int64(v), unsigned: v > math.MaxInt64} }

// Int64 returns the bound as stored in ctf.Range
func (b Bound) Int64() int64 { return b.v }

// MarshalYAML implements yaml.Marshaler.
func (b Bound) MarshalYAML() (any, error) {
	if b.unsigned {
		return uint64(b.v), nil
	}
	return b.v, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Bound) UnmarshalYAML(n *yaml.Node) error {
	s := strings.ReplaceAll(n.Value, "_", "")
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidSchema, "line %d: bound %q", n.Line, n.Value)
		}
		*b = Bound{v: v}
		return nil
	}
	u, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 64)
	if err != nil {
		return errors.Wrapf(ErrInvalidSchema, "line %d: bound %q", n.Line, n.Value)
	}
	*b = Bound{v: int64(u), unsigned: u > math.MaxInt64}
	return nil
}

// Load parses a YAML document. Unknown keys are rejected.
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Wrap(ErrInvalidSchema, "empty document")
		}
		if errors.Is(err, ErrInvalidSchema) {
			return nil, err
		}
		return nil, errors.Wrap(errors.Mark(err, ErrInvalidSchema), "failed to parse schema")
	}
	if doc.Root == nil {
		return nil, errors.Wrap(ErrInvalidSchema, "document has no root")
	}
	return &doc, nil
}

// LoadBytes parses a YAML document held in memory
func LoadBytes(data []byte) (*Document, error) {
	return Load(bytes.NewReader(data))
}

// LoadFile parses the YAML document at path
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open schema")
	}
	defer f.Close()
	return Load(f)
}

// Marshal encodes the document as YAML
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	return buf.Bytes(), nil
}
