package schema

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/ctf"
)

// Declaration kinds accepted in Node.Type
const (
	TypeInteger     = "integer"
	TypeFloat       = "float"
	TypeString      = "string"
	TypeEnum        = "enum"
	TypeStruct      = "struct"
	TypeVariant     = "variant"
	TypeArray       = "array"
	TypeSequence    = "sequence"
	TypeEventHeader = "event_header"
)

// Option configures Compile
type Option func(*compiler)

// WithGenericHeaders keeps structs shaped like an event header as generic
// struct and variant declarations instead of the specialized decoder.
func WithGenericHeaders() Option {
	return func(c *compiler) { c.fastPath = false }
}

// WithMaxSequence sets the length limit of sequences that do not declare
// max_length.
func WithMaxSequence(n int) Option {
	return func(c *compiler) { c.maxSequence = n }
}

type compiler struct {
	doc         *Document
	fastPath    bool
	maxSequence int
	types       map[string]ctf.Declaration
	resolving   map[string]bool
}

// Compile builds the declaration tree of doc. Structs matching the compact or
// large event header shape compile to the event header decoder unless
// WithGenericHeaders is given.
func Compile(doc *Document, opts ...Option) (ctf.Declaration, error) {
	if doc == nil || doc.Root == nil {
		return nil, errors.Wrap(ErrInvalidSchema, "document has no root")
	}
	if !doc.ByteOrder.Valid() {
		return nil, errors.Wrapf(ErrInvalidSchema, "byte order %d", doc.ByteOrder)
	}
	c := &compiler{
		doc:         doc,
		fastPath:    true,
		maxSequence: ctf.MaxSequenceLength,
		types:       make(map[string]ctf.Declaration),
		resolving:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSequence <= 0 {
		return nil, errors.Wrapf(ErrInvalidSchema, "max sequence %d", c.maxSequence)
	}
	return c.compile(doc.Root, "root")
}

func (c *compiler) compile(n *Node, path string) (ctf.Declaration, error) {
	if n == nil {
		return nil, invalid(path, "missing declaration")
	}
	var (
		decl ctf.Declaration
		err  error
	)
	switch n.Type {
	case TypeInteger:
		decl, err = c.integer(n, path)
	case TypeFloat:
		decl, err = c.float(n, path)
	case TypeString:
		var enc ctf.Encoding
		if enc, err = parseEncoding(n.Encoding); err == nil {
			decl = ctf.NewStringDeclaration(enc)
		}
	case TypeEnum:
		decl, err = c.enum(n, path)
	case TypeStruct:
		decl, err = c.structure(n, path)
	case TypeVariant:
		decl, err = c.variant(n, path)
	case TypeArray:
		decl, err = c.array(n, path)
	case TypeSequence:
		decl, err = c.sequence(n, path)
	case TypeEventHeader:
		decl, err = c.eventHeader(n, path)
	case "":
		return nil, invalid(path, "missing type")
	default:
		return c.alias(n.Type, path)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidSchema) {
			return nil, err
		}
		return nil, errors.Wrapf(errors.Mark(err, ErrInvalidSchema), "%s", path)
	}
	return decl, nil
}

// alias compiles a named entry of Document.Types once and shares the result
func (c *compiler) alias(name, path string) (ctf.Declaration, error) {
	if decl, ok := c.types[name]; ok {
		return decl, nil
	}
	n, ok := c.doc.Types[name]
	if !ok {
		return nil, invalid(path, "unknown type %q", name)
	}
	if c.resolving[name] {
		return nil, invalid(path, "type %q refers to itself", name)
	}
	c.resolving[name] = true
	defer delete(c.resolving, name)

	decl, err := c.compile(n, "types."+name)
	if err != nil {
		return nil, err
	}
	c.types[name] = decl
	return decl, nil
}

func (c *compiler) byteOrder(n *Node, path string) (bitbuf.ByteOrder, error) {
	if n.ByteOrder == "" {
		return c.doc.ByteOrder, nil
	}
	order, err := bitbuf.ParseByteOrder(n.ByteOrder)
	if err != nil {
		return 0, invalid(path, "%v", err)
	}
	return order, nil
}

// defaultAlign byte aligns whole-byte scalars and bit packs the rest
func defaultAlign(n *Node, width int) int {
	if n.Align != 0 {
		return n.Align
	}
	if width%8 == 0 {
		return 8
	}
	return 1
}

func (c *compiler) integer(n *Node, path string) (*ctf.IntegerDeclaration, error) {
	order, err := c.byteOrder(n, path)
	if err != nil {
		return nil, err
	}
	enc, err := parseEncoding(n.Encoding)
	if err != nil {
		return nil, err
	}
	base := n.Base
	if base == 0 {
		base = 10
	}
	var opts []ctf.IntegerOption
	if enc != ctf.EncodingNone {
		opts = append(opts, ctf.WithEncoding(enc))
	}
	if n.Clock != "" {
		opts = append(opts, ctf.WithClock(n.Clock))
	}
	return ctf.NewIntegerDeclaration(n.Size, n.Signed, base, order, defaultAlign(n, n.Size), opts...)
}

func (c *compiler) float(n *Node, path string) (*ctf.FloatDeclaration, error) {
	order, err := c.byteOrder(n, path)
	if err != nil {
		return nil, err
	}
	return ctf.NewFloatDeclaration(n.Exponent, n.Mantissa, order, defaultAlign(n, 1+n.Exponent+n.Mantissa))
}

func (c *compiler) enum(n *Node, path string) (*ctf.EnumDeclaration, error) {
	decl, err := c.compile(n.Container, path+".container")
	if err != nil {
		return nil, err
	}
	container, ok := decl.(*ctf.IntegerDeclaration)
	if !ok {
		return nil, invalid(path+".container", "want an integer, got %s", decl.Kind())
	}
	enum, err := ctf.NewEnumDeclaration(container)
	if err != nil {
		return nil, err
	}
	for i, m := range n.Mappings {
		low, high, err := m.bounds()
		if err != nil {
			return nil, invalid(path+".mappings["+strconv.Itoa(i)+"]", "%v", err)
		}
		if err := enum.Add(low, high, m.Label); err != nil {
			return nil, errors.Wrapf(errors.Mark(err, ErrInvalidSchema), "%s.mappings[%d]", path, i)
		}
	}
	return enum, nil
}

func (m Mapping) bounds() (int64, int64, error) {
	if m.Value != nil {
		if m.Low != nil || m.High != nil {
			return 0, 0, errors.New("value excludes low and high")
		}
		return m.Value.Int64(), m.Value.Int64(), nil
	}
	if m.Low == nil {
		return 0, 0, errors.New("missing value or low")
	}
	if m.High == nil {
		return m.Low.Int64(), m.Low.Int64(), nil
	}
	return m.Low.Int64(), m.High.Int64(), nil
}

func (c *compiler) structure(n *Node, path string) (ctf.Declaration, error) {
	align := n.Align
	if align == 0 {
		align = 1
	}
	s, err := ctf.NewStructDeclaration(align)
	if err != nil {
		return nil, err
	}
	for i, f := range n.Fields {
		fpath := path + ".fields[" + strconv.Itoa(i) + "]"
		if f == nil || f.Name == "" {
			return nil, invalid(fpath, "field without a name")
		}
		decl, err := c.compile(f, path+"."+f.Name)
		if err != nil {
			return nil, err
		}
		if err := s.AddField(f.Name, decl); err != nil {
			return nil, errors.Wrapf(errors.Mark(err, ErrInvalidSchema), "%s", fpath)
		}
	}
	if c.fastPath {
		if header, ok := ctf.ClassifyEventHeader(s); ok {
			return header, nil
		}
	}
	return s, nil
}

func (c *compiler) variant(n *Node, path string) (*ctf.VariantDeclaration, error) {
	v, err := ctf.NewVariantDeclaration(n.Tag)
	if err != nil {
		return nil, err
	}
	for i, b := range n.Branches {
		bpath := path + ".branches[" + strconv.Itoa(i) + "]"
		if b == nil || b.Name == "" {
			return nil, invalid(bpath, "branch without a name")
		}
		decl, err := c.compile(b, path+"."+b.Name)
		if err != nil {
			return nil, err
		}
		if err := v.AddBranch(b.Name, decl); err != nil {
			return nil, errors.Wrapf(errors.Mark(err, ErrInvalidSchema), "%s", bpath)
		}
	}
	return v, nil
}

func (c *compiler) array(n *Node, path string) (*ctf.ArrayDeclaration, error) {
	el, err := c.compile(n.Element, path+".element")
	if err != nil {
		return nil, err
	}
	return ctf.NewArrayDeclaration(el, n.Length)
}

func (c *compiler) sequence(n *Node, path string) (*ctf.SequenceDeclaration, error) {
	el, err := c.compile(n.Element, path+".element")
	if err != nil {
		return nil, err
	}
	limit := n.MaxLength
	if limit == 0 {
		limit = c.maxSequence
	}
	return ctf.NewSequenceDeclaration(el, n.LengthField, ctf.WithMaxLength(limit))
}

func (c *compiler) eventHeader(n *Node, path string) (*ctf.EventHeaderDeclaration, error) {
	order, err := c.byteOrder(n, path)
	if err != nil {
		return nil, err
	}
	kind, err := ParseHeaderKind(n.Header)
	if err != nil {
		return nil, invalid(path, "%v", err)
	}
	return ctf.GetEventHeader(kind, order), nil
}

// ParseHeaderKind accepts "compact" and "large"
func ParseHeaderKind(s string) (ctf.HeaderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compact":
		return ctf.HeaderCompact, nil
	case "large":
		return ctf.HeaderLarge, nil
	}
	return 0, errors.Newf("unknown event header kind %q", s)
}

func parseEncoding(s string) (ctf.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "", "none":
		return ctf.EncodingNone, nil
	case "utf8":
		return ctf.EncodingUTF8, nil
	case "ascii":
		return ctf.EncodingASCII, nil
	}
	return 0, errors.Newf("unknown encoding %q", s)
}

func invalid(path, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidSchema, "%s: "+format, append([]any{path}, args...)...)
}
