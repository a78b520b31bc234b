package ctf

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// StringDeclaration is a NUL-terminated, byte aligned string
type StringDeclaration struct {
	encoding Encoding
}

// NewStringDeclaration creates a string declaration. EncodingNone is treated as
// UTF-8.
func NewStringDeclaration(enc Encoding) *StringDeclaration {
	if enc == EncodingNone {
		enc = EncodingUTF8
	}
	return &StringDeclaration{encoding: enc}
}

func (d *StringDeclaration) Kind() Kind         { return KindString }
func (d *StringDeclaration) Alignment() int     { return 8 }
func (d *StringDeclaration) MaximumSize() int   { return UnboundedSize }
func (d *StringDeclaration) Encoding() Encoding { return d.encoding }

// CreateDefinition implements Declaration. The terminator is consumed; a
// buffer ending before it is an underflow and leaves the cursor aligned.
func (d *StringDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	if err := r.Align(8); err != nil {
		return nil, err
	}
	buf := r.Bytes()
	start := r.Position() / 8
	end := start
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		return nil, errors.Wrapf(bitbuf.ErrBufferUnderflow, "unterminated string at bit %d", r.Position())
	}
	raw := buf[start:end]
	if err := r.Skip((end - start + 1) * 8); err != nil {
		return nil, err
	}
	return &StringDefinition{definition: definition{scope, fieldName}, decl: d, text: decodeText(raw, d.encoding)}, nil
}

func (d *StringDeclaration) String() string {
	return "string<" + d.encoding.String() + ">"
}

// decodeText converts raw bytes; invalid UTF-8 and non-ASCII bytes are
// replaced with U+FFFD.
func decodeText(raw []byte, enc Encoding) string {
	if enc == EncodingASCII {
		var b strings.Builder
		b.Grow(len(raw))
		for _, c := range raw {
			if c >= 0x80 {
				b.WriteRune('�')
				continue
			}
			b.WriteByte(c)
		}
		return b.String()
	}
	return strings.ToValidUTF8(string(raw), "�")
}

// StringDefinition is a decoded string
type StringDefinition struct {
	definition
	decl *StringDeclaration
	text string
}

func (d *StringDefinition) Declaration() Declaration { return d.decl }
func (d *StringDefinition) Text() string             { return d.text }
func (d *StringDefinition) Value() any               { return d.text }
func (d *StringDefinition) String() string           { return strconv.Quote(d.text) }
