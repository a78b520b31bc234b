package codec

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/ctf"
)

// ErrValueMismatch is returned when a value cannot be encoded with a declaration
var ErrValueMismatch = errors.New("value does not match declaration")

// Encoder writes Go values as the bits a declaration decodes. It is the
// inverse of CreateDefinition and accepts the shapes Definition.Value returns,
// plus the loosely typed values produced by YAML and JSON decoders.
//
//   - integers: any Go integer, integral float64, json.Number or a numeric
//     string ("0x1f" included)
//   - enums: a label or a number
//   - floats: any number
//   - strings: string
//   - structs: map[string]any keyed by field name
//   - variants: a map with a single key naming the branch
//   - arrays and sequences: []any, or a string for character elements
//   - event headers: map with "id" and "timestamp"
//
// Inside a struct, an omitted enum that tags a sibling variant is set to the
// branch label, and an omitted integer that sizes a sibling sequence is set
// to the element count.
type Encoder struct {
	w *bitbuf.Writer
}

// NewEncoder creates an encoder writing to an empty buffer
func NewEncoder() *Encoder {
	return &Encoder{w: bitbuf.NewWriter(bitbuf.BigEndian)}
}

// Encode is a convenience wrapper encoding a single value
func Encode(decl ctf.Declaration, value any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(decl, value); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Bytes returns the encoded bytes, zero padded to a whole byte
func (e *Encoder) Bytes() []byte {
	return e.w.Bytes()
}

// Position returns the number of bits written
func (e *Encoder) Position() int {
	return e.w.Position()
}

// Encode appends value encoded with decl
func (e *Encoder) Encode(decl ctf.Declaration, value any) error {
	return e.encode(decl, value, "")
}

func (e *Encoder) encode(decl ctf.Declaration, value any, path string) error {
	if err := e.w.Align(decl.Alignment()); err != nil {
		return err
	}
	switch d := decl.(type) {
	case *ctf.IntegerDeclaration:
		return e.encodeInteger(d, value, path)
	case *ctf.EnumDeclaration:
		return e.encodeEnum(d, value, path)
	case *ctf.FloatDeclaration:
		v, err := toFloat(value)
		if err != nil {
			return mismatch(path, err)
		}
		return e.w.WriteUnsignedOrder(d.Width(), ctf.FloatToBits(v, d.Exponent(), d.Mantissa()), d.ByteOrder())
	case *ctf.StringDeclaration:
		s, ok := value.(string)
		if !ok || strings.IndexByte(s, 0) >= 0 {
			return mismatch(path, errors.Newf("want a string without NUL, got %T", value))
		}
		e.w.WriteBytes(append([]byte(s), 0))
		return nil
	case *ctf.StructDeclaration:
		return e.encodeStruct(d, value, path)
	case *ctf.VariantDeclaration:
		return e.encodeVariant(d, value, path)
	case *ctf.ArrayDeclaration:
		elems, err := toElements(d.Element(), value, d.Length(), path)
		if err != nil {
			return err
		}
		if len(elems) != d.Length() {
			return mismatch(path, errors.Newf("want %d elements, got %d", d.Length(), len(elems)))
		}
		return e.encodeElements(d.Element(), elems, path)
	case *ctf.SequenceDeclaration:
		elems, err := toElements(d.Element(), value, -1, path)
		if err != nil {
			return err
		}
		return e.encodeElements(d.Element(), elems, path)
	case *ctf.EventHeaderDeclaration:
		return e.encodeEventHeader(d, value, path)
	}
	return mismatch(path, errors.Newf("unsupported declaration %s", decl))
}

func (e *Encoder) encodeInteger(d *ctf.IntegerDeclaration, value any, path string) error {
	raw, err := integerBits(d, value)
	if err != nil {
		return mismatch(path, err)
	}
	return e.w.WriteUnsignedOrder(d.Width(), raw, d.ByteOrder())
}

func (e *Encoder) encodeEnum(d *ctf.EnumDeclaration, value any, path string) error {
	if label, ok := value.(string); ok {
		if ranges := d.Query(label); len(ranges) > 0 {
			return e.encodeInteger(d.Container(), boundValue(ranges[0].Low, d.Container()), path)
		}
	}
	return e.encodeInteger(d.Container(), value, path)
}

// boundValue converts a stored range bound back to a value integerBits accepts
func boundValue(bound int64, c *ctf.IntegerDeclaration) any {
	if c.Signed() {
		return bound
	}
	return uint64(bound)
}

func (e *Encoder) encodeStruct(d *ctf.StructDeclaration, value any, path string) error {
	fields, ok := value.(map[string]any)
	if !ok {
		return mismatch(path, errors.Newf("want a map for a struct, got %T", value))
	}
	fields = deriveSiblings(d, fields)
	for _, f := range d.Fields() {
		v, ok := fields[f.Name]
		if !ok {
			return mismatch(joinPath(path, f.Name), errors.New("missing field"))
		}
		if err := e.encode(f.Declaration, v, joinPath(path, f.Name)); err != nil {
			return err
		}
	}
	return nil
}

// deriveSiblings fills omitted variant tags and sequence lengths that name a
// sibling field directly. The caller's map is not modified.
func deriveSiblings(d *ctf.StructDeclaration, fields map[string]any) map[string]any {
	var out map[string]any
	set := func(name string, v any) {
		if _, ok := fields[name]; ok {
			return
		}
		if d.Field(name) == nil {
			return
		}
		if out == nil {
			out = make(map[string]any, len(fields)+1)
			for k, v := range fields {
				out[k] = v
			}
		}
		if _, ok := out[name]; !ok {
			out[name] = v
		}
	}
	for _, f := range d.Fields() {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		switch fd := f.Declaration.(type) {
		case *ctf.VariantDeclaration:
			if branch, _, ok := singleEntry(v); ok {
				set(fd.Tag(), branch)
			}
		case *ctf.SequenceDeclaration:
			if n, ok := elementCount(fd.Element(), v); ok {
				set(fd.LengthField(), uint64(n))
			}
		}
	}
	if out == nil {
		return fields
	}
	return out
}

func (e *Encoder) encodeVariant(d *ctf.VariantDeclaration, value any, path string) error {
	label, v, ok := singleEntry(value)
	if !ok {
		return mismatch(path, errors.Newf("want a single-entry map naming the branch, got %T", value))
	}
	branch := d.Branch(label)
	if branch == nil {
		return mismatch(path, errors.Newf("no branch %q", label))
	}
	return e.encode(branch, v, joinPath(path, label))
}

func (e *Encoder) encodeElements(el ctf.Declaration, elems []any, path string) error {
	for i, v := range elems {
		if err := e.encode(el, v, path+"["+strconv.Itoa(i)+"]"); err != nil {
			return err
		}
	}
	return nil
}

// encodeEventHeader picks the compact layout whenever id and timestamp fit
func (e *Encoder) encodeEventHeader(d *ctf.EventHeaderDeclaration, value any, path string) error {
	m, ok := value.(map[string]any)
	if !ok {
		return mismatch(path, errors.Newf("want a map with id and timestamp, got %T", value))
	}
	id, err := toUint64(m["id"])
	if err != nil {
		return mismatch(joinPath(path, "id"), err)
	}
	ts, err := toUint64(m["timestamp"])
	if err != nil {
		return mismatch(joinPath(path, "timestamp"), err)
	}
	order := d.ByteOrder()
	tsWidth := d.CompactTimestampWidth()
	if id < d.Sentinel() && ts < uint64(1)<<tsWidth {
		// the large layout's byte aligned timestamp directly follows a 16-bit id
		if err := e.w.WriteUnsignedOrder(d.IDWidth(), id, order); err != nil {
			return err
		}
		return e.w.WriteUnsignedOrder(tsWidth, ts, order)
	}
	if id > math.MaxUint32 {
		return mismatch(joinPath(path, "id"), errors.Newf("id %d above 32 bits", id))
	}
	if err := e.w.WriteUnsignedOrder(d.IDWidth(), d.Sentinel(), order); err != nil {
		return err
	}
	if err := e.w.Align(8); err != nil {
		return err
	}
	if err := e.w.WriteUnsignedOrder(32, id, order); err != nil {
		return err
	}
	return e.w.WriteUnsignedOrder(64, ts, order)
}

func integerBits(d *ctf.IntegerDeclaration, value any) (uint64, error) {
	if d.Signed() {
		v, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		if v < d.MinValue() || (v > 0 && uint64(v) > d.MaxValue()) {
			return 0, errors.Newf("%d outside %d-bit signed range", v, d.Width())
		}
		return uint64(v) & mask(d.Width()), nil
	}
	v, err := toUint64(value)
	if err != nil {
		return 0, err
	}
	if v > d.MaxValue() {
		return 0, errors.Newf("%d outside %d-bit unsigned range", v, d.Width())
	}
	return v, nil
}

func mask(width int) uint64 {
	if width == 64 {
		return math.MaxUint64
	}
	return uint64(1)<<width - 1
}

func toUint64(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint8:
		return uint64(v), nil
	case string:
		u, err := strconv.ParseUint(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", v)
		}
		return u, nil
	case json.Number:
		return toUint64(v.String())
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, errors.Newf("%v is not an unsigned integer", v)
		}
		return uint64(v), nil
	}
	i, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, errors.Newf("%d is negative", i)
	}
	return uint64(i), nil
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errors.Newf("%d overflows int64", v)
		}
		return int64(v), nil
	case uint, uint32, uint16, uint8:
		u, _ := toUint64(v)
		return int64(u), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", v)
		}
		return i, nil
	case json.Number:
		return toInt64(v.String())
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, errors.Newf("%v is not an integer", v)
		}
		return int64(v), nil
	}
	return 0, errors.Newf("want an integer, got %T", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse %q", v)
		}
		return f, nil
	case json.Number:
		return v.Float64()
	case uint64:
		return float64(v), nil
	}
	i, err := toInt64(value)
	if err != nil {
		return 0, errors.Newf("want a number, got %T", value)
	}
	return float64(i), nil
}

// toElements accepts []any, or a string for character elements padded with
// NUL up to length (when length >= 0)
func toElements(el ctf.Declaration, value any, length int, path string) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case string:
		i, ok := el.(*ctf.IntegerDeclaration)
		if !ok || !i.IsCharacter() {
			break
		}
		if length >= 0 && len(v) > length {
			return nil, mismatch(path, errors.Newf("%d bytes for %d characters", len(v), length))
		}
		n := len(v)
		if length > n {
			n = length
		}
		out := make([]any, n)
		for j := range out {
			out[j] = uint64(0)
			if j < len(v) {
				out[j] = uint64(v[j])
			}
		}
		return out, nil
	}
	return nil, mismatch(path, errors.Newf("want a list, got %T", value))
}

func elementCount(el ctf.Declaration, value any) (int, bool) {
	switch v := value.(type) {
	case []any:
		return len(v), true
	case string:
		if i, ok := el.(*ctf.IntegerDeclaration); ok && i.IsCharacter() {
			return len(v), true
		}
	}
	return 0, false
}

func singleEntry(value any) (string, any, bool) {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, false
	}
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func mismatch(path string, err error) error {
	if path == "" {
		path = "<root>"
	}
	return errors.Wrapf(errors.Mark(err, ErrValueMismatch), "encode %s", path)
}
