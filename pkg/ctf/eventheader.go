package ctf

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
)

// HeaderKind selects one of the two canonical event header layouts
type HeaderKind int

const (
	// HeaderCompact has a 5-bit id and a 27-bit timestamp
	HeaderCompact HeaderKind = iota
	// HeaderLarge has a 16-bit id and a 32-bit timestamp
	HeaderLarge
)

// String implements fmt.Stringer.
func (k HeaderKind) String() string {
	switch k {
	case HeaderCompact:
		return "compact"
	case HeaderLarge:
		return "large"
	}
	return "HeaderKind(invalid)"
}

// MarshalText implements encoding.TextMarshaler.
func (k HeaderKind) MarshalText() ([]byte, error) {
	if k != HeaderCompact && k != HeaderLarge {
		return nil, errors.Newf("invalid header kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// headerShape holds the widths and alignments that distinguish the layouts.
// Both share the extended branch: a 32-bit id then a 64-bit timestamp, each
// byte aligned.
type headerShape struct {
	idWidth     int
	idAlign     int
	tsWidth     int
	tsAlign     int
	maximumSize int
}

const (
	extendedIDWidth        = 32
	extendedTimestampWidth = 64
	headerAlignment        = 8
)

var headerShapes = [...]headerShape{
	HeaderCompact: {idWidth: 5, idAlign: 1, tsWidth: 27, tsAlign: 1, maximumSize: 104},
	HeaderLarge:   {idWidth: 16, idAlign: 8, tsWidth: 32, tsAlign: 8, maximumSize: 112},
}

// sentinel is the discriminant value announcing the extended branch
func (s headerShape) sentinel() uint64 {
	return uint64(1)<<s.idWidth - 1
}

// EventHeaderDeclaration decodes a canonical event header without going
// through the enum and variant machinery. Instances are shared singletons, one
// per layout and byte order.
type EventHeaderDeclaration struct {
	kind  HeaderKind
	order bitbuf.ByteOrder
	shape headerShape

	// synthetic declarations backing Lookup on decoded headers
	idDecl        *IntegerDeclaration
	timestampDecl *IntegerDeclaration
}

var eventHeaders = func() (t [2][2]*EventHeaderDeclaration) {
	for _, kind := range []HeaderKind{HeaderCompact, HeaderLarge} {
		for _, order := range []bitbuf.ByteOrder{bitbuf.BigEndian, bitbuf.LittleEndian} {
			t[kind][order] = &EventHeaderDeclaration{
				kind:          kind,
				order:         order,
				shape:         headerShapes[kind],
				idDecl:        mustInteger(extendedIDWidth, false, 10, order, headerAlignment),
				timestampDecl: mustInteger(extendedTimestampWidth, false, 10, order, headerAlignment),
			}
		}
	}
	return t
}()

// GetEventHeader returns the event header decoder for kind and order. The same
// instance is returned on every call. Invalid arguments return nil.
func GetEventHeader(kind HeaderKind, order bitbuf.ByteOrder) *EventHeaderDeclaration {
	if (kind != HeaderCompact && kind != HeaderLarge) || !order.Valid() {
		return nil
	}
	return eventHeaders[kind][order]
}

// CompactEventHeader is GetEventHeader(HeaderCompact, order)
func CompactEventHeader(order bitbuf.ByteOrder) *EventHeaderDeclaration {
	return GetEventHeader(HeaderCompact, order)
}

// LargeEventHeader is GetEventHeader(HeaderLarge, order)
func LargeEventHeader(order bitbuf.ByteOrder) *EventHeaderDeclaration {
	return GetEventHeader(HeaderLarge, order)
}

func (d *EventHeaderDeclaration) Kind() Kind                  { return KindEventHeader }
func (d *EventHeaderDeclaration) HeaderKind() HeaderKind      { return d.kind }
func (d *EventHeaderDeclaration) ByteOrder() bitbuf.ByteOrder { return d.order }
func (d *EventHeaderDeclaration) Alignment() int              { return headerAlignment }

// IDWidth returns the discriminant width in bits
func (d *EventHeaderDeclaration) IDWidth() int { return d.shape.idWidth }

// Sentinel returns the discriminant value selecting the extended layout
func (d *EventHeaderDeclaration) Sentinel() uint64 { return d.shape.sentinel() }

// CompactTimestampWidth returns the timestamp width of the compact branch
func (d *EventHeaderDeclaration) CompactTimestampWidth() int { return d.shape.tsWidth }

// MaximumSize is 104 bits for the compact layout and 112 for the large one.
func (d *EventHeaderDeclaration) MaximumSize() int { return d.shape.maximumSize }

// CreateDefinition implements Declaration. The discriminant is read as a plain
// integer: below the sentinel it is the event id and the short timestamp
// follows; at the sentinel a 32-bit id and a 64-bit timestamp follow, each
// byte aligned.
func (d *EventHeaderDeclaration) CreateDefinition(scope Scope, fieldName string, r *bitbuf.Reader) (Definition, error) {
	if err := r.Align(headerAlignment); err != nil {
		return nil, err
	}
	s := d.shape
	if err := r.Align(s.idAlign); err != nil {
		return nil, err
	}
	id, err := r.ReadUnsignedOrder(s.idWidth, d.order)
	if err != nil {
		return nil, err
	}
	def := &EventHeaderDefinition{definition: definition{scope, fieldName}, decl: d, id: id}
	if id < s.sentinel() {
		if err := r.Align(s.tsAlign); err != nil {
			return nil, err
		}
		if def.timestamp, err = r.ReadUnsignedOrder(s.tsWidth, d.order); err != nil {
			return nil, err
		}
		def.timestampLength = s.tsWidth
		return def, nil
	}
	if err := r.Align(headerAlignment); err != nil {
		return nil, err
	}
	if def.id, err = r.ReadUnsignedOrder(extendedIDWidth, d.order); err != nil {
		return nil, err
	}
	if err := r.Align(headerAlignment); err != nil {
		return nil, err
	}
	if def.timestamp, err = r.ReadUnsignedOrder(extendedTimestampWidth, d.order); err != nil {
		return nil, err
	}
	def.timestampLength = extendedTimestampWidth
	def.extended = true
	return def, nil
}

func (d *EventHeaderDeclaration) String() string {
	return fmt.Sprintf("event_header<%v %v>", d.kind, d.order)
}

// EventHeaderDefinition is a decoded event header. Both layouts expose the
// same id and timestamp.
type EventHeaderDefinition struct {
	definition
	decl            *EventHeaderDeclaration
	id              uint64
	timestamp       uint64
	timestampLength int
	extended        bool
}

func (d *EventHeaderDefinition) Declaration() Declaration { return d.decl }

// ID returns the event id
func (d *EventHeaderDefinition) ID() uint64 { return d.id }

// Timestamp returns the raw timestamp bits
func (d *EventHeaderDefinition) Timestamp() uint64 { return d.timestamp }

// TimestampLength returns how many timestamp bits were present. Readers use it
// to rebuild a full clock value from a truncated one.
func (d *EventHeaderDefinition) TimestampLength() int { return d.timestampLength }

// Extended reports whether the extended layout was decoded
func (d *EventHeaderDefinition) Extended() bool { return d.extended }

// ScopePath implements Scope.
func (d *EventHeaderDefinition) ScopePath() string { return d.Path() }

// Lookup implements Scope. "id" and "timestamp" resolve to integer
// definitions whatever layout was decoded.
func (d *EventHeaderDefinition) Lookup(path string) Definition {
	if def := d.lookupLocal(path); def != nil {
		return def
	}
	if d.scope != nil {
		return d.scope.Lookup(path)
	}
	return nil
}

func (d *EventHeaderDefinition) lookupLocal(path string) Definition {
	return lookupChildren(path, func(name string) Definition {
		switch name {
		case "id":
			return NewIntegerDefinition(d.decl.idDecl, d, name, d.id)
		case "timestamp":
			return NewIntegerDefinition(d.decl.timestampDecl, d, name, d.timestamp)
		}
		return nil
	})
}

// Value returns a map with the id and timestamp
func (d *EventHeaderDefinition) Value() any {
	return map[string]any{"id": d.id, "timestamp": d.timestamp}
}

func (d *EventHeaderDefinition) String() string {
	return fmt.Sprintf("{ id = %d, timestamp = %d }", d.id, d.timestamp)
}
