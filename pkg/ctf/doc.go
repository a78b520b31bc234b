// Package ctf decodes Common Trace Format event records.
//
// A trace describes its binary layout with a tree of declarations: integers
// of any width from 1 to 64 bits, floats with arbitrary exponent and mantissa
// widths, enums mapping integer ranges to labels, structs, variants selected
// by an earlier enum, strings, arrays and sequences. Declarations are immutable
// and shared by every event of a trace, so they can be used from many
// goroutines at once.
//
// Decoding a record walks the declaration tree over a bitbuf.Reader and
// produces a tree of definitions:
//
//	r := bitbuf.NewReader(payload, bitbuf.BigEndian)
//	def, err := header.CreateDefinition(nil, "header", r)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(def.Value())
//
// # Scopes
//
// Struct, variant, array and event header definitions are scopes. While a
// struct is decoded its fields become visible one by one, so a variant can
// resolve its tag and a sequence its length by name:
//
//	struct {
//	    enum : uint8_t { INT = 0, STR = 1 } kind;
//	    variant <kind> { int32_t INT; string STR; } value;
//	}
//
// Lookups search the scope itself, then "_name", then dotted paths into child
// scopes, then the parent. A RootScope injects definitions decoded elsewhere,
// such as a packet context.
//
// # Event headers
//
// Tracers commonly write one of two event header layouts, compact and large,
// whose discriminant either carries the event id directly or announces an
// extended 32-bit id and 64-bit timestamp. IsCompactEventHeader and
// IsLargeEventHeader recognize those layouts in a generic struct declaration;
// GetEventHeader returns a shared decoder that reads them without building
// the enum and variant definitions.
//
// # Errors
//
// Short buffers fail with bitbuf.ErrBufferUnderflow. Variant and sequence
// resolution failures are reported with ErrUnresolvedTag, ErrUnknownLabel,
// ErrUnresolvedLength and ErrSequenceTooLong. An enum value outside every
// range is not an error; EnumDefinition.Label reports it.
package ctf
