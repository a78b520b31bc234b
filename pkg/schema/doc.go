// Package schema loads declaration trees from YAML documents.
//
// A document names a root declaration and, optionally, reusable types:
//
//	name: sched_switch
//	byte_order: be
//	types:
//	  uint32:
//	    type: integer
//	    size: 32
//	root:
//	  type: struct
//	  align: 8
//	  fields:
//	    - name: header
//	      type: event_header
//	      header: compact
//	    - name: tid
//	      type: uint32
//
// Integers and floats default to the document byte order, byte alignment when
// their width is a multiple of 8 and bit alignment otherwise. Enum mappings
// take either value or low/high. Structs whose shape is the compact or large
// event header compile to the specialized event header decoder.
//
// This is a fixture format for tests, the CLI and the registry. It is not a
// TSDL parser.
package schema
