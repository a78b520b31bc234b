// Package codec provides the sample envelope and the declaration-driven
// encoder for bitctf.
//
// A sample is one event payload captured from a packet reader together with
// everything needed to decode it again: the byte order of its fields and the
// bit at which the record starts. Samples are what the capture log stores and
// what the CLI and the REST API decode.
//
// # Sample Format
//
// Samples are serialized in a binary format with the following structure:
//
//	[CRC32(4)][Flags(1)][BitOffset(4)][Timestamp(8)][Size(4)][Payload]
//
// Fields:
//   - CRC32: 32-bit CRC checksum for integrity validation (little-endian)
//   - Flags: bit 0 set when the payload is big endian
//   - BitOffset: 32-bit offset of the first record bit inside the payload (little-endian)
//   - Timestamp: 64-bit capture time in Unix nanoseconds (little-endian)
//   - Size: 32-bit payload length in bytes (little-endian)
//   - Payload: the raw record bytes
//
// The total sample size is: 21 bytes (header) + len(payload)
//
// # CRC32 Calculation
//
// The CRC32 checksum is calculated over all fields except the CRC32 field
// itself: Flags, BitOffset, Timestamp, Size and the payload. Any corruption in
// the header or the payload is detected by Validate.
//
// # Usage
//
//	c := codec.NewSampleCodec()
//
//	encoded, err := c.Encode(bitbuf.BigEndian, 0, payload)
//	if err != nil {
//	    return err
//	}
//
//	sample, err := c.Decode(encoded)
//	if err != nil {
//	    return err
//	}
//	if err := sample.Validate(); err != nil {
//	    return err // sample is corrupted
//	}
//
//	def, bits, err := sample.Decode(header, nil)
//
// # Encoding values
//
// Encode and Encoder do the reverse of decoding: given a declaration and a
// plain Go value (the shape returned by Definition.Value, or a document read
// from YAML or JSON) they produce the bits the declaration decodes. The CLI
// uses this to build payloads for fixtures and tests.
//
// # Thread Safety
//
// SampleCodec instances are safe for concurrent use. An Encoder owns its
// buffer and must not be shared between goroutines.
package codec
