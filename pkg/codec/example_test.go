package codec_test

import (
	"fmt"
	"log"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/codec"
	"github.com/ssargent/bitctf/pkg/ctf"
)

// ExampleSampleCodec_basic demonstrates wrapping a payload in a sample and decoding it
func ExampleSampleCodec_basic() {
	c := codec.NewSampleCodec()

	// A compact event header: id 16, timestamp 0x42
	payload := []byte{0x80, 0x00, 0x00, 0x42}

	encoded, err := c.Encode(bitbuf.BigEndian, 0, payload)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Encoded %d bytes\n", len(encoded))

	sample, err := c.Decode(encoded)
	if err != nil {
		log.Fatal(err)
	}
	if err := sample.Validate(); err != nil {
		log.Fatal(err)
	}

	def, bits, err := sample.Decode(ctf.CompactEventHeader(sample.ByteOrder()), nil)
	if err != nil {
		log.Fatal(err)
	}
	header := def.(*ctf.EventHeaderDefinition)
	fmt.Printf("Byte order: %s\n", sample.ByteOrder())
	fmt.Printf("ID: %d\n", header.ID())
	fmt.Printf("Timestamp: %#x\n", header.Timestamp())
	fmt.Printf("Bits: %d\n", bits)

	// Output:
	// Encoded 25 bytes
	// Byte order: be
	// ID: 16
	// Timestamp: 0x42
	// Bits: 32
}

// ExampleEncode demonstrates building a payload from plain values
func ExampleEncode() {
	header := ctf.CompactEventHeader(bitbuf.BigEndian)

	short, err := codec.Encode(header, map[string]any{"id": 16, "timestamp": 0x42})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("% x\n", short)

	// the id does not fit in 5 bits, so the extended layout is used
	long, err := codec.Encode(header, map[string]any{"id": 2222, "timestamp": 1000})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("% x\n", long)

	// Output:
	// 80 00 00 42
	// f8 00 00 08 ae 00 00 00 00 00 00 03 e8
}
