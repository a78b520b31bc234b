package codec

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/ctf"
)

// HeaderSize is the fixed size of an encoded sample header in bytes
const HeaderSize = 21

// FlagBigEndian marks a payload whose fields are big endian
const FlagBigEndian uint8 = 1 << 0

var (
	// ErrCorruption is returned when a sample fails its CRC check
	ErrCorruption = errors.New("sample corruption detected")

	// ErrShortSample is returned when data ends before the declared sizes
	ErrShortSample = errors.New("data too short for sample")

	// ErrInvalidSample is returned when a sample cannot be built from its inputs
	ErrInvalidSample = errors.New("invalid sample")
)

// Sample is one event payload as handed over by a packet reader: the bytes,
// their byte order and the bit at which decoding starts.
type Sample struct {
	CRC32     uint32 // CRC32 over every field after itself
	Flags     uint8  // FlagBigEndian
	BitOffset uint32 // first bit of the record inside Payload
	Timestamp uint64 // capture time, Unix nanoseconds
	Size      uint32 // payload size in bytes
	Payload   []byte
}

// SampleCodec handles serialization and deserialization of samples
type SampleCodec struct{}

// NewSampleCodec creates a new sample codec instance
func NewSampleCodec() *SampleCodec {
	return &SampleCodec{}
}

// NewSample creates a sample stamped with the current time
func NewSample(order bitbuf.ByteOrder, bitOffset int, payload []byte) (*Sample, error) {
	if !order.Valid() {
		return nil, errors.Wrapf(ErrInvalidSample, "byte order %d", order)
	}
	if len(payload) > int(^uint32(0)) {
		return nil, errors.Wrapf(ErrInvalidSample, "payload of %d bytes", len(payload))
	}
	if bitOffset < 0 || bitOffset > len(payload)*8 {
		return nil, errors.Wrapf(ErrInvalidSample, "bit offset %d outside %d-byte payload", bitOffset, len(payload))
	}
	s := &Sample{
		BitOffset: uint32(bitOffset),
		Timestamp: uint64(time.Now().UnixNano()),
		Size:      uint32(len(payload)),
		Payload:   payload,
	}
	if order == bitbuf.BigEndian {
		s.Flags |= FlagBigEndian
	}
	return s, nil
}

// Encode serializes a payload into a sample
// Format: [CRC32(4)][Flags(1)][BitOffset(4)][Timestamp(8)][Size(4)][Payload]
func (c *SampleCodec) Encode(order bitbuf.ByteOrder, bitOffset int, payload []byte) ([]byte, error) {
	s, err := NewSample(order, bitOffset, payload)
	if err != nil {
		return nil, err
	}
	return s.MarshalBinary()
}

// MarshalBinary computes the CRC and encodes s
func (s *Sample) MarshalBinary() ([]byte, error) {
	if int(s.Size) != len(s.Payload) {
		return nil, errors.Wrapf(ErrInvalidSample, "size %d for %d payload bytes", s.Size, len(s.Payload))
	}
	s.CRC32 = s.calculateCRC32()

	buf := make([]byte, s.EncodedSize())
	binary.LittleEndian.PutUint32(buf[0:], s.CRC32)
	s.putHeader(buf[4:HeaderSize])
	copy(buf[HeaderSize:], s.Payload)
	return buf, nil
}

// Decode deserializes a sample. The payload aliases data. Decode does not
// check the CRC; call Validate.
func (c *SampleCodec) Decode(data []byte) (*Sample, error) {
	if len(data) < HeaderSize {
		return nil, errors.Wrapf(ErrShortSample, "%d bytes, header needs %d", len(data), HeaderSize)
	}
	s := &Sample{
		CRC32:     binary.LittleEndian.Uint32(data[0:4]),
		Flags:     data[4],
		BitOffset: binary.LittleEndian.Uint32(data[5:9]),
		Timestamp: binary.LittleEndian.Uint64(data[9:17]),
		Size:      binary.LittleEndian.Uint32(data[17:21]),
	}
	if uint64(len(data)) < uint64(HeaderSize)+uint64(s.Size) {
		return nil, errors.Wrapf(ErrShortSample, "%d bytes, sample needs %d", len(data), uint64(HeaderSize)+uint64(s.Size))
	}
	s.Payload = data[HeaderSize : HeaderSize+int(s.Size)]
	return s, nil
}

// Validate checks the CRC and that the bit offset lies inside the payload
func (s *Sample) Validate() error {
	if crc := s.calculateCRC32(); s.CRC32 != crc {
		return errors.Wrapf(ErrCorruption, "CRC32 mismatch: %d != %d", s.CRC32, crc)
	}
	if uint64(s.BitOffset) > uint64(len(s.Payload))*8 {
		return errors.Wrapf(ErrCorruption, "bit offset %d outside %d-byte payload", s.BitOffset, len(s.Payload))
	}
	return nil
}

// EncodedSize returns the total size of the sample when encoded
func (s *Sample) EncodedSize() int {
	return HeaderSize + len(s.Payload)
}

// ByteOrder returns the byte order recorded in the flags
func (s *Sample) ByteOrder() bitbuf.ByteOrder {
	if s.Flags&FlagBigEndian != 0 {
		return bitbuf.BigEndian
	}
	return bitbuf.LittleEndian
}

// Time returns the capture time
func (s *Sample) Time() time.Time {
	return time.Unix(0, int64(s.Timestamp))
}

// Reader returns a bit reader positioned at the sample's bit offset
func (s *Sample) Reader() *bitbuf.Reader {
	r := bitbuf.NewReader(s.Payload, s.ByteOrder())
	_ = r.SetPosition(int(s.BitOffset)) // checked by NewSample and Validate
	return r
}

// Decode decodes decl from the sample and returns the definition with the
// number of bits it consumed.
func (s *Sample) Decode(decl ctf.Declaration, scope ctf.Scope) (ctf.Definition, int, error) {
	r := s.Reader()
	def, err := decl.CreateDefinition(scope, "", r)
	if err != nil {
		return nil, 0, err
	}
	return def, r.Position() - int(s.BitOffset), nil
}

func (s *Sample) putHeader(buf []byte) {
	buf[0] = s.Flags
	binary.LittleEndian.PutUint32(buf[1:], s.BitOffset)
	binary.LittleEndian.PutUint64(buf[5:], s.Timestamp)
	binary.LittleEndian.PutUint32(buf[13:], s.Size)
}

// calculateCRC32 computes the checksum over the header after the CRC field
// and the payload
func (s *Sample) calculateCRC32() uint32 {
	var hdr [HeaderSize - 4]byte
	s.putHeader(hdr[:])
	crc := crc32.NewIEEE()
	crc.Write(hdr[:])
	crc.Write(s.Payload)
	return crc.Sum32()
}
