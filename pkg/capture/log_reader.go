package capture

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/codec"
)

// Reader provides sequential access to samples in a capture file
type Reader struct {
	file   *os.File
	reader *bufio.Reader
	codec  *codec.SampleCodec
	offset int64
	config ReaderConfig
}

// NewReader opens the capture file at config.StartOffset
func NewReader(config ReaderConfig) (*Reader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open capture file")
	}

	r := &Reader{
		file:   file,
		reader: bufio.NewReader(file),
		codec:  codec.NewSampleCodec(),
		config: config,
	}
	if config.StartOffset > 0 {
		if err := r.Seek(config.StartOffset); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return r, nil
}

// Next reads the sample at the current offset. It returns io.EOF at a clean
// end of file and ErrCorruption for a truncated or damaged envelope.
func (r *Reader) Next() (*codec.Sample, error) {
	s, n, err := readSample(r.reader, r.codec)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "offset %d", r.offset)
	}
	r.offset += int64(n)
	return s, nil
}

// ReadAt reads the sample at offset without moving the sequential position
func (r *Reader) ReadAt(offset int64) (*codec.Sample, error) {
	sr := io.NewSectionReader(r.file, offset, 1<<62)
	s, _, err := readSample(bufio.NewReader(sr), r.codec)
	if err == io.EOF {
		return nil, errors.Wrapf(ErrCorruption, "no sample at offset %d", offset)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "offset %d", offset)
	}
	return s, nil
}

func readSample(br *bufio.Reader, c *codec.SampleCodec) (*codec.Sample, int, error) {
	header := make([]byte, codec.HeaderSize)
	n, err := io.ReadFull(br, header)
	if err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, 0, errors.Wrapf(ErrCorruption, "truncated header (%d bytes)", n)
		}
		return nil, 0, err
	}

	size := binary.LittleEndian.Uint32(header[codec.HeaderSize-4:])
	if size > MaxSampleSize {
		return nil, 0, errors.Wrapf(ErrCorruption, "sample size %d", size)
	}

	data := make([]byte, codec.HeaderSize+int(size))
	copy(data, header)
	if _, err := io.ReadFull(br, data[codec.HeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, errors.Wrap(ErrCorruption, "truncated payload")
		}
		return nil, 0, err
	}

	s, err := c.Decode(data)
	if err != nil {
		return nil, 0, errors.Mark(err, ErrCorruption)
	}
	if err := s.Validate(); err != nil {
		return nil, 0, errors.Mark(err, ErrCorruption)
	}
	return s, len(data), nil
}

// Seek sets the read offset
func (r *Reader) Seek(offset int64) error {
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "failed to seek capture file")
	}
	r.reader.Reset(r.file)
	r.offset = offset
	return nil
}

// Offset returns the current read offset
func (r *Reader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator over the remaining samples
func (r *Reader) Iterator() SampleIterator {
	return &sampleIterator{reader: r}
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

type sampleIterator struct {
	reader *Reader
	sample *codec.Sample
	offset int64
	err    error
}

func (it *sampleIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.offset = it.reader.Offset()
	it.sample, it.err = it.reader.Next()
	return it.err == nil
}

func (it *sampleIterator) Sample() *codec.Sample { return it.sample }

func (it *sampleIterator) Offset() int64 { return it.offset }

// Err returns the error that stopped iteration, nil at a clean end of file
func (it *sampleIterator) Err() error {
	if errors.Is(it.err, io.EOF) {
		return nil
	}
	return it.err
}

// Close does not close the underlying reader, which is owned by the caller
func (it *sampleIterator) Close() error {
	return nil
}
