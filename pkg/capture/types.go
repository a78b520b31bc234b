// Package capture stores event samples in append-only log files.
//
// A capture file is a plain concatenation of codec sample envelopes. Writers
// append under a mutex and fsync either on every append or on a timer; readers
// scan sequentially or jump to an offset returned by Append.
package capture

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/codec"
)

// MaxSampleSize bounds the payload size a reader accepts before treating the
// size field as corrupt
const MaxSampleSize = 64 << 20

// WriterConfig holds configuration for the log writer
type WriterConfig struct {
	FilePath      string        // Path to the capture file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
	BufferSize    int           // Write buffer size
}

// ReaderConfig holds configuration for the log reader
type ReaderConfig struct {
	FilePath    string // Path to the capture file
	StartOffset int64  // Offset to start reading from
}

// SampleIterator provides streaming access to samples
type SampleIterator interface {
	Next() bool
	Sample() *codec.Sample
	Offset() int64 // offset of the current sample
	Err() error
	Close() error
}

// ErrCorruption is returned for envelopes that are truncated or fail their CRC
var ErrCorruption = errors.New("capture corruption detected")
