package capture

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/codec"
)

// Writer handles append-only writes to a capture file
type Writer struct {
	file       *os.File
	writer     *bufio.Writer
	codec      *codec.SampleCodec
	fsyncTimer *time.Timer
	config     WriterConfig
	mutex      sync.Mutex
	offset     int64 // Current write offset
	closed     bool
}

// NewWriter opens or creates the capture file and positions at its end
func NewWriter(config WriterConfig) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create capture directory")
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open capture file")
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to seek capture file")
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}

	w := &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, bufSize),
		codec:  codec.NewSampleCodec(),
		config: config,
		offset: offset,
	}

	if config.FsyncInterval > 0 {
		w.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			w.mutex.Lock()
			defer w.mutex.Unlock()
			if !w.closed {
				_ = w.sync() // surfaced by the next Sync or Close
			}
		})
	}

	return w, nil
}

// Append wraps payload in a sample envelope, appends it and returns the
// offset of the envelope
func (w *Writer) Append(order bitbuf.ByteOrder, bitOffset int, payload []byte) (int64, error) {
	data, err := w.codec.Encode(order, bitOffset, payload)
	if err != nil {
		return 0, err
	}
	return w.write(data)
}

// AppendSample appends an existing sample, keeping its timestamp
func (w *Writer) AppendSample(s *codec.Sample) (int64, error) {
	data, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return w.write(data)
}

func (w *Writer) write(data []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return 0, errors.New("capture writer is closed")
	}

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, errors.Wrap(err, "failed to write sample")
	}

	sampleOffset := w.offset
	w.offset += int64(n)

	if w.config.FsyncInterval == 0 {
		if err := w.sync(); err != nil {
			return 0, err
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return sampleOffset, nil
}

// Sync forces a fsync to disk
func (w *Writer) Sync() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.sync()
}

func (w *Writer) sync() error {
	if err := w.writer.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush capture file")
	}
	return w.file.Sync()
}

// Close syncs and closes the capture file
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	if err := w.sync(); err != nil {
		_ = w.file.Close()
		return err
	}

	return w.file.Close()
}

// Size returns the current size of the capture file
func (w *Writer) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Path returns the file path
func (w *Writer) Path() string {
	return w.config.FilePath
}
