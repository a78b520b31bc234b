package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ssargent/bitctf/pkg/bitbuf"
	"github.com/ssargent/bitctf/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, interval time.Duration) *Writer {
	t.Helper()
	w, err := NewWriter(WriterConfig{
		FilePath:      filepath.Join(t.TempDir(), "nested", "samples.cap"),
		FsyncInterval: interval,
		BufferSize:    4096,
	})
	require.NoError(t, err)
	return w
}

func TestNewWriter(t *testing.T) {
	w := newTestWriter(t, 0)
	assert.FileExists(t, w.Path())
	assert.DirExists(t, filepath.Dir(w.Path()))
	assert.Equal(t, int64(0), w.Size())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close(), "second close is a no-op")
}

func TestNewWriter_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))

	w, err := NewWriter(WriterConfig{FilePath: filepath.Join(blocker, "x", "samples.cap")})
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestWriterAppendAndRead(t *testing.T) {
	w := newTestWriter(t, 0)

	payloads := [][]byte{
		{0x80, 0x00, 0x00, 0x42},
		{},
		{0xFF, 0, 0, 0x08, 0xAE, 0, 0, 0, 0, 0, 0, 0x03, 0xE8},
	}
	var offsets []int64
	for i, p := range payloads {
		order := bitbuf.BigEndian
		if i%2 == 1 {
			order = bitbuf.LittleEndian
		}
		off, err := w.Append(order, 0, p)
		require.NoError(t, err)
		offsets = append(offsets, off)
	}
	assert.Equal(t, []int64{0, 25, 46}, offsets)
	assert.Equal(t, int64(46+codec.HeaderSize+13), w.Size())

	_, err := w.Append(bitbuf.BigEndian, 9, []byte{1})
	assert.ErrorIs(t, err, codec.ErrInvalidSample)
	require.NoError(t, w.Close())

	r, err := NewReader(ReaderConfig{FilePath: w.Path()})
	require.NoError(t, err)
	defer r.Close()

	for i, p := range payloads {
		assert.Equal(t, offsets[i], r.Offset())
		s, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, len(p), len(s.Payload))
		assert.Equal(t, p, append([]byte{}, s.Payload...))
	}
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)

	s, err := r.ReadAt(offsets[2])
	require.NoError(t, err)
	assert.Equal(t, payloads[2], s.Payload)
	assert.Equal(t, bitbuf.BigEndian, s.ByteOrder())

	_, err = r.ReadAt(w.Size())
	assert.ErrorIs(t, err, ErrCorruption)

	require.NoError(t, r.Seek(offsets[1]))
	s, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, bitbuf.LittleEndian, s.ByteOrder())
}

func TestWriterReopenAppends(t *testing.T) {
	w := newTestWriter(t, 0)
	_, err := w.Append(bitbuf.BigEndian, 0, []byte("first"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := NewWriter(WriterConfig{FilePath: w.Path()})
	require.NoError(t, err)
	off, err := w2.Append(bitbuf.BigEndian, 0, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(codec.HeaderSize+5), off)
	require.NoError(t, w2.Close())

	r, err := NewReader(ReaderConfig{FilePath: w.Path(), StartOffset: off})
	require.NoError(t, err)
	defer r.Close()
	s, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), s.Payload)
}

func TestAppendSampleKeepsTimestamp(t *testing.T) {
	w := newTestWriter(t, 0)
	s, err := codec.NewSample(bitbuf.LittleEndian, 3, []byte{7, 7})
	require.NoError(t, err)
	s.Timestamp = 1234

	off, err := w.AppendSample(s)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReader(ReaderConfig{FilePath: w.Path()})
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadAt(off)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), got.Timestamp)
	assert.Equal(t, uint32(3), got.BitOffset)
}

func TestIterator(t *testing.T) {
	w := newTestWriter(t, 0)
	for i := 0; i < 10; i++ {
		_, err := w.Append(bitbuf.BigEndian, 0, []byte(fmt.Sprintf("sample-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := NewReader(ReaderConfig{FilePath: w.Path()})
	require.NoError(t, err)
	defer r.Close()

	it := r.Iterator()
	defer it.Close()
	var count int
	var last int64 = -1
	for it.Next() {
		assert.Equal(t, fmt.Sprintf("sample-%d", count), string(it.Sample().Payload))
		assert.Greater(t, it.Offset(), last)
		last = it.Offset()
		count++
	}
	assert.NoError(t, it.Err())
	assert.Equal(t, 10, count)
}

func TestReaderDetectsCorruption(t *testing.T) {
	w := newTestWriter(t, 0)
	_, err := w.Append(bitbuf.BigEndian, 0, []byte("intact"))
	require.NoError(t, err)
	second, err := w.Append(bitbuf.BigEndian, 0, []byte("damaged"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[len(bad)-1] ^= 0xFF
		path := filepath.Join(t.TempDir(), "bad.cap")
		require.NoError(t, os.WriteFile(path, bad, 0600))

		r, err := NewReader(ReaderConfig{FilePath: path})
		require.NoError(t, err)
		defer r.Close()

		it := r.Iterator()
		assert.True(t, it.Next())
		assert.False(t, it.Next())
		assert.ErrorIs(t, it.Err(), ErrCorruption)
	})

	t.Run("truncated tail", func(t *testing.T) {
		for _, cut := range []int64{second + 3, second + codec.HeaderSize + 2} {
			path := filepath.Join(t.TempDir(), "short.cap")
			require.NoError(t, os.WriteFile(path, data[:cut], 0600))

			r, err := NewReader(ReaderConfig{FilePath: path})
			require.NoError(t, err)
			_, err = r.Next()
			require.NoError(t, err)
			_, err = r.Next()
			assert.ErrorIs(t, err, ErrCorruption, "cut at %d", cut)
			require.NoError(t, r.Close())
		}
	})

	t.Run("absurd size", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[codec.HeaderSize-1] = 0x7F
		path := filepath.Join(t.TempDir(), "size.cap")
		require.NoError(t, os.WriteFile(path, bad, 0600))

		r, err := NewReader(ReaderConfig{FilePath: path})
		require.NoError(t, err)
		defer r.Close()
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrCorruption)
	})
}

func TestWriterFsyncInterval(t *testing.T) {
	w := newTestWriter(t, 10*time.Millisecond)
	_, err := w.Append(bitbuf.BigEndian, 0, []byte("buffered"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		info, err := os.Stat(w.Path())
		return err == nil && info.Size() == int64(codec.HeaderSize+8)
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Close())

	_, err = w.Append(bitbuf.BigEndian, 0, []byte("late"))
	assert.Error(t, err)
}

func TestWriterConcurrentAppends(t *testing.T) {
	w := newTestWriter(t, 0)

	const goroutines, perGoroutine = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := w.Append(bitbuf.BigEndian, 0, []byte(fmt.Sprintf("%d/%d", g, i)))
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	r, err := NewReader(ReaderConfig{FilePath: w.Path()})
	require.NoError(t, err)
	defer r.Close()

	seen := make(map[string]bool)
	it := r.Iterator()
	for it.Next() {
		seen[string(it.Sample().Payload)] = true
	}
	require.NoError(t, it.Err())
	assert.Len(t, seen, goroutines*perGoroutine)
}
