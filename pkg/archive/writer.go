package archive

import (
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/DataDog/zstd"
)

// Writer compresses a dump into an io.WriteSeeker.
type Writer struct {
	dst     io.WriteSeeker
	zWriter *zstd.Writer
	sum     hash.Hash
	header  *Header
	level   int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCompressionLevel sets the compression level for the writer.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) {
		w.level = level
	}
}

// NewWriter starts a dump in dst. The header is rewritten on Close once the
// sizes and checksum are known.
func NewWriter(dst io.WriteSeeker, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		dst:   dst,
		sum:   sha256.New(),
		level: DefaultCompressionLevel,
		header: &Header{
			Magic:   Magic,
			Version: Version,
		},
	}

	for _, opt := range opts {
		opt(w)
	}

	// placeholder, rewritten by Close
	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := dst.Write(headerBytes); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	w.zWriter = zstd.NewWriterLevel(dst, w.level)
	return w, nil
}

// Write compresses p.
func (w *Writer) Write(p []byte) (n int, err error) {
	n, err = w.zWriter.Write(p)
	w.sum.Write(p[:n])
	w.header.Length += uint64(n)
	return n, err
}

// Close flushes the compressor and finalizes the header.
func (w *Writer) Close() error {
	if err := w.zWriter.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	pos, err := w.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("get position: %w", err)
	}

	w.header.CompressedLength = uint64(pos) - HeaderSize
	copy(w.header.Checksum[:], w.sum.Sum(nil))

	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek to start: %w", err)
	}

	headerBytes, err := w.header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := w.dst.Write(headerBytes); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if _, err := w.dst.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	return nil
}

// Header returns the header as it stands; complete after Close.
func (w *Writer) Header() *Header {
	return w.header
}

// Encode compresses data and writes it as a dump to dst.
func Encode(dst io.WriteSeeker, data []byte, opts ...WriterOption) error {
	w, err := NewWriter(dst, opts...)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return w.Close()
}

// WriteFile dumps data to path, replacing any previous dump.
func WriteFile(path string, data []byte, opts ...WriterOption) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	if err := Encode(f, data, opts...); err != nil {
		f.Close()
		return fmt.Errorf("encode dump %s: %w", path, err)
	}
	return f.Close()
}
