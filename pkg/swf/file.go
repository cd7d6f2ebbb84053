package swf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// DefaultVersion is the SWF version written for new containers.
const DefaultVersion = 15

// File is a decoded SWF container. Frame holds the raw frame size RECT,
// frame rate and frame count that precede the first tag.
type File struct {
	Header Header
	Frame  []byte
	Tags   []*Tag
}

// New creates an empty uncompressed movie with a zero frame size,
// 24 frames per second and a single frame.
func New() *File {
	return &File{
		Header: Header{Signature: SignatureFWS, Version: DefaultVersion},
		Frame:  []byte{0x00, 0x00, 0x18, 0x01, 0x00},
	}
}

// rectSize returns the byte size of the RECT starting at b[0].
func rectSize(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, ErrTruncated
	}
	nbits := int(b[0] >> 3)
	size := (5 + 4*nbits + 7) / 8
	if len(b) < size {
		return 0, ErrTruncated
	}
	return size, nil
}

// Decode reads a complete container from r.
func Decode(r io.Reader) (*File, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	f := &File{}
	if err := f.Header.UnmarshalBinary(hdrBuf[:]); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	var src io.Reader = r
	if f.Header.Compressed() {
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zlib body: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	body, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	rs, err := rectSize(body)
	if err != nil {
		return nil, fmt.Errorf("frame size: %w", err)
	}
	frameLen := rs + 4
	if len(body) < frameLen {
		return nil, fmt.Errorf("frame header: %w", ErrTruncated)
	}
	f.Frame = bytes.Clone(body[:frameLen])

	f.Tags, err = decodeTags(body[frameLen:])
	if err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return f, nil
}

// Encode writes the container to w, compressing the body when the header
// carries the CWS signature. FileLength is recomputed.
func (f *File) Encode(w io.Writer) error {
	var body bytes.Buffer
	body.Write(f.Frame)
	for _, t := range f.Tags {
		t.EncodeTo(&body)
	}
	body.Write([]byte{0x00, 0x00}) // End

	f.Header.FileLength = uint32(HeaderSize + body.Len())
	hdr, err := f.Header.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if !f.Header.Compressed() {
		if _, err := w.Write(body.Bytes()); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
		return nil
	}

	zw := zlib.NewWriter(w)
	if _, err := zw.Write(body.Bytes()); err != nil {
		return fmt.Errorf("compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	return nil
}

// Bytes returns the encoded container.
func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFile decodes the container at path.
func ReadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open swf: %w", err)
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}

// WriteFile encodes the container and replaces the file at path.
func (f *File) WriteFile(path string) error {
	data, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write swf: %w", err)
	}
	return nil
}
