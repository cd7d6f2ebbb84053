// Package swf reads and writes SWF containers at the tag level and indexes
// their addressable elements.
package swf

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-restruct/restruct"
)

// HeaderSize is the fixed size of the uncompressed SWF file header.
const HeaderSize = 8

// Signatures of the supported container encodings.
var (
	SignatureFWS = [3]byte{'F', 'W', 'S'} // uncompressed
	SignatureCWS = [3]byte{'C', 'W', 'S'} // zlib
	SignatureZWS = [3]byte{'Z', 'W', 'S'} // lzma
)

var (
	ErrInvalidSignature       = errors.New("invalid swf signature")
	ErrUnsupportedCompression = errors.New("unsupported swf compression")
	ErrTruncated              = errors.New("truncated swf data")
)

// Header is the fixed prefix of every SWF file. FileLength is the
// uncompressed length including the header itself.
type Header struct {
	Signature  [3]byte
	Version    uint8
	FileLength uint32
}

// Compressed reports whether the body following the header is zlib data.
func (h *Header) Compressed() bool {
	return h.Signature == SignatureCWS
}

// Validate checks the signature.
func (h *Header) Validate() error {
	switch h.Signature {
	case SignatureFWS, SignatureCWS:
		return nil
	case SignatureZWS:
		return fmt.Errorf("lzma body: %w", ErrUnsupportedCompression)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSignature, h.Signature[:])
	}
}

// MarshalBinary encodes the header.
func (h *Header) MarshalBinary() ([]byte, error) {
	return restruct.Pack(binary.LittleEndian, h)
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header: %w", ErrTruncated)
	}
	if err := restruct.Unpack(data[:HeaderSize], binary.LittleEndian, h); err != nil {
		return fmt.Errorf("unpack header: %w", err)
	}
	return h.Validate()
}
