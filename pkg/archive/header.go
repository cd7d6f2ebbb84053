// Package archive stores copies of original game files as zstd-compressed
// dumps so they can be put back after a mod replaced them.
package archive

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Magic identifies a dump file.
var Magic = [4]byte{'B', 'M', 'L', 'D'}

// Ext is the file extension of dumps.
const Ext = ".bmld"

// Version is the dump format version written by this package.
const Version = 1

// HeaderSize is the fixed binary size of a dump header.
const HeaderSize = 32 // 4 + 4 + 8 + 8 + 8 bytes

var (
	ErrInvalidHeader = errors.New("invalid dump header")
	ErrHashMismatch  = errors.New("dump content hash mismatch")
)

// Header precedes the compressed content of a dump.
type Header struct {
	Magic            [4]byte
	Version          uint32
	Length           uint64 // uncompressed size
	CompressedLength uint64
	Checksum         [8]byte // leading bytes of the content's SHA-256
}

// Validate checks the header for validity.
func (h *Header) Validate() error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: magic %x", ErrInvalidHeader, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: version %d", ErrInvalidHeader, h.Version)
	}
	if h.CompressedLength == 0 {
		return fmt.Errorf("%w: compressed size is zero", ErrInvalidHeader)
	}
	return nil
}

// MarshalBinary encodes the header to binary format.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	h.EncodeTo(buf)
	return buf, nil
}

// EncodeTo writes the header to buf, which must hold HeaderSize bytes.
func (h *Header) EncodeTo(buf []byte) {
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Length)
	binary.LittleEndian.PutUint64(buf[16:24], h.CompressedLength)
	copy(buf[24:32], h.Checksum[:])
}

// UnmarshalBinary decodes and validates the header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header data too short: need %d, got %d", HeaderSize, len(data))
	}
	h.DecodeFrom(data)
	return h.Validate()
}

// DecodeFrom reads the header from data without validating it.
func (h *Header) DecodeFrom(data []byte) {
	copy(h.Magic[:], data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.Length = binary.LittleEndian.Uint64(data[8:16])
	h.CompressedLength = binary.LittleEndian.Uint64(data[16:24])
	copy(h.Checksum[:], data[24:32])
}

// Hash returns the checksum in the 16 hex digit form used for file hashes.
func (h *Header) Hash() string {
	return hex.EncodeToString(h.Checksum[:])
}

// Sum returns the first 16 hex digits of the SHA-256 of data. Mod indexes
// and the config store identify file contents by it.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
