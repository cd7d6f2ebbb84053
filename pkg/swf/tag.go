package swf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// shortLengthMax is the largest body length a short record header can hold.
const shortLengthMax = 0x3e

// Tag is one SWF record. Data is the record body without its header.
type Tag struct {
	Code Type
	Data []byte

	long bool // record was stored with a long header
}

// NewTag creates a tag with the given body.
func NewTag(code Type, data []byte) *Tag {
	return &Tag{Code: code, Data: data}
}

// ID returns the character id of an identified tag.
func (t *Tag) ID() (uint16, bool) {
	if !t.Code.Identified() || len(t.Data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(t.Data[0:2]), true
}

// SetID rewrites the character id of an identified tag.
func (t *Tag) SetID(id uint16) error {
	if !t.Code.Identified() {
		return fmt.Errorf("set id on %s: not an element", t.Code)
	}
	if len(t.Data) < 2 {
		return fmt.Errorf("set id on %s: %w", t.Code, ErrTruncated)
	}
	binary.LittleEndian.PutUint16(t.Data[0:2], id)
	return nil
}

// Clone returns an independent copy of t.
func (t *Tag) Clone() *Tag {
	return &Tag{
		Code: t.Code,
		Data: bytes.Clone(t.Data),
		long: t.long,
	}
}

func (t *Tag) String() string {
	if id, ok := t.ID(); ok {
		return fmt.Sprintf("%s#%d", t.Code, id)
	}
	return t.Code.String()
}

// needsLongHeader reports whether the record must use the long header form.
// SymbolClass records always do, which gives them the 0x133f header.
func (t *Tag) needsLongHeader() bool {
	if t.long || len(t.Data) > shortLengthMax {
		return true
	}
	switch t.Code {
	case SymbolClass, DefineBitsLossless, DefineBitsLossless2:
		return true
	}
	return false
}

// EncodeTo appends the full record of t to buf.
func (t *Tag) EncodeTo(buf *bytes.Buffer) {
	var hdr [6]byte
	if t.needsLongHeader() {
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(t.Code)<<6|0x3f)
		binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(t.Data)))
		buf.Write(hdr[:6])
	} else {
		binary.LittleEndian.PutUint16(hdr[0:2], uint16(t.Code)<<6|uint16(len(t.Data)))
		buf.Write(hdr[:2])
	}
	buf.Write(t.Data)
}

// decodeTags reads records until the End tag or the end of data.
func decodeTags(data []byte) ([]*Tag, error) {
	var tags []*Tag
	pos := 0
	for pos < len(data) {
		if len(data)-pos < 2 {
			return nil, fmt.Errorf("record header at %d: %w", pos, ErrTruncated)
		}
		codeAndLength := binary.LittleEndian.Uint16(data[pos:])
		pos += 2

		code := Type(codeAndLength >> 6)
		length := int(codeAndLength & 0x3f)
		long := false
		if length == 0x3f {
			if len(data)-pos < 4 {
				return nil, fmt.Errorf("long record header at %d: %w", pos, ErrTruncated)
			}
			length = int(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			long = true
		}

		if code == End {
			break
		}
		if length < 0 || len(data)-pos < length {
			return nil, fmt.Errorf("record %s at %d: %w", code, pos, ErrTruncated)
		}

		tags = append(tags, &Tag{
			Code: code,
			Data: bytes.Clone(data[pos : pos+length]),
			long: long,
		})
		pos += length
	}
	return tags, nil
}
