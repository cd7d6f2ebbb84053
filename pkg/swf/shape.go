package swf

import (
	"encoding/binary"
	"fmt"
)

// Bitmap fill style types.
const (
	FillRepeatingBitmap      byte = 0x40
	FillClippedBitmap        byte = 0x41
	FillNonSmoothedRepeating byte = 0x42
	FillNonSmoothedClipped   byte = 0x43
)

// FillStyle is the leading part of a shape fill style record.
type FillStyle struct {
	Type     byte
	BitmapID uint16 // only set for bitmap fills
}

// Bitmap reports whether the fill references a bitmap character.
func (fs FillStyle) Bitmap() bool {
	return fs.Type >= FillRepeatingBitmap && fs.Type <= FillNonSmoothedClipped
}

// Repeating reports whether the fill is a smoothed repeating bitmap.
func (fs FillStyle) Repeating() bool {
	return fs.Type == FillRepeatingBitmap
}

// firstFillOffset returns the offset of the first fill style type byte in a
// shape body, or false when the shape has no fill styles.
func firstFillOffset(t *Tag) (int, bool, error) {
	if t.Code.Kind() != KindShape {
		return 0, false, fmt.Errorf("%s is not a shape", t.Code)
	}
	d := t.Data
	pos := 2 // character id

	n, err := rectSize(d[min(pos, len(d)):])
	if err != nil {
		return 0, false, fmt.Errorf("shape bounds: %w", err)
	}
	pos += n

	if t.Code == DefineShape4 {
		n, err := rectSize(d[min(pos, len(d)):])
		if err != nil {
			return 0, false, fmt.Errorf("edge bounds: %w", err)
		}
		pos += n + 1 // flags
	}

	if len(d) <= pos {
		return 0, false, fmt.Errorf("fill count: %w", ErrTruncated)
	}
	count := int(d[pos])
	pos++
	if count == 0xff && t.Code != DefineShape {
		if len(d) < pos+2 {
			return 0, false, fmt.Errorf("extended fill count: %w", ErrTruncated)
		}
		count = int(binary.LittleEndian.Uint16(d[pos:]))
		pos += 2
	}
	if count == 0 {
		return 0, false, nil
	}
	if len(d) <= pos {
		return 0, false, fmt.Errorf("fill style: %w", ErrTruncated)
	}
	return pos, true, nil
}

// FirstFillStyle returns the first fill style of a shape.
func FirstFillStyle(t *Tag) (FillStyle, bool) {
	pos, ok, err := firstFillOffset(t)
	if err != nil || !ok {
		return FillStyle{}, false
	}
	fs := FillStyle{Type: t.Data[pos]}
	if fs.Bitmap() {
		if len(t.Data) < pos+3 {
			return FillStyle{}, false
		}
		fs.BitmapID = binary.LittleEndian.Uint16(t.Data[pos+1:])
	}
	return fs, true
}

// SetFirstFillBitmap points the first bitmap fill of a shape at id.
func SetFirstFillBitmap(t *Tag, id uint16) error {
	pos, ok, err := firstFillOffset(t)
	if err != nil {
		return fmt.Errorf("locate fill style: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s has no fill styles", t)
	}
	fs := FillStyle{Type: t.Data[pos]}
	if !fs.Bitmap() {
		return fmt.Errorf("%s first fill is not a bitmap (type 0x%02x)", t, fs.Type)
	}
	if len(t.Data) < pos+3 {
		return fmt.Errorf("bitmap fill: %w", ErrTruncated)
	}
	binary.LittleEndian.PutUint16(t.Data[pos+1:], id)
	return nil
}
