// Package symbols stores loader state in the SymbolClass table of a
// container. Each entry maps a character id to a string; structured values
// are written with a flag suffix after the id so the game's own class names
// can live alongside them.
package symbols

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// HeaderRecord is the record header of a long-form SymbolClass tag.
const HeaderRecord = 0x133f

// Value flags written after the key.
const (
	FlagJSON  = "!json"
	FlagTrue  = "!true"
	FlagFalse = "!false"
	FlagNull  = "!null"
)

var (
	ErrDuplicateKey = errors.New("symbol key already exists")
	ErrMissingKey   = errors.New("symbol key does not exist")
	ErrMalformed    = errors.New("malformed symbol table")
)

// Table is a decoded SymbolClass body. Values are nil, bool, string or
// JSON-encodable maps and slices. Decoded JSON values are kept as
// json.RawMessage until read with Decode.
type Table struct {
	entries map[uint16]any
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[uint16]any)}
}

// Decode parses a SymbolClass body.
func Decode(body []byte) (*Table, error) {
	t := New()
	if len(body) == 0 {
		return t, nil
	}
	if len(body) < 2 {
		return nil, fmt.Errorf("entry count: %w", ErrMalformed)
	}
	count := int(binary.LittleEndian.Uint16(body))
	pos := 2
	for i := 0; i < count; i++ {
		if len(body)-pos < 2 {
			return nil, fmt.Errorf("entry %d key: %w", i, ErrMalformed)
		}
		key := binary.LittleEndian.Uint16(body[pos:])
		pos += 2
		end := bytes.IndexByte(body[pos:], 0)
		if end < 0 {
			return nil, fmt.Errorf("entry %d name: %w", i, ErrMalformed)
		}
		v, err := parseValue(key, string(body[pos:pos+end]))
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", key, err)
		}
		t.entries[key] = v
		pos += end + 1
	}
	return t, nil
}

func parseValue(key uint16, name string) (any, error) {
	rest, ok := strings.CutPrefix(name, strconv.Itoa(int(key)))
	if !ok {
		return name, nil
	}
	switch {
	case strings.HasPrefix(rest, FlagJSON):
		raw := json.RawMessage(strings.TrimPrefix(rest, FlagJSON))
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid json value: %w", ErrMalformed)
		}
		return raw, nil
	case rest == FlagTrue:
		return true, nil
	case rest == FlagFalse:
		return false, nil
	case rest == FlagNull:
		return nil, nil
	}
	return name, nil
}

func formatValue(key uint16, v any) (string, error) {
	prefix := strconv.Itoa(int(key))
	switch v := v.(type) {
	case nil:
		return prefix + FlagNull, nil
	case bool:
		if v {
			return prefix + FlagTrue, nil
		}
		return prefix + FlagFalse, nil
	case string:
		return v, nil
	case json.RawMessage:
		return prefix + FlagJSON + string(v), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode key %d: %w", key, err)
	}
	return prefix + FlagJSON + string(data), nil
}

// Has reports whether key is set.
func (t *Table) Has(key uint16) bool {
	_, ok := t.entries[key]
	return ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Add stores a new entry.
func (t *Table) Add(key uint16, v any) error {
	if t.Has(key) {
		return fmt.Errorf("add %d: %w", key, ErrDuplicateKey)
	}
	t.entries[key] = v
	return nil
}

// Set overwrites an existing entry.
func (t *Table) Set(key uint16, v any) error {
	if !t.Has(key) {
		return fmt.Errorf("set %d: %w", key, ErrMissingKey)
	}
	t.entries[key] = v
	return nil
}

// Get returns the stored value, or nil when key is unset.
func (t *Table) Get(key uint16) any {
	return t.entries[key]
}

// Decode unmarshals the value at key into dst. Map keys written as JSON
// strings decode into integer-keyed maps.
func (t *Table) Decode(key uint16, dst any) error {
	v, ok := t.entries[key]
	if !ok {
		return fmt.Errorf("decode %d: %w", key, ErrMissingKey)
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return fmt.Errorf("decode %d: %w", key, err)
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %d: %w", key, err)
	}
	return nil
}

// Keys returns the keys in descending order, the order they are written in.
func (t *Table) Keys() []uint16 {
	keys := make([]uint16, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	slices.Reverse(keys)
	return keys
}

// Encode returns the SymbolClass body.
func (t *Table) Encode() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint16(nil, uint16(len(t.entries)))
	for _, key := range t.Keys() {
		name, err := formatValue(key, t.entries[key])
		if err != nil {
			return nil, err
		}
		if strings.IndexByte(name, 0) >= 0 {
			return nil, fmt.Errorf("encode key %d: value contains NUL: %w", key, ErrMalformed)
		}
		buf = binary.LittleEndian.AppendUint16(buf, key)
		buf = append(buf, name...)
		buf = append(buf, 0)
	}
	return buf, nil
}

// Record returns the full SymbolClass record with its long-form header.
func (t *Table) Record() ([]byte, error) {
	body, err := t.Encode()
	if err != nil {
		return nil, err
	}
	rec := binary.LittleEndian.AppendUint16(nil, HeaderRecord)
	rec = binary.LittleEndian.AppendUint32(rec, uint32(len(body)))
	return append(rec, body...), nil
}
