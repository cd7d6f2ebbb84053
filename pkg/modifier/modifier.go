// Package modifier reads and writes modifier payloads: small containers
// holding the replacement elements one mod brings for one game container.
package modifier

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goopsie/bmlmod/pkg/swf"
	"github.com/goopsie/bmlmod/pkg/symbols"
)

// Ext is the file extension of modifier payloads.
const Ext = ".bmlmodifier"

// Reserved symbol table keys of a modifier payload.
const (
	KeyModifier         uint16 = 0xffff
	KeyScripts          uint16 = 0xfffe
	KeyRepeatingBitmaps uint16 = 0xfffd
)

var ErrGhost = errors.New("ghost modifier has no payload")

// SwfName strips directories and the .swf and modifier extensions.
func SwfName(name string) string {
	name = filepath.Base(name)
	name = strings.TrimSuffix(name, Ext)
	return strings.TrimSuffix(name, ".swf")
}

// Modifier is the part of a mod that patches one game container.
type Modifier struct {
	SwfName  string
	Elements Elements
	ModHash  string
	Path     string // payload file, empty for ghost modifiers

	Scripts          map[string]string
	RepeatingBitmaps map[uint16]uint16 // shape id -> image id

	file *swf.File
	dir  *swf.Directory
}

// New describes a modifier. modPath is the mod folder; an empty modPath
// gives a ghost modifier that can only be uninstalled.
func New(swfName, modHash, modPath string, elements Elements) *Modifier {
	m := &Modifier{
		SwfName:  SwfName(swfName),
		Elements: elements,
		ModHash:  modHash,
	}
	if modPath != "" {
		m.Path = filepath.Join(modPath, m.SwfName+Ext)
	}
	return m
}

// Ghost reports whether the modifier has no payload on disk.
func (m *Modifier) Ghost() bool {
	return m.Path == ""
}

// Loaded reports whether the payload is in memory.
func (m *Modifier) Loaded() bool {
	return m.dir != nil
}

// Load reads the payload and its auxiliary maps.
func (m *Modifier) Load() error {
	if m.Ghost() {
		return fmt.Errorf("load %s: %w", m, ErrGhost)
	}
	if m.Loaded() {
		return nil
	}

	f, err := swf.ReadFile(m.Path)
	if err != nil {
		return fmt.Errorf("load %s: %w", m, err)
	}
	dir := swf.NewDirectory(f)

	m.Scripts = make(map[string]string)
	m.RepeatingBitmaps = make(map[uint16]uint16)
	if st := dir.SymbolTable(); st != nil {
		table, err := symbols.Decode(st.Data)
		if err != nil {
			return fmt.Errorf("load %s symbols: %w", m, err)
		}
		if isModifier, _ := table.Get(KeyModifier).(bool); isModifier {
			if table.Has(KeyScripts) {
				if err := table.Decode(KeyScripts, &m.Scripts); err != nil {
					return fmt.Errorf("load %s scripts: %w", m, err)
				}
			}
			if table.Has(KeyRepeatingBitmaps) {
				if err := table.Decode(KeyRepeatingBitmaps, &m.RepeatingBitmaps); err != nil {
					return fmt.Errorf("load %s bitmaps: %w", m, err)
				}
			}
		}
	}

	m.file, m.dir = f, dir
	return nil
}

// Close drops the payload.
func (m *Modifier) Close() {
	m.file, m.dir = nil, nil
	m.Scripts, m.RepeatingBitmaps = nil, nil
}

// Directory returns the payload's element index, nil until loaded.
func (m *Modifier) Directory() *swf.Directory {
	return m.dir
}

// Matches reports whether m and other patch a common element or script.
func (m *Modifier) Matches(other *Modifier) bool {
	return m.Elements.Matches(other.Elements)
}

func (m *Modifier) String() string {
	return fmt.Sprintf("modifier %s (%s)", m.SwfName, m.ModHash)
}
