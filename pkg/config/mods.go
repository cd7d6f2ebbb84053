package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ModsFile is the file name of the mods state store.
const ModsFile = "mods.cfg"

// Top-level keys of the mods store.
const (
	fieldOriginalFiles = "OriginalFiles"
	fieldModifiedFiles = "ModifiedFiles"
	fieldJsonMods      = "JsonMods"
	fieldInstalledMods = "InstalledMods"
)

var ErrInvalidStore = errors.New("invalid mods store")

// ModsConfig is the persistent state shared by installs: hashes of dumped
// original files and placed modified files, cached mod descriptions and the
// set of installed mods. Every setter writes the file.
type ModsConfig struct {
	path string
	data []byte
}

// LoadMods reads the store at path. A missing file yields an empty store.
func LoadMods(path string) (*ModsConfig, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("load %s: %w", path, ErrInvalidStore)
	}
	return &ModsConfig{path: path, data: data}, nil
}

// escapeKey makes a map key usable as a gjson/sjson path component. File
// names contain dots.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '!', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func fieldPath(field, key string) string {
	return field + "." + escapeKey(key)
}

func (c *ModsConfig) save() error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, c.data, "", "  "); err != nil {
		return fmt.Errorf("format %s: %w", c.path, err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("save %s: %w", c.path, err)
	}
	return nil
}

func (c *ModsConfig) set(path string, v any) error {
	data, err := sjson.SetBytes(c.data, path, v)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	c.data = data
	return c.save()
}

func (c *ModsConfig) stringMap(field string) map[string]string {
	m := make(map[string]string)
	gjson.GetBytes(c.data, field).ForEach(func(k, v gjson.Result) bool {
		m[k.String()] = v.String()
		return true
	})
	return m
}

// OriginalFiles maps file names to the hash of their dumped original.
func (c *ModsConfig) OriginalFiles() map[string]string {
	return c.stringMap(fieldOriginalFiles)
}

// OriginalFile returns the hash of the dumped original of name.
func (c *ModsConfig) OriginalFile(name string) (string, bool) {
	r := gjson.GetBytes(c.data, fieldPath(fieldOriginalFiles, name))
	return r.String(), r.Exists()
}

// SetOriginalFile records the hash of a fresh dump.
func (c *ModsConfig) SetOriginalFile(name, hash string) error {
	return c.set(fieldPath(fieldOriginalFiles, name), hash)
}

// ModifiedFiles maps file names to the hash of the content last placed.
func (c *ModsConfig) ModifiedFiles() map[string]string {
	return c.stringMap(fieldModifiedFiles)
}

// ModifiedFile returns the hash of the content last placed at name.
func (c *ModsConfig) ModifiedFile(name string) (string, bool) {
	r := gjson.GetBytes(c.data, fieldPath(fieldModifiedFiles, name))
	return r.String(), r.Exists()
}

// SetModifiedFile records the hash of placed content.
func (c *ModsConfig) SetModifiedFile(name, hash string) error {
	return c.set(fieldPath(fieldModifiedFiles, name), hash)
}

// JsonMods returns the cached mod descriptions keyed by mod hash.
func (c *ModsConfig) JsonMods() map[string]json.RawMessage {
	m := make(map[string]json.RawMessage)
	gjson.GetBytes(c.data, fieldJsonMods).ForEach(func(k, v gjson.Result) bool {
		m[k.String()] = json.RawMessage(v.Raw)
		return true
	})
	return m
}

// JsonMod returns one cached description.
func (c *ModsConfig) JsonMod(hash string) (json.RawMessage, bool) {
	r := gjson.GetBytes(c.data, fieldPath(fieldJsonMods, hash))
	if !r.Exists() {
		return nil, false
	}
	return json.RawMessage(r.Raw), true
}

// SetJsonMod caches a description.
func (c *ModsConfig) SetJsonMod(hash string, desc []byte) error {
	if !gjson.ValidBytes(desc) {
		return fmt.Errorf("cache mod %s: %w", hash, ErrInvalidStore)
	}
	data, err := sjson.SetRawBytes(c.data, fieldPath(fieldJsonMods, hash), desc)
	if err != nil {
		return fmt.Errorf("cache mod %s: %w", hash, err)
	}
	c.data = data
	return c.save()
}

// DeleteJsonMod drops a cached description.
func (c *ModsConfig) DeleteJsonMod(hash string) error {
	data, err := sjson.DeleteBytes(c.data, fieldPath(fieldJsonMods, hash))
	if err != nil {
		return fmt.Errorf("drop mod %s: %w", hash, err)
	}
	c.data = data
	return c.save()
}

// InstalledMods returns the hashes of installed mods.
func (c *ModsConfig) InstalledMods() []string {
	var mods []string
	for _, r := range gjson.GetBytes(c.data, fieldInstalledMods).Array() {
		mods = append(mods, r.String())
	}
	return mods
}

// SetInstalledMods replaces the installed set.
func (c *ModsConfig) SetInstalledMods(hashes []string) error {
	if hashes == nil {
		hashes = []string{}
	}
	return c.set(fieldInstalledMods, hashes)
}
