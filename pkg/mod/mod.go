// Package mod loads, describes and builds mods. A built mod folder holds an
// index database, one modifier payload per patched container and an
// optional pack of whole-file replacements.
package mod

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/modifier"
)

// Description is the exported form of a mod, cached in the config store so
// installed mods stay known after their folder is deleted.
type Description struct {
	Configuration Config          `json:"Configuration"`
	Modifiers     []ModifierEntry `json:"Modifiers"`
	Files         []FileEntry     `json:"Files"`
}

// ParseDescription decodes a cached description.
func ParseDescription(data []byte) (Description, error) {
	var desc Description
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if desc.Configuration.ModHash == "" {
		return desc, fmt.Errorf("%w: no mod hash", ErrInvalidDescription)
	}
	return desc, nil
}

// Mod is a loaded mod or a ghost rebuilt from its description.
type Mod struct {
	Config

	Folder    string // folder name under the mods path, empty for ghosts
	Path      string
	Modifiers []*modifier.Modifier
	Files     *FilesPack
}

// Open loads the built mod in folder under the mods path.
func Open(env *config.Environment, folder string) (*Mod, error) {
	path := filepath.Join(env.ModsPath, folder)
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderMissing, path)
	}
	indexPath := filepath.Join(path, IndexFile)
	if _, err := os.Stat(indexPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotBuilt, folder)
	}

	ix, err := OpenIndex(indexPath)
	if err != nil {
		return nil, err
	}
	defer ix.Close()
	built, err := ix.Built()
	if err != nil {
		return nil, err
	}
	if !built {
		return nil, fmt.Errorf("%w: %s", ErrNotBuilt, folder)
	}

	cfg, err := ix.Configuration()
	if err != nil {
		return nil, err
	}
	if cfg.ModHash == "" {
		return nil, fmt.Errorf("%w: %s has no mod hash", ErrNotBuilt, folder)
	}
	m := &Mod{Config: cfg, Folder: folder, Path: path}

	modifiers, err := ix.Modifiers()
	if err != nil {
		return nil, err
	}
	for _, e := range modifiers {
		mf := modifier.New(e.Name, cfg.ModHash, path, e.Elements)
		if _, err := os.Stat(mf.Path); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModifierMissing, mf.Path)
		}
		m.Modifiers = append(m.Modifiers, mf)
	}

	files, err := ix.Files()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		packPath := filepath.Join(path, PackFile)
		if _, err := os.Stat(packPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, packPath)
		}
		m.Files = NewFilesPack(env, cfg.ModHash, packPath, files)
	}
	return m, nil
}

// FromDescription rebuilds a ghost mod. Ghosts can only be uninstalled.
func FromDescription(env *config.Environment, desc Description) *Mod {
	m := &Mod{Config: desc.Configuration}
	for _, e := range desc.Modifiers {
		m.Modifiers = append(m.Modifiers, modifier.New(e.Name, m.ModHash, "", e.Elements))
	}
	if len(desc.Files) > 0 {
		m.Files = NewFilesPack(env, m.ModHash, "", desc.Files)
	}
	return m
}

// Ghost reports whether the mod has no folder.
func (m *Mod) Ghost() bool {
	return m.Folder == ""
}

// Hash returns the mod's identity.
func (m *Mod) Hash() string {
	return m.ModHash
}

// Export describes the mod. The preview is a local path and is left out.
func (m *Mod) Export() Description {
	desc := Description{
		Configuration: m.Config,
		Modifiers:     []ModifierEntry{},
		Files:         []FileEntry{},
	}
	desc.Configuration.ModPreview = ""
	for _, mf := range m.Modifiers {
		desc.Modifiers = append(desc.Modifiers, ModifierEntry{Name: mf.SwfName, Elements: mf.Elements})
	}
	if m.Files != nil {
		for _, f := range m.Files.Files {
			desc.Files = append(desc.Files, FileEntry{Name: f.Name, Path: f.Path, Hash: f.Hash})
		}
	}
	return desc
}

// Modifier returns the modifier patching swfName, or nil.
func (m *Mod) Modifier(swfName string) *modifier.Modifier {
	swfName = modifier.SwfName(swfName)
	for _, mf := range m.Modifiers {
		if mf.SwfName == swfName {
			return mf
		}
	}
	return nil
}

func (m *Mod) String() string {
	if m.ModName == "" {
		return m.ModHash
	}
	return fmt.Sprintf("%s (%s)", m.ModName, m.ModHash)
}
