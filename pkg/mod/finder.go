package mod

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/logging"
)

// Finder lists the mods known to the loader: built mod folders plus ghosts
// of installed mods whose folder is gone.
type Finder struct {
	env    *config.Environment
	logger hclog.Logger
	mods   []*Mod
	byHash map[string]*Mod
}

// NewFinder creates a finder and runs a first scan.
func NewFinder(env *config.Environment) (*Finder, error) {
	f := &Finder{
		env:    env,
		logger: logging.Component(env.Logger, "finder"),
	}
	if err := f.Refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

// Refresh rescans the mods folder. Unbuilt folders are skipped; broken ones
// are logged and skipped. Descriptions of new mods are cached.
func (f *Finder) Refresh() error {
	f.mods = nil
	f.byHash = make(map[string]*Mod)

	entries, err := os.ReadDir(f.env.ModsPath)
	if err != nil {
		return fmt.Errorf("list mods: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := Open(f.env, e.Name())
		if errors.Is(err, ErrNotBuilt) {
			continue
		}
		if err != nil {
			f.logger.Warn("skipping mod", "folder", e.Name(), "error", err)
			continue
		}
		if other, ok := f.byHash[m.ModHash]; ok {
			f.logger.Warn("duplicate mod hash", "folder", e.Name(), "other", other.Folder, "hash", m.ModHash)
			continue
		}
		f.add(m)
		if _, ok := f.env.Mods.JsonMod(m.ModHash); !ok {
			if err := f.Cache(m); err != nil {
				return err
			}
		}
	}

	cached := f.env.Mods.JsonMods()
	hashes := make([]string, 0, len(cached))
	for h := range cached {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		if _, ok := f.byHash[h]; ok {
			continue
		}
		desc, err := ParseDescription(cached[h])
		if err != nil {
			f.logger.Warn("skipping cached mod", "hash", h, "error", err)
			continue
		}
		f.add(FromDescription(f.env, desc))
	}
	f.logger.Debug("found mods", "count", len(f.mods))
	return nil
}

func (f *Finder) add(m *Mod) {
	f.mods = append(f.mods, m)
	f.byHash[m.ModHash] = m
}

// Cache stores the description of m in the config store.
func (f *Finder) Cache(m *Mod) error {
	data, err := json.Marshal(m.Export())
	if err != nil {
		return fmt.Errorf("describe %s: %w", m, err)
	}
	return f.env.Mods.SetJsonMod(m.ModHash, data)
}

// Mods returns every known mod, folders first.
func (f *Finder) Mods() []*Mod {
	return slices.Clone(f.mods)
}

// ByHash returns the mod with the given hash, or nil.
func (f *Finder) ByHash(hash string) *Mod {
	return f.byHash[hash]
}

// IsInstalled reports whether m is in the installed set.
func (f *Finder) IsInstalled(m *Mod) bool {
	return slices.Contains(f.env.Mods.InstalledMods(), m.ModHash)
}

// Installed returns the installed mods that are known.
func (f *Finder) Installed() []*Mod {
	var mods []*Mod
	for _, h := range f.env.Mods.InstalledMods() {
		if m, ok := f.byHash[h]; ok {
			mods = append(mods, m)
		} else {
			f.logger.Warn("installed mod is unknown", "hash", h)
		}
	}
	return mods
}
