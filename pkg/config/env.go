// Package config holds the runtime environment of the loader: where the
// game and the mods live, which of the game's files can be patched, and the
// persistent settings and state stores.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// DefaultBaseSwf is the game's main container. Mods never patch it.
const DefaultBaseSwf = "BrawlhallaAir.swf"

// DumpsDir is the folder under the data path holding original file dumps.
const DumpsDir = "files"

// replaceableExts are the whole-file replacement types mods may ship.
var replaceableExts = []string{".mp3", ".png", ".jpg"}

var (
	ErrNoGamePath = errors.New("game path not configured")
	ErrUnknownSwf = errors.New("unknown game container")
)

// Options configures NewEnvironment. Empty fields fall back to the stored
// settings or defaults.
type Options struct {
	GamePath string
	ModsPath string
	DataPath string
	BaseSwf  string
	Logger   hclog.Logger
}

// Environment is built once at startup and handed to every component.
type Environment struct {
	GamePath string
	ModsPath string
	DataPath string
	BaseSwf  string

	// Swfs maps container file names to their paths in the game folder.
	Swfs map[string]string
	// Files maps replaceable file names to their paths in the game folder.
	Files map[string]string

	Core   *CoreConfig
	Mods   *ModsConfig
	Logger hclog.Logger
}

// DefaultDataPath returns the per-user data folder.
func DefaultDataPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "bmlmod"), nil
}

// NewEnvironment loads the settings and stores and scans the game folder.
func NewEnvironment(opts Options) (*Environment, error) {
	env := &Environment{
		GamePath: opts.GamePath,
		ModsPath: opts.ModsPath,
		DataPath: opts.DataPath,
		BaseSwf:  opts.BaseSwf,
		Logger:   opts.Logger,
	}
	if env.Logger == nil {
		env.Logger = hclog.NewNullLogger()
	}
	if env.BaseSwf == "" {
		env.BaseSwf = DefaultBaseSwf
	}
	if env.DataPath == "" {
		p, err := DefaultDataPath()
		if err != nil {
			return nil, err
		}
		env.DataPath = p
	}
	if env.ModsPath == "" {
		env.ModsPath = filepath.Join(env.DataPath, "mods")
	}
	for _, dir := range []string{env.DataPath, env.ModsPath, env.DumpsPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var err error
	if env.Core, err = LoadCore(filepath.Join(env.DataPath, CoreFile)); err != nil {
		return nil, err
	}
	if env.Mods, err = LoadMods(filepath.Join(env.DataPath, ModsFile)); err != nil {
		return nil, err
	}

	if env.GamePath == "" {
		env.GamePath = env.Core.GamePath()
	}
	if err := env.Rescan(); err != nil {
		return nil, err
	}
	return env, nil
}

// Rescan rebuilds the container and file maps from the game folder.
func (e *Environment) Rescan() error {
	e.Swfs, e.Files = map[string]string{}, map[string]string{}
	if e.GamePath == "" {
		e.Logger.Warn("no game path configured")
		return nil
	}
	var err error
	if e.Swfs, err = DiscoverSwfs(e.GamePath); err != nil {
		return err
	}
	if e.Files, err = DiscoverFiles(e.GamePath); err != nil {
		return err
	}
	e.Logger.Debug("scanned game folder", "path", e.GamePath, "swfs", len(e.Swfs), "files", len(e.Files))
	return nil
}

// SwfPath resolves a container name, with or without extension.
func (e *Environment) SwfPath(name string) (string, error) {
	name = strings.TrimSuffix(filepath.Base(name), ".swf") + ".swf"
	if p, ok := e.Swfs[name]; ok {
		return p, nil
	}
	if e.GamePath == "" {
		return "", ErrNoGamePath
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSwf, name)
}

// IsPatchable reports whether mods may target the container name.
func (e *Environment) IsPatchable(name string) bool {
	name = strings.TrimSuffix(name, ".swf") + ".swf"
	_, ok := e.Swfs[name]
	return ok && !strings.EqualFold(name, e.BaseSwf)
}

// FilePath resolves a replaceable file name.
func (e *Environment) FilePath(name string) (string, bool) {
	p, ok := e.Files[name]
	return p, ok
}

// RelPath returns path relative to the game folder with forward slashes,
// the form stored in file packs.
func (e *Environment) RelPath(path string) (string, error) {
	rel, err := filepath.Rel(e.GamePath, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// DumpsPath is the folder holding original file dumps.
func (e *Environment) DumpsPath() string {
	return filepath.Join(e.DataPath, DumpsDir)
}

// DiscoverSwfs finds containers in root and its direct subfolders.
func DiscoverSwfs(root string) (map[string]string, error) {
	swfs := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")
		if d.IsDir() {
			if rel != "." && depth >= 1 {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".swf") {
			swfs[d.Name()] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan containers in %s: %w", root, err)
	}
	return swfs, nil
}

// DiscoverFiles finds replaceable media files anywhere under root.
func DiscoverFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsReplaceable(d.Name()) {
			files[d.Name()] = path
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan files in %s: %w", root, err)
	}
	return files, nil
}

// IsReplaceable reports whether a file type can be shipped in a file pack.
func IsReplaceable(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range replaceableExts {
		if ext == e {
			return true
		}
	}
	return false
}
