package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/ini.v1"
)

// CoreFile is the file name of the core settings.
const CoreFile = "core.cfg"

const (
	sectionGame     = "game"
	keyPath         = "path"
	keyVersion      = "version"
	keyBaseHash     = "base_hash"
	keyAllowedPaths = "allowed_paths"
	keyIgnoredPaths = "ignored_paths"
)

// CoreConfig holds the loader's own settings: the game install location,
// the cached game version and extra install paths to allow or ignore.
type CoreConfig struct {
	path string
	file *ini.File
}

// LoadCore reads the settings at path. A missing file yields empty settings.
func LoadCore(path string) (*CoreConfig, error) {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &CoreConfig{path: path, file: f}, nil
}

func (c *CoreConfig) key(name string) *ini.Key {
	return c.file.Section(sectionGame).Key(name)
}

// Save writes the settings back to disk.
func (c *CoreConfig) Save() error {
	if err := c.file.SaveTo(c.path); err != nil {
		return fmt.Errorf("save %s: %w", c.path, err)
	}
	return nil
}

// GamePath returns the configured game folder.
func (c *CoreConfig) GamePath() string {
	return c.key(keyPath).String()
}

// SetGamePath stores the game folder.
func (c *CoreConfig) SetGamePath(path string) {
	c.key(keyPath).SetValue(path)
}

// GameVersion returns the cached version when the base container still has
// the hash it had when the version was recorded.
func (c *CoreConfig) GameVersion(baseHash string) (string, bool) {
	if baseHash == "" || c.key(keyBaseHash).String() != baseHash {
		return "", false
	}
	v := c.key(keyVersion).String()
	return v, v != ""
}

// SetGameVersion caches version for the base container with baseHash.
func (c *CoreConfig) SetGameVersion(version, baseHash string) {
	c.key(keyVersion).SetValue(version)
	c.key(keyBaseHash).SetValue(baseHash)
}

// AllowedPaths lists extra game folders to consider.
func (c *CoreConfig) AllowedPaths() []string {
	return c.key(keyAllowedPaths).Strings(",")
}

// IgnoredPaths lists game folders to skip.
func (c *CoreConfig) IgnoredPaths() []string {
	return c.key(keyIgnoredPaths).Strings(",")
}

func (c *CoreConfig) AddAllowedPath(path string)    { c.addPath(keyAllowedPaths, path) }
func (c *CoreConfig) RemoveAllowedPath(path string) { c.removePath(keyAllowedPaths, path) }
func (c *CoreConfig) AddIgnoredPath(path string)    { c.addPath(keyIgnoredPaths, path) }
func (c *CoreConfig) RemoveIgnoredPath(path string) { c.removePath(keyIgnoredPaths, path) }

// cleanGamePath drops a trailing executable name and separator.
func cleanGamePath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".exe") {
		if i := strings.LastIndexAny(path, `/\`); i >= 0 {
			path = path[:i]
		}
	}
	return strings.TrimRight(path, `/\`)
}

func (c *CoreConfig) addPath(key, path string) {
	path = cleanGamePath(path)
	paths := c.key(key).Strings(",")
	if slices.Contains(paths, path) {
		return
	}
	c.key(key).SetValue(strings.Join(append(paths, path), ","))
}

func (c *CoreConfig) removePath(key, path string) {
	paths := slices.DeleteFunc(c.key(key).Strings(","), func(p string) bool { return p == path })
	c.key(key).SetValue(strings.Join(paths, ","))
}
