package mod

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zip"

	"github.com/goopsie/bmlmod/pkg/archive"
	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/logging"
)

// PackFile is the archive of whole-file replacements in a mod folder.
const PackFile = "pack.zip"

// FilesPack is the set of files one mod replaces.
type FilesPack struct {
	ModHash  string
	PackPath string // empty for ghost packs
	Files    []*File

	env    *config.Environment
	logger hclog.Logger
}

// File is one replaced game file. Path is its location relative to the game
// folder and inside the pack; Hash is the hash of the replacement content.
type File struct {
	Name string
	Path string
	Hash string

	pack *FilesPack
}

// NewFilesPack describes the files of a mod. An empty packPath gives a
// ghost pack whose files can only be repaired.
func NewFilesPack(env *config.Environment, modHash, packPath string, entries []FileEntry) *FilesPack {
	p := &FilesPack{
		ModHash:  modHash,
		PackPath: packPath,
		env:      env,
		logger:   logging.Component(env.Logger, "files", "mod", modHash),
	}
	for _, e := range entries {
		p.Files = append(p.Files, &File{Name: e.Name, Path: e.Path, Hash: e.Hash, pack: p})
	}
	return p
}

// Ghost reports whether the pack has no archive on disk.
func (p *FilesPack) Ghost() bool {
	return p.PackPath == ""
}

// Len returns the number of files.
func (p *FilesPack) Len() int {
	return len(p.Files)
}

// Matches reports whether the packs replace a common file.
func (p *FilesPack) Matches(other *FilesPack) bool {
	if p == nil || other == nil {
		return false
	}
	for _, a := range p.Files {
		for _, b := range other.Files {
			if a.Matches(b) {
				return true
			}
		}
	}
	return false
}

// Matches reports whether both replace the same game file.
func (f *File) Matches(other *File) bool {
	return f.Name == other.Name
}

func (f *File) dumpPath() string {
	return filepath.Join(f.pack.env.DumpsPath(), f.Name+archive.Ext)
}

// target returns where the game keeps the file.
func (f *File) target() (string, error) {
	env := f.pack.env
	if p, ok := env.FilePath(f.Name); ok {
		return p, nil
	}
	if env.GamePath == "" {
		return "", config.ErrNoGamePath
	}
	return "", fmt.Errorf("%w: %s is not in the game folder", ErrFileMissing, f.Name)
}

// Place writes the replacement over the game file. The current content is
// dumped first when no dump exists yet or when the game changed the file
// since it was last placed.
func (f *File) Place() error {
	if f.pack.Ghost() {
		return fmt.Errorf("place %s: %w", f.Name, ErrFileMissing)
	}
	target, err := f.target()
	if err != nil {
		return err
	}
	current, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Name, err)
	}
	hash := archive.Sum(current)

	mods := f.pack.env.Mods
	_, dumped := mods.OriginalFile(f.Name)
	placed, wasPlaced := mods.ModifiedFile(f.Name)
	if !dumped || (wasPlaced && placed != hash) {
		if err := f.Dump(current); err != nil {
			return err
		}
	}
	if err := f.extract(target); err != nil {
		return err
	}
	if err := mods.SetModifiedFile(f.Name, f.Hash); err != nil {
		return err
	}
	f.pack.logger.Debug("placed file", "file", f.Name, "target", target)
	return nil
}

// Dump stores the original content of the game file.
func (f *File) Dump(data []byte) error {
	if err := archive.WriteFile(f.dumpPath(), data); err != nil {
		return fmt.Errorf("dump %s: %w", f.Name, err)
	}
	if err := f.pack.env.Mods.SetOriginalFile(f.Name, archive.Sum(data)); err != nil {
		return err
	}
	f.pack.logger.Debug("dumped original", "file", f.Name)
	return nil
}

// Repair restores the dumped original. A file that was never dumped was
// never replaced and is left alone.
func (f *File) Repair() error {
	mods := f.pack.env.Mods
	original, ok := mods.OriginalFile(f.Name)
	if !ok {
		f.pack.logger.Warn("no dump to restore", "file", f.Name)
		return nil
	}
	target, err := f.target()
	if err != nil {
		return err
	}
	data, err := archive.ReadFile(f.dumpPath())
	if err != nil {
		return fmt.Errorf("read dump of %s: %w", f.Name, err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("restore %s: %w", f.Name, err)
	}
	if err := mods.SetModifiedFile(f.Name, original); err != nil {
		return err
	}
	f.pack.logger.Debug("restored file", "file", f.Name)
	return nil
}

// extract copies the pack entry of f to target.
func (f *File) extract(target string) error {
	if !validEntryPath(f.Path) {
		return fmt.Errorf("extract %s: illegal path %q", f.Name, f.Path)
	}
	zr, err := zip.OpenReader(f.pack.PackPath)
	if err != nil {
		return fmt.Errorf("open pack: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		if zf.Name != f.Path {
			continue
		}
		src, err := zf.Open()
		if err != nil {
			return fmt.Errorf("open %s in pack: %w", f.Path, err)
		}
		defer src.Close()

		dst, err := os.Create(target)
		if err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return fmt.Errorf("extract %s: %w", f.Path, err)
		}
		return dst.Close()
	}
	return fmt.Errorf("%w: %s not in %s", ErrFileMissing, f.Path, PackFile)
}

// validEntryPath rejects absolute paths and parent references.
func validEntryPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || filepath.IsAbs(p) || strings.Contains(p, `\`) {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
