package mod

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/goopsie/bmlmod/pkg/archive"
	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/logging"
	"github.com/goopsie/bmlmod/pkg/modifier"
	"github.com/goopsie/bmlmod/pkg/swf"
)

// ResourceExt is the extension of element resource containers.
const ResourceExt = ".bmlswf"

// ScriptExt is the extension of script sources.
const ScriptExt = ".as"

// elementFolders are the resource category folders of a container folder.
var elementFolders = []string{"shapes", "morphshapes", "sprites", "fonts", "texts", "sounds", "images"}

const scriptsFolder = "scripts"

// BuildEventKind tells what a build step produced.
type BuildEventKind int

const (
	BuiltModifier BuildEventKind = iota
	PackedFile
)

func (k BuildEventKind) String() string {
	switch k {
	case BuiltModifier:
		return "modifier"
	case PackedFile:
		return "file"
	default:
		return "unknown"
	}
}

// BuildEvent reports one finished build step. Name is the container name
// or the packed file's path inside the mod folder.
type BuildEvent struct {
	Kind BuildEventKind
	Name string
}

// Builder turns a mod source folder into a built mod.
type Builder struct {
	Folder string
	Path   string

	env       *config.Environment
	logger    hclog.Logger
	resources map[string]string // container name -> resource folder
	files     map[string]string // path in mod folder -> game file name
}

// NewBuilder scans the mod folder for container folders and replacement
// files.
func NewBuilder(env *config.Environment, folder string) (*Builder, error) {
	b := &Builder{
		Folder:    folder,
		Path:      filepath.Join(env.ModsPath, folder),
		env:       env,
		logger:    logging.Component(env.Logger, "builder", "mod", folder),
		resources: make(map[string]string),
		files:     make(map[string]string),
	}
	entries, err := os.ReadDir(b.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFolderMissing, b.Path)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".swf")
		if env.IsPatchable(name) {
			b.resources[name] = filepath.Join(b.Path, e.Name())
		}
	}

	err = filepath.WalkDir(b.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Dir(path) == b.Path {
			return nil
		}
		if _, ok := env.FilePath(d.Name()); ok {
			rel, err := filepath.Rel(b.Path, path)
			if err != nil {
				return err
			}
			b.files[filepath.ToSlash(rel)] = d.Name()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", b.Path, err)
	}

	if len(b.resources) == 0 && len(b.files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoResourcesFound, folder)
	}
	return b, nil
}

// Resources returns the container names the mod patches.
func (b *Builder) Resources() []string {
	names := make([]string, 0, len(b.resources))
	for name := range b.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the replacement files by path in the mod folder.
func (b *Builder) Files() map[string]string {
	return b.files
}

func (b *Builder) openIndex() (*Index, bool, error) {
	ix, err := OpenIndex(filepath.Join(b.Path, IndexFile))
	if err != nil {
		return nil, false, err
	}
	created, err := ix.Init()
	if err != nil {
		ix.Close()
		return nil, false, err
	}
	return ix, created, nil
}

// newModHash derives a mod identity from the folder and the current time.
func newModHash(folder string) string {
	return archive.Sum([]byte(folder + time.Now().Format(time.RFC3339Nano)))
}

// SetConfiguration writes cfg to the index. The mod hash is assigned when
// the index is first created and kept afterwards; cfg.ModHash is ignored.
func (b *Builder) SetConfiguration(cfg Config) error {
	ix, created, err := b.openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()

	if cfg.ModVersion == "" {
		cfg.ModVersion = DefaultModVersion
	}
	if created {
		cfg.ModHash = newModHash(b.Folder)
		b.logger.Info("assigned mod hash", "hash", cfg.ModHash)
	} else {
		current, err := ix.Configuration()
		if err != nil {
			return err
		}
		cfg.ModHash = current.ModHash
	}
	return ix.SetConfiguration(cfg)
}

// Build writes one modifier payload per container folder, then packs the
// replacement files, and brings the index rows in line with the result.
// emit is called after every step and may be nil.
func (b *Builder) Build(ctx context.Context, emit func(BuildEvent)) error {
	if emit == nil {
		emit = func(BuildEvent) {}
	}
	ix, created, err := b.openIndex()
	if err != nil {
		return err
	}
	defer ix.Close()
	if created {
		cfg := Config{ModName: b.Folder, ModVersion: DefaultModVersion, ModHash: newModHash(b.Folder)}
		if err := ix.SetConfiguration(cfg); err != nil {
			return err
		}
	}

	built := make(map[string]bool)
	for _, name := range b.Resources() {
		if err := ctx.Err(); err != nil {
			return err
		}
		elements, err := b.buildModifier(name, b.resources[name])
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		if err := ix.PutModifier(ModifierEntry{Name: name, Elements: elements}); err != nil {
			return err
		}
		built[name] = true
		emit(BuildEvent{Kind: BuiltModifier, Name: name})
	}
	rows, err := ix.Modifiers()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !built[row.Name] {
			if err := ix.DeleteModifier(row.Name); err != nil {
				return err
			}
		}
	}

	packed, err := b.pack(ctx, emit)
	if err != nil {
		return err
	}
	for _, e := range packed {
		if err := ix.PutFile(e); err != nil {
			return err
		}
	}
	fileRows, err := ix.Files()
	if err != nil {
		return err
	}
	for _, row := range fileRows {
		if _, ok := packed[row.Name]; !ok {
			if err := ix.DeleteFile(row.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildModifier assembles the payload of one container folder.
func (b *Builder) buildModifier(name, dir string) (modifier.Elements, error) {
	c := modifier.NewCreator(b.Path, name, b.logger)

	for _, category := range elementFolders {
		paths, err := listFiles(filepath.Join(dir, category), ResourceExt)
		if err != nil {
			return modifier.Elements{}, err
		}
		for _, path := range paths {
			id, err := resourceID(path)
			if err != nil {
				return modifier.Elements{}, err
			}
			res, err := swf.ReadFile(path)
			if err != nil {
				return modifier.Elements{}, err
			}
			if err := c.AddResource(res.Tags, id); err != nil {
				return modifier.Elements{}, fmt.Errorf("add %s: %w", filepath.Base(path), err)
			}
		}
	}

	scripts, err := listFiles(filepath.Join(dir, scriptsFolder), ScriptExt)
	if err != nil {
		return modifier.Elements{}, err
	}
	for _, path := range scripts {
		source, err := readScript(path)
		if err != nil {
			return modifier.Elements{}, err
		}
		c.AddScript(strings.TrimSuffix(filepath.Base(path), ScriptExt), source)
	}

	if err := c.Save(); err != nil {
		return modifier.Elements{}, err
	}
	return c.Elements(), nil
}

// pack writes pack.zip and returns the packed files by game file name.
func (b *Builder) pack(ctx context.Context, emit func(BuildEvent)) (map[string]FileEntry, error) {
	packed := make(map[string]FileEntry)
	packPath := filepath.Join(b.Path, PackFile)
	if len(b.files) == 0 {
		if err := os.Remove(packPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale pack: %w", err)
		}
		return packed, nil
	}

	out, err := os.Create(packPath)
	if err != nil {
		return nil, fmt.Errorf("create pack: %w", err)
	}
	defer out.Close()
	zw := zip.NewWriter(out)

	paths := make([]string, 0, len(b.files))
	for p := range b.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := b.files[p]
		target, _ := b.env.FilePath(name)
		rel, err := b.env.RelPath(target)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", name, err)
		}
		data, err := os.ReadFile(filepath.Join(b.Path, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		w, err := zw.Create(rel)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", p, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("pack %s: %w", p, err)
		}
		packed[name] = FileEntry{Name: name, Path: rel, Hash: archive.Sum(data)}
		emit(BuildEvent{Kind: PackedFile, Name: p})
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close pack: %w", err)
	}
	return packed, nil
}

// listFiles returns the files with ext in dir, sorted. A missing dir is
// empty.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

// resourceID parses the element id from a resource file name.
func resourceID(path string) (uint16, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id, err := strconv.ParseUint(base, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("resource %s: file name is not an element id", filepath.Base(path))
	}
	if id >= swf.ReservedIDStart {
		return 0, fmt.Errorf("resource %s: %w", filepath.Base(path), swf.ErrReserved)
	}
	return uint16(id), nil
}

// readScript reads a script source, honouring a UTF-8 or UTF-16 byte order
// mark.
func readScript(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return "", fmt.Errorf("decode script %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}
