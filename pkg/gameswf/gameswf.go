// Package gameswf patches game containers while keeping every overwritten
// element restorable. Backups live inside the container itself: cloned
// elements at ids in the backup range plus a map of original id to backup
// id stored in the SymbolClass table.
package gameswf

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/goopsie/bmlmod/pkg/logging"
	"github.com/goopsie/bmlmod/pkg/swf"
	"github.com/goopsie/bmlmod/pkg/symbols"
)

// Reserved symbol table keys of a game container.
const (
	KeyModified       uint16 = 0xffff
	KeyBackupElements uint16 = 0xfffe
	KeyBackupScripts  uint16 = 0xfffd
	KeyInstalledMods  uint16 = 0xfffc
)

// Character id ranges.
const (
	ElementsStart uint16 = 0x0000
	ElementsEnd   uint16 = 0x4fff
	ImagesStart   uint16 = 0x5000
	ImagesEnd     uint16 = 0x6fff
	FontsStart    uint16 = 0x7000
	FontsEnd      uint16 = 0x7fff
	BackupStart   uint16 = 0x8000
	BackupEnd     uint16 = swf.ReservedIDStart - 1
)

var (
	ErrNotLoaded       = errors.New("container not loaded")
	ErrBackupRangeFull = errors.New("backup id range exhausted")
	ErrImageRangeFull  = errors.New("image id range exhausted")
	ErrNoScriptEditor  = errors.New("no script editor configured")
	ErrNotInstalled    = errors.New("mod not installed")
	ErrUnsupportedType = errors.New("unsupported element type")
)

// BackupMap maps element type and original id to the backup id.
type BackupMap map[swf.Type]map[uint16]uint16

// Lookup returns the backup id recorded for (t, id).
func (m BackupMap) Lookup(t swf.Type, id uint16) (uint16, bool) {
	b, ok := m[t][id]
	return b, ok
}

// Find returns the backup id recorded for id under any variant of t. A
// shape backed up as DefineShape4 is the same element as DefineShape3 at
// that id.
func (m BackupMap) Find(t swf.Type, id uint16) (uint16, bool) {
	for _, v := range lookupTypes(t) {
		if b, ok := m[v][id]; ok {
			return b, true
		}
	}
	return 0, false
}

func (m BackupMap) set(t swf.Type, id, backup uint16) {
	if m[t] == nil {
		m[t] = make(map[uint16]uint16)
	}
	m[t][id] = backup
}

// max returns the highest backup id in use, or false when empty.
func (m BackupMap) max() (uint16, bool) {
	var hi uint16
	found := false
	for _, ids := range m {
		for _, b := range ids {
			if !found || b > hi {
				hi, found = b, true
			}
		}
	}
	return hi, found
}

// ScriptEditor reads and replaces compiled script sources inside a
// container. Compiling ActionScript is left to the implementation.
type ScriptEditor interface {
	Source(f *swf.File, name string) (string, error)
	Replace(f *swf.File, name, source string) error
}

// State is the lifecycle stage of a GameSwf.
type State int

const (
	Unloaded State = iota
	Loaded
	Dirty
	Saved
	Closed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Dirty:
		return "dirty"
	case Saved:
		return "saved"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a GameSwf.
type Option func(*GameSwf)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(g *GameSwf) {
		g.logger = l
	}
}

// WithScriptEditor enables script backup and injection.
func WithScriptEditor(e ScriptEditor) Option {
	return func(g *GameSwf) {
		g.scripts = e
	}
}

// GameSwf is a game container opened for patching.
type GameSwf struct {
	name    string
	path    string
	logger  hclog.Logger
	scripts ScriptEditor
	state   State

	file  *swf.File
	dir   *swf.Directory
	table *symbols.Table

	BackupElements BackupMap
	BackupScripts  map[string]string
	InstalledMods  []string

	images map[uint16]*swf.Tag
}

// Name normalizes a container name to its file name, "Game" -> "Game.swf".
func Name(name string) string {
	return strings.TrimSuffix(filepath.Base(name), ".swf") + ".swf"
}

// New prepares the container at path. Nothing is read until Load.
func New(name, path string, opts ...Option) *GameSwf {
	g := &GameSwf{
		name: Name(name),
		path: path,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.Component(g.logger, "gameswf", "swf", g.name)
	return g
}

func (g *GameSwf) Name() string              { return g.name }
func (g *GameSwf) Path() string              { return g.path }
func (g *GameSwf) State() State              { return g.state }
func (g *GameSwf) File() *swf.File           { return g.file }
func (g *GameSwf) Directory() *swf.Directory { return g.dir }

// Loaded reports whether the container is in memory.
func (g *GameSwf) Loaded() bool {
	return g.state == Loaded || g.state == Dirty || g.state == Saved
}

// Load reads the container. A container never touched before gets empty
// backup state and the modified flag, and is written back immediately.
func (g *GameSwf) Load() error {
	if g.Loaded() {
		return nil
	}

	f, err := swf.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", g.name, err)
	}
	dir := swf.NewDirectory(f)

	table := symbols.New()
	if st := dir.SymbolTable(); st != nil {
		if table, err = symbols.Decode(st.Data); err != nil {
			return fmt.Errorf("load %s symbols: %w", g.name, err)
		}
	}

	g.file, g.dir, g.table = f, dir, table
	g.BackupElements = make(BackupMap)
	g.BackupScripts = make(map[string]string)
	g.InstalledMods = nil
	g.images = make(map[uint16]*swf.Tag)

	if modified, _ := table.Get(KeyModified).(bool); modified {
		if err := g.decodeState(); err != nil {
			return fmt.Errorf("load %s: %w", g.name, err)
		}
	} else {
		g.logger.Info("initializing backup state")
		if err := g.writeState(true); err != nil {
			return fmt.Errorf("initialize %s: %w", g.name, err)
		}
		if err := g.file.WriteFile(g.path); err != nil {
			return fmt.Errorf("initialize %s: %w", g.name, err)
		}
	}

	for _, t := range dir.Elements() {
		id, _ := t.ID()
		if t.Code.Kind() == swf.KindImage && id >= ImagesStart && id <= ImagesEnd {
			g.images[id] = t
		}
	}

	g.state = Loaded
	g.logger.Debug("loaded", "elements", dir.Len(), "backups", g.backupCount(), "installed", len(g.InstalledMods))
	return nil
}

func (g *GameSwf) decodeState() error {
	if g.table.Has(KeyBackupElements) {
		if err := g.table.Decode(KeyBackupElements, &g.BackupElements); err != nil {
			return fmt.Errorf("backup elements: %w", err)
		}
	}
	if g.table.Has(KeyBackupScripts) {
		if err := g.table.Decode(KeyBackupScripts, &g.BackupScripts); err != nil {
			return fmt.Errorf("backup scripts: %w", err)
		}
	}
	if g.table.Has(KeyInstalledMods) {
		if err := g.table.Decode(KeyInstalledMods, &g.InstalledMods); err != nil {
			return fmt.Errorf("installed mods: %w", err)
		}
	}
	if g.BackupElements == nil {
		g.BackupElements = make(BackupMap)
	}
	if g.BackupScripts == nil {
		g.BackupScripts = make(map[string]string)
	}
	return nil
}

// writeState stores the backup state in the symbol table and the table in
// the container's SymbolClass tag.
func (g *GameSwf) writeState(flag bool) error {
	installed := g.InstalledMods
	if installed == nil {
		installed = []string{}
	}
	entries := []struct {
		key uint16
		v   any
	}{
		{KeyModified, flag},
		{KeyBackupElements, g.BackupElements},
		{KeyBackupScripts, g.BackupScripts},
		{KeyInstalledMods, installed},
	}
	for _, e := range entries {
		var err error
		if g.table.Has(e.key) {
			err = g.table.Set(e.key, e.v)
		} else {
			err = g.table.Add(e.key, e.v)
		}
		if err != nil {
			return err
		}
	}
	body, err := g.table.Encode()
	if err != nil {
		return fmt.Errorf("encode symbols: %w", err)
	}
	g.dir.SetSymbolTable(body)
	return nil
}

func (g *GameSwf) backupCount() int {
	n := 0
	for _, ids := range g.BackupElements {
		n += len(ids)
	}
	return n
}

func (g *GameSwf) touch() {
	g.state = Dirty
}

// lookupTypes returns the types an element of type t may be stored as.
// Sub-variants of shapes, fonts and images are interchangeable.
func lookupTypes(t swf.Type) []swf.Type {
	switch t.Kind() {
	case swf.KindShape:
		return swf.ShapeTypes
	case swf.KindFont:
		return swf.FontTypes
	case swf.KindImage:
		return swf.ImageTypes
	}
	return []swf.Type{t}
}

// companions returns the types backed up and restored together with an
// element of type t under the same id.
func companions(t swf.Type) []swf.Type {
	switch t.Kind() {
	case swf.KindEditText:
		return []swf.Type{swf.CSMTextSettings}
	case swf.KindFont:
		return []swf.Type{swf.DefineFontName, swf.DefineFontAlignZones}
	}
	return nil
}

// Element returns the live element with id among the variants of t.
func (g *GameSwf) Element(t swf.Type, id uint16) *swf.Tag {
	if g.dir == nil {
		return nil
	}
	return g.dir.Get(id, lookupTypes(t)...)
}

func (g *GameSwf) nextBackupID() (uint16, error) {
	next := uint32(BackupStart)
	if hi, ok := g.BackupElements.max(); ok {
		next = uint32(hi) + 1
	}
	for ; next <= uint32(BackupEnd); next++ {
		if g.dir.Get(uint16(next)) == nil {
			return uint16(next), nil
		}
	}
	return 0, ErrBackupRangeFull
}

// BackupElement saves a copy of the element (t, id) before it is
// overwritten. Repeated calls are no-ops. Images and element companions are
// skipped; companions are saved with their owner.
func (g *GameSwf) BackupElement(t swf.Type, id uint16) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	switch t.Kind() {
	case swf.KindImage, swf.KindTextSettings, swf.KindFontName, swf.KindFontAlignZones:
		return nil
	case swf.KindNone, swf.KindSymbolTable, swf.KindScript:
		return fmt.Errorf("backup %s: %w", t, ErrUnsupportedType)
	}

	if _, ok := g.BackupElements.Find(t, id); ok {
		return nil
	}
	live := g.Element(t, id)
	if live == nil {
		g.logger.Debug("nothing to back up", "type", t, "id", id)
		return nil
	}

	backupID, err := g.nextBackupID()
	if err != nil {
		return fmt.Errorf("backup %s#%d: %w", t, id, err)
	}
	if err := g.backup(live, t, id, backupID); err != nil {
		return err
	}
	for _, ct := range companions(t) {
		if c := g.dir.Get(id, ct); c != nil {
			if err := g.backup(c, ct, id, backupID); err != nil {
				return err
			}
		}
	}
	g.logger.Debug("backed up element", "type", t, "id", id, "backup", backupID)
	return nil
}

func (g *GameSwf) backup(live *swf.Tag, t swf.Type, id, backupID uint16) error {
	clone := live.Clone()
	if err := clone.SetID(backupID); err != nil {
		return fmt.Errorf("backup %s#%d: %w", t, id, err)
	}
	if err := g.dir.Add(clone); err != nil {
		return fmt.Errorf("backup %s#%d: %w", t, id, err)
	}
	g.BackupElements.set(t, id, backupID)
	g.touch()
	return nil
}

// RepairElement puts the backed-up original of (t, id) back in place.
// Elements without a backup are left untouched.
func (g *GameSwf) RepairElement(t swf.Type, id uint16) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	switch t.Kind() {
	case swf.KindImage:
		return nil
	case swf.KindNone, swf.KindSymbolTable, swf.KindScript:
		return fmt.Errorf("repair %s: %w", t, ErrUnsupportedType)
	}

	backupID, ok := g.BackupElements.Find(t, id)
	if !ok {
		return nil
	}

	live := g.Element(t, id)
	if live != nil && t.Kind() == swf.KindShape {
		if err := g.dropLinkedImage(live); err != nil {
			return err
		}
	}
	if err := g.restore(live, lookupTypes(t), id, backupID); err != nil {
		return fmt.Errorf("repair %s#%d: %w", t, id, err)
	}

	for _, ct := range companions(t) {
		live := g.dir.Get(id, ct)
		cb, ok := g.BackupElements.Find(ct, id)
		switch {
		case ok:
			if err := g.restore(live, []swf.Type{ct}, id, cb); err != nil {
				return fmt.Errorf("repair %s#%d: %w", ct, id, err)
			}
		case live != nil:
			// the original had none, so the live one came from a mod
			if err := g.dir.Remove(live); err != nil {
				return fmt.Errorf("repair %s#%d: %w", ct, id, err)
			}
		}
	}

	g.touch()
	g.logger.Debug("repaired element", "type", t, "id", id, "backup", backupID)
	return nil
}

func (g *GameSwf) restore(live *swf.Tag, types []swf.Type, id, backupID uint16) error {
	backup := g.dir.Get(backupID, types...)
	if backup == nil {
		return fmt.Errorf("backup %d: %w", backupID, swf.ErrNotPresent)
	}
	orig := backup.Clone()
	if err := orig.SetID(id); err != nil {
		return err
	}
	if live == nil {
		return g.dir.Add(orig)
	}
	return g.dir.Replace(live, orig)
}

// dropLinkedImage removes the image a shape's bitmap fill points at when
// that image was added by a mod.
func (g *GameSwf) dropLinkedImage(shape *swf.Tag) error {
	fs, ok := swf.FirstFillStyle(shape)
	if !ok || !fs.Bitmap() {
		return nil
	}
	img, ok := g.images[fs.BitmapID]
	if !ok {
		return nil
	}
	delete(g.images, fs.BitmapID)
	if err := g.dir.Remove(img); err != nil && !errors.Is(err, swf.ErrNotPresent) {
		return fmt.Errorf("remove image %d: %w", fs.BitmapID, err)
	}
	return nil
}

// PutElement stores t at its id, replacing the live element of the same
// kind or adding it when absent.
func (g *GameSwf) PutElement(t *swf.Tag) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	id, ok := t.ID()
	if !ok {
		return fmt.Errorf("put %s: %w", t, swf.ErrUnidentified)
	}
	var err error
	if live := g.Element(t.Code, id); live != nil {
		err = g.dir.Replace(live, t)
	} else {
		err = g.dir.Add(t)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", t, err)
	}
	g.touch()
	return nil
}

// RemoveElement deletes the live element (t, id) if present.
func (g *GameSwf) RemoveElement(t swf.Type, id uint16) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	live := g.Element(t, id)
	if live == nil {
		return nil
	}
	if err := g.dir.Remove(live); err != nil {
		return err
	}
	g.touch()
	return nil
}

// AllocImageID returns the first free id in the image range.
func (g *GameSwf) AllocImageID() (uint16, error) {
	if !g.Loaded() {
		return 0, ErrNotLoaded
	}
	for n := uint32(ImagesStart); n <= uint32(ImagesEnd); n++ {
		id := uint16(n)
		if _, used := g.images[id]; used {
			continue
		}
		if g.dir.Get(id) != nil {
			continue
		}
		return id, nil
	}
	return 0, ErrImageRangeFull
}

// AddImage adds an image in the image range, in front of before when set.
func (g *GameSwf) AddImage(img, before *swf.Tag) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	id, ok := img.ID()
	if !ok || img.Code.Kind() != swf.KindImage {
		return fmt.Errorf("add image %s: %w", img, ErrUnsupportedType)
	}
	if id < ImagesStart || id > ImagesEnd {
		return fmt.Errorf("add image %s: id outside image range", img)
	}
	var err error
	if before != nil && g.dir.Has(before) {
		err = g.dir.AddBefore(img, before)
	} else {
		err = g.dir.Add(img)
	}
	if err != nil {
		return fmt.Errorf("add image: %w", err)
	}
	g.images[id] = img
	g.touch()
	return nil
}

// Image returns the image at id if it was added in the image range.
func (g *GameSwf) Image(id uint16) *swf.Tag {
	return g.images[id]
}

// BackupScript saves the current source of a script the first time it is
// about to be replaced.
func (g *GameSwf) BackupScript(name string) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	if _, ok := g.BackupScripts[name]; ok {
		return nil
	}
	if g.scripts == nil {
		return fmt.Errorf("backup script %s: %w", name, ErrNoScriptEditor)
	}
	src, err := g.scripts.Source(g.file, name)
	if err != nil {
		return fmt.Errorf("backup script %s: %w", name, err)
	}
	g.BackupScripts[name] = src
	g.touch()
	g.logger.Debug("backed up script", "name", name)
	return nil
}

// ReplaceScript injects source as the script name.
func (g *GameSwf) ReplaceScript(name, source string) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	if g.scripts == nil {
		return fmt.Errorf("replace script %s: %w", name, ErrNoScriptEditor)
	}
	if err := g.scripts.Replace(g.file, name, source); err != nil {
		return fmt.Errorf("replace script %s: %w", name, err)
	}
	g.touch()
	return nil
}

// RepairScript puts the saved source of name back. Scripts that were never
// backed up are left alone.
func (g *GameSwf) RepairScript(name string) error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	src, ok := g.BackupScripts[name]
	if !ok {
		return nil
	}
	return g.ReplaceScript(name, src)
}

// IsInstalled reports whether the mod hash is in the installed list.
func (g *GameSwf) IsInstalled(hash string) bool {
	return slices.Contains(g.InstalledMods, hash)
}

// AddInstalled appends a mod hash to the installed list.
func (g *GameSwf) AddInstalled(hash string) {
	g.InstalledMods = append(g.InstalledMods, hash)
	g.touch()
}

// RemoveInstalled removes the first occurrence of hash.
func (g *GameSwf) RemoveInstalled(hash string) error {
	i := slices.Index(g.InstalledMods, hash)
	if i < 0 {
		return fmt.Errorf("remove %s from %s: %w", hash, g.name, ErrNotInstalled)
	}
	g.InstalledMods = slices.Delete(g.InstalledMods, i, i+1)
	g.touch()
	return nil
}

// Save writes the backup state into the symbol table and the container to
// disk, keeping its original compression.
func (g *GameSwf) Save() error {
	if !g.Loaded() {
		return ErrNotLoaded
	}
	if err := g.writeState(true); err != nil {
		return fmt.Errorf("save %s: %w", g.name, err)
	}
	if err := g.file.WriteFile(g.path); err != nil {
		return fmt.Errorf("save %s: %w", g.name, err)
	}
	g.state = Saved
	g.logger.Debug("saved", "backups", g.backupCount(), "installed", len(g.InstalledMods))
	return nil
}

// Close drops the in-memory container. Unsaved changes are lost.
func (g *GameSwf) Close() {
	if g.state == Dirty {
		g.logger.Warn("closing with unsaved changes")
	}
	g.file, g.dir, g.table = nil, nil, nil
	g.images = nil
	g.state = Closed
}
