// Package processor installs and uninstalls batches of mods. Mods are
// queued first, which reports conflicts, and then applied one game
// container at a time followed by the whole-file replacements.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/gameswf"
	"github.com/goopsie/bmlmod/pkg/logging"
	"github.com/goopsie/bmlmod/pkg/mod"
	"github.com/goopsie/bmlmod/pkg/modifier"
	"github.com/goopsie/bmlmod/pkg/swf"
)

// Catalog knows which mods are installed. *mod.Finder implements it.
type Catalog interface {
	Installed() []*mod.Mod
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithScriptEditor enables script injection in game containers.
func WithScriptEditor(e gameswf.ScriptEditor) Option {
	return func(p *Processor) {
		p.editor = e
	}
}

// Processor queues and applies mod installs and uninstalls.
type Processor struct {
	env     *config.Environment
	catalog Catalog
	logger  hclog.Logger
	editor  gameswf.ScriptEditor

	modifiersToInstall   map[string][]*modifier.Modifier
	modifiersToUninstall map[string][]*modifier.Modifier
	filesToInstall       []*mod.FilesPack
	filesToUninstall     []*mod.FilesPack

	installing   []*mod.Mod
	uninstalling []*mod.Mod
	conflicts    map[*mod.Mod][]*mod.Mod
}

// New creates an idle processor.
func New(env *config.Environment, catalog Catalog, opts ...Option) *Processor {
	p := &Processor{
		env:     env,
		catalog: catalog,
		logger:  env.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Component(p.logger, "processor")
	p.reset()
	return p
}

func (p *Processor) reset() {
	p.modifiersToInstall = make(map[string][]*modifier.Modifier)
	p.modifiersToUninstall = make(map[string][]*modifier.Modifier)
	p.filesToInstall = nil
	p.filesToUninstall = nil
	p.installing = nil
	p.uninstalling = nil
	p.conflicts = make(map[*mod.Mod][]*mod.Mod)
}

// Conflicts returns, for each queued mod, the queued or installed mods it
// overlaps with. Conflicts are recorded against what was queued before the
// mod and what is installed; they do not stop Run.
func (p *Processor) Conflicts() map[*mod.Mod][]*mod.Mod {
	out := make(map[*mod.Mod][]*mod.Mod, len(p.conflicts))
	for m, others := range p.conflicts {
		out[m] = slices.Clone(others)
	}
	return out
}

func (p *Processor) addConflict(m, other *mod.Mod) {
	if other == nil || other == m || slices.Contains(p.conflicts[m], other) {
		return
	}
	p.conflicts[m] = append(p.conflicts[m], other)
	p.logger.Info("conflict", "mod", m, "with", other)
}

// dropConflictsWith forgets conflicts other mods have with the mod hash.
func (p *Processor) dropConflictsWith(hash string) {
	for m, others := range p.conflicts {
		others = dropMod(others, hash)
		if len(others) == 0 {
			delete(p.conflicts, m)
			continue
		}
		p.conflicts[m] = others
	}
}

func (p *Processor) queuedMod(hash string) *mod.Mod {
	for _, m := range p.installing {
		if m.ModHash == hash {
			return m
		}
	}
	return nil
}

func sameMod(hash string) func(*modifier.Modifier) bool {
	return func(mf *modifier.Modifier) bool { return mf.ModHash == hash }
}

func samePack(hash string) func(*mod.FilesPack) bool {
	return func(fp *mod.FilesPack) bool { return fp.ModHash == hash }
}

func dropMod(mods []*mod.Mod, hash string) []*mod.Mod {
	return slices.DeleteFunc(mods, func(m *mod.Mod) bool { return m.ModHash == hash })
}

// AddModsToInstall queues mods for installation. Ghost mods are skipped.
// A pending uninstall of the same mod is cancelled.
func (p *Processor) AddModsToInstall(mods ...*mod.Mod) {
	installed := p.catalog.Installed()
	for _, m := range mods {
		if m.Ghost() {
			p.logger.Warn("cannot install ghost mod", "mod", m)
			continue
		}
		hash := m.ModHash
		p.uninstalling = dropMod(p.uninstalling, hash)
		if p.queuedMod(hash) == nil {
			p.installing = append(p.installing, m)
		}

		for _, mf := range m.Modifiers {
			name := mf.SwfName
			p.modifiersToUninstall[name] = slices.DeleteFunc(p.modifiersToUninstall[name], sameMod(hash))
			if slices.ContainsFunc(p.modifiersToInstall[name], sameMod(hash)) {
				continue
			}
			for _, other := range p.modifiersToInstall[name] {
				if mf.Matches(other) {
					p.addConflict(m, p.queuedMod(other.ModHash))
				}
			}
			for _, im := range installed {
				if im.ModHash == hash {
					continue
				}
				if other := im.Modifier(name); other != nil && mf.Matches(other) {
					p.addConflict(m, im)
				}
			}
			p.modifiersToInstall[name] = append(p.modifiersToInstall[name], mf)
		}

		if m.Files == nil {
			continue
		}
		p.filesToUninstall = slices.DeleteFunc(p.filesToUninstall, samePack(hash))
		if slices.ContainsFunc(p.filesToInstall, samePack(hash)) {
			continue
		}
		for _, other := range p.filesToInstall {
			if m.Files.Matches(other) {
				p.addConflict(m, p.queuedMod(other.ModHash))
			}
		}
		for _, im := range installed {
			if im.ModHash != hash && m.Files.Matches(im.Files) {
				p.addConflict(m, im)
			}
		}
		p.filesToInstall = append(p.filesToInstall, m.Files)
	}
}

// AddModsToUninstall queues mods for removal, ghosts included. A pending
// install of the same mod is cancelled. Conflicts recorded by or against
// the mod are dropped.
func (p *Processor) AddModsToUninstall(mods ...*mod.Mod) {
	for _, m := range mods {
		hash := m.ModHash
		if queued := p.queuedMod(hash); queued != nil {
			delete(p.conflicts, queued)
		}
		p.dropConflictsWith(hash)
		p.installing = dropMod(p.installing, hash)
		if !slices.ContainsFunc(p.uninstalling, func(u *mod.Mod) bool { return u.ModHash == hash }) {
			p.uninstalling = append(p.uninstalling, m)
		}

		for _, mf := range m.Modifiers {
			name := mf.SwfName
			p.modifiersToInstall[name] = slices.DeleteFunc(p.modifiersToInstall[name], sameMod(hash))
			if !slices.ContainsFunc(p.modifiersToUninstall[name], sameMod(hash)) {
				p.modifiersToUninstall[name] = append(p.modifiersToUninstall[name], mf)
			}
		}
		if m.Files != nil {
			p.filesToInstall = slices.DeleteFunc(p.filesToInstall, samePack(hash))
			if !slices.ContainsFunc(p.filesToUninstall, samePack(hash)) {
				p.filesToUninstall = append(p.filesToUninstall, m.Files)
			}
		}
	}
}

// Steps returns the number of Done events the next Run emits.
func (p *Processor) Steps() int {
	n := 0
	for _, mfs := range p.modifiersToInstall {
		n += len(mfs)
	}
	for _, mfs := range p.modifiersToUninstall {
		n += len(mfs)
	}
	for _, fp := range p.filesToInstall {
		n += fp.Len()
	}
	for _, fp := range p.filesToUninstall {
		n += fp.Len()
	}
	return n
}

// swfNames returns the containers touched by the queues, sorted.
func (p *Processor) swfNames() []string {
	var names []string
	for _, queue := range []map[string][]*modifier.Modifier{p.modifiersToInstall, p.modifiersToUninstall} {
		for name, mfs := range queue {
			if len(mfs) > 0 && !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Run applies the queues. Every container is opened once: queued
// uninstalls run first, then modifiers are installed, each followed by a
// Done event, and the container is saved. A modifier that is still
// installed is torn down right before it is installed again, as part of
// the same step. File packs are uninstalled and
// then installed. Finally the installed set is updated and the queues are
// cleared. emit may be nil. ctx is checked between containers and files;
// there is no rollback of finished containers.
func (p *Processor) Run(ctx context.Context, emit func(Event)) error {
	if emit == nil {
		emit = func(Event) {}
	}

	for _, name := range p.swfNames() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processSwf(name, emit); err != nil {
			return err
		}
	}

	for _, fp := range p.filesToUninstall {
		for _, f := range fp.Files {
			if err := ctx.Err(); err != nil {
				return err
			}
			emit(Event{Kind: UninstalledFile, Name: f.Name, ModHash: fp.ModHash})
			if err := f.Repair(); err != nil {
				return fmt.Errorf("uninstall %s: %w", f.Name, err)
			}
			emit(Event{Kind: Done, Name: f.Name, ModHash: fp.ModHash})
		}
	}
	for _, fp := range p.filesToInstall {
		for _, f := range fp.Files {
			if err := ctx.Err(); err != nil {
				return err
			}
			emit(Event{Kind: InstalledFile, Name: f.Name, ModHash: fp.ModHash})
			if err := f.Place(); err != nil {
				return fmt.Errorf("install %s: %w", f.Name, err)
			}
			emit(Event{Kind: Done, Name: f.Name, ModHash: fp.ModHash})
		}
	}

	if err := p.commit(); err != nil {
		return err
	}
	p.reset()
	return nil
}

// Process runs the queues and returns the emitted events.
func (p *Processor) Process(ctx context.Context) ([]Event, error) {
	var events []Event
	err := p.Run(ctx, func(e Event) { events = append(events, e) })
	return events, err
}

func (p *Processor) processSwf(name string, emit func(Event)) error {
	path, err := p.env.SwfPath(name)
	if err != nil {
		return err
	}
	emit(Event{Kind: OpenSwf, Name: name})

	g := gameswf.New(name, path, gameswf.WithLogger(p.logger), gameswf.WithScriptEditor(p.editor))
	if err := g.Load(); err != nil {
		return err
	}
	defer g.Close()

	for _, mf := range p.modifiersToUninstall[name] {
		if g.IsInstalled(mf.ModHash) {
			emit(Event{Kind: UninstalledModifier, Name: name, ModHash: mf.ModHash})
			if err := p.uninstallModifier(g, mf); err != nil {
				return err
			}
		} else {
			p.logger.Debug("modifier not installed", "swf", name, "mod", mf.ModHash)
		}
		emit(Event{Kind: Done, Name: name, ModHash: mf.ModHash})
	}

	for _, mf := range p.modifiersToInstall[name] {
		// a reinstall starts from the originals
		if g.IsInstalled(mf.ModHash) {
			emit(Event{Kind: UninstalledModifier, Name: name, ModHash: mf.ModHash})
			if err := p.uninstallModifier(g, mf); err != nil {
				return err
			}
		}
		emit(Event{Kind: InstalledModifier, Name: name, ModHash: mf.ModHash})
		if err := p.installModifier(g, mf); err != nil {
			return err
		}
		emit(Event{Kind: Done, Name: name, ModHash: mf.ModHash})
	}

	return g.Save()
}

// installModifier backs up every element mf declares and then writes the
// payload's elements into the container.
func (p *Processor) installModifier(g *gameswf.GameSwf, mf *modifier.Modifier) error {
	if err := mf.Load(); err != nil {
		return err
	}
	defer mf.Close()

	for _, t := range mf.Elements.Types() {
		for _, id := range mf.Elements.IDs[t] {
			if err := g.BackupElement(t, id); err != nil {
				return fmt.Errorf("install %s: %w", mf, err)
			}
		}
	}

	payload := mf.Directory()
	for _, el := range payload.Elements() {
		id, _ := el.ID()
		clone := el.Clone()
		switch el.Code.Kind() {
		case swf.KindImage:
			// added through the shapes that use them
			continue
		case swf.KindShape:
			if err := p.linkImage(g, mf, clone, id); err != nil {
				return fmt.Errorf("install %s: %w", mf, err)
			}
		case swf.KindFont:
			if payload.Get(id, swf.DefineFontAlignZones) == nil {
				if err := g.RemoveElement(swf.DefineFontAlignZones, id); err != nil {
					return fmt.Errorf("install %s: %w", mf, err)
				}
			}
		case swf.KindSprite, swf.KindSound, swf.KindEditText, swf.KindTextSettings,
			swf.KindFontName, swf.KindFontAlignZones:
		default:
			p.logger.Debug("skipping payload element", "element", el)
			continue
		}
		if err := g.PutElement(clone); err != nil {
			return fmt.Errorf("install %s: %w", mf, err)
		}
	}

	if err := p.installScripts(g, mf); err != nil {
		return fmt.Errorf("install %s: %w", mf, err)
	}
	g.AddInstalled(mf.ModHash)
	return nil
}

// linkImage copies the payload image a shape fills with into the image range
// of the container and points the shape at the copy. Fills that reference
// no payload image are left alone.
func (p *Processor) linkImage(g *gameswf.GameSwf, mf *modifier.Modifier, shape *swf.Tag, id uint16) error {
	imageID, ok := mf.RepeatingBitmaps[id]
	if !ok {
		fs, ok := swf.FirstFillStyle(shape)
		if !ok || !fs.Bitmap() {
			return nil
		}
		imageID = fs.BitmapID
	}
	img := mf.Directory().Get(imageID, swf.ImageTypes...)
	if img == nil {
		return nil
	}

	newID, err := g.AllocImageID()
	if err != nil {
		return err
	}
	clone := img.Clone()
	if err := clone.SetID(newID); err != nil {
		return err
	}
	if err := g.AddImage(clone, g.Element(shape.Code, id)); err != nil {
		return err
	}
	p.logger.Trace("linked image", "shape", id, "image", newID)
	return swf.SetFirstFillBitmap(shape, newID)
}

func (p *Processor) installScripts(g *gameswf.GameSwf, mf *modifier.Modifier) error {
	for _, name := range mf.Elements.Scripts {
		source, ok := mf.Scripts[name]
		if !ok {
			p.logger.Warn("declared script missing from payload", "script", name, "mod", mf.ModHash)
			continue
		}
		if err := g.BackupScript(name); err != nil {
			if errors.Is(err, gameswf.ErrNoScriptEditor) {
				p.logger.Warn("no script editor, skipping scripts", "swf", g.Name(), "mod", mf.ModHash)
				return nil
			}
			return err
		}
		if err := g.ReplaceScript(name, source); err != nil {
			return err
		}
	}
	return nil
}

// uninstallModifier restores every element mf declares. The payload is not
// needed, so ghost modifiers can be uninstalled.
func (p *Processor) uninstallModifier(g *gameswf.GameSwf, mf *modifier.Modifier) error {
	for _, t := range mf.Elements.Types() {
		for _, id := range mf.Elements.IDs[t] {
			if err := g.RepairElement(t, id); err != nil {
				return fmt.Errorf("uninstall %s: %w", mf, err)
			}
		}
	}
	for _, name := range mf.Elements.Scripts {
		if err := g.RepairScript(name); err != nil {
			if errors.Is(err, gameswf.ErrNoScriptEditor) {
				p.logger.Warn("no script editor, leaving script", "script", name, "mod", mf.ModHash)
				continue
			}
			return fmt.Errorf("uninstall %s: %w", mf, err)
		}
	}
	return g.RemoveInstalled(mf.ModHash)
}

// commit updates the installed set and the cached descriptions.
func (p *Processor) commit() error {
	store := p.env.Mods
	var installed []string
	for _, h := range store.InstalledMods() {
		if !slices.ContainsFunc(p.uninstalling, func(m *mod.Mod) bool { return m.ModHash == h }) {
			installed = append(installed, h)
		}
	}
	for _, m := range p.installing {
		if !slices.Contains(installed, m.ModHash) {
			installed = append(installed, m.ModHash)
		}
		data, err := json.Marshal(m.Export())
		if err != nil {
			return fmt.Errorf("describe %s: %w", m, err)
		}
		if err := store.SetJsonMod(m.ModHash, data); err != nil {
			return err
		}
	}
	for _, m := range p.uninstalling {
		if m.Ghost() {
			if err := store.DeleteJsonMod(m.ModHash); err != nil {
				return err
			}
		}
	}
	return store.SetInstalledMods(installed)
}
