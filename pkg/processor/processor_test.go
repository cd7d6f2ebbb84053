package processor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/goopsie/bmlmod/pkg/config"
	"github.com/goopsie/bmlmod/pkg/gameswf"
	"github.com/goopsie/bmlmod/pkg/mod"
	"github.com/goopsie/bmlmod/pkg/swf"
)

func body(id uint16, payload ...byte) []byte {
	return append(binary.LittleEndian.AppendUint16(nil, id), payload...)
}

func shape(id uint16, fill byte, ref uint16) *swf.Tag {
	b := body(id, 0x00, 0x01, fill)
	b = binary.LittleEndian.AppendUint16(b, ref)
	return swf.NewTag(swf.DefineShape3, append(b, 0x00))
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func container(t *testing.T, tags ...*swf.Tag) []byte {
	t.Helper()
	f := swf.New()
	f.Tags = append(tags, swf.NewTag(swf.ShowFrame, nil))
	data, err := f.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

// gameTags are the elements of the test Game.swf: a shape, a sprite, an
// edit text with its settings and a font with its name and align zones.
func gameTags() []*swf.Tag {
	return []*swf.Tag{
		shape(100, 0x00, 0x1111),
		swf.NewTag(swf.DefineSprite, body(200, 1, 2, 3)),
		swf.NewTag(swf.DefineEditText, body(300, 'h', 'i')),
		swf.NewTag(swf.CSMTextSettings, body(300, 0x10)),
		swf.NewTag(swf.DefineFont3, body(400, 'f')),
		swf.NewTag(swf.DefineFontName, body(400, 'A', 0)),
		swf.NewTag(swf.DefineFontAlignZones, body(400, 1)),
	}
}

// newEnv lays out a game folder holding Game.swf and one replaceable sound.
func newEnv(t *testing.T) *config.Environment {
	t.Helper()
	root := t.TempDir()
	game := filepath.Join(root, "game")
	writeFile(t, filepath.Join(game, "Game.swf"), container(t, gameTags()...))
	writeFile(t, filepath.Join(game, "BrawlhallaAir.swf"), container(t))
	writeFile(t, filepath.Join(game, "sfx", "victory.mp3"), []byte("original"))

	env, err := config.NewEnvironment(config.Options{
		GamePath: game,
		DataPath: filepath.Join(root, "data"),
	})
	if err != nil {
		t.Fatalf("NewEnvironment: %v", err)
	}
	return env
}

// buildMod writes files (relative to the mod folder) and builds the mod.
func buildMod(t *testing.T, env *config.Environment, folder string, files map[string][]byte) *mod.Mod {
	t.Helper()
	for rel, data := range files {
		writeFile(t, filepath.Join(env.ModsPath, folder, filepath.FromSlash(rel)), data)
	}
	b, err := mod.NewBuilder(env, folder)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if err := b.SetConfiguration(mod.Config{ModName: folder}); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}
	if err := b.Build(context.Background(), nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	m, err := mod.Open(env, folder)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func shapeMod(t *testing.T, env *config.Environment, folder string, ref uint16) *mod.Mod {
	t.Helper()
	return buildMod(t, env, folder, map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, shape(1, 0x00, ref)),
	})
}

func soundMod(t *testing.T, env *config.Environment, folder, content string) *mod.Mod {
	t.Helper()
	return buildMod(t, env, folder, map[string][]byte{
		"sfx/victory.mp3": []byte(content),
	})
}

func newProcessor(t *testing.T, env *config.Environment, opts ...Option) *Processor {
	t.Helper()
	finder, err := mod.NewFinder(env)
	if err != nil {
		t.Fatalf("NewFinder: %v", err)
	}
	return New(env, finder, opts...)
}

func run(t *testing.T, p *Processor) []Event {
	t.Helper()
	events, err := p.Process(context.Background())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return events
}

func openGame(t *testing.T, env *config.Environment) *gameswf.GameSwf {
	t.Helper()
	path, err := env.SwfPath("Game")
	if err != nil {
		t.Fatal(err)
	}
	g := gameswf.New("Game", path)
	if err := g.Load(); err != nil {
		t.Fatalf("load game: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func shapeData(t *testing.T, g *gameswf.GameSwf) []byte {
	t.Helper()
	el := g.Element(swf.DefineShape3, 100)
	if el == nil {
		t.Fatal("shape 100 missing")
	}
	return el.Data
}

func TestInstallUninstall(t *testing.T) {
	env := newEnv(t)
	m := shapeMod(t, env, "M", 0x2222)
	original := shape(100, 0x00, 0x1111).Data
	replaced := shape(100, 0x00, 0x2222).Data

	p := newProcessor(t, env)
	p.AddModsToInstall(m)
	if got := p.Steps(); got != 1 {
		t.Errorf("steps: got %d, want 1", got)
	}
	events := run(t, p)
	want := []Event{
		{Kind: OpenSwf, Name: "Game"},
		{Kind: InstalledModifier, Name: "Game", ModHash: m.ModHash},
		{Kind: Done, Name: "Game", ModHash: m.ModHash},
	}
	if !slices.Equal(events, want) {
		t.Errorf("events: got %v, want %v", events, want)
	}

	g := openGame(t, env)
	if id, ok := g.BackupElements.Lookup(swf.DefineShape3, 100); !ok || id != gameswf.BackupStart {
		t.Errorf("backup: got %#x %v, want %#x", id, ok, gameswf.BackupStart)
	}
	if !bytes.Equal(shapeData(t, g), replaced) {
		t.Errorf("shape not replaced: %x", shapeData(t, g))
	}
	if !g.IsInstalled(m.ModHash) {
		t.Error("container should list the mod as installed")
	}
	if !slices.Contains(env.Mods.InstalledMods(), m.ModHash) {
		t.Error("installed set should contain the mod")
	}
	if _, ok := env.Mods.JsonMod(m.ModHash); !ok {
		t.Error("installed mod description should be cached")
	}
	g.Close()

	p = newProcessor(t, env)
	p.AddModsToUninstall(m)
	events = run(t, p)
	want = []Event{
		{Kind: OpenSwf, Name: "Game"},
		{Kind: UninstalledModifier, Name: "Game", ModHash: m.ModHash},
		{Kind: Done, Name: "Game", ModHash: m.ModHash},
	}
	if !slices.Equal(events, want) {
		t.Errorf("events: got %v, want %v", events, want)
	}

	g = openGame(t, env)
	if !bytes.Equal(shapeData(t, g), original) {
		t.Errorf("shape not restored: %x", shapeData(t, g))
	}
	if g.IsInstalled(m.ModHash) {
		t.Error("container should no longer list the mod")
	}
	if _, ok := g.BackupElements.Lookup(swf.DefineShape3, 100); !ok {
		t.Error("backup map entry should remain after uninstall")
	}
	if slices.Contains(env.Mods.InstalledMods(), m.ModHash) {
		t.Error("installed set should not contain the mod")
	}
}

func TestReinstall(t *testing.T) {
	env := newEnv(t)
	m := shapeMod(t, env, "M", 0x2222)

	install := func() {
		p := newProcessor(t, env)
		p.AddModsToInstall(m)
		run(t, p)
	}
	snapshot := func() ([]byte, []string, int) {
		g := openGame(t, env)
		defer g.Close()
		return bytes.Clone(shapeData(t, g)), slices.Clone(g.InstalledMods), g.Directory().Len()
	}

	install()
	shape1, mods1, n1 := snapshot()

	p := newProcessor(t, env)
	p.AddModsToUninstall(m)
	run(t, p)
	install()
	shape2, mods2, n2 := snapshot()

	if !bytes.Equal(shape1, shape2) || !slices.Equal(mods1, mods2) || n1 != n2 {
		t.Errorf("reinstall differs: %x %v %d, want %x %v %d", shape2, mods2, n2, shape1, mods1, n1)
	}

	t.Run("InstallTwice", func(t *testing.T) {
		p := newProcessor(t, env)
		p.AddModsToInstall(m)
		events := run(t, p)
		kinds := make([]EventKind, len(events))
		for i, e := range events {
			kinds[i] = e.Kind
		}
		want := []EventKind{OpenSwf, UninstalledModifier, InstalledModifier, Done}
		if !slices.Equal(kinds, want) {
			t.Errorf("events: got %v, want %v", kinds, want)
		}
		shape3, mods3, n3 := snapshot()
		if !bytes.Equal(shape1, shape3) || !slices.Equal(mods1, mods3) || n1 != n3 {
			t.Errorf("reinstall differs: %x %v %d", shape3, mods3, n3)
		}
	})
}

func TestConflicts(t *testing.T) {
	t.Run("Elements", func(t *testing.T) {
		env := newEnv(t)
		a := shapeMod(t, env, "A", 0x2222)
		b := shapeMod(t, env, "B", 0x3333)
		p := newProcessor(t, env)
		p.AddModsToInstall(a, b)

		conflicts := p.Conflicts()
		if got := conflicts[b]; len(got) != 1 || got[0] != a {
			t.Errorf("B conflicts: got %v, want [A]", got)
		}
		if got := conflicts[a]; len(got) != 0 {
			t.Errorf("A conflicts: got %v, want none", got)
		}
		if p.Steps() != 2 {
			t.Errorf("both mods should stay queued, steps %d", p.Steps())
		}
	})

	t.Run("Files", func(t *testing.T) {
		env := newEnv(t)
		a := soundMod(t, env, "A", "a")
		b := soundMod(t, env, "B", "b")
		p := newProcessor(t, env)
		p.AddModsToInstall(a, b)

		if got := p.Conflicts()[b]; len(got) != 1 || got[0] != a {
			t.Errorf("B conflicts: got %v, want [A]", got)
		}
		if p.Steps() != 2 {
			t.Errorf("both packs should stay queued, steps %d", p.Steps())
		}
	})

	t.Run("Installed", func(t *testing.T) {
		env := newEnv(t)
		a := shapeMod(t, env, "A", 0x2222)
		b := shapeMod(t, env, "B", 0x3333)
		p := newProcessor(t, env)
		p.AddModsToInstall(a)
		run(t, p)

		p = newProcessor(t, env)
		p.AddModsToInstall(b)
		got := p.Conflicts()[b]
		if len(got) != 1 || got[0].ModHash != a.ModHash {
			t.Errorf("B conflicts: got %v, want the installed A", got)
		}
		if len(p.Conflicts()) != 1 {
			t.Errorf("conflicts: got %v", p.Conflicts())
		}
	})

	t.Run("UninstallDropsConflicts", func(t *testing.T) {
		env := newEnv(t)
		a := shapeMod(t, env, "A", 0x2222)
		b := shapeMod(t, env, "B", 0x3333)
		p := newProcessor(t, env)
		p.AddModsToInstall(a, b)
		p.AddModsToUninstall(a)
		if len(p.Conflicts()) != 0 {
			t.Errorf("B should no longer conflict with the cancelled A, got %v", p.Conflicts())
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		env := newEnv(t)
		a := shapeMod(t, env, "A", 0x2222)
		b := shapeMod(t, env, "B", 0x3333)
		p := newProcessor(t, env)
		p.AddModsToInstall(a, b)
		p.AddModsToUninstall(b)
		if len(p.Conflicts()) != 0 {
			t.Errorf("cancelled install should drop its conflicts, got %v", p.Conflicts())
		}
		if p.Steps() != 2 {
			t.Errorf("steps: got %d, want 2", p.Steps())
		}
	})
}

func TestQueues(t *testing.T) {
	env := newEnv(t)
	m := buildMod(t, env, "M", map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, shape(1, 0x00, 0x2222)),
		"sfx/victory.mp3":        []byte("modded"),
	})

	p := newProcessor(t, env)
	p.AddModsToUninstall(m)
	p.AddModsToInstall(m)
	p.AddModsToInstall(m)
	if got := p.Steps(); got != 2 {
		t.Errorf("install should replace the queued uninstall once, steps %d", got)
	}

	ghost := mod.FromDescription(env, m.Export())
	p.AddModsToInstall(ghost)
	if got := p.Steps(); got != 2 {
		t.Errorf("ghost mods cannot be installed, steps %d", got)
	}

	events := run(t, p)
	if p.Steps() != 0 {
		t.Errorf("queues should be cleared, steps %d", p.Steps())
	}
	done := 0
	for _, e := range events {
		if e.Kind == Done {
			done++
		}
	}
	if done != 2 {
		t.Errorf("done events: got %d, want 2", done)
	}
}

func TestFiles(t *testing.T) {
	env := newEnv(t)
	m := soundMod(t, env, "M", "modded")
	target, _ := env.FilePath("victory.mp3")
	read := func() string {
		data, err := os.ReadFile(target)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	p := newProcessor(t, env)
	p.AddModsToInstall(m)
	events := run(t, p)
	want := []Event{
		{Kind: InstalledFile, Name: "victory.mp3", ModHash: m.ModHash},
		{Kind: Done, Name: "victory.mp3", ModHash: m.ModHash},
	}
	if !slices.Equal(events, want) {
		t.Errorf("events: got %v, want %v", events, want)
	}
	if got := read(); got != "modded" {
		t.Errorf("installed content: got %q", got)
	}

	p = newProcessor(t, env)
	p.AddModsToUninstall(m)
	run(t, p)
	if got := read(); got != "original" {
		t.Errorf("uninstalled content: got %q", got)
	}
}

func TestGhostUninstall(t *testing.T) {
	env := newEnv(t)
	m := buildMod(t, env, "M", map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, shape(1, 0x00, 0x2222)),
		"sfx/victory.mp3":        []byte("modded"),
	})
	p := newProcessor(t, env)
	p.AddModsToInstall(m)
	run(t, p)

	if err := os.RemoveAll(m.Path); err != nil {
		t.Fatal(err)
	}
	finder, err := mod.NewFinder(env)
	if err != nil {
		t.Fatalf("NewFinder: %v", err)
	}
	ghost := finder.ByHash(m.ModHash)
	if ghost == nil || !ghost.Ghost() {
		t.Fatalf("expected a ghost, got %v", ghost)
	}

	p = New(env, finder)
	p.AddModsToUninstall(ghost)
	run(t, p)

	g := openGame(t, env)
	if !bytes.Equal(shapeData(t, g), shape(100, 0x00, 0x1111).Data) {
		t.Error("ghost uninstall should restore the shape")
	}
	target, _ := env.FilePath("victory.mp3")
	if data, _ := os.ReadFile(target); string(data) != "original" {
		t.Errorf("ghost uninstall should restore the file, got %q", data)
	}
	if _, ok := env.Mods.JsonMod(m.ModHash); ok {
		t.Error("uninstalled ghost should be forgotten")
	}
}

func TestBitmapLink(t *testing.T) {
	env := newEnv(t)
	image := swf.NewTag(swf.DefineBitsLossless2, body(7, 5, 1, 0, 1, 0, 0xaa))
	m := buildMod(t, env, "M", map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, image, shape(1, swf.FillRepeatingBitmap, 7)),
	})

	p := newProcessor(t, env)
	p.AddModsToInstall(m)
	run(t, p)

	g := openGame(t, env)
	fs, ok := swf.FirstFillStyle(g.Element(swf.DefineShape3, 100))
	if !ok || !fs.Repeating() {
		t.Fatalf("fill: got %+v", fs)
	}
	if fs.BitmapID < gameswf.ImagesStart || fs.BitmapID > gameswf.ImagesEnd {
		t.Errorf("bitmap id %#x outside the image range", fs.BitmapID)
	}
	img := g.Directory().Get(fs.BitmapID, swf.ImageTypes...)
	if img == nil || !bytes.Equal(img.Data[2:], image.Data[2:]) {
		t.Fatalf("linked image: got %v", img)
	}
	tags := g.File().Tags
	if slices.Index(tags, img) > slices.Index(tags, g.Element(swf.DefineShape3, 100)) {
		t.Error("image should be defined before the shape")
	}
	imageID := fs.BitmapID
	g.Close()

	p = newProcessor(t, env)
	p.AddModsToUninstall(m)
	run(t, p)

	g = openGame(t, env)
	if g.Directory().Get(imageID, swf.ImageTypes...) != nil {
		t.Error("linked image should be removed on uninstall")
	}
}

func TestCancel(t *testing.T) {
	env := newEnv(t)
	m := shapeMod(t, env, "M", 0x2222)
	p := newProcessor(t, env)
	p.AddModsToInstall(m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events, err := p.Process(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("nothing should run, got %v", events)
	}
	if p.Steps() != 1 {
		t.Errorf("queues should be kept, steps %d", p.Steps())
	}
}

func TestEventOrder(t *testing.T) {
	env := newEnv(t)
	a := shapeMod(t, env, "A", 0x2222)
	b := buildMod(t, env, "B", map[string][]byte{
		"Game/sprites/200.bmlswf": container(t, swf.NewTag(swf.DefineSprite, body(1, 9))),
	})
	p := newProcessor(t, env)
	p.AddModsToInstall(a, b)
	run(t, p)

	t.Run("Uninstall", func(t *testing.T) {
		p := newProcessor(t, env)
		p.AddModsToUninstall(a, b)
		if got := p.Steps(); got != 2 {
			t.Errorf("steps: got %d, want 2", got)
		}
		events := run(t, p)
		want := []Event{
			{Kind: OpenSwf, Name: "Game"},
			{Kind: UninstalledModifier, Name: "Game", ModHash: a.ModHash},
			{Kind: Done, Name: "Game", ModHash: a.ModHash},
			{Kind: UninstalledModifier, Name: "Game", ModHash: b.ModHash},
			{Kind: Done, Name: "Game", ModHash: b.ModHash},
		}
		if !slices.Equal(events, want) {
			t.Errorf("events: got %v, want %v", events, want)
		}
	})

	t.Run("Reinstall", func(t *testing.T) {
		p := newProcessor(t, env)
		p.AddModsToInstall(a, b)
		run(t, p)

		p = newProcessor(t, env)
		p.AddModsToUninstall(b)
		p.AddModsToInstall(a)
		if got := p.Steps(); got != 2 {
			t.Errorf("steps: got %d, want 2", got)
		}
		events := run(t, p)
		want := []Event{
			{Kind: OpenSwf, Name: "Game"},
			{Kind: UninstalledModifier, Name: "Game", ModHash: b.ModHash},
			{Kind: Done, Name: "Game", ModHash: b.ModHash},
			{Kind: UninstalledModifier, Name: "Game", ModHash: a.ModHash},
			{Kind: InstalledModifier, Name: "Game", ModHash: a.ModHash},
			{Kind: Done, Name: "Game", ModHash: a.ModHash},
		}
		if !slices.Equal(events, want) {
			t.Errorf("events: got %v, want %v", events, want)
		}
	})
}

func TestElementKinds(t *testing.T) {
	type element struct {
		typ swf.Type
		id  uint16
	}
	tests := []struct {
		name    string
		files   map[string][]byte
		want    []*swf.Tag
		removed []element
	}{
		{
			name: "FontWithoutZones",
			files: map[string][]byte{"Game/fonts/400.bmlswf": container(t,
				swf.NewTag(swf.DefineFont3, body(1, 'g')),
				swf.NewTag(swf.DefineFontName, body(1, 'B', 0)),
			)},
			want: []*swf.Tag{
				swf.NewTag(swf.DefineFont3, body(400, 'g')),
				swf.NewTag(swf.DefineFontName, body(400, 'B', 0)),
			},
			removed: []element{{swf.DefineFontAlignZones, 400}},
		},
		{
			name: "FontWithZones",
			files: map[string][]byte{"Game/fonts/400.bmlswf": container(t,
				swf.NewTag(swf.DefineFont3, body(1, 'g')),
				swf.NewTag(swf.DefineFontName, body(1, 'B', 0)),
				swf.NewTag(swf.DefineFontAlignZones, body(1, 9)),
			)},
			want: []*swf.Tag{
				swf.NewTag(swf.DefineFont3, body(400, 'g')),
				swf.NewTag(swf.DefineFontName, body(400, 'B', 0)),
				swf.NewTag(swf.DefineFontAlignZones, body(400, 9)),
			},
		},
		{
			name: "EditText",
			files: map[string][]byte{"Game/texts/300.bmlswf": container(t,
				swf.NewTag(swf.DefineEditText, body(1, 'y', 'o')),
				swf.NewTag(swf.CSMTextSettings, body(1, 0x20)),
			)},
			want: []*swf.Tag{
				swf.NewTag(swf.DefineEditText, body(300, 'y', 'o')),
				swf.NewTag(swf.CSMTextSettings, body(300, 0x20)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			m := buildMod(t, env, "M", tt.files)
			p := newProcessor(t, env)
			p.AddModsToInstall(m)
			run(t, p)

			g := openGame(t, env)
			for _, w := range tt.want {
				id, _ := w.ID()
				if got := g.Directory().Get(id, w.Code); got == nil || !bytes.Equal(got.Data, w.Data) {
					t.Errorf("installed %s: got %v", w, got)
				}
			}
			for _, r := range tt.removed {
				if g.Directory().Get(r.id, r.typ) != nil {
					t.Errorf("%s#%d should be removed", r.typ, r.id)
				}
			}
			g.Close()

			p = newProcessor(t, env)
			p.AddModsToUninstall(m)
			run(t, p)

			g = openGame(t, env)
			for _, orig := range gameTags() {
				id, _ := orig.ID()
				if got := g.Directory().Get(id, orig.Code); got == nil || !bytes.Equal(got.Data, orig.Data) {
					t.Errorf("restored %s: got %v", orig, got)
				}
			}
		})
	}
}

func TestMixedVariants(t *testing.T) {
	env := newEnv(t)
	a := buildMod(t, env, "A", map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, swf.NewTag(swf.DefineShape4, body(1, 0x00, 0x00, 0x00, 0x00, 0xaa))),
	})
	b := shapeMod(t, env, "B", 0x3333)

	for _, m := range []*mod.Mod{a, b} {
		p := newProcessor(t, env)
		p.AddModsToInstall(m)
		run(t, p)
	}
	g := openGame(t, env)
	n := 0
	for _, typ := range swf.ShapeTypes {
		n += len(g.BackupElements[typ])
	}
	if n != 1 {
		t.Errorf("shape backups: got %d, want 1 (%v)", n, g.BackupElements)
	}
	g.Close()

	p := newProcessor(t, env)
	p.AddModsToUninstall(a, b)
	run(t, p)

	g = openGame(t, env)
	live := g.Element(swf.DefineShape3, 100)
	if want := shape(100, 0x00, 0x1111); live.Code != want.Code || !bytes.Equal(live.Data, want.Data) {
		t.Errorf("after uninstalling both: got %s %x, want %x", live.Code, live.Data, want.Data)
	}
}

type fakeEditor struct {
	sources map[string]string
}

func (e *fakeEditor) Source(_ *swf.File, name string) (string, error) {
	src, ok := e.sources[name]
	if !ok {
		return "", errors.New("no such script")
	}
	return src, nil
}

func (e *fakeEditor) Replace(_ *swf.File, name, source string) error {
	e.sources[name] = source
	return nil
}

func TestScripts(t *testing.T) {
	files := map[string][]byte{
		"Game/shapes/100.bmlswf": container(t, shape(1, 0x00, 0x2222)),
		"Game/scripts/a_Main.as": []byte("modded"),
	}

	t.Run("Editor", func(t *testing.T) {
		env := newEnv(t)
		m := buildMod(t, env, "M", files)
		editor := &fakeEditor{sources: map[string]string{"a_Main": "original"}}

		p := newProcessor(t, env, WithScriptEditor(editor))
		p.AddModsToInstall(m)
		run(t, p)
		if got := editor.sources["a_Main"]; got != "modded" {
			t.Errorf("installed script: got %q", got)
		}
		g := openGame(t, env)
		if got := g.BackupScripts["a_Main"]; got != "original" {
			t.Errorf("script backup: got %q", got)
		}
		g.Close()

		p = newProcessor(t, env, WithScriptEditor(editor))
		p.AddModsToUninstall(m)
		run(t, p)
		if got := editor.sources["a_Main"]; got != "original" {
			t.Errorf("restored script: got %q", got)
		}
	})

	t.Run("NoEditor", func(t *testing.T) {
		env := newEnv(t)
		m := buildMod(t, env, "M", files)
		p := newProcessor(t, env)
		p.AddModsToInstall(m)
		run(t, p)

		g := openGame(t, env)
		if !g.IsInstalled(m.ModHash) {
			t.Error("elements should install without a script editor")
		}
		if len(g.BackupScripts) != 0 {
			t.Errorf("no script should be backed up, got %v", g.BackupScripts)
		}
	})
}
