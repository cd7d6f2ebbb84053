package gameswf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goopsie/bmlmod/pkg/swf"
	"github.com/goopsie/bmlmod/pkg/symbols"
)

func body(id uint16, payload ...byte) []byte {
	return append(binary.LittleEndian.AppendUint16(nil, id), payload...)
}

func shape(id uint16, fill byte, bitmap uint16) *swf.Tag {
	b := body(id, 0x00, 0x01, fill)
	b = binary.LittleEndian.AppendUint16(b, bitmap)
	return swf.NewTag(swf.DefineShape3, append(b, 0x00))
}

// writeGame writes a container with a solid shape, a sprite, an edit text
// with text settings and a font with its name record.
func writeGame(t *testing.T) string {
	t.Helper()
	f := swf.New()
	f.Header.Signature = swf.SignatureCWS
	f.Tags = []*swf.Tag{
		shape(100, 0x00, 0),
		swf.NewTag(swf.DefineSprite, body(200, 1, 2, 3)),
		swf.NewTag(swf.DefineEditText, body(300, 'h', 'i')),
		swf.NewTag(swf.CSMTextSettings, body(300, 0x10)),
		swf.NewTag(swf.DefineFont3, body(400, 'f')),
		swf.NewTag(swf.DefineFontName, body(400, 'A', 0)),
		swf.NewTag(swf.SymbolClass, classNames(t, map[uint16]string{0: "Main"})),
		swf.NewTag(swf.ShowFrame, nil),
	}
	path := filepath.Join(t.TempDir(), "Game.swf")
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("write game: %v", err)
	}
	return path
}

func classNames(t *testing.T, names map[uint16]string) []byte {
	t.Helper()
	tbl := symbols.New()
	for k, v := range names {
		tbl.Add(k, v)
	}
	b, err := tbl.Encode()
	if err != nil {
		t.Fatalf("encode symbols: %v", err)
	}
	return b
}

func load(t *testing.T, path string, opts ...Option) *GameSwf {
	t.Helper()
	g := New("Game", path, opts...)
	if err := g.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return g
}

func saveReload(t *testing.T, g *GameSwf, opts ...Option) *GameSwf {
	t.Helper()
	if err := g.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	g.Close()
	return load(t, g.Path(), opts...)
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

func TestLoad(t *testing.T) {
	t.Run("FirstLoadInitializes", func(t *testing.T) {
		path := writeGame(t)
		g := load(t, path)
		if g.Name() != "Game.swf" {
			t.Errorf("name: got %q", g.Name())
		}
		if len(g.BackupElements) != 0 || len(g.BackupScripts) != 0 || len(g.InstalledMods) != 0 {
			t.Errorf("expected empty state, got %v %v %v", g.BackupElements, g.BackupScripts, g.InstalledMods)
		}
		g.Close()

		f, err := swf.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if f.Header.Signature != swf.SignatureCWS {
			t.Errorf("compression not preserved: %q", f.Header.Signature[:])
		}
		tbl, err := symbols.Decode(swf.NewDirectory(f).SymbolTable().Data)
		if err != nil {
			t.Fatalf("decode symbols: %v", err)
		}
		if tbl.Get(KeyModified) != true {
			t.Errorf("modified flag not persisted: %v", tbl.Get(KeyModified))
		}
		if tbl.Get(0) != "Main" {
			t.Errorf("class name lost: %v", tbl.Get(0))
		}
		for _, key := range []uint16{KeyBackupElements, KeyBackupScripts, KeyInstalledMods} {
			if !tbl.Has(key) {
				t.Errorf("key %#x not persisted", key)
			}
		}
	})

	t.Run("SecondLoadReadsState", func(t *testing.T) {
		path := writeGame(t)
		g := load(t, path)
		g.AddInstalled("abc")
		g = saveReload(t, g)
		if !g.IsInstalled("abc") {
			t.Errorf("installed list: got %v", g.InstalledMods)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		g := New("Nope", filepath.Join(t.TempDir(), "Nope.swf"))
		if err := g.Load(); err == nil {
			t.Error("expected error for missing container")
		}
		if err := g.BackupElement(swf.DefineSprite, 1); !errors.Is(err, ErrNotLoaded) {
			t.Errorf("backup before load: got %v", err)
		}
	})
}

func TestBackupRepair(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		g := load(t, writeGame(t))
		orig := bytes.Clone(g.Element(swf.DefineShape3, 100).Data)

		if err := g.BackupElement(swf.DefineShape3, 100); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if got, _ := g.BackupElements.Lookup(swf.DefineShape3, 100); got != BackupStart {
			t.Errorf("backup id: got %#x, want %#x", got, BackupStart)
		}
		if err := g.PutElement(shape(100, 0x00, 7)); err != nil {
			t.Fatalf("put: %v", err)
		}

		g = saveReload(t, g)
		if bytes.Equal(g.Element(swf.DefineShape3, 100).Data, orig) {
			t.Fatal("element was not replaced")
		}
		if err := g.RepairElement(swf.DefineShape3, 100); err != nil {
			t.Fatalf("repair: %v", err)
		}

		g = saveReload(t, g)
		if got := g.Element(swf.DefineShape3, 100).Data; !bytes.Equal(got, orig) {
			t.Errorf("restored content: got %x, want %x", got, orig)
		}
		if _, ok := g.BackupElements.Lookup(swf.DefineShape3, 100); !ok {
			t.Error("backup entry should remain after repair")
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		g := load(t, writeGame(t))
		for i := 0; i < 2; i++ {
			if err := g.BackupElement(swf.DefineSprite, 200); err != nil {
				t.Fatalf("backup: %v", err)
			}
		}
		if n := g.backupCount(); n != 1 {
			t.Errorf("backup entries: got %d, want 1", n)
		}
		if g.Directory().Get(BackupStart+1) != nil {
			t.Error("second backup element was added")
		}
	})

	t.Run("GlobalCounter", func(t *testing.T) {
		g := load(t, writeGame(t))
		g.BackupElement(swf.DefineShape3, 100)
		g.BackupElement(swf.DefineSprite, 200)
		g = saveReload(t, g)
		g.BackupElement(swf.DefineEditText, 300)

		want := map[swf.Type]uint16{
			swf.DefineShape3:   BackupStart,
			swf.DefineSprite:   BackupStart + 1,
			swf.DefineEditText: BackupStart + 2,
		}
		for typ, id := range want {
			var orig uint16
			for o := range g.BackupElements[typ] {
				orig = o
			}
			if got := g.BackupElements[typ][orig]; got != id {
				t.Errorf("%s backup id: got %#x, want %#x", typ, got, id)
			}
		}
	})

	t.Run("ShapeVariants", func(t *testing.T) {
		g := load(t, writeGame(t))
		if err := g.BackupElement(swf.DefineShape4, 100); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if _, ok := g.BackupElements.Lookup(swf.DefineShape4, 100); !ok {
			t.Error("shape stored as a different variant was not backed up")
		}
	})

	t.Run("MixedVariants", func(t *testing.T) {
		g := load(t, writeGame(t))
		orig := bytes.Clone(g.Element(swf.DefineShape3, 100).Data)

		// two mods declare the same shape as different variants
		if err := g.BackupElement(swf.DefineShape4, 100); err != nil {
			t.Fatalf("backup first: %v", err)
		}
		if err := g.PutElement(swf.NewTag(swf.DefineShape4, body(100, 0x00, 0x01, 0xaa, 0xaa, 0x00))); err != nil {
			t.Fatalf("put first: %v", err)
		}
		if err := g.BackupElement(swf.DefineShape3, 100); err != nil {
			t.Fatalf("backup second: %v", err)
		}
		if err := g.PutElement(swf.NewTag(swf.DefineShape3, body(100, 0x00, 0x01, 0xbb, 0xbb, 0x00))); err != nil {
			t.Fatalf("put second: %v", err)
		}
		if n := g.backupCount(); n != 1 {
			t.Fatalf("backup entries: got %d, want 1 (%v)", n, g.BackupElements)
		}
		if got, _ := g.BackupElements.Find(swf.DefineShape3, 100); got != BackupStart {
			t.Errorf("backup id: got %#x, want %#x", got, BackupStart)
		}

		g = saveReload(t, g)
		for _, typ := range []swf.Type{swf.DefineShape3, swf.DefineShape4} {
			if err := g.RepairElement(typ, 100); err != nil {
				t.Fatalf("repair %s: %v", typ, err)
			}
		}
		live := g.Element(swf.DefineShape3, 100)
		if live.Code != swf.DefineShape3 || !bytes.Equal(live.Data, orig) {
			t.Errorf("after repairing both: got %s %x, want original %x", live.Code, live.Data, orig)
		}
	})

	t.Run("SkippedTypes", func(t *testing.T) {
		g := load(t, writeGame(t))
		for _, typ := range []swf.Type{swf.DefineBitsLossless2, swf.CSMTextSettings, swf.DefineFontName, swf.DefineFontAlignZones} {
			if err := g.BackupElement(typ, 300); err != nil {
				t.Errorf("%s: %v", typ, err)
			}
		}
		if g.backupCount() != 0 {
			t.Errorf("unexpected backups: %v", g.BackupElements)
		}
		if err := g.BackupElement(swf.ActionScript, 1); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("script as element: got %v", err)
		}
	})

	t.Run("EditTextCompanion", func(t *testing.T) {
		g := load(t, writeGame(t))
		origCSM := bytes.Clone(g.Directory().Get(300, swf.CSMTextSettings).Data)
		if err := g.BackupElement(swf.DefineEditText, 300); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if got, _ := g.BackupElements.Lookup(swf.CSMTextSettings, 300); got != BackupStart {
			t.Errorf("text settings backup: got %#x", got)
		}

		g.PutElement(swf.NewTag(swf.DefineEditText, body(300, 'y', 'o')))
		g.PutElement(swf.NewTag(swf.CSMTextSettings, body(300, 0x20)))
		if err := g.RepairElement(swf.DefineEditText, 300); err != nil {
			t.Fatalf("repair: %v", err)
		}
		if got := g.Directory().Get(300, swf.CSMTextSettings).Data; !bytes.Equal(got, origCSM) {
			t.Errorf("text settings: got %x, want %x", got, origCSM)
		}
	})

	t.Run("FontCompanions", func(t *testing.T) {
		g := load(t, writeGame(t))
		if err := g.BackupElement(swf.DefineFont3, 400); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if _, ok := g.BackupElements.Lookup(swf.DefineFontName, 400); !ok {
			t.Error("font name not backed up")
		}
		if _, ok := g.BackupElements.Lookup(swf.DefineFontAlignZones, 400); ok {
			t.Error("absent align zones recorded")
		}

		// a mod brings align zones the original font did not have
		g.PutElement(swf.NewTag(swf.DefineFontAlignZones, body(400, 1)))
		if err := g.RepairElement(swf.DefineFont3, 400); err != nil {
			t.Fatalf("repair: %v", err)
		}
		if g.Directory().Get(400, swf.DefineFontAlignZones) != nil {
			t.Error("mod align zones not removed")
		}
		if g.Directory().Get(400, swf.DefineFontName) == nil {
			t.Error("font name missing after repair")
		}
	})

	t.Run("LinkedImage", func(t *testing.T) {
		g := load(t, writeGame(t))
		g.BackupElement(swf.DefineShape3, 100)

		id, err := g.AllocImageID()
		if err != nil || id != ImagesStart {
			t.Fatalf("alloc: %#x, %v", id, err)
		}
		repl := shape(100, swf.FillRepeatingBitmap, id)
		if err := g.PutElement(repl); err != nil {
			t.Fatalf("put: %v", err)
		}
		img := swf.NewTag(swf.DefineBitsLossless2, body(id, 5))
		if err := g.AddImage(img, repl); err != nil {
			t.Fatalf("add image: %v", err)
		}
		if next, _ := g.AllocImageID(); next != ImagesStart+1 {
			t.Errorf("next image id: got %#x", next)
		}

		g = saveReload(t, g)
		if g.Image(id) == nil {
			t.Fatal("image not indexed after reload")
		}
		if err := g.RepairElement(swf.DefineShape3, 100); err != nil {
			t.Fatalf("repair: %v", err)
		}
		if g.Directory().Get(id) != nil {
			t.Error("linked image not removed")
		}
	})

	t.Run("AbsentOriginal", func(t *testing.T) {
		g := load(t, writeGame(t))
		if err := g.BackupElement(swf.DefineSound, 500); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if err := g.PutElement(swf.NewTag(swf.DefineSound, body(500, 1))); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := g.RepairElement(swf.DefineSound, 500); err != nil {
			t.Fatalf("repair: %v", err)
		}
		if g.Element(swf.DefineSound, 500) == nil {
			t.Error("element added without an original should stay")
		}
	})
}

func TestScripts(t *testing.T) {
	t.Run("NoEditor", func(t *testing.T) {
		g := load(t, writeGame(t))
		if err := g.BackupScript("a_Foo"); !errors.Is(err, ErrNoScriptEditor) {
			t.Errorf("got %v, want ErrNoScriptEditor", err)
		}
		if err := g.RepairScript("a_Foo"); err != nil {
			t.Errorf("repair of never-saved script: %v", err)
		}
	})

	t.Run("BackupReplaceRepair", func(t *testing.T) {
		ed := &fakeEditor{sources: map[string]string{"a_Foo": "original"}}
		g := load(t, writeGame(t), WithScriptEditor(ed))
		if err := g.BackupScript("a_Foo"); err != nil {
			t.Fatalf("backup: %v", err)
		}
		if err := g.ReplaceScript("a_Foo", "modded"); err != nil {
			t.Fatalf("replace: %v", err)
		}
		if err := g.BackupScript("a_Foo"); err != nil {
			t.Fatalf("second backup: %v", err)
		}
		g = saveReload(t, g, WithScriptEditor(ed))
		if g.BackupScripts["a_Foo"] != "original" {
			t.Errorf("saved source: got %q", g.BackupScripts["a_Foo"])
		}
		if err := g.RepairScript("a_Foo"); err != nil {
			t.Fatalf("repair: %v", err)
		}
		if ed.sources["a_Foo"] != "original" {
			t.Errorf("script after repair: got %q", ed.sources["a_Foo"])
		}
	})
}

func TestInstalledMods(t *testing.T) {
	g := load(t, writeGame(t))
	g.AddInstalled("aaa")
	g.AddInstalled("bbb")
	if err := g.RemoveInstalled("aaa"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if g.IsInstalled("aaa") || !g.IsInstalled("bbb") {
		t.Errorf("installed: got %v", g.InstalledMods)
	}
	if err := g.RemoveInstalled("zzz"); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("remove missing: got %v", err)
	}
	if g.State() != Dirty {
		t.Errorf("state: got %s, want dirty", g.State())
	}
}
