package swf

import (
	"fmt"
	"sort"
)

// Type is a SWF tag code. Element identity inside a container is (Type, id).
type Type uint16

// Tag codes handled by the loader.
const (
	End                  Type = 0
	ShowFrame            Type = 1
	DefineShape          Type = 2
	DefineFont           Type = 10
	DefineSound          Type = 14
	DefineBitsLossless   Type = 20
	DefineShape2         Type = 22
	DefineShape3         Type = 32
	DefineBitsLossless2  Type = 36
	DefineEditText       Type = 37
	DefineSprite         Type = 39
	DefineFont2          Type = 48
	DefineFontAlignZones Type = 73
	CSMTextSettings      Type = 74
	DefineFont3          Type = 75
	SymbolClass          Type = 76
	DefineShape4         Type = 83
	DefineFontName       Type = 88
	DefineFont4          Type = 91

	// ActionScript is not a tag code. Scripts are addressed by name and
	// live in the container's ABC packs.
	ActionScript Type = 0xffff
)

// Kind groups tag types that share backup and install handling.
type Kind uint8

const (
	KindNone Kind = iota
	KindImage
	KindShape
	KindFont
	KindSprite
	KindSound
	KindEditText
	KindTextSettings
	KindFontName
	KindFontAlignZones
	KindScript
	KindSymbolTable
)

var kindNames = [...]string{
	KindNone:           "none",
	KindImage:          "image",
	KindShape:          "shape",
	KindFont:           "font",
	KindSprite:         "sprite",
	KindSound:          "sound",
	KindEditText:       "edittext",
	KindTextSettings:   "textsettings",
	KindFontName:       "fontname",
	KindFontAlignZones: "fontalignzones",
	KindScript:         "script",
	KindSymbolTable:    "symboltable",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

type typeInfo struct {
	name string
	kind Kind
}

// typeTable is the closed set of element types. Names match the ones
// stored in backup maps and mod indexes.
var typeTable = map[Type]typeInfo{
	DefineBitsLossless:   {"DefineBitsLosslessTag", KindImage},
	DefineBitsLossless2:  {"DefineBitsLossless2Tag", KindImage},
	DefineShape:          {"DefineShapeTag", KindShape},
	DefineShape2:         {"DefineShape2Tag", KindShape},
	DefineShape3:         {"DefineShape3Tag", KindShape},
	DefineShape4:         {"DefineShape4Tag", KindShape},
	DefineFont:           {"DefineFontTag", KindFont},
	DefineFont2:          {"DefineFont2Tag", KindFont},
	DefineFont3:          {"DefineFont3Tag", KindFont},
	DefineFont4:          {"DefineFont4Tag", KindFont},
	DefineSprite:         {"DefineSpriteTag", KindSprite},
	DefineSound:          {"DefineSoundTag", KindSound},
	DefineEditText:       {"DefineEditTextTag", KindEditText},
	CSMTextSettings:      {"CSMTextSettingsTag", KindTextSettings},
	DefineFontName:       {"DefineFontNameTag", KindFontName},
	DefineFontAlignZones: {"DefineFontAlignZonesTag", KindFontAlignZones},
	SymbolClass:          {"SymbolClassTag", KindSymbolTable},
	ActionScript:         {"ActionScriptTag", KindScript},
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeTable))
	for t, info := range typeTable {
		m[info.name] = t
	}
	return m
}()

// Convenience groups for lookups across sub-variants.
var (
	ImageTypes = []Type{DefineBitsLossless, DefineBitsLossless2}
	ShapeTypes = []Type{DefineShape, DefineShape2, DefineShape3, DefineShape4}
	FontTypes  = []Type{DefineFont, DefineFont2, DefineFont3, DefineFont4}
)

func (t Type) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Tag%d", uint16(t))
}

// Kind returns the handling group of t, KindNone for tags that are not
// addressable elements.
func (t Type) Kind() Kind {
	return typeTable[t].kind
}

// Identified reports whether tags of this type carry a character id in
// their first two body bytes.
func (t Type) Identified() bool {
	switch t.Kind() {
	case KindNone, KindScript, KindSymbolTable:
		return false
	}
	return true
}

// MarshalText encodes the type by name so it can key JSON maps.
func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeTable[t]; !ok {
		return nil, fmt.Errorf("unknown element type %d", uint16(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType resolves an element type name such as "DefineShape3Tag".
func ParseType(name string) (Type, error) {
	if t, ok := typesByName[name]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown element type %q", name)
}

// SortTypes orders types by tag code so iteration over type maps is stable.
func SortTypes(types []Type) {
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
}
