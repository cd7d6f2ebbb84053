package mod

import (
	"encoding/json"
	"fmt"
)

// Platform is where a mod is published.
type Platform string

const (
	PlatformNone       Platform = ""
	PlatformGameBanana Platform = "GameBanana"
	PlatformBHMods     Platform = "BHMods"
)

// Platforms lists the known platforms, indexed like the builder's
// numeric platform option.
var Platforms = []Platform{PlatformNone, PlatformGameBanana, PlatformBHMods}

// ParsePlatform accepts a platform name, "" or "null".
func ParsePlatform(s string) (Platform, error) {
	if s == "null" {
		return PlatformNone, nil
	}
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return PlatformNone, fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// MarshalJSON writes the unpublished platform as null.
func (p Platform) MarshalJSON() ([]byte, error) {
	if p == PlatformNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON reads null as the unpublished platform.
func (p *Platform) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*p = PlatformNone
		return nil
	}
	parsed, err := ParsePlatform(*s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Config is the mod's configuration table.
type Config struct {
	GameVersion    string   `json:"gameVersion"`
	ModName        string   `json:"modName"`
	ModAuthor      string   `json:"modAuthor"`
	ModVersion     string   `json:"modVersion"`
	ModDescription string   `json:"modDescription"`
	ModTags        []string `json:"modTags"`
	ModPreview     string   `json:"modPreview"`
	ModID          string   `json:"modId"`
	ModHash        string   `json:"modHash"`
	AuthorID       string   `json:"authorId"`
	Platform       Platform `json:"platform"`
}

// DefaultModVersion is used when a build sets no version.
const DefaultModVersion = "0.1"

// Configuration table keys.
const (
	cfgGameVersion    = "gameVersion"
	cfgModName        = "modName"
	cfgModAuthor      = "modAuthor"
	cfgModVersion     = "modVersion"
	cfgModDescription = "modDescription"
	cfgModTags        = "modTags"
	cfgModPreview     = "modPreview"
	cfgModID          = "modId"
	cfgModHash        = "modHash"
	cfgAuthorID       = "authorId"
	cfgPlatform       = "platform"
)

// rows returns the key/value rows of c. Empty values are stored as NULL;
// tags are a JSON list.
func (c Config) rows() (map[string]*string, error) {
	tags := c.ModTags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	nullable := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	return map[string]*string{
		cfgGameVersion:    nullable(c.GameVersion),
		cfgModName:        nullable(c.ModName),
		cfgModAuthor:      nullable(c.ModAuthor),
		cfgModVersion:     nullable(c.ModVersion),
		cfgModDescription: nullable(c.ModDescription),
		cfgModTags:        nullable(string(encoded)),
		cfgModPreview:     nullable(c.ModPreview),
		cfgModID:          nullable(c.ModID),
		cfgModHash:        nullable(c.ModHash),
		cfgAuthorID:       nullable(c.AuthorID),
		cfgPlatform:       nullable(string(c.Platform)),
	}, nil
}

// configFromRows is the inverse of rows. Unknown keys are ignored.
func configFromRows(rows map[string]string) (Config, error) {
	c := Config{
		GameVersion:    rows[cfgGameVersion],
		ModName:        rows[cfgModName],
		ModAuthor:      rows[cfgModAuthor],
		ModVersion:     rows[cfgModVersion],
		ModDescription: rows[cfgModDescription],
		ModPreview:     rows[cfgModPreview],
		ModID:          rows[cfgModID],
		ModHash:        rows[cfgModHash],
		AuthorID:       rows[cfgAuthorID],
	}
	if tags := rows[cfgModTags]; tags != "" {
		if err := json.Unmarshal([]byte(tags), &c.ModTags); err != nil {
			return c, fmt.Errorf("decode tags: %w", err)
		}
	}
	p, err := ParsePlatform(rows[cfgPlatform])
	if err != nil {
		return c, err
	}
	c.Platform = p
	return c, nil
}
