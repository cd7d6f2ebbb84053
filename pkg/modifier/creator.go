package modifier

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/goopsie/bmlmod/pkg/logging"
	"github.com/goopsie/bmlmod/pkg/swf"
	"github.com/goopsie/bmlmod/pkg/symbols"
)

// payloadImagesStart is where images inside a payload are renumbered to.
// Install always re-allocates them in the game container.
const payloadImagesStart = 0x5000

// Creator assembles a modifier payload from resource containers and script
// sources.
type Creator struct {
	SwfName string
	Path    string

	logger    hclog.Logger
	file      *swf.File
	dir       *swf.Directory
	elements  Elements
	scripts   map[string]string
	bitmaps   map[uint16]uint16
	nextImage uint16
}

// NewCreator starts an empty payload for swfName in the mod folder.
func NewCreator(modPath, swfName string, logger hclog.Logger) *Creator {
	name := SwfName(swfName)
	f := swf.New()
	f.Tags = []*swf.Tag{swf.NewTag(swf.ShowFrame, nil)}
	return &Creator{
		SwfName:   name,
		Path:      filepath.Join(modPath, name+Ext),
		logger:    logging.Component(logger, "modifier", "swf", name),
		file:      f,
		dir:       swf.NewDirectory(f),
		elements:  NewElements(),
		scripts:   make(map[string]string),
		bitmaps:   make(map[uint16]uint16),
		nextImage: payloadImagesStart,
	}
}

// Elements returns what the payload declares so far.
func (c *Creator) Elements() Elements {
	return c.elements
}

// AddResource copies the elements of one resource container into the
// payload under id. Images get payload-local ids and the shape fills that
// reference them are relinked; repeating bitmap links are recorded.
// Images and element companions are not declared.
func (c *Creator) AddResource(tags []*swf.Tag, id uint16) error {
	relinked := make(map[uint16]uint16)
	var rest []*swf.Tag

	for _, t := range tags {
		if !t.Code.Identified() {
			continue
		}
		if t.Code.Kind() != swf.KindImage {
			rest = append(rest, t)
			continue
		}
		old, _ := t.ID()
		img := t.Clone()
		if err := img.SetID(c.nextImage); err != nil {
			return err
		}
		if err := c.dir.Add(img); err != nil {
			return fmt.Errorf("add image %d: %w", old, err)
		}
		relinked[old] = c.nextImage
		c.nextImage++
	}

	for _, t := range rest {
		el := t.Clone()
		if err := el.SetID(id); err != nil {
			return err
		}
		if el.Code.Kind() == swf.KindShape {
			if fs, ok := swf.FirstFillStyle(el); ok && fs.Bitmap() {
				if newID, ok := relinked[fs.BitmapID]; ok {
					if err := swf.SetFirstFillBitmap(el, newID); err != nil {
						return err
					}
					if fs.Repeating() {
						c.bitmaps[id] = newID
					}
				}
			}
		}
		if err := c.dir.Add(el); err != nil {
			return fmt.Errorf("add %s: %w", el, err)
		}

		switch el.Code.Kind() {
		case swf.KindShape, swf.KindSprite, swf.KindSound, swf.KindEditText, swf.KindFont:
			c.elements.Add(el.Code, id)
		}
		c.logger.Trace("added element", "element", el)
	}
	return nil
}

// AddScript attaches the source of a script.
func (c *Creator) AddScript(name, source string) {
	c.scripts[name] = source
	c.elements.AddScript(name)
}

// Save writes the payload with its symbol table.
func (c *Creator) Save() error {
	table := symbols.New()
	if err := table.Add(KeyModifier, true); err != nil {
		return err
	}
	if err := table.Add(KeyScripts, c.scripts); err != nil {
		return err
	}
	if err := table.Add(KeyRepeatingBitmaps, c.bitmaps); err != nil {
		return err
	}
	body, err := table.Encode()
	if err != nil {
		return fmt.Errorf("encode symbols: %w", err)
	}
	c.dir.SetSymbolTable(body)

	if err := c.file.WriteFile(c.Path); err != nil {
		return fmt.Errorf("save %s: %w", c.SwfName, err)
	}
	c.logger.Debug("saved payload", "elements", c.elements.Len(), "bitmaps", len(c.bitmaps))
	return nil
}
