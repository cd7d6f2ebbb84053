package swf

import (
	"errors"
	"fmt"
	"slices"
)

// ReservedIDStart is the first character id kept for the loader's own
// bookkeeping. Elements may never be stored at or above it.
const ReservedIDStart = 0xfffc

var (
	ErrNotPresent       = errors.New("element not present")
	ErrReserved         = errors.New("reserved element")
	ErrDuplicateElement = errors.New("duplicate element")
	ErrUnidentified     = errors.New("tag has no character id")
)

// Directory indexes the addressable elements of a File and keeps the index
// in step with every mutation of the file's tag list.
type Directory struct {
	file     *File
	elements []*Tag
	ids      map[*Tag]uint16
	byType   map[Type]map[uint16]*Tag
	symbols  *Tag
}

// NewDirectory scans f and builds its element index. The last SymbolClass
// tag becomes the symbol table.
func NewDirectory(f *File) *Directory {
	d := &Directory{
		file:   f,
		ids:    make(map[*Tag]uint16),
		byType: make(map[Type]map[uint16]*Tag),
	}
	for _, t := range f.Tags {
		if t.Code == SymbolClass {
			d.symbols = t
			continue
		}
		id, ok := t.ID()
		if !ok {
			continue
		}
		d.index(t, id)
	}
	return d
}

// File returns the underlying container.
func (d *Directory) File() *File {
	return d.file
}

// Elements returns the identified elements in file order.
func (d *Directory) Elements() []*Tag {
	return slices.Clone(d.elements)
}

// Len returns the number of indexed elements.
func (d *Directory) Len() int {
	return len(d.elements)
}

// SymbolTable returns the SymbolClass tag, or nil.
func (d *Directory) SymbolTable() *Tag {
	return d.symbols
}

// SetSymbolTable stores body as the SymbolClass record, creating the tag
// when the container has none.
func (d *Directory) SetSymbolTable(body []byte) {
	if d.symbols != nil {
		d.symbols.Data = body
		return
	}
	d.symbols = NewTag(SymbolClass, body)
	d.file.Tags = slices.Insert(d.file.Tags, d.appendPos(), d.symbols)
}

// Get returns the first element with the given id whose type is one of
// types, or of any type when none are given.
func (d *Directory) Get(id uint16, types ...Type) *Tag {
	if len(types) == 0 {
		for _, t := range d.elements {
			if d.ids[t] == id {
				return t
			}
		}
		return nil
	}
	for _, typ := range types {
		if t, ok := d.byType[typ][id]; ok {
			return t
		}
	}
	return nil
}

// Has reports whether t is indexed.
func (d *Directory) Has(t *Tag) bool {
	_, ok := d.ids[t]
	return ok
}

// Add appends t to the container.
func (d *Directory) Add(t *Tag) error {
	id, err := d.validate(t, nil)
	if err != nil {
		return fmt.Errorf("add %s: %w", t, err)
	}
	d.file.Tags = slices.Insert(d.file.Tags, d.appendPos(), t)
	d.index(t, id)
	d.reorder()
	return nil
}

// AddBefore inserts t directly in front of anchor so it is defined before
// anything in anchor that refers to it.
func (d *Directory) AddBefore(t, anchor *Tag) error {
	id, err := d.validate(t, nil)
	if err != nil {
		return fmt.Errorf("add %s: %w", t, err)
	}
	pos := slices.Index(d.file.Tags, anchor)
	if pos < 0 {
		return fmt.Errorf("add %s before %s: %w", t, anchor, ErrNotPresent)
	}
	d.file.Tags = slices.Insert(d.file.Tags, pos, t)
	d.index(t, id)
	d.reorder()
	return nil
}

// Replace swaps old for t at the same position.
func (d *Directory) Replace(old, t *Tag) error {
	oldID, ok := d.ids[old]
	if !ok {
		return fmt.Errorf("replace %s: %w", old, ErrNotPresent)
	}
	if oldID >= ReservedIDStart {
		return fmt.Errorf("replace %s: %w", old, ErrReserved)
	}
	id, err := d.validate(t, old)
	if err != nil {
		return fmt.Errorf("replace %s: %w", old, err)
	}

	pos := slices.Index(d.file.Tags, old)
	d.file.Tags[pos] = t
	d.unindex(old)
	d.index(t, id)
	d.reorder()
	return nil
}

// Remove deletes t from the container.
func (d *Directory) Remove(t *Tag) error {
	if t.Code == SymbolClass {
		return fmt.Errorf("remove %s: %w", t, ErrReserved)
	}
	if _, ok := d.ids[t]; !ok {
		return fmt.Errorf("remove %s: %w", t, ErrNotPresent)
	}
	if id := d.ids[t]; id >= ReservedIDStart {
		return fmt.Errorf("remove %s: %w", t, ErrReserved)
	}
	d.file.Tags = slices.DeleteFunc(d.file.Tags, func(tag *Tag) bool { return tag == t })
	d.unindex(t)
	return nil
}

// validate checks that t may be stored, ignoring a collision with skip.
func (d *Directory) validate(t, skip *Tag) (uint16, error) {
	if t.Code == SymbolClass {
		return 0, ErrReserved
	}
	id, ok := t.ID()
	if !ok {
		return 0, ErrUnidentified
	}
	if id >= ReservedIDStart {
		return 0, fmt.Errorf("id %d: %w", id, ErrReserved)
	}
	if _, ok := d.ids[t]; ok && t != skip {
		return 0, ErrDuplicateElement
	}
	if other, ok := d.byType[t.Code][id]; ok && other != skip {
		return 0, ErrDuplicateElement
	}
	return id, nil
}

func (d *Directory) index(t *Tag, id uint16) {
	if _, ok := d.ids[t]; !ok {
		d.elements = append(d.elements, t)
	}
	d.ids[t] = id
	m := d.byType[t.Code]
	if m == nil {
		m = make(map[uint16]*Tag)
		d.byType[t.Code] = m
	}
	if _, ok := m[id]; !ok {
		m[id] = t
	}
}

func (d *Directory) unindex(t *Tag) {
	id := d.ids[t]
	delete(d.ids, t)
	d.elements = slices.DeleteFunc(d.elements, func(tag *Tag) bool { return tag == t })
	if d.byType[t.Code][id] != t {
		return
	}
	delete(d.byType[t.Code], id)
	// a container may define the same character twice
	for _, other := range d.elements {
		if other.Code == t.Code && d.ids[other] == id {
			d.byType[t.Code][id] = other
			break
		}
	}
}

// appendPos is the insertion point for new tags: before the trailing
// ShowFrame so additions stay inside the last frame.
func (d *Directory) appendPos() int {
	n := len(d.file.Tags)
	if n > 0 && d.file.Tags[n-1].Code == ShowFrame {
		return n - 1
	}
	return n
}

// reorder aligns the element list with the tag list.
func (d *Directory) reorder() {
	d.elements = d.elements[:0]
	for _, tag := range d.file.Tags {
		if _, ok := d.ids[tag]; ok {
			d.elements = append(d.elements, tag)
		}
	}
}
