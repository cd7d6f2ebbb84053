package modifier

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/goopsie/bmlmod/pkg/swf"
)

// Elements declares what a modifier patches in its container: element ids
// per type plus script names. It is known without opening the payload and
// drives backups, repairs and conflict checks.
type Elements struct {
	IDs     map[swf.Type][]uint16
	Scripts []string
}

// NewElements returns an empty declaration.
func NewElements() Elements {
	return Elements{IDs: make(map[swf.Type][]uint16)}
}

// Add declares (t, id) once.
func (e *Elements) Add(t swf.Type, id uint16) {
	if e.IDs == nil {
		e.IDs = make(map[swf.Type][]uint16)
	}
	if !slices.Contains(e.IDs[t], id) {
		e.IDs[t] = append(e.IDs[t], id)
	}
}

// AddScript declares a script once.
func (e *Elements) AddScript(name string) {
	if !slices.Contains(e.Scripts, name) {
		e.Scripts = append(e.Scripts, name)
	}
}

// Types returns the declared element types in tag code order.
func (e Elements) Types() []swf.Type {
	types := make([]swf.Type, 0, len(e.IDs))
	for t := range e.IDs {
		types = append(types, t)
	}
	swf.SortTypes(types)
	return types
}

// Len counts declared elements and scripts.
func (e Elements) Len() int {
	n := len(e.Scripts)
	for _, ids := range e.IDs {
		n += len(ids)
	}
	return n
}

// Matches reports whether both declarations touch the same element or
// script. Elements match by kind and id, so two shape variants at the same
// id collide.
func (e Elements) Matches(other Elements) bool {
	for t, ids := range e.IDs {
		for ot, oids := range other.IDs {
			if t.Kind() != ot.Kind() {
				continue
			}
			for _, id := range ids {
				if slices.Contains(oids, id) {
					return true
				}
			}
		}
	}
	for _, name := range e.Scripts {
		if slices.Contains(other.Scripts, name) {
			return true
		}
	}
	return false
}

// MarshalJSON writes {"DefineShape3Tag": [100], "ActionScriptTag": ["a_Foo"]}.
func (e Elements) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.IDs)+1)
	for t, ids := range e.IDs {
		m[t.String()] = ids
	}
	if len(e.Scripts) > 0 {
		m[swf.ActionScript.String()] = e.Scripts
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *Elements) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = NewElements()
	for name, v := range raw {
		t, err := swf.ParseType(name)
		if err != nil {
			return err
		}
		if t == swf.ActionScript {
			if err := json.Unmarshal(v, &e.Scripts); err != nil {
				return fmt.Errorf("scripts: %w", err)
			}
			continue
		}
		var ids []uint16
		if err := json.Unmarshal(v, &ids); err != nil {
			return fmt.Errorf("%s ids: %w", name, err)
		}
		e.IDs[t] = ids
	}
	return nil
}
