package processor

import "fmt"

// EventKind is the type of a progress event.
type EventKind int

const (
	OpenSwf EventKind = iota
	InstalledModifier
	UninstalledModifier
	InstalledFile
	UninstalledFile
	Done
)

var eventNames = [...]string{
	OpenSwf:             "open",
	InstalledModifier:   "install modifier",
	UninstalledModifier: "uninstall modifier",
	InstalledFile:       "install file",
	UninstalledFile:     "uninstall file",
	Done:                "done",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", k)
}

// Event reports progress. Name is the container for OpenSwf and modifier
// events and the game file name for file events. ModHash is set for
// modifier and file events. Work events are emitted before the work runs;
// Done follows each finished step.
type Event struct {
	Kind    EventKind
	Name    string
	ModHash string
}

func (e Event) String() string {
	switch {
	case e.Kind == Done:
		return e.Kind.String()
	case e.ModHash == "":
		return fmt.Sprintf("%s %s", e.Kind, e.Name)
	default:
		return fmt.Sprintf("%s %s (%s)", e.Kind, e.Name, e.ModHash)
	}
}
