package ability

import "github.com/cory-johannsen/gas/internal/game/resource"

// EventKind enumerates ability system notifications.
type EventKind int

const (
	AbilityAdded EventKind = iota
	AbilityRemoved
	AbilityUsed
	AbilityCancelled
	ResourceChanged
	// AbilityCompleted fires when an execution runs its plan to the end.
	AbilityCompleted
	// AbilityFailed fires when an execution faults; costs are not refunded.
	AbilityFailed
)

// String returns the event label.
func (k EventKind) String() string {
	switch k {
	case AbilityAdded:
		return "AbilityAdded"
	case AbilityRemoved:
		return "AbilityRemoved"
	case AbilityUsed:
		return "AbilityUsed"
	case AbilityCancelled:
		return "AbilityCancelled"
	case ResourceChanged:
		return "ResourceChanged"
	case AbilityCompleted:
		return "AbilityCompleted"
	case AbilityFailed:
		return "AbilityFailed"
	default:
		return "Unknown"
	}
}

// Event is delivered to listeners after the state change it describes.
type Event struct {
	Kind      EventKind
	OwnerID   string
	AbilityID string
	// Resource and Value are set for ResourceChanged.
	Resource resource.Key
	Value    float64
	// Err is set for AbilityFailed.
	Err error
}

// Listener receives ability system events.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

type listeners struct {
	next    int
	entries []listenerEntry
}

func (l *listeners) add(fn Listener) func() {
	l.next++
	id := l.next
	l.entries = append(l.entries, listenerEntry{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners) emit(ev Event) {
	for _, e := range append([]listenerEntry(nil), l.entries...) {
		e.fn(ev)
	}
}

func (l *listeners) clear() { l.entries = nil }
