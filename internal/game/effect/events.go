package effect

import "github.com/google/uuid"

// Outcome reports what an application did.
type Outcome int

const (
	// OutcomeApplied created a new instance.
	OutcomeApplied Outcome = iota
	// OutcomeExecuted ran an instant effect; no instance exists afterwards.
	OutcomeExecuted
	// OutcomeStacked increased an existing instance's stack count.
	OutcomeStacked
	// OutcomeRefreshed reset an existing instance's duration without a stack change.
	OutcomeRefreshed
	// OutcomeAtMaxStacks merged into an instance already at its cap; nothing changed.
	OutcomeAtMaxStacks
	RejectedNotFound
	RejectedImmune
	RejectedSource
	RejectedRequirement
	RejectedStacking
	RejectedChainDepth
	// RejectedFault means a curve, hook or collaborator failed mid-application.
	RejectedFault
)

// Accepted reports whether the application took effect.
func (o Outcome) Accepted() bool {
	return o <= OutcomeAtMaxStacks
}

// String returns the outcome label used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeExecuted:
		return "executed"
	case OutcomeStacked:
		return "stacked"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeAtMaxStacks:
		return "at_max_stacks"
	case RejectedNotFound:
		return "not_found"
	case RejectedImmune:
		return "immune"
	case RejectedSource:
		return "source_gate"
	case RejectedRequirement:
		return "application_requirement"
	case RejectedStacking:
		return "stacking_none"
	case RejectedChainDepth:
		return "chain_depth"
	case RejectedFault:
		return "fault"
	default:
		return "unknown"
	}
}

// RemovalReason says why an instance left the ledger.
type RemovalReason string

const (
	RemovedExpired     RemovalReason = "expired"
	RemovedTickCap     RemovalReason = "tick_cap"
	RemovedPurged      RemovalReason = "purged"
	RemovedImmune      RemovalReason = "immune"
	RemovedRequirement RemovalReason = "removal_requirement"
	RemovedEvicted     RemovalReason = "evicted"
)

// EventKind enumerates engine notifications.
type EventKind int

const (
	EffectApplied EventKind = iota
	EffectStacked
	EffectRefreshed
	EffectTicked
	EffectRemoved
	EffectRejected
)

// String returns the event label.
func (k EventKind) String() string {
	switch k {
	case EffectApplied:
		return "EffectApplied"
	case EffectStacked:
		return "EffectStacked"
	case EffectRefreshed:
		return "EffectRefreshed"
	case EffectTicked:
		return "EffectTicked"
	case EffectRemoved:
		return "EffectRemoved"
	case EffectRejected:
		return "EffectRejected"
	default:
		return "Unknown"
	}
}

// Event is delivered to listeners after the state change it describes.
type Event struct {
	Kind     EventKind
	TargetID string
	EffectID string
	// Handle is uuid.Nil for instant effects and rejections.
	Handle  uuid.UUID
	Stacks  int
	Ticks   int
	Outcome Outcome
	Reason  RemovalReason
}

// Listener receives engine events.
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
