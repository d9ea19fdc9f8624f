// Package target defines the contract an arbitrary game entity must expose to
// be affected by abilities and effects, plus the small geometry vocabulary
// shared by targeting and spatial queries.
package target

import (
	"github.com/cory-johannsen/gas/internal/game/tag"
)

// DamageType classifies incoming damage.
type DamageType string

const (
	DamagePhysical DamageType = "physical"
	DamageMagical  DamageType = "magical"
	DamageTrue     DamageType = "true"
)

// Valid reports whether d is a known damage type. The empty value is valid
// and is treated as physical.
func (d DamageType) Valid() bool {
	switch d {
	case "", DamagePhysical, DamageMagical, DamageTrue:
		return true
	default:
		return false
	}
}

// Attribute names a numeric stat an effect modifier can change.
type Attribute string

// Health is the attribute implementations route to TakeDamage/Heal semantics.
const Health Attribute = "health"

// Buff is a timed stat change applied through Target.ApplyBuff.
type Buff struct {
	ID        string
	Attribute Attribute
	Value     float64
	Duration  float64
}

// Target is the capability an entity implements to be a valid ability or
// effect target. The engine calls it; it never depends on how a concrete
// entity implements it.
type Target interface {
	tag.Carrier

	ID() string
	Position() Vec2
	IsAlive() bool
	IsTargetable() bool
	IsFriendlyTo(other Target) bool
	CurrentHealth() float64
	MaxHealth() float64

	TakeDamage(amount float64, source Target, kind DamageType)
	Heal(amount float64, source Target)
	ApplyBuff(b Buff)
	RemoveBuff(id string)
	ApplyStatusEffect(id string, duration float64)
	RemoveStatusEffect(id string)
	ApplyKnockback(force Vec2)
	// ApplyStatDelta adds delta to attr and returns the change actually
	// made, which differs from delta when the target clamps. It is the only
	// path by which the engine mutates a target's stats.
	ApplyStatDelta(attr Attribute, delta float64) float64
}

// Facer is optionally implemented by casters that have a facing direction.
type Facer interface {
	Facing() Vec2
}

// Locator is the spatial query provider: it returns every target within
// radius of center, in no particular order.
type Locator interface {
	QueryRadius(center Vec2, radius float64) []Target
}

// FacingOf returns t's facing when it implements Facer, otherwise +X.
func FacingOf(t Target) Vec2 {
	if f, ok := t.(Facer); ok {
		if d := f.Facing(); !d.IsZero() {
			return d.Normalize()
		}
	}
	return Vec2{X: 1}
}
