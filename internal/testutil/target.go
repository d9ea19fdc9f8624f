// Package testutil provides test doubles shared by engine package tests.
package testutil

import (
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// DamageCall records one TakeDamage invocation.
type DamageCall struct {
	Amount float64
	Source string
	Kind   target.DamageType
}

// HealCall records one Heal invocation.
type HealCall struct {
	Amount float64
	Source string
}

// DeltaCall records one ApplyStatDelta invocation.
type DeltaCall struct {
	Attribute target.Attribute
	Delta     float64
}

// Target is a recording target.Target fake. Every call the engine makes is
// appended to the matching slice so tests can assert exact call sequences.
// Health is tracked in HP and floored at zero; Heal does not clamp so tests
// can observe the amount the engine chose.
type Target struct {
	Name         string
	Team         string
	Pos          target.Vec2
	Face         target.Vec2
	HP           float64
	MaxHP        float64
	Untargetable bool
	Tags         tag.Set
	Stats        map[target.Attribute]float64

	// PanicOnDamage makes TakeDamage panic, simulating a faulty collaborator.
	PanicOnDamage bool

	Damage        []DamageCall
	Heals         []HealCall
	Deltas        []DeltaCall
	Buffs         map[string]target.Buff
	StatusApplied []string
	StatusRemoved []string
	Knockbacks    []target.Vec2
}

// NewTarget returns a living fake at full health on team.
func NewTarget(name, team string, hp float64) *Target {
	return &Target{
		Name:  name,
		Team:  team,
		HP:    hp,
		MaxHP: hp,
		Tags:  tag.NewSet(),
		Stats: make(map[target.Attribute]float64),
		Buffs: make(map[string]target.Buff),
	}
}

// At sets the position and returns t for chaining.
func (t *Target) At(x, y float64) *Target {
	t.Pos = target.Vec2{X: x, Y: y}
	return t
}

// Facing implements target.Facer.
func (t *Target) Facing() target.Vec2 { return t.Face }

func (t *Target) HasTag(tg tag.Tag) bool { return t.Tags.HasTag(tg) }
func (t *Target) ID() string { return t.Name }
func (t *Target) Position() target.Vec2 { return t.Pos }
func (t *Target) IsAlive() bool { return t.HP > 0 }
func (t *Target) IsTargetable() bool { return !t.Untargetable }
func (t *Target) CurrentHealth() float64 { return t.HP }
func (t *Target) MaxHealth() float64 { return t.MaxHP }
func (t *Target) RemoveBuff(id string) { delete(t.Buffs, id) }
func (t *Target) ApplyBuff(b target.Buff) { t.Buffs[b.ID] = b }
func (t *Target) ApplyKnockback(f target.Vec2) { t.Knockbacks = append(t.Knockbacks, f) }
func (t *Target) RemoveStatusEffect(id string) { t.StatusRemoved = append(t.StatusRemoved, id) }

// IsFriendlyTo reports whether other is a fake on the same team.
func (t *Target) IsFriendlyTo(other target.Target) bool {
	o, ok := other.(*Target)
	return ok && o.Team == t.Team
}

// TakeDamage records the call and reduces HP, flooring at zero.
func (t *Target) TakeDamage(amount float64, source target.Target, kind target.DamageType) {
	if t.PanicOnDamage {
		panic("testutil: TakeDamage fault")
	}
	t.Damage = append(t.Damage, DamageCall{Amount: amount, Source: idOf(source), Kind: kind})
	t.HP -= amount
	if t.HP < 0 {
		t.HP = 0
	}
}

// Heal records the call and adds amount to HP without clamping.
func (t *Target) Heal(amount float64, source target.Target) {
	t.Heals = append(t.Heals, HealCall{Amount: amount, Source: idOf(source)})
	t.HP += amount
}

// ApplyStatusEffect records the effect id.
func (t *Target) ApplyStatusEffect(id string, _ float64) {
	t.StatusApplied = append(t.StatusApplied, id)
}

// ApplyStatDelta records the call and accumulates Stats[attr]. Every delta
// is applied in full.
func (t *Target) ApplyStatDelta(attr target.Attribute, delta float64) float64 {
	t.Deltas = append(t.Deltas, DeltaCall{Attribute: attr, Delta: delta})
	t.Stats[attr] += delta
	return delta
}

// DeltasFor returns the recorded deltas for attr in call order.
func (t *Target) DeltasFor(attr target.Attribute) []float64 {
	var out []float64
	for _, d := range t.Deltas {
		if d.Attribute == attr {
			out = append(out, d.Delta)
		}
	}
	return out
}

func idOf(t target.Target) string {
	if t == nil {
		return ""
	}
	return t.ID()
}

// Locator is a brute-force target.Locator over a fixed slice.
type Locator []target.Target

// QueryRadius implements target.Locator.
func (l Locator) QueryRadius(center target.Vec2, radius float64) []target.Target {
	var out []target.Target
	for _, t := range l {
		if t.Position().Sub(center).LenSq() <= radius*radius {
			out = append(out, t)
		}
	}
	return out
}
