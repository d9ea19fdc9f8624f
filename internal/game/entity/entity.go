// Package entity provides the reference target.Target: a positioned,
// team-affiliated combatant that owns one ability system and one effect ledger.
package entity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// Attributes routed to health bookkeeping instead of the stat map.
const (
	MaxHealth target.Attribute = "max_health"
	// Power scales outgoing damage and healing through PowerScaler.
	Power target.Attribute = "power"
)

// Untargetable hides a living entity from targeting while carried.
const Untargetable tag.Tag = "state.untargetable"

// buffEpsilon absorbs float drift when buff timers reach zero.
const buffEpsilon = 1e-6

// Spec describes one entity to spawn.
type Spec struct {
	ID        string                       `yaml:"id"`
	Team      string                       `yaml:"team"`
	Position  target.Vec2                  `yaml:"position"`
	Facing    target.Vec2                  `yaml:"facing"`
	Health    float64                      `yaml:"health"`
	Stats     map[target.Attribute]float64 `yaml:"stats"`
	Tags      []tag.Tag                    `yaml:"tags"`
	Resources []resource.Spec              `yaml:"resources"`
	Abilities []string                     `yaml:"abilities"`
}

// Validate checks the spec's own fields.
func (s Spec) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("entity: id must not be empty")
	case s.Health <= 0 || math.IsNaN(s.Health):
		return fmt.Errorf("entity %q: health must be > 0, got %g", s.ID, s.Health)
	}
	return nil
}

type activeBuff struct {
	buff      target.Buff
	applied   float64
	remaining float64
}

// Deps are the shared collaborators an entity is wired to.
type Deps struct {
	Env     ability.Env
	Effects *effect.Registry
	Config  effect.Config
	Logger  *zap.Logger
}

// Entity is safe for concurrent reads; mutation of its ability system and
// effect ledger must be serialised by the caller, one goroutine per entity.
type Entity struct {
	id   string
	team string

	mu        sync.RWMutex
	pos       target.Vec2
	facing    target.Vec2
	health    float64
	maxHealth float64
	stats     map[target.Attribute]float64
	buffs     map[string]*activeBuff
	statuses  map[string]int
	base      tag.Set

	abilities *ability.System
	effects   *effect.Engine
	logger    *zap.Logger
}

// New creates the entity described by spec with its own ability system and
// effect ledger. Abilities are not added; the caller resolves spec.Abilities.
//
// Postcondition: Returns an error if spec is invalid or its resources are.
func New(spec Spec, deps Deps) (*Entity, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	pools, err := resource.NewPools(spec.Resources)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", spec.ID, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Entity{
		id:        spec.ID,
		team:      spec.Team,
		pos:       spec.Position,
		facing:    spec.Facing,
		health:    spec.Health,
		maxHealth: spec.Health,
		stats:     make(map[target.Attribute]float64, len(spec.Stats)),
		buffs:     make(map[string]*activeBuff),
		statuses:  make(map[string]int),
		base:      tag.NewSet(spec.Tags...),
		logger:    logger.With(zap.String("entity", spec.ID)),
	}
	for k, v := range spec.Stats {
		e.stats[k] = v
	}
	e.abilities = ability.NewSystem(e, pools, deps.Env, logger)
	e.effects = effect.NewEngine(e, deps.Effects, deps.Config, logger)
	return e, nil
}

// Abilities returns the entity's ability system.
func (e *Entity) Abilities() *ability.System { return e.abilities }

// Effects returns the entity's effect ledger.
func (e *Entity) Effects() *effect.Engine { return e.effects }

// Team returns the team name used for friend-or-foe checks.
func (e *Entity) Team() string { return e.team }

// ID implements target.Target.
func (e *Entity) ID() string { return e.id }

// Position implements target.Target.
func (e *Entity) Position() target.Vec2 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pos
}

// Facing implements target.Facer.
func (e *Entity) Facing() target.Vec2 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.facing
}

// SetFacing turns the entity.
func (e *Entity) SetFacing(dir target.Vec2) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facing = dir
}

// MoveTo places the entity at p.
func (e *Entity) MoveTo(p target.Vec2) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = p
}

// IsAlive implements target.Target.
func (e *Entity) IsAlive() bool { return e.CurrentHealth() > 0 }

// IsTargetable implements target.Target.
func (e *Entity) IsTargetable() bool { return e.IsAlive() && !e.HasTag(Untargetable) }

// IsFriendlyTo implements target.Target. Entities are friendly to themselves
// and to entities sharing a non-empty team.
func (e *Entity) IsFriendlyTo(other target.Target) bool {
	if other == nil {
		return false
	}
	if other.ID() == e.id {
		return true
	}
	o, ok := other.(interface{ Team() string })
	return ok && e.team != "" && o.Team() == e.team
}

// HasTag implements tag.Carrier over the entity's own tags and the tags
// granted by its active effects and executing abilities.
func (e *Entity) HasTag(t tag.Tag) bool {
	e.mu.RLock()
	own := e.base.HasTag(t)
	e.mu.RUnlock()
	return own || e.effects.GrantedTags().HasTag(t) || e.abilities.GrantedTags().HasTag(t)
}

// Tags returns every tag the entity currently carries, sorted.
func (e *Entity) Tags() []tag.Tag {
	e.mu.RLock()
	all := tag.NewSet(e.base.Sorted()...)
	e.mu.RUnlock()
	for t := range e.effects.GrantedTags().Snapshot() {
		all.Add(t)
	}
	for t := range e.abilities.GrantedTags().Snapshot() {
		all.Add(t)
	}
	return all.Sorted()
}

// AddTag gives the entity a base tag.
func (e *Entity) AddTag(t tag.Tag) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base.Add(t)
}

// RemoveTag drops a base tag. Granted tags are unaffected.
func (e *Entity) RemoveTag(t tag.Tag) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base.Remove(t)
}

// CurrentHealth implements target.Target.
func (e *Entity) CurrentHealth() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.health
}

// MaxHealth implements target.Target.
func (e *Entity) MaxHealth() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxHealth
}

// Stat returns the current value of attr including buffs. Health and
// MaxHealth are served from health bookkeeping.
func (e *Entity) Stat(attr target.Attribute) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch attr {
	case target.Health:
		return e.health
	case MaxHealth:
		return e.maxHealth
	}
	return e.stats[attr]
}

// TakeDamage implements target.Target. Health floors at zero; damage to a
// dead entity is ignored.
func (e *Entity) TakeDamage(amount float64, source target.Target, kind target.DamageType) {
	e.damage(amount, source, kind)
}

// damage returns the health actually removed.
func (e *Entity) damage(amount float64, source target.Target, kind target.DamageType) float64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	e.mu.Lock()
	if e.health <= 0 {
		e.mu.Unlock()
		return 0
	}
	before := e.health
	e.health = math.Max(0, e.health-amount)
	left := e.health
	e.mu.Unlock()

	e.logger.Debug("damage taken",
		zap.String("source", idOf(source)),
		zap.String("kind", string(kind)),
		zap.Float64("amount", amount),
		zap.Float64("health", left),
	)
	if left == 0 {
		e.logger.Info("entity died", zap.String("killer", idOf(source)))
	}
	return before - left
}

// Heal implements target.Target. Health is capped at MaxHealth; the dead
// cannot be healed.
func (e *Entity) Heal(amount float64, source target.Target) {
	e.heal(amount, source)
}

// heal returns the health actually restored.
func (e *Entity) heal(amount float64, source target.Target) float64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	e.mu.Lock()
	if e.health <= 0 {
		e.mu.Unlock()
		return 0
	}
	before := e.health
	e.health = math.Min(e.maxHealth, e.health+amount)
	left := e.health
	e.mu.Unlock()
	e.logger.Debug("healed", zap.String("source", idOf(source)), zap.Float64("amount", amount), zap.Float64("health", left))
	return left - before
}

// ApplyBuff implements target.Target. Re-applying a buff id replaces the
// previous bonus and restarts its timer. A zero Duration lasts until RemoveBuff.
func (e *Entity) ApplyBuff(b target.Buff) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.buffs[b.ID]; ok {
		e.addStatLocked(old.buff.Attribute, -old.applied)
	}
	applied := e.addStatLocked(b.Attribute, b.Value)
	e.buffs[b.ID] = &activeBuff{buff: b, applied: applied, remaining: b.Duration}
}

// RemoveBuff implements target.Target. Unknown ids are ignored.
func (e *Entity) RemoveBuff(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeBuffLocked(id)
}

func (e *Entity) removeBuffLocked(id string) {
	b, ok := e.buffs[id]
	if !ok {
		return
	}
	delete(e.buffs, id)
	e.addStatLocked(b.buff.Attribute, -b.applied)
}

// Buffs returns the active buff ids, sorted.
func (e *Entity) Buffs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.buffs))
	for id := range e.buffs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ApplyStatusEffect implements target.Target by counting live instances of id.
func (e *Entity) ApplyStatusEffect(id string, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses[id]++
}

// RemoveStatusEffect implements target.Target.
func (e *Entity) RemoveStatusEffect(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.statuses[id] <= 1 {
		delete(e.statuses, id)
		return
	}
	e.statuses[id]--
}

// HasStatus reports whether at least one instance of status id is live.
func (e *Entity) HasStatus(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statuses[id] > 0
}

// ApplyKnockback implements target.Target by displacing the entity.
func (e *Entity) ApplyKnockback(force target.Vec2) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = e.pos.Add(force)
}

// ApplyStatDelta implements target.Target. Health deltas are routed through
// TakeDamage and Heal as true damage and sourceless healing. Returns the
// change after clamping.
func (e *Entity) ApplyStatDelta(attr target.Attribute, delta float64) float64 {
	if delta == 0 || math.IsNaN(delta) {
		return 0
	}
	if attr == target.Health {
		if delta < 0 {
			return -e.damage(-delta, nil, target.DamageTrue)
		}
		return e.heal(delta, nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addStatLocked(attr, delta)
}

// addStatLocked returns the change actually made to attr.
func (e *Entity) addStatLocked(attr target.Attribute, delta float64) float64 {
	switch attr {
	case target.Health:
		before := e.health
		e.health = math.Max(0, math.Min(e.maxHealth, e.health+delta))
		return e.health - before
	case MaxHealth:
		before := e.maxHealth
		e.maxHealth = math.Max(1, e.maxHealth+delta)
		e.health = math.Min(e.health, e.maxHealth)
		return e.maxHealth - before
	default:
		e.stats[attr] += delta
		return delta
	}
}

// TickAbilities advances the ability system by dt.
func (e *Entity) TickAbilities(dt float64) { e.abilities.Tick(dt) }

// TickEffects advances the effect ledger and buff timers by dt.
func (e *Entity) TickEffects(dt float64) {
	e.effects.Tick(dt)
	e.tickBuffs(dt)
}

// Tick advances abilities, then effects and buffs.
func (e *Entity) Tick(dt float64) {
	e.TickAbilities(dt)
	e.TickEffects(dt)
}

func (e *Entity) tickBuffs(dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, b := range e.buffs {
		if b.buff.Duration <= 0 {
			continue
		}
		b.remaining -= dt
		if b.remaining <= buffEpsilon {
			e.removeBuffLocked(id)
		}
	}
}

// PowerScaler returns an ability.Scaler multiplying amounts by
// 1 + Power/100 when the caster is an Entity.
func PowerScaler() ability.Scaler {
	return func(caster target.Target, _ *ability.Definition, amount float64) float64 {
		c, ok := caster.(*Entity)
		if !ok {
			return amount
		}
		return amount * math.Max(0, 1+c.Stat(Power)/100)
	}
}

func idOf(t target.Target) string {
	if t == nil {
		return ""
	}
	return t.ID()
}
