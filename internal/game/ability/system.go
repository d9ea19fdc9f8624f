package ability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// System owns one owner's Abilities and resource pools and arbitrates use.
// It is not safe for concurrent use; the caller must serialise access.
type System struct {
	owner     target.Target
	pools     *resource.Pools
	env       Env
	executors map[string]Executor
	abilities map[string]*Ability
	order     []string
	granted   *tag.Counter
	logger    *zap.Logger
	listeners listeners
}

// NewSystem creates a System for owner. owner may be nil for casters that
// are not themselves targetable; Self-shaped abilities then find no target.
//
// Precondition: pools must not be nil.
// Postcondition: Returns a non-nil System using DefaultExecutors. A nil
// logger is replaced by zap.NewNop().
func NewSystem(owner target.Target, pools *resource.Pools, env Env, logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	ownerID := ""
	if owner != nil {
		ownerID = owner.ID()
	}
	return &System{
		owner:     owner,
		pools:     pools,
		env:       env,
		executors: DefaultExecutors(),
		abilities: make(map[string]*Ability),
		granted:   tag.NewCounter(),
		logger:    logger.With(zap.String("owner", ownerID)),
	}
}

// RegisterExecutor adds or replaces an executor strategy.
func (s *System) RegisterExecutor(name string, ex Executor) {
	s.executors[name] = ex
}

// Executors returns the executor table, for load-time validation.
func (s *System) Executors() map[string]Executor { return s.executors }

// Owner returns the owning target, which may be nil.
func (s *System) Owner() target.Target { return s.owner }

func (s *System) ownerID() string {
	if s.owner == nil {
		return ""
	}
	return s.owner.ID()
}

// HasTag reports whether the owner carries t natively or through an
// executing ability's granted tags.
func (s *System) HasTag(t tag.Tag) bool {
	return s.granted.HasTag(t) || (s.owner != nil && s.owner.HasTag(t))
}

// GrantedTags returns the tags held by executing abilities.
func (s *System) GrantedTags() *tag.Counter { return s.granted }

// Subscribe registers l for every system event and returns its unsubscribe func.
func (s *System) Subscribe(l Listener) func() { return s.listeners.add(l) }

// SubscribeAbility registers l for events about ability id only. The
// listener is released when the ability is removed.
//
// Postcondition: Returns (nil, false) if id is unknown.
func (s *System) SubscribeAbility(id string, l Listener) (func(), bool) {
	a, ok := s.abilities[id]
	if !ok {
		return nil, false
	}
	return a.listeners.add(l), true
}

func (s *System) emit(a *Ability, ev Event) {
	ev.OwnerID = s.ownerID()
	s.listeners.emit(ev)
	if a != nil {
		a.listeners.emit(ev)
	}
}

// AddAbility registers def, replacing any ability sharing its id.
//
// Postcondition: Returns an error if def is nil, has no id, or names an
// unknown executor.
func (s *System) AddAbility(def *Definition) error {
	if def == nil || def.ID == "" {
		return errors.New("ability: definition must have an id")
	}
	if _, ok := s.executors[def.Executor]; !ok {
		return fmt.Errorf("ability %q: unknown executor %q", def.ID, def.Executor)
	}
	s.RemoveAbility(def.ID)
	a := &Ability{def: def}
	s.abilities[def.ID] = a
	s.order = append(s.order, def.ID)
	s.logger.Debug("ability added", zap.String("ability", def.ID))
	s.emit(a, Event{Kind: AbilityAdded, AbilityID: def.ID})
	return nil
}

// RemoveAbility cancels any in-flight execution, unregisters id and releases
// its listeners.
//
// Postcondition: Returns false if id is unknown.
func (s *System) RemoveAbility(id string) bool {
	a, ok := s.abilities[id]
	if !ok {
		return false
	}
	s.Cancel(id)
	delete(s.abilities, id)
	for i, x := range s.order {
		if x == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.logger.Debug("ability removed", zap.String("ability", id))
	s.emit(a, Event{Kind: AbilityRemoved, AbilityID: id})
	a.listeners.clear()
	return true
}

// HasAbility reports whether id is registered.
func (s *System) HasAbility(id string) bool {
	_, ok := s.abilities[id]
	return ok
}

// Ability returns the runtime ability for id.
func (s *System) Ability(id string) (*Ability, bool) {
	a, ok := s.abilities[id]
	return a, ok
}

// Abilities returns every registered ability in registration order.
func (s *System) Abilities() []*Ability {
	out := make([]*Ability, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.abilities[id])
	}
	return out
}

// CanUse reports whether id could be used right now. It has no side effects.
func (s *System) CanUse(id string) bool {
	return s.blocker(id) == ""
}

// blocker returns the reason id cannot be used, or "" if it can.
func (s *System) blocker(id string) string {
	a, ok := s.abilities[id]
	if !ok {
		return "not_found"
	}
	def := a.def
	switch {
	case a.cooldownRemaining > 0:
		return "on_cooldown"
	case !tag.HasAll(s, def.RequiredTags):
		return "missing_required_tag"
	case tag.HasAny(s, def.BlockedTags):
		return "blocked_tag"
	case !s.pools.CanAfford(def.Costs):
		return "insufficient_resource"
	case def.SingleInstance && a.IsExecuting():
		return "already_executing"
	}
	return ""
}

// TryUse re-validates CanUse, deducts every cost atomically, starts the
// cooldown and begins execution. Zero-delay payloads land before TryUse
// returns; the rest run as Tick advances time.
//
// Postcondition: Returns false with no state change when CanUse is false.
// Execution faults after commit are reported as AbilityFailed, never refunded.
func (s *System) TryUse(id string) bool {
	if reason := s.blocker(id); reason != "" {
		s.logger.Debug("ability use rejected", zap.String("ability", id), zap.String("reason", reason))
		return false
	}
	a := s.abilities[id]
	def := a.def

	changes, ok := s.pools.ConsumeAll(def.Costs)
	if !ok {
		s.logger.Debug("ability use rejected", zap.String("ability", id), zap.String("reason", "insufficient_resource"))
		return false
	}
	a.cooldownRemaining = def.Cooldown
	for _, c := range changes {
		s.emit(nil, Event{Kind: ResourceChanged, Resource: c.Key, Value: c.Value})
	}

	cast := &Cast{Def: def, Caster: s.owner, Env: s.env, Logger: s.logger}
	task := NewTask(context.Background(), s.plan(cast))
	a.tasks = append(a.tasks, task)
	s.granted.Grant(def.GrantedTags)

	s.logger.Debug("ability used", zap.String("ability", id), zap.String("task", task.ID.String()))
	s.emit(a, Event{Kind: AbilityUsed, AbilityID: id})
	s.advance(a, task, 0)
	return true
}

// plan asks the executor for steps, converting a planning panic into a
// single failing step.
func (s *System) plan(c *Cast) (steps []Step) {
	defer func() {
		if r := recover(); r != nil {
			steps = []Step{ActionStep("plan", func(context.Context) error {
				return fmt.Errorf("planning panicked: %v", r)
			})}
		}
	}()
	return s.executors[c.Def.Executor].Plan(c)
}

// advance runs task for dt and finalises it when it ends.
func (s *System) advance(a *Ability, task *Task, dt float64) {
	done, err := task.Advance(dt)
	if !done {
		return
	}
	if !a.dropTask(task) {
		return
	}
	s.granted.Release(a.def.GrantedTags)
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("ability cancelled", zap.String("ability", a.def.ID))
		s.emit(a, Event{Kind: AbilityCancelled, AbilityID: a.def.ID})
	case err != nil:
		s.logger.Warn("ability execution failed", zap.String("ability", a.def.ID), zap.Error(err))
		s.emit(a, Event{Kind: AbilityFailed, AbilityID: a.def.ID, Err: err})
	default:
		s.emit(a, Event{Kind: AbilityCompleted, AbilityID: a.def.ID})
	}
}

// Cancel stops every in-flight execution of id at its next suspension point.
// Already-applied payloads remain; costs are not refunded.
//
// Postcondition: Returns false if id is unknown or not executing.
func (s *System) Cancel(id string) bool {
	a, ok := s.abilities[id]
	if !ok || !a.IsExecuting() {
		return false
	}
	for _, task := range append([]*Task(nil), a.tasks...) {
		task.Cancel()
		if !task.Running() {
			// Suspended between frames: the suspension point is now.
			s.advance(a, task, 0)
		}
	}
	return true
}

// CancelAll cancels every executing ability.
func (s *System) CancelAll() {
	for _, id := range append([]string(nil), s.order...) {
		s.Cancel(id)
	}
}

// Tick advances the system by dt seconds: cooldowns first, then resource
// regeneration, then in-flight executions.
//
// Precondition: dt >= 0; negative values are ignored.
func (s *System) Tick(dt float64) {
	if dt < 0 {
		return
	}
	for _, id := range s.order {
		a := s.abilities[id]
		a.cooldownRemaining -= dt
		if a.cooldownRemaining < cooldownEpsilon {
			a.cooldownRemaining = 0
		}
	}
	for _, c := range s.pools.Regen(dt) {
		s.emit(nil, Event{Kind: ResourceChanged, Resource: c.Key, Value: c.Value})
	}
	for _, id := range append([]string(nil), s.order...) {
		a, ok := s.abilities[id]
		if !ok {
			continue
		}
		for _, task := range append([]*Task(nil), a.tasks...) {
			s.advance(a, task, dt)
		}
	}
}

// cooldownEpsilon absorbs float drift so a cooldown ticked for exactly its
// length reaches zero.
const cooldownEpsilon = 1e-6

// GetResource returns the current value of key.
func (s *System) GetResource(key resource.Key) (float64, bool) {
	p, ok := s.pools.Get(key)
	return p.Current, ok
}

// ResourceKeys returns the owner's resource keys, sorted.
func (s *System) ResourceKeys() []resource.Key { return s.pools.Keys() }

// SetResource assigns key, clamped to [0, max].
func (s *System) SetResource(key resource.Key, value float64) bool {
	return s.resourceOp(s.pools.Set(key, value))
}

// ConsumeResource subtracts amount if affordable.
func (s *System) ConsumeResource(key resource.Key, amount float64) bool {
	return s.resourceOp(s.pools.Consume(key, amount))
}

// RestoreResource adds amount, capped at max.
func (s *System) RestoreResource(key resource.Key, amount float64) bool {
	return s.resourceOp(s.pools.Restore(key, amount))
}

// SetMaxResource assigns the maximum of key, clamping the current value.
func (s *System) SetMaxResource(key resource.Key, max float64) bool {
	return s.resourceOp(s.pools.SetMax(key, max))
}

func (s *System) resourceOp(c resource.Change, ok bool) bool {
	if !ok {
		return false
	}
	s.emit(nil, Event{Kind: ResourceChanged, Resource: c.Key, Value: c.Value})
	return true
}
