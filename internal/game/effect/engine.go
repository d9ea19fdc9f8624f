package effect

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// DefaultMaxChainDepth bounds chained-effect recursion when Config leaves it unset.
const DefaultMaxChainDepth = 8

// timeEpsilon absorbs float drift from accumulating frame deltas.
const timeEpsilon = 1e-6

// Config tunes an Engine.
type Config struct {
	// MaxChainDepth bounds nested chained applications. <= 0 uses DefaultMaxChainDepth.
	MaxChainDepth int
	// Scripts evaluates scripted curves and lifecycle hooks. nil disables both.
	Scripts ScriptHost
}

// Engine is the per-target ledger of ActiveEffects.
// It is not safe for concurrent use; the caller must serialise access.
type Engine struct {
	owner     target.Target
	defs      *Registry
	scripts   ScriptHost
	maxDepth  int
	logger    *zap.Logger
	active    []*ActiveEffect
	granted   *tag.Counter
	listeners listeners
}

// NewEngine creates an empty ledger for owner. defs resolves chained effect
// ids and ApplyByID; it may be nil.
//
// Precondition: owner must not be nil.
// Postcondition: Returns a non-nil Engine. A nil logger is replaced by zap.NewNop().
func NewEngine(owner target.Target, defs *Registry, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	depth := cfg.MaxChainDepth
	if depth <= 0 {
		depth = DefaultMaxChainDepth
	}
	return &Engine{
		owner:    owner,
		defs:     defs,
		scripts:  cfg.Scripts,
		maxDepth: depth,
		logger:   logger.With(zap.String("target", owner.ID())),
		granted:  tag.NewCounter(),
	}
}

// Owner returns the target this ledger belongs to.
func (e *Engine) Owner() target.Target { return e.owner }

// HasTag reports whether the owner carries t, either natively or granted by
// an active effect.
func (e *Engine) HasTag(t tag.Tag) bool {
	return e.granted.HasTag(t) || e.owner.HasTag(t)
}

// GrantedTags returns the ref-counted tags granted by active effects.
func (e *Engine) GrantedTags() *tag.Counter { return e.granted }

// Subscribe registers l for every engine event and returns its unsubscribe func.
func (e *Engine) Subscribe(l Listener) func() { return e.listeners.add(l) }

// Has reports whether at least one instance of effect id is active.
func (e *Engine) Has(id string) bool {
	for _, a := range e.active {
		if a.Def.ID == id {
			return true
		}
	}
	return false
}

// Stacks returns the stack count of effect id: the merged instance's count,
// or the number of independent instances. 0 if absent.
func (e *Engine) Stacks(id string) int {
	n := 0
	for _, a := range e.active {
		if a.Def.ID == id {
			n += a.StackCount
		}
	}
	return n
}

// Active returns the active instances in application order.
// The slice is a new allocation, but the pointed-to ActiveEffect values are
// shared; callers must not modify them.
func (e *Engine) Active() []*ActiveEffect {
	return append([]*ActiveEffect(nil), e.active...)
}

// Apply applies def from source at magnitude 1.
func (e *Engine) Apply(def *Definition, source target.Target) Outcome {
	return e.ApplyScaled(def, source, 1)
}

// ApplyScaled applies def from source at the given magnitude.
//
// Postcondition: Never panics; collaborator faults are reported as RejectedFault.
func (e *Engine) ApplyScaled(def *Definition, source target.Target, magnitude float64) Outcome {
	return e.apply(def, source, magnitude, 0)
}

// ApplyByID resolves id in the engine's registry and applies it.
func (e *Engine) ApplyByID(id string, source target.Target, magnitude float64) Outcome {
	def, ok := e.defs.Get(id)
	if !ok {
		e.logger.Debug("effect rejected", zap.String("effect", id), zap.Stringer("outcome", RejectedNotFound))
		return RejectedNotFound
	}
	return e.apply(def, source, magnitude, 0)
}

// Remove purges every instance of effect id, firing expiration chains.
//
// Postcondition: Has(id) is false unless a chained effect reapplied it.
func (e *Engine) Remove(id string) bool {
	found := false
	for _, a := range e.Active() {
		if a.Def.ID == id && !a.removed {
			e.guard("remove", id, func() { e.remove(a, RemovedPurged, 0) })
			found = true
		}
	}
	return found
}

// RemoveHandle purges the single instance with handle h.
func (e *Engine) RemoveHandle(h uuid.UUID) bool {
	for _, a := range e.active {
		if a.Handle == h {
			e.guard("remove", a.Def.ID, func() { e.remove(a, RemovedPurged, 0) })
			return true
		}
	}
	return false
}

// Tick advances every instance by dt seconds. Instances created during the
// tick (by chained effects) are first advanced on the next Tick.
//
// Precondition: dt >= 0; negative values are ignored.
func (e *Engine) Tick(dt float64) {
	if dt < 0 {
		return
	}
	for _, a := range e.Active() {
		if a.removed {
			continue
		}
		e.guard("tick", a.Def.ID, func() { e.tickOne(a, dt) })
	}
}

// guard recovers a collaborator panic so no fault escapes the engine.
func (e *Engine) guard(op, effectID string, fn func()) (faulted bool) {
	defer func() {
		if r := recover(); r != nil {
			faulted = true
			e.logger.Error("effect fault recovered",
				zap.String("op", op),
				zap.String("effect", effectID),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
	return false
}

func (e *Engine) reject(def *Definition, o Outcome) Outcome {
	e.logger.Debug("effect rejected", zap.String("effect", def.ID), zap.Stringer("outcome", o))
	e.listeners.emit(Event{Kind: EffectRejected, TargetID: e.owner.ID(), EffectID: def.ID, Outcome: o})
	return o
}

func (e *Engine) apply(def *Definition, source target.Target, magnitude float64, depth int) (out Outcome) {
	if def == nil {
		return RejectedNotFound
	}
	if depth > e.maxDepth {
		e.logger.Warn("chained effect depth exceeded",
			zap.String("effect", def.ID),
			zap.Int("depth", depth),
			zap.Int("max_depth", e.maxDepth),
		)
		return e.reject(def, RejectedChainDepth)
	}
	if tag.HasAny(e, def.ImmunityTags) {
		return e.reject(def, RejectedImmune)
	}
	if !sourcePasses(def, source) {
		return e.reject(def, RejectedSource)
	}
	if !def.ApplicationRequirement.IsEmpty() && !def.ApplicationRequirement.Met(e) {
		return e.reject(def, RejectedRequirement)
	}

	if e.guard("apply", def.ID, func() { out = e.place(def, source, magnitude, depth) }) {
		return RejectedFault
	}
	return out
}

func sourcePasses(def *Definition, source target.Target) bool {
	var c tag.Carrier = tag.Set{}
	if source != nil {
		c = source
	}
	return tag.HasAll(c, def.RequiredSourceTags) && !tag.HasAny(c, def.BlockedSourceTags)
}

// place resolves classification and stacking once every gate has passed.
func (e *Engine) place(def *Definition, source target.Target, magnitude float64, depth int) Outcome {
	if def.Kind == KindInstant {
		return e.execute(def, source, magnitude, depth)
	}

	if !def.IndependentStackDuration {
		for _, a := range e.active {
			if a.Def.ID == def.ID {
				return e.merge(a, source, magnitude, depth)
			}
		}
	} else {
		var same []*ActiveEffect
		for _, a := range e.active {
			if a.Def.ID == def.ID {
				same = append(same, a)
			}
		}
		for i := 0; len(same)-i >= def.StackCap(); i++ {
			e.remove(same[i], RemovedEvicted, depth)
		}
	}

	dur, err := e.duration(def, magnitude)
	if err != nil {
		e.logger.Warn("effect duration curve failed", zap.String("effect", def.ID), zap.Error(err))
		return e.reject(def, RejectedFault)
	}
	a := &ActiveEffect{
		Handle:            uuid.New(),
		Def:               def,
		Source:            source,
		Magnitude:         magnitude,
		StackCount:        1,
		RemainingDuration: dur,
		TimeToNextTick:    def.Period,
	}
	e.active = append(e.active, a)
	e.granted.Grant(def.GrantedTags)
	e.owner.ApplyStatusEffect(def.ID, dur)
	a.Suppressed = !def.OngoingRequirement.IsEmpty() && !def.OngoingRequirement.Met(e)
	if !a.Suppressed {
		e.hold(a)
	}

	e.logger.Debug("effect applied",
		zap.String("effect", def.ID),
		zap.Float64("duration", dur),
		zap.Float64("magnitude", magnitude),
	)
	e.listeners.emit(Event{Kind: EffectApplied, TargetID: e.owner.ID(), EffectID: def.ID, Handle: a.Handle, Stacks: 1, Outcome: OutcomeApplied})
	e.hook(def.LuaOnApply, def, lua.LNumber(1), lua.LNumber(magnitude))

	if def.Kind == KindPeriodic && def.ExecuteOnApplication && !a.Suppressed && !a.tickCapReached() {
		e.fire(a)
	}
	e.chain(def.OnApplication, source, magnitude, depth)
	return OutcomeApplied
}

// execute runs an instant effect: modifiers once, no ledger entry.
func (e *Engine) execute(def *Definition, source target.Target, magnitude float64, depth int) Outcome {
	e.applyDeltas(def, magnitude, 1)
	e.logger.Debug("effect executed", zap.String("effect", def.ID), zap.Float64("magnitude", magnitude))
	e.listeners.emit(Event{Kind: EffectApplied, TargetID: e.owner.ID(), EffectID: def.ID, Stacks: 1, Outcome: OutcomeExecuted})
	e.hook(def.LuaOnApply, def, lua.LNumber(1), lua.LNumber(magnitude))
	e.chain(def.OnApplication, source, magnitude, depth)
	return OutcomeExecuted
}

// merge resolves the stacking policy against an existing instance.
func (e *Engine) merge(a *ActiveEffect, source target.Target, magnitude float64, depth int) Outcome {
	def := a.Def
	policy := def.Policy()
	if policy == StackNone {
		return e.reject(def, RejectedStacking)
	}

	stacked := false
	refresh := policy == StackRefresh || policy == StackStackAndRefresh ||
		(policy == StackStack && def.RefreshDurationOnStack)
	if policy == StackStack || policy == StackStackAndRefresh {
		if a.StackCount < def.StackCap() {
			a.StackCount++
			stacked = true
		}
	}
	a.Source = source
	a.Magnitude = magnitude
	if refresh {
		dur, err := e.duration(def, magnitude)
		if err != nil {
			e.logger.Warn("effect duration curve failed", zap.String("effect", def.ID), zap.Error(err))
			return e.reject(def, RejectedFault)
		}
		a.RemainingDuration = dur
	}
	if !a.Suppressed {
		e.release(a)
		e.hold(a)
	}

	switch {
	case stacked:
		e.logger.Debug("effect stacked", zap.String("effect", def.ID), zap.Int("stacks", a.StackCount))
		e.listeners.emit(Event{Kind: EffectStacked, TargetID: e.owner.ID(), EffectID: def.ID, Handle: a.Handle, Stacks: a.StackCount, Outcome: OutcomeStacked})
		e.chain(def.OnStack, source, magnitude, depth)
		return OutcomeStacked
	case refresh:
		e.logger.Debug("effect refreshed", zap.String("effect", def.ID), zap.Float64("duration", a.RemainingDuration))
		e.listeners.emit(Event{Kind: EffectRefreshed, TargetID: e.owner.ID(), EffectID: def.ID, Handle: a.Handle, Stacks: a.StackCount, Outcome: OutcomeRefreshed})
		return OutcomeRefreshed
	default:
		return OutcomeAtMaxStacks
	}
}

func (e *Engine) duration(def *Definition, magnitude float64) (float64, error) {
	if def.Kind == KindInfinite {
		return math.Inf(1), nil
	}
	scale, err := def.DurationCurve.Evaluate(magnitude, e.scripts)
	if err != nil {
		return 0, err
	}
	if scale <= 0 {
		return 0, fmt.Errorf("duration curve yielded non-positive scale %g", scale)
	}
	return def.Duration * scale, nil
}

func (e *Engine) tickOne(a *ActiveEffect, dt float64) {
	def := a.Def

	if tag.HasAny(e, def.ImmunityTags) {
		e.remove(a, RemovedImmune, 0)
		return
	}
	if !def.RemovalRequirement.IsEmpty() && def.RemovalRequirement.Met(e) {
		e.remove(a, RemovedRequirement, 0)
		return
	}

	met := def.OngoingRequirement.IsEmpty() || def.OngoingRequirement.Met(e)
	if met == a.Suppressed {
		a.Suppressed = !met
		if a.Suppressed {
			e.release(a)
		} else {
			e.hold(a)
		}
		e.logger.Debug("effect suppression changed", zap.String("effect", def.ID), zap.Bool("suppressed", a.Suppressed))
	}

	if def.Kind == KindPeriodic {
		// A tick scheduled at offset ttn+dt into this frame only fires if it
		// lands no later than the instance's expiry.
		limit := a.RemainingDuration
		ttn := a.TimeToNextTick - dt
		for ttn <= timeEpsilon && !a.removed {
			if ttn+dt > limit+timeEpsilon || a.tickCapReached() {
				break
			}
			if !a.Suppressed {
				e.fire(a)
			}
			ttn += def.Period
		}
		a.TimeToNextTick = ttn
		if a.removed {
			return
		}
	}

	if !a.IsInfinite() {
		a.RemainingDuration -= dt
	}

	if def.Kind == KindPeriodic && a.tickCapReached() {
		e.remove(a, RemovedTickCap, 0)
		return
	}

	if !a.IsInfinite() && a.RemainingDuration <= timeEpsilon {
		if def.Kind == KindPeriodic && def.ExecuteOnExpiration && !a.Suppressed && !a.tickCapReached() {
			e.fire(a)
		}
		if !a.removed {
			e.remove(a, RemovedExpired, 0)
		}
	}
}

// fire executes one periodic payload.
func (e *Engine) fire(a *ActiveEffect) {
	e.applyDeltas(a.Def, a.Magnitude, a.StackCount)
	a.TicksFired++
	e.listeners.emit(Event{Kind: EffectTicked, TargetID: e.owner.ID(), EffectID: a.Def.ID, Handle: a.Handle, Stacks: a.StackCount, Ticks: a.TicksFired})
	e.hook(a.Def.LuaOnTick, a.Def, lua.LNumber(a.TicksFired), lua.LNumber(a.StackCount))
}

// applyDeltas executes every modifier once as a permanent delta.
func (e *Engine) applyDeltas(def *Definition, magnitude float64, stacks int) {
	for _, m := range def.Modifiers {
		v, err := m.Value(magnitude, stacks, e.scripts)
		if err != nil {
			e.logger.Warn("effect modifier failed", zap.String("effect", def.ID), zap.Error(err))
			continue
		}
		e.owner.ApplyStatDelta(m.Attribute, v)
	}
}

// hold applies held modifiers for duration and infinite instances.
func (e *Engine) hold(a *ActiveEffect) {
	if !a.Def.holdsModifiers() || a.held != nil {
		return
	}
	a.held = make([]float64, len(a.Def.Modifiers))
	for i, m := range a.Def.Modifiers {
		v, err := m.Value(a.Magnitude, a.StackCount, e.scripts)
		if err != nil {
			e.logger.Warn("effect modifier failed", zap.String("effect", a.Def.ID), zap.Error(err))
			continue
		}
		a.held[i] = e.owner.ApplyStatDelta(m.Attribute, v)
	}
}

// release reverts the change each held modifier actually made.
func (e *Engine) release(a *ActiveEffect) {
	if a.held == nil {
		return
	}
	for i, m := range a.Def.Modifiers {
		if a.held[i] != 0 {
			e.owner.ApplyStatDelta(m.Attribute, -a.held[i])
		}
	}
	a.held = nil
}

func (e *Engine) remove(a *ActiveEffect, reason RemovalReason, depth int) {
	if a.removed {
		return
	}
	a.removed = true
	for i, x := range e.active {
		if x == a {
			e.active = append(e.active[:i], e.active[i+1:]...)
			break
		}
	}
	e.release(a)
	e.granted.Release(a.Def.GrantedTags)
	e.owner.RemoveStatusEffect(a.Def.ID)

	e.logger.Debug("effect removed", zap.String("effect", a.Def.ID), zap.String("reason", string(reason)))
	e.listeners.emit(Event{Kind: EffectRemoved, TargetID: e.owner.ID(), EffectID: a.Def.ID, Handle: a.Handle, Stacks: a.StackCount, Ticks: a.TicksFired, Reason: reason})
	e.hook(a.Def.LuaOnRemove, a.Def, lua.LString(reason), lua.LNumber(a.StackCount))
	e.chain(a.Def.OnExpiration, a.Source, a.Magnitude, depth)
}

// chain applies each chained id to the owner one level deeper.
func (e *Engine) chain(ids []string, source target.Target, magnitude float64, depth int) {
	for _, id := range ids {
		def, ok := e.defs.Get(id)
		if !ok {
			e.logger.Warn("chained effect not found", zap.String("effect", id))
			continue
		}
		e.apply(def, source, magnitude, depth+1)
	}
}

// hook calls a lifecycle script with (target id, effect id, extra...).
// Failures are logged and otherwise ignored.
func (e *Engine) hook(name string, def *Definition, extra ...lua.LValue) {
	if name == "" || e.scripts == nil {
		return
	}
	args := append([]lua.LValue{lua.LString(e.owner.ID()), lua.LString(def.ID)}, extra...)
	if _, err := e.scripts.CallHook(name, args...); err != nil {
		e.logger.Debug("effect hook failed",
			zap.String("effect", def.ID),
			zap.String("hook", name),
			zap.Error(err),
		)
	}
}
