package ability

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/target"
	"github.com/cory-johannsen/gas/internal/game/targeting"
)

// Sink receives effect applications from ability payloads.
// *effect.Directory satisfies it.
type Sink interface {
	ApplyEffect(t target.Target, id string, source target.Target, magnitude float64) bool
}

// Scaler adjusts a raw payload amount using caster stats. A nil Scaler
// leaves amounts unchanged.
type Scaler func(caster target.Target, def *Definition, amount float64) float64

// Env carries the collaborators and tunables every execution shares.
type Env struct {
	Locator target.Locator
	Effects Sink
	Scaler  Scaler
	// BaseDamage and BaseHeal are used when a definition leaves its amount at 0.
	BaseDamage float64
	BaseHeal   float64
	// DefaultConeHalfAngle overrides targeting.DefaultConeHalfAngle when > 0.
	DefaultConeHalfAngle float64
}

// Cast is one in-flight use of an ability, handed to an Executor to plan.
type Cast struct {
	Def    *Definition
	Caster target.Target
	Env    Env
	Logger *zap.Logger
}

// Targets resolves the ability's shape from the caster's current position and
// facing, then filters the candidates.
func (c *Cast) Targets(rel targeting.Relation, rejectFullHealth bool) ([]target.Target, error) {
	q := targeting.Query{
		Caster:               c.Caster,
		Params:               c.Def.Targeting,
		Locator:              c.Env.Locator,
		DefaultConeHalfAngle: c.Env.DefaultConeHalfAngle,
	}
	if c.Caster != nil {
		q.Origin = c.Caster.Position()
		q.Facing = target.FacingOf(c.Caster)
	}
	candidates, err := targeting.Resolve(q)
	if err != nil {
		return nil, err
	}
	if r, ok := relationOverride(c.Def.Relation); ok {
		rel = r
	}
	opts := targeting.FilterOptions{
		Relation:         rel,
		AllowSelf:        c.Def.Targeting.EffectiveShape() == targeting.ShapeSelf || c.Def.Targeting.IncludeSelf,
		RejectFullHealth: rejectFullHealth,
	}
	return targeting.Filter(c.Caster, candidates, opts), nil
}

func relationOverride(s string) (targeting.Relation, bool) {
	switch s {
	case "hostile":
		return targeting.RelationHostile, true
	case "friendly":
		return targeting.RelationFriendly, true
	case "any":
		return targeting.RelationAny, true
	default:
		return targeting.RelationAny, false
	}
}

// applyEffects sends every configured effect id to t through the sink.
func (c *Cast) applyEffects(t target.Target) {
	if len(c.Def.Effects) == 0 {
		return
	}
	if c.Env.Effects == nil {
		c.Logger.Debug("ability has effects but no effect sink", zap.String("ability", c.Def.ID))
		return
	}
	for _, id := range c.Def.Effects {
		if !c.Env.Effects.ApplyEffect(t, id, c.Caster, c.Def.EffectMagnitude()) {
			c.Logger.Debug("effect not applied",
				zap.String("ability", c.Def.ID),
				zap.String("effect", id),
				zap.String("target", t.ID()),
			)
		}
	}
}

// Executor turns a cast into an ordered plan of waits and actions.
type Executor interface {
	Plan(c *Cast) []Step
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(c *Cast) []Step

// Plan implements Executor.
func (f ExecutorFunc) Plan(c *Cast) []Step { return f(c) }

// DefaultExecutors returns the shipped executors keyed by name.
func DefaultExecutors() map[string]Executor {
	return map[string]Executor{
		ExecDamage: ExecutorFunc(planDamage),
		ExecHeal:   ExecutorFunc(planHeal),
		ExecEffect: ExecutorFunc(planEffect),
		ExecBuff:   ExecutorFunc(planBuff),
	}
}

// timed wraps a repeated payload in the definition's timing: pre-delay, cast
// time, Ticks payloads separated by TickInterval, then the effect duration.
func timed(c *Cast, payload func(ctx context.Context) error) []Step {
	d := c.Def
	var steps []Step
	if d.PreDelay > 0 {
		steps = append(steps, WaitStep("pre_delay", d.PreDelay))
	}
	if d.CastTime > 0 {
		steps = append(steps, WaitStep("cast", d.CastTime))
	}
	for i := 0; i < d.TickCount(); i++ {
		if i > 0 {
			steps = append(steps, WaitStep("tick_interval", d.TickInterval))
		}
		steps = append(steps, ActionStep(fmt.Sprintf("payload[%d]", i), payload))
	}
	if d.Duration > 0 {
		steps = append(steps, WaitStep("duration", d.Duration))
	}
	return steps
}

func planDamage(c *Cast) []Step {
	return timed(c, func(context.Context) error {
		targets, err := c.Targets(targeting.RelationHostile, false)
		if err != nil {
			return err
		}
		amount := c.Def.Damage
		if amount <= 0 {
			amount = c.Env.BaseDamage
		}
		if c.Env.Scaler != nil {
			amount = c.Env.Scaler(c.Caster, c.Def, amount)
		}
		if math.IsNaN(amount) || amount < 0 {
			return fmt.Errorf("damage amount %g is invalid", amount)
		}
		kind := c.Def.DamageType
		if kind == "" {
			kind = target.DamagePhysical
		}
		for _, t := range targets {
			t.TakeDamage(amount, c.Caster, kind)
			if c.Def.Knockback > 0 {
				t.ApplyKnockback(knockbackVector(c.Caster, t, c.Def.Knockback))
			}
			c.applyEffects(t)
		}
		c.Logger.Debug("damage payload",
			zap.String("ability", c.Def.ID),
			zap.Float64("amount", amount),
			zap.Int("targets", len(targets)),
		)
		return nil
	})
}

// knockbackVector points from caster to t, falling back to the caster's
// facing when they overlap.
func knockbackVector(caster, t target.Target, force float64) target.Vec2 {
	if caster == nil {
		return target.Vec2{}
	}
	dir := t.Position().Sub(caster.Position()).Normalize()
	if dir.IsZero() {
		dir = target.FacingOf(caster)
	}
	return dir.Scale(force)
}

func planHeal(c *Cast) []Step {
	return timed(c, func(context.Context) error {
		targets, err := c.Targets(targeting.RelationFriendly, !c.Def.AllowOverheal)
		if err != nil {
			return err
		}
		base := c.Def.Heal
		if base <= 0 {
			base = c.Env.BaseHeal
		}
		if c.Env.Scaler != nil {
			base = c.Env.Scaler(c.Caster, c.Def, base)
		}
		for _, t := range targets {
			amount := base
			if !c.Def.AllowOverheal {
				amount = math.Min(amount, t.MaxHealth()-t.CurrentHealth())
			}
			if amount > 0 {
				t.Heal(amount, c.Caster)
			}
			c.applyEffects(t)
		}
		return nil
	})
}

func planEffect(c *Cast) []Step {
	return timed(c, func(context.Context) error {
		targets, err := c.Targets(targeting.RelationAny, false)
		if err != nil {
			return err
		}
		for _, t := range targets {
			c.applyEffects(t)
		}
		return nil
	})
}

// planBuff applies the buff to every target for Duration seconds, then
// removes it. A cancelled cast leaves the buff in place; Buff.Duration lets
// the target expire it.
func planBuff(c *Cast) []Step {
	d := c.Def
	var steps []Step
	if d.PreDelay > 0 {
		steps = append(steps, WaitStep("pre_delay", d.PreDelay))
	}
	if d.CastTime > 0 {
		steps = append(steps, WaitStep("cast", d.CastTime))
	}
	var buffed []target.Target
	buff := target.Buff{ID: d.ID, Attribute: d.BuffAttribute, Value: d.BuffValue, Duration: d.Duration}
	steps = append(steps, ActionStep("apply_buff", func(context.Context) error {
		targets, err := c.Targets(targeting.RelationFriendly, false)
		if err != nil {
			return err
		}
		for _, t := range targets {
			t.ApplyBuff(buff)
			c.applyEffects(t)
		}
		buffed = targets
		return nil
	}))
	if d.Duration > 0 {
		steps = append(steps,
			WaitStep("duration", d.Duration),
			ActionStep("remove_buff", func(context.Context) error {
				for _, t := range buffed {
					t.RemoveBuff(buff.ID)
				}
				return nil
			}),
		)
	}
	return steps
}
