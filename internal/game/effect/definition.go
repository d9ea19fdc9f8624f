// Package effect implements the per-target status-effect runtime: data-driven
// effect definitions and the engine that applies, stacks, ticks and expires
// them.
package effect

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// ErrInvalidDefinition is wrapped by every definition validation error.
var ErrInvalidDefinition = errors.New("invalid effect definition")

// Kind classifies how an effect lives on its target.
type Kind string

const (
	KindInstant  Kind = "instant"
	KindDuration Kind = "duration"
	KindPeriodic Kind = "periodic"
	KindInfinite Kind = "infinite"
)

// Stacking is the policy applied when an effect is reapplied to a target
// that already holds it.
type Stacking string

const (
	StackNone            Stacking = "none"
	StackRefresh         Stacking = "refresh"
	StackStack           Stacking = "stack"
	StackStackAndRefresh Stacking = "stack_and_refresh"
)

// Modifier is one attribute delta within an effect.
type Modifier struct {
	Attribute          target.Attribute `yaml:"attribute"`
	BaseValue          float64          `yaml:"base_value"`
	UseCurve           bool             `yaml:"use_curve"`
	Curve              Curve            `yaml:"curve"`
	ScaleWithStack     bool             `yaml:"scale_with_stack"`
	StackScalingFactor float64          `yaml:"stack_scaling_factor"`
}

// Value computes the modifier magnitude:
// base * magnitude, times curve(magnitude) when UseCurve, times
// 1 + factor*(stacks-1) when ScaleWithStack.
//
// Postcondition: Returns an error only when the curve cannot be evaluated.
func (m Modifier) Value(magnitude float64, stacks int, host ScriptHost) (float64, error) {
	v := m.BaseValue * magnitude
	if m.UseCurve {
		c, err := m.Curve.Evaluate(magnitude, host)
		if err != nil {
			return 0, fmt.Errorf("modifier %q: %w", m.Attribute, err)
		}
		v *= c
	}
	if m.ScaleWithStack {
		v *= 1 + m.StackScalingFactor*float64(stacks-1)
	}
	return v, nil
}

// Definition is the immutable description of one status effect, loaded from YAML.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Kind        Kind   `yaml:"kind"`

	Duration      float64 `yaml:"duration"`
	DurationCurve Curve   `yaml:"duration_curve"`

	Period               float64 `yaml:"period"`
	ExecuteOnApplication bool    `yaml:"execute_on_application"`
	ExecuteOnExpiration  bool    `yaml:"execute_on_expiration"`
	// MaxPeriodicTicks caps ticks when set and >= 0. nil or negative = unlimited.
	MaxPeriodicTicks *int `yaml:"max_periodic_ticks"`

	MaxStacks                int      `yaml:"max_stacks"` // 0 is treated as 1
	Stacking                 Stacking `yaml:"stacking"`   // "" is treated as none
	RefreshDurationOnStack   bool     `yaml:"refresh_duration_on_stack"`
	IndependentStackDuration bool     `yaml:"independent_stack_duration"`

	Modifiers []Modifier `yaml:"modifiers"`

	ApplicationRequirement tag.Requirement `yaml:"application_requirement"`
	OngoingRequirement     tag.Requirement `yaml:"ongoing_requirement"`
	RemovalRequirement     tag.Requirement `yaml:"removal_requirement"`
	RequiredSourceTags     []tag.Tag       `yaml:"required_source_tags"`
	BlockedSourceTags      []tag.Tag       `yaml:"blocked_source_tags"`
	ImmunityTags           []tag.Tag       `yaml:"immunity_tags"`
	GrantedTags            []tag.Tag       `yaml:"granted_tags"`

	OnApplication []string `yaml:"on_application"`
	OnExpiration  []string `yaml:"on_expiration"`
	OnStack       []string `yaml:"on_stack"`

	LuaOnApply  string `yaml:"lua_on_apply"`
	LuaOnTick   string `yaml:"lua_on_tick"`
	LuaOnRemove string `yaml:"lua_on_remove"`
}

// StackCap returns MaxStacks, treating values below 1 as 1.
func (d *Definition) StackCap() int {
	if d.MaxStacks < 1 {
		return 1
	}
	return d.MaxStacks
}

// TickCap returns the periodic tick cap, or -1 when unlimited.
func (d *Definition) TickCap() int {
	if d.MaxPeriodicTicks == nil || *d.MaxPeriodicTicks < 0 {
		return -1
	}
	return *d.MaxPeriodicTicks
}

// Policy returns Stacking, treating the empty value as StackNone.
func (d *Definition) Policy() Stacking {
	if d.Stacking == "" {
		return StackNone
	}
	return d.Stacking
}

// holdsModifiers reports whether modifiers stay applied for the life of an
// instance rather than being executed as one-shot deltas.
func (d *Definition) holdsModifiers() bool {
	return d.Kind == KindDuration || d.Kind == KindInfinite
}

func (d *Definition) allTags() []tag.Tag {
	var out []tag.Tag
	out = append(out, d.ApplicationRequirement.Tags()...)
	out = append(out, d.OngoingRequirement.Tags()...)
	out = append(out, d.RemovalRequirement.Tags()...)
	out = append(out, d.RequiredSourceTags...)
	out = append(out, d.BlockedSourceTags...)
	out = append(out, d.ImmunityTags...)
	return append(out, d.GrantedTags...)
}

// ScriptHooks returns every Lua function name d refers to, in field order.
func (d *Definition) ScriptHooks() []string {
	var out []string
	if d.DurationCurve.Script != "" {
		out = append(out, d.DurationCurve.Script)
	}
	for _, m := range d.Modifiers {
		if m.Curve.Script != "" {
			out = append(out, m.Curve.Script)
		}
	}
	for _, h := range []string{d.LuaOnApply, d.LuaOnTick, d.LuaOnRemove} {
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Validate checks d in isolation against the declared tags.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidDefinition that
// names every violation.
func (d *Definition) Validate(tags *tag.Registry) error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	switch d.Kind {
	case KindInstant, KindInfinite:
	case KindDuration:
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("duration must be > 0 for %s effects, got %g", d.Kind, d.Duration))
		}
	case KindPeriodic:
		if d.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("duration must be > 0 for %s effects, got %g", d.Kind, d.Duration))
		}
		if d.Period <= 0 {
			errs = append(errs, fmt.Sprintf("period must be > 0 for periodic effects, got %g", d.Period))
		}
	default:
		errs = append(errs, fmt.Sprintf("kind must be one of [instant, duration, periodic, infinite], got %q", d.Kind))
	}
	if d.Duration < 0 {
		errs = append(errs, fmt.Sprintf("duration must be >= 0, got %g", d.Duration))
	}
	if d.Period < 0 {
		errs = append(errs, fmt.Sprintf("period must be >= 0, got %g", d.Period))
	}
	switch d.Stacking {
	case "", StackNone, StackRefresh, StackStack, StackStackAndRefresh:
	default:
		errs = append(errs, fmt.Sprintf("stacking must be one of [none, refresh, stack, stack_and_refresh], got %q", d.Stacking))
	}
	if d.MaxStacks < 0 {
		errs = append(errs, fmt.Sprintf("max_stacks must be >= 1, got %d", d.MaxStacks))
	}
	if err := d.DurationCurve.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("duration_curve: %v", err))
	}
	for i, k := range d.DurationCurve.Keys {
		if k.Value <= 0 {
			errs = append(errs, fmt.Sprintf("duration_curve.keys[%d].value must be > 0, got %g", i, k.Value))
		}
	}
	for i, m := range d.Modifiers {
		if m.Attribute == "" {
			errs = append(errs, fmt.Sprintf("modifiers[%d].attribute must not be empty", i))
		}
		if err := m.Curve.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("modifiers[%d].curve: %v", i, err))
		}
	}
	if err := tags.Validate(d.allTags()...); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidDefinition, d.ID, strings.Join(errs, "; "))
	}
	return nil
}

// Registry holds all known Definitions keyed by ID.
type Registry struct {
	defs map[string]*Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *Definition) {
	r.defs[def.ID] = def
}

// Get returns the Definition for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Definition, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.defs[id]
	return d, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns every registered Definition sorted by ID.
func (r *Registry) All() []*Definition {
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks every definition and that every chained effect id resolves.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidDefinition.
func (r *Registry) Validate(tags *tag.Registry) error {
	var errs []error
	for _, d := range r.All() {
		if err := d.Validate(tags); err != nil {
			errs = append(errs, err)
		}
		for _, chain := range [][]string{d.OnApplication, d.OnExpiration, d.OnStack} {
			for _, id := range chain {
				if _, ok := r.defs[id]; !ok {
					errs = append(errs, fmt.Errorf("%w %q: chained effect %q is not defined", ErrInvalidDefinition, d.ID, id))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// LoadDirectory reads every *.yaml file in dir, parses each as a Definition,
// and returns a validated Registry.
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to
// parse or any definition is invalid.
func LoadDirectory(dir string, tags *tag.Registry) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Definition
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if _, dup := reg.defs[def.ID]; dup && def.ID != "" {
			return nil, fmt.Errorf("%w %q: defined twice (second in %q)", ErrInvalidDefinition, def.ID, path)
		}
		reg.Register(&def)
	}
	if err := reg.Validate(tags); err != nil {
		return nil, err
	}
	return reg, nil
}
