// Package ability implements the per-owner ability registry: the
// cooldown/resource gate, the ability state machine, and the targeting and
// execution pipeline that delivers ability payloads.
package ability

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
	"github.com/cory-johannsen/gas/internal/game/targeting"
)

// ErrInvalidDefinition is wrapped by every definition validation error.
var ErrInvalidDefinition = errors.New("invalid ability definition")

// Executor names shipped with the engine.
const (
	ExecDamage = "damage"
	ExecHeal   = "heal"
	ExecEffect = "effect"
	ExecBuff   = "buff"
)

// Definition is the immutable description of one ability, loaded from YAML.
type Definition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Cooldown float64 `yaml:"cooldown"`
	CastTime float64 `yaml:"cast_time"`
	PreDelay float64 `yaml:"pre_delay"`
	Duration float64 `yaml:"duration"`

	Costs     []resource.Cost  `yaml:"costs"`
	Targeting targeting.Params `yaml:"targeting"`
	Executor  string           `yaml:"executor"`
	// Relation overrides the executor's default target relationship:
	// "any", "hostile" or "friendly".
	Relation string `yaml:"relation"`

	Damage        float64           `yaml:"damage"`
	DamageType    target.DamageType `yaml:"damage_type"`
	Heal          float64           `yaml:"heal"`
	AllowOverheal bool              `yaml:"allow_overheal"`
	Knockback     float64           `yaml:"knockback"`

	BuffAttribute target.Attribute `yaml:"buff_attribute"`
	BuffValue     float64          `yaml:"buff_value"`

	// Effects are applied to every resolved target by the effect, damage and
	// heal executors.
	Effects   []string `yaml:"effects"`
	Magnitude float64  `yaml:"magnitude"` // 0 is treated as 1

	// Ticks repeats the payload; 0 is treated as 1.
	Ticks        int     `yaml:"ticks"`
	TickInterval float64 `yaml:"tick_interval"`

	// SingleInstance blocks TryUse while a previous use is still executing.
	SingleInstance bool `yaml:"single_instance"`

	GrantedTags  []tag.Tag `yaml:"granted_tags"`
	RequiredTags []tag.Tag `yaml:"required_tags"`
	BlockedTags  []tag.Tag `yaml:"blocked_tags"`
}

// TickCount returns Ticks, treating values below 1 as 1.
func (d *Definition) TickCount() int {
	if d.Ticks < 1 {
		return 1
	}
	return d.Ticks
}

// EffectMagnitude returns Magnitude, treating 0 as 1.
func (d *Definition) EffectMagnitude() float64 {
	if d.Magnitude == 0 {
		return 1
	}
	return d.Magnitude
}

// Catalog is what a definition is validated against at load time.
// nil fields accept anything.
type Catalog struct {
	Resources resource.Keys
	Tags      *tag.Registry
	Effects   interface{ Has(id string) bool }
	Executors map[string]Executor
}

// Validate checks d against the catalog.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidDefinition that
// names every violation.
func (d *Definition) Validate(cat Catalog) error {
	var errs []string
	if d.ID == "" {
		errs = append(errs, "id must not be empty")
	}
	for name, v := range map[string]float64{
		"cooldown": d.Cooldown, "cast_time": d.CastTime, "pre_delay": d.PreDelay,
		"duration": d.Duration, "tick_interval": d.TickInterval, "damage": d.Damage,
		"heal": d.Heal, "knockback": d.Knockback,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0, got %g", name, v))
		}
	}
	if d.Ticks < 0 {
		errs = append(errs, fmt.Sprintf("ticks must be >= 1, got %d", d.Ticks))
	}
	if d.TickCount() > 1 && d.TickInterval <= 0 {
		errs = append(errs, "tick_interval must be > 0 when ticks > 1")
	}
	if d.Executor == "" {
		errs = append(errs, "executor must not be empty")
	} else if cat.Executors != nil {
		if _, ok := cat.Executors[d.Executor]; !ok {
			errs = append(errs, fmt.Sprintf("unknown executor %q", d.Executor))
		}
	}
	if _, ok := relationOverride(d.Relation); d.Relation != "" && !ok {
		errs = append(errs, fmt.Sprintf("relation must be one of [any, hostile, friendly], got %q", d.Relation))
	}
	if d.Executor == ExecBuff && d.BuffAttribute == "" {
		errs = append(errs, "buff_attribute must not be empty for buff abilities")
	}
	if !d.DamageType.Valid() {
		errs = append(errs, fmt.Sprintf("damage_type must be one of [physical, magical, true], got %q", d.DamageType))
	}
	for i, c := range d.Costs {
		if c.Amount <= 0 {
			errs = append(errs, fmt.Sprintf("costs[%d].amount must be > 0, got %g", i, c.Amount))
		}
		if c.Resource == "" || !cat.Resources.Has(c.Resource) {
			errs = append(errs, fmt.Sprintf("costs[%d] references unknown resource %q", i, c.Resource))
		}
	}
	if err := d.Targeting.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if cat.Effects != nil {
		for _, id := range d.Effects {
			if !cat.Effects.Has(id) {
				errs = append(errs, fmt.Sprintf("effect %q is not defined", id))
			}
		}
	}
	var all []tag.Tag
	all = append(all, d.GrantedTags...)
	all = append(all, d.RequiredTags...)
	all = append(all, d.BlockedTags...)
	if err := cat.Tags.Validate(all...); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		sort.Strings(errs)
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

// Get returns the Definition for id, or (nil, false) if not found. A nil
// Registry holds nothing.
func (r *Registry) Get(id string) (*Definition, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.defs[id]
	return d, ok
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

// LoadDirectory reads every *.yaml file in dir, parses each as a Definition,
// and validates it against cat.
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to
// parse or any definition is invalid.
func LoadDirectory(dir string, cat Catalog) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading ability dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	var errs []error
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
		if err := def.Validate(cat); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if _, dup := reg.defs[def.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: %w %q: defined twice", path, ErrInvalidDefinition, def.ID))
			continue
		}
		reg.Register(&def)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}
