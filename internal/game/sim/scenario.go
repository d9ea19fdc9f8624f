package sim

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/entity"
	"github.com/cory-johannsen/gas/internal/game/target"
)

// ErrInvalidScenario is wrapped by every scenario validation error.
var ErrInvalidScenario = errors.New("invalid scenario")

// Action is one scripted command, issued at the first frame starting at or
// after At seconds.
type Action struct {
	At    float64 `yaml:"at"`
	Actor string  `yaml:"actor"`
	// Ability is used, or cancelled when Cancel is set.
	Ability string       `yaml:"ability"`
	Cancel  bool         `yaml:"cancel"`
	Face    *target.Vec2 `yaml:"face"`
	MoveTo  *target.Vec2 `yaml:"move_to"`
}

// Scenario is a replayable encounter: who is present and what they do when.
type Scenario struct {
	Name string `yaml:"name"`
	// Duration in simulated seconds. 0 runs until cancelled in realtime mode.
	Duration float64       `yaml:"duration"`
	Entities []entity.Spec `yaml:"entities"`
	Actions  []Action      `yaml:"actions"`
}

// LoadScenario reads and validates the scenario at path against abilities.
func LoadScenario(path string, abilities *ability.Registry) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %q: %w", path, err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %q: %w", path, err)
	}
	if err := sc.Validate(abilities); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks entity and action references.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidScenario that
// names every violation.
func (s *Scenario) Validate(abilities *ability.Registry) error {
	var errs []string
	if s.Duration < 0 || math.IsNaN(s.Duration) {
		errs = append(errs, fmt.Sprintf("duration must be >= 0, got %g", s.Duration))
	}
	known := make(map[string]entity.Spec, len(s.Entities))
	for i, e := range s.Entities {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("entities[%d]: %v", i, err))
			continue
		}
		if _, dup := known[e.ID]; dup {
			errs = append(errs, fmt.Sprintf("entities[%d]: id %q repeated", i, e.ID))
			continue
		}
		for _, id := range e.Abilities {
			if _, ok := abilities.Get(id); !ok {
				errs = append(errs, fmt.Sprintf("entity %q: unknown ability %q", e.ID, id))
			}
		}
		known[e.ID] = e
	}
	for i, a := range s.Actions {
		if a.At < 0 {
			errs = append(errs, fmt.Sprintf("actions[%d].at must be >= 0, got %g", i, a.At))
		}
		spec, ok := known[a.Actor]
		if !ok {
			errs = append(errs, fmt.Sprintf("actions[%d]: unknown actor %q", i, a.Actor))
			continue
		}
		if a.Ability == "" && a.Face == nil && a.MoveTo == nil {
			errs = append(errs, fmt.Sprintf("actions[%d]: nothing to do", i))
		}
		if a.Cancel && a.Ability == "" {
			errs = append(errs, fmt.Sprintf("actions[%d]: cancel requires ability", i))
		}
		if a.Ability != "" && !contains(spec.Abilities, a.Ability) {
			errs = append(errs, fmt.Sprintf("actions[%d]: %q does not have ability %q", i, a.Actor, a.Ability))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidScenario, s.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Timeline returns the actions ordered by At, preserving file order for ties.
func (s *Scenario) Timeline() []Action {
	out := append([]Action(nil), s.Actions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
