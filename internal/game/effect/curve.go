package effect

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// ScriptHost evaluates scripted curves and runs effect lifecycle hooks.
// *scripting.Manager satisfies it.
type ScriptHost interface {
	CallNumber(hook string, args ...float64) (float64, error)
	CallHook(hook string, args ...lua.LValue) (lua.LValue, error)
}

// Keyframe is one (time, value) point of a Curve.
type Keyframe struct {
	Time  float64 `yaml:"time"`
	Value float64 `yaml:"value"`
}

// Curve maps a scale factor to a multiplier. Script, when set, names a Lua
// function taking the factor and returning the multiplier. Otherwise Keys is
// evaluated piecewise-linearly, clamped at both ends. A zero Curve evaluates
// to 1.
type Curve struct {
	Keys   []Keyframe `yaml:"keys"`
	Script string     `yaml:"script"`
}

// IsZero reports whether the curve has neither keys nor a script.
func (c Curve) IsZero() bool {
	return len(c.Keys) == 0 && c.Script == ""
}

// Validate checks keyframes are finite and sorted by strictly increasing time.
func (c Curve) Validate() error {
	if c.Script != "" && len(c.Keys) > 0 {
		return errors.New("keys and script are mutually exclusive")
	}
	for i, k := range c.Keys {
		if math.IsNaN(k.Time) || math.IsInf(k.Time, 0) || math.IsNaN(k.Value) || math.IsInf(k.Value, 0) {
			return fmt.Errorf("keys[%d] must be finite", i)
		}
		if i > 0 && k.Time <= c.Keys[i-1].Time {
			return fmt.Errorf("keys must be sorted by increasing time (keys[%d].time = %g)", i, k.Time)
		}
	}
	return nil
}

// Evaluate returns the curve's multiplier at x.
//
// Postcondition: Returns an error when a scripted curve has no host, fails,
// or yields a non-finite value.
func (c Curve) Evaluate(x float64, host ScriptHost) (float64, error) {
	if c.Script != "" {
		if host == nil {
			return 0, fmt.Errorf("curve script %q: no script host configured", c.Script)
		}
		v, err := host.CallNumber(c.Script, x)
		if err != nil {
			return 0, fmt.Errorf("curve script %q: %w", c.Script, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("curve script %q returned non-finite %g", c.Script, v)
		}
		return v, nil
	}
	return c.sample(x), nil
}

func (c Curve) sample(x float64) float64 {
	n := len(c.Keys)
	switch {
	case n == 0:
		return 1
	case x <= c.Keys[0].Time:
		return c.Keys[0].Value
	case x >= c.Keys[n-1].Time:
		return c.Keys[n-1].Value
	}
	for i := 1; i < n; i++ {
		hi := c.Keys[i]
		if x > hi.Time {
			continue
		}
		lo := c.Keys[i-1]
		t := (x - lo.Time) / (hi.Time - lo.Time)
		return lo.Value + t*(hi.Value-lo.Value)
	}
	return c.Keys[n-1].Value
}
