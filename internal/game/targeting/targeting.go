// Package targeting resolves the concrete target set for an ability's shape
// and filters it down to valid candidates.
package targeting

import (
	"fmt"
	"math"
	"strings"

	"github.com/cory-johannsen/gas/internal/game/target"
)

// Shape is the geometry an ability sweeps to find targets.
type Shape string

const (
	ShapeSelf Shape = "self"
	ShapeArea Shape = "area"
	ShapeCone Shape = "cone"
	ShapeLine Shape = "line"
)

// DefaultConeHalfAngle is used when a cone does not declare a half-angle:
// 45 degrees either side of the facing, 90 degrees total.
const DefaultConeHalfAngle = 45.0

// DefaultLineWidth is used when a line does not declare a width.
const DefaultLineWidth = 1.0

// Params describes an ability's targeting geometry.
type Params struct {
	Shape         Shape   `yaml:"shape"`
	Range         float64 `yaml:"range"`
	Radius        float64 `yaml:"radius"`
	ConeHalfAngle float64 `yaml:"cone_half_angle"`
	Width         float64 `yaml:"width"`
	// IncludeSelf admits the caster in non-self shapes (e.g. a heal nova).
	IncludeSelf bool `yaml:"include_self"`
}

// Validate checks the geometry is well-formed.
//
// Postcondition: Returns nil or an error describing every violation.
func (p Params) Validate() error {
	var errs []string
	switch p.Shape {
	case "", ShapeSelf, ShapeArea, ShapeCone, ShapeLine:
	default:
		errs = append(errs, fmt.Sprintf("targeting.shape must be one of [self, area, cone, line], got %q", p.Shape))
	}
	if p.Range < 0 {
		errs = append(errs, fmt.Sprintf("targeting.range must be >= 0, got %g", p.Range))
	}
	if p.Radius < 0 {
		errs = append(errs, fmt.Sprintf("targeting.radius must be >= 0, got %g", p.Radius))
	}
	if p.ConeHalfAngle < 0 || p.ConeHalfAngle > 180 {
		errs = append(errs, fmt.Sprintf("targeting.cone_half_angle must be in [0, 180], got %g", p.ConeHalfAngle))
	}
	if p.Width < 0 {
		errs = append(errs, fmt.Sprintf("targeting.width must be >= 0, got %g", p.Width))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// EffectiveShape returns Shape, treating the empty value as ShapeSelf.
func (p Params) EffectiveShape() Shape {
	if p.Shape == "" {
		return ShapeSelf
	}
	return p.Shape
}

// HalfAngle returns the cone half-angle in degrees, applying fallback when unset.
func (p Params) HalfAngle(fallback float64) float64 {
	if p.ConeHalfAngle > 0 {
		return p.ConeHalfAngle
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultConeHalfAngle
}

// AreaRadius returns Radius when set, otherwise Range.
func (p Params) AreaRadius() float64 {
	if p.Radius > 0 {
		return p.Radius
	}
	return p.Range
}

// LineWidth returns Width when set, otherwise DefaultLineWidth.
func (p Params) LineWidth() float64 {
	if p.Width > 0 {
		return p.Width
	}
	return DefaultLineWidth
}

// Query carries everything Resolve needs about one cast.
type Query struct {
	Caster  target.Target
	Origin  target.Vec2
	Facing  target.Vec2
	Params  Params
	Locator target.Locator
	// DefaultConeHalfAngle overrides DefaultConeHalfAngle when > 0.
	DefaultConeHalfAngle float64
}

// Resolve returns the candidate targets covered by the query's shape, in the
// order the locator produced them. Self returns the caster alone. Facing
// defaults to +X when zero.
//
// Postcondition: Returns an error when a non-self shape has no locator.
func Resolve(q Query) ([]target.Target, error) {
	shape := q.Params.EffectiveShape()
	if shape == ShapeSelf {
		if q.Caster == nil {
			return nil, nil
		}
		return []target.Target{q.Caster}, nil
	}
	if q.Locator == nil {
		return nil, fmt.Errorf("targeting: shape %q requires a locator", shape)
	}

	facing := q.Facing.Normalize()
	if facing.IsZero() {
		facing = target.Vec2{X: 1}
	}

	switch shape {
	case ShapeArea:
		return q.Locator.QueryRadius(q.Origin, q.Params.AreaRadius()), nil

	case ShapeCone:
		half := q.Params.HalfAngle(q.DefaultConeHalfAngle)
		var out []target.Target
		for _, t := range q.Locator.QueryRadius(q.Origin, q.Params.Range) {
			if InCone(q.Origin, facing, half, t.Position()) {
				out = append(out, t)
			}
		}
		return out, nil

	case ShapeLine:
		width := q.Params.LineWidth()
		// Broadphase radius covers the far corners of the swept rectangle.
		reach := math.Hypot(q.Params.Range, width/2)
		var out []target.Target
		for _, t := range q.Locator.QueryRadius(q.Origin, reach) {
			if InLine(q.Origin, facing, q.Params.Range, width, t.Position()) {
				out = append(out, t)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("targeting: unknown shape %q", shape)
}

// InCone reports whether p lies within halfAngle degrees of facing as seen
// from origin. A point at the origin is inside.
//
// Precondition: facing must be non-zero.
func InCone(origin, facing target.Vec2, halfAngle float64, p target.Vec2) bool {
	d := p.Sub(origin)
	if d.IsZero() {
		return true
	}
	return target.AngleBetween(facing, d) <= halfAngle+1e-9
}

// InLine reports whether p lies inside the rectangle of the given width swept
// from origin to origin + facing*length.
//
// Precondition: facing must be a unit vector.
func InLine(origin, facing target.Vec2, length, width float64, p target.Vec2) bool {
	d := p.Sub(origin)
	along := d.Dot(facing)
	if along < 0 || along > length {
		return false
	}
	return math.Abs(facing.Cross(d)) <= width/2
}
