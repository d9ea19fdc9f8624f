package effect

import (
	"math"

	"github.com/google/uuid"

	"github.com/cory-johannsen/gas/internal/game/target"
)

// ActiveEffect tracks one applied effect instance on a target.
type ActiveEffect struct {
	Handle    uuid.UUID
	Def       *Definition
	Source    target.Target
	Magnitude float64
	// StackCount is in [1, Def.StackCap()].
	StackCount int
	// RemainingDuration is +Inf for infinite effects.
	RemainingDuration float64
	// TimeToNextTick is meaningful for periodic effects only.
	TimeToNextTick float64
	TicksFired     int
	// Suppressed is set while the ongoing requirement is unmet.
	Suppressed bool

	held    []float64 // applied delta per modifier; nil when nothing is held
	removed bool
}

// ID returns the definition id.
func (a *ActiveEffect) ID() string { return a.Def.ID }

// IsInfinite reports whether the instance never expires by time.
func (a *ActiveEffect) IsInfinite() bool { return math.IsInf(a.RemainingDuration, 1) }

// tickCapReached reports whether a periodic instance has fired its capped
// number of ticks.
func (a *ActiveEffect) tickCapReached() bool {
	limit := a.Def.TickCap()
	return limit >= 0 && a.TicksFired >= limit
}
