package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/entity"
	"github.com/cory-johannsen/gas/internal/game/resource"
)

// actionEpsilon lets an action scheduled exactly on a frame boundary fire on
// that frame despite float drift.
const actionEpsilon = 1e-6

// Summary is an entity's state at the end of a run.
type Summary struct {
	ID        string
	Team      string
	Health    float64
	MaxHealth float64
	Alive     bool
	Effects   []string
	Resources map[resource.Key]float64
}

// Result reports a finished run.
type Result struct {
	Frames   int
	Elapsed  float64
	Accepted int
	Rejected int
	Entities []Summary
}

// Runner replays a Scenario against a World.
type Runner struct {
	World    *World
	Scenario *Scenario
	// Realtime paces frames on a wall-clock ticker instead of running flat out.
	Realtime bool
	Logger   *zap.Logger
}

// Run spawns the scenario's entities, then steps the world until the
// scenario's duration elapses or ctx is cancelled. Cancellation in realtime
// mode ends the run normally.
//
// Postcondition: Returns an error if spawning fails, or if a non-realtime
// scenario has no duration.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := r.Scenario
	if sc.Duration <= 0 && !r.Realtime {
		return Result{}, fmt.Errorf("sim: scenario %q needs a duration outside realtime mode", sc.Name)
	}
	for _, spec := range sc.Entities {
		if _, err := r.World.Spawn(spec); err != nil {
			return Result{}, err
		}
	}

	frames := math.MaxInt
	if sc.Duration > 0 {
		frames = int(math.Ceil(sc.Duration/r.World.FrameDuration() - actionEpsilon))
	}
	var pace <-chan time.Time
	if r.Realtime {
		ticker := time.NewTicker(time.Duration(float64(time.Second) * r.World.FrameDuration()))
		defer ticker.Stop()
		pace = ticker.C
	}

	logger.Info("scenario started",
		zap.String("scenario", sc.Name),
		zap.Int("entities", len(sc.Entities)),
		zap.Bool("realtime", r.Realtime),
	)
	var res Result
	timeline := sc.Timeline()
	next := 0
	for i := 0; i < frames; i++ {
		if pace != nil {
			select {
			case <-ctx.Done():
				return r.finish(res, logger), nil
			case <-pace:
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}
		now := r.World.Now()
		for next < len(timeline) && timeline[next].At <= now+actionEpsilon {
			if r.perform(timeline[next], logger) {
				res.Accepted++
			} else {
				res.Rejected++
			}
			next++
		}
		if err := r.World.Step(ctx); err != nil {
			if r.Realtime && ctx.Err() != nil {
				return r.finish(res, logger), nil
			}
			return res, err
		}
	}
	return r.finish(res, logger), nil
}

func (r *Runner) perform(a Action, logger *zap.Logger) bool {
	e, ok := r.World.Entity(a.Actor)
	if !ok {
		return false
	}
	if a.MoveTo != nil {
		e.MoveTo(*a.MoveTo)
	}
	if a.Face != nil {
		e.SetFacing(*a.Face)
	}
	if a.Ability == "" {
		return true
	}
	var accepted bool
	if a.Cancel {
		accepted = r.World.Cancel(a.Actor, a.Ability)
	} else {
		accepted = r.World.Use(a.Actor, a.Ability)
	}
	logger.Debug("scenario action",
		zap.Float64("at", a.At),
		zap.String("actor", a.Actor),
		zap.String("ability", a.Ability),
		zap.Bool("cancel", a.Cancel),
		zap.Bool("accepted", accepted),
	)
	return accepted
}

func (r *Runner) finish(res Result, logger *zap.Logger) Result {
	res.Frames = r.World.Frame()
	res.Elapsed = r.World.Now()
	for _, e := range r.World.Entities() {
		res.Entities = append(res.Entities, summarize(e))
	}
	logger.Info("scenario finished",
		zap.String("scenario", r.Scenario.Name),
		zap.Int("frames", res.Frames),
		zap.Float64("elapsed", res.Elapsed),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
	)
	return res
}

func summarize(e *entity.Entity) Summary {
	s := Summary{
		ID:        e.ID(),
		Team:      e.Team(),
		Health:    e.CurrentHealth(),
		MaxHealth: e.MaxHealth(),
		Alive:     e.IsAlive(),
		Resources: make(map[resource.Key]float64),
	}
	seen := make(map[string]bool)
	for _, a := range e.Effects().Active() {
		if !seen[a.ID()] {
			seen[a.ID()] = true
			s.Effects = append(s.Effects, a.ID())
		}
	}
	for _, k := range e.Abilities().ResourceKeys() {
		v, _ := e.Abilities().GetResource(k)
		s.Resources[k] = v
	}
	return s
}
