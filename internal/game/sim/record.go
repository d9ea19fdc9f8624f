package sim

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/effect"
)

// Origin names the subsystem that produced a Record.
type Origin string

const (
	OriginAbility Origin = "ability"
	OriginEffect  Origin = "effect"
)

// Record is one engine event stamped with simulation time.
type Record struct {
	Frame   int
	Time    float64
	Origin  Origin
	Kind    string
	Entity  string
	Subject string
	Detail  string
}

// Observer receives every Record the world produces.
type Observer func(Record)

// journal fans records out to the log and observers. Effect engines may
// emit from parallel goroutines, so it is guarded.
type journal struct {
	mu        sync.Mutex
	observers []Observer
	logger    *zap.Logger
}

func (j *journal) add(o Observer) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.observers = append(j.observers, o)
}

func (j *journal) write(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger.Info("engine event",
		zap.Int("frame", r.Frame),
		zap.Float64("t", r.Time),
		zap.String("origin", string(r.Origin)),
		zap.String("kind", r.Kind),
		zap.String("entity", r.Entity),
		zap.String("subject", r.Subject),
		zap.String("detail", r.Detail),
	)
	for _, o := range j.observers {
		o(r)
	}
}

func abilityDetail(ev ability.Event) string {
	switch ev.Kind {
	case ability.ResourceChanged:
		return string(ev.Resource)
	case ability.AbilityFailed:
		if ev.Err != nil {
			return ev.Err.Error()
		}
	}
	return ""
}

func effectDetail(ev effect.Event) string {
	switch ev.Kind {
	case effect.EffectRemoved:
		return string(ev.Reason)
	case effect.EffectRejected:
		return ev.Outcome.String()
	}
	return ""
}
