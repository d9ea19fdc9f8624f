package effect

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/game/target"
)

// Directory maps target ids to their effect engines so ability payloads can
// reach a target's ledger by id.
//
// Directory is safe for concurrent lookup; each Engine it returns is not.
type Directory struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	defs    *Registry
	logger  *zap.Logger
}

// NewDirectory creates an empty Directory resolving effect ids against defs.
func NewDirectory(defs *Registry, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{engines: make(map[string]*Engine), defs: defs, logger: logger}
}

// Register adds e under its owner's id, replacing any previous engine.
func (d *Directory) Register(e *Engine) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engines[e.Owner().ID()] = e
}

// Unregister drops the engine for id.
func (d *Directory) Unregister(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.engines, id)
}

// Engine returns the engine registered for id.
func (d *Directory) Engine(id string) (*Engine, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.engines[id]
	return e, ok
}

// Engines returns every registered engine sorted by owner id.
func (d *Directory) Engines() []*Engine {
	d.mu.RLock()
	out := make([]*Engine, 0, len(d.engines))
	for _, e := range d.engines {
		out = append(out, e)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner().ID() < out[j].Owner().ID() })
	return out
}

// ApplyEffect applies effect id from source to t's ledger.
//
// Postcondition: Returns false when t has no engine, id is unknown, or the
// application was rejected.
func (d *Directory) ApplyEffect(t target.Target, id string, source target.Target, magnitude float64) bool {
	if t == nil {
		return false
	}
	e, ok := d.Engine(t.ID())
	if !ok {
		d.logger.Debug("effect target has no engine", zap.String("target", t.ID()), zap.String("effect", id))
		return false
	}
	def, ok := d.defs.Get(id)
	if !ok {
		d.logger.Debug("effect not found", zap.String("effect", id))
		return false
	}
	return e.ApplyScaled(def, source, magnitude).Accepted()
}
