// Package sim drives entities frame by frame: it owns the spatial index and
// the effect directory, ticks every ability system and effect ledger, and
// replays scenarios.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/game/entity"
	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/spatial"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
	"github.com/cory-johannsen/gas/internal/scripting"
)

// DefaultTickRate is used when Options leaves TickRate unset.
const DefaultTickRate = 30.0

// Options tunes a World.
type Options struct {
	// TickRate is frames per simulated second.
	TickRate             float64
	MaxChainDepth        int
	DefaultConeHalfAngle float64
	BaseDamage           float64
	BaseHeal             float64
	// ParallelEffects ticks effect ledgers of different entities concurrently.
	ParallelEffects bool
	// DefaultResources are given to entities whose spec declares none.
	DefaultResources []resource.Spec
	CellSize         float64
}

// Content is the validated definition set a World instantiates from.
type Content struct {
	Abilities *ability.Registry
	Effects   *effect.Registry
	Tags      *tag.Registry
	// Scripts may be nil.
	Scripts *scripting.Manager
}

// World owns every entity in one simulation.
// Step and the entity mutators serialise on the world lock.
type World struct {
	mu       sync.Mutex
	opts     Options
	dt       float64
	frame    int
	now      float64
	content  Content
	grid     *spatial.Grid
	dir      *effect.Directory
	deps     entity.Deps
	entities map[string]*entity.Entity
	order    []string
	journal  *journal
	logger   *zap.Logger
}

// NewWorld creates an empty world.
//
// Postcondition: Returns a non-nil World. A nil logger is replaced by zap.NewNop().
func NewWorld(content Content, opts Options, logger *zap.Logger) *World {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	w := &World{
		opts:     opts,
		dt:       1 / opts.TickRate,
		content:  content,
		grid:     spatial.NewGrid(opts.CellSize),
		dir:      effect.NewDirectory(content.Effects, logger),
		entities: make(map[string]*entity.Entity),
		journal:  &journal{logger: logger.Named("events")},
		logger:   logger,
	}
	cfg := effect.Config{MaxChainDepth: opts.MaxChainDepth}
	if content.Scripts != nil {
		cfg.Scripts = content.Scripts
		content.Scripts.GetTarget = w.targetInfo
		content.Scripts.HasTag = w.hasTag
	}
	w.deps = entity.Deps{
		Env: ability.Env{
			Locator:              w.grid,
			Effects:              w.dir,
			Scaler:               entity.PowerScaler(),
			BaseDamage:           opts.BaseDamage,
			BaseHeal:             opts.BaseHeal,
			DefaultConeHalfAngle: opts.DefaultConeHalfAngle,
		},
		Effects: content.Effects,
		Config:  cfg,
		Logger:  logger,
	}
	return w
}

// Observe registers o for every engine event.
func (w *World) Observe(o Observer) { w.journal.add(o) }

// Frame returns the number of completed frames.
func (w *World) Frame() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frame
}

// Now returns the simulated time in seconds.
func (w *World) Now() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// FrameDuration returns the fixed step in seconds.
func (w *World) FrameDuration() float64 { return w.dt }

// Directory returns the effect directory.
func (w *World) Directory() *effect.Directory { return w.dir }

// Spawn creates and registers the entity described by spec, granting every
// ability it lists.
//
// Postcondition: Returns an error if the id is taken, the spec is invalid,
// a tag is undeclared, or an ability is unknown.
func (w *World) Spawn(spec entity.Spec) (*entity.Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.entities[spec.ID]; dup {
		return nil, fmt.Errorf("sim: entity %q already exists", spec.ID)
	}
	if err := w.content.Tags.Validate(spec.Tags...); err != nil {
		return nil, fmt.Errorf("sim: entity %q: %w", spec.ID, err)
	}
	if len(spec.Resources) == 0 {
		spec.Resources = w.opts.DefaultResources
	}
	e, err := entity.New(spec, w.deps)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	w.wire(e)
	for _, id := range spec.Abilities {
		def, ok := w.content.Abilities.Get(id)
		if !ok {
			return nil, fmt.Errorf("sim: entity %q: unknown ability %q", spec.ID, id)
		}
		if err := e.Abilities().AddAbility(def); err != nil {
			return nil, fmt.Errorf("sim: entity %q: %w", spec.ID, err)
		}
	}
	w.entities[spec.ID] = e
	w.order = append(w.order, spec.ID)
	sort.Strings(w.order)
	w.dir.Register(e.Effects())
	w.grid.Upsert(e)
	w.logger.Info("entity spawned",
		zap.String("entity", spec.ID),
		zap.String("team", spec.Team),
		zap.Int("abilities", len(spec.Abilities)),
	)
	return e, nil
}

// wire forwards the entity's ability and effect events into the journal.
func (w *World) wire(e *entity.Entity) {
	id := e.ID()
	e.Abilities().Subscribe(func(ev ability.Event) {
		w.journal.write(Record{
			Frame: w.frame, Time: w.now, Origin: OriginAbility,
			Kind: ev.Kind.String(), Entity: id, Subject: ev.AbilityID, Detail: abilityDetail(ev),
		})
	})
	e.Effects().Subscribe(func(ev effect.Event) {
		w.journal.write(Record{
			Frame: w.frame, Time: w.now, Origin: OriginEffect,
			Kind: ev.Kind.String(), Entity: id, Subject: ev.EffectID, Detail: effectDetail(ev),
		})
	})
}

// Despawn cancels the entity's abilities and removes it from the world.
//
// Postcondition: Returns false if id is unknown.
func (w *World) Despawn(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return false
	}
	e.Abilities().CancelAll()
	delete(w.entities, id)
	for i, x := range w.order {
		if x == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	w.dir.Unregister(id)
	w.grid.Remove(id)
	w.logger.Info("entity despawned", zap.String("entity", id))
	return true
}

// Entity returns the entity registered under id.
func (w *World) Entity(id string) (*entity.Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	return e, ok
}

// Entities returns every entity sorted by id.
func (w *World) Entities() []*entity.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *World) snapshotLocked() []*entity.Entity {
	out := make([]*entity.Entity, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.entities[id])
	}
	return out
}

// Use asks actor to use an ability. Dead actors cannot act.
func (w *World) Use(actor, abilityID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[actor]
	if !ok || !e.IsAlive() {
		return false
	}
	w.grid.Sync(w.targetsLocked())
	return e.Abilities().TryUse(abilityID)
}

// Cancel cancels actor's in-flight executions of abilityID.
func (w *World) Cancel(actor, abilityID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[actor]
	if !ok {
		return false
	}
	return e.Abilities().Cancel(abilityID)
}

func (w *World) targetsLocked() []target.Target {
	out := make([]target.Target, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.entities[id])
	}
	return out
}

// Step advances the world by one frame: every ability system in id order,
// then every effect ledger, sequentially or in parallel.
func (w *World) Step(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ents := w.snapshotLocked()
	w.grid.Sync(w.targetsLocked())
	for _, e := range ents {
		e.TickAbilities(w.dt)
	}
	if err := w.tickEffects(ctx, ents); err != nil {
		return err
	}
	w.grid.Sync(w.targetsLocked())
	w.frame++
	w.now = float64(w.frame) * w.dt
	return nil
}

func (w *World) tickEffects(ctx context.Context, ents []*entity.Entity) error {
	if !w.opts.ParallelEffects || len(ents) < 2 {
		for _, e := range ents {
			e.TickEffects(w.dt)
		}
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	for _, e := range ents {
		e := e
		g.Go(func() error {
			e.TickEffects(w.dt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sim: ticking effects: %w", err)
	}
	return ctx.Err()
}

// targetInfo and hasTag back the engine.* Lua modules. They take no world
// lock because they run inside Step.
func (w *World) targetInfo(id string) *scripting.TargetInfo {
	e, ok := w.lookup(id)
	if !ok {
		return nil
	}
	tags := e.Tags()
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, string(t))
	}
	return &scripting.TargetInfo{
		ID:        e.ID(),
		Health:    e.CurrentHealth(),
		MaxHealth: e.MaxHealth(),
		Alive:     e.IsAlive(),
		Tags:      names,
	}
}

func (w *World) hasTag(id, t string) bool {
	e, ok := w.lookup(id)
	return ok && e.HasTag(tag.Tag(strings.TrimSpace(t)))
}

func (w *World) lookup(id string) (*entity.Entity, bool) {
	eng, ok := w.dir.Engine(id)
	if !ok {
		return nil, false
	}
	e, ok := eng.Owner().(*entity.Entity)
	return e, ok
}
