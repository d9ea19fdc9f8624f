// Package app assembles the simulator from configuration: content
// registries, the Lua host, and the world.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/gas/internal/config"
	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/sim"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/observability"
	"github.com/cory-johannsen/gas/internal/scripting"
)

// ConfigPath is the configuration file to load.
type ConfigPath string

// ProviderSet builds an *App from a ConfigPath.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideTags,
	ProvideScripts,
	ProvideEffects,
	ProvideAbilities,
	ProvideContent,
	ProvideOptions,
	sim.NewWorld,
	New,
)

// App is a fully wired simulator.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Content sim.Content
	World   *sim.World
}

// New returns an App over its collaborators.
func New(cfg config.Config, logger *zap.Logger, content sim.Content, world *sim.World) *App {
	return &App{Config: cfg, Logger: logger, Content: content, World: world}
}

// ProvideConfig loads and validates the configuration at path.
func ProvideConfig(path ConfigPath) (config.Config, error) {
	return config.Load(string(path))
}

// ProvideLogger builds the process logger. The cleanup flushes it.
func ProvideLogger(cfg config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = observability.Sync(logger) }, nil
}

// ProvideTags builds the declared tag vocabulary.
func ProvideTags(cfg config.Config) (*tag.Registry, error) {
	return tag.NewRegistry(cfg.Content.Tags)
}

// ProvideScripts loads every Lua script in the configured directory. An
// empty scripts_dir yields a nil Manager and disables scripting.
func ProvideScripts(cfg config.Config, logger *zap.Logger) (*scripting.Manager, func(), error) {
	if cfg.Content.ScriptsDir == "" {
		return nil, func() {}, nil
	}
	mgr := scripting.NewManager(logger, cfg.Engine.ScriptInstructionLimit)
	if err := mgr.Load(cfg.Content.ScriptsDir); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Close, nil
}

// ProvideEffects loads effect definitions and checks every script they name
// is defined.
func ProvideEffects(cfg config.Config, tags *tag.Registry, scripts *scripting.Manager) (*effect.Registry, error) {
	reg, err := effect.LoadDirectory(cfg.Content.EffectsDir, tags)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, def := range reg.All() {
		for _, hook := range def.ScriptHooks() {
			if scripts == nil || !scripts.HasHook(hook) {
				errs = append(errs, fmt.Errorf("%w %q: script %q is not defined", effect.ErrInvalidDefinition, def.ID, hook))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}

// ProvideAbilities loads ability definitions validated against the declared
// tags, resources and loaded effects.
func ProvideAbilities(cfg config.Config, tags *tag.Registry, effects *effect.Registry) (*ability.Registry, error) {
	var keys resource.Keys
	if len(cfg.Content.Resources) > 0 {
		keys = resource.NewKeys(cfg.Content.Resources)
	}
	return ability.LoadDirectory(cfg.Content.AbilitiesDir, ability.Catalog{
		Resources: keys,
		Tags:      tags,
		Effects:   effects,
		Executors: ability.DefaultExecutors(),
	})
}

// ProvideContent bundles the loaded registries.
func ProvideContent(abilities *ability.Registry, effects *effect.Registry, tags *tag.Registry, scripts *scripting.Manager) sim.Content {
	return sim.Content{Abilities: abilities, Effects: effects, Tags: tags, Scripts: scripts}
}

// ProvideOptions maps engine configuration onto world options.
func ProvideOptions(cfg config.Config) sim.Options {
	e := cfg.Engine
	return sim.Options{
		TickRate:             e.TickRate,
		MaxChainDepth:        e.MaxChainDepth,
		DefaultConeHalfAngle: e.DefaultConeHalfAngle,
		BaseDamage:           e.BaseDamage,
		BaseHeal:             e.BaseHeal,
		ParallelEffects:      e.ParallelEffects,
		DefaultResources:     cfg.Content.Resources,
		CellSize:             e.CellSize,
	}
}

// RunScenario replays the scenario at path, or the configured scenario when
// path is empty. Relative configured paths resolve against the working
// directory.
func (a *App) RunScenario(ctx context.Context, path string, realtime bool) (sim.Result, error) {
	if path == "" {
		path = a.Config.Content.Scenario
	}
	if path == "" {
		return sim.Result{}, errors.New("app: no scenario given")
	}
	sc, err := sim.LoadScenario(filepath.Clean(path), a.Content.Abilities)
	if err != nil {
		return sim.Result{}, err
	}
	r := &sim.Runner{World: a.World, Scenario: sc, Realtime: realtime, Logger: a.Logger}
	return r.Run(ctx)
}
