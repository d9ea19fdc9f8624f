package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/gas/internal/app"
	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/game/sim"
)

const burnYAML = `
id: burn
kind: periodic
duration: 3
period: 1
granted_tags: [state.burning]
modifiers:
  - attribute: health
    base_value: -2
lua_on_tick: burn_tick
`

const fireboltYAML = `
id: firebolt
cooldown: 2
costs:
  - resource: mana
    amount: 10
targeting:
  shape: line
  range: 10
executor: damage
damage: 10
effects: [burn]
`

const burnLua = `
function burn_tick(target_id, effect_id, ticks, stacks)
  engine.log.debug(target_id .. " burns")
end
`

const scenarioYAML = `
name: duel
duration: 4
entities:
  - id: mage
    team: heroes
    position: {x: 0, y: 0}
    facing: {x: 1, y: 0}
    health: 50
    abilities: [firebolt]
  - id: orc
    team: horde
    position: {x: 5, y: 0}
    health: 40
    tags: [race.orc]
actions:
  - {at: 0, actor: mage, ability: firebolt}
  - {at: 1, actor: mage, ability: firebolt}
`

type layout struct {
	root    string
	scripts string
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// writeContent lays out a config, content tree and scenario under a temp dir
// and returns the config path. lua is written to the scripts dir when set.
func writeContent(t *testing.T, lua string, scriptsDir bool) (string, layout) {
	t.Helper()
	root := t.TempDir()
	l := layout{root: root}
	writeFile(t, filepath.Join(root, "effects", "burn.yaml"), burnYAML)
	writeFile(t, filepath.Join(root, "abilities", "firebolt.yaml"), fireboltYAML)
	writeFile(t, filepath.Join(root, "scenario.yaml"), scenarioYAML)
	scripts := `""`
	if scriptsDir {
		l.scripts = filepath.Join(root, "scripts")
		require.NoError(t, os.MkdirAll(l.scripts, 0o755))
		if lua != "" {
			writeFile(t, filepath.Join(l.scripts, "burn.lua"), lua)
		}
		scripts = l.scripts
	}
	cfg := `
logging:
  level: error
  format: json
content:
  abilities_dir: ` + filepath.Join(root, "abilities") + `
  effects_dir: ` + filepath.Join(root, "effects") + `
  scripts_dir: ` + scripts + `
  scenario: ` + filepath.Join(root, "scenario.yaml") + `
  tags: [race.orc, state.burning]
  resources:
    - key: mana
      max: 10
      start: 10
`
	path := filepath.Join(root, "gas.yaml")
	writeFile(t, path, cfg)
	return path, l
}

// build runs the providers in injector order.
func build(t *testing.T, path string) (*app.App, error) {
	t.Helper()
	cfg, err := app.ProvideConfig(app.ConfigPath(path))
	if err != nil {
		return nil, err
	}
	logger, flush, err := app.ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	t.Cleanup(flush)
	tags, err := app.ProvideTags(cfg)
	if err != nil {
		return nil, err
	}
	scripts, closeScripts, err := app.ProvideScripts(cfg, logger)
	if err != nil {
		return nil, err
	}
	t.Cleanup(closeScripts)
	effects, err := app.ProvideEffects(cfg, tags, scripts)
	if err != nil {
		return nil, err
	}
	abilities, err := app.ProvideAbilities(cfg, tags, effects)
	if err != nil {
		return nil, err
	}
	content := app.ProvideContent(abilities, effects, tags, scripts)
	world := sim.NewWorld(content, app.ProvideOptions(cfg), logger)
	return app.New(cfg, logger, content, world), nil
}

func summaryOf(t *testing.T, res sim.Result, id string) sim.Summary {
	t.Helper()
	for _, s := range res.Entities {
		if s.ID == id {
			return s
		}
	}
	require.Failf(t, "missing entity", "no summary for %q", id)
	return sim.Summary{}
}

func TestRunScenario_EndToEnd(t *testing.T) {
	path, _ := writeContent(t, burnLua, true)
	a, err := build(t, path)
	require.NoError(t, err)
	require.NotNil(t, a.Content.Scripts)

	res, err := a.RunScenario(context.Background(), "", false)
	require.NoError(t, err)

	assert.Equal(t, 120, res.Frames)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Rejected, "second cast is on cooldown")
	orc := summaryOf(t, res, "orc")
	assert.InDelta(t, 24, orc.Health, 1e-9, "10 direct plus three burn ticks of 2")
	assert.True(t, orc.Alive)
	assert.Empty(t, orc.Effects, "burn expired")
}

func TestProvideEffects_MissingHookIsRejected(t *testing.T) {
	path, _ := writeContent(t, "function other() end", true)
	_, err := build(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, effect.ErrInvalidDefinition)
	assert.Contains(t, err.Error(), "burn_tick")
}

func TestProvideEffects_HooksNeedScripting(t *testing.T) {
	path, _ := writeContent(t, "", false)
	_, err := build(t, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, effect.ErrInvalidDefinition)
}

func TestProvideScripts_BadLuaFails(t *testing.T) {
	path, _ := writeContent(t, "function burn_tick(", true)
	_, err := build(t, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scripting")
}

func TestRunScenario_NoScenario(t *testing.T) {
	path, _ := writeContent(t, burnLua, true)
	a, err := build(t, path)
	require.NoError(t, err)
	a.Config.Content.Scenario = ""

	_, err = a.RunScenario(context.Background(), "", false)
	assert.Error(t, err)
}

func TestShippedContent_RunsSkirmish(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Join("..", "..")))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	a, err := build(t, filepath.Join("configs", "dev.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, a.Content.Abilities.All())
	assert.NotEmpty(t, a.Content.Effects.All())

	res, err := a.RunScenario(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 360, res.Frames)
	assert.Len(t, res.Entities, 5)
	assert.Positive(t, res.Accepted)
}
