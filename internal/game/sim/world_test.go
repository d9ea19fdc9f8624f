package sim_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/gas/internal/game/ability"
	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/game/entity"
	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/sim"
	"github.com/cory-johannsen/gas/internal/game/tag"
	"github.com/cory-johannsen/gas/internal/game/target"
	"github.com/cory-johannsen/gas/internal/game/targeting"
	"github.com/cory-johannsen/gas/internal/scripting"
)

func testContent(t *testing.T) sim.Content {
	t.Helper()
	effects := effect.NewRegistry()
	effects.Register(&effect.Definition{
		ID: "burn", Kind: effect.KindPeriodic, Duration: 3, Period: 1,
		Modifiers: []effect.Modifier{{Attribute: target.Health, BaseValue: -2}},
	})
	abilities := ability.NewRegistry()
	abilities.Register(&ability.Definition{
		ID: "firebolt", Executor: ability.ExecDamage, Damage: 10, Cooldown: 2,
		Costs:     []resource.Cost{{Resource: "mana", Amount: 10}},
		Targeting: targeting.Params{Shape: targeting.ShapeLine, Range: 10},
		Effects:   []string{"burn"},
	})
	abilities.Register(&ability.Definition{
		ID: "mend", Executor: ability.ExecHeal, Heal: 30,
		Targeting: targeting.Params{Shape: targeting.ShapeArea, Range: 6},
	})
	tags, err := tag.NewRegistry([]string{"race.orc"})
	require.NoError(t, err)
	return sim.Content{Abilities: abilities, Effects: effects, Tags: tags}
}

func defaultOptions() sim.Options {
	return sim.Options{
		TickRate:         10,
		DefaultResources: []resource.Spec{{Key: "mana", Max: 10}},
	}
}

func mage() entity.Spec {
	return entity.Spec{ID: "mage", Team: "heroes", Health: 50, Facing: target.Vec2{X: 1}, Abilities: []string{"firebolt", "mend"}}
}

func orc() entity.Spec {
	return entity.Spec{ID: "orc", Team: "horde", Health: 40, Position: target.Vec2{X: 5}, Tags: []tag.Tag{"race.orc"}}
}

func TestSpawn_ValidatesAndRegisters(t *testing.T) {
	w := sim.NewWorld(testContent(t), defaultOptions(), nil)
	m, err := w.Spawn(mage())
	require.NoError(t, err)
	v, ok := m.Abilities().GetResource("mana")
	require.True(t, ok, "default resources are granted")
	assert.Equal(t, 10.0, v)

	_, err = w.Spawn(mage())
	assert.Error(t, err, "duplicate id")
	bad := orc()
	bad.ID = "x"
	bad.Tags = []tag.Tag{"race.elf"}
	_, err = w.Spawn(bad)
	assert.Error(t, err, "undeclared tag")
	bad = orc()
	bad.ID = "y"
	bad.Abilities = []string{"meteor"}
	_, err = w.Spawn(bad)
	assert.Error(t, err, "unknown ability")

	_, ok = w.Directory().Engine("mage")
	assert.True(t, ok)
	assert.True(t, w.Despawn("mage"))
	assert.False(t, w.Despawn("mage"))
	_, ok = w.Directory().Engine("mage")
	assert.False(t, ok)
	assert.Empty(t, w.Entities())
}

func TestStep_DamageThenBurnTicks(t *testing.T) {
	w := sim.NewWorld(testContent(t), defaultOptions(), nil)
	var records []sim.Record
	w.Observe(func(r sim.Record) { records = append(records, r) })
	_, err := w.Spawn(mage())
	require.NoError(t, err)
	o, err := w.Spawn(orc())
	require.NoError(t, err)

	require.True(t, w.Use("mage", "firebolt"))
	assert.Equal(t, 30.0, o.CurrentHealth())
	assert.False(t, w.Use("mage", "firebolt"), "cooldown and mana both block")
	assert.False(t, w.Use("ghost", "firebolt"))

	for i := 0; i < 30; i++ {
		require.NoError(t, w.Step(context.Background()))
	}
	assert.Equal(t, 30, w.Frame())
	assert.InDelta(t, 3.0, w.Now(), 1e-9)
	assert.Equal(t, 24.0, o.CurrentHealth(), "three burn ticks of 2")
	assert.False(t, o.Effects().Has("burn"))

	var kinds []string
	for _, r := range records {
		if r.Origin == sim.OriginEffect && r.Entity == "orc" {
			kinds = append(kinds, r.Kind)
		}
	}
	assert.Equal(t, []string{"EffectApplied", "EffectTicked", "EffectTicked", "EffectTicked", "EffectRemoved"}, kinds)
}

func TestUse_DeadActorCannotAct(t *testing.T) {
	w := sim.NewWorld(testContent(t), defaultOptions(), nil)
	m, err := w.Spawn(mage())
	require.NoError(t, err)
	m.TakeDamage(100, nil, target.DamageTrue)
	assert.False(t, w.Use("mage", "mend"))
}

func TestStep_ParallelEffectsMatchSequential(t *testing.T) {
	run := func(parallel bool) []float64 {
		opts := defaultOptions()
		opts.ParallelEffects = parallel
		w := sim.NewWorld(testContent(t), opts, zap.NewNop())
		var mu sync.Mutex
		ticks := 0
		w.Observe(func(r sim.Record) {
			mu.Lock()
			defer mu.Unlock()
			if r.Kind == "EffectTicked" {
				ticks++
			}
		})
		var orcs []*entity.Entity
		for _, id := range []string{"a", "b", "c"} {
			spec := orc()
			spec.ID = id
			e, err := w.Spawn(spec)
			require.NoError(t, err)
			require.Equal(t, effect.OutcomeApplied, e.Effects().ApplyByID("burn", nil, 1))
			orcs = append(orcs, e)
		}
		for i := 0; i < 40; i++ {
			require.NoError(t, w.Step(context.Background()))
		}
		assert.Equal(t, 9, ticks)
		var out []float64
		for _, e := range orcs {
			out = append(out, e.CurrentHealth())
		}
		return out
	}
	assert.Equal(t, run(false), run(true))
}

func TestStep_CancelledContext(t *testing.T) {
	opts := defaultOptions()
	opts.ParallelEffects = true
	w := sim.NewWorld(testContent(t), opts, nil)
	for _, id := range []string{"a", "b"} {
		spec := orc()
		spec.ID = id
		_, err := w.Spawn(spec)
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Step(ctx), context.Canceled)
}

func TestJournal_LogsEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := sim.NewWorld(testContent(t), defaultOptions(), zap.New(core))
	_, err := w.Spawn(mage())
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("entity spawned").Len())
	assert.GreaterOrEqual(t, logs.FilterMessage("engine event").Len(), 2, "AbilityAdded per granted ability")
}

func TestScripts_SeeWorldEntities(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks.lua"), []byte(`
seen = ""
function on_burn(target, effect, ticks, stacks)
  local info = engine.target(target)
  if info ~= nil and engine.has_tag(target, "race.orc") then
    seen = info.id .. ":" .. tostring(info.health)
  end
end
function probe() return seen end
`), 0644))
	mgr := scripting.NewManager(nil, 0)
	require.NoError(t, mgr.Load(dir))
	t.Cleanup(mgr.Close)

	content := testContent(t)
	content.Scripts = mgr
	burn, _ := content.Effects.Get("burn")
	burn.LuaOnTick = "on_burn"

	w := sim.NewWorld(content, defaultOptions(), nil)
	o, err := w.Spawn(orc())
	require.NoError(t, err)
	require.Equal(t, effect.OutcomeApplied, o.Effects().ApplyByID("burn", nil, 1))
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Step(context.Background()))
	}
	v, err := mgr.CallHook("probe")
	require.NoError(t, err)
	assert.Equal(t, "orc:38", v.String())
}
