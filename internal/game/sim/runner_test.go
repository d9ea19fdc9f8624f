package sim_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/gas/internal/game/entity"
	"github.com/cory-johannsen/gas/internal/game/sim"
	"github.com/cory-johannsen/gas/internal/game/target"
)

const duelYAML = `
name: duel
duration: 4
entities:
  - id: mage
    team: heroes
    health: 50
    facing: {x: 1, y: 0}
    abilities: [firebolt, mend]
  - id: orc
    team: horde
    health: 40
    position: {x: 5, y: 0}
    tags: [race.orc]
actions:
  - at: 2.5
    actor: mage
    ability: firebolt
  - at: 0
    actor: mage
    ability: firebolt
  - at: 1
    actor: mage
    ability: firebolt
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadScenario_ParsesAndOrdersTimeline(t *testing.T) {
	sc, err := sim.LoadScenario(writeScenario(t, duelYAML), testContent(t).Abilities)
	require.NoError(t, err)
	assert.Equal(t, "duel", sc.Name)
	require.Len(t, sc.Entities, 2)
	assert.Equal(t, target.Vec2{X: 5}, sc.Entities[1].Position)
	var at []float64
	for _, a := range sc.Timeline() {
		at = append(at, a.At)
	}
	assert.Equal(t, []float64{0, 1, 2.5}, at)
}

func TestLoadScenario_Rejections(t *testing.T) {
	_, err := sim.LoadScenario(filepath.Join(t.TempDir(), "none.yaml"), nil)
	assert.Error(t, err)

	_, err = sim.LoadScenario(writeScenario(t, "name: x\nduration: 1\nspeed: 3\n"), nil)
	assert.Error(t, err, "unknown field")

	_, err = sim.LoadScenario(writeScenario(t, `
name: bad
duration: -1
entities:
  - {id: a, health: 10, abilities: [meteor]}
  - {id: a, health: 10}
  - {id: b}
actions:
  - {at: -1, actor: ghost, ability: firebolt}
  - {at: 0, actor: a}
  - {at: 0, actor: a, ability: mend}
  - {at: 0, actor: a, cancel: true, face: {x: 1}}
`), testContent(t).Abilities)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrInvalidScenario))
	for _, want := range []string{
		"duration must be >= 0",
		`unknown ability "meteor"`,
		`id "a" repeated`,
		"health must be > 0",
		`unknown actor "ghost"`,
		"nothing to do",
		`does not have ability "mend"`,
		"cancel requires ability",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRunner_DeterministicReplay(t *testing.T) {
	content := testContent(t)
	sc, err := sim.LoadScenario(writeScenario(t, duelYAML), content.Abilities)
	require.NoError(t, err)

	run := func() sim.Result {
		w := sim.NewWorld(content, defaultOptions(), nil)
		res, err := (&sim.Runner{World: w, Scenario: sc}).Run(context.Background())
		require.NoError(t, err)
		return res
	}
	res := run()
	assert.Equal(t, 40, res.Frames)
	assert.InDelta(t, 4.0, res.Elapsed, 1e-9)
	assert.Equal(t, 1, res.Accepted, "t=0 cast succeeds")
	assert.Equal(t, 2, res.Rejected, "t=1 is on cooldown and t=2.5 is out of mana")

	require.Len(t, res.Entities, 2)
	o := res.Entities[1]
	assert.Equal(t, "orc", o.ID)
	assert.Equal(t, 24.0, o.Health, "10 damage then three burn ticks")
	assert.Empty(t, o.Effects)
	assert.Equal(t, 0.0, res.Entities[0].Resources["mana"])

	assert.Equal(t, res, run(), "replays are deterministic")
}

func TestRunner_MoveFaceAndCancel(t *testing.T) {
	content := testContent(t)
	sc := &sim.Scenario{
		Name:     "aim",
		Duration: 1,
		Entities: []entity.Spec{
			{ID: "mage", Team: "heroes", Health: 50, Facing: target.Vec2{Y: 1}, Abilities: []string{"firebolt"}},
			{ID: "orc", Team: "horde", Health: 40, Position: target.Vec2{X: 5}},
		},
		Actions: []sim.Action{
			{At: 0, Actor: "mage", Face: &target.Vec2{X: 1}, MoveTo: &target.Vec2{X: 1}},
			{At: 0.5, Actor: "mage", Ability: "firebolt"},
			{At: 0.5, Actor: "mage", Ability: "firebolt", Cancel: true},
		},
	}
	require.NoError(t, sc.Validate(content.Abilities))
	w := sim.NewWorld(content, defaultOptions(), nil)
	res, err := (&sim.Runner{World: w, Scenario: sc}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted, "move and cast")
	assert.Equal(t, 1, res.Rejected, "instant cast already finished")
	m, _ := w.Entity("mage")
	assert.Equal(t, target.Vec2{X: 1}, m.Position())
	o, _ := w.Entity("orc")
	assert.Less(t, o.CurrentHealth(), 40.0)
}

func TestRunner_RequiresDurationUnlessRealtime(t *testing.T) {
	w := sim.NewWorld(testContent(t), defaultOptions(), nil)
	_, err := (&sim.Runner{World: w, Scenario: &sim.Scenario{Name: "open"}}).Run(context.Background())
	assert.Error(t, err)
}

func TestRunner_CancelledContext(t *testing.T) {
	w := sim.NewWorld(testContent(t), defaultOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&sim.Runner{World: w, Scenario: &sim.Scenario{Name: "x", Duration: 1}}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_RealtimeStopsOnCancel(t *testing.T) {
	opts := defaultOptions()
	opts.TickRate = 200
	w := sim.NewWorld(testContent(t), opts, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	sc := &sim.Scenario{Name: "live", Entities: []entity.Spec{orc()}}
	res, err := (&sim.Runner{World: w, Scenario: sc, Realtime: true}).Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, res.Frames, 0)
	require.Len(t, res.Entities, 1)
	assert.True(t, res.Entities[0].Alive)
}
