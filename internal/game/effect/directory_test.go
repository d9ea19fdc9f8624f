package effect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/gas/internal/game/effect"
	"github.com/cory-johannsen/gas/internal/testutil"
)

func TestDirectory_ApplyEffect(t *testing.T) {
	reg := effect.NewRegistry()
	reg.Register(shield())
	dir := effect.NewDirectory(reg, nil)

	a := testutil.NewTarget("a", "heroes", 10)
	b := testutil.NewTarget("b", "heroes", 10)
	ea := effect.NewEngine(a, reg, effect.Config{}, nil)
	eb := effect.NewEngine(b, reg, effect.Config{}, nil)
	dir.Register(eb)
	dir.Register(ea)

	assert.True(t, dir.ApplyEffect(a, "shield", b, 1))
	assert.True(t, ea.Has("shield"))
	assert.False(t, dir.ApplyEffect(a, "shield", b, 1), "stacking none rejects the duplicate")
	assert.False(t, dir.ApplyEffect(a, "ghost", b, 1))
	assert.False(t, dir.ApplyEffect(testutil.NewTarget("c", "heroes", 1), "shield", nil, 1))
	assert.False(t, dir.ApplyEffect(nil, "shield", nil, 1))

	engines := dir.Engines()
	require.Len(t, engines, 2)
	assert.Equal(t, "a", engines[0].Owner().ID())

	dir.Unregister("a")
	_, ok := dir.Engine("a")
	assert.False(t, ok)
}
