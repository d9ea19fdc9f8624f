package spatial_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/gas/internal/game/spatial"
	"github.com/cory-johannsen/gas/internal/game/target"
	"github.com/cory-johannsen/gas/internal/testutil"
)

func ids(ts []target.Target) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID())
	}
	return out
}

func TestGrid_QueryRadius(t *testing.T) {
	g := spatial.NewGrid(2)
	g.Upsert(testutil.NewTarget("b", "x", 1).At(1, 1))
	g.Upsert(testutil.NewTarget("a", "x", 1).At(-3, 0))
	g.Upsert(testutil.NewTarget("far", "x", 1).At(50, 50))
	assert.Equal(t, 3, g.Len())

	assert.Equal(t, []string{"a", "b"}, ids(g.QueryRadius(target.Vec2{}, 3)))
	assert.Equal(t, []string{"b"}, ids(g.QueryRadius(target.Vec2{X: 1, Y: 1}, 0)))
	assert.Empty(t, g.QueryRadius(target.Vec2{}, -1))
}

func TestGrid_UpsertMovesAndRemoveDrops(t *testing.T) {
	g := spatial.NewGrid(0)
	tg := testutil.NewTarget("mover", "x", 1).At(0, 0)
	g.Upsert(tg)
	tg.At(40, 0)
	g.Upsert(tg)
	assert.Empty(t, g.QueryRadius(target.Vec2{}, 5))
	assert.Equal(t, []string{"mover"}, ids(g.QueryRadius(target.Vec2{X: 40}, 1)))

	g.Remove("mover")
	g.Remove("ghost")
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.QueryRadius(target.Vec2{X: 40}, 1))
}

func TestGrid_SyncReindexes(t *testing.T) {
	g := spatial.NewGrid(1)
	a := testutil.NewTarget("a", "x", 1)
	b := testutil.NewTarget("b", "x", 1).At(10, 10)
	g.Sync([]target.Target{a, b, nil})
	a.At(10, 9)
	g.Sync([]target.Target{a})
	assert.Equal(t, []string{"a", "b"}, ids(g.QueryRadius(target.Vec2{X: 10, Y: 10}, 1.5)))
}

func TestPropertyGrid_MatchesBruteForce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cell := rapid.Float64Range(0.5, 8).Draw(t, "cell")
		n := rapid.IntRange(0, 40).Draw(t, "n")
		g := spatial.NewGrid(cell)
		var brute testutil.Locator
		for i := 0; i < n; i++ {
			x := rapid.Float64Range(-50, 50).Draw(t, "x")
			y := rapid.Float64Range(-50, 50).Draw(t, "y")
			tg := testutil.NewTarget(string(rune('A'+i)), "x", 1).At(x, y)
			g.Upsert(tg)
			brute = append(brute, tg)
		}
		center := target.Vec2{
			X: rapid.Float64Range(-50, 50).Draw(t, "cx"),
			Y: rapid.Float64Range(-50, 50).Draw(t, "cy"),
		}
		radius := rapid.Float64Range(0, 30).Draw(t, "radius")
		want := ids(brute.QueryRadius(center, radius))
		sort.Strings(want)
		got := ids(g.QueryRadius(center, radius))
		require.Equal(t, want, got)
	})
}
