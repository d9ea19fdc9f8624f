package tag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/gas/internal/game/tag"
)

func TestTag_Valid(t *testing.T) {
	assert.True(t, tag.Tag("state.stunned").Valid())
	assert.True(t, tag.Tag("immune").Valid())
	assert.False(t, tag.Tag("").Valid())
	assert.False(t, tag.Tag("State.Stunned").Valid())
	assert.False(t, tag.Tag("state..stunned").Valid())
}

func TestRequirement_ZeroValueAlwaysMet(t *testing.T) {
	var r tag.Requirement
	assert.True(t, r.Met(tag.NewSet()))
	assert.True(t, r.IsEmpty())
}

func TestRequirement_RequireAndIgnore(t *testing.T) {
	r := tag.Requirement{Require: []tag.Tag{"state.burning"}, Ignore: []tag.Tag{"state.wet"}}
	assert.True(t, r.Met(tag.NewSet("state.burning")))
	assert.False(t, r.Met(tag.NewSet("state.burning", "state.wet")))
	assert.False(t, r.Met(tag.NewSet()))
}

func TestCounter_GrantRelease(t *testing.T) {
	c := tag.NewCounter()
	c.Grant([]tag.Tag{"state.casting"})
	c.Grant([]tag.Tag{"state.casting"})
	assert.Equal(t, 2, c.Count("state.casting"))
	c.Release([]tag.Tag{"state.casting"})
	assert.True(t, c.HasTag("state.casting"), "one grant still outstanding")
	c.Release([]tag.Tag{"state.casting"})
	assert.False(t, c.HasTag("state.casting"))
	c.Release([]tag.Tag{"state.casting"}) // must not go negative
	assert.Equal(t, 0, c.Count("state.casting"))
}

func TestAny_CombinesCarriers(t *testing.T) {
	a := tag.Any{tag.NewSet("a"), nil, tag.NewSet("b")}
	assert.True(t, a.HasTag("a"))
	assert.True(t, a.HasTag("b"))
	assert.False(t, a.HasTag("c"))
}

func TestRegistry_Validate(t *testing.T) {
	reg, err := tag.NewRegistry([]string{"state.stunned", "immune.poison"})
	require.NoError(t, err)
	assert.NoError(t, reg.Validate("state.stunned", "immune.poison"))
	err = reg.Validate("state.stuned")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state.stuned")
}

func TestRegistry_RejectsMalformed(t *testing.T) {
	_, err := tag.NewRegistry([]string{"ok", "Not Ok"})
	assert.Error(t, err)
}

func TestRegistry_NilAcceptsWellFormed(t *testing.T) {
	var reg *tag.Registry
	assert.NoError(t, reg.Validate("anything.goes"))
	assert.Error(t, reg.Validate("BAD"))
}

func TestPropertyCounter_BalancedGrantsLeaveNothing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "grants")
		c := tag.NewCounter()
		for i := 0; i < n; i++ {
			c.Grant([]tag.Tag{"x"})
		}
		for i := 0; i < n; i++ {
			assert.True(t, c.HasTag("x"))
			c.Release([]tag.Tag{"x"})
		}
		assert.False(t, c.HasTag("x"), "tag must be gone after every grant is released")
	})
}
