package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisahligono/semantique/internal/dag"
	"github.com/lisahligono/semantique/pkg/core"
)

func TestPlan_ResultLevels(t *testing.T) {
	e, cube := newTestEngine(t)

	plan := e.Plan(recipe(t,
		entry("c", core.NewChain(result("b")).Then("reduce", "sum")),
		entry("b", core.NewChain(result("a")).Then("filter", core.NewChain(cloud))),
		entry("a", core.NewChain(water)),
		entry("x", core.NewChain(clearWater)),
	))
	require.NoError(t, plan.Err())

	levels, err := plan.ResultLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "x"}, {"c"}}, levels)

	assert.Equal(t, []string{
		"concept:entity/cloud#mask",
		"concept:entity/water#color",
		"layer:appearance/colortype",
		"layer:atmosphere/cloud",
		"result:a",
	}, plan.Upstream("b"))
	assert.Equal(t, []string{"a"}, plan.Dependencies("b"))
	assert.Empty(t, plan.Dependencies("x"), "concepts are not results")
	assert.Equal(t, 0, cube.count("colortype"), "planning never fetches data")
}

func TestPlan_Focus(t *testing.T) {
	e, _ := newTestEngine(t)

	plan := e.Plan(recipe(t,
		entry("c", core.NewChain(result("b")).Then("reduce", "sum")),
		entry("b", core.NewChain(result("a")).Then("filter", core.NewChain(cloud))),
		entry("a", core.NewChain(water)),
		entry("x", core.NewChain(clearWater)),
	))
	assert.Equal(t, []string{"b"}, plan.UsedBy("a"))
	assert.Empty(t, plan.UsedBy("c"))

	focused, err := plan.Focus("b")
	require.NoError(t, err)
	levels, err := focused.ResultLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, levels, "unrelated results are left out")
	assert.False(t, focused.Graph.Has("result:x"))
	assert.True(t, focused.Graph.Has("layer:atmosphere/cloud"))

	_, err = plan.Focus("nope")
	assert.ErrorIs(t, err, core.ErrUnknownResult)

	cyclic := e.Plan(recipe(t,
		entry("a", core.NewChain(result("b"))),
		entry("b", core.NewChain(result("a"))),
		entry("c", core.NewChain(water)),
	))
	focused, err = cyclic.Focus("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"result:a", "result:b", "result:a"}, focused.Cycle)
	_, err = focused.ResultLevels()
	assert.ErrorIs(t, err, core.ErrCyclicResultReference)
}

func TestPlan_MapArguments(t *testing.T) {
	e, _ := newTestEngine(t)

	plan := e.Plan(recipe(t,
		entry("a", core.NewChain(water)),
		entry("b", core.NewChain(cloud).Then("evaluate", "and", map[string]any{
			"mask":  result("a"),
			"extra": core.NewChain(fire),
		})),
	))

	assert.Equal(t, []string{"a"}, plan.Dependencies("b"))
	require.Len(t, plan.Missing, 1)
	assert.ErrorIs(t, plan.Missing[0], core.ErrPathNotFound)
}

func TestPlan_Missing(t *testing.T) {
	e, _ := newTestEngine(t)

	plan := e.Plan(recipe(t,
		entry("a", core.NewChain(fire)),
		entry("b", core.NewChain(result("nope"))),
		entry("c", core.NewChain(water).Then("evaluate", "and", core.NewChain(fire))),
		entry("d", core.NewChain(core.Must(core.NewLayer("reflectance", "s2_band99")))),
	))

	require.Len(t, plan.Missing, 3, "the same missing path is reported once")
	err := plan.Err()
	assert.ErrorIs(t, err, core.ErrPathNotFound)
	assert.ErrorIs(t, err, core.ErrUnknownResult)
	assert.Nil(t, plan.Cycle)
}

func TestPlan_Cycles(t *testing.T) {
	e, _ := newTestEngine(t)

	t.Run("results", func(t *testing.T) {
		plan := e.Plan(recipe(t,
			entry("a", core.NewChain(result("b"))),
			entry("b", core.NewChain(result("a"))),
		))
		assert.Equal(t, []string{"result:a", "result:b", "result:a"}, plan.Cycle)
		assert.ErrorIs(t, plan.Err(), core.ErrCyclicResultReference)

		var ce *dag.CycleError
		assert.ErrorAs(t, plan.Err(), &ce)

		_, err := plan.ResultLevels()
		assert.ErrorIs(t, err, core.ErrCyclicResultReference)
	})

	t.Run("self reference", func(t *testing.T) {
		plan := e.Plan(recipe(t, entry("a", core.NewChain(water).Then("evaluate", "add", result("a")))))
		assert.Equal(t, []string{"result:a", "result:a"}, plan.Cycle)
	})

	t.Run("concepts", func(t *testing.T) {
		plan := e.Plan(recipe(t, entry("l", core.NewChain(loop))))
		assert.Equal(t, []string{"concept:entity/loop#self", "concept:entity/loop#self"}, plan.Cycle)
		assert.ErrorIs(t, plan.Err(), core.ErrCyclicConceptReference)
	})
}

func TestPlan_NilRecipe(t *testing.T) {
	e, _ := newTestEngine(t)

	plan := e.Plan(nil)
	assert.NoError(t, plan.Err())
	assert.Equal(t, 0, plan.Graph.NodeCount())
}
