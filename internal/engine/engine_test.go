package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisahligono/semantique/internal/index"
	"github.com/lisahligono/semantique/internal/metrics"
	"github.com/lisahligono/semantique/internal/state"
	"github.com/lisahligono/semantique/internal/verbs"
	"github.com/lisahligono/semantique/pkg/core"
	"github.com/lisahligono/semantique/pkg/datacubes/memory"
)

// countingCube counts fetches per source and can be told to fail.
type countingCube struct {
	*memory.Cube
	mu     sync.Mutex
	counts map[string]int
	fail   map[string]error
}

func (c *countingCube) Fetch(ctx context.Context, loc *core.LayerLocator) (*core.Array, error) {
	c.mu.Lock()
	c.counts[loc.Source]++
	err := c.fail[loc.Source]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Cube.Fetch(ctx, loc)
}

func (c *countingCube) count(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[source]
}

var (
	water      = core.Must(core.Entity("water"))
	cloud      = core.Must(core.Entity("cloud"))
	clearWater = core.Must(core.Entity("clearwater"))
	mixed      = core.Must(core.Entity("mixed"))
	scaled     = core.Must(core.Entity("scaled"))
	loop       = core.Must(core.Entity("loop"))
	ambiguous  = core.Must(core.Entity("ambiguous"))
	fire       = core.Must(core.Entity("fire"))
	colortype  = core.Must(core.Appearance("colortype"))
	cloudLayer = core.Must(core.Atmosphere("cloud"))
	elevation  = core.Must(core.Topography("elevation"))
)

func vector(t *testing.T, data ...float64) *core.Array {
	t.Helper()
	a, err := core.NewArray("", []string{"x"}, []int{len(data)}, data)
	require.NoError(t, err)
	return a
}

func concept(path []string, props ...core.Property) *core.ConceptDefinition {
	return &core.ConceptDefinition{Path: path, Properties: props}
}

func testIndexes(t *testing.T) (*index.Mapping, *index.Layout) {
	t.Helper()

	layout := index.NewLayout()
	for _, loc := range []*core.LayerLocator{
		{Path: colortype.Path(), Source: "colortype", Dims: []string{"x"}},
		{Path: cloudLayer.Path(), Source: "cloud", Dims: []string{"x"}},
		{Path: elevation.Path(), Source: "elevation"},
	} {
		require.NoError(t, layout.Add(loc))
	}

	cloudDef := concept(cloud.Path(),
		core.Property{Name: "mask", Operands: []core.Chain{core.NewChain(cloudLayer).Then("evaluate", "greater", 0.5)}},
		core.Property{Name: "raw", Operands: []core.Chain{core.NewChain(cloudLayer)}},
	)
	cloudDef.Default = "mask"

	mapping := index.NewMapping()
	for _, def := range []*core.ConceptDefinition{
		concept(water.Path(), core.Property{
			Name:     "color",
			Operands: []core.Chain{core.NewChain(colortype).Then("evaluate", "in", []any{21.0, 22.0})},
		}),
		cloudDef,
		concept(clearWater.Path(), core.Property{
			Name:    "color",
			Combine: core.CombineAll,
			Operands: []core.Chain{
				core.NewChain(water),
				core.NewChain(cloud).Then("evaluate", "not"),
			},
		}),
		concept(mixed.Path(), core.Property{
			Name:       "weighted",
			Combine:    core.CombineExpression,
			Expression: "x0 + 10 * x1",
			Operands:   []core.Chain{core.NewChain(water), core.NewChain(cloud)},
		}),
		concept(scaled.Path(), core.Property{
			Name:     "double",
			Operands: []core.Chain{core.NewChain(core.Self()).Then("evaluate", "multiply", 2.0)},
		}),
		concept(loop.Path(), core.Property{
			Name:     "self",
			Operands: []core.Chain{core.NewChain(loop)},
		}),
		concept(ambiguous.Path(),
			core.Property{Name: "one", Operands: []core.Chain{core.NewChain(colortype)}},
			core.Property{Name: "two", Operands: []core.Chain{core.NewChain(cloudLayer)}},
		),
	} {
		require.NoError(t, mapping.Add(def))
	}
	return mapping, layout
}

func newTestEngine(t *testing.T, opts ...func(*Config)) (*Engine, *countingCube) {
	t.Helper()

	mem := memory.New(nil)
	mem.Put("colortype", vector(t, 21, 22, 1, 21))
	mem.Put("cloud", vector(t, 0.1, 0.9, 0.2, 0.7))
	cube := &countingCube{
		Cube:   mem,
		counts: make(map[string]int),
		fail:   map[string]error{"elevation": errors.New("disk unavailable")},
	}

	mapping, layout := testIndexes(t)
	cfg := Config{
		Mapping: mapping,
		Layout:  layout,
		Cube:    cube,
		Verbs:   verbs.New(nil),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := New(cfg)
	require.NoError(t, err)
	return e, cube
}

func recipe(t *testing.T, entries ...core.Entry) *core.Recipe {
	t.Helper()
	r, err := core.NewRecipe(entries...)
	require.NoError(t, err)
	return r
}

func entry(name string, chain core.Chain) core.Entry {
	return core.Entry{Name: name, Chain: chain}
}

func result(name string) core.ResultRef {
	return core.Must(core.NewResult(name))
}

func evaluate(t *testing.T, e *Engine, r *core.Recipe) *Response {
	t.Helper()
	resp, err := e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, r.Len())
	return resp
}

func value(t *testing.T, resp *Response, name string) *core.Array {
	t.Helper()
	o, ok := resp.Get(name)
	require.True(t, ok, "no outcome for %q", name)
	require.NoError(t, o.Err, "entry %q failed", name)
	a, err := core.AsArray(o.Value)
	require.NoError(t, err)
	return a
}

func failure(t *testing.T, resp *Response, name string) error {
	t.Helper()
	o, ok := resp.Get(name)
	require.True(t, ok, "no outcome for %q", name)
	require.Error(t, o.Err, "entry %q should fail", name)
	assert.Nil(t, o.Value)
	return o.Err
}

func TestNew_RequiresCollaborators(t *testing.T) {
	mapping, layout := testIndexes(t)
	cube := memory.New(nil)
	verbEngine := verbs.New(nil)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"mapping", Config{Layout: layout, Cube: cube, Verbs: verbEngine}},
		{"layout", Config{Mapping: mapping, Cube: cube, Verbs: verbEngine}},
		{"cube", Config{Mapping: mapping, Layout: layout, Verbs: verbEngine}},
		{"verb", Config{Mapping: mapping, Layout: layout, Cube: cube}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
		})
	}

	e, err := New(Config{Mapping: mapping, Layout: layout, Cube: cube, Verbs: verbEngine})
	require.NoError(t, err)
	assert.Positive(t, e.Workers())
}

func TestEvaluate_NilRecipe(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Evaluate(context.Background(), nil)
	assert.Error(t, err)
}

func TestEvaluate_ConceptResolvedOnce(t *testing.T) {
	col := metrics.New()
	e, cube := newTestEngine(t, func(c *Config) { c.Metrics = col })

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(water)),
		entry("b", core.NewChain(water).Then("reduce", "count")),
		entry("c", core.NewChain(water.WithProperty("color"))),
		entry("d", core.NewChain(clearWater)),
	))

	assert.Equal(t, 0, resp.Failed())
	assert.Equal(t, 1, cube.count("colortype"), "layer must be fetched once per evaluation")
	assert.True(t, value(t, resp, "a").Equal(value(t, resp, "c")))
	assert.Equal(t, []float64{1, 1, 0, 1}, value(t, resp, "a").Data)
	assert.Equal(t, []float64{3}, value(t, resp, "b").Data)

	expected := `
# HELP semantique_datacube_fetches_total Layer fetches issued to the data cube
# TYPE semantique_datacube_fetches_total counter
semantique_datacube_fetches_total 2
# HELP semantique_resolver_cache_hits_total Memo cache hits, by reference kind
# TYPE semantique_resolver_cache_hits_total counter
semantique_resolver_cache_hits_total{kind="concept"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(col.Registry(), strings.NewReader(expected),
		"semantique_datacube_fetches_total", "semantique_resolver_cache_hits_total"))
}

func TestEvaluate_ResultEqualsItsDefinition(t *testing.T) {
	e, cube := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(water)),
		entry("b", core.NewChain(result("a"))),
		entry("c", core.NewChain(result("b")).Then("evaluate", "not")),
	))

	assert.True(t, value(t, resp, "a").Equal(value(t, resp, "b")))
	assert.Equal(t, []float64{0, 0, 1, 0}, value(t, resp, "c").Data)
	assert.Equal(t, 1, cube.count("colortype"))
}

func TestEvaluate_CyclicResults(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(result("b"))),
		entry("b", core.NewChain(result("a"))),
		entry("self", core.NewChain(water).Then("evaluate", "add", result("self"))),
		entry("ok", core.NewChain(water)),
	))

	for _, name := range []string{"a", "b", "self"} {
		assert.ErrorIs(t, failure(t, resp, name), core.ErrCyclicResultReference, name)
	}
	value(t, resp, "ok")
	assert.Equal(t, 3, resp.Failed())
	assert.Len(t, resp.Errors(), 3)
	assert.Len(t, resp.Values(), 1)
}

func TestEvaluate_CyclicConcept(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t, entry("l", core.NewChain(loop))))
	assert.ErrorIs(t, failure(t, resp, "l"), core.ErrCyclicConceptReference)
}

func TestEvaluate_FailuresAreIsolated(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("good", core.NewChain(water)),
		entry("missing", core.NewChain(fire)),
		entry("property", core.NewChain(water.WithProperty("texture"))),
		entry("ambiguous", core.NewChain(ambiguous)),
		entry("unknown", core.NewChain(result("nope"))),
		entry("after", core.NewChain(result("good")).Then("reduce", "sum")),
	))

	err := failure(t, resp, "missing")
	assert.ErrorIs(t, err, core.ErrPathNotFound)
	var re *core.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.True(t, core.Equal(result("missing"), re.Ref), "outermost failure is the entry itself, got %s", re.Ref)

	assert.ErrorIs(t, failure(t, resp, "property"), core.ErrPathNotFound)
	assert.ErrorIs(t, failure(t, resp, "ambiguous"), core.ErrAmbiguousProperty)
	assert.ErrorIs(t, failure(t, resp, "unknown"), core.ErrUnknownResult)

	assert.Equal(t, []float64{1, 1, 0, 1}, value(t, resp, "good").Data)
	assert.Equal(t, []float64{3}, value(t, resp, "after").Data)

	assert.Error(t, resp.Err())
	assert.Contains(t, resp.Err().Error(), "missing:")
}

func TestEvaluate_DefaultPropertySharesSignature(t *testing.T) {
	e, cube := newTestEngine(t)
	ec := e.NewContext(nil)
	ctx := context.Background()

	def, err := ec.Resolve(ctx, cloud)
	require.NoError(t, err)
	assert.True(t, ec.Cached(cloud.WithProperty("mask")))
	assert.False(t, ec.Cached(cloud), "memo is keyed by the effective property")

	mask, err := ec.Resolve(ctx, cloud.WithProperty("mask"))
	require.NoError(t, err)
	assert.Same(t, def, mask)

	raw, err := ec.Resolve(ctx, cloud.WithProperty("raw"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.9, 0.2, 0.7}, raw.(*core.Array).Data)
	assert.Equal(t, "cloud", raw.(*core.Array).Name, "concept output is named after the concept")
	assert.Equal(t, 1, cube.count("cloud"))
}

func TestEvaluate_CombineRules(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("clear", core.NewChain(clearWater)),
		entry("mixed", core.NewChain(mixed)),
	))

	cw := value(t, resp, "clear")
	assert.Equal(t, []float64{1, 0, 0, 0}, cw.Data)
	assert.Equal(t, "clearwater", cw.Name)
	assert.Equal(t, []float64{1, 11, 0, 11}, value(t, resp, "mixed").Data)
}

func TestSelf_OutsideChain(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.NewContext(nil).Resolve(context.Background(), core.Self())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidSelfReference)

	resp := evaluate(t, e, recipe(t,
		entry("bare", core.NewChain(core.Self())),
		entry("concept", core.NewChain(scaled)),
	))
	assert.ErrorIs(t, failure(t, resp, "bare"), core.ErrInvalidSelfReference)
	assert.ErrorIs(t, failure(t, resp, "concept"), core.ErrInvalidSelfReference)
}

func TestSelf_InsideVerbArguments(t *testing.T) {
	e, _ := newTestEngine(t)
	ec := e.NewContext(nil)
	ctx := context.Background()

	doubled, err := ec.Run(ctx, core.NewChain(colortype).Then("evaluate", "add", core.Self()))
	require.NoError(t, err)
	assert.Equal(t, []float64{42, 44, 2, 42}, doubled.(*core.Array).Data)

	nested := core.NewChain(core.Self()).Then("evaluate", "subtract", 1.0)
	shifted, err := ec.Run(ctx, core.NewChain(colortype).Then("evaluate", "subtract", nested))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, shifted.(*core.Array).Data)
}

func TestChain_MapArgumentsAreResolved(t *testing.T) {
	var got map[string]any
	v := verbs.New(nil)
	v.Register("pick", func(_ context.Context, _ core.Value, args []any) (core.Value, error) {
		got = args[0].(map[string]any)
		return got["other"].(core.Value), nil
	})
	e, cube := newTestEngine(t, func(cfg *Config) { cfg.Verbs = v })

	resp := evaluate(t, e, recipe(t,
		entry("water", core.NewChain(water)),
		entry("picked", core.NewChain(colortype).Then("pick", map[string]any{
			"other": core.Self(),
			"mask":  result("water"),
			"scale": 2.0,
		})),
	))

	assert.Equal(t, []float64{21, 22, 1, 21}, value(t, resp, "picked").Data)
	require.IsType(t, &core.Array{}, got["mask"])
	assert.Equal(t, []float64{1, 1, 0, 1}, got["mask"].(*core.Array).Data)
	assert.Equal(t, 2.0, got["scale"])
	assert.Equal(t, 1, cube.count("colortype"))
}

func TestSelf_CallerDependentConceptNotMemoized(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("water", core.NewChain(water).Then("evaluate", "add", scaled)),
		entry("colortype", core.NewChain(colortype).Then("evaluate", "subtract", scaled)),
	))

	assert.Equal(t, []float64{3, 3, 0, 3}, value(t, resp, "water").Data)
	assert.Equal(t, []float64{-21, -22, -1, -21}, value(t, resp, "colortype").Data)
}

func TestEvaluate_Collections(t *testing.T) {
	e, _ := newTestEngine(t)

	bundle := core.Must(core.NewCollection(water, cloud))
	withSelf := core.NewChain(core.Must(core.NewCollection(core.Self(), cloud))).Then("merge", "sum")
	nested := core.Must(core.NewCollection(core.Must(core.NewCollection(water)), cloud))
	isolated := core.NewChain(core.Must(core.NewCollection(scaled))).Then("merge", "sum")

	resp := evaluate(t, e, recipe(t,
		entry("bundle", core.NewChain(bundle)),
		entry("merged", core.NewChain(bundle).Then("merge", "sum")),
		entry("self", core.NewChain(water).Then("evaluate", "multiply", withSelf)),
		entry("nested", core.NewChain(nested)),
		entry("isolated", core.NewChain(water).Then("evaluate", "add", isolated)),
	))

	o, _ := resp.Get("bundle")
	require.NoError(t, o.Err)
	coll, ok := o.Value.(*core.Collection)
	require.True(t, ok, "collection resolves to a collection, got %T", o.Value)
	require.Equal(t, 2, coll.Len())
	assert.Equal(t, "water", coll.Elements[0].(*core.Array).Name)
	assert.Equal(t, "cloud", coll.Elements[1].(*core.Array).Name)

	assert.Equal(t, []float64{1, 2, 0, 2}, value(t, resp, "merged").Data)
	assert.Equal(t, []float64{1, 2, 0, 2}, value(t, resp, "self").Data)

	o, _ = resp.Get("nested")
	require.NoError(t, o.Err)
	inner, ok := o.Value.(*core.Collection).Elements[0].(*core.Collection)
	require.True(t, ok, "nested collections are not flattened")
	assert.Equal(t, 1, inner.Len())

	err := failure(t, resp, "isolated")
	assert.ErrorIs(t, err, core.ErrInvalidSelfReference)
	assert.Contains(t, err.Error(), "element 0")
}

func TestEvaluate_DriverError(t *testing.T) {
	e, cube := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(elevation)),
		entry("b", core.NewChain(elevation).Then("reduce", "mean")),
	))

	for _, name := range []string{"a", "b"} {
		var de *core.DriverError
		require.ErrorAs(t, failure(t, resp, name), &de)
		assert.Equal(t, "elevation", de.Locator.Source)
	}
	assert.Equal(t, 1, cube.count("elevation"), "failures are memoized")
}

func TestEvaluate_VerbError(t *testing.T) {
	e, _ := newTestEngine(t)

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(water).Then("evaluate", "not").Then("smooth", 3.0)),
	))

	var ve *core.VerbError
	require.ErrorAs(t, failure(t, resp, "a"), &ve)
	assert.Equal(t, "smooth", ve.Verb)
	assert.Equal(t, 1, ve.Step)
}

func TestEvaluate_Parallel(t *testing.T) {
	e, cube := newTestEngine(t, func(c *Config) {
		c.Parallel = true
		c.Workers = 4
	})

	var entries []core.Entry
	for i := range 16 {
		entries = append(entries,
			entry(fmt.Sprintf("water%02d", i), core.NewChain(water).Then("evaluate", "multiply", float64(i))),
			entry(fmt.Sprintf("clear%02d", i), core.NewChain(clearWater).Then("evaluate", "add", result(fmt.Sprintf("water%02d", i)))),
		)
	}
	r := recipe(t, entries...)
	resp := evaluate(t, e, r)

	assert.Equal(t, 0, resp.Failed())
	assert.Equal(t, 1, cube.count("colortype"))
	assert.Equal(t, 1, cube.count("cloud"))
	assert.Equal(t, r.Names()[3], resp.Outcomes[3].Name, "outcomes keep recipe order")
	assert.Equal(t, []float64{4, 3, 0, 3}, value(t, resp, "clear03").Data)
}

func TestEvaluate_ParallelFallsBackOnCycle(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.Parallel = true })

	resp := evaluate(t, e, recipe(t,
		entry("a", core.NewChain(result("b"))),
		entry("b", core.NewChain(result("a"))),
		entry("c", core.NewChain(water)),
	))

	assert.ErrorIs(t, failure(t, resp, "a"), core.ErrCyclicResultReference)
	assert.ErrorIs(t, failure(t, resp, "b"), core.ErrCyclicResultReference)
	value(t, resp, "c")
}

func TestEvaluate_RecordsRun(t *testing.T) {
	ctx := context.Background()
	store, err := state.OpenSQLite(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e, _ := newTestEngine(t, func(c *Config) {
		c.Store = store
		c.RunLabel = "test"
	})

	resp := evaluate(t, e, recipe(t,
		entry("good", core.NewChain(water)),
		entry("bad", core.NewChain(fire)),
	))
	require.NotEmpty(t, resp.RunID)

	run, err := store.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusPartial, run.Status)
	assert.Equal(t, "test", run.Label)

	results, err := store.ListResults(ctx, resp.RunID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "good", results[0].Name)
	assert.Equal(t, state.ResultStatusSuccess, results[0].Status)
	assert.Equal(t, []string{"x"}, results[0].Dims)
	assert.Equal(t, []int{4}, results[0].Shape)
	assert.Equal(t, 4, results[0].ValidCells)
	assert.Equal(t, state.ResultStatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "path not found")
}

func TestEvaluate_CanceledContext(t *testing.T) {
	e, cube := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := e.Evaluate(ctx, recipe(t, entry("a", core.NewChain(water))))
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Outcomes[0].Err, context.Canceled)
	assert.Equal(t, 0, cube.count("colortype"))
}
