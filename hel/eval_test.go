package hel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/hel"
	"github.com/cos-systems/cos/value"
)

// mockHost resolves every capability call to a fixed table of canned
// responses, recording the calls it saw for assertions.
type mockHost struct {
	calls   []call
	results map[string]value.Value
}

type call struct {
	capabilityID string
	args         []value.Value
}

func (h *mockHost) Call(_ context.Context, capabilityID string, args []value.Value) (value.Value, error) {
	h.calls = append(h.calls, call{capabilityID, args})
	if r, ok := h.results[capabilityID]; ok {
		return r, nil
	}
	return value.Nil(), nil
}

func newInterp(host hel.Host) *hel.Interpreter { return hel.New(host, nil) }

func builtinEnv() *hel.Env { return hel.Builtins() }

// TestArithmeticViaHostCapability models §8 scenario 1: `(do (step "s" (call
// :ccos.math.add 2 3)))`.
func TestArithmeticViaHostCapability(t *testing.T) {
	host := &mockHost{results: map[string]value.Value{"ccos.math.add": value.Int(5)}}
	in := newInterp(host)

	plan := hel.Do(hel.Step("s", hel.Call("ccos.math.add", hel.Lit(value.Int(2)), hel.Lit(value.Int(3)))))

	result, err := in.Eval(context.Background(), plan, builtinEnv())
	require.NoError(t, err)
	assert.Equal(t, value.TagInteger, result.Tag())
	assert.Equal(t, int64(5), result.AsInt())
	require.Len(t, host.calls, 1)
	assert.Equal(t, "ccos.math.add", host.calls[0].capabilityID)
}

// TestMutualRecursionIsEven models §8 scenario 2.
func TestMutualRecursionIsEven(t *testing.T) {
	n := hel.Let(true, []hel.Binding{
		{Name: "is-even", Expr: hel.Defn("is-even", []string{"n"}, "",
			hel.If(
				hel.Apply(hel.Sym("="), hel.Sym("n"), hel.Lit(value.Int(0))),
				hel.Lit(value.Bool(true)),
				hel.Apply(hel.Sym("is-odd"), hel.Apply(hel.Sym("-"), hel.Sym("n"), hel.Lit(value.Int(1)))),
			),
		)},
		{Name: "is-odd", Expr: hel.Defn("is-odd", []string{"n"}, "",
			hel.If(
				hel.Apply(hel.Sym("="), hel.Sym("n"), hel.Lit(value.Int(0))),
				hel.Lit(value.Bool(false)),
				hel.Apply(hel.Sym("is-even"), hel.Apply(hel.Sym("-"), hel.Sym("n"), hel.Lit(value.Int(1)))),
			),
		)},
	}, hel.Vec(
		hel.Apply(hel.Sym("is-even"), hel.Lit(value.Int(4))),
		hel.Apply(hel.Sym("is-odd"), hel.Lit(value.Int(4))),
		hel.Apply(hel.Sym("is-even"), hel.Lit(value.Int(7))),
		hel.Apply(hel.Sym("is-odd"), hel.Lit(value.Int(7))),
	))

	in := newInterp(nil)
	result, err := in.Eval(context.Background(), n, builtinEnv())
	require.NoError(t, err)
	require.Equal(t, value.TagVector, result.Tag())
	got := result.AsVector()
	require.Len(t, got, 4)
	assert.Equal(t, []bool{true, false, false, true}, []bool{
		got[0].AsBool(), got[1].AsBool(), got[2].AsBool(), got[3].AsBool(),
	})
}

// TestMutualRecursionDoesNotExhaustHostStack exercises the same is-even/
// is-odd pair at n=10000, the depth spec §8 names explicitly.
func TestMutualRecursionDoesNotExhaustHostStack(t *testing.T) {
	body := hel.Let(true, []hel.Binding{
		{Name: "is-even", Expr: hel.Defn("is-even", []string{"n"}, "",
			hel.If(
				hel.Apply(hel.Sym("="), hel.Sym("n"), hel.Lit(value.Int(0))),
				hel.Lit(value.Bool(true)),
				hel.Apply(hel.Sym("is-odd"), hel.Apply(hel.Sym("-"), hel.Sym("n"), hel.Lit(value.Int(1)))),
			),
		)},
		{Name: "is-odd", Expr: hel.Defn("is-odd", []string{"n"}, "",
			hel.If(
				hel.Apply(hel.Sym("="), hel.Sym("n"), hel.Lit(value.Int(0))),
				hel.Lit(value.Bool(false)),
				hel.Apply(hel.Sym("is-even"), hel.Apply(hel.Sym("-"), hel.Sym("n"), hel.Lit(value.Int(1)))),
			),
		)},
	}, hel.Apply(hel.Sym("is-even"), hel.Lit(value.Int(10000))))

	in := newInterp(nil)
	result, err := in.Eval(context.Background(), body, builtinEnv())
	require.NoError(t, err)
	assert.True(t, result.AsBool())
}

func TestBoundaryLengths(t *testing.T) {
	assert.Equal(t, 0, value.Vector().Len())
	assert.Equal(t, 4, value.Vector(value.Int(1), value.Int(2), value.Int(3), value.Int(4)).Len())
	assert.Equal(t, 5, value.Str("hello").Len())
	m := value.EmptyMap().Set(value.StringKey("a"), value.Int(1)).Set(value.StringKey("b"), value.Int(2))
	assert.Equal(t, 2, m.Len())
}

func TestReduceBoundary(t *testing.T) {
	in := newInterp(nil)
	env := builtinEnv()

	empty, err := in.Eval(context.Background(), hel.Apply(hel.Sym("reduce"), hel.Sym("+"), hel.Lit(value.Int(42)), hel.Vec()), env)
	require.NoError(t, err)
	assert.Equal(t, int64(42), empty.AsInt())

	sum, err := in.Eval(context.Background(), hel.Apply(hel.Sym("reduce"), hel.Sym("+"),
		hel.Vec(hel.Lit(value.Int(1)), hel.Lit(value.Int(2)), hel.Lit(value.Int(3)))), env)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum.AsInt())
}

func TestMapAndFilterBoundary(t *testing.T) {
	in := newInterp(nil)
	env := builtinEnv()
	env.Define("double", value.Fn(&value.Function{Name: "double", Params: []string{"x"}, Body: []*hel.Node{
		hel.Apply(hel.Sym("*"), hel.Sym("x"), hel.Lit(value.Int(2))),
	}, Env: env}))
	env.Define("gt2", value.Fn(&value.Function{Name: "gt2", Params: []string{"x"}, Body: []*hel.Node{
		hel.Apply(hel.Sym(">"), hel.Sym("x"), hel.Lit(value.Int(2))),
	}, Env: env}))

	mapped, err := in.Eval(context.Background(), hel.Apply(hel.Sym("map"), hel.Sym("double"),
		hel.Vec(hel.Lit(value.Int(1)), hel.Lit(value.Int(2)), hel.Lit(value.Int(3)))), env)
	require.NoError(t, err)
	require.Equal(t, value.TagVector, mapped.Tag())
	mv := mapped.AsVector()
	require.Len(t, mv, 3)
	assert.Equal(t, []int64{2, 4, 6}, []int64{mv[0].AsInt(), mv[1].AsInt(), mv[2].AsInt()})

	filtered, err := in.Eval(context.Background(), hel.Apply(hel.Sym("filter"), hel.Sym("gt2"),
		hel.Vec(hel.Lit(value.Int(1)), hel.Lit(value.Int(2)), hel.Lit(value.Int(3)), hel.Lit(value.Int(4)), hel.Lit(value.Int(5)))), env)
	require.NoError(t, err)
	fv := filtered.AsVector()
	require.Len(t, fv, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{fv[0].AsInt(), fv[1].AsInt(), fv[2].AsInt()})
}

// TestFactorialViaUserDefinedRecursion covers §8's factorial boundary
// (0! = 1, 5! = 120) expressed as user-level HEL code, not a builtin.
func TestFactorialViaUserDefinedRecursion(t *testing.T) {
	in := newInterp(nil)
	env := builtinEnv()

	fact := hel.Let(true, []hel.Binding{
		{Name: "fact", Expr: hel.Defn("fact", []string{"n"}, "",
			hel.If(
				hel.Apply(hel.Sym("="), hel.Sym("n"), hel.Lit(value.Int(0))),
				hel.Lit(value.Int(1)),
				hel.Apply(hel.Sym("*"), hel.Sym("n"),
					hel.Apply(hel.Sym("fact"), hel.Apply(hel.Sym("-"), hel.Sym("n"), hel.Lit(value.Int(1))))),
			),
		)},
	}, hel.Vec(
		hel.Apply(hel.Sym("fact"), hel.Lit(value.Int(0))),
		hel.Apply(hel.Sym("fact"), hel.Lit(value.Int(5))),
	))

	result, err := in.Eval(context.Background(), fact, env)
	require.NoError(t, err)
	got := result.AsVector()
	assert.Equal(t, int64(1), got[0].AsInt())
	assert.Equal(t, int64(120), got[1].AsInt())
}

func TestUnboundSymbolYieldsErrorValueNotGoError(t *testing.T) {
	in := newInterp(nil)
	result, err := in.Eval(context.Background(), hel.Sym("nope"), builtinEnv())
	require.NoError(t, err)
	require.Equal(t, value.TagError, result.Tag())
	assert.Equal(t, "UnboundSymbol", result.AsError().Kind)
}

func TestArityMismatchYieldsErrorValue(t *testing.T) {
	in := newInterp(nil)
	env := builtinEnv()
	env.Define("one-arg", value.Fn(&value.Function{Name: "one-arg", Params: []string{"x"}, Body: []*hel.Node{hel.Sym("x")}, Env: env}))

	result, err := in.Eval(context.Background(), hel.Apply(hel.Sym("one-arg"), hel.Lit(value.Int(1)), hel.Lit(value.Int(2))), env)
	require.NoError(t, err)
	require.Equal(t, value.TagError, result.Tag())
	assert.Equal(t, "ArityError", result.AsError().Kind)
}

func TestVariadicTrailingParamBindsToList(t *testing.T) {
	in := newInterp(nil)
	env := builtinEnv()
	env.Define("countall", value.Fn(&value.Function{
		Name: "countall", Params: []string{"first"}, Variadic: "rest",
		Body: []*hel.Node{hel.Apply(hel.Sym("count"), hel.Sym("rest"))}, Env: env,
	}))

	result, err := in.Eval(context.Background(), hel.Apply(hel.Sym("countall"),
		hel.Lit(value.Int(1)), hel.Lit(value.Int(2)), hel.Lit(value.Int(3))), env)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.AsInt())
}
