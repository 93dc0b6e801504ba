package hel

import "github.com/cos-systems/cos/value"

// errValue constructs a tagged Error Value (spec §4.1: evaluator errors are
// Values, not Go errors, so user code can pattern-match via `(try ...)`).
func errValue(kind, message string) value.Value { return value.ErrorValue(kind, message) }

const (
	errUnboundSymbol = "UnboundSymbol"
	errArity         = "ArityError"
	errType          = "TypeError"
	errNotCallable   = "NotCallable"
)

// Builtins returns the standard environment of builtin functions named in
// spec §8's boundary behaviors and core arithmetic/collection operations.
func Builtins() *Env {
	env := NewEnv()
	define(env, "+", biAdd)
	define(env, "-", biSub)
	define(env, "*", biMul)
	define(env, "=", biEq)
	define(env, ">", biGt)
	define(env, "<", biLt)
	define(env, "vector", biVector)
	define(env, "count", biCount)
	define(env, "length", biCount)
	defineSpecial(env, "reduce", specialReduce)
	defineSpecial(env, "map", specialMap)
	defineSpecial(env, "filter", specialFilter)
	return env
}

func define(env *Env, name string, f func(args []value.Value) (value.Value, error)) {
	env.Define(name, value.Fn(&value.Function{Name: name, Builtin: f}))
}

func defineSpecial(env *Env, name string, f func(evalCtx any, args []value.Value) (value.Value, error)) {
	env.Define(name, value.Fn(&value.Function{Name: name, Special: f}))
}

func numeric2(args []value.Value, name string) (a, b float64, isInt bool, ok bool) {
	if len(args) != 2 {
		return 0, 0, false, false
	}
	af, aIsInt, aok := toNum(args[0])
	bf, bIsInt, bok := toNum(args[1])
	if !aok || !bok {
		return 0, 0, false, false
	}
	return af, bf, aIsInt && bIsInt, true
}

func toNum(v value.Value) (float64, bool, bool) {
	switch v.Tag() {
	case value.TagInteger:
		return float64(v.AsInt()), true, true
	case value.TagFloat:
		return v.AsFloat(), false, true
	default:
		return 0, false, false
	}
}

func biAdd(args []value.Value) (value.Value, error) {
	var sumI int64
	var sumF float64
	allInt := true
	for _, a := range args {
		f, isInt, ok := toNum(a)
		if !ok {
			return errValue(errType, "+ requires numeric arguments"), nil
		}
		sumF += f
		if isInt {
			sumI += a.AsInt()
		} else {
			allInt = false
		}
	}
	if allInt {
		return value.Int(sumI), nil
	}
	return value.Float(sumF), nil
}

func biSub(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return errValue(errArity, "- requires at least one argument"), nil
	}
	first, isInt, ok := toNum(args[0])
	if !ok {
		return errValue(errType, "- requires numeric arguments"), nil
	}
	if len(args) == 1 {
		if isInt {
			return value.Int(-args[0].AsInt()), nil
		}
		return value.Float(-first), nil
	}
	resF := first
	resI := args[0].AsInt()
	allInt := isInt
	for _, a := range args[1:] {
		f, aIsInt, ok := toNum(a)
		if !ok {
			return errValue(errType, "- requires numeric arguments"), nil
		}
		resF -= f
		if aIsInt {
			resI -= a.AsInt()
		} else {
			allInt = false
		}
	}
	if allInt {
		return value.Int(resI), nil
	}
	return value.Float(resF), nil
}

func biMul(args []value.Value) (value.Value, error) {
	prodI := int64(1)
	prodF := 1.0
	allInt := true
	for _, a := range args {
		f, isInt, ok := toNum(a)
		if !ok {
			return errValue(errType, "* requires numeric arguments"), nil
		}
		prodF *= f
		if isInt {
			prodI *= a.AsInt()
		} else {
			allInt = false
		}
	}
	if allInt {
		return value.Int(prodI), nil
	}
	return value.Float(prodF), nil
}

func biEq(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Bool(true), nil
	}
	for i := 1; i < len(args); i++ {
		if !value.Equal(args[0], args[i]) {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}

func biGt(args []value.Value) (value.Value, error) {
	a, b, _, ok := numeric2(args, ">")
	if !ok {
		return errValue(errType, "> requires two numeric arguments"), nil
	}
	return value.Bool(a > b), nil
}

func biLt(args []value.Value) (value.Value, error) {
	a, b, _, ok := numeric2(args, "<")
	if !ok {
		return errValue(errType, "< requires two numeric arguments"), nil
	}
	return value.Bool(a < b), nil
}

func biVector(args []value.Value) (value.Value, error) {
	return value.Vector(args...), nil
}

func biCount(args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return errValue(errArity, "count/length takes exactly one argument"), nil
	}
	return value.Int(int64(args[0].Len())), nil
}

// specialReduce implements `(reduce f init coll)` and `(reduce f coll)`
// (spec §8: `(reduce + 42 [])` = 42; `(reduce + [1 2 3])` = 6). It accepts
// any callable Value — builtin, special, or user-defined HEL closure.
func specialReduce(evalCtx any, args []value.Value) (value.Value, error) {
	sc := evalCtx.(specialCall)
	if len(args) != 2 && len(args) != 3 {
		return errValue(errArity, "reduce takes (f coll) or (f init coll)"), nil
	}
	fn := args[0]
	var acc value.Value
	var coll []value.Value
	if len(args) == 3 {
		acc = args[1]
		coll = itemsOf(args[2])
	} else {
		items := itemsOf(args[1])
		if len(items) == 0 {
			return errValue(errArity, "reduce with no init requires a non-empty collection"), nil
		}
		acc = items[0]
		coll = items[1:]
	}
	for _, item := range coll {
		res, err := sc.in.ApplyValue(sc.ctx, fn, []value.Value{acc, item})
		if err != nil {
			return value.Value{}, err
		}
		if isError(res) {
			return res, nil
		}
		acc = res
	}
	return acc, nil
}

func itemsOf(v value.Value) []value.Value {
	switch v.Tag() {
	case value.TagVector:
		return v.AsVector()
	case value.TagList:
		return v.AsList()
	default:
		return nil
	}
}

// specialMap and specialFilter accept any callable Value (builtin, special,
// or a user `fn`/`defn` closure) since they run through ApplyValue rather
// than invoking Function.Builtin directly.
func specialMap(evalCtx any, args []value.Value) (value.Value, error) {
	sc := evalCtx.(specialCall)
	if len(args) != 2 {
		return errValue(errArity, "map takes (f coll)"), nil
	}
	items := itemsOf(args[1])
	out := make([]value.Value, len(items))
	for i, item := range items {
		res, err := sc.in.ApplyValue(sc.ctx, args[0], []value.Value{item})
		if err != nil {
			return value.Value{}, err
		}
		if isError(res) {
			return res, nil
		}
		out[i] = res
	}
	return value.Vector(out...), nil
}

func specialFilter(evalCtx any, args []value.Value) (value.Value, error) {
	sc := evalCtx.(specialCall)
	if len(args) != 2 {
		return errValue(errArity, "filter takes (f coll)"), nil
	}
	items := itemsOf(args[1])
	var out []value.Value
	for _, item := range items {
		res, err := sc.in.ApplyValue(sc.ctx, args[0], []value.Value{item})
		if err != nil {
			return value.Value{}, err
		}
		if isError(res) {
			return res, nil
		}
		if res.Tag() == value.TagBoolean && res.AsBool() {
			out = append(out, item)
		}
	}
	return value.Vector(out...), nil
}
