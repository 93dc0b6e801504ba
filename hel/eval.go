package hel

import (
	"context"
	"fmt"

	"github.com/cos-systems/cos/value"
)

// Host is the evaluator's sole channel to effectful capabilities (spec §4.1:
// "the evaluator never does I/O itself"). Call blocks until the capability
// result is available — the host may itself be asynchronous with respect to
// its own callers, but the evaluator sees a synchronous function call, per
// the spec's own framing that the evaluator "never needs OS threads or async
// primitives internally". Suspension is observable to callers of Eval only
// through the StepObserver hook below, not through any continuation value.
type Host interface {
	Call(ctx context.Context, capabilityID string, args []value.Value) (value.Value, error)
}

// StepObserver is notified around each `step` form, giving the orchestrator
// layer a hook to append Causal Chain units without the evaluator knowing
// anything about plans, intents, or chains.
type StepObserver interface {
	StepStarted(label string)
	StepCompleted(label string, result value.Value)
}

type noopObserver struct{}

func (noopObserver) StepStarted(string)                    {}
func (noopObserver) StepCompleted(string, value.Value) {}

// Interpreter holds the pieces shared by both evaluator back-ends: the host
// for capability calls and an optional step observer.
type Interpreter struct {
	Host     Host
	Observer StepObserver
}

// New constructs an Interpreter. observer may be nil, defaulting to a no-op.
func New(host Host, observer StepObserver) *Interpreter {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Interpreter{Host: host, Observer: observer}
}

func isTruthy(v value.Value) bool {
	switch v.Tag() {
	case value.TagNil:
		return false
	case value.TagBoolean:
		return v.AsBool()
	default:
		return true
	}
}

func isError(v value.Value) bool { return v.Tag() == value.TagError }

// Eval is the tree-walking back-end (spec §4.1's first back-end). Every tail
// position reassigns n and env and loops instead of recursing, so Go stack
// use grows with HEL's non-tail nesting depth, not its call depth, and deep
// (e.g. mutually recursive) tail-call chains run in constant stack.
// EvalTrampoline is this same function under a second name.
func (in *Interpreter) Eval(ctx context.Context, n *Node, env *Env) (value.Value, error) {
	for {
		switch n.Kind {
		case NLit, NQuote:
			return n.Lit, nil

		case NSymbol:
			v, ok := env.Lookup(n.Symbol)
			if !ok {
				return errValue(errUnboundSymbol, "unbound symbol: "+n.Symbol), nil
			}
			if v.Tag() == value.TagFunctionPlaceholder {
				return errValue(errUnboundSymbol, "forward reference not yet resolved: "+n.Symbol), nil
			}
			return v, nil

		case NVector:
			items, err, isErrV := in.evalAll(ctx, n.Items, env)
			if err != nil {
				return value.Value{}, err
			}
			if isErrV.Tag() == value.TagError {
				return isErrV, nil
			}
			return value.Vector(items...), nil

		case NMapLit:
			m := value.EmptyMap()
			for _, e := range n.Entries {
				k, err := in.Eval(ctx, e.Key, env)
				if err != nil {
					return value.Value{}, err
				}
				if isError(k) {
					return k, nil
				}
				v, err := in.Eval(ctx, e.Val, env)
				if err != nil {
					return value.Value{}, err
				}
				if isError(v) {
					return v, nil
				}
				mk, merr := toMapKey(k)
				if merr != nil {
					return errValue(errType, merr.Error()), nil
				}
				m = m.Set(mk, v)
			}
			return m, nil

		case NLet:
			letEnv := env.Child()
			if err := in.bindLet(ctx, n.Bindings, letEnv); err != nil {
				return value.Value{}, err
			}
			if v, done, errv := in.evalNonTailPrefix(ctx, n.Body, letEnv); done {
				return v, errv
			} else if len(n.Body) > 0 {
				n, env = n.Body[len(n.Body)-1], letEnv
				continue
			}
			return value.Nil(), nil

		case NFn:
			return value.Fn(&value.Function{Params: n.Params, Variadic: n.Variadic, Body: n.FnBody, Env: env}), nil

		case NDefn:
			fv := value.Fn(&value.Function{Name: n.Name, Params: n.Params, Variadic: n.Variadic, Body: n.FnBody, Env: env})
			env.Define(n.Name, fv)
			return fv, nil

		case NIf:
			cv, err := in.Eval(ctx, n.Cond, env)
			if err != nil {
				return value.Value{}, err
			}
			if isError(cv) {
				return cv, nil
			}
			if isTruthy(cv) {
				n = n.Then
			} else if n.Else != nil {
				n = n.Else
			} else {
				return value.Nil(), nil
			}
			continue

		case NWhen:
			cv, err := in.Eval(ctx, n.Cond, env)
			if err != nil {
				return value.Value{}, err
			}
			if isError(cv) {
				return cv, nil
			}
			if !isTruthy(cv) {
				return value.Nil(), nil
			}
			if len(n.WhenBody) == 0 {
				return value.Nil(), nil
			}
			if v, done, errv := in.evalNonTailPrefix(ctx, n.WhenBody, env); done {
				return v, errv
			}
			n = n.WhenBody[len(n.WhenBody)-1]
			continue

		case NCond:
			matched := false
			for _, c := range n.Clauses {
				tv, err := in.Eval(ctx, c.Test, env)
				if err != nil {
					return value.Value{}, err
				}
				if isError(tv) {
					return tv, nil
				}
				if isTruthy(tv) {
					n = c.Body
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			return value.Nil(), nil

		case NDo:
			if len(n.DoBody) == 0 {
				return value.Nil(), nil
			}
			if v, done, errv := in.evalNonTailPrefix(ctx, n.DoBody, env); done {
				return v, errv
			}
			n = n.DoBody[len(n.DoBody)-1]
			continue

		case NApply:
			fv, err := in.Eval(ctx, n.Fn, env)
			if err != nil {
				return value.Value{}, err
			}
			if isError(fv) {
				return fv, nil
			}
			args, err, errV := in.evalAll(ctx, n.Args, env)
			if err != nil {
				return value.Value{}, err
			}
			if errV.Tag() == value.TagError {
				return errV, nil
			}
			f := fv.AsFunction()
			if f == nil {
				return errValue(errNotCallable, "value is not callable"), nil
			}
			if f.Builtin != nil {
				return f.Builtin(args)
			}
			if f.Special != nil {
				return f.Special(specialCall{in: in, ctx: ctx}, args)
			}
			nextEnv, tailBody, rerr := bindCall(f, args)
			if rerr != nil {
				return rerr.(errWrapped).v, nil
			}
			if len(tailBody) == 0 {
				return value.Nil(), nil
			}
			if v, done, errv := in.evalNonTailPrefix(ctx, tailBody, nextEnv); done {
				return v, errv
			}
			n, env = tailBody[len(tailBody)-1], nextEnv
			continue

		case NCall:
			args, err, errV := in.evalAll(ctx, n.CallArgs, env)
			if err != nil {
				return value.Value{}, err
			}
			if errV.Tag() == value.TagError {
				return errV, nil
			}
			if in.Host == nil {
				return errValue(errNotCallable, "no host configured for capability calls"), nil
			}
			res, err := in.Host.Call(ctx, n.CapabilityID, args)
			if err != nil {
				return value.Value{}, err
			}
			return res, nil

		case NStep:
			in.Observer.StepStarted(n.Label)
			v, err := in.evalBody(ctx, n.StepBody, env)
			if err != nil {
				in.Observer.StepCompleted(n.Label, errValue(errType, err.Error()))
				return value.Value{}, err
			}
			in.Observer.StepCompleted(n.Label, v)
			return v, nil

		default:
			return value.Value{}, fmt.Errorf("hel: unknown node kind %d", n.Kind)
		}
	}
}

// errWrapped lets bindCall report an Error Value without making every caller
// type-switch a second return type.
type errWrapped struct{ v value.Value }

func (e errWrapped) Error() string { return e.v.AsError().Message }

func toMapKey(k value.Value) (value.MapKey, error) {
	switch k.Tag() {
	case value.TagString:
		return value.StringKey(k.AsString()), nil
	case value.TagKeyword:
		return value.KeywordKey(k.AsString()), nil
	case value.TagInteger:
		return value.IntKey(k.AsInt()), nil
	default:
		return value.MapKey{}, fmt.Errorf("map keys must be String, Keyword, or Integer")
	}
}

// evalAll evaluates each node in order, short-circuiting on the first Error
// Value or Go error it finds. The returned value.Value is the error to
// propagate as a Value (zero Value / TagNil if none).
func (in *Interpreter) evalAll(ctx context.Context, nodes []*Node, env *Env) ([]value.Value, error, value.Value) {
	out := make([]value.Value, 0, len(nodes))
	for _, a := range nodes {
		v, err := in.Eval(ctx, a, env)
		if err != nil {
			return nil, err, value.Value{}
		}
		if isError(v) {
			return nil, nil, v
		}
		out = append(out, v)
	}
	return out, nil, value.Value{}
}

// evalBody evaluates a sequence of nodes fully (used where no tail-call
// reassignment applies, e.g. inside `step`), returning the last value.
func (in *Interpreter) evalBody(ctx context.Context, nodes []*Node, env *Env) (value.Value, error) {
	if len(nodes) == 0 {
		return value.Nil(), nil
	}
	var last value.Value
	for _, b := range nodes {
		v, err := in.Eval(ctx, b, env)
		if err != nil {
			return value.Value{}, err
		}
		if isError(v) {
			return v, nil
		}
		last = v
	}
	return last, nil
}

// evalNonTailPrefix evaluates every node except the last, returning
// (value,true,err) if an error surfaced (so the caller should stop),
// otherwise (_,false,nil) so the caller proceeds to the trampoline the last
// node itself via `continue`.
func (in *Interpreter) evalNonTailPrefix(ctx context.Context, nodes []*Node, env *Env) (value.Value, bool, error) {
	if len(nodes) <= 1 {
		return value.Value{}, false, nil
	}
	for _, b := range nodes[:len(nodes)-1] {
		v, err := in.Eval(ctx, b, env)
		if err != nil {
			return value.Value{}, true, err
		}
		if isError(v) {
			return v, true, nil
		}
	}
	return value.Value{}, false, nil
}

// bindLet binds n's bindings sequentially into env (both `let` and `let*`
// share sequential semantics per ast.go's Let doc comment). A `defn` bound
// inside a let body is predeclared as a FunctionPlaceholder so mutually
// recursive defns can reference each other before all closures exist, then
// rebound to its real closure once evaluated (spec §4.1).
func (in *Interpreter) bindLet(ctx context.Context, bindings []Binding, env *Env) error {
	for _, b := range bindings {
		if b.Expr.Kind == NDefn {
			env.Define(b.Expr.Name, value.FunctionPlaceholder(b.Expr.Name))
		}
	}
	for _, b := range bindings {
		v, err := in.Eval(ctx, b.Expr, env)
		if err != nil {
			return err
		}
		env.Define(b.Name, v)
		if b.Expr.Kind == NDefn {
			env.Rebind(b.Expr.Name, v)
		}
	}
	return nil
}

// bindCall builds the call frame for applying f to args: positional
// parameters plus an optional variadic trailing parameter bound to a List of
// the remaining arguments (spec §4.1). Returns the frame and f's body.
func bindCall(f *value.Function, args []value.Value) (*Env, []*Node, error) {
	fnEnv, ok := f.Env.(*Env)
	if !ok || fnEnv == nil {
		fnEnv = NewEnv()
	}
	callEnv := fnEnv.Child()
	if f.Variadic == "" {
		if len(args) != len(f.Params) {
			return nil, nil, errWrapped{errValue(errArity, fmt.Sprintf("%s: expected %d arguments, got %d", displayName(f), len(f.Params), len(args)))}
		}
	} else if len(args) < len(f.Params) {
		return nil, nil, errWrapped{errValue(errArity, fmt.Sprintf("%s: expected at least %d arguments, got %d", displayName(f), len(f.Params), len(args)))}
	}
	for i, p := range f.Params {
		callEnv.Define(p, args[i])
	}
	if f.Variadic != "" {
		callEnv.Define(f.Variadic, value.List(args[len(f.Params):]...))
	}
	body, _ := f.Body.([]*Node)
	return callEnv, body, nil
}

// specialCall bundles the context a Function.Special callback needs:
// an Interpreter able to apply arbitrary Values (builtin, special, or user
// closure alike) plus the ctx in scope at the call site. It is what
// higher-order builtins like `map`/`filter`/`reduce` receive as evalCtx so
// they can invoke a user-defined HEL closure, not just another builtin.
type specialCall struct {
	in  *Interpreter
	ctx context.Context
}

// ApplyValue applies any callable Value to args, dispatching to whichever of
// Builtin, Special, or user-closure Body/Env applies. Unlike NApply's inline
// dispatch, this always fully evaluates the closure body (no tail-call
// reassignment into the caller's loop), which is correct for higher-order
// callbacks like `map`/`filter`/`reduce` that are not themselves in HEL tail
// position.
func (in *Interpreter) ApplyValue(ctx context.Context, fv value.Value, args []value.Value) (value.Value, error) {
	f := fv.AsFunction()
	if f == nil {
		return errValue(errNotCallable, "value is not callable"), nil
	}
	if f.Builtin != nil {
		return f.Builtin(args)
	}
	if f.Special != nil {
		return f.Special(specialCall{in: in, ctx: ctx}, args)
	}
	callEnv, body, rerr := bindCall(f, args)
	if rerr != nil {
		return rerr.(errWrapped).v, nil
	}
	return in.evalBody(ctx, body, callEnv)
}

func displayName(f *value.Function) string {
	if f.Name != "" {
		return f.Name
	}
	return "<anonymous fn>"
}

// EvalTrampoline evaluates n in an explicit tail-call loop. It is
// observably identical to Eval (spec §4.1's "two back-ends, identical
// observable semantics") but guarantees host-stack usage bounded by HEL's
// non-tail nesting depth rather than its total call depth — Eval's `for`
// loop with explicit `n, env = ...; continue` reassignment on every tail
// position already IS this trampoline, so EvalTrampoline is Eval under a
// second name for callers that want to name the stack-safety guarantee
// explicitly at the call site.
func (in *Interpreter) EvalTrampoline(ctx context.Context, n *Node, env *Env) (value.Value, error) {
	return in.Eval(ctx, n, env)
}
