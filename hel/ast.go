// Package hel implements the HEL (homoiconic expression language) evaluator
// core (spec §4.1): a tree-walking evaluator and an IR/trampoline evaluator
// sharing one AST, one environment model, and one builtin/capability-call
// dispatch. The package consumes a pre-built AST — HEL's concrete syntax and
// parser are out of scope (spec §1).
package hel

import "github.com/cos-systems/cos/value"

// Kind discriminates the Node tagged sum — HEL's AST.
type Kind int

const (
	NLit Kind = iota
	NSymbol
	NVector
	NMapLit
	NLet
	NFn
	NDefn
	NIf
	NWhen
	NCond
	NDo
	NApply
	NCall // effectful capability call: (call :capability.id args...)
	NStep
	NQuote
)

// Binding is one `let`/`let*` clause: Name bound to the value of Expr.
type Binding struct {
	Name string
	Expr *Node
}

// CondClause is one `cond` clause.
type CondClause struct {
	Test *Node
	Body *Node
}

// MapEntry is one key/value pair of a map literal. Keys are themselves
// expressions (typically NLit keywords or strings) so maps can be
// constructed with computed keys.
type MapEntry struct {
	Key *Node
	Val *Node
}

// Node is a single AST node. Only the fields relevant to Kind are populated.
type Node struct {
	Kind Kind

	// NLit, NQuote
	Lit value.Value

	// NSymbol
	Symbol string

	// NVector
	Items []*Node

	// NMapLit
	Entries []MapEntry

	// NLet
	Bindings []Binding
	Star     bool
	Body     []*Node

	// NFn, NDefn
	Name     string // NDefn only
	Params   []string
	Variadic string // empty if the function has no variadic trailing parameter
	FnBody   []*Node

	// NIf
	Cond *Node
	Then *Node
	Else *Node

	// NWhen
	WhenBody []*Node

	// NCond
	Clauses []CondClause

	// NDo
	DoBody []*Node

	// NApply
	Fn   *Node
	Args []*Node

	// NCall
	CapabilityID string
	CallArgs     []*Node

	// NStep
	Label    string
	StepBody []*Node
}

// Lit constructs a literal node.
func Lit(v value.Value) *Node { return &Node{Kind: NLit, Lit: v} }

// Sym constructs a symbol reference node.
func Sym(name string) *Node { return &Node{Kind: NSymbol, Symbol: name} }

// Vec constructs a vector literal node.
func Vec(items ...*Node) *Node { return &Node{Kind: NVector, Items: items} }

// MapLit constructs a map literal node.
func MapLit(entries ...MapEntry) *Node { return &Node{Kind: NMapLit, Entries: entries} }

// Let constructs a `let`/`let*` node. star selects sequential (`let*`)
// semantics; non-star `let` in this implementation also binds sequentially
// since HEL has no parallel-binding form distinct from `let*` in practice —
// callers wanting strict `let` may still pass star=false for documentation.
func Let(star bool, bindings []Binding, body ...*Node) *Node {
	return &Node{Kind: NLet, Star: star, Bindings: bindings, Body: body}
}

// Fn constructs an anonymous function literal node.
func Fn(params []string, variadic string, body ...*Node) *Node {
	return &Node{Kind: NFn, Params: params, Variadic: variadic, FnBody: body}
}

// Defn constructs a named function node, which — per spec §4.1 — additionally
// binds `name` in the enclosing lexical frame so it may be defined and
// invoked (including mutually-recursively) from within the same `let` body.
func Defn(name string, params []string, variadic string, body ...*Node) *Node {
	return &Node{Kind: NDefn, Name: name, Params: params, Variadic: variadic, FnBody: body}
}

// If constructs a conditional node. els may be nil (defaults to Nil).
func If(cond, then, els *Node) *Node { return &Node{Kind: NIf, Cond: cond, Then: then, Else: els} }

// When constructs a `when` node: evaluates body in order if cond is truthy,
// else yields Nil.
func When(cond *Node, body ...*Node) *Node { return &Node{Kind: NWhen, Cond: cond, WhenBody: body} }

// Cond constructs a `cond` node: the first clause whose Test is truthy has
// its Body evaluated; if none match the result is Nil.
func Cond(clauses ...CondClause) *Node { return &Node{Kind: NCond, Clauses: clauses} }

// Do constructs a sequential evaluation node yielding its last expression's
// value.
func Do(body ...*Node) *Node { return &Node{Kind: NDo, DoBody: body} }

// Apply constructs a function application node.
func Apply(fn *Node, args ...*Node) *Node { return &Node{Kind: NApply, Fn: fn, Args: args} }

// Call constructs an effectful capability-call node.
func Call(capabilityID string, args ...*Node) *Node {
	return &Node{Kind: NCall, CapabilityID: capabilityID, CallArgs: args}
}

// Step constructs a `step` node: the unit reported to the Causal Chain.
func Step(label string, body ...*Node) *Node {
	return &Node{Kind: NStep, Label: label, StepBody: body}
}

// Quote constructs a quoted data node, produced verbatim.
func Quote(v value.Value) *Node { return &Node{Kind: NQuote, Lit: v} }
