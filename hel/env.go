package hel

import "github.com/cos-systems/cos/value"

// Env is a lexical environment frame. Lookups walk Parent chains; all
// mutation is by rebinding a slot in some frame (Values themselves are
// structurally immutable except Atom, per spec §3).
type Env struct {
	Parent *Env
	slots  map[string]value.Value
}

// NewEnv constructs a root (parent-less) environment.
func NewEnv() *Env {
	return &Env{slots: make(map[string]value.Value)}
}

// Child constructs a new frame nested under e.
func (e *Env) Child() *Env {
	return &Env{Parent: e, slots: make(map[string]value.Value)}
}

// Define binds name to v in this frame, shadowing any outer binding.
func (e *Env) Define(name string, v value.Value) {
	e.slots[name] = v
}

// Lookup resolves name by walking the Parent chain.
func (e *Env) Lookup(name string) (value.Value, bool) {
	for f := e; f != nil; f = f.Parent {
		if v, ok := f.slots[name]; ok {
			return v, true
		}
	}
	return value.Value{}, false
}

// Rebind replaces the value of an already-bound name, walking the Parent
// chain to find the owning frame. It is used to resolve FunctionPlaceholder
// forward references once their defn has finished evaluating, enabling
// mutual recursion within a single let body (spec §4.1).
func (e *Env) Rebind(name string, v value.Value) bool {
	for f := e; f != nil; f = f.Parent {
		if _, ok := f.slots[name]; ok {
			f.slots[name] = v
			return true
		}
	}
	return false
}
