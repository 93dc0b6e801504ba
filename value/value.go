// Package value implements the HEL Value tagged sum and the conversion
// between Values and their JSON transport representation.
package value

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Tag discriminates the variants of Value.
type Tag int

const (
	TagNil Tag = iota
	TagBoolean
	TagInteger
	TagFloat
	TagString
	TagKeyword
	TagSymbol
	TagTimestamp
	TagUuid
	TagResourceHandle
	TagVector
	TagList
	TagMap
	TagFunction
	TagFunctionPlaceholder
	TagError
	TagAtom
)

// ErrInfo is the payload of a Value tagged Error.
type ErrInfo struct {
	Kind    string
	Message string
}

// Function is the payload of a Value tagged Function: either a builtin, a
// builtin needing evaluator context, or a user closure.
type Function struct {
	Name     string
	Builtin  func(args []Value) (Value, error)
	Special  func(evalCtx any, args []Value) (Value, error)
	Params   []string
	Variadic string // name of the variadic trailing parameter, empty if none
	Body     any    // opaque AST/IR node, interpreted by the hel package
	Env      any    // opaque captured environment, interpreted by the hel package
}

// Atom is a shared mutable cell — the sole mutable Value variant.
type Atom struct {
	v Value
}

// NewAtom wraps v in a fresh mutable cell.
func NewAtom(v Value) *Atom { return &Atom{v: v} }

// Deref reads the atom's current value.
func (a *Atom) Deref() Value { return a.v }

// Reset replaces the atom's value and returns it.
func (a *Atom) Reset(v Value) Value { a.v = v; return v }

// MapKey is a map key restricted to String, Keyword, or Integer, compared by
// (tag, value) identity.
type MapKey struct {
	Tag Tag
	S   string // used by TagString and TagKeyword
	I   int64  // used by TagInteger
}

// Value is the HEL tagged sum. Zero value is Nil.
type Value struct {
	tag Tag

	b   bool
	i   int64
	f   float64
	s   string // String, Keyword, Symbol
	ts  int64  // Timestamp, unix nanos
	u   uuid.UUID
	rh  string // ResourceHandle opaque id
	vec []Value
	lst []Value
	m   *orderedMap
	fn  *Function
	err *ErrInfo
	at  *Atom
}

// orderedMap preserves insertion order for deterministic iteration while
// enforcing unique keys, matching the Map invariant in the data model.
type orderedMap struct {
	keys []MapKey
	vals map[MapKey]Value
}

func newOrderedMap() *orderedMap {
	return &orderedMap{vals: make(map[MapKey]Value)}
}

func (m *orderedMap) set(k MapKey, v Value) {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

func (m *orderedMap) get(k MapKey) (Value, bool) {
	v, ok := m.vals[k]
	return v, ok
}

func (m *orderedMap) clone() *orderedMap {
	n := newOrderedMap()
	n.keys = append(n.keys, m.keys...)
	for k, v := range m.vals {
		n.vals[k] = v
	}
	return n
}

// Constructors.

func Nil() Value     { return Value{tag: TagNil} }
func Bool(b bool) Value  { return Value{tag: TagBoolean, b: b} }
func Int(i int64) Value  { return Value{tag: TagInteger, i: i} }
func Float(f float64) Value { return Value{tag: TagFloat, f: f} }
func Str(s string) Value    { return Value{tag: TagString, s: s} }
func Kw(s string) Value     { return Value{tag: TagKeyword, s: s} }
func Sym(s string) Value    { return Value{tag: TagSymbol, s: s} }
func Timestamp(unixNanos int64) Value { return Value{tag: TagTimestamp, ts: unixNanos} }
func Uuid(u uuid.UUID) Value          { return Value{tag: TagUuid, u: u} }
func ResourceHandle(id string) Value  { return Value{tag: TagResourceHandle, rh: id} }

func Vector(items ...Value) Value {
	return Value{tag: TagVector, vec: append([]Value(nil), items...)}
}

func List(items ...Value) Value {
	return Value{tag: TagList, lst: append([]Value(nil), items...)}
}

func Map(pairs map[MapKey]Value) Value {
	m := newOrderedMap()
	// deterministic insertion when constructed directly from a Go map
	keys := make([]MapKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tag != keys[j].Tag {
			return keys[i].Tag < keys[j].Tag
		}
		if keys[i].Tag == TagInteger {
			return keys[i].I < keys[j].I
		}
		return keys[i].S < keys[j].S
	})
	for _, k := range keys {
		m.set(k, pairs[k])
	}
	return Value{tag: TagMap, m: m}
}

// EmptyMap constructs an empty, order-preserving Map ready for Set.
func EmptyMap() Value { return Value{tag: TagMap, m: newOrderedMap()} }

// Set returns a new Map with k bound to v, preserving other bindings and
// insertion order. The receiver must be a Map.
func (v Value) Set(k MapKey, val Value) Value {
	if v.tag != TagMap {
		panic("value: Set called on non-Map Value")
	}
	cl := v.m.clone()
	cl.set(k, val)
	return Value{tag: TagMap, m: cl}
}

func Fn(f *Function) Value { return Value{tag: TagFunction, fn: f} }

func FunctionPlaceholder(name string) Value {
	return Value{tag: TagFunctionPlaceholder, s: name}
}

func ErrorValue(kind, message string) Value {
	return Value{tag: TagError, err: &ErrInfo{Kind: kind, Message: message}}
}

func AtomValue(a *Atom) Value { return Value{tag: TagAtom, at: a} }

// Accessors.

func (v Value) Tag() Tag { return v.tag }
func (v Value) IsNil() bool { return v.tag == TagNil }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s } // String, Keyword, Symbol share storage
func (v Value) AsTimestamp() int64 { return v.ts }
func (v Value) AsUuid() uuid.UUID  { return v.u }
func (v Value) AsResourceHandle() string { return v.rh }
func (v Value) AsVector() []Value { return v.vec }
func (v Value) AsList() []Value   { return v.lst }
func (v Value) AsFunction() *Function { return v.fn }
func (v Value) AsError() *ErrInfo     { return v.err }
func (v Value) AsAtom() *Atom         { return v.at }

// MapKeys returns the map's keys in insertion order. Panics if v is not a Map.
func (v Value) MapKeys() []MapKey {
	if v.tag != TagMap {
		panic("value: MapKeys called on non-Map Value")
	}
	return append([]MapKey(nil), v.m.keys...)
}

// MapGet looks up k in the map. Panics if v is not a Map.
func (v Value) MapGet(k MapKey) (Value, bool) {
	if v.tag != TagMap {
		panic("value: MapGet called on non-Map Value")
	}
	return v.m.get(k)
}

// MapLen returns the number of entries. Panics if v is not a Map.
func (v Value) MapLen() int {
	if v.tag != TagMap {
		panic("value: MapLen called on non-Map Value")
	}
	return len(v.m.keys)
}

// Len reports the length of a Vector, List, Map, or String; it is the
// underlying dimension used by the HEL `count`/`length` builtins (spec §8
// boundary behaviors).
func (v Value) Len() int {
	switch v.tag {
	case TagVector:
		return len(v.vec)
	case TagList:
		return len(v.lst)
	case TagMap:
		return len(v.m.keys)
	case TagString:
		return len(v.s)
	default:
		return 0
	}
}

// StringKey builds a MapKey for a string key.
func StringKey(s string) MapKey { return MapKey{Tag: TagString, S: s} }

// KeywordKey builds a MapKey for a keyword key.
func KeywordKey(s string) MapKey { return MapKey{Tag: TagKeyword, S: s} }

// IntKey builds a MapKey for an integer key.
func IntKey(i int64) MapKey { return MapKey{Tag: TagInteger, I: i} }

// Equal reports structural equality. Atom and Function are compared by
// identity; every other variant is compared by value.
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNil:
		return true
	case TagBoolean:
		return a.b == b.b
	case TagInteger:
		return a.i == b.i
	case TagFloat:
		return a.f == b.f
	case TagString, TagKeyword, TagSymbol:
		return a.s == b.s
	case TagTimestamp:
		return a.ts == b.ts
	case TagUuid:
		return a.u == b.u
	case TagResourceHandle:
		return a.rh == b.rh
	case TagVector:
		return equalSlice(a.vec, b.vec)
	case TagList:
		return equalSlice(a.lst, b.lst)
	case TagMap:
		if len(a.m.keys) != len(b.m.keys) {
			return false
		}
		for _, k := range a.m.keys {
			av, _ := a.m.get(k)
			bv, ok := b.m.get(k)
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case TagFunction:
		return a.fn == b.fn
	case TagFunctionPlaceholder:
		return a.s == b.s
	case TagError:
		return a.err.Kind == b.err.Kind && a.err.Message == b.err.Message
	case TagAtom:
		return a.at == b.at
	default:
		return false
	}
}

func equalSlice(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// String renders a debug/print form, not a parseable one.
func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBoolean:
		return fmt.Sprintf("%t", v.b)
	case TagInteger:
		return fmt.Sprintf("%d", v.i)
	case TagFloat:
		return fmt.Sprintf("%g", v.f)
	case TagString:
		return fmt.Sprintf("%q", v.s)
	case TagKeyword:
		return ":" + v.s
	case TagSymbol:
		return v.s
	case TagTimestamp:
		return fmt.Sprintf("#inst %d", v.ts)
	case TagUuid:
		return v.u.String()
	case TagResourceHandle:
		return "#resource " + v.rh
	case TagVector:
		return fmt.Sprintf("%v", v.vec)
	case TagList:
		return fmt.Sprintf("(%v)", v.lst)
	case TagMap:
		return "{map}"
	case TagFunction:
		return "#function"
	case TagFunctionPlaceholder:
		return "#placeholder:" + v.s
	case TagError:
		return fmt.Sprintf("#error{%s %s}", v.err.Kind, v.err.Message)
	case TagAtom:
		return "#atom"
	default:
		return "#unknown"
	}
}
