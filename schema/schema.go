// Package schema implements the small schema validation language used by
// the Capability Marketplace and the synthesis validation harness (spec
// §4.2, §4.5): primitives, Vector[T], Map{required/optional/wildcard},
// and Refined{base, predicates}.
//
// The Map/Vector structural shape and Refined's predicate composition (>,
// >=, <, <=, =, MinLength, MatchesRegex against HEL Values, including
// Keyword which has no native JSON Schema type) are all checked by the
// hand-written validator below, directly against the value.Value tree; the
// language is not translated to JSON Schema. santhosh-tekuri/jsonschema/v6
// is used only by CompileJSONSchema, for third-party JSON Schema documents.
package schema

import (
	"fmt"
	"regexp"

	"github.com/cos-systems/cos/value"
)

// Kind discriminates the schema language's node types.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	KindBool
	KindNil
	KindKeyword
	KindVector
	KindMap
	KindRefined
	KindAny
)

// Severity of an Issue returned by a predicate or analyzer.
type Severity string

const (
	SeverityInfo  Severity = "Info"
	SeverityWarn  Severity = "Warn"
	SeverityError Severity = "Error"
)

// Issue is a single validation or analysis finding.
type Issue struct {
	Path     string
	Message  string
	Severity Severity
}

// MapSpec describes a Map{} schema's key shape.
type MapSpec struct {
	Required map[string]*Schema
	Optional map[string]*Schema
	// Wildcard, if non-nil, validates any key not named in Required/Optional.
	// If nil, unnamed keys are rejected (closed map).
	Wildcard *Schema
}

// PredicateOp names a Refined comparison operator.
type PredicateOp string

const (
	OpGt PredicateOp = ">"
	OpGe PredicateOp = ">="
	OpLt PredicateOp = "<"
	OpLe PredicateOp = "<="
	OpEq PredicateOp = "="
)

// Predicate is one clause of a Refined schema.
type Predicate struct {
	Op            PredicateOp // comparison predicates
	Literal       value.Value
	MinLength     int // MinLength predicate when HasMinLength is set
	HasMinLength  bool
	MatchesRegex  *regexp.Regexp // MatchesRegex predicate when non-nil
}

// Schema is a node in the schema validation language.
type Schema struct {
	Kind Kind

	// Vector
	Elem *Schema

	// Map
	MapSpec *MapSpec

	// Refined
	Base       *Schema
	Predicates []Predicate
}

// Primitive constructors.
func Int() *Schema     { return &Schema{Kind: KindInt} }
func Float() *Schema   { return &Schema{Kind: KindFloat} }
func String() *Schema  { return &Schema{Kind: KindString} }
func Bool() *Schema    { return &Schema{Kind: KindBool} }
func NilType() *Schema { return &Schema{Kind: KindNil} }
func Keyword() *Schema { return &Schema{Kind: KindKeyword} }
func Any() *Schema     { return &Schema{Kind: KindAny} }

// VectorOf constructs a Vector[elem] schema.
func VectorOf(elem *Schema) *Schema { return &Schema{Kind: KindVector, Elem: elem} }

// MapOf constructs a Map{} schema.
func MapOf(spec *MapSpec) *Schema { return &Schema{Kind: KindMap, MapSpec: spec} }

// Refine constructs a Refined{base, predicates} schema.
func Refine(base *Schema, predicates ...Predicate) *Schema {
	return &Schema{Kind: KindRefined, Base: base, Predicates: predicates}
}

// GtPred / GePred / LtPred / LePred / EqPred build comparison predicates
// against a literal Value.
func GtPred(lit value.Value) Predicate { return Predicate{Op: OpGt, Literal: lit} }
func GePred(lit value.Value) Predicate { return Predicate{Op: OpGe, Literal: lit} }
func LtPred(lit value.Value) Predicate { return Predicate{Op: OpLt, Literal: lit} }
func LePred(lit value.Value) Predicate { return Predicate{Op: OpLe, Literal: lit} }
func EqPred(lit value.Value) Predicate { return Predicate{Op: OpEq, Literal: lit} }

// MinLengthPred builds a MinLength predicate.
func MinLengthPred(n int) Predicate { return Predicate{HasMinLength: true, MinLength: n} }

// MatchesRegexPred builds a MatchesRegex predicate.
func MatchesRegexPred(re *regexp.Regexp) Predicate { return Predicate{MatchesRegex: re} }

// Validate checks v against s, returning every violation found (it does not
// stop at the first). An empty result means v conforms.
func Validate(s *Schema, v value.Value) []Issue {
	return validateAt(s, v, "$")
}

func validateAt(s *Schema, v value.Value, path string) []Issue {
	switch s.Kind {
	case KindAny:
		return nil
	case KindInt:
		if v.Tag() != value.TagInteger {
			return typeIssue(path, "Integer", v)
		}
	case KindFloat:
		if v.Tag() != value.TagFloat {
			return typeIssue(path, "Float", v)
		}
	case KindString:
		if v.Tag() != value.TagString {
			return typeIssue(path, "String", v)
		}
	case KindBool:
		if v.Tag() != value.TagBoolean {
			return typeIssue(path, "Boolean", v)
		}
	case KindNil:
		if v.Tag() != value.TagNil {
			return typeIssue(path, "Nil", v)
		}
	case KindKeyword:
		if v.Tag() != value.TagKeyword {
			return typeIssue(path, "Keyword", v)
		}
	case KindVector:
		return validateVector(s, v, path)
	case KindMap:
		return validateMap(s, v, path)
	case KindRefined:
		return validateRefined(s, v, path)
	}
	return nil
}

func typeIssue(path, want string, v value.Value) []Issue {
	return []Issue{{
		Path:     path,
		Message:  fmt.Sprintf("expected %s, got %s", want, tagName(v.Tag())),
		Severity: SeverityError,
	}}
}

func tagName(t value.Tag) string {
	switch t {
	case value.TagNil:
		return "Nil"
	case value.TagBoolean:
		return "Boolean"
	case value.TagInteger:
		return "Integer"
	case value.TagFloat:
		return "Float"
	case value.TagString:
		return "String"
	case value.TagKeyword:
		return "Keyword"
	case value.TagVector:
		return "Vector"
	case value.TagMap:
		return "Map"
	default:
		return "Value"
	}
}

func validateVector(s *Schema, v value.Value, path string) []Issue {
	if v.Tag() != value.TagVector {
		return typeIssue(path, "Vector", v)
	}
	var issues []Issue
	for i, item := range v.AsVector() {
		issues = append(issues, validateAt(s.Elem, item, fmt.Sprintf("%s[%d]", path, i))...)
	}
	return issues
}

func validateMap(s *Schema, v value.Value, path string) []Issue {
	if v.Tag() != value.TagMap {
		return typeIssue(path, "Map", v)
	}
	var issues []Issue
	seen := make(map[string]bool)
	for _, k := range v.MapKeys() {
		keyStr := k.S
		if k.Tag == value.TagInteger {
			continue // integer-keyed maps are not governed by this MapSpec
		}
		val, _ := v.MapGet(k)
		seen[keyStr] = true
		if sub, ok := s.MapSpec.Required[keyStr]; ok {
			issues = append(issues, validateAt(sub, val, path+"."+keyStr)...)
			continue
		}
		if sub, ok := s.MapSpec.Optional[keyStr]; ok {
			issues = append(issues, validateAt(sub, val, path+"."+keyStr)...)
			continue
		}
		if s.MapSpec.Wildcard != nil {
			issues = append(issues, validateAt(s.MapSpec.Wildcard, val, path+"."+keyStr)...)
			continue
		}
		issues = append(issues, Issue{
			Path:     path + "." + keyStr,
			Message:  "unexpected key, no wildcard declared",
			Severity: SeverityError,
		})
	}
	for name := range s.MapSpec.Required {
		if !seen[name] {
			issues = append(issues, Issue{
				Path:     path + "." + name,
				Message:  "missing required key",
				Severity: SeverityError,
			})
		}
	}
	return issues
}

func validateRefined(s *Schema, v value.Value, path string) []Issue {
	issues := validateAt(s.Base, v, path)
	if len(issues) > 0 {
		return issues
	}
	for _, p := range s.Predicates {
		if issue, ok := checkPredicate(p, v, path); !ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

func checkPredicate(p Predicate, v value.Value, path string) (Issue, bool) {
	switch {
	case p.HasMinLength:
		if v.Len() < p.MinLength {
			return Issue{Path: path, Message: fmt.Sprintf("length %d below MinLength %d", v.Len(), p.MinLength), Severity: SeverityError}, false
		}
		return Issue{}, true
	case p.MatchesRegex != nil:
		if v.Tag() != value.TagString || !p.MatchesRegex.MatchString(v.AsString()) {
			return Issue{Path: path, Message: fmt.Sprintf("value does not match pattern %s", p.MatchesRegex.String()), Severity: SeverityError}, false
		}
		return Issue{}, true
	default:
		ok, err := compare(p.Op, v, p.Literal)
		if err != nil {
			return Issue{Path: path, Message: err.Error(), Severity: SeverityError}, false
		}
		if !ok {
			return Issue{Path: path, Message: fmt.Sprintf("value fails predicate %s %s", p.Op, p.Literal), Severity: SeverityError}, false
		}
		return Issue{}, true
	}
}

func compare(op PredicateOp, a, b value.Value) (bool, error) {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		if op == OpEq {
			return value.Equal(a, b), nil
		}
		return false, fmt.Errorf("predicate %s requires numeric operands", op)
	}
	switch op {
	case OpGt:
		return af > bf, nil
	case OpGe:
		return af >= bf, nil
	case OpLt:
		return af < bf, nil
	case OpLe:
		return af <= bf, nil
	case OpEq:
		return af == bf, nil
	default:
		return false, fmt.Errorf("unknown predicate operator %s", op)
	}
}

func numeric(v value.Value) (float64, bool) {
	switch v.Tag() {
	case value.TagInteger:
		return float64(v.AsInt()), true
	case value.TagFloat:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

// Admits reports whether issues contains no Error-severity entries (spec
// §4.5's admission rule, reused by both schema validation and the synthesis
// harness).
func Admits(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return false
		}
	}
	return true
}
