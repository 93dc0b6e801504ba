package value_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cos-systems/cos/value"
)

// genRepresentable produces Values drawn from the JSON-representable subset
// named in spec §8: Nil, Boolean, Integer, String, Keyword, Vector, and
// Map-with-string-keys. Float is not generated: FromJSON turns a float64 with
// an integral value into an Integer, so a Float such as 1.0 does not come
// back as a Float.
func genRepresentable(maxDepth int) gopter.Gen {
	leaf := gen.OneGenOf(
		gen.Const(value.Nil()),
		gen.Bool().Map(func(b bool) value.Value { return value.Bool(b) }),
		gen.Int64Range(-1<<40, 1<<40).Map(func(i int64) value.Value { return value.Int(i) }),
		gen.AlphaString().Map(func(s string) value.Value { return value.Str(s) }),
		gen.Identifier().Map(func(s string) value.Value { return value.Kw(s) }),
	)
	if maxDepth <= 0 {
		return leaf
	}
	return gen.OneGenOf(
		leaf,
		gen.SliceOfN(3, genRepresentable(maxDepth-1)).Map(func(items []value.Value) value.Value {
			return value.Vector(items...)
		}),
		gen.MapOf(gen.AlphaString(), genRepresentable(maxDepth-1)).Map(func(m map[string]value.Value) value.Value {
			out := value.EmptyMap()
			for k, v := range m {
				out = out.Set(value.StringKey(k), v)
			}
			return out
		}),
	)
}

func TestValueJSONRoundTripIsIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ToJSON/FromJSON round-trips to an equal Value", prop.ForAll(
		func(v value.Value) bool {
			j, err := value.ToJSON(v)
			if err != nil {
				return false
			}
			back, err := value.FromJSON(j)
			if err != nil {
				return false
			}
			return value.Equal(normalizeKeywordsAsStrings(v), back) || value.Equal(v, back)
		},
		genRepresentable(2),
	))

	properties.TestingRun(t)
}

// normalizeKeywordsAsStrings accounts for the one documented asymmetry in the
// mapping (spec §4.3): Keyword serializes to a bare string and FromJSON has
// no way to recover that it was a Keyword rather than a String, so a
// Keyword's round trip is only identity up to that re-tagging.
func normalizeKeywordsAsStrings(v value.Value) value.Value {
	switch v.Tag() {
	case value.TagKeyword:
		return value.Str(v.AsString())
	case value.TagVector:
		items := v.AsVector()
		out := make([]value.Value, len(items))
		for i, it := range items {
			out[i] = normalizeKeywordsAsStrings(it)
		}
		return value.Vector(out...)
	case value.TagMap:
		out := value.EmptyMap()
		for _, k := range v.MapKeys() {
			val, _ := v.MapGet(k)
			out = out.Set(k, normalizeKeywordsAsStrings(val))
		}
		return out
	default:
		return v
	}
}
