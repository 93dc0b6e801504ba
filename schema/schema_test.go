package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cos-systems/cos/schema"
	"github.com/cos-systems/cos/value"
)

func TestMapRequiredOptionalWildcard(t *testing.T) {
	s := schema.MapOf(&schema.MapSpec{
		Required: map[string]*schema.Schema{"id": schema.String()},
		Optional: map[string]*schema.Schema{"note": schema.String()},
		Wildcard: schema.Any(),
	})

	v := value.EmptyMap().
		Set(value.StringKey("id"), value.Str("abc")).
		Set(value.StringKey("extra"), value.Int(1))
	assert.Empty(t, schema.Validate(s, v))

	missing := value.EmptyMap().Set(value.StringKey("note"), value.Str("x"))
	issues := schema.Validate(s, missing)
	require.NotEmpty(t, issues)
	assert.Equal(t, schema.SeverityError, issues[0].Severity)
}

func TestClosedMapRejectsUnknownKey(t *testing.T) {
	s := schema.MapOf(&schema.MapSpec{Required: map[string]*schema.Schema{"id": schema.String()}})
	v := value.EmptyMap().Set(value.StringKey("id"), value.Str("a")).Set(value.StringKey("bogus"), value.Int(1))
	issues := schema.Validate(s, v)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "unexpected key")
}

func TestRefinedPredicates(t *testing.T) {
	positive := schema.Refine(schema.Int(), schema.GtPred(value.Int(0)))
	assert.Empty(t, schema.Validate(positive, value.Int(5)))
	assert.NotEmpty(t, schema.Validate(positive, value.Int(-1)))

	minLen := schema.Refine(schema.String(), schema.MinLengthPred(3))
	assert.Empty(t, schema.Validate(minLen, value.Str("abcd")))
	assert.NotEmpty(t, schema.Validate(minLen, value.Str("ab")))
}

func TestVectorElementType(t *testing.T) {
	s := schema.VectorOf(schema.Int())
	assert.Empty(t, schema.Validate(s, value.Vector(value.Int(1), value.Int(2))))
	issues := schema.Validate(s, value.Vector(value.Int(1), value.Str("x")))
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Path, "[1]")
}

func TestJSONSchemaValidatesMCPStyleInputSchema(t *testing.T) {
	doc := []byte(`{
		"type": "object",
		"properties": {"city": {"type": "string"}},
		"required": ["city"],
		"additionalProperties": false
	}`)
	compiled, err := schema.CompileJSONSchema(doc)
	require.NoError(t, err)

	ok := value.EmptyMap().Set(value.StringKey("city"), value.Str("Paris"))
	assert.NoError(t, compiled.ValidateValue(ok))

	bad := value.EmptyMap().Set(value.StringKey("town"), value.Str("Paris"))
	assert.Error(t, compiled.ValidateValue(bad))
}
