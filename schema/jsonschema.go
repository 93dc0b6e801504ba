package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/value"
)

// JSONSchema wraps a compiled external JSON Schema document — the shape MCP
// tool manifests declare via `inputSchema`/`outputSchema` in `tools/list`
// (spec §4.4 discovery, §4.2 "may declare a schema"). It is kept distinct
// from the bespoke Schema language above: MCP tool schemas are arbitrary
// JSON Schema documents produced by third parties, not instances of our
// Refined/Vector/Map language, so validating them calls for a real JSON
// Schema engine rather than a hand-rolled comparison against our own Kind
// enum.
type JSONSchema struct {
	compiled *jsonschema.Schema
}

// CompileJSONSchema parses and compiles a JSON Schema document.
func CompileJSONSchema(doc []byte) (*JSONSchema, error) {
	var decoded any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		return nil, errors.Wrap(errors.SchemaError, "invalid JSON Schema document", err)
	}
	c := jsonschema.NewCompiler()
	const resourceURL = "mem://capability-schema.json"
	if err := c.AddResource(resourceURL, decoded); err != nil {
		return nil, errors.Wrap(errors.SchemaError, "failed to register JSON Schema resource", err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, errors.Wrap(errors.SchemaError, "failed to compile JSON Schema", err)
	}
	return &JSONSchema{compiled: compiled}, nil
}

// ValidateValue converts v to its JSON representation and validates it
// against the compiled schema, returning a SchemaError carrying the
// validator's own path-annotated message on failure.
func (s *JSONSchema) ValidateValue(v value.Value) error {
	j, err := value.ToJSON(v)
	if err != nil {
		return errors.Wrap(errors.SchemaError, "value not convertible to JSON for schema validation", err)
	}
	// Round-trip through encoding/json so numeric types match what the
	// jsonschema validator expects (json.Number / float64), rather than Go's
	// native int64 from value.ToJSON.
	raw, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(errors.SchemaError, "failed to marshal value for schema validation", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return errors.Wrap(errors.SchemaError, "failed to decode value for schema validation", err)
	}
	if err := s.compiled.Validate(instance); err != nil {
		return errors.Wrap(errors.SchemaError, fmt.Sprintf("schema validation failed: %v", err), err)
	}
	return nil
}
