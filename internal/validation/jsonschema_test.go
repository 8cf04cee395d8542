package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/handoff/pkg/schema"
)

const testSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["email"],
  "properties": {
    "email": { "type": "string", "minLength": 3 },
    "attempts": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": false
}`

func compileTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Compile("handoff://schemas/test.json", testSchema)
	require.NoError(t, err)
	return s
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile("handoff://schemas/bad.json", `{"type": 12}`)
	require.Error(t, err)
}

func TestMustCompile_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile("handoff://schemas/bad.json", `not json at all`)
	})
}

func TestValidate_Valid(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"email": "a@b.com", "attempts": 2})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"attempts": 1})
	require.Error(t, err)

	he, ok := err.(*schema.HandoffError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, he.Code)
}

func TestValidate_WrongType(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"email": 42})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestValidate_AdditionalProperty(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"email": "a@b.com", "extra": true})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

// Go ints must survive the json.Number round-trip the validator performs.
func TestValidate_IntegerRoundTrip(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"email": "a@b.com", "attempts": 0})
	assert.NoError(t, err)

	err = s.Validate(map[string]any{"email": "a@b.com", "attempts": -1})
	require.Error(t, err)
}

func TestValidate_MultipleViolationsCollected(t *testing.T) {
	s := compileTestSchema(t)

	err := s.Validate(map[string]any{"email": 42, "attempts": -1})
	require.Error(t, err)

	he, ok := err.(*schema.HandoffError)
	require.True(t, ok)
	violations, ok := he.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}
