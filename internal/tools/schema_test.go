package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() *Param {
	return Object(map[string]*Param{
		"operation": {Kind: KindEnum, Required: true, Enum: []string{"FILTER", "SUMMARY"}},
		"customer":  {Kind: KindString},
		"limit":     {Kind: KindInteger},
		"threshold": {Kind: KindNumber},
	})
}

func TestValidateAcceptsWellFormedArguments(t *testing.T) {
	err := testParams().Validate(map[string]any{
		"operation": "FILTER",
		"customer":  "Alice",
		"limit":     float64(5),
		"threshold": 0.7,
	})
	assert.NoError(t, err)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	err := testParams().Validate(map[string]any{"customer": "Alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "operation"`)
}

func TestValidateRejectsBadEnumValue(t *testing.T) {
	err := testParams().Validate(map[string]any{"operation": "EXPLODE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments.operation")
	assert.Contains(t, err.Error(), "FILTER, SUMMARY")
}

func TestValidateRejectsFractionalInteger(t *testing.T) {
	err := testParams().Validate(map[string]any{
		"operation": "FILTER",
		"limit":     2.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments.limit")
}

func TestValidateIgnoresUnknownFields(t *testing.T) {
	err := testParams().Validate(map[string]any{
		"operation": "FILTER",
		"extra":     "whatever",
	})
	assert.NoError(t, err)
}

func TestNormalizeDropsSentinelLiterals(t *testing.T) {
	out := Normalize(map[string]any{
		"keep":    "value",
		"empty":   "",
		"null":    "null",
		"none":    "None",
		"spaced":  "  NULL  ",
		"nilval":  nil,
		"number":  float64(3),
		"nested":  map[string]any{"inner": "none", "keep": "x"},
	})

	assert.Equal(t, map[string]any{
		"keep":   "value",
		"number": float64(3),
		"nested": map[string]any{"keep": "x"},
	}, out)
}

func TestFlattenValueWrappers(t *testing.T) {
	out := FlattenValueWrappers(map[string]any{
		"operation": map[string]any{"value": "FILTER"},
		"limit":     map[string]any{"value": float64(5)},
		"plain":     "x",
		"list":      []any{map[string]any{"value": "a"}, "b"},
	})

	assert.Equal(t, map[string]any{
		"operation": "FILTER",
		"limit":     float64(5),
		"plain":     "x",
		"list":      []any{"a", "b"},
	}, out)
}

func TestFlattenLeavesMultiKeyObjectsAlone(t *testing.T) {
	in := map[string]any{"value": "x", "other": "y"}
	assert.Equal(t, in, FlattenValueWrappers(in))
}

func TestSkeletonShapes(t *testing.T) {
	skeleton, ok := testParams().Skeleton().(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "FILTER | SUMMARY", skeleton["operation"])
	assert.Equal(t, "text", skeleton["customer"])
	assert.Equal(t, 0, skeleton["limit"])
	assert.Equal(t, 0, skeleton["threshold"])
}

func TestJSONSchemaMarksRequiredFields(t *testing.T) {
	schema := testParams().JSONSchema()

	assert.Equal(t, "object", schema["type"])
	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"operation"}, required)

	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	operation, ok := properties["operation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"FILTER", "SUMMARY"}, operation["enum"])
}
